// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lifedeck/aigw"
)

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", aigw.ErrValidation)
	}
	return nil
}

// validateChatRequest rejects a blank prompt before any resolution work.
func validateChatRequest(req aigw.ChatRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt must not be empty", aigw.ErrValidation)
	}
	return nil
}

type saveAPIKeyRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
	Model    string `json:"model,omitempty"`
}

func (s *Server) handleSaveAPIKey(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req saveAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	status, err := s.options.Credentials.Save(r.Context(), user.ID, req.Provider, req.APIKey, req.Model)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	statuses, err := s.options.Credentials.Status(r.Context(), user.ID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"providers": statuses})
}

func (s *Server) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	if err := s.options.Credentials.Delete(r.Context(), user.ID, r.PathValue("provider")); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createProviderConfigRequest struct {
	ProviderType string   `json:"providerType"`
	Model        string   `json:"model"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"maxTokens,omitempty"`
	IsDefault    bool     `json:"isDefault"`
}

func (s *Server) handleCreateProviderConfig(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req createProviderConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.ProviderType != aigw.ProviderMock && !aigw.IsCloudProvider(req.ProviderType) {
		s.respondError(w, fmt.Errorf("%w: unsupported provider type %q", aigw.ErrValidation, req.ProviderType))
		return
	}
	if req.ProviderType != aigw.ProviderMock && req.Model == "" {
		s.respondError(w, fmt.Errorf("%w: model is required", aigw.ErrValidation))
		return
	}

	cfg := &aigw.ProviderConfig{
		OwnerID:      user.ID,
		ProviderType: req.ProviderType,
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		IsDefault:    req.IsDefault,
	}
	if err := s.options.Configs.Create(r.Context(), cfg); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleListProviderConfigs(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	configs, err := s.options.Configs.ListByOwner(r.Context(), user.ID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"configs": configs})
}

func (s *Server) handleSetDefaultProviderConfig(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.respondError(w, fmt.Errorf("%w: invalid config id", aigw.ErrValidation))
		return
	}
	if err := s.options.Configs.SetDefault(r.Context(), user.ID, id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteProviderConfig(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.respondError(w, fmt.Errorf("%w: invalid config id", aigw.ErrValidation))
		return
	}
	if err := s.options.Configs.Delete(r.Context(), user.ID, id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	listing, err := s.options.Catalog.Build(r.Context(), user)
	if err != nil {
		s.respondError(w, err)
		return
	}
	defaultID, err := s.options.Catalog.DefaultModelID(r.Context(), user)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"models":       listing.Models,
		"warnings":     listing.Warnings,
		"defaultModel": defaultID,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req aigw.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if err := validateChatRequest(req); err != nil {
		s.respondError(w, err)
		return
	}

	target, err := s.options.Resolver.Resolve(r.Context(), user, req.Model)
	if err != nil {
		s.respondError(w, err)
		return
	}
	result, err := s.options.Gateway.GenerateReply(r.Context(), target, req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req aigw.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if err := validateChatRequest(req); err != nil {
		s.respondError(w, err)
		return
	}

	target, err := s.options.Resolver.Resolve(r.Context(), user, req.Model)
	if err != nil {
		s.respondError(w, err)
		return
	}
	stream, err := s.options.Gateway.GenerateReplyStream(r.Context(), target, req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			s.options.Logger.Error("Failed to close stream", "error", err)
		}
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, fmt.Errorf("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeEvent := func(payload any) bool {
		data, err := json.Marshal(payload)
		if err != nil {
			s.options.Logger.Error("Failed to marshal stream event", "error", err)
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	// First event announces the model that answers.
	if !writeEvent(map[string]any{"model": target.Descriptor}) {
		return
	}

	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.options.Logger.Error("Stream error", "provider", target.Provider, "error", err)
			writeEvent(map[string]any{"error": "stream interrupted"})
			return
		}
		event := map[string]any{"delta": chunk.Text}
		if chunk.Finished {
			event["done"] = true
			if chunk.Usage != nil {
				event["usage"] = chunk.Usage
			}
		}
		if !writeEvent(event) {
			return
		}
		if chunk.Finished {
			break
		}
	}

	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err == nil {
		flusher.Flush()
	}
}

type embeddingsRequest struct {
	Model  string   `json:"model,omitempty"`
	Inputs []string `json:"inputs"`
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req embeddingsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if len(req.Inputs) == 0 {
		s.respondError(w, fmt.Errorf("%w: inputs must not be empty", aigw.ErrValidation))
		return
	}

	target, err := s.options.Resolver.Resolve(r.Context(), user, req.Model)
	if err != nil {
		s.respondError(w, err)
		return
	}
	vectors, err := s.options.Gateway.Embeddings(r.Context(), target, req.Inputs)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"model":      target.Descriptor.ID,
		"embeddings": vectors,
	})
}
