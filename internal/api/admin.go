// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/lifedeck/aigw"
	"github.com/lifedeck/aigw/internal/registry"
)

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.options.Registry.List(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"clients": nodes})
}

func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var in registry.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		s.respondError(w, err)
		return
	}

	node, err := s.options.Registry.Register(r.Context(), user.ID, in)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, node)
}

func nodeID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid client id", aigw.ErrValidation)
	}
	return id, nil
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id, err := nodeID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	node, err := s.options.Registry.Get(r.Context(), id, userFromContext(r.Context()))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, node)
}

type updateNodeRequest struct {
	registry.RegisterInput
	IsActive bool `json:"isActive"`
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	id, err := nodeID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	var req updateNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	node, err := s.options.Registry.Update(r.Context(), id, userFromContext(r.Context()), req.RegisterInput, req.IsActive)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, node)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id, err := nodeID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.options.Registry.Delete(r.Context(), id, userFromContext(r.Context())); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTestNode runs a connection test. The probe's outcome is the payload
// even when the node turned out to be down; only lookup failures error.
func (s *Server) handleTestNode(w http.ResponseWriter, r *http.Request) {
	id, err := nodeID(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	node, err := s.options.Registry.TestConnection(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, node)
}

func (s *Server) handleListProviderModels(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	provider := r.PathValue("provider")

	ids, err := s.options.Gateway.ListCloudModels(r.Context(), user, provider)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"provider": provider, "models": ids})
}
