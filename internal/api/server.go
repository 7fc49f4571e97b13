// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package api is the REST surface of the routing subsystem. Routes under /ai
// serve authenticated suite users; routes under /admin additionally require
// the admin flag.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/lifedeck/aigw"
	"github.com/lifedeck/aigw/internal/catalog"
	"github.com/lifedeck/aigw/internal/gateway"
	"github.com/lifedeck/aigw/internal/registry"
	"github.com/lifedeck/aigw/internal/resolver"
	"github.com/lifedeck/aigw/internal/services"
)

type Server struct {
	options     *serverOptions
	mux         *http.ServeMux
	corsHandler *cors.Cors
}

type serverOptions struct {
	Logger        *slog.Logger
	Authenticator Authenticator
	Credentials   *services.CredentialStore
	Configs       aigw.ProviderConfigRepository
	Registry      *registry.Registry
	Catalog       *catalog.Catalog
	Resolver      *resolver.Resolver
	Gateway       *gateway.Gateway
	CORSOrigins   []string
}

// ServerOption is an option for configuring a [Server].
type ServerOption interface {
	apply(*serverOptions)
}

type funcServerOption func(*serverOptions)

func (f funcServerOption) apply(opts *serverOptions) {
	f(opts)
}

func WithServerLogger(logger *slog.Logger) ServerOption {
	return funcServerOption(func(opts *serverOptions) {
		opts.Logger = logger
	})
}

func WithServerAuthenticator(a Authenticator) ServerOption {
	return funcServerOption(func(opts *serverOptions) {
		opts.Authenticator = a
	})
}

func WithServerCredentialStore(store *services.CredentialStore) ServerOption {
	return funcServerOption(func(opts *serverOptions) {
		opts.Credentials = store
	})
}

func WithServerProviderConfigs(repo aigw.ProviderConfigRepository) ServerOption {
	return funcServerOption(func(opts *serverOptions) {
		opts.Configs = repo
	})
}

func WithServerRegistry(reg *registry.Registry) ServerOption {
	return funcServerOption(func(opts *serverOptions) {
		opts.Registry = reg
	})
}

func WithServerCatalog(cat *catalog.Catalog) ServerOption {
	return funcServerOption(func(opts *serverOptions) {
		opts.Catalog = cat
	})
}

func WithServerResolver(r *resolver.Resolver) ServerOption {
	return funcServerOption(func(opts *serverOptions) {
		opts.Resolver = r
	})
}

func WithServerGateway(gw *gateway.Gateway) ServerOption {
	return funcServerOption(func(opts *serverOptions) {
		opts.Gateway = gw
	})
}

func WithServerCORSOrigins(origins []string) ServerOption {
	return funcServerOption(func(opts *serverOptions) {
		opts.CORSOrigins = origins
	})
}

// NewServer creates a new [Server].
func NewServer(options ...ServerOption) (*Server, error) {
	opts := &serverOptions{
		Logger:      slog.Default(),
		CORSOrigins: []string{"http://localhost:3000"},
	}
	for _, opt := range options {
		opt.apply(opts)
	}
	if opts.Authenticator == nil {
		return nil, errors.New("server requires an authenticator")
	}
	if opts.Credentials == nil {
		return nil, errors.New("server requires a credential store")
	}
	if opts.Configs == nil {
		return nil, errors.New("server requires a provider config repository")
	}
	if opts.Registry == nil {
		return nil, errors.New("server requires a client node registry")
	}
	if opts.Catalog == nil {
		return nil, errors.New("server requires a model catalog")
	}
	if opts.Resolver == nil {
		return nil, errors.New("server requires a resolver")
	}
	if opts.Gateway == nil {
		return nil, errors.New("server requires a gateway")
	}

	s := &Server{
		options: opts,
		mux:     http.NewServeMux(),
		corsHandler: cors.New(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
			AllowCredentials: true,
			MaxAge:           7200,
		}),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /ai/api-keys", s.requireUser(s.handleSaveAPIKey))
	s.mux.HandleFunc("GET /ai/api-keys", s.requireUser(s.handleListAPIKeys))
	s.mux.HandleFunc("DELETE /ai/api-keys/{provider}", s.requireUser(s.handleDeleteAPIKey))

	s.mux.HandleFunc("POST /ai/provider-configs", s.requireUser(s.handleCreateProviderConfig))
	s.mux.HandleFunc("GET /ai/provider-configs", s.requireUser(s.handleListProviderConfigs))
	s.mux.HandleFunc("POST /ai/provider-configs/{id}/default", s.requireUser(s.handleSetDefaultProviderConfig))
	s.mux.HandleFunc("DELETE /ai/provider-configs/{id}", s.requireUser(s.handleDeleteProviderConfig))

	s.mux.HandleFunc("GET /ai/models", s.requireUser(s.handleListModels))
	s.mux.HandleFunc("POST /ai/chat", s.requireUser(s.handleChat))
	s.mux.HandleFunc("POST /ai/stream", s.requireUser(s.handleChatStream))
	s.mux.HandleFunc("POST /ai/embeddings", s.requireUser(s.handleEmbeddings))

	s.mux.HandleFunc("GET /admin/ai-clients", s.requireAdmin(s.handleListNodes))
	s.mux.HandleFunc("POST /admin/ai-clients", s.requireAdmin(s.handleRegisterNode))
	s.mux.HandleFunc("GET /admin/ai-clients/{id}", s.requireAdmin(s.handleGetNode))
	s.mux.HandleFunc("PUT /admin/ai-clients/{id}", s.requireAdmin(s.handleUpdateNode))
	s.mux.HandleFunc("DELETE /admin/ai-clients/{id}", s.requireAdmin(s.handleDeleteNode))
	s.mux.HandleFunc("POST /admin/ai-clients/{id}/test", s.requireAdmin(s.handleTestNode))
	s.mux.HandleFunc("GET /admin/ai/models/{provider}", s.requireAdmin(s.handleListProviderModels))
}

// Handler returns the routable handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.corsHandler.Handler(s.mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.options.Logger.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondError maps the domain error taxonomy onto HTTP statuses. Access
// denials stay generic so a caller cannot probe for existence.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var provErr *aigw.ProviderError
	switch {
	case errors.Is(err, aigw.ErrValidation):
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, aigw.ErrAccessDenied):
		s.respondJSON(w, http.StatusForbidden, errorResponse{Error: "access denied"})
	case errors.Is(err, aigw.ErrNotFound):
		s.respondJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, aigw.ErrDuplicateEntry):
		s.respondJSON(w, http.StatusConflict, errorResponse{Error: "duplicate entry"})
	case errors.Is(err, aigw.ErrUnknownModel):
		s.respondJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, aigw.ErrNodeUnreachable):
		s.respondJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	case errors.As(err, &provErr):
		s.respondJSON(w, http.StatusBadGateway, errorResponse{Error: provErr.Error()})
	default:
		s.options.Logger.Error("Request failed", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
