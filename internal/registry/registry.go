// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package registry manages user-registered inference nodes: CRUD plus the
// connection test that is the sole mutator of node health state.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lifedeck/aigw"
)

const defaultProbeTimeout = 5 * time.Second

type Registry struct {
	options *registryOptions
}

type registryOptions struct {
	Logger       *slog.Logger
	Repo         aigw.ClientNodeRepository
	HTTPClient   *http.Client
	ProbeTimeout time.Duration
}

// RegistryOption is an option for configuring a [Registry].
type RegistryOption interface {
	apply(*registryOptions)
}

type funcRegistryOption func(*registryOptions)

func (f funcRegistryOption) apply(opts *registryOptions) {
	f(opts)
}

func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return funcRegistryOption(func(opts *registryOptions) {
		opts.Logger = logger
	})
}

func WithRegistryRepository(repo aigw.ClientNodeRepository) RegistryOption {
	return funcRegistryOption(func(opts *registryOptions) {
		opts.Repo = repo
	})
}

func WithRegistryHTTPClient(client *http.Client) RegistryOption {
	return funcRegistryOption(func(opts *registryOptions) {
		opts.HTTPClient = client
	})
}

func WithRegistryProbeTimeout(timeout time.Duration) RegistryOption {
	return funcRegistryOption(func(opts *registryOptions) {
		opts.ProbeTimeout = timeout
	})
}

// NewRegistry creates a new [Registry].
func NewRegistry(options ...RegistryOption) (*Registry, error) {
	opts := &registryOptions{
		Logger:       slog.Default(),
		HTTPClient:   &http.Client{},
		ProbeTimeout: defaultProbeTimeout,
	}
	for _, opt := range options {
		opt.apply(opts)
	}
	if opts.Repo == nil {
		return nil, errors.New("registry requires a node repository")
	}
	return &Registry{options: opts}, nil
}

// RegisterInput carries the caller-settable node fields.
type RegisterInput struct {
	Name     string        `json:"name"`
	NodeType aigw.NodeType `json:"nodeType"`
	Hostname string        `json:"hostname"`
	Port     int           `json:"port"`
	IsPublic bool          `json:"isPublic"`
}

func (in *RegisterInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: node name must not be empty", aigw.ErrValidation)
	}
	if !in.NodeType.Valid() {
		return fmt.Errorf("%w: unsupported node type %q", aigw.ErrValidation, in.NodeType)
	}
	if strings.TrimSpace(in.Hostname) == "" {
		return fmt.Errorf("%w: hostname must not be empty", aigw.ErrValidation)
	}
	if in.Port <= 0 || in.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", aigw.ErrValidation, in.Port)
	}
	return nil
}

// Register creates a node in status unknown. Health is established only by a
// later TestConnection call.
func (r *Registry) Register(ctx context.Context, ownerID string, in RegisterInput) (*aigw.ClientNode, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	node := &aigw.ClientNode{
		OwnerID:  ownerID,
		Name:     in.Name,
		NodeType: in.NodeType,
		Hostname: in.Hostname,
		Port:     in.Port,
		IsActive: true,
		IsPublic: in.IsPublic,
		Status:   aigw.NodeStatusUnknown,
	}
	if err := r.options.Repo.Create(ctx, node); err != nil {
		return nil, err
	}

	r.options.Logger.Info("Registered client node",
		"node", node.ID, "name", node.Name, "type", node.NodeType)
	return node, nil
}

// List returns every node. Admin surface only.
func (r *Registry) List(ctx context.Context) ([]*aigw.ClientNode, error) {
	return r.options.Repo.List(ctx)
}

// ListVisible returns the active nodes the requester may route to.
func (r *Registry) ListVisible(ctx context.Context, requester *aigw.User) ([]*aigw.ClientNode, error) {
	if requester == nil {
		return nil, aigw.ErrAccessDenied
	}
	return r.options.Repo.ListVisible(ctx, requester.ID)
}

// Get returns a node the requester may see. A node that exists but is private
// to someone else yields the same generic denial for every requester.
func (r *Registry) Get(ctx context.Context, id uuid.UUID, requester *aigw.User) (*aigw.ClientNode, error) {
	node, err := r.options.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !node.VisibleTo(requester) {
		return nil, aigw.ErrAccessDenied
	}
	return node, nil
}

// Update edits caller-settable fields, leaving health state untouched.
func (r *Registry) Update(ctx context.Context, id uuid.UUID, requester *aigw.User, in RegisterInput, isActive bool) (*aigw.ClientNode, error) {
	node, err := r.options.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !requester.IsAdmin() && node.OwnerID != requester.ID {
		return nil, aigw.ErrAccessDenied
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	node.Name = in.Name
	node.NodeType = in.NodeType
	node.Hostname = in.Hostname
	node.Port = in.Port
	node.IsPublic = in.IsPublic
	node.IsActive = isActive

	if err := r.options.Repo.Update(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

// Delete removes a node. Only the owner or an admin may do so.
func (r *Registry) Delete(ctx context.Context, id uuid.UUID, requester *aigw.User) error {
	node, err := r.options.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !requester.IsAdmin() && node.OwnerID != requester.ID {
		return aigw.ErrAccessDenied
	}
	return r.options.Repo.Delete(ctx, id)
}
