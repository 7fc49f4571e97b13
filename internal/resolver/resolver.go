// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package resolver turns a chat request into a concrete routing target. It
// only reads state; no health probes or outbound calls happen here, so
// resolution is fast and deterministic for a given database state.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lifedeck/aigw"
	"github.com/lifedeck/aigw/internal/models"
)

// TargetKind says which adapter family serves a resolved target.
type TargetKind string

const (
	TargetCloud TargetKind = "cloud"
	TargetNode  TargetKind = "node"
	TargetMock  TargetKind = "mock"
)

// Target is a fully resolved routing decision: everything the gateway needs
// to construct an adapter and issue exactly one attempt.
type Target struct {
	Kind       TargetKind
	Provider   string
	Model      string
	Descriptor aigw.ModelDescriptor

	// Node is set for TargetNode.
	Node *aigw.ClientNode

	// Credential is the stored per-user credential backing a cloud target.
	// Nil with UseServerKey set means the server-wide key applies instead.
	Credential   *aigw.Credential
	UseServerKey bool

	// Config is the provider config that drove the decision, when one did.
	// Generation parameters (temperature, max tokens) come from here.
	Config *aigw.ProviderConfig
}

type Resolver struct {
	options *resolverOptions
}

type resolverOptions struct {
	Logger      *slog.Logger
	Credentials aigw.CredentialRepository
	Configs     aigw.ProviderConfigRepository
	Nodes       aigw.ClientNodeRepository
	Server      *aigw.ServerConfig
}

// ResolverOption is an option for configuring a [Resolver].
type ResolverOption interface {
	apply(*resolverOptions)
}

type funcResolverOption func(*resolverOptions)

func (f funcResolverOption) apply(opts *resolverOptions) {
	f(opts)
}

func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return funcResolverOption(func(opts *resolverOptions) {
		opts.Logger = logger
	})
}

func WithResolverCredentials(repo aigw.CredentialRepository) ResolverOption {
	return funcResolverOption(func(opts *resolverOptions) {
		opts.Credentials = repo
	})
}

func WithResolverConfigs(repo aigw.ProviderConfigRepository) ResolverOption {
	return funcResolverOption(func(opts *resolverOptions) {
		opts.Configs = repo
	})
}

func WithResolverNodes(repo aigw.ClientNodeRepository) ResolverOption {
	return funcResolverOption(func(opts *resolverOptions) {
		opts.Nodes = repo
	})
}

func WithResolverServerConfig(cfg *aigw.ServerConfig) ResolverOption {
	return funcResolverOption(func(opts *resolverOptions) {
		opts.Server = cfg
	})
}

// NewResolver creates a new [Resolver].
func NewResolver(options ...ResolverOption) (*Resolver, error) {
	opts := &resolverOptions{
		Logger: slog.Default(),
		Server: &aigw.ServerConfig{},
	}
	for _, opt := range options {
		opt.apply(opts)
	}
	if opts.Credentials == nil {
		return nil, errors.New("resolver requires a credential repository")
	}
	if opts.Configs == nil {
		return nil, errors.New("resolver requires a provider config repository")
	}
	if opts.Nodes == nil {
		return nil, errors.New("resolver requires a node repository")
	}
	return &Resolver{options: opts}, nil
}

// Resolve picks the routing target for a request. An explicit model reference
// is authoritative: if it cannot be satisfied the resolution fails rather than
// silently routing elsewhere. Without one, the tiers fall through in order
// (user default config, first usable config, server default) and end at the
// mock fallback, so a requester with nothing configured still gets an answer.
func (r *Resolver) Resolve(ctx context.Context, requester *aigw.User, modelRef string) (*Target, error) {
	if requester == nil {
		return nil, aigw.ErrAccessDenied
	}
	if modelRef != "" {
		return r.resolveExplicit(ctx, requester, modelRef)
	}

	tiers := []func(context.Context, *aigw.User) (*Target, error){
		r.resolveDefaultConfig,
		r.resolveFirstUsableConfig,
		r.resolveServerDefault,
	}
	for _, tier := range tiers {
		target, err := tier(ctx, requester)
		if err != nil {
			return nil, err
		}
		if target != nil {
			return target, nil
		}
	}

	return r.fallbackTarget(), nil
}

func (r *Resolver) resolveExplicit(ctx context.Context, requester *aigw.User, ref string) (*Target, error) {
	source, modelID, err := models.ParseReference(ref)
	if err != nil {
		return nil, err
	}

	switch {
	case source == aigw.ProviderMock:
		return r.fallbackTarget(), nil

	case aigw.IsCloudProvider(source):
		return r.cloudTarget(ctx, requester, source, modelID, nil)

	default:
		nodeID, parseErr := uuid.Parse(source)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: %q", aigw.ErrUnknownModel, ref)
		}
		return r.nodeTarget(ctx, requester, nodeID, modelID)
	}
}

func (r *Resolver) nodeTarget(ctx context.Context, requester *aigw.User, nodeID uuid.UUID, modelID string) (*Target, error) {
	node, err := r.options.Nodes.Get(ctx, nodeID)
	if err != nil {
		if errors.Is(err, aigw.ErrNotFound) {
			// Same denial whether the node is absent or merely invisible.
			return nil, aigw.ErrAccessDenied
		}
		return nil, err
	}
	if !node.VisibleTo(requester) || !node.IsActive {
		return nil, aigw.ErrAccessDenied
	}

	return &Target{
		Kind:       TargetNode,
		Provider:   string(node.NodeType),
		Model:      modelID,
		Descriptor: models.NodeDescriptor(node, modelID),
		Node:       node,
	}, nil
}

// cloudTarget binds a cloud provider/model pair to a credential. The stored
// per-user key wins; the server-wide key is the backstop. Neither means the
// model is outside the requester's reachable set, reported as unknown.
func (r *Resolver) cloudTarget(ctx context.Context, requester *aigw.User, provider, modelID string, cfg *aigw.ProviderConfig) (*Target, error) {
	target := &Target{
		Kind:       TargetCloud,
		Provider:   provider,
		Model:      modelID,
		Descriptor: models.CloudDescriptor(provider, modelID),
		Config:     cfg,
	}

	cred, err := r.options.Credentials.Get(ctx, requester.ID, provider)
	switch {
	case err == nil:
		target.Credential = cred
		return target, nil
	case errors.Is(err, aigw.ErrNotFound):
		if r.options.Server.ServerKey(provider) != "" {
			target.UseServerKey = true
			return target, nil
		}
		return nil, fmt.Errorf("%w: no API key available for provider %q", aigw.ErrUnknownModel, provider)
	default:
		return nil, err
	}
}

func (r *Resolver) resolveDefaultConfig(ctx context.Context, requester *aigw.User) (*Target, error) {
	cfg, err := r.options.Configs.GetDefault(ctx, requester.ID)
	if errors.Is(err, aigw.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.configTarget(ctx, requester, cfg)
}

// resolveFirstUsableConfig scans the owner's configs in creation order and
// takes the first one whose credential still exists. Dangling configs are
// skipped, not errors.
func (r *Resolver) resolveFirstUsableConfig(ctx context.Context, requester *aigw.User) (*Target, error) {
	cfgs, err := r.options.Configs.ListByOwner(ctx, requester.ID)
	if err != nil {
		return nil, err
	}
	for _, cfg := range cfgs {
		target, err := r.configTarget(ctx, requester, cfg)
		if err != nil {
			return nil, err
		}
		if target != nil {
			return target, nil
		}
	}
	return nil, nil
}

// configTarget builds a target from a saved config, or nil when the config is
// no longer usable (its credential was deleted since it was saved).
func (r *Resolver) configTarget(ctx context.Context, requester *aigw.User, cfg *aigw.ProviderConfig) (*Target, error) {
	if cfg.ProviderType == aigw.ProviderMock {
		target := r.fallbackTarget()
		target.Config = cfg
		return target, nil
	}
	if !aigw.IsCloudProvider(cfg.ProviderType) {
		r.options.Logger.Warn("Skipping config with unknown provider type",
			"config", cfg.ID, "provider", cfg.ProviderType)
		return nil, nil
	}

	target, err := r.cloudTarget(ctx, requester, cfg.ProviderType, cfg.Model, cfg)
	if err != nil {
		if errors.Is(err, aigw.ErrUnknownModel) {
			r.options.Logger.Debug("Skipping config without a usable credential",
				"config", cfg.ID, "provider", cfg.ProviderType)
			return nil, nil
		}
		return nil, err
	}
	return target, nil
}

func (r *Resolver) resolveServerDefault(ctx context.Context, requester *aigw.User) (*Target, error) {
	server := r.options.Server
	if server.DefaultProvider == "" {
		return nil, nil
	}
	if server.DefaultProvider == aigw.ProviderMock {
		return r.fallbackTarget(), nil
	}

	target, err := r.cloudTarget(ctx, requester, server.DefaultProvider, server.DefaultModel, nil)
	if err != nil {
		if errors.Is(err, aigw.ErrUnknownModel) {
			return nil, nil
		}
		return nil, err
	}
	return target, nil
}

func (r *Resolver) fallbackTarget() *Target {
	return &Target{
		Kind:       TargetMock,
		Provider:   aigw.ProviderMock,
		Model:      "default",
		Descriptor: models.FallbackDescriptor(),
	}
}
