// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package catalog assembles the per-user view of every model reachable right
// now: cloud listings behind stored credentials, models reported by visible
// nodes, and the always-present fallback.
package catalog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lifedeck/aigw"
	"github.com/lifedeck/aigw/internal/cache"
	"github.com/lifedeck/aigw/internal/gateway"
	"github.com/lifedeck/aigw/internal/models"
	"github.com/lifedeck/aigw/internal/resolver"
)

// Listing is one catalog build. Warnings carry per-source failures; a build
// never fails outright because one upstream is down.
type Listing struct {
	Models   []aigw.ModelDescriptor `json:"models"`
	Warnings []string               `json:"warnings,omitempty"`
}

type Catalog struct {
	options *catalogOptions
}

type catalogOptions struct {
	Logger      *slog.Logger
	Credentials aigw.CredentialRepository
	Nodes       aigw.ClientNodeRepository
	Gateway     *gateway.Gateway
	Resolver    *resolver.Resolver
	Listings    *cache.ListingCache
	Server      *aigw.ServerConfig
}

// CatalogOption is an option for configuring a [Catalog].
type CatalogOption interface {
	apply(*catalogOptions)
}

type funcCatalogOption func(*catalogOptions)

func (f funcCatalogOption) apply(opts *catalogOptions) {
	f(opts)
}

func WithCatalogLogger(logger *slog.Logger) CatalogOption {
	return funcCatalogOption(func(opts *catalogOptions) {
		opts.Logger = logger
	})
}

func WithCatalogCredentials(repo aigw.CredentialRepository) CatalogOption {
	return funcCatalogOption(func(opts *catalogOptions) {
		opts.Credentials = repo
	})
}

func WithCatalogNodes(repo aigw.ClientNodeRepository) CatalogOption {
	return funcCatalogOption(func(opts *catalogOptions) {
		opts.Nodes = repo
	})
}

func WithCatalogGateway(gw *gateway.Gateway) CatalogOption {
	return funcCatalogOption(func(opts *catalogOptions) {
		opts.Gateway = gw
	})
}

func WithCatalogResolver(r *resolver.Resolver) CatalogOption {
	return funcCatalogOption(func(opts *catalogOptions) {
		opts.Resolver = r
	})
}

func WithCatalogListingCache(c *cache.ListingCache) CatalogOption {
	return funcCatalogOption(func(opts *catalogOptions) {
		opts.Listings = c
	})
}

func WithCatalogServerConfig(cfg *aigw.ServerConfig) CatalogOption {
	return funcCatalogOption(func(opts *catalogOptions) {
		opts.Server = cfg
	})
}

// NewCatalog creates a new [Catalog].
func NewCatalog(options ...CatalogOption) (*Catalog, error) {
	opts := &catalogOptions{
		Logger:   slog.Default(),
		Listings: cache.NewListingCache(cache.DefaultListingTTL),
		Server:   &aigw.ServerConfig{},
	}
	for _, opt := range options {
		opt.apply(opts)
	}
	if opts.Credentials == nil {
		return nil, errors.New("catalog requires a credential repository")
	}
	if opts.Nodes == nil {
		return nil, errors.New("catalog requires a node repository")
	}
	if opts.Gateway == nil {
		return nil, errors.New("catalog requires a gateway")
	}
	if opts.Resolver == nil {
		return nil, errors.New("catalog requires a resolver")
	}
	return &Catalog{options: opts}, nil
}

// Build assembles the requester's catalog. The fallback entry is always last
// and always present, so the result is never empty.
func (c *Catalog) Build(ctx context.Context, requester *aigw.User) (*Listing, error) {
	if requester == nil {
		return nil, aigw.ErrAccessDenied
	}
	c.options.Listings.Purge()

	listing := &Listing{}
	seen := make(map[string]bool)

	add := func(d aigw.ModelDescriptor) {
		if !seen[d.ID] {
			seen[d.ID] = true
			listing.Models = append(listing.Models, d)
		}
	}

	for _, provider := range c.cloudProvidersFor(ctx, requester) {
		descriptors, warning := c.cloudListing(ctx, requester, provider)
		if warning != "" {
			listing.Warnings = append(listing.Warnings, warning)
			continue
		}
		for _, d := range descriptors {
			add(d)
		}
	}

	nodes, err := c.options.Nodes.ListVisible(ctx, requester.ID)
	if err != nil {
		return nil, err
	}
	for _, node := range nodes {
		if node.Status != aigw.NodeStatusOnline {
			continue
		}
		for _, modelID := range node.Capabilities.Models {
			add(models.NodeDescriptor(node, modelID))
		}
	}

	add(models.FallbackDescriptor())
	return listing, nil
}

// DefaultModelID answers "what would a bare request route to". Configured
// tiers come from the resolver; when none is set, the first catalog entry
// outranks the fallback, so an account whose only resource is an online node
// defaults to that node's first model.
func (c *Catalog) DefaultModelID(ctx context.Context, requester *aigw.User) (string, error) {
	target, err := c.options.Resolver.Resolve(ctx, requester, "")
	if err != nil {
		return "", err
	}
	if !c.unconfiguredFallback(target) {
		return target.Descriptor.ID, nil
	}

	listing, err := c.Build(ctx, requester)
	if err != nil {
		return "", err
	}
	// The fallback entry is always appended last, so the first entry is the
	// best non-fallback candidate when one exists.
	return listing.Models[0].ID, nil
}

// unconfiguredFallback reports whether the resolver landed on the mock target
// only because nothing was configured. A saved mock config or a mock server
// default is a deliberate choice and stays authoritative.
func (c *Catalog) unconfiguredFallback(target *resolver.Target) bool {
	if target.Kind != resolver.TargetMock {
		return false
	}
	if target.Config != nil {
		return false
	}
	return c.options.Server.DefaultProvider != aigw.ProviderMock
}

// cloudProvidersFor lists the providers worth querying: those with a stored
// credential, plus those covered by a server-wide key.
func (c *Catalog) cloudProvidersFor(ctx context.Context, requester *aigw.User) []string {
	withKey := make(map[string]bool)
	stored, err := c.options.Credentials.ListByOwner(ctx, requester.ID)
	if err != nil {
		c.options.Logger.Warn("Failed to list credentials for catalog", "error", err)
	} else {
		for _, cred := range stored {
			withKey[cred.Provider] = true
		}
	}

	var providers []string
	for _, provider := range aigw.CloudProviders {
		if withKey[provider] || c.options.Server.ServerKey(provider) != "" {
			providers = append(providers, provider)
		}
	}
	return providers
}

func (c *Catalog) cloudListing(ctx context.Context, requester *aigw.User, provider string) ([]aigw.ModelDescriptor, string) {
	if cached, ok := c.options.Listings.Get(requester.ID, provider); ok {
		return cached, ""
	}

	ids, err := c.options.Gateway.ListCloudModels(ctx, requester, provider)
	if err != nil {
		c.options.Logger.Warn("Cloud listing unavailable",
			"provider", provider, "error", err)
		return nil, provider + ": model listing unavailable"
	}

	descriptors := make([]aigw.ModelDescriptor, 0, len(ids))
	for _, id := range ids {
		descriptors = append(descriptors, models.CloudDescriptor(provider, id))
	}
	c.options.Listings.Put(requester.ID, provider, descriptors)
	return descriptors, ""
}
