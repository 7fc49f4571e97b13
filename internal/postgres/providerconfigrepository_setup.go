// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"log/slog"
)

type ProviderConfigRepository struct {
	options *providerConfigRepositoryOptions
}

// NewProviderConfigRepository creates a new [ProviderConfigRepository].
func NewProviderConfigRepository(options ...ProviderConfigRepositoryOption) (*ProviderConfigRepository, error) {
	opts := defaultProviderConfigRepositoryOptions
	for _, opt := range GlobalProviderConfigRepositoryOptions {
		opt.apply(&opts)
	}
	for _, opt := range options {
		opt.apply(&opts)
	}

	return &ProviderConfigRepository{
		options: &opts,
	}, nil
}

type providerConfigRepositoryOptions struct {
	Logger *slog.Logger
	Db     PgxPoolInterface
}

var defaultProviderConfigRepositoryOptions = providerConfigRepositoryOptions{
	Logger: slog.Default(),
}

// GlobalProviderConfigRepositoryOptions is a list of [ProviderConfigRepositoryOption]s that are applied to all [ProviderConfigRepository]s.
var GlobalProviderConfigRepositoryOptions []ProviderConfigRepositoryOption

// ProviderConfigRepositoryOption is an option for configuring a [ProviderConfigRepository].
type ProviderConfigRepositoryOption interface {
	apply(*providerConfigRepositoryOptions)
}

type funcProviderConfigRepositoryOption struct {
	f func(*providerConfigRepositoryOptions)
}

func (fdo *funcProviderConfigRepositoryOption) apply(opts *providerConfigRepositoryOptions) {
	fdo.f(opts)
}

func newFuncProviderConfigRepositoryOption(f func(*providerConfigRepositoryOptions)) *funcProviderConfigRepositoryOption {
	return &funcProviderConfigRepositoryOption{
		f: f,
	}
}

// WithProviderConfigRepositoryLogger returns a [ProviderConfigRepositoryOption] that uses the provided logger.
func WithProviderConfigRepositoryLogger(logger *slog.Logger) ProviderConfigRepositoryOption {
	return newFuncProviderConfigRepositoryOption(func(opts *providerConfigRepositoryOptions) {
		opts.Logger = logger
	})
}

// WithProviderConfigRepositoryDb returns a [ProviderConfigRepositoryOption] that uses the provided database connection.
func WithProviderConfigRepositoryDb(db PgxPoolInterface) ProviderConfigRepositoryOption {
	return newFuncProviderConfigRepositoryOption(func(opts *providerConfigRepositoryOptions) {
		opts.Db = db
	})
}
