// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"log/slog"
)

type CredentialRepository struct {
	options *credentialRepositoryOptions
}

// NewCredentialRepository creates a new [CredentialRepository].
func NewCredentialRepository(options ...CredentialRepositoryOption) (*CredentialRepository, error) {
	opts := defaultCredentialRepositoryOptions
	for _, opt := range GlobalCredentialRepositoryOptions {
		opt.apply(&opts)
	}
	for _, opt := range options {
		opt.apply(&opts)
	}

	return &CredentialRepository{
		options: &opts,
	}, nil
}

type credentialRepositoryOptions struct {
	Logger *slog.Logger
	Db     PgxPoolInterface
}

var defaultCredentialRepositoryOptions = credentialRepositoryOptions{
	Logger: slog.Default(),
}

// GlobalCredentialRepositoryOptions is a list of [CredentialRepositoryOption]s that are applied to all [CredentialRepository]s.
var GlobalCredentialRepositoryOptions []CredentialRepositoryOption

// CredentialRepositoryOption is an option for configuring a [CredentialRepository].
type CredentialRepositoryOption interface {
	apply(*credentialRepositoryOptions)
}

type funcCredentialRepositoryOption struct {
	f func(*credentialRepositoryOptions)
}

func (fdo *funcCredentialRepositoryOption) apply(opts *credentialRepositoryOptions) {
	fdo.f(opts)
}

func newFuncCredentialRepositoryOption(f func(*credentialRepositoryOptions)) *funcCredentialRepositoryOption {
	return &funcCredentialRepositoryOption{
		f: f,
	}
}

// WithCredentialRepositoryLogger returns a [CredentialRepositoryOption] that uses the provided logger.
func WithCredentialRepositoryLogger(logger *slog.Logger) CredentialRepositoryOption {
	return newFuncCredentialRepositoryOption(func(opts *credentialRepositoryOptions) {
		opts.Logger = logger
	})
}

// WithCredentialRepositoryDb returns a [CredentialRepositoryOption] that uses the provided database connection.
func WithCredentialRepositoryDb(db PgxPoolInterface) CredentialRepositoryOption {
	return newFuncCredentialRepositoryOption(func(opts *credentialRepositoryOptions) {
		opts.Db = db
	})
}
