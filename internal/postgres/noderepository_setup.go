// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"log/slog"
)

type NodeRepository struct {
	options *nodeRepositoryOptions
}

// NewNodeRepository creates a new [NodeRepository].
func NewNodeRepository(options ...NodeRepositoryOption) (*NodeRepository, error) {
	opts := defaultNodeRepositoryOptions
	for _, opt := range GlobalNodeRepositoryOptions {
		opt.apply(&opts)
	}
	for _, opt := range options {
		opt.apply(&opts)
	}

	return &NodeRepository{
		options: &opts,
	}, nil
}

type nodeRepositoryOptions struct {
	Logger *slog.Logger
	Db     PgxPoolInterface
}

var defaultNodeRepositoryOptions = nodeRepositoryOptions{
	Logger: slog.Default(),
}

// GlobalNodeRepositoryOptions is a list of [NodeRepositoryOption]s that are applied to all [NodeRepository]s.
var GlobalNodeRepositoryOptions []NodeRepositoryOption

// NodeRepositoryOption is an option for configuring a [NodeRepository].
type NodeRepositoryOption interface {
	apply(*nodeRepositoryOptions)
}

type funcNodeRepositoryOption struct {
	f func(*nodeRepositoryOptions)
}

func (fdo *funcNodeRepositoryOption) apply(opts *nodeRepositoryOptions) {
	fdo.f(opts)
}

func newFuncNodeRepositoryOption(f func(*nodeRepositoryOptions)) *funcNodeRepositoryOption {
	return &funcNodeRepositoryOption{
		f: f,
	}
}

// WithNodeRepositoryLogger returns a [NodeRepositoryOption] that uses the provided logger.
func WithNodeRepositoryLogger(logger *slog.Logger) NodeRepositoryOption {
	return newFuncNodeRepositoryOption(func(opts *nodeRepositoryOptions) {
		opts.Logger = logger
	})
}

// WithNodeRepositoryDb returns a [NodeRepositoryOption] that uses the provided database connection.
func WithNodeRepositoryDb(db PgxPoolInterface) NodeRepositoryOption {
	return newFuncNodeRepositoryOption(func(opts *nodeRepositoryOptions) {
		opts.Db = db
	})
}
