// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package aigw

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound should be returned when a requested resource cannot be found
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEntry should be returned when a resource would violate unique constraints
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrAccessDenied should be returned when a requester references a resource they
	// may not use. The message is deliberately generic so it never confirms whether
	// the resource exists.
	ErrAccessDenied = errors.New("access denied")

	// ErrUnknownModel should be returned for a model reference that resolves to no
	// known provider or node
	ErrUnknownModel = errors.New("unknown model")

	// ErrValidation should be returned for malformed input rejected before any I/O
	ErrValidation = errors.New("validation failed")

	// ErrNodeUnreachable indicates a client node did not answer a probe or dispatch
	ErrNodeUnreachable = errors.New("node unreachable")
)

// ConfigurationError reports a startup configuration problem. It is fatal: the
// process must not serve traffic when one is returned during wiring.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Reason)
}

// ProviderError wraps an adapter-level failure with the provider or node that
// produced it, so callers can report provenance without parsing messages.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
