// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package aigw

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	// ProviderMock is the always-available deterministic fallback. It holds no
	// credential and performs no I/O.
	ProviderMock = "mock"
)

// CloudProviders lists the providers that can hold a stored credential.
var CloudProviders = []string{ProviderOpenAI, ProviderGemini}

// IsCloudProvider reports whether p names a credential-bearing cloud provider.
func IsCloudProvider(p string) bool {
	for _, known := range CloudProviders {
		if p == known {
			return true
		}
	}
	return false
}

// Credential is an encrypted per-user API key for one cloud provider. The
// plaintext never appears on this type: Ciphertext is an opaque envelope and
// MaskedKey is the only displayable form.
type Credential struct {
	ID           uuid.UUID  `json:"id"`
	OwnerID      string     `json:"ownerId"`
	Provider     string     `json:"provider"`
	Ciphertext   string     `json:"-"`
	MaskedKey    string     `json:"maskedKey"`
	DefaultModel string     `json:"defaultModel"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// CredentialStatus is the masked listing entry returned to clients.
type CredentialStatus struct {
	Provider   string     `json:"provider"`
	HasKey     bool       `json:"hasKey"`
	MaskedKey  string     `json:"maskedKey,omitempty"`
	Model      string     `json:"model,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// CredentialRepository defines persistence operations for Credentials. At most
// one row exists per (owner, provider); Upsert is last-writer-wins.
type CredentialRepository interface {
	Upsert(ctx context.Context, cred *Credential) error
	Get(ctx context.Context, ownerID, provider string) (*Credential, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Credential, error)
	Delete(ctx context.Context, ownerID, provider string) error

	// TouchLastUsed records a successful outbound call with this credential
	TouchLastUsed(ctx context.Context, ownerID, provider string) error
}

// ProviderConfig is a user's saved routing preference: which provider to use
// and with what generation parameters. At most one config per owner carries
// IsDefault.
type ProviderConfig struct {
	ID           uuid.UUID  `json:"id"`
	OwnerID      string     `json:"ownerId"`
	ProviderType string     `json:"providerType"`
	CredentialID *uuid.UUID `json:"credentialId,omitempty"`
	Model        string     `json:"model"`
	Temperature  *float64   `json:"temperature,omitempty"`
	MaxTokens    *int       `json:"maxTokens,omitempty"`
	IsDefault    bool       `json:"isDefault"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// ProviderConfigRepository defines persistence operations for ProviderConfigs.
type ProviderConfigRepository interface {
	Create(ctx context.Context, cfg *ProviderConfig) error
	Get(ctx context.Context, id uuid.UUID) (*ProviderConfig, error)

	// ListByOwner returns configs ordered by creation time, earliest first
	ListByOwner(ctx context.Context, ownerID string) ([]*ProviderConfig, error)

	// GetDefault returns the owner's default config, or ErrNotFound
	GetDefault(ctx context.Context, ownerID string) (*ProviderConfig, error)

	// SetDefault marks one config as the owner's default, atomically clearing
	// any previous default in the same transaction
	SetDefault(ctx context.Context, ownerID string, id uuid.UUID) error

	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}
