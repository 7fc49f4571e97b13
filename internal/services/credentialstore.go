// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package services holds the application-level operations composed from the
// repositories and the encryption boundary.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lifedeck/aigw"
	"github.com/lifedeck/aigw/internal/cache"
	"github.com/lifedeck/aigw/internal/crypto"
)

// CredentialStore manages per-user cloud API keys. Plaintext enters on Save
// and leaves only through Plaintext, which exists for adapter construction;
// every other path sees masked strings.
type CredentialStore struct {
	options *credentialStoreOptions
}

type credentialStoreOptions struct {
	Logger   *slog.Logger
	Repo     aigw.CredentialRepository
	Keyring  *crypto.Keyring
	Listings *cache.ListingCache
}

// CredentialStoreOption is an option for configuring a [CredentialStore].
type CredentialStoreOption interface {
	apply(*credentialStoreOptions)
}

type funcCredentialStoreOption func(*credentialStoreOptions)

func (f funcCredentialStoreOption) apply(opts *credentialStoreOptions) {
	f(opts)
}

func WithCredentialStoreLogger(logger *slog.Logger) CredentialStoreOption {
	return funcCredentialStoreOption(func(opts *credentialStoreOptions) {
		opts.Logger = logger
	})
}

func WithCredentialStoreRepository(repo aigw.CredentialRepository) CredentialStoreOption {
	return funcCredentialStoreOption(func(opts *credentialStoreOptions) {
		opts.Repo = repo
	})
}

func WithCredentialStoreKeyring(keyring *crypto.Keyring) CredentialStoreOption {
	return funcCredentialStoreOption(func(opts *credentialStoreOptions) {
		opts.Keyring = keyring
	})
}

// WithCredentialStoreListings attaches the catalog's listing cache so a key
// change drops listings fetched with the old key.
func WithCredentialStoreListings(c *cache.ListingCache) CredentialStoreOption {
	return funcCredentialStoreOption(func(opts *credentialStoreOptions) {
		opts.Listings = c
	})
}

// NewCredentialStore creates a new [CredentialStore].
func NewCredentialStore(options ...CredentialStoreOption) (*CredentialStore, error) {
	opts := &credentialStoreOptions{
		Logger: slog.Default(),
	}
	for _, opt := range options {
		opt.apply(opts)
	}
	if opts.Repo == nil {
		return nil, errors.New("credential store requires a repository")
	}
	if opts.Keyring == nil {
		return nil, errors.New("credential store requires a keyring")
	}
	return &CredentialStore{options: opts}, nil
}

// Save encrypts and stores a key, replacing any previous one for the same
// (owner, provider). The returned status carries only the masked form.
func (s *CredentialStore) Save(ctx context.Context, ownerID, provider, plaintextKey, defaultModel string) (aigw.CredentialStatus, error) {
	if !aigw.IsCloudProvider(provider) {
		return aigw.CredentialStatus{}, fmt.Errorf("%w: unsupported provider %q", aigw.ErrValidation, provider)
	}
	if strings.TrimSpace(plaintextKey) == "" {
		return aigw.CredentialStatus{}, fmt.Errorf("%w: api key must not be empty", aigw.ErrValidation)
	}

	ciphertext, err := s.options.Keyring.EncryptString(plaintextKey)
	if err != nil {
		return aigw.CredentialStatus{}, fmt.Errorf("encrypt key: %w", err)
	}

	cred := &aigw.Credential{
		OwnerID:      ownerID,
		Provider:     provider,
		Ciphertext:   ciphertext,
		MaskedKey:    crypto.Mask(plaintextKey),
		DefaultModel: defaultModel,
	}
	if err := s.options.Repo.Upsert(ctx, cred); err != nil {
		return aigw.CredentialStatus{}, err
	}
	s.invalidateListing(ownerID, provider)

	s.options.Logger.Info("Stored provider credential", "owner", ownerID, "provider", provider)

	return aigw.CredentialStatus{
		Provider:  provider,
		HasKey:    true,
		MaskedKey: cred.MaskedKey,
		Model:     cred.DefaultModel,
	}, nil
}

// Status lists one entry per known cloud provider, masked. No decryption
// happens here.
func (s *CredentialStore) Status(ctx context.Context, ownerID string) ([]aigw.CredentialStatus, error) {
	stored, err := s.options.Repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	byProvider := make(map[string]*aigw.Credential, len(stored))
	for _, cred := range stored {
		byProvider[cred.Provider] = cred
	}

	statuses := make([]aigw.CredentialStatus, 0, len(aigw.CloudProviders))
	for _, provider := range aigw.CloudProviders {
		status := aigw.CredentialStatus{Provider: provider}
		if cred, ok := byProvider[provider]; ok {
			status.HasKey = true
			status.MaskedKey = cred.MaskedKey
			status.Model = cred.DefaultModel
			status.LastUsedAt = cred.LastUsedAt
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Delete removes the stored key. Removing an absent key succeeds.
func (s *CredentialStore) Delete(ctx context.Context, ownerID, provider string) error {
	if !aigw.IsCloudProvider(provider) {
		return fmt.Errorf("%w: unsupported provider %q", aigw.ErrValidation, provider)
	}
	if err := s.options.Repo.Delete(ctx, ownerID, provider); err != nil {
		return err
	}
	s.invalidateListing(ownerID, provider)
	return nil
}

func (s *CredentialStore) invalidateListing(ownerID, provider string) {
	if s.options.Listings != nil {
		s.options.Listings.Invalidate(ownerID, provider)
	}
}

// Get returns the stored credential row without decrypting it.
func (s *CredentialStore) Get(ctx context.Context, ownerID, provider string) (*aigw.Credential, error) {
	return s.options.Repo.Get(ctx, ownerID, provider)
}

// Plaintext decrypts the stored key. It is called from adapter construction
// immediately before an outbound request; callers must not log or persist the
// result.
func (s *CredentialStore) Plaintext(ctx context.Context, ownerID, provider string) (string, error) {
	cred, err := s.options.Repo.Get(ctx, ownerID, provider)
	if err != nil {
		return "", err
	}
	key, err := s.options.Keyring.DecryptString(cred.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypt credential for %s: %w", provider, err)
	}
	return key, nil
}

// TouchLastUsed records a successful outbound call with the credential.
func (s *CredentialStore) TouchLastUsed(ctx context.Context, ownerID, provider string) error {
	return s.options.Repo.TouchLastUsed(ctx, ownerID, provider)
}
