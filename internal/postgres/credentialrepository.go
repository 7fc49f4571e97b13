// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lifedeck/aigw"
)

// Upsert stores or replaces the credential for (owner, provider). Replacement
// is last-writer-wins; no cross-request coordination happens here.
func (r *CredentialRepository) Upsert(ctx context.Context, cred *aigw.Credential) error {
	if cred.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate credential id: %w", err)
		}
		cred.ID = id
	}

	query := `
		INSERT INTO api_credentials (id, owner_id, provider, ciphertext, masked_key, default_model)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, provider) DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			masked_key = EXCLUDED.masked_key,
			default_model = EXCLUDED.default_model,
			updated_at = NOW()
	`

	_, err := r.options.Db.Exec(ctx, query,
		cred.ID,
		cred.OwnerID,
		cred.Provider,
		cred.Ciphertext,
		cred.MaskedKey,
		cred.DefaultModel,
	)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Get(ctx context.Context, ownerID, provider string) (*aigw.Credential, error) {
	query := `
		SELECT id, owner_id, provider, ciphertext, masked_key, default_model, last_used_at, created_at, updated_at
		FROM api_credentials
		WHERE owner_id = $1 AND provider = $2
	`

	var cred aigw.Credential
	err := r.options.Db.QueryRow(ctx, query, ownerID, provider).Scan(
		&cred.ID,
		&cred.OwnerID,
		&cred.Provider,
		&cred.Ciphertext,
		&cred.MaskedKey,
		&cred.DefaultModel,
		&cred.LastUsedAt,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, aigw.ErrNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}

	return &cred, nil
}

func (r *CredentialRepository) ListByOwner(ctx context.Context, ownerID string) ([]*aigw.Credential, error) {
	query := `
		SELECT id, owner_id, provider, ciphertext, masked_key, default_model, last_used_at, created_at, updated_at
		FROM api_credentials
		WHERE owner_id = $1
		ORDER BY provider
	`

	rows, err := r.options.Db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var credentials []*aigw.Credential
	for rows.Next() {
		var cred aigw.Credential
		err := rows.Scan(
			&cred.ID,
			&cred.OwnerID,
			&cred.Provider,
			&cred.Ciphertext,
			&cred.MaskedKey,
			&cred.DefaultModel,
			&cred.LastUsedAt,
			&cred.CreatedAt,
			&cred.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		credentials = append(credentials, &cred)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return credentials, nil
}

// Delete removes the credential. Deleting an absent row is not an error; the
// operation is idempotent.
func (r *CredentialRepository) Delete(ctx context.Context, ownerID, provider string) error {
	query := `DELETE FROM api_credentials WHERE owner_id = $1 AND provider = $2`
	_, err := r.options.Db.Exec(ctx, query, ownerID, provider)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) TouchLastUsed(ctx context.Context, ownerID, provider string) error {
	query := `UPDATE api_credentials SET last_used_at = NOW() WHERE owner_id = $1 AND provider = $2`
	_, err := r.options.Db.Exec(ctx, query, ownerID, provider)
	if err != nil {
		return fmt.Errorf("touch credential: %w", err)
	}
	return nil
}
