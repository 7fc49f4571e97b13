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

const providerConfigColumns = `id, owner_id, provider_type, credential_id, model, temperature, max_tokens, is_default, created_at`

// Create inserts a new provider config. When the new config is marked default,
// the previous default is cleared in the same transaction so the owner never
// holds two defaults.
func (r *ProviderConfigRepository) Create(ctx context.Context, cfg *aigw.ProviderConfig) error {
	if cfg.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate config id: %w", err)
		}
		cfg.ID = id
	}

	insert := `
		INSERT INTO provider_configs (id, owner_id, provider_type, credential_id, model, temperature, max_tokens, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if !cfg.IsDefault {
		_, err := r.options.Db.Exec(ctx, insert,
			cfg.ID, cfg.OwnerID, cfg.ProviderType, cfg.CredentialID,
			cfg.Model, cfg.Temperature, cfg.MaxTokens, cfg.IsDefault,
		)
		if err != nil {
			return fmt.Errorf("create provider config: %w", err)
		}
		return nil
	}

	tx, err := r.options.Db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE provider_configs SET is_default = FALSE WHERE owner_id = $1 AND is_default`, cfg.OwnerID); err != nil {
		return fmt.Errorf("clear previous default: %w", err)
	}
	if _, err := tx.Exec(ctx, insert,
		cfg.ID, cfg.OwnerID, cfg.ProviderType, cfg.CredentialID,
		cfg.Model, cfg.Temperature, cfg.MaxTokens, cfg.IsDefault,
	); err != nil {
		return fmt.Errorf("create provider config: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ProviderConfigRepository) Get(ctx context.Context, id uuid.UUID) (*aigw.ProviderConfig, error) {
	query := `SELECT ` + providerConfigColumns + ` FROM provider_configs WHERE id = $1`

	cfg, err := scanProviderConfig(r.options.Db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, aigw.ErrNotFound
		}
		return nil, fmt.Errorf("get provider config: %w", err)
	}
	return cfg, nil
}

// ListByOwner returns the owner's configs ordered by creation time, earliest
// first. The resolver relies on this ordering for its third tier.
func (r *ProviderConfigRepository) ListByOwner(ctx context.Context, ownerID string) ([]*aigw.ProviderConfig, error) {
	query := `SELECT ` + providerConfigColumns + ` FROM provider_configs WHERE owner_id = $1 ORDER BY created_at`

	rows, err := r.options.Db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list provider configs: %w", err)
	}
	defer rows.Close()

	var configs []*aigw.ProviderConfig
	for rows.Next() {
		cfg, err := scanProviderConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *ProviderConfigRepository) GetDefault(ctx context.Context, ownerID string) (*aigw.ProviderConfig, error) {
	query := `SELECT ` + providerConfigColumns + ` FROM provider_configs WHERE owner_id = $1 AND is_default`

	cfg, err := scanProviderConfig(r.options.Db.QueryRow(ctx, query, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, aigw.ErrNotFound
		}
		return nil, fmt.Errorf("get default provider config: %w", err)
	}
	return cfg, nil
}

// SetDefault promotes one config to the owner's default. Clearing the old
// default and setting the new one happen in one transaction, so the
// at-most-one-default invariant holds at every commit point.
func (r *ProviderConfigRepository) SetDefault(ctx context.Context, ownerID string, id uuid.UUID) error {
	tx, err := r.options.Db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE provider_configs SET is_default = FALSE WHERE owner_id = $1 AND is_default`, ownerID); err != nil {
		return fmt.Errorf("clear previous default: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE provider_configs SET is_default = TRUE WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("set default: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return aigw.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ProviderConfigRepository) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	tag, err := r.options.Db.Exec(ctx, `DELETE FROM provider_configs WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete provider config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return aigw.ErrNotFound
	}
	return nil
}

func scanProviderConfig(row pgx.Row) (*aigw.ProviderConfig, error) {
	var cfg aigw.ProviderConfig
	err := row.Scan(
		&cfg.ID,
		&cfg.OwnerID,
		&cfg.ProviderType,
		&cfg.CredentialID,
		&cfg.Model,
		&cfg.Temperature,
		&cfg.MaxTokens,
		&cfg.IsDefault,
		&cfg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
