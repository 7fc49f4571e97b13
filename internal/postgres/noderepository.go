// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lifedeck/aigw"
)

const clientNodeColumns = `id, owner_id, name, node_type, hostname, port, is_active, is_public, status, last_seen_at, capabilities, created_at`

func (r *NodeRepository) Create(ctx context.Context, node *aigw.ClientNode) error {
	if node.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate node id: %w", err)
		}
		node.ID = id
	}
	if node.Status == "" {
		node.Status = aigw.NodeStatusUnknown
	}

	caps, err := json.Marshal(node.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}

	query := `
		INSERT INTO client_nodes (id, owner_id, name, node_type, hostname, port, is_active, is_public, status, capabilities)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.options.Db.Exec(ctx, query,
		node.ID, node.OwnerID, node.Name, string(node.NodeType),
		node.Hostname, node.Port, node.IsActive, node.IsPublic,
		string(node.Status), caps,
	)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	return nil
}

func (r *NodeRepository) Get(ctx context.Context, id uuid.UUID) (*aigw.ClientNode, error) {
	query := `SELECT ` + clientNodeColumns + ` FROM client_nodes WHERE id = $1`

	node, err := scanClientNode(r.options.Db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, aigw.ErrNotFound
		}
		return nil, fmt.Errorf("get node: %w", err)
	}
	return node, nil
}

func (r *NodeRepository) List(ctx context.Context) ([]*aigw.ClientNode, error) {
	query := `SELECT ` + clientNodeColumns + ` FROM client_nodes ORDER BY created_at`
	return r.queryNodes(ctx, query)
}

// ListVisible returns active nodes the owner may route to: their own plus any
// public ones. Inactive nodes are retained for audit but never listed here.
func (r *NodeRepository) ListVisible(ctx context.Context, ownerID string) ([]*aigw.ClientNode, error) {
	query := `
		SELECT ` + clientNodeColumns + `
		FROM client_nodes
		WHERE is_active AND (is_public OR owner_id = $1)
		ORDER BY created_at
	`
	return r.queryNodes(ctx, query, ownerID)
}

func (r *NodeRepository) Update(ctx context.Context, node *aigw.ClientNode) error {
	caps, err := json.Marshal(node.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}

	query := `
		UPDATE client_nodes
		SET name = $2, node_type = $3, hostname = $4, port = $5, is_active = $6, is_public = $7, status = $8, capabilities = $9
		WHERE id = $1
	`
	tag, err := r.options.Db.Exec(ctx, query,
		node.ID, node.Name, string(node.NodeType), node.Hostname, node.Port,
		node.IsActive, node.IsPublic, string(node.Status), caps,
	)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return aigw.ErrNotFound
	}
	return nil
}

// UpdateHealth is the persistence half of the connection test, the only
// operation allowed to change a node's status.
func (r *NodeRepository) UpdateHealth(ctx context.Context, id uuid.UUID, status aigw.NodeStatus, caps aigw.NodeCapabilities, seenAt *time.Time) error {
	capsJSON, err := json.Marshal(caps)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}

	query := `
		UPDATE client_nodes
		SET status = $2, capabilities = $3, last_seen_at = COALESCE($4, last_seen_at)
		WHERE id = $1
	`
	tag, err := r.options.Db.Exec(ctx, query, id, string(status), capsJSON, seenAt)
	if err != nil {
		return fmt.Errorf("update node health: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return aigw.ErrNotFound
	}
	return nil
}

func (r *NodeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.options.Db.Exec(ctx, `DELETE FROM client_nodes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return aigw.ErrNotFound
	}
	return nil
}

func (r *NodeRepository) queryNodes(ctx context.Context, query string, args ...any) ([]*aigw.ClientNode, error) {
	rows, err := r.options.Db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*aigw.ClientNode
	for rows.Next() {
		node, err := scanClientNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}

func scanClientNode(row pgx.Row) (*aigw.ClientNode, error) {
	var (
		node     aigw.ClientNode
		nodeType string
		status   string
		capsJSON []byte
	)
	err := row.Scan(
		&node.ID,
		&node.OwnerID,
		&node.Name,
		&nodeType,
		&node.Hostname,
		&node.Port,
		&node.IsActive,
		&node.IsPublic,
		&status,
		&node.LastSeenAt,
		&capsJSON,
		&node.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	node.NodeType = aigw.NodeType(nodeType)
	node.Status = aigw.NodeStatus(status)
	if len(capsJSON) > 0 {
		if err := json.Unmarshal(capsJSON, &node.Capabilities); err != nil {
			return nil, fmt.Errorf("unmarshal capabilities: %w", err)
		}
	}
	return &node, nil
}
