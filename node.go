// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package aigw

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NodeType identifies the software a client node runs.
type NodeType string

const (
	NodeTypeOllama    NodeType = "ollama"
	NodeTypeOpenWebUI NodeType = "openwebui"
)

// Valid reports whether t is a supported node type.
func (t NodeType) Valid() bool {
	return t == NodeTypeOllama || t == NodeTypeOpenWebUI
}

// NodeStatus is the last observed health of a client node. Nodes start as
// unknown and only the connection test moves them to online, offline or
// timeout; there is no transition back to unknown.
type NodeStatus string

const (
	NodeStatusUnknown NodeStatus = "unknown"
	NodeStatusOnline  NodeStatus = "online"
	NodeStatusOffline NodeStatus = "offline"
	NodeStatusTimeout NodeStatus = "timeout"
)

// NodeCapabilities holds what the node reported during its last successful
// probe. Model names are arbitrary local builds and carry no metadata.
type NodeCapabilities struct {
	Models             []string `json:"models,omitempty"`
	ModelCount         int      `json:"modelCount"`
	LastResponseTimeMs int64    `json:"lastResponseTimeMs,omitempty"`
}

// ClientNode is a user-registered inference host (e.g. a home machine running
// Ollama). Health state is mutated only by the registry's connection test.
type ClientNode struct {
	ID           uuid.UUID        `json:"id"`
	OwnerID      string           `json:"ownerId"`
	Name         string           `json:"name"`
	NodeType     NodeType         `json:"nodeType"`
	Hostname     string           `json:"hostname"`
	Port         int              `json:"port"`
	IsActive     bool             `json:"isActive"`
	IsPublic     bool             `json:"isPublic"`
	Status       NodeStatus       `json:"status"`
	LastSeenAt   *time.Time       `json:"lastSeenAt,omitempty"`
	Capabilities NodeCapabilities `json:"capabilities"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// BaseURL returns the node's HTTP endpoint.
func (n *ClientNode) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", n.Hostname, n.Port)
}

// VisibleTo reports whether the requester may see and use this node. Admins
// see everything; otherwise the node must be public or owned by the requester.
func (n *ClientNode) VisibleTo(requester *User) bool {
	if requester.IsAdmin() {
		return true
	}
	return n.IsPublic || (requester != nil && n.OwnerID == requester.ID)
}

// ClientNodeRepository defines persistence operations for ClientNodes.
type ClientNodeRepository interface {
	Create(ctx context.Context, node *ClientNode) error
	Get(ctx context.Context, id uuid.UUID) (*ClientNode, error)

	// List returns every node regardless of visibility (admin surface)
	List(ctx context.Context) ([]*ClientNode, error)

	// ListVisible returns active nodes that are public or owned by ownerID
	ListVisible(ctx context.Context, ownerID string) ([]*ClientNode, error)

	Update(ctx context.Context, node *ClientNode) error

	// UpdateHealth persists the outcome of a connection test
	UpdateHealth(ctx context.Context, id uuid.UUID, status NodeStatus, caps NodeCapabilities, seenAt *time.Time) error

	Delete(ctx context.Context, id uuid.UUID) error
}
