// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedeck/aigw"
	"github.com/lifedeck/aigw/internal/gateway"
	"github.com/lifedeck/aigw/internal/resolver"
)

type memCredentialRepo struct {
	rows map[string]*aigw.Credential
}

func (m *memCredentialRepo) key(owner, provider string) string { return owner + "/" + provider }

func (m *memCredentialRepo) Upsert(_ context.Context, cred *aigw.Credential) error {
	if m.rows == nil {
		m.rows = make(map[string]*aigw.Credential)
	}
	cp := *cred
	m.rows[m.key(cred.OwnerID, cred.Provider)] = &cp
	return nil
}

func (m *memCredentialRepo) Get(_ context.Context, owner, provider string) (*aigw.Credential, error) {
	cred, ok := m.rows[m.key(owner, provider)]
	if !ok {
		return nil, aigw.ErrNotFound
	}
	cp := *cred
	return &cp, nil
}

func (m *memCredentialRepo) ListByOwner(_ context.Context, owner string) ([]*aigw.Credential, error) {
	var out []*aigw.Credential
	for _, cred := range m.rows {
		if cred.OwnerID == owner {
			cp := *cred
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCredentialRepo) Delete(_ context.Context, owner, provider string) error {
	delete(m.rows, m.key(owner, provider))
	return nil
}

func (m *memCredentialRepo) TouchLastUsed(_ context.Context, _, _ string) error { return nil }

type memConfigRepo struct {
	defaultCfg *aigw.ProviderConfig
}

func (m *memConfigRepo) Create(_ context.Context, _ *aigw.ProviderConfig) error { return nil }
func (m *memConfigRepo) Get(_ context.Context, _ uuid.UUID) (*aigw.ProviderConfig, error) {
	return nil, aigw.ErrNotFound
}
func (m *memConfigRepo) ListByOwner(_ context.Context, _ string) ([]*aigw.ProviderConfig, error) {
	return nil, nil
}
func (m *memConfigRepo) GetDefault(_ context.Context, owner string) (*aigw.ProviderConfig, error) {
	if m.defaultCfg != nil && m.defaultCfg.OwnerID == owner {
		cp := *m.defaultCfg
		return &cp, nil
	}
	return nil, aigw.ErrNotFound
}
func (m *memConfigRepo) SetDefault(_ context.Context, _ string, _ uuid.UUID) error { return nil }
func (m *memConfigRepo) Delete(_ context.Context, _ string, _ uuid.UUID) error     { return nil }

type memNodeRepo struct {
	nodes []*aigw.ClientNode
}

func (m *memNodeRepo) Create(_ context.Context, node *aigw.ClientNode) error {
	cp := *node
	m.nodes = append(m.nodes, &cp)
	return nil
}

func (m *memNodeRepo) Get(_ context.Context, id uuid.UUID) (*aigw.ClientNode, error) {
	for _, node := range m.nodes {
		if node.ID == id {
			cp := *node
			return &cp, nil
		}
	}
	return nil, aigw.ErrNotFound
}

func (m *memNodeRepo) List(_ context.Context) ([]*aigw.ClientNode, error) { return m.nodes, nil }

func (m *memNodeRepo) ListVisible(_ context.Context, owner string) ([]*aigw.ClientNode, error) {
	var out []*aigw.ClientNode
	for _, node := range m.nodes {
		if node.IsActive && (node.IsPublic || node.OwnerID == owner) {
			cp := *node
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memNodeRepo) Update(_ context.Context, _ *aigw.ClientNode) error { return nil }

func (m *memNodeRepo) UpdateHealth(_ context.Context, _ uuid.UUID, _ aigw.NodeStatus, _ aigw.NodeCapabilities, _ *time.Time) error {
	return nil
}

func (m *memNodeRepo) Delete(_ context.Context, _ uuid.UUID) error { return nil }

type stubCredentialSource struct{}

func (stubCredentialSource) Plaintext(_ context.Context, _, provider string) (string, error) {
	return "stub-key", nil
}
func (stubCredentialSource) TouchLastUsed(_ context.Context, _, _ string) error { return nil }

type fixture struct {
	creds   *memCredentialRepo
	configs *memConfigRepo
	nodes   *memNodeRepo
	server  *aigw.ServerConfig
}

func newCatalog(t *testing.T, fx *fixture) *Catalog {
	t.Helper()
	if fx.creds == nil {
		fx.creds = &memCredentialRepo{}
	}
	if fx.configs == nil {
		fx.configs = &memConfigRepo{}
	}
	if fx.nodes == nil {
		fx.nodes = &memNodeRepo{}
	}
	if fx.server == nil {
		fx.server = &aigw.ServerConfig{}
	}

	gw, err := gateway.NewGateway(
		gateway.WithGatewayCredentials(stubCredentialSource{}),
		gateway.WithGatewayServerConfig(fx.server),
	)
	require.NoError(t, err)

	res, err := resolver.NewResolver(
		resolver.WithResolverCredentials(fx.creds),
		resolver.WithResolverConfigs(fx.configs),
		resolver.WithResolverNodes(fx.nodes),
		resolver.WithResolverServerConfig(fx.server),
	)
	require.NoError(t, err)

	cat, err := NewCatalog(
		WithCatalogCredentials(fx.creds),
		WithCatalogNodes(fx.nodes),
		WithCatalogGateway(gw),
		WithCatalogResolver(res),
		WithCatalogServerConfig(fx.server),
	)
	require.NoError(t, err)
	return cat
}

var alice = &aigw.User{ID: "alice"}

func TestCatalog_EmptyAccountStillListsFallback(t *testing.T) {
	cat := newCatalog(t, &fixture{})

	listing, err := cat.Build(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, listing.Models, 1)
	assert.Equal(t, aigw.FallbackModelID, listing.Models[0].ID)
	assert.Empty(t, listing.Warnings)
}

func TestCatalog_CloudListingWithEnrichment(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"models/gemini-2.0-flash"}]}`))
	}))
	defer srv.Close()

	fx := &fixture{
		creds:  &memCredentialRepo{},
		server: &aigw.ServerConfig{GeminiBaseURL: srv.URL},
	}
	require.NoError(t, fx.creds.Upsert(context.Background(), &aigw.Credential{
		OwnerID: "alice", Provider: aigw.ProviderGemini, Ciphertext: "enc",
	}))
	cat := newCatalog(t, fx)

	listing, err := cat.Build(context.Background(), alice)
	require.NoError(t, err)

	byID := map[string]aigw.ModelDescriptor{}
	for _, d := range listing.Models {
		byID[d.ID] = d
	}

	flash, ok := byID["gemini:gemini-2.0-flash"]
	require.True(t, ok)
	assert.Equal(t, aigw.OriginCloud, flash.Origin)
	assert.NotZero(t, flash.ContextWindow, "static metadata should enrich known models")

	_, ok = byID[aigw.FallbackModelID]
	assert.True(t, ok, "fallback is always present")

	// A second build within the TTL serves from cache.
	_, err = cat.Build(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCatalog_UnreachableCloudBecomesWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	fx := &fixture{
		creds:  &memCredentialRepo{},
		server: &aigw.ServerConfig{GeminiBaseURL: srv.URL},
	}
	require.NoError(t, fx.creds.Upsert(context.Background(), &aigw.Credential{
		OwnerID: "alice", Provider: aigw.ProviderGemini, Ciphertext: "enc",
	}))
	cat := newCatalog(t, fx)

	listing, err := cat.Build(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, listing.Warnings, 1)
	assert.Contains(t, listing.Warnings[0], "gemini")

	// The fallback still makes the catalog non-empty.
	require.Len(t, listing.Models, 1)
	assert.Equal(t, aigw.FallbackModelID, listing.Models[0].ID)
}

func TestCatalog_OnlineNodeModelsIncluded(t *testing.T) {
	fx := &fixture{nodes: &memNodeRepo{}}
	onlineID := uuid.New()
	require.NoError(t, fx.nodes.Create(context.Background(), &aigw.ClientNode{
		ID: onlineID, OwnerID: "alice", Name: "Mac Studio",
		NodeType: aigw.NodeTypeOllama, Hostname: "mac.local", Port: 11434,
		IsActive: true, Status: aigw.NodeStatusOnline,
		Capabilities: aigw.NodeCapabilities{Models: []string{"llama3.1", "mistral"}, ModelCount: 2},
	}))
	offlineID := uuid.New()
	require.NoError(t, fx.nodes.Create(context.Background(), &aigw.ClientNode{
		ID: offlineID, OwnerID: "alice", Name: "Offline box",
		NodeType: aigw.NodeTypeOllama, Hostname: "off.local", Port: 11434,
		IsActive: true, Status: aigw.NodeStatusOffline,
		Capabilities: aigw.NodeCapabilities{Models: []string{"stale-model"}, ModelCount: 1},
	}))
	cat := newCatalog(t, fx)

	listing, err := cat.Build(context.Background(), alice)
	require.NoError(t, err)

	ids := make([]string, 0, len(listing.Models))
	for _, d := range listing.Models {
		ids = append(ids, d.ID)
	}
	assert.Contains(t, ids, onlineID.String()+":llama3.1")
	assert.Contains(t, ids, onlineID.String()+":mistral")
	assert.NotContains(t, ids, offlineID.String()+":stale-model", "offline nodes are excluded")
}

func TestCatalog_DefaultModelIDFallsBackWhenNothingExists(t *testing.T) {
	cat := newCatalog(t, &fixture{})

	id, err := cat.DefaultModelID(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, aigw.FallbackModelID, id)
}

func onlineNodeFixture(t *testing.T) (*fixture, uuid.UUID) {
	t.Helper()
	fx := &fixture{nodes: &memNodeRepo{}}
	nodeID := uuid.New()
	require.NoError(t, fx.nodes.Create(context.Background(), &aigw.ClientNode{
		ID: nodeID, OwnerID: "alice", Name: "Mac Studio",
		NodeType: aigw.NodeTypeOllama, Hostname: "mac.local", Port: 11434,
		IsActive: true, Status: aigw.NodeStatusOnline,
		Capabilities: aigw.NodeCapabilities{Models: []string{"llama3.1"}, ModelCount: 1},
	}))
	return fx, nodeID
}

func TestCatalog_DefaultModelIDPrefersOnlineNodeOverFallback(t *testing.T) {
	fx, nodeID := onlineNodeFixture(t)
	cat := newCatalog(t, fx)

	// Nothing is configured, so the first catalog entry outranks the mock.
	id, err := cat.DefaultModelID(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, nodeID.String()+":llama3.1", id)
}

func TestCatalog_DefaultModelIDHonorsMockDefaultConfig(t *testing.T) {
	fx, _ := onlineNodeFixture(t)
	fx.configs = &memConfigRepo{defaultCfg: &aigw.ProviderConfig{
		ID: uuid.New(), OwnerID: "alice", ProviderType: aigw.ProviderMock, IsDefault: true,
	}}
	cat := newCatalog(t, fx)

	// A saved mock default is a deliberate choice, not a fallback.
	id, err := cat.DefaultModelID(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, aigw.FallbackModelID, id)
}

func TestCatalog_DefaultModelIDHonorsMockServerDefault(t *testing.T) {
	fx, _ := onlineNodeFixture(t)
	fx.server = &aigw.ServerConfig{DefaultProvider: aigw.ProviderMock}
	cat := newCatalog(t, fx)

	id, err := cat.DefaultModelID(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, aigw.FallbackModelID, id)
}
