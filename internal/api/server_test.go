// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedeck/aigw"
	"github.com/lifedeck/aigw/internal/cache"
	"github.com/lifedeck/aigw/internal/catalog"
	"github.com/lifedeck/aigw/internal/crypto"
	"github.com/lifedeck/aigw/internal/gateway"
	"github.com/lifedeck/aigw/internal/registry"
	"github.com/lifedeck/aigw/internal/resolver"
	"github.com/lifedeck/aigw/internal/services"
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
	configs []*aigw.ProviderConfig
}

func (m *memConfigRepo) Create(_ context.Context, cfg *aigw.ProviderConfig) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.IsDefault {
		for _, existing := range m.configs {
			if existing.OwnerID == cfg.OwnerID {
				existing.IsDefault = false
			}
		}
	}
	cp := *cfg
	m.configs = append(m.configs, &cp)
	return nil
}

func (m *memConfigRepo) Get(_ context.Context, id uuid.UUID) (*aigw.ProviderConfig, error) {
	for _, cfg := range m.configs {
		if cfg.ID == id {
			cp := *cfg
			return &cp, nil
		}
	}
	return nil, aigw.ErrNotFound
}

func (m *memConfigRepo) ListByOwner(_ context.Context, owner string) ([]*aigw.ProviderConfig, error) {
	var out []*aigw.ProviderConfig
	for _, cfg := range m.configs {
		if cfg.OwnerID == owner {
			cp := *cfg
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memConfigRepo) GetDefault(_ context.Context, owner string) (*aigw.ProviderConfig, error) {
	for _, cfg := range m.configs {
		if cfg.OwnerID == owner && cfg.IsDefault {
			cp := *cfg
			return &cp, nil
		}
	}
	return nil, aigw.ErrNotFound
}

func (m *memConfigRepo) SetDefault(_ context.Context, owner string, id uuid.UUID) error {
	found := false
	for _, cfg := range m.configs {
		if cfg.OwnerID == owner {
			cfg.IsDefault = cfg.ID == id
			if cfg.ID == id {
				found = true
			}
		}
	}
	if !found {
		return aigw.ErrNotFound
	}
	return nil
}

func (m *memConfigRepo) Delete(_ context.Context, owner string, id uuid.UUID) error {
	for i, cfg := range m.configs {
		if cfg.OwnerID == owner && cfg.ID == id {
			m.configs = append(m.configs[:i], m.configs[i+1:]...)
			return nil
		}
	}
	return aigw.ErrNotFound
}

type memNodeRepo struct {
	nodes map[uuid.UUID]*aigw.ClientNode
}

func (m *memNodeRepo) Create(_ context.Context, node *aigw.ClientNode) error {
	if m.nodes == nil {
		m.nodes = make(map[uuid.UUID]*aigw.ClientNode)
	}
	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	cp := *node
	m.nodes[node.ID] = &cp
	return nil
}

func (m *memNodeRepo) Get(_ context.Context, id uuid.UUID) (*aigw.ClientNode, error) {
	node, ok := m.nodes[id]
	if !ok {
		return nil, aigw.ErrNotFound
	}
	cp := *node
	return &cp, nil
}

func (m *memNodeRepo) List(_ context.Context) ([]*aigw.ClientNode, error) {
	var out []*aigw.ClientNode
	for _, node := range m.nodes {
		cp := *node
		out = append(out, &cp)
	}
	return out, nil
}

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

func (m *memNodeRepo) Update(_ context.Context, node *aigw.ClientNode) error {
	cp := *node
	m.nodes[node.ID] = &cp
	return nil
}

func (m *memNodeRepo) UpdateHealth(_ context.Context, id uuid.UUID, status aigw.NodeStatus, caps aigw.NodeCapabilities, seenAt *time.Time) error {
	node, ok := m.nodes[id]
	if !ok {
		return aigw.ErrNotFound
	}
	node.Status = status
	node.Capabilities = caps
	if seenAt != nil {
		node.LastSeenAt = seenAt
	}
	return nil
}

func (m *memNodeRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.nodes, id)
	return nil
}

type testEnv struct {
	server *httptest.Server
	nodes  *memNodeRepo
	creds  *memCredentialRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	credRepo := &memCredentialRepo{}
	configRepo := &memConfigRepo{}
	nodeRepo := &memNodeRepo{}
	serverCfg := &aigw.ServerConfig{}

	keyring, err := crypto.NewKeyring("test-secret")
	require.NoError(t, err)

	listings := cache.NewListingCache(cache.DefaultListingTTL)

	store, err := services.NewCredentialStore(
		services.WithCredentialStoreRepository(credRepo),
		services.WithCredentialStoreKeyring(keyring),
		services.WithCredentialStoreListings(listings),
	)
	require.NoError(t, err)

	reg, err := registry.NewRegistry(registry.WithRegistryRepository(nodeRepo))
	require.NoError(t, err)

	res, err := resolver.NewResolver(
		resolver.WithResolverCredentials(credRepo),
		resolver.WithResolverConfigs(configRepo),
		resolver.WithResolverNodes(nodeRepo),
		resolver.WithResolverServerConfig(serverCfg),
	)
	require.NoError(t, err)

	gw, err := gateway.NewGateway(
		gateway.WithGatewayCredentials(store),
		gateway.WithGatewayServerConfig(serverCfg),
	)
	require.NoError(t, err)

	cat, err := catalog.NewCatalog(
		catalog.WithCatalogCredentials(credRepo),
		catalog.WithCatalogNodes(nodeRepo),
		catalog.WithCatalogGateway(gw),
		catalog.WithCatalogResolver(res),
		catalog.WithCatalogListingCache(listings),
		catalog.WithCatalogServerConfig(serverCfg),
	)
	require.NoError(t, err)

	auth := NewStaticTokenAuthenticator()
	auth.AddToken("alice-token", &aigw.User{ID: "alice", Name: "Alice"})
	auth.AddToken("admin-token", &aigw.User{ID: "root", Name: "Root", Admin: true})

	srv, err := NewServer(
		WithServerAuthenticator(auth),
		WithServerCredentialStore(store),
		WithServerProviderConfigs(configRepo),
		WithServerRegistry(reg),
		WithServerCatalog(cat),
		WithServerResolver(res),
		WithServerGateway(gw),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, nodes: nodeRepo, creds: credRepo}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServer_HealthNeedsNoAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/health", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/ai/models", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/ai/models", "wrong-token", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_AdminRoutesForbiddenForUsers(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/admin/ai-clients", "alice-token", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_ChatOnFreshAccountUsesFallback(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/ai/chat", "alice-token", aigw.ChatRequest{Prompt: "hello there"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[aigw.ChatResult](t, resp)
	assert.Contains(t, result.Text, `You said: "hello there"`)
	assert.Equal(t, aigw.FallbackModelID, result.Model.ID)
	assert.Equal(t, aigw.OriginFallback, result.Model.Origin)
}

func TestServer_ChatRejectsEmptyPrompt(t *testing.T) {
	env := newTestEnv(t)

	for _, prompt := range []string{"", "   "} {
		resp := env.do(t, http.MethodPost, "/ai/chat", "alice-token", aigw.ChatRequest{Prompt: prompt})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "prompt %q", prompt)
		body := decodeBody[errorResponse](t, resp)
		assert.Contains(t, body.Error, "prompt")
	}

	resp := env.do(t, http.MethodPost, "/ai/stream", "alice-token", aigw.ChatRequest{Prompt: ""})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_APIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/ai/api-keys", "alice-token", saveAPIKeyRequest{
		Provider: aigw.ProviderOpenAI,
		APIKey:   "sk-proj-abcdefxyz123",
		Model:    "gpt-4o-mini",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody[aigw.CredentialStatus](t, resp)
	assert.Equal(t, "sk-****xyz123", status.MaskedKey)

	resp = env.do(t, http.MethodGet, "/ai/api-keys", "alice-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listing := decodeBody[struct {
		Providers []aigw.CredentialStatus `json:"providers"`
	}](t, resp)
	require.Len(t, listing.Providers, len(aigw.CloudProviders))
	for _, p := range listing.Providers {
		assert.NotContains(t, p.MaskedKey, "abcdef", "plaintext must never leave the store")
	}

	resp = env.do(t, http.MethodDelete, "/ai/api-keys/openai", "alice-token", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServer_SaveAPIKeyRejectsUnknownProvider(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/ai/api-keys", "alice-token", saveAPIKeyRequest{
		Provider: "anthropic", APIKey: "sk-whatever",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ProviderConfigLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/ai/provider-configs", "alice-token", createProviderConfigRequest{
		ProviderType: aigw.ProviderMock,
		IsDefault:    true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	cfg := decodeBody[aigw.ProviderConfig](t, resp)
	assert.True(t, cfg.IsDefault)

	resp = env.do(t, http.MethodGet, "/ai/provider-configs", "alice-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listing := decodeBody[struct {
		Configs []aigw.ProviderConfig `json:"configs"`
	}](t, resp)
	require.Len(t, listing.Configs, 1)

	resp = env.do(t, http.MethodPost, "/ai/provider-configs/"+cfg.ID.String()+"/default", "alice-token", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/ai/provider-configs/"+cfg.ID.String(), "alice-token", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServer_ModelsListsFallbackForEmptyAccount(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/ai/models", "alice-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listing := decodeBody[struct {
		Models       []aigw.ModelDescriptor `json:"models"`
		DefaultModel string                 `json:"defaultModel"`
	}](t, resp)
	require.Len(t, listing.Models, 1)
	assert.Equal(t, aigw.FallbackModelID, listing.Models[0].ID)
	assert.Equal(t, aigw.FallbackModelID, listing.DefaultModel)
}

func TestServer_ChatAgainstInvisibleNodeIsDenied(t *testing.T) {
	env := newTestEnv(t)

	nodeID := uuid.New()
	require.NoError(t, env.nodes.Create(context.Background(), &aigw.ClientNode{
		ID: nodeID, OwnerID: "bob", Name: "Private",
		NodeType: aigw.NodeTypeOllama, Hostname: "b.local", Port: 11434,
		IsActive: true, IsPublic: false,
	}))

	resp := env.do(t, http.MethodPost, "/ai/chat", "alice-token", aigw.ChatRequest{
		Prompt: "hi", Model: nodeID.String() + ":llama3.1",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decodeBody[errorResponse](t, resp)
	assert.Equal(t, "access denied", body.Error, "denial must not leak node details")
}

func TestServer_AdminRegistersAndDeletesNode(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/admin/ai-clients", "admin-token", registry.RegisterInput{
		Name: "Mac Studio", NodeType: aigw.NodeTypeOllama,
		Hostname: "mac.local", Port: 11434, IsPublic: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	node := decodeBody[aigw.ClientNode](t, resp)
	assert.Equal(t, aigw.NodeStatusUnknown, node.Status)

	resp = env.do(t, http.MethodDelete, "/admin/ai-clients/"+node.ID.String(), "admin-token", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServer_StreamDeliversSSE(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/ai/stream", "alice-token", aigw.ChatRequest{Prompt: "hi"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	body := buf.String()
	assert.Contains(t, body, `"model"`)
	assert.Contains(t, body, `"delta"`)
	assert.Contains(t, body, "data: [DONE]")
}
