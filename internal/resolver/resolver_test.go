// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedeck/aigw"
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
	for _, cfg := range m.configs {
		if cfg.OwnerID == owner {
			cfg.IsDefault = cfg.ID == id
		}
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
	return nil
}

type memNodeRepo struct {
	nodes map[uuid.UUID]*aigw.ClientNode
}

func (m *memNodeRepo) Create(_ context.Context, node *aigw.ClientNode) error {
	if m.nodes == nil {
		m.nodes = make(map[uuid.UUID]*aigw.ClientNode)
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

func (m *memNodeRepo) List(_ context.Context) ([]*aigw.ClientNode, error) { return nil, nil }

func (m *memNodeRepo) ListVisible(_ context.Context, _ string) ([]*aigw.ClientNode, error) {
	return nil, nil
}

func (m *memNodeRepo) Update(_ context.Context, _ *aigw.ClientNode) error { return nil }

func (m *memNodeRepo) UpdateHealth(_ context.Context, _ uuid.UUID, _ aigw.NodeStatus, _ aigw.NodeCapabilities, _ *time.Time) error {
	return nil
}

func (m *memNodeRepo) Delete(_ context.Context, _ uuid.UUID) error { return nil }

type fixture struct {
	creds   *memCredentialRepo
	configs *memConfigRepo
	nodes   *memNodeRepo
	server  *aigw.ServerConfig
}

func newResolver(t *testing.T, fx *fixture) *Resolver {
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
	r, err := NewResolver(
		WithResolverCredentials(fx.creds),
		WithResolverConfigs(fx.configs),
		WithResolverNodes(fx.nodes),
		WithResolverServerConfig(fx.server),
	)
	require.NoError(t, err)
	return r
}

var alice = &aigw.User{ID: "alice"}

func TestResolve_NothingConfiguredFallsBackToMock(t *testing.T) {
	r := newResolver(t, &fixture{})

	target, err := r.Resolve(context.Background(), alice, "")
	require.NoError(t, err)
	assert.Equal(t, TargetMock, target.Kind)
	assert.Equal(t, aigw.FallbackModelID, target.Descriptor.ID)
}

func TestResolve_ExplicitMockReference(t *testing.T) {
	r := newResolver(t, &fixture{})

	target, err := r.Resolve(context.Background(), alice, "mock:default")
	require.NoError(t, err)
	assert.Equal(t, TargetMock, target.Kind)
}

func TestResolve_ExplicitCloudWithStoredCredential(t *testing.T) {
	fx := &fixture{creds: &memCredentialRepo{}}
	require.NoError(t, fx.creds.Upsert(context.Background(), &aigw.Credential{
		OwnerID: "alice", Provider: aigw.ProviderOpenAI, Ciphertext: "enc",
	}))
	r := newResolver(t, fx)

	target, err := r.Resolve(context.Background(), alice, "openai:gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, TargetCloud, target.Kind)
	assert.Equal(t, aigw.ProviderOpenAI, target.Provider)
	assert.Equal(t, "gpt-4o-mini", target.Model)
	require.NotNil(t, target.Credential)
	assert.False(t, target.UseServerKey)

	// Static metadata enrichment rides along on the descriptor.
	assert.Equal(t, 128000, target.Descriptor.ContextWindow)
	assert.True(t, target.Descriptor.SupportsVision)
}

func TestResolve_ExplicitCloudFallsBackToServerKey(t *testing.T) {
	fx := &fixture{server: &aigw.ServerConfig{GeminiAPIKey: "server-key"}}
	r := newResolver(t, fx)

	target, err := r.Resolve(context.Background(), alice, "gemini:gemini-2.0-flash")
	require.NoError(t, err)
	assert.Equal(t, TargetCloud, target.Kind)
	assert.Nil(t, target.Credential)
	assert.True(t, target.UseServerKey)
}

func TestResolve_ExplicitCloudWithoutAnyKeyFails(t *testing.T) {
	r := newResolver(t, &fixture{})

	// An explicit reference never silently reroutes. Without any key the
	// model is outside alice's reachable set.
	_, err := r.Resolve(context.Background(), alice, "openai:gpt-4o-mini")
	assert.ErrorIs(t, err, aigw.ErrUnknownModel)
}

func TestResolve_MalformedReference(t *testing.T) {
	r := newResolver(t, &fixture{})

	for _, ref := range []string{"gpt-4o-mini", ":model", "openai:"} {
		_, err := r.Resolve(context.Background(), alice, ref)
		assert.ErrorIs(t, err, aigw.ErrValidation, "ref %q", ref)
	}
}

func TestResolve_UnknownSource(t *testing.T) {
	r := newResolver(t, &fixture{})

	_, err := r.Resolve(context.Background(), alice, "anthropic:claude-sonnet")
	assert.ErrorIs(t, err, aigw.ErrUnknownModel)
}

func TestResolve_ExplicitNode(t *testing.T) {
	nodeID := uuid.New()
	fx := &fixture{nodes: &memNodeRepo{}}
	require.NoError(t, fx.nodes.Create(context.Background(), &aigw.ClientNode{
		ID: nodeID, OwnerID: "alice", Name: "Mac Studio",
		NodeType: aigw.NodeTypeOllama, Hostname: "mac.local", Port: 11434,
		IsActive: true, Status: aigw.NodeStatusOnline,
	}))
	r := newResolver(t, fx)

	target, err := r.Resolve(context.Background(), alice, nodeID.String()+":llama3.1")
	require.NoError(t, err)
	assert.Equal(t, TargetNode, target.Kind)
	assert.Equal(t, "llama3.1", target.Model)
	require.NotNil(t, target.Node)
	assert.Equal(t, nodeID, target.Node.ID)
}

func TestResolve_PrivateNodeDeniedGenerically(t *testing.T) {
	nodeID := uuid.New()
	fx := &fixture{nodes: &memNodeRepo{}}
	require.NoError(t, fx.nodes.Create(context.Background(), &aigw.ClientNode{
		ID: nodeID, OwnerID: "bob", Name: "Private",
		NodeType: aigw.NodeTypeOllama, Hostname: "b.local", Port: 11434,
		IsActive: true, IsPublic: false,
	}))
	r := newResolver(t, fx)

	_, err := r.Resolve(context.Background(), alice, nodeID.String()+":llama3.1")
	assert.ErrorIs(t, err, aigw.ErrAccessDenied)

	// A node that does not exist yields the identical error, so a caller
	// cannot distinguish absence from invisibility.
	_, err = r.Resolve(context.Background(), alice, uuid.NewString()+":llama3.1")
	assert.ErrorIs(t, err, aigw.ErrAccessDenied)
}

func TestResolve_DefaultConfigTier(t *testing.T) {
	ctx := context.Background()
	fx := &fixture{creds: &memCredentialRepo{}, configs: &memConfigRepo{}}
	require.NoError(t, fx.creds.Upsert(ctx, &aigw.Credential{
		OwnerID: "alice", Provider: aigw.ProviderOpenAI, Ciphertext: "enc",
	}))
	temp := 0.2
	require.NoError(t, fx.configs.Create(ctx, &aigw.ProviderConfig{
		ID: uuid.New(), OwnerID: "alice", ProviderType: aigw.ProviderOpenAI,
		Model: "gpt-4o", Temperature: &temp, IsDefault: true,
	}))
	r := newResolver(t, fx)

	target, err := r.Resolve(ctx, alice, "")
	require.NoError(t, err)
	assert.Equal(t, TargetCloud, target.Kind)
	assert.Equal(t, "gpt-4o", target.Model)
	require.NotNil(t, target.Config)
	assert.Equal(t, 0.2, *target.Config.Temperature)
}

func TestResolve_DanglingDefaultConfigSkipsToNextTier(t *testing.T) {
	ctx := context.Background()
	fx := &fixture{creds: &memCredentialRepo{}, configs: &memConfigRepo{}}

	// Default config points at openai, but only a gemini key exists. The
	// openai config is skipped and the gemini config is the first usable one.
	require.NoError(t, fx.creds.Upsert(ctx, &aigw.Credential{
		OwnerID: "alice", Provider: aigw.ProviderGemini, Ciphertext: "enc",
	}))
	require.NoError(t, fx.configs.Create(ctx, &aigw.ProviderConfig{
		ID: uuid.New(), OwnerID: "alice", ProviderType: aigw.ProviderOpenAI,
		Model: "gpt-4o", IsDefault: true,
	}))
	require.NoError(t, fx.configs.Create(ctx, &aigw.ProviderConfig{
		ID: uuid.New(), OwnerID: "alice", ProviderType: aigw.ProviderGemini,
		Model: "gemini-2.0-flash",
	}))
	r := newResolver(t, fx)

	target, err := r.Resolve(ctx, alice, "")
	require.NoError(t, err)
	assert.Equal(t, aigw.ProviderGemini, target.Provider)
	assert.Equal(t, "gemini-2.0-flash", target.Model)
}

func TestResolve_ServerDefaultTier(t *testing.T) {
	fx := &fixture{server: &aigw.ServerConfig{
		DefaultProvider: aigw.ProviderOpenAI,
		DefaultModel:    "gpt-4o-mini",
		OpenAIAPIKey:    "server-key",
	}}
	r := newResolver(t, fx)

	target, err := r.Resolve(context.Background(), alice, "")
	require.NoError(t, err)
	assert.Equal(t, TargetCloud, target.Kind)
	assert.Equal(t, "gpt-4o-mini", target.Model)
	assert.True(t, target.UseServerKey)
}

func TestResolve_ServerDefaultWithoutKeyFallsThrough(t *testing.T) {
	fx := &fixture{server: &aigw.ServerConfig{
		DefaultProvider: aigw.ProviderOpenAI,
		DefaultModel:    "gpt-4o-mini",
	}}
	r := newResolver(t, fx)

	target, err := r.Resolve(context.Background(), alice, "")
	require.NoError(t, err)
	assert.Equal(t, TargetMock, target.Kind)
}

func TestResolve_NilRequesterDenied(t *testing.T) {
	r := newResolver(t, &fixture{})

	_, err := r.Resolve(context.Background(), nil, "")
	assert.ErrorIs(t, err, aigw.ErrAccessDenied)
}
