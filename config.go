// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package aigw

// ServerConfig is the process-wide configuration consumed by the resolver's
// fallback tier and by adapter construction. It is loaded and validated once
// at startup and passed explicitly; nothing mutates it after that.
type ServerConfig struct {
	// DefaultProvider and DefaultModel form the server-level resolution tier
	// used when a requester has no configuration of their own. Both empty is
	// valid; resolution then falls through to the mock fallback.
	DefaultProvider string
	DefaultModel    string

	// Server-wide (non-per-user) cloud credentials. Empty means the provider
	// is only reachable through per-user stored credentials.
	OpenAIAPIKey string
	GeminiAPIKey string

	// Base URL overrides, mainly for tests and proxied deployments.
	OpenAIBaseURL string
	GeminiBaseURL string
}

// ServerKey returns the server-wide API key for a cloud provider, if any.
func (c *ServerConfig) ServerKey(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderGemini:
		return c.GeminiAPIKey
	default:
		return ""
	}
}

// Validate rejects inconsistent server defaults before the process serves
// traffic.
func (c *ServerConfig) Validate() error {
	if c.DefaultProvider == "" {
		return nil
	}
	if c.DefaultProvider != ProviderMock && !IsCloudProvider(c.DefaultProvider) {
		return &ConfigurationError{Setting: "default-provider", Reason: "unknown provider " + c.DefaultProvider}
	}
	if c.DefaultProvider != ProviderMock && c.DefaultModel == "" {
		return &ConfigurationError{Setting: "default-model", Reason: "required when default-provider is set"}
	}
	return nil
}
