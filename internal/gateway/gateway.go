// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lifedeck/aigw"
	"github.com/lifedeck/aigw/internal/resolver"
)

// CredentialSource supplies decrypted keys at the last possible moment.
// Implemented by the credential store; the plaintext goes straight into an
// adapter and is never retained or logged here.
type CredentialSource interface {
	Plaintext(ctx context.Context, ownerID, provider string) (string, error)
	TouchLastUsed(ctx context.Context, ownerID, provider string) error
}

// Recorder receives one observation per dispatched request. Implemented by
// the monitoring package; a nil Recorder disables measurement.
type Recorder interface {
	RecordRequest(ctx context.Context, provider string, duration time.Duration, usage aigw.TokenUsage, err error)
}

type Gateway struct {
	options *gatewayOptions
}

type gatewayOptions struct {
	Logger      *slog.Logger
	Credentials CredentialSource
	Server      *aigw.ServerConfig
	HTTPClient  *http.Client
	Metrics     Recorder
}

// GatewayOption is an option for configuring a [Gateway].
type GatewayOption interface {
	apply(*gatewayOptions)
}

type funcGatewayOption func(*gatewayOptions)

func (f funcGatewayOption) apply(opts *gatewayOptions) {
	f(opts)
}

func WithGatewayLogger(logger *slog.Logger) GatewayOption {
	return funcGatewayOption(func(opts *gatewayOptions) {
		opts.Logger = logger
	})
}

func WithGatewayCredentials(source CredentialSource) GatewayOption {
	return funcGatewayOption(func(opts *gatewayOptions) {
		opts.Credentials = source
	})
}

func WithGatewayServerConfig(cfg *aigw.ServerConfig) GatewayOption {
	return funcGatewayOption(func(opts *gatewayOptions) {
		opts.Server = cfg
	})
}

func WithGatewayHTTPClient(client *http.Client) GatewayOption {
	return funcGatewayOption(func(opts *gatewayOptions) {
		opts.HTTPClient = client
	})
}

func WithGatewayRecorder(recorder Recorder) GatewayOption {
	return funcGatewayOption(func(opts *gatewayOptions) {
		opts.Metrics = recorder
	})
}

// NewGateway creates a new [Gateway].
func NewGateway(options ...GatewayOption) (*Gateway, error) {
	opts := &gatewayOptions{
		Logger:     slog.Default(),
		Server:     &aigw.ServerConfig{},
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range options {
		opt.apply(opts)
	}
	if opts.Credentials == nil {
		return nil, errors.New("gateway requires a credential source")
	}
	return &Gateway{options: opts}, nil
}

// AdapterFor constructs the adapter serving a resolved target. Decryption of
// a stored credential happens here and nowhere else.
func (g *Gateway) AdapterFor(ctx context.Context, target *resolver.Target) (Adapter, error) {
	switch target.Kind {
	case resolver.TargetMock:
		return NewMockAdapter(), nil

	case resolver.TargetNode:
		switch target.Node.NodeType {
		case aigw.NodeTypeOllama:
			return NewOllamaAdapter(target.Node.BaseURL(), g.options.HTTPClient), nil
		case aigw.NodeTypeOpenWebUI:
			return NewOpenWebUIAdapter(target.Node.BaseURL(), g.options.HTTPClient), nil
		default:
			return nil, &aigw.ProviderError{
				Provider: string(target.Node.NodeType),
				Err:      errors.New("unsupported node type"),
			}
		}

	case resolver.TargetCloud:
		key, err := g.cloudKey(ctx, target)
		if err != nil {
			return nil, err
		}
		switch target.Provider {
		case aigw.ProviderOpenAI:
			return NewOpenAIAdapter(key, g.options.Server.OpenAIBaseURL), nil
		case aigw.ProviderGemini:
			return NewGeminiAdapter(key, g.options.Server.GeminiBaseURL, g.options.HTTPClient), nil
		default:
			return nil, &aigw.ProviderError{
				Provider: target.Provider,
				Err:      errors.New("unsupported cloud provider"),
			}
		}

	default:
		return nil, &aigw.ProviderError{Provider: target.Provider, Err: errors.New("unresolvable target")}
	}
}

func (g *Gateway) cloudKey(ctx context.Context, target *resolver.Target) (string, error) {
	if target.UseServerKey {
		return g.options.Server.ServerKey(target.Provider), nil
	}
	key, err := g.options.Credentials.Plaintext(ctx, target.Credential.OwnerID, target.Provider)
	if err != nil {
		return "", &aigw.ProviderError{Provider: target.Provider, Err: err}
	}
	return key, nil
}

func generateRequest(target *resolver.Target, req aigw.ChatRequest) GenerateRequest {
	out := GenerateRequest{
		Model:    target.Model,
		Messages: messagesWithPrompt(req),
	}
	if target.Config != nil {
		out.Temperature = target.Config.Temperature
		out.MaxTokens = target.Config.MaxTokens
	}
	return out
}

// GenerateReply makes exactly one attempt against the resolved target. A
// backend failure surfaces as a ProviderError; the gateway never reroutes a
// failed attempt to another tier.
func (g *Gateway) GenerateReply(ctx context.Context, target *resolver.Target, req aigw.ChatRequest) (*aigw.ChatResult, error) {
	adapter, err := g.AdapterFor(ctx, target)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := adapter.Generate(ctx, generateRequest(target, req))
	if err != nil {
		g.record(ctx, target.Provider, time.Since(start), aigw.TokenUsage{}, err)
		return nil, &aigw.ProviderError{Provider: target.Provider, Err: err}
	}
	g.record(ctx, target.Provider, time.Since(start), result.Usage, nil)
	g.touchCredential(ctx, target)

	g.options.Logger.Info("Generated reply",
		"provider", target.Provider, "model", target.Model,
		"totalTokens", result.Usage.TotalTokens)

	return &aigw.ChatResult{
		Text:  result.Text,
		Model: target.Descriptor,
		Usage: result.Usage,
	}, nil
}

// GenerateReplyStream is the streaming variant of GenerateReply. The caller
// owns the returned stream and must Close it.
func (g *Gateway) GenerateReplyStream(ctx context.Context, target *resolver.Target, req aigw.ChatRequest) (ResponseStream, error) {
	adapter, err := g.AdapterFor(ctx, target)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	stream, err := adapter.GenerateStream(ctx, generateRequest(target, req))
	if err != nil {
		g.record(ctx, target.Provider, time.Since(start), aigw.TokenUsage{}, err)
		return nil, &aigw.ProviderError{Provider: target.Provider, Err: err}
	}
	g.touchCredential(ctx, target)
	return stream, nil
}

// Embeddings dispatches an embedding request to the resolved target.
func (g *Gateway) Embeddings(ctx context.Context, target *resolver.Target, inputs []string) ([][]float64, error) {
	adapter, err := g.AdapterFor(ctx, target)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	vectors, err := adapter.Embeddings(ctx, target.Model, inputs)
	if err != nil {
		g.record(ctx, target.Provider, time.Since(start), aigw.TokenUsage{}, err)
		return nil, &aigw.ProviderError{Provider: target.Provider, Err: err}
	}
	g.record(ctx, target.Provider, time.Since(start), aigw.TokenUsage{}, nil)
	g.touchCredential(ctx, target)
	return vectors, nil
}

// ListCloudModels queries a cloud provider's live model listing with the
// requester's stored credential, or the server key when none is stored.
func (g *Gateway) ListCloudModels(ctx context.Context, requester *aigw.User, provider string) ([]string, error) {
	if !aigw.IsCloudProvider(provider) {
		return nil, aigw.ErrUnknownModel
	}

	key, err := g.options.Credentials.Plaintext(ctx, requester.ID, provider)
	if errors.Is(err, aigw.ErrNotFound) {
		key = g.options.Server.ServerKey(provider)
		if key == "" {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	var adapter Adapter
	switch provider {
	case aigw.ProviderOpenAI:
		adapter = NewOpenAIAdapter(key, g.options.Server.OpenAIBaseURL)
	case aigw.ProviderGemini:
		adapter = NewGeminiAdapter(key, g.options.Server.GeminiBaseURL, g.options.HTTPClient)
	}

	ids, err := adapter.ListModels(ctx)
	if err != nil {
		return nil, &aigw.ProviderError{Provider: provider, Err: err}
	}
	return ids, nil
}

// touchCredential records a successful outbound call on the stored key. A
// bookkeeping failure is logged, not surfaced; the reply already succeeded.
func (g *Gateway) touchCredential(ctx context.Context, target *resolver.Target) {
	if target.Kind != resolver.TargetCloud || target.Credential == nil {
		return
	}
	if err := g.options.Credentials.TouchLastUsed(ctx, target.Credential.OwnerID, target.Provider); err != nil {
		g.options.Logger.Warn("Failed to record credential use",
			"provider", target.Provider, "error", err)
	}
}

func (g *Gateway) record(ctx context.Context, provider string, duration time.Duration, usage aigw.TokenUsage, err error) {
	if g.options.Metrics == nil {
		return
	}
	g.options.Metrics.RecordRequest(ctx, provider, duration, usage, err)
}
