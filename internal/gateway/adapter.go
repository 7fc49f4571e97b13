// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package gateway executes resolved routing targets against provider
// backends. Each backend family has one adapter; the gateway constructs an
// adapter per call, makes exactly one attempt, and normalizes the outcome.
package gateway

import (
	"context"

	"github.com/lifedeck/aigw"
)

// GenerateRequest is the normalized form handed to an adapter. Messages holds
// the full conversation including the new user turn.
type GenerateRequest struct {
	Model       string
	Messages    []aigw.ChatMessage
	Temperature *float64
	MaxTokens   *int
}

// GenerateResult is a completed non-streaming generation.
type GenerateResult struct {
	Text  string
	Usage aigw.TokenUsage
}

// StreamChunk is one increment of a streaming generation. Usage arrives on
// the final chunk when the backend reports it at all.
type StreamChunk struct {
	Text     string
	Finished bool
	Usage    *aigw.TokenUsage
}

// ResponseStream yields chunks until io.EOF. Close releases the underlying
// connection and is safe to call at any point, including mid-stream.
type ResponseStream interface {
	Next() (*StreamChunk, error)
	Close() error
}

// Adapter is the uniform surface over one backend. Implementations hold
// everything needed for the call (endpoint, decrypted key) and are discarded
// after use; nothing caches a constructed adapter.
type Adapter interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	GenerateStream(ctx context.Context, req GenerateRequest) (ResponseStream, error)
	ListModels(ctx context.Context) ([]string, error)
	Embeddings(ctx context.Context, model string, inputs []string) ([][]float64, error)
}

func messagesWithPrompt(req aigw.ChatRequest) []aigw.ChatMessage {
	msgs := make([]aigw.ChatMessage, 0, len(req.History)+1)
	msgs = append(msgs, req.History...)
	msgs = append(msgs, aigw.ChatMessage{Role: "user", Content: req.Prompt})
	return msgs
}
