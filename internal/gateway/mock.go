// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package gateway

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lifedeck/aigw"
)

// MockAdapter answers deterministically without I/O. It backs the fallback
// tier, so it must never fail: a fresh deployment with nothing configured
// still produces replies through it.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

func mockReply(req GenerateRequest) string {
	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].Content
	}
	return fmt.Sprintf("This is a placeholder response. No AI provider is configured yet. You said: %q", prompt)
}

func (a *MockAdapter) Generate(_ context.Context, req GenerateRequest) (*GenerateResult, error) {
	text := mockReply(req)
	return &GenerateResult{
		Text: text,
		Usage: aigw.TokenUsage{
			CompletionTokens: len(strings.Fields(text)),
			TotalTokens:      len(strings.Fields(text)),
		},
	}, nil
}

func (a *MockAdapter) GenerateStream(_ context.Context, req GenerateRequest) (ResponseStream, error) {
	return &mockStream{words: strings.Fields(mockReply(req))}, nil
}

func (a *MockAdapter) ListModels(_ context.Context) ([]string, error) {
	return []string{"default"}, nil
}

// Embeddings returns fixed-dimension zero vectors so downstream consumers can
// exercise their plumbing without a real provider.
func (a *MockAdapter) Embeddings(_ context.Context, _ string, inputs []string) ([][]float64, error) {
	out := make([][]float64, len(inputs))
	for i := range inputs {
		out[i] = make([]float64, 8)
	}
	return out, nil
}

type mockStream struct {
	mu     sync.Mutex
	words  []string
	pos    int
	closed bool
}

func (s *mockStream) Next() (*StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.pos > len(s.words) {
		return nil, io.EOF
	}
	if s.pos == len(s.words) {
		s.pos++
		return &StreamChunk{
			Finished: true,
			Usage:    &aigw.TokenUsage{CompletionTokens: len(s.words), TotalTokens: len(s.words)},
		}, nil
	}

	word := s.words[s.pos]
	if s.pos > 0 {
		word = " " + word
	}
	s.pos++
	return &StreamChunk{Text: word}, nil
}

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
