// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lifedeck/aigw"
)

// OpenWebUIAdapter talks to an Open WebUI node over its OpenAI-compatible
// surface. Streaming follows the chat.completion.chunk SSE format terminated
// by a [DONE] sentinel.
type OpenWebUIAdapter struct {
	baseURL    string
	httpClient *http.Client
}

func NewOpenWebUIAdapter(baseURL string, httpClient *http.Client) *OpenWebUIAdapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenWebUIAdapter{baseURL: baseURL, httpClient: httpClient}
}

type openwebuiChatRequest struct {
	Model       string             `json:"model"`
	Messages    []aigw.ChatMessage `json:"messages"`
	Stream      bool               `json:"stream"`
	Temperature *float64           `json:"temperature,omitempty"`
	MaxTokens   *int               `json:"max_tokens,omitempty"`
}

type openwebuiChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (a *OpenWebUIAdapter) post(ctx context.Context, req GenerateRequest, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(openwebuiChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Stream:      stream,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", aigw.ErrNodeUnreachable, err)
	}
	return resp, nil
}

func (a *OpenWebUIAdapter) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	resp, err := a.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var decoded openwebuiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices")
	}

	result := &GenerateResult{Text: decoded.Choices[0].Message.Content}
	if decoded.Usage != nil {
		result.Usage = aigw.TokenUsage{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
		}
	}
	return result, nil
}

func (a *OpenWebUIAdapter) GenerateStream(ctx context.Context, req GenerateRequest) (ResponseStream, error) {
	resp, err := a.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return &openwebuiStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

func (a *OpenWebUIAdapter) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", aigw.ErrNodeUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var decoded struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	ids := make([]string, 0, len(decoded.Data))
	for _, m := range decoded.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Embeddings is not part of the Open WebUI surface this gateway relies on.
func (a *OpenWebUIAdapter) Embeddings(_ context.Context, _ string, _ []string) ([][]float64, error) {
	return nil, fmt.Errorf("%w: openwebui nodes do not serve embeddings", aigw.ErrValidation)
}

type openwebuiStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *openwebuiStream) Next() (*StreamChunk, error) {
	if s.done {
		return nil, io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			s.done = true
			return &StreamChunk{Finished: true}, nil
		}

		var decoded openwebuiChatResponse
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			return nil, fmt.Errorf("decode stream event: %w", err)
		}
		if len(decoded.Choices) == 0 {
			continue
		}
		return &StreamChunk{Text: decoded.Choices[0].Delta.Content}, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	s.done = true
	return &StreamChunk{Finished: true}, nil
}

func (s *openwebuiStream) Close() error {
	return s.body.Close()
}
