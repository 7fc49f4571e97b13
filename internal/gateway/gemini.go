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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiAdapter talks to the Gemini generateContent API. Gemini has no
// first-party Go SDK wired here; the REST surface is small enough that a
// plain client keeps the dependency out.
type GeminiAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewGeminiAdapter(apiKey, baseURL string, httpClient *http.Client) *GeminiAdapter {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GeminiAdapter{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type geminiGenerateRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata geminiUsage `json:"usageMetadata"`
}

func buildGeminiRequest(req GenerateRequest) geminiGenerateRequest {
	out := geminiGenerateRequest{}
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: msg.Content}}}
		case "assistant":
			out.Contents = append(out.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: msg.Content}}})
		default:
			out.Contents = append(out.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: msg.Content}}})
		}
	}
	if req.Temperature != nil || req.MaxTokens != nil {
		out.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}
	return out
}

func (a *GeminiAdapter) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.apiKey)
	return a.httpClient.Do(httpReq)
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("upstream status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	return fmt.Errorf("upstream status %d", resp.StatusCode)
}

func (a *GeminiAdapter) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	resp, err := a.post(ctx, "/v1beta/models/"+req.Model+":generateContent", buildGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var decoded geminiGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Candidates) == 0 {
		return nil, fmt.Errorf("generate content: no candidates returned")
	}

	var text strings.Builder
	for _, part := range decoded.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return &GenerateResult{
		Text: text.String(),
		Usage: aigw.TokenUsage{
			PromptTokens:     decoded.UsageMetadata.PromptTokenCount,
			CompletionTokens: decoded.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      decoded.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

func (a *GeminiAdapter) GenerateStream(ctx context.Context, req GenerateRequest) (ResponseStream, error) {
	resp, err := a.post(ctx, "/v1beta/models/"+req.Model+":streamGenerateContent?alt=sse", buildGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return &geminiStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

func (a *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1beta/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var decoded struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	ids := make([]string, 0, len(decoded.Models))
	for _, m := range decoded.Models {
		ids = append(ids, strings.TrimPrefix(m.Name, "models/"))
	}
	return ids, nil
}

func (a *GeminiAdapter) Embeddings(ctx context.Context, model string, inputs []string) ([][]float64, error) {
	type embedRequest struct {
		Model   string        `json:"model"`
		Content geminiContent `json:"content"`
	}
	body := struct {
		Requests []embedRequest `json:"requests"`
	}{}
	for _, input := range inputs {
		body.Requests = append(body.Requests, embedRequest{
			Model:   "models/" + model,
			Content: geminiContent{Parts: []geminiPart{{Text: input}}},
		})
	}

	resp, err := a.post(ctx, "/v1beta/models/"+model+":batchEmbedContents", body)
	if err != nil {
		return nil, fmt.Errorf("embed contents: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var decoded struct {
		Embeddings []struct {
			Values []float64 `json:"values"`
		} `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([][]float64, 0, len(decoded.Embeddings))
	for _, e := range decoded.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

type geminiStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *geminiStream) Next() (*StreamChunk, error) {
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

		var decoded geminiGenerateResponse
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			return nil, fmt.Errorf("decode stream event: %w", err)
		}
		if len(decoded.Candidates) == 0 {
			continue
		}

		var text strings.Builder
		for _, part := range decoded.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
		chunk := &StreamChunk{Text: text.String()}
		if decoded.Candidates[0].FinishReason != "" {
			s.done = true
			chunk.Finished = true
			chunk.Usage = &aigw.TokenUsage{
				PromptTokens:     decoded.UsageMetadata.PromptTokenCount,
				CompletionTokens: decoded.UsageMetadata.CandidatesTokenCount,
				TotalTokens:      decoded.UsageMetadata.TotalTokenCount,
			}
		}
		return chunk, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	s.done = true
	return &StreamChunk{Finished: true}, nil
}

func (s *geminiStream) Close() error {
	return s.body.Close()
}
