// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package gateway

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/lifedeck/aigw"
)

// OpenAIAdapter talks to the OpenAI API (or any endpoint speaking its
// protocol) through the official SDK. The key lives only inside the SDK
// client for the duration of one gateway call.
type OpenAIAdapter struct {
	client openai.Client
}

func NewOpenAIAdapter(apiKey, baseURL string) *OpenAIAdapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{client: openai.NewClient(opts...)}
}

func (a *OpenAIAdapter) chatParams(req GenerateRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}
	return params
}

func (a *OpenAIAdapter) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	resp, err := a.client.Chat.Completions.New(ctx, a.chatParams(req))
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices")
	}

	return &GenerateResult{
		Text: resp.Choices[0].Message.Content,
		Usage: aigw.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func (a *OpenAIAdapter) GenerateStream(ctx context.Context, req GenerateRequest) (ResponseStream, error) {
	params := a.chatParams(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}
	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}
	return &openaiStream{stream: stream}, nil
}

func (a *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	page, err := a.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (a *OpenAIAdapter) Embeddings(ctx context.Context, model string, inputs []string) ([][]float64, error) {
	resp, err := a.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}

	out := make([][]float64, len(resp.Data))
	for _, d := range resp.Data {
		if int(d.Index) < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

type openaiStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	done   bool
}

func (s *openaiStream) Next() (*StreamChunk, error) {
	if s.done {
		return nil, io.EOF
	}
	for s.stream.Next() {
		chunk := s.stream.Current()

		// The usage-bearing tail chunk has no choices.
		if len(chunk.Choices) == 0 {
			if chunk.Usage.TotalTokens > 0 {
				s.done = true
				return &StreamChunk{
					Finished: true,
					Usage: &aigw.TokenUsage{
						PromptTokens:     int(chunk.Usage.PromptTokens),
						CompletionTokens: int(chunk.Usage.CompletionTokens),
						TotalTokens:      int(chunk.Usage.TotalTokens),
					},
				}, nil
			}
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" && choice.Delta.Content == "" {
			continue
		}
		return &StreamChunk{Text: choice.Delta.Content}, nil
	}
	if err := s.stream.Err(); err != nil {
		return nil, err
	}
	s.done = true
	return &StreamChunk{Finished: true}, nil
}

func (s *openaiStream) Close() error {
	return s.stream.Close()
}
