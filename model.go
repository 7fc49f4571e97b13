// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package aigw

// ModelOrigin records where a catalog entry came from.
type ModelOrigin string

const (
	OriginCloud    ModelOrigin = "cloud"
	OriginNode     ModelOrigin = "node"
	OriginFallback ModelOrigin = "fallback"
)

// FallbackModelID is the composite identifier of the deterministic fallback
// model. It is present in every catalog build.
const FallbackModelID = "mock:default"

// ModelDescriptor is a uniquely identified, metadata-enriched reference to one
// model offered by one provider or node. ID is the composite "source:model"
// form, where source is a provider name or a node id.
type ModelDescriptor struct {
	ID                      string      `json:"id"`
	Source                  string      `json:"source"`
	Model                   string      `json:"model"`
	Name                    string      `json:"name,omitempty"`
	Origin                  ModelOrigin `json:"origin"`
	ContextWindow           int         `json:"contextWindow,omitempty"`
	MaxOutputTokens         int         `json:"maxOutputTokens,omitempty"`
	InputCostPer1M          float64     `json:"inputCostPer1M,omitempty"`
	OutputCostPer1M         float64     `json:"outputCostPer1M,omitempty"`
	SupportsVision          bool        `json:"supportsVision"`
	SupportsFunctionCalling bool        `json:"supportsFunctionCalling"`
}

// ChatMessage is one turn of conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the value object a caller hands to the resolver/gateway pair.
// It is not persisted here; conversation storage belongs to the messaging
// collaborator.
type ChatRequest struct {
	Prompt  string        `json:"prompt"`
	History []ChatMessage `json:"history,omitempty"`
	Model   string        `json:"model,omitempty"`
}

// TokenUsage carries the counters reported by the answering backend. Node
// backends may report zeros.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ChatResult is a normalized generation outcome. Model names the descriptor
// that actually answered, which may differ from what the caller asked for when
// resolution fell through to a default or the fallback.
type ChatResult struct {
	Text  string          `json:"text"`
	Model ModelDescriptor `json:"model"`
	Usage TokenUsage      `json:"usage"`
}
