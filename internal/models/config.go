// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package models

import (
	"github.com/lifedeck/aigw"
)

// Metadata is the static enrichment applied to cloud model listings. Costs
// are USD per 1M tokens. Listings are live; this table only decorates them,
// so an unknown model id simply gets zero-valued metadata.
type Metadata struct {
	Name                    string
	ContextWindow           int
	MaxOutputTokens         int
	InputCostPer1M          float64
	OutputCostPer1M         float64
	SupportsVision          bool
	SupportsFunctionCalling bool
}

var OpenAIModels = map[string]Metadata{
	"gpt-4o": {
		Name:                    "GPT-4o",
		ContextWindow:           128000,
		MaxOutputTokens:         16384,
		InputCostPer1M:          2.50,
		OutputCostPer1M:         10.00,
		SupportsVision:          true,
		SupportsFunctionCalling: true,
	},
	"gpt-4o-mini": {
		Name:                    "GPT-4o mini",
		ContextWindow:           128000,
		MaxOutputTokens:         16384,
		InputCostPer1M:          0.15,
		OutputCostPer1M:         0.60,
		SupportsVision:          true,
		SupportsFunctionCalling: true,
	},
	"gpt-4.1": {
		Name:                    "GPT-4.1",
		ContextWindow:           1047576,
		MaxOutputTokens:         32768,
		InputCostPer1M:          2.00,
		OutputCostPer1M:         8.00,
		SupportsVision:          true,
		SupportsFunctionCalling: true,
	},
	"gpt-4.1-mini": {
		Name:                    "GPT-4.1 mini",
		ContextWindow:           1047576,
		MaxOutputTokens:         32768,
		InputCostPer1M:          0.40,
		OutputCostPer1M:         1.60,
		SupportsVision:          true,
		SupportsFunctionCalling: true,
	},
	"o4-mini": {
		Name:                    "o4-mini",
		ContextWindow:           200000,
		MaxOutputTokens:         100000,
		InputCostPer1M:          1.10,
		OutputCostPer1M:         4.40,
		SupportsVision:          true,
		SupportsFunctionCalling: true,
	},
	"text-embedding-3-small": {
		Name:           "text-embedding-3-small",
		ContextWindow:  8191,
		InputCostPer1M: 0.02,
	},
}

var GeminiModels = map[string]Metadata{
	"gemini-2.0-flash": {
		Name:                    "Gemini 2.0 Flash",
		ContextWindow:           1048576,
		MaxOutputTokens:         8192,
		InputCostPer1M:          0.10,
		OutputCostPer1M:         0.40,
		SupportsVision:          true,
		SupportsFunctionCalling: true,
	},
	"gemini-2.0-flash-lite": {
		Name:                    "Gemini 2.0 Flash-Lite",
		ContextWindow:           1048576,
		MaxOutputTokens:         8192,
		InputCostPer1M:          0.075,
		OutputCostPer1M:         0.30,
		SupportsVision:          true,
		SupportsFunctionCalling: true,
	},
	"gemini-2.5-pro": {
		Name:                    "Gemini 2.5 Pro",
		ContextWindow:           1048576,
		MaxOutputTokens:         65536,
		InputCostPer1M:          1.25,
		OutputCostPer1M:         10.00,
		SupportsVision:          true,
		SupportsFunctionCalling: true,
	},
	"text-embedding-004": {
		Name:          "Text Embedding 004",
		ContextWindow: 2048,
	},
}

// Lookup returns the static metadata for a cloud model, if known.
func Lookup(provider, modelID string) (Metadata, bool) {
	switch provider {
	case aigw.ProviderOpenAI:
		m, ok := OpenAIModels[modelID]
		return m, ok
	case aigw.ProviderGemini:
		m, ok := GeminiModels[modelID]
		return m, ok
	default:
		return Metadata{}, false
	}
}
