// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package models

import (
	"fmt"
	"strings"

	"github.com/lifedeck/aigw"
)

// ParseReference splits a composite model reference (source:modelID). Source
// is a cloud provider name, a client node id, or "mock". Model ids may
// themselves contain colons, so only the first one splits.
func ParseReference(ref string) (source, modelID string, err error) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: invalid model reference %q (expected source:model)", aigw.ErrValidation, ref)
	}
	return parts[0], parts[1], nil
}

// CloudDescriptor builds an enriched descriptor for a cloud-listed model.
// Models absent from the static tables keep zero-valued metadata.
func CloudDescriptor(provider, modelID string) aigw.ModelDescriptor {
	d := aigw.ModelDescriptor{
		ID:     provider + ":" + modelID,
		Source: provider,
		Model:  modelID,
		Origin: aigw.OriginCloud,
	}
	if meta, ok := Lookup(provider, modelID); ok {
		d.Name = meta.Name
		d.ContextWindow = meta.ContextWindow
		d.MaxOutputTokens = meta.MaxOutputTokens
		d.InputCostPer1M = meta.InputCostPer1M
		d.OutputCostPer1M = meta.OutputCostPer1M
		d.SupportsVision = meta.SupportsVision
		d.SupportsFunctionCalling = meta.SupportsFunctionCalling
	}
	return d
}

// NodeDescriptor builds a descriptor for a node-reported model. Node models
// are arbitrary local builds, so no metadata enrichment is attempted.
func NodeDescriptor(node *aigw.ClientNode, modelID string) aigw.ModelDescriptor {
	return aigw.ModelDescriptor{
		ID:     node.ID.String() + ":" + modelID,
		Source: node.ID.String(),
		Model:  modelID,
		Name:   node.Name + " / " + modelID,
		Origin: aigw.OriginNode,
	}
}

// FallbackDescriptor is the always-present mock entry.
func FallbackDescriptor() aigw.ModelDescriptor {
	return aigw.ModelDescriptor{
		ID:     aigw.FallbackModelID,
		Source: aigw.ProviderMock,
		Model:  "default",
		Name:   "Deterministic fallback",
		Origin: aigw.OriginFallback,
	}
}
