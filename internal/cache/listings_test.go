// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifedeck/aigw"
)

func sampleListing(id string) []aigw.ModelDescriptor {
	return []aigw.ModelDescriptor{{
		ID:     id,
		Source: aigw.ProviderOpenAI,
		Model:  "gpt-4o-mini",
		Origin: aigw.OriginCloud,
	}}
}

func TestListingCache_PutGet(t *testing.T) {
	c := NewListingCache(time.Minute)

	c.Put("user-1", aigw.ProviderOpenAI, sampleListing("openai:gpt-4o-mini"))

	got, ok := c.Get("user-1", aigw.ProviderOpenAI)
	require.True(t, ok)
	assert.Equal(t, "openai:gpt-4o-mini", got[0].ID)

	// Different owner, same provider, is a different entry.
	_, ok = c.Get("user-2", aigw.ProviderOpenAI)
	assert.False(t, ok)
}

func TestListingCache_Expiry(t *testing.T) {
	c := NewListingCache(30 * time.Millisecond)

	c.Put("user-1", aigw.ProviderGemini, sampleListing("gemini:gemini-2.0-flash"))
	_, ok := c.Get("user-1", aigw.ProviderGemini)
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	_, ok = c.Get("user-1", aigw.ProviderGemini)
	assert.False(t, ok)

	assert.Equal(t, 1, c.Size())
	c.Purge()
	assert.Equal(t, 0, c.Size())
}

func TestListingCache_Invalidate(t *testing.T) {
	c := NewListingCache(time.Minute)

	c.Put("user-1", aigw.ProviderOpenAI, sampleListing("openai:gpt-4o-mini"))
	c.Invalidate("user-1", aigw.ProviderOpenAI)

	_, ok := c.Get("user-1", aigw.ProviderOpenAI)
	assert.False(t, ok)
}
