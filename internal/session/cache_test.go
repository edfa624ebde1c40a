package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomas-app/companion-platform/internal/model"
)

func page(ids ...string) []model.Message {
	out := make([]model.Message, len(ids))
	for i, id := range ids {
		out[i] = model.Message{ID: id}
	}
	return out
}

func TestPageCacheRoundTrip(t *testing.T) {
	c := newPageCache(4)

	c.put("a", page("m1", "m2"))
	got, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, page("m1", "m2"), got)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestPageCacheCopiesPages(t *testing.T) {
	c := newPageCache(4)

	stored := page("m1")
	c.put("a", stored)
	stored[0].Content = "mutated after put"

	got, ok := c.get("a")
	require.True(t, ok)
	assert.Empty(t, got[0].Content, "cache must hold its own copy")

	got[0].Content = "mutated after get"
	again, _ := c.get("a")
	assert.Empty(t, again[0].Content)
}

func TestPageCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newPageCache(3)

	for i := 0; i < 3; i++ {
		c.put(fmt.Sprintf("c%d", i), page("m"))
	}

	// Touch c0 so c1 becomes the eviction candidate.
	_, ok := c.get("c0")
	require.True(t, ok)

	c.put("c3", page("m"))

	_, ok = c.get("c1")
	assert.False(t, ok, "least recently used entry should be evicted")
	for _, id := range []string{"c0", "c2", "c3"} {
		_, ok := c.get(id)
		assert.True(t, ok, "%s should survive", id)
	}
	assert.Equal(t, 3, c.len())
}

func TestPageCacheUpdateDoesNotEvict(t *testing.T) {
	c := newPageCache(2)

	c.put("a", page("m1"))
	c.put("b", page("m2"))
	c.put("a", page("m1", "m3"))

	assert.Equal(t, 2, c.len())
	got, ok := c.get("a")
	require.True(t, ok)
	assert.Len(t, got, 2)
}

func TestPageCacheDrop(t *testing.T) {
	c := newPageCache(2)

	c.put("a", page("m1"))
	c.drop("a")
	c.drop("never-there")

	_, ok := c.get("a")
	assert.False(t, ok)
	assert.Zero(t, c.len())
}
