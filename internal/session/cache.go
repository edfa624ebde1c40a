package session

import (
	"github.com/nomas-app/companion-platform/internal/model"
)

// pageCache keeps the last-seen message page per conversation so reselecting
// a conversation can show it instantly while a refresh runs. Bounded LRU;
// eviction drops the least recently touched conversation.
type pageCache struct {
	capacity int
	pages    map[string][]model.Message
	order    []string // least recently used first
}

func newPageCache(capacity int) *pageCache {
	if capacity < 1 {
		capacity = 1
	}
	return &pageCache{
		capacity: capacity,
		pages:    make(map[string][]model.Message, capacity),
	}
}

// get returns a copy of the cached page and bumps its recency.
func (c *pageCache) get(conversationID string) ([]model.Message, bool) {
	page, ok := c.pages[conversationID]
	if !ok {
		return nil, false
	}
	c.touch(conversationID)

	out := make([]model.Message, len(page))
	copy(out, page)
	return out, true
}

// put stores a copy of the page, evicting the oldest entry when full.
func (c *pageCache) put(conversationID string, page []model.Message) {
	stored := make([]model.Message, len(page))
	copy(stored, page)

	if _, exists := c.pages[conversationID]; exists {
		c.pages[conversationID] = stored
		c.touch(conversationID)
		return
	}

	if len(c.pages) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.pages, oldest)
	}

	c.pages[conversationID] = stored
	c.order = append(c.order, conversationID)
}

// drop removes a conversation's cached page.
func (c *pageCache) drop(conversationID string) {
	if _, ok := c.pages[conversationID]; !ok {
		return
	}
	delete(c.pages, conversationID)
	for i, id := range c.order {
		if id == conversationID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *pageCache) len() int {
	return len(c.pages)
}

func (c *pageCache) touch(conversationID string) {
	for i, id := range c.order {
		if id == conversationID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, conversationID)
			return
		}
	}
	c.order = append(c.order, conversationID)
}
