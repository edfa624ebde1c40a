package session

import (
	"sync"

	"github.com/nomas-app/companion-platform/internal/store"
	"github.com/nomas-app/companion-platform/pkg/logger"
)

// Deps holds the collaborators shared by every manager the registry builds.
// They are passed in explicitly; nothing here is process-global.
type Deps struct {
	Conversations store.ConversationStore
	Messages      store.MessageStore
	Usage         store.UsageService
	Exchanger     Exchanger
	Summarizer    Summarizer
	Events        EventSink
	Logger        *logger.Logger
	DailyLimit    int
	PageSize      int
	CacheSize     int
}

// Registry hands out one Manager per user, creating it on first use.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewRegistry creates a registry.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps,
		managers: make(map[string]*Manager),
	}
}

// For returns the manager for a user, building it if needed.
func (r *Registry) For(userID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[userID]; ok {
		return m
	}

	m := NewManager(Config{
		UserID:        userID,
		DailyLimit:    r.deps.DailyLimit,
		PageSize:      r.deps.PageSize,
		CacheSize:     r.deps.CacheSize,
		Conversations: r.deps.Conversations,
		Messages:      r.deps.Messages,
		Usage:         r.deps.Usage,
		Exchanger:     r.deps.Exchanger,
		Summarizer:    r.deps.Summarizer,
		Events:        r.deps.Events,
		Logger:        r.deps.Logger,
	})
	r.managers[userID] = m
	return m
}

// Drop discards a user's manager, releasing its in-memory state.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, userID)
}
