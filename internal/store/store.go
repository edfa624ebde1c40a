// Package store provides persistence interfaces and the SQLite
// implementation backing them.
package store

import (
	"context"
	"time"

	"github.com/nomas-app/companion-platform/internal/model"
)

// ConversationStore persists conversation rows.
type ConversationStore interface {
	// List retrieves all conversations owned by a user, ordered by
	// updated_at descending.
	List(ctx context.Context, userID string) ([]model.Conversation, error)

	// Insert creates a new conversation row.
	Insert(ctx context.Context, conv *model.Conversation) error

	// Rename updates a conversation's title.
	Rename(ctx context.Context, id, title string) error

	// Touch bumps updated_at and adds delta to message_count.
	Touch(ctx context.Context, id string, at time.Time, delta int) error

	// Delete removes a conversation and its messages.
	Delete(ctx context.Context, id string) error
}

// MessageStore persists messages and serves timestamp-cursor queries.
type MessageStore interface {
	// Query returns up to limit messages for a conversation ordered
	// newest-first. When before is non-nil only messages strictly older
	// than it are returned.
	Query(ctx context.Context, conversationID string, before *time.Time, limit int) ([]model.Message, error)

	// InsertMessage persists a message.
	InsertMessage(ctx context.Context, msg *model.Message) error
}

// TurnStore records one completed exchange turn atomically: both messages
// and the conversation bump land together or not at all.
type TurnStore interface {
	RecordTurn(ctx context.Context, conversationID string, userMsg, assistantMsg *model.Message, at time.Time) error
}

// UsageService is the authoritative daily quota counter.
type UsageService interface {
	// IncrementDaily atomically advances the user's counter for the
	// current UTC day and returns the resulting authoritative pair.
	IncrementDaily(ctx context.Context, userID string, limit int) (model.Usage, error)

	// CurrentDaily reads the counter without advancing it.
	CurrentDaily(ctx context.Context, userID string, limit int) (model.Usage, error)
}
