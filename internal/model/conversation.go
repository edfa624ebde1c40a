// Package model defines data structures for the companion platform.
package model

import (
	"time"
)

// DefaultTitle is the title given to a freshly created conversation.
const DefaultTitle = "New Chat"

// Conversation represents a conversation thread between a user and the
// companion.
type Conversation struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	MessageCount   int       `json:"message_count"`
	ContextSummary string    `json:"context_summary,omitempty"`
}

// Section is a group of conversations sharing a recency label. Sections are
// produced in display order and empty sections are never emitted.
type Section struct {
	Label         string         `json:"label"`
	Conversations []Conversation `json:"conversations"`
}

// UpdateConversationRequest is the request to rename a conversation.
type UpdateConversationRequest struct {
	Title string `json:"title"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Sections []Section `json:"sections"`
	Total    int       `json:"total"`
}
