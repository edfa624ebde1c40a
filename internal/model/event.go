package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeRollback  EventType = "rollback"
	EventTypeQuotaTrip EventType = "quota_trip"
	EventTypeRateLimit EventType = "rate_limit"
)

// ConversationEvent records a failure-path occurrence on a conversation so
// operators can watch rollback and quota rates.
type ConversationEvent struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Type           EventType `json:"type"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

// SummarizeJob asks the summarization worker to refresh a conversation's
// context summary.
type SummarizeJob struct {
	ConversationID string    `json:"conversation_id"`
	RequestedAt    time.Time `json:"requested_at"`
}
