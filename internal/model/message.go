package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single conversation message. Assistant placeholders
// awaiting a reply carry empty content and a zero token count.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	TokenCount     int       `json:"token_count"`
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageResponse is the response after a successful send.
type SendMessageResponse struct {
	UserMessage      Message `json:"user_message"`
	AssistantMessage Message `json:"assistant_message"`
	Usage            Usage   `json:"usage"`
}

// ListMessagesResponse is the response for loading a message page.
type ListMessagesResponse struct {
	Messages    []Message `json:"messages"`
	CanLoadMore bool      `json:"can_load_more"`
}
