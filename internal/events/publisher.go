package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/nomas-app/companion-platform/internal/model"
	"github.com/nomas-app/companion-platform/pkg/logger"
)

const (
	// StreamName is the name of the companion stream.
	StreamName = "COMPANION"

	// SubjectPrefix is the prefix for all companion subjects.
	SubjectPrefix = "companion"
)

// Publisher publishes summarize jobs and conversation events. Both are best
// effort: failures are logged, never returned to the hot path.
type Publisher struct {
	client *Client
	logger *logger.Logger
}

// NewPublisher creates a publisher.
func NewPublisher(client *Client, log *logger.Logger) *Publisher {
	return &Publisher{client: client, logger: log}
}

// EnsureStream ensures the companion stream exists.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Summarize jobs and conversation failure events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// EventSubject returns the subject for a conversation event.
func EventSubject(userID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.events.%s.%s", SubjectPrefix, userID, eventType)
}

// SummarizeSubject returns the subject for a summarize job.
func SummarizeSubject(conversationID string) string {
	return fmt.Sprintf("%s.summarize.%s", SubjectPrefix, conversationID)
}

// Publish emits a conversation event.
func (p *Publisher) Publish(ctx context.Context, event model.ConversationEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshal conversation event failed", zap.Error(err))
		return
	}

	if _, err := p.client.JetStream().Publish(ctx, EventSubject(event.UserID, event.Type), payload); err != nil {
		p.logger.Warn("publish conversation event failed",
			zap.String("conversation_id", event.ConversationID),
			zap.Error(err))
	}
}

// Summarize enqueues a summary refresh for a conversation. The response is
// produced by an out-of-process worker and never consumed here.
func (p *Publisher) Summarize(ctx context.Context, conversationID string) error {
	payload, err := json.Marshal(model.SummarizeJob{
		ConversationID: conversationID,
		RequestedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal summarize job: %w", err)
	}

	if _, err := p.client.JetStream().Publish(ctx, SummarizeSubject(conversationID), payload); err != nil {
		return fmt.Errorf("publish summarize job: %w", err)
	}
	return nil
}
