package exchange

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nomas-app/companion-platform/internal/llm"
	"github.com/nomas-app/companion-platform/internal/model"
	"github.com/nomas-app/companion-platform/internal/session"
	"github.com/nomas-app/companion-platform/internal/store"
	"github.com/nomas-app/companion-platform/pkg/metrics"
)

// historyWindow is how many recent messages are replayed as completion
// context.
const historyWindow = 50

// LLMExchanger serves exchanges locally: it replays recent history into an
// LLM provider, persists both sides of the turn, and reports the
// authoritative usage pair.
type LLMExchanger struct {
	provider   llm.Client
	turns      store.TurnStore
	messages   store.MessageStore
	usage      store.UsageService
	dailyLimit int
	model      string
}

// NewLLM creates a local exchanger.
func NewLLM(provider llm.Client, turns store.TurnStore, messages store.MessageStore, usage store.UsageService, dailyLimit int, model string) *LLMExchanger {
	return &LLMExchanger{
		provider:   provider,
		turns:      turns,
		messages:   messages,
		usage:      usage,
		dailyLimit: dailyLimit,
		model:      model,
	}
}

// Exchange completes the turn and makes it durable. Provider failures are
// reported as server errors (502); store failures as transport errors.
func (e *LLMExchanger) Exchange(ctx context.Context, userID, conversationID, message string) (*session.Reply, error) {
	history, err := e.messages.Query(ctx, conversationID, nil, historyWindow)
	if err != nil {
		return nil, &session.TransportError{Err: err}
	}

	// Newest-first from the store; the provider wants chronological.
	chat := make([]llm.ChatMessage, 0, len(history)+1)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Content == "" {
			continue
		}
		chat = append(chat, llm.ChatMessage{
			Role:    string(history[i].Role),
			Content: history[i].Content,
		})
	}
	chat = append(chat, llm.ChatMessage{Role: string(model.RoleUser), Content: message})

	resp, err := e.provider.Complete(ctx, &llm.CompletionRequest{
		Model:    e.model,
		Messages: chat,
	})
	if err != nil {
		return nil, &session.ServerError{
			Status:  http.StatusBadGateway,
			Message: err.Error(),
		}
	}
	metrics.RecordLLMTokens(resp.Model, resp.TokensIn, resp.TokensOut)

	now := time.Now()
	userMsg := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Content:        message,
		CreatedAt:      now,
	}
	assistantMsg := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Content:        resp.Content,
		CreatedAt:      now.Add(time.Millisecond),
		TokenCount:     resp.TokensOut,
	}

	// One transaction: a failure here must not leave half the turn durable
	// while the caller rolls its optimistic entries back.
	if err := e.turns.RecordTurn(ctx, conversationID, &userMsg, &assistantMsg, now); err != nil {
		return nil, &session.TransportError{Err: err}
	}

	usage, err := e.usage.CurrentDaily(ctx, userID, e.dailyLimit)
	if err != nil {
		return nil, &session.TransportError{Err: err}
	}

	return &session.Reply{
		Message:    resp.Content,
		TokensUsed: resp.TokensOut,
		Usage:      usage,
	}, nil
}
