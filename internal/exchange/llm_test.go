package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomas-app/companion-platform/internal/llm"
	"github.com/nomas-app/companion-platform/internal/model"
	"github.com/nomas-app/companion-platform/internal/session"
)

type fakeProvider struct {
	resp    *llm.CompletionResponse
	err     error
	lastReq *llm.CompletionRequest
}

func (f *fakeProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeProvider) Name() string { return "fake" }

// memMessages backs both the message queries and the turn recording.
type memMessages struct {
	mu      sync.Mutex
	msgs    []model.Message
	turns   map[string]int
	turnErr error
}

func (m *memMessages) Query(ctx context.Context, conversationID string, before *time.Time, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Message
	for i := len(m.msgs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.msgs[i].ConversationID == conversationID {
			out = append(out, m.msgs[i])
		}
	}
	return out, nil
}

func (m *memMessages) InsertMessage(ctx context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, *msg)
	return nil
}

func (m *memMessages) RecordTurn(ctx context.Context, conversationID string, userMsg, assistantMsg *model.Message, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.turnErr != nil {
		return m.turnErr
	}
	m.msgs = append(m.msgs, *userMsg, *assistantMsg)
	if m.turns == nil {
		m.turns = make(map[string]int)
	}
	m.turns[conversationID]++
	return nil
}

type memUsage struct {
	current int
}

func (m *memUsage) IncrementDaily(ctx context.Context, userID string, limit int) (model.Usage, error) {
	m.current++
	return model.Usage{Current: m.current, Limit: limit}, nil
}

func (m *memUsage) CurrentDaily(ctx context.Context, userID string, limit int) (model.Usage, error) {
	return model.Usage{Current: m.current, Limit: limit}, nil
}

func TestLLMExchangerRoundTrip(t *testing.T) {
	provider := &fakeProvider{resp: &llm.CompletionResponse{
		Content:   "One day at a time.",
		Model:     "fake-model",
		TokensIn:  12,
		TokensOut: 7,
	}}
	msgs := &memMessages{}
	usage := &memUsage{current: 4}

	e := NewLLM(provider, msgs, msgs, usage, 50, "")
	reply, err := e.Exchange(context.Background(), "user-1", "conv-1", "I'm struggling today")
	require.NoError(t, err)

	assert.Equal(t, "One day at a time.", reply.Message)
	assert.Equal(t, 7, reply.TokensUsed)
	assert.Equal(t, model.Usage{Current: 4, Limit: 50}, reply.Usage)

	// Both sides of the turn are persisted, user first.
	require.Len(t, msgs.msgs, 2)
	assert.Equal(t, model.RoleUser, msgs.msgs[0].Role)
	assert.Equal(t, "I'm struggling today", msgs.msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs.msgs[1].Role)
	assert.Equal(t, 7, msgs.msgs[1].TokenCount)
	assert.True(t, msgs.msgs[1].CreatedAt.After(msgs.msgs[0].CreatedAt))

	assert.Equal(t, 1, msgs.turns["conv-1"])

	// The prompt ends with the new user message.
	require.NotNil(t, provider.lastReq)
	last := provider.lastReq.Messages[len(provider.lastReq.Messages)-1]
	assert.Equal(t, string(model.RoleUser), last.Role)
	assert.Equal(t, "I'm struggling today", last.Content)
}

func TestLLMExchangerReplaysHistoryChronologically(t *testing.T) {
	provider := &fakeProvider{resp: &llm.CompletionResponse{Content: "ok"}}
	msgs := &memMessages{}
	base := time.Now().Add(-time.Hour)
	for i, content := range []string{"first", "second", "third"} {
		msgs.msgs = append(msgs.msgs, model.Message{
			ID:             content,
			ConversationID: "conv-1",
			Role:           model.RoleUser,
			Content:        content,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		})
	}

	e := NewLLM(provider, msgs, msgs, &memUsage{}, 50, "")
	_, err := e.Exchange(context.Background(), "user-1", "conv-1", "fourth")
	require.NoError(t, err)

	var contents []string
	for _, m := range provider.lastReq.Messages {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, contents)
}

func TestLLMExchangerProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("model overloaded")}
	msgs := &memMessages{}

	e := NewLLM(provider, msgs, msgs, &memUsage{}, 50, "")
	_, err := e.Exchange(context.Background(), "user-1", "conv-1", "hello")

	var serr *session.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Message, "model overloaded")
	assert.Empty(t, msgs.msgs, "nothing is persisted when the provider fails")
}

func TestLLMExchangerTurnRecordFailure(t *testing.T) {
	provider := &fakeProvider{resp: &llm.CompletionResponse{Content: "ok"}}
	msgs := &memMessages{turnErr: errors.New("disk full")}

	e := NewLLM(provider, msgs, msgs, &memUsage{}, 50, "")
	_, err := e.Exchange(context.Background(), "user-1", "conv-1", "hello")

	var terr *session.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Empty(t, msgs.msgs, "a failed turn record persists nothing")
	assert.Zero(t, msgs.turns["conv-1"])
}
