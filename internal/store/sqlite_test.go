package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomas-app/companion-platform/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertConv(t *testing.T, s *SQLiteStore, userID string, updated time.Time) model.Conversation {
	t.Helper()

	conv := model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Title:     model.DefaultTitle,
		CreatedAt: updated,
		UpdatedAt: updated,
	}
	require.NoError(t, s.Insert(context.Background(), &conv))
	return conv
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	older := insertConv(t, s, "user-1", now.Add(-time.Hour))
	newer := insertConv(t, s, "user-1", now)
	insertConv(t, s, "user-2", now)

	convs, err := s.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, convs, 2, "other users' conversations are invisible")
	assert.Equal(t, newer.ID, convs[0].ID, "ordered by updated_at descending")
	assert.Equal(t, older.ID, convs[1].ID)

	require.NoError(t, s.Rename(ctx, older.ID, "Check-in"))

	convs, err = s.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, convs[0].ID, "rename must not reorder the list")
	assert.Equal(t, older.UpdatedAt.UnixMilli(), convs[1].UpdatedAt.UnixMilli(), "rename must not bump updated_at")

	require.NoError(t, s.Touch(ctx, older.ID, now.Add(time.Minute), 1))

	convs, err = s.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, older.ID, convs[0].ID, "touch reorders the list")
	assert.Equal(t, "Check-in", convs[0].Title)
	assert.Equal(t, 1, convs[0].MessageCount)

	require.NoError(t, s.Delete(ctx, older.ID))
	convs, err = s.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, convs, 1)

	assert.Error(t, s.Rename(ctx, older.ID, "gone"))
}

func TestMessageQueryCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv := insertConv(t, s, "user-1", time.Now())

	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	for i := 0; i < 30; i++ {
		msg := model.Message{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: conv.ID,
			Role:           model.RoleUser,
			Content:        "m",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.InsertMessage(ctx, &msg))
	}

	first, err := s.Query(ctx, conv.ID, nil, 20)
	require.NoError(t, err)
	require.Len(t, first, 20)
	assert.True(t, first[0].CreatedAt.After(first[19].CreatedAt), "newest first")

	oldest := first[19].CreatedAt
	second, err := s.Query(ctx, conv.ID, &oldest, 20)
	require.NoError(t, err)
	require.Len(t, second, 10)
	for _, m := range second {
		assert.True(t, m.CreatedAt.Before(oldest), "cursor page must be strictly older")
	}

	exhausted, err := s.Query(ctx, conv.ID, &second[9].CreatedAt, 20)
	require.NoError(t, err)
	assert.Empty(t, exhausted)
}

func TestDeleteRemovesMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv := insertConv(t, s, "user-1", time.Now())

	msg := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        "m",
		CreatedAt:      time.Now(),
	}
	require.NoError(t, s.InsertMessage(ctx, &msg))
	require.NoError(t, s.Delete(ctx, conv.ID))

	msgs, err := s.Query(ctx, conv.ID, nil, 20)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRecordTurn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv := insertConv(t, s, "user-1", time.Now().Add(-time.Hour))

	now := time.Now().Truncate(time.Millisecond)
	user := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        "hi",
		CreatedAt:      now,
	}
	assistant := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Content:        "hello",
		CreatedAt:      now.Add(time.Millisecond),
		TokenCount:     3,
	}
	require.NoError(t, s.RecordTurn(ctx, conv.ID, &user, &assistant, now))

	msgs, err := s.Query(ctx, conv.ID, nil, 20)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	convs, err := s.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, convs[0].MessageCount)
	assert.Equal(t, now.UnixMilli(), convs[0].UpdatedAt.UnixMilli())

	// A collision on the assistant id fails the whole turn: neither message
	// lands and the counters stay put.
	nextUser := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        "again",
		CreatedAt:      now.Add(time.Second),
	}
	require.Error(t, s.RecordTurn(ctx, conv.ID, &nextUser, &assistant, now.Add(time.Second)))

	msgs, err = s.Query(ctx, conv.ID, nil, 20)
	require.NoError(t, err)
	assert.Len(t, msgs, 2, "a failed turn must not persist either message")

	convs, err = s.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, convs[0].MessageCount)
}

func TestDailyUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	usage, err := s.CurrentDaily(ctx, "user-1", 50)
	require.NoError(t, err)
	assert.Equal(t, model.Usage{Current: 0, Limit: 50}, usage)

	for i := 1; i <= 3; i++ {
		usage, err = s.IncrementDaily(ctx, "user-1", 50)
		require.NoError(t, err)
		assert.Equal(t, i, usage.Current)
		assert.Equal(t, 50, usage.Limit)
	}

	// Counters are per user.
	usage, err = s.IncrementDaily(ctx, "user-2", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Current)

	usage, err = s.CurrentDaily(ctx, "user-1", 50)
	require.NoError(t, err)
	assert.Equal(t, 3, usage.Current)
}
