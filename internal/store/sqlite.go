package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nomas-app/companion-platform/internal/model"
)

// SQLiteStore implements ConversationStore, MessageStore and UsageService
// on a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if necessary) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent readers alongside the writer.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		context_summary TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages(conversation_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS daily_usage (
		user_id TEXT NOT NULL,
		day TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, day)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// List retrieves all conversations owned by a user, newest-updated first.
func (s *SQLiteStore) List(ctx context.Context, userID string) ([]model.Conversation, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at, message_count, context_summary
		FROM conversations WHERE user_id = ? ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		var createdAt, updatedAt int64
		var summary sql.NullString

		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &createdAt, &updatedAt, &conv.MessageCount, &summary); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		conv.CreatedAt = time.UnixMilli(createdAt)
		conv.UpdatedAt = time.UnixMilli(updatedAt)
		conv.ContextSummary = summary.String
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// Insert creates a new conversation row.
func (s *SQLiteStore) Insert(ctx context.Context, conv *model.Conversation) error {
	query := `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at, message_count, context_summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID, conv.UserID, conv.Title,
		conv.CreatedAt.UnixMilli(), conv.UpdatedAt.UnixMilli(),
		conv.MessageCount, conv.ContextSummary,
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// Rename updates a conversation's title. Renaming is not activity:
// updated_at stays put so the recency buckets don't move.
func (s *SQLiteStore) Rename(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ? WHERE id = ?`,
		title, id)
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation not found")
	}
	return nil
}

// Touch bumps updated_at and adds delta to message_count.
func (s *SQLiteStore) Touch(ctx context.Context, id string, at time.Time, delta int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ?, message_count = message_count + ? WHERE id = ?`,
		at.UnixMilli(), delta, id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// Delete removes a conversation and its messages.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return tx.Commit()
}

// Query returns up to limit messages ordered newest-first, optionally only
// those strictly older than before.
func (s *SQLiteStore) Query(ctx context.Context, conversationID string, before *time.Time, limit int) ([]model.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at, token_count
		FROM messages WHERE conversation_id = ?`
	args := []any{conversationID}

	if before != nil {
		query += ` AND created_at < ?`
		args = append(args, before.UnixMilli())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var msg model.Message
		var createdAt int64

		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &createdAt, &msg.TokenCount); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.CreatedAt = time.UnixMilli(createdAt)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// InsertMessage persists a message.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, role, content, created_at, token_count)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.Role, msg.Content,
		msg.CreatedAt.UnixMilli(), msg.TokenCount,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecordTurn persists both sides of a completed exchange and bumps the
// conversation row in one transaction; a failure leaves no partial turn.
func (s *SQLiteStore) RecordTurn(ctx context.Context, conversationID string, userMsg, assistantMsg *model.Message, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin turn: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO messages (id, conversation_id, role, content, created_at, token_count)
		VALUES (?, ?, ?, ?, ?, ?)`
	for _, msg := range []*model.Message{userMsg, assistantMsg} {
		if _, err := tx.ExecContext(ctx, insert,
			msg.ID, msg.ConversationID, msg.Role, msg.Content,
			msg.CreatedAt.UnixMilli(), msg.TokenCount,
		); err != nil {
			return fmt.Errorf("insert turn message: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ?, message_count = message_count + 1 WHERE id = ?`,
		at.UnixMilli(), conversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit()
}

// IncrementDaily advances the user's counter for the current UTC day. The
// increment is unconditional; quota rejection is the exchange endpoint's
// job, the returned pair lets callers detect an overrun.
func (s *SQLiteStore) IncrementDaily(ctx context.Context, userID string, limit int) (model.Usage, error) {
	day := time.Now().UTC().Format("2006-01-02")

	query := `
		INSERT INTO daily_usage (user_id, day, count, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (user_id, day) DO UPDATE SET count = count + 1, updated_at = excluded.updated_at
		RETURNING count`

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, day, time.Now().UnixMilli()).Scan(&count)
	if err != nil {
		return model.Usage{}, fmt.Errorf("increment daily usage: %w", err)
	}
	return model.Usage{Current: count, Limit: limit}, nil
}

// CurrentDaily reads the counter without advancing it.
func (s *SQLiteStore) CurrentDaily(ctx context.Context, userID string, limit int) (model.Usage, error) {
	day := time.Now().UTC().Format("2006-01-02")

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM daily_usage WHERE user_id = ? AND day = ?`, userID, day).Scan(&count)
	if err == sql.ErrNoRows {
		return model.Usage{Current: 0, Limit: limit}, nil
	}
	if err != nil {
		return model.Usage{}, fmt.Errorf("read daily usage: %w", err)
	}
	return model.Usage{Current: count, Limit: limit}, nil
}
