// Package session implements the conversational session manager: the
// authoritative in-memory view of one user's conversations and messages,
// daily quota enforcement, cursor pagination, and optimistic sends with
// rollback.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nomas-app/companion-platform/internal/model"
	"github.com/nomas-app/companion-platform/internal/store"
	"github.com/nomas-app/companion-platform/pkg/logger"
	"github.com/nomas-app/companion-platform/pkg/metrics"
)

const (
	// DefaultPageSize is the message page size for history loads.
	DefaultPageSize = 20

	// DefaultCacheSize bounds the per-conversation page cache.
	DefaultCacheSize = 16

	// sendTimeout caps a single send (usage increment + exchange) so a hung
	// remote call cannot leave the sending flag stuck.
	sendTimeout = 30 * time.Second
)

// Reply is the decoded result of a successful chat exchange.
type Reply struct {
	Message    string
	TokensUsed int
	Usage      model.Usage
}

// Exchanger performs the single remote exchange for a sent message. Failures
// must be reported as one of the session error types: *QuotaExceededError
// for a rate-limited exchange, *ServerError, *DecodeError or
// *TransportError otherwise.
type Exchanger interface {
	Exchange(ctx context.Context, userID, conversationID, message string) (*Reply, error)
}

// Summarizer refreshes a conversation's context summary. Best effort only.
type Summarizer interface {
	Summarize(ctx context.Context, conversationID string) error
}

// EventSink receives failure-path conversation events. Implementations must
// not block; errors are the sink's problem.
type EventSink interface {
	Publish(ctx context.Context, event model.ConversationEvent)
}

type cursor struct {
	oldestLoaded time.Time // zero when nothing is loaded
	canLoadMore  bool
}

// Manager owns conversation and message state for a single user session.
// All shared state is guarded by mu; remote calls run outside the lock and
// re-check the active conversation before applying results.
type Manager struct {
	userID   string
	limit    int
	pageSize int

	conversations store.ConversationStore
	messages      store.MessageStore
	usage         store.UsageService
	exchanger     Exchanger
	summarizer    Summarizer
	events        EventSink
	logger        *logger.Logger
	now           func() time.Time

	mu        sync.Mutex
	list      []model.Conversation
	sections  []model.Section
	activeID  string
	log       []model.Message
	cursor    cursor
	cache     *pageCache
	usageSnap model.Usage
	lastError string

	listing bool
	loading bool
	sending bool
}

// Config carries a Manager's collaborators and tuning.
type Config struct {
	UserID        string
	DailyLimit    int
	PageSize      int
	CacheSize     int
	Conversations store.ConversationStore
	Messages      store.MessageStore
	Usage         store.UsageService
	Exchanger     Exchanger
	Summarizer    Summarizer
	Events        EventSink
	Logger        *logger.Logger
	Now           func() time.Time
}

// NewManager creates a session manager for one user.
func NewManager(cfg Config) *Manager {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}

	return &Manager{
		userID:        cfg.UserID,
		limit:         cfg.DailyLimit,
		pageSize:      cfg.PageSize,
		conversations: cfg.Conversations,
		messages:      cfg.Messages,
		usage:         cfg.Usage,
		exchanger:     cfg.Exchanger,
		summarizer:    cfg.Summarizer,
		events:        cfg.Events,
		logger:        cfg.Logger.With(zap.String("user_id", cfg.UserID)),
		now:           cfg.Now,
		cache:         newPageCache(cfg.CacheSize),
		cursor:        cursor{canLoadMore: true},
		usageSnap:     model.Usage{Limit: cfg.DailyLimit},
	}
}

// ListConversations fetches the user's conversations and partitions them
// into recency sections. A call that overlaps an in-flight list is a no-op
// and returns the current sections without a duplicate fetch. On failure
// the previous sections are left untouched.
func (m *Manager) ListConversations(ctx context.Context) ([]model.Section, error) {
	if m.userID == "" {
		return nil, ErrUnauthenticated
	}

	m.mu.Lock()
	if m.listing {
		sections := m.sections
		m.mu.Unlock()
		return sections, nil
	}
	m.listing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.listing = false
		m.mu.Unlock()
	}()

	convs, err := m.conversations.List(ctx, m.userID)
	if err != nil {
		m.logger.Error("list conversations failed", zap.Error(err))
		m.setError(err.Error())
		m.mu.Lock()
		sections := m.sections
		m.mu.Unlock()
		return sections, fmt.Errorf("list conversations: %w", err)
	}

	m.mu.Lock()
	m.list = convs
	m.resortLocked()
	sections := m.sections
	m.mu.Unlock()

	return sections, nil
}

// CreateConversation inserts a fresh conversation titled "New Chat" and
// makes it active. The list is left unchanged on failure.
func (m *Manager) CreateConversation(ctx context.Context) (*model.Conversation, error) {
	if m.userID == "" {
		return nil, ErrUnauthenticated
	}

	now := m.now()
	conv := model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    m.userID,
		Title:     model.DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.conversations.Insert(ctx, &conv); err != nil {
		m.logger.Error("create conversation failed", zap.Error(err))
		m.setError(err.Error())
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	m.mu.Lock()
	// Most recently updated by construction, so it goes to the head.
	m.list = append([]model.Conversation{conv}, m.list...)
	m.resortLocked()
	m.activeID = conv.ID
	m.log = nil
	m.cursor = cursor{canLoadMore: true}
	m.mu.Unlock()

	m.logger.Info("conversation created", zap.String("conversation_id", conv.ID))
	return &conv, nil
}

// SelectConversation makes a conversation active, resets the pagination
// cursor, serves a cached page if one exists, then refreshes the first page
// in place. The returned messages reflect the refreshed state, or the
// cached page when the refresh fails.
func (m *Manager) SelectConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	m.mu.Lock()
	m.activeID = conversationID
	m.cursor = cursor{canLoadMore: true}
	if page, ok := m.cache.get(conversationID); ok {
		m.log = page
		metrics.PageCacheHits.Inc()
	} else {
		m.log = nil
	}
	m.mu.Unlock()

	return m.LoadMessages(ctx, conversationID, false)
}

// LoadMessages fetches a message page for a conversation. With loadMore
// false it replaces the log with the most recent page; with loadMore true
// it prepends the page strictly older than the oldest loaded message.
// Overlapping calls are no-ops; failures leave the log and cursor
// untouched.
func (m *Manager) LoadMessages(ctx context.Context, conversationID string, loadMore bool) ([]model.Message, error) {
	m.mu.Lock()
	if m.loading {
		snapshot := m.snapshotLocked()
		m.mu.Unlock()
		return snapshot, nil
	}

	if conversationID != m.activeID {
		if loadMore {
			// Stale pagination request for a conversation we navigated off.
			snapshot := m.snapshotLocked()
			m.mu.Unlock()
			return snapshot, nil
		}
		m.activeID = conversationID
		m.log = nil
		m.cursor = cursor{canLoadMore: true}
	}

	var before *time.Time
	if loadMore {
		if !m.cursor.canLoadMore || m.cursor.oldestLoaded.IsZero() {
			snapshot := m.snapshotLocked()
			m.mu.Unlock()
			return snapshot, nil
		}
		ts := m.cursor.oldestLoaded
		before = &ts
	}
	m.loading = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
	}()

	kind := "first"
	if loadMore {
		kind = "more"
	}
	metrics.PageLoads.WithLabelValues(kind).Inc()

	page, err := m.messages.Query(ctx, conversationID, before, m.pageSize)
	if err != nil {
		m.logger.Error("load messages failed",
			zap.String("conversation_id", conversationID),
			zap.Bool("load_more", loadMore),
			zap.Error(err))
		m.setError(err.Error())
		m.mu.Lock()
		snapshot := m.snapshotLocked()
		m.mu.Unlock()
		return snapshot, fmt.Errorf("load messages: %w", err)
	}

	// Newest-first from the store; flip to chronological for display.
	reverse(page)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeID != conversationID {
		// Navigated away mid-fetch; drop the result.
		return m.snapshotLocked(), nil
	}

	if loadMore {
		m.log = append(page, m.log...)
	} else {
		m.log = page
	}
	if len(m.log) > 0 {
		m.cursor.oldestLoaded = m.log[0].CreatedAt
	}
	if len(page) < m.pageSize {
		m.cursor.canLoadMore = false
	}
	m.cache.put(conversationID, m.log)

	return m.snapshotLocked(), nil
}

// SendMessage runs the full optimistic send sequence: increment the daily
// counter, append the user message and an assistant placeholder, perform
// exactly one exchange, then either confirm the placeholder in place or
// roll both entries back. Blank input and an unknown conversation are
// silent no-ops, mirroring a disabled send control. Sending into a
// conversation other than the selected one switches the active context to
// it first; the selected conversation's log is never touched by another
// conversation's send.
func (m *Manager) SendMessage(ctx context.Context, conversationID, text string) (*model.SendMessageResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if m.userID == "" {
		return nil, ErrUnauthenticated
	}
	if !m.hasConversation(conversationID) {
		return nil, nil
	}

	m.mu.Lock()
	if m.sending {
		m.mu.Unlock()
		return nil, ErrSendInFlight
	}
	m.sending = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.sending = false
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	// The counter moves before anything else becomes network-visible for
	// this message; its result is the only trusted (current, limit) pair.
	usage, err := m.usage.IncrementDaily(ctx, m.userID, m.limit)
	if err != nil {
		m.logger.Error("usage increment failed", zap.Error(err))
		terr := &TransportError{Err: err}
		m.setError(terr.Error())
		return nil, terr
	}
	m.setUsage(usage)

	if usage.Exceeded() {
		// The server is the enforcement point; tripping this guard means
		// its quota system let one through.
		m.logger.Warn("client-side quota guard tripped",
			zap.Int("current", usage.Current),
			zap.Int("limit", usage.Limit))
		metrics.QuotaRejections.Inc()
		qerr := &QuotaExceededError{Usage: usage}
		m.publishEvent(ctx, conversationID, model.EventTypeQuotaTrip, qerr.Error())
		m.setError(qerr.Error())
		return nil, qerr
	}

	now := m.now()
	userMsg := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Content:        text,
		CreatedAt:      now,
	}
	placeholder := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Content:        "",
		CreatedAt:      now,
	}

	m.mu.Lock()
	if conversationID != m.activeID {
		// The target isn't selected: adopt it, the same context switch
		// LoadMessages performs.
		m.activeID = conversationID
		if page, ok := m.cache.get(conversationID); ok {
			m.log = page
		} else {
			m.log = nil
		}
		m.cursor = cursor{canLoadMore: true}
	}
	m.log = append(m.log, userMsg, placeholder)
	m.bumpConversationLocked(conversationID, now)
	m.cache.put(conversationID, m.log)
	m.mu.Unlock()

	start := m.now()
	reply, err := m.exchanger.Exchange(ctx, m.userID, conversationID, text)
	if err != nil {
		m.rollback(userMsg.ID, placeholder.ID, conversationID)
		return nil, m.resolveExchangeFailure(ctx, conversationID, start, err)
	}
	if reply == nil {
		m.rollback(userMsg.ID, placeholder.ID, conversationID)
		derr := &DecodeError{Err: errors.New("empty exchange reply")}
		m.setError(derr.Error())
		metrics.RecordExchange("decode_error", m.now().Sub(start).Seconds())
		return nil, derr
	}

	m.mu.Lock()
	confirmed := placeholder
	confirmed.Content = reply.Message
	confirmed.TokenCount = reply.TokensUsed
	if conversationID == m.activeID {
		for i := range m.log {
			if m.log[i].ID == placeholder.ID {
				m.log[i] = confirmed
				break
			}
		}
		m.cache.put(conversationID, m.log)
	} else if page, ok := m.cache.get(conversationID); ok {
		// Navigated away mid-exchange: confirm in the cached page only.
		for i := range page {
			if page[i].ID == placeholder.ID {
				page[i] = confirmed
				break
			}
		}
		m.cache.put(conversationID, page)
	}
	m.usageSnap = reply.Usage
	m.mu.Unlock()

	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()
	metrics.RecordExchange("success", m.now().Sub(start).Seconds())

	return &model.SendMessageResponse{
		UserMessage:      userMsg,
		AssistantMessage: confirmed,
		Usage:            reply.Usage,
	}, nil
}

// SummarizeConversation kicks off a best-effort summary refresh. Failures
// are logged and never surfaced; the call returns immediately.
func (m *Manager) SummarizeConversation(ctx context.Context, conversationID string) {
	if m.summarizer == nil {
		return
	}

	// Detach from the caller so navigating away doesn't cancel the job.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	go func() {
		defer cancel()
		if err := m.summarizer.Summarize(bg, conversationID); err != nil {
			m.logger.Warn("summarize failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err))
		}
	}()
}

// RenameConversation updates a conversation's title.
func (m *Manager) RenameConversation(ctx context.Context, conversationID, title string) error {
	if err := m.conversations.Rename(ctx, conversationID, title); err != nil {
		m.setError(err.Error())
		return fmt.Errorf("rename conversation: %w", err)
	}

	m.mu.Lock()
	for i := range m.list {
		if m.list[i].ID == conversationID {
			m.list[i].Title = title
			break
		}
	}
	m.resortLocked()
	m.mu.Unlock()
	return nil
}

// DeleteConversation removes a conversation, its messages and cached page.
func (m *Manager) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := m.conversations.Delete(ctx, conversationID); err != nil {
		m.setError(err.Error())
		return fmt.Errorf("delete conversation: %w", err)
	}

	m.mu.Lock()
	for i := range m.list {
		if m.list[i].ID == conversationID {
			m.list = append(m.list[:i], m.list[i+1:]...)
			break
		}
	}
	m.resortLocked()
	m.cache.drop(conversationID)
	if m.activeID == conversationID {
		m.activeID = ""
		m.log = nil
		m.cursor = cursor{canLoadMore: true}
	}
	m.mu.Unlock()
	return nil
}

// Usage returns the last authoritative usage pair, fetching the current
// value when none has been observed yet this session.
func (m *Manager) Usage(ctx context.Context) (model.Usage, error) {
	m.mu.Lock()
	snap := m.usageSnap
	m.mu.Unlock()
	if snap.Current > 0 {
		return snap, nil
	}

	usage, err := m.usage.CurrentDaily(ctx, m.userID, m.limit)
	if err != nil {
		return snap, fmt.Errorf("read usage: %w", err)
	}
	m.setUsage(usage)
	return usage, nil
}

// Sections returns the current bucketed conversation list.
func (m *Manager) Sections() []model.Section {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sections
}

// Messages returns a snapshot of the active conversation's log.
func (m *Manager) Messages() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// CanLoadMore reports whether older history remains for the active
// conversation.
func (m *Manager) CanLoadMore() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor.canLoadMore
}

// ActiveConversation returns the active conversation id, empty when none.
func (m *Manager) ActiveConversation() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// IsSending reports whether a send is resolving.
func (m *Manager) IsSending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sending
}

// LastError returns the most recent error message. It is overwritten by
// each new error and cleared only by ClearError.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// ClearError clears the error message.
func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = ""
}

func (m *Manager) resolveExchangeFailure(ctx context.Context, conversationID string, start time.Time, err error) error {
	elapsed := m.now().Sub(start).Seconds()

	var qerr *QuotaExceededError
	if errors.As(err, &qerr) {
		// Rate-limited exchange: the 429 payload carries the usage pair.
		m.setUsage(qerr.Usage)
		metrics.SendsRolledBack.WithLabelValues("rate_limit").Inc()
		metrics.RecordExchange("rate_limit", elapsed)
		m.publishEvent(ctx, conversationID, model.EventTypeRateLimit, qerr.Error())
		m.setError(qerr.Error())
		return err
	}

	reason := "server_error"
	var derr *DecodeError
	var terr *TransportError
	switch {
	case errors.As(err, &derr):
		reason = "decode_error"
	case errors.As(err, &terr):
		reason = "transport_error"
	}
	metrics.SendsRolledBack.WithLabelValues(reason).Inc()
	metrics.RecordExchange(reason, elapsed)
	m.publishEvent(ctx, conversationID, model.EventTypeRollback, err.Error())
	m.setError(err.Error())
	m.logger.Error("exchange failed, rolled back",
		zap.String("conversation_id", conversationID),
		zap.Error(err))
	return err
}

// rollback removes both optimistic entries; they cease to exist rather than
// being marked failed. The usage increment is deliberately not reverted.
// When the conversation is no longer selected, only its cached page is
// touched.
func (m *Manager) rollback(userMsgID, placeholderID, conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conversationID == m.activeID {
		kept := m.log[:0]
		for _, msg := range m.log {
			if msg.ID == userMsgID || msg.ID == placeholderID {
				continue
			}
			kept = append(kept, msg)
		}
		m.log = kept
		m.cache.put(conversationID, m.log)
		return
	}

	page, ok := m.cache.get(conversationID)
	if !ok {
		return
	}
	kept := page[:0]
	for _, msg := range page {
		if msg.ID == userMsgID || msg.ID == placeholderID {
			continue
		}
		kept = append(kept, msg)
	}
	m.cache.put(conversationID, kept)
}

func (m *Manager) bumpConversationLocked(conversationID string, at time.Time) {
	for i := range m.list {
		if m.list[i].ID == conversationID {
			m.list[i].UpdatedAt = at
			m.list[i].MessageCount++
			break
		}
	}
	m.resortLocked()
}

func (m *Manager) resortLocked() {
	sort.SliceStable(m.list, func(i, j int) bool {
		return m.list[i].UpdatedAt.After(m.list[j].UpdatedAt)
	})
	m.sections = Bucketize(m.list, m.now())
}

func (m *Manager) hasConversation(conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.list {
		if m.list[i].ID == conversationID {
			return true
		}
	}
	return false
}

func (m *Manager) snapshotLocked() []model.Message {
	out := make([]model.Message, len(m.log))
	copy(out, m.log)
	return out
}

func (m *Manager) setError(msg string) {
	m.mu.Lock()
	m.lastError = msg
	m.mu.Unlock()
}

func (m *Manager) setUsage(u model.Usage) {
	m.mu.Lock()
	m.usageSnap = u
	m.mu.Unlock()
}

func (m *Manager) publishEvent(ctx context.Context, conversationID string, typ model.EventType, reason string) {
	if m.events == nil {
		return
	}
	m.events.Publish(ctx, model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		UserID:         m.userID,
		Type:           typ,
		Reason:         reason,
		CreatedAt:      m.now(),
	})
}

func reverse(msgs []model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
