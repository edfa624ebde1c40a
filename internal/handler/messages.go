package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nomas-app/companion-platform/internal/middleware"
	"github.com/nomas-app/companion-platform/internal/model"
	"github.com/nomas-app/companion-platform/internal/session"
	"github.com/nomas-app/companion-platform/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	sessions *session.Registry
	logger   *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(sessions *session.Registry, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		sessions: sessions,
		logger:   log,
	}
}

// List handles GET /api/v1/conversations/:id/messages
// ?load_more=true pages backward from the oldest loaded message.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	loadMore := r.URL.Query().Get("load_more") == "true"

	mgr := h.sessions.For(middleware.GetUserID(ctx))
	msgs, err := mgr.LoadMessages(ctx, conversationID, loadMore)
	if err != nil {
		h.logger.Error("failed to load messages")
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Messages:    msgs,
		CanLoadMore: mgr.CanLoadMore(),
	})
}

// Send handles POST /api/v1/conversations/:id/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mgr := h.sessions.For(middleware.GetUserID(ctx))
	resp, err := mgr.SendMessage(ctx, conversationID, req.Content)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if resp == nil {
		// Blank input or unknown conversation: the disabled-send-button
		// case, nothing happened.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Usage handles GET /api/v1/usage
func (h *MessageHandler) Usage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mgr := h.sessions.For(middleware.GetUserID(ctx))

	usage, err := mgr.Usage(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read usage")
		return
	}

	writeJSON(w, http.StatusOK, usage)
}
