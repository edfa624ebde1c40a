// Package handler provides HTTP handlers for the API.
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

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	sessions *session.Registry
	logger   *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(sessions *session.Registry, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		sessions: sessions,
		logger:   log,
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mgr := h.sessions.For(middleware.GetUserID(ctx))

	sections, err := mgr.ListConversations(ctx)
	if err != nil {
		h.logger.Error("failed to list conversations")
		writeSessionError(w, err)
		return
	}

	total := 0
	for _, s := range sections {
		total += len(s.Conversations)
	}
	writeJSON(w, http.StatusOK, model.ListConversationsResponse{
		Sections: sections,
		Total:    total,
	})
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mgr := h.sessions.For(middleware.GetUserID(ctx))

	conv, err := mgr.CreateConversation(ctx)
	if err != nil {
		h.logger.Error("failed to create conversation")
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// Update handles PUT /api/v1/conversations/:id
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mgr := h.sessions.For(middleware.GetUserID(ctx))
	if err := mgr.RenameConversation(ctx, conversationID, req.Title); err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/v1/conversations/:id
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mgr := h.sessions.For(middleware.GetUserID(ctx))
	if err := mgr.DeleteConversation(ctx, conversationID); err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Select handles POST /api/v1/conversations/:id/select
func (h *ConversationHandler) Select(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mgr := h.sessions.For(middleware.GetUserID(ctx))
	msgs, err := mgr.SelectConversation(ctx, conversationID)
	if err != nil {
		// Cached content, if any, is still worth returning; the refresh
		// failure is reported via the manager's error field.
		h.logger.Warn("select refresh failed")
	}

	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Messages:    msgs,
		CanLoadMore: mgr.CanLoadMore(),
	})
}

// Summarize handles POST /api/v1/conversations/:id/summarize
func (h *ConversationHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mgr := h.sessions.For(middleware.GetUserID(ctx))
	mgr.SummarizeConversation(ctx, conversationID)

	w.WriteHeader(http.StatusAccepted)
}
