package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nomas-app/companion-platform/internal/session"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeSessionError maps the session error taxonomy onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	var qerr *session.QuotaExceededError
	var serr *session.ServerError
	var derr *session.DecodeError
	var terr *session.TransportError

	switch {
	case errors.Is(err, session.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, session.ErrSendInFlight):
		writeError(w, http.StatusConflict, "a send is already in progress")
	case errors.As(err, &qerr):
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": qerr.Error(),
			"usage": qerr.Usage,
		})
	case errors.As(err, &serr):
		writeError(w, http.StatusBadGateway, serr.Message)
	case errors.As(err, &derr):
		writeError(w, http.StatusBadGateway, derr.Error())
	case errors.As(err, &terr):
		writeError(w, http.StatusBadGateway, terr.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
