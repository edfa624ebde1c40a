// Package exchange implements the chat exchange collaborators: a client
// for a remote chat edge function and a local LLM-backed equivalent.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nomas-app/companion-platform/internal/model"
	"github.com/nomas-app/companion-platform/internal/session"
)

// fallbackErrorMessage is used when a failing response carries no error
// string of its own.
const fallbackErrorMessage = "Unknown error"

type exchangeRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type exchangeResponse struct {
	Message    string      `json:"message"`
	TokensUsed int         `json:"tokens_used"`
	Usage      model.Usage `json:"usage"`
}

type exchangeError struct {
	Error string      `json:"error"`
	Usage model.Usage `json:"usage"`
}

// HTTPExchanger calls a remote chat endpoint over an authenticated channel.
type HTTPExchanger struct {
	endpoint string
	bearer   string
	client   *http.Client
}

// NewHTTP creates an exchanger for the given endpoint. A nil client falls
// back to http.DefaultClient.
func NewHTTP(endpoint, bearer string, client *http.Client) *HTTPExchanger {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExchanger{
		endpoint: endpoint,
		bearer:   bearer,
		client:   client,
	}
}

// Exchange posts the message and decodes the reply. Outcomes map onto the
// session error taxonomy: connection failures are transport errors, a 429
// is quota-exceeded with the server's usage pair, any other non-200 is a
// server error, and an unreadable 200 body is a decode error.
func (e *HTTPExchanger) Exchange(ctx context.Context, userID, conversationID, message string) (*session.Reply, error) {
	body, err := json.Marshal(exchangeRequest{
		ConversationID: conversationID,
		Message:        message,
	})
	if err != nil {
		return nil, &session.DecodeError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &session.TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.bearer)
	req.Header.Set("X-User-ID", userID)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &session.TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &session.TransportError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var out exchangeResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, &session.DecodeError{Err: err}
		}
		if out.Message == "" {
			return nil, &session.DecodeError{Err: fmt.Errorf("reply missing message field")}
		}
		return &session.Reply{
			Message:    out.Message,
			TokensUsed: out.TokensUsed,
			Usage:      out.Usage,
		}, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		var out exchangeError
		_ = json.Unmarshal(raw, &out)
		return nil, &session.QuotaExceededError{
			Usage:   out.Usage,
			Message: out.Error,
		}

	default:
		var out exchangeError
		_ = json.Unmarshal(raw, &out)
		msg := out.Error
		if msg == "" {
			msg = fallbackErrorMessage
		}
		return nil, &session.ServerError{
			Status:  resp.StatusCode,
			Message: msg,
		}
	}
}
