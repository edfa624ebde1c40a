package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomas-app/companion-platform/internal/model"
	"github.com/nomas-app/companion-platform/internal/session"
)

func TestHTTPExchangerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req exchangeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "conv-1", req.ConversationID)
		assert.Equal(t, "hello", req.Message)

		json.NewEncoder(w).Encode(exchangeResponse{
			Message:    "hi there",
			TokensUsed: 17,
			Usage:      model.Usage{Current: 2, Limit: 50},
		})
	}))
	defer srv.Close()

	e := NewHTTP(srv.URL, "secret", srv.Client())
	reply, err := e.Exchange(context.Background(), "user-1", "conv-1", "hello")
	require.NoError(t, err)

	assert.Equal(t, "hi there", reply.Message)
	assert.Equal(t, 17, reply.TokensUsed)
	assert.Equal(t, model.Usage{Current: 2, Limit: 50}, reply.Usage)
}

func TestHTTPExchangerRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": "daily limit reached",
			"usage": model.Usage{Current: 50, Limit: 50},
		})
	}))
	defer srv.Close()

	e := NewHTTP(srv.URL, "secret", srv.Client())
	reply, err := e.Exchange(context.Background(), "user-1", "conv-1", "hello")
	assert.Nil(t, reply)

	var qerr *session.QuotaExceededError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "daily limit reached", qerr.Message)
	assert.Equal(t, model.Usage{Current: 50, Limit: 50}, qerr.Usage)
}

func TestHTTPExchangerServerError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "with error body", status: 500, body: `{"error":"upstream exploded"}`, wantMsg: "upstream exploded"},
		{name: "without error body", status: 502, body: `{}`, wantMsg: "Unknown error"},
		{name: "garbage body", status: 503, body: `not json`, wantMsg: "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			e := NewHTTP(srv.URL, "secret", srv.Client())
			_, err := e.Exchange(context.Background(), "user-1", "conv-1", "hello")

			var serr *session.ServerError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.status, serr.Status)
			assert.Equal(t, tt.wantMsg, serr.Message)
		})
	}
}

func TestHTTPExchangerDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	e := NewHTTP(srv.URL, "secret", srv.Client())
	_, err := e.Exchange(context.Background(), "user-1", "conv-1", "hello")

	var derr *session.DecodeError
	require.ErrorAs(t, err, &derr)
}

func TestHTTPExchangerTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	e := NewHTTP(srv.URL, "secret", nil)
	_, err := e.Exchange(context.Background(), "user-1", "conv-1", "hello")

	var terr *session.TransportError
	require.ErrorAs(t, err, &terr)
}
