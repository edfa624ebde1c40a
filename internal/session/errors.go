package session

import (
	"errors"
	"fmt"

	"github.com/nomas-app/companion-platform/internal/model"
)

// ErrUnauthenticated is returned when no user identity is available for an
// operation that needs one.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrSendInFlight is returned when a send is attempted while another is
// still resolving for the same manager.
var ErrSendInFlight = errors.New("send already in flight")

// QuotaExceededError reports that the daily message quota has been used up.
// It carries the authoritative counter pair from the rejecting call.
type QuotaExceededError struct {
	Usage   model.Usage
	Message string
}

func (e *QuotaExceededError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("daily message limit reached (%d/%d)", e.Usage.Current, e.Usage.Limit)
}

// TransportError wraps a network or connection failure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError reports a non-2xx response from a collaborator.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

// DecodeError wraps a response body that did not match the expected shape.
// It is rolled back exactly like a server error.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
