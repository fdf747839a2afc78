package signaling

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when an operation races the client's Close.
	ErrClosed = errors.New("signaling client closed")

	// ErrRelay wraps an error the relay reported back over the wire.
	ErrRelay = errors.New("relay error")
)

// RelayError carries the failing operation alongside the underlying error,
// so callers can match the cause with errors.Is while logs keep the context.
type RelayError struct {
	Op      string
	Room    string
	Err     error
	Details string
}

func (e *RelayError) Error() string {
	if e.Room != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Room, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

func newError(op string, err error) *RelayError {
	return &RelayError{Op: op, Err: err}
}

func newRoomError(op, room string, err error, details string) *RelayError {
	return &RelayError{Op: op, Room: room, Err: err, Details: details}
}
