package cmdgate

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateIdentifier = errors.New("cmdgate: duplicate connection identifier")
	ErrUnknownIdentifier   = errors.New("cmdgate: connection identifier does not exist")
	ErrInvalidHeader       = errors.New("cmdgate: invalid header")
	ErrInvalidMode         = errors.New("cmdgate: invalid connection mode")
	ErrNilConnection       = errors.New("cmdgate: connection is nil")
	ErrNilCommand          = errors.New("cmdgate: command is nil")
	ErrRegistryClosed      = errors.New("cmdgate: registry is closed")

	// ErrNotConnected is returned by transports asked for a channel before Connect.
	ErrNotConnected = errors.New("cmdgate: not connected")
)

// DuplicateIdentifierError is returned when an identifier is registered twice.
type DuplicateIdentifierError struct {
	Identifier string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("cmdgate: duplicate connection identifier %q", e.Identifier)
}

func (e *DuplicateIdentifierError) Is(target error) bool {
	return target == ErrDuplicateIdentifier
}

// LookupError is returned when a dispatch names an identifier that was never registered.
type LookupError struct {
	Identifier string // resolved identifier, including any test prefix
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("cmdgate: connection identifier %q does not exist", e.Identifier)
}

func (e *LookupError) Is(target error) bool {
	return target == ErrUnknownIdentifier
}

// TransportError wraps a failure reported by a Connection or Channel.
type TransportError struct {
	Op         string // connect, channel, publish, close or disconnect
	Identifier string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cmdgate: %s on %q: %v", e.Op, e.Identifier, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HeaderError reports a header value outside the permitted set.
type HeaderError struct {
	Key    string
	Reason string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("cmdgate: invalid header %q: %s", e.Key, e.Reason)
}

func (e *HeaderError) Is(target error) bool {
	return target == ErrInvalidHeader
}

// SerializationError wraps a failure of Command.Payload.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cmdgate: serialize command: %v", e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// Outcome classifies a dispatch result for metrics and tracing.
func Outcome(err error) string {
	var (
		transportErr *TransportError
		serialErr    *SerializationError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDuplicateIdentifier):
		return "duplicate"
	case errors.Is(err, ErrUnknownIdentifier):
		return "unknown_identifier"
	case errors.Is(err, ErrInvalidHeader):
		return "invalid_header"
	case errors.As(err, &serialErr):
		return "serialization"
	case errors.As(err, &transportErr):
		return "transport"
	default:
		return "error"
	}
}
