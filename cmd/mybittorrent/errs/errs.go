// Package errs defines the closed set of failure kinds surfaced by the client.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide whether to retry or abort.
type Kind uint8

const (
	// Unknown is reported by KindOf for errors that did not originate here.
	Unknown Kind = iota
	// Parse covers malformed bytes: truncated input, bad tags, inconsistent lengths.
	Parse
	// Protocol covers semantic violations of the handshake or message sequence.
	Protocol
	// Network covers transport failures, including non-success HTTP statuses.
	Network
	// Integrity covers pieces whose hash does not match the descriptor.
	Integrity
)

func (k Kind) String() string {
	switch k {
	case Parse:
		return "parse error"
	case Protocol:
		return "protocol error"
	case Network:
		return "network error"
	case Integrity:
		return "integrity error"
	default:
		return "unknown error"
	}
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with the given kind.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf formats a message and wraps it with the given kind.
func Errorf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
