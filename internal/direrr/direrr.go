// Package direrr defines the per-request error kinds the dispatcher
// turns into HTTP status codes. No component below the dispatcher writes
// to an http.ResponseWriter directly; they return one of these instead.
package direrr

import "fmt"

// Kind identifies which HTTP status a per-request error maps to.
type Kind int

const (
	// KindMalformedPath maps to 400: the request path failed C1
	// normalization (bad percent-encoding or a traversal attempt).
	KindMalformedPath Kind = iota
	// KindNoMatch maps to 404: no interaction scored a perfect match.
	KindNoMatch
	// KindInternal maps to 500: never expected in normal operation;
	// logged at error level before responding.
	KindInternal
	// KindCancelled means the client disconnected mid-request; the
	// dispatcher swallows it silently and writes nothing.
	KindCancelled
	// KindTimeout maps to 503: the configured per-request deadline
	// elapsed before a winner was picked.
	KindTimeout
)

// Error is a per-request error carrying the Kind that determines its
// HTTP status, plus a message for logs and diagnostic bodies.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// MalformedPath builds a KindMalformedPath error.
func MalformedPath(format string, args ...any) error {
	return &Error{Kind: KindMalformedPath, Msg: fmt.Sprintf(format, args...)}
}

// NoMatch builds a KindNoMatch error.
func NoMatch(format string, args ...any) error {
	return &Error{Kind: KindNoMatch, Msg: fmt.Sprintf(format, args...)}
}

// Internal builds a KindInternal error.
func Internal(format string, args ...any) error {
	return &Error{Kind: KindInternal, Msg: fmt.Sprintf(format, args...)}
}

// Cancelled builds a KindCancelled error.
func Cancelled() error {
	return &Error{Kind: KindCancelled, Msg: "request cancelled"}
}

// Timeout builds a KindTimeout error.
func Timeout() error {
	return &Error{Kind: KindTimeout, Msg: "request deadline exceeded"}
}

// As extracts a *Error from err, if any, the way callers are expected to
// branch on Kind.
func As(err error) (*Error, bool) {
	de, ok := err.(*Error)
	return de, ok
}
