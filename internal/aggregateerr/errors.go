// Package aggregateerr defines the error kinds surfaced by the
// aggregation and caching engine, per the propagation policy: every
// refresh task swallows errors at its outermost scope, and the only
// kinds allowed to escape a user-facing read path are
// UpstreamUnavailable (with no cache to fall back to) and InvalidHeight.
package aggregateerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on it
// (the API adapter, primarily) without string-matching messages.
type Kind int

const (
	// KindUnknown is the zero value; Is/As never match it.
	KindUnknown Kind = iota
	// KindUpstreamUnavailable means every configured base URL failed
	// within one rotation cycle.
	KindUpstreamUnavailable
	// KindInvalidHeight means the requested height precedes the
	// epoch's effective start.
	KindInvalidHeight
	// KindNotFound means a participant or epoch has no representation
	// upstream or in cache.
	KindNotFound
	// KindDataInvariantBroken means a record failed a structural
	// invariant (e.g. a bech32 decode) and was skipped.
	KindDataInvariantBroken
	// KindCacheCorruption means a cached JSON column failed to parse.
	KindCacheCorruption
)

func (k Kind) String() string {
	switch k {
	case KindUpstreamUnavailable:
		return "UpstreamUnavailable"
	case KindInvalidHeight:
		return "InvalidHeight"
	case KindNotFound:
		return "NotFound"
	case KindDataInvariantBroken:
		return "DataInvariantBroken"
	case KindCacheCorruption:
		return "CacheCorruption"
	default:
		return "Unknown"
	}
}

// Error is a Kind-tagged, wrap-preserving error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error wrapping err (which may be nil).
func New(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
