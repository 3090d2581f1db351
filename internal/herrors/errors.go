// Package herrors defines the error-kind taxonomy shared across the
// knowledge pipeline and retrieval engine. Components wrap underlying
// causes with fmt.Errorf("...: %w", err) as they propagate; herrors adds
// a classification on top so callers (the queue, the query façade) can
// branch on kind without inspecting message text.
package herrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error independent of which component raised it.
type Kind string

const (
	KindDuplicate      Kind = "duplicate"
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindUpstream       Kind = "upstream"
	KindRateLimited    Kind = "rate_limited"
	KindUnauthenticated Kind = "unauthenticated"
	KindUnsupported    Kind = "unsupported"
	KindTimeout        Kind = "timeout"
	KindTransient      Kind = "transient"
	KindFatal          Kind = "fatal"
)

// Error is a classified error. Details carries optional diagnostic
// key/values (e.g. retry-after seconds) that callers may want to log
// without parsing the message.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, herrors.Duplicate) style sentinel checks by
// comparing kinds when the target is also an *Error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetail returns a shallow copy of e with a detail key set, so
// call sites can chain: herrors.New(...).WithDetail("retry_after", d)
func (e *Error) WithDetail(key string, value any) *Error {
	out := *e
	out.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return &out
}

// Sentinel values for errors.Is comparisons where no message/cause is needed.
var (
	Duplicate      = New(KindDuplicate, "duplicate")
	NotFound       = New(KindNotFound, "not found")
	Unsupported    = New(KindUnsupported, "unsupported operation")
	Unauthenticated = New(KindUnauthenticated, "unauthenticated")
)

// OfKind reports whether err (or something it wraps) has the given kind.
func OfKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
