// Package transfererror defines the closed error taxonomy of the transfer
// engine. Every failure a strategy or the orchestrator reports is classified
// as one of these kinds so callers can branch on errors.As helpers instead of
// string matching.
package transfererror

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindToolUnavailable Kind = "TOOL_UNAVAILABLE"
	KindTimeout         Kind = "TIMEOUT"
	KindPartialBatch    Kind = "PARTIAL_BATCH_FAILURE"
	KindCancelled       Kind = "CANCELLED"
)

// Error is a classified transfer failure. OriginErr may be nil for failures
// synthesized by the engine itself (e.g. cancellation).
type Error struct {
	Kind      Kind
	Message   string
	OriginErr error
}

func (e *Error) Error() string {
	if e.OriginErr != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.OriginErr)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.OriginErr }

// New builds a classified error without a cause.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), OriginErr: err}
}

// KindOf extracts the classification, or "" for unclassified errors.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

func is(err error, kind Kind) bool { return KindOf(err) == kind }

func IsValidation(err error) bool      { return is(err, KindValidation) }
func IsToolUnavailable(err error) bool { return is(err, KindToolUnavailable) }
func IsTimeout(err error) bool         { return is(err, KindTimeout) }
func IsPartialBatch(err error) bool    { return is(err, KindPartialBatch) }
func IsCancelled(err error) bool       { return is(err, KindCancelled) }

// Fallbackable reports whether a direct-sync failure should be retried under
// the traditional strategy. Only tool unavailability and timeouts qualify.
func Fallbackable(err error) bool {
	return IsToolUnavailable(err) || IsTimeout(err)
}
