package services

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for callers. The HTTP layer maps kinds to
// status codes; everything else only needs errors.As.
type Kind string

const (
	KindValidation   Kind = "ValidationError"
	KindVerification Kind = "VerificationFailure"
	KindDuplicate    Kind = "DuplicateConflict"
	KindRateLimited  Kind = "RateLimited"
	KindAbuse        Kind = "AbuseDetected"
	KindUnreadable   Kind = "UnreadableImage"
	KindUpstream     Kind = "UpstreamUnavailable"
	KindNotFound     Kind = "NotFound"
	KindUnexpected   Kind = "UnexpectedFailure"
)

type Error struct {
	Kind    Kind
	Field   string
	Message string
	ResetAt *time.Time
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind carried by err, or KindUnexpected for anything
// that was never classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

func validationError(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func rateLimited(resetAt time.Time) *Error {
	return &Error{Kind: KindRateLimited, Message: "too many requests", ResetAt: &resetAt}
}

func unexpected(op string, err error) *Error {
	return &Error{Kind: KindUnexpected, Message: op, Err: err}
}
