package model

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes datahog failures.
type ErrorCode string

const (
	// CodeNotFound indicates a query for a missing node or edge.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeConstraintViolation indicates a record that breaks a state
	// constraint, such as a definition edge targeting a non-label node.
	CodeConstraintViolation ErrorCode = "CONSTRAINT_VIOLATION"

	// CodeMalformedTransaction indicates a structurally invalid transaction
	// or unparseable source data.
	CodeMalformedTransaction ErrorCode = "MALFORMED_TRANSACTION"

	// CodeSourceIO indicates a failure reading from or writing to a source.
	// It is never fatal to the world view as a whole.
	CodeSourceIO ErrorCode = "SOURCE_IO"

	// CodeReplay indicates log corruption during a rebuild. It is fatal.
	CodeReplay ErrorCode = "REPLAY"
)

// Error is the typed failure returned by datahog operations.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Subject names the affected entity or source, if any.
	Subject string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Subject != "" {
		msg += " (" + e.Subject + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, ErrNotFound)
// works for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Subject == ""
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound             = &Error{Code: CodeNotFound}
	ErrConstraintViolation  = &Error{Code: CodeConstraintViolation}
	ErrMalformedTransaction = &Error{Code: CodeMalformedTransaction}
	ErrSourceIO             = &Error{Code: CodeSourceIO}
	ErrReplay               = &Error{Code: CodeReplay}
)

// NotFound reports a missing node or edge.
func NotFound(subject string) *Error {
	return &Error{Code: CodeNotFound, Message: "not found", Subject: subject}
}

// ConstraintViolation reports a record that breaks a state constraint.
func ConstraintViolation(subject, format string, args ...any) *Error {
	return &Error{Code: CodeConstraintViolation, Message: fmt.Sprintf(format, args...), Subject: subject}
}

// Malformed reports a structurally invalid transaction.
func Malformed(err error) *Error {
	return &Error{Code: CodeMalformedTransaction, Message: "malformed transaction", Err: err}
}

// SourceIO wraps a source failure.
func SourceIO(source string, err error) *Error {
	return &Error{Code: CodeSourceIO, Message: "source i/o failed", Subject: source, Err: err}
}

// Replay wraps a failure that makes a rebuilt view untrustworthy.
func Replay(message string, err error) *Error {
	return &Error{Code: CodeReplay, Message: message, Err: err}
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound returns true if err is a not-found error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsConstraintViolation returns true if err is a constraint violation.
func IsConstraintViolation(err error) bool { return hasCode(err, CodeConstraintViolation) }

// IsMalformed returns true if err is a malformed-transaction error.
func IsMalformed(err error) bool { return hasCode(err, CodeMalformedTransaction) }

// IsSourceIO returns true if err is a source I/O error.
func IsSourceIO(err error) bool { return hasCode(err, CodeSourceIO) }

// IsReplay returns true if err is a replay error.
func IsReplay(err error) bool { return hasCode(err, CodeReplay) }
