// Package errs defines the coded errors shared by the message pipeline.
// Every failure that can reach a conversation boundary carries one of the
// codes below so callers can pick the user-facing reply without string
// matching.
package errs

import (
	"errors"
	"fmt"
)

// Standard error codes for the application.
const (
	CodeUnknown        = "UNKNOWN"
	CodeParse          = "PARSE"
	CodeLowConfidence  = "LOW_CONFIDENCE"
	CodeTargetNotFound = "TARGET_NOT_FOUND"
	CodeCollaborator   = "COLLABORATOR"
	CodeRateLimited    = "RATE_LIMITED"
	CodeNotFound       = "NOT_FOUND"
	CodeDatabase       = "DATABASE"
	CodeConfig         = "CONFIG"
	CodeValidation     = "VALIDATION"
)

// ApplicationError is the interface that all our custom errors implement.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

// Error is the concrete coded error.
type Error struct {
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.err
}

// New returns an error with the given code.
func New(code, message string, cause error) error {
	return &Error{code: code, message: message, err: cause}
}

// Code returns the code of the first ApplicationError in err's chain,
// or CodeUnknown if there is none.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}

	return CodeUnknown
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && Code(err) == code
}

func NewParseError(message string, cause error) error {
	return New(CodeParse, message, cause)
}

func NewLowConfidenceError(intent string, confidence float64) error {
	return New(CodeLowConfidence, fmt.Sprintf("intent %q below threshold (%.2f)", intent, confidence), nil)
}

// NewTargetNotFoundError reports a named individual that could not be
// resolved in the current scope.
func NewTargetNotFoundError(name string) error {
	return New(CodeTargetNotFound, fmt.Sprintf("no member named %q", name), nil)
}

// NewCollaboratorError wraps a failure returned by an external store or
// service. The cause is for logs only and must never be shown to users.
func NewCollaboratorError(operation string, cause error) error {
	return New(CodeCollaborator, operation+" failed", cause)
}

func NewRateLimitedError(key string) error {
	return New(CodeRateLimited, "rate limited: "+key, nil)
}

func NewNotFoundError(message string) error {
	return New(CodeNotFound, message, nil)
}

func NewDatabaseError(message string, cause error) error {
	return New(CodeDatabase, message, cause)
}

func NewConfigError(message string, cause error) error {
	return New(CodeConfig, message, cause)
}

func NewValidationError(message string, cause error) error {
	return New(CodeValidation, message, cause)
}
