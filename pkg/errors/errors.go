// Package errors provides structured error handling for the iotc client.
// It defines the error taxonomy (usage, authentication, response, config),
// the CLI exit code for each category, and helpers for adding context,
// details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes, one per error category.
const (
	ExitSuccess  = 0 // Successful execution
	ExitGeneral  = 1 // General/unknown error, transport failures
	ExitUsage    = 2 // Invalid or missing arguments
	ExitAuth     = 3 // Credentials rejected or session expired
	ExitNotFound = 4 // Resource not found
	ExitConflict = 5 // Resource already exists or is in use
	ExitResponse = 6 // Any other non-success API response
	ExitConfig   = 7 // Local configuration could not be read or written
)

// IotcError is the structured error type for the iotc client.
type IotcError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *IotcError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *IotcError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for IotcError.
func (e *IotcError) Is(target error) bool {
	var t *IotcError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &IotcError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	// ErrUsage is a local, pre-network argument check failure. Never retried.
	ErrUsage = &IotcError{
		Code:     "USAGE_ERROR",
		Message:  "invalid usage",
		ExitCode: ExitUsage,
	}

	// ErrAuthentication covers rejected credentials, HTTP 401 and locally
	// expired sessions. The caller is expected to authenticate again.
	ErrAuthentication = &IotcError{
		Code:     "AUTHENTICATION_FAILED",
		Message:  "authentication failed",
		ExitCode: ExitAuth,
	}

	// ErrResponse is any non-success HTTP status not covered by a more
	// specific sentinel.
	ErrResponse = &IotcError{
		Code:     "RESPONSE_ERROR",
		Message:  "the server returned an error",
		ExitCode: ExitResponse,
	}

	ErrNotFound = &IotcError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	ErrConflict = &IotcError{
		Code:     "CONFLICT",
		Message:  "resource conflict",
		ExitCode: ExitConflict,
	}

	ErrMalformedResponse = &IotcError{
		Code:     "MALFORMED_RESPONSE",
		Message:  "malformed API response",
		ExitCode: ExitResponse,
	}

	ErrSingleValueExpected = &IotcError{
		Code:     "SINGLE_VALUE_EXPECTED",
		Message:  "expected a single value but the server returned several",
		ExitCode: ExitResponse,
	}

	ErrNetwork = &IotcError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitGeneral,
	}

	// ErrConfig is a persistence failure. Non-fatal for session operations.
	ErrConfig = &IotcError{
		Code:     "CONFIG_ERROR",
		Message:  "configuration could not be read or written",
		ExitCode: ExitConfig,
	}

	ErrConfigInvalid = &IotcError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitConfig,
	}

	ErrUnknownConfigKey = &IotcError{
		Code:     "UNKNOWN_CONFIG_KEY",
		Message:  "unknown config key",
		ExitCode: ExitUsage,
	}
)

// New creates a new IotcError with the given code and message.
func New(code, message string) *IotcError {
	return &IotcError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var ie *IotcError
	if errors.As(err, &ie) {
		return &IotcError{
			Code:       ie.Code,
			Message:    fmt.Sprintf("%s: %s", msg, ie.Message),
			Details:    ie.Details,
			Suggestion: ie.Suggestion,
			Cause:      ie.Cause,
			ExitCode:   ie.ExitCode,
		}
	}

	return &IotcError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithMessage returns a copy of err carrying a new message but the same
// code and exit code, so errors.Is still matches the original sentinel.
func WithMessage(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var ie *IotcError
	if errors.As(err, &ie) {
		return &IotcError{
			Code:       ie.Code,
			Message:    msg,
			Details:    ie.Details,
			Suggestion: ie.Suggestion,
			Cause:      ie.Cause,
			ExitCode:   ie.ExitCode,
		}
	}

	return &IotcError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause returns a copy of err with cause attached as the underlying error.
func WithCause(err, cause error) error {
	if err == nil {
		return nil
	}

	var ie *IotcError
	if errors.As(err, &ie) {
		return &IotcError{
			Code:       ie.Code,
			Message:    ie.Message,
			Details:    ie.Details,
			Suggestion: ie.Suggestion,
			Cause:      cause,
			ExitCode:   ie.ExitCode,
		}
	}

	return fmt.Errorf("%w: %w", err, cause)
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var ie *IotcError
	if errors.As(err, &ie) {
		return &IotcError{
			Code:       ie.Code,
			Message:    ie.Message,
			Details:    details,
			Suggestion: ie.Suggestion,
			Cause:      ie.Cause,
			ExitCode:   ie.ExitCode,
		}
	}

	return &IotcError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var ie *IotcError
	if errors.As(err, &ie) {
		return &IotcError{
			Code:       ie.Code,
			Message:    ie.Message,
			Details:    ie.Details,
			Suggestion: suggestion,
			Cause:      ie.Cause,
			ExitCode:   ie.ExitCode,
		}
	}

	return &IotcError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// Detail returns the named detail of an IotcError, or "" when absent.
func Detail(err error, key string) string {
	var ie *IotcError
	if errors.As(err, &ie) && ie.Details != nil {
		return ie.Details[key]
	}
	return ""
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ie *IotcError
	if errors.As(err, &ie) {
		return ie.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var ie *IotcError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
