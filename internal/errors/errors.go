// Package errors provides domain-specific error types and sentinel errors
// for improved error handling across the application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrLoginFailed indicates the username is unknown to Moodle or ambiguous.
	ErrLoginFailed = errors.New("login failed")

	// ErrNotLoggedIn indicates a session operation that requires a prior login.
	ErrNotLoggedIn = errors.New("session not logged in")

	// ErrEmptyReply indicates the assistant returned no usable content.
	ErrEmptyReply = errors.New("empty assistant reply")

	// ErrNoProvider indicates no assistant provider is configured.
	ErrNoProvider = errors.New("no assistant provider configured")

	// ErrInvalidInput indicates user provided invalid input.
	ErrInvalidInput = errors.New("invalid input")
)

// MoodleError is an exception payload returned by the Moodle web service.
// Moodle answers HTTP 200 with {"exception": ..., "errorcode": ..., "message": ...}.
type MoodleError struct {
	Function  string
	Exception string
	ErrorCode string
	Message   string
}

func (e *MoodleError) Error() string {
	return fmt.Sprintf("moodle %s: %s (%s)", e.Function, e.Message, e.ErrorCode)
}

// IsInvalidToken reports whether Moodle rejected the web-service token.
func (e *MoodleError) IsInvalidToken() bool {
	return e.ErrorCode == "invalidtoken"
}

// TransportError represents a failed HTTP exchange with an upstream service.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error (endpoint=%s, status=%d): %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error (endpoint=%s): %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error.
func NewTransportError(endpoint string, statusCode int, err error) *TransportError {
	return &TransportError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Err:        err,
	}
}

// IsLoginFailed checks if an error is ErrLoginFailed.
func IsLoginFailed(err error) bool {
	return errors.Is(err, ErrLoginFailed)
}

// IsEmptyReply checks if an error is ErrEmptyReply.
func IsEmptyReply(err error) bool {
	return errors.Is(err, ErrEmptyReply)
}

// IsTransport checks if an error carries a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// AsMoodleError extracts a MoodleError from the chain.
func AsMoodleError(err error) (*MoodleError, bool) {
	var me *MoodleError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}
