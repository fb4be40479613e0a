package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		checkFn  func(error) bool
		expected bool
	}{
		{
			name:     "ErrLoginFailed is recognized",
			err:      ErrLoginFailed,
			checkFn:  IsLoginFailed,
			expected: true,
		},
		{
			name:     "Wrapped ErrLoginFailed is recognized",
			err:      fmt.Errorf("login %q: %w", "alumno", ErrLoginFailed),
			checkFn:  IsLoginFailed,
			expected: true,
		},
		{
			name:     "Different error is not ErrLoginFailed",
			err:      ErrEmptyReply,
			checkFn:  IsLoginFailed,
			expected: false,
		},
		{
			name:     "Joined ErrEmptyReply is recognized",
			err:      errors.Join(ErrEmptyReply, errors.New("additional context")),
			checkFn:  IsEmptyReply,
			expected: true,
		},
		{
			name:     "Wrapped TransportError is recognized",
			err:      fmt.Errorf("courses: %w", NewTransportError("server.php", 502, errors.New("bad gateway"))),
			checkFn:  IsTransport,
			expected: true,
		},
		{
			name:     "Plain error is not transport",
			err:      errors.New("boom"),
			checkFn:  IsTransport,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.checkFn(tt.err)
			if result != tt.expected {
				t.Errorf("Expected %v, got %v for error: %v", tt.expected, result, tt.err)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	baseErr := errors.New("connection refused")

	tests := []struct {
		name       string
		statusCode int
		want       string
	}{
		{"with status", 503, "transport error (endpoint=https://moodle.test, status=503): connection refused"},
		{"without status", 0, "transport error (endpoint=https://moodle.test): connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewTransportError("https://moodle.test", tt.statusCode, baseErr)
			if err.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.want)
			}
			if !errors.Is(err, baseErr) {
				t.Error("Expected Unwrap to expose the underlying error")
			}
		})
	}
}

func TestMoodleError(t *testing.T) {
	err := fmt.Errorf("call: %w", &MoodleError{
		Function:  "core_enrol_get_users_courses",
		Exception: "moodle_exception",
		ErrorCode: "invalidtoken",
		Message:   "Invalid token - token not found",
	})

	me, ok := AsMoodleError(err)
	if !ok {
		t.Fatal("Expected AsMoodleError to find the exception")
	}
	if !me.IsInvalidToken() {
		t.Error("Expected invalidtoken to be detected")
	}
	if me.Error() != "moodle core_enrol_get_users_courses: Invalid token - token not found (invalidtoken)" {
		t.Errorf("Unexpected message: %s", me.Error())
	}

	if _, ok := AsMoodleError(errors.New("plain")); ok {
		t.Error("Plain error should not be a MoodleError")
	}
}
