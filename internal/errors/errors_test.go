package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", NewAPIError("jira", 429, "slow down"), true},
		{"bad gateway", NewAPIError("pagespeed", 502, "bad gateway"), true},
		{"bad request", NewAPIError("jira", 400, "bad jql"), false},
		{"wrapped timeout", fmt.Errorf("crux: %w", ErrTimeout), true},
		{"unavailable", ErrUnavailable, true},
		{"not found", ErrNotFound, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("suggestion", "abc")
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), `suggestion "abc"`)
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := &APIError{Service: "crux", StatusCode: 503, Message: "down", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "crux API error (status 503)")
}
