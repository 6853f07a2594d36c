package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError("bad", nil), http.StatusBadRequest},
		{"unauthorized", NewUnauthorizedError("no", nil), http.StatusUnauthorized},
		{"forbidden", NewForbiddenError("no", nil), http.StatusForbidden},
		{"not found", NewNotFoundError("gone", nil), http.StatusNotFound},
		{"transition", NewTransitionError("nope", nil), http.StatusConflict},
		{"timeout", NewTimeoutError("slow", nil), http.StatusGatewayTimeout},
		{"configuration", NewConfigurationError("missing key", nil), http.StatusInternalServerError},
		{"upstream keeps status", NewUpstreamError(503, "Service Unavailable", nil), http.StatusServiceUnavailable},
		{"upstream bogus status", NewUpstreamError(0, "", nil), http.StatusBadGateway},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

func TestWrapErrorKeepsTypeAndUpstreamStatus(t *testing.T) {
	base := NewUpstreamError(429, "Too Many Requests", nil)
	wrapped := WrapError(base, "chat", ErrorTypeError)

	assert.True(t, IsUpstreamError(wrapped))
	assert.Equal(t, 429, HTTPStatus(wrapped))

	outer := fmt.Errorf("handler: %w", wrapped)
	appErr, ok := As(outer)
	assert.True(t, ok)
	assert.Equal(t, "Too Many Requests", appErr.UpstreamStatusText)
}

func TestWrapErrorNil(t *testing.T) {
	assert.NoError(t, WrapError(nil, "x", ErrorTypeError))
}

func TestWrapErrorPlain(t *testing.T) {
	err := WrapError(stderrors.New("disk full"), "save", ErrorTypeError)
	appErr, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, "PROCESSING_ERROR", appErr.Code)
	assert.Contains(t, err.Error(), "disk full")
}
