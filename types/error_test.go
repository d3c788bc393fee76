package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrNavigationFailed, "navigation failed").
		WithCause(root).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true)

	assert.Equal(t, ErrNavigationFailed, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, root))
	assert.Equal(t, "[NAVIGATION_FAILED] navigation failed: root", err.Error())
}

func TestError_WrappedLookup(t *testing.T) {
	t.Parallel()

	inner := NewSessionFatalError("launch failed", errors.New("no chrome"))
	wrapped := fmt.Errorf("bot 3: %w", inner)

	got, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Same(t, inner, got)
	assert.True(t, IsErrorCode(wrapped, ErrSessionFatal))
	assert.False(t, IsRetryable(wrapped))
}

func TestError_PlainErrors(t *testing.T) {
	t.Parallel()

	err := errors.New("plain")
	_, ok := AsError(err)
	assert.False(t, ok)
	assert.Equal(t, ErrorCode(""), GetErrorCode(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, "[INTERNAL_ERROR] boom", NewError(ErrInternalError, "boom").Error())
}

func TestConstructors(t *testing.T) {
	t.Parallel()

	running := NewAlreadyRunningError()
	assert.Equal(t, ErrAlreadyRunning, running.Code)
	assert.Equal(t, "Already running", running.Message)
	assert.Equal(t, http.StatusBadRequest, running.HTTPStatus)

	invalid := NewInvalidRequestError("no urls")
	assert.Equal(t, ErrInvalidRequest, invalid.Code)
	assert.Equal(t, http.StatusBadRequest, invalid.HTTPStatus)

	nav := NewNavigationError("https://example.com/", errors.New("timeout"))
	assert.Equal(t, ErrNavigationFailed, nav.Code)
	assert.True(t, nav.Retryable)
	assert.Contains(t, nav.Error(), "https://example.com/")
}
