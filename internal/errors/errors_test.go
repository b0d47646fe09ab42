package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		wantMsg  string
		category ErrorCategory
		status   int
	}{
		{
			name:     "validation",
			err:      NewValidationError("address is not a hex address", "0xzz"),
			wantMsg:  "[VALIDATION_ERROR] address is not a hex address",
			category: CategoryValidation,
			status:   http.StatusBadRequest,
		},
		{
			name:     "provider",
			err:      NewProviderError("dexscreener", fmt.Errorf("status 503")),
			wantMsg:  "[UPSTREAM_UNAVAILABLE] dexscreener provider error",
			category: CategoryProvider,
			status:   http.StatusBadGateway,
		},
		{
			name:     "unsupported chain",
			err:      NewUnsupportedChainError(999),
			wantMsg:  "[PRECONDITION_FAILED] chain 999 is not supported",
			category: CategoryUnsupportedChain,
			status:   http.StatusUnprocessableEntity,
		},
		{
			name:     "rate limit",
			err:      NewRateLimitError("30s"),
			wantMsg:  "[RATE_LIMIT_EXCEEDED] Rate limit exceeded",
			category: CategoryRateLimit,
			status:   http.StatusTooManyRequests,
		},
		{
			name:     "not found",
			err:      NewNotFoundError("no scan recorded for target", nil),
			wantMsg:  "[PRECONDITION_FAILED] no scan recorded for target",
			category: CategoryNotFound,
			status:   http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
}

func TestToAppError(t *testing.T) {
	t.Run("passes AppError through wrapping", func(t *testing.T) {
		orig := NewProviderError("explorer", nil)
		wrapped := fmt.Errorf("structural: %w", orig)
		assert.Same(t, orig, ToAppError(wrapped))
	})

	t.Run("context cancellation maps to timeout", func(t *testing.T) {
		appErr := ToAppError(context.Canceled)
		require.NotNil(t, appErr)
		assert.Equal(t, CategoryTimeout, appErr.Category)
	})

	t.Run("connection refused maps to network", func(t *testing.T) {
		appErr := ToAppError(fmt.Errorf("dial tcp: connection refused"))
		assert.Equal(t, CategoryNetwork, appErr.Category)
	})

	t.Run("unknown error maps to internal", func(t *testing.T) {
		appErr := ToAppError(fmt.Errorf("boom"))
		assert.Equal(t, CategoryInternal, appErr.Category)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, ToAppError(nil))
	})
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(NewProviderError("reputation", nil)))
	assert.True(t, IsRetryableError(NewNetworkError("down", nil)))
	assert.False(t, IsRetryableError(NewValidationError("bad")))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(nil))

}

type closer struct {
	err    error
	closed bool
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

func TestSafeClose(t *testing.T) {
	ok := &closer{}
	SafeClose(ok, "store")
	assert.True(t, ok.closed)

	failing := &closer{err: fmt.Errorf("disk gone")}
	assert.NotPanics(t, func() { SafeClose(failing, "store") })
	assert.True(t, failing.closed)

	assert.NotPanics(t, func() { SafeClose(nil, "nothing") })
}
