package camunda

import (
	"context"
	"fmt"
	"testing"
	"time"

	"decision-workers/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return &Client{config: &ClientConfig{
		RequestTimeout: time.Second,
		RetryConfig: &RetryConfig{
			MaxRetries: 2,
			BaseDelay:  time.Millisecond,
			MaxDelay:   5 * time.Millisecond,
		},
	}}
}

func TestExecuteWithRetry_RetriesTransientErrors(t *testing.T) {
	c := newTestClient()
	calls := 0

	result, err := c.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("rpc error: code = Unavailable")
		}
		return "ok", nil
	}, "publish")

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_StopsOnPermanentError(t *testing.T) {
	c := newTestClient()
	calls := 0

	_, err := c.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, fmt.Errorf("rpc error: code = NotFound desc = process not found")
	}, "publish")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	stdErr, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeWorkflowEngineFailed, stdErr.Code)
	assert.False(t, stdErr.Retryable)
}

func TestExecuteWithRetry_ExhaustsRetries(t *testing.T) {
	c := newTestClient()
	calls := 0

	_, err := c.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, fmt.Errorf("connection refused")
	}, "publish")

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, errors.HasCode(err, errors.ErrCodeWorkflowEngineFailed))
}

func TestExecuteWithRetry_ContextCancelled(t *testing.T) {
	c := newTestClient()
	c.config.RetryConfig.BaseDelay = time.Second
	c.config.RetryConfig.MaxDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, fmt.Errorf("deadline exceeded")
	}, "publish")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelay(t *testing.T) {
	cfg := &RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, backoffDelay(cfg, 0))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(cfg, 1))
	assert.Equal(t, 300*time.Millisecond, backoffDelay(cfg, 2))
}
