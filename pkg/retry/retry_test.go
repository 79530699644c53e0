package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

type statusErr struct {
	code int
}

func (e *statusErr) Error() string     { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) IsRetryable() bool { return e.code >= 500 }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 8*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	expectedErr := errors.New("persistent error")
	callCount := 0
	err := Do(context.Background(), fastConfig(2), func() error {
		callCount++
		return expectedErr
	})

	assert.Equal(t, expectedErr, err)
	// MaxRetries=2 means: initial attempt + 2 retries = 3 total calls
	assert.Equal(t, 3, callCount)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	callCount := 0
	err := Do(ctx, cfg, func() error {
		callCount++
		cancel()
		return errors.New("error")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
}

func TestDoWithResult_KeepsLastResult(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), fastConfig(1), func() (int, error) {
		calls++
		return calls * 10, errors.New("nope")
	})
	assert.Error(t, err)
	assert.Equal(t, 20, result)
}

func TestDoIfRetryable_PermanentErrorReturnsImmediately(t *testing.T) {
	calls := 0
	_, err := DoIfRetryable(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		return "", &statusErr{code: 404}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoIfRetryable_TransientErrorRetried(t *testing.T) {
	calls := 0
	body, err := DoIfRetryable(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls == 1 {
			return "", &statusErr{code: 503}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, 2, calls)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("read: i/o timeout"), true},
		{errors.New("invalid character 'x'"), false},
		{&statusErr{code: 502}, true},
		{&statusErr{code: 400}, false},
		{fmt.Errorf("wrapped: %w", &statusErr{code: 503}), true},
		{context.Canceled, false},
		{fmt.Errorf("Get \"http://x\": %w (Client.Timeout exceeded while awaiting headers)", context.DeadlineExceeded), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryable(tt.err), "%v", tt.err)
	}
}

func TestApplyJitter(t *testing.T) {
	assert.Equal(t, time.Second, applyJitter(time.Second, 0))
	for i := 0; i < 50; i++ {
		d := applyJitter(time.Second, 0.1)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestDoIfRetryable_StopsWhenCallerContextExpires(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	calls := 0
	_, err := DoIfRetryable(ctx, fastConfig(3), func() (string, error) {
		calls++
		return "", errors.New("read: i/o timeout")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}
