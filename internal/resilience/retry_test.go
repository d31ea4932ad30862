package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoVal_Attempts(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		failUntil int // calls before success; -1 never succeeds
		err       error
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", attempts: 3, failUntil: 0, wantCalls: 1},
		{name: "transient then success", attempts: 3, failUntil: 2, err: NewTransientError(errors.New("busy"), 503), wantCalls: 3},
		{name: "exhausted", attempts: 3, failUntil: -1, err: NewTransientError(errors.New("busy"), 529), wantCalls: 3, wantErr: true},
		{name: "permanent not retried", attempts: 3, failUntil: -1, err: errors.New("invalid x-api-key"), wantCalls: 1, wantErr: true},
		{name: "single attempt", attempts: 1, failUntil: -1, err: NewTransientError(errors.New("busy"), 500), wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			_, err := DoVal(context.Background(), fastRetry(tt.attempts), func(_ context.Context) (int, error) {
				calls++
				if tt.failUntil < 0 || calls <= tt.failUntil {
					return 0, tt.err
				}
				return calls, nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDoVal_StopsWhenCallerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := fastRetry(5)
	cfg.InitialBackoff = 20 * time.Millisecond

	_, err := DoVal(ctx, cfg, func(_ context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(errors.New("busy"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_AttemptTimeoutIsRetried(t *testing.T) {
	cfg := fastRetry(2)
	cfg.AttemptTimeout = 10 * time.Millisecond

	calls := 0
	_, err := DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return calls, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoVal_CustomShouldRetryAndOnRetry(t *testing.T) {
	var seen []int
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(err error) bool { return err.Error() == "again" }
	cfg.OnRetry = func(attempt int, _ error) { seen = append(seen, attempt) }

	calls := 0
	_, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("again")
		}
		return calls, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestDoVal(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "partial", NewTransientError(errors.New("reset"), 0)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	v2, err := DoVal(context.Background(), fastRetry(2), func(_ context.Context) (int, error) {
		return 7, errors.New("nope")
	})
	require.Error(t, err)
	assert.Zero(t, v2)
}

func TestApplyDefaults(t *testing.T) {
	cfg := applyDefaults(RetryConfig{JitterFraction: -1})
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Zero(t, cfg.JitterFraction)
}

func TestBackoff(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     3.0,
	})

	assert.Equal(t, 100*time.Millisecond, backoff(0, cfg))
	assert.Equal(t, 300*time.Millisecond, backoff(1, cfg))
	assert.Equal(t, 900*time.Millisecond, backoff(2, cfg))
	assert.Equal(t, time.Second, backoff(3, cfg))

	cfg.JitterFraction = 0.5
	for i := 0; i < 50; i++ {
		d := backoff(0, cfg)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRetryLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		RetryLogger("gemini", "chunk_4")(2, errors.New("503"))
	})
}
