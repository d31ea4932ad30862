package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Policy bundles the protections applied to one provider. Breaker and
// Limiter are optional.
type Policy struct {
	Retry   RetryConfig
	Breaker *CircuitBreaker
	Limiter *rate.Limiter
}

// PolicyConfig is the flat form of a Policy as it appears in configuration.
type PolicyConfig struct {
	MaxAttempts       int
	TimeoutSecs       int
	InitialBackoffMs  int
	MaxBackoffMs      int
	RequestsPerMinute int
	FailureThreshold  int
	ResetTimeoutSecs  int
}

// NewPolicy builds a Policy from configuration values, keeping defaults for
// anything unset. A non-positive RequestsPerMinute disables rate limiting;
// a negative FailureThreshold disables the breaker.
func NewPolicy(name string, pc PolicyConfig, shouldTrip func(error) bool) Policy {
	rc := DefaultRetryConfig()
	if pc.MaxAttempts > 0 {
		rc.MaxAttempts = pc.MaxAttempts
	}
	if pc.TimeoutSecs > 0 {
		rc.AttemptTimeout = time.Duration(pc.TimeoutSecs) * time.Second
	}
	if pc.InitialBackoffMs > 0 {
		rc.InitialBackoff = time.Duration(pc.InitialBackoffMs) * time.Millisecond
	}
	if pc.MaxBackoffMs > 0 {
		rc.MaxBackoff = time.Duration(pc.MaxBackoffMs) * time.Millisecond
	}

	p := Policy{Retry: rc}

	if pc.FailureThreshold >= 0 {
		p.Breaker = NewCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: pc.FailureThreshold,
			ResetTimeout:     time.Duration(pc.ResetTimeoutSecs) * time.Second,
			ShouldTrip:       shouldTrip,
			OnStateChange: func(from, to CircuitState) {
				zap.L().Warn("extract: circuit state change",
					zap.String("provider", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		})
	}

	if pc.RequestsPerMinute > 0 {
		p.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(pc.RequestsPerMinute)), 1)
	}
	return p
}

// Call runs fn under the policy: the breaker is consulted once per call,
// every attempt waits on the limiter and gets its own timeout, and the final
// outcome is recorded on the breaker. A canceled caller context is not
// counted against the provider.
func Call[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.Breaker != nil {
		if err := p.Breaker.Allow(); err != nil {
			return zero, err
		}
	}

	val, err := DoVal(ctx, p.Retry, func(ctx context.Context) (T, error) {
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return zero, eris.Wrap(err, "rate limit wait")
			}
		}
		return fn(ctx)
	})

	if p.Breaker != nil && ctx.Err() == nil {
		p.Breaker.Record(err)
	}
	return val, err
}
