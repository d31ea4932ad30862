package extract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gri-cli/internal/model"
	"github.com/sells-group/gri-cli/internal/resilience"
)

// Resilient applies a retry, rate limit and circuit breaker policy to a Client.
type Resilient struct {
	next   Client
	name   string
	policy resilience.Policy
}

// NewResilient wraps next with policy. name labels log lines.
func NewResilient(next Client, name string, policy resilience.Policy) *Resilient {
	return &Resilient{next: next, name: name, policy: policy}
}

// TripsBreaker reports whether err should count against a provider's
// circuit. Malformed answers mean the provider is up.
func TripsBreaker(err error) bool {
	return !IsMalformed(err)
}

// Extract implements Client.
func (r *Resilient) Extract(ctx context.Context, chunk model.Chunk, fields []model.FieldDescriptor) (*Response, error) {
	p := r.policy
	p.Retry.OnRetry = resilience.RetryLogger(r.name, chunk.ID)

	var usage model.TokenUsage
	resp, err := resilience.Call(ctx, p, func(ctx context.Context) (*Response, error) {
		resp, err := r.next.Extract(ctx, chunk, fields)
		if resp != nil {
			usage.Add(resp.Usage)
		}
		return resp, err
	})
	if err != nil {
		return &Response{Usage: usage}, eris.Wrapf(err, "%s: extract %s", r.name, chunk.ID)
	}
	resp.Usage = usage
	return resp, nil
}
