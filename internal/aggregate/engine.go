// Package aggregate folds extraction answers into the template store one
// chunk at a time. A record only ever gains text: the first accepted answer
// fills it and later answers are appended under a marker naming their chunk.
package aggregate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/gri-cli/internal/extract"
	"github.com/sells-group/gri-cli/internal/guardrail"
	"github.com/sells-group/gri-cli/internal/model"
	"github.com/sells-group/gri-cli/internal/resilience"
	"github.com/sells-group/gri-cli/internal/template"
)

// Engine is the single writer of a template store. It is not safe for
// concurrent use.
type Engine struct {
	store   *template.Store
	client  extract.Client
	guard   *guardrail.Guard
	observe func(model.ChunkResult)
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers a callback invoked after every processed chunk.
func WithObserver(fn func(model.ChunkResult)) Option {
	return func(e *Engine) { e.observe = fn }
}

// NewEngine creates an engine over store. A nil guard uses the default deny-list.
func NewEngine(store *template.Store, client extract.Client, guard *guardrail.Guard, opts ...Option) *Engine {
	if guard == nil {
		guard = guardrail.New(nil)
	}
	e := &Engine{store: store, client: client, guard: guard}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Process runs one chunk through the client and merges the accepted
// candidates. Client failures are reported in the result and leave the store
// untouched.
func (e *Engine) Process(ctx context.Context, chunk model.Chunk) (res model.ChunkResult) {
	start := time.Now()
	res = model.ChunkResult{
		ChunkID:    chunk.ID,
		Merged:     []string{},
		Rejections: []model.Rejection{},
	}
	defer func() { res.DurationMs = time.Since(start).Milliseconds() }()

	eligible := e.store.Eligible()
	if len(eligible) == 0 {
		res.Outcome = model.OutcomeNoEligibleFields
		zap.L().Debug("aggregate: no eligible fields, skipping chunk", zap.String("chunk_id", chunk.ID))
		return res
	}

	fields := make([]model.FieldDescriptor, len(eligible))
	for i, r := range eligible {
		fields[i] = r.Descriptor()
	}
	res.Offered = len(fields)

	resp, err := e.client.Extract(ctx, chunk, fields)
	if resp != nil {
		res.TokenUsage = resp.Usage
	}
	if err != nil {
		res.Outcome = model.OutcomeFailed
		res.Err = err
		res.Error = err.Error()
		zap.L().Warn("aggregate: chunk extraction failed",
			zap.String("chunk_id", chunk.ID),
			zap.Int("offered", res.Offered),
			zap.String("class", resilience.Classify(err)),
			zap.Error(err),
		)
		return res
	}

	res.Outcome = model.OutcomeExtracted
	res.Candidates = len(resp.Candidates)

	for _, c := range resp.Candidates {
		rec, rej := e.guard.Check(c, e.store)
		if rej != nil {
			res.Rejections = append(res.Rejections, *rej)
			zap.L().Debug("aggregate: candidate rejected",
				zap.String("chunk_id", chunk.ID),
				zap.String("key", rej.Key),
				zap.String("reason", string(rej.Reason)),
				zap.String("detail", rej.Detail),
			)
			continue
		}
		rec.Merge(c.ExtractedData, chunk.ID)
		res.Merged = append(res.Merged, c.Key)
		zap.L().Info("aggregate: mapping merged",
			zap.String("chunk_id", chunk.ID),
			zap.String("key", c.Key),
		)
	}
	return res
}

// Summary aggregates the chunk results of a run.
type Summary struct {
	Results   []model.ChunkResult `json:"results"`
	Processed int                 `json:"processed"`
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
	Merged    int                 `json:"merged"`
	Rejected  int                 `json:"rejected"`
	Usage     model.TokenUsage    `json:"usage"`
	Canceled  bool                `json:"canceled"`
}

func (s *Summary) add(r model.ChunkResult) {
	s.Results = append(s.Results, r)
	s.Usage.Add(r.TokenUsage)
	switch r.Outcome {
	case model.OutcomeExtracted:
		s.Processed++
	case model.OutcomeNoEligibleFields:
		s.Skipped++
	case model.OutcomeFailed:
		s.Failed++
	}
	s.Merged += len(r.Merged)
	s.Rejected += len(r.Rejections)
}

// Run processes chunks strictly in order. Cancellation is checked between
// chunks; the store is left in whatever valid state the completed chunks
// produced.
func (e *Engine) Run(ctx context.Context, chunks []model.Chunk) Summary {
	sum := Summary{Results: make([]model.ChunkResult, 0, len(chunks))}

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			sum.Canceled = true
			zap.L().Warn("aggregate: run canceled",
				zap.Int("chunks_done", i),
				zap.Int("chunks_total", len(chunks)),
			)
			break
		}

		res := e.Process(ctx, chunk)
		sum.add(res)
		if e.observe != nil {
			e.observe(res)
		}
	}

	if !sum.Canceled && ctx.Err() != nil && len(sum.Results) > 0 &&
		sum.Results[len(sum.Results)-1].Outcome == model.OutcomeFailed {
		sum.Canceled = true
	}
	return sum
}
