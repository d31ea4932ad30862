// Package pipeline runs one template/document pair end to end: load the
// template, segment the document, aggregate every chunk and write the report.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gri-cli/internal/aggregate"
	"github.com/sells-group/gri-cli/internal/config"
	"github.com/sells-group/gri-cli/internal/document"
	"github.com/sells-group/gri-cli/internal/extract"
	"github.com/sells-group/gri-cli/internal/guardrail"
	"github.com/sells-group/gri-cli/internal/model"
	"github.com/sells-group/gri-cli/internal/report"
	"github.com/sells-group/gri-cli/internal/store"
	"github.com/sells-group/gri-cli/internal/template"
)

// ClientFactory builds the extraction client for a provider name.
type ClientFactory func(ctx context.Context, provider string) (extract.Client, error)

// Pipeline orchestrates extraction runs. Clients are built once per provider
// and shared across runs so rate limits and circuit state are process-wide.
type Pipeline struct {
	cfg       *config.Config
	ledger    store.Store
	newClient ClientFactory

	mu      sync.Mutex
	clients map[string]extract.Client
}

// New creates a Pipeline. ledger may be nil to disable run auditing.
func New(cfg *config.Config, ledger store.Store, newClient ClientFactory) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		ledger:    ledger,
		newClient: newClient,
		clients:   make(map[string]extract.Client),
	}
}

// Result describes a finished run.
type Result struct {
	RunID      string            `json:"run_id,omitempty"`
	Input      model.RunInput    `json:"input"`
	Status     model.RunStatus   `json:"status"`
	Stats      model.RunStats    `json:"stats"`
	Summary    aggregate.Summary `json:"-"`
	Duplicates []model.Key       `json:"duplicates,omitempty"`
}

// Resolve fills empty input paths and provider from configuration.
func (p *Pipeline) Resolve(in model.RunInput) model.RunInput {
	if in.TemplatePath == "" {
		in.TemplatePath = p.cfg.Template.Path
	}
	if in.DocumentPath == "" {
		in.DocumentPath = p.cfg.Document.Path
	}
	if in.OutputPath == "" {
		in.OutputPath = p.cfg.Output.Path
	}
	if in.Provider == "" {
		in.Provider = p.cfg.Extraction.Provider
	}
	return in
}

// Submit records a queued run in the ledger without executing it.
func (p *Pipeline) Submit(ctx context.Context, in model.RunInput) (*model.Run, error) {
	if p.ledger == nil {
		return nil, eris.New("pipeline: run ledger is not configured")
	}
	run, err := p.ledger.CreateRun(ctx, p.Resolve(in))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	return run, nil
}

// Run executes a single run, recording it in the ledger when one is configured.
func (p *Pipeline) Run(ctx context.Context, in model.RunInput) (*Result, error) {
	in = p.Resolve(in)

	var runID string
	if p.ledger != nil {
		run, err := p.ledger.CreateRun(ctx, in)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		runID = run.ID
	}
	return p.Execute(ctx, runID, in)
}

// Execute runs in under an existing ledger run id (empty when the ledger is
// disabled). Fatal errors happen before extraction and produce no report;
// once extraction starts the report is always written, even on cancellation.
func (p *Pipeline) Execute(ctx context.Context, runID string, in model.RunInput) (*Result, error) {
	in = p.Resolve(in)
	start := time.Now()
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("template", in.TemplatePath),
		zap.String("document", in.DocumentPath),
	)
	log.Info("pipeline: starting run", zap.String("provider", in.Provider))

	res := &Result{RunID: runID, Input: in, Status: model.RunStatusRunning}
	p.setStatus(ctx, runID, model.RunStatusRunning)

	fail := func(err error) (*Result, error) {
		res.Status = model.RunStatusFailed
		res.Stats.DurationMs = time.Since(start).Milliseconds()
		p.complete(ctx, runID, res, nil, err)
		log.Error("pipeline: run failed", zap.Error(err))
		return res, err
	}

	ts, err := template.Load(ctx, in.TemplatePath, template.Options{
		Columns: p.columns(),
		Sheet:   p.cfg.Template.Sheet,
	})
	if err != nil {
		return fail(err)
	}
	res.Duplicates = ts.Duplicates()

	chunks, err := document.Load(in.DocumentPath)
	if err != nil {
		return fail(err)
	}
	if len(chunks) == 0 {
		return fail(eris.Wrapf(document.ErrNoChunks, "pipeline: %s", in.DocumentPath))
	}

	client, err := p.client(ctx, in.Provider)
	if err != nil {
		return fail(err)
	}

	seq := 0
	engine := aggregate.NewEngine(ts, client, guardrail.New(p.cfg.Extraction.DenyList),
		aggregate.WithObserver(func(r model.ChunkResult) {
			p.recordChunk(ctx, runID, seq, r)
			seq++
		}),
	)
	sum := engine.Run(ctx, chunks)
	res.Summary = sum

	entries := report.Compile(ts)
	data, writeErr := report.Write(in.OutputPath, entries)

	res.Stats = buildStats(ts, len(chunks), sum)
	res.Stats.DurationMs = time.Since(start).Milliseconds()

	switch {
	case writeErr != nil:
		res.Status = model.RunStatusFailed
	case sum.Canceled:
		res.Status = model.RunStatusCanceled
	default:
		res.Status = model.RunStatusComplete
	}
	p.complete(ctx, runID, res, data, writeErr)

	log.Info("pipeline: run finished",
		zap.String("status", string(res.Status)),
		zap.String("output", in.OutputPath),
		zap.Int("fields_populated", res.Stats.FieldsPopulated),
		zap.Int("fields_missing", res.Stats.FieldsMissing),
		zap.Int("chunks_failed", res.Stats.ChunksFailed),
		zap.Float64("cost_usd", res.Stats.TokenUsage.Cost),
		zap.Int64("duration_ms", res.Stats.DurationMs),
	)
	if writeErr != nil {
		return res, writeErr
	}
	return res, nil
}

func (p *Pipeline) columns() template.Columns {
	c := p.cfg.Template.Columns
	return template.Columns{
		RefNo:            c.RefNo,
		Topic:            c.Topic,
		DisclosureSource: c.DisclosureSource,
		DataField:        c.DataField,
		Type:             c.DataType,
	}
}

func (p *Pipeline) client(ctx context.Context, provider string) (extract.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[provider]; ok {
		return c, nil
	}
	c, err := p.newClient(ctx, provider)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: build %s client", provider)
	}
	p.clients[provider] = c
	return c, nil
}

func buildStats(ts *template.Store, chunks int, sum aggregate.Summary) model.RunStats {
	c := ts.Counts()
	return model.RunStats{
		FieldsTotal:     c.Total,
		FieldsNarrative: c.Narrative,
		FieldsPopulated: c.Populated,
		FieldsMissing:   c.Missing,
		Duplicates:      len(ts.Duplicates()),
		ChunksTotal:     chunks,
		ChunksProcessed: sum.Processed,
		ChunksSkipped:   sum.Skipped,
		ChunksFailed:    sum.Failed,
		Merged:          sum.Merged,
		Rejected:        sum.Rejected,
		TokenUsage:      sum.Usage,
	}
}

// setStatus writes outlive the run context so a canceled run still records
// its final state.
func (p *Pipeline) setStatus(ctx context.Context, runID string, status model.RunStatus) {
	if p.ledger == nil || runID == "" {
		return
	}
	if err := p.ledger.UpdateRunStatus(context.WithoutCancel(ctx), runID, status); err != nil {
		zap.L().Warn("pipeline: failed to update run status", zap.String("run_id", runID), zap.Error(err))
	}
}

func (p *Pipeline) recordChunk(ctx context.Context, runID string, seq int, r model.ChunkResult) {
	if p.ledger == nil || runID == "" {
		return
	}
	if err := p.ledger.RecordChunk(context.WithoutCancel(ctx), runID, seq, r); err != nil {
		zap.L().Warn("pipeline: failed to record chunk",
			zap.String("run_id", runID),
			zap.String("chunk_id", r.ChunkID),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) complete(ctx context.Context, runID string, res *Result, data []byte, runErr error) {
	if p.ledger == nil || runID == "" {
		return
	}
	c := store.RunCompletion{Status: res.Status, Report: data}
	if res.Stats.FieldsTotal > 0 || res.Stats.ChunksTotal > 0 {
		stats := res.Stats
		c.Stats = &stats
	}
	if runErr != nil {
		c.Error = runErr.Error()
	}
	if err := p.ledger.CompleteRun(context.WithoutCancel(ctx), runID, c); err != nil {
		zap.L().Warn("pipeline: failed to complete run", zap.String("run_id", runID), zap.Error(err))
	}
}
