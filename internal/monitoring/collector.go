// Package monitoring summarizes recent ledger runs and raises webhook alerts
// when failure or spend thresholds are crossed.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gri-cli/internal/model"
	"github.com/sells-group/gri-cli/internal/store"
)

const pageSize = 200

// MetricsSnapshot holds a point-in-time view of extraction health.
type MetricsSnapshot struct {
	// Runs created within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsCanceled int     `json:"runs_canceled"`
	RunsActive   int     `json:"runs_active"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Chunk outcomes across finished runs.
	ChunksProcessed int     `json:"chunks_processed"`
	ChunksFailed    int     `json:"chunks_failed"`
	ChunkFailRate   float64 `json:"chunk_fail_rate"`

	FieldsPopulated int     `json:"fields_populated"`
	FieldsTotal     int     `json:"fields_total"`
	CostUSD         float64 `json:"cost_usd"`
	AvgTokens       int     `json:"avg_tokens"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of the ledger the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run ledger.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window. Runs are read
// newest first and paging stops at the first run older than the window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	var totalTokens int
	for offset := 0; ; offset += pageSize {
		page, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list runs")
		}

		done := len(page) < pageSize
		for _, r := range page {
			if r.CreatedAt.Before(cutoff) {
				done = true
				break
			}
			snap.RunsTotal++
			switch r.Status {
			case model.RunStatusComplete:
				snap.RunsComplete++
			case model.RunStatusFailed:
				snap.RunsFailed++
			case model.RunStatusCanceled:
				snap.RunsCanceled++
			default:
				snap.RunsActive++
			}
			if r.Stats == nil {
				continue
			}
			snap.ChunksProcessed += r.Stats.ChunksProcessed
			snap.ChunksFailed += r.Stats.ChunksFailed
			snap.FieldsPopulated += r.Stats.FieldsPopulated
			snap.FieldsTotal += r.Stats.FieldsTotal
			snap.CostUSD += r.Stats.TokenUsage.Cost
			totalTokens += r.Stats.TokenUsage.InputTokens + r.Stats.TokenUsage.OutputTokens
		}
		if done {
			break
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if attempted := snap.ChunksProcessed + snap.ChunksFailed; attempted > 0 {
		snap.ChunkFailRate = float64(snap.ChunksFailed) / float64(attempted)
	}
	if snap.RunsTotal > 0 {
		snap.AvgTokens = totalTokens / snap.RunsTotal
	}
	return snap, nil
}
