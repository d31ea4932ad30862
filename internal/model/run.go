package model

import "time"

// RunStatus represents the current state of an extraction run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusCanceled RunStatus = "canceled"
	RunStatusFailed   RunStatus = "failed"
)

// RunInput names the files a run reads and writes.
type RunInput struct {
	TemplatePath string `json:"template_path"`
	DocumentPath string `json:"document_path"`
	OutputPath   string `json:"output_path"`
	Provider     string `json:"provider,omitempty"`
}

// RunStats summarizes the end state of a run.
type RunStats struct {
	FieldsTotal     int        `json:"fields_total"`
	FieldsNarrative int        `json:"fields_narrative"`
	FieldsPopulated int        `json:"fields_populated"`
	FieldsMissing   int        `json:"fields_missing"`
	Duplicates      int        `json:"duplicates"`
	ChunksTotal     int        `json:"chunks_total"`
	ChunksProcessed int        `json:"chunks_processed"`
	ChunksSkipped   int        `json:"chunks_skipped"`
	ChunksFailed    int        `json:"chunks_failed"`
	Merged          int        `json:"merged"`
	Rejected        int        `json:"rejected"`
	TokenUsage      TokenUsage `json:"token_usage"`
	DurationMs      int64      `json:"duration_ms"`
}

// Run is a persisted record of one extraction run.
type Run struct {
	ID        string    `json:"id"`
	Input     RunInput  `json:"input"`
	Status    RunStatus `json:"status"`
	Stats     *RunStats `json:"stats,omitempty"`
	Report    []byte    `json:"-"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChunkOutcome classifies how a chunk was handled.
type ChunkOutcome string

const (
	// OutcomeExtracted means the client answered and its candidates were screened.
	OutcomeExtracted ChunkOutcome = "extracted"
	// OutcomeNoEligibleFields means every narrative field was already filled
	// so no request was made.
	OutcomeNoEligibleFields ChunkOutcome = "no_eligible_fields"
	// OutcomeFailed means the client call or response parsing failed; the
	// template store was left unchanged.
	OutcomeFailed ChunkOutcome = "failed"
)

// RejectReason names the guardrail that dropped a candidate.
type RejectReason string

const (
	RejectUnknownKey   RejectReason = "unknown_key"
	RejectEmptyText    RejectReason = "empty_text"
	RejectFillerPhrase RejectReason = "filler_phrase"
)

// Rejection records one dropped candidate.
type Rejection struct {
	Key    string       `json:"key"`
	Reason RejectReason `json:"reason"`
	Detail string       `json:"detail,omitempty"`
}

// ChunkResult is the outcome of processing a single chunk.
type ChunkResult struct {
	ChunkID    string       `json:"chunk_id"`
	Outcome    ChunkOutcome `json:"outcome"`
	Offered    int          `json:"offered"`
	Candidates int          `json:"candidates"`
	Merged     []string     `json:"merged"`
	Rejections []Rejection  `json:"rejections"`
	Err        error        `json:"-"`
	Error      string       `json:"error,omitempty"`
	TokenUsage TokenUsage   `json:"token_usage"`
	DurationMs int64        `json:"duration_ms"`
}

// TokenUsage tracks model token consumption and its estimated cost.
type TokenUsage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	Cost                float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.CacheReadTokens += other.CacheReadTokens
	t.Cost += other.Cost
}
