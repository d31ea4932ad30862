package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/gri-cli/internal/extract"
	"github.com/sells-group/gri-cli/internal/model"
	"github.com/sells-group/gri-cli/internal/template"
)

// scriptedClient answers each chunk from a fixed script and records the
// fields it was offered.
type scriptedClient struct {
	answers map[string][]model.Candidate
	errs    map[string]error
	offered map[string][]string
	calls   []string
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		answers: map[string][]model.Candidate{},
		errs:    map[string]error{},
		offered: map[string][]string{},
	}
}

func (c *scriptedClient) Extract(_ context.Context, chunk model.Chunk, fields []model.FieldDescriptor) (*extract.Response, error) {
	c.calls = append(c.calls, chunk.ID)
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	c.offered[chunk.ID] = keys

	usage := model.TokenUsage{InputTokens: 100, OutputTokens: 10}
	if err := c.errs[chunk.ID]; err != nil {
		return &extract.Response{Usage: usage}, err
	}
	return &extract.Response{Candidates: c.answers[chunk.ID], Usage: usage}, nil
}

// slowClient delays every call before delegating.
type slowClient struct {
	next  extract.Client
	delay time.Duration
}

func (c slowClient) Extract(ctx context.Context, chunk model.Chunk, fields []model.FieldDescriptor) (*extract.Response, error) {
	time.Sleep(c.delay)
	return c.next.Extract(ctx, chunk, fields)
}

func cand(key, text string) model.Candidate {
	return model.Candidate{Key: key, ExtractedData: text}
}

func chunks(n int) []model.Chunk {
	out := make([]model.Chunk, n)
	for i := range out {
		out[i] = model.Chunk{ID: model.ChunkID(i + 1), Content: "paragraph"}
	}
	return out
}

// scenarioStore holds two narrative fields and one metric field.
func scenarioStore(t *testing.T) (*template.Store, string, string, string) {
	t.Helper()
	s := template.NewStore()
	f1 := model.NewDisclosureRecord("11.1.1", "Climate", "Climate report", "GHG reduction narrative", model.DataTypeNarrative)
	f2 := model.NewDisclosureRecord("11.1.2", "Climate", "Policy register", "Climate policy", model.DataTypeNarrative)
	f3 := model.NewDisclosureRecord("11.1.5", "Climate", "Climate report", "Scope 1 tCO2e", model.DataTypeMetric)
	for _, r := range []*model.DisclosureRecord{f1, f2, f3} {
		replaced, err := s.Put(r)
		require.NoError(t, err)
		require.False(t, replaced)
	}
	return s, f1.Key().String(), f2.Key().String(), f3.Key().String()
}
