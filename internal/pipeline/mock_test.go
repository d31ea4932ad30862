package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/gri-cli/internal/config"
	"github.com/sells-group/gri-cli/internal/extract"
	"github.com/sells-group/gri-cli/internal/model"
)

// contentClient answers by matching a marker in the chunk text. It is safe
// for concurrent use so batch tests can share it.
type contentClient struct {
	mu      sync.Mutex
	answers map[string][]model.Candidate
	fail    map[string]error
	hook    func(chunk model.Chunk)
	calls   int
}

func newContentClient() *contentClient {
	return &contentClient{
		answers: map[string][]model.Candidate{},
		fail:    map[string]error{},
	}
}

func (c *contentClient) Extract(ctx context.Context, chunk model.Chunk, _ []model.FieldDescriptor) (*extract.Response, error) {
	c.mu.Lock()
	c.calls++
	hook := c.hook
	c.mu.Unlock()

	if hook != nil {
		hook(chunk)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	usage := model.TokenUsage{InputTokens: 50, OutputTokens: 5, Cost: 0.001}
	for marker, err := range c.fail {
		if strings.Contains(chunk.Content, marker) {
			return &extract.Response{Usage: usage}, err
		}
	}
	for marker, cands := range c.answers {
		if strings.Contains(chunk.Content, marker) {
			return &extract.Response{Candidates: cands, Usage: usage}, nil
		}
	}
	return &extract.Response{Candidates: []model.Candidate{}, Usage: usage}, nil
}

func (c *contentClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

const (
	keyF1 = "11.1.1_GHG reduction narrative_Climate report"
	keyF2 = "11.1.2_Climate policy_Policy register"
	keyF3 = "11.1.5_Scope 1 tCO2e_Climate report"
)

const templateCSV = `GRI 11 Ref. No.,GRI 11 Topic,Disclosure Source,Data Field (Quantitative / Qualitative / Metric),Type
11.1.1,Climate,Climate report,GHG reduction narrative,Narrative
11.1.2,Climate,Policy register,Climate policy,Narrative
11.1.5,Climate,Climate report,Scope 1 tCO2e,Metric
`

const documentText = "Emissions paragraph [E1].\n\nAppendix paragraph [E2].\n\nPolicy paragraph [P1].\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func scenarioClient() *contentClient {
	c := newContentClient()
	c.answers["[E1]"] = []model.Candidate{{Key: keyF1, ExtractedData: "Emissions reduced 10%."}}
	c.answers["[E2]"] = []model.Candidate{
		{Key: keyF1, ExtractedData: "See appendix."},
		{Key: "bogus_key", ExtractedData: "made up"},
	}
	c.answers["[P1]"] = []model.Candidate{
		{Key: keyF2, ExtractedData: "Policy updated in 2023."},
		{Key: keyF1, ExtractedData: "Not found"},
	}
	return c
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Template: config.TemplateConfig{Path: filepath.Join(dir, "template.csv")},
		Document: config.DocumentConfig{Path: filepath.Join(dir, "report.txt")},
		Output:   config.OutputConfig{Path: filepath.Join(dir, "output", "final_report.json")},
		Extraction: config.ExtractionConfig{
			Provider: "anthropic",
			DenyList: []string{"not found", "not applicable"},
		},
	}
}

func staticFactory(c extract.Client) (ClientFactory, *int) {
	var n int
	return func(context.Context, string) (extract.Client, error) {
		n++
		return c, nil
	}, &n
}
