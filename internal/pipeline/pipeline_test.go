package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gri-cli/internal/document"
	"github.com/sells-group/gri-cli/internal/extract"
	"github.com/sells-group/gri-cli/internal/model"
	"github.com/sells-group/gri-cli/internal/report"
	"github.com/sells-group/gri-cli/internal/store"
	"github.com/sells-group/gri-cli/internal/template"
)

func newLedger(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}

func readReport(t *testing.T, path string) []report.Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []report.Entry
	require.NoError(t, json.Unmarshal(data, &entries))
	return entries
}

func TestPipeline_Run_Scenario(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	writeFile(t, dir, "template.csv", templateCSV)
	writeFile(t, dir, "report.txt", documentText)

	ledger := newLedger(t)
	factory, _ := staticFactory(scenarioClient())
	p := New(cfg, ledger, factory)

	res, err := p.Run(context.Background(), model.RunInput{})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, res.Status)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, 3, res.Stats.FieldsTotal)
	assert.Equal(t, 2, res.Stats.FieldsNarrative)
	assert.Equal(t, 2, res.Stats.FieldsPopulated)
	assert.Equal(t, 1, res.Stats.FieldsMissing)
	assert.Equal(t, 3, res.Stats.ChunksTotal)
	assert.Equal(t, 3, res.Stats.ChunksProcessed)
	assert.Equal(t, 3, res.Stats.Merged)
	assert.Equal(t, 2, res.Stats.Rejected)
	assert.Equal(t, 150, res.Stats.TokenUsage.InputTokens)

	entries := readReport(t, cfg.Output.Path)
	require.Len(t, entries, 3)
	assert.Equal(t, "Emissions reduced 10%.\n--- Appended Source (chunk_2) ---\nSee appendix.", entries[0].DataExtracted)
	assert.Equal(t, []string{"chunk_1", "chunk_2"}, entries[0].SourceChunks)
	assert.Equal(t, "Policy updated in 2023.", entries[1].DataExtracted)
	assert.Equal(t, []string{"chunk_3"}, entries[1].SourceChunks)
	assert.Equal(t, "[Data Missing/Omission]", entries[2].Status)
	assert.Equal(t, []string{}, entries[2].SourceChunks)

	run, err := ledger.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Stats)
	assert.Equal(t, 2, run.Stats.FieldsPopulated)

	onDisk, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	assert.Equal(t, onDisk, run.Report)

	chunkRows, err := ledger.ListChunkResults(context.Background(), res.RunID)
	require.NoError(t, err)
	require.Len(t, chunkRows, 3)
	assert.Equal(t, []string{"chunk_1", "chunk_2", "chunk_3"},
		[]string{chunkRows[0].ChunkID, chunkRows[1].ChunkID, chunkRows[2].ChunkID})
	assert.Equal(t, model.RejectUnknownKey, chunkRows[1].Rejections[0].Reason)
	assert.Equal(t, model.RejectFillerPhrase, chunkRows[2].Rejections[0].Reason)
}

func TestPipeline_Run_WithoutLedger(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	writeFile(t, dir, "template.csv", templateCSV)
	writeFile(t, dir, "report.txt", documentText)

	factory, _ := staticFactory(scenarioClient())
	res, err := New(cfg, nil, factory).Run(context.Background(), model.RunInput{})
	require.NoError(t, err)
	assert.Empty(t, res.RunID)
	assert.FileExists(t, cfg.Output.Path)
}

func TestPipeline_Run_InputOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	tpl := writeFile(t, dir, "other/t.csv", templateCSV)
	doc := writeFile(t, dir, "other/d.md", documentText)
	out := filepath.Join(dir, "elsewhere", "r.json")

	var gotProvider string
	factory := func(_ context.Context, provider string) (extract.Client, error) {
		gotProvider = provider
		return scenarioClient(), nil
	}

	res, err := New(cfg, nil, factory).Run(context.Background(), model.RunInput{
		TemplatePath: tpl, DocumentPath: doc, OutputPath: out, Provider: "gemini",
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini", gotProvider)
	assert.Equal(t, out, res.Input.OutputPath)
	assert.FileExists(t, out)
}

func TestPipeline_Run_MissingTemplate(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	writeFile(t, dir, "report.txt", documentText)

	ledger := newLedger(t)
	client := scenarioClient()
	factory, _ := staticFactory(client)

	res, err := New(cfg, ledger, factory).Run(context.Background(), model.RunInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, template.ErrNotFound))
	assert.Equal(t, model.RunStatusFailed, res.Status)
	assert.NoFileExists(t, cfg.Output.Path)
	assert.Zero(t, client.Calls())

	run, err := ledger.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.NotEmpty(t, run.Error)
	assert.Nil(t, run.Report)
}

func TestPipeline_Run_MissingDocument(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	writeFile(t, dir, "template.csv", templateCSV)

	factory, _ := staticFactory(scenarioClient())
	_, err := New(cfg, nil, factory).Run(context.Background(), model.RunInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, document.ErrNoChunks))
	assert.NoFileExists(t, cfg.Output.Path)
}

func TestPipeline_Run_ClientFactoryError(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	writeFile(t, dir, "template.csv", templateCSV)
	writeFile(t, dir, "report.txt", documentText)

	factory := func(context.Context, string) (extract.Client, error) {
		return nil, eris.New("extract: anthropic key is not configured")
	}
	_, err := New(cfg, nil, factory).Run(context.Background(), model.RunInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key is not configured")
	assert.NoFileExists(t, cfg.Output.Path)
}

func TestPipeline_Run_ChunkFailureStillCompletes(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	writeFile(t, dir, "template.csv", templateCSV)
	writeFile(t, dir, "report.txt", documentText)

	client := scenarioClient()
	client.fail["[E2]"] = eris.New("anthropic: status 500")
	factory, _ := staticFactory(client)

	res, err := New(cfg, nil, factory).Run(context.Background(), model.RunInput{})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, res.Status)
	assert.Equal(t, 1, res.Stats.ChunksFailed)

	entries := readReport(t, cfg.Output.Path)
	assert.Equal(t, "Emissions reduced 10%.", entries[0].DataExtracted)
	assert.Equal(t, "Policy updated in 2023.", entries[1].DataExtracted)
}

func TestPipeline_Run_CanceledWritesPartialReport(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	writeFile(t, dir, "template.csv", templateCSV)
	writeFile(t, dir, "report.txt", documentText)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := scenarioClient()
	client.hook = func(chunk model.Chunk) {
		if chunk.ID == "chunk_2" {
			cancel()
		}
	}
	ledger := newLedger(t)
	factory, _ := staticFactory(client)

	res, err := New(cfg, ledger, factory).Run(ctx, model.RunInput{})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCanceled, res.Status)
	assert.Equal(t, 2, client.Calls())

	entries := readReport(t, cfg.Output.Path)
	assert.Equal(t, "Emissions reduced 10%.", entries[0].DataExtracted)
	assert.Empty(t, entries[1].DataExtracted)

	run, err := ledger.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCanceled, run.Status)
	assert.NotEmpty(t, run.Report)
}

func TestPipeline_ClientBuiltOncePerProvider(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	writeFile(t, dir, "template.csv", templateCSV)
	writeFile(t, dir, "report.txt", documentText)

	factory, calls := staticFactory(scenarioClient())
	p := New(cfg, nil, factory)
	for range 3 {
		_, err := p.Run(context.Background(), model.RunInput{})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, *calls)
}

func TestPipeline_SubmitThenExecute(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	writeFile(t, dir, "template.csv", templateCSV)
	writeFile(t, dir, "report.txt", documentText)

	ledger := newLedger(t)
	factory, _ := staticFactory(scenarioClient())
	p := New(cfg, ledger, factory)

	run, err := p.Submit(context.Background(), model.RunInput{})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.Equal(t, cfg.Template.Path, run.Input.TemplatePath)

	_, err = p.Execute(context.Background(), run.ID, run.Input)
	require.NoError(t, err)

	got, err := ledger.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
}

func TestPipeline_Submit_NoLedger(t *testing.T) {
	factory, _ := staticFactory(scenarioClient())
	_, err := New(testConfig(t.TempDir()), nil, factory).Submit(context.Background(), model.RunInput{})
	assert.Error(t, err)
}
