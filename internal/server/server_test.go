package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gri-cli/internal/model"
	"github.com/sells-group/gri-cli/internal/pipeline"
	"github.com/sells-group/gri-cli/internal/store"
)

// ledgerRunner completes every run immediately with a fixed report.
type ledgerRunner struct {
	ledger    store.Store
	submitErr error
	executed  chan string
}

func (r *ledgerRunner) Submit(ctx context.Context, in model.RunInput) (*model.Run, error) {
	if r.submitErr != nil {
		return nil, r.submitErr
	}
	return r.ledger.CreateRun(ctx, in)
}

func (r *ledgerRunner) Execute(ctx context.Context, runID string, in model.RunInput) (*pipeline.Result, error) {
	defer func() { r.executed <- runID }()
	err := r.ledger.CompleteRun(ctx, runID, store.RunCompletion{
		Status: model.RunStatusComplete,
		Stats:  &model.RunStats{FieldsTotal: 1, FieldsPopulated: 1},
		Report: []byte("[]\n"),
	})
	return &pipeline.Result{RunID: runID, Input: in, Status: model.RunStatusComplete}, err
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *store.SQLiteStore, *ledgerRunner) {
	t.Helper()
	ledger, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, ledger.Migrate(context.Background()))
	t.Cleanup(func() { ledger.Close() }) //nolint:errcheck

	runner := &ledgerRunner{ledger: ledger, executed: make(chan string, 8)}
	srv := New(context.Background(), ledger, runner, []string{"https://dashboard.example.com"})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts, ledger, runner
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close() //nolint:errcheck
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, resp))
}

func TestCreateRun(t *testing.T) {
	srv, ts, ledger, runner := newTestServer(t)

	body, _ := json.Marshal(map[string]string{
		"template": "t.csv",
		"document": "d.txt",
		"output":   "o.json",
	})
	resp, err := http.Post(ts.URL+"/runs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	got := decode[map[string]string](t, resp)
	assert.Equal(t, "queued", got["status"])
	require.NotEmpty(t, got["run_id"])

	assert.Equal(t, got["run_id"], <-runner.executed)
	srv.Wait()

	run, err := ledger.GetRun(context.Background(), got["run_id"])
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, "d.txt", run.Input.DocumentPath)
}

func TestCreateRun_BadBody(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/runs", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request body", decode[map[string]string](t, resp)["error"])
}

func TestCreateRun_SubmitError(t *testing.T) {
	_, ts, _, runner := newTestServer(t)
	runner.submitErr = eris.New("ledger down")

	resp, err := http.Post(ts.URL+"/runs", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close() //nolint:errcheck
}

func TestGetRun(t *testing.T) {
	_, ts, ledger, _ := newTestServer(t)
	run, err := ledger.CreateRun(context.Background(), model.RunInput{DocumentPath: "d.txt"})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/runs/" + run.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[model.Run](t, resp)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, model.RunStatusQueued, got.Status)
}

func TestGetRun_NotFound(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	for _, path := range []string{"/runs/missing", "/runs/missing/chunks", "/runs/missing/report"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "run not found", decode[map[string]string](t, resp)["error"])
	}
}

func TestListRuns(t *testing.T) {
	_, ts, ledger, _ := newTestServer(t)
	ctx := context.Background()

	for range 3 {
		_, err := ledger.CreateRun(ctx, model.RunInput{DocumentPath: "d.txt"})
		require.NoError(t, err)
	}
	failed, err := ledger.CreateRun(ctx, model.RunInput{DocumentPath: "bad.txt"})
	require.NoError(t, err)
	require.NoError(t, ledger.CompleteRun(ctx, failed.ID, store.RunCompletion{Status: model.RunStatusFailed, Error: "boom"}))

	resp, err := http.Get(ts.URL + "/runs")
	require.NoError(t, err)
	assert.Len(t, decode[[]model.Run](t, resp), 4)

	resp, err = http.Get(ts.URL + "/runs?status=failed")
	require.NoError(t, err)
	runs := decode[[]model.Run](t, resp)
	require.Len(t, runs, 1)
	assert.Equal(t, "boom", runs[0].Error)

	resp, err = http.Get(ts.URL + "/runs?limit=2")
	require.NoError(t, err)
	assert.Len(t, decode[[]model.Run](t, resp), 2)
}

func TestListRuns_BadParams(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	for _, q := range []string{"limit=abc", "limit=-1", "offset=x"} {
		resp, err := http.Get(ts.URL + "/runs?" + q)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		resp.Body.Close() //nolint:errcheck
	}
}

func TestListChunks(t *testing.T) {
	_, ts, ledger, _ := newTestServer(t)
	ctx := context.Background()

	run, err := ledger.CreateRun(ctx, model.RunInput{})
	require.NoError(t, err)
	require.NoError(t, ledger.RecordChunk(ctx, run.ID, 0, model.ChunkResult{
		ChunkID: "chunk_1",
		Outcome: model.OutcomeExtracted,
		Merged:  []string{"11.1.1_Narrative_Report"},
	}))

	resp, err := http.Get(ts.URL + "/runs/" + run.ID + "/chunks")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	results := decode[[]model.ChunkResult](t, resp)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"11.1.1_Narrative_Report"}, results[0].Merged)
}

func TestGetReport(t *testing.T) {
	_, ts, ledger, _ := newTestServer(t)
	ctx := context.Background()

	pending, err := ledger.CreateRun(ctx, model.RunInput{})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/runs/" + pending.ID + "/report")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "report not available", decode[map[string]string](t, resp)["error"])

	report := "[\n    {\n        \"GRI_Ref_No\": \"11.1.1\"\n    }\n]\n"
	require.NoError(t, ledger.CompleteRun(ctx, pending.ID, store.RunCompletion{
		Status: model.RunStatusComplete,
		Report: []byte(report),
	}))

	resp, err = http.Get(ts.URL + "/runs/" + pending.ID + "/report")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, report, buf.String())
}

func TestCORS(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/runs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "https://dashboard.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
