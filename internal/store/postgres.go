package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gri-cli/internal/db"
	"github.com/sells-group/gri-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries prepared on each new connection.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, input, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_run":           `SELECT id, input, status, stats, report, error, created_at, updated_at FROM runs WHERE id = $1`,
	"record_chunk":      recordChunkSQL,
}

const recordChunkSQL = `INSERT INTO chunk_results
	(run_id, seq, chunk_id, outcome, offered, candidates, merged, rejections, error, token_usage, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (run_id, chunk_id) DO UPDATE SET
	seq = EXCLUDED.seq, outcome = EXCLUDED.outcome, offered = EXCLUDED.offered,
	candidates = EXCLUDED.candidates, merged = EXCLUDED.merged, rejections = EXCLUDED.rejections,
	error = EXCLUDED.error, token_usage = EXCLUDED.token_usage, duration_ms = EXCLUDED.duration_ms,
	recorded_at = now()`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	input      JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	stats      JSONB,
	report     TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chunk_results (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	seq         INTEGER NOT NULL,
	chunk_id    TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	offered     INTEGER NOT NULL DEFAULT 0,
	candidates  INTEGER NOT NULL DEFAULT 0,
	merged      JSONB NOT NULL,
	rejections  JSONB NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	token_usage JSONB NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, chunk_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_chunk_results_run_seq ON chunk_results(run_id, seq);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, input model.RunInput) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal input")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, input, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, inputJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Input:     input,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, c RunCompletion) error {
	var statsJSON []byte
	if c.Stats != nil {
		b, err := json.Marshal(c.Stats)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal stats")
		}
		statsJSON = b
	}
	var report *string
	if c.Report != nil {
		r := string(c.Report)
		report = &r
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, stats = $2, report = $3, error = $4, updated_at = $5 WHERE id = $6`,
		string(c.Status), statsJSON, report, c.Error, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var inputJSON []byte
	var statsJSON *[]byte
	var report *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, input, status, stats, report, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &inputJSON, &r.Status, &statsJSON, &report, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := decodeRun(&r, inputJSON, statsJSON); err != nil {
		return nil, err
	}
	if report != nil {
		r.Report = []byte(*report)
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, input, status, stats, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		var r model.Run
		var inputJSON []byte
		var statsJSON *[]byte

		if err := rows.Scan(&r.ID, &inputJSON, &r.Status, &statsJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := decodeRun(&r, inputJSON, statsJSON); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordChunk(ctx context.Context, runID string, seq int, res model.ChunkResult) error {
	cols, err := encodeChunk(res)
	if err != nil {
		return eris.Wrap(err, "postgres: encode chunk result")
	}

	_, err = s.pool.Exec(ctx, recordChunkSQL,
		runID, seq, res.ChunkID, string(res.Outcome), res.Offered, res.Candidates,
		cols.merged, cols.rejections, res.Error, cols.usage, res.DurationMs,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record chunk %s for run %s", res.ChunkID, runID)
	}
	return nil
}

func (s *PostgresStore) ListChunkResults(ctx context.Context, runID string) ([]model.ChunkResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT chunk_id, outcome, offered, candidates, merged, rejections, error, token_usage, duration_ms
		 FROM chunk_results WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list chunk results %s", runID)
	}
	defer rows.Close()

	out := []model.ChunkResult{}
	for rows.Next() {
		var res model.ChunkResult
		var merged, rejections, usage []byte
		if err := rows.Scan(&res.ChunkID, &res.Outcome, &res.Offered, &res.Candidates,
			&merged, &rejections, &res.Error, &usage, &res.DurationMs); err != nil {
			return nil, eris.Wrap(err, "postgres: scan chunk result")
		}
		if err := decodeChunk(&res, merged, rejections, usage); err != nil {
			return nil, eris.Wrap(err, "postgres: decode chunk result")
		}
		out = append(out, res)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list chunk results iterate")
}

func decodeRun(r *model.Run, inputJSON []byte, statsJSON *[]byte) error {
	if err := json.Unmarshal(inputJSON, &r.Input); err != nil {
		return eris.Wrap(err, "postgres: unmarshal input")
	}
	if statsJSON != nil {
		r.Stats = &model.RunStats{}
		if err := json.Unmarshal(*statsJSON, r.Stats); err != nil {
			return eris.Wrap(err, "postgres: unmarshal stats")
		}
	}
	return nil
}
