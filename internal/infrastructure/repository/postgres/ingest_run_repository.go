package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

// IngestRunRepository is the ledger of ingestion runs.
type IngestRunRepository struct {
	db *sql.DB
}

func NewIngestRunRepository(db *sql.DB) *IngestRunRepository {
	return &IngestRunRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *IngestRunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	status TEXT NOT NULL,
	pages INTEGER NOT NULL DEFAULT 0,
	items INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_source_started ON ingest_runs(source, started_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *IngestRunRepository) StartRun(ctx context.Context, run *domain.IngestRun) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO ingest_runs (id, source, status, pages, items, started_at)
VALUES ($1, $2, $3, 0, 0, $4)
`, run.ID, run.Source, string(run.Status), run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert ingest run: %w", err)
	}
	return nil
}

func (r *IngestRunRepository) FinishRun(ctx context.Context, run *domain.IngestRun) error {
	finishedAt := time.Now().UTC()
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE ingest_runs
SET status = $2, pages = $3, items = $4, error_message = $5, finished_at = $6
WHERE id = $1
`, run.ID, string(run.Status), run.Pages, run.Items, nullableString(run.Error), finishedAt)
	if err != nil {
		return fmt.Errorf("update ingest run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ingest run rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update ingest run %s: %w", run.ID, errRunNotFound)
	}
	return nil
}

// ListRecent returns the latest runs, newest first. An empty source lists
// every source.
func (r *IngestRunRepository) ListRecent(ctx context.Context, source string, limit int) ([]domain.IngestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, source, status, pages, items, COALESCE(error_message, ''), started_at, finished_at
FROM ingest_runs
WHERE ($1 = '' OR source = $1)
ORDER BY started_at DESC
LIMIT $2
`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("list ingest runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.IngestRun, 0, limit)
	for rows.Next() {
		var (
			run      domain.IngestRun
			status   string
			finished sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.Source, &status, &run.Pages, &run.Items, &run.Error, &run.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan ingest run: %w", err)
		}
		run.Status = domain.IngestRunStatus(status)
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingest runs: %w", err)
	}
	return out, nil
}

var errRunNotFound = errors.New("ingest run not found")

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
