// Package usage keeps the per-run usage ledger in Postgres.
package usage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"comment-insights/internal/common/logger"
	"comment-insights/internal/engine/orchestrator"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	run_id        TEXT PRIMARY KEY,
	model         TEXT        NOT NULL,
	items         INTEGER     NOT NULL,
	processed     INTEGER     NOT NULL,
	batches       INTEGER     NOT NULL,
	failed        INTEGER     NOT NULL,
	cache_hits    INTEGER     NOT NULL,
	remote_calls  INTEGER     NOT NULL,
	tokens_spent  INTEGER     NOT NULL,
	duration_ms   BIGINT      NOT NULL,
	status        TEXT        NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL
)`

const insertRunSQL = `INSERT INTO analysis_runs
	(run_id, model, items, processed, batches, failed, cache_hits, remote_calls, tokens_spent, duration_ms, status, started_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (run_id) DO NOTHING`

const recentRunsSQL = `SELECT run_id, model, items, processed, batches, failed, cache_hits, remote_calls,
	tokens_spent, duration_ms, status, started_at
	FROM analysis_runs ORDER BY started_at DESC LIMIT $1`

const tokensSinceSQL = `SELECT COALESCE(SUM(tokens_spent), 0) FROM analysis_runs WHERE started_at >= $1`

// pqUndefinedTable is the SQLSTATE Postgres returns for a missing relation.
const pqUndefinedTable = "42P01"

// Ledger implements orchestrator.RunRecorder.
type Ledger struct {
	db     *sql.DB
	logger logger.Logger
}

func NewLedger(db *sql.DB, log logger.Logger) *Ledger {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Ledger{db: db, logger: log.With(map[string]interface{}{"component": "usage-ledger"})}
}

func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create analysis_runs: %w", err)
	}
	return nil
}

// RecordRun inserts rec. A ledger that was never migrated is migrated on
// first use. Recording the same run twice is a no-op.
func (l *Ledger) RecordRun(ctx context.Context, rec orchestrator.RunRecord) error {
	err := l.insert(ctx, rec)
	if isUndefinedTable(err) {
		l.logger.Warn("analysis_runs missing, creating it", nil)
		if err := l.EnsureSchema(ctx); err != nil {
			return err
		}
		err = l.insert(ctx, rec)
	}
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.RunID, err)
	}
	return nil
}

func (l *Ledger) insert(ctx context.Context, rec orchestrator.RunRecord) error {
	_, err := l.db.ExecContext(ctx, insertRunSQL,
		rec.RunID, rec.Model, rec.Items, rec.Processed, rec.Batches, rec.Failed, rec.CacheHits,
		rec.RemoteCalls, rec.TokensSpent, rec.Duration.Milliseconds(), rec.Status, rec.StartedAt.UTC())
	return err
}

// Recent returns up to limit runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]orchestrator.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, recentRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query analysis_runs: %w", err)
	}
	defer rows.Close()

	var out []orchestrator.RunRecord
	for rows.Next() {
		var rec orchestrator.RunRecord
		var durationMs int64
		if err := rows.Scan(&rec.RunID, &rec.Model, &rec.Items, &rec.Processed, &rec.Batches, &rec.Failed,
			&rec.CacheHits, &rec.RemoteCalls, &rec.TokensSpent, &durationMs, &rec.Status, &rec.StartedAt); err != nil {
			return nil, fmt.Errorf("scan analysis_runs: %w", err)
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TokensSince sums the tokens spent by runs started at or after since.
func (l *Ledger) TokensSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	if err := l.db.QueryRowContext(ctx, tokensSinceSQL, since.UTC()).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum tokens: %w", err)
	}
	return total, nil
}

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == pqUndefinedTable
}
