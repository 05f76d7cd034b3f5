// Package postgres implements the run repository on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DHRUV1817/Puppeteer-Automation/internal/report"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/store"
)

// Repository persists runs on a pgx connection pool.
type Repository struct {
	pool *pgxpool.Pool
}

var _ store.RunRepository = (*Repository)(nil)

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateRun inserts a run record.
func (r *Repository) CreateRun(ctx context.Context, run *store.Run) error {
	const query = `INSERT INTO runs (id, kind, target_url, status, exit_code, stdout, stderr, error, metrics, duration_ms, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	_, err = r.pool.Exec(ctx, query,
		run.ID, run.Kind, run.TargetURL, run.Status, run.ExitCode,
		run.Stdout, run.Stderr, run.Error, metrics, run.DurationMS,
		run.CreatedAt, run.StartedAt, run.FinishedAt)
	return err
}

// UpdateRun replaces the mutable fields of a run.
func (r *Repository) UpdateRun(ctx context.Context, run *store.Run) error {
	const query = `UPDATE runs SET status = $2, exit_code = $3, stdout = $4, stderr = $5,
		error = $6, metrics = $7, duration_ms = $8, started_at = $9, finished_at = $10
		WHERE id = $1`
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	tag, err := r.pool.Exec(ctx, query,
		run.ID, run.Status, run.ExitCode, run.Stdout, run.Stderr,
		run.Error, metrics, run.DurationMS, run.StartedAt, run.FinishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRunByID fetches a run by identifier.
func (r *Repository) GetRunByID(ctx context.Context, id string) (*store.Run, error) {
	const query = `SELECT id, kind, target_url, status, exit_code, stdout, stderr, error, metrics, duration_ms, created_at, started_at, finished_at
		FROM runs WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs ordered newest first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	query := `SELECT id, kind, target_url, status, exit_code, stdout, stderr, error, metrics, duration_ms, created_at, started_at, finished_at
		FROM runs ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]store.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*store.Run, error) {
	var (
		run     store.Run
		metrics []byte
	)
	if err := row.Scan(&run.ID, &run.Kind, &run.TargetURL, &run.Status, &run.ExitCode,
		&run.Stdout, &run.Stderr, &run.Error, &metrics, &run.DurationMS,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}
	if len(metrics) > 0 {
		var m report.Metrics
		if err := json.Unmarshal(metrics, &m); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
		run.Metrics = m
	}
	return &run, nil
}
