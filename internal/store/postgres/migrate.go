package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrator applies schema migrations with goose.
type Migrator struct {
	dsn string
	dir string
	log *slog.Logger
}

// NewMigrator returns a Migrator for the migrations directory.
func NewMigrator(dsn, dir string, log *slog.Logger) (*Migrator, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}
	if dir == "" {
		return nil, errors.New("empty migrations directory")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("locate migrations dir: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Migrator{dsn: dsn, dir: dir, log: log}, nil
}

// Up applies pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.withDB(func(db *sql.DB) error {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		m.log.Info("applying migrations", "dir", m.dir)
		if err := goose.UpContext(runCtx, db, m.dir); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		m.log.Info("migrations applied")
		return nil
	})
}

// Status prints applied and pending migrations.
func (m *Migrator) Status(ctx context.Context) error {
	return m.withDB(func(db *sql.DB) error {
		return goose.StatusContext(ctx, db, m.dir)
	})
}

// Down rolls back the latest migration, or down to targetVersion when it
// is positive.
func (m *Migrator) Down(ctx context.Context, targetVersion int64) error {
	return m.withDB(func(db *sql.DB) error {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		if targetVersion > 0 {
			m.log.Info("rolling back migrations", "target", targetVersion)
			return goose.DownToContext(runCtx, db, m.dir, targetVersion)
		}
		m.log.Info("rolling back latest migration")
		return goose.DownContext(runCtx, db, m.dir)
	})
}

func (m *Migrator) withDB(fn func(*sql.DB) error) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	db, err := sql.Open("pgx", m.dsn)
	if err != nil {
		return fmt.Errorf("open sql connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping sql connection: %w", err)
	}
	return fn(db)
}
