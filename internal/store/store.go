// Package store persists automation run records.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/DHRUV1817/Puppeteer-Automation/internal/report"
)

// ErrNotFound indicates a run record was not located.
var ErrNotFound = errors.New("store: run not found")

// Run statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimedOut  = "timed_out"
)

// Run is a single automation execution and its outcome.
type Run struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	TargetURL  string         `json:"target_url,omitempty"`
	Status     string         `json:"status"`
	ExitCode   int            `json:"exit_code"`
	Stdout     string         `json:"stdout,omitempty"`
	Stderr     string         `json:"stderr,omitempty"`
	Error      string         `json:"error,omitempty"`
	Metrics    report.Metrics `json:"metrics"`
	DurationMS int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Finished reports whether the run reached a terminal status.
func (r Run) Finished() bool {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

// RunRepository persists runs.
type RunRepository interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
	GetRunByID(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
