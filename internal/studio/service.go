// Package studio orchestrates environment checks, dependency setup and
// browser automation runs, and streams run progress to subscribers.
package studio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DHRUV1817/Puppeteer-Automation/internal/nodedeps"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/report"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/runner"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/script"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/store"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/toolchain"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/ws"
)

// Service wires the automation workflow together.
type Service struct {
	prober        *toolchain.Prober
	installer     *nodedeps.Installer
	generator     *script.Generator
	runner        *runner.Runner
	runs          store.RunRepository
	hub           *ws.Hub
	screenshotDir string
	runTimeout    time.Duration
	logger        *slog.Logger
}

// New constructs a Service.
func New(prober *toolchain.Prober, installer *nodedeps.Installer, generator *script.Generator,
	run *runner.Runner, runs store.RunRepository, hub *ws.Hub,
	screenshotDir string, runTimeout time.Duration, logger *slog.Logger) *Service {
	if runTimeout <= 0 {
		runTimeout = 5 * time.Minute
	}
	return &Service{
		prober:        prober,
		installer:     installer,
		generator:     generator,
		runner:        run,
		runs:          runs,
		hub:           hub,
		screenshotDir: screenshotDir,
		runTimeout:    runTimeout,
		logger:        logger,
	}
}

// Environment probes the Node.js toolchain.
func (s *Service) Environment(ctx context.Context) toolchain.Environment {
	return s.prober.Validate(ctx)
}

// InstallDeps ensures the automation dependencies are installed.
func (s *Service) InstallDeps(ctx context.Context) (nodedeps.Result, error) {
	env := s.prober.Validate(ctx)
	if !env.Valid {
		return nodedeps.Result{}, fmt.Errorf("environment not ready: %s", env.Reason)
	}
	return s.installer.Ensure(ctx), nil
}

// StartRun validates the request, records a pending run and executes it in
// the background. Progress is published to the hub under the run ID.
func (s *Service) StartRun(ctx context.Context, kind, targetURL string) (*store.Run, error) {
	env := s.prober.Validate(ctx)
	if !env.Valid {
		return nil, fmt.Errorf("environment not ready: %s", env.Reason)
	}
	if !s.installer.Installed() {
		return nil, fmt.Errorf("dependencies not installed, run install first")
	}

	source, err := s.generator.Render(script.Kind(kind), targetURL)
	if err != nil {
		return nil, err
	}

	run := &store.Run{
		ID:        uuid.NewString(),
		Kind:      string(normalizeKind(kind)),
		TargetURL: strings.TrimSpace(targetURL),
		Status:    store.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}

	go s.execute(*run, source)
	return run, nil
}

func normalizeKind(kind string) script.Kind {
	if kind == "" {
		return script.KindDefault
	}
	return script.Kind(kind)
}

// execute runs the script to completion. It owns its own context so an HTTP
// request cancellation does not abort an in-flight run.
func (s *Service) execute(run store.Run, source string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout+time.Minute)
	defer cancel()

	now := time.Now().UTC()
	run.Status = store.StatusRunning
	run.StartedAt = &now
	if err := s.runs.UpdateRun(ctx, &run); err != nil {
		s.logger.Error("updating run", "run_id", run.ID, "error", err)
	}
	s.publish(run, "run started")

	res, err := s.runner.Run(ctx, source)
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.DurationMS = res.Duration.Milliseconds()
	run.Stdout = res.Stdout
	run.Stderr = res.Stderr
	run.ExitCode = res.ExitCode

	switch {
	case err != nil:
		run.Status = store.StatusFailed
		run.Error = err.Error()
	case res.TimedOut:
		run.Status = store.StatusTimedOut
		run.Error = fmt.Sprintf("script exceeded %s timeout", s.runTimeout)
	case res.Success:
		run.Status = store.StatusCompleted
		run.Metrics = report.Parse(res.Stdout)
	default:
		run.Status = store.StatusFailed
		run.Error = fmt.Sprintf("script exited with code %d", res.ExitCode)
	}

	if err := s.runs.UpdateRun(ctx, &run); err != nil {
		s.logger.Error("updating run", "run_id", run.ID, "error", err)
	}

	s.streamOutput(run.ID, res)
	s.publish(run, "run "+run.Status)
	s.logger.Info("run finished", "run_id", run.ID, "status", run.Status,
		"duration_ms", run.DurationMS, "exit_code", run.ExitCode)
}

// streamOutput replays captured stdout to subscribers line by line.
func (s *Service) streamOutput(runID string, res runner.Result) {
	for _, line := range strings.Split(strings.TrimRight(res.Stdout, "\n"), "\n") {
		if line == "" {
			continue
		}
		s.hub.Publish(ws.Event{Type: "log", RunID: runID, Line: line})
	}
	for _, line := range strings.Split(strings.TrimRight(res.Stderr, "\n"), "\n") {
		if line == "" {
			continue
		}
		s.hub.Publish(ws.Event{Type: "stderr", RunID: runID, Line: line})
	}
}

func (s *Service) publish(run store.Run, line string) {
	s.hub.Publish(ws.Event{Type: "status", RunID: run.ID, Line: line, Data: run})
}

// GetRun fetches a run by identifier.
func (s *Service) GetRun(ctx context.Context, id string) (*store.Run, error) {
	return s.runs.GetRunByID(ctx, id)
}

// ListRuns returns the most recent runs.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	return s.runs.ListRuns(ctx, limit)
}

// Screenshot describes a captured image on disk.
type Screenshot struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ListScreenshots returns PNG captures in the screenshot directory, newest
// first.
func (s *Service) ListScreenshots() ([]Screenshot, error) {
	entries, err := os.ReadDir(s.screenshotDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Screenshot{}, nil
		}
		return nil, fmt.Errorf("reading screenshot dir: %w", err)
	}
	shots := make([]Screenshot, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".png") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		shots = append(shots, Screenshot{Name: entry.Name(), Size: info.Size(), Modified: info.ModTime()})
	}
	sort.Slice(shots, func(i, j int) bool { return shots[i].Modified.After(shots[j].Modified) })
	return shots, nil
}

// ScreenshotPath resolves a screenshot name to its on-disk path. Names with
// path separators or without the png extension are rejected.
func (s *Service) ScreenshotPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, ".png") {
		return "", fmt.Errorf("invalid screenshot name %q", name)
	}
	path := filepath.Join(s.screenshotDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("screenshot %q: %w", name, err)
	}
	return path, nil
}
