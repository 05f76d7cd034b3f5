package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DHRUV1817/Puppeteer-Automation/internal/docker"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/workspace"
	"github.com/DHRUV1817/Puppeteer-Automation/pkg/config"
	"github.com/DHRUV1817/Puppeteer-Automation/pkg/runtime/telemetry"
)

// StageError attributes a pipeline failure to the stage it occurred in.
// Failures are terminal: no stage is retried and no later stage runs.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Status reports stage progression to the caller.
type Status struct {
	Stage   Stage
	State   string // "started", "completed", "failed"
	Message string
}

// StatusFunc receives stage transitions. Callbacks run synchronously on the
// pipeline goroutine.
type StatusFunc func(Status)

// Source names where the build context comes from: a local project
// directory copied verbatim, or a repository cloned shallowly.
type Source struct {
	Dir     string
	RepoURL string
}

// Pipeline executes the provisioning procedure: a single unconditional path
// through the stages, aborting on the first failure.
type Pipeline struct {
	docker    *docker.Client
	ws        *workspace.Manager
	logger    *slog.Logger
	cfg       config.ProvisionConfig
	onStatus  StatusFunc
	logOutput io.Writer
}

// New constructs a Pipeline. onStatus and logOutput may be nil.
func New(cli *docker.Client, ws *workspace.Manager, logger *slog.Logger, cfg config.ProvisionConfig, onStatus StatusFunc, logOutput io.Writer) *Pipeline {
	return &Pipeline{
		docker:    cli,
		ws:        ws,
		logger:    logger,
		cfg:       cfg,
		onStatus:  onStatus,
		logOutput: logOutput,
	}
}

func (p *Pipeline) emit(stage Stage, state, message string) {
	if p.logger != nil {
		p.logger.Info("provision stage", "stage", string(stage), "state", state, "message", message)
	}
	if p.onStatus != nil {
		p.onStatus(Status{Stage: stage, State: state, Message: message})
	}
}

func (p *Pipeline) fail(stage Stage, err error) error {
	p.emit(stage, "failed", err.Error())
	if p.logger != nil {
		p.logger.Error("provision stage failed", "stage", string(stage), "error", err)
	}
	return &StageError{Stage: stage, Err: err}
}

// Build materializes the build context and produces the image. The Docker
// build output is attributed back to provisioning stages through the
// recipe's stage plan.
func (p *Pipeline) Build(ctx context.Context, source Source, recipe Recipe, tag string) error {
	if err := recipe.Validate(); err != nil {
		return p.fail(StageBase, err)
	}
	if strings.TrimSpace(tag) == "" {
		return p.fail(StageBase, fmt.Errorf("image tag required"))
	}
	if p.docker == nil {
		return p.fail(StageBase, fmt.Errorf("docker client not initialised"))
	}
	if err := p.docker.Ping(ctx); err != nil {
		return p.fail(StageBase, err)
	}

	// Host-side context materialization belongs to the workspace stage;
	// progression is reported from the build stream so every stage is
	// announced exactly once, in order.
	workdir, err := p.ws.Prepare(uuid.NewString())
	if err != nil {
		return p.fail(StageWorkspace, err)
	}
	defer func() {
		if err := p.ws.Cleanup(workdir); err != nil && p.logger != nil {
			p.logger.Warn("workspace cleanup failed", "workdir", workdir, "error", err)
		}
	}()

	if err := p.materialize(ctx, source, workdir); err != nil {
		return p.fail(StageWorkspace, err)
	}
	dockerfile := filepath.Join(workdir, "Dockerfile")
	if err := os.WriteFile(dockerfile, []byte(recipe.Render()), 0o644); err != nil {
		return p.fail(StageWorkspace, fmt.Errorf("write dockerfile: %w", err))
	}
	files, err := workspace.Snapshot(workdir)
	if err != nil {
		return p.fail(StageWorkspace, err)
	}
	if p.logger != nil {
		p.logger.Info("build context materialized", "workdir", workdir, "files", len(files))
	}

	buildCtx, cancel := context.WithTimeout(ctx, p.cfg.BuildTimeout)
	defer cancel()

	tracker := newStageTracker(recipe.StagePlan(), p.emit)
	tracker.Start()
	if err := p.docker.BuildImage(buildCtx, workdir, tag, func(line string) {
		tracker.Observe(line)
		if p.logOutput != nil {
			fmt.Fprint(p.logOutput, line)
		}
		if p.logger != nil {
			p.logger.Debug("image build output", "line", strings.TrimSpace(line))
		}
	}); err != nil {
		return p.fail(tracker.Current(), err)
	}
	tracker.Finish()
	return nil
}

func (p *Pipeline) materialize(ctx context.Context, source Source, workdir string) error {
	switch {
	case strings.TrimSpace(source.RepoURL) != "":
		cloneCtx, cancel := context.WithTimeout(ctx, p.cfg.GitTimeout)
		defer cancel()
		return workspace.MaterializeRepo(cloneCtx, source.RepoURL, workdir)
	case strings.TrimSpace(source.Dir) != "":
		return workspace.Materialize(source.Dir, workdir)
	default:
		return fmt.Errorf("build context source required")
	}
}

// Launch starts the provisioned image as the single foreground process
// publishing the recipe's declared port on every interface.
func (p *Pipeline) Launch(ctx context.Context, tag, name string, recipe Recipe) (docker.ContainerInfo, error) {
	if strings.TrimSpace(name) == "" {
		name = "puppeteer-automation"
	}
	p.emit(StageLaunch, "started", "starting container")
	if err := p.docker.RemoveContainer(ctx, name); err != nil {
		return docker.ContainerInfo{}, p.fail(StageLaunch, err)
	}
	info, err := p.docker.RunContainer(ctx, name, tag, recipe.Port)
	if err != nil {
		return docker.ContainerInfo{}, p.fail(StageLaunch, err)
	}
	p.emit(StageLaunch, "completed", fmt.Sprintf("listening on %s:%s", info.HostIP, info.HostPort))
	return info, nil
}

// Run executes the full procedure: build, launch, then block until the
// container's process terminates. The container's exit code is returned
// unchanged; a non-zero code is the launched process's failure, not the
// pipeline's.
func (p *Pipeline) Run(ctx context.Context, source Source, recipe Recipe, tag, name string) (int64, error) {
	if err := p.Build(ctx, source, recipe, tag); err != nil {
		return -1, err
	}
	info, err := p.Launch(ctx, tag, name, recipe)
	if err != nil {
		return -1, err
	}

	if p.logOutput != nil {
		logCtx, cancelLogs := context.WithCancel(ctx)
		defer cancelLogs()
		go func() {
			if err := p.docker.StreamLogs(logCtx, info.ID, p.logOutput); err != nil && p.logger != nil {
				p.logger.Warn("container log streaming failed", "container_id", info.ID, "error", err)
			}
		}()
	}

	if p.cfg.StatsInterval > 0 {
		statsCtx, cancelStats := context.WithCancel(ctx)
		defer cancelStats()
		go p.observeStats(statsCtx, info.ID)
	}

	code, err := p.docker.WaitForExit(ctx, info.ID)
	if err != nil {
		return -1, p.fail(StageLaunch, err)
	}
	if p.logger != nil {
		p.logger.Info("container exited", "container_id", info.ID, "exit_code", code)
	}
	return code, nil
}

// observeStats samples container resource usage on the configured interval
// and logs each reading until the context ends.
func (p *Pipeline) observeStats(ctx context.Context, containerID string) {
	sampler, err := telemetry.NewSampler(p.cfg.StatsInterval,
		func(ctx context.Context) (telemetry.Stats, error) {
			m, err := p.docker.ContainerMetrics(ctx, containerID)
			if err != nil {
				return telemetry.Stats{}, err
			}
			return telemetry.Stats{CPUPercent: m.CPUPercent, MemoryUsage: m.MemoryUsage, MemoryLimit: m.MemoryLimit}, nil
		},
		func(stats telemetry.Stats, err error) {
			if p.logger == nil {
				return
			}
			if err != nil {
				p.logger.Warn("container stats sample failed", "container_id", containerID, "error", err)
				return
			}
			p.logger.Info("container stats", "container_id", containerID,
				"cpu_percent", fmt.Sprintf("%.2f", stats.CPUPercent),
				"memory_usage", stats.MemoryUsage,
				"memory_percent", fmt.Sprintf("%.2f", stats.MemoryPercent()))
		})
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("container stats observation disabled", "error", err)
		}
		return
	}
	sampler.Run(ctx)
}

// Down removes the launched container, if any.
func (p *Pipeline) Down(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		name = "puppeteer-automation"
	}
	return p.docker.RemoveContainer(ctx, name)
}

var stepPattern = regexp.MustCompile(`^Step (\d+)/(\d+)`)

// stageTracker folds classic-builder step markers back into provisioning
// stages and emits a transition whenever the active stage changes.
type stageTracker struct {
	plan    []Stage
	emit    func(Stage, string, string)
	current Stage
	started time.Time
}

func newStageTracker(plan []Stage, emit func(Stage, string, string)) *stageTracker {
	return &stageTracker{plan: plan, emit: emit, current: StageBase}
}

func (t *stageTracker) Start() {
	t.started = time.Now()
	t.emit(t.current, "started", "image build started")
}

// Observe inspects one line of build output for a step marker.
func (t *stageTracker) Observe(line string) {
	m := stepPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return
	}
	step, err := strconv.Atoi(m[1])
	if err != nil || step < 1 || step > len(t.plan) {
		return
	}
	next := t.plan[step-1]
	if next == t.current {
		return
	}
	t.emit(t.current, "completed", "")
	t.current = next
	t.emit(t.current, "started", "")
}

// Current reports the stage the build is in, for failure attribution.
func (t *stageTracker) Current() Stage { return t.current }

func (t *stageTracker) Finish() {
	t.emit(t.current, "completed", fmt.Sprintf("image build finished in %s", time.Since(t.started).Round(time.Millisecond)))
}
