package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"log/slog"

	"github.com/spf13/cobra"

	"github.com/DHRUV1817/Puppeteer-Automation/internal/docker"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/provision"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/workspace"
	"github.com/DHRUV1817/Puppeteer-Automation/pkg/config"
	"github.com/DHRUV1817/Puppeteer-Automation/pkg/logger"
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

type cliOptions struct {
	contextDir string
	repoURL    string
	manifest   string
	tag        string
	name       string
	quiet      bool
	watch      bool
	statsSecs  int
}

func main() {
	cfg := config.LoadProvisionConfig()
	opts := cliOptions{
		contextDir: cfg.ContextDir,
		manifest:   cfg.ManifestPath,
		tag:        cfg.ImageTag,
		watch:      cfg.WatchContext,
		statsSecs:  int(cfg.StatsInterval.Seconds()),
	}
	log := logger.New("provisionctl", slog.LevelInfo)

	root := &cobra.Command{
		Use:     "provisionctl",
		Short:   "Build and launch the browser automation studio image",
		Version: getVersion(),
		Example: `  provisionctl render
  provisionctl build --context . --tag puppeteer-automation:latest
  provisionctl up --name studio
  provisionctl down --name studio`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.contextDir, "context", opts.contextDir, "build context directory")
	root.PersistentFlags().StringVar(&opts.repoURL, "repo", "", "git repository URL to use as build context")
	root.PersistentFlags().StringVar(&opts.manifest, "manifest", opts.manifest, "recipe manifest path (TOML)")
	root.PersistentFlags().StringVar(&opts.tag, "tag", opts.tag, "image tag")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress build output")

	render := &cobra.Command{
		Use:   "render",
		Short: "Print the generated Dockerfile",
		RunE: func(cmd *cobra.Command, args []string) error {
			recipe, err := provision.LoadManifest(opts.manifest)
			if err != nil {
				return err
			}
			fmt.Print(recipe.Render())
			return nil
		},
	}

	build := &cobra.Command{
		Use:   "build",
		Short: "Build the studio image from the recipe",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, recipe, cleanup, err := setup(cfg, opts, log)
			if err != nil {
				return err
			}
			defer cleanup()
			return pipeline.Build(cmd.Context(), source(opts), recipe, opts.tag)
		},
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Build the image, launch the container and wait for it to exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.StatsInterval = time.Duration(opts.statsSecs) * time.Second
			pipeline, recipe, cleanup, err := setup(cfg, opts, log)
			if err != nil {
				return err
			}
			defer cleanup()
			if opts.watch && opts.repoURL == "" {
				watcher, err := workspace.NewWatcher(opts.contextDir, log, func() {
					log.Warn("build context changed since this build, rerun up to pick up changes", "context", opts.contextDir)
				})
				if err != nil {
					return fmt.Errorf("context watcher: %w", err)
				}
				defer watcher.Close()
			}
			code, err := pipeline.Run(cmd.Context(), source(opts), recipe, opts.tag, opts.name)
			if err != nil {
				return err
			}
			if code != 0 {
				cleanup()
				os.Exit(int(code))
			}
			return nil
		},
	}
	up.Flags().StringVar(&opts.name, "name", "", "container name")
	up.Flags().BoolVar(&opts.watch, "watch", opts.watch, "warn when the build context changes while the container runs")
	up.Flags().IntVar(&opts.statsSecs, "stats", opts.statsSecs, "log container resource usage every N seconds (0 disables)")

	down := &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the studio container",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, _, cleanup, err := setup(cfg, opts, log)
			if err != nil {
				return err
			}
			defer cleanup()
			return pipeline.Down(cmd.Context(), opts.name)
		},
	}
	down.Flags().StringVar(&opts.name, "name", "", "container name")

	root.AddCommand(render, build, up, down)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func source(opts cliOptions) provision.Source {
	return provision.Source{Dir: opts.contextDir, RepoURL: opts.repoURL}
}

func setup(cfg config.ProvisionConfig, opts cliOptions, log *slog.Logger) (*provision.Pipeline, provision.Recipe, func(), error) {
	recipe, err := provision.LoadManifest(opts.manifest)
	if err != nil {
		return nil, provision.Recipe{}, nil, err
	}
	cli, err := docker.New(cfg.DockerHost)
	if err != nil {
		return nil, provision.Recipe{}, nil, fmt.Errorf("docker client: %w", err)
	}
	manager, err := workspace.New(os.TempDir())
	if err != nil {
		cli.Close()
		return nil, provision.Recipe{}, nil, fmt.Errorf("workspace: %w", err)
	}
	onStatus := func(st provision.Status) {
		log.Info("stage "+st.State, "stage", string(st.Stage), "message", st.Message)
	}
	var output io.Writer = os.Stdout
	if opts.quiet {
		output = io.Discard
	}
	pipeline := provision.New(cli, manager, log, cfg, onStatus, output)
	cleanup := func() { cli.Close() }
	return pipeline, recipe, cleanup, nil
}
