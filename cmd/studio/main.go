package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DHRUV1817/Puppeteer-Automation/internal/httpx"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/nodedeps"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/runner"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/script"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/store"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/store/memory"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/store/postgres"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/studio"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/toolchain"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/ui"
	"github.com/DHRUV1817/Puppeteer-Automation/internal/ws"
	"github.com/DHRUV1817/Puppeteer-Automation/pkg/config"
	"github.com/DHRUV1817/Puppeteer-Automation/pkg/logger"
)

func main() {
	cfg := config.LoadStudioConfig()
	log := logger.New("studio", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo     store.RunRepository
		dbHealth func(context.Context) error
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if cfg.MigrationsDir != "" {
			migrator, err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsDir, log)
			if err != nil {
				log.Error("migrator setup failed", "error", err)
				os.Exit(1)
			}
			if err := migrator.Up(ctx); err != nil {
				log.Error("migrations failed", "error", err)
				os.Exit(1)
			}
		}
		repo = postgres.New(pool)
		dbHealth = pool.Ping
		log.Info("using postgres run store")
	} else {
		repo = memory.New()
		log.Info("using in-memory run store")
	}

	nodeBin := cfg.NodeBinary
	if nodeBin == "" {
		nodeBin = "node"
	}
	npmBin := cfg.NpmBinary
	if npmBin == "" {
		npmBin = "npm"
	}
	prober := toolchain.New(cfg.NodeBinary, cfg.NpmBinary, cfg.ProbeTimeout)
	installer, err := nodedeps.New(cfg.Workdir, npmBin, cfg.InstallTimeout, log)
	if err != nil {
		log.Error("installer setup failed", "error", err)
		os.Exit(1)
	}
	generator := script.NewGenerator(script.Options{
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		NavTimeout:     cfg.NavTimeout,
		Headless:       true,
	})
	scriptRunner := runner.New(nodeBin, cfg.Workdir, cfg.RunTimeout, log)

	hub := ws.NewHub()
	defer hub.Shutdown()

	svc := studio.New(prober, installer, generator, scriptRunner, repo, hub,
		cfg.ScreenshotDir, cfg.RunTimeout, log)

	index, err := ui.New(log)
	if err != nil {
		log.Error("ui setup failed", "error", err)
		os.Exit(1)
	}

	var limiter httpx.RateLimiter
	if cfg.RedisAddr != "" {
		limiter, err = httpx.NewRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Error("redis rate limiter unavailable, falling back to memory", "error", err)
			limiter = httpx.NewMemoryRateLimiter()
		}
	}

	router := httpx.NewRouter(log, svc, hub, index, limiter, cfg.RunRateLimit, cfg.RunRateWindow, dbHealth)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("studio server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("studio server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
