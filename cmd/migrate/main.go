package main

import (
	"context"
	"flag"
	"os"
	"time"

	"log/slog"

	"github.com/DHRUV1817/Puppeteer-Automation/internal/store/postgres"
	"github.com/DHRUV1817/Puppeteer-Automation/pkg/config"
	"github.com/DHRUV1817/Puppeteer-Automation/pkg/logger"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	flag.Parse()

	cfg := config.LoadStudioConfig()
	log := logger.New("migrate", slog.LevelInfo)

	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	migrator, err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrator", "error", err)
		os.Exit(1)
	}

	switch *command {
	case "up":
		err = migrator.Up(ctx)
	case "status":
		err = migrator.Status(ctx)
	case "down":
		err = migrator.Down(ctx, *target)
	default:
		log.Error("unsupported command", "command", *command)
		os.Exit(1)
	}
	if err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}
	log.Info("migration command completed", "command", *command)
}
