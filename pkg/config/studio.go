package config

import "time"

// StudioConfig holds runtime configuration for the automation studio server.
type StudioConfig struct {
	Environment    string
	Addr           string
	DatabaseURL    string
	MigrationsDir  string
	Workdir        string
	ScreenshotDir  string
	NodeBinary     string
	NpmBinary      string
	RunTimeout     time.Duration
	InstallTimeout time.Duration
	ProbeTimeout   time.Duration
	NavTimeout     time.Duration
	ViewportWidth  int
	ViewportHeight int
	RunRateLimit   int
	RunRateWindow  time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	LogLevel       string
}

// LoadStudioConfig constructs a StudioConfig from environment variables.
// Defaults mirror the studio's shipped configuration: the UI listens on
// 0.0.0.0:8501, analysis runs are capped at five minutes and dependency
// installation at ten.
func LoadStudioConfig() StudioConfig {
	return StudioConfig{
		Environment:    GetString("APP_ENV", "development"),
		Addr:           GetString("STUDIO_ADDR", "0.0.0.0:8501"),
		DatabaseURL:    GetString("DATABASE_URL", ""),
		MigrationsDir:  GetString("MIGRATIONS_DIR", "internal/store/postgres/migrations"),
		Workdir:        GetString("STUDIO_WORKDIR", "."),
		ScreenshotDir:  GetString("SCREENSHOT_DIR", "."),
		NodeBinary:     GetString("NODE_BINARY", ""),
		NpmBinary:      GetString("NPM_BINARY", ""),
		RunTimeout:     GetSeconds("RUN_TIMEOUT_SECONDS", 300),
		InstallTimeout: GetSeconds("INSTALL_TIMEOUT_SECONDS", 600),
		ProbeTimeout:   GetSeconds("PROBE_TIMEOUT_SECONDS", 10),
		NavTimeout:     GetSeconds("NAV_TIMEOUT_SECONDS", 45),
		ViewportWidth:  GetInt("VIEWPORT_WIDTH", 1280),
		ViewportHeight: GetInt("VIEWPORT_HEIGHT", 720),
		RunRateLimit:   GetInt("RUN_RATE_LIMIT", 10),
		RunRateWindow:  GetSeconds("RUN_RATE_WINDOW_SECONDS", 60),
		RedisAddr:      GetString("REDIS_ADDR", ""),
		RedisPassword:  GetString("REDIS_PASSWORD", ""),
		RedisDB:        GetInt("REDIS_DB", 0),
		LogLevel:       GetString("LOG_LEVEL", "info"),
	}
}
