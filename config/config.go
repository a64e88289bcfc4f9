/*
Package config handles loading and validating application configuration
from environment variables. All values have sensible defaults so the
application can start with zero environment setup during local development.
*/
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ExecutorProcess and ExecutorDocker are the accepted values of SpoonExecutor.
const (
	ExecutorProcess = "process"
	ExecutorDocker  = "docker"
)

// Config holds all configuration values for the application.
// values are read once at startup and passed through the app via dependency injection.
// no global config variable is used, callers receive a *Config explicitly.
type Config struct {
	// Port is the TCP port the HTTP server listens on
	Port string

	// the file path to the SQLite database file
	DBPath string

	// the base directory where per-build log files are written, one file per build ID
	LogRoot string

	// WorkspaceRoot is joined onto relative project workspaces from the projects file
	WorkspaceRoot string

	// LogFormat controls the output format of slog.
	// accepted values: "json" (default) | "text"
	LogFormat string

	// SpoonBinary is the executable run by the process executor
	SpoonBinary string

	// SpoonExecutor selects how the tool runs: "process" (default) or "docker"
	SpoonExecutor string

	// SpoonExecutorImage and SpoonExecutorPlatform configure the docker executor.
	// the image must contain the tool
	SpoonExecutorImage    string
	SpoonExecutorPlatform string

	// IdentityKeyPath is a PEM key whose public half answers webhook probes.
	// empty answers probes with the default identity
	IdentityKeyPath string

	// ProjectsFile is an optional TOML or YAML file of projects seeded into the database at startup
	ProjectsFile string

	// HookURL is the public URL of the webhook endpoint. when set, hook URL
	// validation refuses any other URL
	HookURL string

	// CORSAllowedOrigin enables CORS headers on the API for a browser frontend
	// served from another origin. empty sends no CORS headers
	CORSAllowedOrigin string

	// WorkerPollInterval is how often the build worker looks for queued builds
	WorkerPollInterval time.Duration

	// BuildRetention is how long finished builds and their logs are kept.
	// zero keeps them forever
	BuildRetention time.Duration
}

// Load reads configuration from environment variables and returns a populated Config.
// missing variables fall back to local development defaults.
// an unparsable duration or an unknown executor is an error.
func Load() (*Config, error) {
	pollInterval, err := time.ParseDuration(getEnv("WORKER_POLL_INTERVAL", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_POLL_INTERVAL: %w", err)
	}

	buildRetention, err := time.ParseDuration(getEnv("BUILD_RETENTION", "0s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BUILD_RETENTION: %w", err)
	}

	config := &Config{
		Port:                  getEnv("PORT", "8080"),
		DBPath:                getEnv("DB_PATH", "./spoon-trigger.db"),
		LogRoot:               getEnv("LOG_ROOT", "./data/logs"),
		WorkspaceRoot:         getEnv("WORKSPACE_ROOT", "./data/workspaces"),
		LogFormat:             getEnv("LOG_FORMAT", "json"),
		SpoonBinary:           getEnv("SPOON_BINARY", "spoon"),
		SpoonExecutor:         getEnv("SPOON_EXECUTOR", ExecutorProcess),
		SpoonExecutorImage:    getEnv("SPOON_EXECUTOR_IMAGE", ""),
		SpoonExecutorPlatform: getEnv("SPOON_EXECUTOR_PLATFORM", ""),
		IdentityKeyPath:       getEnv("IDENTITY_KEY_PATH", ""),
		ProjectsFile:          getEnv("PROJECTS_FILE", ""),
		HookURL:               getEnv("HOOK_URL", ""),
		CORSAllowedOrigin:     getEnv("CORS_ALLOWED_ORIGIN", ""),
		WorkerPollInterval:    pollInterval,
		BuildRetention:        buildRetention,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the values that have a fixed set of choices.
// called again after command line flags override the environment.
func (config *Config) Validate() error {
	switch config.SpoonExecutor {
	case ExecutorProcess:
	case ExecutorDocker:
		if config.SpoonExecutorImage == "" {
			return fmt.Errorf("SPOON_EXECUTOR_IMAGE is required when SPOON_EXECUTOR is %q", ExecutorDocker)
		}
	default:
		return fmt.Errorf("invalid SPOON_EXECUTOR %q, expected %q or %q", config.SpoonExecutor, ExecutorProcess, ExecutorDocker)
	}

	if config.WorkerPollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive, got %s", config.WorkerPollInterval)
	}
	if config.BuildRetention < 0 {
		return fmt.Errorf("BUILD_RETENTION cannot be negative, got %s", config.BuildRetention)
	}
	return nil
}

// getEnv retrieves the value of an environment variable by key.
// if the variable is not set or is empty, the fallback value is returned.
func getEnv(key, fallbackValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallbackValue
}

// NewLogger constructs a *slog.Logger based on the LogFormat field of the config.
// "text" produces human-readable output for local development,
// any other value (including "json") produces structured JSON output.
func (config *Config) NewLogger() *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		// AddSource adds the file name and line number to each log record
		AddSource: true,
		Level:     slog.LevelDebug,
	}

	if config.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
