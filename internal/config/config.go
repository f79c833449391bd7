// Package config loads ghostline's runtime configuration from environment
// variables. This is the ambient bootstrap layer only — it is not the
// on-disk TOML config file or interactive setup wizard the CLI's outer
// shell may someday own; those live outside this module.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultProxyAddr is the default loopback address the recording/replay proxy listens on.
	DefaultProxyAddr = "127.0.0.1:9000"
	// DefaultOpsAddr is the default loopback address the ops/admin HTTP surface listens on.
	DefaultOpsAddr = "127.0.0.1:9001"
	// DefaultUpstream is the default upstream target the recording proxy forwards to.
	DefaultUpstream = "https://api.anthropic.com"
	// DefaultOutputDir is the default directory containing .ghostline containers.
	DefaultOutputDir = "./runs"

	// DefaultAdminRateWindow bounds how frequently admin operations may be requested.
	DefaultAdminRateWindow = time.Minute
	// DefaultAdminRateBurst sets how many admin requests may be made per window.
	DefaultAdminRateBurst = 5

	// DefaultLogLevel controls verbosity for ghostline logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "ghostline.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultRetentionMaxRuns bounds how many containers are kept in the output directory.
	DefaultRetentionMaxRuns = 0 // 0 disables count-based retention
	// DefaultRetentionMaxAge bounds how long a container is kept before eligible for removal.
	DefaultRetentionMaxAge = 0 // 0 disables age-based retention
)

// Config captures all runtime tunables for ghostline's proxy and ops binaries.
type Config struct {
	ProxyAddr  string
	OpsAddr    string
	Upstream   string
	OutputDir  string
	AdminToken string

	AdminRateWindow time.Duration
	AdminRateBurst  int

	RetentionMaxRuns int
	RetentionMaxAge  time.Duration

	Logging LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads ghostline's configuration from environment variables, applying sane
// defaults and returning a combined error for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		ProxyAddr:       getString("GHOSTLINE_PROXY_ADDR", DefaultProxyAddr),
		OpsAddr:         getString("GHOSTLINE_OPS_ADDR", DefaultOpsAddr),
		Upstream:        getString("GHOSTLINE_UPSTREAM", DefaultUpstream),
		OutputDir:       getString("GHOSTLINE_OUTPUT_DIR", DefaultOutputDir),
		AdminToken:      strings.TrimSpace(os.Getenv("GHOSTLINE_ADMIN_TOKEN")),
		AdminRateWindow: DefaultAdminRateWindow,
		AdminRateBurst:  DefaultAdminRateBurst,
		RetentionMaxRuns: DefaultRetentionMaxRuns,
		RetentionMaxAge:  DefaultRetentionMaxAge,
		Logging: LoggingConfig{
			Level:      getString("GHOSTLINE_LOG_LEVEL", DefaultLogLevel),
			Path:       getString("GHOSTLINE_LOG_PATH", DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("GHOSTLINE_ADMIN_RATE_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("GHOSTLINE_ADMIN_RATE_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.AdminRateWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GHOSTLINE_ADMIN_RATE_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("GHOSTLINE_ADMIN_RATE_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.AdminRateBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GHOSTLINE_RETENTION_MAX_RUNS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("GHOSTLINE_RETENTION_MAX_RUNS must be a non-negative integer, got %q", raw))
		} else {
			cfg.RetentionMaxRuns = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GHOSTLINE_RETENTION_MAX_AGE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("GHOSTLINE_RETENTION_MAX_AGE must be a non-negative duration, got %q", raw))
		} else {
			cfg.RetentionMaxAge = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GHOSTLINE_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("GHOSTLINE_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GHOSTLINE_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("GHOSTLINE_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GHOSTLINE_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("GHOSTLINE_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("GHOSTLINE_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("GHOSTLINE_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if raw := os.Getenv("GHOSTLINE_UPSTREAM"); raw != "" && strings.TrimSpace(raw) == "" {
		problems = append(problems, "GHOSTLINE_UPSTREAM must not be empty")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
