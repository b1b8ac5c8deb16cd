// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes agent settings such
// as the database path, logging, background task intervals, and feed limits.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// FeedConfig defines feed subscription and polling settings.
type FeedConfig struct {
	PollInterval time.Duration // FEED_POLL_INTERVAL
	MaxSubs      int           // FEED_MAX_SUBS per community
	Blocklist    []string      // FEED_BLOCKLIST, comma separated feed ids
	RebuildRPS   float64       // FEED_REBUILD_RPS aggregate rebuilds per second
	RebuildBurst int           // FEED_REBUILD_BURST
}

// Config holds all configuration values for the agent.
type Config struct {
	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath string // SQLite path

	// Background tasks
	PruneInterval        time.Duration // strike expiry sweep
	DeadPruneInterval    time.Duration // departed community prune sweep
	DeadCommunityMaxAge  time.Duration // departed-for-longer-than gets pruned
	CommandFlushInterval time.Duration // usage counter flush
	TaskTimeout          time.Duration // per-run deadline for every task

	// Feeds
	Feed FeedConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from the environment (a local .env is applied
// first, if present), applies defaults, normalizes values, and validates the
// result.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath: getenv("DB_PATH", "steward.db"),

		// Background tasks
		PruneInterval:        getdur("PRUNE_INTERVAL", 24*time.Hour),
		DeadPruneInterval:    getdur("DEAD_PRUNE_INTERVAL", 7*24*time.Hour),
		DeadCommunityMaxAge:  getdur("DEAD_COMMUNITY_MAX_AGE", 90*24*time.Hour),
		CommandFlushInterval: getdur("COMMAND_FLUSH_INTERVAL", time.Hour),
		TaskTimeout:          getdur("TASK_TIMEOUT", 60*time.Second),

		// Feeds
		Feed: FeedConfig{
			PollInterval: getdur("FEED_POLL_INTERVAL", 30*time.Second),
			MaxSubs:      getint("FEED_MAX_SUBS", 8),
			Blocklist:    splitCSV(getenv("FEED_BLOCKLIST", "")),
			RebuildRPS:   getfloat("FEED_REBUILD_RPS", 1.0),
			RebuildBurst: getint("FEED_REBUILD_BURST", 2),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.PruneInterval <= 0 || cfg.DeadPruneInterval <= 0 || cfg.CommandFlushInterval <= 0 {
		return cfg, errors.New("task intervals must be positive durations")
	}
	if cfg.DeadCommunityMaxAge <= 0 {
		return cfg, errors.New("DEAD_COMMUNITY_MAX_AGE must be > 0")
	}
	if cfg.TaskTimeout <= 0 {
		return cfg, errors.New("TASK_TIMEOUT must be > 0")
	}
	if cfg.Feed.PollInterval <= 0 {
		return cfg, errors.New("FEED_POLL_INTERVAL must be > 0")
	}
	if cfg.Feed.MaxSubs < 1 {
		return cfg, errors.New("FEED_MAX_SUBS must be >= 1")
	}
	if cfg.Feed.RebuildRPS <= 0 {
		return cfg, errors.New("FEED_REBUILD_RPS must be > 0")
	}
	if cfg.Feed.RebuildBurst < 1 {
		return cfg, errors.New("FEED_REBUILD_BURST must be >= 1")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
