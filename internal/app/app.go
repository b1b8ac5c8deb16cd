// Package app wires the agent together: store, services, collaborators and
// the background scheduler. The platform adapters (gateway, actuator, feed
// source, broadcaster) are injected, so the package stays free of any
// concrete platform SDK.
package app

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/example/steward/internal/config"
	"github.com/example/steward/internal/repo"
	"github.com/example/steward/internal/scheduler"
	"github.com/example/steward/internal/services"
)

// App is the composed agent. Construct it with New, then call OnConnect once
// the gateway session is live and Run to start background work.
type App struct {
	Cfg config.Config
	Log zerolog.Logger
	DB  *gorm.DB

	Gateway services.Gateway

	Reconciler *services.Reconciler
	Settings   *services.SettingsCache
	Strikes    *services.StrikeService
	Feeds      *services.FeedManager
	Commands   *services.CommandInfoService
	Scheduler  *scheduler.Scheduler
}

// New opens the store, runs migrations, and builds the service graph.
func New(cfg config.Config, gateway services.Gateway, actuator services.Actuator, source services.FeedSource, sink services.Broadcaster) (*App, error) {
	log := NewLogger(cfg)

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}

	settings := services.NewSettingsCache(db, log)
	a := &App{
		Cfg:      cfg,
		Log:      log,
		DB:       db,
		Gateway:  gateway,
		Settings: settings,
		Reconciler: &services.Reconciler{
			DB:  db,
			Log: log.With().Str("component", "reconciler").Logger(),
		},
		Strikes: &services.StrikeService{
			DB:       db,
			Actuator: actuator,
			Log:      log.With().Str("component", "strikes").Logger(),
		},
		Feeds: &services.FeedManager{
			Source:    source,
			Sink:      sink,
			Settings:  settings,
			Log:       log.With().Str("component", "feeds").Logger(),
			MaxSubs:   cfg.Feed.MaxSubs,
			Blocklist: cfg.Feed.Blocklist,
			Limiter:   rate.NewLimiter(rate.Limit(cfg.Feed.RebuildRPS), cfg.Feed.RebuildBurst),
		},
		Commands: &services.CommandInfoService{
			DB:  db,
			Log: log.With().Str("component", "commands").Logger(),
		},
		Scheduler: &scheduler.Scheduler{
			Log:     log.With().Str("component", "scheduler").Logger(),
			Timeout: cfg.TaskTimeout,
		},
	}
	a.registerTasks()
	return a, nil
}

// OnConnect runs the connect-time sequence: reconcile membership against the
// gateway, load the settings cache, rebuild the feed subscriber state, and
// sync command metadata.
func (a *App) OnConnect(ctx context.Context, registeredCommands []string) error {
	observed, err := a.Gateway.CurrentMemberships(ctx)
	if err != nil {
		return err
	}
	if _, err := a.Reconciler.Reconcile(ctx, observed); err != nil {
		return err
	}
	if err := a.Settings.Load(ctx); err != nil {
		return err
	}
	a.Feeds.InitFromSettings(ctx)
	if err := a.Commands.Sync(ctx, registeredCommands); err != nil {
		return err
	}
	a.Log.Info().Int("communities", len(observed)).Msg("connect sequence complete")
	return nil
}

// Run starts the background task loops and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	a.Scheduler.Run(ctx)
}

func (a *App) registerTasks() {
	a.Scheduler.Every("feed-poll", a.Cfg.Feed.PollInterval, a.Feeds.PollNewItems)
	a.Scheduler.Every("strike-expiry", a.Cfg.PruneInterval, func(ctx context.Context) error {
		_, err := a.Strikes.PruneExpired(ctx)
		return err
	})
	a.Scheduler.Every("dead-community-prune", a.Cfg.DeadPruneInterval, func(ctx context.Context) error {
		_, err := a.Reconciler.PruneDeparted(ctx, int64(a.Cfg.DeadCommunityMaxAge/time.Second))
		return err
	})
	a.Scheduler.Every("command-usage-flush", a.Cfg.CommandFlushInterval, a.Commands.Flush)
}

// NewLogger builds the root logger from config: JSON by default, console
// writer when LOG_PRETTY is set.
func NewLogger(cfg config.Config) zerolog.Logger {
	setLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// setLogLevel configures the global zerolog level based on a string value.
// Supported values (case-insensitive): debug, info, warn, error, fatal, panic.
func setLogLevel(lvl string) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
