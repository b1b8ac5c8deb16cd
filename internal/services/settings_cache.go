// Package services – SettingsCache
//
// The settings cache owns the in-memory map of community settings documents.
// Feature code never touches the raw map or a shared pointer: Get hands out
// value snapshots, and the only mutation path is Update, which loads,
// applies the caller's function, and flushes to the store as one unit under
// the cache lock. That closes the read-modify-write window that an exposed
// mutable structure would open between interleaved handlers.
package services

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/example/steward/internal/domain"
	"github.com/example/steward/internal/repo"
)

// SettingsCache caches community settings documents keyed by community id.
// The store remains authoritative; the cache is advisory until flushed, and
// Update is the flush point.
type SettingsCache struct {
	db  *gorm.DB
	log zerolog.Logger

	mu sync.Mutex
	m  map[int64]domain.Settings
}

// NewSettingsCache returns an empty cache bound to the store.
func NewSettingsCache(db *gorm.DB, log zerolog.Logger) *SettingsCache {
	return &SettingsCache{
		db:  db,
		log: log.With().Str("component", "settings-cache").Logger(),
		m:   make(map[int64]domain.Settings),
	}
}

// Load populates the cache with the settings of every active community.
// Called once after reconciliation; safe to call again to re-read the store.
// A row whose document fails to decode is skipped with an error log so one
// corrupt blob cannot take every community's settings down.
func (c *SettingsCache) Load(ctx context.Context) error {
	rows, err := repo.LoadActiveSettings(ctx, c.db)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[int64]domain.Settings, len(rows))
	for _, row := range rows {
		s, err := domain.DecodeSettings(row.Document)
		if err != nil {
			c.log.Error().Err(err).Int64("community", row.CommunityID).
				Msg("skipping undecodable settings document")
			continue
		}
		c.m[row.CommunityID] = s
	}
	c.log.Debug().Int("communities", len(c.m)).Msg("settings cache loaded")
	return nil
}

// Get returns a snapshot of one community's settings. An uncached community
// is read through from the store; a community with no row at all yields the
// zero Settings value, mirroring "unconfigured".
func (c *SettingsCache) Get(ctx context.Context, communityID int64) (domain.Settings, error) {
	c.mu.Lock()
	if s, ok := c.m[communityID]; ok {
		c.mu.Unlock()
		return s.Clone(), nil
	}
	c.mu.Unlock()

	row, err := repo.GetSettings(ctx, c.db, communityID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Settings{}, nil
	}
	if err != nil {
		return domain.Settings{}, err
	}
	s, err := domain.DecodeSettings(row.Document)
	if err != nil {
		return domain.Settings{}, err
	}

	c.mu.Lock()
	c.m[communityID] = s
	c.mu.Unlock()
	return s.Clone(), nil
}

// Update atomically applies fn to the community's settings and persists the
// result. fn receives a working copy; returning an error abandons the update
// with no state change, in memory or on disk. The cache entry is replaced
// only after the store write succeeds, so a failed flush never leaves the
// cache ahead of the store.
func (c *SettingsCache) Update(ctx context.Context, communityID int64, fn func(*domain.Settings) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.m[communityID]
	if !ok {
		row, err := repo.GetSettings(ctx, c.db, communityID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			current = domain.Settings{}
		case err != nil:
			return err
		default:
			if current, err = domain.DecodeSettings(row.Document); err != nil {
				return err
			}
		}
	}

	working := current.Clone()
	if err := fn(&working); err != nil {
		return err
	}

	doc, err := working.Encode()
	if err != nil {
		return err
	}
	if err := repo.UpsertSettings(ctx, c.db, communityID, doc); err != nil {
		return err
	}

	c.m[communityID] = working
	return nil
}

// Each calls fn with a snapshot of every cached community's settings. Used
// by the feed manager to rebuild its subscriber state at startup.
func (c *SettingsCache) Each(fn func(communityID int64, s domain.Settings)) {
	c.mu.Lock()
	snapshot := make(map[int64]domain.Settings, len(c.m))
	for id, s := range c.m {
		snapshot[id] = s.Clone()
	}
	c.mu.Unlock()

	for id, s := range snapshot {
		fn(id, s)
	}
}

// Forget drops a community from the cache, e.g. after departure. The stored
// row is left for the prune task.
func (c *SettingsCache) Forget(communityID int64) {
	c.mu.Lock()
	delete(c.m, communityID)
	c.mu.Unlock()
}
