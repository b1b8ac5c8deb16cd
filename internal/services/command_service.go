// Package services – CommandInfoService
//
// Tracks the lifecycle and usage of the agent's registered commands. The
// registered set is synced against the store at startup (new commands get a
// record, vanished ones are tombstoned, returning ones revived), and usage
// counts accumulate in memory between periodic flushes so the hot path never
// writes.
package services

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/example/steward/internal/repo"
)

// CommandInfoService owns command metadata rows and the in-memory usage
// deltas.
type CommandInfoService struct {
	DB  *gorm.DB
	Log zerolog.Logger

	// Now is the clock for added/last-used stamps; tests override it.
	Now func() int64

	mu       sync.Mutex
	counts   map[string]int64
	lastUsed map[string]int64
}

// RecordUse notes one invocation of a command. Memory only; Flush persists.
func (s *CommandInfoService) RecordUse(qualifiedName string) {
	now := s.now()
	s.mu.Lock()
	if s.counts == nil {
		s.counts = make(map[string]int64)
		s.lastUsed = make(map[string]int64)
	}
	s.counts[qualifiedName]++
	if now > s.lastUsed[qualifiedName] {
		s.lastUsed[qualifiedName] = now
	}
	s.mu.Unlock()
}

// Sync reconciles the stored command records with the currently registered
// command names. Unknown names get a fresh record, stored names missing from
// the registration are tombstoned (the row and its counters survive), and
// tombstoned names that reappear are revived with their history intact.
func (s *CommandInfoService) Sync(ctx context.Context, registered []string) error {
	rows, err := repo.ListCommandInfo(ctx, s.DB)
	if err != nil {
		return err
	}

	reg := make(map[string]bool, len(registered))
	for _, name := range registered {
		reg[name] = true
	}
	stored := make(map[string]bool, len(rows))

	now := s.now()
	for _, row := range rows {
		stored[row.QualifiedName] = true
		switch {
		case !reg[row.QualifiedName] && !row.Removed:
			if err := repo.SetCommandRemoved(ctx, s.DB, row.QualifiedName, true); err != nil {
				return err
			}
			s.Log.Info().Str("command", row.QualifiedName).Msg("command retired")
		case reg[row.QualifiedName] && row.Removed:
			if err := repo.SetCommandRemoved(ctx, s.DB, row.QualifiedName, false); err != nil {
				return err
			}
			s.Log.Info().Str("command", row.QualifiedName).Msg("command revived")
		}
	}

	for _, name := range registered {
		if stored[name] {
			continue
		}
		if err := repo.InsertCommandInfo(ctx, s.DB, name, now); err != nil {
			return err
		}
		s.Log.Info().Str("command", name).Msg("command registered")
	}
	return nil
}

// Flush writes the accumulated usage deltas to the store and clears them.
// On a write failure the remaining deltas are kept for the next flush.
func (s *CommandInfoService) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.counts
	stamps := s.lastUsed
	s.counts = nil
	s.lastUsed = nil
	s.mu.Unlock()

	for name, delta := range pending {
		if err := repo.AddCommandUsage(ctx, s.DB, name, delta, stamps[name]); err != nil {
			// Put every unwritten delta back so the next flush retries it.
			s.mu.Lock()
			if s.counts == nil {
				s.counts = make(map[string]int64)
				s.lastUsed = make(map[string]int64)
			}
			for n, d := range pending {
				s.counts[n] += d
				if stamps[n] > s.lastUsed[n] {
					s.lastUsed[n] = stamps[n]
				}
			}
			s.mu.Unlock()
			return err
		}
		delete(pending, name)
	}
	return nil
}

func (s *CommandInfoService) now() int64 {
	if s.Now != nil {
		return s.Now()
	}
	return unixNow()
}
