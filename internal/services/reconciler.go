// Package services – Reconciler
//
// The reconciler corrects the locally stored community membership set
// against the remote-observed set after an arbitrary offline interval. The
// agent can join, leave, or rejoin communities while disconnected; the store
// only learns about it here.
package services

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/example/steward/internal/domain"
	"github.com/example/steward/internal/observability"
	"github.com/example/steward/internal/repo"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Joined   []int64
	Departed []int64
	Rejoined []int64
	// Failed lists community ids whose action could not be applied; the
	// next reconcile will pick them up again.
	Failed []int64
}

// Changed reports whether the pass applied (or attempted) any action.
func (r ReconcileReport) Changed() bool {
	return len(r.Joined)+len(r.Departed)+len(r.Rejoined)+len(r.Failed) > 0
}

// Reconciler diffs stored membership records against the gateway-observed
// set and repairs drift. It is invoked once per connect event, never
// periodically, and tolerates being run any number of times: every action is
// an idempotent conditional upsert, so a second pass over unchanged input
// applies nothing.
type Reconciler struct {
	DB  *gorm.DB
	Log zerolog.Logger

	// Now is the clock used for membership timestamps; tests override it.
	Now func() int64
}

// Reconcile computes and applies the actions needed to make the store agree
// with observed:
//
//  1. observed but unknown (or pruned)      -> JOIN: insert records.
//  2. believed active but not observed      -> DEPART: stamp left_at = now.
//  3. observed but stored as departed       -> REJOIN: clear left_at.
//
// The exact departure moment is unknowable after downtime, so DEPART stamps
// the current time. An individual action failure is logged and skipped; the
// remaining actions still apply and the batch never aborts.
func (s *Reconciler) Reconcile(ctx context.Context, observed []int64) (ReconcileReport, error) {
	var report ReconcileReport

	known, err := repo.ListCommunities(ctx, s.DB)
	if err != nil {
		return report, err
	}

	obs := make(map[int64]bool, len(observed))
	for _, id := range observed {
		obs[id] = true
	}
	stored := make(map[int64]*domain.Community, len(known))
	for i := range known {
		stored[known[i].ID] = &known[i]
	}

	now := s.now()

	for _, id := range observed {
		c, ok := stored[id]
		switch {
		case !ok:
			if err := repo.InsertCommunity(ctx, s.DB, id, now); err != nil {
				s.fail(&report, id, "join", err)
				continue
			}
			report.Joined = append(report.Joined, id)
			observability.ReconcileActions.WithLabelValues("join", "ok").Inc()
		case c.LeftAt != nil:
			if _, err := repo.MarkRejoined(ctx, s.DB, id, now); err != nil {
				s.fail(&report, id, "rejoin", err)
				continue
			}
			report.Rejoined = append(report.Rejoined, id)
			observability.ReconcileActions.WithLabelValues("rejoin", "ok").Inc()
		}
	}

	for _, c := range known {
		if c.LeftAt != nil || obs[c.ID] {
			continue
		}
		if _, err := repo.MarkDeparted(ctx, s.DB, c.ID, now); err != nil {
			s.fail(&report, c.ID, "depart", err)
			continue
		}
		report.Departed = append(report.Departed, c.ID)
		observability.ReconcileActions.WithLabelValues("depart", "ok").Inc()
	}

	if report.Changed() {
		s.Log.Info().
			Ints64("joined", report.Joined).
			Ints64("departed", report.Departed).
			Ints64("rejoined", report.Rejoined).
			Ints64("failed", report.Failed).
			Msg("membership reconciled")
	} else {
		s.Log.Debug().Msg("membership up to date, nothing to reconcile")
	}
	return report, nil
}

// EnsureJoined records a live join event. Shares the reconcile upsert, so a
// rejoin of a community whose rows survive simply refreshes the timestamps.
func (s *Reconciler) EnsureJoined(ctx context.Context, id int64) error {
	return repo.InsertCommunity(ctx, s.DB, id, s.now())
}

// MarkDeparted records a live departure event.
func (s *Reconciler) MarkDeparted(ctx context.Context, id int64) error {
	_, err := repo.MarkDeparted(ctx, s.DB, id, s.now())
	return err
}

// PruneDeparted hard-deletes communities that left longer than maxAge
// seconds ago, together with their settings, policies and strikes. After the
// prune a rejoin looks like a first join. Returns the number of communities
// removed.
func (s *Reconciler) PruneDeparted(ctx context.Context, maxAge int64) (int, error) {
	ids, err := repo.ListDeadCommunities(ctx, s.DB, s.now()-maxAge)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := repo.DeleteCommunities(ctx, s.DB, ids); err != nil {
		return 0, err
	}
	s.Log.Info().Int("count", len(ids)).Msg("pruned dead community records")
	return len(ids), nil
}

func (s *Reconciler) fail(report *ReconcileReport, id int64, action string, err error) {
	report.Failed = append(report.Failed, id)
	observability.ReconcileActions.WithLabelValues(action, "failed").Inc()
	s.Log.Error().Err(err).Int64("community", id).Str("action", action).
		Msg("reconcile action failed, skipping")
}

func (s *Reconciler) now() int64 {
	if s.Now != nil {
		return s.Now()
	}
	return unixNow()
}
