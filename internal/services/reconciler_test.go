package services

import (
	"context"
	"testing"

	"github.com/example/steward/internal/repo"
)

func newReconciler(t *testing.T) *Reconciler {
	t.Helper()
	clock := int64(1000)
	return &Reconciler{
		DB:  newTestDB(t, "reconciler"),
		Log: testLogger(),
		Now: func() int64 { return clock },
	}
}

func TestReconcile_FirstPassJoinsEverything(t *testing.T) {
	r := newReconciler(t)
	ctx := context.Background()

	report, err := r.Reconcile(ctx, []int64{10, 20, 30})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Joined) != 3 || len(report.Departed) != 0 || len(report.Rejoined) != 0 || len(report.Failed) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	communities, err := repo.ListCommunities(ctx, r.DB)
	if err != nil || len(communities) != 3 {
		t.Fatalf("communities = (%+v, %v), want 3 rows", communities, err)
	}
	for _, c := range communities {
		if c.LeftAt != nil {
			t.Fatalf("community %d should be active: %+v", c.ID, c)
		}
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	r := newReconciler(t)
	ctx := context.Background()
	observed := []int64{10, 20}

	if _, err := r.Reconcile(ctx, observed); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	report, err := r.Reconcile(ctx, observed)
	if err != nil {
		t.Fatalf("Reconcile second pass: %v", err)
	}
	if report.Changed() {
		t.Fatalf("second pass over unchanged input applied actions: %+v", report)
	}
}

func TestReconcile_DepartAndRejoin(t *testing.T) {
	r := newReconciler(t)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, []int64{10, 20}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// 20 vanished while offline.
	report, err := r.Reconcile(ctx, []int64{10})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Departed) != 1 || report.Departed[0] != 20 {
		t.Fatalf("departed = %v, want [20]", report.Departed)
	}
	c, err := repo.GetCommunity(ctx, r.DB, 20)
	if err != nil || c.LeftAt == nil {
		t.Fatalf("community 20 = (%+v, %v), want departed", c, err)
	}

	// 20 came back.
	report, err = r.Reconcile(ctx, []int64{10, 20})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Rejoined) != 1 || report.Rejoined[0] != 20 {
		t.Fatalf("rejoined = %v, want [20]", report.Rejoined)
	}
	c, err = repo.GetCommunity(ctx, r.DB, 20)
	if err != nil || c.LeftAt != nil {
		t.Fatalf("community 20 = (%+v, %v), want active", c, err)
	}
}

func TestReconcile_EmptyObservedDepartsAll(t *testing.T) {
	r := newReconciler(t)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, []int64{10, 20}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	report, err := r.Reconcile(ctx, nil)
	if err != nil {
		t.Fatalf("Reconcile empty: %v", err)
	}
	if len(report.Departed) != 2 {
		t.Fatalf("departed = %v, want both", report.Departed)
	}
}

func TestPruneDeparted(t *testing.T) {
	clock := int64(1000)
	r := &Reconciler{
		DB:  newTestDB(t, "reconciler_prune"),
		Log: testLogger(),
		Now: func() int64 { return clock },
	}
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, []int64{10, 20}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if err := r.MarkDeparted(ctx, 20); err != nil {
		t.Fatalf("MarkDeparted: %v", err)
	}

	// Not old enough yet.
	clock = 1000 + 100
	n, err := r.PruneDeparted(ctx, 500)
	if err != nil || n != 0 {
		t.Fatalf("PruneDeparted early = (%d, %v), want 0", n, err)
	}

	clock = 1000 + 1000
	n, err = r.PruneDeparted(ctx, 500)
	if err != nil || n != 1 {
		t.Fatalf("PruneDeparted = (%d, %v), want 1", n, err)
	}
	if _, err := repo.GetCommunity(ctx, r.DB, 20); err != repo.ErrNotFound {
		t.Fatalf("community 20 after prune: want ErrNotFound, got %v", err)
	}

	// A rejoin after the prune is a clean first join.
	report, err := r.Reconcile(ctx, []int64{10, 20})
	if err != nil {
		t.Fatalf("Reconcile after prune: %v", err)
	}
	if len(report.Joined) != 1 || report.Joined[0] != 20 {
		t.Fatalf("joined = %v, want [20]", report.Joined)
	}
}
