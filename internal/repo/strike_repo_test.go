package repo

import (
	"context"
	"testing"

	"github.com/example/steward/internal/domain"
)

func TestInsertStrike_DuplicateIDRejected(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	first := &domain.StrikeEntry{
		CommunityID: 1, SubjectID: 2, IssuerID: 3, StrikeID: "abcd",
		Reason: "spam", Points: 1, Timestamp: 100,
	}
	if err := InsertStrike(ctx, db, first); err != nil {
		t.Fatalf("InsertStrike: %v", err)
	}

	dup := &domain.StrikeEntry{
		CommunityID: 1, SubjectID: 2, IssuerID: 3, StrikeID: "abcd",
		Reason: "again", Points: 1, Timestamp: 101,
	}
	if err := InsertStrike(ctx, db, dup); err == nil {
		t.Fatal("expected unique violation for duplicate strike id")
	}

	// Same id for a different subject is fine: uniqueness is scoped.
	other := &domain.StrikeEntry{
		CommunityID: 1, SubjectID: 9, IssuerID: 3, StrikeID: "abcd",
		Reason: "spam", Points: 1, Timestamp: 102,
	}
	if err := InsertStrike(ctx, db, other); err != nil {
		t.Fatalf("InsertStrike other subject: %v", err)
	}
}

func TestSumPoints_CutoffExcludesOldEntries(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	entries := []domain.StrikeEntry{
		{CommunityID: 1, SubjectID: 2, IssuerID: 3, StrikeID: "a1", Reason: "r", Points: 3, Timestamp: 100},
		{CommunityID: 1, SubjectID: 2, IssuerID: 3, StrikeID: "a2", Reason: "r", Points: 4, Timestamp: 200},
		{CommunityID: 1, SubjectID: 2, IssuerID: 3, StrikeID: "a3", Reason: "r", Points: 5, Timestamp: 300},
		// Different subject must never count.
		{CommunityID: 1, SubjectID: 7, IssuerID: 3, StrikeID: "a4", Reason: "r", Points: 100, Timestamp: 300},
	}
	for i := range entries {
		if err := InsertStrike(ctx, db, &entries[i]); err != nil {
			t.Fatalf("InsertStrike %d: %v", i, err)
		}
	}

	total, err := SumPoints(ctx, db, 1, 2, 0)
	if err != nil || total != 12 {
		t.Fatalf("SumPoints(cutoff 0) = (%d, %v), want 12", total, err)
	}

	// Cutoff is exclusive: an entry stamped exactly at the cutoff is expired.
	total, err = SumPoints(ctx, db, 1, 2, 100)
	if err != nil || total != 9 {
		t.Fatalf("SumPoints(cutoff 100) = (%d, %v), want 9", total, err)
	}

	total, err = SumPoints(ctx, db, 1, 2, 999)
	if err != nil || total != 0 {
		t.Fatalf("SumPoints(all expired) = (%d, %v), want 0", total, err)
	}
}

func TestSumPoints_NoRowsIsZero(t *testing.T) {
	db := newRepoDB(t)
	total, err := SumPoints(context.Background(), db, 1, 2, 0)
	if err != nil || total != 0 {
		t.Fatalf("SumPoints = (%d, %v), want (0, nil)", total, err)
	}
}

func TestListStrikes_OldestFirst(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	for i, ts := range []int64{300, 100, 200} {
		e := domain.StrikeEntry{
			CommunityID: 1, SubjectID: 2, IssuerID: 3,
			StrikeID: string(rune('a'+i)) + "xyz",
			Reason:   "r", Points: 1, Timestamp: ts,
		}
		if err := InsertStrike(ctx, db, &e); err != nil {
			t.Fatalf("InsertStrike: %v", err)
		}
	}

	out, err := ListStrikes(ctx, db, 1, 2)
	if err != nil {
		t.Fatalf("ListStrikes: %v", err)
	}
	if len(out) != 3 || out[0].Timestamp != 100 || out[2].Timestamp != 300 {
		t.Fatalf("unexpected order: %+v", out)
	}
}

func TestDeleteStrike_ReportsAffected(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	e := domain.StrikeEntry{
		CommunityID: 1, SubjectID: 2, IssuerID: 3, StrikeID: "abcd",
		Reason: "r", Points: 1, Timestamp: 100,
	}
	if err := InsertStrike(ctx, db, &e); err != nil {
		t.Fatalf("InsertStrike: %v", err)
	}

	ok, err := DeleteStrike(ctx, db, 1, 2, "abcd")
	if err != nil || !ok {
		t.Fatalf("DeleteStrike = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = DeleteStrike(ctx, db, 1, 2, "abcd")
	if err != nil || ok {
		t.Fatalf("DeleteStrike again = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestClearAndPruneStrikes(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	for i, ts := range []int64{100, 200, 300} {
		e := domain.StrikeEntry{
			CommunityID: 1, SubjectID: 2, IssuerID: 3,
			StrikeID: string(rune('a'+i)) + "123",
			Reason:   "r", Points: 1, Timestamp: ts,
		}
		if err := InsertStrike(ctx, db, &e); err != nil {
			t.Fatalf("InsertStrike: %v", err)
		}
	}

	n, err := PruneStrikesBefore(ctx, db, 1, 200)
	if err != nil || n != 2 {
		t.Fatalf("PruneStrikesBefore = (%d, %v), want 2", n, err)
	}

	n, err = ClearStrikes(ctx, db, 1, 2)
	if err != nil || n != 1 {
		t.Fatalf("ClearStrikes = (%d, %v), want 1", n, err)
	}
}
