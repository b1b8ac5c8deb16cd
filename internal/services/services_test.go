package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/steward/internal/repo"
)

func newTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

// ---- fakes ----

type actuation struct {
	Kind      string // "timeout", "kick", "ban", "dm"
	Community int64
	Subject   int64
	Seconds   int64
	Text      string
}

// fakeActuator records enforcement calls and can be told to fail them.
type fakeActuator struct {
	mu    sync.Mutex
	calls []actuation

	failEnforce bool
	failDM      bool
}

func (f *fakeActuator) record(a actuation) {
	f.mu.Lock()
	f.calls = append(f.calls, a)
	f.mu.Unlock()
}

func (f *fakeActuator) recorded() []actuation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]actuation(nil), f.calls...)
}

func (f *fakeActuator) Timeout(_ context.Context, communityID, subjectID, seconds int64) error {
	if f.failEnforce {
		return errors.New("missing permission")
	}
	f.record(actuation{Kind: "timeout", Community: communityID, Subject: subjectID, Seconds: seconds})
	return nil
}

func (f *fakeActuator) Kick(_ context.Context, communityID, subjectID int64, reason string) error {
	if f.failEnforce {
		return errors.New("missing permission")
	}
	f.record(actuation{Kind: "kick", Community: communityID, Subject: subjectID, Text: reason})
	return nil
}

func (f *fakeActuator) Ban(_ context.Context, communityID, subjectID int64, reason string) error {
	if f.failEnforce {
		return errors.New("missing permission")
	}
	f.record(actuation{Kind: "ban", Community: communityID, Subject: subjectID, Text: reason})
	return nil
}

func (f *fakeActuator) DirectMessage(_ context.Context, subjectID int64, content string) error {
	if f.failDM {
		return errors.New("closed inbox")
	}
	f.record(actuation{Kind: "dm", Subject: subjectID, Text: content})
	return nil
}

// fakeFeedHandle serves a mutable item listing.
type fakeFeedHandle struct {
	mu    sync.Mutex
	items []Item
	err   error
}

func (h *fakeFeedHandle) NewItems(context.Context) ([]Item, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	return append([]Item(nil), h.items...), nil
}

func (h *fakeFeedHandle) push(items ...Item) {
	h.mu.Lock()
	h.items = append(h.items, items...)
	h.mu.Unlock()
}

// fakeFeedSource hands out a fresh handle per open and remembers the feed id
// sets it was asked for.
type fakeFeedSource struct {
	mu     sync.Mutex
	opens  [][]string
	handle *fakeFeedHandle
	err    error
}

func (s *fakeFeedSource) OpenAggregate(_ context.Context, feedIDs []string) (FeedHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens = append(s.opens, append([]string(nil), feedIDs...))
	if s.err != nil {
		return nil, s.err
	}
	if s.handle == nil {
		s.handle = &fakeFeedHandle{}
	}
	return s.handle, nil
}

func (s *fakeFeedSource) lastOpen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.opens) == 0 {
		return nil
	}
	return s.opens[len(s.opens)-1]
}

type delivery struct {
	Community int64
	Target    int64
	Role      int64
	Item      RenderedItem
}

// fakeBroadcaster records deliveries; failTargets makes specific broadcast
// targets reject.
type fakeBroadcaster struct {
	mu          sync.Mutex
	deliveries  []delivery
	failTargets map[int64]bool
}

func (b *fakeBroadcaster) Deliver(_ context.Context, communityID, targetID, roleID int64, item RenderedItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failTargets[targetID] {
		return errors.New("target rejected delivery")
	}
	b.deliveries = append(b.deliveries, delivery{Community: communityID, Target: targetID, Role: roleID, Item: item})
	return nil
}

func (b *fakeBroadcaster) delivered() []delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]delivery(nil), b.deliveries...)
}
