// Package services – FeedManager
//
// The feed manager mirrors an external content feed into community
// broadcast targets. It maintains the mapping from feed id to subscriber
// bindings, keeps a single aggregate upstream subscription covering every
// wanted feed id, and polls that aggregate on a short interval, fanning new
// items out to subscribers.
//
// A feed id is part of the aggregate iff it has at least one subscriber and
// is not globally blocklisted; removing the last subscriber removes the id.
// Rebuilding the aggregate reopens the upstream subscription, which is
// expensive, so rebuilds are throttled and an upstream failure keeps the
// previous aggregate instead of leaving a partial one.
package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/example/steward/internal/domain"
	"github.com/example/steward/internal/observability"
)

// DefaultMaxSubscriptions caps how many feeds one community may subscribe
// to when no explicit cap is configured.
const DefaultMaxSubscriptions = 8

// Preview truncation limits for rendered items.
const (
	maxTitlePreview = 50
	maxBodyPreview  = 256
)

// imageHosts are the domains whose item URLs are treated as embeddable
// media.
var imageHosts = []string{"i.redd.it", "reddit.com/media", "i.imgur.com", "preview.redd.it"}

// feedBinding is one subscriber of a feed id.
type feedBinding struct {
	CommunityID int64
	TargetID    int64
	RoleID      int64
}

// FeedManager owns the subscription set and the aggregate poll loop state.
type FeedManager struct {
	Source    FeedSource
	Sink      Broadcaster
	Settings  *SettingsCache
	Log       zerolog.Logger
	MaxSubs   int           // per-community cap; 0 means DefaultMaxSubscriptions
	Blocklist []string      // globally refused feed ids
	Limiter   *rate.Limiter // throttles aggregate rebuilds; nil disables

	// Now is the clock for watermarks; tests override it.
	Now func() int64

	mu        sync.Mutex
	subs      map[string][]feedBinding
	blocked   map[string]bool
	handle    FeedHandle
	watermark int64
	rebuiltAt int64
	primed    bool
}

// InitFromSettings rebuilds the subscriber map from every cached community
// settings document and opens the initial aggregate. Called once at startup,
// after the settings cache is loaded. Malformed bindings are skipped with a
// log line.
func (m *FeedManager) InitFromSettings(ctx context.Context) {
	m.mu.Lock()
	m.initLocked()
	m.subs = make(map[string][]feedBinding)
	m.mu.Unlock()

	m.Settings.Each(func(communityID int64, s domain.Settings) {
		for _, b := range s.Feeds {
			if b.FeedID == "" || b.TargetID == 0 {
				m.Log.Error().Int64("community", communityID).
					Msg("skipping malformed feed binding in settings")
				continue
			}
			m.mu.Lock()
			m.subs[b.FeedID] = append(m.subs[b.FeedID], feedBinding{
				CommunityID: communityID,
				TargetID:    b.TargetID,
				RoleID:      b.RoleID,
			})
			m.mu.Unlock()
		}
	})

	if err := m.RebuildAggregate(ctx); err != nil {
		m.Log.Error().Err(err).Msg("initial aggregate rebuild failed, will retry on poll")
	}
}

// Subscribe adds a (community, target, role) binding for a feed id and
// persists it into the community's settings document before rebuilding the
// aggregate.
//
// Rejections, all without mutation: ErrFeedBlocklisted for globally refused
// ids, ErrAlreadySubscribed when the community already holds the feed, and
// ErrSubscriptionCap once the community's slots (MaxSubs, default 8) are
// used up.
func (m *FeedManager) Subscribe(ctx context.Context, communityID int64, feedID string, targetID, roleID int64) error {
	feedID = strings.TrimSpace(feedID)

	m.mu.Lock()
	m.initLocked()
	if m.blocked[feedID] {
		m.mu.Unlock()
		return ErrFeedBlocklisted
	}
	for _, b := range m.subs[feedID] {
		if b.CommunityID == communityID {
			m.mu.Unlock()
			return ErrAlreadySubscribed
		}
	}
	if m.countLocked(communityID) >= m.cap() {
		m.mu.Unlock()
		return ErrSubscriptionCap
	}
	m.mu.Unlock()

	// Persist first: the settings row is the durable record the subscriber
	// map is rebuilt from after a restart.
	err := m.Settings.Update(ctx, communityID, func(s *domain.Settings) error {
		s.Feeds = append(s.Feeds, domain.FeedBinding{FeedID: feedID, TargetID: targetID, RoleID: roleID})
		return nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.subs[feedID] = append(m.subs[feedID], feedBinding{
		CommunityID: communityID,
		TargetID:    targetID,
		RoleID:      roleID,
	})
	m.mu.Unlock()

	if err := m.RebuildAggregate(ctx); err != nil {
		m.Log.Error().Err(err).Str("feed", feedID).
			Msg("aggregate rebuild failed after subscribe, keeping previous aggregate")
	}
	return nil
}

// Unsubscribe removes a community's binding for a feed id and reports
// whether one existed. When the last subscriber goes, the id leaves the
// aggregate on the following rebuild.
func (m *FeedManager) Unsubscribe(ctx context.Context, communityID int64, feedID string) (bool, error) {
	feedID = strings.TrimSpace(feedID)

	m.mu.Lock()
	m.initLocked()
	bindings := m.subs[feedID]
	idx := -1
	for i, b := range bindings {
		if b.CommunityID == communityID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return false, nil
	}
	m.mu.Unlock()

	err := m.Settings.Update(ctx, communityID, func(s *domain.Settings) error {
		kept := s.Feeds[:0]
		for _, b := range s.Feeds {
			if b.FeedID != feedID {
				kept = append(kept, b)
			}
		}
		s.Feeds = kept
		return nil
	})
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	bindings = append(bindings[:idx], bindings[idx+1:]...)
	if len(bindings) == 0 {
		delete(m.subs, feedID)
	} else {
		m.subs[feedID] = bindings
	}
	m.mu.Unlock()

	if err := m.RebuildAggregate(ctx); err != nil {
		m.Log.Error().Err(err).Str("feed", feedID).
			Msg("aggregate rebuild failed after unsubscribe, keeping previous aggregate")
	}
	return true, nil
}

// ActiveFeeds returns the sorted feed ids currently wanted by the aggregate:
// subscribed by at least one community and not blocklisted.
func (m *FeedManager) ActiveFeeds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initLocked()
	return m.activeLocked()
}

// RebuildAggregate reopens the upstream subscription with the current union
// of wanted feed ids. On upstream failure the previous handle, watermark and
// priming state are retained so polling continues against the old aggregate.
// An empty union closes the aggregate (nil handle).
func (m *FeedManager) RebuildAggregate(ctx context.Context) error {
	if m.Limiter != nil {
		if err := m.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.initLocked()
	ids := m.activeLocked()
	m.mu.Unlock()

	if len(ids) == 0 {
		m.mu.Lock()
		m.handle = nil
		m.primed = false
		m.mu.Unlock()
		m.Log.Info().Msg("aggregate empty, upstream subscription closed")
		return nil
	}

	handle, err := m.Source.OpenAggregate(ctx, ids)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.handle = handle
	m.rebuiltAt = m.now()
	m.primed = false
	m.mu.Unlock()

	m.Log.Info().Strs("feeds", ids).Msg("aggregate rebuilt")
	return nil
}

// PollNewItems is the scheduled short-interval poll. It fetches the
// aggregate's current items and fans out those strictly newer than the
// watermark, oldest first.
//
// The first poll after a cold start or rebuild delivers nothing: it only
// establishes the watermark, so a freshly subscribed community is not
// flooded with the feed's backlog. Items predating the rebuild are never
// delivered either, even if the watermark lags. Per-subscriber delivery
// failures are logged and skipped; the fan-out always completes. The
// watermark then advances to the newest timestamp seen this cycle.
func (m *FeedManager) PollNewItems(ctx context.Context) error {
	m.mu.Lock()
	m.initLocked()
	handle := m.handle
	wantRebuild := handle == nil && len(m.subs) > 0
	m.mu.Unlock()

	if wantRebuild {
		// No aggregate yet (startup failure or upstream outage); try again
		// and deliver starting next tick.
		return m.RebuildAggregate(ctx)
	}
	if handle == nil {
		return nil
	}

	items, err := handle.NewItems(ctx)
	if err != nil {
		return err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt < items[j].CreatedAt })

	m.mu.Lock()
	watermark := m.watermark
	rebuiltAt := m.rebuiltAt
	primed := m.primed
	m.mu.Unlock()

	newest := watermark
	if !primed {
		if newest < rebuiltAt {
			newest = rebuiltAt
		}
		for _, it := range items {
			if it.CreatedAt > newest {
				newest = it.CreatedAt
			}
		}
		m.mu.Lock()
		m.watermark = newest
		m.primed = true
		m.mu.Unlock()
		m.Log.Debug().Int64("watermark", newest).Msg("poll watermark established")
		return nil
	}

	for _, it := range items {
		if it.CreatedAt <= watermark || it.CreatedAt < rebuiltAt {
			continue
		}
		if it.CreatedAt > newest {
			newest = it.CreatedAt
		}
		m.fanOut(ctx, it)
	}

	m.mu.Lock()
	if newest > m.watermark {
		m.watermark = newest
	}
	m.mu.Unlock()
	return nil
}

// fanOut delivers one item to every subscriber of its source feed.
func (m *FeedManager) fanOut(ctx context.Context, it Item) {
	m.mu.Lock()
	bindings := append([]feedBinding(nil), m.subs[it.SourceFeedID]...)
	m.mu.Unlock()
	if len(bindings) == 0 {
		return
	}

	rendered := RenderItem(it)
	for _, b := range bindings {
		if err := m.Sink.Deliver(ctx, b.CommunityID, b.TargetID, b.RoleID, rendered); err != nil {
			observability.FeedDeliveryFailures.Inc()
			m.Log.Error().Err(err).
				Str("feed", it.SourceFeedID).
				Int64("community", b.CommunityID).
				Int64("target", b.TargetID).
				Msg("could not deliver feed item")
			continue
		}
		observability.FeedItemsDelivered.Inc()
	}
}

// RenderItem reduces an item to presentation-ready fields: preview
// truncation, spoiler masking, and media URL filtering to known image
// hosts.
func RenderItem(it Item) RenderedItem {
	title := truncate(it.Title, maxTitlePreview)
	body := truncate(it.Body, maxBodyPreview)
	if body != "" && it.IsSpoiler {
		body = "||" + body + "||"
	}

	media := ""
	if !it.IsSpoiler && it.MediaURL != "" {
		for _, host := range imageHosts {
			if strings.Contains(it.MediaURL, host) {
				media = it.MediaURL
				break
			}
		}
	}

	return RenderedItem{
		Title:        title,
		Body:         body,
		URL:          it.URL,
		Author:       it.Author,
		SourceFeedID: it.SourceFeedID,
		CreatedAt:    it.CreatedAt,
		MediaURL:     media,
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "..."
}

// activeLocked returns the sorted wanted feed ids; callers hold mu.
func (m *FeedManager) activeLocked() []string {
	ids := make([]string, 0, len(m.subs))
	for id, bindings := range m.subs {
		if len(bindings) > 0 && !m.blocked[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// countLocked counts a community's subscriptions across all feeds; callers
// hold mu.
func (m *FeedManager) countLocked(communityID int64) int {
	n := 0
	for _, bindings := range m.subs {
		for _, b := range bindings {
			if b.CommunityID == communityID {
				n++
			}
		}
	}
	return n
}

func (m *FeedManager) cap() int {
	if m.MaxSubs > 0 {
		return m.MaxSubs
	}
	return DefaultMaxSubscriptions
}

// initLocked lazily builds the internal maps; callers hold mu.
func (m *FeedManager) initLocked() {
	if m.subs == nil {
		m.subs = make(map[string][]feedBinding)
	}
	if m.blocked == nil {
		m.blocked = make(map[string]bool, len(m.Blocklist))
		for _, id := range m.Blocklist {
			id = strings.TrimSpace(id)
			if id != "" {
				m.blocked[id] = true
			}
		}
	}
}

func (m *FeedManager) now() int64 {
	if m.Now != nil {
		return m.Now()
	}
	return unixNow()
}
