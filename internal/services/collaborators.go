// Package services – external collaborator interfaces.
//
// The core never talks to the remote platform directly; it consumes the
// narrow interfaces below, which the embedding application implements on top
// of its gateway client library. Every method takes a context so the caller
// can bound external calls.
package services

import "context"

// Gateway exposes the authoritative remote view of the agent's membership.
type Gateway interface {
	// CurrentMemberships returns the ids of all communities the agent is a
	// member of right now, as observed by the connected session.
	CurrentMemberships(ctx context.Context) ([]int64, error)
}

// Actuator carries out enforcement actions against a subject. Each call may
// fail with a permission error from the remote platform; the service layer
// wraps those in ErrEnforcementDenied.
type Actuator interface {
	Timeout(ctx context.Context, communityID, subjectID, seconds int64) error
	Kick(ctx context.Context, communityID, subjectID int64, reason string) error
	Ban(ctx context.Context, communityID, subjectID int64, reason string) error
	// DirectMessage notifies a subject out of band. Failures are advisory;
	// callers log and continue.
	DirectMessage(ctx context.Context, subjectID int64, content string) error
}

// Item is one entry produced by the upstream feed source.
type Item struct {
	ID           string
	SourceFeedID string
	Title        string
	Body         string
	CreatedAt    int64 // UNIX seconds
	URL          string
	Author       string
	MediaURL     string
	IsSpoiler    bool
}

// FeedHandle is one open aggregate subscription.
type FeedHandle interface {
	// NewItems returns the most recent items across the aggregate, newest
	// first, the way upstream listings are ordered. The poller re-sorts and
	// filters against its watermark.
	NewItems(ctx context.Context) ([]Item, error)
}

// FeedSource opens aggregate subscriptions upstream. Opening is expensive;
// the feed manager batches and throttles rebuilds.
type FeedSource interface {
	OpenAggregate(ctx context.Context, feedIDs []string) (FeedHandle, error)
}

// RenderedItem is a feed item reduced to presentation-ready fields: title
// and body truncated for preview, spoiler masking applied, media URL kept
// only when it points at a recognized image host.
type RenderedItem struct {
	Title        string
	Body         string
	URL          string
	Author       string
	SourceFeedID string
	CreatedAt    int64
	MediaURL     string
}

// Broadcaster delivers rendered feed items into a community's broadcast
// target. roleID zero means no role is mentioned.
type Broadcaster interface {
	Deliver(ctx context.Context, communityID, targetID, roleID int64, item RenderedItem) error
}
