// Package domain defines the persistence models for communities, their
// settings documents, the strike ledger, strike policies, and command
// metadata. These types are mapped with GORM and form the core data layer
// of the steward agent.
package domain

// Community represents one remote collaborative workspace the agent has ever
// been a member of. A row exists iff the agent has joined at least once;
// LeftAt is non-nil iff the agent is not currently a member. Membership
// transitions (joined, left, rejoined, ...) overwrite only the relevant
// timestamp.
//
// Fields:
//   - ID: stable 64-bit identifier assigned by the remote platform.
//   - JoinedAt: UNIX timestamp of the most recent join.
//   - LeftAt: UNIX timestamp of the most recent departure, nil while a member.
//     The departure time recorded after an offline interval is approximate;
//     the reconciler stamps "now" since the exact moment is unknowable.
type Community struct {
	ID       int64  `json:"id"        gorm:"primaryKey;autoIncrement:false"`
	JoinedAt int64  `json:"joined_at" gorm:"not null"`
	LeftAt   *int64 `json:"left_at"`
}

// TableName returns the database table name for Community.
func (Community) TableName() string { return "communities" }

// CommunitySettings stores the schema-flexible settings document for one
// community, one-to-one with Community. The document is a serialized
// Settings value (JSON). It is loaded lazily into the in-memory settings
// cache and written back only through an explicit flush; between a cache
// mutation and its flush the row may lag behind.
type CommunitySettings struct {
	CommunityID int64  `json:"community_id" gorm:"primaryKey;autoIncrement:false"`
	Document    string `json:"document"     gorm:"type:text;not null;default:'{}'"`
}

// TableName returns the database table name for CommunitySettings.
func (CommunitySettings) TableName() string { return "community_settings" }

// StrikeEntry is the immutable record of one moderation infraction. Entries
// are never mutated after creation; they are deleted individually by id, in
// bulk by subject, or automatically once older than the community's decay.
//
// StrikeID is a locally generated short random token; uniqueness is enforced
// per (community, subject) by the composite unique index, and the writer
// regenerates on collision.
type StrikeEntry struct {
	CommunityID int64   `json:"community_id" gorm:"not null;index:idx_strike_subject,priority:1;uniqueIndex:ux_strike_id,priority:1"`
	SubjectID   int64   `json:"subject_id"   gorm:"not null;index:idx_strike_subject,priority:2;uniqueIndex:ux_strike_id,priority:2"`
	IssuerID    int64   `json:"issuer_id"    gorm:"not null"`
	StrikeID    string  `json:"strike_id"    gorm:"type:varchar(36);not null;uniqueIndex:ux_strike_id,priority:3"`
	Reason      string  `json:"reason"       gorm:"type:text;not null"`
	Points      int     `json:"points"       gorm:"not null;check:points > 0"`
	Timestamp   int64   `json:"timestamp"    gorm:"not null;index"`
	ContextRef  *string `json:"context_ref,omitempty" gorm:"type:text"`
}

// TableName returns the database table name for StrikeEntry.
func (StrikeEntry) TableName() string { return "strike_entries" }

// Strike policy row keys.
const (
	PolicyKeyDecay     = "decay"     // Value holds the decay duration in seconds.
	PolicyKeyThreshold = "threshold" // Value holds the point floor, Extra the action.
)

// StrikePolicyRow is one key/value row of a community's strike policy. A
// policy consists of exactly one decay row and any number of threshold rows
// with unique point floors. Rows are replaced wholesale when a new policy
// document is submitted.
type StrikePolicyRow struct {
	CommunityID int64   `json:"community_id" gorm:"not null;index:idx_policy_community"`
	Key         string  `json:"key"          gorm:"type:varchar(16);not null;check:key IN ('decay','threshold')"`
	Value       string  `json:"value"        gorm:"type:varchar(32);not null"`
	Extra       *string `json:"extra,omitempty" gorm:"type:varchar(64)"`
}

// TableName returns the database table name for StrikePolicyRow.
func (StrikePolicyRow) TableName() string { return "strike_policy" }

// CommandInfo caches metadata about one registered command. Rows are
// soft-deleted via the Removed tombstone when the command disappears from
// the live registered set, and revived if it comes back. Invocation counters
// are accumulated in memory and flushed periodically.
type CommandInfo struct {
	QualifiedName   string `json:"qualified_name"   gorm:"type:varchar(128);primaryKey"`
	AddedAt         int64  `json:"added_at"         gorm:"not null"`
	Enabled         bool   `json:"enabled"          gorm:"not null;default:true"`
	InvocationCount int64  `json:"invocation_count" gorm:"not null;default:0"`
	LastUsedAt      int64  `json:"last_used_at"     gorm:"not null;default:0"`
	Removed         bool   `json:"removed"          gorm:"not null;default:false"`
}

// TableName returns the database table name for CommandInfo.
func (CommandInfo) TableName() string { return "command_info" }
