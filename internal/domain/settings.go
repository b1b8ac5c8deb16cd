package domain

import "encoding/json"

// Settings is the typed form of a community's settings document. Every
// sub-config has a well-defined "unconfigured" zero value, so a document
// missing a section decodes to something usable without nil checks at every
// call site.
//
// Callers never mutate a Settings value they obtained from the cache
// directly; all changes go through the cache's Update path, which persists
// the document as a whole.
type Settings struct {
	// LogChannel configures the moderation log target.
	LogChannel LogChannelSettings `json:"logchan"`
	// Feeds holds the community's feed subscriptions, at most the configured
	// per-community cap.
	Feeds []FeedBinding `json:"feeds,omitempty"`
	// LogRules toggles individual moderation log rules by name.
	LogRules map[string]bool `json:"logrules,omitempty"`
}

// LogChannelSettings selects the broadcast target for moderation log output.
// The zero value means "not configured".
type LogChannelSettings struct {
	Enabled   bool  `json:"enabled"`
	ChannelID int64 `json:"channel_id"`
}

// FeedBinding subscribes the community to one external feed. RoleID zero
// means no role is notified on delivery.
type FeedBinding struct {
	FeedID   string `json:"id"`
	TargetID int64  `json:"broadcast"`
	RoleID   int64  `json:"role"`
}

// DecodeSettings parses a settings document. An empty document yields the
// zero Settings value.
func DecodeSettings(doc string) (Settings, error) {
	var s Settings
	if doc == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(doc), &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Encode serializes the settings back into document form.
func (s Settings) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Clone returns a deep copy, so cache snapshots can be handed out without
// sharing the Feeds slice or LogRules map with the cached value.
func (s Settings) Clone() Settings {
	out := s
	if s.Feeds != nil {
		out.Feeds = make([]FeedBinding, len(s.Feeds))
		copy(out.Feeds, s.Feeds)
	}
	if s.LogRules != nil {
		out.LogRules = make(map[string]bool, len(s.LogRules))
		for k, v := range s.LogRules {
			out.LogRules[k] = v
		}
	}
	return out
}
