package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/example/steward/internal/domain"
)

// ErrInvalidDocument is wrapped by all policy document validation failures.
// A document that fails validation causes no state change.
var ErrInvalidDocument = errors.New("invalid policy document")

// Threshold maps a point-total floor to an enforcement action. Floors are
// unique within a policy.
type Threshold struct {
	Floor  int
	Action Action
}

// Policy is a community's strike policy: the decay horizon after which an
// entry stops counting, and the ordered threshold table.
//
// The zero Policy is valid and means "unconfigured": no decay (all entries
// count forever) and no thresholds (evaluation always selects None).
type Policy struct {
	// DecaySeconds is the age at which an entry expires; zero disables decay.
	DecaySeconds int64
	// thresholds are kept sorted by floor descending so evaluation is a
	// single scan for the first qualifying floor.
	thresholds []Threshold
}

// New assembles a policy from a decay horizon and a threshold list. The
// floors must be unique; the input order is irrelevant.
func New(decaySeconds int64, thresholds []Threshold) (Policy, error) {
	seen := make(map[int]bool, len(thresholds))
	for _, t := range thresholds {
		if seen[t.Floor] {
			return Policy{}, fmt.Errorf("%w: duplicate threshold floor %d", ErrInvalidDocument, t.Floor)
		}
		seen[t.Floor] = true
	}
	sorted := make([]Threshold, len(thresholds))
	copy(sorted, thresholds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Floor > sorted[j].Floor })
	return Policy{DecaySeconds: decaySeconds, thresholds: sorted}, nil
}

// Thresholds returns the threshold table ordered by floor descending.
func (p Policy) Thresholds() []Threshold {
	out := make([]Threshold, len(p.thresholds))
	copy(out, p.thresholds)
	return out
}

// IsZero reports whether the policy carries no configuration at all.
func (p Policy) IsZero() bool { return p.DecaySeconds == 0 && len(p.thresholds) == 0 }

// Evaluate selects the enforcement action for a running point total: the
// threshold with the highest floor that is <= total wins, floor match
// inclusive. With no qualifying threshold it returns None.
func (p Policy) Evaluate(total int) Action {
	for _, t := range p.thresholds {
		if total >= t.Floor {
			return t.Action
		}
	}
	return None
}

// Cutoff returns the oldest timestamp still counted at time now. With decay
// disabled it returns 0 so every entry qualifies.
func (p Policy) Cutoff(now int64) int64 {
	if p.DecaySeconds <= 0 {
		return 0
	}
	return now - p.DecaySeconds
}

// document is the submitted JSON shape:
//
//	{"decay": "90d", "thresholds": [{"pt": 0, "action": "warn"},
//	                                {"pt": 5, "action": "timeout", "extra": "1h"}]}
type document struct {
	Decay      string `json:"decay"`
	Thresholds []struct {
		Points int    `json:"pt"`
		Action string `json:"action"`
		Extra  string `json:"extra,omitempty"`
	} `json:"thresholds"`
}

// ParseDocument validates and compiles a submitted policy document. All
// errors wrap ErrInvalidDocument; nothing is persisted by this function.
func ParseDocument(raw []byte) (Policy, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Policy{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	decay, err := ParseDuration(doc.Decay)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: decay %q", ErrInvalidDocument, doc.Decay)
	}
	thresholds := make([]Threshold, 0, len(doc.Thresholds))
	for _, t := range doc.Thresholds {
		if t.Points < 0 {
			return Policy{}, fmt.Errorf("%w: negative floor %d", ErrInvalidDocument, t.Points)
		}
		enc := t.Action
		if t.Action == "timeout" {
			secs, err := ParseDuration(t.Extra)
			if err != nil {
				return Policy{}, fmt.Errorf("%w: timeout extra %q", ErrInvalidDocument, t.Extra)
			}
			enc = fmt.Sprintf("timeout %d", secs)
		} else if t.Extra != "" {
			return Policy{}, fmt.Errorf("%w: action %q takes no extra", ErrInvalidDocument, t.Action)
		}
		act, err := parseAction(enc)
		if err != nil {
			return Policy{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		thresholds = append(thresholds, Threshold{Floor: t.Points, Action: act})
	}
	pol, err := New(decay, thresholds)
	if err != nil {
		return Policy{}, err
	}
	return pol, nil
}

// FromRows compiles stored strike_policy rows into a Policy. Malformed rows
// make the whole policy invalid; a community without rows gets the zero
// policy.
func FromRows(rows []domain.StrikePolicyRow) (Policy, error) {
	var decay int64
	thresholds := make([]Threshold, 0, len(rows))
	for _, r := range rows {
		switch r.Key {
		case domain.PolicyKeyDecay:
			secs, err := strconv.ParseInt(r.Value, 10, 64)
			if err != nil || secs < 0 {
				return Policy{}, fmt.Errorf("%w: stored decay %q", ErrInvalidDocument, r.Value)
			}
			decay = secs
		case domain.PolicyKeyThreshold:
			floor, err := strconv.Atoi(r.Value)
			if err != nil {
				return Policy{}, fmt.Errorf("%w: stored floor %q", ErrInvalidDocument, r.Value)
			}
			if r.Extra == nil {
				return Policy{}, fmt.Errorf("%w: threshold %d has no action", ErrInvalidDocument, floor)
			}
			act, err := parseAction(*r.Extra)
			if err != nil {
				return Policy{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
			}
			thresholds = append(thresholds, Threshold{Floor: floor, Action: act})
		default:
			return Policy{}, fmt.Errorf("%w: unknown row key %q", ErrInvalidDocument, r.Key)
		}
	}
	return New(decay, thresholds)
}

// Rows renders the policy back into its stored row form for community id.
func (p Policy) Rows(communityID int64) []domain.StrikePolicyRow {
	rows := make([]domain.StrikePolicyRow, 0, len(p.thresholds)+1)
	rows = append(rows, domain.StrikePolicyRow{
		CommunityID: communityID,
		Key:         domain.PolicyKeyDecay,
		Value:       strconv.FormatInt(p.DecaySeconds, 10),
	})
	for _, t := range p.thresholds {
		enc := t.Action.String()
		rows = append(rows, domain.StrikePolicyRow{
			CommunityID: communityID,
			Key:         domain.PolicyKeyThreshold,
			Value:       strconv.Itoa(t.Floor),
			Extra:       &enc,
		})
	}
	return rows
}
