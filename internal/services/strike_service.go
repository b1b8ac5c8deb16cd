// Package services – StrikeService
//
// The strike service keeps the append-only infraction ledger and drives the
// policy engine: every submitted strike is validated, appended with a
// locally unique id, folded into the subject's decayed point total, and
// matched against the community's threshold table to pick an enforcement
// action, which is then carried out through the actuation collaborator.
//
// The ledger is ground truth: once the entry is committed, a failed
// enforcement (insufficient privilege, subject gone) never rolls it back.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/example/steward/internal/domain"
	"github.com/example/steward/internal/observability"
	"github.com/example/steward/internal/policy"
	"github.com/example/steward/internal/repo"
)

// Strike id generation: 4 hex chars as the normal case, widened after
// repeated collisions so generation stays bounded even under pathological
// ledger sizes.
const (
	strikeIDLen      = 4
	strikeIDWideLen  = 8
	strikeIDAttempts = 8 // per length tier
)

// StrikeService implements the strike ledger and policy engine use-cases.
type StrikeService struct {
	DB       *gorm.DB
	Actuator Actuator
	Log      zerolog.Logger

	// Now is the clock for entry timestamps and decay; tests override it.
	Now func() int64

	// locks serializes append-evaluate-apply per (community, subject), so
	// two concurrent strikes against the same subject cannot both read a
	// pre-update point sum.
	locks sync.Map // string -> *sync.Mutex
}

// AddStrike validates and appends one infraction, then evaluates the
// community's policy over the subject's non-expired point total (the new
// entry included) and applies the selected action. It returns the generated
// strike id and the action.
//
// Validation: points must be >= 1 and reason non-empty; violations are
// rejected before any mutation. contextRef may be empty. If silent is set
// the subject is not notified, but enforcement still runs.
//
// A nil error with ActionNone means the total stayed below every floor. An
// ErrEnforcementDenied error means the entry IS committed and only the
// enforcement step failed.
func (s *StrikeService) AddStrike(ctx context.Context, communityID, subjectID, issuerID int64, points int, reason, contextRef string, silent bool) (string, policy.Action, error) {
	if points < 1 {
		return "", policy.None, ErrNonPositivePoints
	}
	if strings.TrimSpace(reason) == "" {
		return "", policy.None, ErrEmptyReason
	}

	unlock := s.lockSubject(communityID, subjectID)
	defer unlock()

	now := s.now()
	entry := &domain.StrikeEntry{
		CommunityID: communityID,
		SubjectID:   subjectID,
		IssuerID:    issuerID,
		Reason:      reason,
		Points:      points,
		Timestamp:   now,
	}
	if contextRef != "" {
		entry.ContextRef = &contextRef
	}

	id, err := s.appendWithFreshID(ctx, entry)
	if err != nil {
		return "", policy.None, err
	}
	observability.StrikesRecorded.Inc()

	pol, err := s.PolicyFor(ctx, communityID)
	if err != nil {
		// The entry is committed; report it with no action rather than
		// failing the whole submission over a broken policy document.
		s.Log.Error().Err(err).Int64("community", communityID).
			Msg("strike recorded but policy could not be loaded")
		return id, policy.None, nil
	}

	total, err := repo.SumPoints(ctx, s.DB, communityID, subjectID, pol.Cutoff(now))
	if err != nil {
		return id, policy.None, err
	}

	act := pol.Evaluate(total)
	s.Log.Info().
		Int64("community", communityID).
		Int64("subject", subjectID).
		Str("strike", id).
		Int("points", points).
		Int("total", total).
		Str("action", act.String()).
		Msg("strike added")

	if act.Kind == policy.ActionNone {
		return id, act, nil
	}

	if !silent {
		s.notify(ctx, subjectID, act, reason, total, contextRef)
	}
	if err := s.enforce(ctx, communityID, subjectID, act, reason, contextRef); err != nil {
		observability.EnforcementFailures.Inc()
		return id, act, fmt.Errorf("%w: %v", ErrEnforcementDenied, err)
	}
	return id, act, nil
}

// EvaluateThreshold computes the subject's decayed point total and the
// action it currently maps to, without touching the ledger. Decay is applied
// at read time; expired entries still on disk do not count.
func (s *StrikeService) EvaluateThreshold(ctx context.Context, communityID, subjectID int64) (policy.Action, int, error) {
	pol, err := s.PolicyFor(ctx, communityID)
	if err != nil {
		return policy.None, 0, err
	}
	total, err := repo.SumPoints(ctx, s.DB, communityID, subjectID, pol.Cutoff(s.now()))
	if err != nil {
		return policy.None, 0, err
	}
	return pol.Evaluate(total), total, nil
}

// ListStrikes returns a subject's ledger entries, oldest first.
func (s *StrikeService) ListStrikes(ctx context.Context, communityID, subjectID int64) ([]domain.StrikeEntry, error) {
	return repo.ListStrikes(ctx, s.DB, communityID, subjectID)
}

// DeleteStrike removes a single entry by id and reports whether anything was
// deleted. Strikes cannot be restored.
func (s *StrikeService) DeleteStrike(ctx context.Context, communityID, subjectID int64, strikeID string) (bool, error) {
	return repo.DeleteStrike(ctx, s.DB, communityID, subjectID, strikeID)
}

// ClearStrikes removes all of a subject's entries and returns the count.
func (s *StrikeService) ClearStrikes(ctx context.Context, communityID, subjectID int64) (int64, error) {
	return repo.ClearStrikes(ctx, s.DB, communityID, subjectID)
}

// PolicyFor loads and compiles the community's stored policy. A community
// with no rows gets the zero policy (no decay, no thresholds).
func (s *StrikeService) PolicyFor(ctx context.Context, communityID int64) (policy.Policy, error) {
	rows, err := repo.GetPolicyRows(ctx, s.DB, communityID)
	if err != nil {
		return policy.Policy{}, err
	}
	return policy.FromRows(rows)
}

// SetPolicy validates a submitted policy document and transactionally
// replaces the community's stored policy with it. Invalid documents are
// rejected with policy.ErrInvalidDocument and change nothing.
func (s *StrikeService) SetPolicy(ctx context.Context, communityID int64, doc []byte) (policy.Policy, error) {
	pol, err := policy.ParseDocument(doc)
	if err != nil {
		return policy.Policy{}, err
	}
	if err := repo.ReplacePolicyRows(ctx, s.DB, communityID, pol.Rows(communityID)); err != nil {
		return policy.Policy{}, err
	}
	s.Log.Info().Int64("community", communityID).
		Int("thresholds", len(pol.Thresholds())).
		Int64("decay_seconds", pol.DecaySeconds).
		Msg("strike policy replaced")
	return pol, nil
}

// PruneExpired is the scheduled daily sweep: for every community with a
// decay configured it deletes entries old enough to have expired. Decay is a
// per-community setting, so the sweep runs community by community; a failure
// for one community is logged and does not stop the others. Returns the
// total number of entries removed.
func (s *StrikeService) PruneExpired(ctx context.Context) (int64, error) {
	communities, err := repo.ListCommunities(ctx, s.DB)
	if err != nil {
		return 0, err
	}

	now := s.now()
	var pruned int64
	for _, c := range communities {
		pol, err := s.PolicyFor(ctx, c.ID)
		if err != nil {
			s.Log.Error().Err(err).Int64("community", c.ID).Msg("skipping expiry sweep, bad policy")
			continue
		}
		if pol.DecaySeconds <= 0 {
			continue
		}
		n, err := repo.PruneStrikesBefore(ctx, s.DB, c.ID, now-pol.DecaySeconds)
		if err != nil {
			s.Log.Error().Err(err).Int64("community", c.ID).Msg("expiry sweep failed")
			continue
		}
		pruned += n
	}
	if pruned > 0 {
		s.Log.Info().Int64("count", pruned).Msg("pruned expired strikes")
	}
	return pruned, nil
}

// enforce carries out the selected action through the actuator. Warn has no
// enforcement side effect beyond the notification.
func (s *StrikeService) enforce(ctx context.Context, communityID, subjectID int64, act policy.Action, reason, contextRef string) error {
	full := reason
	if contextRef != "" {
		full = fmt.Sprintf("%s (%s)", reason, contextRef)
	}
	switch act.Kind {
	case policy.ActionTimeout:
		return s.Actuator.Timeout(ctx, communityID, subjectID, act.TimeoutSeconds)
	case policy.ActionKick:
		return s.Actuator.Kick(ctx, communityID, subjectID, full)
	case policy.ActionBan:
		return s.Actuator.Ban(ctx, communityID, subjectID, full)
	}
	return nil
}

// notify tells the subject about the infraction. Delivery is best effort: a
// closed inbox must not block enforcement.
func (s *StrikeService) notify(ctx context.Context, subjectID int64, act policy.Action, reason string, total int, contextRef string) {
	var verb string
	switch act.Kind {
	case policy.ActionWarn:
		verb = "warned"
	case policy.ActionTimeout:
		verb = "timed out"
	case policy.ActionKick:
		verb = "kicked"
	case policy.ActionBan:
		verb = "banned"
	default:
		return
	}
	msg := fmt.Sprintf("You have been %s for a recent infraction. Reason: %s. Your current point count is %d.", verb, reason, total)
	if contextRef != "" {
		msg += fmt.Sprintf(" Context: %s", contextRef)
	}
	if act.Kind != policy.ActionBan {
		msg += " Future infractions may result in more stringent sanctions."
	}
	if err := s.Actuator.DirectMessage(ctx, subjectID, msg); err != nil {
		s.Log.Warn().Err(err).Int64("subject", subjectID).Msg("could not notify subject")
	}
}

// appendWithFreshID inserts the entry under a rejection-sampled strike id:
// short tokens first, a wider tier after repeated collisions, and finally a
// uuid-derived token that cannot realistically collide.
func (s *StrikeService) appendWithFreshID(ctx context.Context, entry *domain.StrikeEntry) (string, error) {
	for attempt := 0; ; attempt++ {
		switch {
		case attempt < strikeIDAttempts:
			entry.StrikeID = randomToken(strikeIDLen)
		case attempt < 2*strikeIDAttempts:
			entry.StrikeID = randomToken(strikeIDWideLen)
		default:
			entry.StrikeID = strings.ReplaceAll(uuid.NewString(), "-", "")
		}

		err := repo.InsertStrike(ctx, s.DB, entry)
		if err == nil {
			return entry.StrikeID, nil
		}
		if !isDuplicate(err) || attempt >= 2*strikeIDAttempts {
			return "", err
		}
	}
}

// randomToken returns n lowercase hex characters.
func randomToken(n int) string {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
	}
	return hex.EncodeToString(buf)[:n]
}

// isDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

func (s *StrikeService) lockSubject(communityID, subjectID int64) func() {
	key := fmt.Sprintf("%d/%d", communityID, subjectID)
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *StrikeService) now() int64 {
	if s.Now != nil {
		return s.Now()
	}
	return unixNow()
}
