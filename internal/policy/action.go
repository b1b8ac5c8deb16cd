// Package policy implements the strike policy model: the enforcement action
// union, the ordered threshold table, decay arithmetic, and the compact
// duration notation used by policy documents.
package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionKind enumerates the enforcement actions a threshold can select.
type ActionKind int

const (
	// ActionNone means the running total is below every configured floor.
	ActionNone ActionKind = iota
	// ActionWarn notifies the subject without further enforcement.
	ActionWarn
	// ActionTimeout suspends the subject for Action.TimeoutSeconds.
	ActionTimeout
	// ActionKick removes the subject from the community.
	ActionKick
	// ActionBan permanently removes the subject.
	ActionBan
)

// Action is the enforcement decision selected by threshold evaluation. It is
// constructed once when a policy is loaded, never re-parsed per evaluation.
type Action struct {
	Kind           ActionKind
	TimeoutSeconds int64 // set only for ActionTimeout
}

// None is the zero action, returned when no threshold qualifies.
var None = Action{Kind: ActionNone}

// String renders the action in its stored form, e.g. "timeout 3600".
func (a Action) String() string {
	switch a.Kind {
	case ActionWarn:
		return "warn"
	case ActionTimeout:
		return fmt.Sprintf("timeout %d", a.TimeoutSeconds)
	case ActionKick:
		return "kick"
	case ActionBan:
		return "ban"
	}
	return "none"
}

// severity orders actions from least to most severe. Used by tests to check
// decay monotonicity and by callers that compare enforcement outcomes.
func (a Action) severity() int { return int(a.Kind) }

// MoreSevereThan reports whether a is a stricter enforcement than b.
func (a Action) MoreSevereThan(b Action) bool { return a.severity() > b.severity() }

// parseAction decodes the stored action encoding ("warn", "kick", "ban",
// "timeout <seconds>") into an Action.
func parseAction(s string) (Action, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return None, fmt.Errorf("empty action")
	}
	switch fields[0] {
	case "warn":
		return Action{Kind: ActionWarn}, nil
	case "kick":
		return Action{Kind: ActionKick}, nil
	case "ban":
		return Action{Kind: ActionBan}, nil
	case "timeout":
		if len(fields) != 2 {
			return None, fmt.Errorf("timeout action requires a duration")
		}
		secs, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || secs <= 0 {
			return None, fmt.Errorf("invalid timeout duration %q", fields[1])
		}
		return Action{Kind: ActionTimeout, TimeoutSeconds: secs}, nil
	}
	return None, fmt.Errorf("unknown action %q", fields[0])
}
