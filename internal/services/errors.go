// Package services implements the steward core: membership reconciliation,
// the strike ledger and policy engine, the feed subscription manager, the
// community settings cache, and the command metadata cache. This file
// centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages should be performed by the command
// handlers that embed this core.
package services

import "errors"

// Validation errors. All of these are rejected before any mutation.
var (
	// ErrNonPositivePoints is returned when a strike is submitted with a
	// point value below 1.
	ErrNonPositivePoints = errors.New("strike points must be positive")

	// ErrEmptyReason is returned when a strike is submitted without a
	// textual reason.
	ErrEmptyReason = errors.New("strike reason must not be empty")
)

// Strike enforcement errors.
var (
	// ErrEnforcementDenied is returned when the actuation service refused
	// the selected enforcement action (typically insufficient privilege).
	// The strike entry is already persisted when this error is returned;
	// callers can tell "strike recorded, enforcement failed" apart from
	// "nothing happened".
	ErrEnforcementDenied = errors.New("enforcement action denied")
)

// Feed subscription errors.
var (
	// ErrFeedBlocklisted is returned when subscribing to a globally
	// blocklisted feed id.
	ErrFeedBlocklisted = errors.New("feed is blocklisted")

	// ErrAlreadySubscribed is returned when the community already holds a
	// subscription for the feed id.
	ErrAlreadySubscribed = errors.New("already subscribed to feed")

	// ErrSubscriptionCap is returned when a community has exhausted its
	// subscription slots.
	ErrSubscriptionCap = errors.New("subscription cap reached")
)
