package autofix

import "time"

// Mode distinguishes human-initiated fixes from automatic ones.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Reason explains a policy decision.
type Reason string

const (
	ReasonManual      Reason = "manual"
	ReasonAllowed     Reason = "allowed"
	ReasonCooldown    Reason = "cooldown"
	ReasonMaxAttempts Reason = "max-attempts"

	// Engine-level rejections, decided before the budget is consulted.
	ReasonDisabled      Reason = "disabled"
	ReasonNonActionable Reason = "non-actionable"
)

// Policy limits.
const (
	MaxAutoAttempts = 2
	Cooldown        = 90 * time.Second
)

// Decision is the outcome of a policy check. AttemptNumber is always
// the attempt ordinal (count so far + 1), even when blocked, so callers
// can log it either way.
type Decision struct {
	Allowed       bool   `json:"allowed"`
	Reason        Reason `json:"reason"`
	AttemptNumber int    `json:"attempt_number"`
}

type attemptRecord struct {
	Count         int
	LastAttemptAt time.Time
}

// State holds per-fingerprint attempt history scoped to one
// (app, chat) context. State values are treated as immutable:
// RecordAttempt and SyncContext return new values instead of mutating,
// so context resets are testable by identity.
type State struct {
	AppID    string
	ChatID   string
	attempts map[string]attemptRecord
}

// NewState creates an empty State for the given context.
func NewState(appID, chatID string) *State {
	return &State{AppID: appID, ChatID: chatID, attempts: make(map[string]attemptRecord)}
}

// SyncContext returns s unchanged when the context matches, so callers
// relying on identity can skip downstream work. On any change it
// returns a brand-new empty State: attempt budgets must never leak
// across app or chat switches, in either direction.
func SyncContext(s *State, appID, chatID string) *State {
	if s != nil && s.AppID == appID && s.ChatID == chatID {
		return s
	}
	return NewState(appID, chatID)
}

// Attempts returns the recorded attempt count for a fingerprint.
func (s *State) Attempts(fingerprint string) int {
	return s.attempts[fingerprint].Count
}

// ShouldTrigger decides whether a remediation request may fire.
// Manual mode is always allowed: a human retry is never blocked by the
// automatic budget. Auto mode is blocked at the attempt ceiling, then
// by the cooldown window since the last recorded attempt.
func (s *State) ShouldTrigger(mode Mode, fingerprint string, now time.Time) Decision {
	rec := s.attempts[fingerprint]
	attemptNumber := rec.Count + 1

	if mode == ModeManual {
		return Decision{Allowed: true, Reason: ReasonManual, AttemptNumber: attemptNumber}
	}
	if rec.Count >= MaxAutoAttempts {
		return Decision{Allowed: false, Reason: ReasonMaxAttempts, AttemptNumber: attemptNumber}
	}
	if rec.Count > 0 && now.Sub(rec.LastAttemptAt) < Cooldown {
		return Decision{Allowed: false, Reason: ReasonCooldown, AttemptNumber: attemptNumber}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed, AttemptNumber: attemptNumber}
}

// RecordAttempt returns a new State with the fingerprint's budget
// advanced. Only auto attempts are recorded: manual attempts neither
// consume nor reset the automatic budget.
func (s *State) RecordAttempt(mode Mode, fingerprint string, now time.Time) *State {
	if mode != ModeAuto {
		return s
	}
	next := &State{AppID: s.AppID, ChatID: s.ChatID, attempts: make(map[string]attemptRecord, len(s.attempts)+1)}
	for k, v := range s.attempts {
		next.attempts[k] = v
	}
	rec := next.attempts[fingerprint]
	rec.Count++
	rec.LastAttemptAt = now
	next.attempts[fingerprint] = rec
	return next
}
