package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/intranet-events/backend/internal/models"
)

// DefaultLockTimeout is how long an editing lock stays valid after its
// last acquire.
const DefaultLockTimeout = 900 * time.Second

// Arbiter decides editing-lock transitions. It is pure; callers persist
// the returned state.
type Arbiter struct {
	Timeout time.Duration
}

// NewArbiter returns an Arbiter; a non-positive timeout selects the default.
func NewArbiter(timeout time.Duration) Arbiter {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return Arbiter{Timeout: timeout}
}

// LockCheck is the observed state of a lock at a given instant.
type LockCheck struct {
	Locked     bool
	Holder     *uuid.UUID
	AcquiredAt *time.Time
	// Expired is set when a stale holder was found; the caller should
	// persist the cleared state.
	Expired bool
}

// LockDecision is the outcome of an acquire or release attempt. On denial
// Holder names the user that keeps the lock.
type LockDecision struct {
	Granted    bool
	Holder     *uuid.UUID
	AcquiredAt *time.Time
}

// ExpiresAt is when a lock acquired at acquiredAt stops being valid.
func (a Arbiter) ExpiresAt(acquiredAt time.Time) time.Time {
	return acquiredAt.Add(a.Timeout)
}

// A holder without an acquisition time cannot be proven live.
func (a Arbiter) expired(l models.LockState, now time.Time) bool {
	if l.AcquiredAt == nil {
		return true
	}
	return now.Sub(*l.AcquiredAt) > a.Timeout
}

// Check reports whether l is live at now.
func (a Arbiter) Check(l models.LockState, now time.Time) LockCheck {
	if !l.Held() {
		return LockCheck{}
	}
	if a.expired(l, now) {
		return LockCheck{Expired: true}
	}
	return LockCheck{Locked: true, Holder: l.Holder, AcquiredAt: l.AcquiredAt}
}

// Acquire grants the lock to actor unless another user holds a live one.
// Re-acquiring an own lock refreshes its acquisition time.
func (a Arbiter) Acquire(l models.LockState, actor uuid.UUID, now time.Time) (models.LockState, LockDecision) {
	if chk := a.Check(l, now); chk.Locked && *chk.Holder != actor {
		return l, LockDecision{Holder: chk.Holder, AcquiredAt: chk.AcquiredAt}
	}
	holder, at := actor, now
	next := models.LockState{Holder: &holder, AcquiredAt: &at}
	return next, LockDecision{Granted: true, Holder: next.Holder, AcquiredAt: next.AcquiredAt}
}

// Release clears the lock unless another user holds a live one. Releasing
// an unlocked or expired lock succeeds.
func (a Arbiter) Release(l models.LockState, actor uuid.UUID, now time.Time) (models.LockState, LockDecision) {
	if chk := a.Check(l, now); chk.Locked && *chk.Holder != actor {
		return l, LockDecision{Holder: chk.Holder, AcquiredAt: chk.AcquiredAt}
	}
	return models.LockState{}, LockDecision{Granted: true}
}

// HeldByOther reports whether someone other than actor holds a live lock.
func (a Arbiter) HeldByOther(l models.LockState, actor uuid.UUID, now time.Time) (LockCheck, bool) {
	chk := a.Check(l, now)
	return chk, chk.Locked && *chk.Holder != actor
}
