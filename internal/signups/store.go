package signups

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/intranet-events/backend/internal/models"
)

// Store is the persistence boundary of the allocator.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// ListByEvent returns all signups of an event with member and slot
	// details, slot signups first.
	ListByEvent(ctx context.Context, eventID int64) ([]models.SignupDetail, error)
}

// Tx is the transactional view used by Signup and Cancel. Locks are taken
// in the order event, slot, signup.
type Tx interface {
	// ShareEvent loads the event and blocks concurrent edits until commit.
	ShareEvent(ctx context.Context, eventID int64) (*models.Event, error)
	// LockSlot locks a slot of eventID and counts its confirmed signups.
	LockSlot(ctx context.Context, eventID, slotID int64) (SlotState, error)
	HasActive(ctx context.Context, eventID int64, userID uuid.UUID, slotID *int64) (bool, error)
	Insert(ctx context.Context, su *models.Signup) error
	// FindActive returns an active signup of userID without locking it.
	FindActive(ctx context.Context, signupID int64, userID uuid.UUID) (*models.Signup, error)
	LockSignup(ctx context.Context, signupID int64) (*models.Signup, error)
	SetStatus(ctx context.Context, signupID int64, status models.SignupStatus, at time.Time) error
	// Waitlist returns the waitlisted signups of a slot, locked.
	Waitlist(ctx context.Context, slotID int64) ([]models.Signup, error)
	AppendHistory(ctx context.Context, h *models.HistoryEntry) error
}

// Broadcaster pushes signup changes to connected clients.
type Broadcaster interface {
	PublishEventChange(eventID int64, audience models.Audience, kind string, payload any)
	PublishUserNotice(userID uuid.UUID, kind string, payload any)
}

// Notifier tells a member that they moved off the waitlist.
type Notifier interface {
	NotifyPromoted(ctx context.Context, su models.Signup) error
}

const (
	ChangeKindSignup   = "signup_changed"
	NoticeKindPromoted = "signup_promoted"
)
