package events

import (
	"context"
	"io"
	"time"

	"github.com/intranet-events/backend/internal/models"
)

// ListFilter narrows List. Statuses are matched against the live status.
type ListFilter struct {
	Statuses       []models.EventStatus
	From           *time.Time
	To             *time.Time
	External       *bool
	IncludeHelpers bool
	// SkipPast drops rows whose stored status is already past.
	SkipPast bool
}

// Store is the persistence boundary of the event aggregate.
type Store interface {
	// InTx runs fn in one transaction; an error from fn rolls it back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// GetEvent loads an event with its helper types, slots and confirmed counts.
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	ListEvents(ctx context.Context, f ListFilter) ([]*models.Event, error)
	// ApplyStatusChanges writes all changes in a single transaction.
	ApplyStatusChanges(ctx context.Context, changes []StatusChange) error
	SetImagePath(ctx context.Context, id int64, path string) error
	ListHistory(ctx context.Context, eventID int64, limit int) ([]models.HistoryEntry, error)
}

// Tx is the transactional view used by writes.
type Tx interface {
	// LockEvent loads the event row FOR UPDATE, without helper types.
	LockEvent(ctx context.Context, id int64) (*models.Event, error)
	InsertEvent(ctx context.Context, e *models.Event) error
	UpdateEvent(ctx context.Context, e *models.Event) error
	SaveLock(ctx context.Context, id int64, l models.LockState) error
	DeleteEvent(ctx context.Context, id int64) error
	// HelperUsage returns the event's helper types with active signup
	// counts per slot, locking the slot rows.
	HelperUsage(ctx context.Context, eventID int64) ([]HelperTypeUsage, error)
	// ReplaceHelperTypes makes the stored plan equal to types. Rows with a
	// non-zero id are updated in place, others inserted, missing ones deleted.
	ReplaceHelperTypes(ctx context.Context, eventID int64, types []models.HelperType) error
	// PromoteWaitlisted confirms up to n waitlisted signups on a slot in
	// FIFO order and returns them.
	PromoteWaitlisted(ctx context.Context, slotID int64, n int, at time.Time) ([]models.Signup, error)
	AppendHistory(ctx context.Context, h *models.HistoryEntry) error
}

// Upload is an image supplied with a create or update.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ImageStore persists event images and returns the stored path.
type ImageStore interface {
	UploadEventImage(ctx context.Context, eventID int64, img *Upload) (string, error)
}

// Notifier announces newly created events. Delivery is best effort.
type Notifier interface {
	NotifyNewEvent(ctx context.Context, e *models.Event) error
}

// PromotionNotifier is optionally implemented by a Notifier to tell members
// that growing a slot moved them off the waitlist.
type PromotionNotifier interface {
	NotifyPromoted(ctx context.Context, su models.Signup) error
}

// Broadcaster pushes change notices to connected clients. Only callers
// admitted by audience receive them.
type Broadcaster interface {
	PublishEventChange(eventID int64, audience models.Audience, kind string, payload any)
}

// Broadcast kinds.
const (
	ChangeKindEventUpdated = "event_updated"
	ChangeKindEventDeleted = "event_deleted"
	ChangeKindLock         = "lock_changed"
)
