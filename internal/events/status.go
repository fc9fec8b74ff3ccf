package events

import (
	"time"

	"github.com/intranet-events/backend/internal/models"
)

// ResolveStatus derives the publication status of e at now. It only reads
// the event's timestamps; the cached Status field is ignored.
func ResolveStatus(now time.Time, e *models.Event) models.EventStatus {
	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		return models.StatusPlanned
	}
	if now.After(e.EndTime) {
		return models.StatusPast
	}
	if !now.Before(e.StartTime) {
		return models.StatusRunning
	}

	// now is before start from here on.
	rs, re := e.RegistrationStart, e.RegistrationEnd
	if rs != nil && re != nil {
		switch {
		case now.Before(*rs):
			return models.StatusPlanned
		case now.After(*re):
			return models.StatusClosed
		default:
			return models.StatusOpen
		}
	}
	return models.StatusOpen
}

// StatusChange is a pending write of a freshly resolved status.
type StatusChange struct {
	EventID int64
	From    models.EventStatus
	To      models.EventStatus
}

// PlanStatusChanges resolves every event at the same instant and returns
// the ones whose stored status is stale. Events are not modified.
func PlanStatusChanges(now time.Time, list []*models.Event) []StatusChange {
	var changes []StatusChange
	for _, e := range list {
		live := ResolveStatus(now, e)
		if live != e.Status {
			changes = append(changes, StatusChange{EventID: e.ID, From: e.Status, To: live})
		}
	}
	return changes
}
