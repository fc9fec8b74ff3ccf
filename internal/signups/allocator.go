// Package signups allocates event attendance and helper slots. A slot
// never holds more confirmed signups than it needs; overflow waits in a
// FIFO queue and is promoted when a confirmed helper cancels.
package signups

import (
	"sort"

	"github.com/intranet-events/backend/internal/models"
)

// SlotState is a slot row locked for the duration of an admission.
type SlotState struct {
	ID             int64
	EventID        int64
	QuantityNeeded int
	Confirmed      int
}

// AdmissionStatus returns the status of a new signup on a slot with the
// given confirmed count.
func AdmissionStatus(confirmed, quantityNeeded int) models.SignupStatus {
	if confirmed >= quantityNeeded {
		return models.SignupWaitlist
	}
	return models.SignupConfirmed
}

// CheckEligibility decides whether role may sign up for e, as a helper when
// slotted is true.
func CheckEligibility(e *models.Event, role models.Role, slotted bool) error {
	if slotted {
		if role.HelperRestricted() {
			return ErrHelperRestricted
		}
		if !e.NeedsHelpers {
			return ErrHelpersDisabled
		}
	}
	if role != models.RoleAdmin && !models.RoleAllowed(e.AllowedRoles, role) {
		return ErrRoleNotAllowed
	}
	return nil
}

// NextInLine returns the oldest waitlisted signup of queue, by creation
// time then id.
func NextInLine(queue []models.Signup) (models.Signup, bool) {
	var waiting []models.Signup
	for _, su := range queue {
		if su.Status == models.SignupWaitlist {
			waiting = append(waiting, su)
		}
	}
	if len(waiting) == 0 {
		return models.Signup{}, false
	}
	sort.Slice(waiting, func(i, j int) bool {
		if !waiting[i].CreatedAt.Equal(waiting[j].CreatedAt) {
			return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
		}
		return waiting[i].ID < waiting[j].ID
	})
	return waiting[0], true
}
