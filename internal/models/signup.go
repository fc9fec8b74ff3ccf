package models

import (
	"time"

	"github.com/google/uuid"
)

// SignupStatus of a signup. Cancelled is terminal.
type SignupStatus string

const (
	SignupConfirmed SignupStatus = "confirmed"
	SignupWaitlist  SignupStatus = "waitlist"
	SignupCancelled SignupStatus = "cancelled"
)

// Active reports whether the signup still counts (confirmed or waitlisted).
func (s SignupStatus) Active() bool {
	return s == SignupConfirmed || s == SignupWaitlist
}

// Signup is a user's attendance (SlotID nil) or helper-slot registration.
type Signup struct {
	ID        int64        `json:"id"`
	EventID   int64        `json:"event_id"`
	UserID    uuid.UUID    `json:"user_id"`
	SlotID    *int64       `json:"slot_id,omitempty"`
	Status    SignupStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// SignupDetail is a Signup joined with the member's name for organizer views.
type SignupDetail struct {
	Signup
	FullName        string     `json:"full_name"`
	Email           string     `json:"email"`
	HelperTypeTitle string     `json:"helper_type_title,omitempty"`
	SlotStart       *time.Time `json:"slot_start,omitempty"`
	SlotEnd         *time.Time `json:"slot_end,omitempty"`
}
