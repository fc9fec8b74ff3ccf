package models

import (
	"time"
)

// Email types.
const (
	// EmailTypeNewEvent is sent to opted-in members when an event is created.
	EmailTypeNewEvent = "new_event"
	// EmailTypeSignupPromoted tells a helper they moved off the waitlist.
	EmailTypeSignupPromoted = "signup_promoted"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusPending = "pending"
	EmailLogStatusSent    = "sent"
	EmailLogStatusFailed  = "failed"
)

// EmailLog records one notification delivery attempt.
type EmailLog struct {
	ID             int64      `json:"id"`
	EventID        *int64     `json:"event_id,omitempty"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
