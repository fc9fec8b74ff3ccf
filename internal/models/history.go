package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChangeType classifies a history entry.
type ChangeType string

const (
	ChangeCreated         ChangeType = "created"
	ChangeUpdated         ChangeType = "updated"
	ChangeDeleted         ChangeType = "deleted"
	ChangeLockAcquired    ChangeType = "lock_acquired"
	ChangeLockReleased    ChangeType = "lock_released"
	ChangeLockExpired     ChangeType = "lock_expired"
	ChangeSignup          ChangeType = "signup"
	ChangeSignupCancelled ChangeType = "signup_cancelled"
	ChangeSignupPromoted  ChangeType = "signup_promoted"
)

// HistoryEntry is an append-only audit record. EventID outlives the event.
type HistoryEntry struct {
	ID         int64           `json:"id"`
	EventID    int64           `json:"event_id"`
	UserID     uuid.UUID       `json:"user_id"`
	ChangeType ChangeType      `json:"change_type"`
	Details    json.RawMessage `json:"details"`
	CreatedAt  time.Time       `json:"created_at"`
}
