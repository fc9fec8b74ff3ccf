package models

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the publication status derived from the event's timestamps.
type EventStatus string

const (
	StatusPlanned EventStatus = "planned"
	StatusOpen    EventStatus = "open"
	StatusClosed  EventStatus = "closed"
	StatusRunning EventStatus = "running"
	StatusPast    EventStatus = "past"
)

// ParseEventStatus validates a status name.
func ParseEventStatus(s string) (EventStatus, bool) {
	switch st := EventStatus(s); st {
	case StatusPlanned, StatusOpen, StatusClosed, StatusRunning, StatusPast:
		return st, true
	}
	return "", false
}

// LockState is the editing lock carried on an event row. A nil Holder
// means unlocked.
type LockState struct {
	Holder     *uuid.UUID `json:"locked_by,omitempty"`
	AcquiredAt *time.Time `json:"locked_at,omitempty"`
}

// Held reports whether a holder is recorded, expired or not.
func (l LockState) Held() bool { return l.Holder != nil }

// Event is an intranet event with its optional helper plan.
type Event struct {
	ID                int64        `json:"id"`
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	Location          string       `json:"location"`
	StartTime         time.Time    `json:"start_time"`
	EndTime           time.Time    `json:"end_time"`
	RegistrationStart *time.Time   `json:"registration_start,omitempty"`
	RegistrationEnd   *time.Time   `json:"registration_end,omitempty"`
	Status            EventStatus  `json:"status"`
	NeedsHelpers      bool         `json:"needs_helpers"`
	AllowedRoles      []Role       `json:"allowed_roles"`
	IsExternal        bool         `json:"is_external"`
	ImagePath         *string      `json:"image_path,omitempty"`
	Lock              LockState    `json:"lock"`
	HelperTypes       []HelperType `json:"helper_types"`
	CreatedBy         uuid.UUID    `json:"created_by"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Audience limits who receives a change notice about an event.
type Audience struct {
	AllowedRoles []Role `json:"allowed_roles,omitempty"`
	// Helpers marks notices that carry helper slot data.
	Helpers bool `json:"helpers,omitempty"`
}

// AudienceOf returns the audience of notices about e.
func AudienceOf(e *Event) Audience {
	return Audience{AllowedRoles: e.AllowedRoles}
}

// Admits reports whether a caller with role r may receive the notice.
func (a Audience) Admits(r Role) bool {
	if a.Helpers && r.HelperRestricted() {
		return false
	}
	return EventVisibleTo(a.AllowedRoles, r)
}

// HelperType is a named helper role within an event, e.g. "Bar".
type HelperType struct {
	ID          int64  `json:"id"`
	EventID     int64  `json:"event_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Slots       []Slot `json:"slots"`
}

// Slot is a time window of a helper type with finite capacity.
type Slot struct {
	ID             int64     `json:"id"`
	HelperTypeID   int64     `json:"helper_type_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	QuantityNeeded int       `json:"quantity_needed"`
	SignupsCount   int       `json:"signups_count"`
}
