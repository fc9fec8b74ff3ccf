package events

import (
	"strings"
	"time"

	"github.com/intranet-events/backend/internal/models"
)

// EventInput carries the fields of a create or partial update. Nil means
// "not supplied"; for Create the required fields must be present.
type EventInput struct {
	Title             *string
	Description       *string
	Location          *string
	StartTime         *time.Time
	EndTime           *time.Time
	RegistrationStart *time.Time
	RegistrationEnd   *time.Time
	// ClearRegistration removes both registration bounds before the
	// supplied ones are applied.
	ClearRegistration bool
	NeedsHelpers      *bool
	AllowedRoles      *[]models.Role
	IsExternal        *bool
	HelperTypes       *[]HelperTypeInput
}

// HelperTypeInput describes one helper type. A zero ID creates a new one;
// a non-zero ID keeps the existing row.
type HelperTypeInput struct {
	ID          int64
	Title       string
	Description string
	Slots       []SlotInput
}

// SlotInput describes one slot. A zero ID creates a new slot.
type SlotInput struct {
	ID             int64
	StartTime      time.Time
	EndTime        time.Time
	QuantityNeeded int
}

// merge applies in onto cur and returns the merged event plus the names of
// the fields that changed.
func merge(cur models.Event, in EventInput) (models.Event, []string) {
	var changed []string
	setString := func(dst *string, src *string, name string) {
		if src != nil && *src != *dst {
			*dst = *src
			changed = append(changed, name)
		}
	}
	setTime := func(dst *time.Time, src *time.Time, name string) {
		if src != nil && !src.Equal(*dst) {
			*dst = *src
			changed = append(changed, name)
		}
	}
	setOptTime := func(dst **time.Time, src *time.Time, name string) {
		if src == nil {
			return
		}
		if *dst == nil || !(*dst).Equal(*src) {
			t := *src
			*dst = &t
			changed = append(changed, name)
		}
	}
	setBool := func(dst *bool, src *bool, name string) {
		if src != nil && *src != *dst {
			*dst = *src
			changed = append(changed, name)
		}
	}

	setString(&cur.Title, in.Title, "title")
	setString(&cur.Description, in.Description, "description")
	setString(&cur.Location, in.Location, "location")
	setTime(&cur.StartTime, in.StartTime, "start_time")
	setTime(&cur.EndTime, in.EndTime, "end_time")
	if in.ClearRegistration {
		if cur.RegistrationStart != nil {
			changed = append(changed, "registration_start")
		}
		if cur.RegistrationEnd != nil {
			changed = append(changed, "registration_end")
		}
		cur.RegistrationStart, cur.RegistrationEnd = nil, nil
	}
	setOptTime(&cur.RegistrationStart, in.RegistrationStart, "registration_start")
	setOptTime(&cur.RegistrationEnd, in.RegistrationEnd, "registration_end")
	setBool(&cur.NeedsHelpers, in.NeedsHelpers, "needs_helpers")
	setBool(&cur.IsExternal, in.IsExternal, "is_external")
	if in.AllowedRoles != nil && !sameRoles(cur.AllowedRoles, *in.AllowedRoles) {
		cur.AllowedRoles = append([]models.Role(nil), (*in.AllowedRoles)...)
		changed = append(changed, "allowed_roles")
	}
	if in.HelperTypes != nil {
		changed = append(changed, "helper_types")
	}
	return cur, dedupe(changed)
}

func sameRoles(a, b []models.Role) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// validateEvent checks the event-level invariants.
func validateEvent(e *models.Event) error {
	if strings.TrimSpace(e.Title) == "" {
		return invalid("title", "is required")
	}
	if e.StartTime.IsZero() {
		return invalid("start_time", "is required")
	}
	if e.EndTime.IsZero() {
		return invalid("end_time", "is required")
	}
	if !e.EndTime.After(e.StartTime) {
		return invalid("end_time", "must be after start_time")
	}
	if e.RegistrationEnd != nil && !e.RegistrationEnd.Before(e.EndTime) {
		return invalid("registration_end", "must be before end_time")
	}
	if e.RegistrationStart != nil && e.RegistrationEnd != nil && e.RegistrationStart.After(*e.RegistrationEnd) {
		return invalid("registration_start", "must not be after registration_end")
	}
	for _, r := range e.AllowedRoles {
		if !r.Valid() {
			return invalid("allowed_roles", "unknown role %q", r)
		}
	}
	return nil
}

// checkHelperFlag rejects a non-empty helper plan for an event that does
// not need helpers.
func checkHelperFlag(e *models.Event, types *[]HelperTypeInput) error {
	if types != nil && len(*types) > 0 && !e.NeedsHelpers {
		return invalid("helper_types", "requires needs_helpers")
	}
	return nil
}

// validateHelperTypes checks every slot against the event interval.
func validateHelperTypes(e *models.Event, types []HelperTypeInput) error {
	seenTypes := map[int64]bool{}
	seenSlots := map[int64]bool{}
	for i, ht := range types {
		if strings.TrimSpace(ht.Title) == "" {
			return invalid("helper_types", "helper type %d: title is required", i+1)
		}
		if ht.ID != 0 {
			if seenTypes[ht.ID] {
				return invalid("helper_types", "helper type %d submitted twice", ht.ID)
			}
			seenTypes[ht.ID] = true
		}
		for j, s := range ht.Slots {
			if s.ID != 0 {
				if seenSlots[s.ID] {
					return invalid("slots", "slot %d submitted twice", s.ID)
				}
				seenSlots[s.ID] = true
			}
			if s.StartTime.IsZero() || s.EndTime.IsZero() {
				return invalid("slots", "%q slot %d: start_time and end_time are required", ht.Title, j+1)
			}
			if !s.StartTime.Before(s.EndTime) {
				return invalid("slots", "%q slot %d: start_time must be before end_time", ht.Title, j+1)
			}
			if s.StartTime.Before(e.StartTime) || s.EndTime.After(e.EndTime) {
				return invalid("slots", "%q slot %d: must lie within the event", ht.Title, j+1)
			}
			if s.QuantityNeeded < 1 {
				return invalid("quantity_needed", "%q slot %d: must be at least 1", ht.Title, j+1)
			}
		}
	}
	return nil
}

// SlotUsage counts the active signups on an existing slot.
type SlotUsage struct {
	SlotID     int64
	StartTime  time.Time
	EndTime    time.Time
	Confirmed  int
	Waitlisted int
}

// HelperTypeUsage is an existing helper type with its slots' usage.
type HelperTypeUsage struct {
	ID    int64
	Slots []SlotUsage
}

// SlotPromotion asks for Count waitlisted signups on a slot to be confirmed
// because its capacity grew.
type SlotPromotion struct {
	SlotID int64
	Count  int
}

// planReplacement checks a helper plan replacement against the current
// signups. Submitted ids must belong to the event, a slot with active
// signups may not be dropped and a slot may not shrink below its confirmed
// count. Returns the waitlist promotions implied by grown slots.
func planReplacement(existing []HelperTypeUsage, submitted []HelperTypeInput) ([]SlotPromotion, error) {
	slotOwner := map[int64]int64{}
	usage := map[int64]SlotUsage{}
	knownTypes := map[int64]bool{}
	for _, ht := range existing {
		knownTypes[ht.ID] = true
		for _, s := range ht.Slots {
			slotOwner[s.SlotID] = ht.ID
			usage[s.SlotID] = s
		}
	}

	kept := map[int64]bool{}
	var promotions []SlotPromotion
	for _, ht := range submitted {
		if ht.ID != 0 && !knownTypes[ht.ID] {
			return nil, invalid("helper_types", "helper type %d does not belong to this event", ht.ID)
		}
		for _, s := range ht.Slots {
			if s.ID == 0 {
				continue
			}
			owner, ok := slotOwner[s.ID]
			if !ok || ht.ID == 0 || owner != ht.ID {
				return nil, invalid("slots", "slot %d does not belong to helper type %d", s.ID, ht.ID)
			}
			kept[s.ID] = true
			u := usage[s.ID]
			if s.QuantityNeeded < u.Confirmed {
				return nil, invalid("quantity_needed", "slot %d already has %d confirmed helpers", s.ID, u.Confirmed)
			}
			if free := s.QuantityNeeded - u.Confirmed; free > 0 && u.Waitlisted > 0 {
				promotions = append(promotions, SlotPromotion{SlotID: s.ID, Count: min(free, u.Waitlisted)})
			}
		}
	}

	for id, u := range usage {
		if !kept[id] && u.Confirmed+u.Waitlisted > 0 {
			return nil, invalid("slots", "slot %d still has active signups", id)
		}
	}
	return promotions, nil
}

// checkContainment verifies that existing slots still lie within a changed
// event interval.
func checkContainment(e *models.Event, existing []HelperTypeUsage) error {
	for _, ht := range existing {
		for _, s := range ht.Slots {
			if s.StartTime.Before(e.StartTime) || s.EndTime.After(e.EndTime) {
				return invalid("start_time", "slot %d would fall outside the event", s.SlotID)
			}
		}
	}
	return nil
}

// helperTypesToModels converts validated input into rows for the store.
func helperTypesToModels(eventID int64, types []HelperTypeInput) []models.HelperType {
	out := make([]models.HelperType, 0, len(types))
	for _, ht := range types {
		m := models.HelperType{ID: ht.ID, EventID: eventID, Title: strings.TrimSpace(ht.Title), Description: ht.Description}
		for _, s := range ht.Slots {
			m.Slots = append(m.Slots, models.Slot{
				ID:             s.ID,
				HelperTypeID:   ht.ID,
				StartTime:      s.StartTime,
				EndTime:        s.EndTime,
				QuantityNeeded: s.QuantityNeeded,
			})
		}
		out = append(out, m)
	}
	return out
}
