package events

import (
	"github.com/intranet-events/backend/internal/models"
)

// Visible reports whether role may see e at all. Organizers see every
// event, including ones they restricted to other roles.
func Visible(e *models.Event, role models.Role) bool {
	return models.EventVisibleTo(e.AllowedRoles, role)
}

// Project returns the caller-facing copy of e. Helper-restricted roles
// never see helper data, even when includeHelpers is requested.
func Project(e models.Event, role models.Role, includeHelpers bool) models.Event {
	if e.AllowedRoles == nil {
		e.AllowedRoles = []models.Role{}
	}
	switch {
	case role.HelperRestricted():
		e.NeedsHelpers = false
		e.HelperTypes = []models.HelperType{}
	case !includeHelpers || e.HelperTypes == nil:
		e.HelperTypes = []models.HelperType{}
	}
	return e
}
