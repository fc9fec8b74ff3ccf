package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/intranet-events/backend/internal/models"
)

const dateLayout = "Mon 02.01.2006 15:04"

func greeting(u *models.User) string {
	if u.FullName == "" {
		return "Hello,"
	}
	return fmt.Sprintf("Hello %s,", u.FullName)
}

func newEventMail(e *models.Event, u *models.User, link string, loc *time.Location) (subject, body string) {
	subject = "New event: " + e.Title
	var b strings.Builder
	fmt.Fprintln(&b, greeting(u))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "a new event was published: %s\n", e.Title)
	fmt.Fprintf(&b, "When: %s to %s\n", e.StartTime.In(loc).Format(dateLayout), e.EndTime.In(loc).Format(dateLayout))
	if e.Location != "" {
		fmt.Fprintf(&b, "Where: %s\n", e.Location)
	}
	if e.RegistrationStart != nil && e.RegistrationEnd != nil {
		fmt.Fprintf(&b, "Registration: %s to %s\n",
			e.RegistrationStart.In(loc).Format(dateLayout), e.RegistrationEnd.In(loc).Format(dateLayout))
	}
	if e.NeedsHelpers && !u.Role.HelperRestricted() {
		fmt.Fprintln(&b, "Helpers are needed for this event.")
	}
	if link != "" {
		fmt.Fprintf(&b, "\n%s\n", link)
	}
	fmt.Fprintln(&b, "\nYou receive this mail because you enabled new event alerts.")
	return subject, b.String()
}

func promotedMail(e *models.Event, u *models.User, su models.Signup, link string, loc *time.Location) (subject, body string) {
	subject = "You are confirmed: " + e.Title
	var b strings.Builder
	fmt.Fprintln(&b, greeting(u))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "a place opened up and your waitlisted signup for %s is now confirmed.\n", e.Title)
	if su.SlotID != nil {
		for _, ht := range e.HelperTypes {
			for _, sl := range ht.Slots {
				if sl.ID == *su.SlotID {
					fmt.Fprintf(&b, "Shift: %s, %s to %s\n", ht.Title,
						sl.StartTime.In(loc).Format(dateLayout), sl.EndTime.In(loc).Format("15:04"))
				}
			}
		}
	}
	if link != "" {
		fmt.Fprintf(&b, "\n%s\n", link)
	}
	return subject, b.String()
}
