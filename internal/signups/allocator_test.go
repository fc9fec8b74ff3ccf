package signups

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/intranet-events/backend/internal/models"
)

func TestAdmissionStatus(t *testing.T) {
	cases := []struct {
		confirmed, qty int
		want           models.SignupStatus
	}{
		{0, 1, models.SignupConfirmed},
		{1, 1, models.SignupWaitlist},
		{2, 3, models.SignupConfirmed},
		{4, 3, models.SignupWaitlist},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AdmissionStatus(tc.confirmed, tc.qty), "confirmed=%d qty=%d", tc.confirmed, tc.qty)
	}
}

func TestCheckEligibility(t *testing.T) {
	helpers := &models.Event{NeedsHelpers: true}
	boardOnly := &models.Event{NeedsHelpers: true, AllowedRoles: []models.Role{models.RoleBoard}}
	noHelpers := &models.Event{}

	assert.NoError(t, CheckEligibility(helpers, models.RoleMember, true))
	assert.NoError(t, CheckEligibility(noHelpers, models.RoleMember, false))
	assert.NoError(t, CheckEligibility(helpers, models.RoleAlumni, false))
	assert.NoError(t, CheckEligibility(boardOnly, models.RoleAdmin, true))

	assert.ErrorIs(t, CheckEligibility(noHelpers, models.RoleMember, true), ErrHelpersDisabled)
	assert.ErrorIs(t, CheckEligibility(boardOnly, models.RoleMember, true), ErrRoleNotAllowed)
	assert.ErrorIs(t, CheckEligibility(boardOnly, models.RoleMember, false), ErrRoleNotAllowed)
	// restriction wins over every other check
	assert.ErrorIs(t, CheckEligibility(noHelpers, models.RoleAlumni, true), ErrHelperRestricted)
	assert.ErrorIs(t, CheckEligibility(boardOnly, models.RoleAlumni, true), ErrHelperRestricted)
}

func TestNextInLine(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	slot := int64(1)
	mk := func(id int64, status models.SignupStatus, created time.Time) models.Signup {
		return models.Signup{ID: id, UserID: uuid.New(), SlotID: &slot, Status: status, CreatedAt: created}
	}

	_, ok := NextInLine(nil)
	assert.False(t, ok)

	queue := []models.Signup{
		mk(7, models.SignupWaitlist, t0.Add(2*time.Minute)),
		mk(3, models.SignupConfirmed, t0),
		mk(9, models.SignupWaitlist, t0.Add(time.Minute)),
		mk(5, models.SignupWaitlist, t0.Add(time.Minute)),
		mk(2, models.SignupCancelled, t0),
	}
	next, ok := NextInLine(queue)
	assert.True(t, ok)
	assert.Equal(t, int64(5), next.ID)
}
