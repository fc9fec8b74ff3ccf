package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/intranet-events/backend/internal/models"
	"github.com/intranet-events/backend/pkg/queue"
)

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) ListNewEventSubscribers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]models.User)
	return users, args.Error(1)
}

func (m *mockDirectory) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*models.Event)
	return e, args.Error(1)
}

type mockQueue struct{ mock.Mock }

func (m *mockQueue) EnqueueEmail(ctx context.Context, p queue.EmailPayload) error {
	return m.Called(ctx, p).Error(0)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishEventCreated(ctx context.Context, e *models.Event) error {
	return m.Called(ctx, e).Error(0)
}

var party = &models.Event{
	ID:           42,
	Title:        "Summer party",
	Location:     "Courtyard",
	StartTime:    time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC),
	EndTime:      time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC),
	NeedsHelpers: true,
	AllowedRoles: []models.Role{models.RoleMember, models.RoleBoard},
	CreatedBy:    uuid.New(),
}

func TestNotifyNewEventRespectsVisibility(t *testing.T) {
	ada := models.User{ID: uuid.New(), Email: "ada@example.org", FullName: "Ada", Role: models.RoleMember}
	alum := models.User{ID: uuid.New(), Email: "old@example.org", Role: models.RoleAlumni}
	creator := models.User{ID: party.CreatedBy, Email: "board@example.org", Role: models.RoleBoard}

	dir := new(mockDirectory)
	dir.On("ListNewEventSubscribers", mock.Anything).Return([]models.User{ada, alum, creator}, nil)
	q := new(mockQueue)
	q.On("EnqueueEmail", mock.Anything, mock.MatchedBy(func(p queue.EmailPayload) bool {
		return p.RecipientEmail == ada.Email &&
			p.EmailType == models.EmailTypeNewEvent &&
			p.EventID == 42 &&
			p.Subject == "New event: Summer party"
	})).Return(nil).Once()

	d := NewDispatcher(dir, nil, q, "https://intranet.example.org", time.FixedZone("CEST", 2*60*60), nil)
	require.NoError(t, d.NotifyNewEvent(context.Background(), party))

	q.AssertExpectations(t)
	q.AssertNumberOfCalls(t, "EnqueueEmail", 1)
	body := q.Calls[0].Arguments.Get(1).(queue.EmailPayload).Body
	assert.Contains(t, body, "Hello Ada,")
	assert.Contains(t, body, "Sun 01.06.2025 18:00")
	assert.Contains(t, body, "Helpers are needed")
	assert.Contains(t, body, "https://intranet.example.org/events/42")
}

func TestNotifyNewEventCollectsErrors(t *testing.T) {
	a := models.User{ID: uuid.New(), Email: "a@example.org", Role: models.RoleMember}
	b := models.User{ID: uuid.New(), Email: "b@example.org", Role: models.RoleMember}

	dir := new(mockDirectory)
	dir.On("ListNewEventSubscribers", mock.Anything).Return([]models.User{a, b}, nil)
	q := new(mockQueue)
	q.On("EnqueueEmail", mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()
	q.On("EnqueueEmail", mock.Anything, mock.Anything).Return(nil).Once()
	pub := new(mockPublisher)
	pub.On("PublishEventCreated", mock.Anything, party).Return(errors.New("broker down"))

	d := NewDispatcher(dir, nil, q, "", nil, nil)
	d.SetPublisher(pub)
	err := d.NotifyNewEvent(context.Background(), party)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Contains(t, err.Error(), "broker down")
	q.AssertNumberOfCalls(t, "EnqueueEmail", 2)
}

func TestNotifyNewEventSubscriberLookupFails(t *testing.T) {
	dir := new(mockDirectory)
	dir.On("ListNewEventSubscribers", mock.Anything).Return(nil, errors.New("db down"))
	q := new(mockQueue)

	d := NewDispatcher(dir, nil, q, "", nil, nil)
	assert.Error(t, d.NotifyNewEvent(context.Background(), party))
	q.AssertNotCalled(t, "EnqueueEmail", mock.Anything, mock.Anything)
}

func TestNotifyPromoted(t *testing.T) {
	slot := int64(7)
	e := *party
	e.HelperTypes = []models.HelperType{{ID: 3, Title: "Bar", Slots: []models.Slot{{
		ID: slot, StartTime: party.StartTime, EndTime: party.StartTime.Add(2 * time.Hour), QuantityNeeded: 1,
	}}}}
	u := &models.User{ID: uuid.New(), Email: "grace@example.org", FullName: "Grace", Role: models.RoleMember}
	su := models.Signup{ID: 9, EventID: e.ID, UserID: u.ID, SlotID: &slot, Status: models.SignupConfirmed}

	dir := new(mockDirectory)
	dir.On("GetByID", mock.Anything, u.ID).Return(u, nil)
	evs := new(mockEvents)
	evs.On("GetEvent", mock.Anything, e.ID).Return(&e, nil)
	q := new(mockQueue)
	q.On("EnqueueEmail", mock.Anything, mock.MatchedBy(func(p queue.EmailPayload) bool {
		return p.EmailType == models.EmailTypeSignupPromoted && p.RecipientEmail == u.Email
	})).Return(nil)

	d := NewDispatcher(dir, evs, q, "", nil, nil)
	require.NoError(t, d.NotifyPromoted(context.Background(), su))
	body := q.Calls[0].Arguments.Get(1).(queue.EmailPayload).Body
	assert.Contains(t, body, "Shift: Bar, Sun 01.06.2025 16:00 to 18:00")
}
