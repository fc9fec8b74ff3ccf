package signups

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intranet-events/backend/internal/models"
)

type memSlot struct {
	eventID int64
	title   string
	start   time.Time
	end     time.Time
	qty     int
}

// memStore serializes transactions on one mutex, which stands in for the
// row locks of the real store.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	events  map[int64]models.Event
	slots   map[int64]memSlot
	signups map[int64]models.Signup
	names   map[uuid.UUID]string
	history []models.HistoryEntry
}

func newMemStore() *memStore {
	return &memStore{
		events:  map[int64]models.Event{},
		slots:   map[int64]memSlot{},
		signups: map[int64]models.Signup{},
		names:   map[uuid.UUID]string{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{m: m, signups: make(map[int64]models.Signup, len(m.signups)), history: append([]models.HistoryEntry(nil), m.history...), nextID: m.nextID}
	for k, v := range m.signups {
		tx.signups[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.signups, m.history, m.nextID = tx.signups, tx.history, tx.nextID
	return nil
}

func (m *memStore) ListByEvent(ctx context.Context, eventID int64) ([]models.SignupDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SignupDetail, 0)
	for _, su := range m.signups {
		if su.EventID != eventID {
			continue
		}
		d := models.SignupDetail{Signup: su, FullName: m.names[su.UserID]}
		if su.SlotID != nil {
			sl := m.slots[*su.SlotID]
			d.HelperTypeTitle = sl.title
			d.SlotStart, d.SlotEnd = &sl.start, &sl.end
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// test helpers

func (m *memStore) putEvent(e models.Event) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.id()
	m.events[e.ID] = e
	return e.ID
}

func (m *memStore) putSlot(eventID int64, title string, qty int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.events[eventID]
	id := m.id()
	m.slots[id] = memSlot{eventID: eventID, title: title, start: e.StartTime, end: e.EndTime, qty: qty}
	return id
}

func (m *memStore) signup(id int64) models.Signup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signups[id]
}

func (m *memStore) confirmed(slotID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return countConfirmed(m.signups, slotID)
}

func (m *memStore) changeTypes() []models.ChangeType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ChangeType, 0, len(m.history))
	for _, h := range m.history {
		out = append(out, h.ChangeType)
	}
	return out
}

func countConfirmed(signups map[int64]models.Signup, slotID int64) int {
	n := 0
	for _, su := range signups {
		if su.SlotID != nil && *su.SlotID == slotID && su.Status == models.SignupConfirmed {
			n++
		}
	}
	return n
}

type memTx struct {
	m       *memStore
	signups map[int64]models.Signup
	history []models.HistoryEntry
	nextID  int64
}

func (t *memTx) ShareEvent(ctx context.Context, eventID int64) (*models.Event, error) {
	e, ok := t.m.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &e, nil
}

func (t *memTx) LockSlot(ctx context.Context, eventID, slotID int64) (SlotState, error) {
	sl, ok := t.m.slots[slotID]
	if !ok || sl.eventID != eventID {
		return SlotState{}, ErrSlotNotFound
	}
	return SlotState{ID: slotID, EventID: eventID, QuantityNeeded: sl.qty, Confirmed: countConfirmed(t.signups, slotID)}, nil
}

func (t *memTx) HasActive(ctx context.Context, eventID int64, userID uuid.UUID, slotID *int64) (bool, error) {
	for _, su := range t.signups {
		if su.EventID != eventID || su.UserID != userID || !su.Status.Active() {
			continue
		}
		if (su.SlotID == nil) == (slotID == nil) && (slotID == nil || *su.SlotID == *slotID) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) Insert(ctx context.Context, su *models.Signup) error {
	t.nextID++
	su.ID = t.nextID
	t.signups[su.ID] = *su
	return nil
}

func (t *memTx) FindActive(ctx context.Context, signupID int64, userID uuid.UUID) (*models.Signup, error) {
	su, ok := t.signups[signupID]
	if !ok || su.UserID != userID || !su.Status.Active() {
		return nil, ErrSignupNotFound
	}
	return &su, nil
}

func (t *memTx) LockSignup(ctx context.Context, signupID int64) (*models.Signup, error) {
	su, ok := t.signups[signupID]
	if !ok {
		return nil, ErrSignupNotFound
	}
	return &su, nil
}

func (t *memTx) SetStatus(ctx context.Context, signupID int64, status models.SignupStatus, at time.Time) error {
	su, ok := t.signups[signupID]
	if !ok {
		return ErrSignupNotFound
	}
	su.Status = status
	su.UpdatedAt = at
	t.signups[signupID] = su
	return nil
}

func (t *memTx) Waitlist(ctx context.Context, slotID int64) ([]models.Signup, error) {
	var out []models.Signup
	for _, su := range t.signups {
		if su.SlotID != nil && *su.SlotID == slotID && su.Status == models.SignupWaitlist {
			out = append(out, su)
		}
	}
	// map order; NextInLine must do the ordering
	return out, nil
}

func (t *memTx) AppendHistory(ctx context.Context, h *models.HistoryEntry) error {
	t.nextID++
	h.ID = t.nextID
	t.history = append(t.history, *h)
	return nil
}
