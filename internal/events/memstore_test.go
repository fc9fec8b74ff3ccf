package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/intranet-events/backend/internal/models"
)

// memStore is an in-memory Store. InTx works on a copy of the state and
// swaps it in on success, so failed transactions leave no trace.
type memStore struct {
	mu sync.Mutex
	st *memState

	applyErr    error
	statusCalls int
}

type memState struct {
	nextID  int64
	events  map[int64]models.Event
	types   map[int64]models.HelperType
	slots   map[int64]models.Slot
	signups map[int64]models.Signup
	history []models.HistoryEntry
}

func newMemStore() *memStore {
	return &memStore{st: &memState{
		events:  map[int64]models.Event{},
		types:   map[int64]models.HelperType{},
		slots:   map[int64]models.Slot{},
		signups: map[int64]models.Signup{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:  s.nextID,
		events:  make(map[int64]models.Event, len(s.events)),
		types:   make(map[int64]models.HelperType, len(s.types)),
		slots:   make(map[int64]models.Slot, len(s.slots)),
		signups: make(map[int64]models.Signup, len(s.signups)),
		history: append([]models.HistoryEntry(nil), s.history...),
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.types {
		c.types[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.signups {
		c.signups[k] = v
	}
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memState) plan(eventID int64) []models.HelperType {
	var out []models.HelperType
	for _, ht := range s.types {
		if ht.EventID != eventID {
			continue
		}
		ht.Slots = []models.Slot{}
		for _, sl := range s.slots {
			if sl.HelperTypeID != ht.ID {
				continue
			}
			sl.SignupsCount = 0
			for _, su := range s.signups {
				if su.SlotID != nil && *su.SlotID == sl.ID && su.Status == models.SignupConfirmed {
					sl.SignupsCount++
				}
			}
			ht.Slots = append(ht.Slots, sl)
		}
		sort.Slice(ht.Slots, func(i, j int) bool { return ht.Slots[i].ID < ht.Slots[j].ID })
		out = append(out, ht)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

func (m *memStore) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.st.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.HelperTypes = m.st.plan(id)
	return &e, nil
}

func (m *memStore) ListEvents(ctx context.Context, f ListFilter) ([]*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Event
	for _, e := range m.st.events {
		if f.From != nil && e.EndTime.Before(*f.From) {
			continue
		}
		if f.To != nil && e.StartTime.After(*f.To) {
			continue
		}
		if f.External != nil && e.IsExternal != *f.External {
			continue
		}
		if f.SkipPast && e.Status == models.StatusPast {
			continue
		}
		e := e
		if f.IncludeHelpers {
			e.HelperTypes = m.st.plan(e.ID)
		}
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ApplyStatusChanges(ctx context.Context, changes []StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	if m.applyErr != nil {
		return m.applyErr
	}
	for _, c := range changes {
		if e, ok := m.st.events[c.EventID]; ok && e.Status == c.From {
			e.Status = c.To
			m.st.events[c.EventID] = e
		}
	}
	return nil
}

func (m *memStore) SetImagePath(ctx context.Context, id int64, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.st.events[id]
	if !ok {
		return ErrNotFound
	}
	e.ImagePath = &path
	m.st.events[id] = e
	return nil
}

func (m *memStore) ListHistory(ctx context.Context, eventID int64, limit int) ([]models.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.HistoryEntry
	for _, h := range m.st.history {
		if h.EventID == eventID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// test helpers

func (m *memStore) event(id int64) models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.events[id]
}

func (m *memStore) putEvent(e models.Event) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == 0 {
		e.ID = m.st.id()
	}
	e.HelperTypes = nil
	m.st.events[e.ID] = e
	return e.ID
}

func (m *memStore) putSlot(eventID int64, title string, start, end time.Time, qty int) (typeID, slotID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	typeID = m.st.id()
	m.st.types[typeID] = models.HelperType{ID: typeID, EventID: eventID, Title: title}
	slotID = m.st.id()
	m.st.slots[slotID] = models.Slot{ID: slotID, HelperTypeID: typeID, StartTime: start, EndTime: end, QuantityNeeded: qty}
	return typeID, slotID
}

func (m *memStore) putSignup(su models.Signup) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	su.ID = m.st.id()
	m.st.signups[su.ID] = su
	return su.ID
}

func (m *memStore) signup(id int64) models.Signup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.signups[id]
}

func (m *memStore) changeTypes(eventID int64) []models.ChangeType {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ChangeType
	for _, h := range m.st.history {
		if h.EventID == eventID {
			out = append(out, h.ChangeType)
		}
	}
	return out
}

type memTx struct {
	st *memState
}

func (t *memTx) LockEvent(ctx context.Context, id int64) (*models.Event, error) {
	e, ok := t.st.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (t *memTx) InsertEvent(ctx context.Context, e *models.Event) error {
	e.ID = t.st.id()
	stored := *e
	stored.HelperTypes = nil
	t.st.events[e.ID] = stored
	return nil
}

func (t *memTx) UpdateEvent(ctx context.Context, e *models.Event) error {
	cur, ok := t.st.events[e.ID]
	if !ok {
		return ErrNotFound
	}
	stored := *e
	stored.Lock = cur.Lock
	stored.ImagePath = cur.ImagePath
	stored.HelperTypes = nil
	t.st.events[e.ID] = stored
	return nil
}

func (t *memTx) SaveLock(ctx context.Context, id int64, l models.LockState) error {
	e, ok := t.st.events[id]
	if !ok {
		return ErrNotFound
	}
	e.Lock = l
	t.st.events[id] = e
	return nil
}

func (t *memTx) DeleteEvent(ctx context.Context, id int64) error {
	if _, ok := t.st.events[id]; !ok {
		return ErrNotFound
	}
	delete(t.st.events, id)
	for tid, ht := range t.st.types {
		if ht.EventID != id {
			continue
		}
		for sid, sl := range t.st.slots {
			if sl.HelperTypeID == tid {
				delete(t.st.slots, sid)
			}
		}
		delete(t.st.types, tid)
	}
	for sid, su := range t.st.signups {
		if su.EventID == id {
			delete(t.st.signups, sid)
		}
	}
	return nil
}

func (t *memTx) HelperUsage(ctx context.Context, eventID int64) ([]HelperTypeUsage, error) {
	var out []HelperTypeUsage
	for _, ht := range t.st.plan(eventID) {
		u := HelperTypeUsage{ID: ht.ID}
		for _, sl := range ht.Slots {
			su := SlotUsage{SlotID: sl.ID, StartTime: sl.StartTime, EndTime: sl.EndTime}
			for _, s := range t.st.signups {
				if s.SlotID == nil || *s.SlotID != sl.ID {
					continue
				}
				switch s.Status {
				case models.SignupConfirmed:
					su.Confirmed++
				case models.SignupWaitlist:
					su.Waitlisted++
				}
			}
			u.Slots = append(u.Slots, su)
		}
		out = append(out, u)
	}
	return out, nil
}

func (t *memTx) ReplaceHelperTypes(ctx context.Context, eventID int64, types []models.HelperType) error {
	keptTypes := map[int64]bool{}
	keptSlots := map[int64]bool{}
	for _, ht := range types {
		keptTypes[ht.ID] = true
		for _, s := range ht.Slots {
			keptSlots[s.ID] = true
		}
	}
	for tid, ht := range t.st.types {
		if ht.EventID != eventID {
			continue
		}
		for sid, sl := range t.st.slots {
			if sl.HelperTypeID == tid && !keptSlots[sid] {
				delete(t.st.slots, sid)
			}
		}
		if !keptTypes[tid] {
			delete(t.st.types, tid)
		}
	}
	for _, ht := range types {
		typeID := ht.ID
		if typeID == 0 {
			typeID = t.st.id()
		}
		t.st.types[typeID] = models.HelperType{ID: typeID, EventID: eventID, Title: ht.Title, Description: ht.Description}
		for _, s := range ht.Slots {
			slotID := s.ID
			if slotID == 0 {
				slotID = t.st.id()
			}
			t.st.slots[slotID] = models.Slot{ID: slotID, HelperTypeID: typeID, StartTime: s.StartTime, EndTime: s.EndTime, QuantityNeeded: s.QuantityNeeded}
		}
	}
	return nil
}

func (t *memTx) PromoteWaitlisted(ctx context.Context, slotID int64, n int, at time.Time) ([]models.Signup, error) {
	var queue []models.Signup
	for _, su := range t.st.signups {
		if su.SlotID != nil && *su.SlotID == slotID && su.Status == models.SignupWaitlist {
			queue = append(queue, su)
		}
	}
	sort.Slice(queue, func(i, j int) bool {
		if !queue[i].CreatedAt.Equal(queue[j].CreatedAt) {
			return queue[i].CreatedAt.Before(queue[j].CreatedAt)
		}
		return queue[i].ID < queue[j].ID
	})
	if len(queue) > n {
		queue = queue[:n]
	}
	for i := range queue {
		queue[i].Status = models.SignupConfirmed
		queue[i].UpdatedAt = at
		t.st.signups[queue[i].ID] = queue[i]
	}
	return queue, nil
}

func (t *memTx) AppendHistory(ctx context.Context, h *models.HistoryEntry) error {
	h.ID = t.st.id()
	t.st.history = append(t.st.history, *h)
	return nil
}
