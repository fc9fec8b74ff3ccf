package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/intranet-events/backend/internal/clock"
	"github.com/intranet-events/backend/internal/models"
)

const (
	// DefaultHistoryLimit is used when the caller passes no limit.
	DefaultHistoryLimit = 50
	// MaxHistoryLimit caps a single history page.
	MaxHistoryLimit = 500
)

// Service is the event aggregate: CRUD, lazy status, editing locks and history.
type Service struct {
	store        Store
	arbiter      Arbiter
	clock        clock.Clock
	logger       *zap.Logger
	historyLimit int

	images      ImageStore
	notifier    Notifier
	broadcaster Broadcaster
}

// NewService creates the event service.
func NewService(store Store, arbiter Arbiter, clk clock.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		arbiter:      arbiter,
		clock:        clk,
		logger:       logger,
		historyLimit: DefaultHistoryLimit,
	}
}

// SetImageStore enables image uploads on create and update.
func (s *Service) SetImageStore(images ImageStore) { s.images = images }

// SetNotifier enables new-event notifications.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// SetBroadcaster enables realtime change notices.
func (s *Service) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

// SetHistoryLimit changes the default history page size.
func (s *Service) SetHistoryLimit(n int) {
	if n > 0 && n <= MaxHistoryLimit {
		s.historyLimit = n
	}
}

// LockResult is the outcome of AcquireLock or ReleaseLock. A denial is a
// result, not an error.
type LockResult struct {
	Granted    bool       `json:"granted"`
	Holder     *uuid.UUID `json:"holder,omitempty"`
	AcquiredAt *time.Time `json:"acquired_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// LockStatus is the observed lock of an event.
type LockStatus struct {
	Locked       bool       `json:"locked"`
	HeldByCaller bool       `json:"held_by_caller"`
	Holder       *uuid.UUID `json:"holder,omitempty"`
	AcquiredAt   *time.Time `json:"acquired_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Get returns one event as seen by who. Events the caller may not see are
// reported as not found.
func (s *Service) Get(ctx context.Context, id int64, who models.Identity) (*models.Event, error) {
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refreshStatuses(ctx, []*models.Event{e})
	if !Visible(e, who.Role) {
		return nil, ErrNotFound
	}
	out := Project(*e, who.Role, true)
	return &out, nil
}

// List returns the events matching f that who may see.
func (s *Service) List(ctx context.Context, f ListFilter, who models.Identity) ([]models.Event, error) {
	list, err := s.store.ListEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	s.refreshStatuses(ctx, list)

	out := make([]models.Event, 0, len(list))
	for _, e := range list {
		if !Visible(e, who.Role) || !statusIn(f.Statuses, e.Status) {
			continue
		}
		out = append(out, Project(*e, who.Role, f.IncludeHelpers))
	}
	return out, nil
}

func statusIn(set []models.EventStatus, st models.EventStatus) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == st {
			return true
		}
	}
	return false
}

// refreshStatuses replaces each cached status with the live one and writes
// back only the stale rows. A failed write is logged; callers still get
// the live statuses.
func (s *Service) refreshStatuses(ctx context.Context, list []*models.Event) {
	now := s.clock.Now()
	changes := PlanStatusChanges(now, list)
	if len(changes) == 0 {
		return
	}
	for _, e := range list {
		e.Status = ResolveStatus(now, e)
	}
	if err := s.store.ApplyStatusChanges(ctx, changes); err != nil {
		s.logger.Warn("status reconciliation failed", zap.Int("events", len(changes)), zap.Error(err))
	}
}

// TransitionStatuses reconciles every non-past event in one pass and
// returns the number of rows changed.
func (s *Service) TransitionStatuses(ctx context.Context) (int, error) {
	list, err := s.store.ListEvents(ctx, ListFilter{SkipPast: true})
	if err != nil {
		return 0, err
	}
	changes := PlanStatusChanges(s.clock.Now(), list)
	if len(changes) == 0 {
		return 0, nil
	}
	if err := s.store.ApplyStatusChanges(ctx, changes); err != nil {
		return 0, err
	}
	return len(changes), nil
}

// Create validates and stores a new event. Image upload and notification
// happen after commit and never fail the call.
func (s *Service) Create(ctx context.Context, in EventInput, actor models.Identity, img *Upload) (int64, error) {
	e, _ := merge(models.Event{}, in)
	if err := validateEvent(&e); err != nil {
		return 0, err
	}
	if err := checkHelperFlag(&e, in.HelperTypes); err != nil {
		return 0, err
	}
	var types []HelperTypeInput
	if e.NeedsHelpers && in.HelperTypes != nil {
		types = *in.HelperTypes
		for _, ht := range types {
			if ht.ID != 0 {
				return 0, invalid("helper_types", "new events cannot reference existing helper types")
			}
			for _, sl := range ht.Slots {
				if sl.ID != 0 {
					return 0, invalid("slots", "new events cannot reference existing slots")
				}
			}
		}
		if err := validateHelperTypes(&e, types); err != nil {
			return 0, err
		}
	}

	now := s.clock.Now()
	e.Status = ResolveStatus(now, &e)
	e.CreatedBy = actor.UserID
	e.CreatedAt = now
	e.UpdatedAt = now

	err := s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertEvent(ctx, &e); err != nil {
			return err
		}
		if len(types) > 0 {
			if err := tx.ReplaceHelperTypes(ctx, e.ID, helperTypesToModels(e.ID, types)); err != nil {
				return err
			}
		}
		return tx.AppendHistory(ctx, s.entry(e.ID, actor.UserID, models.ChangeCreated, map[string]any{
			"title":  e.Title,
			"status": e.Status,
		}))
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("event created", zap.Int64("event_id", e.ID), zap.String("user_id", actor.UserID.String()))

	s.attachImage(ctx, e.ID, img)
	if s.notifier != nil {
		if err := s.notifier.NotifyNewEvent(ctx, &e); err != nil {
			s.logger.Warn("new event notification failed", zap.Int64("event_id", e.ID), zap.Error(err))
		}
	}
	return e.ID, nil
}

// Update applies a partial edit. It is rejected with a *LockedError when
// another user holds a live editing lock.
func (s *Service) Update(ctx context.Context, id int64, in EventInput, actor models.Identity, img *Upload) error {
	now := s.clock.Now()
	var (
		changed  []string
		promoted []models.Signup
		audience models.Audience
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		promoted = nil
		cur, err := tx.LockEvent(ctx, id)
		if err != nil {
			return err
		}
		chk, blocked := s.arbiter.HeldByOther(cur.Lock, actor.UserID, now)
		if blocked {
			return &LockedError{Holder: *chk.Holder, AcquiredAt: *chk.AcquiredAt}
		}
		if chk.Expired {
			if err := s.expireLock(ctx, tx, cur, actor.UserID, now); err != nil {
				return err
			}
		}

		var next models.Event
		next, changed = merge(*cur, in)
		if err := validateEvent(&next); err != nil {
			return err
		}
		if err := checkHelperFlag(&next, in.HelperTypes); err != nil {
			return err
		}
		next.Status = ResolveStatus(now, &next)
		next.UpdatedAt = now

		intervalMoved := !next.StartTime.Equal(cur.StartTime) || !next.EndTime.Equal(cur.EndTime)
		replacing := in.HelperTypes != nil && next.NeedsHelpers
		if replacing || intervalMoved {
			usage, err := tx.HelperUsage(ctx, id)
			if err != nil {
				return err
			}
			if replacing {
				promoted, err = s.replaceHelpers(ctx, tx, &next, usage, *in.HelperTypes, actor.UserID, now)
				if err != nil {
					return err
				}
			} else if err := checkContainment(&next, usage); err != nil {
				return err
			}
		}

		if err := tx.UpdateEvent(ctx, &next); err != nil {
			return err
		}
		audience = models.AudienceOf(&next)
		return tx.AppendHistory(ctx, s.entry(id, actor.UserID, models.ChangeUpdated, map[string]any{
			"fields": changed,
		}))
	})
	if err != nil {
		return err
	}

	s.attachImage(ctx, id, img)
	s.broadcast(id, audience, ChangeKindEventUpdated, map[string]any{"fields": changed})
	if pn, ok := s.notifier.(PromotionNotifier); ok {
		for _, su := range promoted {
			if err := pn.NotifyPromoted(ctx, su); err != nil {
				s.logger.Warn("promotion notification failed", zap.Int64("signup_id", su.ID), zap.Error(err))
			}
		}
	}
	return nil
}

func (s *Service) replaceHelpers(ctx context.Context, tx Tx, e *models.Event, usage []HelperTypeUsage, types []HelperTypeInput, actor uuid.UUID, now time.Time) ([]models.Signup, error) {
	if err := validateHelperTypes(e, types); err != nil {
		return nil, err
	}
	promotions, err := planReplacement(usage, types)
	if err != nil {
		return nil, err
	}
	if err := tx.ReplaceHelperTypes(ctx, e.ID, helperTypesToModels(e.ID, types)); err != nil {
		return nil, err
	}
	var all []models.Signup
	for _, p := range promotions {
		promoted, err := tx.PromoteWaitlisted(ctx, p.SlotID, p.Count, now)
		if err != nil {
			return nil, err
		}
		all = append(all, promoted...)
		for _, su := range promoted {
			err := tx.AppendHistory(ctx, s.entry(e.ID, actor, models.ChangeSignupPromoted, map[string]any{
				"signup_id": su.ID,
				"slot_id":   p.SlotID,
				"user_id":   su.UserID,
				"reason":    "capacity_increased",
			}))
			if err != nil {
				return nil, err
			}
		}
	}
	return all, nil
}

// Delete removes an event with its helper plan and signups. The history
// entry is written first and survives the row.
func (s *Service) Delete(ctx context.Context, id int64, actor models.Identity) error {
	var audience models.Audience
	err := s.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.LockEvent(ctx, id)
		if err != nil {
			return err
		}
		audience = models.AudienceOf(cur)
		if err := tx.AppendHistory(ctx, s.entry(id, actor.UserID, models.ChangeDeleted, map[string]any{
			"title": cur.Title,
		})); err != nil {
			return err
		}
		return tx.DeleteEvent(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("event deleted", zap.Int64("event_id", id), zap.String("user_id", actor.UserID.String()))
	s.broadcast(id, audience, ChangeKindEventDeleted, nil)
	return nil
}

// History returns the newest entries first. limit <= 0 selects the
// configured default; larger values are capped.
func (s *Service) History(ctx context.Context, id int64, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return s.store.ListHistory(ctx, id, limit)
}

// CheckLock reports the lock state, clearing an expired lock on the way.
func (s *Service) CheckLock(ctx context.Context, id int64, actor uuid.UUID) (LockStatus, error) {
	now := s.clock.Now()
	var st LockStatus
	err := s.store.InTx(ctx, func(tx Tx) error {
		e, err := tx.LockEvent(ctx, id)
		if err != nil {
			return err
		}
		chk := s.arbiter.Check(e.Lock, now)
		if chk.Expired {
			return s.expireLock(ctx, tx, e, actor, now)
		}
		if chk.Locked {
			exp := s.arbiter.ExpiresAt(*chk.AcquiredAt)
			st = LockStatus{
				Locked:       true,
				HeldByCaller: *chk.Holder == actor,
				Holder:       chk.Holder,
				AcquiredAt:   chk.AcquiredAt,
				ExpiresAt:    &exp,
			}
		}
		return nil
	})
	return st, err
}

// AcquireLock takes or refreshes the editing lock for actor.
func (s *Service) AcquireLock(ctx context.Context, id int64, actor uuid.UUID) (LockResult, error) {
	now := s.clock.Now()
	var res LockResult
	var audience models.Audience
	err := s.store.InTx(ctx, func(tx Tx) error {
		e, err := tx.LockEvent(ctx, id)
		if err != nil {
			return err
		}
		audience = models.AudienceOf(e)
		if s.arbiter.Check(e.Lock, now).Expired {
			if err := s.expireLock(ctx, tx, e, actor, now); err != nil {
				return err
			}
		}
		refresh := e.Lock.Holder != nil && *e.Lock.Holder == actor
		next, dec := s.arbiter.Acquire(e.Lock, actor, now)
		res = LockResult{Granted: dec.Granted, Holder: dec.Holder, AcquiredAt: dec.AcquiredAt}
		if dec.AcquiredAt != nil {
			exp := s.arbiter.ExpiresAt(*dec.AcquiredAt)
			res.ExpiresAt = &exp
		}
		if !dec.Granted {
			return nil
		}
		if err := tx.SaveLock(ctx, id, next); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, s.entry(id, actor, models.ChangeLockAcquired, map[string]any{
			"refresh": refresh,
		}))
	})
	if err != nil {
		return LockResult{}, err
	}
	if res.Granted {
		s.broadcast(id, audience, ChangeKindLock, map[string]any{"locked": true, "holder": actor})
	}
	return res, nil
}

// ReleaseLock gives up actor's editing lock. Releasing an unlocked event
// succeeds without a history entry.
func (s *Service) ReleaseLock(ctx context.Context, id int64, actor uuid.UUID) (LockResult, error) {
	now := s.clock.Now()
	var res LockResult
	var released bool
	var audience models.Audience
	err := s.store.InTx(ctx, func(tx Tx) error {
		e, err := tx.LockEvent(ctx, id)
		if err != nil {
			return err
		}
		audience = models.AudienceOf(e)
		if s.arbiter.Check(e.Lock, now).Expired {
			if err := s.expireLock(ctx, tx, e, actor, now); err != nil {
				return err
			}
		}
		held := e.Lock.Held()
		next, dec := s.arbiter.Release(e.Lock, actor, now)
		res = LockResult{Granted: dec.Granted, Holder: dec.Holder, AcquiredAt: dec.AcquiredAt}
		if !dec.Granted || !held {
			return nil
		}
		if err := tx.SaveLock(ctx, id, next); err != nil {
			return err
		}
		released = true
		return tx.AppendHistory(ctx, s.entry(id, actor, models.ChangeLockReleased, nil))
	})
	if err != nil {
		return LockResult{}, err
	}
	if released {
		s.broadcast(id, audience, ChangeKindLock, map[string]any{"locked": false})
	}
	return res, nil
}

// expireLock persists the cleared state of a stale lock and records who
// observed it.
func (s *Service) expireLock(ctx context.Context, tx Tx, e *models.Event, observer uuid.UUID, now time.Time) error {
	prev := e.Lock
	if err := tx.SaveLock(ctx, e.ID, models.LockState{}); err != nil {
		return err
	}
	e.Lock = models.LockState{}
	return tx.AppendHistory(ctx, s.entry(e.ID, observer, models.ChangeLockExpired, map[string]any{
		"previous_holder": prev.Holder,
		"locked_at":       prev.AcquiredAt,
	}))
}

func (s *Service) attachImage(ctx context.Context, id int64, img *Upload) {
	if img == nil || s.images == nil {
		return
	}
	path, err := s.images.UploadEventImage(ctx, id, img)
	if err != nil {
		s.logger.Warn("event image upload failed", zap.Int64("event_id", id), zap.Error(err))
		return
	}
	if err := s.store.SetImagePath(ctx, id, path); err != nil {
		s.logger.Warn("store image path", zap.Int64("event_id", id), zap.Error(err))
	}
}

func (s *Service) broadcast(id int64, audience models.Audience, kind string, payload any) {
	if s.broadcaster != nil {
		s.broadcaster.PublishEventChange(id, audience, kind, payload)
	}
}

func (s *Service) entry(eventID int64, user uuid.UUID, ct models.ChangeType, details map[string]any) *models.HistoryEntry {
	raw := json.RawMessage("{}")
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			raw = b
		}
	}
	return &models.HistoryEntry{
		EventID:    eventID,
		UserID:     user,
		ChangeType: ct,
		Details:    raw,
		CreatedAt:  s.clock.Now(),
	}
}
