package signups

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/intranet-events/backend/internal/clock"
	"github.com/intranet-events/backend/internal/models"
)

// Service runs signups and cancellations against a Store.
type Service struct {
	store       Store
	clock       clock.Clock
	loc         *time.Location
	logger      *zap.Logger
	broadcaster Broadcaster
	notifier    Notifier
}

// NewService creates a signup service.
func NewService(store Store, clk clock.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, clock: clk, loc: time.UTC, logger: logger}
}

func (s *Service) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// SetLocation sets the zone used for roster timestamps.
func (s *Service) SetLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// SignupResult is the outcome of a signup.
type SignupResult struct {
	ID     int64               `json:"id"`
	Status models.SignupStatus `json:"status"`
}

// CancelResult names the member promoted by a cancellation, if any.
type CancelResult struct {
	PromotedUserID   *uuid.UUID `json:"promoted_user_id,omitempty"`
	PromotedSignupID *int64     `json:"promoted_signup_id,omitempty"`
}

// Signup registers actor for an event, or for one of its helper slots when
// slotID is set. A full slot puts the signup on the waitlist.
func (s *Service) Signup(ctx context.Context, eventID int64, actor models.Identity, slotID *int64) (SignupResult, error) {
	now := s.clock.Now()
	su := models.Signup{
		EventID:   eventID,
		UserID:    actor.UserID,
		SlotID:    slotID,
		Status:    models.SignupConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var audience models.Audience
	err := s.store.InTx(ctx, func(tx Tx) error {
		e, err := tx.ShareEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := CheckEligibility(e, actor.Role, slotID != nil); err != nil {
			return err
		}
		audience = models.AudienceOf(e)
		if slotID != nil {
			slot, err := tx.LockSlot(ctx, eventID, *slotID)
			if err != nil {
				return err
			}
			su.Status = AdmissionStatus(slot.Confirmed, slot.QuantityNeeded)
		}
		dup, err := tx.HasActive(ctx, eventID, actor.UserID, slotID)
		if err != nil {
			return err
		}
		if dup {
			return ErrAlreadySignedUp
		}
		if err := tx.Insert(ctx, &su); err != nil {
			return err
		}
		return tx.AppendHistory(ctx, s.entry(eventID, actor.UserID, models.ChangeSignup, map[string]any{
			"signup_id": su.ID,
			"slot_id":   slotID,
			"status":    su.Status,
		}))
	})
	if err != nil {
		return SignupResult{}, err
	}
	s.logger.Info("signup",
		zap.Int64("event_id", eventID),
		zap.Int64("signup_id", su.ID),
		zap.String("user_id", actor.UserID.String()),
		zap.String("status", string(su.Status)))
	s.publish(audience, su)
	return SignupResult{ID: su.ID, Status: su.Status}, nil
}

// Cancel withdraws one of actor's active signups. Cancelling a confirmed
// slot signup promotes the oldest waitlisted signup of that slot.
func (s *Service) Cancel(ctx context.Context, signupID int64, actor models.Identity) (CancelResult, error) {
	now := s.clock.Now()
	var cancelled models.Signup
	var promoted *models.Signup
	var audience models.Audience
	err := s.store.InTx(ctx, func(tx Tx) error {
		peek, err := tx.FindActive(ctx, signupID, actor.UserID)
		if err != nil {
			return err
		}
		e, err := tx.ShareEvent(ctx, peek.EventID)
		if err != nil {
			return err
		}
		audience = models.AudienceOf(e)
		if peek.SlotID != nil {
			if _, err := tx.LockSlot(ctx, peek.EventID, *peek.SlotID); err != nil {
				return err
			}
		}
		cur, err := tx.LockSignup(ctx, signupID)
		if err != nil {
			return err
		}
		if cur.UserID != actor.UserID || !cur.Status.Active() {
			return ErrSignupNotFound
		}
		if err := tx.SetStatus(ctx, cur.ID, models.SignupCancelled, now); err != nil {
			return err
		}
		err = tx.AppendHistory(ctx, s.entry(cur.EventID, actor.UserID, models.ChangeSignupCancelled, map[string]any{
			"signup_id": cur.ID,
			"slot_id":   cur.SlotID,
			"status":    cur.Status,
		}))
		if err != nil {
			return err
		}
		cancelled = *cur
		cancelled.Status = models.SignupCancelled
		cancelled.UpdatedAt = now

		if cur.Status != models.SignupConfirmed || cur.SlotID == nil {
			return nil
		}
		queue, err := tx.Waitlist(ctx, *cur.SlotID)
		if err != nil {
			return err
		}
		next, ok := NextInLine(queue)
		if !ok {
			return nil
		}
		if err := tx.SetStatus(ctx, next.ID, models.SignupConfirmed, now); err != nil {
			return err
		}
		next.Status = models.SignupConfirmed
		next.UpdatedAt = now
		promoted = &next
		return tx.AppendHistory(ctx, s.entry(cur.EventID, actor.UserID, models.ChangeSignupPromoted, map[string]any{
			"signup_id": next.ID,
			"slot_id":   next.SlotID,
			"user_id":   next.UserID,
			"reason":    "cancellation",
		}))
	})
	if err != nil {
		return CancelResult{}, err
	}

	s.logger.Info("signup cancelled",
		zap.Int64("event_id", cancelled.EventID),
		zap.Int64("signup_id", cancelled.ID),
		zap.String("user_id", actor.UserID.String()))
	s.publish(audience, cancelled)
	if promoted == nil {
		return CancelResult{}, nil
	}
	s.publish(audience, *promoted)
	s.notifyPromoted(ctx, *promoted)
	return CancelResult{PromotedUserID: &promoted.UserID, PromotedSignupID: &promoted.ID}, nil
}

// ListByEvent returns every signup of an event for organizers.
func (s *Service) ListByEvent(ctx context.Context, eventID int64) ([]models.SignupDetail, error) {
	return s.store.ListByEvent(ctx, eventID)
}

// RosterRow is one line of the helper roster export.
type RosterRow struct {
	Name       string `csv:"name"`
	Email      string `csv:"email"`
	HelperType string `csv:"helper_type"`
	SlotStart  string `csv:"slot_start"`
	SlotEnd    string `csv:"slot_end"`
	Status     string `csv:"status"`
	SignedUpAt string `csv:"signed_up_at"`
}

// ExportRoster writes the active signups of an event as CSV.
func (s *Service) ExportRoster(ctx context.Context, eventID int64, w io.Writer) error {
	list, err := s.store.ListByEvent(ctx, eventID)
	if err != nil {
		return err
	}
	rows := make([]*RosterRow, 0, len(list))
	for _, d := range list {
		if !d.Status.Active() {
			continue
		}
		rows = append(rows, &RosterRow{
			Name:       d.FullName,
			Email:      d.Email,
			HelperType: d.HelperTypeTitle,
			SlotStart:  s.formatTime(d.SlotStart),
			SlotEnd:    s.formatTime(d.SlotEnd),
			Status:     string(d.Status),
			SignedUpAt: s.formatTime(&d.CreatedAt),
		})
	}
	return gocsv.Marshal(rows, w)
}

func (s *Service) formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(s.loc).Format("2006-01-02 15:04")
}

func (s *Service) publish(audience models.Audience, su models.Signup) {
	if s.broadcaster == nil {
		return
	}
	audience.Helpers = su.SlotID != nil
	s.broadcaster.PublishEventChange(su.EventID, audience, ChangeKindSignup, map[string]any{
		"signup_id": su.ID,
		"slot_id":   su.SlotID,
		"user_id":   su.UserID,
		"status":    su.Status,
	})
}

func (s *Service) notifyPromoted(ctx context.Context, su models.Signup) {
	if s.broadcaster != nil {
		s.broadcaster.PublishUserNotice(su.UserID, NoticeKindPromoted, map[string]any{
			"event_id":  su.EventID,
			"signup_id": su.ID,
			"slot_id":   su.SlotID,
		})
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyPromoted(ctx, su); err != nil {
			s.logger.Warn("promotion notification failed", zap.Int64("signup_id", su.ID), zap.Error(err))
		}
	}
}

func (s *Service) entry(eventID int64, user uuid.UUID, ct models.ChangeType, details map[string]any) *models.HistoryEntry {
	raw := json.RawMessage("{}")
	if b, err := json.Marshal(details); err == nil {
		raw = b
	}
	return &models.HistoryEntry{
		EventID:    eventID,
		UserID:     user,
		ChangeType: ct,
		Details:    raw,
		CreatedAt:  s.clock.Now(),
	}
}
