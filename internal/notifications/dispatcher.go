// Package notifications fans out member notifications: email jobs on the
// Redis queue, an optional RabbitMQ event feed, and the worker that
// delivers queued mail.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/intranet-events/backend/internal/events"
	"github.com/intranet-events/backend/internal/models"
	"github.com/intranet-events/backend/pkg/queue"
)

// Directory looks up members.
type Directory interface {
	ListNewEventSubscribers(ctx context.Context) ([]models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// EventSource loads an event by id.
type EventSource interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
}

// JobQueue accepts email jobs.
type JobQueue interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// EventPublisher announces new events to other systems.
type EventPublisher interface {
	PublishEventCreated(ctx context.Context, e *models.Event) error
}

// Dispatcher turns domain events into queued emails.
type Dispatcher struct {
	users     Directory
	events    EventSource
	jobs      JobQueue
	publisher EventPublisher
	baseURL   string
	loc       *time.Location
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher. baseURL is the web frontend used in
// email links.
func NewDispatcher(users Directory, evs EventSource, jobs JobQueue, baseURL string, loc *time.Location, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Dispatcher{users: users, events: evs, jobs: jobs, baseURL: baseURL, loc: loc, logger: logger}
}

// SetPublisher enables the RabbitMQ feed.
func (d *Dispatcher) SetPublisher(p EventPublisher) { d.publisher = p }

// NotifyNewEvent queues a mail for every opted-in member who may see e.
// Delivery problems are collected and returned after every recipient was tried.
func (d *Dispatcher) NotifyNewEvent(ctx context.Context, e *models.Event) error {
	var errs []error
	if d.publisher != nil {
		if err := d.publisher.PublishEventCreated(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("publish event.created: %w", err))
		}
	}

	subs, err := d.users.ListNewEventSubscribers(ctx)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("list subscribers: %w", err))...)
	}
	queued := 0
	for _, u := range subs {
		if u.ID == e.CreatedBy || !events.Visible(e, u.Role) {
			continue
		}
		subject, body := newEventMail(e, &u, d.link(e.ID), d.loc)
		err := d.jobs.EnqueueEmail(ctx, queue.EmailPayload{
			EmailType:      models.EmailTypeNewEvent,
			EventID:        e.ID,
			UserID:         u.ID,
			RecipientEmail: u.Email,
			RecipientName:  u.FullName,
			Subject:        subject,
			Body:           body,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue for %s: %w", u.Email, err))
			continue
		}
		queued++
	}
	d.logger.Info("new event notifications queued", zap.Int64("event_id", e.ID), zap.Int("recipients", queued))
	return errors.Join(errs...)
}

// NotifyPromoted queues a mail telling the member their waitlisted signup
// is now confirmed.
func (d *Dispatcher) NotifyPromoted(ctx context.Context, su models.Signup) error {
	u, err := d.users.GetByID(ctx, su.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	e, err := d.events.GetEvent(ctx, su.EventID)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	subject, body := promotedMail(e, u, su, d.link(e.ID), d.loc)
	return d.jobs.EnqueueEmail(ctx, queue.EmailPayload{
		EmailType:      models.EmailTypeSignupPromoted,
		EventID:        e.ID,
		UserID:         u.ID,
		RecipientEmail: u.Email,
		RecipientName:  u.FullName,
		Subject:        subject,
		Body:           body,
	})
}

func (d *Dispatcher) link(eventID int64) string {
	if d.baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/events/%d", d.baseURL, eventID)
}
