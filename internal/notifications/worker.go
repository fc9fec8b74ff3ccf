package notifications

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/intranet-events/backend/internal/clock"
	"github.com/intranet-events/backend/internal/models"
	"github.com/intranet-events/backend/pkg/queue"
)

// JobSource is the consuming side of the job queue.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// LogStore records delivery attempts.
type LogStore interface {
	Insert(ctx context.Context, l *models.EmailLog) error
}

// Worker delivers queued email jobs.
type Worker struct {
	jobs    JobSource
	mailer  Mailer
	logs    LogStore
	clock   clock.Clock
	backoff time.Duration
	logger  *zap.Logger
}

// NewWorker creates an email worker.
func NewWorker(jobs JobSource, mailer Mailer, logs LogStore, clk clock.Clock, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{jobs: jobs, mailer: mailer, logs: logs, clock: clk, backoff: queue.RetryBackoff, logger: logger}
}

// Process delivers one job and records the attempt. A returned error means
// the job should be retried.
func (w *Worker) Process(ctx context.Context, job *queue.Job) error {
	p, err := job.Email()
	if err != nil {
		// undecodable jobs never succeed on retry
		w.logger.Error("dropping email job", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}

	sendErr := w.mailer.Send(ctx, Message{To: p.RecipientEmail, ToName: p.RecipientName, Subject: p.Subject, Body: p.Body})

	now := w.clock.Now()
	entry := &models.EmailLog{
		EmailType:      p.EmailType,
		RecipientEmail: p.RecipientEmail,
		Subject:        p.Subject,
		Status:         models.EmailLogStatusSent,
		CreatedAt:      now,
	}
	if p.EventID != 0 {
		id := p.EventID
		entry.EventID = &id
	}
	if sendErr != nil {
		entry.Status = models.EmailLogStatusFailed
		entry.ErrorMessage = sendErr.Error()
	} else {
		entry.SentAt = &now
	}
	if err := w.logs.Insert(ctx, entry); err != nil {
		w.logger.Warn("record email log", zap.String("job_id", job.ID), zap.Error(err))
	}

	if sendErr != nil {
		return sendErr
	}
	w.logger.Info("email sent",
		zap.String("job_id", job.ID),
		zap.String("email_type", p.EmailType),
		zap.Int64("event_id", p.EventID))
	return nil
}

// Run consumes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := w.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("dequeue error", zap.Error(err))
			w.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		w.logger.Debug("processing job", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		if err := w.Process(ctx, job); err != nil {
			w.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := w.jobs.Retry(ctx, job); reErr != nil {
				w.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			w.sleep(ctx)
		}
	}
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
