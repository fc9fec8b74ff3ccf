package notifications

import (
	"context"
	"fmt"

	"github.com/intranet-events/backend/internal/models"
	"github.com/intranet-events/backend/pkg/database"
)

// LogRepository stores email delivery attempts.
type LogRepository struct {
	db database.Querier
}

// NewLogRepository creates an email log repository.
func NewLogRepository(db database.Querier) *LogRepository {
	return &LogRepository{db: db}
}

// Insert records one delivery attempt and sets l.ID.
func (r *LogRepository) Insert(ctx context.Context, l *models.EmailLog) error {
	const q = `INSERT INTO email_logs (event_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := r.db.QueryRow(ctx, q, l.EventID, l.EmailType, l.RecipientEmail, l.Subject, l.Status,
		l.SentAt, l.ErrorMessage, l.CreatedAt).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// ListByEvent returns the email logs of an event, newest first.
func (r *LogRepository) ListByEvent(ctx context.Context, eventID int64) ([]models.EmailLog, error) {
	const q = `SELECT id, event_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at
		FROM email_logs
		WHERE event_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Query(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()

	list := make([]models.EmailLog, 0)
	for rows.Next() {
		var l models.EmailLog
		if err := rows.Scan(&l.ID, &l.EventID, &l.EmailType, &l.RecipientEmail, &l.Subject, &l.Status,
			&l.SentAt, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}
