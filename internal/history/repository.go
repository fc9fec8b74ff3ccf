// Package history stores the append-only event audit log.
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/intranet-events/backend/internal/models"
	"github.com/intranet-events/backend/pkg/database"
)

// Insert appends h through q, which is either a pool or an open
// transaction. h.ID is set from the database.
func Insert(ctx context.Context, q database.Querier, h *models.HistoryEntry) error {
	const stmt = `INSERT INTO event_history (event_id, user_id, change_type, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	details := h.Details
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}
	if err := q.QueryRow(ctx, stmt, h.EventID, h.UserID, string(h.ChangeType), string(details), h.CreatedAt).Scan(&h.ID); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// Repository reads history entries.
type Repository struct {
	db database.Querier
}

// NewRepository creates a history repository.
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// List returns up to limit entries for an event, newest first. Entries of
// deleted events are still returned.
func (r *Repository) List(ctx context.Context, eventID int64, limit int) ([]models.HistoryEntry, error) {
	const q = `SELECT id, event_id, user_id, change_type, details, created_at
		FROM event_history
		WHERE event_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := r.db.Query(ctx, q, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	list := make([]models.HistoryEntry, 0)
	for rows.Next() {
		var h models.HistoryEntry
		var changeType string
		var details []byte
		if err := rows.Scan(&h.ID, &h.EventID, &h.UserID, &changeType, &details, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.ChangeType = models.ChangeType(changeType)
		h.Details = json.RawMessage(details)
		list = append(list, h)
	}
	return list, rows.Err()
}
