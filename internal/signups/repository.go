package signups

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/intranet-events/backend/internal/history"
	"github.com/intranet-events/backend/internal/models"
	"github.com/intranet-events/backend/pkg/database"
)

const uniqueViolation = "23505"

const signupColumns = `id, event_id, user_id, slot_id, status, created_at, updated_at`

// Repository is the PostgreSQL Store.
type Repository struct {
	db database.DB
}

// NewRepository creates a signup repository.
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

// InTx runs fn inside one database transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&txRepository{tx: tx})
	})
}

// ListByEvent returns the signups of an event joined with member names.
func (r *Repository) ListByEvent(ctx context.Context, eventID int64) ([]models.SignupDetail, error) {
	const q = `SELECT su.id, su.event_id, su.user_id, su.slot_id, su.status, su.created_at, su.updated_at,
			COALESCE(u.full_name, ''), COALESCE(u.email, ''),
			COALESCE(ht.title, ''), s.start_time, s.end_time
		FROM signups su
		LEFT JOIN users u ON u.id = su.user_id
		LEFT JOIN helper_slots s ON s.id = su.slot_id
		LEFT JOIN helper_types ht ON ht.id = s.helper_type_id
		WHERE su.event_id = $1
		ORDER BY su.slot_id NULLS LAST, su.created_at, su.id`
	rows, err := r.db.Query(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("list signups: %w", err)
	}
	defer rows.Close()

	list := make([]models.SignupDetail, 0)
	for rows.Next() {
		var d models.SignupDetail
		var status string
		if err := rows.Scan(&d.ID, &d.EventID, &d.UserID, &d.SlotID, &status, &d.CreatedAt, &d.UpdatedAt,
			&d.FullName, &d.Email, &d.HelperTypeTitle, &d.SlotStart, &d.SlotEnd); err != nil {
			return nil, err
		}
		d.Status = models.SignupStatus(status)
		list = append(list, d)
	}
	return list, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) ShareEvent(ctx context.Context, eventID int64) (*models.Event, error) {
	const q = `SELECT id, needs_helpers, allowed_roles FROM events WHERE id = $1 FOR SHARE`
	var e models.Event
	var roles []string
	err := t.tx.QueryRow(ctx, q, eventID).Scan(&e.ID, &e.NeedsHelpers, &roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	e.AllowedRoles = make([]models.Role, 0, len(roles))
	for _, r := range roles {
		e.AllowedRoles = append(e.AllowedRoles, models.Role(r))
	}
	return &e, nil
}

func (t *txRepository) LockSlot(ctx context.Context, eventID, slotID int64) (SlotState, error) {
	const lock = `SELECT s.id, ht.event_id, s.quantity_needed
		FROM helper_slots s
		JOIN helper_types ht ON ht.id = s.helper_type_id
		WHERE s.id = $1 AND ht.event_id = $2
		FOR UPDATE OF s`
	var st SlotState
	err := t.tx.QueryRow(ctx, lock, slotID, eventID).Scan(&st.ID, &st.EventID, &st.QuantityNeeded)
	if errors.Is(err, pgx.ErrNoRows) {
		return SlotState{}, ErrSlotNotFound
	}
	if err != nil {
		return SlotState{}, fmt.Errorf("lock slot: %w", err)
	}
	const count = `SELECT COUNT(*) FROM signups WHERE slot_id = $1 AND status = 'confirmed'`
	if err := t.tx.QueryRow(ctx, count, slotID).Scan(&st.Confirmed); err != nil {
		return SlotState{}, fmt.Errorf("count confirmed: %w", err)
	}
	return st, nil
}

func (t *txRepository) HasActive(ctx context.Context, eventID int64, userID uuid.UUID, slotID *int64) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM signups
		WHERE event_id = $1 AND user_id = $2 AND slot_id IS NOT DISTINCT FROM $3::bigint
			AND status <> 'cancelled')`
	var ok bool
	if err := t.tx.QueryRow(ctx, q, eventID, userID, slotID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check signup: %w", err)
	}
	return ok, nil
}

func (t *txRepository) Insert(ctx context.Context, su *models.Signup) error {
	const q = `INSERT INTO signups (event_id, user_id, slot_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := t.tx.QueryRow(ctx, q, su.EventID, su.UserID, su.SlotID, string(su.Status), su.CreatedAt, su.UpdatedAt).Scan(&su.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadySignedUp
	}
	if err != nil {
		return fmt.Errorf("insert signup: %w", err)
	}
	return nil
}

func (t *txRepository) FindActive(ctx context.Context, signupID int64, userID uuid.UUID) (*models.Signup, error) {
	return scanSignup(t.tx.QueryRow(ctx, `SELECT `+signupColumns+` FROM signups
		WHERE id = $1 AND user_id = $2 AND status <> 'cancelled'`, signupID, userID))
}

func (t *txRepository) LockSignup(ctx context.Context, signupID int64) (*models.Signup, error) {
	return scanSignup(t.tx.QueryRow(ctx, `SELECT `+signupColumns+` FROM signups WHERE id = $1 FOR UPDATE`, signupID))
}

func (t *txRepository) SetStatus(ctx context.Context, signupID int64, status models.SignupStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE signups SET status = $2, updated_at = $3 WHERE id = $1`, signupID, string(status), at)
	if err != nil {
		return fmt.Errorf("set signup status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSignupNotFound
	}
	return nil
}

func (t *txRepository) Waitlist(ctx context.Context, slotID int64) ([]models.Signup, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+signupColumns+` FROM signups
		WHERE slot_id = $1 AND status = 'waitlist'
		ORDER BY created_at, id
		FOR UPDATE`, slotID)
	if err != nil {
		return nil, fmt.Errorf("load waitlist: %w", err)
	}
	defer rows.Close()

	var out []models.Signup
	for rows.Next() {
		su, err := scanSignup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *su)
	}
	return out, rows.Err()
}

func (t *txRepository) AppendHistory(ctx context.Context, h *models.HistoryEntry) error {
	return history.Insert(ctx, t.tx, h)
}

func scanSignup(row pgx.Row) (*models.Signup, error) {
	var su models.Signup
	var status string
	err := row.Scan(&su.ID, &su.EventID, &su.UserID, &su.SlotID, &status, &su.CreatedAt, &su.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSignupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan signup: %w", err)
	}
	su.Status = models.SignupStatus(status)
	return &su, nil
}
