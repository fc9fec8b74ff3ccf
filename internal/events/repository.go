package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/intranet-events/backend/internal/history"
	"github.com/intranet-events/backend/internal/models"
	"github.com/intranet-events/backend/pkg/database"
)

const eventColumns = `id, title, description, location, start_time, end_time,
	registration_start, registration_end, status, needs_helpers, allowed_roles,
	is_external, image_path, locked_by, locked_at, created_by, created_at, updated_at`

// Repository is the PostgreSQL Store.
type Repository struct {
	db      database.DB
	history *history.Repository
}

// NewRepository creates an event repository.
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db, history: history.NewRepository(db)}
}

// InTx runs fn inside one database transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&txRepository{tx: tx})
	})
}

// GetEvent returns an event with its helper plan.
func (r *Repository) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	plans, err := loadHelperTypes(ctx, r.db, []int64{id})
	if err != nil {
		return nil, err
	}
	e.HelperTypes = plans[id]
	return e, nil
}

// ListEvents returns events ordered by start time. Status filtering is left
// to the caller because the stored status may be stale.
func (r *Repository) ListEvents(ctx context.Context, f ListFilter) ([]*models.Event, error) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.From != nil {
		add("end_time >= $%d", *f.From)
	}
	if f.To != nil {
		add("start_time <= $%d", *f.To)
	}
	if f.External != nil {
		add("is_external = $%d", *f.External)
	}
	if f.SkipPast {
		conds = append(conds, "status <> 'past'")
	}
	q := `SELECT ` + eventColumns + ` FROM events`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY start_time, id"

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	list := make([]*models.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if f.IncludeHelpers && len(list) > 0 {
		ids := make([]int64, len(list))
		for i, e := range list {
			ids[i] = e.ID
		}
		plans, err := loadHelperTypes(ctx, r.db, ids)
		if err != nil {
			return nil, err
		}
		for _, e := range list {
			e.HelperTypes = plans[e.ID]
		}
	}
	return list, nil
}

// ApplyStatusChanges writes refreshed statuses in one statement. A row
// whose stored status moved in the meantime is left alone.
func (r *Repository) ApplyStatusChanges(ctx context.Context, changes []StatusChange) error {
	if len(changes) == 0 {
		return nil
	}
	ids := make([]int64, len(changes))
	to := make([]string, len(changes))
	from := make([]string, len(changes))
	for i, c := range changes {
		ids[i], to[i], from[i] = c.EventID, string(c.To), string(c.From)
	}
	const q = `UPDATE events AS e SET status = c.status
		FROM unnest($1::bigint[], $2::text[], $3::text[]) AS c(id, status, prev)
		WHERE e.id = c.id AND e.status = c.prev`
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, q, ids, to, from); err != nil {
			return fmt.Errorf("apply status changes: %w", err)
		}
		return nil
	})
}

// SetImagePath records the stored image of an event.
func (r *Repository) SetImagePath(ctx context.Context, id int64, path string) error {
	tag, err := r.db.Exec(ctx, `UPDATE events SET image_path = $2 WHERE id = $1`, id, path)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListHistory returns the newest history entries of an event.
func (r *Repository) ListHistory(ctx context.Context, eventID int64, limit int) ([]models.HistoryEntry, error) {
	return r.history.List(ctx, eventID, limit)
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) LockEvent(ctx context.Context, id int64) (*models.Event, error) {
	return scanEvent(t.tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) InsertEvent(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (title, description, location, start_time, end_time,
			registration_start, registration_end, status, needs_helpers, allowed_roles,
			is_external, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`
	err := t.tx.QueryRow(ctx, q, e.Title, e.Description, e.Location, e.StartTime, e.EndTime,
		e.RegistrationStart, e.RegistrationEnd, string(e.Status), e.NeedsHelpers, roleNames(e.AllowedRoles),
		e.IsExternal, e.CreatedBy, e.CreatedAt, e.UpdatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (t *txRepository) UpdateEvent(ctx context.Context, e *models.Event) error {
	const q = `UPDATE events SET title = $2, description = $3, location = $4, start_time = $5,
			end_time = $6, registration_start = $7, registration_end = $8, status = $9,
			needs_helpers = $10, allowed_roles = $11, is_external = $12, updated_at = $13
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, q, e.ID, e.Title, e.Description, e.Location, e.StartTime,
		e.EndTime, e.RegistrationStart, e.RegistrationEnd, string(e.Status),
		e.NeedsHelpers, roleNames(e.AllowedRoles), e.IsExternal, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) SaveLock(ctx context.Context, id int64, l models.LockState) error {
	_, err := t.tx.Exec(ctx, `UPDATE events SET locked_by = $2, locked_at = $3 WHERE id = $1`, id, l.Holder, l.AcquiredAt)
	if err != nil {
		return fmt.Errorf("save lock: %w", err)
	}
	return nil
}

func (t *txRepository) DeleteEvent(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) HelperUsage(ctx context.Context, eventID int64) ([]HelperTypeUsage, error) {
	const lockSlots = `SELECT s.id FROM helper_slots s
		JOIN helper_types ht ON ht.id = s.helper_type_id
		WHERE ht.event_id = $1
		FOR UPDATE OF s`
	if _, err := t.tx.Exec(ctx, lockSlots, eventID); err != nil {
		return nil, fmt.Errorf("lock slots: %w", err)
	}

	const q = `SELECT ht.id, s.id, s.start_time, s.end_time,
			COUNT(su.id) FILTER (WHERE su.status = 'confirmed'),
			COUNT(su.id) FILTER (WHERE su.status = 'waitlist')
		FROM helper_types ht
		LEFT JOIN helper_slots s ON s.helper_type_id = ht.id
		LEFT JOIN signups su ON su.slot_id = s.id
		WHERE ht.event_id = $1
		GROUP BY ht.id, s.id
		ORDER BY ht.id, s.id`
	rows, err := t.tx.Query(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("helper usage: %w", err)
	}
	defer rows.Close()

	var out []HelperTypeUsage
	for rows.Next() {
		var typeID int64
		var slotID *int64
		var start, end *time.Time
		var confirmed, waitlisted int
		if err := rows.Scan(&typeID, &slotID, &start, &end, &confirmed, &waitlisted); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].ID != typeID {
			out = append(out, HelperTypeUsage{ID: typeID})
		}
		if slotID != nil {
			cur := &out[len(out)-1]
			cur.Slots = append(cur.Slots, SlotUsage{
				SlotID:     *slotID,
				StartTime:  *start,
				EndTime:    *end,
				Confirmed:  confirmed,
				Waitlisted: waitlisted,
			})
		}
	}
	return out, rows.Err()
}

func (t *txRepository) ReplaceHelperTypes(ctx context.Context, eventID int64, types []models.HelperType) error {
	keptTypes := make([]int64, 0, len(types))
	keptSlots := make([]int64, 0)
	for _, ht := range types {
		if ht.ID != 0 {
			keptTypes = append(keptTypes, ht.ID)
		}
		for _, s := range ht.Slots {
			if s.ID != 0 {
				keptSlots = append(keptSlots, s.ID)
			}
		}
	}

	const dropSlots = `DELETE FROM helper_slots s USING helper_types ht
		WHERE s.helper_type_id = ht.id AND ht.event_id = $1 AND NOT (s.id = ANY($2))`
	if _, err := t.tx.Exec(ctx, dropSlots, eventID, keptSlots); err != nil {
		return fmt.Errorf("drop slots: %w", err)
	}
	const dropTypes = `DELETE FROM helper_types WHERE event_id = $1 AND NOT (id = ANY($2))`
	if _, err := t.tx.Exec(ctx, dropTypes, eventID, keptTypes); err != nil {
		return fmt.Errorf("drop helper types: %w", err)
	}

	for _, ht := range types {
		typeID := ht.ID
		if typeID == 0 {
			const ins = `INSERT INTO helper_types (event_id, title, description) VALUES ($1, $2, $3) RETURNING id`
			if err := t.tx.QueryRow(ctx, ins, eventID, ht.Title, ht.Description).Scan(&typeID); err != nil {
				return fmt.Errorf("insert helper type: %w", err)
			}
		} else {
			const upd = `UPDATE helper_types SET title = $3, description = $4 WHERE id = $1 AND event_id = $2`
			if _, err := t.tx.Exec(ctx, upd, typeID, eventID, ht.Title, ht.Description); err != nil {
				return fmt.Errorf("update helper type: %w", err)
			}
		}
		for _, s := range ht.Slots {
			if s.ID == 0 {
				const ins = `INSERT INTO helper_slots (helper_type_id, start_time, end_time, quantity_needed)
					VALUES ($1, $2, $3, $4) RETURNING id`
				var slotID int64
				if err := t.tx.QueryRow(ctx, ins, typeID, s.StartTime, s.EndTime, s.QuantityNeeded).Scan(&slotID); err != nil {
					return fmt.Errorf("insert slot: %w", err)
				}
				continue
			}
			const upd = `UPDATE helper_slots SET start_time = $3, end_time = $4, quantity_needed = $5
				WHERE id = $1 AND helper_type_id = $2`
			if _, err := t.tx.Exec(ctx, upd, s.ID, typeID, s.StartTime, s.EndTime, s.QuantityNeeded); err != nil {
				return fmt.Errorf("update slot: %w", err)
			}
		}
	}
	return nil
}

func (t *txRepository) PromoteWaitlisted(ctx context.Context, slotID int64, n int, at time.Time) ([]models.Signup, error) {
	const q = `UPDATE signups SET status = 'confirmed', updated_at = $3
		WHERE id IN (
			SELECT id FROM signups
			WHERE slot_id = $1 AND status = 'waitlist'
			ORDER BY created_at, id
			LIMIT $2
			FOR UPDATE
		)
		RETURNING id, event_id, user_id, slot_id, status, created_at, updated_at`
	rows, err := t.tx.Query(ctx, q, slotID, n, at)
	if err != nil {
		return nil, fmt.Errorf("promote waitlist: %w", err)
	}
	defer rows.Close()

	var out []models.Signup
	for rows.Next() {
		var s models.Signup
		var status string
		if err := rows.Scan(&s.ID, &s.EventID, &s.UserID, &s.SlotID, &status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Status = models.SignupStatus(status)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *txRepository) AppendHistory(ctx context.Context, h *models.HistoryEntry) error {
	return history.Insert(ctx, t.tx, h)
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	var status string
	var roles []string
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.StartTime, &e.EndTime,
		&e.RegistrationStart, &e.RegistrationEnd, &status, &e.NeedsHelpers, &roles,
		&e.IsExternal, &e.ImagePath, &e.Lock.Holder, &e.Lock.AcquiredAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	e.Status = models.EventStatus(status)
	e.AllowedRoles = make([]models.Role, 0, len(roles))
	for _, r := range roles {
		e.AllowedRoles = append(e.AllowedRoles, models.Role(r))
	}
	return &e, nil
}

func roleNames(roles []models.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// loadHelperTypes returns the helper plans of the given events keyed by
// event id, with the confirmed count of every slot.
func loadHelperTypes(ctx context.Context, q database.Querier, eventIDs []int64) (map[int64][]models.HelperType, error) {
	const typesQ = `SELECT id, event_id, title, description FROM helper_types
		WHERE event_id = ANY($1) ORDER BY id`
	rows, err := q.Query(ctx, typesQ, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("load helper types: %w", err)
	}
	var types []models.HelperType
	for rows.Next() {
		var ht models.HelperType
		if err := rows.Scan(&ht.ID, &ht.EventID, &ht.Title, &ht.Description); err != nil {
			rows.Close()
			return nil, err
		}
		ht.Slots = []models.Slot{}
		types = append(types, ht)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[int64][]models.HelperType, len(eventIDs))
	if len(types) == 0 {
		return out, nil
	}
	index := make(map[int64]int, len(types))
	for i, ht := range types {
		index[ht.ID] = i
	}

	const slotsQ = `SELECT s.id, s.helper_type_id, s.start_time, s.end_time, s.quantity_needed,
			COUNT(su.id) FILTER (WHERE su.status = 'confirmed')
		FROM helper_slots s
		JOIN helper_types ht ON ht.id = s.helper_type_id
		LEFT JOIN signups su ON su.slot_id = s.id
		WHERE ht.event_id = ANY($1)
		GROUP BY s.id
		ORDER BY s.start_time, s.id`
	rows, err = q.Query(ctx, slotsQ, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s models.Slot
		if err := rows.Scan(&s.ID, &s.HelperTypeID, &s.StartTime, &s.EndTime, &s.QuantityNeeded, &s.SignupsCount); err != nil {
			return nil, err
		}
		if i, ok := index[s.HelperTypeID]; ok {
			types[i].Slots = append(types[i].Slots, s)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, ht := range types {
		out[ht.EventID] = append(out[ht.EventID], ht)
	}
	return out, nil
}
