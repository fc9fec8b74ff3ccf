package signups

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intranet-events/backend/internal/models"
)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func TestInsertMapsUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	user := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO signups`).
		WithArgs(int64(1), user, (*int64)(nil), "confirmed", now, now).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_signups_active_attendance"})
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx Tx) error {
		return tx.Insert(context.Background(), &models.Signup{
			EventID: 1, UserID: user, Status: models.SignupConfirmed, CreatedAt: now, UpdatedAt: now,
		})
	})
	assert.ErrorIs(t, err, ErrAlreadySignedUp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockSlotCountsConfirmed(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM helper_slots s`).
		WithArgs(int64(5), int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "event_id", "quantity_needed"}).AddRow(int64(5), int64(1), 2))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM signups`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectCommit()

	var st SlotState
	err := repo.InTx(context.Background(), func(tx Tx) error {
		var err error
		st, err = tx.LockSlot(context.Background(), 1, 5)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, SlotState{ID: 5, EventID: 1, QuantityNeeded: 2, Confirmed: 2}, st)
	assert.Equal(t, models.SignupWaitlist, AdmissionStatus(st.Confirmed, st.QuantityNeeded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockSlotOfOtherEvent(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM helper_slots s`).WithArgs(int64(5), int64(2)).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx Tx) error {
		_, err := tx.LockSlot(context.Background(), 2, 5)
		return err
	})
	assert.ErrorIs(t, err, ErrSlotNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	user := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`status <> 'cancelled'`).WithArgs(int64(8), user).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx Tx) error {
		_, err := tx.FindActive(context.Background(), 8, user)
		return err
	})
	assert.ErrorIs(t, err, ErrSignupNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE signups SET status`).
		WithArgs(int64(8), "cancelled", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(tx Tx) error {
		return tx.SetStatus(context.Background(), 8, models.SignupCancelled, at)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
