package events

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intranet-events/backend/internal/models"
)

var eventColumnNames = []string{"id", "title", "description", "location", "start_time", "end_time",
	"registration_start", "registration_end", "status", "needs_helpers", "allowed_roles",
	"is_external", "image_path", "locked_by", "locked_at", "created_by", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func TestLockEventNotFoundRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM events WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(4)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx Tx) error {
		_, err := tx.LockEvent(context.Background(), 4)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyStatusChangesSingleStatement(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE events AS e SET status = c.status`).
		WithArgs([]int64{1, 2}, []string{"running", "past"}, []string{"open", "running"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	err := repo.ApplyStatusChanges(context.Background(), []StatusChange{
		{EventID: 1, From: models.StatusOpen, To: models.StatusRunning},
		{EventID: 2, From: models.StatusRunning, To: models.StatusPast},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyStatusChangesRollsBackOnFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE events AS e`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.ApplyStatusChanges(context.Background(), []StatusChange{{EventID: 1, From: models.StatusOpen, To: models.StatusClosed}})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyStatusChangesNoop(t *testing.T) {
	repo, mock := newMockRepo(t)
	require.NoError(t, repo.ApplyStatusChanges(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEventsBuildsFilter(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := at("2024-06-01T00:00:00Z")
	external := false

	mock.ExpectQuery(`FROM events WHERE end_time >= \$1 AND is_external = \$2 AND status <> 'past' ORDER BY start_time, id`).
		WithArgs(from, external).
		WillReturnRows(pgxmock.NewRows(eventColumnNames))

	list, err := repo.ListEvents(context.Background(), ListFilter{From: &from, External: &external, SkipPast: true, IncludeHelpers: true})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetImagePathMissingEvent(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE events SET image_path`).
		WithArgs(int64(3), "events/3/poster.png").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.SetImagePath(context.Background(), 3, "events/3/poster.png")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceHelperTypesKeepsSubmittedIDs(t *testing.T) {
	repo, mock := newMockRepo(t)
	kept := SlotInput{ID: 5, StartTime: at("2024-06-10T18:00:00Z"), EndTime: at("2024-06-10T20:00:00Z"), QuantityNeeded: 3}
	added := SlotInput{StartTime: at("2024-06-10T20:00:00Z"), EndTime: at("2024-06-10T22:00:00Z"), QuantityNeeded: 1}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM helper_slots`).WithArgs(int64(9), []int64{5}).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM helper_types`).WithArgs(int64(9), []int64{3}).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`UPDATE helper_types`).WithArgs(int64(3), int64(9), "Bar", "").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE helper_slots`).
		WithArgs(int64(5), int64(3), kept.StartTime, kept.EndTime, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO helper_slots`).
		WithArgs(int64(3), added.StartTime, added.EndTime, 1).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(6)))
	mock.ExpectCommit()

	types := helperTypesToModels(9, []HelperTypeInput{{ID: 3, Title: "Bar", Slots: []SlotInput{kept, added}}})
	err := repo.InTx(context.Background(), func(tx Tx) error {
		return tx.ReplaceHelperTypes(context.Background(), 9, types)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
