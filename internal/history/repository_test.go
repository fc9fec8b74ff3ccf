package history

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intranet-events/backend/internal/models"
)

func TestInsertDefaultsEmptyDetails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	user := uuid.New()
	mock.ExpectQuery("INSERT INTO event_history").
		WithArgs(int64(7), user, "lock_released", "{}", at).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	h := &models.HistoryEntry{EventID: 7, UserID: user, ChangeType: models.ChangeLockReleased, CreatedAt: at}
	require.NoError(t, Insert(context.Background(), mock, h))
	assert.Equal(t, int64(42), h.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNewestFirst(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	user := uuid.New()
	t1 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	rows := pgxmock.NewRows([]string{"id", "event_id", "user_id", "change_type", "details", "created_at"}).
		AddRow(int64(2), int64(7), user, "deleted", []byte(`{"title":"Summer party"}`), t2).
		AddRow(int64(1), int64(7), user, "created", []byte(`{}`), t1)
	mock.ExpectQuery("SELECT id, event_id, user_id, change_type, details, created_at").
		WithArgs(int64(7), 50).
		WillReturnRows(rows)

	list, err := NewRepository(mock).List(context.Background(), 7, 50)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.ChangeDeleted, list[0].ChangeType)
	assert.Equal(t, models.ChangeCreated, list[1].ChangeType)

	var d map[string]string
	require.NoError(t, json.Unmarshal(list[0].Details, &d))
	assert.Equal(t, "Summer party", d["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
