package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailJobEnvelope(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	p := EmailPayload{
		EmailType:      "new_event",
		EventID:        42,
		UserID:         uuid.New(),
		RecipientEmail: "ada@example.org",
		Subject:        "New event: Summer party",
	}

	job, err := NewEmailJob(p, now)
	require.NoError(t, err)
	assert.Equal(t, JobTypeEmail, job.Type)
	assert.Equal(t, now, job.CreatedAt)
	assert.Zero(t, job.Attempt)
	assert.NotEmpty(t, job.ID)

	got, err := job.Email()
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestEmailRejectsOtherJobTypes(t *testing.T) {
	job := &Job{Type: "analytics", Payload: []byte(`{}`)}
	_, err := job.Email()
	assert.Error(t, err)

	job = &Job{Type: JobTypeEmail, Payload: []byte(`not json`)}
	_, err = job.Email()
	assert.Error(t, err)
}
