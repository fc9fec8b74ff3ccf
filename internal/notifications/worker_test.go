package notifications

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/intranet-events/backend/internal/clock"
	"github.com/intranet-events/backend/internal/models"
	"github.com/intranet-events/backend/pkg/queue"
)

type mockMailer struct{ mock.Mock }

func (m *mockMailer) Send(ctx context.Context, msg Message) error {
	return m.Called(ctx, msg).Error(0)
}

type memLogs struct {
	mu   sync.Mutex
	logs []models.EmailLog
}

func (l *memLogs) Insert(ctx context.Context, e *models.EmailLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.ID = int64(len(l.logs) + 1)
	l.logs = append(l.logs, *e)
	return nil
}

// sliceJobs hands out its jobs once, then cancels the worker.
type sliceJobs struct {
	mu      sync.Mutex
	jobs    []*queue.Job
	retried []*queue.Job
	cancel  context.CancelFunc
}

func (s *sliceJobs) Dequeue(ctx context.Context) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		s.cancel()
		return nil, ctx.Err()
	}
	j := s.jobs[0]
	s.jobs = s.jobs[1:]
	return j, nil
}

func (s *sliceJobs) Retry(ctx context.Context, job *queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Attempt++
	s.retried = append(s.retried, job)
	return nil
}

var now = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func emailJob(t *testing.T, to string) *queue.Job {
	t.Helper()
	job, err := queue.NewEmailJob(queue.EmailPayload{
		EmailType:      models.EmailTypeNewEvent,
		EventID:        42,
		UserID:         uuid.New(),
		RecipientEmail: to,
		Subject:        "New event: Summer party",
		Body:           "Hello",
	}, now)
	require.NoError(t, err)
	return job
}

func TestProcessRecordsDelivery(t *testing.T) {
	mailer := new(mockMailer)
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool { return m.To == "ada@example.org" })).Return(nil)
	logs := &memLogs{}
	w := NewWorker(nil, mailer, logs, clock.Fake(now), nil)

	require.NoError(t, w.Process(context.Background(), emailJob(t, "ada@example.org")))
	require.Len(t, logs.logs, 1)
	l := logs.logs[0]
	assert.Equal(t, models.EmailLogStatusSent, l.Status)
	require.NotNil(t, l.EventID)
	assert.Equal(t, int64(42), *l.EventID)
	require.NotNil(t, l.SentAt)
	assert.Equal(t, now, *l.SentAt)
}

func TestProcessRecordsFailure(t *testing.T) {
	mailer := new(mockMailer)
	mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("550 mailbox unavailable"))
	logs := &memLogs{}
	w := NewWorker(nil, mailer, logs, clock.Fake(now), nil)

	err := w.Process(context.Background(), emailJob(t, "nobody@example.org"))
	assert.Error(t, err)
	require.Len(t, logs.logs, 1)
	assert.Equal(t, models.EmailLogStatusFailed, logs.logs[0].Status)
	assert.Equal(t, "550 mailbox unavailable", logs.logs[0].ErrorMessage)
	assert.Nil(t, logs.logs[0].SentAt)
}

func TestProcessDropsUndecodableJobs(t *testing.T) {
	mailer := new(mockMailer)
	w := NewWorker(nil, mailer, &memLogs{}, clock.Fake(now), nil)
	assert.NoError(t, w.Process(context.Background(), &queue.Job{ID: "x", Type: "analytics"}))
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestRunRetriesFailedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ok, bad := emailJob(t, "ada@example.org"), emailJob(t, "nobody@example.org")
	jobs := &sliceJobs{jobs: []*queue.Job{ok, bad}, cancel: cancel}

	mailer := new(mockMailer)
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool { return m.To == "ada@example.org" })).Return(nil)
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool { return m.To == "nobody@example.org" })).Return(errors.New("rejected"))
	logs := &memLogs{}
	w := NewWorker(jobs, mailer, logs, clock.Fake(now), nil)
	w.backoff = time.Millisecond

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	require.Len(t, jobs.retried, 1)
	assert.Equal(t, bad.ID, jobs.retried[0].ID)
	assert.Equal(t, 1, jobs.retried[0].Attempt)
	assert.Len(t, logs.logs, 2)
}

func TestCompose(t *testing.T) {
	raw := string(compose("events@example.org", Message{
		To:      "ada@example.org",
		ToName:  "Ada Lovelace",
		Subject: "Neues Event: Sommerfest\r\nBcc: x@example.org",
		Body:    "line one\nline two",
	}, now))

	assert.Contains(t, raw, "To: \"Ada Lovelace\" <ada@example.org>\r\n")
	assert.Contains(t, raw, "Subject: Neues Event: SommerfestBcc: x@example.org\r\n")
	assert.NotContains(t, raw, "\r\nBcc:")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nline one\r\nline two"))
}
