package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intranet-events/backend/internal/models"
)

var lockEpoch = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

func heldBy(u uuid.UUID, acquired time.Time) models.LockState {
	return models.LockState{Holder: &u, AcquiredAt: &acquired}
}

func TestArbiterDefaultTimeout(t *testing.T) {
	assert.Equal(t, 900*time.Second, NewArbiter(0).Timeout)
	assert.Equal(t, time.Minute, NewArbiter(time.Minute).Timeout)
}

func TestArbiterCheck(t *testing.T) {
	a := NewArbiter(0)
	user := uuid.New()

	assert.Equal(t, LockCheck{}, a.Check(models.LockState{}, lockEpoch))

	chk := a.Check(heldBy(user, lockEpoch), lockEpoch.Add(900*time.Second))
	assert.True(t, chk.Locked, "lock is valid up to and including the timeout")
	assert.Equal(t, user, *chk.Holder)

	chk = a.Check(heldBy(user, lockEpoch), lockEpoch.Add(901*time.Second))
	assert.False(t, chk.Locked)
	assert.True(t, chk.Expired)

	noTime := models.LockState{Holder: &user}
	assert.True(t, a.Check(noTime, lockEpoch).Expired)
}

func TestArbiterAcquire(t *testing.T) {
	a := NewArbiter(0)
	alice, bob := uuid.New(), uuid.New()

	state, dec := a.Acquire(models.LockState{}, alice, lockEpoch)
	require.True(t, dec.Granted)
	assert.Equal(t, alice, *state.Holder)
	assert.Equal(t, lockEpoch, *state.AcquiredAt)

	later := lockEpoch.Add(600 * time.Second)
	same, dec := a.Acquire(state, bob, later)
	assert.False(t, dec.Granted)
	assert.Equal(t, alice, *dec.Holder)
	assert.Equal(t, state, same)

	refreshed, dec := a.Acquire(state, alice, later)
	require.True(t, dec.Granted)
	assert.Equal(t, later, *refreshed.AcquiredAt, "re-acquire refreshes the window")

	taken, dec := a.Acquire(state, bob, lockEpoch.Add(901*time.Second))
	require.True(t, dec.Granted)
	assert.Equal(t, bob, *taken.Holder)
}

func TestArbiterRelease(t *testing.T) {
	a := NewArbiter(0)
	alice, bob := uuid.New(), uuid.New()
	state := heldBy(alice, lockEpoch)

	kept, dec := a.Release(state, bob, lockEpoch.Add(time.Minute))
	assert.False(t, dec.Granted)
	assert.Equal(t, alice, *dec.Holder)
	assert.Equal(t, state, kept)

	cleared, dec := a.Release(state, alice, lockEpoch.Add(time.Minute))
	assert.True(t, dec.Granted)
	assert.False(t, cleared.Held())

	_, dec = a.Release(state, bob, lockEpoch.Add(time.Hour))
	assert.True(t, dec.Granted, "an expired lock can be released by anyone")

	_, dec = a.Release(models.LockState{}, bob, lockEpoch)
	assert.True(t, dec.Granted)
}
