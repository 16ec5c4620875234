package cooldown

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker(window time.Duration) (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr := New(window, WithClock(clock.Now))
	return tr, clock
}

func TestFirstRequestIsAllowed(t *testing.T) {
	tr, _ := newTestTracker(DefaultWindow)
	defer tr.Close()

	res := tr.Check("u1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.RemainingSeconds())
	assert.NoError(t, res.Err())
}

func TestWindowBoundary(t *testing.T) {
	tr, clock := newTestTracker(5 * time.Second)
	defer tr.Close()

	require.True(t, tr.Acquire("u1").Allowed)

	clock.Advance(4 * time.Second)
	res := tr.Check("u1")
	assert.False(t, res.Allowed)
	assert.Equal(t, 1, res.RemainingSeconds())

	clock.Advance(time.Second)
	assert.True(t, tr.Check("u1").Allowed)
}

func TestSecondRequestAfterThreeSeconds(t *testing.T) {
	tr, clock := newTestTracker(5 * time.Second)
	defer tr.Close()

	require.True(t, tr.Acquire("u1").Allowed)
	clock.Advance(3 * time.Second)

	res := tr.Acquire("u1")
	require.False(t, res.Allowed)
	assert.Equal(t, 2, res.RemainingSeconds())

	var cdErr *Error
	require.True(t, errors.As(res.Err(), &cdErr))
	assert.Equal(t, 2, cdErr.RemainingSeconds())
	assert.Equal(t, "on cooldown, try again in 2s", cdErr.Error())
}

func TestRejectedAcquireDoesNotExtendCooldown(t *testing.T) {
	tr, clock := newTestTracker(5 * time.Second)
	defer tr.Close()

	require.True(t, tr.Acquire("u1").Allowed)
	clock.Advance(3 * time.Second)
	require.False(t, tr.Acquire("u1").Allowed)
	clock.Advance(2 * time.Second)
	assert.True(t, tr.Acquire("u1").Allowed)
}

func TestUsersAreIndependent(t *testing.T) {
	tr, _ := newTestTracker(5 * time.Second)
	defer tr.Close()

	require.True(t, tr.Acquire("u1").Allowed)
	assert.True(t, tr.Acquire("u2").Allowed)
	assert.False(t, tr.Check("u1").Allowed)
}

func TestZeroWindowDisablesCooldown(t *testing.T) {
	tr, _ := newTestTracker(0)
	defer tr.Close()

	require.True(t, tr.Acquire("u1").Allowed)
	assert.True(t, tr.Acquire("u1").Allowed)
}

func TestConcurrentAcquireAcceptsOnlyOne(t *testing.T) {
	tr, _ := newTestTracker(5 * time.Second)
	defer tr.Close()

	var accepted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if tr.Acquire("racer").Allowed {
				accepted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
}

func TestEntriesExpireAfterRetention(t *testing.T) {
	tr := New(10*time.Millisecond, WithRetention(30*time.Millisecond))
	defer tr.Close()

	tr.Record("u1")
	require.Equal(t, 1, tr.Len())

	assert.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, tr.Check("u1").Allowed)
}

func TestRecordRefreshesExpiry(t *testing.T) {
	tr := New(time.Millisecond, WithRetention(200*time.Millisecond))
	defer tr.Close()

	tr.Record("u1")
	time.Sleep(100 * time.Millisecond)
	tr.Record("u1")
	time.Sleep(120 * time.Millisecond)

	// past the first deadline, before the refreshed one
	assert.Equal(t, 1, tr.Len())
	assert.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCloseStopsExpiry(t *testing.T) {
	tr := New(time.Millisecond, WithRetention(20*time.Millisecond))
	tr.Record("u1")
	tr.Close()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, tr.Len())
}
