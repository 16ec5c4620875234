package jobmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) report(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) states(job string) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, ev := range r.events {
		if ev.Job == job {
			out = append(out, ev.State)
		}
	}
	return out
}

func blockUntilCancelled(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func TestStartAsyncAndStop(t *testing.T) {
	rec := &recorder{}
	m := NewManager(rec.report)

	require.NoError(t, m.StartAsync(context.Background(), "sweeper", blockUntilCancelled))
	assert.True(t, m.Running("sweeper"))
	assert.Error(t, m.StartAsync(context.Background(), "sweeper", blockUntilCancelled), "duplicate names are rejected")
	assert.Equal(t, "Running jobs: sweeper", m.Status())

	require.NoError(t, m.Stop("sweeper"))
	m.Wait()
	assert.False(t, m.Running("sweeper"))
	assert.Equal(t, "No jobs are running.", m.Status())
	assert.Equal(t, []State{StateRunning, StateDone}, rec.states("sweeper"))

	assert.Error(t, m.Stop("sweeper"))
}

func TestJobErrorIsReported(t *testing.T) {
	rec := &recorder{}
	m := NewManager(rec.report)
	boom := errors.New("boom")

	require.NoError(t, m.StartAsync(context.Background(), "probe", func(context.Context) error { return boom }))
	m.Wait()

	assert.Equal(t, []State{StateRunning, StateError}, rec.states("probe"))
	rec.mu.Lock()
	last := rec.events[len(rec.events)-1]
	rec.mu.Unlock()
	assert.ErrorIs(t, last.Err, boom)
	assert.Empty(t, m.List())
}

func TestStopAllAndParentCancel(t *testing.T) {
	m := NewManager(nil)
	parent, cancel := context.WithCancel(context.Background())

	require.NoError(t, m.StartAsync(parent, "a", blockUntilCancelled))
	require.NoError(t, m.StartAsync(context.Background(), "b", blockUntilCancelled))
	assert.Equal(t, []string{"a", "b"}, m.List())

	cancel()
	assert.Eventually(t, func() bool { return !m.Running("a") }, time.Second, 5*time.Millisecond)
	assert.True(t, m.Running("b"))

	m.StopAll()
	m.Wait()
	assert.Empty(t, m.List())
}

func TestStartSync(t *testing.T) {
	rec := &recorder{}
	m := NewManager(rec.report)

	ran := false
	err := m.StartSync(context.Background(), "sweep-once", func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []State{StateRunning, StateDone}, rec.states("sweep-once"))
}
