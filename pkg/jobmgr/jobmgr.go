// Package jobmgr runs named background loops with cancellation and in-memory
// tracking of what is currently running.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(func(ev jobmgr.Event) {
//	    log.Println("job", ev.Job, ev.State)
//	})
//
//	err := jm.StartAsync(ctx, "sweeper", func(ctx context.Context) error {
//	    // work until ctx is cancelled
//	    return nil
//	})
//
//	// on shutdown
//	jm.StopAll()
//	jm.Wait()
//
// There is no retry logic and no persistence. A job is forgotten as soon as
// its runner returns.
package jobmgr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// State is a job lifecycle step reported to the StatusReporter.
type State string

const (
	StateRunning State = "running"
	StateDone    State = "done"
	StateError   State = "error"
)

// Event is one lifecycle notification.
type Event struct {
	Job   string
	State State
	Err   error
}

// StatusReporter receives lifecycle events for jobs. It may be called from
// any goroutine.
type StatusReporter func(Event)

// Job is a running unit of work.
type Job struct {
	Name   string
	Cancel context.CancelFunc
}

// Manager starts, stops and tracks jobs. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	wg       sync.WaitGroup
	Reporter StatusReporter
}

// NewManager creates a Manager. The reporter may be nil.
func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*Job),
		Reporter: reporter,
	}
}

// StartSync runs a job in the current goroutine and blocks until it returns.
func (m *Manager) StartSync(ctx context.Context, name string, runner func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.report(Event{Job: name, State: StateRunning})
	err := runner(ctx)
	m.finish(name, err)
	return err
}

// StartAsync runs a job in its own goroutine and returns immediately. The job
// is cancelled when parent is done or Stop is called. Starting a name that is
// already running is an error.
func (m *Manager) StartAsync(parent context.Context, name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("job '%s' is already running", name)
	}
	ctx, cancel := context.WithCancel(parent)
	job := &Job{Name: name, Cancel: cancel}
	m.jobs[name] = job
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()
		m.report(Event{Job: name, State: StateRunning})

		err := runner(ctx)
		m.finish(name, err)

		m.mu.Lock()
		if m.jobs[name] == job {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()

	return nil
}

// Stop cancels a running job by name.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("job '%s' not running", name)
	}

	job.Cancel()
	delete(m.jobs, name)
	return nil
}

// StopAll cancels every running job.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, job := range m.jobs {
		job.Cancel()
		delete(m.jobs, name)
	}
}

// Wait blocks until every job started with StartAsync has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Running reports whether a job with this name is active.
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// List returns the active job names, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Status returns a human-readable summary of active jobs, for example
// "Running jobs: health, sweeper".
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

func (m *Manager) finish(name string, err error) {
	if err != nil {
		m.report(Event{Job: name, State: StateError, Err: err})
		return
	}
	m.report(Event{Job: name, State: StateDone})
}

func (m *Manager) report(ev Event) {
	if m.Reporter != nil {
		m.Reporter(ev)
	}
}
