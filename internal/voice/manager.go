// Package voice keeps one playback session per guild: it owns the voice
// connection, serializes playback, queues excess requests in arrival order
// and releases every audio resource it was handed exactly once.
//
// Each session is a goroutine that owns all of its state. Requests, transport
// signals and timers reach it as events, so two requests for the same guild
// are strictly ordered while different guilds never wait on each other.
package voice

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/ttsbot/internal/logging"
	"github.com/keshon/ttsbot/pkg/util"
)

const (
	DefaultConnectTimeout  = 30 * time.Second
	DefaultIdleTimeout     = 30 * time.Second
	DefaultReconnectWindow = 5 * time.Second

	closeWorkers = 8
)

// Config holds per-session timers. Zero values take the defaults.
type Config struct {
	ConnectTimeout  time.Duration
	IdleTimeout     time.Duration
	ReconnectWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ReconnectWindow <= 0 {
		c.ReconnectWindow = DefaultReconnectWindow
	}
	return c
}

// Request asks for one clip to be played in a guild.
type Request struct {
	GroupID   string
	ChannelID string
	Handle    Resource
	// OnDone is called exactly once, after Handle was released, with nil on
	// success or the error that ended the job. It runs on its own goroutine.
	OnDone func(error)
}

// Manager is the registry of guild sessions. It is safe for concurrent use.
type Manager struct {
	transport Transport
	cfg       Config
	log       zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	jobSeq atomic.Uint64
}

// NewManager returns a Manager that connects through transport.
func NewManager(transport Transport, cfg Config) *Manager {
	return &Manager{
		transport: transport,
		cfg:       cfg.withDefaults(),
		log:       logging.Component("voice"),
		sessions:  make(map[string]*session),
	}
}

// EnqueueOrPlay hands req.Handle to the guild's session. It starts playback
// when the session is free and queues the clip otherwise. The call waits for
// a connect it triggers but never for playback.
//
// Ownership of the handle passes to the manager in every case: when an error
// is returned the handle has been released and OnDone is called with the
// same error. ctx only bounds the handoff to the session; once the session
// has the clip the call waits for its answer, which the connect timeout
// bounds.
func (m *Manager) EnqueueOrPlay(ctx context.Context, req Request) (Outcome, error) {
	j := &job{id: m.jobSeq.Add(1), handle: req.Handle, onDone: req.OnDone, log: m.log}
	if req.GroupID == "" || req.ChannelID == "" || req.Handle == nil {
		j.finish(ErrInvalidRequest)
		return Outcome{}, ErrInvalidRequest
	}

	for {
		s, err := m.acquire(req.GroupID)
		if err != nil {
			j.finish(err)
			return Outcome{}, err
		}

		reply := make(chan enqueueReply, 1)
		select {
		case s.events <- enqueueEvent{job: j, channelID: req.ChannelID, reply: reply}:
		case <-s.done:
			// Session ended between lookup and send; start a fresh one.
			m.forget(s)
			continue
		case <-ctx.Done():
			j.finish(ctx.Err())
			return Outcome{}, ctx.Err()
		}

		r := <-reply
		return r.outcome, r.err
	}
}

// IsPlaying reports whether a clip is currently playing in the guild.
func (m *Manager) IsPlaying(groupID string) bool {
	return m.Status(groupID).State == Playing
}

// Status returns a snapshot of the guild's session.
func (m *Manager) Status(groupID string) Snapshot {
	m.mu.Lock()
	s, ok := m.sessions[groupID]
	m.mu.Unlock()
	if !ok {
		return Snapshot{State: NoSession}
	}
	snap := s.snapshot()
	if snap.State == Destroyed {
		return Snapshot{State: NoSession}
	}
	return snap
}

// Leave destroys the guild's session: the current clip is stopped, every
// held resource is released and the connection is closed. Leave returns
// after all of that happened and is a no-op without a session.
func (m *Manager) Leave(groupID string) error {
	m.mu.Lock()
	s, ok := m.sessions[groupID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	s.leave()
	m.forget(s)
	return nil
}

// Close leaves every guild and rejects later requests.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	_ = util.Each(sessions, closeWorkers, func(s *session) error {
		s.leave()
		m.forget(s)
		return nil
	})
	m.log.Info().Int("sessions", len(sessions)).Msg("Voice manager closed")
	return nil
}

// Sessions returns the number of live sessions.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) acquire(groupID string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if s, ok := m.sessions[groupID]; ok {
		return s, nil
	}
	s := newSession(m, groupID)
	m.sessions[groupID] = s
	go s.run()
	return s, nil
}

// forget removes s from the registry if it is still the registered session.
func (m *Manager) forget(s *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.groupID]; ok && cur == s {
		delete(m.sessions, s.groupID)
	}
}
