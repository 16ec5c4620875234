package voice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// job is one clip waiting for or occupying the player.
type job struct {
	id     uint64
	handle Resource
	onDone func(error)
	log    zerolog.Logger
	once   sync.Once
}

// finish releases the handle and notifies the waiter, once.
func (j *job) finish(err error) {
	j.once.Do(func() {
		if j.handle != nil {
			if rerr := j.handle.Release(); rerr != nil {
				j.log.Warn().Err(rerr).Uint64("job", j.id).Msg("Failed to release audio")
			}
		}
		if j.onDone != nil {
			go j.onDone(err)
		}
	})
}

type enqueueReply struct {
	outcome Outcome
	err     error
}

type (
	enqueueEvent struct {
		job       *job
		channelID string
		reply     chan enqueueReply
	}
	connectedEvent struct {
		gen  uint64
		conn Connection
		err  error
	}
	linkEvent struct {
		conn Connection
		ev   LinkEvent
	}
	playbackDoneEvent struct {
		job *job
		err error
	}
	timerEvent struct {
		kind timerKind
		gen  uint64
	}
	leaveEvent struct{}
)

type timerKind int

const (
	timerConnect timerKind = iota
	timerIdle
	timerReconnect
	timerCount
)

type sessionTimer struct {
	t   *time.Timer
	gen uint64
}

// session is the per-guild actor. Every field below the channels is owned
// by the run goroutine.
type session struct {
	m       *Manager
	groupID string
	log     zerolog.Logger

	events chan any
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	snap   atomic.Pointer[Snapshot]

	state     State
	prevState State
	channelID string
	conn      Connection

	current    *job
	pending    chan enqueueReply // reply for the request that triggered a connect
	queue      []*job
	playCancel context.CancelFunc

	connectGen    uint64
	connectCancel context.CancelFunc
	timers        [timerCount]sessionTimer

	// replies are sent after the snapshot reflects the event that produced them.
	outbox []pendingReply
}

type pendingReply struct {
	ch chan enqueueReply
	r  enqueueReply
}

func newSession(m *Manager, groupID string) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		m:       m,
		groupID: groupID,
		log:     m.log.With().Str("guild", groupID).Logger(),
		events:  make(chan any),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		state:   NoSession,
	}
	s.publish()
	return s
}

func (s *session) run() {
	defer close(s.done)
	for ev := range s.events {
		s.handle(ev)
		s.publish()
		for _, p := range s.outbox {
			p.ch <- p.r
		}
		s.outbox = s.outbox[:0]
		if s.state == Destroyed {
			return
		}
	}
}

// post delivers ev to the actor. It reports false once the actor has exited.
func (s *session) post(ev any) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *session) leave() {
	if s.post(leaveEvent{}) {
		<-s.done
	}
}

func (s *session) reply(ch chan enqueueReply, r enqueueReply) {
	s.outbox = append(s.outbox, pendingReply{ch: ch, r: r})
}

func (s *session) snapshot() Snapshot {
	return *s.snap.Load()
}

func (s *session) publish() {
	connected := s.conn != nil && (s.state == Ready || s.state == Playing || s.state == Idle)
	s.snap.Store(&Snapshot{
		Connected:   connected,
		State:       s.state,
		QueueLength: len(s.queue),
		ChannelID:   s.channelID,
	})
}

func (s *session) handle(ev any) {
	switch ev := ev.(type) {
	case enqueueEvent:
		s.onEnqueue(ev)
	case connectedEvent:
		s.onConnected(ev)
	case linkEvent:
		s.onLink(ev)
	case playbackDoneEvent:
		s.onPlaybackDone(ev)
	case timerEvent:
		s.onTimer(ev)
	case leaveEvent:
		s.log.Info().Str("state", s.state.String()).Msg("Leaving voice channel")
		s.destroy(ErrSessionClosed)
	}
}

func (s *session) onEnqueue(ev enqueueEvent) {
	switch s.state {
	case NoSession:
		s.beginConnect(ev)

	case Ready, Idle:
		if s.current != nil {
			s.enqueue(ev)
			return
		}
		s.disarm(timerIdle)
		s.followConn()
		if ev.channelID != s.channelID {
			s.log.Info().Str("from", s.channelID).Str("to", ev.channelID).Msg("Moving to another voice channel")
			s.dropConn()
			s.beginConnect(ev)
			return
		}
		if err := s.startPlayback(ev.job); err != nil {
			s.reply(ev.reply, enqueueReply{err: err})
			s.advance()
			return
		}
		s.reply(ev.reply, enqueueReply{outcome: Outcome{Kind: PlayingNow}})

	default:
		// Connecting, Playing and Disconnected all have work ahead of this job.
		s.enqueue(ev)
	}
}

func (s *session) enqueue(ev enqueueEvent) {
	s.queue = append(s.queue, ev.job)
	pos := len(s.queue)
	s.log.Debug().Uint64("job", ev.job.id).Int("position", pos).Msg("Clip queued")
	s.reply(ev.reply, enqueueReply{outcome: Outcome{Kind: Queued, Position: pos}})
}

// beginConnect binds the session to ev's channel and starts joining it.
// The triggering job becomes current and its caller waits for the result.
func (s *session) beginConnect(ev enqueueEvent) {
	s.state = Connecting
	s.channelID = ev.channelID
	s.current = ev.job
	s.pending = ev.reply

	s.connectGen++
	gen := s.connectGen
	ctx, cancel := context.WithTimeout(s.ctx, s.m.cfg.ConnectTimeout)
	s.connectCancel = cancel
	s.arm(timerConnect, s.m.cfg.ConnectTimeout)

	channelID := s.channelID
	s.log.Info().Str("channel", channelID).Msg("Joining voice channel")
	go func() {
		conn, err := s.m.transport.Connect(ctx, s.groupID, channelID)
		if !s.post(connectedEvent{gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Disconnect()
		}
	}()
}

func (s *session) onConnected(ev connectedEvent) {
	if ev.gen != s.connectGen || s.state != Connecting {
		if ev.conn != nil && ev.conn != s.conn {
			_ = ev.conn.Disconnect()
		}
		return
	}
	s.disarm(timerConnect)
	s.connectCancel()

	if ev.err != nil {
		s.failConnect(ev.err)
		return
	}

	s.conn = ev.conn
	s.state = Ready
	s.watch(ev.conn)
	s.log.Info().Str("channel", s.channelID).Msg("Voice connection ready")

	j := s.current
	s.current = nil
	reply := s.pending
	s.pending = nil

	if err := s.startPlayback(j); err != nil {
		s.reply(reply, enqueueReply{err: err})
		s.advance()
		return
	}
	s.reply(reply, enqueueReply{outcome: Outcome{Kind: PlayingNow}})
}

func (s *session) failConnect(cause error) {
	cerr := &ConnectionError{GroupID: s.groupID, ChannelID: s.channelID, Err: cause}
	s.log.Warn().Err(cause).Str("channel", s.channelID).Msg("Voice connection failed")
	s.destroy(cerr)
}

// watch forwards link signals of conn until its event channel closes.
func (s *session) watch(conn Connection) {
	go func() {
		for ev := range conn.Events() {
			if !s.post(linkEvent{conn: conn, ev: ev}) {
				return
			}
		}
	}()
}

func (s *session) onLink(ev linkEvent) {
	if ev.conn != s.conn {
		return
	}
	switch ev.ev {
	case LinkLost:
		switch s.state {
		case Ready, Playing, Idle:
			s.prevState = s.state
			s.state = Disconnected
			s.disarm(timerIdle)
			s.arm(timerReconnect, s.m.cfg.ReconnectWindow)
			s.log.Warn().Str("was", s.prevState.String()).Msg("Voice link lost, waiting for recovery")
		}
	case LinkRestored:
		if s.state != Disconnected {
			return
		}
		s.disarm(timerReconnect)
		s.log.Info().Str("state", s.prevState.String()).Msg("Voice link recovered")
		s.resume()
	case LinkMoved:
		s.followConn()
	}
}

// followConn adopts the channel the connection was moved to.
func (s *session) followConn() {
	if s.conn == nil {
		return
	}
	if ch := s.conn.ChannelID(); ch != "" && ch != s.channelID {
		s.log.Info().Str("from", s.channelID).Str("to", ch).Msg("Voice connection moved")
		s.channelID = ch
	}
}

// resume returns from Disconnected to the state the session's work implies.
func (s *session) resume() {
	if s.current != nil {
		s.state = Playing
		return
	}
	s.state = Ready
	s.advance()
}

func (s *session) startPlayback(j *job) error {
	audio, err := j.handle.Open()
	if err != nil {
		perr := &PlaybackError{GroupID: s.groupID, Err: err}
		s.log.Warn().Err(err).Uint64("job", j.id).Msg("Failed to start playback")
		j.finish(perr)
		return perr
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.current = j
	s.playCancel = cancel
	s.state = Playing

	conn := s.conn
	go func() {
		err := conn.Play(ctx, audio)
		_ = audio.Close()
		s.post(playbackDoneEvent{job: j, err: err})
	}()
	s.log.Debug().Uint64("job", j.id).Int("queued", len(s.queue)).Msg("Playback started")
	return nil
}

func (s *session) onPlaybackDone(ev playbackDoneEvent) {
	if ev.job != s.current {
		return
	}
	s.current = nil
	if s.playCancel != nil {
		s.playCancel()
		s.playCancel = nil
	}

	if s.state == Disconnected {
		if ev.err != nil {
			ev.job.finish(&ConnectionError{GroupID: s.groupID, ChannelID: s.channelID, Err: ev.err})
		} else {
			ev.job.finish(nil)
		}
		return
	}

	if ev.err != nil {
		perr := &PlaybackError{GroupID: s.groupID, Err: ev.err}
		s.log.Warn().Err(ev.err).Uint64("job", ev.job.id).Msg("Playback failed")
		ev.job.finish(perr)
		if s.conn == nil || !s.conn.Ready() {
			s.prevState = Playing
			s.state = Disconnected
			s.arm(timerReconnect, s.m.cfg.ReconnectWindow)
			return
		}
	} else {
		s.log.Debug().Uint64("job", ev.job.id).Msg("Playback finished")
		ev.job.finish(nil)
	}
	s.advance()
}

// advance plays the next queued job, or goes idle when there is none.
func (s *session) advance() {
	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		if err := s.startPlayback(next); err == nil {
			return
		}
	}
	s.queue = nil
	s.state = Idle
	s.arm(timerIdle, s.m.cfg.IdleTimeout)
}

func (s *session) onTimer(ev timerEvent) {
	if ev.gen != s.timers[ev.kind].gen {
		return
	}
	s.timers[ev.kind].t = nil

	switch ev.kind {
	case timerConnect:
		if s.state == Connecting {
			s.connectCancel()
			s.failConnect(errConnectTimeout)
		}
	case timerIdle:
		if s.state == Idle && s.current == nil && len(s.queue) == 0 {
			s.log.Info().Dur("idle", s.m.cfg.IdleTimeout).Msg("Leaving idle voice channel")
			s.destroy(nil)
		}
	case timerReconnect:
		if s.state != Disconnected {
			return
		}
		// A blip shorter than the transport's poll never produces LinkRestored.
		if s.conn != nil && s.conn.Ready() {
			s.log.Info().Msg("Voice link usable again")
			s.resume()
			return
		}
		s.failConnect(errReconnectTimeout)
	}
}

// destroy ends the session. Every job still held is finished with cause.
func (s *session) destroy(cause error) {
	if s.state == Destroyed {
		return
	}
	for k := range s.timers {
		s.disarm(timerKind(k))
	}
	s.cancel()

	if s.pending != nil {
		s.reply(s.pending, enqueueReply{err: cause})
		s.pending = nil
	}
	if s.current != nil {
		s.current.finish(cause)
		s.current = nil
	}
	for _, j := range s.queue {
		j.finish(cause)
	}
	s.queue = nil

	s.dropConn()
	s.state = Destroyed
	s.m.forget(s)
	s.log.Debug().Msg("Voice session destroyed")
}

func (s *session) dropConn() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Disconnect(); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn().Err(err).Msg("Voice disconnect failed")
	}
	s.conn = nil
}

func (s *session) arm(kind timerKind, d time.Duration) {
	s.disarm(kind)
	gen := s.timers[kind].gen
	s.timers[kind].t = time.AfterFunc(d, func() {
		s.post(timerEvent{kind: kind, gen: gen})
	})
}

func (s *session) disarm(kind timerKind) {
	tm := &s.timers[kind]
	tm.gen++
	if tm.t != nil {
		tm.t.Stop()
		tm.t = nil
	}
}
