// Package speech turns a user's text into a clip playing in their voice
// channel: validate, apply the cooldown, synthesize, hand over for playback.
package speech

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/ttsbot/internal/audiostore"
	"github.com/keshon/ttsbot/internal/cooldown"
	"github.com/keshon/ttsbot/internal/logging"
	"github.com/keshon/ttsbot/internal/tts"
	"github.com/keshon/ttsbot/internal/voice"
)

// Synthesizer produces stored clips.
type Synthesizer interface {
	Validate(text string, opts tts.Options) (string, tts.Options, error)
	Synthesize(ctx context.Context, text string, opts tts.Options) (*audiostore.Handle, error)
	HealthCheck(ctx context.Context) bool
}

// Cooldowns gates how often one user may be accepted.
type Cooldowns interface {
	Acquire(userID string) cooldown.Result
}

// Player schedules clips per guild.
type Player interface {
	EnqueueOrPlay(ctx context.Context, req voice.Request) (voice.Outcome, error)
	Leave(groupID string) error
	Status(groupID string) voice.Snapshot
}

// Request is one user's ask to have text spoken.
type Request struct {
	GroupID   string
	ChannelID string
	UserID    string
	Text      string
	Options   tts.Options
}

// Health is the result of the last backend probe.
type Health struct {
	OK        bool
	CheckedAt time.Time
}

// Service wires synthesis, cooldowns and playback together.
type Service struct {
	synth     Synthesizer
	cooldowns Cooldowns
	player    Player
	log       zerolog.Logger

	mu     sync.RWMutex
	health Health
}

// New returns a Service.
func New(synth Synthesizer, cooldowns Cooldowns, player Player) *Service {
	return &Service{
		synth:     synth,
		cooldowns: cooldowns,
		player:    player,
		log:       logging.Component("speech"),
	}
}

// RequestPlayback validates req, charges the user's cooldown, synthesizes the
// text and hands the clip to the guild's session.
//
// Validation and cooldown rejections happen before any side effect and come
// back as *tts.ValidationError and *cooldown.Error. A synthesis failure is a
// *tts.SynthesisError and leaves nothing to release. Once a clip exists its
// ownership moves to the player, which calls onDone exactly once when the
// clip is finished with, including when handing it over fails.
func (s *Service) RequestPlayback(ctx context.Context, req Request, onDone func(error)) (voice.Outcome, error) {
	text, opts, err := s.synth.Validate(req.Text, req.Options)
	if err != nil {
		return voice.Outcome{}, err
	}

	if res := s.cooldowns.Acquire(req.UserID); !res.Allowed {
		s.log.Debug().
			Str("user", req.UserID).
			Int("remaining", res.RemainingSeconds()).
			Msg("Request rejected by cooldown")
		return voice.Outcome{}, res.Err()
	}

	handle, err := s.synth.Synthesize(ctx, text, opts)
	if err != nil {
		return voice.Outcome{}, err
	}

	out, err := s.player.EnqueueOrPlay(ctx, voice.Request{
		GroupID:   req.GroupID,
		ChannelID: req.ChannelID,
		Handle:    handle,
		OnDone:    onDone,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("guild", req.GroupID).Msg("Playback request failed")
		return voice.Outcome{}, err
	}

	s.log.Info().
		Str("guild", req.GroupID).
		Str("user", req.UserID).
		Str("outcome", out.String()).
		Int("chars", len([]rune(text))).
		Msg("Speech accepted")
	return out, nil
}

// Leave disconnects the guild's session, dropping anything queued.
func (s *Service) Leave(groupID string) error {
	return s.player.Leave(groupID)
}

// Status reports the guild's session state.
func (s *Service) Status(groupID string) voice.Snapshot {
	return s.player.Status(groupID)
}

// ProbeHealth runs a backend health check and remembers the result.
func (s *Service) ProbeHealth(ctx context.Context) bool {
	ok := s.synth.HealthCheck(ctx)
	s.mu.Lock()
	s.health = Health{OK: ok, CheckedAt: time.Now()}
	s.mu.Unlock()
	if ok {
		s.log.Debug().Msg("Synthesis backend healthy")
	} else {
		s.log.Warn().Msg("Synthesis backend unhealthy")
	}
	return ok
}

// LastHealth returns the most recent probe result. CheckedAt is zero if no
// probe ran yet.
func (s *Service) LastHealth() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

// RunHealthProbe probes the backend every interval until ctx is done.
func (s *Service) RunHealthProbe(ctx context.Context, interval time.Duration) error {
	s.ProbeHealth(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.ProbeHealth(ctx)
		}
	}
}
