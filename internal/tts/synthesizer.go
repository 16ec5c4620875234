// Package tts turns text into stored audio clips through a remote
// text-to-speech backend.
package tts

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/ttsbot/internal/audiostore"
	"github.com/keshon/ttsbot/internal/logging"
	"github.com/keshon/ttsbot/pkg/throttle"
)

// BackendRequest is one fully resolved synthesis call.
type BackendRequest struct {
	Text         string
	LanguageCode string
	VoiceName    string
	Speed        float64
	Encoding     string
	SampleRate   int
}

// Backend performs the remote call and returns raw encoded audio.
type Backend interface {
	Synthesize(ctx context.Context, req BackendRequest) ([]byte, error)
}

// AudioSink persists synthesized audio.
type AudioSink interface {
	Put(data []byte) (*audiostore.Handle, error)
}

// Config holds the synthesizer's limits and defaults.
type Config struct {
	Limits     Limits
	Defaults   Options
	Encoding   string
	SampleRate int
}

// Synthesizer validates requests, calls the backend and stores the result.
type Synthesizer struct {
	backend Backend
	sink    AudioSink
	cfg     Config
	limiter *throttle.AdaptiveLimiter
	log     zerolog.Logger
}

// Option customises a Synthesizer.
type Option func(*Synthesizer)

// WithLimiter paces backend calls.
func WithLimiter(l *throttle.AdaptiveLimiter) Option {
	return func(s *Synthesizer) { s.limiter = l }
}

// New returns a Synthesizer.
func New(backend Backend, sink AudioSink, cfg Config, opts ...Option) *Synthesizer {
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	if cfg.Defaults.Speed == 0 {
		cfg.Defaults.Speed = 1
	}
	s := &Synthesizer{
		backend: backend,
		sink:    sink,
		cfg:     cfg,
		log:     logging.Component("tts"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the configured input limits.
func (s *Synthesizer) Limits() Limits { return s.cfg.Limits }

// Validate applies defaults and checks the request without any side effect.
func (s *Synthesizer) Validate(text string, opts Options) (string, Options, error) {
	opts = opts.withDefaults(s.cfg.Defaults)
	clean, err := s.cfg.Limits.Validate(text, opts)
	if err != nil {
		return "", opts, err
	}
	return clean, opts, nil
}

// Synthesize returns a handle to the stored clip. The caller owns the handle
// and must Release it.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts Options) (*audiostore.Handle, error) {
	clean, opts, err := s.Validate(text, opts)
	if err != nil {
		return nil, err
	}

	audio, err := s.call(ctx, clean, opts)
	if err != nil {
		return nil, err
	}

	h, err := s.sink.Put(audio)
	if err != nil {
		return nil, &SynthesisError{Kind: KindStorage, Message: "could not store audio", Err: err}
	}
	return h, nil
}

// HealthCheck performs a minimal synthesis call. Only for liveness reporting.
func (s *Synthesizer) HealthCheck(ctx context.Context) bool {
	_, err := s.call(ctx, "ok", s.cfg.Defaults)
	if err != nil {
		s.log.Warn().Err(err).Msg("Health check failed")
		return false
	}
	return true
}

func (s *Synthesizer) call(ctx context.Context, text string, opts Options) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, &SynthesisError{Kind: KindNetwork, Message: "request cancelled while throttled", Err: err}
		}
	}

	started := time.Now()
	audio, err := s.backend.Synthesize(ctx, BackendRequest{
		Text:         text,
		LanguageCode: opts.LanguageCode,
		VoiceName:    opts.VoiceName,
		Speed:        opts.Speed,
		Encoding:     s.cfg.Encoding,
		SampleRate:   s.cfg.SampleRate,
	})
	if s.limiter != nil {
		s.limiter.Observe(err)
	}
	if err != nil {
		var synthErr *SynthesisError
		if !errors.As(err, &synthErr) {
			synthErr = &SynthesisError{Kind: KindService, Err: err}
		}
		s.log.Warn().Err(err).Str("kind", string(synthErr.Kind)).Msg("Synthesis failed")
		return nil, synthErr
	}
	if len(audio) == 0 {
		return nil, &SynthesisError{Kind: KindMalformed, Message: "backend returned no audio"}
	}

	s.log.Debug().
		Int("chars", len(text)).
		Str("voice", opts.VoiceName).
		Int("bytes", len(audio)).
		Dur("took", time.Since(started)).
		Msg("Speech synthesized")
	return audio, nil
}
