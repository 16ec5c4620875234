// Package app assembles the speech pipeline from configuration for the
// binaries under cmd/.
package app

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/keshon/ttsbot/internal/audiostore"
	"github.com/keshon/ttsbot/internal/config"
	"github.com/keshon/ttsbot/internal/tts"
	"github.com/keshon/ttsbot/pkg/throttle"
)

// NewStore opens the scratch directory synthesized clips are written to.
func NewStore(cfg *config.Config) (*audiostore.Store, error) {
	ext := ".wav"
	if cfg.AudioEncoding != "LINEAR16" {
		ext = ".audio"
	}
	return audiostore.New(cfg.TempDir, audiostore.WithExtension(ext))
}

// NewSynthesizer builds the Google backed synthesizer writing into sink.
func NewSynthesizer(ctx context.Context, cfg *config.Config, sink tts.AudioSink) (*tts.Synthesizer, error) {
	backend, err := tts.NewGoogleClientFromEnvironment(ctx, cfg.GoogleEndpoint, cfg.GoogleAPIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech backend: %w", err)
	}

	rps := rate.Limit(cfg.GoogleRPS)
	limiter := throttle.NewAdaptiveLimiter(rps, 1, rps, 0.5, 0.5)

	return tts.New(backend, sink, tts.Config{
		Limits: tts.Limits{
			MaxTextLength: cfg.MaxTextLength,
			MinSpeed:      cfg.MinSpeed,
			MaxSpeed:      cfg.MaxSpeed,
		},
		Defaults: tts.Options{
			LanguageCode: cfg.DefaultLanguage,
			VoiceName:    cfg.DefaultVoice,
			Speed:        cfg.DefaultSpeed,
		},
		Encoding:   cfg.AudioEncoding,
		SampleRate: cfg.SampleRate,
	}, tts.WithLimiter(limiter)), nil
}
