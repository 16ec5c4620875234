package tts

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxTextLength = 500
	DefaultMinSpeed      = 0.25
	DefaultMaxSpeed      = 4.0
)

// Options selects the voice for one request. Zero values take the defaults
// configured on the Synthesizer.
type Options struct {
	LanguageCode string
	VoiceName    string
	Speed        float64
}

// Limits bounds what a request may ask for.
type Limits struct {
	MaxTextLength int
	MinSpeed      float64
	MaxSpeed      float64
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		MaxTextLength: DefaultMaxTextLength,
		MinSpeed:      DefaultMinSpeed,
		MaxSpeed:      DefaultMaxSpeed,
	}
}

// withDefaults fills empty fields from def.
func (o Options) withDefaults(def Options) Options {
	if o.LanguageCode == "" {
		o.LanguageCode = def.LanguageCode
	}
	if o.VoiceName == "" {
		o.VoiceName = def.VoiceName
	}
	if o.Speed == 0 {
		o.Speed = def.Speed
	}
	return o
}

// Validate checks text and options against the limits and returns the
// trimmed text that should be synthesized.
func (l Limits) Validate(text string, opts Options) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if !utf8.ValidString(text) {
		return "", &ValidationError{Field: "text", Reason: "must be valid UTF-8"}
	}
	if n := utf8.RuneCountInString(text); l.MaxTextLength > 0 && n > l.MaxTextLength {
		return "", &ValidationError{
			Field:  "text",
			Reason: fmt.Sprintf("is %d characters, the limit is %d", n, l.MaxTextLength),
		}
	}
	if math.IsNaN(opts.Speed) || opts.Speed < l.MinSpeed || opts.Speed > l.MaxSpeed {
		return "", &ValidationError{
			Field:  "speed",
			Reason: fmt.Sprintf("must be between %g and %g", l.MinSpeed, l.MaxSpeed),
		}
	}
	if strings.TrimSpace(opts.LanguageCode) == "" {
		return "", &ValidationError{Field: "language", Reason: "must not be empty"}
	}
	return text, nil
}
