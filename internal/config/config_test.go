package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.MaxTextLength)
	assert.Equal(t, "LINEAR16", cfg.AudioEncoding)
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.InDelta(t, 0.25, cfg.MinSpeed, 1e-9)
	assert.InDelta(t, 4.0, cfg.MaxSpeed, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Cooldown())
	assert.Equal(t, 30*time.Second, cfg.IdleLeave())
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 5*time.Second, cfg.ReconnectWindow())
	assert.NoError(t, cfg.RequireDiscord())
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("TTS_MAX_TEXT_LENGTH", "200")
	t.Setenv("TTS_COOLDOWN_SECONDS", "9")
	t.Setenv("TTS_DEFAULT_VOICE", "de-DE-Wavenet-A")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.MaxTextLength)
	assert.Equal(t, 9*time.Second, cfg.Cooldown())
	assert.Equal(t, "de-DE-Wavenet-A", cfg.DefaultVoice)
}

func TestParseRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		val  string
	}{
		{name: "zero text length", key: "TTS_MAX_TEXT_LENGTH", val: "0"},
		{name: "default speed out of range", key: "TTS_DEFAULT_SPEED", val: "9"},
		{name: "inverted speed range", key: "TTS_MIN_SPEED", val: "5"},
		{name: "not a number", key: "TTS_SAMPLE_RATE", val: "fast"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}

func TestRequireDiscord(t *testing.T) {
	cfg := &Config{}
	assert.EqualError(t, cfg.RequireDiscord(), "DISCORD_TOKEN is not set")
}
