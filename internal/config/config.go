// Package config loads runtime settings from the environment (and an optional .env file).
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN"`

	TempDir          string  `env:"TTS_TEMP_DIR" envDefault:"tmp/tts"`
	MaxTextLength    int     `env:"TTS_MAX_TEXT_LENGTH" envDefault:"500"`
	DefaultLanguage  string  `env:"TTS_DEFAULT_LANGUAGE" envDefault:"en-US"`
	DefaultVoice     string  `env:"TTS_DEFAULT_VOICE" envDefault:"en-US-Standard-C"`
	DefaultSpeed     float64 `env:"TTS_DEFAULT_SPEED" envDefault:"1.0"`
	MinSpeed         float64 `env:"TTS_MIN_SPEED" envDefault:"0.25"`
	MaxSpeed         float64 `env:"TTS_MAX_SPEED" envDefault:"4.0"`
	AudioEncoding    string  `env:"TTS_AUDIO_ENCODING" envDefault:"LINEAR16"`
	SampleRate       int     `env:"TTS_SAMPLE_RATE" envDefault:"48000"`
	MaxConcurrentJob int     `env:"TTS_MAX_CONCURRENT_JOBS" envDefault:"10"` // shown by /voice-status, never enforced

	CooldownSeconds       int `env:"TTS_COOLDOWN_SECONDS" envDefault:"5"`
	IdleLeaveSeconds      int `env:"TTS_IDLE_LEAVE_SECONDS" envDefault:"30"`
	ConnectTimeoutSeconds int `env:"TTS_CONNECT_TIMEOUT_SECONDS" envDefault:"30"`
	ReconnectSeconds      int `env:"TTS_RECONNECT_WINDOW_SECONDS" envDefault:"5"`
	SweepIntervalSeconds  int `env:"TTS_SWEEP_INTERVAL_SECONDS" envDefault:"300"`
	SweepMaxAgeSeconds    int `env:"TTS_SWEEP_MAX_AGE_SECONDS" envDefault:"900"`
	HealthIntervalSeconds int `env:"TTS_HEALTH_INTERVAL_SECONDS" envDefault:"600"`

	GoogleAPIKey   string  `env:"GOOGLE_TTS_API_KEY"`
	GoogleEndpoint string  `env:"GOOGLE_TTS_ENDPOINT" envDefault:"https://texttospeech.googleapis.com/v1/text:synthesize"`
	GoogleRPS      float64 `env:"GOOGLE_TTS_RPS" envDefault:"5"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile   string `env:"LOG_FILE"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"true"`
}

// Load reads .env (if present) and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, falling back to system environment variables")
	}
	return Parse()
}

// Parse parses the current environment without touching .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that the struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxTextLength < 1 {
		errs = append(errs, fmt.Errorf("TTS_MAX_TEXT_LENGTH must be positive, got %d", c.MaxTextLength))
	}
	if c.MinSpeed <= 0 || c.MinSpeed > c.MaxSpeed {
		errs = append(errs, fmt.Errorf("invalid speed range [%v, %v]", c.MinSpeed, c.MaxSpeed))
	}
	if c.DefaultSpeed < c.MinSpeed || c.DefaultSpeed > c.MaxSpeed {
		errs = append(errs, fmt.Errorf("TTS_DEFAULT_SPEED %v is outside [%v, %v]", c.DefaultSpeed, c.MinSpeed, c.MaxSpeed))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("TTS_SAMPLE_RATE must be positive, got %d", c.SampleRate))
	}
	if c.CooldownSeconds < 0 {
		errs = append(errs, fmt.Errorf("TTS_COOLDOWN_SECONDS must not be negative"))
	}
	if c.IdleLeaveSeconds <= 0 || c.ConnectTimeoutSeconds <= 0 || c.ReconnectSeconds <= 0 {
		errs = append(errs, fmt.Errorf("voice timeouts must be positive"))
	}
	return errors.Join(errs...)
}

// RequireDiscord fails when the bot token is missing.
func (c *Config) RequireDiscord() error {
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is not set")
	}
	return nil
}

func (c *Config) Cooldown() time.Duration       { return seconds(c.CooldownSeconds) }
func (c *Config) IdleLeave() time.Duration      { return seconds(c.IdleLeaveSeconds) }
func (c *Config) ConnectTimeout() time.Duration { return seconds(c.ConnectTimeoutSeconds) }
func (c *Config) ReconnectWindow() time.Duration {
	return seconds(c.ReconnectSeconds)
}
func (c *Config) SweepInterval() time.Duration  { return seconds(c.SweepIntervalSeconds) }
func (c *Config) SweepMaxAge() time.Duration    { return seconds(c.SweepMaxAgeSeconds) }
func (c *Config) HealthInterval() time.Duration { return seconds(c.HealthIntervalSeconds) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
