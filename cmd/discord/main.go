// cmd/discord/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/keshon/ttsbot/internal/app"
	"github.com/keshon/ttsbot/internal/command"
	"github.com/keshon/ttsbot/internal/config"
	"github.com/keshon/ttsbot/internal/cooldown"
	"github.com/keshon/ttsbot/internal/discord"
	"github.com/keshon/ttsbot/internal/logging"
	"github.com/keshon/ttsbot/internal/speech"
	"github.com/keshon/ttsbot/internal/voice"
	"github.com/keshon/ttsbot/pkg/cmd"
	"github.com/keshon/ttsbot/pkg/jobmgr"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Pretty: cfg.LogPretty})
	if err := cfg.RequireDiscord(); err != nil {
		logger.Fatal().Err(err).Msg("Cannot start bot")
	}
	logger.Info().Msg("Starting TTS bot...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.NewStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open audio store")
	}
	synth, err := app.NewSynthesizer(ctx, cfg, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create synthesizer")
	}
	cooldowns := cooldown.New(cfg.Cooldown())
	defer cooldowns.Close()

	bot, err := discord.New(cfg.DiscordToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Discord session")
	}

	voices := voice.NewManager(bot.Transport(), voice.Config{
		ConnectTimeout:  cfg.ConnectTimeout(),
		IdleTimeout:     cfg.IdleLeave(),
		ReconnectWindow: cfg.ReconnectWindow(),
	})
	svc := speech.New(synth, cooldowns, voices)

	registry := cmd.NewRegistry()
	if err := command.RegisterAll(registry, command.Deps{
		Speech: svc,
		Voice:  bot,
		Limits: synth.Limits(),
		Log:    logging.Component("command"),

		JobLimit: cfg.MaxConcurrentJob,
	}); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register commands")
	}

	jobs := jobmgr.NewManager(func(ev jobmgr.Event) {
		l := logger.Debug()
		if ev.Err != nil {
			l = logger.Error().Err(ev.Err)
		}
		l.Str("job", ev.Job).Str("state", string(ev.State)).Msg("Background job")
	})
	if err := jobs.StartAsync(ctx, "audio-sweeper", func(ctx context.Context) error {
		return store.RunSweeper(ctx, cfg.SweepInterval(), cfg.SweepMaxAge())
	}); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start sweeper")
	}
	if err := jobs.StartAsync(ctx, "health-probe", func(ctx context.Context) error {
		return svc.RunHealthProbe(ctx, cfg.HealthInterval())
	}); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start health probe")
	}

	if err := bot.Open(registry); err != nil {
		logger.Fatal().Err(err).Msg("Discord bot error")
	}

	<-ctx.Done()
	logger.Info().Msg("❎ Shutdown signal received. Cleaning up...")

	if err := voices.Close(); err != nil {
		logger.Warn().Err(err).Msg("Voice sessions did not close cleanly")
	}
	if err := bot.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close Discord session")
	}

	jobs.StopAll()
	jobs.Wait()

	if n, err := store.Sweep(0); err != nil {
		logger.Warn().Err(err).Msg("Final audio sweep failed")
	} else if n > 0 {
		logger.Info().Int("removed", n).Msg("Removed leftover audio")
	}

	logger.Info().Msg("TTS bot exited cleanly")
}
