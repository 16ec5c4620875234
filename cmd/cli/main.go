// cmd/cli/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keshon/ttsbot/internal/app"
	"github.com/keshon/ttsbot/internal/config"
	"github.com/keshon/ttsbot/internal/logging"
	"github.com/keshon/ttsbot/internal/tts"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ttsctl",
		Short:        "Operator tools for the TTS bot",
		SilenceUsage: true,
	}
	cmd.AddCommand(newHealthCmd(), newSynthCmd())
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Pretty: cfg.LogPretty})
	return cfg, nil
}

func newHealthCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the speech service answers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := app.NewStore(cfg)
			if err != nil {
				return err
			}
			synth, err := app.NewSynthesizer(cmd.Context(), cfg, store)
			if err != nil {
				return err
			}

			ctx, cancel := contextWithTimeout(cmd, timeout)
			defer cancel()
			if !synth.HealthCheck(ctx) {
				return fmt.Errorf("speech service is unhealthy")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "speech service: healthy")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "how long to wait for the service")
	return cmd
}

func newSynthCmd() *cobra.Command {
	var (
		out     string
		opts    tts.Options
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "synth [text]",
		Short: "Synthesize text into an audio file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := app.NewStore(cfg)
			if err != nil {
				return err
			}
			synth, err := app.NewSynthesizer(cmd.Context(), cfg, store)
			if err != nil {
				return err
			}

			ctx, cancel := contextWithTimeout(cmd, timeout)
			defer cancel()
			h, err := synth.Synthesize(ctx, strings.Join(args, " "), opts)
			if err != nil {
				return err
			}
			defer func() { _ = h.Release() }()

			if err := copyClip(h, out); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", h.Size(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "speech.wav", "output file")
	cmd.Flags().StringVar(&opts.LanguageCode, "language", "", "BCP-47 language code")
	cmd.Flags().StringVar(&opts.VoiceName, "voice", "", "voice name")
	cmd.Flags().Float64Var(&opts.Speed, "speed", 0, "speaking rate")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the service")
	return cmd
}

func copyClip(src interface{ Open() (io.ReadCloser, error) }, path string) error {
	in, err := src.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, in); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), d)
}
