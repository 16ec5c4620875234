package command

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/ttsbot/pkg/cmd"
)

// WithGuildOnly answers DMs with a short notice instead of running the command.
func WithGuildOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			sc, ok := slashContext(inv)
			if ok && sc.GuildID() == "" {
				return sc.Responder.Respond(sc.Event, embed("🔈 Servers only", "This command only works inside a server."), true)
			}
			return c.Run(ctx, inv)
		})
	}
}

// WithCommandLogger logs every slash command run with its outcome.
func WithCommandLogger(log zerolog.Logger) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			started := time.Now()
			err := c.Run(ctx, inv)

			ev := log.Info()
			if err != nil {
				ev = log.Warn().Err(err)
			}
			if sc, ok := slashContext(inv); ok {
				ev = ev.Str("guild", sc.GuildID()).Str("user", sc.UserID())
			}
			ev.Str("command", c.Name()).Dur("took", time.Since(started)).Msg("Command executed")
			return err
		})
	}
}
