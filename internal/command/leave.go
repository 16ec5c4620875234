package command

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/ttsbot/internal/voice"
	"github.com/keshon/ttsbot/pkg/cmd"
)

// LeaveCommand disconnects the bot from voice and drops the queue.
type LeaveCommand struct {
	Speech Speech
}

func (c *LeaveCommand) Name() string        { return "leave" }
func (c *LeaveCommand) Description() string { return "Stop speaking and leave the voice channel" }

func (c *LeaveCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
	}
}

func (c *LeaveCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	sc, ok := slashContext(inv)
	if !ok {
		return nil
	}

	snap := c.Speech.Status(sc.GuildID())
	if snap.State == voice.NoSession {
		return sc.Responder.Respond(sc.Event, embed("🔇 Not Connected", "I'm not in a voice channel."), true)
	}

	if err := c.Speech.Leave(sc.GuildID()); err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}

	desc := "Left the voice channel."
	if snap.QueueLength > 0 {
		desc = fmt.Sprintf("Left the voice channel and dropped %d queued clip(s).", snap.QueueLength)
	}
	return sc.Responder.Respond(sc.Event, embed("👋 Bye", desc), false)
}
