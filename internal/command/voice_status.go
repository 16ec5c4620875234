package command

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/ttsbot/pkg/cmd"
)

// VoiceStatusCommand shows the guild's session state and backend health.
// JobLimit is the configured synthesis concurrency, shown for operators only.
type VoiceStatusCommand struct {
	Speech   Speech
	JobLimit int
}

func (c *VoiceStatusCommand) Name() string { return "voice-status" }

func (c *VoiceStatusCommand) Description() string {
	return "Show the voice session and speech service status"
}

func (c *VoiceStatusCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
	}
}

func (c *VoiceStatusCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	sc, ok := slashContext(inv)
	if !ok {
		return nil
	}

	snap := c.Speech.Status(sc.GuildID())
	channel := "none"
	if snap.ChannelID != "" {
		channel = fmt.Sprintf("<#%s>", snap.ChannelID)
	}

	health := c.Speech.LastHealth()
	backend := "not checked yet"
	if !health.CheckedAt.IsZero() {
		state := "✅ healthy"
		if !health.OK {
			state = "❌ unhealthy"
		}
		backend = fmt.Sprintf("%s (<t:%d:R>)", state, health.CheckedAt.Unix())
	}

	e := embed("📊 Voice Status", "")
	e.Fields = []*discordgo.MessageEmbedField{
		{Name: "State", Value: snap.State.String(), Inline: true},
		{Name: "Connected", Value: strconv.FormatBool(snap.Connected), Inline: true},
		{Name: "Channel", Value: channel, Inline: true},
		{Name: "Queued", Value: strconv.Itoa(snap.QueueLength), Inline: true},
		{Name: "Speech service", Value: backend, Inline: true},
	}
	if c.JobLimit > 0 {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name: "Job limit", Value: strconv.Itoa(c.JobLimit), Inline: true,
		})
	}
	return sc.Responder.Respond(sc.Event, e, true)
}
