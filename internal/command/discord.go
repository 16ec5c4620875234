package command

import (
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/ttsbot/pkg/cmd"
)

const EmbedColor = 0x4f8ef7

// ErrNotInVoice is returned by a VoiceLocator when the user sits in no voice channel.
var ErrNotInVoice = errors.New("user not in any voice channel")

// SlashContext is the Invocation.Data the Discord runtime passes to slash commands.
type SlashContext struct {
	Event     *discordgo.InteractionCreate
	Responder Responder
}

// GuildID returns the guild the interaction came from, or "" for DMs.
func (c *SlashContext) GuildID() string { return c.Event.GuildID }

// UserID returns the invoking user in guilds and DMs alike.
func (c *SlashContext) UserID() string {
	if c.Event.Member != nil && c.Event.Member.User != nil {
		return c.Event.Member.User.ID
	}
	if c.Event.User != nil {
		return c.Event.User.ID
	}
	return ""
}

// Options returns the top-level options keyed by name.
func (c *SlashContext) Options() map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := c.Event.ApplicationCommandData().Options
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		out[o.Name] = o
	}
	return out
}

// Responder sends interaction replies so commands never touch the session.
type Responder interface {
	Respond(e *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) error
	Defer(e *discordgo.InteractionCreate, ephemeral bool) error
	Followup(e *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) error
}

// VoiceLocator finds the voice channel a user is connected to.
type VoiceLocator interface {
	UserVoiceChannel(guildID, userID string) (string, error)
}

// SlashProvider is implemented by commands that register as slash commands.
type SlashProvider interface {
	SlashDefinition() *discordgo.ApplicationCommand
}

// Definitions collects slash definitions of every command in r.
func Definitions(r *cmd.Registry) []*discordgo.ApplicationCommand {
	var defs []*discordgo.ApplicationCommand
	for _, c := range r.All() {
		sp, ok := cmd.As[SlashProvider](c)
		if !ok {
			continue
		}
		if def := sp.SlashDefinition(); def != nil {
			if def.Type == 0 {
				def.Type = discordgo.ChatApplicationCommand
			}
			defs = append(defs, def)
		}
	}
	return defs
}

func slashContext(inv *cmd.Invocation) (*SlashContext, bool) {
	if inv == nil {
		return nil, false
	}
	sc, ok := inv.Data.(*SlashContext)
	return sc, ok && sc != nil && sc.Event != nil
}

func embed(title, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       EmbedColor,
	}
}
