// Package discord connects the command registry and the voice manager to a
// live Discord gateway session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/ttsbot/internal/command"
	"github.com/keshon/ttsbot/internal/logging"
	"github.com/keshon/ttsbot/pkg/cmd"
)

// DefaultCommandTimeout bounds a single slash command run, including the
// voice connect and synthesis it may wait for.
const DefaultCommandTimeout = 90 * time.Second

// Bot is a Discord bot
type Bot struct {
	dg        *discordgo.Session
	registry  *cmd.Registry
	transport *VoiceTransport
	responder *Responder
	commands  *commandSync
	log       zerolog.Logger

	commandTimeout time.Duration
	ctx            context.Context
	cancel         context.CancelFunc
}

// New creates the session and wires the event handlers. Nothing connects
// until Open.
func New(token string) (*Bot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	log := logging.Component("discord")
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		dg:             dg,
		transport:      NewVoiceTransport(dg),
		responder:      &Responder{s: dg},
		commands:       newCommandSync(dg, log),
		log:            log,
		commandTimeout: DefaultCommandTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}

	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onGuildCreate)
	dg.AddHandler(b.onGuildDelete)
	dg.AddHandler(b.onInteractionCreate)
	dg.AddHandler(b.onVoiceStateUpdate)
	return b, nil
}

// Transport returns the voice transport for the voice manager.
func (b *Bot) Transport() *VoiceTransport { return b.transport }

// Open connects to the gateway and starts dispatching commands from registry.
func (b *Bot) Open(registry *cmd.Registry) error {
	b.registry = registry
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	return nil
}

// Close cancels in-flight commands and closes the gateway session.
func (b *Bot) Close() error {
	b.cancel()
	return b.dg.Close()
}

// UserVoiceChannel implements command.VoiceLocator from the gateway state cache.
func (b *Bot) UserVoiceChannel(guildID, userID string) (string, error) {
	return userVoiceChannel(b.dg.State, guildID, userID)
}

func userVoiceChannel(state *discordgo.State, guildID, userID string) (string, error) {
	vs, err := state.VoiceState(guildID, userID)
	if err != nil {
		if errors.Is(err, discordgo.ErrStateNotFound) {
			return "", command.ErrNotInVoice
		}
		return "", fmt.Errorf("failed to look up voice state: %w", err)
	}
	if vs.ChannelID == "" {
		return "", command.ErrNotInVoice
	}
	return vs.ChannelID, nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("✅ Discord bot is running")
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Unavailable {
		return
	}
	b.log.Debug().Str("guild_id", g.ID).Str("guild", g.Name).Msg("Guild available")
	b.registerCommands(g.ID)
}

func (b *Bot) onGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Unavailable {
		return
	}
	b.log.Info().Str("guild_id", g.ID).Msg("Removed from guild")
	b.commands.Forget(g.ID)
}

func (b *Bot) registerCommands(guildID string) {
	if b.registry == nil {
		return
	}
	appID, err := b.appID()
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to resolve application ID")
		return
	}
	if err := b.commands.Sync(appID, guildID, command.Definitions(b.registry)); err != nil {
		b.log.Error().Err(err).Str("guild_id", guildID).Msg("Failed to register slash commands")
	}
}

// appID returns the bot's application ID, fetching from Discord if not cached in State.
func (b *Bot) appID() (string, error) {
	if u := b.dg.State.User; u != nil && u.ID != "" {
		return u.ID, nil
	}
	u, err := b.dg.User("@me")
	if err != nil {
		return "", fmt.Errorf("failed to fetch bot user: %w", err)
	}
	return u.ID, nil
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || b.registry == nil {
		return
	}
	name := i.ApplicationCommandData().Name
	c, ok := b.registry.Get(name)
	if !ok {
		b.log.Warn().Str("command", name).Msg("Unknown command")
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.commandTimeout)
	defer cancel()

	inv := &cmd.Invocation{Data: &command.SlashContext{Event: i, Responder: b.responder}}
	if err := c.Run(ctx, inv); err != nil {
		b.log.Error().Err(err).Str("command", name).Msg("Error running slash command")
		e := &discordgo.MessageEmbed{
			Description: fmt.Sprintf("Error running command: %v", err),
			Color:       command.EmbedColor,
		}
		if rerr := b.responder.Respond(i, e, true); rerr != nil {
			_ = b.responder.Followup(i, e, true)
		}
	}
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if s.State.User == nil || v.UserID != s.State.User.ID {
		return
	}
	b.transport.VoiceStateChanged(v.GuildID, v.ChannelID)
}
