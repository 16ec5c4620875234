package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/ttsbot/internal/cooldown"
	"github.com/keshon/ttsbot/internal/speech"
	"github.com/keshon/ttsbot/internal/tts"
	"github.com/keshon/ttsbot/internal/voice"
	"github.com/keshon/ttsbot/pkg/cmd"
)

// Speech is the part of the speech service the commands use.
type Speech interface {
	RequestPlayback(ctx context.Context, req speech.Request, onDone func(error)) (voice.Outcome, error)
	Leave(groupID string) error
	Status(groupID string) voice.Snapshot
	LastHealth() speech.Health
}

// SayCommand speaks text in the caller's voice channel.
type SayCommand struct {
	Speech Speech
	Voice  VoiceLocator
	Limits tts.Limits
	Log    zerolog.Logger
}

func (c *SayCommand) Name() string        { return "say" }
func (c *SayCommand) Description() string { return "Speak text in your voice channel" }

func (c *SayCommand) SlashDefinition() *discordgo.ApplicationCommand {
	minSpeed := c.Limits.MinSpeed
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "text",
				Description: "What to say",
				Required:    true,
				MaxLength:   c.Limits.MaxTextLength,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "language",
				Description: "Language code, e.g. en-US",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "voice",
				Description: "Voice name, e.g. en-US-Standard-C",
			},
			{
				Type:        discordgo.ApplicationCommandOptionNumber,
				Name:        "speed",
				Description: fmt.Sprintf("Speaking rate (%g to %g)", c.Limits.MinSpeed, c.Limits.MaxSpeed),
				MinValue:    &minSpeed,
				MaxValue:    c.Limits.MaxSpeed,
			},
		},
	}
}

func (c *SayCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	sc, ok := slashContext(inv)
	if !ok {
		return nil
	}
	e := sc.Event
	req := parseSayOptions(sc)

	channelID, err := c.Voice.UserVoiceChannel(req.GroupID, req.UserID)
	if err != nil {
		return sc.Responder.Respond(e, embed("🔈 Voice Channel Required", "Join a voice channel first."), true)
	}
	req.ChannelID = channelID

	if err := sc.Responder.Defer(e, false); err != nil {
		return fmt.Errorf("failed to defer response: %w", err)
	}

	out, err := c.Speech.RequestPlayback(ctx, req, c.playbackDone(req.GroupID))
	if err != nil {
		return sc.Responder.Followup(e, failureEmbed(err), true)
	}
	return sc.Responder.Followup(e, outcomeEmbed(out, req.Text), false)
}

// playbackDone logs failures that happen after the reply was sent.
func (c *SayCommand) playbackDone(guildID string) func(error) {
	return func(err error) {
		if err == nil || errors.Is(err, voice.ErrSessionClosed) {
			return
		}
		c.Log.Warn().Err(err).Str("guild", guildID).Msg("Clip did not finish playing")
	}
}

func parseSayOptions(sc *SlashContext) speech.Request {
	req := speech.Request{GroupID: sc.GuildID(), UserID: sc.UserID()}
	opts := sc.Options()
	if o, ok := opts["text"]; ok {
		req.Text = o.StringValue()
	}
	if o, ok := opts["language"]; ok {
		req.Options.LanguageCode = strings.TrimSpace(o.StringValue())
	}
	if o, ok := opts["voice"]; ok {
		req.Options.VoiceName = strings.TrimSpace(o.StringValue())
	}
	if o, ok := opts["speed"]; ok {
		req.Options.Speed = o.FloatValue()
	}
	return req
}

func outcomeEmbed(out voice.Outcome, text string) *discordgo.MessageEmbed {
	quote := "> " + strings.ReplaceAll(strings.TrimSpace(text), "\n", "\n> ")
	switch out.Kind {
	case voice.Queued:
		return embed("🕒 Queued", fmt.Sprintf("Position **#%d** in the queue.\n%s", out.Position, quote))
	default:
		return embed("🔊 Speaking", quote)
	}
}

func failureEmbed(err error) *discordgo.MessageEmbed {
	var (
		vErr  *tts.ValidationError
		cdErr *cooldown.Error
		sErr  *tts.SynthesisError
		cErr  *voice.ConnectionError
		pErr  *voice.PlaybackError
	)
	switch {
	case errors.As(err, &vErr):
		return embed("⚠️ Invalid Request", fmt.Sprintf("The %s %s.", vErr.Field, vErr.Reason))
	case errors.As(err, &cdErr):
		return embed("⏳ Cooldown", fmt.Sprintf("Slow down! Try again in %d second(s).", cdErr.RemainingSeconds()))
	case errors.As(err, &sErr):
		return embed("❌ Speech Synthesis Failed", synthesisMessage(sErr))
	case errors.As(err, &cErr):
		return embed("❌ Voice Connection Failed", "Could not connect to your voice channel. Please try again.")
	case errors.As(err, &pErr):
		return embed("❌ Playback Failed", "The clip could not be played.")
	case errors.Is(err, voice.ErrSessionClosed), errors.Is(err, voice.ErrManagerClosed):
		return embed("🔇 Stopped", "The voice session was closed before your clip played.")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return embed("⌛ Timed Out", "Your request took too long. Please try again.")
	default:
		return embed("❌ Error", fmt.Sprintf("Something went wrong: %v", err))
	}
}

func synthesisMessage(err *tts.SynthesisError) string {
	switch err.Kind {
	case tts.KindAuth:
		return "The speech service rejected the bot's credentials."
	case tts.KindQuota:
		return "The speech service quota is exhausted. Try again later."
	case tts.KindNetwork:
		return "The speech service could not be reached."
	default:
		if err.Message != "" {
			return fmt.Sprintf("The speech service returned an error: %s", err.Message)
		}
		return "The speech service returned an error."
	}
}
