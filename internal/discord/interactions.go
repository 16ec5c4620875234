package discord

import (
	"github.com/bwmarrin/discordgo"
)

// Responder implements command.Responder on top of a live session.
type Responder struct {
	s *discordgo.Session
}

func flags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

// Respond sends an embed as the immediate interaction response.
func (r *Responder) Respond(e *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) error {
	return r.s.InteractionRespond(e.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags(ephemeral),
		},
	})
}

// Defer acknowledges the interaction so the reply can follow later.
func (r *Responder) Defer(e *discordgo.InteractionCreate, ephemeral bool) error {
	return r.s.InteractionRespond(e.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags(ephemeral)},
	})
}

// Followup sends an embed after Defer.
func (r *Responder) Followup(e *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) error {
	_, err := r.s.FollowupMessageCreate(e.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
		Flags:  flags(ephemeral),
	})
	return err
}
