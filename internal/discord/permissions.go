package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"
)

var errMissingVoicePermission = errors.New("bot lacks Connect or Speak permission in that channel")

// checkVoicePermissions reports whether the bot may join and talk in a
// channel. Permissions it cannot resolve from state are left to Discord.
func (t *VoiceTransport) checkVoicePermissions(channelID string) error {
	if t.dg.State == nil || t.dg.State.User == nil {
		return nil
	}
	perms, err := t.dg.State.UserChannelPermissions(t.dg.State.User.ID, channelID)
	if err != nil {
		return nil
	}
	return voicePermissionsError(perms)
}

func voicePermissionsError(perms int64) error {
	if perms&discordgo.PermissionAdministrator != 0 {
		return nil
	}
	const need = discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak
	if perms&need != need {
		return errMissingVoicePermission
	}
	return nil
}
