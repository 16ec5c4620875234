package command

import (
	"github.com/rs/zerolog"

	"github.com/keshon/ttsbot/internal/tts"
	"github.com/keshon/ttsbot/pkg/cmd"
)

// Deps are the collaborators the slash commands share.
type Deps struct {
	Speech Speech
	Voice  VoiceLocator
	Limits tts.Limits
	Log    zerolog.Logger

	// JobLimit is informational; nothing enforces it.
	JobLimit int
}

// RegisterAll adds every slash command to r behind the guild-only check and
// the command logger.
func RegisterAll(r *cmd.Registry, d Deps) error {
	mws := []cmd.Middleware{WithGuildOnly(), WithCommandLogger(d.Log)}
	commands := []cmd.Command{
		&SayCommand{Speech: d.Speech, Voice: d.Voice, Limits: d.Limits, Log: d.Log},
		&LeaveCommand{Speech: d.Speech},
		&VoiceStatusCommand{Speech: d.Speech, JobLimit: d.JobLimit},
	}
	for _, c := range commands {
		if err := r.Register(c, mws...); err != nil {
			return err
		}
	}
	return nil
}
