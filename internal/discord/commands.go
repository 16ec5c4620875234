package discord

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// commandAPI is the part of *discordgo.Session used to manage guild commands.
type commandAPI interface {
	ApplicationCommands(appID, guildID string, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error
}

// commandSync keeps each guild's slash commands in line with the local
// definitions: obsolete commands are deleted, changed ones re-created.
type commandSync struct {
	api   commandAPI
	log   zerolog.Logger
	pause time.Duration

	mu     sync.Mutex
	synced map[string]string // guildID -> hash of the definition set last pushed
}

func newCommandSync(api commandAPI, log zerolog.Logger) *commandSync {
	return &commandSync{
		api:    api,
		log:    log,
		pause:  25 * time.Millisecond,
		synced: make(map[string]string),
	}
}

// Sync registers defs for one guild. Guilds already synced with the same
// definitions are skipped without calling Discord.
func (c *commandSync) Sync(appID, guildID string, defs []*discordgo.ApplicationCommand) error {
	setHash := hashCommandSet(defs)
	c.mu.Lock()
	if c.synced[guildID] == setHash {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	remote, err := c.api.ApplicationCommands(appID, guildID)
	if err != nil {
		return fmt.Errorf("failed to list commands for guild %s: %w", guildID, err)
	}
	remoteByName := make(map[string]*discordgo.ApplicationCommand, len(remote))
	for _, rc := range remote {
		remoteByName[rc.Name] = rc
	}

	local := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		local[d.Name] = struct{}{}
	}

	var failed int
	for name, rc := range remoteByName {
		if _, ok := local[name]; ok {
			continue
		}
		c.log.Info().Str("guild_id", guildID).Str("command", name).Msg("Deleting obsolete command")
		if err := c.api.ApplicationCommandDelete(appID, guildID, rc.ID); err != nil {
			c.log.Error().Err(err).Str("guild_id", guildID).Str("command", name).Msg("Failed to delete command")
			failed++
		}
	}

	for _, d := range defs {
		if rc, ok := remoteByName[d.Name]; ok && hashCommand(rc) == hashCommand(d) {
			continue
		}
		if _, err := c.api.ApplicationCommandCreate(appID, guildID, d); err != nil {
			c.log.Error().Err(err).Str("guild_id", guildID).Str("command", d.Name).Msg("Failed to register command")
			failed++
		} else {
			c.log.Info().Str("guild_id", guildID).Str("command", d.Name).Msg("Registered command")
		}
		time.Sleep(c.pause) // stay under Discord's rate limit
	}

	if failed > 0 {
		return fmt.Errorf("%d command change(s) failed for guild %s", failed, guildID)
	}

	c.mu.Lock()
	c.synced[guildID] = setHash
	c.mu.Unlock()
	return nil
}

// Forget drops the cached state of a guild the bot left.
func (c *commandSync) Forget(guildID string) {
	c.mu.Lock()
	delete(c.synced, guildID)
	c.mu.Unlock()
}

// hashCommand returns a deterministic SHA-1 over a command's user-visible
// fields. IDs and versions assigned by Discord are ignored.
func hashCommand(cmd *discordgo.ApplicationCommand) string {
	stable := map[string]interface{}{
		"name":        cmd.Name,
		"description": cmd.Description,
		"type":        commandType(cmd.Type),
	}
	if len(cmd.Options) > 0 {
		stable["options"] = normalizeOptions(cmd.Options)
	}
	data, _ := json.Marshal(stable)
	return fmt.Sprintf("%x", sha1.Sum(data))
}

func hashCommandSet(defs []*discordgo.ApplicationCommand) string {
	hashes := make([]string, 0, len(defs))
	for _, d := range defs {
		hashes = append(hashes, hashCommand(d))
	}
	sort.Strings(hashes)
	return fmt.Sprintf("%x", sha1.Sum([]byte(strings.Join(hashes, ","))))
}

func commandType(t discordgo.ApplicationCommandType) discordgo.ApplicationCommandType {
	if t == 0 {
		return discordgo.ChatApplicationCommand
	}
	return t
}

func normalizeOptions(opts []*discordgo.ApplicationCommandOption) []map[string]interface{} {
	out := make([]map[string]interface{}, len(opts))
	for i, o := range opts {
		entry := map[string]interface{}{
			"name":        o.Name,
			"description": o.Description,
			"type":        o.Type,
			"required":    o.Required,
		}
		if o.MaxLength > 0 {
			entry["max_length"] = o.MaxLength
		}
		if o.MinValue != nil {
			entry["min_value"] = *o.MinValue
		}
		if o.MaxValue != 0 {
			entry["max_value"] = o.MaxValue
		}
		if len(o.Choices) > 0 {
			choices := make([]map[string]interface{}, len(o.Choices))
			for j, ch := range o.Choices {
				choices[j] = map[string]interface{}{"name": ch.Name, "value": ch.Value}
			}
			entry["choices"] = choices
		}
		if len(o.Options) > 0 {
			entry["options"] = normalizeOptions(o.Options)
		}
		out[i] = entry
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["name"].(string) < out[j]["name"].(string)
	})
	return out
}
