package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"layeh.com/gopus"

	"github.com/keshon/ttsbot/internal/logging"
	"github.com/keshon/ttsbot/internal/voice"
)

var (
	errConnClosed  = errors.New("voice connection closed")
	errSendStalled = errors.New("voice connection stopped accepting audio")
)

const (
	readyPollInterval = 250 * time.Millisecond
	sendTimeout       = 2 * time.Second
)

// VoiceTransport joins Discord voice channels for the voice manager.
type VoiceTransport struct {
	dg  *discordgo.Session
	log zerolog.Logger

	mu    sync.Mutex
	conns map[string]*voiceConn
}

// NewVoiceTransport returns a transport bound to dg.
func NewVoiceTransport(dg *discordgo.Session) *VoiceTransport {
	return &VoiceTransport{
		dg:    dg,
		log:   logging.Component("voice-transport"),
		conns: make(map[string]*voiceConn),
	}
}

// Connect implements voice.Transport. A live connection already sitting in
// channelID is returned as is.
func (t *VoiceTransport) Connect(ctx context.Context, guildID, channelID string) (voice.Connection, error) {
	t.mu.Lock()
	if c, ok := t.conns[guildID]; ok && c.ChannelID() == channelID && c.Ready() {
		t.mu.Unlock()
		return c, nil
	}
	t.mu.Unlock()

	if err := t.checkVoicePermissions(channelID); err != nil {
		return nil, err
	}

	type joined struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	done := make(chan joined, 1)
	go func() {
		vc, err := t.dg.ChannelVoiceJoin(guildID, channelID, false, true)
		done <- joined{vc, err}
	}()

	var vc *discordgo.VoiceConnection
	select {
	case <-ctx.Done():
		go func() {
			if j := <-done; j.vc != nil {
				_ = j.vc.Disconnect()
			}
		}()
		return nil, ctx.Err()
	case j := <-done:
		if j.err != nil {
			return nil, fmt.Errorf("failed to join voice channel %s: %w", channelID, j.err)
		}
		vc = j.vc
	}

	if err := waitReady(ctx, vc); err != nil {
		_ = vc.Disconnect()
		return nil, err
	}

	c := &voiceConn{
		t:       t,
		guildID: guildID,
		vc:      vc,
		events:  make(chan voice.LinkEvent, 4),
		stop:    make(chan struct{}),
	}
	c.channelID.Store(channelID)

	t.mu.Lock()
	old := t.conns[guildID]
	t.conns[guildID] = c
	t.mu.Unlock()
	if old != nil {
		old.release()
	}

	go c.watch()
	t.log.Info().Str("guild_id", guildID).Str("channel_id", channelID).Msg("Joined voice channel")
	return c, nil
}

// VoiceStateChanged feeds the bot's own voice state updates to the
// connection of that guild. An empty channelID means the bot was removed
// from voice.
func (t *VoiceTransport) VoiceStateChanged(guildID, channelID string) {
	t.mu.Lock()
	c, ok := t.conns[guildID]
	t.mu.Unlock()
	if !ok {
		return
	}
	if channelID == "" {
		c.lost.Store(true)
		return
	}
	c.channelID.Store(channelID)
	c.lost.Store(false)
}

func (t *VoiceTransport) remove(c *voiceConn) {
	t.mu.Lock()
	if t.conns[c.guildID] == c {
		delete(t.conns, c.guildID)
	}
	t.mu.Unlock()
}

func waitReady(ctx context.Context, vc *discordgo.VoiceConnection) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !vcReady(vc) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func vcReady(vc *discordgo.VoiceConnection) bool {
	vc.RLock()
	defer vc.RUnlock()
	return vc.Ready
}

// voiceConn implements voice.Connection over a discordgo voice connection.
type voiceConn struct {
	t         *VoiceTransport
	guildID   string
	channelID atomic.Value // string
	vc        *discordgo.VoiceConnection
	lost      atomic.Bool
	poll      time.Duration

	playMu sync.Mutex

	events    chan voice.LinkEvent
	stop      chan struct{}
	closeOnce sync.Once
}

func (c *voiceConn) ChannelID() string {
	id, _ := c.channelID.Load().(string)
	return id
}

func (c *voiceConn) Ready() bool {
	return !c.lost.Load() && vcReady(c.vc)
}

func (c *voiceConn) Events() <-chan voice.LinkEvent { return c.events }

// Play encodes 48kHz 16-bit PCM to opus and streams it until the audio ends,
// ctx is cancelled or the link stalls.
func (c *voiceConn) Play(ctx context.Context, audio io.Reader) error {
	c.playMu.Lock()
	defer c.playMu.Unlock()

	pcm, err := newPCMReader(audio)
	if err != nil {
		return err
	}
	enc, err := gopus.NewEncoder(sampleRate, outChannels, gopus.Audio)
	if err != nil {
		return fmt.Errorf("failed to create opus encoder: %w", err)
	}

	if err := c.vc.Speaking(true); err != nil {
		c.t.log.Warn().Err(err).Str("guild_id", c.guildID).Msg("Failed to set speaking state")
	}
	defer func() { _ = c.vc.Speaking(false) }()

	frame := make([]int16, frameSize*outChannels)
	stall := time.NewTimer(sendTimeout)
	defer stall.Stop()

	for {
		if err := pcm.Next(frame); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read audio: %w", err)
		}

		packet, err := enc.Encode(frame, frameSize, maxOpusBytes)
		if err != nil {
			return fmt.Errorf("failed to encode opus frame: %w", err)
		}

		stall.Reset(sendTimeout)
		select {
		case c.vc.OpusSend <- packet:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return errConnClosed
		case <-stall.C:
			return errSendStalled
		}
	}
}

// Disconnect leaves the channel. Events is closed once the watcher stops.
func (c *voiceConn) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		c.t.remove(c)
		err = c.vc.Disconnect()
		c.t.log.Info().Str("guild_id", c.guildID).Msg("Left voice channel")
	})
	return err
}

// release stops watching without touching the underlying voice connection,
// which discordgo shares with the replacement connection.
func (c *voiceConn) release() {
	c.closeOnce.Do(func() { close(c.stop) })
}

// watch polls readiness and the current channel and reports changes as link
// events. A move is reported before the restore that may come with it.
func (c *voiceConn) watch() {
	defer close(c.events)

	poll := c.poll
	if poll <= 0 {
		poll = readyPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	ready, channel := true, c.ChannelID()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}

		var pending []voice.LinkEvent
		if ch := c.ChannelID(); ch != channel {
			channel = ch
			pending = append(pending, voice.LinkMoved)
		}
		if now := c.Ready(); now != ready {
			ready = now
			if now {
				pending = append(pending, voice.LinkRestored)
			} else {
				pending = append(pending, voice.LinkLost)
			}
		}

		for _, ev := range pending {
			c.t.log.Debug().Str("guild_id", c.guildID).Str("channel_id", channel).Stringer("event", ev).Msg("Voice link changed")
			select {
			case c.events <- ev:
			case <-c.stop:
				return
			}
		}
	}
}
