package discord

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	sampleRate    = 48000
	frameSize     = 960 // 20ms at 48kHz
	outChannels   = 2
	maxOpusBytes  = 4000
	wavHeaderSize = 44
)

// pcmReader cuts 16-bit little-endian PCM into stereo opus-sized frames. A
// leading canonical WAV header is parsed and skipped; raw input is taken as
// mono at 48kHz, which is what the synthesis backend produces.
type pcmReader struct {
	r        *bufio.Reader
	channels int
	buf      []byte
}

func newPCMReader(r io.Reader) (*pcmReader, error) {
	br := bufio.NewReader(r)
	channels := 1

	head, err := br.Peek(wavHeaderSize)
	if err == nil && string(head[0:4]) == "RIFF" && string(head[8:12]) == "WAVE" {
		channels = int(binary.LittleEndian.Uint16(head[22:24]))
		rate := int(binary.LittleEndian.Uint32(head[24:28]))
		bits := int(binary.LittleEndian.Uint16(head[34:36]))
		switch {
		case rate != sampleRate:
			return nil, fmt.Errorf("unsupported sample rate %d, want %d", rate, sampleRate)
		case bits != 16:
			return nil, fmt.Errorf("unsupported sample size %d bits, want 16", bits)
		case channels != 1 && channels != 2:
			return nil, fmt.Errorf("unsupported channel count %d", channels)
		}
		if _, err := br.Discard(wavHeaderSize); err != nil {
			return nil, fmt.Errorf("failed to skip wav header: %w", err)
		}
	}

	return &pcmReader{
		r:        br,
		channels: channels,
		buf:      make([]byte, frameSize*channels*2),
	}, nil
}

// Next fills frame with frameSize interleaved stereo samples. A short final
// frame is padded with silence. It returns io.EOF once the input is drained.
func (p *pcmReader) Next(frame []int16) error {
	n, err := io.ReadFull(p.r, p.buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return io.EOF
		}
		return err
	}
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}

	clear(frame)
	samples := n / 2
	for i := 0; i < samples; i++ {
		s := int16(binary.LittleEndian.Uint16(p.buf[i*2 : i*2+2]))
		if p.channels == 2 {
			frame[i] = s
			continue
		}
		frame[i*2] = s
		frame[i*2+1] = s
	}
	return nil
}
