package discord

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wavHeader(channels, rate, bits int) []byte {
	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(rate))
	binary.LittleEndian.PutUint16(h[34:36], uint16(bits))
	copy(h[36:40], "data")
	return h
}

func samples(vals ...int16) []byte {
	out := make([]byte, 0, len(vals)*2)
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint16(out, uint16(v))
	}
	return out
}

func TestPCMReaderUpmixesMonoWav(t *testing.T) {
	data := append(wavHeader(1, 48000, 16), samples(100, -200, 300)...)
	p, err := newPCMReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1, p.channels)

	frame := make([]int16, frameSize*outChannels)
	require.NoError(t, p.Next(frame))
	assert.Equal(t, []int16{100, 100, -200, -200, 300, 300, 0, 0}, frame[:8])
	assert.Equal(t, int16(0), frame[len(frame)-1], "short frame is padded with silence")

	assert.ErrorIs(t, p.Next(frame), io.EOF)
}

func TestPCMReaderStereoFullFrames(t *testing.T) {
	pcm := make([]int16, frameSize*2*2+4)
	for i := range pcm {
		pcm[i] = int16(i)
	}
	data := append(wavHeader(2, 48000, 16), samples(pcm...)...)
	p, err := newPCMReader(bytes.NewReader(data))
	require.NoError(t, err)

	frame := make([]int16, frameSize*outChannels)
	var frames int
	for {
		err := p.Next(frame)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if frames == 1 {
			assert.Equal(t, int16(frameSize*2), frame[0])
		}
		frames++
	}
	assert.Equal(t, 3, frames)
	assert.Equal(t, []int16{int16(frameSize * 4), int16(frameSize*4 + 1)}, frame[:2])
}

func TestPCMReaderRawInputIsMono(t *testing.T) {
	p, err := newPCMReader(bytes.NewReader(samples(7, 8)))
	require.NoError(t, err)

	frame := make([]int16, frameSize*outChannels)
	require.NoError(t, p.Next(frame))
	assert.Equal(t, []int16{7, 7, 8, 8}, frame[:4])
}

func TestPCMReaderRejectsUnsupportedFormats(t *testing.T) {
	_, err := newPCMReader(bytes.NewReader(wavHeader(1, 24000, 16)))
	assert.ErrorContains(t, err, "sample rate")

	_, err = newPCMReader(bytes.NewReader(wavHeader(1, 48000, 8)))
	assert.ErrorContains(t, err, "sample size")

	_, err = newPCMReader(bytes.NewReader(wavHeader(6, 48000, 16)))
	assert.ErrorContains(t, err, "channel count")
}

func TestPCMReaderEmpty(t *testing.T) {
	p, err := newPCMReader(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.ErrorIs(t, p.Next(make([]int16, frameSize*outChannels)), io.EOF)
}
