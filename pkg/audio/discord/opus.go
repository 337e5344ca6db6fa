package discord

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/currybot/pkg/audio"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	opusSampleRate = audio.SampleRate
	opusChannels   = audio.Channels

	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate / 50 // 960

	// opusFrameBytes is the exact PCM input size for one Opus frame.
	opusFrameBytes = audio.FrameBytes

	// maxOpusPacket bounds the encoder output buffer.
	maxOpusPacket = 4000
)

// opusEncoder wraps a gopus Opus encoder for the output stream.
type opusEncoder struct {
	enc *gopus.Encoder
}

// newOpusEncoder creates a new Opus encoder configured for Discord audio.
func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encode encodes one frame of interleaved little-endian PCM into an Opus packet.
func (e *opusEncoder) encode(pcmBytes []byte) ([]byte, error) {
	if len(pcmBytes) != opusFrameBytes {
		return nil, fmt.Errorf("discord: opus encode: got %d bytes, want %d", len(pcmBytes), opusFrameBytes)
	}
	packet, err := e.enc.Encode(bytesToInt16s(pcmBytes), opusFrameSize, maxOpusPacket)
	if err != nil {
		return nil, fmt.Errorf("discord: opus encode: %w", err)
	}
	return packet, nil
}

// bytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
