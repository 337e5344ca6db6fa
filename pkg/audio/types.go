package audio

import (
	"sync/atomic"
	"time"
)

// PCM format sent to voice connections.
const (
	SampleRate = 48000
	Channels   = 2

	// FrameDuration is the length of one transmitted frame.
	FrameDuration = 20 * time.Millisecond

	// FrameBytes is the size of one frame of 16-bit PCM at [SampleRate] and
	// [Channels]: 960 samples per channel × 2 channels × 2 bytes.
	FrameBytes = SampleRate / 1000 * int(FrameDuration/time.Millisecond) * Channels * 2
)

// AudioFrame represents a single frame of audio data flowing to a voice
// connection.
type AudioFrame struct {
	// PCM audio data, signed 16-bit little-endian, interleaved.
	Data []byte

	// SampleRate in Hz (48000 for Discord Opus).
	SampleRate int

	// Channels: 2 for stereo (Discord output).
	Channels int

	// Timestamp marks the frame's position relative to the start of its clip.
	Timestamp time.Duration
}

// Stream is a clip being decoded. Frames is closed when the clip ends.
type Stream struct {
	// Frames delivers the decoded audio in order.
	Frames <-chan AudioFrame

	// streamErr stores the error that caused Frames to close early.
	// Access via Err and SetErr.
	streamErr atomic.Pointer[error]
}

// NewStream wraps frames in a [Stream].
func NewStream(frames <-chan AudioFrame) *Stream {
	return &Stream{Frames: frames}
}

// Err returns the error that ended the stream early, or nil after a clean
// end. Only meaningful once Frames is closed.
func (s *Stream) Err() error {
	if p := s.streamErr.Load(); p != nil {
		return *p
	}
	return nil
}

// SetErr records a mid-stream error. The producer should call it before
// closing Frames.
func (s *Stream) SetErr(err error) {
	s.streamErr.Store(&err)
}
