// Package audio defines the interfaces and types for voice channel playback
// within currybot.
//
// The abstractions are:
//
//   - [Platform] connects to a voice channel and returns a [Connection].
//   - [Connection] is an active session on that channel that accepts PCM
//     frames for transmission.
//   - [Decoder] turns a clip file into a [Stream] of PCM frames, optionally
//     paired with a [Prober] that reports the clip length up front.
//
// Implementations live in adapter packages (audio/discord, audio/ffmpeg).
// This package lives under pkg/ so other voice transports can implement
// [Platform] and [Connection].
package audio

import (
	"context"
	"time"
)

// Connection represents an active session on a voice channel.
//
// A Connection is obtained by calling [Platform.Connect] and remains valid
// until [Connection.Disconnect] is called.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// ChannelID returns the voice channel this connection is joined to.
	ChannelID() string

	// OutputStream returns the write-only channel for outgoing PCM.
	// The channel is buffered; writers must not block indefinitely and
	// should select on their own cancellation signal.
	//
	// The platform never closes this channel. Frames written after
	// Disconnect are dropped.
	OutputStream() chan<- AudioFrame

	// Flush discards frames that were queued on the output stream but not
	// yet transmitted. It is used when one clip replaces another.
	Flush()

	// Disconnect tears down the connection. It is safe to call Disconnect
	// more than once; subsequent calls are no-ops and return nil.
	Disconnect() error
}

// Platform is the entry point for a voice-channel provider.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins the voice channel identified by channelID and returns an
	// active [Connection]. ctx governs the connection attempt only.
	Connect(ctx context.Context, channelID string) (Connection, error)
}

// Decoder opens a clip and streams it as PCM frames in the format expected
// by [Connection.OutputStream] (48 kHz stereo, signed 16-bit little-endian).
type Decoder interface {
	// Decode starts decoding the clip at path. The returned stream's frame
	// channel is closed when the clip ends, decoding fails, or ctx is
	// cancelled. An error is returned only if decoding could not start.
	Decode(ctx context.Context, path string) (*Stream, error)
}

// Prober reports the playing time of a clip without decoding it.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}
