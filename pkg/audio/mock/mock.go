// Package mock provides in-memory mock implementations of the [audio.Platform],
// [audio.Connection], [audio.Decoder] and [audio.Prober] interfaces for use in
// unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	conn := mock.NewConnection("voice-1")
//	platform := &mock.Platform{ConnectResult: conn}
//	dec := &mock.Decoder{Frames: 3}
//	got, err := platform.Connect(ctx, "voice-1")
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/currybot/pkg/audio"
)

// ─── Connection ───────────────────────────────────────────────────────────────

// Connection is a mock implementation of [audio.Connection]. Frames written to
// the output stream are collected and available via [Connection.Frames].
type Connection struct {
	mu sync.Mutex

	// ID is returned by [Connection.ChannelID].
	ID string

	// DisconnectError is returned by the first [Connection.Disconnect] call.
	DisconnectError error

	// CallCountFlush records how many times Flush was called.
	CallCountFlush int

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	out          chan audio.AudioFrame
	frames       []audio.AudioFrame
	disconnected bool
	done         chan struct{}
}

// NewConnection returns a Connection joined to channelID whose output stream
// is consumed by a background collector until Disconnect.
func NewConnection(channelID string) *Connection {
	c := &Connection{
		ID:   channelID,
		out:  make(chan audio.AudioFrame, 4),
		done: make(chan struct{}),
	}
	go c.collect()
	return c
}

func (c *Connection) collect() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.out:
			c.mu.Lock()
			c.frames = append(c.frames, f)
			c.mu.Unlock()
		}
	}
}

// ChannelID implements [audio.Connection].
func (c *Connection) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ID
}

// OutputStream implements [audio.Connection].
func (c *Connection) OutputStream() chan<- audio.AudioFrame {
	return c.out
}

// Flush implements [audio.Connection].
func (c *Connection) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountFlush++
}

// Disconnect implements [audio.Connection]. Only the first call returns
// DisconnectError.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountDisconnect++
	if c.disconnected {
		return nil
	}
	c.disconnected = true
	close(c.done)
	return c.DisconnectError
}

// Frames returns a copy of every frame received so far.
func (c *Connection) Frames() []audio.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audio.AudioFrame, len(c.frames))
	copy(out, c.frames)
	return out
}

// Disconnected reports whether Disconnect has been called.
func (c *Connection) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult is returned by [Platform.Connect]. When nil, a fresh
	// [Connection] is created for every call.
	ConnectResult audio.Connection

	// ConnectError is returned by [Platform.Connect] when non-nil.
	ConnectError error

	// ConnectDelay makes Connect block for the given duration (or until ctx
	// is cancelled) before returning.
	ConnectDelay time.Duration

	// ConnectCalls records the channelID argument of every Connect call.
	ConnectCalls []string

	// Connections records every connection handed out.
	Connections []audio.Connection
}

// Connect implements [audio.Platform].
func (p *Platform) Connect(ctx context.Context, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, channelID)
	delay := p.ConnectDelay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectError != nil {
		return nil, p.ConnectError
	}
	conn := p.ConnectResult
	if conn == nil {
		conn = NewConnection(channelID)
	}
	p.Connections = append(p.Connections, conn)
	return conn, nil
}

// CallCountConnect returns how many times Connect was called.
func (p *Platform) CallCountConnect() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

// Decoder is a mock implementation of [audio.Decoder] and [audio.Prober]. Each
// Decode call produces Frames silent frames, paced by FrameInterval. With
// Frames < 0 the stream never ends on its own and only cancellation stops it.
type Decoder struct {
	mu sync.Mutex

	// Frames is the number of frames each stream produces.
	Frames int

	// FrameInterval is the pause between frames.
	FrameInterval time.Duration

	// StartDelay holds back the first frame, like a slow decoder startup.
	StartDelay time.Duration

	// DecodeError is returned by Decode when non-nil.
	DecodeError error

	// StreamError is recorded on each stream after its frames were sent.
	StreamError error

	// DurationResult and DurationError are returned by Duration.
	DurationResult time.Duration
	DurationError  error

	// DecodeCalls records the path argument of every Decode call.
	DecodeCalls []string

	active    int
	maxActive int
}

// Decode implements [audio.Decoder].
func (d *Decoder) Decode(ctx context.Context, path string) (*audio.Stream, error) {
	d.mu.Lock()
	d.DecodeCalls = append(d.DecodeCalls, path)
	if d.DecodeError != nil {
		err := d.DecodeError
		d.mu.Unlock()
		return nil, err
	}
	n, interval, delay, streamErr := d.Frames, d.FrameInterval, d.StartDelay, d.StreamError
	d.active++
	d.maxActive = max(d.maxActive, d.active)
	d.mu.Unlock()

	frames := make(chan audio.AudioFrame)
	s := audio.NewStream(frames)
	go func() {
		defer func() {
			d.mu.Lock()
			d.active--
			d.mu.Unlock()
			close(frames)
		}()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		for i := 0; n < 0 || i < n; i++ {
			if interval > 0 && i > 0 {
				select {
				case <-time.After(interval):
				case <-ctx.Done():
					return
				}
			}
			frame := audio.AudioFrame{
				Data:       make([]byte, audio.FrameBytes),
				SampleRate: audio.SampleRate,
				Channels:   audio.Channels,
				Timestamp:  time.Duration(i) * audio.FrameDuration,
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			s.SetErr(streamErr)
		}
	}()
	return s, nil
}

// Duration implements [audio.Prober].
func (d *Decoder) Duration(context.Context, string) (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.DurationResult, d.DurationError
}

// Active returns the number of streams currently producing frames.
func (d *Decoder) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// MaxActive returns the highest number of concurrently producing streams.
func (d *Decoder) MaxActive() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxActive
}

// CallCountDecode returns how many times Decode was called.
func (d *Decoder) CallCountDecode() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.DecodeCalls)
}
