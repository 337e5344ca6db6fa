// Package playback owns the bot's voice presence: one connection, at most
// one live clip stream, and the transitions between them.
//
// All transitions (Join, Dispatch, Stop, Leave) are serialized. State reads
// never wait behind a slow transition.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/currybot/pkg/audio"
)

// Sentinel errors. Transport failures wrap [ErrTransport] together with the
// underlying cause.
var (
	// ErrNotConnected is returned by Dispatch when there is no voice connection.
	ErrNotConnected = errors.New("playback: not connected to a voice channel")

	// ErrTransport wraps failures to join a channel or start a clip.
	ErrTransport = errors.New("playback: transport failure")
)

// State is the lifecycle state of a [Session].
type State int

const (
	// Disconnected: no voice connection.
	Disconnected State = iota

	// Connecting: a join is in progress.
	Connecting

	// Idle: connected, nothing playing.
	Idle

	// Playing: connected with one live stream.
	Playing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Connected reports whether s has a live voice connection.
func (s State) Connected() bool {
	return s == Idle || s == Playing
}

// Clip identifies the audio to play.
type Clip struct {
	// Trigger is the catalog key that selected the clip.
	Trigger string

	// Path is the file handed to the decoder.
	Path string
}

// Config holds the dependencies of a [Session].
type Config struct {
	// Platform joins voice channels. Required.
	Platform audio.Platform

	// Decoder opens clips. Required.
	Decoder audio.Decoder

	// Prober, when set, supplies clip lengths for the stop timer.
	Prober audio.Prober

	// MaxDuration force-stops a stream whose length is unknown. Zero
	// disables the timer for such streams.
	MaxDuration time.Duration

	// EndMargin is added to a probed length before force-stopping. Both
	// limits count from the first frame, not from Dispatch.
	EndMargin time.Duration

	// OnStreamEnd, when set, is called once for every stream that started,
	// after it has fully stopped. It must not call back into the Session
	// synchronously.
	OnStreamEnd func(StreamResult)

	// OnConnectedChange, when set, is called with true when a voice
	// connection comes up and false when it goes down. Calls happen inside
	// the transition that caused them, so they are ordered and never
	// duplicated. It must not call back into the Session.
	OnConnectedChange func(connected bool)
}

// Info is a point-in-time view of a [Session].
type Info struct {
	State     State
	ChannelID string

	// StreamID and Clip describe the live stream, if any.
	StreamID string
	Clip     Clip

	// Elapsed is how long the live stream has been delivering audio. It is
	// zero until the first frame goes out.
	Elapsed time.Duration
}

// Session is the single-writer playback state machine.
type Session struct {
	platform    audio.Platform
	decoder     audio.Decoder
	prober      audio.Prober
	maxDuration time.Duration
	endMargin   time.Duration
	onEnd       func(StreamResult)
	onConnected func(bool)

	// opMu serializes transitions.
	opMu sync.Mutex

	// mu guards the fields below and is never held across blocking calls.
	mu    sync.Mutex
	state State
	conn  audio.Connection
	cur   *stream
}

// New creates a disconnected Session.
func New(cfg Config) *Session {
	return &Session{
		platform:    cfg.Platform,
		decoder:     cfg.Decoder,
		prober:      cfg.Prober,
		maxDuration: cfg.MaxDuration,
		endMargin:   cfg.EndMargin,
		onEnd:       cfg.OnStreamEnd,
		onConnected: cfg.OnConnectedChange,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ChannelID returns the connected voice channel, or "" when disconnected.
func (s *Session) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.state.Connected() {
		return ""
	}
	return s.conn.ChannelID()
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{State: s.state}
	if s.conn != nil && s.state.Connected() {
		info.ChannelID = s.conn.ChannelID()
	}
	if s.cur != nil {
		info.StreamID = s.cur.id
		info.Clip = s.cur.clip
		info.Elapsed = s.cur.elapsed()
	}
	return info
}

// Join connects to channelID. An existing connection is torn down first, so
// joining while connected behaves like a reboot. On failure the session is
// left Disconnected.
func (s *Session) Join(ctx context.Context, channelID string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.State().Connected() {
		slog.Info("playback: rejoining", "channel_id", channelID)
		if err := s.leaveLocked(); err != nil {
			slog.Warn("playback: disconnect before rejoin failed", "err", err)
		}
	}

	s.setState(Connecting)
	conn, err := s.platform.Connect(ctx, channelID)
	if err != nil {
		s.setState(Disconnected)
		return fmt.Errorf("%w: join %q: %w", ErrTransport, channelID, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = Idle
	s.mu.Unlock()
	s.connectedChanged(true)

	slog.Info("playback: voice channel joined", "channel_id", channelID)
	return nil
}

// Dispatch plays clip, first stopping whatever is playing. It requires a
// connected session and returns [ErrNotConnected] otherwise. If the clip
// cannot be opened the session stays Idle.
func (s *Session) Dispatch(ctx context.Context, clip Clip) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	state, conn := s.state, s.conn
	s.mu.Unlock()
	if !state.Connected() || conn == nil {
		return ErrNotConnected
	}

	s.stopLocked()

	limit := s.streamLimit(ctx, clip.Path)
	streamCtx, cancel := context.WithCancelCause(context.Background())
	startLimit := limit
	if limit > 0 {
		startLimit = max(limit, s.maxDuration)
	}
	st := newStream(uuid.NewString(), clip, limit, startLimit, cancel)

	src, err := s.decoder.Decode(streamCtx, clip.Path)
	if err != nil {
		st.disarm()
		cancel(nil)
		return fmt.Errorf("%w: open %q: %w", ErrTransport, clip.Path, err)
	}

	s.mu.Lock()
	s.cur = st
	s.state = Playing
	s.mu.Unlock()

	slog.Debug("playback: stream started", "stream_id", st.id, "trigger", clip.Trigger, "limit", limit)
	go s.run(streamCtx, st, src, conn.OutputStream())
	return nil
}

// Stop ends the live stream, if any. It is idempotent.
func (s *Session) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.stopLocked()
}

// Leave stops the live stream and releases the voice connection. It is
// idempotent. The session ends Disconnected even if the transport reports
// an error while disconnecting.
func (s *Session) Leave() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.leaveLocked()
}

func (s *Session) leaveLocked() error {
	if s.State() == Disconnected {
		return nil
	}
	s.stopLocked()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.state = Disconnected
	s.mu.Unlock()
	s.connectedChanged(false)

	if conn == nil {
		return nil
	}
	if err := conn.Disconnect(); err != nil {
		return fmt.Errorf("%w: disconnect: %w", ErrTransport, err)
	}
	slog.Info("playback: voice channel left", "channel_id", conn.ChannelID())
	return nil
}

// stopLocked cancels the live stream and waits until it no longer writes to
// the connection. Callers must hold opMu.
func (s *Session) stopLocked() {
	s.mu.Lock()
	st, conn := s.cur, s.conn
	s.cur = nil
	if s.state == Playing {
		s.state = Idle
	}
	s.mu.Unlock()

	if st == nil {
		return
	}
	st.stop()
	<-st.done
	if conn != nil {
		conn.Flush()
	}
}

// streamLimit picks the force-stop delay for a clip.
func (s *Session) streamLimit(ctx context.Context, path string) time.Duration {
	if s.prober != nil {
		d, err := s.prober.Duration(ctx, path)
		if err == nil && d > 0 {
			return d + s.endMargin
		}
		if err != nil {
			slog.Debug("playback: duration probe failed", "path", path, "err", err)
		}
	}
	return s.maxDuration
}

// connectedChanged reports a connection transition. Callers must hold opMu.
func (s *Session) connectedChanged(up bool) {
	if s.onConnected != nil {
		s.onConnected(up)
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// run pumps frames for st and reports its end.
func (s *Session) run(ctx context.Context, st *stream, src *audio.Stream, out chan<- audio.AudioFrame) {
	reason, err := st.pump(ctx, src, out)
	st.disarm()
	st.cancel(nil)
	// Let the decoder notice cancellation and close its channel.
	audio.Drain(src.Frames)
	close(st.done)

	s.mu.Lock()
	if s.cur == st {
		s.cur = nil
		if s.state == Playing {
			s.state = Idle
		}
	}
	s.mu.Unlock()

	res := StreamResult{
		ID:      st.id,
		Clip:    st.clip,
		Reason:  reason,
		Elapsed: st.elapsed(),
		Err:     err,
	}
	switch {
	case err != nil:
		slog.Warn("playback: stream failed", "stream_id", st.id, "trigger", st.clip.Trigger, "err", err)
	case reason == EndBackstop:
		slog.Warn("playback: stream force-stopped", "stream_id", st.id, "trigger", st.clip.Trigger, "elapsed", res.Elapsed)
	default:
		slog.Debug("playback: stream ended", "stream_id", st.id, "reason", reason, "elapsed", res.Elapsed)
	}
	if s.onEnd != nil {
		s.onEnd(res)
	}
}
