package playback_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/currybot/internal/playback"
	audiomock "github.com/MrWong99/currybot/pkg/audio/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

// endRecorder collects StreamResult callbacks.
type endRecorder struct {
	mu      sync.Mutex
	results []playback.StreamResult
	ch      chan playback.StreamResult
}

func newEndRecorder() *endRecorder {
	return &endRecorder{ch: make(chan playback.StreamResult, 64)}
}

func (r *endRecorder) record(res playback.StreamResult) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
	r.ch <- res
}

func (r *endRecorder) wait(t *testing.T) playback.StreamResult {
	t.Helper()
	select {
	case res := <-r.ch:
		return res
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for stream end")
		return playback.StreamResult{}
	}
}

type fixture struct {
	platform *audiomock.Platform
	decoder  *audiomock.Decoder
	ends     *endRecorder
	session  *playback.Session
}

func newFixture(t *testing.T, dec *audiomock.Decoder, opts ...func(*playback.Config)) *fixture {
	t.Helper()
	f := &fixture{
		platform: &audiomock.Platform{},
		decoder:  dec,
		ends:     newEndRecorder(),
	}
	cfg := playback.Config{
		Platform:    f.platform,
		Decoder:     dec,
		MaxDuration: 10 * time.Second,
		OnStreamEnd: f.ends.record,
	}
	for _, o := range opts {
		o(&cfg)
	}
	f.session = playback.New(cfg)
	t.Cleanup(func() { _ = f.session.Leave() })
	return f
}

func (f *fixture) join(t *testing.T, channelID string) {
	t.Helper()
	if err := f.session.Join(context.Background(), channelID); err != nil {
		t.Fatalf("Join(%q): %v", channelID, err)
	}
}

func clip(name string) playback.Clip {
	return playback.Clip{Trigger: name, Path: "/clips/" + name + ".mp3"}
}

func waitState(t *testing.T, s *playback.Session, want playback.State) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for s.State() != want {
		select {
		case <-deadline:
			t.Fatalf("state = %s, want %s", s.State(), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// endless is a decoder whose streams only stop when cancelled.
func endless() *audiomock.Decoder {
	return &audiomock.Decoder{Frames: -1, FrameInterval: 5 * time.Millisecond}
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestSession_StartsDisconnected(t *testing.T) {
	t.Parallel()
	f := newFixture(t, endless())
	if got := f.session.State(); got != playback.Disconnected {
		t.Errorf("State() = %s, want disconnected", got)
	}
	if got := f.session.ChannelID(); got != "" {
		t.Errorf("ChannelID() = %q, want empty", got)
	}
}

func TestSession_DispatchWhileDisconnected(t *testing.T) {
	t.Parallel()
	f := newFixture(t, endless())

	err := f.session.Dispatch(context.Background(), clip("bruh"))
	if !errors.Is(err, playback.ErrNotConnected) {
		t.Fatalf("Dispatch error = %v, want ErrNotConnected", err)
	}
	if got := f.session.State(); got != playback.Disconnected {
		t.Errorf("State() = %s, want disconnected", got)
	}
	if f.decoder.CallCountDecode() != 0 {
		t.Error("decoder was called while disconnected")
	}
}

func TestSession_Join(t *testing.T) {
	t.Parallel()
	f := newFixture(t, endless())
	f.join(t, "voice-1")

	if got := f.session.State(); got != playback.Idle {
		t.Errorf("State() = %s, want idle", got)
	}
	if got := f.session.ChannelID(); got != "voice-1" {
		t.Errorf("ChannelID() = %q, want voice-1", got)
	}
}

func TestSession_JoinFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, endless())
	f.platform.ConnectError = errors.New("gateway unavailable")

	err := f.session.Join(context.Background(), "voice-1")
	if !errors.Is(err, playback.ErrTransport) {
		t.Fatalf("Join error = %v, want ErrTransport", err)
	}
	if got := f.session.State(); got != playback.Disconnected {
		t.Errorf("State() = %s, want disconnected", got)
	}
}

func TestSession_JoinWhileConnectedReconnects(t *testing.T) {
	t.Parallel()
	f := newFixture(t, endless())
	f.join(t, "voice-1")
	if err := f.session.Dispatch(context.Background(), clip("bruh")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	f.join(t, "voice-2")

	if len(f.platform.Connections) != 2 {
		t.Fatalf("connections = %d, want 2", len(f.platform.Connections))
	}
	first := f.platform.Connections[0].(*audiomock.Connection)
	if !first.Disconnected() {
		t.Error("first connection still open after rejoin")
	}
	if got := f.session.ChannelID(); got != "voice-2" {
		t.Errorf("ChannelID() = %q, want voice-2", got)
	}
	if got := f.session.State(); got != playback.Idle {
		t.Errorf("State() = %s, want idle", got)
	}
	if res := f.ends.wait(t); res.Reason != playback.EndStopped {
		t.Errorf("old stream reason = %s, want stopped", res.Reason)
	}
}

func TestSession_ConnectedChangesAreOrdered(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		level   int
		low     int
		high    int
		changes int
	)
	f := newFixture(t, endless(), func(c *playback.Config) {
		c.OnConnectedChange = func(up bool) {
			mu.Lock()
			defer mu.Unlock()
			changes++
			if up {
				level++
			} else {
				level--
			}
			low, high = min(low, level), max(high, level)
		}
	})

	// Join and leave commands from different users race each other.
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			if i%2 == 0 {
				_ = f.session.Join(context.Background(), "voice-1")
				return
			}
			_ = f.session.Leave()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if low < 0 || high > 1 {
		t.Errorf("connected level ranged %d..%d, want within 0..1", low, high)
	}
	want := 0
	if f.session.State().Connected() {
		want = 1
	}
	if level != want {
		t.Errorf("level = %d, want %d for state %s", level, want, f.session.State())
	}
	if changes == 0 {
		t.Error("no connection changes reported")
	}
}

func TestSession_ConnectedChangeOnRejoin(t *testing.T) {
	t.Parallel()
	var got []bool
	f := newFixture(t, endless(), func(c *playback.Config) {
		c.OnConnectedChange = func(up bool) { got = append(got, up) }
	})

	f.join(t, "voice-1")
	f.join(t, "voice-2")
	if err := f.session.Leave(); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if err := f.session.Leave(); err != nil {
		t.Fatalf("second Leave: %v", err)
	}

	want := []bool{true, false, true, false}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("changes = %v, want %v", got, want)
	}
}

func TestSession_StateIsReadableWhileConnecting(t *testing.T) {
	t.Parallel()
	f := newFixture(t, endless())
	f.platform.ConnectDelay = 200 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- f.session.Join(context.Background(), "voice-1") }()

	waitState(t, f.session, playback.Connecting)
	if err := <-done; err != nil {
		t.Fatalf("Join: %v", err)
	}
	if got := f.session.State(); got != playback.Idle {
		t.Errorf("State() = %s, want idle", got)
	}
}

func TestSession_DispatchPlaysToEnd(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &audiomock.Decoder{Frames: 5})
	f.join(t, "voice-1")

	if err := f.session.Dispatch(context.Background(), clip("bruh")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	res := f.ends.wait(t)
	if res.Reason != playback.EndFinished {
		t.Errorf("reason = %s, want finished", res.Reason)
	}
	if res.Clip.Trigger != "bruh" {
		t.Errorf("clip = %q, want bruh", res.Clip.Trigger)
	}
	if res.ID == "" {
		t.Error("stream id is empty")
	}
	waitState(t, f.session, playback.Idle)

	conn := f.platform.Connections[0].(*audiomock.Connection)
	deadline := time.After(2 * time.Second)
	for len(conn.Frames()) < 5 {
		select {
		case <-deadline:
			t.Fatalf("connection received %d frames, want 5", len(conn.Frames()))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSession_DispatchReplacesLiveStream(t *testing.T) {
	t.Parallel()
	f := newFixture(t, endless())
	f.join(t, "voice-1")
	ctx := context.Background()

	if err := f.session.Dispatch(ctx, clip("first")); err != nil {
		t.Fatalf("Dispatch first: %v", err)
	}
	if err := f.session.Dispatch(ctx, clip("second")); err != nil {
		t.Fatalf("Dispatch second: %v", err)
	}

	res := f.ends.wait(t)
	if res.Clip.Trigger != "first" || res.Reason != playback.EndStopped {
		t.Errorf("ended stream = %q (%s), want first (stopped)", res.Clip.Trigger, res.Reason)
	}
	info := f.session.Info()
	if info.State != playback.Playing || info.Clip.Trigger != "second" {
		t.Errorf("Info = %+v, want second playing", info)
	}
	if got := f.decoder.MaxActive(); got != 1 {
		t.Errorf("max concurrent streams = %d, want 1", got)
	}
	conn := f.platform.Connections[0].(*audiomock.Connection)
	if conn.CallCountFlush == 0 {
		t.Error("connection was not flushed when the stream was replaced")
	}
}

func TestSession_ConcurrentDispatchKeepsOneStream(t *testing.T) {
	t.Parallel()
	f := newFixture(t, endless())
	f.join(t, "voice-1")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.session.Dispatch(ctx, clip(string(rune('a'+i)))); err != nil {
				t.Errorf("Dispatch: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.decoder.MaxActive(); got > 1 {
		t.Errorf("max concurrent streams = %d, want at most 1", got)
	}
	if got := f.session.State(); got != playback.Playing {
		t.Errorf("State() = %s, want playing", got)
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, endless())

	// Stop while disconnected is a no-op.
	f.session.Stop()
	if got := f.session.State(); got != playback.Disconnected {
		t.Errorf("State() after Stop while disconnected = %s", got)
	}

	f.join(t, "voice-1")
	if err := f.session.Dispatch(context.Background(), clip("bruh")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	f.session.Stop()
	f.session.Stop()

	if got := f.session.State(); got != playback.Idle {
		t.Errorf("State() = %s, want idle", got)
	}
	if res := f.ends.wait(t); res.Reason != playback.EndStopped {
		t.Errorf("reason = %s, want stopped", res.Reason)
	}
	if f.decoder.Active() != 0 {
		t.Errorf("active streams after Stop = %d, want 0", f.decoder.Active())
	}
}

func TestSession_LeaveIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, endless())

	if err := f.session.Leave(); err != nil {
		t.Fatalf("Leave while disconnected: %v", err)
	}

	f.join(t, "voice-1")
	if err := f.session.Dispatch(context.Background(), clip("bruh")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	for i := range 3 {
		if err := f.session.Leave(); err != nil {
			t.Fatalf("Leave[%d]: %v", i, err)
		}
	}

	if got := f.session.State(); got != playback.Disconnected {
		t.Errorf("State() = %s, want disconnected", got)
	}
	conn := f.platform.Connections[0].(*audiomock.Connection)
	if conn.CallCountDisconnect != 1 {
		t.Errorf("Disconnect calls = %d, want 1", conn.CallCountDisconnect)
	}
	if f.decoder.Active() != 0 {
		t.Errorf("active streams after Leave = %d, want 0", f.decoder.Active())
	}
}

func TestSession_LeaveDisconnectErrorStillDisconnects(t *testing.T) {
	t.Parallel()
	f := newFixture(t, endless())
	conn := audiomock.NewConnection("voice-1")
	conn.DisconnectError = errors.New("socket closed")
	f.platform.ConnectResult = conn
	f.join(t, "voice-1")

	err := f.session.Leave()
	if !errors.Is(err, playback.ErrTransport) {
		t.Fatalf("Leave error = %v, want ErrTransport", err)
	}
	if got := f.session.State(); got != playback.Disconnected {
		t.Errorf("State() = %s, want disconnected", got)
	}
}

func TestSession_DecodeFailureStaysIdle(t *testing.T) {
	t.Parallel()
	dec := &audiomock.Decoder{DecodeError: errors.New("no such file")}
	f := newFixture(t, dec)
	f.join(t, "voice-1")

	err := f.session.Dispatch(context.Background(), clip("missing"))
	if !errors.Is(err, playback.ErrTransport) {
		t.Fatalf("Dispatch error = %v, want ErrTransport", err)
	}
	if got := f.session.State(); got != playback.Idle {
		t.Errorf("State() = %s, want idle", got)
	}
}

func TestSession_StreamErrorIsReported(t *testing.T) {
	t.Parallel()
	dec := &audiomock.Decoder{Frames: 2, StreamError: errors.New("corrupt frame")}
	f := newFixture(t, dec)
	f.join(t, "voice-1")

	if err := f.session.Dispatch(context.Background(), clip("broken")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	res := f.ends.wait(t)
	if res.Reason != playback.EndFailed || res.Err == nil {
		t.Errorf("result = %s / %v, want failed with error", res.Reason, res.Err)
	}
	waitState(t, f.session, playback.Idle)
}

func TestSession_BackstopWithoutDuration(t *testing.T) {
	t.Parallel()
	f := newFixture(t, endless(), func(c *playback.Config) {
		c.MaxDuration = 50 * time.Millisecond
	})
	f.join(t, "voice-1")

	if err := f.session.Dispatch(context.Background(), clip("stuck")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	res := f.ends.wait(t)
	if res.Reason != playback.EndBackstop {
		t.Errorf("reason = %s, want backstop", res.Reason)
	}
	waitState(t, f.session, playback.Idle)
}

func TestSession_BackstopUsesProbedDuration(t *testing.T) {
	t.Parallel()
	dec := endless()
	dec.DurationResult = 30 * time.Millisecond
	f := newFixture(t, dec, func(c *playback.Config) {
		c.Prober = dec
		c.MaxDuration = time.Hour
		c.EndMargin = 20 * time.Millisecond
	})
	f.join(t, "voice-1")

	start := time.Now()
	if err := f.session.Dispatch(context.Background(), clip("short")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	res := f.ends.wait(t)
	if res.Reason != playback.EndBackstop {
		t.Errorf("reason = %s, want backstop", res.Reason)
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Errorf("backstop took %s, want about 50ms", took)
	}
}

func TestSession_BackstopCountsFromFirstFrame(t *testing.T) {
	t.Parallel()
	// Startup takes longer than the whole limit. The clip itself fits.
	dec := &audiomock.Decoder{Frames: 4, FrameInterval: 5 * time.Millisecond, StartDelay: 300 * time.Millisecond}
	dec.DurationResult = 20 * time.Millisecond
	f := newFixture(t, dec, func(c *playback.Config) {
		c.Prober = dec
		c.EndMargin = 100 * time.Millisecond
	})
	f.join(t, "voice-1")

	if err := f.session.Dispatch(context.Background(), clip("slowstart")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	res := f.ends.wait(t)
	if res.Reason != playback.EndFinished {
		t.Errorf("reason = %s, want finished", res.Reason)
	}
	if res.Elapsed >= 300*time.Millisecond {
		t.Errorf("elapsed = %s includes decoder startup", res.Elapsed)
	}
}

func TestSession_BackstopStopsSilentDecoder(t *testing.T) {
	t.Parallel()
	dec := &audiomock.Decoder{Frames: 1, StartDelay: time.Hour}
	f := newFixture(t, dec, func(c *playback.Config) {
		c.MaxDuration = 40 * time.Millisecond
	})
	f.join(t, "voice-1")

	if err := f.session.Dispatch(context.Background(), clip("hung")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	res := f.ends.wait(t)
	if res.Reason != playback.EndBackstop {
		t.Errorf("reason = %s, want backstop", res.Reason)
	}
	if res.Elapsed != 0 {
		t.Errorf("elapsed = %s, want 0 for a stream that never started", res.Elapsed)
	}
}

func TestSession_ProbeFailureFallsBackToMaxDuration(t *testing.T) {
	t.Parallel()
	dec := endless()
	dec.DurationError = errors.New("ffprobe missing")
	f := newFixture(t, dec, func(c *playback.Config) {
		c.Prober = dec
		c.MaxDuration = 40 * time.Millisecond
	})
	f.join(t, "voice-1")

	if err := f.session.Dispatch(context.Background(), clip("x")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res := f.ends.wait(t); res.Reason != playback.EndBackstop {
		t.Errorf("reason = %s, want backstop", res.Reason)
	}
}

func TestSession_InfoTracksElapsed(t *testing.T) {
	t.Parallel()
	f := newFixture(t, endless())
	f.join(t, "voice-1")

	if err := f.session.Dispatch(context.Background(), clip("bruh")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	first := f.session.Info()
	if first.StreamID == "" || first.Elapsed <= 0 {
		t.Fatalf("Info = %+v, want stream id and positive elapsed", first)
	}

	// A new stream starts its own clock.
	if err := f.session.Dispatch(context.Background(), clip("oof")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	second := f.session.Info()
	if second.StreamID == first.StreamID {
		t.Error("replacement stream reused the stream id")
	}
	if second.Elapsed >= first.Elapsed {
		t.Errorf("elapsed not reset: %s >= %s", second.Elapsed, first.Elapsed)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := map[playback.State]string{
		playback.Disconnected: "disconnected",
		playback.Connecting:   "connecting",
		playback.Idle:         "idle",
		playback.Playing:      "playing",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
