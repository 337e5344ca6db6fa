package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/currybot/pkg/audio"
)

// EndReason says why a stream stopped.
type EndReason int

const (
	// EndFinished: the clip played to the end.
	EndFinished EndReason = iota

	// EndStopped: replaced by another clip, or stopped by Stop or Leave.
	EndStopped

	// EndBackstop: the force-stop timer fired.
	EndBackstop

	// EndFailed: the decoder reported an error.
	EndFailed
)

// String returns the reason name.
func (r EndReason) String() string {
	switch r {
	case EndFinished:
		return "finished"
	case EndStopped:
		return "stopped"
	case EndBackstop:
		return "backstop"
	case EndFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StreamResult describes a stream that has fully stopped.
type StreamResult struct {
	ID      string
	Clip    Clip
	Reason  EndReason
	Elapsed time.Duration
	Err     error
}

// errBackstop is the cancellation cause set by the force-stop timer.
var errBackstop = errors.New("playback: backstop timer fired")

// stream is one live clip.
type stream struct {
	id     string
	clip   Clip
	limit  time.Duration
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu        sync.Mutex
	startedAt time.Time
	stopped   bool
	timer     *time.Timer
}

// newStream returns a stream whose backstop is armed for startLimit until
// the first frame, so a decoder that never delivers one is still
// force-stopped. From the first frame on the backstop is limit. A zero
// limit disables the backstop.
func newStream(id string, clip Clip, limit, startLimit time.Duration, cancel context.CancelCauseFunc) *stream {
	st := &stream{
		id:     id,
		clip:   clip,
		limit:  limit,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	st.mu.Lock()
	st.armLocked(startLimit)
	st.mu.Unlock()
	return st
}

// armLocked (re)starts the backstop timer. Callers must hold st.mu.
func (st *stream) armLocked(d time.Duration) {
	if st.timer != nil {
		st.timer.Stop()
	}
	if d > 0 {
		st.timer = time.AfterFunc(d, func() { st.cancel(errBackstop) })
	}
}

// disarm stops the backstop timer.
func (st *stream) disarm() {
	st.mu.Lock()
	if st.timer != nil {
		st.timer.Stop()
	}
	st.mu.Unlock()
}

// stop cancels the stream on behalf of the session.
func (st *stream) stop() {
	st.mu.Lock()
	st.stopped = true
	st.mu.Unlock()
	st.disarm()
	st.cancel(nil)
}

// markStarted runs when the first frame goes out. It resets the elapsed
// clock and restarts the backstop, so decoder startup time is not charged
// against the clip's length.
func (st *stream) markStarted() {
	st.mu.Lock()
	if st.startedAt.IsZero() {
		st.startedAt = time.Now()
		st.armLocked(st.limit)
	}
	st.mu.Unlock()
}

func (st *stream) elapsed() time.Duration {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.startedAt.IsZero() {
		return 0
	}
	return time.Since(st.startedAt)
}

// endReason maps a cancelled context to the reason it was cancelled.
func (st *stream) endReason(ctx context.Context) EndReason {
	st.mu.Lock()
	stopped := st.stopped
	st.mu.Unlock()
	if !stopped && errors.Is(context.Cause(ctx), errBackstop) {
		return EndBackstop
	}
	return EndStopped
}

// pump copies frames from src to out until the clip ends or ctx is done.
func (st *stream) pump(ctx context.Context, src *audio.Stream, out chan<- audio.AudioFrame) (EndReason, error) {
	for {
		select {
		case <-ctx.Done():
			return st.endReason(ctx), nil
		case f, ok := <-src.Frames:
			if !ok {
				if ctx.Err() != nil {
					return st.endReason(ctx), nil
				}
				if err := src.Err(); err != nil {
					return EndFailed, err
				}
				return EndFinished, nil
			}
			st.markStarted()
			select {
			case out <- f:
			case <-ctx.Done():
				return st.endReason(ctx), nil
			}
		}
	}
}
