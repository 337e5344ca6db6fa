// Package ffmpeg decodes clip files into PCM frames by running the ffmpeg
// command-line tool, and reads clip durations with ffprobe.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/currybot/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Decoder = (*Decoder)(nil)
	_ audio.Prober  = (*Decoder)(nil)
)

// frameBuffer is how many decoded frames may wait for the consumer.
const frameBuffer = 16

// Decoder runs ffmpeg to transcode any clip ffmpeg understands into 48 kHz
// stereo s16le PCM.
type Decoder struct {
	ffmpegPath  string
	ffprobePath string
}

// Option configures a [Decoder].
type Option func(*Decoder)

// WithFFmpeg overrides the ffmpeg binary. The default is "ffmpeg" on PATH.
func WithFFmpeg(path string) Option {
	return func(d *Decoder) {
		if path != "" {
			d.ffmpegPath = path
		}
	}
}

// WithFFprobe overrides the ffprobe binary. The default is "ffprobe" on PATH.
func WithFFprobe(path string) Option {
	return func(d *Decoder) {
		if path != "" {
			d.ffprobePath = path
		}
	}
}

// New creates a Decoder.
func New(opts ...Option) *Decoder {
	d := &Decoder{ffmpegPath: "ffmpeg", ffprobePath: "ffprobe"}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// decodeArgs returns the ffmpeg arguments that write raw PCM for path to stdout.
func decodeArgs(path string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-i", path,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"pipe:1",
	}
}

// Decode starts ffmpeg for path and streams its output in 20 ms frames.
// Cancelling ctx kills the process and closes the frame channel.
func (d *Decoder) Decode(ctx context.Context, path string) (*audio.Stream, error) {
	cmd := exec.CommandContext(ctx, d.ffmpegPath, decodeArgs(path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start %q: %w", d.ffmpegPath, err)
	}

	frames := make(chan audio.AudioFrame, frameBuffer)
	stream := audio.NewStream(frames)

	go func() {
		defer close(frames)
		readErr := readFrames(ctx, stdout, frames)
		if readErr != nil {
			// Unblock ffmpeg if we stopped reading early.
			_, _ = io.Copy(io.Discard, stdout)
		}
		waitErr := cmd.Wait()

		switch {
		case ctx.Err() != nil:
			// Cancelled on purpose; the exit status is noise.
		case readErr != nil:
			stream.SetErr(readErr)
		case waitErr != nil:
			msg := strings.TrimSpace(stderr.String())
			slog.Warn("ffmpeg: decode failed", "path", path, "err", waitErr, "stderr", msg)
			stream.SetErr(fmt.Errorf("ffmpeg: decode %q: %w: %s", path, waitErr, msg))
		}
	}()

	return stream, nil
}

// readFrames cuts r into audio.FrameBytes chunks and sends them on out until
// EOF or cancellation. A trailing partial frame is zero-padded.
func readFrames(ctx context.Context, r io.Reader, out chan<- audio.AudioFrame) error {
	br := bufio.NewReaderSize(r, audio.FrameBytes*4)
	var ts time.Duration
	for {
		buf := make([]byte, audio.FrameBytes)
		n, err := io.ReadFull(br, buf)
		if n > 0 {
			frame := audio.AudioFrame{
				Data:       buf,
				SampleRate: audio.SampleRate,
				Channels:   audio.Channels,
				Timestamp:  ts,
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return ctx.Err()
			}
			ts += audio.FrameDuration
		}
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		case err != nil:
			return fmt.Errorf("ffmpeg: read output: %w", err)
		}
	}
}

// Duration asks ffprobe for the container duration of path.
func (d *Decoder) Duration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %q: %w", path, err)
	}
	return parseDuration(out)
}

// parseDuration converts ffprobe's seconds output (e.g. "3.480000") to a
// duration.
func parseDuration(out []byte) (time.Duration, error) {
	s := strings.TrimSpace(string(out))
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("ffprobe: duration unavailable")
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: parse duration %q: %w", s, err)
	}
	if secs < 0 {
		return 0, fmt.Errorf("ffprobe: negative duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
