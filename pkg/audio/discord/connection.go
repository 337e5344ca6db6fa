package discord

import (
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/currybot/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

// outputChannelBuffer holds about one second of 20 ms frames.
const outputChannelBuffer = 50

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. Outgoing PCM frames are encoded to Opus and
// handed to discordgo, which paces transmission.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc        *discordgo.VoiceConnection
	channelID string

	output chan audio.AudioFrame

	// flush asks the send loop to drop its partial-frame buffer.
	flush chan struct{}

	done      chan struct{}
	closeOnce sync.Once

	// disconnectVC is called during Disconnect to tear down the voice connection.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice channel
// and starts the send loop.
func newConnection(vc *discordgo.VoiceConnection, channelID string) *Connection {
	c := &Connection{
		vc:           vc,
		channelID:    channelID,
		output:       make(chan audio.AudioFrame, outputChannelBuffer),
		flush:        make(chan struct{}, 1),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}
	go c.sendLoop()
	return c
}

// ChannelID returns the joined voice channel.
func (c *Connection) ChannelID() string { return c.channelID }

// OutputStream returns the write-only channel for clip audio.
func (c *Connection) OutputStream() chan<- audio.AudioFrame {
	return c.output
}

// Flush drops queued frames that have not been encoded yet.
func (c *Connection) Flush() {
	for {
		select {
		case <-c.output:
		default:
			select {
			case c.flush <- struct{}{}:
			default:
			}
			return
		}
	}
}

// Disconnect leaves the voice channel and stops the send loop. It is safe to
// call more than once; subsequent calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

// sendLoop reads PCM frames from the output channel, cuts them into exact
// Opus frame-sized chunks, encodes them, and sends the packets via the
// Discord voice connection. Speaking is signalled while audio flows and
// cleared once the queue runs dry.
func (c *Connection) sendLoop() {
	enc, err := newOpusEncoder()
	if err != nil {
		slog.Error("discord: failed to create opus encoder", "err", err)
		return
	}

	speaking := false
	defer func() {
		if speaking {
			c.setSpeaking(false)
		}
	}()

	var buf []byte

	for {
		// Idle: nothing queued, release the speaking indicator.
		if speaking && len(c.output) == 0 {
			c.setSpeaking(false)
			speaking = false
		}

		select {
		case <-c.done:
			return
		case <-c.flush:
			buf = buf[:0]
		case frame := <-c.output:
			if frame.SampleRate != opusSampleRate || frame.Channels != opusChannels {
				slog.Warn("discord: dropping frame in unsupported format",
					"sample_rate", frame.SampleRate, "channels", frame.Channels)
				continue
			}
			if !speaking {
				c.setSpeaking(true)
				speaking = true
			}

			buf = append(buf, frame.Data...)

			for len(buf) >= opusFrameBytes {
				packet, eErr := enc.encode(buf[:opusFrameBytes])
				buf = buf[opusFrameBytes:]
				if eErr != nil {
					slog.Warn("discord: opus encode error", "err", eErr)
					continue
				}

				select {
				case c.vc.OpusSend <- packet:
				case <-c.done:
					return
				}
			}
		}
	}
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(b bool) {
	if err := c.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "err", err)
	}
}
