package dispatch

import (
	"context"

	"github.com/MrWong99/currybot/internal/catalog"
	"github.com/MrWong99/currybot/internal/playback"
)

// Message is an inbound chat message.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	AuthorBot bool
	Content   string
}

// PostedMessage is a message read back from channel history.
type PostedMessage struct {
	ID        string
	AuthorBot bool

	// FirstMentionID is the first user mentioned, or "".
	FirstMentionID string
}

// Chat is the messaging front end. Implementations must be safe for
// concurrent use.
type Chat interface {
	// Reply posts content in channelID addressed to userID and returns the
	// IDs of the posted messages; long content may be split. Each posted
	// message's first mention must be userID.
	Reply(ctx context.Context, channelID, userID, content string) ([]string, error)

	// Send posts content in channelID.
	Send(ctx context.Context, channelID, content string) error

	// Delete removes a message.
	Delete(ctx context.Context, channelID, messageID string) error

	// History returns up to limit recent messages, newest first.
	History(ctx context.Context, channelID string, limit int) ([]PostedMessage, error)

	// VoiceChannel returns the voice channel userID is in, or "".
	VoiceChannel(ctx context.Context, guildID, userID string) (string, error)
}

// Player is the playback session as seen by the coordinator.
// [*playback.Session] implements it.
type Player interface {
	Join(ctx context.Context, channelID string) error
	Dispatch(ctx context.Context, clip playback.Clip) error
	Stop()
	Leave() error
	State() playback.State
	ChannelID() string
}

// Catalogs supplies the current catalog snapshot. [*catalog.Store]
// implements it.
type Catalogs interface {
	Current() *catalog.Catalog
}

var (
	_ Player   = (*playback.Session)(nil)
	_ Catalogs = (*catalog.Store)(nil)
)
