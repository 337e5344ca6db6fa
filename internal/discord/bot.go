// Package discord provides the Discord front end for currybot. It owns the
// discordgo.Session lifecycle, turns gateway MessageCreate events into
// [dispatch.Message] values, and implements [dispatch.Chat] over the REST API.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/currybot/internal/dispatch"
	"github.com/MrWong99/currybot/pkg/audio"
	discordaudio "github.com/MrWong99/currybot/pkg/audio/discord"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the bot token without the "Bot " prefix.
	Token string

	// GuildID is the guild whose voice channels the bot joins.
	GuildID string
}

// Intents are the gateway intents the bot needs: guild text messages with
// their content, and voice states for the channel gate.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentMessageContent

// Bot owns the Discord gateway connection.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	platform  *discordaudio.Platform
	chat      *Chat
	guildID   string
	removers  []func()
	closeOnce sync.Once
}

// New creates a Bot and connects to Discord.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = Intents

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	b := &Bot{
		session:  session,
		platform: discordaudio.New(session, cfg.GuildID),
		chat:     NewChat(session, session.State),
		guildID:  cfg.GuildID,
	}
	slog.Info("discord session opened", "guild_id", cfg.GuildID)
	return b, nil
}

// Platform returns the audio.Platform for voice channel connections.
func (b *Bot) Platform() audio.Platform {
	return b.platform
}

// Chat returns the text channel API.
func (b *Bot) Chat() dispatch.Chat {
	return b.chat
}

// GuildID returns the target guild ID.
func (b *Bot) GuildID() string {
	return b.guildID
}

// OnMessage routes every MessageCreate event to handle. The handler runs on
// discordgo's event goroutine and must not block.
func (b *Bot) OnMessage(handle func(dispatch.Message) bool) {
	remove := b.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		msg, ok := messageFromEvent(m)
		if !ok {
			return
		}
		handle(msg)
	})
	b.mu.Lock()
	b.removers = append(b.removers, remove)
	b.mu.Unlock()
}

// Run blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Close removes event handlers and disconnects from Discord.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for _, remove := range b.removers {
			remove()
		}
		b.removers = nil

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}

// messageFromEvent converts a gateway event. Events without a message or an
// author are dropped.
func messageFromEvent(m *discordgo.MessageCreate) (dispatch.Message, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return dispatch.Message{}, false
	}
	return dispatch.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		AuthorID:  m.Author.ID,
		AuthorBot: m.Author.Bot,
		Content:   m.Content,
	}, true
}
