package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/currybot/internal/dispatch"
)

// maxMessageLen is Discord's content limit for one message.
const maxMessageLen = 2000

// Messenger is the subset of [*discordgo.Session] used to post, read and
// delete channel messages.
type Messenger interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// VoiceStates looks up cached voice states. [*discordgo.State] implements it.
type VoiceStates interface {
	VoiceState(guildID, userID string) (*discordgo.VoiceState, error)
}

// Chat implements [dispatch.Chat] on top of the Discord REST API and the
// gateway state cache.
type Chat struct {
	api    Messenger
	voices VoiceStates
}

var _ dispatch.Chat = (*Chat)(nil)

// NewChat creates a Chat.
func NewChat(api Messenger, voices VoiceStates) *Chat {
	return &Chat{api: api, voices: voices}
}

// Reply posts content as a reply mentioning userID. Content longer than one
// message is split on line boundaries and every part carries the mention.
func (c *Chat) Reply(ctx context.Context, channelID, userID, content string) ([]string, error) {
	parts := splitMessage(fmt.Sprintf("<@%s>, ", userID), content, maxMessageLen)
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		m, err := c.api.ChannelMessageSend(channelID, p, discordgo.WithContext(ctx))
		if err != nil {
			return ids, fmt.Errorf("discord: send reply: %w", err)
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Send posts content, split like [Chat.Reply] but without a mention.
func (c *Chat) Send(ctx context.Context, channelID, content string) error {
	for _, p := range splitMessage("", content, maxMessageLen) {
		if _, err := c.api.ChannelMessageSend(channelID, p, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord: send message: %w", err)
		}
	}
	return nil
}

// Delete removes a message.
func (c *Chat) Delete(ctx context.Context, channelID, messageID string) error {
	if err := c.api.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: delete message %s: %w", messageID, err)
	}
	return nil
}

// History returns up to limit recent messages, newest first.
func (c *Chat) History(ctx context.Context, channelID string, limit int) ([]dispatch.PostedMessage, error) {
	msgs, err := c.api.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: read channel history: %w", err)
	}
	out := make([]dispatch.PostedMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		pm := dispatch.PostedMessage{ID: m.ID}
		if m.Author != nil {
			pm.AuthorBot = m.Author.Bot
		}
		if len(m.Mentions) > 0 && m.Mentions[0] != nil {
			pm.FirstMentionID = m.Mentions[0].ID
		}
		out = append(out, pm)
	}
	return out, nil
}

// VoiceChannel returns the voice channel userID is connected to in guildID,
// or "" when the user is in none.
func (c *Chat) VoiceChannel(_ context.Context, guildID, userID string) (string, error) {
	vs, err := c.voices.VoiceState(guildID, userID)
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("discord: voice state: %w", err)
	}
	if vs == nil {
		return "", nil
	}
	return vs.ChannelID, nil
}

// splitMessage prefixes content and cuts it into parts of at most limit
// bytes. Cuts prefer line breaks; a single over-long line is cut at a rune
// boundary. Every part starts with prefix.
func splitMessage(prefix, content string, limit int) []string {
	room := limit - len(prefix)
	if len(content) <= room {
		return []string{prefix + content}
	}

	var parts []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, prefix+strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
		}
	}
	for line := range strings.Lines(content) {
		if cur.Len()+len(line) <= room {
			cur.WriteString(line)
			continue
		}
		flush()
		for len(line) > room {
			cut := room
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			parts = append(parts, prefix+line[:cut])
			line = line[cut:]
		}
		cur.WriteString(line)
	}
	flush()
	return parts
}
