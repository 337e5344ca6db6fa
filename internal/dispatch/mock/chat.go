// Package mock provides an in-memory [dispatch.Chat] for unit tests.
//
// Replies are appended to a simulated channel history so that reply cleanup
// can be observed through [Chat.History] and [Chat.Deleted].
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/currybot/internal/dispatch"
)

// Reply records one [Chat.Reply] call.
type Reply struct {
	IDs       []string
	ChannelID string
	UserID    string
	Content   string
}

// Sent records one [Chat.Send] call.
type Sent struct {
	ChannelID string
	Content   string
}

// Chat is a mock implementation of [dispatch.Chat]. Set the exported error
// fields to make the corresponding method fail.
type Chat struct {
	mu sync.Mutex

	// ReplyParts splits every reply into this many posted messages. Zero
	// means one.
	ReplyParts int

	// Voice maps user IDs to the voice channel they are in.
	Voice map[string]string

	VoiceError   error
	ReplyError   error
	SendError    error
	DeleteError  error
	HistoryError error

	// Posted is the simulated channel history, newest first.
	Posted []dispatch.PostedMessage

	replies []Reply
	sent    []Sent
	deleted []string
	nextID  int
}

var _ dispatch.Chat = (*Chat)(nil)

// SetVoice places userID in channelID. An empty channelID removes the user
// from voice.
func (c *Chat) SetVoice(userID, channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Voice == nil {
		c.Voice = make(map[string]string)
	}
	if channelID == "" {
		delete(c.Voice, userID)
		return
	}
	c.Voice[userID] = channelID
}

// Reply implements [dispatch.Chat].
func (c *Chat) Reply(_ context.Context, channelID, userID, content string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReplyError != nil {
		return nil, c.ReplyError
	}
	ids := make([]string, max(c.ReplyParts, 1))
	for i := range ids {
		c.nextID++
		ids[i] = fmt.Sprintf("reply-%d", c.nextID)
		c.Posted = append([]dispatch.PostedMessage{{ID: ids[i], AuthorBot: true, FirstMentionID: userID}}, c.Posted...)
	}
	c.replies = append(c.replies, Reply{IDs: ids, ChannelID: channelID, UserID: userID, Content: content})
	return ids, nil
}

// Send implements [dispatch.Chat].
func (c *Chat) Send(_ context.Context, channelID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendError != nil {
		return c.SendError
	}
	c.sent = append(c.sent, Sent{ChannelID: channelID, Content: content})
	return nil
}

// Delete implements [dispatch.Chat].
func (c *Chat) Delete(_ context.Context, _, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeleteError != nil {
		return c.DeleteError
	}
	c.deleted = append(c.deleted, messageID)
	for i, m := range c.Posted {
		if m.ID == messageID {
			c.Posted = append(c.Posted[:i:i], c.Posted[i+1:]...)
			break
		}
	}
	return nil
}

// History implements [dispatch.Chat].
func (c *Chat) History(_ context.Context, _ string, limit int) ([]dispatch.PostedMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.HistoryError != nil {
		return nil, c.HistoryError
	}
	n := min(limit, len(c.Posted))
	out := make([]dispatch.PostedMessage, n)
	copy(out, c.Posted[:n])
	return out, nil
}

// VoiceChannel implements [dispatch.Chat].
func (c *Chat) VoiceChannel(_ context.Context, _, userID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.VoiceError != nil {
		return "", c.VoiceError
	}
	return c.Voice[userID], nil
}

// Replies returns a copy of every successful reply.
func (c *Chat) Replies() []Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Reply(nil), c.replies...)
}

// Sent returns a copy of every successful send.
func (c *Chat) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Deleted returns the IDs of every deleted message, in deletion order.
func (c *Chat) Deleted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}
