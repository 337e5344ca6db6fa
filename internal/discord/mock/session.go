// Package mock provides test doubles for the Discord REST API and state
// cache used by the discord package.
package mock

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Messenger records channel message calls for test assertions. It
// implements discord.Messenger.
type Messenger struct {
	mu sync.Mutex

	// Sent records the content of every ChannelMessageSend call.
	Sent []string

	// Deleted records the ID of every ChannelMessageDelete call.
	Deleted []string

	// History is returned by ChannelMessages, truncated to the limit.
	History []*discordgo.Message

	// HistoryLimits records the limit argument of every ChannelMessages call.
	HistoryLimits []int

	// SendErrAfter makes every send after the first SendErrAfter succeed
	// calls fail with Err. Zero means Err applies to every call.
	SendErrAfter int

	// Err is returned by every method when non-nil.
	Err error

	nextID int
}

// ChannelMessageSend records content and returns a message with a fresh ID.
func (m *Messenger) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil && len(m.Sent) >= m.SendErrAfter {
		return nil, m.Err
	}
	m.Sent = append(m.Sent, content)
	m.nextID++
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", m.nextID), ChannelID: channelID, Content: content}, nil
}

// ChannelMessageDelete records messageID.
func (m *Messenger) ChannelMessageDelete(_, messageID string, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Deleted = append(m.Deleted, messageID)
	return nil
}

// ChannelMessages returns up to limit entries of History.
func (m *Messenger) ChannelMessages(_ string, limit int, _, _, _ string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HistoryLimits = append(m.HistoryLimits, limit)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.History[:min(limit, len(m.History))], nil
}

// VoiceStates is a static voice state cache keyed by user ID. It implements
// discord.VoiceStates.
type VoiceStates struct {
	// Channels maps user IDs to voice channel IDs.
	Channels map[string]string

	// Err is returned for every lookup when non-nil.
	Err error
}

// VoiceState returns the user's voice state or [discordgo.ErrStateNotFound].
func (v *VoiceStates) VoiceState(guildID, userID string) (*discordgo.VoiceState, error) {
	if v.Err != nil {
		return nil, v.Err
	}
	ch, ok := v.Channels[userID]
	if !ok {
		return nil, discordgo.ErrStateNotFound
	}
	return &discordgo.VoiceState{GuildID: guildID, UserID: userID, ChannelID: ch}, nil
}
