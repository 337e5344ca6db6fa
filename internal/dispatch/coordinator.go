// Package dispatch turns chat messages into soundboard actions.
//
// The [Coordinator] classifies each message, runs administrative commands,
// gates triggers on the invoker sharing the bot's voice channel, and fans a
// resolved trigger out to playback and the stats store concurrently. Messages
// from one user are applied strictly in arrival order; different users are
// served concurrently.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/currybot/internal/catalog"
	"github.com/MrWong99/currybot/internal/observe"
	"github.com/MrWong99/currybot/internal/playback"
	"github.com/MrWong99/currybot/internal/stats"
)

var (
	// ErrMiss reports a trigger candidate that matched no catalog key.
	ErrMiss = errors.New("dispatch: no matching trigger")

	// ErrNotInVoice reports a trigger from a user who is not in the bot's
	// voice channel, or a join from a user in no voice channel at all.
	ErrNotInVoice = errors.New("dispatch: invoker not in the bot's voice channel")

	// ErrBadClip reports a catalog clip reference outside the audio directory.
	ErrBadClip = errors.New("dispatch: clip outside audio directory")
)

// chatTimeout bounds best-effort chat calls that run outside a message job.
const chatTimeout = 10 * time.Second

// Config holds the dependencies of a [Coordinator].
type Config struct {
	Catalog Catalogs
	Player  Player
	Stats   stats.Store
	Chat    Chat

	// ChannelID is the only text channel the coordinator listens to.
	ChannelID string

	// AudioDir is the root that clip references resolve under.
	AudioDir string

	// DeleteDelay is how long command and exact-trigger messages stay up.
	DeleteDelay time.Duration

	// HistoryLimit is how many recent messages are scanned for stale
	// replies. Zero disables reply cleanup.
	HistoryLimit int

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Result is the outcome of dispatching a resolved trigger. PlayErr and
// StatsErr are independent: either side may fail alone.
type Result struct {
	Trigger  string
	Exact    bool
	PlayErr  error
	StatsErr error
}

// Outcome describes how one message was handled.
type Outcome struct {
	Command Command

	// Result is set when a trigger was dispatched.
	Result *Result

	// Err is set when the message was dropped or its command failed.
	Err error
}

// Coordinator routes chat messages. It is safe for concurrent use.
type Coordinator struct {
	catalogs     Catalogs
	player       Player
	stats        stats.Store
	chat         Chat
	channelID    string
	audioDir     string
	deleteDelay  time.Duration
	historyLimit int
	metrics      *observe.Metrics

	queue *keyedQueue

	ctx    context.Context
	cancel context.CancelFunc

	deletesMu sync.Mutex
	deletes   map[*time.Timer]pendingDelete
	closed    bool
}

type pendingDelete struct {
	channelID, messageID string
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		catalogs:     cfg.Catalog,
		player:       cfg.Player,
		stats:        cfg.Stats,
		chat:         cfg.Chat,
		channelID:    cfg.ChannelID,
		audioDir:     cfg.AudioDir,
		deleteDelay:  cfg.DeleteDelay,
		historyLimit: cfg.HistoryLimit,
		metrics:      m,
		queue:        newKeyedQueue(),
		ctx:          ctx,
		cancel:       cancel,
		deletes:      make(map[*time.Timer]pendingDelete),
	}
}

// HandleMessage queues msg behind earlier messages from the same author. It
// returns false when msg is ignored: bot authors, other channels, or a
// closed coordinator.
func (c *Coordinator) HandleMessage(msg Message) bool {
	if msg.AuthorBot || msg.ChannelID != c.channelID {
		return false
	}
	return c.queue.push(msg.AuthorID, func() {
		c.Process(c.ctx, msg)
	})
}

// Process handles msg synchronously. Callers that need per-user ordering
// should use [Coordinator.HandleMessage].
func (c *Coordinator) Process(ctx context.Context, msg Message) Outcome {
	cmd := Classify(msg.Content)
	ctx, span := observe.StartSpan(ctx, "dispatch.message",
		trace.WithAttributes(
			attribute.String("command", cmd.Kind.String()),
			attribute.String("user_id", msg.AuthorID),
		),
	)
	defer span.End()

	if cmd.Kind == KindTrigger {
		return c.trigger(ctx, msg, cmd)
	}

	c.metrics.RecordCommand(ctx, cmd.Kind.String())
	c.deleteLater(msg.ChannelID, msg.ID)
	err := c.command(ctx, msg, cmd)
	if err != nil {
		observe.Fail(span, err)
		observe.Logger(ctx).Warn("dispatch: command failed", "command", cmd.Name, "user_id", msg.AuthorID, "err", err)
	}
	return Outcome{Command: cmd, Err: err}
}

func (c *Coordinator) trigger(ctx context.Context, msg Message, cmd Command) Outcome {
	out := Outcome{Command: cmd}
	log := observe.Logger(ctx)

	if !c.inBotChannel(ctx, msg) {
		log.Debug("dispatch: trigger ignored, invoker not in voice channel", "user_id", msg.AuthorID)
		out.Err = ErrNotInVoice
		return out
	}

	cat := c.catalogs.Current()
	m, ok := cat.Match(msg.Content)
	if !ok {
		c.metrics.RecordMiss(ctx)
		out.Err = ErrMiss
		return out
	}
	clip, _ := cat.Clip(m.Key)
	if m.Exact {
		c.deleteLater(msg.ChannelID, msg.ID)
	}

	res := c.Play(ctx, msg.AuthorID, m, clip)
	out.Result = &res
	return out
}

// Play starts clip for the resolved match and records the play for userID.
// Both run concurrently and neither waits on the other's success.
func (c *Coordinator) Play(ctx context.Context, userID string, m catalog.Match, clip string) Result {
	ctx, span := observe.StartSpan(ctx, "dispatch.play",
		trace.WithAttributes(attribute.String("trigger", m.Key)),
	)
	defer span.End()

	start := time.Now()
	var playErr, statsErr error
	var wg sync.WaitGroup

	wg.Go(func() {
		path, err := c.clipPath(clip)
		if err != nil {
			playErr = err
			return
		}
		playErr = c.player.Dispatch(ctx, playback.Clip{Trigger: m.Key, Path: path})
	})
	wg.Go(func() {
		statsErr = c.stats.Increment(ctx, userID, m.Key)
	})
	wg.Wait()

	c.metrics.RecordDispatch(ctx, time.Since(start))
	c.metrics.RecordPlay(ctx, m.Exact, playErr)

	log := observe.Logger(ctx)
	if playErr != nil {
		observe.Fail(span, playErr)
		log.Warn("dispatch: playback failed", "trigger", m.Key, "user_id", userID, "err", playErr)
	}
	if statsErr != nil {
		observe.Fail(span, statsErr)
		c.metrics.RecordStatsError(ctx)
		log.Warn("dispatch: stats update failed", "trigger", m.Key, "user_id", userID, "err", statsErr)
	}
	if playErr == nil && statsErr == nil {
		log.Debug("dispatch: played", "trigger", m.Key, "exact", m.Exact, "user_id", userID)
	}

	return Result{Trigger: m.Key, Exact: m.Exact, PlayErr: playErr, StatsErr: statsErr}
}

// clipPath resolves a catalog clip reference under the audio directory.
func (c *Coordinator) clipPath(clip string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(clip))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrBadClip, clip)
	}
	return filepath.Join(c.audioDir, rel), nil
}

// inBotChannel reports whether the author shares the bot's live voice channel.
func (c *Coordinator) inBotChannel(ctx context.Context, msg Message) bool {
	if !c.player.State().Connected() {
		return false
	}
	botCh := c.player.ChannelID()
	userCh, err := c.chat.VoiceChannel(ctx, msg.GuildID, msg.AuthorID)
	if err != nil {
		observe.Logger(ctx).Debug("dispatch: voice state lookup failed", "user_id", msg.AuthorID, "err", err)
		return false
	}
	return userCh != "" && userCh == botCh
}

func (c *Coordinator) command(ctx context.Context, msg Message, cmd Command) error {
	switch cmd.Kind {
	case KindJoin:
		return c.join(ctx, msg)
	case KindLeave:
		return c.leave()
	case KindReboot:
		if err := c.leave(); err != nil {
			observe.Logger(ctx).Warn("dispatch: leave before rejoin failed", "err", err)
		}
		return c.join(ctx, msg)
	case KindStop:
		c.player.Stop()
		return nil
	case KindList:
		c.reply(ctx, msg, listText(c.catalogs.Current(), cmd.Order))
		return nil
	case KindFind:
		c.reply(ctx, msg, findText(c.catalogs.Current(), cmd.Arg))
		return nil
	case KindStats:
		t, err := c.stats.Snapshot(ctx)
		if err != nil {
			c.reply(ctx, msg, "Stats are unavailable right now, try again later.")
			return err
		}
		c.reply(ctx, msg, stats.Report(t, msg.AuthorID))
		return nil
	case KindHelp:
		c.reply(ctx, msg, HelpText())
		return nil
	default:
		return fmt.Errorf("dispatch: unhandled command %s", cmd.Kind)
	}
}

func (c *Coordinator) join(ctx context.Context, msg Message) error {
	ch, err := c.chat.VoiceChannel(ctx, msg.GuildID, msg.AuthorID)
	if err != nil {
		return fmt.Errorf("dispatch: look up voice channel: %w", err)
	}
	if ch == "" {
		c.reply(ctx, msg, "Join a voice channel first, then summon me.")
		return ErrNotInVoice
	}
	if err := c.player.Join(ctx, ch); err != nil {
		c.reply(ctx, msg, "Couldn't join your voice channel.")
		return err
	}
	return nil
}

func (c *Coordinator) leave() error {
	return c.player.Leave()
}

// reply answers the author and removes older bot replies addressed to them.
func (c *Coordinator) reply(ctx context.Context, msg Message, content string) {
	ids, err := c.chat.Reply(ctx, msg.ChannelID, msg.AuthorID, content)
	if err != nil {
		observe.Logger(ctx).Warn("dispatch: failed to reply", "user_id", msg.AuthorID, "err", err)
		return
	}
	c.cleanupReplies(ctx, msg.ChannelID, msg.AuthorID, ids)
}

func (c *Coordinator) cleanupReplies(ctx context.Context, channelID, userID string, keep []string) {
	if c.historyLimit <= 0 {
		return
	}
	history, err := c.chat.History(ctx, channelID, c.historyLimit)
	if err != nil {
		observe.Logger(ctx).Warn("dispatch: failed to read channel history", "err", err)
		return
	}
	for _, m := range history {
		if !m.AuthorBot || m.FirstMentionID != userID || slices.Contains(keep, m.ID) {
			continue
		}
		if err := c.chat.Delete(ctx, channelID, m.ID); err != nil {
			observe.Logger(ctx).Warn("dispatch: failed to delete stale reply", "message_id", m.ID, "err", err)
		}
	}
}

// deleteLater removes a message after the delete delay. Pending deletions
// run immediately on Close.
func (c *Coordinator) deleteLater(channelID, messageID string) {
	if messageID == "" {
		return
	}
	c.deletesMu.Lock()
	defer c.deletesMu.Unlock()
	if c.closed {
		return
	}
	d := pendingDelete{channelID: channelID, messageID: messageID}
	var t *time.Timer
	t = time.AfterFunc(c.deleteDelay, func() {
		c.deletesMu.Lock()
		delete(c.deletes, t)
		c.deletesMu.Unlock()
		c.delete(d)
	})
	c.deletes[t] = d
}

func (c *Coordinator) delete(d pendingDelete) {
	ctx, cancel := context.WithTimeout(context.Background(), chatTimeout)
	defer cancel()
	if err := c.chat.Delete(ctx, d.channelID, d.messageID); err != nil {
		slog.Warn("dispatch: failed to delete message", "message_id", d.messageID, "err", err)
	}
}

// OnCatalogChange announces new or changed triggers in the channel. It has
// the signature of [catalog.ChangeFunc].
func (c *Coordinator) OnCatalogChange(_, _ *catalog.Catalog, diff []string) {
	if len(diff) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, chatTimeout)
	defer cancel()
	if err := c.chat.Send(ctx, c.channelID, "New sounds added:\n"+strings.Join(diff, "\n")); err != nil {
		slog.Warn("dispatch: failed to broadcast new sounds", "count", len(diff), "err", err)
	}
}

// Close stops accepting messages, waits for queued ones, and runs pending
// message deletions.
func (c *Coordinator) Close() {
	c.queue.close()

	c.deletesMu.Lock()
	c.closed = true
	var flush []pendingDelete
	for t, d := range c.deletes {
		if t.Stop() {
			flush = append(flush, d)
		}
		delete(c.deletes, t)
	}
	c.deletesMu.Unlock()

	for _, d := range flush {
		c.delete(d)
	}
	c.cancel()
}

func listText(c *catalog.Catalog, order catalog.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Soundboard currently contains (%s):\n", order)
	for _, k := range c.Keys(order) {
		b.WriteString(k)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func findText(c *catalog.Catalog, term string) string {
	if term == "" {
		return "Tell me what to look for, e.g. `soundsf curry`."
	}
	hits := Find(c, term)
	if len(hits) == 0 {
		return fmt.Sprintf("No sounds match %q.", term)
	}
	return fmt.Sprintf("Sounds matching %q:\n%s", term, strings.Join(hits, "\n"))
}
