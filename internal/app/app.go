// Package app wires all currybot subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the background loops, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithFrontend,
// WithStatsStore, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/currybot/internal/catalog"
	"github.com/MrWong99/currybot/internal/config"
	"github.com/MrWong99/currybot/internal/discord"
	"github.com/MrWong99/currybot/internal/dispatch"
	"github.com/MrWong99/currybot/internal/health"
	"github.com/MrWong99/currybot/internal/observe"
	"github.com/MrWong99/currybot/internal/playback"
	"github.com/MrWong99/currybot/internal/resilience"
	"github.com/MrWong99/currybot/internal/stats"
	"github.com/MrWong99/currybot/pkg/audio"
	"github.com/MrWong99/currybot/pkg/audio/ffmpeg"
)

// serverShutdownTimeout bounds how long the ops listener waits for in-flight
// requests once Run's context is cancelled.
const serverShutdownTimeout = 5 * time.Second

// Frontend is the chat platform the bot lives on. [discord.Bot] is the
// production implementation.
type Frontend interface {
	// Platform joins voice channels.
	Platform() audio.Platform

	// Chat posts, deletes and inspects text messages.
	Chat() dispatch.Chat

	// OnMessage registers the handler for incoming text messages.
	OnMessage(handle func(dispatch.Message) bool)

	// Run blocks until ctx is cancelled.
	Run(ctx context.Context) error

	// Close disconnects from the platform.
	Close() error
}

var _ Frontend = (*discord.Bot)(nil)

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	// Injected or created in New.
	frontend Frontend
	decoder  audio.Decoder
	stats    stats.Store
	source   catalog.Source
	metrics  *observe.Metrics

	// Subsystems: initialised in New, torn down in Shutdown.
	catalog *catalog.Store
	session *playback.Session
	coord   *dispatch.Coordinator

	// closers are called in reverse registration order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithFrontend injects the chat platform instead of connecting to Discord.
func WithFrontend(f Frontend) Option {
	return func(a *App) { a.frontend = f }
}

// WithDecoder injects the clip decoder instead of spawning ffmpeg. When d
// also implements [audio.Prober] it supplies clip lengths too.
func WithDecoder(d audio.Decoder) Option {
	return func(a *App) { a.decoder = d }
}

// WithStatsStore injects the play counter store instead of opening the
// configured backend. The caller keeps ownership and closes it.
func WithStatsStore(s stats.Store) Option {
	return func(a *App) { a.stats = s }
}

// WithCatalogSource replaces the catalog file named in the config.
func WithCatalogSource(src catalog.Source) Option {
	return func(a *App) { a.source = src }
}

// WithMetrics injects the metric instruments instead of the global ones.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: stats store connection,
// Discord session, playback session, dispatch coordinator and the initial
// catalog load. A catalog that fails to load is logged and retried by Run;
// every other failure is returned after releasing what was already created.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Stats store ───────────────────────────────────────────────────
	if err := a.initStats(ctx); err != nil {
		return nil, a.fail(fmt.Errorf("app: init stats: %w", err))
	}

	// ── 2. Frontend ──────────────────────────────────────────────────────
	if err := a.initFrontend(ctx); err != nil {
		return nil, a.fail(fmt.Errorf("app: init discord: %w", err))
	}

	// ── 3. Playback session ──────────────────────────────────────────────
	a.initSession()

	// ── 4. Catalog store ─────────────────────────────────────────────────
	a.initCatalog()

	// ── 5. Coordinator ───────────────────────────────────────────────────
	a.coord = dispatch.New(dispatch.Config{
		Catalog:      a.catalog,
		Player:       a.session,
		Stats:        a.stats,
		Chat:         a.frontend.Chat(),
		ChannelID:    cfg.Discord.ChannelID,
		AudioDir:     cfg.Audio.Dir,
		DeleteDelay:  cfg.Replies.DeleteDelay,
		HistoryLimit: cfg.Replies.CleanupHistory,
		Metrics:      a.metrics,
	})
	a.closers = append(a.closers, func() error {
		a.coord.Close()
		return nil
	})

	// ── 6. Initial catalog load ──────────────────────────────────────────
	if _, _, err := a.catalog.Reload(ctx); err != nil {
		slog.Warn("initial catalog load failed, triggers stay empty until the next reload",
			"path", cfg.Catalog.Path, "err", err)
	}

	// ── 7. Message routing ───────────────────────────────────────────────
	a.frontend.OnMessage(a.coord.HandleMessage)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStats opens the configured stats backend behind a circuit breaker
// unless a store was injected.
func (a *App) initStats(ctx context.Context) error {
	if a.stats != nil {
		return nil
	}
	s, err := OpenStats(ctx, a.cfg.Stats)
	if err != nil {
		return err
	}
	guarded := resilience.GuardStats(s, resilience.BreakerConfig{
		Name:        "stats-" + string(a.cfg.Stats.Backend),
		MaxFailures: a.cfg.Stats.BreakerFailures,
		CoolDown:    a.cfg.Stats.BreakerCoolDown,
	})
	a.stats = guarded
	a.closers = append(a.closers, guarded.Close)
	slog.Info("stats store opened", "backend", a.cfg.Stats.Backend)
	return nil
}

// initFrontend connects to Discord unless a frontend was injected.
func (a *App) initFrontend(ctx context.Context) error {
	if a.frontend != nil {
		return nil
	}
	if a.cfg.Discord.Token == "" {
		return errors.New("discord.token is required")
	}
	bot, err := discord.New(ctx, discord.Config{
		Token:   a.cfg.Discord.Token,
		GuildID: a.cfg.Discord.GuildID,
	})
	if err != nil {
		return err
	}
	a.frontend = bot
	a.closers = append(a.closers, bot.Close)
	return nil
}

// initSession creates the playback session over the frontend's voice
// platform.
func (a *App) initSession() {
	if a.decoder == nil {
		a.decoder = ffmpeg.New(
			ffmpeg.WithFFmpeg(a.cfg.Audio.FFmpegPath),
			ffmpeg.WithFFprobe(a.cfg.Audio.FFprobePath),
		)
	}
	prober, _ := a.decoder.(audio.Prober)

	a.session = playback.New(playback.Config{
		Platform:    a.frontend.Platform(),
		Decoder:     a.decoder,
		Prober:      prober,
		MaxDuration: a.cfg.Playback.MaxDuration,
		EndMargin:   a.cfg.Playback.EndMargin,
		OnStreamEnd: logStreamEnd,
		OnConnectedChange: func(up bool) {
			a.metrics.RecordVoiceConnected(context.Background(), up)
		},
	})
	a.closers = append(a.closers, a.session.Leave)
}

// initCatalog creates the catalog store. Change announcements go through the
// coordinator, which is created afterwards.
func (a *App) initCatalog() {
	src := a.source
	if src == nil {
		src = catalog.FileSource{Path: a.cfg.Catalog.Path}
	}
	opts := []catalog.Option{
		catalog.WithInterval(a.cfg.Catalog.ReloadInterval),
		catalog.WithOnChange(func(prev, next *catalog.Catalog, diff []string) {
			a.coord.OnCatalogChange(prev, next, diff)
		}),
		catalog.WithOnReload(func(c *catalog.Catalog, err error) {
			a.metrics.RecordCatalogReload(context.Background(), c.Len(), err)
		}),
	}
	if a.cfg.Catalog.Watch && a.source == nil {
		opts = append(opts, catalog.WithWatch(a.cfg.Catalog.Path))
	}
	a.catalog = catalog.NewStore(src, opts...)
}

// OpenStats opens the stats backend selected by cfg.Backend.
func OpenStats(ctx context.Context, cfg config.StatsConfig) (stats.Store, error) {
	switch cfg.Backend {
	case config.StatsFile, "":
		return stats.NewFileStore(cfg.Path)
	case config.StatsSQLite:
		return stats.OpenSQLite(ctx, cfg.Path)
	case config.StatsPostgres:
		return stats.OpenPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown stats backend %q", cfg.Backend)
	}
}

func logStreamEnd(r playback.StreamResult) {
	log := slog.With("stream_id", r.ID, "trigger", r.Clip.Trigger, "reason", r.Reason, "elapsed", r.Elapsed)
	if r.Err != nil {
		log.Warn("stream ended with error", "err", r.Err)
		return
	}
	log.Debug("stream ended")
}

// fail releases everything created so far and returns err.
func (a *App) fail(err error) error {
	a.closeAll()
	return err
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Catalog returns the catalog store.
func (a *App) Catalog() *catalog.Store { return a.catalog }

// Session returns the playback session.
func (a *App) Session() *playback.Session { return a.session }

// Coordinator returns the dispatch coordinator.
func (a *App) Coordinator() *dispatch.Coordinator { return a.coord }

// Handler returns the operations mux: /metrics, /healthz and /readyz,
// wrapped in the request metrics middleware.
func (a *App) Handler() http.Handler {
	checks := []health.Checker{health.Ready("catalog", a.catalog.Loaded)}
	if p, ok := a.stats.(health.Pinger); ok {
		checks = append(checks, health.Ping("stats", p))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checks...).Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the catalog refresh loop, the frontend and, when
// server.listen_addr is set, the operations listener. It blocks until ctx is
// cancelled or one of them fails, and returns the first error.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.catalog.Run(ctx) })
	g.Go(func() error { return a.frontend.Run(ctx) })

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("ops listener started", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: ops listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order: the coordinator
// drains queued messages and pending deletions, the voice connection is
// released, the Discord session closes, and the stats store is closed last.
// It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		shutdownErr = a.runClosers(ctx)
		if shutdownErr == nil {
			slog.Info("shutdown complete")
		}
	})
	return shutdownErr
}

func (a *App) closeAll() {
	a.stopOnce.Do(func() {
		_ = a.runClosers(context.Background())
	})
}

func (a *App) runClosers(ctx context.Context) error {
	closers := slices.Clone(a.closers)
	slices.Reverse(closers)
	for i, closer := range closers {
		select {
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
			return ctx.Err()
		default:
		}
		if err := closer(); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	return nil
}
