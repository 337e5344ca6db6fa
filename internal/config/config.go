// Package config provides the configuration schema and loader for currybot.
package config

import "time"

// LogLevel controls log verbosity for the bot process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StatsBackend selects where play counters are persisted.
type StatsBackend string

const (
	// StatsFile keeps the counters in a single JSON document.
	StatsFile StatsBackend = "file"

	// StatsSQLite keeps the counters in an embedded SQLite database.
	StatsSQLite StatsBackend = "sqlite"

	// StatsPostgres keeps the counters in a PostgreSQL table.
	StatsPostgres StatsBackend = "postgres"
)

// IsValid reports whether b is a recognised stats backend.
func (b StatsBackend) IsValid() bool {
	switch b {
	case StatsFile, StatsSQLite, StatsPostgres:
		return true
	}
	return false
}

// Config is the root configuration structure for currybot.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord"`
	Audio    AudioConfig    `yaml:"audio"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Stats    StatsConfig    `yaml:"stats"`
	Playback PlaybackConfig `yaml:"playback"`
	Replies  RepliesConfig  `yaml:"replies"`
}

// ServerConfig holds logging and the optional operations listener.
type ServerConfig struct {
	// ListenAddr is the TCP address for /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" env:"LOG_LEVEL"`
}

// DiscordConfig identifies the bot account and the channel it serves.
type DiscordConfig struct {
	// Token is the bot token, without the "Bot " prefix.
	Token string `yaml:"token" env:"DISCORD_TOKEN"`

	// GuildID is the guild whose voice channels the bot joins.
	GuildID string `yaml:"guild_id" env:"DISCORD_GUILD_ID"`

	// ChannelID is the text channel the bot listens and replies in.
	// Messages in any other channel are ignored.
	ChannelID string `yaml:"channel_id" env:"DISCORD_CHANNEL_ID"`
}

// AudioConfig locates clip files and the decoder binaries.
type AudioConfig struct {
	// Dir is the directory clip references are resolved against.
	Dir string `yaml:"dir" env:"AUDIO_DIR"`

	// FFmpegPath is the ffmpeg binary used to decode clips. Defaults to "ffmpeg".
	FFmpegPath string `yaml:"ffmpeg_path" env:"AUDIO_FFMPEG_PATH"`

	// FFprobePath is the ffprobe binary used to read clip durations.
	// Defaults to "ffprobe".
	FFprobePath string `yaml:"ffprobe_path" env:"AUDIO_FFPROBE_PATH"`
}

// CatalogConfig controls where the trigger catalog comes from and how often
// it is re-read.
type CatalogConfig struct {
	// Path is the JSON catalog file. Defaults to "audio.json".
	Path string `yaml:"path" env:"CATALOG_PATH"`

	// ReloadInterval is the polling period. Defaults to 10s.
	ReloadInterval time.Duration `yaml:"reload_interval" env:"CATALOG_RELOAD_INTERVAL"`

	// Watch enables an fsnotify watcher that reloads as soon as the file is
	// written, in addition to polling.
	Watch bool `yaml:"watch" env:"CATALOG_WATCH"`
}

// StatsConfig selects and configures the play counter backend.
type StatsConfig struct {
	// Backend is one of file, sqlite or postgres. Defaults to file.
	Backend StatsBackend `yaml:"backend" env:"STATS_BACKEND"`

	// Path is the JSON document (file) or database file (sqlite).
	// Defaults to "stats.json" or "stats.db".
	Path string `yaml:"path" env:"STATS_PATH"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn" env:"STATS_POSTGRES_DSN"`

	// BreakerFailures is how many consecutive backend failures make stats
	// writes fail fast. Defaults to 5.
	BreakerFailures int `yaml:"breaker_failures" env:"STATS_BREAKER_FAILURES"`

	// BreakerCoolDown is how long stats writes fail fast before the backend
	// is probed again. Defaults to 30s.
	BreakerCoolDown time.Duration `yaml:"breaker_cool_down" env:"STATS_BREAKER_COOL_DOWN"`
}

// PlaybackConfig bounds how long a single stream may run.
type PlaybackConfig struct {
	// MaxDuration force-stops a stream whose clip length is unknown.
	// Defaults to 2m.
	MaxDuration time.Duration `yaml:"max_duration" env:"PLAYBACK_MAX_DURATION"`

	// EndMargin is added to a probed clip length before the stream is
	// force-stopped. Defaults to 2s.
	EndMargin time.Duration `yaml:"end_margin" env:"PLAYBACK_END_MARGIN"`
}

// RepliesConfig controls housekeeping of chat messages.
type RepliesConfig struct {
	// DeleteDelay is how long command messages and exact trigger messages
	// stay visible before they are deleted. Defaults to 5s.
	DeleteDelay time.Duration `yaml:"delete_delay" env:"REPLIES_DELETE_DELAY"`

	// CleanupHistory is how many recent channel messages are scanned for
	// stale replies to the same user. Defaults to 100, the Discord maximum.
	CleanupHistory int `yaml:"cleanup_history" env:"REPLIES_CLEANUP_HISTORY"`
}
