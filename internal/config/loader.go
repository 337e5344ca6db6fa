package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name consulted by
// [ApplyEnv], e.g. CURRYBOT_DISCORD_TOKEN.
const EnvPrefix = "CURRYBOT_"

// Default values filled in by [ApplyDefaults].
const (
	DefaultCatalogPath     = "audio.json"
	DefaultReloadInterval  = 10 * time.Second
	DefaultStatsPath       = "stats.json"
	DefaultSQLitePath      = "stats.db"
	DefaultMaxDuration     = 2 * time.Minute
	DefaultEndMargin       = 2 * time.Second
	DefaultDeleteDelay     = 5 * time.Second
	DefaultCleanupHistory  = 100
	DefaultBreakerFails    = 5
	DefaultBreakerCoolDown = 30 * time.Second
)

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults and validates
// the result. Environment overrides are not applied, which keeps tests
// independent of the process environment.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields of cfg from CURRYBOT_* environment variables.
// Unset variables leave the YAML value in place.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// ApplyDefaults fills every zero-valued setting that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.FFmpegPath == "" {
		cfg.Audio.FFmpegPath = "ffmpeg"
	}
	if cfg.Audio.FFprobePath == "" {
		cfg.Audio.FFprobePath = "ffprobe"
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = DefaultCatalogPath
	}
	if cfg.Catalog.ReloadInterval == 0 {
		cfg.Catalog.ReloadInterval = DefaultReloadInterval
	}
	if cfg.Stats.Backend == "" {
		cfg.Stats.Backend = StatsFile
	}
	if cfg.Stats.Path == "" {
		switch cfg.Stats.Backend {
		case StatsFile:
			cfg.Stats.Path = DefaultStatsPath
		case StatsSQLite:
			cfg.Stats.Path = DefaultSQLitePath
		}
	}
	if cfg.Stats.BreakerFailures == 0 {
		cfg.Stats.BreakerFailures = DefaultBreakerFails
	}
	if cfg.Stats.BreakerCoolDown == 0 {
		cfg.Stats.BreakerCoolDown = DefaultBreakerCoolDown
	}
	if cfg.Playback.MaxDuration == 0 {
		cfg.Playback.MaxDuration = DefaultMaxDuration
	}
	if cfg.Playback.EndMargin == 0 {
		cfg.Playback.EndMargin = DefaultEndMargin
	}
	if cfg.Replies.DeleteDelay == 0 {
		cfg.Replies.DeleteDelay = DefaultDeleteDelay
	}
	if cfg.Replies.CleanupHistory == 0 {
		cfg.Replies.CleanupHistory = DefaultCleanupHistory
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Discord
	if cfg.Discord.ChannelID == "" {
		errs = append(errs, errors.New("discord.channel_id is required"))
	}
	if cfg.Discord.Token == "" {
		slog.Warn("discord.token is empty; set it in the config file or via " + EnvPrefix + "DISCORD_TOKEN")
	}
	if cfg.Discord.GuildID == "" {
		slog.Warn("discord.guild_id is empty; voice state lookups will use the guild of each message")
	}

	// Catalog
	if cfg.Catalog.ReloadInterval < time.Second || cfg.Catalog.ReloadInterval > 10*time.Minute {
		errs = append(errs, fmt.Errorf("catalog.reload_interval %s is out of range [1s, 10m]", cfg.Catalog.ReloadInterval))
	}

	// Stats
	if !cfg.Stats.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("stats.backend %q is invalid; valid values: file, sqlite, postgres", cfg.Stats.Backend))
	}
	switch cfg.Stats.Backend {
	case StatsFile, StatsSQLite:
		if cfg.Stats.Path == "" {
			errs = append(errs, fmt.Errorf("stats.path is required for backend %q", cfg.Stats.Backend))
		}
	case StatsPostgres:
		if cfg.Stats.PostgresDSN == "" {
			errs = append(errs, errors.New("stats.postgres_dsn is required for backend \"postgres\""))
		}
	}

	if cfg.Stats.BreakerFailures < 0 {
		errs = append(errs, fmt.Errorf("stats.breaker_failures %d must not be negative", cfg.Stats.BreakerFailures))
	}
	if cfg.Stats.BreakerCoolDown < 0 {
		errs = append(errs, fmt.Errorf("stats.breaker_cool_down %s must not be negative", cfg.Stats.BreakerCoolDown))
	}

	// Playback
	if cfg.Playback.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("playback.max_duration %s must not be negative", cfg.Playback.MaxDuration))
	}
	if cfg.Playback.EndMargin < 0 {
		errs = append(errs, fmt.Errorf("playback.end_margin %s must not be negative", cfg.Playback.EndMargin))
	}

	// Replies
	if cfg.Replies.DeleteDelay < 0 {
		errs = append(errs, fmt.Errorf("replies.delete_delay %s must not be negative", cfg.Replies.DeleteDelay))
	}
	if cfg.Replies.CleanupHistory < 0 || cfg.Replies.CleanupHistory > 100 {
		errs = append(errs, fmt.Errorf("replies.cleanup_history %d is out of range [0, 100]", cfg.Replies.CleanupHistory))
	}

	return errors.Join(errs...)
}
