// Package config loads and exposes application configuration (TOML).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultPGHost         = "127.0.0.1"
	DefaultPGPort         = 5432
	DefaultPGUser         = "postgres"
	DefaultPGDatabase     = "splat"
	DefaultPGSSLMode      = "disable"
	DefaultStorageDriver  = "postgres"
	DefaultWebhookName    = "Splat"
	DefaultCaptureWorkers = 4
	DefaultQueueSize      = 256
	DefaultRetryMax       = 3
	DefaultRetryBackoffMs = 500
	DefaultPurgeSchedule  = "@daily"
	DefaultMaxUploadBytes = 25 << 20
)

// Storage drivers accepted in [storage].driver.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Message logger vocabularies, same names the logger config has always used.
var (
	MonitorTypes = []string{"channel", "user", "guild"}
	EventTypes   = []string{"messageDelete", "messageUpdate", "messageSend", "messageFlagged"}
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Storage    StorageConfig    `toml:"storage"`
	Discord    DiscordConfig    `toml:"discord"`
	Capture    CaptureConfig    `toml:"capture"`
	WordFilter WordFilterConfig `toml:"wordfilter"`
	History    HistoryConfig    `toml:"history"`
	MsgLog     MsgLogConfig     `toml:"msglog"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP listen address and the optional bearer token.
type ServerConfig struct {
	Addr     string `toml:"addr"`
	APIToken string `toml:"api_token"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	User        string `toml:"user"`
	Password    string `toml:"password"`
	Database    string `toml:"database"`
	SSLMode     string `toml:"sslmode"`
	AutoMigrate bool   `toml:"auto_migrate"`
}

// StorageConfig selects the message store backend.
type StorageConfig struct {
	Driver string `toml:"driver"`
}

// DiscordConfig holds the bot token and impersonation webhook settings.
type DiscordConfig struct {
	BotToken       string  `toml:"bot_token"`
	WebhookName    string  `toml:"webhook_name"`
	IgnoreWebhooks bool    `toml:"ignore_webhooks"`
	SendRate       float64 `toml:"send_rate"`
	SendBurst      int     `toml:"send_burst"`
	MaxUploadBytes int64   `toml:"max_upload_bytes"`
}

// CaptureConfig sizes the capture worker shards and their retry policy.
type CaptureConfig struct {
	Workers        int `toml:"workers"`
	QueueSize      int `toml:"queue_size"`
	RetryMax       int `toml:"retry_max"`
	RetryBackoffMs int `toml:"retry_backoff_ms"`
}

// WordFilterConfig is the resolved banned-term set. Terms match anywhere in
// the text; Rules carry their own scan options.
type WordFilterConfig struct {
	Terms     []string         `toml:"terms"`
	Allow     []string         `toml:"allow"`
	MinLength int              `toml:"min_length"`
	Rules     []WordFilterRule `toml:"rules"`
	Ignore    WordFilterIgnore `toml:"ignore"`
}

// WordFilterRule is one term with its scan options. Mode is contains, exact,
// regex or fuzzy; Threshold (0-100) applies to fuzzy only.
type WordFilterRule struct {
	Term      string   `toml:"term"`
	Mode      string   `toml:"mode"`
	Threshold int      `toml:"threshold"`
	MinLength int      `toml:"min_length"`
	Allow     []string `toml:"allow"`
}

// WordFilterIgnore lists user, channel and guild ids that are never filtered.
type WordFilterIgnore struct {
	Users    []string `toml:"users"`
	Channels []string `toml:"channels"`
	Guilds   []string `toml:"guilds"`
}

// HistoryConfig controls retention of captured messages. Retention uses Go duration syntax; empty disables purging.
type HistoryConfig struct {
	Retention     string `toml:"retention"`
	PurgeSchedule string `toml:"purge_schedule"`
}

// MsgLogConfig lists the log channels of the message logger. File names an
// optional MessageLogger.yaml whose channels are appended to the TOML ones.
type MsgLogConfig struct {
	File     string             `toml:"file" yaml:"-"`
	Channels []LogChannelConfig `toml:"channels" yaml:"channels"`
}

// LogChannelConfig is one destination channel and the monitors feeding it.
type LogChannelConfig struct {
	ID          string          `toml:"id" yaml:"id"`
	Description string          `toml:"description" yaml:"description"`
	Monitors    []MonitorConfig `toml:"monitors" yaml:"monitors"`
}

// MonitorConfig selects events by channel, user or guild id.
type MonitorConfig struct {
	Type       string   `toml:"type" yaml:"type"`
	ID         string   `toml:"id" yaml:"id"`
	LogMessage string   `toml:"log_message" yaml:"log_message"`
	Events     []string `toml:"events" yaml:"events"`
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
// A .env file in the working directory is loaded first; environment overrides win over the file.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:        DefaultPGHost,
			Port:        DefaultPGPort,
			User:        DefaultPGUser,
			Database:    DefaultPGDatabase,
			SSLMode:     DefaultPGSSLMode,
			AutoMigrate: true,
		},
		Storage: StorageConfig{
			Driver: DefaultStorageDriver,
		},
		Discord: DiscordConfig{
			WebhookName:    DefaultWebhookName,
			IgnoreWebhooks: true,
			SendRate:       1,
			SendBurst:      5,
			MaxUploadBytes: DefaultMaxUploadBytes,
		},
		Capture: CaptureConfig{
			Workers:        DefaultCaptureWorkers,
			QueueSize:      DefaultQueueSize,
			RetryMax:       DefaultRetryMax,
			RetryBackoffMs: DefaultRetryBackoffMs,
		},
		History: HistoryConfig{
			PurgeSchedule: DefaultPurgeSchedule,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	applyEnv(&cfg)
	if err := cfg.MsgLog.loadFile(filepath.Dir(path)); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := firstEnv("SPLAT_DISCORD_TOKEN", "DISCORD_BOT_TOKEN", "BOT_TOKEN"); v != "" {
		cfg.Discord.BotToken = v
	}
	if v := firstEnv("SPLAT_API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := firstEnv("SPLAT_PG_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// loadFile appends the channels of the YAML message logger file. Relative
// paths resolve against baseDir, the directory of the TOML file.
func (c *MsgLogConfig) loadFile(baseDir string) error {
	path := strings.TrimSpace(c.File)
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("msglog: read %s: %w", path, err)
	}
	var file MsgLogConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("msglog: parse %s: %w", path, err)
	}
	c.Channels = append(c.Channels, file.Channels...)
	return nil
}

// Validate checks cross-field rules that TOML decoding cannot express.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}
	return c.MsgLog.Validate()
}

// Validate applies the message logger rules: every channel needs monitors,
// monitor ids are unique per channel, and types/events come from the known sets.
func (c MsgLogConfig) Validate() error {
	for _, ch := range c.Channels {
		if strings.TrimSpace(ch.ID) == "" {
			return fmt.Errorf("msglog: channel id is required")
		}
		if len(ch.Monitors) == 0 {
			return fmt.Errorf("msglog: channel %s has no monitors", ch.ID)
		}
		seen := map[string]struct{}{}
		for _, mon := range ch.Monitors {
			if !slices.Contains(MonitorTypes, mon.Type) {
				return fmt.Errorf("msglog: monitor type %q is not valid, choose from %v", mon.Type, MonitorTypes)
			}
			id := strings.TrimSpace(mon.ID)
			if id == "" {
				return fmt.Errorf("msglog: monitor id is required in channel %s", ch.ID)
			}
			if _, dup := seen[id]; dup {
				return fmt.Errorf("msglog: monitor id %s is already defined in channel %s", id, ch.ID)
			}
			seen[id] = struct{}{}
			if len(mon.Events) == 0 {
				return fmt.Errorf("msglog: monitor %s has no events", id)
			}
			for _, ev := range mon.Events {
				if !slices.Contains(EventTypes, ev) {
					return fmt.Errorf("msglog: event %q is not valid, choose from %v", ev, EventTypes)
				}
			}
		}
	}
	return nil
}
