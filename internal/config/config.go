// Package config provides configuration for the bot.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/radhhh/flae-bot/internal/accounting"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Reopen windows.
const (
	ReopenUnbounded = "unbounded"
	ReopenSameWeek  = "same_week"
)

// Config holds the bot configuration.
type Config struct {
	// Server settings
	HTTPPort       int
	RequestTimeout time.Duration
	APIKey         string

	// Database
	StoreDriver string
	DatabaseURL string

	// Discord
	DiscordPublicKey string
	DiscordAppID     string
	DiscordBotToken  string
	DiscordGuildID   string
	DiscordAPIURL    string

	// Week boundaries
	WeekStart time.Weekday
	Location  *time.Location

	// Policy
	ReopenWindow     string
	CountUnconfirmed bool
	PolicyFile       string

	// Idempotency records
	IdempotencyRetention  time.Duration
	IdempotencyMaxRecords int

	// Logging
	LogLevel string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.request_timeout", "2500ms")
	v.SetDefault("http.api_key", "")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.dsn", "file:flae.db?mode=rwc")
	v.SetDefault("discord.public_key", "")
	v.SetDefault("discord.app_id", "")
	v.SetDefault("discord.bot_token", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.api_url", "https://discord.com/api/v10")
	v.SetDefault("week.start_day", "monday")
	v.SetDefault("week.timezone", "UTC")
	v.SetDefault("policy.reopen_window", ReopenUnbounded)
	v.SetDefault("policy.count_unconfirmed", false)
	v.SetDefault("policy.file", "")
	v.SetDefault("idempotency.retention", "15m")
	v.SetDefault("idempotency.max_records", 1000)
	v.SetDefault("log.level", "info")
}

// Load loads configuration from defaults, the file named by FLAE_CONFIG
// (if set) and FLAE_* environment variables, in increasing priority.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("FLAE_CONFIG"))
}

// LoadFile is Load with an explicit config file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FLAE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return fromViper(v)
}

// Default returns the configuration with every key at its default.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := fromViper(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPPort:              v.GetInt("http.port"),
		RequestTimeout:        v.GetDuration("http.request_timeout"),
		APIKey:                v.GetString("http.api_key"),
		StoreDriver:           strings.ToLower(v.GetString("store.driver")),
		DatabaseURL:           v.GetString("store.dsn"),
		DiscordPublicKey:      v.GetString("discord.public_key"),
		DiscordAppID:          v.GetString("discord.app_id"),
		DiscordBotToken:       v.GetString("discord.bot_token"),
		DiscordGuildID:        v.GetString("discord.guild_id"),
		DiscordAPIURL:         strings.TrimRight(v.GetString("discord.api_url"), "/"),
		ReopenWindow:          strings.ToLower(v.GetString("policy.reopen_window")),
		CountUnconfirmed:      v.GetBool("policy.count_unconfirmed"),
		PolicyFile:            v.GetString("policy.file"),
		IdempotencyRetention:  v.GetDuration("idempotency.retention"),
		IdempotencyMaxRecords: v.GetInt("idempotency.max_records"),
		LogLevel:              v.GetString("log.level"),
	}

	day, err := accounting.ParseWeekday(v.GetString("week.start_day"))
	if err != nil {
		return nil, fmt.Errorf("week.start_day: %w", err)
	}
	cfg.WeekStart = day

	loc, err := time.LoadLocation(v.GetString("week.timezone"))
	if err != nil {
		return nil, fmt.Errorf("week.timezone: %w", err)
	}
	cfg.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option values that have a fixed domain.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.StoreDriver)
	}
	switch c.ReopenWindow {
	case ReopenUnbounded, ReopenSameWeek:
	default:
		return fmt.Errorf("policy.reopen_window: unknown window %q", c.ReopenWindow)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("http.request_timeout must be positive")
	}
	if c.IdempotencyRetention <= 0 || c.IdempotencyMaxRecords <= 0 {
		return fmt.Errorf("idempotency retention and max_records must be positive")
	}
	return nil
}

// WeekAnchor returns the week boundary rule.
func (c *Config) WeekAnchor() accounting.WeekAnchor {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return accounting.WeekAnchor{Start: c.WeekStart, Location: loc}
}
