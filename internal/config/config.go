// Package config defines the top-level configuration for the auction bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AUCTIONBOT_* environment variables.
type Config struct {
	Discord  DiscordConfig  `toml:"discord"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Auction  AuctionConfig  `toml:"auction"`
	Sweeper  SweeperConfig  `toml:"sweeper"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DiscordConfig holds the chat-platform credentials the presentation layer
// and webhook senders need.
type DiscordConfig struct {
	BotToken     string   `toml:"bot_token"`
	WebhookURL   string   `toml:"webhook_url"`
	AdminUserIDs []string `toml:"admin_user_ids"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// AuctionConfig holds the lifecycle policy knobs.
type AuctionConfig struct {
	// MinIncrementPct is the minimum relative raise per bid, e.g. 0.10 = 10%.
	MinIncrementPct float64 `toml:"min_increment_pct"`
	// MinBid is the absolute floor for starting prices and bids, in dollars.
	MinBid float64 `toml:"min_bid"`
	// MaxActivePerUser caps concurrent active auctions per seller.
	MaxActivePerUser int `toml:"max_active_per_user"`
	// MaxCreatesPerHour caps auction creations inside a rolling hour.
	// Admins bypass this cap only, never the concurrency cap.
	MaxCreatesPerHour int `toml:"max_creates_per_hour"`
	// Durations are the listing lengths sellers may choose from.
	Durations []duration `toml:"durations"`
	// AdminTestDuration is an extra duration only admins may select.
	AdminTestDuration duration `toml:"admin_test_duration"`
	// SnipeWindow: a bid landing inside this window before expiry extends
	// the auction by SnipeExtension, at most once per SnipeCooldown.
	SnipeWindow    duration `toml:"snipe_window"`
	SnipeExtension duration `toml:"snipe_extension"`
	SnipeCooldown  duration `toml:"snipe_cooldown"`
	// ArchiveAfter is how long terminal auctions stay in the primary store
	// before the archiver may export and delete them.
	ArchiveAfter duration `toml:"archive_after"`
}

// SweeperConfig holds the expiration sweep parameters.
type SweeperConfig struct {
	Interval duration `toml:"interval"`
	LockTTL  duration `toml:"lock_ttl"`
}

// ServerConfig holds HTTP API parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimitPerSec int      `toml:"rate_limit_per_sec"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	Events         []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "1h", "60s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "24h" or "60s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DurationChoices returns the seller-selectable listing lengths as plain
// time.Durations.
func (c *AuctionConfig) DurationChoices() []time.Duration {
	out := make([]time.Duration, len(c.Durations))
	for i, d := range c.Durations {
		out[i] = d.Duration
	}
	return out
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "auctionbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "auctionbot-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Auction: AuctionConfig{
			MinIncrementPct:   0.10,
			MinBid:            0.50,
			MaxActivePerUser:  5,
			MaxCreatesPerHour: 3,
			Durations: []duration{
				{time.Hour},
				{12 * time.Hour},
				{24 * time.Hour},
				{3 * 24 * time.Hour},
				{7 * 24 * time.Hour},
			},
			AdminTestDuration: duration{10 * time.Second},
			SnipeWindow:       duration{5 * time.Minute},
			SnipeExtension:    duration{5 * time.Minute},
			SnipeCooldown:     duration{60 * time.Second},
			ArchiveAfter:      duration{30 * 24 * time.Hour},
		},
		Sweeper: SweeperConfig{
			Interval: duration{60 * time.Second},
			LockTTL:  duration{50 * time.Second},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitPerSec: 10,
		},
		Notify: NotifyConfig{
			Events: []string{"auction_created", "auction_closed", "sweep_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":    true,
	"server":  true,
	"sweeper": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, server, sweeper)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 (only when the archive is enabled)
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Auction policy
	if c.Auction.MinIncrementPct <= 0 || c.Auction.MinIncrementPct >= 1 {
		errs = append(errs, fmt.Sprintf("auction: min_increment_pct must be in (0,1), got %v", c.Auction.MinIncrementPct))
	}
	if c.Auction.MinBid <= 0 {
		errs = append(errs, "auction: min_bid must be > 0")
	}
	if c.Auction.MaxActivePerUser < 1 {
		errs = append(errs, "auction: max_active_per_user must be >= 1")
	}
	if c.Auction.MaxCreatesPerHour < 1 {
		errs = append(errs, "auction: max_creates_per_hour must be >= 1")
	}
	if len(c.Auction.Durations) == 0 {
		errs = append(errs, "auction: at least one listing duration is required")
	}
	for _, d := range c.Auction.Durations {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("auction: durations must be positive, got %v", d.Duration))
		}
	}
	if c.Auction.SnipeWindow.Duration < 0 || c.Auction.SnipeExtension.Duration < 0 {
		errs = append(errs, "auction: snipe_window and snipe_extension must not be negative")
	}

	// Sweeper
	if c.Sweeper.Interval.Duration <= 0 {
		errs = append(errs, "sweeper: interval must be > 0")
	}
	if c.Sweeper.LockTTL.Duration <= 0 {
		errs = append(errs, "sweeper: lock_ttl must be > 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsAdmin reports whether the given user ID appears in the configured admin
// list.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.Discord.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
