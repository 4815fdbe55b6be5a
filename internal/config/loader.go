package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AUCTIONBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AUCTIONBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Discord ──
	setStr(&cfg.Discord.BotToken, "AUCTIONBOT_DISCORD_BOT_TOKEN")
	setStr(&cfg.Discord.WebhookURL, "AUCTIONBOT_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Discord.AdminUserIDs, "AUCTIONBOT_DISCORD_ADMIN_USER_IDS")

	// ── Database ──
	setStr(&cfg.Database.DSN, "AUCTIONBOT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "AUCTIONBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "AUCTIONBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "AUCTIONBOT_DATABASE_NAME")
	setStr(&cfg.Database.User, "AUCTIONBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "AUCTIONBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "AUCTIONBOT_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "AUCTIONBOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "AUCTIONBOT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "AUCTIONBOT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AUCTIONBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AUCTIONBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AUCTIONBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AUCTIONBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AUCTIONBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AUCTIONBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AUCTIONBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AUCTIONBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AUCTIONBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "AUCTIONBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AUCTIONBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AUCTIONBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AUCTIONBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AUCTIONBOT_S3_FORCE_PATH_STYLE")

	// ── Auction policy ──
	setFloat64(&cfg.Auction.MinIncrementPct, "AUCTIONBOT_AUCTION_MIN_INCREMENT_PCT")
	setFloat64(&cfg.Auction.MinBid, "AUCTIONBOT_AUCTION_MIN_BID")
	setInt(&cfg.Auction.MaxActivePerUser, "AUCTIONBOT_AUCTION_MAX_ACTIVE_PER_USER")
	setInt(&cfg.Auction.MaxCreatesPerHour, "AUCTIONBOT_AUCTION_MAX_CREATES_PER_HOUR")
	setDuration(&cfg.Auction.SnipeWindow, "AUCTIONBOT_AUCTION_SNIPE_WINDOW")
	setDuration(&cfg.Auction.SnipeExtension, "AUCTIONBOT_AUCTION_SNIPE_EXTENSION")
	setDuration(&cfg.Auction.SnipeCooldown, "AUCTIONBOT_AUCTION_SNIPE_COOLDOWN")
	setDuration(&cfg.Auction.ArchiveAfter, "AUCTIONBOT_AUCTION_ARCHIVE_AFTER")

	// ── Sweeper ──
	setDuration(&cfg.Sweeper.Interval, "AUCTIONBOT_SWEEPER_INTERVAL")
	setDuration(&cfg.Sweeper.LockTTL, "AUCTIONBOT_SWEEPER_LOCK_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AUCTIONBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AUCTIONBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "AUCTIONBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "AUCTIONBOT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerSec, "AUCTIONBOT_SERVER_RATE_LIMIT_PER_SEC")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AUCTIONBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AUCTIONBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "AUCTIONBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AUCTIONBOT_MODE")
	setStr(&cfg.LogLevel, "AUCTIONBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
