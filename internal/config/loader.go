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
// built-in defaults, applies FXBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known FXBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Binance ──
	setBool(&cfg.Binance.Enabled, "FXBOT_BINANCE_ENABLED")
	setStr(&cfg.Binance.BaseURL, "FXBOT_BINANCE_BASE_URL")
	setStr(&cfg.Binance.WSURL, "FXBOT_BINANCE_WS_URL")
	setStr(&cfg.Binance.APIKey, "FXBOT_BINANCE_API_KEY")
	setStr(&cfg.Binance.APISecret, "FXBOT_BINANCE_API_SECRET")
	setStr(&cfg.Binance.EncryptedSecretPath, "FXBOT_BINANCE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Binance.SecretPassword, "FXBOT_BINANCE_SECRET_PASSWORD")
	setStr(&cfg.Binance.QuoteAsset, "FXBOT_BINANCE_QUOTE_ASSET")
	setFloat64(&cfg.Binance.RequestsPerSec, "FXBOT_BINANCE_REQUESTS_PER_SEC")
	setInt(&cfg.Binance.Burst, "FXBOT_BINANCE_BURST")
	setDuration(&cfg.Binance.Timeout, "FXBOT_BINANCE_TIMEOUT")

	// ── MT bridge ──
	setBool(&cfg.MTBridge.Enabled, "FXBOT_MTBRIDGE_ENABLED")
	setStr(&cfg.MTBridge.BaseURL, "FXBOT_MTBRIDGE_BASE_URL")
	setStr(&cfg.MTBridge.Token, "FXBOT_MTBRIDGE_TOKEN")
	setFloat64(&cfg.MTBridge.RequestsPerSec, "FXBOT_MTBRIDGE_REQUESTS_PER_SEC")
	setInt(&cfg.MTBridge.Burst, "FXBOT_MTBRIDGE_BURST")
	setDuration(&cfg.MTBridge.Timeout, "FXBOT_MTBRIDGE_TIMEOUT")

	// ── Trading ──
	setStr(&cfg.Trading.Symbol, "FXBOT_TRADING_SYMBOL")
	setStr(&cfg.Trading.Timeframe, "FXBOT_TRADING_TIMEFRAME")
	setDuration(&cfg.Trading.Interval, "FXBOT_TRADING_INTERVAL")
	setDuration(&cfg.Trading.VenueTimeout, "FXBOT_TRADING_VENUE_TIMEOUT")
	setDuration(&cfg.Trading.Retention, "FXBOT_TRADING_RETENTION")
	setBool(&cfg.Trading.Paper, "FXBOT_TRADING_PAPER")
	setBool(&cfg.Trading.Stream, "FXBOT_TRADING_STREAM")

	// ── Signal ──
	setInt(&cfg.Signal.RSIPeriod, "FXBOT_SIGNAL_RSI_PERIOD")
	setFloat64(&cfg.Signal.Overbought, "FXBOT_SIGNAL_OVERBOUGHT")
	setFloat64(&cfg.Signal.Oversold, "FXBOT_SIGNAL_OVERSOLD")
	setInt(&cfg.Signal.EMAPeriod, "FXBOT_SIGNAL_EMA_PERIOD")
	setInt(&cfg.Signal.MACDFast, "FXBOT_SIGNAL_MACD_FAST")
	setInt(&cfg.Signal.MACDSlow, "FXBOT_SIGNAL_MACD_SLOW")
	setInt(&cfg.Signal.MACDSignal, "FXBOT_SIGNAL_MACD_SIGNAL")
	setInt(&cfg.Signal.ATRPeriod, "FXBOT_SIGNAL_ATR_PERIOD")

	// ── Risk ──
	setFloat64(&cfg.Risk.DailyLossLimit, "FXBOT_RISK_DAILY_LOSS_LIMIT")
	setFloat64(&cfg.Risk.RiskPerTrade, "FXBOT_RISK_RISK_PER_TRADE")
	setFloat64(&cfg.Risk.MaxPositionSize, "FXBOT_RISK_MAX_POSITION_SIZE")

	// ── Hedge ──
	setBool(&cfg.Hedge.Enabled, "FXBOT_HEDGE_ENABLED")
	setStr(&cfg.Hedge.Symbol, "FXBOT_HEDGE_SYMBOL")
	setFloat64(&cfg.Hedge.Ratio, "FXBOT_HEDGE_RATIO")
	setFloat64(&cfg.Hedge.Tolerance, "FXBOT_HEDGE_TOLERANCE")

	// ── Arb ──
	setBool(&cfg.Arb.Enabled, "FXBOT_ARB_ENABLED")
	setStr(&cfg.Arb.Symbol, "FXBOT_ARB_SYMBOL")
	setFloat64(&cfg.Arb.MinProfitThreshold, "FXBOT_ARB_MIN_PROFIT_THRESHOLD")
	setFloat64(&cfg.Arb.MinQuantity, "FXBOT_ARB_MIN_QUANTITY")
	setInt(&cfg.Arb.BookDepth, "FXBOT_ARB_BOOK_DEPTH")

	// ── Monitor ──
	setInt(&cfg.Monitor.Buffer, "FXBOT_MONITOR_BUFFER")
	setStr(&cfg.Monitor.BusChannel, "FXBOT_MONITOR_BUS_CHANNEL")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "FXBOT_METRICS_ENABLED")
	setStr(&cfg.Metrics.Addr, "FXBOT_METRICS_ADDR")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "FXBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "FXBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FXBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FXBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FXBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FXBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FXBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FXBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FXBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FXBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FXBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "FXBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "FXBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FXBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FXBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FXBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FXBOT_REDIS_MAX_RETRIES")
	setDuration(&cfg.Redis.DialTimeout, "FXBOT_REDIS_DIAL_TIMEOUT")
	setBool(&cfg.Redis.TLSEnabled, "FXBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "FXBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FXBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FXBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "FXBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FXBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FXBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FXBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FXBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "FXBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "FXBOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "FXBOT_ARCHIVE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FXBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FXBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FXBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FXBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FXBOT_MODE")
	setStr(&cfg.LogLevel, "FXBOT_LOG_LEVEL")
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
