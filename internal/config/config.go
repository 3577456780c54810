// Package config defines the top-level configuration for the fx bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by FXBOT_* environment variables.
type Config struct {
	Binance  BinanceConfig  `toml:"binance"`
	MTBridge MTBridgeConfig `toml:"mtbridge"`
	Trading  TradingConfig  `toml:"trading"`
	Signal   SignalConfig   `toml:"signal"`
	Risk     RiskConfig     `toml:"risk"`
	Hedge    HedgeConfig    `toml:"hedge"`
	Arb      ArbConfig      `toml:"arb"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BinanceConfig holds Binance spot API parameters.
type BinanceConfig struct {
	Enabled             bool     `toml:"enabled"`
	BaseURL             string   `toml:"base_url"`
	WSURL               string   `toml:"ws_url"`
	APIKey              string   `toml:"api_key"`
	APISecret           string   `toml:"api_secret"`
	EncryptedSecretPath string   `toml:"encrypted_secret_path"`
	SecretPassword      string   `toml:"secret_password"`
	QuoteAsset          string   `toml:"quote_asset"`
	RequestsPerSec      float64  `toml:"requests_per_sec"`
	Burst               int      `toml:"burst"`
	Timeout             duration `toml:"timeout"`
}

// MTBridgeConfig holds parameters for the MetaTrader bridge REST API.
type MTBridgeConfig struct {
	Enabled        bool     `toml:"enabled"`
	BaseURL        string   `toml:"base_url"`
	Token          string   `toml:"token"`
	RequestsPerSec float64  `toml:"requests_per_sec"`
	Burst          int      `toml:"burst"`
	Timeout        duration `toml:"timeout"`
}

// TradingConfig holds the trading loop parameters.
type TradingConfig struct {
	Symbol       string   `toml:"symbol"`
	Timeframe    string   `toml:"timeframe"`
	Interval     duration `toml:"interval"`
	VenueTimeout duration `toml:"venue_timeout"`
	Retention    duration `toml:"retention"`
	// Paper runs against the in-memory venue instead of a live one.
	Paper bool `toml:"paper"`
	// Stream consumes the websocket kline feed alongside REST polling.
	Stream bool `toml:"stream"`
}

// SignalConfig holds the technical indicator parameters.
type SignalConfig struct {
	RSIPeriod  int     `toml:"rsi_period"`
	Overbought float64 `toml:"overbought"`
	Oversold   float64 `toml:"oversold"`
	EMAPeriod  int     `toml:"ema_period"`
	MACDFast   int     `toml:"macd_fast"`
	MACDSlow   int     `toml:"macd_slow"`
	MACDSignal int     `toml:"macd_signal"`
	ATRPeriod  int     `toml:"atr_period"`
}

// RiskConfig holds the risk gate limits.
type RiskConfig struct {
	DailyLossLimit  float64 `toml:"daily_loss_limit"`
	RiskPerTrade    float64 `toml:"risk_per_trade"`
	MaxPositionSize float64 `toml:"max_position_size"`
}

// HedgeConfig holds the portfolio hedging parameters.
type HedgeConfig struct {
	Enabled   bool    `toml:"enabled"`
	Symbol    string  `toml:"symbol"`
	Ratio     float64 `toml:"ratio"`
	Tolerance float64 `toml:"tolerance"`
}

// ArbConfig holds the arbitrage scanner parameters.
type ArbConfig struct {
	Enabled            bool    `toml:"enabled"`
	Symbol             string  `toml:"symbol"`
	MinProfitThreshold float64 `toml:"min_profit_threshold"`
	MinQuantity        float64 `toml:"min_quantity"`
	BookDepth          int     `toml:"book_depth"`
}

// MonitorConfig holds the trade monitor parameters.
type MonitorConfig struct {
	Buffer     int    `toml:"buffer"`
	BusChannel string `toml:"bus_channel"`
}

// MetricsConfig holds the Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	DialTimeout duration `toml:"dial_timeout"`
	TLSEnabled  bool     `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
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

// ArchiveConfig holds the trade archival schedule.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML decoding accepts strings like "60s"
// or "5m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Binance: BinanceConfig{
			Enabled:        true,
			BaseURL:        "https://api.binance.com",
			WSURL:          "wss://stream.binance.com:9443/ws",
			QuoteAsset:     "USDT",
			RequestsPerSec: 10,
			Burst:          20,
			Timeout:        duration{10 * time.Second},
		},
		MTBridge: MTBridgeConfig{
			Enabled:        false,
			BaseURL:        "http://localhost:8080",
			RequestsPerSec: 5,
			Burst:          10,
			Timeout:        duration{10 * time.Second},
		},
		Trading: TradingConfig{
			Symbol:       "EURUSD",
			Timeframe:    "1m",
			Interval:     duration{60 * time.Second},
			VenueTimeout: duration{15 * time.Second},
			Retention:    duration{2 * time.Hour},
			Paper:        false,
			Stream:       true,
		},
		Signal: SignalConfig{
			RSIPeriod:  14,
			Overbought: 70,
			Oversold:   30,
			EMAPeriod:  20,
			MACDFast:   12,
			MACDSlow:   26,
			MACDSignal: 9,
			ATRPeriod:  14,
		},
		Risk: RiskConfig{
			DailyLossLimit:  500,
			RiskPerTrade:    0.02,
			MaxPositionSize: 0.1,
		},
		Hedge: HedgeConfig{
			Enabled:   true,
			Symbol:    "XAUUSD",
			Ratio:     0.5,
			Tolerance: 10,
		},
		Arb: ArbConfig{
			Enabled:            true,
			Symbol:             "EURUSD",
			MinProfitThreshold: 0.005,
			MinQuantity:        0.01,
			BookDepth:          5,
		},
		Monitor: MonitorConfig{
			Buffer:     256,
			BusChannel: "trades",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9100",
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "fxbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:     false,
			Addr:        "localhost:6379",
			PoolSize:    20,
			MaxRetries:  3,
			DialTimeout: duration{5 * time.Second},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "fxbot-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"fill", "risk_breach", "arbitrage", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validTimeframes enumerates the accepted bar timeframes.
var validTimeframes = map[string]bool{
	"1m": true, "5m": true, "15m": true, "1h": true, "1d": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venues: unless paper trading, at least one live venue must be enabled,
	// with credentials.
	if !c.Trading.Paper {
		if !c.Binance.Enabled && !c.MTBridge.Enabled {
			errs = append(errs, "trading: enable binance or mtbridge, or set trading.paper = true")
		}
		if c.Binance.Enabled {
			if c.Binance.APIKey == "" {
				errs = append(errs, "binance: api_key must not be empty")
			}
			if c.Binance.APISecret == "" && c.Binance.EncryptedSecretPath == "" {
				errs = append(errs, "binance: either api_secret or encrypted_secret_path must be set")
			}
			if c.Binance.EncryptedSecretPath != "" && c.Binance.SecretPassword == "" {
				errs = append(errs, "binance: secret_password is required when encrypted_secret_path is set")
			}
		}
		if c.MTBridge.Enabled {
			if c.MTBridge.BaseURL == "" {
				errs = append(errs, "mtbridge: base_url must not be empty")
			}
			if c.MTBridge.Token == "" {
				errs = append(errs, "mtbridge: token must not be empty")
			}
		}
	}

	// Trading loop
	if c.Trading.Symbol == "" {
		errs = append(errs, "trading: symbol must not be empty")
	}
	if !validTimeframes[c.Trading.Timeframe] {
		errs = append(errs, fmt.Sprintf("trading: unknown timeframe %q (valid: 1m, 5m, 15m, 1h, 1d)", c.Trading.Timeframe))
	}
	if c.Trading.Interval.Duration <= 0 {
		errs = append(errs, "trading: interval must be positive")
	}
	if c.Trading.VenueTimeout.Duration <= 0 {
		errs = append(errs, "trading: venue_timeout must be positive")
	}
	if c.Trading.Retention.Duration <= 0 {
		errs = append(errs, "trading: retention must be positive")
	}

	// Signal periods
	if c.Signal.RSIPeriod < 2 {
		errs = append(errs, "signal: rsi_period must be >= 2")
	}
	if c.Signal.Oversold >= c.Signal.Overbought {
		errs = append(errs, "signal: oversold must be below overbought")
	}
	if c.Signal.EMAPeriod < 1 {
		errs = append(errs, "signal: ema_period must be >= 1")
	}
	if c.Signal.MACDFast >= c.Signal.MACDSlow {
		errs = append(errs, "signal: macd_fast must be below macd_slow")
	}
	if c.Signal.ATRPeriod < 1 {
		errs = append(errs, "signal: atr_period must be >= 1")
	}

	// Risk limits
	if c.Risk.DailyLossLimit <= 0 {
		errs = append(errs, "risk: daily_loss_limit must be > 0")
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 1 {
		errs = append(errs, "risk: risk_per_trade must be in (0, 1]")
	}
	if c.Risk.MaxPositionSize <= 0 || c.Risk.MaxPositionSize > 1 {
		errs = append(errs, "risk: max_position_size must be in (0, 1]")
	}

	// Hedge
	if c.Hedge.Enabled {
		if c.Hedge.Symbol == "" {
			errs = append(errs, "hedge: symbol must not be empty when enabled")
		}
		if c.Hedge.Ratio <= 0 || c.Hedge.Ratio >= 1 {
			errs = append(errs, "hedge: ratio must be in (0, 1) when enabled")
		}
		if c.Hedge.Tolerance < 0 {
			errs = append(errs, "hedge: tolerance must be >= 0")
		}
	}

	// Arb
	if c.Arb.Enabled {
		if c.Arb.Symbol == "" {
			errs = append(errs, "arb: symbol must not be empty when enabled")
		}
		if c.Arb.MinProfitThreshold <= 0 {
			errs = append(errs, "arb: min_profit_threshold must be > 0 when enabled")
		}
		if c.Arb.MinQuantity <= 0 {
			errs = append(errs, "arb: min_quantity must be > 0 when enabled")
		}
	}

	// Monitor
	if c.Monitor.Buffer < 1 {
		errs = append(errs, "monitor: buffer must be >= 1")
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics: addr must not be empty when enabled")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	// Archive needs both the database and object storage.
	if c.Archive.Enabled {
		if !c.Postgres.Enabled || !c.S3.Enabled {
			errs = append(errs, "archive: requires postgres and s3 to be enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
