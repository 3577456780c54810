package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/fxbot/internal/arb"
	s3blob "github.com/alanyoungcy/fxbot/internal/blob/s3"
	"github.com/alanyoungcy/fxbot/internal/cache/redis"
	"github.com/alanyoungcy/fxbot/internal/config"
	"github.com/alanyoungcy/fxbot/internal/crypto"
	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/executor"
	"github.com/alanyoungcy/fxbot/internal/feed"
	"github.com/alanyoungcy/fxbot/internal/hedge"
	"github.com/alanyoungcy/fxbot/internal/metrics"
	"github.com/alanyoungcy/fxbot/internal/monitor"
	"github.com/alanyoungcy/fxbot/internal/notify"
	"github.com/alanyoungcy/fxbot/internal/risk"
	"github.com/alanyoungcy/fxbot/internal/signal"
	"github.com/alanyoungcy/fxbot/internal/store/postgres"
	"github.com/alanyoungcy/fxbot/internal/trader"
	"github.com/alanyoungcy/fxbot/internal/venue"
	"github.com/alanyoungcy/fxbot/internal/venue/binance"
	"github.com/alanyoungcy/fxbot/internal/venue/mtbridge"
)

// paperStartingCash is the balance the in-memory venue starts with.
const paperStartingCash = 10_000

// sharedBudgetWindow is the sliding window for the cross-instance venue
// rate limit; the budget inside it derives from the venue's requests/sec.
const sharedBudgetWindow = time.Minute

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Venues. Primary executes directional trades; Venues is every enabled
	// client and feeds the arbitrage scanner.
	Primary venue.Client
	Venues  []venue.Client

	// Market data
	Window *feed.Window
	Poller *feed.Poller
	Stream venue.BarStream // nil without a websocket feed

	// Trading pipeline
	Evaluator  *signal.Evaluator
	Gate       *risk.Gate
	Dispatcher *executor.Dispatcher
	Hedger     *hedge.Hedger // nil when disabled
	Scanner    *arb.Scanner  // nil when disabled
	Sink       *monitor.Sink

	// Infrastructure
	TradeStore domain.TradeStore  // nil without postgres
	TradeBus   domain.TradeBus    // nil without redis
	LockMgr    domain.LockManager // nil without redis
	Archiver   domain.Archiver    // nil unless archive is enabled
	Notifier   *notify.Notifier
	MetricsSrv *http.Server // nil when metrics are disabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis ---
	var (
		priceCache domain.PriceCache
		sharedRL   domain.RateLimiter
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			MaxRetries:  cfg.Redis.MaxRetries,
			DialTimeout: cfg.Redis.DialTimeout.Duration,
			TLSEnabled:  cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		priceCache = redis.NewPriceCache(redisClient)
		sharedRL = redis.NewRateLimiter(redisClient)
		deps.TradeBus = redis.NewTradeBus(redisClient)
		deps.LockMgr = redis.NewLockManager(redisClient)
	}

	// --- Venues ---
	if cfg.Trading.Paper {
		mem := venue.NewMemory("paper", paperStartingCash)
		deps.Primary = mem
		deps.Venues = append(deps.Venues, mem)
	}
	if cfg.Binance.Enabled && !cfg.Trading.Paper {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			Raw:           cfg.Binance.APISecret,
			EncryptedPath: cfg.Binance.EncryptedSecretPath,
			Password:      cfg.Binance.SecretPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: binance secret: %w", err)
		}
		bn := binance.NewClient(binance.Config{
			BaseURL:        cfg.Binance.BaseURL,
			APIKey:         cfg.Binance.APIKey,
			APISecret:      secret,
			QuoteAsset:     cfg.Binance.QuoteAsset,
			RequestsPerSec: cfg.Binance.RequestsPerSec,
			Burst:          cfg.Binance.Burst,
			Timeout:        cfg.Binance.Timeout.Duration,
		}, logger)
		if sharedRL != nil {
			bn.WithSharedLimiter(sharedRL, sharedBudget(cfg.Binance.RequestsPerSec), sharedBudgetWindow)
		}
		deps.Venues = append(deps.Venues, bn)
		if deps.Primary == nil {
			deps.Primary = bn
		}
		if cfg.Trading.Stream && cfg.Binance.WSURL != "" {
			deps.Stream = binance.NewKlineStream(
				cfg.Binance.WSURL, cfg.Trading.Symbol, cfg.Trading.Timeframe, logger)
		}
	}
	if cfg.MTBridge.Enabled && !cfg.Trading.Paper {
		mt := mtbridge.NewClient(mtbridge.Config{
			BaseURL:        cfg.MTBridge.BaseURL,
			APIKey:         cfg.MTBridge.Token,
			RequestsPerSec: cfg.MTBridge.RequestsPerSec,
			Timeout:        cfg.MTBridge.Timeout.Duration,
		}, logger)
		if sharedRL != nil {
			mt.WithSharedLimiter(sharedRL, sharedBudget(cfg.MTBridge.RequestsPerSec), sharedBudgetWindow)
		}
		deps.Venues = append(deps.Venues, mt)
		if deps.Primary == nil {
			deps.Primary = mt
		}
	}
	if deps.Primary == nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: no venue enabled")
	}

	// --- PostgreSQL ---
	var riskStore domain.RiskStore
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TradeStore = postgres.NewTradeStore(pool)
		riskStore = postgres.NewRiskStore(pool)
	}

	// --- Market data ---
	deps.Window = feed.NewWindow(cfg.Trading.Retention.Duration)
	deps.Poller = feed.NewPoller(deps.Primary, deps.Window, cfg.Trading.Symbol, cfg.Trading.Timeframe, logger)
	if priceCache != nil {
		deps.Poller.WithCache(priceCache)
	}

	// --- Risk gate ---
	deps.Gate = risk.NewGate(risk.Limits{
		DailyLossLimit:  cfg.Risk.DailyLossLimit,
		RiskPerTrade:    cfg.Risk.RiskPerTrade,
		MaxPositionSize: cfg.Risk.MaxPositionSize,
	}, logger)
	if riskStore != nil {
		deps.Gate.WithStore(riskStore)
		if deps.TradeStore != nil {
			deps.Gate.WithTrades(deps.TradeStore)
		}
		if err := deps.Gate.Restore(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: restore risk state: %w", err)
		}
	}

	// --- Monitor sink ---
	deps.Sink = monitor.NewSink(cfg.Monitor.Buffer, logger)
	if deps.TradeStore != nil {
		deps.Sink.WithStore(deps.TradeStore)
		if err := deps.Sink.Restore(ctx, cfg.Trading.Symbol); err != nil {
			logger.Warn("trade history restore failed", slog.Any("error", err))
		}
	}
	if deps.TradeBus != nil {
		deps.Sink.WithBus(deps.TradeBus, cfg.Monitor.BusChannel)
	}
	deps.Sink.WithRiskFeedback(deps.Gate.RecordFill)

	// --- Signal evaluator ---
	deps.Evaluator = signal.NewEvaluator(cfg.Trading.Symbol, signal.Params{
		RSIPeriod:  cfg.Signal.RSIPeriod,
		Overbought: cfg.Signal.Overbought,
		Oversold:   cfg.Signal.Oversold,
		EMAPeriod:  cfg.Signal.EMAPeriod,
		MACDFast:   cfg.Signal.MACDFast,
		MACDSlow:   cfg.Signal.MACDSlow,
		MACDSignal: cfg.Signal.MACDSignal,
		ATRPeriod:  cfg.Signal.ATRPeriod,
	}, logger)

	// --- Execution ---
	deps.Dispatcher = executor.NewDispatcher(deps.Primary, deps.Gate, deps.Sink, cfg.Trading.Symbol, logger)

	if cfg.Hedge.Enabled {
		deps.Hedger = hedge.NewHedger(deps.Primary, deps.Sink, hedge.Params{
			HedgeSymbol: cfg.Hedge.Symbol,
			HedgeRatio:  cfg.Hedge.Ratio,
			Tolerance:   cfg.Hedge.Tolerance,
		}, logger)
	}

	if cfg.Arb.Enabled {
		deps.Scanner = arb.NewScanner(deps.Venues, deps.Sink, arb.Params{
			Symbol:             cfg.Arb.Symbol,
			MinProfitThreshold: cfg.Arb.MinProfitThreshold,
			MinQuantity:        cfg.Arb.MinQuantity,
			BookDepth:          cfg.Arb.BookDepth,
		}, logger)
	}

	// --- S3 + archiver ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		if cfg.Archive.Enabled && deps.TradeStore != nil {
			deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.TradeStore, logger).
				WithVerifier(s3blob.NewReader(s3Client))
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Metrics ---
	if cfg.Metrics.Enabled {
		srv := metrics.Serve(cfg.Metrics.Addr)
		deps.MetricsSrv = srv
		closers = append(closers, func() { _ = srv.Shutdown(context.Background()) })
	}

	return deps, cleanup, nil
}

// sharedBudget converts a venue's requests/sec into the request count
// allowed inside the shared sliding window.
func sharedBudget(requestsPerSec float64) int {
	n := int(requestsPerSec * sharedBudgetWindow.Seconds())
	if n < 1 {
		n = 1
	}
	return n
}

// newLoop assembles the trading loop from wired dependencies.
func (a *App) newLoop(deps *Dependencies) (*trader.Loop, error) {
	return trader.NewLoop(trader.Config{
		Mode:         a.cfg.Mode,
		Interval:     a.cfg.Trading.Interval.Duration,
		VenueTimeout: a.cfg.Trading.VenueTimeout.Duration,
	}, trader.Deps{
		Client:     deps.Primary,
		Poller:     deps.Poller,
		Evaluator:  deps.Evaluator,
		Gate:       deps.Gate,
		Dispatcher: deps.Dispatcher,
		Hedger:     deps.Hedger,
		Scanner:    deps.Scanner,
		Sink:       deps.Sink,
		Notifier:   deps.Notifier,
	}, a.logger)
}
