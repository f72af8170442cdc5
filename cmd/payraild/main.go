package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/payrail/payrail/internal/alert"
	"github.com/payrail/payrail/internal/api"
	"github.com/payrail/payrail/internal/balance"
	"github.com/payrail/payrail/internal/chain"
	"github.com/payrail/payrail/internal/chain/evm"
	"github.com/payrail/payrail/internal/chain/ratelimit"
	"github.com/payrail/payrail/internal/chain/signer"
	"github.com/payrail/payrail/internal/chain/solana"
	"github.com/payrail/payrail/internal/config"
	"github.com/payrail/payrail/internal/contacts"
	"github.com/payrail/payrail/internal/convert"
	"github.com/payrail/payrail/internal/domain/model"
	"github.com/payrail/payrail/internal/engine"
	"github.com/payrail/payrail/internal/ledger"
	"github.com/payrail/payrail/internal/metrics"
	"github.com/payrail/payrail/internal/price"
	"github.com/payrail/payrail/internal/retry"
	"github.com/payrail/payrail/internal/selector"
	"github.com/payrail/payrail/internal/store"
	"github.com/payrail/payrail/internal/store/postgres"
	redispkg "github.com/payrail/payrail/internal/store/redis"
	"github.com/payrail/payrail/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

var (
	newStreamFactory         = func(redisURL string) (redispkg.MessageTransport, error) { return redispkg.NewStream(redisURL) }
	newInMemoryStreamFactory = func() redispkg.MessageTransport { return redispkg.NewInMemoryStream() }
)

// payTarget is one configured chain endpoint: the adapter and the hot wallet
// it spends from.
type payTarget struct {
	adapter chain.Adapter
	wallet  string
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildPayTargets constructs an adapter per enabled chain. A nil signer
// client leaves the adapters read-only: balances and validation work,
// transfers are refused.
func buildPayTargets(cfg *config.Config, signerClient *signer.Client, logger *slog.Logger) []payTarget {
	var targets []payTarget

	if cfg.Solana.Enabled() {
		var tc solana.TransferClient
		if signerClient != nil {
			tc = signerClient
		}
		limiter := ratelimit.NewLimiter(cfg.RPC.RateLimit, cfg.RPC.RateBurst, model.ChainSolana.String())
		targets = append(targets, payTarget{
			adapter: solana.NewAdapter(cfg.Solana.RPCURL, model.Network(cfg.Solana.Network), tc, limiter, logger),
			wallet:  cfg.Solana.Wallet,
		})
	}

	if cfg.Ethereum.Enabled() {
		var tc evm.TransferClient
		if signerClient != nil {
			tc = signerClient
		}
		limiter := ratelimit.NewLimiter(cfg.RPC.RateLimit, cfg.RPC.RateBurst, model.ChainEthereum.String())
		targets = append(targets, payTarget{
			adapter: evm.NewAdapter(model.ChainEthereum, cfg.Ethereum.RPCURL, model.Network(cfg.Ethereum.Network), tc, limiter, logger),
			wallet:  cfg.Ethereum.Wallet,
		})
	}

	return targets
}

// resolveTransport picks the payment event backend: Redis streams when a URL
// is configured, the in-process stream otherwise.
func resolveTransport(redisURL string, logger *slog.Logger) (redispkg.MessageTransport, error) {
	if redisURL == "" {
		return newInMemoryStreamFactory(), nil
	}
	transport, err := newStreamFactory(redisURL)
	if err != nil {
		return nil, fmt.Errorf("initialize redis stream transport: %w", err)
	}
	logger.Info("redis stream transport enabled", "redis_url", redisURL)
	return transport, nil
}

// buildAlerter assembles the alert fan-out from the configured channels.
// Returns nil when no channel is configured so callers degrade to logging.
func buildAlerter(cfg config.AlertConfig, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.WebhookURL))
	}
	if len(channels) == 0 {
		return nil
	}
	return alert.NewMultiAlerter(cfg.Cooldown, logger, channels...)
}

type dbStatsProvider interface {
	Stats() sql.DBStats
}

func collectDBPoolStats(db dbStatsProvider) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("db pool stats collection panicked: %v", r)
		}
	}()
	if db == nil {
		return fmt.Errorf("db stats provider is nil")
	}

	stats := db.Stats()
	metrics.DBPoolOpen.Set(float64(stats.OpenConnections))
	metrics.DBPoolInUse.Set(float64(stats.InUse))
	metrics.DBPoolIdle.Set(float64(stats.Idle))
	metrics.DBPoolWaitCount.Set(float64(stats.WaitCount))
	metrics.DBPoolWaitDurationSeconds.Set(stats.WaitDuration.Seconds())
	return nil
}

func startDBPoolStatsPump(ctx context.Context, db dbStatsProvider, interval time.Duration, logger *slog.Logger) {
	if db == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()

		if err := collectDBPoolStats(db); err != nil {
			logger.Warn("failed to collect initial db pool stats", "error", err)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := collectDBPoolStats(db); err != nil {
					logger.Warn("failed to collect db pool stats", "error", err)
				}
			}
		}
	}()
}

func runAPIServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("api server shutdown error", "error", err)
		}
	}()

	logger.Info("api server started", "addr", addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	logger.Info("starting payraild",
		"api_addr", cfg.API.Addr,
		"solana_enabled", cfg.Solana.Enabled(),
		"solana_network", cfg.Solana.Network,
		"ethereum_enabled", cfg.Ethereum.Enabled(),
		"ethereum_network", cfg.Ethereum.Network,
		"signer_configured", cfg.Signer.URL != "",
		"db_configured", cfg.DB.URL != "",
		"redis_configured", cfg.Redis.URL != "",
	)

	shutdownTracing, err := tracing.Init(context.Background(), "payraild", cfg.Tracing.Endpoint, cfg.Tracing.Insecure)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	registry, err := config.LoadRegistry(cfg.TokensFile)
	if err != nil {
		logger.Error("failed to load token registry", "error", err)
		os.Exit(1)
	}
	logger.Info("token registry loaded", "tokens", registry.Symbols())

	// Storage: postgres when DATABASE_URL is set, in-memory otherwise.
	var (
		paymentLedger ledger.Ledger
		contactRepo   store.ContactRepository
		attemptRepo   store.AttemptRepository
		db            *postgres.DB
	)
	if cfg.DB.URL != "" {
		db, err = postgres.New(postgres.Config{
			URL:             cfg.DB.URL,
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.RunMigrations(); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")

		paymentLedger = ledger.NewCached(postgres.NewLedgerRepo(db))
		contactRepo = postgres.NewContactRepo(db)
		attemptRepo = postgres.NewAttemptRepo(db)
	} else {
		logger.Warn("no database configured; payments will not survive restarts")
		paymentLedger = ledger.NewMemory()
		contactRepo = store.NewMemoryContactRepo()
		attemptRepo = store.NewMemoryAttemptRepo()
	}

	transport, err := resolveTransport(cfg.Redis.URL, logger)
	if err != nil {
		logger.Error("failed to initialize event transport", "error", err, "redis_url", cfg.Redis.URL)
		os.Exit(1)
	}
	defer transport.Close()

	var signerClient *signer.Client
	if cfg.Signer.URL != "" {
		signerClient = signer.NewClient(cfg.Signer.URL, logger)
	} else {
		logger.Warn("no signer configured; transfers are disabled")
	}

	alerter := buildAlerter(cfg.Alert, logger)

	policy := retry.Policy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
		Jitter:     cfg.Retry.Jitter,
	}

	feed := price.NewCoinGeckoFeed(cfg.Price.CoinGeckoURL, registry, logger)
	oracleOpts := []price.OracleOption{
		price.WithTTL(cfg.Price.TTL),
		price.WithStaleCeiling(cfg.Price.StaleCeiling),
		price.WithRetryExecutor(retry.NewExecutor(policy, logger)),
	}
	if alerter != nil {
		oracleOpts = append(oracleOpts, price.WithAlerter(alerter))
	}
	oracle := price.NewOracle(feed, logger, oracleOpts...)
	converter := convert.NewConverter(registry, oracle)
	aggregator := balance.NewAggregator(registry, retry.NewExecutor(policy, logger), oracle, logger)
	sel := selector.NewSelector(registry, converter, logger, selector.WithMaxSuggestions(cfg.Selector.MaxSuggestions))
	contactSvc := contacts.NewService(registry, contactRepo, logger)

	eng, err := engine.New(engine.Config{
		Registry:   registry,
		Oracle:     oracle,
		Converter:  converter,
		Aggregator: aggregator,
		Selector:   sel,
		Ledger:     paymentLedger,
		Contacts:   contactSvc,
		Attempts:   attemptRepo,
		Transport:  transport,
		Alerter:    alerter,
		Policy:     policy,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to build payment engine", "error", err)
		os.Exit(1)
	}

	targets := buildPayTargets(cfg, signerClient, logger)
	if len(targets) == 0 {
		logger.Error("no chain adapters configured")
		os.Exit(1)
	}
	for _, target := range targets {
		eng.RegisterAdapter(target.adapter, target.wallet)
		logger.Info("chain adapter registered",
			"chain", target.adapter.Chain(),
			"network", target.adapter.Network(),
		)
	}

	rl := api.NewRateLimitMiddleware(logger)
	defer rl.Stop()
	server := api.NewServer(eng, contactSvc, logger, api.WithRateLimiter(rl))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runAPIServer(gCtx, cfg.API.Addr, server.Handler(), logger)
	})

	if cfg.Price.StreamURL != "" {
		stream := price.NewStream(cfg.Price.StreamURL, registry.Symbols(), oracle, logger)
		g.Go(func() error {
			return stream.Run(gCtx)
		})
	}

	if db != nil {
		startDBPoolStatsPump(gCtx, db.DB, cfg.DB.PoolStatsInterval, logger)
	}

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("payraild exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("payraild shut down gracefully")
}
