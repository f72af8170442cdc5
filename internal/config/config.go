// Package config loads the daemon configuration from the environment and
// the optional token registry file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Log      LogConfig
	API      APIConfig
	DB       DBConfig
	Redis    RedisConfig
	Tracing  TracingConfig
	Solana   ChainConfig
	Ethereum ChainConfig
	Signer   SignerConfig
	Price    PriceConfig
	Retry    RetryConfig
	RPC      RPCConfig
	Selector SelectorConfig
	Alert    AlertConfig

	// TokensFile optionally overrides the built-in token registry.
	TokensFile string
}

type LogConfig struct {
	Level string
}

type APIConfig struct {
	Addr string
}

type DBConfig struct {
	// URL empty means run on the in-memory ledger and contact store.
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// PoolStatsInterval is how often pool gauges are sampled; 0 disables.
	PoolStatsInterval time.Duration
}

type RedisConfig struct {
	// URL empty means publish payment events to the in-memory stream.
	URL string
}

type TracingConfig struct {
	Endpoint string
	Insecure bool
}

// ChainConfig wires one chain. A chain is enabled when both its RPC URL and
// wallet address are set.
type ChainConfig struct {
	RPCURL  string
	Network string
	Wallet  string
}

// Enabled reports whether the chain is configured for use.
func (c ChainConfig) Enabled() bool {
	return c.RPCURL != "" && c.Wallet != ""
}

type SignerConfig struct {
	// URL of the signing sidecar. Empty disables transfers; quotes and
	// balances keep working.
	URL string
}

type PriceConfig struct {
	CoinGeckoURL string
	// StreamURL optionally enables the websocket price stream.
	StreamURL    string
	TTL          time.Duration
	StaleCeiling time.Duration
}

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64
}

type RPCConfig struct {
	RateLimit float64
	RateBurst int
}

type SelectorConfig struct {
	MaxSuggestions int
}

type AlertConfig struct {
	SlackWebhookURL string
	WebhookURL      string
	Cooldown        time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		API: APIConfig{
			Addr: getEnv("API_ADDR", ":8080"),
		},
		DB: DBConfig{
			URL:               getEnv("DATABASE_URL", ""),
			MaxOpenConns:      getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:      getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:   time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
			PoolStatsInterval: getEnvDuration("DB_POOL_STATS_INTERVAL", 15*time.Second),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Tracing: TracingConfig{
			Endpoint: getEnv("OTLP_ENDPOINT", ""),
			Insecure: getEnvBool("OTLP_INSECURE", true),
		},
		Solana: ChainConfig{
			RPCURL:  getEnv("SOLANA_RPC_URL", ""),
			Network: getEnv("SOLANA_NETWORK", "devnet"),
			Wallet:  getEnv("SOLANA_WALLET_ADDRESS", ""),
		},
		Ethereum: ChainConfig{
			RPCURL:  getEnv("ETHEREUM_RPC_URL", ""),
			Network: getEnv("ETHEREUM_NETWORK", "sepolia"),
			Wallet:  getEnv("ETHEREUM_WALLET_ADDRESS", ""),
		},
		Signer: SignerConfig{
			URL: getEnv("SIGNER_URL", ""),
		},
		Price: PriceConfig{
			CoinGeckoURL: getEnv("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
			StreamURL:    getEnv("PRICE_WS_URL", ""),
			TTL:          getEnvDuration("PRICE_TTL", 30*time.Second),
			StaleCeiling: getEnvDuration("PRICE_STALE_CEILING", 5*time.Minute),
		},
		Retry: RetryConfig{
			MaxRetries: getEnvInt("RETRY_MAX", 3),
			BaseDelay:  getEnvDuration("RETRY_BASE_DELAY", 1*time.Second),
			MaxDelay:   getEnvDuration("RETRY_MAX_DELAY", 60*time.Second),
			Jitter:     getEnvFloat("RETRY_JITTER", 0.25),
		},
		RPC: RPCConfig{
			RateLimit: getEnvFloat("RPC_RATE_LIMIT", 10),
			RateBurst: getEnvInt("RPC_RATE_BURST", 20),
		},
		Selector: SelectorConfig{
			MaxSuggestions: getEnvInt("MAX_SUGGESTIONS", 3),
		},
		Alert: AlertConfig{
			SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			WebhookURL:      getEnv("ALERT_WEBHOOK_URL", ""),
			Cooldown:        getEnvDuration("ALERT_COOLDOWN", 5*time.Minute),
		},
		TokensFile: getEnv("TOKENS_FILE", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.Solana.Enabled() && !c.Ethereum.Enabled() {
		return fmt.Errorf("no chain configured: set SOLANA_RPC_URL+SOLANA_WALLET_ADDRESS or ETHEREUM_RPC_URL+ETHEREUM_WALLET_ADDRESS")
	}
	if c.Price.TTL <= 0 {
		return fmt.Errorf("PRICE_TTL must be positive")
	}
	if c.Price.StaleCeiling < c.Price.TTL {
		return fmt.Errorf("PRICE_STALE_CEILING must be at least PRICE_TTL")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("RETRY_MAX must be >= 0")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay <= 0 {
		return fmt.Errorf("retry delays must be positive")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("RETRY_MAX_DELAY must be at least RETRY_BASE_DELAY")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter >= 1 {
		return fmt.Errorf("RETRY_JITTER must be in [0,1)")
	}
	if c.RPC.RateLimit <= 0 || c.RPC.RateBurst <= 0 {
		return fmt.Errorf("RPC_RATE_LIMIT and RPC_RATE_BURST must be positive")
	}
	if c.Selector.MaxSuggestions < 1 {
		return fmt.Errorf("MAX_SUGGESTIONS must be >= 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
