package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application
type Config struct {
	// Ethereum node configuration shared by every chain
	Ethereum EthereumConfig

	// Checkpoint storage configuration
	Checkpoint CheckpointConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Ops server configuration
	API APIConfig

	// Indexer configuration
	Indexer IndexerConfig

	// Liquidation engine configuration
	Liquidation LiquidationConfig

	// Logging configuration
	Log LogConfig

	// Per-chain settings, loaded from ChainsFile
	Chains []ChainConfig `ignored:"true"`

	ChainsFile string `envconfig:"CHAINS_FILE" default:"chains.yaml"`
}

// EthereumConfig holds Ethereum node connection settings
type EthereumConfig struct {
	RequestTimeout    time.Duration `envconfig:"ETH_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries        int           `envconfig:"ETH_MAX_RETRIES" default:"3"`
	RetryDelay        time.Duration `envconfig:"ETH_RETRY_DELAY" default:"1s"`
	MaxRequestsPerSec float64       `envconfig:"ETH_MAX_REQUESTS_PER_SEC" default:"100"`
	MaxBurstRequests  int           `envconfig:"ETH_MAX_BURST_REQUESTS" default:"20"`
	TimestampBatch    int           `envconfig:"ETH_TIMESTAMP_BATCH_SIZE" default:"50"`
}

// CheckpointConfig selects where indexer checkpoints are persisted
type CheckpointConfig struct {
	// Backend is either "file" or "postgres"
	Backend string `envconfig:"CHECKPOINT_BACKEND" default:"file"`
	Path    string `envconfig:"INDEXER_CHECKPOINT_PATH" default:".indexer"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"liquidator"`
	Password        string        `envconfig:"DB_PASSWORD" default:"liquidator"`
	Name            string        `envconfig:"DB_NAME" default:"blue_liquidator"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// APIConfig holds ops server settings
type APIConfig struct {
	Host            string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    int           `envconfig:"API_RATE_LIMIT_RPS" default:"100"`
}

// IndexerConfig holds indexer-specific settings
type IndexerConfig struct {
	MaxBlockRange  int64         `envconfig:"INDEXER_MAX_BLOCK_RANGE" default:"10000"`
	MaxRetries     int           `envconfig:"INDEXER_MAX_RETRIES" default:"5"`
	InitialBackoff time.Duration `envconfig:"INDEXER_INITIAL_BACKOFF" default:"1s"`
	PollInterval   time.Duration `envconfig:"INDEXER_POLL_INTERVAL" default:"12s"`
}

// LiquidationConfig holds engine policy shared by every chain
type LiquidationConfig struct {
	AlwaysRealizeBadDebt    bool          `envconfig:"ALWAYS_REALIZE_BAD_DEBT" default:"true"`
	CooldownEnabled         bool          `envconfig:"POSITION_LIQUIDATION_COOLDOWN_ENABLED" default:"false"`
	CooldownPeriod          time.Duration `envconfig:"POSITION_LIQUIDATION_COOLDOWN_PERIOD" default:"1h"`
	MarketsFetchingCooldown time.Duration `envconfig:"MARKETS_FETCHING_COOLDOWN_PERIOD" default:"24h"`
	DefaultBufferBps        int64         `envconfig:"DEFAULT_LIQUIDATION_BUFFER_BPS" default:"50"`
	MorphoAPIURL            string        `envconfig:"MORPHO_API_URL" default:"https://blue-api.morpho.org/graphql"`
	FlashbotsRelayURL       string        `envconfig:"FLASHBOTS_RELAY_URL" default:"https://relay.flashbots.net"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load loads configuration from environment variables and the chains file
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	chains, err := LoadChains(cfg.ChainsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load chains file %s: %w", cfg.ChainsFile, err)
	}
	cfg.Chains = chains

	return &cfg, nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}
