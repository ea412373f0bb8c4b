package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Postgres connection string
	DatabaseURL string

	// EVM JSON-RPC endpoint used for gas estimation and submission
	RPCURL string

	// Default network tag for broadcasts that omit one
	DefaultNetwork string

	// HTTP API port
	APIPort int

	// Logging level: debug, info, warn, error
	LogLevel string

	// Broadcast validity window when the request omits expiry_minutes
	BroadcastExpiry time.Duration

	// Settled-broadcast cleanup
	BroadcastRetention   time.Duration
	CleanupSweepInterval time.Duration

	// Gas estimation
	GasCacheTTL   time.Duration
	GasSafetyMult float64
	ChainTimeout  time.Duration

	// Transaction submission. Execution is disabled when the key is empty.
	SubmitterKey string
	ChainID      int64

	// Execution coordinator
	ExecutionSweepInterval time.Duration

	// Contract registry cache
	RegistryCacheTTL time.Duration

	// Delivery channel
	DeliveryMaxAttempts   int
	HeartbeatInterval     time.Duration
	StatsPushInterval     time.Duration
	DeliveryRetryInterval time.Duration

	// Expiry reaper
	ConfirmationSweepInterval time.Duration
	SubscriptionSweepInterval time.Duration
	ExpiryWarningHorizon      time.Duration
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RPCURL:         getEnv("RPC_URL", "http://localhost:8545"),
		DefaultNetwork: getEnv("DEFAULT_NETWORK", "mainnet"),
		APIPort:        getEnvAsInt("API_PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		BroadcastExpiry: minutes("BROADCAST_EXPIRY_MINUTES", 5),

		BroadcastRetention:   time.Duration(getEnvAsInt("BROADCAST_RETENTION_HOURS", 24)) * time.Hour,
		CleanupSweepInterval: minutes("CLEANUP_SWEEP_MIN", 60),

		GasCacheTTL:   seconds("GAS_CACHE_TTL_SEC", 30),
		GasSafetyMult: getEnvAsFloat("GAS_SAFETY_MULTIPLIER", 1.2),
		ChainTimeout:  seconds("CHAIN_TIMEOUT_SEC", 10),

		SubmitterKey: os.Getenv("SUBMITTER_PRIVATE_KEY"),
		ChainID:      int64(getEnvAsInt("CHAIN_ID", 1)),

		ExecutionSweepInterval: seconds("EXECUTION_SWEEP_SEC", 15),

		RegistryCacheTTL: minutes("REGISTRY_CACHE_TTL_MIN", 10),

		DeliveryMaxAttempts:   getEnvAsInt("DELIVERY_MAX_ATTEMPTS", 3),
		HeartbeatInterval:     seconds("HEARTBEAT_INTERVAL_SEC", 30),
		StatsPushInterval:     seconds("STATS_PUSH_INTERVAL_SEC", 60),
		DeliveryRetryInterval: seconds("DELIVERY_RETRY_SEC", 30),

		ConfirmationSweepInterval: seconds("CONFIRMATION_SWEEP_SEC", 60),
		SubscriptionSweepInterval: minutes("SUBSCRIPTION_SWEEP_MIN", 60),
		ExpiryWarningHorizon:      minutes("EXPIRY_WARNING_MIN", 5),
	}
}

// Validate checks that required configuration is present and sane.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.GasSafetyMult < 1.0 {
		return fmt.Errorf("GAS_SAFETY_MULTIPLIER must be >= 1.0, got %v", c.GasSafetyMult)
	}
	if c.SubmitterKey != "" && c.ChainID <= 0 {
		return fmt.Errorf("CHAIN_ID must be positive when SUBMITTER_PRIVATE_KEY is set, got %d", c.ChainID)
	}
	if c.DeliveryMaxAttempts < 1 {
		return fmt.Errorf("DELIVERY_MAX_ATTEMPTS must be >= 1, got %d", c.DeliveryMaxAttempts)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return defaultVal
	}
	return val
}

func seconds(key string, defaultVal int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultVal)) * time.Second
}

func minutes(key string, defaultVal int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultVal)) * time.Minute
}
