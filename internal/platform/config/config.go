package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Chain    ChainConfig
	Oracle   OracleConfig

	// IdempotencyTTL is how long submitted order idempotency keys are retained.
	IdempotencyTTL time.Duration
	// OrderSweepInterval controls the periodic purge of expired resting orders.
	OrderSweepInterval time.Duration
	// SettlementWorkers is the number of concurrent settlement executors.
	SettlementWorkers int
}

// PostgresConfig holds database connection settings. Empty URL means the
// service runs on in-memory stores.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds Redis connection settings. Empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds event publishing settings. Empty Brokers disables
// publishing.
type KafkaConfig struct {
	Brokers []string
}

// ChainConfig holds settlement chain settings.
type ChainConfig struct {
	RPCURL     string
	ChainID    int64
	PrivateKey string
}

// OracleConfig points at the external valuation oracle. Empty URL falls back
// to the built-in risk heuristics.
type OracleConfig struct {
	URL     string
	Timeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("MARKETPLACE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		Postgres: PostgresConfig{
			URL:          os.Getenv("POSTGRES_URL"),
			MaxOpenConns: envInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("POSTGRES_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{Brokers: brokers},
		Chain: ChainConfig{
			RPCURL:     os.Getenv("CHAIN_RPC_URL"),
			ChainID:    int64(envInt("CHAIN_ID", 42161)),
			PrivateKey: os.Getenv("CHAIN_PRIVATE_KEY"),
		},
		Oracle: OracleConfig{
			URL:     os.Getenv("ORACLE_URL"),
			Timeout: envDuration("ORACLE_TIMEOUT", 30*time.Second),
		},
		IdempotencyTTL:     envDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		OrderSweepInterval: envDuration("ORDER_SWEEP_INTERVAL", time.Minute),
		SettlementWorkers:  envInt("SETTLEMENT_WORKERS", 4),
	}
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return fallback
}
