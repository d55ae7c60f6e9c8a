package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the ingestion service
type Config struct {
	// ClickHouse configuration
	ClickHouseHost string
	ClickHousePort int
	ClickHouseDB   string

	// Servers file supplying ingestion targets
	ServersPath string

	// State store
	StateDBPath string

	// Scheduling
	KillfeedInterval time.Duration // tick interval for the kill-feed pipeline
	GameLogInterval  time.Duration // tick interval for the game-log pipeline

	// Per-tick limits
	ServerBatchSize    int           // servers processed concurrently
	KillfeedTimeout    time.Duration // per-server timeout, kill-feed run
	GameLogTimeout     time.Duration // per-server timeout, game-log run
	TickCeiling        time.Duration // wall-clock ceiling for a whole tick
	MemoryCeilingMB    int           // skip the tick above this heap size, 0 disables
	EventBatchSize     int           // events per sink insert
	StaleAfterDays     int           // kill-feed resume point older than this is stale
	StaleResetDays     int           // stale timestamps are reset to now minus this
	HistoricalDays     int           // default historical rebuild look-back
	FirstContactHours  int           // look-back window for never-seen servers
	MaxFilesPerRun     int           // upper bound on files considered per run
	ConnectMaxAttempts int           // reconnect attempts before skipping a tick

	// HTTP API
	APIAddr string // empty disables the API server

	// Observability
	LogLevel       string
	LogFile        string
	TracingEnabled bool
	OTLPEndpoint   string
	OTLPProtocol   string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ClickHouseHost: getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort: getEnvInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "killfeed"),

		ServersPath: getEnv("SERVERS_PATH", "configs/servers.yaml"),
		StateDBPath: getEnv("STATE_DB_PATH", "data/ingest_state.db"),

		KillfeedInterval: getEnvDuration("KILLFEED_INTERVAL", 5*time.Minute),
		GameLogInterval:  getEnvDuration("GAMELOG_INTERVAL", 5*time.Minute),

		ServerBatchSize:    getEnvInt("SERVER_BATCH_SIZE", 3),
		KillfeedTimeout:    getEnvDuration("KILLFEED_TIMEOUT", 120*time.Second),
		GameLogTimeout:     getEnvDuration("GAMELOG_TIMEOUT", 60*time.Second),
		TickCeiling:        getEnvDuration("TICK_CEILING", 5*time.Minute),
		MemoryCeilingMB:    getEnvInt("MEMORY_CEILING_MB", 500),
		EventBatchSize:     getEnvInt("EVENT_BATCH_SIZE", 100),
		StaleAfterDays:     getEnvInt("STALE_AFTER_DAYS", 7),
		StaleResetDays:     getEnvInt("STALE_RESET_DAYS", 30),
		HistoricalDays:     getEnvInt("HISTORICAL_DAYS", 30),
		FirstContactHours:  getEnvInt("FIRST_CONTACT_HOURS", 24),
		MaxFilesPerRun:     getEnvInt("MAX_FILES_PER_RUN", 1000),
		ConnectMaxAttempts: getEnvInt("CONNECT_MAX_ATTEMPTS", 3),

		APIAddr: getEnv("API_ADDR", ":8080"),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFile:        getEnv("LOG_FILE", ""),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", ""),
		OTLPProtocol:   getEnv("OTLP_PROTOCOL", "grpc"),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ClickHouseHost == "" {
		return fmt.Errorf("CLICKHOUSE_HOST is required")
	}
	if c.ClickHousePort <= 0 || c.ClickHousePort > 65535 {
		return fmt.Errorf("CLICKHOUSE_PORT must be between 1 and 65535")
	}
	if c.ClickHouseDB == "" {
		return fmt.Errorf("CLICKHOUSE_DB is required")
	}
	if c.ServersPath == "" {
		return fmt.Errorf("SERVERS_PATH is required")
	}
	if c.StateDBPath == "" {
		return fmt.Errorf("STATE_DB_PATH is required")
	}
	if c.ServerBatchSize < 1 {
		return fmt.Errorf("SERVER_BATCH_SIZE must be at least 1")
	}
	if c.EventBatchSize < 1 {
		return fmt.Errorf("EVENT_BATCH_SIZE must be at least 1")
	}
	if c.StaleAfterDays < 1 || c.StaleResetDays < c.StaleAfterDays {
		return fmt.Errorf("STALE_RESET_DAYS must be >= STALE_AFTER_DAYS >= 1")
	}
	if c.HistoricalDays < 1 {
		return fmt.Errorf("HISTORICAL_DAYS must be at least 1")
	}
	if c.TickCeiling < c.KillfeedTimeout {
		return fmt.Errorf("TICK_CEILING must not be shorter than KILLFEED_TIMEOUT")
	}

	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
