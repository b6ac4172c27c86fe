package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	LedgerModeEmbedded = "embedded"
	LedgerModeRemote   = "remote"

	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	ServerPort string
	LogLevel   string
	LogFormat  string

	// LedgerMode selects the in-process ledger or the HTTP proxy to another instance.
	LedgerMode          string
	LedgerStore         string
	LedgerRemoteURL     string
	LedgerTimeout       time.Duration
	LedgerServiceSecret string

	AggregationMaxAttempts int
	AggregationBackoff     time.Duration
	AggregationTimeout     time.Duration
	ReconcileInterval      time.Duration
	ReconcileGrace         time.Duration
	ReconcileBatchSize     int

	DBDriver   string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string

	AWSRegion               string
	SQSTrafficQueueURL      string
	IoTMQTTEndpoint         string
	PlateRecognitionEnabled bool

	// Warnings collects defaulted keys so main can log them once the logger exists.
	Warnings []string
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("could not load .env file: %v", err))
	}

	cfg.ServerPort = cfg.getEnv("SERVER_PORT", "8080")
	cfg.LogLevel = cfg.getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = cfg.getEnv("LOG_FORMAT", "json")

	cfg.LedgerMode = strings.ToLower(cfg.getEnv("LEDGER_MODE", LedgerModeEmbedded))
	cfg.LedgerStore = strings.ToLower(cfg.getEnv("LEDGER_STORE", StorePostgres))
	cfg.LedgerRemoteURL = cfg.getEnv("LEDGER_REMOTE_URL", "")
	cfg.LedgerTimeout = time.Duration(cfg.getInt("LEDGER_TIMEOUT_SECONDS", 10)) * time.Second
	cfg.LedgerServiceSecret = cfg.getEnv("LEDGER_SERVICE_SECRET", "")

	cfg.AggregationMaxAttempts = cfg.getInt("AGGREGATION_MAX_ATTEMPTS", 5)
	cfg.AggregationBackoff = time.Duration(cfg.getInt("AGGREGATION_BACKOFF_MS", 10)) * time.Millisecond
	cfg.AggregationTimeout = time.Duration(cfg.getInt("AGGREGATION_TIMEOUT_SECONDS", 5)) * time.Second
	cfg.ReconcileInterval = time.Duration(cfg.getInt("RECONCILE_INTERVAL_SECONDS", 30)) * time.Second
	cfg.ReconcileGrace = time.Duration(cfg.getInt("RECONCILE_GRACE_SECONDS", 30)) * time.Second
	cfg.ReconcileBatchSize = cfg.getInt("RECONCILE_BATCH_SIZE", 100)

	cfg.DBDriver = cfg.getEnv("DB_DRIVER", "pgx")
	cfg.DBHost = cfg.getEnv("DB_HOST", "localhost")
	cfg.DBPort = cfg.getInt("DB_PORT", 5432)
	cfg.DBUser = cfg.getEnv("DB_USER", "parkmeter")
	cfg.DBPassword = cfg.getEnv("DB_PASSWORD", "parkmeter")
	cfg.DBName = cfg.getEnv("DB_NAME", "parkmeter")
	cfg.DBSslMode = cfg.getEnv("DB_SSLMODE", "disable")

	cfg.AWSRegion = cfg.getEnv("AWS_REGION", "eu-west-1")
	cfg.SQSTrafficQueueURL = cfg.getEnv("SQS_TRAFFIC_QUEUE_URL", "")
	cfg.IoTMQTTEndpoint = cfg.getEnv("IOT_MQTT_ENDPOINT", "")
	cfg.PlateRecognitionEnabled = cfg.getBool("PLATE_RECOGNITION_ENABLED", false)

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.LedgerMode {
	case LedgerModeEmbedded:
		if c.LedgerStore != StorePostgres && c.LedgerStore != StoreMemory {
			return fmt.Errorf("config: LEDGER_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.LedgerStore)
		}
	case LedgerModeRemote:
		if c.LedgerRemoteURL == "" {
			return fmt.Errorf("config: LEDGER_REMOTE_URL is required when LEDGER_MODE=%s", LedgerModeRemote)
		}
	default:
		return fmt.Errorf("config: LEDGER_MODE must be %q or %q, got %q", LedgerModeEmbedded, LedgerModeRemote, c.LedgerMode)
	}
	if c.AggregationMaxAttempts < 1 {
		return fmt.Errorf("config: AGGREGATION_MAX_ATTEMPTS must be at least 1")
	}
	if c.LedgerTimeout <= 0 {
		return fmt.Errorf("config: LEDGER_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

// UsesPostgres reports whether a database connection is needed.
func (c *Config) UsesPostgres() bool {
	return c.LedgerStore == StorePostgres
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSslMode)
}

func (c *Config) getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if fallback != "" {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s not set, using default %q", key, fallback))
	}
	return fallback
}

func (c *Config) getInt(key string, fallback int) int {
	raw := c.getEnv(key, strconv.Itoa(fallback))
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not an integer, using %d", key, raw, fallback))
		return fallback
	}
	return v
}

func (c *Config) getBool(key string, fallback bool) bool {
	raw := c.getEnv(key, strconv.FormatBool(fallback))
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not a boolean, using %t", key, raw, fallback))
		return fallback
	}
	return v
}
