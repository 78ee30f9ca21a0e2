package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type DBConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type LedgerConfig struct {
	MaxRetries       int
	RetryBackoff     time.Duration
	OperationTimeout time.Duration
}

type AppConfig struct {
	HTTPAddr       string
	LogLevel       string
	LogDir         string
	StorageDriver  string
	RedisURL       string
	IdempotencyTTL time.Duration
	RabbitMQURL    string
	TLSCertFile    string
	TLSKeyFile     string
	Ledger         LedgerConfig
}

// LoadEnv loads variables from path into the process environment. A missing
// file is not an error: the environment may already be populated.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func LoadConfigDB() (*DBConfig, error) {
	port, err := intEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	maxOpen, err := intEnv("DB_MAX_OPEN_CONNS", 20)
	if err != nil {
		return nil, err
	}

	maxIdle, err := intEnv("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, err
	}

	return &DBConfig{
		Host:         stringEnv("DB_HOST", "localhost"),
		Port:         port,
		User:         os.Getenv("DB_USER"),
		Password:     os.Getenv("DB_PASSWORD"),
		Name:         os.Getenv("DB_NAME"),
		SSLMode:      stringEnv("DB_SSLMODE", "disable"),
		MaxOpenConns: maxOpen,
		MaxIdleConns: maxIdle,
	}, nil
}

func LoadConfigApp() (*AppConfig, error) {
	idemTTL, err := durationEnv("IDEMPOTENCY_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	maxRetries, err := intEnv("LEDGER_MAX_RETRIES", 5)
	if err != nil {
		return nil, err
	}
	if maxRetries < 1 {
		return nil, fmt.Errorf("invalid LEDGER_MAX_RETRIES: must be at least 1, got %d", maxRetries)
	}

	backoff, err := durationEnv("LEDGER_RETRY_BACKOFF", 10*time.Millisecond)
	if err != nil {
		return nil, err
	}

	timeout, err := durationEnv("LEDGER_OPERATION_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &AppConfig{
		HTTPAddr:       stringEnv("HTTP_ADDR", ":8080"),
		LogLevel:       stringEnv("LOG_LEVEL", "info"),
		LogDir:         os.Getenv("LOG_DIR"),
		StorageDriver:  stringEnv("STORAGE_DRIVER", StoragePostgres),
		RedisURL:       os.Getenv("REDIS_URL"),
		IdempotencyTTL: idemTTL,
		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		TLSCertFile:    os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:     os.Getenv("TLS_KEY_FILE"),
		Ledger: LedgerConfig{
			MaxRetries:       maxRetries,
			RetryBackoff:     backoff,
			OperationTimeout: timeout,
		},
	}

	switch cfg.StorageDriver {
	case StorageMemory, StoragePostgres:
	default:
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	return cfg, nil
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
