package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL      string
	DatabaseMaxConns int
	RunMigrations    bool
	ServerAddr       string
	Storage          string
	LogLevel         string

	JWTSecret            string
	CronSecretHash       string
	PaymentWebhookSecret string
	CORSAllowedOrigins   []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AMQPURL       string
	AMQPExchange  string

	NotifyMaxAttempts int

	RequestTTL        time.Duration
	WaitingTTL        time.Duration
	LiveTTL           time.Duration
	ActivityGrace     time.Duration
	ExpireRfqs        bool
	ReaperBatchSize   int
	ReaperInterval    time.Duration
	PreviewInterval   time.Duration
	ReconcileInterval time.Duration
	RfqMaxBidsLimit   int
}

// Load reads configuration from the environment, after merging an optional .env
// file. Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "wrenchhub")
		pass := getenv("POSTGRES_PASSWORD", "wrenchhub_pass")
		db := getenv("POSTGRES_DB", "wrenchhub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	storage := strings.ToLower(getenv("STORAGE", StoragePostgres))
	if storage != StoragePostgres && storage != StorageMemory {
		return nil, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, storage)
	}

	return &Config{
		DatabaseURL:      dsn,
		DatabaseMaxConns: parseInt(getenv("DATABASE_MAX_CONNS", ""), 10),
		RunMigrations:    parseBool(getenv("MIGRATIONS", "true"), true),
		ServerAddr:       getenv("SERVER_ADDR", "0.0.0.0:8080"),
		Storage:          storage,
		LogLevel:         getenv("LOG_LEVEL", "info"),

		JWTSecret:            os.Getenv("JWT_SECRET"),
		CronSecretHash:       os.Getenv("CRON_SECRET_HASH"),
		PaymentWebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		CORSAllowedOrigins:   splitList(getenv("CORS_ALLOWED_ORIGINS", "*")),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       parseInt(getenv("REDIS_DB", ""), 0),
		AMQPURL:       os.Getenv("AMQP_URL"),
		AMQPExchange:  getenv("AMQP_EXCHANGE", "wrenchhub.events"),

		NotifyMaxAttempts: parseInt(getenv("NOTIFY_MAX_ATTEMPTS", ""), 3),

		RequestTTL:        parseDuration(getenv("REAPER_REQUEST_TTL", "15m"), 15*time.Minute),
		WaitingTTL:        parseDuration(getenv("REAPER_WAITING_TTL", "1h"), time.Hour),
		LiveTTL:           parseDuration(getenv("REAPER_LIVE_TTL", "2h"), 2*time.Hour),
		ActivityGrace:     parseDuration(getenv("REAPER_ACTIVITY_GRACE", "15m"), 15*time.Minute),
		ExpireRfqs:        parseBool(getenv("REAPER_EXPIRE_RFQS", "true"), true),
		ReaperBatchSize:   parseInt(getenv("REAPER_BATCH_SIZE", ""), 500),
		ReaperInterval:    parseDuration(getenv("REAPER_INTERVAL", "1m"), time.Minute),
		PreviewInterval:   parseDuration(getenv("REAPER_PREVIEW_INTERVAL", "30s"), 30*time.Second),
		ReconcileInterval: parseDuration(getenv("REFERRAL_RECONCILE_INTERVAL", "5m"), 5*time.Minute),
		RfqMaxBidsLimit:   parseInt(getenv("RFQ_MAX_BIDS_LIMIT", ""), 10),
	}, nil
}

// ValidateServer checks the settings the HTTP server cannot run without.
func (c *Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func splitList(val string) []string {
	out := []string{}
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
