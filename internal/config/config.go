package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	// StoreSecretKey encrypts per-store webhook secrets at rest.
	StoreSecretKey string

	Processor ProcessorConfig
	Ledger    LedgerConfig
	Reconcile ReconcileConfig
	Sweep     SweepConfig
}

// ProcessorConfig points at the upstream payment processor REST API.
type ProcessorConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// LedgerConfig selects and configures the accounting backend.
type LedgerConfig struct {
	Backend      string // "xero" or "quickbooks"
	Mode         string // "deposit" or "invoice_payment"
	BaseURL      string
	TenantID     string
	AccountCode  string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	CallTimeout  time.Duration
}

// ReconcileConfig tunes verdict derivation and dispatch retries.
type ReconcileConfig struct {
	// ToleranceBps is the full/partial/overpaid boundary band in basis
	// points of the invoice amount. 100 = ±1%.
	ToleranceBps int64
	// Backoff is the delay before each retry of a failed ledger call.
	// Dispatch gives up after the schedule is exhausted.
	Backoff []time.Duration
	// WorkerPollInterval is how often the dispatch worker polls for
	// unprocessed events.
	WorkerPollInterval time.Duration
	WorkerBatchSize    int
	WorkerConcurrency  int
}

// SweepConfig tunes the fallback reconciliation sweep.
type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
	// Grace re-reads a window before the last checkpoint so a sweep that
	// raced a late settlement is re-covered by the next one.
	Grace     time.Duration
	BatchSize int
	LockTTL   time.Duration
}

const (
	LedgerModeDeposit        = "deposit"
	LedgerModeInvoicePayment = "invoice_payment"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "ledgerbridge"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "ledgerbridge"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		StoreSecretKey: strings.TrimSpace(getenv("STORE_SECRET_KEY", "")),

		Processor: ProcessorConfig{
			BaseURL: strings.TrimRight(getenv("PROCESSOR_BASE_URL", "http://localhost:23001"), "/"),
			APIKey:  strings.TrimSpace(getenv("PROCESSOR_API_KEY", "")),
			Timeout: getenvDuration("PROCESSOR_TIMEOUT", 15*time.Second),
		},
		Ledger: LedgerConfig{
			Backend:      strings.ToLower(getenv("LEDGER_BACKEND", "xero")),
			Mode:         normalizeLedgerMode(getenv("LEDGER_MODE", LedgerModeDeposit)),
			BaseURL:      strings.TrimRight(getenv("LEDGER_BASE_URL", ""), "/"),
			TenantID:     strings.TrimSpace(getenv("LEDGER_TENANT_ID", "")),
			AccountCode:  strings.TrimSpace(getenv("LEDGER_ACCOUNT_CODE", "")),
			TokenURL:     strings.TrimSpace(getenv("LEDGER_TOKEN_URL", "")),
			ClientID:     strings.TrimSpace(getenv("LEDGER_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(getenv("LEDGER_CLIENT_SECRET", "")),
			RefreshToken: strings.TrimSpace(getenv("LEDGER_REFRESH_TOKEN", "")),
			CallTimeout:  getenvDuration("LEDGER_CALL_TIMEOUT", 30*time.Second),
		},
		Reconcile: ReconcileConfig{
			ToleranceBps:       getenvInt64("RECONCILE_TOLERANCE_BPS", 100),
			Backoff:            getenvBackoff("RECONCILE_BACKOFF", []time.Duration{5 * time.Second, 15 * time.Second, 60 * time.Second}),
			WorkerPollInterval: getenvDuration("RECONCILE_POLL_INTERVAL", 2*time.Second),
			WorkerBatchSize:    getenvInt("RECONCILE_BATCH_SIZE", 50),
			WorkerConcurrency:  getenvInt("RECONCILE_CONCURRENCY", 4),
		},
		Sweep: SweepConfig{
			Enabled:   getenvBool("SWEEP_ENABLED", true),
			Interval:  getenvDuration("SWEEP_INTERVAL", time.Hour),
			Grace:     getenvDuration("SWEEP_GRACE", 10*time.Minute),
			BatchSize: getenvInt("SWEEP_BATCH_SIZE", 100),
			LockTTL:   getenvDuration("SWEEP_LOCK_TTL", 5*time.Minute),
		},
	}

	return cfg
}

func normalizeLedgerMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case LedgerModeInvoicePayment, "invoice":
		return LedgerModeInvoicePayment
	default:
		return LedgerModeDeposit
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

// getenvBackoff parses a comma-separated list of durations, e.g. "5s,15s,60s".
func getenvBackoff(key string, def []time.Duration) []time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parts := strings.Split(value, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil || d <= 0 {
			return def
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return def
	}
	return out
}
