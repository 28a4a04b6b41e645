package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	// TrustedProxies are extra CIDRs whose forwarding headers are honoured,
	// on top of loopback and the private ranges.
	TrustedProxies []string

	// Logging
	LogLevel  string
	LogFormat string

	// Classifier artifacts
	ModelPath      string
	EncoderPath    string
	ModelFormat    string
	ONNXRuntimeLib string

	// Prediction cache
	PredictionCacheSize int
	PredictionCacheTTL  time.Duration

	// Ledger
	LedgerBackend  string
	LedgerPath     string
	LedgerSheet    string
	LedgerTimezone string

	// SQLite log
	SQLiteDBPath string

	// Ledger sync worker
	SyncInterval  time.Duration
	SyncBatchSize int

	// AMQP (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
}

var (
	validBackends     = []string{"xlsx", "memory", "sqlite", "sheets"}
	validModelFormats = []string{"auto", "linear", "onnx"}
)

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "5000"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		ModelPath:      getEnv("MODEL_PATH", "model.json"),
		EncoderPath:    getEnv("ENCODER_PATH", "encoder.json"),
		ModelFormat:    getEnv("MODEL_FORMAT", "auto"),
		ONNXRuntimeLib: getEnv("ONNX_RUNTIME_LIB", ""),

		PredictionCacheSize: getEnvInt("PREDICTION_CACHE_SIZE", 1024),
		PredictionCacheTTL:  getEnvDuration("PREDICTION_CACHE_TTL", 30*time.Minute),

		LedgerBackend:  getEnv("LEDGER_BACKEND", "xlsx"),
		LedgerPath:     getEnv("LEDGER_PATH", "transactions.xlsx"),
		LedgerSheet:    getEnv("LEDGER_SHEET", "Sheet1"),
		LedgerTimezone: getEnv("LEDGER_TIMEZONE", "Local"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/ledger.db"),

		SyncInterval:  getEnvDuration("SYNC_INTERVAL", time.Minute),
		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 50),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transactions_recorded"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
	}

	return cfg
}

// Location resolves LedgerTimezone. Unknown names fall back to time.Local.
func (c *Config) Location() *time.Location {
	if c.LedgerTimezone == "" || strings.EqualFold(c.LedgerTimezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.LedgerTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Validate validates the configuration and returns an error listing every problem found
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR such as 203.0.113.0/24", cidr))
		}
	}

	if c.ModelPath == "" {
		errors = append(errors, "model path cannot be empty")
	}
	if c.EncoderPath == "" {
		errors = append(errors, "encoder path cannot be empty")
	}
	if !contains(validModelFormats, c.ModelFormat) {
		errors = append(errors, fmt.Sprintf("invalid model format '%s': must be one of %v", c.ModelFormat, validModelFormats))
	}

	if c.PredictionCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid prediction cache size %d: must not be negative", c.PredictionCacheSize))
	}

	if c.SyncInterval < 0 {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must not be negative", c.SyncInterval))
	}
	if c.SyncBatchSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must not be negative", c.SyncBatchSize))
	}

	if !contains(validBackends, c.LedgerBackend) {
		errors = append(errors, fmt.Sprintf("invalid ledger backend '%s': must be one of %v", c.LedgerBackend, validBackends))
	}

	if c.LedgerTimezone != "" && !strings.EqualFold(c.LedgerTimezone, "local") {
		if _, err := time.LoadLocation(c.LedgerTimezone); err != nil {
			errors = append(errors, fmt.Sprintf("invalid ledger timezone '%s': %v", c.LedgerTimezone, err))
		}
	}

	switch c.LedgerBackend {
	case "xlsx":
		if c.LedgerPath == "" {
			errors = append(errors, "ledger path cannot be empty when using xlsx backend")
		} else if ext := strings.ToLower(filepath.Ext(c.LedgerPath)); ext != ".xlsx" {
			errors = append(errors, fmt.Sprintf("ledger path '%s' must have .xlsx extension", c.LedgerPath))
		}
		if c.LedgerSheet == "" {
			errors = append(errors, "ledger sheet cannot be empty when using xlsx backend")
		}
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using sheets backend")
		}
		if c.GoogleCredentialsFile == "" && c.GoogleCredentialsJSON == "" {
			errors = append(errors, "either GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets backend")
		}
		if c.GoogleCredentialsFile != "" {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blank entries.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
