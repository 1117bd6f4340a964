package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment identifies the deployment context. It selects which physical
// store file the process uses, so the pipeline and the reporting layer must
// both resolve the store through the same Config.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

type Config struct {
	Port        string
	Environment Environment

	// Store settings
	StorePathOverride string // TURNOVER_DB_PATH, empty = derive from Environment
	StoreMaxRetries   int    // attempts per statement on "database is locked"
	StoreRetryDelayMs int    // fixed delay between attempts

	// Market data / discovery endpoints
	ScannerBaseURL string
	ScannerScanID  int
	MarketDataURL  string
	MongoURI       string

	// Scheduling
	ScheduleTimezone    string // IANA name, applies to both daily triggers
	ASXScheduleTime     string // HH:MM local to ScheduleTimezone
	USScheduleTime      string // HH:MM local to ScheduleTimezone
	CutoffOffsetMinutes int    // cutoff = scheduled time + this offset
	CutoffPollSeconds   int    // busy-poll interval while waiting for cutoff
}

var AppConfig *Config

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	env, err := parseEnvironment(getEnv("APP_ENV", string(EnvDevelopment)))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       env,
		StorePathOverride: getEnv("TURNOVER_DB_PATH", ""),
		StoreMaxRetries:   getEnvInt("STORE_MAX_RETRIES", 5),
		StoreRetryDelayMs: getEnvInt("STORE_RETRY_DELAY_MS", 100),

		ScannerBaseURL: getEnv("SCANNER_GATEWAY_URL", "http://127.0.0.1:7496"),
		ScannerScanID:  getEnvInt("SCANNER_SCAN_ID", 5),
		MarketDataURL:  getEnv("MARKET_DATA_URL", "https://query1.finance.yahoo.com"),
		MongoURI:       getEnv("MONGODB_URI", ""),

		ScheduleTimezone:    getEnv("SCHEDULE_TIMEZONE", "Australia/Sydney"),
		ASXScheduleTime:     getEnv("ASX_SCHEDULE_TIME", "14:08"),
		USScheduleTime:      getEnv("US_SCHEDULE_TIME", "14:15"),
		CutoffOffsetMinutes: getEnvInt("CUTOFF_OFFSET_MINUTES", 35),
		CutoffPollSeconds:   getEnvInt("CUTOFF_POLL_SECONDS", 30),
	}

	AppConfig = config
	return config, nil
}

// StorePath resolves the SQLite store file for the current deployment
// environment. Both the pipeline and the reporting controllers go through
// this single mapping so they always see the same store.
func (c *Config) StorePath() string {
	if c.StorePathOverride != "" {
		return c.StorePathOverride
	}
	return filepath.Join("data", fmt.Sprintf("turnover_%s.db", c.Environment))
}

// CutoffOffset returns the offset added to an explicit scheduled run time
// to obtain the data-final cutoff instant.
func (c *Config) CutoffOffset() time.Duration {
	return time.Duration(c.CutoffOffsetMinutes) * time.Minute
}

// CutoffPollInterval returns the busy-poll interval for cutoff waits
func (c *Config) CutoffPollInterval() time.Duration {
	return time.Duration(c.CutoffPollSeconds) * time.Second
}

// StoreRetryDelay returns the fixed delay between store retry attempts
func (c *Config) StoreRetryDelay() time.Duration {
	return time.Duration(c.StoreRetryDelayMs) * time.Millisecond
}

// ScheduleLocation loads the timezone both daily triggers fire in
func (c *Config) ScheduleLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ScheduleTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE_TIMEZONE %q: %w", c.ScheduleTimezone, err)
	}
	return loc, nil
}

func parseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvDevelopment, EnvStaging, EnvProduction:
		return Environment(s), nil
	}
	return "", fmt.Errorf("invalid APP_ENV %q (want development, staging or production)", s)
}

// getEnv gets environment variable with fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an integer environment variable with fallback
func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using %d", key, value, fallback)
		return fallback
	}
	return n
}
