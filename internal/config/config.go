// Package config centralizes runtime configuration. Values come from
// environment variables, with a .env file as a convenience for local runs.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all tunables of the reconciliation service.
type Config struct {
	// Core settings
	Port     string
	LogLevel string

	// Ledger store (BigQuery)
	ProjectID string
	DatasetID string

	// File storage (GCS) for parser temp files
	Bucket string

	// Classifier
	ClassifierModel string

	// Reconciliation tolerances. The defaults mirror the historically
	// chosen constants; they are currency-unit sensitive and should be
	// revisited before reuse with differently scaled currencies.
	CurrencyEpsilon     decimal.Decimal // duplicate/balance exact-match tolerance
	MinorDiscrepancyMax decimal.Decimal // balance warning ceiling

	// Year bounds accepted when falling back to generic date parsing.
	MinYear int
	MaxYear int

	// Batches needing more classifier calls than this are categorized in
	// the background.
	BackgroundThreshold int

	// Days added on each side of the statement period when fetching the
	// duplicate reference set.
	DedupWindowPad int

	// Background job polling budget (client side only).
	PollInterval time.Duration
	PollAttempts int

	// CategoryUpdatesPerSecond caps batched category-update calls against
	// the downstream store.
	CategoryUpdatesPerSecond float64
}

// Load reads configuration from the environment, falling back to a local
// .env file when present. Missing variables get defaults; Load never fails.
func Load() *Config {
	// Best effort; absence of a .env file is the normal production case.
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ProjectID: getEnv("BQ_PROJECT_ID", ""),
		DatasetID: getEnv("BQ_DATASET_ID", "ledger"),
		Bucket:    getEnv("GCS_BUCKET", ""),

		ClassifierModel: getEnv("CLASSIFIER_MODEL", "gemini-2.5-flash"),

		CurrencyEpsilon:     getEnvDecimal("CURRENCY_EPSILON", "0.01"),
		MinorDiscrepancyMax: getEnvDecimal("MINOR_DISCREPANCY_MAX", "1.00"),

		MinYear: getEnvInt("MIN_STATEMENT_YEAR", 2020),
		MaxYear: getEnvInt("MAX_STATEMENT_YEAR", 2026),

		BackgroundThreshold: getEnvInt("BACKGROUND_CATEGORIZATION_THRESHOLD", 100),
		DedupWindowPad:      getEnvInt("DEDUP_WINDOW_PAD_DAYS", 3),

		PollInterval: getEnvDuration("JOB_POLL_INTERVAL", 5*time.Second),
		PollAttempts: getEnvInt("JOB_POLL_ATTEMPTS", 60),

		CategoryUpdatesPerSecond: getEnvFloat("CATEGORY_UPDATES_PER_SECOND", 2),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvDecimal(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(fallback)
}
