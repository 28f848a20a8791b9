package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ledgersift/ledgersift/internal/config"
	"github.com/ledgersift/ledgersift/internal/engine"
	"github.com/ledgersift/ledgersift/internal/ledger"
	"github.com/ledgersift/ledgersift/internal/llm"
	"github.com/ledgersift/ledgersift/internal/storage"
)

// databasePath resolves the database location from config, defaulting under
// the user's data directory.
func databasePath() (string, error) {
	if dbPath := viper.GetString("database.path"); dbPath != "" {
		return config.ExpandPath(dbPath), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "ledgersift", "ledgersift.db"), nil
}

// openStorage opens the database and brings the schema up to date.
func openStorage() (*storage.SQLiteStorage, error) {
	dbPath, err := databasePath()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// buildEngine wires the classification engine from config. The returned
// engine owns the classifier; call Close when done.
func buildEngine(store *storage.SQLiteStorage) (*engine.Engine, error) {
	costLedger := ledger.New(store, ledger.Config{
		DailyLimit: viper.GetFloat64("budget.daily_limit"),
		JobLimit:   viper.GetFloat64("budget.job_limit"),
	})

	var classifier engine.Classifier
	if provider := viper.GetString("llm.provider"); provider != "" {
		c, err := llm.NewClassifier(llm.Config{
			Provider:      provider,
			APIKey:        viper.GetString("llm.api_key"),
			Model:         viper.GetString("llm.model"),
			BaseURL:       viper.GetString("llm.base_url"),
			BatchSize:     viper.GetInt("llm.batch_size"),
			MaxRetries:    viper.GetInt("llm.max_retries"),
			RetryDelay:    viper.GetDuration("llm.retry_delay"),
			CallTimeout:   viper.GetDuration("llm.call_timeout"),
			MaxConcurrent: viper.GetInt("llm.max_concurrent"),
			RateLimit:     viper.GetInt("llm.rate_limit"),
			MaxTokens:     viper.GetInt("llm.max_tokens"),
			Temperature:   viper.GetFloat64("llm.temperature"),
			PricePer1K:    viper.GetFloat64("llm.price_per_1k"),
		}, costLedger, slog.Default())
		if err != nil {
			return nil, fmt.Errorf("failed to create classifier: %w", err)
		}
		classifier = c
	} else {
		slog.Warn("no LLM provider configured; unresolved transactions will stay unknown")
	}

	return engine.New(store, store, store, classifier, costLedger, slog.Default(), engine.Options{
		LearnThreshold:   viper.GetFloat64("learning.threshold"),
		UpgradeThreshold: viper.GetFloat64("learning.upgrade_threshold"),
	}), nil
}

// defaultJobID derives a unique job identifier from the current time.
func defaultJobID() string {
	return "job-" + time.Now().UTC().Format("20060102-150405")
}
