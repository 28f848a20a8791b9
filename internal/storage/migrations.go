package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					scope TEXT NOT NULL,
					owner_user_id TEXT NOT NULL DEFAULT '',
					provenance TEXT NOT NULL,
					match_type TEXT NOT NULL,
					pattern TEXT NOT NULL,
					fields TEXT NOT NULL,
					flags TEXT,
					label TEXT,
					category TEXT NOT NULL,
					priority INTEGER NOT NULL,
					version INTEGER NOT NULL,
					confidence REAL NOT NULL,
					active INTEGER NOT NULL DEFAULT 1,
					identity_key TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					UNIQUE(owner_user_id, identity_key, version)
				)`,
				`CREATE INDEX idx_rules_scope ON rules(scope)`,
				`CREATE INDEX idx_rules_owner ON rules(owner_user_id)`,
				`CREATE INDEX idx_rules_identity ON rules(identity_key)`,

				`CREATE TABLE IF NOT EXISTS cost_entries (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					job_id TEXT NOT NULL,
					tokens_in INTEGER NOT NULL DEFAULT 0,
					tokens_out INTEGER NOT NULL DEFAULT 0,
					cost REAL NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_cost_entries_job ON cost_entries(job_id)`,
				`CREATE INDEX idx_cost_entries_created ON cost_entries(created_at)`,

				`CREATE TABLE IF NOT EXISTS outcomes (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					transaction_id TEXT NOT NULL,
					job_id TEXT NOT NULL,
					label TEXT NOT NULL,
					category TEXT,
					source TEXT NOT NULL,
					rule_id INTEGER,
					confidence REAL NOT NULL DEFAULT 0,
					classified_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_outcomes_job ON outcomes(job_id)`,
				`CREATE INDEX idx_outcomes_transaction ON outcomes(transaction_id)`,

				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE,
					description TEXT DEFAULT '',
					is_active BOOLEAN DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Seed category taxonomy",
		Up: func(tx *sql.Tx) error {
			categories := []struct {
				name        string
				description string
			}{
				{"Groceries", "Supermarkets and food shops"},
				{"Dining", "Restaurants, cafes, and takeaway"},
				{"Entertainment", "Streaming, cinema, games, and events"},
				{"Subscriptions", "Recurring digital services"},
				{"Transport", "Public transport, fuel, taxis"},
				{"Utilities", "Energy, water, broadband, phone"},
				{"Shopping", "Retail and online purchases"},
				{"Health", "Pharmacies, fitness, medical"},
				{"Travel", "Flights, hotels, holidays"},
				{"Income", "Salary and other incoming payments"},
				{"Fees", "Bank fees, interest, and charges"},
				{"Other", "Anything that fits nowhere else"},
			}

			for _, cat := range categories {
				if _, err := tx.Exec(
					`INSERT OR IGNORE INTO categories (name, description) VALUES (?, ?)`,
					cat.name, cat.description,
				); err != nil {
					return fmt.Errorf("failed to seed category %q: %w", cat.name, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Seed global merchant rules",
		Up: func(tx *sql.Tx) error {
			type seedRule struct {
				pattern  string
				label    string
				category string
			}
			seeds := []seedRule{
				{"netflix", "netflix", "Entertainment"},
				{"spotify", "spotify", "Entertainment"},
				{"amazon prime", "amazon prime", "Subscriptions"},
				{"tesco stores", "tesco", "Groceries"},
				{"sainsburys", "sainsburys", "Groceries"},
				{"british gas", "british gas", "Utilities"},
				{"uber trip", "uber", "Transport"},
			}

			for _, seed := range seeds {
				if _, err := tx.Exec(
					`INSERT OR IGNORE INTO rules
						(scope, owner_user_id, provenance, match_type, pattern, fields, label, category,
						 priority, version, confidence, active, identity_key, created_at, updated_at)
					 VALUES ('global', '', 'system', 'signature', ?, ?, ?, ?, 50, 1, 1.0, 1, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
					seed.pattern,
					`["merchant_signature"]`,
					seed.label,
					seed.category,
					identityKeyFor(seed.pattern),
				); err != nil {
					return fmt.Errorf("failed to seed rule %q: %w", seed.pattern, err)
				}
			}
			return nil
		},
	},
}

// Migrate brings the database schema up to the expected version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
