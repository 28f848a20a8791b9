package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ledgersift/ledgersift/internal/model"
)

// SaveOutcomes appends classification outcomes in one transaction. Outcomes
// are immutable; re-classifying a transaction appends a new row under the new
// job rather than mutating the old one.
func (s *SQLiteStorage) SaveOutcomes(ctx context.Context, outcomes []model.ClassificationOutcome) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(outcomes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (transaction_id, job_id, label, category, source, rule_id, confidence, classified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range outcomes {
		o := &outcomes[i]
		if o.ClassifiedAt.IsZero() {
			o.ClassifiedAt = time.Now().UTC()
		}
		var ruleID any
		if o.RuleID != 0 {
			ruleID = o.RuleID
		}
		if _, err := stmt.ExecContext(ctx,
			o.TransactionID, o.JobID, o.Label, nullableString(o.Category), o.Source, ruleID, o.Confidence, o.ClassifiedAt,
		); err != nil {
			return fmt.Errorf("failed to insert outcome for transaction %s: %w", o.TransactionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outcomes: %w", err)
	}
	return nil
}

// GetOutcomesByJob returns every outcome recorded for a job, in insert order.
func (s *SQLiteStorage) GetOutcomesByJob(ctx context.Context, jobID string) ([]model.ClassificationOutcome, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(jobID, "jobID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT transaction_id, job_id, label, category, source, rule_id, confidence, classified_at
		 FROM outcomes WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var outcomes []model.ClassificationOutcome
	for rows.Next() {
		var (
			o        model.ClassificationOutcome
			category sql.NullString
			ruleID   sql.NullInt64
		)
		if err := rows.Scan(&o.TransactionID, &o.JobID, &o.Label, &category, &o.Source, &ruleID, &o.Confidence, &o.ClassifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Category = category.String
		o.RuleID = ruleID.Int64
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcomes: %w", err)
	}
	return outcomes, nil
}
