package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgersift/ledgersift/internal/model"
)

// AppendCostEntry records one immutable cost entry for an external call.
func (s *SQLiteStorage) AppendCostEntry(ctx context.Context, entry *model.CostEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrNilParameter)
	}
	if err := validateString(entry.JobID, "jobID"); err != nil {
		return err
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO cost_entries (job_id, tokens_in, tokens_out, cost, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.JobID, entry.TokensIn, entry.TokensOut, entry.Cost, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cost entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get cost entry id: %w", err)
	}
	entry.ID = id
	return nil
}

// SumCostsByJob aggregates tokens and cost across every entry for a job.
func (s *SQLiteStorage) SumCostsByJob(ctx context.Context, jobID string) (model.CostSummary, error) {
	if err := validateContext(ctx); err != nil {
		return model.CostSummary{}, err
	}
	if err := validateString(jobID, "jobID"); err != nil {
		return model.CostSummary{}, err
	}

	summary := model.CostSummary{JobID: jobID}
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(tokens_in), 0), COALESCE(SUM(tokens_out), 0), COALESCE(SUM(cost), 0)
		 FROM cost_entries WHERE job_id = ?`, jobID,
	).Scan(&summary.TokensIn, &summary.TokensOut, &summary.EstimatedCost)
	if err != nil {
		return model.CostSummary{}, fmt.Errorf("failed to sum costs for job %s: %w", jobID, err)
	}

	summary.TotalTokens = summary.TokensIn + summary.TokensOut
	return summary, nil
}

// SumCostsByDay totals the cost of every entry created on the given UTC day.
func (s *SQLiteStorage) SumCostsByDay(ctx context.Context, day time.Time) (float64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM cost_entries WHERE created_at >= ? AND created_at < ?`,
		start, end,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum costs for day %s: %w", start.Format("2006-01-02"), err)
	}
	return total, nil
}
