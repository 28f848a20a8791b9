// Package ledger enforces daily and per-job spend caps for external
// classifier calls.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/model"
	"github.com/ledgersift/ledgersift/internal/service"
)

// Config holds the spend caps. Zero means unlimited.
type Config struct {
	DailyLimit float64
	JobLimit   float64
}

// Ledger tracks running daily and per-job totals in memory and appends
// CostEntry rows through the cost persistence collaborator. Totals reset at
// the UTC day boundary. Safe for concurrent use across jobs.
type Ledger struct {
	store      service.CostStore
	jobTotals  map[string]float64
	day        time.Time
	dailyTotal float64
	dailyLimit float64
	jobLimit   float64
	now        func() time.Time
	mu         sync.Mutex
}

// New creates a ledger backed by the given cost store. The in-memory daily
// total is rebuilt from storage on first use of each UTC day.
func New(store service.CostStore, cfg Config) *Ledger {
	return &Ledger{
		store:      store,
		jobTotals:  make(map[string]float64),
		dailyLimit: cfg.DailyLimit,
		jobLimit:   cfg.JobLimit,
		now:        time.Now,
	}
}

// CheckAndCharge atomically verifies that adding cost keeps both the daily
// and the job total within their caps, and only then commits the totals and
// appends a CostEntry. A rejected or failed charge leaves both totals
// unchanged. Budget rejections are immediate and non-retryable.
func (l *Ledger) CheckAndCharge(ctx context.Context, jobID string, tokensIn, tokensOut int, cost float64) error {
	if cost < 0 {
		return fmt.Errorf("negative cost %f for job %s", cost, jobID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rollover(ctx); err != nil {
		return err
	}

	if l.dailyLimit > 0 && l.dailyTotal+cost > l.dailyLimit {
		return fmt.Errorf("%w: daily total %.4f + %.4f exceeds limit %.4f",
			common.ErrBudgetExceeded, l.dailyTotal, cost, l.dailyLimit)
	}
	if l.jobLimit > 0 && l.jobTotals[jobID]+cost > l.jobLimit {
		return fmt.Errorf("%w: job %s total %.4f + %.4f exceeds limit %.4f",
			common.ErrBudgetExceeded, jobID, l.jobTotals[jobID], cost, l.jobLimit)
	}

	entry := &model.CostEntry{
		JobID:     jobID,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Cost:      cost,
		CreatedAt: l.now().UTC(),
	}
	if err := l.store.AppendCostEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to append cost entry: %w", err)
	}

	l.dailyTotal += cost
	l.jobTotals[jobID] += cost

	slog.Debug("charged classifier cost",
		"job_id", jobID,
		"cost", cost,
		"job_total", l.jobTotals[jobID],
		"daily_total", l.dailyTotal)

	return nil
}

// Summary aggregates the persisted entries for one job.
func (l *Ledger) Summary(ctx context.Context, jobID string) (model.CostSummary, error) {
	return l.store.SumCostsByJob(ctx, jobID)
}

// rollover resets totals at the UTC day boundary, seeding the daily total
// from storage so restarts don't forget earlier spend. Caller holds the lock.
func (l *Ledger) rollover(ctx context.Context) error {
	today := l.now().UTC().Truncate(24 * time.Hour)
	if l.day.Equal(today) {
		return nil
	}

	spent, err := l.store.SumCostsByDay(ctx, today)
	if err != nil {
		return fmt.Errorf("failed to load daily spend: %w", err)
	}

	l.day = today
	l.dailyTotal = spent
	l.jobTotals = make(map[string]float64)
	return nil
}
