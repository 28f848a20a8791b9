// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/ledgersift/ledgersift/internal/model"
)

// RuleStore is the rule persistence collaborator. Implementations must treat
// (owner, identity key, version) as unique: inserting a version that already
// exists fails with a version conflict rather than overwriting.
type RuleStore interface {
	LoadGlobalRules(ctx context.Context) ([]model.Rule, error)
	LoadUserRules(ctx context.Context, userID string) ([]model.Rule, error)
	// InsertRule appends a new rule row. Rules are never deleted; a higher
	// version with the same identity key supersedes at merge time.
	InsertRule(ctx context.Context, rule *model.Rule) error
}

// CostStore is the cost persistence collaborator. Entries are append-only.
type CostStore interface {
	AppendCostEntry(ctx context.Context, entry *model.CostEntry) error
	SumCostsByJob(ctx context.Context, jobID string) (model.CostSummary, error)
	SumCostsByDay(ctx context.Context, day time.Time) (float64, error)
}

// OutcomeStore records per-transaction classification outcomes. Outcomes are
// immutable once recorded.
type OutcomeStore interface {
	SaveOutcomes(ctx context.Context, outcomes []model.ClassificationOutcome) error
	GetOutcomesByJob(ctx context.Context, jobID string) ([]model.ClassificationOutcome, error)
}

// CategoryStore exposes the closed category taxonomy.
type CategoryStore interface {
	GetCategories(ctx context.Context) ([]model.Category, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
