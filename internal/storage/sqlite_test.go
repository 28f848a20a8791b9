package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/model"
)

func setupTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func userRule(owner, pattern, category string, version int, confidence float64) *model.Rule {
	return &model.Rule{
		OwnerUserID: owner,
		Scope:       model.ScopeUser,
		Provenance:  model.ProvenanceClassifier,
		Match: model.Match{
			Type:    model.MatchSignature,
			Pattern: pattern,
			Fields:  []string{model.FieldMerchantSignature},
		},
		Action:     model.Action{Label: pattern, Category: category},
		Priority:   100,
		Version:    version,
		Confidence: confidence,
		Active:     true,
	}
}

func TestMigrateSeedsTaxonomyAndGlobalRules(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	categories, err := store.GetCategories(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, categories)

	names := make(map[string]bool)
	for _, cat := range categories {
		names[cat.Name] = true
		assert.True(t, cat.IsActive)
	}
	assert.True(t, names["Groceries"])
	assert.True(t, names["Entertainment"])
	assert.True(t, names["Other"])

	global, err := store.LoadGlobalRules(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, global)
	for _, rule := range global {
		assert.Equal(t, model.ScopeGlobal, rule.Scope)
		assert.Equal(t, model.ProvenanceSystem, rule.Provenance)
		assert.Equal(t, []string{model.FieldMerchantSignature}, rule.Match.Fields)
		assert.NoError(t, rule.Validate())
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := setupTestStorage(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestInsertAndLoadUserRules(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	rule := userRule("user-1", "netflix ltd", "Entertainment", 1, 0.97)
	rule.Match.Flags = nil
	require.NoError(t, store.InsertRule(ctx, rule))
	assert.Positive(t, rule.ID)

	loaded, err := store.LoadUserRules(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, rule.ID, got.ID)
	assert.Equal(t, "netflix ltd", got.Match.Pattern)
	assert.Equal(t, model.MatchSignature, got.Match.Type)
	assert.Equal(t, []string{model.FieldMerchantSignature}, got.Match.Fields)
	assert.Equal(t, "netflix ltd", got.Action.Label)
	assert.Equal(t, "Entertainment", got.Action.Category)
	assert.Equal(t, 1, got.Version)
	assert.InDelta(t, 0.97, got.Confidence, 0.0001)
	assert.True(t, got.Active)

	other, err := store.LoadUserRules(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other, "user rules are scoped to their owner")
}

func TestInsertRulePersistsRegexFlags(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	rule := userRule("user-1", "amazon.*prime", "Subscriptions", 1, 0.9)
	rule.Match.Type = model.MatchRegex
	rule.Match.Fields = []string{"description"}
	rule.Match.Flags = []string{"i"}
	require.NoError(t, store.InsertRule(ctx, rule))

	loaded, err := store.LoadUserRules(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, []string{"i"}, loaded[0].Match.Flags)
}

func TestInsertRuleVersionConflict(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRule(ctx, userRule("user-1", "netflix ltd", "Entertainment", 1, 0.9)))

	err := store.InsertRule(ctx, userRule("user-1", "netflix ltd", "Entertainment", 1, 0.95))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrVersionConflict)

	// A higher version under the same identity key is how superseding works.
	require.NoError(t, store.InsertRule(ctx, userRule("user-1", "netflix ltd", "Entertainment", 2, 0.97)))

	loaded, err := store.LoadUserRules(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, loaded, 2, "superseded versions are kept, never deleted")
}

func TestInsertRuleSameIdentityDifferentOwner(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRule(ctx, userRule("user-1", "netflix ltd", "Entertainment", 1, 0.9)))
	require.NoError(t, store.InsertRule(ctx, userRule("user-2", "netflix ltd", "Entertainment", 1, 0.9)))
}

func TestInsertRuleUnknownCategory(t *testing.T) {
	store := setupTestStorage(t)

	err := store.InsertRule(context.Background(), userRule("user-1", "casino royale", "Gambling", 1, 0.99))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnknownCategory)
}

func TestInsertRuleInvalidRegex(t *testing.T) {
	store := setupTestStorage(t)

	rule := userRule("user-1", "netflix(", "Entertainment", 1, 0.9)
	rule.Match.Type = model.MatchRegex
	err := store.InsertRule(context.Background(), rule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid regex")
}

func TestCostEntriesSumByJobAndDay(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entries := []model.CostEntry{
		{JobID: "job-1", TokensIn: 100, TokensOut: 50, Cost: 0.30, CreatedAt: now},
		{JobID: "job-1", TokensIn: 200, TokensOut: 80, Cost: 0.56, CreatedAt: now},
		{JobID: "job-2", TokensIn: 10, TokensOut: 5, Cost: 0.03, CreatedAt: now},
		{JobID: "job-3", TokensIn: 99, TokensOut: 99, Cost: 9.99, CreatedAt: now.AddDate(0, 0, -1)},
	}
	for i := range entries {
		require.NoError(t, store.AppendCostEntry(ctx, &entries[i]))
		assert.Positive(t, entries[i].ID)
	}

	summary, err := store.SumCostsByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 300, summary.TokensIn)
	assert.Equal(t, 130, summary.TokensOut)
	assert.Equal(t, 430, summary.TotalTokens)
	assert.InDelta(t, 0.86, summary.EstimatedCost, 0.0001)

	empty, err := store.SumCostsByJob(ctx, "job-none")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalTokens)
	assert.Zero(t, empty.EstimatedCost)

	today, err := store.SumCostsByDay(ctx, now)
	require.NoError(t, err)
	assert.InDelta(t, 0.89, today, 0.0001, "yesterday's entries excluded")

	yesterday, err := store.SumCostsByDay(ctx, now.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.InDelta(t, 9.99, yesterday, 0.0001)
}

func TestSaveAndGetOutcomes(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	outcomes := []model.ClassificationOutcome{
		{ClassifiedAt: now, TransactionID: "t1", JobID: "job-1", Label: "netflix", Category: "Entertainment", Source: model.SourceRule, RuleID: 3, Confidence: 1.0},
		{ClassifiedAt: now, TransactionID: "t2", JobID: "job-1", Label: "mystery", Source: model.SourceExternal, Confidence: 0.7},
		{ClassifiedAt: now, TransactionID: "t3", JobID: "job-1", Label: "unknown", Source: model.SourceUnknown},
		{ClassifiedAt: now, TransactionID: "t9", JobID: "job-2", Label: "tesco", Category: "Groceries", Source: model.SourceRule, RuleID: 1, Confidence: 1.0},
	}
	require.NoError(t, store.SaveOutcomes(ctx, outcomes))

	got, err := store.GetOutcomesByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "t1", got[0].TransactionID)
	assert.Equal(t, model.SourceRule, got[0].Source)
	assert.Equal(t, int64(3), got[0].RuleID)
	assert.Equal(t, "Entertainment", got[0].Category)

	assert.Equal(t, model.SourceExternal, got[1].Source)
	assert.Empty(t, got[1].Category)
	assert.Zero(t, got[1].RuleID)

	assert.Equal(t, model.SourceUnknown, got[2].Source)
}

func TestSaveOutcomesEmptyIsNoop(t *testing.T) {
	store := setupTestStorage(t)
	require.NoError(t, store.SaveOutcomes(context.Background(), nil))
}

func TestAddCategory(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	cat, err := store.AddCategory(ctx, "Charity", "Donations")
	require.NoError(t, err)
	assert.Positive(t, cat.ID)

	_, err = store.AddCategory(ctx, "Charity", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// New categories are immediately usable by rules.
	require.NoError(t, store.InsertRule(ctx, userRule("user-1", "oxfam shop", "Charity", 1, 0.9)))
}
