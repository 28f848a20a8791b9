// Package engine orchestrates one classification run: normalize, evaluate
// against the merged rule set, classify unresolved signatures externally,
// learn rules from confident answers, and reconcile.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/llm"
	"github.com/ledgersift/ledgersift/internal/model"
	"github.com/ledgersift/ledgersift/internal/rules"
	"github.com/ledgersift/ledgersift/internal/service"
	"github.com/ledgersift/ledgersift/internal/signature"
)

// Options tunes the auto-learning policy.
type Options struct {
	// LearnThreshold is the minimum confidence at which an external answer
	// is written as a new rule.
	LearnThreshold float64
	// UpgradeThreshold is the minimum confidence at which an external answer
	// may supersede an existing rule for the same pattern.
	UpgradeThreshold float64
	// MinPatternLetters rejects patterns with fewer alphabetic characters as
	// too generic to learn.
	MinPatternLetters int
	// LearnedRulePriority is assigned to freshly learned version-1 rules.
	LearnedRulePriority int
}

// DefaultOptions returns the standard learning thresholds.
func DefaultOptions() Options {
	return Options{
		LearnThreshold:      0.85,
		UpgradeThreshold:    0.95,
		MinPatternLetters:   6,
		LearnedRulePriority: 100,
	}
}

// Engine is the classification coordinator. One Engine serves many jobs; all
// per-run state is local to ClassifyBatch.
type Engine struct {
	ruleStore     service.RuleStore
	categoryStore service.CategoryStore
	outcomeStore  service.OutcomeStore
	classifier    Classifier
	costs         CostReporter
	logger        *slog.Logger
	opts          Options
}

// New creates a classification engine. The classifier may be nil, in which
// case unresolved transactions degrade straight to unknown.
func New(
	ruleStore service.RuleStore,
	categoryStore service.CategoryStore,
	outcomeStore service.OutcomeStore,
	classifier Classifier,
	costs CostReporter,
	logger *slog.Logger,
	opts Options,
) *Engine {
	if opts.LearnThreshold == 0 {
		opts.LearnThreshold = 0.85
	}
	if opts.UpgradeThreshold == 0 {
		opts.UpgradeThreshold = 0.95
	}
	if opts.MinPatternLetters == 0 {
		opts.MinPatternLetters = 6
	}
	if opts.LearnedRulePriority == 0 {
		opts.LearnedRulePriority = 100
	}

	return &Engine{
		ruleStore:     ruleStore,
		categoryStore: categoryStore,
		outcomeStore:  outcomeStore,
		classifier:    classifier,
		costs:         costs,
		logger:        logger,
		opts:          opts,
	}
}

// ClassifyBatch classifies one batch of transactions for a user. It always
// returns one outcome per transaction, in input order. A budget rejection
// mid-batch is returned as an error wrapping the budget sentinel; outcomes
// resolved before the rejection (and by rules) are still returned and
// persisted, so callers can report partial failure honestly.
func (e *Engine) ClassifyBatch(ctx context.Context, jobID, userID string, txns []model.Transaction) ([]model.ClassificationOutcome, error) {
	if len(txns) == 0 {
		return nil, nil
	}

	merged, err := e.loadMergedRules(ctx, userID)
	if err != nil {
		return nil, err
	}

	categories, err := e.categoryStore.GetCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	categoryNames := make([]string, 0, len(categories))
	categorySet := make(map[string]bool, len(categories))
	for _, cat := range categories {
		if !cat.IsActive {
			continue
		}
		categoryNames = append(categoryNames, cat.Name)
		categorySet[cat.Name] = true
	}

	now := time.Now().UTC()
	outcomes := make([]model.ClassificationOutcome, len(txns))

	// First pass: derive signatures and evaluate the merged rule set.
	var unresolved []int
	for i := range txns {
		txn := &txns[i]
		if txn.MerchantSignature == "" {
			txn.MerchantSignature = signature.Normalize(txn.Description)
		}

		if rule, ok := rules.Evaluate(txn, merged); ok {
			outcomes[i] = ruleOutcome(txn, jobID, rule, now)
			continue
		}
		unresolved = append(unresolved, i)
	}

	var classifyErr error
	if len(unresolved) > 0 {
		classifyErr = e.classifyUnresolved(ctx, jobID, userID, txns, outcomes, unresolved, categoryNames, categorySet, now)
	}

	if err := e.outcomeStore.SaveOutcomes(ctx, outcomes); err != nil {
		return outcomes, fmt.Errorf("failed to save outcomes: %w", err)
	}

	e.logger.Info("classified batch",
		"job_id", jobID,
		"user_id", userID,
		"transactions", len(txns),
		"unresolved_after_rules", len(unresolved))

	return outcomes, classifyErr
}

// classifyUnresolved sends deduplicated unresolved signatures to the external
// classifier, fills their outcomes, learns rules from confident answers, and
// runs the reconciliation pass.
func (e *Engine) classifyUnresolved(
	ctx context.Context,
	jobID, userID string,
	txns []model.Transaction,
	outcomes []model.ClassificationOutcome,
	unresolved []int,
	categoryNames []string,
	categorySet map[string]bool,
	now time.Time,
) error {
	for _, i := range unresolved {
		outcomes[i] = unknownOutcome(&txns[i], jobID, now)
	}
	if e.classifier == nil {
		return nil
	}

	// One external slot per distinct signature in this run, regardless of
	// how many transactions share it.
	seen := make(map[string]bool, len(unresolved))
	uniqueSigs := make([]string, 0, len(unresolved))
	for _, i := range unresolved {
		sig := txns[i].MerchantSignature
		if sig == "" || seen[sig] {
			continue
		}
		seen[sig] = true
		uniqueSigs = append(uniqueSigs, sig)
	}
	if len(uniqueSigs) == 0 {
		return nil
	}

	results, err := e.classifier.Classify(ctx, uniqueSigs, jobID, categoryNames)
	if err != nil && !errors.Is(err, common.ErrBudgetExceeded) {
		return fmt.Errorf("external classification failed: %w", err)
	}

	bySig := make(map[string]llm.Result, len(results))
	for _, res := range results {
		bySig[res.Signature] = res
	}
	for _, i := range unresolved {
		if res, ok := bySig[txns[i].MerchantSignature]; ok {
			outcomes[i] = externalOutcome(&txns[i], jobID, res, now)
		}
	}

	learned := e.learnFromResults(ctx, userID, results, categorySet)
	if learned > 0 {
		e.reconcile(ctx, jobID, userID, txns, outcomes, unresolved, now)
	}

	if err != nil {
		return fmt.Errorf("job %s: %w", jobID, err)
	}
	return nil
}

// reconcile re-merges the rule set and re-evaluates the transactions still
// unknown after the external pass. A transaction matching a rule learned
// moments ago in this same batch is relabeled source=rule, so the batch's
// output is consistent with the updated rule store without a second external
// call. Transactions the external classifier answered directly keep
// source=external for this run; the learned rule takes over on the next one.
func (e *Engine) reconcile(
	ctx context.Context,
	jobID, userID string,
	txns []model.Transaction,
	outcomes []model.ClassificationOutcome,
	unresolved []int,
	now time.Time,
) {
	merged, err := e.loadMergedRules(ctx, userID)
	if err != nil {
		e.logger.Warn("reconciliation skipped, rule reload failed", "job_id", jobID, "error", err)
		return
	}

	relabeled := 0
	for _, i := range unresolved {
		if outcomes[i].Source != model.SourceUnknown {
			continue
		}
		if rule, ok := rules.Evaluate(&txns[i], merged); ok {
			outcomes[i] = ruleOutcome(&txns[i], jobID, rule, now)
			relabeled++
		}
	}

	if relabeled > 0 {
		e.logger.Debug("reconciliation relabeled transactions", "job_id", jobID, "relabeled", relabeled)
	}
}

// CostSummary reports the accumulated external spend for a job.
func (e *Engine) CostSummary(ctx context.Context, jobID string) (model.CostSummary, error) {
	return e.costs.Summary(ctx, jobID)
}

// Close releases the external classifier.
func (e *Engine) Close() error {
	if e.classifier != nil {
		return e.classifier.Close()
	}
	return nil
}

func (e *Engine) loadMergedRules(ctx context.Context, userID string) ([]model.Rule, error) {
	global, err := e.ruleStore.LoadGlobalRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load global rules: %w", err)
	}
	user, err := e.ruleStore.LoadUserRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user rules: %w", err)
	}
	return rules.Merge(global, user), nil
}

func ruleOutcome(txn *model.Transaction, jobID string, rule *model.Rule, now time.Time) model.ClassificationOutcome {
	return model.ClassificationOutcome{
		ClassifiedAt:  now,
		TransactionID: txn.ID,
		JobID:         jobID,
		Label:         rule.Label(),
		Category:      rule.Action.Category,
		Source:        model.SourceRule,
		RuleID:        rule.ID,
		Confidence:    rule.Confidence,
	}
}

func externalOutcome(txn *model.Transaction, jobID string, res llm.Result, now time.Time) model.ClassificationOutcome {
	if res.Label == "" || res.Label == "unknown" || res.Confidence <= 0 {
		return unknownOutcome(txn, jobID, now)
	}
	return model.ClassificationOutcome{
		ClassifiedAt:  now,
		TransactionID: txn.ID,
		JobID:         jobID,
		Label:         res.Label,
		Category:      res.Category,
		Source:        model.SourceExternal,
		Confidence:    res.Confidence,
	}
}

func unknownOutcome(txn *model.Transaction, jobID string, now time.Time) model.ClassificationOutcome {
	return model.ClassificationOutcome{
		ClassifiedAt:  now,
		TransactionID: txn.ID,
		JobID:         jobID,
		Label:         "unknown",
		Source:        model.SourceUnknown,
		Confidence:    0,
	}
}
