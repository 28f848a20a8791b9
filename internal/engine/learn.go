package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/llm"
	"github.com/ledgersift/ledgersift/internal/model"
)

// learnFromResults writes user rules from confident external answers and
// returns how many rules were inserted. Rejections (generic pattern, unknown
// category, narrower-field conflict) skip the individual result; the run is
// never failed by a learning rejection.
func (e *Engine) learnFromResults(ctx context.Context, userID string, results []llm.Result, categorySet map[string]bool) int {
	var candidates []llm.Result
	for _, res := range results {
		if res.Confidence >= e.opts.LearnThreshold {
			candidates = append(candidates, res)
		}
	}
	if len(candidates) == 0 {
		return 0
	}

	userRules, err := e.ruleStore.LoadUserRules(ctx, userID)
	if err != nil {
		e.logger.Warn("learning skipped, user rule load failed", "user_id", userID, "error", err)
		return 0
	}

	inserted := 0
	for _, res := range candidates {
		ok, err := e.learnOne(ctx, userID, res, userRules, categorySet)
		if err != nil {
			if ctx.Err() != nil {
				return inserted
			}
			e.logger.Debug("rule not learned",
				"user_id", userID,
				"signature", res.Signature,
				"confidence", res.Confidence,
				"reason", err)
			continue
		}
		if ok {
			inserted++
			e.logger.Info("learned rule",
				"user_id", userID,
				"signature", res.Signature,
				"label", res.Label,
				"category", res.Category,
				"confidence", res.Confidence)
		}
	}
	return inserted
}

// learnOne applies the learning policy for a single confident result.
//
// With no existing user rule for the pattern, a version-1 rule is inserted.
// With an existing rule, a superseding version is inserted only when the
// existing rule matches on the merchant signature field (never a narrower
// one), the new confidence clears the upgrade threshold, and it strictly
// exceeds the existing confidence. Anything else leaves the existing rule
// standing.
func (e *Engine) learnOne(ctx context.Context, userID string, res llm.Result, userRules []model.Rule, categorySet map[string]bool) (bool, error) {
	pattern := res.Signature
	if model.AlphabeticLength(pattern) < e.opts.MinPatternLetters {
		return false, fmt.Errorf("pattern %q: %w", pattern, common.ErrPatternTooGeneric)
	}
	if !categorySet[res.Category] {
		return false, fmt.Errorf("category %q: %w", res.Category, common.ErrUnknownCategory)
	}

	existing := latestRuleForPattern(userRules, pattern)

	now := time.Now().UTC()
	rule := &model.Rule{
		CreatedAt:   now,
		UpdatedAt:   now,
		OwnerUserID: userID,
		Scope:       model.ScopeUser,
		Provenance:  model.ProvenanceClassifier,
		Match: model.Match{
			Type:    model.MatchSignature,
			Pattern: pattern,
			Fields:  []string{model.FieldMerchantSignature},
		},
		Action: model.Action{
			Label:    res.Label,
			Category: res.Category,
		},
		Priority:   e.opts.LearnedRulePriority,
		Version:    1,
		Confidence: res.Confidence,
		Active:     true,
	}

	if existing != nil {
		if isNarrowerThanSignature(existing) {
			return false, fmt.Errorf("pattern %q: %w", pattern, common.ErrNarrowerField)
		}
		if res.Confidence < e.opts.UpgradeThreshold || res.Confidence <= existing.Confidence {
			return false, nil
		}
		rule.Priority = existing.Priority
		rule.Version = existing.Version + 1
	}

	if err := e.ruleStore.InsertRule(ctx, rule); err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			// Another run learned the same version first; their rule stands.
			return false, nil
		}
		return false, fmt.Errorf("failed to insert learned rule: %w", err)
	}
	return true, nil
}

// latestRuleForPattern finds the user's highest-version rule whose pattern
// normalizes to the same key, across any field set.
func latestRuleForPattern(userRules []model.Rule, pattern string) *model.Rule {
	want := model.NormalizePattern(pattern)
	var latest *model.Rule
	for i := range userRules {
		rule := &userRules[i]
		if model.NormalizePattern(rule.Match.Pattern) != want {
			continue
		}
		if latest == nil || rule.Version > latest.Version {
			latest = rule
		}
	}
	return latest
}

// isNarrowerThanSignature reports whether a rule matches on anything other
// than exactly the merchant signature field.
func isNarrowerThanSignature(rule *model.Rule) bool {
	if len(rule.Match.Fields) != 1 {
		return true
	}
	return rule.Match.Fields[0] != model.FieldMerchantSignature
}
