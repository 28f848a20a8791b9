// Package rules implements the merge/precedence resolver and the
// classification evaluator.
package rules

import (
	"sort"

	"github.com/ledgersift/ledgersift/internal/model"
)

// lessPrecedence reports whether a is more authoritative than b. Lower
// priority number wins; ties break by higher confidence, then higher version,
// then more recent update.
func lessPrecedence(a, b *model.Rule) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.Version != b.Version {
		return a.Version > b.Version
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

// Merge combines global and user rules into one deterministically ordered
// set, best rule first.
//
// The merge is two-phase: global rules compete among themselves by the
// precedence tuple, keeping the best rule per identity key; user rules then
// overwrite unconditionally at the same identity key. A user's own rule
// always wins over a global rule sharing its pattern and fields, regardless
// of tuple.
func Merge(global, user []model.Rule) []model.Rule {
	combined := make(map[string]model.Rule, len(global)+len(user))

	for _, rule := range global {
		key := rule.IdentityKey()
		existing, ok := combined[key]
		if !ok || lessPrecedence(&rule, &existing) {
			combined[key] = rule
		}
	}

	for _, rule := range user {
		combined[rule.IdentityKey()] = rule
	}

	merged := make([]model.Rule, 0, len(combined))
	for _, rule := range combined {
		merged = append(merged, rule)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if lessPrecedence(&merged[i], &merged[j]) {
			return true
		}
		if lessPrecedence(&merged[j], &merged[i]) {
			return false
		}
		// Full tuple tie: fall back to identity key so ordering is a pure
		// function of the rule set.
		return merged[i].IdentityKey() < merged[j].IdentityKey()
	})

	return merged
}
