package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersift/ledgersift/internal/model"
)

func activeRule(matchType model.MatchType, pattern string, fields []string, label string) model.Rule {
	return model.Rule{
		Scope:      model.ScopeGlobal,
		Match:      model.Match{Type: matchType, Pattern: pattern, Fields: fields},
		Action:     model.Action{Label: label, Category: "Shopping"},
		Priority:   100,
		Confidence: 1,
		Version:    1,
		Provenance: model.ProvenanceSystem,
		Active:     true,
	}
}

func TestEvaluate_MatchTypes(t *testing.T) {
	txn := model.Transaction{
		ID:                "t1",
		Description:       "POS NETFLIX.COM 123456",
		MerchantSignature: "netflixcom",
		Amount:            -9.99,
	}

	tests := []struct {
		name      string
		rule      model.Rule
		wantMatch bool
	}{
		{
			name:      "exact is case-sensitive",
			rule:      activeRule(model.MatchExact, "POS NETFLIX.COM 123456", []string{"description"}, "netflix"),
			wantMatch: true,
		},
		{
			name:      "exact rejects case difference",
			rule:      activeRule(model.MatchExact, "pos netflix.com 123456", []string{"description"}, "netflix"),
			wantMatch: false,
		},
		{
			name:      "contains is case-insensitive",
			rule:      activeRule(model.MatchContains, "netflix", []string{"description"}, "netflix"),
			wantMatch: true,
		},
		{
			name:      "regex without flags",
			rule:      activeRule(model.MatchRegex, `NETFLIX\.COM`, []string{"description"}, "netflix"),
			wantMatch: true,
		},
		{
			name: "regex honors case-insensitive flag",
			rule: func() model.Rule {
				r := activeRule(model.MatchRegex, `netflix\.com`, []string{"description"}, "netflix")
				r.Match.Flags = []string{"i"}
				return r
			}(),
			wantMatch: true,
		},
		{
			name:      "regex without flag stays case-sensitive",
			rule:      activeRule(model.MatchRegex, `netflix\.com`, []string{"description"}, "netflix"),
			wantMatch: false,
		},
		{
			name:      "signature compares normalized forms",
			rule:      activeRule(model.MatchSignature, "POS Netflix.com 99887766", []string{"description"}, "netflix"),
			wantMatch: true,
		},
		{
			name:      "missing field is skipped",
			rule:      activeRule(model.MatchContains, "netflix", []string{"memo"}, "netflix"),
			wantMatch: false,
		},
		{
			name:      "invalid regex never matches",
			rule:      activeRule(model.MatchRegex, `netflix(`, []string{"description"}, "netflix"),
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, ok := Evaluate(&txn, []model.Rule{tt.rule})
			assert.Equal(t, tt.wantMatch, ok)
			if tt.wantMatch {
				require.NotNil(t, matched)
				assert.Equal(t, "netflix", matched.Label())
			}
		})
	}
}

func TestEvaluate_FirstMatchWins(t *testing.T) {
	txn := model.Transaction{ID: "t1", Description: "tesco stores"}

	first := activeRule(model.MatchContains, "tesco", []string{"description"}, "first")
	second := activeRule(model.MatchContains, "stores", []string{"description"}, "second")

	matched, ok := Evaluate(&txn, []model.Rule{first, second})
	require.True(t, ok)
	assert.Equal(t, "first", matched.Label(), "evaluation is first-match, not best-match")
}

func TestEvaluate_SkipsInactiveRules(t *testing.T) {
	txn := model.Transaction{ID: "t1", Description: "tesco stores"}

	inactive := activeRule(model.MatchContains, "tesco", []string{"description"}, "inactive")
	inactive.Active = false
	fallback := activeRule(model.MatchContains, "stores", []string{"description"}, "fallback")

	matched, ok := Evaluate(&txn, []model.Rule{inactive, fallback})
	require.True(t, ok)
	assert.Equal(t, "fallback", matched.Label())
}

func TestEvaluate_FieldsTestedInDeclaredOrder(t *testing.T) {
	txn := model.Transaction{
		ID:                "t1",
		Description:       "netflix",
		MerchantSignature: "netflix",
	}

	rule := activeRule(model.MatchContains, "netflix", []string{"merchant_signature", "description"}, "netflix")
	matched, ok := Evaluate(&txn, []model.Rule{rule})
	require.True(t, ok)
	assert.Equal(t, "netflix", matched.Label())
}

func TestEvaluate_NoMatchReturnsFalse(t *testing.T) {
	txn := model.Transaction{ID: "t1", Description: "mystery merchant"}
	rule := activeRule(model.MatchContains, "netflix", []string{"description"}, "netflix")

	matched, ok := Evaluate(&txn, []model.Rule{rule})
	assert.False(t, ok)
	assert.Nil(t, matched)
}

func TestEvaluate_Deterministic(t *testing.T) {
	txn := model.Transaction{ID: "t1", Description: "POS Tesco Stores 1234567"}
	set := []model.Rule{
		activeRule(model.MatchSignature, "tesco stores", []string{"description"}, "tesco"),
		activeRule(model.MatchContains, "tesco", []string{"description"}, "tesco-contains"),
	}

	first, ok := Evaluate(&txn, set)
	require.True(t, ok)
	for i := 0; i < 50; i++ {
		again, ok := Evaluate(&txn, set)
		require.True(t, ok)
		assert.Equal(t, first.Label(), again.Label())
	}
}
