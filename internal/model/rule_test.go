package model

import (
	"testing"
)

func TestRule_IdentityKey(t *testing.T) {
	tests := []struct {
		name string
		a    Rule
		b    Rule
		same bool
	}{
		{
			name: "same pattern different casing and punctuation",
			a:    Rule{Match: Match{Pattern: "Netflix Ltd", Fields: []string{"description"}}},
			b:    Rule{Match: Match{Pattern: "netflix-ltd", Fields: []string{"description"}}},
			same: true,
		},
		{
			name: "field order is irrelevant",
			a:    Rule{Match: Match{Pattern: "tesco", Fields: []string{"description", "merchant_signature"}}},
			b:    Rule{Match: Match{Pattern: "tesco", Fields: []string{"merchant_signature", "description"}}},
			same: true,
		},
		{
			name: "different field sets differ",
			a:    Rule{Match: Match{Pattern: "tesco", Fields: []string{"description"}}},
			b:    Rule{Match: Match{Pattern: "tesco", Fields: []string{"merchant_signature"}}},
			same: false,
		},
		{
			name: "different patterns differ",
			a:    Rule{Match: Match{Pattern: "tesco", Fields: []string{"description"}}},
			b:    Rule{Match: Match{Pattern: "asda", Fields: []string{"description"}}},
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.IdentityKey() == tt.b.IdentityKey()
			if got != tt.same {
				t.Errorf("IdentityKey equality = %v, want %v (%q vs %q)",
					got, tt.same, tt.a.IdentityKey(), tt.b.IdentityKey())
			}
		})
	}
}

func TestRule_Label(t *testing.T) {
	r := Rule{Action: Action{Label: "netflix", Category: "Subscriptions"}}
	if r.Label() != "netflix" {
		t.Errorf("Label() = %q, want %q", r.Label(), "netflix")
	}

	r.Action.Label = ""
	if r.Label() != "Subscriptions" {
		t.Errorf("Label() without action label = %q, want category fallback", r.Label())
	}
}

func TestRule_Validate(t *testing.T) {
	valid := Rule{
		Scope:      ScopeGlobal,
		Match:      Match{Type: MatchContains, Pattern: "netflix", Fields: []string{"description"}},
		Action:     Action{Label: "netflix", Category: "Subscriptions"},
		Priority:   100,
		Version:    1,
		Confidence: 0.9,
		Provenance: ProvenanceSystem,
		Active:     true,
	}

	tests := []struct {
		mutate  func(*Rule)
		name    string
		wantErr bool
	}{
		{name: "valid rule", mutate: func(*Rule) {}, wantErr: false},
		{name: "bad scope", mutate: func(r *Rule) { r.Scope = "team" }, wantErr: true},
		{name: "user scope without owner", mutate: func(r *Rule) { r.Scope = ScopeUser }, wantErr: true},
		{name: "bad match type", mutate: func(r *Rule) { r.Match.Type = "glob" }, wantErr: true},
		{name: "empty pattern", mutate: func(r *Rule) { r.Match.Pattern = "" }, wantErr: true},
		{name: "no fields", mutate: func(r *Rule) { r.Match.Fields = nil }, wantErr: true},
		{name: "bad regex flag", mutate: func(r *Rule) { r.Match.Flags = []string{"x"} }, wantErr: true},
		{name: "missing category", mutate: func(r *Rule) { r.Action.Category = "" }, wantErr: true},
		{name: "confidence above one", mutate: func(r *Rule) { r.Confidence = 1.2 }, wantErr: true},
		{name: "zero version", mutate: func(r *Rule) { r.Version = 0 }, wantErr: true},
		{name: "bad provenance", mutate: func(r *Rule) { r.Provenance = "oracle" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			r.Match.Fields = append([]string(nil), valid.Match.Fields...)
			tt.mutate(&r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAlphabeticLength(t *testing.T) {
	tests := []struct {
		pattern string
		want    int
	}{
		{"netflix", 7},
		{"abc12", 3},
		{"12345", 0},
		{"", 0},
		{"café", 4},
	}

	for _, tt := range tests {
		if got := AlphabeticLength(tt.pattern); got != tt.want {
			t.Errorf("AlphabeticLength(%q) = %d, want %d", tt.pattern, got, tt.want)
		}
	}
}

func TestTransaction_FieldValue(t *testing.T) {
	txn := Transaction{
		ID:                "t1",
		Description:       "POS NETFLIX.COM",
		MerchantSignature: "netflixcom",
		Amount:            -9.99,
	}

	if v, ok := txn.FieldValue("description"); !ok || v != "POS NETFLIX.COM" {
		t.Errorf("FieldValue(description) = %q, %v", v, ok)
	}
	if v, ok := txn.FieldValue("merchant_signature"); !ok || v != "netflixcom" {
		t.Errorf("FieldValue(merchant_signature) = %q, %v", v, ok)
	}
	if v, ok := txn.FieldValue("amount"); !ok || v != "-9.99" {
		t.Errorf("FieldValue(amount) = %q, %v", v, ok)
	}
	if _, ok := txn.FieldValue("date"); ok {
		t.Error("FieldValue(date) should be absent for zero date")
	}
	if _, ok := txn.FieldValue("account"); ok {
		t.Error("FieldValue(account) should be unknown")
	}
}
