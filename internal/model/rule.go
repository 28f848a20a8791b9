// Package model defines the core data structures for the ledgersift engine.
package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

// RuleScope identifies who a rule belongs to.
type RuleScope string

// Rule scope constants.
const (
	ScopeGlobal RuleScope = "global"
	ScopeUser   RuleScope = "user"
)

// MatchType is the closed set of supported match semantics.
type MatchType string

// Match type constants.
const (
	MatchExact     MatchType = "exact"
	MatchContains  MatchType = "contains"
	MatchRegex     MatchType = "regex"
	MatchSignature MatchType = "signature"
)

// Provenance records where a rule came from.
type Provenance string

// Provenance constants.
const (
	ProvenanceSystem     Provenance = "system"
	ProvenanceUser       Provenance = "user"
	ProvenanceClassifier Provenance = "external-classifier"
)

// FieldMerchantSignature is the widest matchable transaction field. Learned
// rules always target it; an existing rule on a narrower field blocks
// auto-upgrades.
const FieldMerchantSignature = "merchant_signature"

// Match describes how a rule tests a transaction record.
type Match struct {
	Type    MatchType `json:"type"`
	Pattern string    `json:"pattern"`
	Fields  []string  `json:"fields"`
	Flags   []string  `json:"flags,omitempty"`
}

// Action is what a matching rule assigns.
type Action struct {
	Label    string `json:"label,omitempty"`
	Category string `json:"category"`
}

// Rule matches transactions and assigns a label/category. Rules are never
// deleted; a higher-version row with the same identity key supersedes.
type Rule struct {
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	OwnerUserID string     `json:"owner_user_id,omitempty"`
	Scope       RuleScope  `json:"scope"`
	Provenance  Provenance `json:"provenance"`
	Match       Match      `json:"match"`
	Action      Action     `json:"action"`
	ID          int64      `json:"id"`
	Priority    int        `json:"priority"`
	Version     int        `json:"version"`
	Confidence  float64    `json:"confidence"`
	Active      bool       `json:"active"`
}

// IdentityKey returns the merge/dedup identity of the rule: the normalized
// pattern joined with the sorted field set. Two rules with the same identity
// key are versions of the same logical rule.
func (r *Rule) IdentityKey() string {
	fields := make([]string, len(r.Match.Fields))
	copy(fields, r.Match.Fields)
	sort.Strings(fields)
	return NormalizePattern(r.Match.Pattern) + "|" + strings.Join(fields, ",")
}

// NormalizePattern lowercases a pattern and strips everything but letters and
// digits. Used only for identity comparison, never for matching.
func NormalizePattern(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// AlphabeticLength counts the letters in a pattern. Patterns with fewer than
// six letters are considered too generic to learn.
func AlphabeticLength(pattern string) int {
	n := 0
	for _, r := range pattern {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// Label returns the value a match assigns: the action label, falling back to
// the category when no label is set.
func (r *Rule) Label() string {
	if r.Action.Label != "" {
		return r.Action.Label
	}
	return r.Action.Category
}

// Validate checks structural rule invariants. Category membership in the
// taxonomy is enforced separately at write time.
func (r *Rule) Validate() error {
	switch r.Scope {
	case ScopeGlobal, ScopeUser:
	default:
		return fmt.Errorf("invalid rule scope: %q", r.Scope)
	}
	if r.Scope == ScopeUser && r.OwnerUserID == "" {
		return fmt.Errorf("user-scoped rule requires an owner")
	}
	switch r.Match.Type {
	case MatchExact, MatchContains, MatchRegex, MatchSignature:
	default:
		return fmt.Errorf("invalid match type: %q", r.Match.Type)
	}
	if r.Match.Pattern == "" {
		return fmt.Errorf("match pattern is required")
	}
	if len(r.Match.Fields) == 0 {
		return fmt.Errorf("at least one match field is required")
	}
	for _, flag := range r.Match.Flags {
		if flag != "i" && flag != "m" {
			return fmt.Errorf("invalid regex flag: %q", flag)
		}
	}
	if r.Action.Category == "" {
		return fmt.Errorf("action category is required")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1")
	}
	if r.Version < 1 {
		return fmt.Errorf("version must be at least 1")
	}
	switch r.Provenance {
	case ProvenanceSystem, ProvenanceUser, ProvenanceClassifier:
	default:
		return fmt.Errorf("invalid provenance: %q", r.Provenance)
	}
	return nil
}
