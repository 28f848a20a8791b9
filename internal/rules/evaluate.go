package rules

import (
	"regexp"
	"strings"
	"sync"

	"github.com/ledgersift/ledgersift/internal/model"
	"github.com/ledgersift/ledgersift/internal/signature"
)

// regexCache caches compiled patterns keyed by flags+pattern. Rule sets are
// small and stable within a run, so entries are never evicted.
var regexCache sync.Map

func compileMatch(m *model.Match) (*regexp.Regexp, error) {
	var flags string
	for _, f := range m.Flags {
		switch f {
		case "i":
			flags += "i"
		case "m":
			flags += "m"
		}
	}
	pattern := m.Pattern
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}

	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// matchText tests one field value against a rule's match.
func matchText(value string, m *model.Match) bool {
	switch m.Type {
	case model.MatchExact:
		return value == m.Pattern
	case model.MatchContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(m.Pattern))
	case model.MatchRegex:
		re, err := compileMatch(m)
		if err != nil {
			// An unparseable pattern never matches; write-time validation
			// should have rejected it.
			return false
		}
		return re.MatchString(value)
	case model.MatchSignature:
		return signature.Normalize(value) == signature.Normalize(m.Pattern)
	default:
		return false
	}
}

// Evaluate walks the merged rules in order and returns the first match. The
// ordering from Merge is what encodes priority, so this is never best-match.
// The bool is false when no rule matched.
func Evaluate(txn *model.Transaction, orderedRules []model.Rule) (*model.Rule, bool) {
	for i := range orderedRules {
		rule := &orderedRules[i]
		if !rule.Active {
			continue
		}
		for _, field := range rule.Match.Fields {
			value, ok := txn.FieldValue(field)
			if !ok {
				continue
			}
			if matchText(value, &rule.Match) {
				return rule, true
			}
		}
	}
	return nil, false
}
