package model

import "time"

// OutcomeSource says how a transaction got its label.
type OutcomeSource string

// Outcome source constants.
const (
	SourceRule     OutcomeSource = "rule"
	SourceExternal OutcomeSource = "external"
	SourceUnknown  OutcomeSource = "unknown"
)

// ClassificationOutcome is the per-transaction result of a run. Immutable
// once recorded.
type ClassificationOutcome struct {
	ClassifiedAt  time.Time     `json:"classified_at"`
	TransactionID string        `json:"transaction_id"`
	JobID         string        `json:"job_id"`
	Label         string        `json:"label"`
	Category      string        `json:"category,omitempty"`
	Source        OutcomeSource `json:"source"`
	RuleID        int64         `json:"rule_id,omitempty"`
	Confidence    float64       `json:"confidence"`
}
