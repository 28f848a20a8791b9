package model

import "time"

// CostEntry records the spend of one external classifier call. Entries are
// append-only and never mutated; totals are aggregated per day and per job.
type CostEntry struct {
	CreatedAt time.Time `json:"created_at"`
	JobID     string    `json:"job_id"`
	ID        int64     `json:"id"`
	TokensIn  int       `json:"tokens_in"`
	TokensOut int       `json:"tokens_out"`
	Cost      float64   `json:"cost"`
}

// CostSummary aggregates the entries of one job.
type CostSummary struct {
	JobID         string  `json:"job_id"`
	TokensIn      int     `json:"tokens_in"`
	TokensOut     int     `json:"tokens_out"`
	TotalTokens   int     `json:"total_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
}
