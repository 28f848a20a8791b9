// Package llm wraps remote text-classification providers behind one adapter
// with batching, retry, and cost accounting.
package llm

import (
	"context"
	"time"
)

// Client defines the interface for LLM providers. Providers are selected by
// configuration lookup; every provider implements the same completion
// contract and the adapter owns batching, retries, and cost gating.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (Completion, error)
}

// Completion is a raw provider response with token usage.
type Completion struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Result is the classification of one merchant signature. One Result is
// returned per input signature, in request order.
type Result struct {
	Signature  string
	Label      string
	Category   string
	Confidence float64
	TokensIn   int
	TokensOut  int
	Cost       float64
}

// Ledger gates external calls on spend caps. Implemented by ledger.Ledger.
type Ledger interface {
	CheckAndCharge(ctx context.Context, jobID string, tokensIn, tokensOut int, cost float64) error
}

// Config holds configuration for the classifier adapter.
type Config struct {
	Provider      string
	APIKey        string
	Model         string
	BaseURL       string // Ollama host, e.g. http://localhost:11434
	BatchSize     int
	MaxRetries    int
	RetryDelay    time.Duration
	CallTimeout   time.Duration
	MaxConcurrent int
	RateLimit     int
	MaxTokens     int
	Temperature   float64
	PricePer1K    float64 // price per 1k tokens, in account currency
}
