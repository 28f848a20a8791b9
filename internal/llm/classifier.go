package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/service"
)

// Classifier wraps a provider Client with batching, retry/backoff, bounded
// concurrency, and cost gating. It implements the engine.Classifier contract:
// one Result per input signature, in request order.
type Classifier struct {
	client        Client
	ledger        Ledger
	logger        *slog.Logger
	rateLimiter   *rateLimiter
	retryOpts     service.RetryOptions
	batchSize     int
	maxConcurrent int
	callTimeout   time.Duration
	maxTokens     int
	pricePer1K    float64
}

// NewClassifier creates a classifier adapter for the configured provider.
func NewClassifier(cfg Config, ledger Ledger, logger *slog.Logger) (*Classifier, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err = newOpenAIClient(cfg)
	case "anthropic":
		client, err = newAnthropicClient(cfg)
	case "ollama":
		client, err = newOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	pricePer1K := cfg.PricePer1K
	if pricePer1K <= 0 {
		pricePer1K = 0.002
	}

	return &Classifier{
		client:        client,
		ledger:        ledger,
		logger:        logger,
		rateLimiter:   newRateLimiter(cfg.RateLimit),
		retryOpts:     retryOpts,
		batchSize:     batchSize,
		maxConcurrent: maxConcurrent,
		callTimeout:   callTimeout,
		maxTokens:     maxTokens,
		pricePer1K:    pricePer1K,
	}, nil
}

// NewClassifierWithClient builds an adapter around an existing Client. Used
// by tests and by callers that construct providers themselves.
func NewClassifierWithClient(client Client, cfg Config, ledger Ledger, logger *slog.Logger) *Classifier {
	c, _ := NewClassifier(Config{Provider: "ollama"}, ledger, logger)
	c.client = client
	if cfg.BatchSize > 0 {
		c.batchSize = cfg.BatchSize
	}
	if cfg.MaxConcurrent > 0 {
		c.maxConcurrent = cfg.MaxConcurrent
	}
	if cfg.CallTimeout > 0 {
		c.callTimeout = cfg.CallTimeout
	}
	if cfg.MaxRetries > 0 {
		c.retryOpts.MaxAttempts = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		c.retryOpts.InitialDelay = cfg.RetryDelay
	}
	if cfg.PricePer1K > 0 {
		c.pricePer1K = cfg.PricePer1K
	}
	return c
}

// Classify classifies merchant signatures, chunked into fixed-size batches
// with up to maxConcurrent batches in flight. Every batch call is gated by
// the cost ledger before it is issued.
//
// Transient failures degrade the affected batch to unknown results and the
// job continues. A budget rejection cancels the remaining batches and is
// returned alongside the (partially degraded) results; callers must treat it
// as fatal for the job's external calls, never swallow it.
func (c *Classifier) Classify(ctx context.Context, signatures []string, jobID string, categories []string) ([]Result, error) {
	if len(signatures) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]Result, len(signatures))
	for i, sig := range signatures {
		results[i] = Result{Signature: sig, Label: "unknown", Confidence: 0}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		budgetErr error
	)
	sem := make(chan struct{}, c.maxConcurrent)

	for start := 0; start < len(signatures); start += c.batchSize {
		end := start + c.batchSize
		if end > len(signatures) {
			end = len(signatures)
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			if err := c.classifyBatch(ctx, signatures[start:end], jobID, categories, results[start:end]); err != nil {
				if errors.Is(err, common.ErrBudgetExceeded) {
					mu.Lock()
					if budgetErr == nil {
						budgetErr = err
					}
					mu.Unlock()
					cancel()
					return
				}
				// Retries exhausted: the batch stays degraded to unknown
				// and the job continues.
				c.logger.Warn("batch classification degraded to unknown",
					"job_id", jobID,
					"batch_start", start,
					"batch_size", end-start,
					"error", err)
			}
		}(start, end)
	}

	wg.Wait()

	if budgetErr != nil {
		return results, budgetErr
	}
	return results, nil
}

// classifyBatch issues one gated, retried provider call and fills out. The
// out slice aliases the caller's results and is pre-filled with unknowns.
func (c *Classifier) classifyBatch(ctx context.Context, sigs []string, jobID string, categories []string, out []Result) error {
	if err := c.rateLimiter.wait(ctx); err != nil {
		return err
	}

	systemPrompt, userPrompt := buildBatchPrompt(sigs, categories)

	// Project the call cost before it happens; the ledger is charged with
	// the projection and a rejection means the call is never issued.
	estIn := estimateTokens(systemPrompt + userPrompt)
	projCost := float64(estIn+c.maxTokens) / 1000 * c.pricePer1K
	if err := c.ledger.CheckAndCharge(ctx, jobID, estIn, c.maxTokens, projCost); err != nil {
		return err
	}

	var completion Completion
	err := common.WithRetry(ctx, func() error {
		callCtx, cancelCall := context.WithTimeout(ctx, c.callTimeout)
		defer cancelCall()

		comp, err := c.client.Complete(callCtx, systemPrompt, userPrompt)
		if err != nil {
			return &common.RetryableError{Err: err, Retryable: true}
		}
		completion = comp
		return nil
	}, c.retryOpts)
	if err != nil {
		return err
	}

	tokensIn, tokensOut := completion.TokensIn, completion.TokensOut
	if tokensIn == 0 {
		tokensIn = estIn
	}

	items := parseBatchItems(completion.Text, len(sigs))
	perCost := projCost / float64(len(sigs))
	for i, item := range items {
		out[i] = Result{
			Signature:  sigs[i],
			Label:      item.Label,
			Category:   item.Category,
			Confidence: item.Confidence,
			TokensIn:   tokensIn / len(sigs),
			TokensOut:  tokensOut / len(sigs),
			Cost:       perCost,
		}
	}

	c.logger.Debug("classified batch",
		"job_id", jobID,
		"batch_size", len(sigs),
		"tokens_in", tokensIn,
		"tokens_out", tokensOut)

	return nil
}

// buildBatchPrompt builds the prompts for one signature batch.
func buildBatchPrompt(sigs []string, categories []string) (string, string) {
	systemPrompt := "You are a bank statement merchant classifier. Respond ONLY with a JSON array, one object per merchant, in input order. No explanatory text, no markdown."

	var categoryList strings.Builder
	for _, cat := range categories {
		fmt.Fprintf(&categoryList, "- %s\n", cat)
	}

	var merchantList strings.Builder
	for i, sig := range sigs {
		fmt.Fprintf(&merchantList, "%d. %s\n", i+1, sig)
	}

	userPrompt := fmt.Sprintf(`Classify each merchant below.

Allowed categories:
%s
Merchants:
%s
For every merchant return an object:
{"label": "<canonical merchant name, lowercase>", "category": "<one of the allowed categories>", "confidence": <0.0-1.0>}

Return a JSON array with exactly %d objects, in the same order as the input.`,
		categoryList.String(),
		merchantList.String(),
		len(sigs))

	return systemPrompt, userPrompt
}

// estimateTokens approximates token usage at 4 characters per token.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// Close stops background goroutines.
func (c *Classifier) Close() error {
	if c.rateLimiter != nil {
		c.rateLimiter.Close()
	}
	return nil
}
