package engine

import (
	"context"

	"github.com/ledgersift/ledgersift/internal/llm"
	"github.com/ledgersift/ledgersift/internal/model"
)

// Classifier resolves merchant signatures through an external provider.
// Implementations return one Result per signature, in request order, and
// surface a budget rejection as an error alongside whatever partial results
// were produced before the rejection.
type Classifier interface {
	Classify(ctx context.Context, signatures []string, jobID string, categories []string) ([]llm.Result, error)
	Close() error
}

// CostReporter reports accumulated spend for a job.
type CostReporter interface {
	Summary(ctx context.Context, jobID string) (model.CostSummary, error)
}
