package textgen

import (
	"context"
	"time"

	"github.com/pimstack/aipopulate/internal/batch"
	"github.com/pimstack/aipopulate/internal/model"
	"github.com/pimstack/aipopulate/internal/resilience"
)

// Executor runs many generation requests and returns one output per item.
// The synchronous implementation fans out over the worker pool; the
// asynchronous one hands the whole set to the remote batch-file pipeline.
type Executor interface {
	ExecuteBatch(ctx context.Context, items []model.BatchItem[Input]) *model.BatchResponse[string]
}

// SyncExecutorOptions tune the parallel fan-out strategy.
type SyncExecutorOptions struct {
	// Parallelism caps concurrent generation calls. Zero selects the
	// dispatcher default.
	Parallelism int
	// RequestTimeout bounds each generation call. Default 10s.
	RequestTimeout time.Duration
	// RetryAttempts is the total tries per request, including the first.
	// Default 3.
	RetryAttempts int
}

type syncExecutor struct {
	gen  Generator
	opts SyncExecutorOptions
}

// NewSyncExecutor wraps a Generator in the parallel fan-out strategy.
func NewSyncExecutor(gen Generator, opts SyncExecutorOptions) Executor {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	return &syncExecutor{gen: gen, opts: opts}
}

func (e *syncExecutor) ExecuteBatch(ctx context.Context, items []model.BatchItem[Input]) *model.BatchResponse[string] {
	// ShouldRetry is left nil so only errors the resilience package
	// classifies as transient are retried; provider rejections surface
	// after the first attempt.
	retryCfg := resilience.RetryConfig{
		MaxAttempts: e.opts.RetryAttempts,
		OnRetry:     resilience.RetryLogger("textgen", "generate"),
	}

	return batch.Process(ctx, items, func(ctx context.Context, item model.BatchItem[Input]) (*string, error) {
		text, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (string, error) {
			reqCtx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
			defer cancel()
			return e.gen.Generate(reqCtx, item.Body)
		})
		if err != nil {
			return nil, err
		}
		return &text, nil
	}, batch.Options{Parallelism: e.opts.Parallelism})
}
