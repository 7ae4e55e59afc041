// Package batch runs bounded, failure-isolated fan-out over a slice of
// work items. Transforms for distinct items run concurrently up to a
// parallelism cap; one item failing never aborts its siblings.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pimstack/aipopulate/internal/model"
)

const (
	minParallelism = 16
	maxParallelism = 128

	enqueueRetries    = 3
	enqueueRetryDelay = 100 * time.Millisecond
)

// Transform produces the output for a single batch item. A nil error with
// a nil output is treated as a transform bug and reported as an item error.
type Transform[I, O any] func(ctx context.Context, item model.BatchItem[I]) (*O, error)

// Options tune a single Process call.
type Options struct {
	// Parallelism caps concurrent transforms. Zero or negative selects
	// the default derived from the host CPU count.
	Parallelism int
}

// DefaultParallelism is eight workers per CPU, clamped to [16, 128].
func DefaultParallelism() int {
	p := runtime.NumCPU() * 8
	if p < minParallelism {
		p = minParallelism
	}
	if p > maxParallelism {
		p = maxParallelism
	}
	return p
}

// Process dispatches every item to transform with bounded parallelism and
// collects one output per item, in completion order. Item-level failures
// are captured on the corresponding output; only a batch-level fault such
// as context cancellation produces a response-level error.
func Process[I, O any](ctx context.Context, items []model.BatchItem[I], transform Transform[I, O], opts Options) *model.BatchResponse[O] {
	resp := &model.BatchResponse[O]{}
	if len(items) == 0 {
		return resp
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism()
	}

	queue := make(chan model.BatchItem[I], parallelism*2)
	results := make(chan model.BatchOutput[O], len(items))

	var wg sync.WaitGroup
	for w := 0; w < parallelism; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				results <- runOne(ctx, item, transform)
			}
		}()
	}

	var batchErr *model.BatchError
enqueue:
	for _, item := range items {
		if err := enqueue(ctx, queue, item); err != nil {
			if ctx.Err() != nil {
				batchErr = &model.BatchError{
					Code:    model.ErrCodeBatchFailed,
					Message: fmt.Sprintf("batch cancelled: %v", ctx.Err()),
				}
				break enqueue
			}
			// Queue stayed full through every retry; fail just this item.
			results <- model.ErrorOutput[O](item.ID, model.ErrCodeInputProcessing, err.Error())
		}
	}
	close(queue)
	wg.Wait()
	close(results)

	for out := range results {
		resp.Outputs = append(resp.Outputs, out)
	}
	resp.Error = batchErr
	return resp
}

// enqueue offers the item to the queue, retrying a bounded number of times
// before giving up so a stalled worker pool cannot block the producer
// forever.
func enqueue[I any](ctx context.Context, queue chan<- model.BatchItem[I], item model.BatchItem[I]) error {
	for attempt := 0; attempt <= enqueueRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "batch: enqueue interrupted")
			case <-time.After(enqueueRetryDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "batch: enqueue interrupted")
		}
		select {
		case queue <- item:
			return nil
		default:
		}
	}
	return eris.Errorf("batch: queue full after %d attempts", enqueueRetries+1)
}

func runOne[I, O any](ctx context.Context, item model.BatchItem[I], transform Transform[I, O]) (out model.BatchOutput[O]) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("batch item transform panicked",
				zap.String("item_id", item.ID),
				zap.Any("panic", r))
			out = model.ErrorOutput[O](item.ID, model.ErrCodeInputProcessing, fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return model.ErrorOutput[O](item.ID, model.ErrCodeRequestFailed, err.Error())
	}

	body, err := transform(ctx, item)
	if err != nil {
		zap.L().Warn("batch item failed",
			zap.String("item_id", item.ID),
			zap.Error(err))
		return model.ErrorOutput[O](item.ID, model.ErrCodeRequestFailed, err.Error())
	}
	if body == nil {
		return model.ErrorOutput[O](item.ID, model.ErrCodeInputProcessing, "transform returned no output")
	}
	return model.BatchOutput[O]{ID: item.ID, Body: body}
}
