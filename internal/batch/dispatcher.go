// Package batch runs an operation over a list of targets in bounded
// concurrent chunks, collecting a per-target outcome instead of failing
// the whole run.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"membership-billing/internal/common/errors"
	"membership-billing/internal/common/logger"
)

// Outcome records what happened for one target. Exactly one of Detail or
// Err is meaningful depending on Success.
type Outcome[T any] struct {
	Target  T
	Success bool
	Detail  string
	Err     error
}

// Result aggregates the outcomes of a full run. Outcomes preserves the
// order of the input targets regardless of scheduling.
type Result[T any] struct {
	Total     int
	Succeeded int
	Failed    int
	Outcomes  []Outcome[T]
}

// Operation processes a single target and returns a human-readable detail
// string on success.
type Operation[T any] func(ctx context.Context, target T) (string, error)

// Dispatcher fans an operation out over targets, batchSize at a time,
// pausing delay between chunks.
type Dispatcher[T any] struct {
	batchSize int
	delay     time.Duration
	logger    logger.Logger
	onChunk   func(completed, total int)
}

func NewDispatcher[T any](batchSize int, delay time.Duration, log logger.Logger) (*Dispatcher[T], error) {
	if batchSize < 1 {
		return nil, errors.NewArgumentMismatchError(fmt.Sprintf("batchSize must be positive, got %d", batchSize))
	}
	return &Dispatcher[T]{
		batchSize: batchSize,
		delay:     delay,
		logger:    log.WithFields(map[string]interface{}{"component": "batch"}),
	}, nil
}

// WithChunkObserver registers a callback invoked after every chunk with the
// number of targets processed so far.
func (d *Dispatcher[T]) WithChunkObserver(fn func(completed, total int)) *Dispatcher[T] {
	d.onChunk = fn
	return d
}

// Run executes op for every target. Targets within a chunk run
// concurrently; chunks run in sequence with the configured delay between
// them. A panic or error in one target is recorded as a failed outcome
// and never stops the others. Cancelling ctx stops the run between
// chunks; targets not yet dispatched are marked failed with ctx.Err().
func (d *Dispatcher[T]) Run(ctx context.Context, targets []T, op Operation[T]) *Result[T] {
	result := &Result[T]{
		Total:    len(targets),
		Outcomes: make([]Outcome[T], len(targets)),
	}
	if len(targets) == 0 {
		return result
	}

	start := time.Now()

	for chunkStart := 0; chunkStart < len(targets); chunkStart += d.batchSize {
		if err := ctx.Err(); err != nil {
			for i := chunkStart; i < len(targets); i++ {
				result.Outcomes[i] = Outcome[T]{Target: targets[i], Err: err}
			}
			break
		}

		chunkEnd := chunkStart + d.batchSize
		if chunkEnd > len(targets) {
			chunkEnd = len(targets)
		}

		var wg sync.WaitGroup
		for i := chunkStart; i < chunkEnd; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				result.Outcomes[idx] = d.runOne(ctx, targets[idx], op)
			}(i)
		}
		wg.Wait()

		if d.onChunk != nil {
			d.onChunk(chunkEnd, len(targets))
		}

		if chunkEnd < len(targets) && d.delay > 0 {
			select {
			case <-time.After(d.delay):
			case <-ctx.Done():
			}
		}
	}

	for _, o := range result.Outcomes {
		if o.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	d.logger.Info("batch run completed", map[string]interface{}{
		"total":     result.Total,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"duration":  time.Since(start).String(),
	})

	return result
}

func (d *Dispatcher[T]) runOne(ctx context.Context, target T, op Operation[T]) (out Outcome[T]) {
	out.Target = target
	defer func() {
		if r := recover(); r != nil {
			out.Success = false
			out.Detail = ""
			out.Err = fmt.Errorf("operation panicked: %v", r)
			d.logger.Error("batch operation panicked", map[string]interface{}{
				"panic": fmt.Sprintf("%v", r),
			})
		}
	}()

	detail, err := op(ctx, target)
	if err != nil {
		out.Err = err
		return out
	}
	out.Success = true
	out.Detail = detail
	return out
}
