// Package batch fetches detail rows for large id sets in fixed-size batches
// with a bounded number of batches in flight.
package batch

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config controls batching behavior.
type Config struct {
	// Size is the number of ids per batch.
	Size int

	// Window is the number of batches in flight at once.
	Window int

	// WindowDelay is the pause between windows. A deliberate throttle to
	// avoid hammering the backend, not a correctness requirement.
	WindowDelay time.Duration
}

// DefaultConfig returns the batching parameters used by the detail fetch.
func DefaultConfig() Config {
	return Config{
		Size:        50,
		Window:      3,
		WindowDelay: 50 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = 50
	}
	if c.Window <= 0 {
		c.Window = 3
	}
	return c
}

// FetchFunc loads the rows for one batch of ids.
type FetchFunc[T any] func(ctx context.Context, ids []string) ([]T, error)

// Result is the merged outcome across all batches. Rows from failed batches
// are omitted; the failure count is reported so callers can surface the
// precision loss.
type Result[T any] struct {
	Rows          []T
	BatchesIssued int
	BatchesFailed int
}

// Partition splits ids into consecutive slices of at most size elements.
func Partition(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}

// Fetch partitions ids, issues batches in windows of cfg.Window, and merges
// the results. A failing batch is logged and skipped: one bad batch must not
// abort the whole request. Only context cancellation returns an error.
func Fetch[T any](ctx context.Context, ids []string, cfg Config, fn FetchFunc[T]) (*Result[T], error) {
	cfg = cfg.withDefaults()
	batches := Partition(ids, cfg.Size)

	res := &Result[T]{BatchesIssued: len(batches)}
	if len(batches) == 0 {
		return res, nil
	}

	rowsPerBatch := make([][]T, len(batches))
	failed := make([]bool, len(batches))

	for windowStart := 0; windowStart < len(batches); windowStart += cfg.Window {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		windowEnd := windowStart + cfg.Window
		if windowEnd > len(batches) {
			windowEnd = len(batches)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := windowStart; i < windowEnd; i++ {
			g.Go(func() error {
				rows, err := fn(gctx, batches[i])
				if err != nil {
					// Partial-failure tolerance: drop the batch, keep going.
					failed[i] = true
					zap.L().Warn("batch fetch failed, omitting rows",
						zap.Int("batch", i),
						zap.Int("ids", len(batches[i])),
						zap.Error(err),
					)
					return nil
				}
				rowsPerBatch[i] = rows
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		// Throttle between windows, except after the last one.
		if windowEnd < len(batches) && cfg.WindowDelay > 0 {
			timer := time.NewTimer(cfg.WindowDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	for i, rows := range rowsPerBatch {
		if failed[i] {
			res.BatchesFailed++
			continue
		}
		res.Rows = append(res.Rows, rows...)
	}

	if res.BatchesFailed > 0 {
		zap.L().Warn("batched fetch completed with omissions",
			zap.Int("issued", res.BatchesIssued),
			zap.Int("failed", res.BatchesFailed),
		)
	}

	return res, nil
}
