package worker

import (
	"context"
)

// HandlerFunc processes a single record of a batch
type HandlerFunc[T any] func(ctx context.Context, item T) error

// RecordJob processes one record of a batch
type RecordJob[T any] struct {
	Index  int
	Item   T
	Handle HandlerFunc[T]
}

// Execute executes the record job
func (j *RecordJob[T]) Execute(ctx context.Context) Result {
	return &RecordResult[T]{
		Index: j.Index,
		Item:  j.Item,
		Err:   j.Handle(ctx, j.Item),
	}
}

// PanicResult makes a panic the record's error so it stays aligned with its input
func (j *RecordJob[T]) PanicResult(err *PanicError) Result {
	return &RecordResult[T]{Index: j.Index, Item: j.Item, Err: err}
}

// RecordResult represents the outcome of one record
type RecordResult[T any] struct {
	Index int
	Item  T
	Err   error
}

// GetError returns the error from the record result
func (r *RecordResult[T]) GetError() error {
	return r.Err
}

// BatchProcessor processes the records of a batch concurrently. A failing or
// panicking record never affects its siblings.
type BatchProcessor[T any] struct {
	handle      HandlerFunc[T]
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor[T any](handle HandlerFunc[T], concurrency int) *BatchProcessor[T] {
	return &BatchProcessor[T]{
		handle:      handle,
		concurrency: concurrency,
	}
}

// Process handles every item and returns one result per item, in input order.
// Records not completed before ctx is cancelled carry the context error.
func (b *BatchProcessor[T]) Process(ctx context.Context, items []T) []*RecordResult[T] {
	if len(items) == 0 {
		return []*RecordResult[T]{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	// Submit from a separate goroutine so a full queue cannot stall result draining
	go func() {
		for i, item := range items {
			pool.Submit(&RecordJob[T]{Index: i, Item: item, Handle: b.handle})
		}
	}()

	results := make([]*RecordResult[T], len(items))
	collected := 0
collect:
	for collected < len(items) {
		select {
		case res := <-pool.results:
			if r, ok := res.(*RecordResult[T]); ok {
				results[r.Index] = r
			}
			collected++
		case <-pool.ctx.Done():
			break collect
		}
	}
	pool.Shutdown()

	for i := range results {
		if results[i] == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			results[i] = &RecordResult[T]{Index: i, Item: items[i], Err: err}
		}
	}

	return results
}

// Errors returns the failed results
func Errors[T any](results []*RecordResult[T]) []*RecordResult[T] {
	var failed []*RecordResult[T]
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
