package stream

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"

	"github.com/ppiankov/newsflow/internal/dlq"
	"github.com/ppiankov/newsflow/internal/worker"
)

// ReplayHandler feeds DLQ batches to a dlq.Handler. Every record ends in a terminal
// dlq.Outcome, so a batch only fails on shutdown.
type ReplayHandler[T any] struct {
	handler     *dlq.Handler[T]
	concurrency int
}

// NewReplayHandler creates a replay handler
func NewReplayHandler[T any](handler *dlq.Handler[T], concurrency int) *ReplayHandler[T] {
	return &ReplayHandler[T]{handler: handler, concurrency: concurrency}
}

// HandleBatch implements BatchHandler
func (r *ReplayHandler[T]) HandleBatch(ctx context.Context, msgs []kafka.Message) error {
	processor := worker.NewBatchProcessor(func(ctx context.Context, msg kafka.Message) error {
		r.handler.Handle(ctx, msg)
		return nil
	}, r.concurrency)
	processor.Process(ctx, msgs)

	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return nil
}
