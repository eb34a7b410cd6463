package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ppiankov/newsflow/internal/dlq"
	"github.com/ppiankov/newsflow/internal/logging"
	"github.com/ppiankov/newsflow/internal/pipeline"
	"github.com/ppiankov/newsflow/internal/retry"
	"github.com/ppiankov/newsflow/internal/worker"
)

// Record outcomes, also used as metric labels
const (
	OutcomeProcessed    = "processed"
	OutcomeIgnored      = "ignored"
	OutcomeDeadLettered = "dead_lettered"
)

// dlqPublishTimeout bounds routing one failed record, independent of the batch deadline
const dlqPublishTimeout = 30 * time.Second

// Recorder observes terminal record outcomes
type Recorder interface {
	RecordProcessed(stage, outcome string)
}

// StageHandler runs a stage over CDC batches and routes failed records to the stage DLQ
type StageHandler[T any] struct {
	stage         pipeline.Stage[T]
	publisher     dlq.Publisher
	publishPolicy retry.Policy
	concurrency   int
	recorder      Recorder
	logger        *slog.Logger
}

// NewStageHandler creates a handler. publishPolicy bounds DLQ publish retries;
// recorder may be nil.
func NewStageHandler[T any](
	stage pipeline.Stage[T],
	publisher dlq.Publisher,
	publishPolicy retry.Policy,
	concurrency int,
	recorder Recorder,
	logger *slog.Logger,
) *StageHandler[T] {
	return &StageHandler[T]{
		stage:         stage,
		publisher:     publisher,
		publishPolicy: publishPolicy,
		concurrency:   concurrency,
		recorder:      recorder,
		logger:        logging.OrDefault(logger).With("component", "stage", "stage", stage.Name()),
	}
}

type decoded[T any] struct {
	msg    kafka.Message
	record T
}

// HandleBatch implements BatchHandler. Undecodable or non-create records are ignored,
// failed records are published to the DLQ with retry count 0.
func (h *StageHandler[T]) HandleBatch(ctx context.Context, msgs []kafka.Message) error {
	records := make([]decoded[T], 0, len(msgs))
	for _, msg := range msgs {
		record, ok := h.stage.Decode(msg.Value)
		if !ok {
			h.logger.Debug("skipping record that is not a decodable create event",
				"partition", msg.Partition,
				"offset", msg.Offset)
			h.record(OutcomeIgnored)
			continue
		}
		records = append(records, decoded[T]{msg: msg, record: record})
	}
	if len(records) == 0 {
		return nil
	}

	errs := h.run(ctx, records)
	if errors.Is(ctx.Err(), context.Canceled) {
		// shutting down: leave the batch uncommitted instead of dead-lettering it
		return ctx.Err()
	}

	for i, d := range records {
		if errs[i] == nil {
			h.record(OutcomeProcessed)
			continue
		}
		articleID := h.stage.ArticleID(d.record)
		h.logger.Warn("record failed, routing to dlq",
			"article_id", articleID,
			"partition", d.msg.Partition,
			"offset", d.msg.Offset,
			"error", errs[i])
		if err := h.deadLetter(ctx, d.msg.Value, articleID); err != nil {
			return err
		}
		h.record(OutcomeDeadLettered)
	}
	return nil
}

// run processes the records and returns errors aligned with them
func (h *StageHandler[T]) run(ctx context.Context, records []decoded[T]) []error {
	if batch, ok := h.stage.(pipeline.BatchStage[T]); ok && len(records) > 1 {
		return h.runBatch(ctx, batch, records)
	}

	processor := worker.NewBatchProcessor(func(ctx context.Context, d decoded[T]) error {
		return h.stage.Process(ctx, d.record)
	}, h.concurrency)

	results := processor.Process(ctx, records)
	errs := make([]error, len(records))
	for _, r := range results {
		errs[r.Index] = r.Err
	}
	return errs
}

func (h *StageHandler[T]) runBatch(ctx context.Context, batch pipeline.BatchStage[T], records []decoded[T]) (errs []error) {
	defer func() {
		if r := recover(); r != nil {
			errs = make([]error, len(records))
			for i := range errs {
				errs[i] = &worker.PanicError{Value: r}
			}
		}
	}()

	items := make([]T, len(records))
	for i, d := range records {
		items[i] = d.record
	}
	errs = batch.ProcessBatch(ctx, items)
	if len(errs) != len(records) {
		return alignErrors(errs, len(records))
	}
	return errs
}

// alignErrors turns a misaligned batch result into one error per record
func alignErrors(errs []error, n int) []error {
	err := fmt.Errorf("batch returned %d results for %d records", len(errs), n)
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}

func (h *StageHandler[T]) deadLetter(ctx context.Context, raw []byte, articleID string) error {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dlqPublishTimeout)
	defer cancel()

	err := retry.Do(pubCtx, h.publishPolicy, func(attempt int, delay time.Duration, err error) {
		h.logger.Warn("retrying dlq publish", "article_id", articleID, "attempt", attempt, "delay", delay, "error", err)
	}, func(ctx context.Context) error {
		return h.publisher.Publish(ctx, raw, 0, articleID)
	})
	if err != nil {
		return fmt.Errorf("route %s to dlq: %w", articleID, err)
	}
	return nil
}

func (h *StageHandler[T]) record(outcome string) {
	if h.recorder != nil {
		h.recorder.RecordProcessed(h.stage.Name(), outcome)
	}
}
