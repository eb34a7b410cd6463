// Package dlq replays records from a stage's dead-letter topic with a bounded retry count.
package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ppiankov/newsflow/internal/logging"
	"github.com/ppiankov/newsflow/internal/pipeline"
)

// Outcome is the terminal result of handling one DLQ record
type Outcome string

// Every outcome is terminal: the record's offset may be committed afterwards.
const (
	OutcomeDiscarded       Outcome = "discarded"        // retry ceiling reached
	OutcomeDropped         Outcome = "dropped"          // not a create event or unparsable
	OutcomeStale           Outcome = "stale"            // newer state already stored
	OutcomeSucceeded       Outcome = "succeeded"        // replay succeeded
	OutcomeRepublished     Outcome = "republished"      // replay failed, record sent back with retry+1
	OutcomeRepublishFailed Outcome = "republish_failed" // replay and republish both failed
)

// publishTimeout bounds a republish, which must outlive an expired processing context
const publishTimeout = 10 * time.Second

// Recorder observes DLQ outcomes
type Recorder interface {
	RecordDLQOutcome(stage, outcome string)
}

// Handler replays DLQ records of one stage
type Handler[T any] struct {
	stage      pipeline.Stage[T]
	maxRetries int
	publisher  Publisher
	recorder   Recorder
	logger     *slog.Logger
}

// NewHandler creates a handler. Records whose retry count reached maxRetries are
// discarded without being replayed. recorder may be nil.
func NewHandler[T any](stage pipeline.Stage[T], maxRetries int, publisher Publisher, recorder Recorder, logger *slog.Logger) *Handler[T] {
	return &Handler[T]{
		stage:      stage,
		maxRetries: maxRetries,
		publisher:  publisher,
		recorder:   recorder,
		logger:     logging.OrDefault(logger).With("component", "dlq", "stage", stage.Name()),
	}
}

// Handle replays msg. It never fails: every path ends in a terminal outcome.
func (h *Handler[T]) Handle(ctx context.Context, msg kafka.Message) Outcome {
	outcome := h.handle(ctx, msg)
	if h.recorder != nil {
		h.recorder.RecordDLQOutcome(h.stage.Name(), string(outcome))
	}
	return outcome
}

func (h *Handler[T]) handle(ctx context.Context, msg kafka.Message) Outcome {
	retryCount := RetryCount(msg.Headers)
	log := h.logger.With(
		"retry_count", retryCount,
		"partition", msg.Partition,
		"offset", msg.Offset)

	// 1. Ceiling
	if retryCount >= h.maxRetries {
		log.Warn("dlq retry limit reached, discarding record",
			"key", string(msg.Key),
			"max_retries", h.maxRetries)
		return OutcomeDiscarded
	}

	// 2. Decode
	record, ok := h.stage.Decode(msg.Value)
	if !ok {
		log.Warn("dropping dlq record that is not a decodable create event", "key", string(msg.Key))
		return OutcomeDropped
	}
	articleID := h.stage.ArticleID(record)
	log = log.With("article_id", articleID)

	// 3. Staleness
	if checker, ok := h.stage.(pipeline.StalenessChecker[T]); ok {
		stale, err := checker.IsStale(ctx, record)
		switch {
		case err != nil:
			log.Warn("staleness check failed, replaying anyway", "error", err)
		case stale:
			log.Info("discarding stale dlq record, newer state already stored")
			return OutcomeStale
		}
	}

	// 4. Replay
	err := h.stage.Process(ctx, record)
	if err == nil {
		log.Info("dlq replay succeeded")
		return OutcomeSucceeded
	}
	log.Warn("dlq replay failed", "error", err)

	// 5. Send back with an incremented count
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := h.publisher.Publish(pubCtx, msg.Value, retryCount+1, articleID); err != nil {
		log.Error("dlq republish failed, record lost", "error", err)
		return OutcomeRepublishFailed
	}
	log.Info("dlq record republished", "next_retry_count", retryCount+1)
	return OutcomeRepublished
}
