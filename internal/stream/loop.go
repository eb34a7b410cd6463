// Package stream consumes Kafka topics in batches and commits offsets only after
// every record of a batch reached a terminal outcome.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ppiankov/newsflow/internal/config"
	"github.com/ppiankov/newsflow/internal/logging"
)

// Reader abstracts *kafka.Reader
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Reader = (*kafka.Reader)(nil)

// NewReader creates a consumer group reader for topic
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
	})
}

// BatchHandler brings every message of a batch to a terminal outcome. A returned
// error stops the loop without committing the batch.
type BatchHandler func(ctx context.Context, msgs []kafka.Message) error

// Options tune batching and offset commits
type Options struct {
	BatchSize         int
	BatchWait         time.Duration
	Concurrency       int
	CommitTimeout     time.Duration
	FetchErrorBackoff time.Duration
	ProcessTimeout    time.Duration
}

// OptionsFrom reads the options from the kafka configuration
func OptionsFrom(cfg config.KafkaConfig) Options {
	return Options{
		BatchSize:         cfg.BatchSize,
		BatchWait:         cfg.BatchWait,
		Concurrency:       cfg.Concurrency,
		CommitTimeout:     cfg.CommitTimeout,
		FetchErrorBackoff: cfg.FetchErrorBackoff,
		ProcessTimeout:    cfg.ProcessTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 1
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.CommitTimeout <= 0 {
		o.CommitTimeout = 5 * time.Second
	}
	if o.FetchErrorBackoff <= 0 {
		o.FetchErrorBackoff = time.Second
	}
	return o
}

// Loop fetches batches from a reader and hands them to a BatchHandler
type Loop struct {
	name   string
	reader Reader
	handle BatchHandler
	opts   Options
	logger *slog.Logger
}

// NewLoop creates a loop. name labels its log lines.
func NewLoop(name string, reader Reader, handle BatchHandler, opts Options, logger *slog.Logger) *Loop {
	return &Loop{
		name:   name,
		reader: reader,
		handle: handle,
		opts:   opts.withDefaults(),
		logger: logging.OrDefault(logger).With("component", "consumer", "consumer", name),
	}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation and an error
// only when a batch could not be brought to a terminal outcome.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("consumer started")
	defer l.logger.Info("consumer stopped")

	for {
		batch, err := l.fetchBatch(ctx)
		if ctx.Err() != nil {
			// an uncommitted partial batch is redelivered after restart
			return nil
		}
		if err != nil && len(batch) == 0 {
			l.logger.Warn("kafka fetch failed", "error", err, "retry_after", l.opts.FetchErrorBackoff)
			if sleepWithContext(ctx, l.opts.FetchErrorBackoff) != nil {
				return nil
			}
			continue
		}

		if err := l.process(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s: %w", l.name, err)
		}
		if ctx.Err() != nil {
			return nil
		}
		l.commit(batch)
	}
}

func (l *Loop) process(ctx context.Context, batch []kafka.Message) error {
	if l.opts.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.ProcessTimeout)
		defer cancel()
	}
	return l.handle(ctx, batch)
}

// fetchBatch blocks for the first message, then collects more until the batch is
// full or BatchWait elapses
func (l *Loop) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := l.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []kafka.Message{first}
	if l.opts.BatchSize == 1 || l.opts.BatchWait <= 0 {
		return batch, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.opts.BatchWait)
	defer cancel()
	for len(batch) < l.opts.BatchSize {
		msg, err := l.reader.FetchMessage(waitCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return batch, nil
			}
			return batch, err
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

// commit records progress once every message of the batch reached a terminal outcome
func (l *Loop) commit(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), l.opts.CommitTimeout)
	defer cancel()

	last := batch[len(batch)-1]
	if err := l.reader.CommitMessages(ctx, batch...); err != nil {
		l.logger.Error("offset commit failed",
			"topic", last.Topic,
			"partition", last.Partition,
			"offset", last.Offset,
			"count", len(batch),
			"error", err)
		return
	}
	l.logger.Debug("offsets committed",
		"topic", last.Topic,
		"partition", last.Partition,
		"offset", last.Offset,
		"count", len(batch))
}

// sleepWithContext waits for delay or returns earlier when ctx is cancelled
func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
