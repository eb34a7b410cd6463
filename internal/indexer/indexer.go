// Package indexer writes analysis results to the search engine, skipping results
// that are not newer than what is already indexed.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/newsflow/internal/embed"
	"github.com/ppiankov/newsflow/internal/logging"
	"github.com/ppiankov/newsflow/internal/model"
	"github.com/ppiankov/newsflow/internal/retry"
	"github.com/ppiankov/newsflow/internal/search"
)

// Index outcomes, also used as metric labels
const (
	OutcomeWritten = "written"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// ArticleIndexer is the search engine side of indexing
type ArticleIndexer interface {
	Index(ctx context.Context, doc model.ArticleIndexDocument) error
	IndexAll(ctx context.Context, docs []model.ArticleIndexDocument) error
	FindAnalyzedAtByArticleID(ctx context.Context, articleID string) (time.Time, bool, error)
}

var _ ArticleIndexer = (*search.OpenSearchIndexer)(nil)

// Recorder observes index outcomes
type Recorder interface {
	RecordIndexOutcome(outcome string, n int)
	RecordEmbeddingFailure()
}

// Item is one result to index. AnalyzedAt, when set, enables the freshness check.
type Item struct {
	Result     model.AnalysisResult
	AnalyzedAt *time.Time
}

// ArticleIndexingError reports that an article could not be indexed. The consumer
// routes the originating record to the indexing DLQ.
type ArticleIndexingError struct {
	ArticleID string
	Err       error
}

func (e *ArticleIndexingError) Error() string {
	return fmt.Sprintf("index article %s: %v", e.ArticleID, e.Err)
}

func (e *ArticleIndexingError) Unwrap() error {
	return e.Err
}

// Indexer embeds and writes analysis results
type Indexer struct {
	store    ArticleIndexer
	embedder embed.Embedder
	policy   retry.Policy
	recorder Recorder
	logger   *slog.Logger
}

// New creates an indexer. policy bounds write retries; recorder may be nil.
func New(store ArticleIndexer, embedder embed.Embedder, policy retry.Policy, recorder Recorder, logger *slog.Logger) *Indexer {
	return &Indexer{
		store:    store,
		embedder: embedder,
		policy:   policy,
		recorder: recorder,
		logger:   logging.OrDefault(logger).With("component", "indexer"),
	}
}

// Index indexes one result. It returns nil when the result is skipped as stale and
// *ArticleIndexingError when the write fails after retries.
func (ix *Indexer) Index(ctx context.Context, result model.AnalysisResult, analyzedAt *time.Time) error {
	log := ix.logger.With("article_id", result.ArticleID)

	if ix.isStale(ctx, log, result.ArticleID, analyzedAt) {
		ix.record(OutcomeSkipped, 1)
		return nil
	}

	embedding, err := ix.embedder.Embed(ctx, result.EmbeddingText())
	if err != nil {
		log.Warn("embedding failed, indexing without vector", "error", err)
		ix.recordEmbeddingFailure()
		embedding = nil
	}

	doc := model.NewArticleIndexDocument(result, embedding)
	err = retry.Do(ctx, ix.policy, ix.onRetry(log), func(ctx context.Context) error {
		return ix.store.Index(ctx, doc)
	})
	if err != nil {
		ix.record(OutcomeFailed, 1)
		return &ArticleIndexingError{ArticleID: result.ArticleID, Err: err}
	}

	ix.record(OutcomeWritten, 1)
	log.Info("article indexed", "has_embedding", embedding != nil)
	return nil
}

// IndexAll indexes a batch with a single embedding call and bulk writes. The returned
// slice is aligned with items: nil for written or skipped items, *ArticleIndexingError
// for items whose write failed after retries.
func (ix *Indexer) IndexAll(ctx context.Context, items []Item) []error {
	errs := make([]error, len(items))
	if len(items) == 0 {
		return errs
	}

	// 1. Drop stale items before spending embedding quota
	fresh := make([]int, 0, len(items))
	for i, item := range items {
		log := ix.logger.With("article_id", item.Result.ArticleID)
		if ix.isStale(ctx, log, item.Result.ArticleID, item.AnalyzedAt) {
			continue
		}
		fresh = append(fresh, i)
	}
	ix.record(OutcomeSkipped, len(items)-len(fresh))
	if len(fresh) == 0 {
		return errs
	}

	// 2. Embed the batch; a failure indexes the whole batch without vectors
	texts := make([]string, len(fresh))
	for j, i := range fresh {
		texts[j] = items[i].Result.EmbeddingText()
	}
	embeddings, err := ix.embedder.EmbedAll(ctx, texts)
	if err != nil || len(embeddings) != len(texts) {
		ix.logger.Warn("batch embedding failed, indexing without vectors", "count", len(texts), "error", err)
		ix.recordEmbeddingFailure()
		embeddings = nil
	}

	// 3. Bulk write, retrying only the documents that failed
	var order []string
	pending := make(map[string]model.ArticleIndexDocument, len(fresh))
	owners := make(map[string][]int, len(fresh))
	for j, i := range fresh {
		var vector []float32
		if embeddings != nil {
			vector = embeddings[j]
		}
		doc := model.NewArticleIndexDocument(items[i].Result, vector)
		if _, seen := owners[doc.ArticleID]; !seen {
			order = append(order, doc.ArticleID)
		}
		// a later item for the same article wins
		pending[doc.ArticleID] = doc
		owners[doc.ArticleID] = append(owners[doc.ArticleID], i)
	}

	err = retry.Do(ctx, ix.policy, ix.onRetry(ix.logger), func(ctx context.Context) error {
		docs := make([]model.ArticleIndexDocument, 0, len(pending))
		for _, id := range order {
			if doc, ok := pending[id]; ok {
				docs = append(docs, doc)
			}
		}
		err := ix.store.IndexAll(ctx, docs)
		if err == nil {
			clear(pending)
			return nil
		}
		var bulkErr *search.BulkError
		if errors.As(err, &bulkErr) {
			for id := range pending {
				if _, failed := bulkErr.Failed[id]; !failed {
					delete(pending, id)
				}
			}
		}
		return err
	})

	written := 0
	for _, id := range order {
		if _, failed := pending[id]; failed {
			for _, i := range owners[id] {
				errs[i] = &ArticleIndexingError{ArticleID: id, Err: err}
			}
			continue
		}
		written += len(owners[id])
	}
	ix.record(OutcomeWritten, written)
	ix.record(OutcomeFailed, len(fresh)-written)
	ix.logger.Info("batch indexed",
		"items", len(items),
		"skipped", len(items)-len(fresh),
		"written", written,
		"failed", len(fresh)-written)
	return errs
}

// isStale reports whether the indexed document was analyzed no earlier than analyzedAt.
// Lookup errors fail open.
func (ix *Indexer) isStale(ctx context.Context, log *slog.Logger, articleID string, analyzedAt *time.Time) bool {
	if analyzedAt == nil {
		return false
	}
	stored, ok, err := ix.store.FindAnalyzedAtByArticleID(ctx, articleID)
	if err != nil {
		log.Warn("freshness lookup failed, indexing anyway", "error", err)
		return false
	}
	if ok && !stored.Before(*analyzedAt) {
		log.Info("skipping stale result", "indexed_analyzed_at", stored, "analyzed_at", *analyzedAt)
		return true
	}
	return false
}

func (ix *Indexer) onRetry(log *slog.Logger) retry.OnRetry {
	return func(attempt int, delay time.Duration, err error) {
		log.Warn("retrying index write", "attempt", attempt, "delay", delay, "error", err)
	}
}

func (ix *Indexer) record(outcome string, n int) {
	if ix.recorder != nil && n > 0 {
		ix.recorder.RecordIndexOutcome(outcome, n)
	}
}

func (ix *Indexer) recordEmbeddingFailure() {
	if ix.recorder != nil {
		ix.recorder.RecordEmbeddingFailure()
	}
}
