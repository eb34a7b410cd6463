// Package pipeline defines the analysis and indexing stages. The CDC consumers and
// the DLQ handlers drive the same stage values.
package pipeline

import (
	"context"
	"time"

	"github.com/ppiankov/newsflow/internal/analysis"
	"github.com/ppiankov/newsflow/internal/cdc"
	"github.com/ppiankov/newsflow/internal/indexer"
	"github.com/ppiankov/newsflow/internal/model"
)

// Stage names, also used as log and metric labels
const (
	StageAnalysis = "analysis"
	StageIndexing = "indexing"
)

// Stage decodes raw CDC records and processes them
type Stage[T any] interface {
	Name() string
	// Decode returns ok=false for records the stage ignores (non-create, unparsable)
	Decode(raw []byte) (T, bool)
	ArticleID(record T) string
	Process(ctx context.Context, record T) error
}

// StalenessChecker is implemented by stages whose DLQ replays must not overwrite newer state
type StalenessChecker[T any] interface {
	IsStale(ctx context.Context, record T) (bool, error)
}

// BatchStage is implemented by stages that process a batch more cheaply than one by one.
// The returned slice is aligned with records.
type BatchStage[T any] interface {
	ProcessBatch(ctx context.Context, records []T) []error
}

// Analyzer runs the full article analysis
type Analyzer interface {
	Analyze(ctx context.Context, article model.Article) (*model.AnalysisResult, error)
}

// ModifiedAtFinder returns the article modification time of the stored result
type ModifiedAtFinder interface {
	FindModifiedAt(ctx context.Context, articleID string) (time.Time, bool, error)
}

var _ Analyzer = (*analysis.Orchestrator)(nil)

// AnalysisStage consumes article create events
type AnalysisStage struct {
	analyzer Analyzer
	results  ModifiedAtFinder
}

var (
	_ Stage[model.Article]            = (*AnalysisStage)(nil)
	_ StalenessChecker[model.Article] = (*AnalysisStage)(nil)
)

// NewAnalysisStage creates the analysis stage
func NewAnalysisStage(analyzer Analyzer, results ModifiedAtFinder) *AnalysisStage {
	return &AnalysisStage{analyzer: analyzer, results: results}
}

// Name implements Stage
func (s *AnalysisStage) Name() string { return StageAnalysis }

// Decode implements Stage
func (s *AnalysisStage) Decode(raw []byte) (model.Article, bool) { return cdc.DecodeArticle(raw) }

// ArticleID implements Stage
func (s *AnalysisStage) ArticleID(a model.Article) string { return a.ArticleID }

// Process analyzes the article and persists the result
func (s *AnalysisStage) Process(ctx context.Context, a model.Article) error {
	_, err := s.analyzer.Analyze(ctx, a)
	return err
}

// IsStale reports whether the stored result was built from a newer version of the article
func (s *AnalysisStage) IsStale(ctx context.Context, a model.Article) (bool, error) {
	stored, ok, err := s.results.FindModifiedAt(ctx, a.ArticleID)
	if err != nil || !ok {
		return false, err
	}
	return stored.After(a.ModifiedAt), nil
}

// Indexer writes analysis results to the search engine
type Indexer interface {
	Index(ctx context.Context, result model.AnalysisResult, analyzedAt *time.Time) error
	IndexAll(ctx context.Context, items []indexer.Item) []error
}

var _ Indexer = (*indexer.Indexer)(nil)

// IndexingStage consumes analysis outbox create events
type IndexingStage struct {
	indexer Indexer
}

var (
	_ Stage[model.AnalysisResult]      = (*IndexingStage)(nil)
	_ BatchStage[model.AnalysisResult] = (*IndexingStage)(nil)
)

// NewIndexingStage creates the indexing stage
func NewIndexingStage(ix Indexer) *IndexingStage {
	return &IndexingStage{indexer: ix}
}

// Name implements Stage
func (s *IndexingStage) Name() string { return StageIndexing }

// Decode implements Stage
func (s *IndexingStage) Decode(raw []byte) (model.AnalysisResult, bool) {
	return cdc.DecodeAnalysisResult(raw)
}

// ArticleID implements Stage
func (s *IndexingStage) ArticleID(r model.AnalysisResult) string { return r.ArticleID }

// Process indexes one result. The analysis time drives the freshness check, so a
// later analysis of the same article version replaces the indexed document.
func (s *IndexingStage) Process(ctx context.Context, r model.AnalysisResult) error {
	return s.indexer.Index(ctx, r, analyzedAt(r))
}

// ProcessBatch indexes results with one embedding call and bulk writes
func (s *IndexingStage) ProcessBatch(ctx context.Context, results []model.AnalysisResult) []error {
	items := make([]indexer.Item, len(results))
	for i, r := range results {
		items[i] = indexer.Item{Result: r, AnalyzedAt: analyzedAt(r)}
	}
	return s.indexer.IndexAll(ctx, items)
}

// analyzedAt returns nil for results without an analysis time, which skips the freshness check
func analyzedAt(r model.AnalysisResult) *time.Time {
	if r.AnalyzedAt.IsZero() {
		return nil
	}
	t := r.AnalyzedAt
	return &t
}
