// Package analysis runs the facet extractors over an article and persists the combined result.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/newsflow/internal/logging"
	"github.com/ppiankov/newsflow/internal/model"
	"github.com/ppiankov/newsflow/internal/retry"
)

// ResultRepository stores one analysis result per article. Save writes the result
// and its outbox row in a single transaction.
type ResultRepository interface {
	ExistsByArticleID(ctx context.Context, articleID string) (bool, error)
	DeleteByArticleID(ctx context.Context, articleID string) error
	Save(ctx context.Context, result model.AnalysisResult) error
}

// Refiner produces the refined article every facet works on
type Refiner interface {
	Refine(ctx context.Context, article model.Article) (model.RefinedArticle, error)
}

// Facet extracts one facet of a refined article
type Facet[T any] interface {
	Extract(ctx context.Context, articleID string, article model.RefinedArticle) (T, error)
}

// Extractors groups the refiner and the five facet extractors
type Extractors struct {
	Refiner       Refiner
	IncidentTypes Facet[[]model.IncidentType]
	Urgency       Facet[model.Urgency]
	Keywords      Facet[[]model.Keyword]
	Topic         Facet[string]
	Locations     Facet[[]model.Location]
}

// Recorder observes analyses and facet latencies
type Recorder interface {
	RecordAnalysis(err error)
	RecordFacet(facet string, d time.Duration, err error)
}

// Policies holds the retry policy of each step
type Policies struct {
	Refine retry.Policy
	Facet  retry.Policy
}

// Orchestrator analyzes articles
type Orchestrator struct {
	extractors Extractors
	results    ResultRepository
	policies   Policies
	recorder   Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator. recorder may be nil.
func NewOrchestrator(extractors Extractors, results ResultRepository, policies Policies, recorder Recorder, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		extractors: extractors,
		results:    results,
		policies:   policies,
		recorder:   recorder,
		logger:     logging.OrDefault(logger).With("component", "analysis"),
		now:        time.Now,
	}
}

// Analyze runs the full analysis of one article and persists the result, replacing any
// previous result for the same article. Every failure is an *ArticleAnalysisError.
func (o *Orchestrator) Analyze(ctx context.Context, article model.Article) (*model.AnalysisResult, error) {
	result, err := o.analyze(ctx, article)
	if o.recorder != nil {
		o.recorder.RecordAnalysis(err)
	}
	if err != nil {
		return nil, &ArticleAnalysisError{ArticleID: article.ArticleID, Err: err}
	}
	return result, nil
}

func (o *Orchestrator) analyze(ctx context.Context, article model.Article) (*model.AnalysisResult, error) {
	log := o.logger.With("article_id", article.ArticleID)

	// 1. Replace, never merge
	exists, err := o.results.ExistsByArticleID(ctx, article.ArticleID)
	if err != nil {
		return nil, fmt.Errorf("check existing result: %w", err)
	}
	if exists {
		log.Info("deleting previous analysis before re-analysis")
		if err := o.results.DeleteByArticleID(ctx, article.ArticleID); err != nil {
			return nil, fmt.Errorf("delete previous result: %w", err)
		}
	}

	// 2. Refine
	start := time.Now()
	refined, err := retry.Execute(ctx, o.policies.Refine, o.onRetry(log, "refine"),
		func(ctx context.Context) (model.RefinedArticle, error) {
			return o.extractors.Refiner.Refine(ctx, article)
		})
	o.recordFacet("refine", start, err)
	if err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}

	// 3. Facets in parallel; a failing facet does not cancel its siblings
	var (
		g             errgroup.Group
		incidentTypes []model.IncidentType
		urgency       model.Urgency
		keywords      []model.Keyword
		topic         string
		locations     []model.Location
	)
	g.Go(func() (err error) {
		incidentTypes, err = runFacet(ctx, o, log, "incident_type", article.ArticleID, refined, o.extractors.IncidentTypes)
		return err
	})
	g.Go(func() (err error) {
		urgency, err = runFacet(ctx, o, log, "urgency", article.ArticleID, refined, o.extractors.Urgency)
		return err
	})
	g.Go(func() (err error) {
		keywords, err = runFacet(ctx, o, log, "keyword", article.ArticleID, refined, o.extractors.Keywords)
		return err
	})
	g.Go(func() (err error) {
		topic, err = runFacet(ctx, o, log, "topic", article.ArticleID, refined, o.extractors.Topic)
		return err
	})
	g.Go(func() (err error) {
		locations, err = runFacet(ctx, o, log, "location", article.ArticleID, refined, o.extractors.Locations)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 4. Combine
	result := model.AnalysisResult{
		ArticleID:      article.ArticleID,
		OriginID:       article.OriginID,
		SourceID:       article.SourceID,
		RefinedArticle: refined,
		IncidentTypes:  incidentTypes,
		Urgency:        urgency,
		Keywords:       keywords,
		Topic:          topic,
		Locations:      locations,
		ModifiedAt:     article.ModifiedAt,
		AnalyzedAt:     o.now().UTC(),
	}

	// 5. Persist result and outbox row together
	if err := o.results.Save(ctx, result); err != nil {
		return nil, fmt.Errorf("save result: %w", err)
	}

	log.Info("article analyzed",
		"incident_types", len(result.IncidentTypes),
		"keywords", len(result.Keywords),
		"locations", len(result.Locations),
		"urgency", result.Urgency.Name)
	return &result, nil
}

func runFacet[T any](
	ctx context.Context,
	o *Orchestrator,
	log *slog.Logger,
	name, articleID string,
	refined model.RefinedArticle,
	facet Facet[T],
) (T, error) {
	start := time.Now()
	v, err := retry.Execute(ctx, o.policies.Facet, o.onRetry(log, name), func(ctx context.Context) (T, error) {
		return facet.Extract(ctx, articleID, refined)
	})
	o.recordFacet(name, start, err)
	if err != nil {
		return v, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func (o *Orchestrator) onRetry(log *slog.Logger, step string) retry.OnRetry {
	return func(attempt int, delay time.Duration, err error) {
		log.Warn("retrying analysis step",
			"step", step,
			"attempt", attempt,
			"delay", delay,
			"error", err)
	}
}

func (o *Orchestrator) recordFacet(name string, start time.Time, err error) {
	if o.recorder != nil {
		o.recorder.RecordFacet(name, time.Since(start), err)
	}
}
