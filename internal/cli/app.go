package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/newsflow/internal/analysis"
	"github.com/ppiankov/newsflow/internal/cache"
	"github.com/ppiankov/newsflow/internal/config"
	"github.com/ppiankov/newsflow/internal/dlq"
	"github.com/ppiankov/newsflow/internal/embed"
	"github.com/ppiankov/newsflow/internal/extract"
	"github.com/ppiankov/newsflow/internal/geo"
	"github.com/ppiankov/newsflow/internal/indexer"
	"github.com/ppiankov/newsflow/internal/llm"
	"github.com/ppiankov/newsflow/internal/logging"
	"github.com/ppiankov/newsflow/internal/metrics"
	"github.com/ppiankov/newsflow/internal/pipeline"
	"github.com/ppiankov/newsflow/internal/retry"
	"github.com/ppiankov/newsflow/internal/search"
	"github.com/ppiankov/newsflow/internal/storage"
	"github.com/ppiankov/newsflow/internal/stream"
	"github.com/ppiankov/newsflow/internal/worker"
)

// dlqPublishRetries bounds how often a failed record's DLQ publish is retried
// before the consumer stops without committing
const dlqPublishRetries = 3

// app holds the shared wiring of a stage process
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Pipeline
	limiter  *worker.Limiter
}

func newApp(cfg config.Config) *app {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &app{
		cfg:      cfg,
		logger:   logging.New(cfg.Logging.Level, cfg.Logging.Format),
		registry: registry,
		metrics:  metrics.New(registry),
		// unlimited unless a key gets its own rate
		limiter: worker.NewLimiter(0, 0),
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (a *app) policy(maxRetries int) retry.Policy {
	return retry.Policy{
		MaxRetries: maxRetries,
		Backoff:    retry.Exponential(a.cfg.Retry.InitialBackoff, a.cfg.Retry.MaxBackoff),
	}
}

func (a *app) openPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := storage.Open(ctx, a.cfg.Postgres)
	if err != nil {
		return nil, err
	}
	a.logger.Info("connected to postgres", "max_conns", pool.Config().MaxConns)
	return pool, nil
}

// buildAnalysisStage wires the LLM, the geocoder and the facet extractors
func (a *app) buildAnalysisStage(pool *pgxpool.Pool) (*pipeline.AnalysisStage, error) {
	provider, err := llm.NewProvider(llm.ConfigFrom(a.cfg.LLM, a.cfg.Proxy))
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	if a.cfg.LLM.RequestsPerSecond > 0 {
		a.limiter.SetRate(provider.Name(), a.cfg.LLM.RequestsPerSecond, 0)
	}
	prompts := llm.NewPromptOrchestrator(provider,
		llm.WithRateLimiter(a.limiter),
		llm.WithLogger(a.logger))

	geocoder, err := a.buildGeocoder(pool)
	if err != nil {
		return nil, err
	}
	resolver := extract.NewLocationResolver(geocoder, a.policy(a.cfg.Retry.GeocodeRetries), a.cfg.Kafka.Concurrency, a.logger)

	results := storage.NewResultRepository(pool)
	extractors := analysis.Extractors{
		Refiner:       extract.NewRefiner(prompts),
		IncidentTypes: extract.NewIncidentTypeExtractor(prompts, storage.NewIncidentTypeRepository(pool)),
		Urgency:       extract.NewUrgencyExtractor(prompts, storage.NewUrgencyRepository(pool)),
		Keywords:      extract.NewKeywordExtractor(prompts),
		Topic:         extract.NewTopicExtractor(prompts),
		Locations:     extract.NewLocationExtractor(prompts, resolver, a.logger),
	}
	policies := analysis.Policies{
		Refine: a.policy(a.cfg.Retry.RefineRetries),
		Facet:  a.policy(a.cfg.Retry.FacetRetries),
	}
	orchestrator := analysis.NewOrchestrator(extractors, results, policies, a.metrics, a.logger)

	a.logger.Info("analysis stage ready", "llm_provider", provider.Name(), "geocoder_cache", a.cfg.Geocoder.CacheBackend)
	return pipeline.NewAnalysisStage(orchestrator, results), nil
}

// buildGeocoder wraps the Kakao client in the memory cache and the configured durable cache
func (a *app) buildGeocoder(pool *pgxpool.Pool) (geo.Geocoder, error) {
	gc := a.cfg.Geocoder
	kakao, err := geo.NewKakaoClient(geo.KakaoConfig{
		BaseURL:    gc.BaseURL,
		APIKey:     gc.APIKey,
		Timeout:    gc.Timeout,
		HTTPProxy:  a.cfg.Proxy.HTTPProxy,
		HTTPSProxy: a.cfg.Proxy.HTTPSProxy,
		NoProxy:    a.cfg.Proxy.NoProxy,
	}, a.limiter, a.logger)
	if err != nil {
		return nil, fmt.Errorf("geocoder: %w", err)
	}
	a.limiter.SetRate(gc.BaseURL, gc.RequestsPerSecond, gc.Burst)

	var durable cache.Cache
	switch gc.CacheBackend {
	case "postgres":
		durable = storage.NewAddressCache(pool, a.logger)
	case "disk":
		durable = cache.NewDiskCache(gc.CacheDir, gc.CacheTTL)
	}

	var c cache.Cache = cache.NewMemoryCache(gc.MemoryTTL, 10*time.Minute)
	if durable != nil {
		c = cache.NewLayeredCache(c, durable, gc.MemoryTTL)
	}
	return geo.NewCachingGeocoder(kakao, c, gc.CacheTTL, gc.EmptyCacheTTL, a.metrics, a.logger), nil
}

// buildIndexingStage wires the embedder and the search index
func (a *app) buildIndexingStage() (*pipeline.IndexingStage, *search.OpenSearchIndexer, error) {
	client, err := search.NewClient(a.cfg.OpenSearch)
	if err != nil {
		return nil, nil, err
	}
	store := search.NewOpenSearchIndexer(client, a.cfg.OpenSearch.Index, a.logger)

	embedder, err := embed.NewOpenAIEmbedder(a.cfg.Embedding, a.logger)
	if err != nil {
		return nil, nil, err
	}
	ix := indexer.New(store, embedder, a.policy(a.cfg.Retry.IndexRetries), a.metrics, a.logger)
	return pipeline.NewIndexingStage(ix), store, nil
}

// runStage consumes the stage topic and its DLQ until ctx is cancelled or a batch
// cannot be brought to a terminal outcome
func runStage[T any](ctx context.Context, a *app, stage pipeline.Stage[T], sc config.StageConfig) error {
	brokers := a.cfg.Kafka.Brokers
	opts := stream.OptionsFrom(a.cfg.Kafka)

	publisher := dlq.NewKafkaPublisher(brokers, sc.DLQTopic)
	defer closeQuietly(a.logger, "dlq publisher", publisher.Close)

	reader := stream.NewReader(brokers, sc.Topic, sc.GroupID)
	defer closeQuietly(a.logger, "reader", reader.Close)
	dlqReader := stream.NewReader(brokers, sc.DLQTopic, sc.DLQGroupID)
	defer closeQuietly(a.logger, "dlq reader", dlqReader.Close)

	records := stream.NewStageHandler(stage, publisher, a.policy(dlqPublishRetries), opts.Concurrency, a.metrics, a.logger)
	replays := stream.NewReplayHandler(dlq.NewHandler(stage, sc.MaxRetries, publisher, a.metrics, a.logger), opts.Concurrency)

	a.logger.Info("starting stage",
		"stage", stage.Name(),
		"topic", sc.Topic,
		"dlq_topic", sc.DLQTopic,
		"max_retries", sc.MaxRetries)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return stream.NewLoop(stage.Name(), reader, records.HandleBatch, opts, a.logger).Run(ctx)
	})
	g.Go(func() error {
		return stream.NewLoop(stage.Name()+"-dlq", dlqReader, replays.HandleBatch, opts, a.logger).Run(ctx)
	})
	if a.cfg.Metrics.Listen != "" {
		g.Go(func() error {
			return metrics.NewServer(a.cfg.Metrics.Listen, a.registry, a.logger).Run(ctx)
		})
	}
	return g.Wait()
}

func closeQuietly(logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Warn("close failed", "resource", name, "error", err)
	}
}
