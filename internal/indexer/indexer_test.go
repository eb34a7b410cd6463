package indexer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/newsflow/internal/model"
	"github.com/ppiankov/newsflow/internal/retry"
	"github.com/ppiankov/newsflow/internal/search"
)

type fakeStore struct {
	mu         sync.Mutex
	analyzedAt map[string]time.Time
	lookupErr  error
	written    map[string]model.ArticleIndexDocument
	indexCalls int
	bulkCalls  [][]string
	// bulkFailures returns the ids to fail on bulk call n (0-based)
	bulkFailures func(call int) map[string]error
	indexErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		analyzedAt: map[string]time.Time{},
		written:    map[string]model.ArticleIndexDocument{},
	}
}

func (s *fakeStore) Index(ctx context.Context, doc model.ArticleIndexDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexCalls++
	if s.indexErr != nil {
		return s.indexErr
	}
	s.written[doc.ArticleID] = doc
	s.analyzedAt[doc.ArticleID] = doc.AnalyzedAt
	return nil
}

func (s *fakeStore) IndexAll(ctx context.Context, docs []model.ArticleIndexDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := len(s.bulkCalls)
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ArticleID)
	}
	s.bulkCalls = append(s.bulkCalls, ids)

	var failed map[string]error
	if s.bulkFailures != nil {
		failed = s.bulkFailures(call)
	}
	for _, d := range docs {
		if _, ok := failed[d.ArticleID]; ok {
			continue
		}
		s.written[d.ArticleID] = d
		s.analyzedAt[d.ArticleID] = d.AnalyzedAt
	}
	if len(failed) > 0 {
		return &search.BulkError{Failed: failed}
	}
	return nil
}

func (s *fakeStore) FindAnalyzedAtByArticleID(ctx context.Context, id string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return time.Time{}, false, s.lookupErr
	}
	t, ok := s.analyzedAt[id]
	return t, ok, nil
}

type fakeEmbedder struct {
	calls    int
	allCalls [][]string
	err      error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2}, nil
}

func (e *fakeEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	e.allCalls = append(e.allCalls, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

type outcomes struct {
	counts            map[string]int
	embeddingFailures int
}

func (o *outcomes) RecordIndexOutcome(outcome string, n int) {
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[outcome] += n
}

func (o *outcomes) RecordEmbeddingFailure() { o.embeddingFailures++ }

var (
	t0 = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func result(id string, analyzedAt time.Time) model.AnalysisResult {
	return model.AnalysisResult{
		ArticleID:      id,
		RefinedArticle: model.RefinedArticle{Title: "Fire", Content: "A fire broke out."},
		Locations: []model.Location{{
			Coordinate: &model.Coordinate{Lat: 37.5, Lon: 127.0},
			Address:    model.Address{RegionType: model.RegionTypeAdministrative, Code: "1168064000"},
		}},
		ModifiedAt: t0,
		AnalyzedAt: analyzedAt,
	}
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 2, Backoff: retry.Constant(time.Millisecond)}
}

func TestIndex_WritesNewDocument(t *testing.T) {
	store := newFakeStore()
	emb := &fakeEmbedder{}
	rec := &outcomes{}
	ix := New(store, emb, testPolicy(), rec, nil)

	require.NoError(t, ix.Index(context.Background(), result("a1", t0), &t0))

	doc := store.written["a1"]
	assert.Equal(t, []float32{0.1, 0.2}, doc.ContentEmbedding)
	assert.Len(t, doc.GeoPoints, 1)
	assert.Equal(t, 1, rec.counts[OutcomeWritten])
}

func TestIndex_FreshnessSkip(t *testing.T) {
	for name, stored := range map[string]time.Time{"equal": t0, "newer": t1} {
		t.Run(name, func(t *testing.T) {
			store := newFakeStore()
			store.analyzedAt["a1"] = stored
			emb := &fakeEmbedder{}
			rec := &outcomes{}
			ix := New(store, emb, testPolicy(), rec, nil)

			require.NoError(t, ix.Index(context.Background(), result("a1", t0), &t0))

			assert.Zero(t, emb.calls, "no embedding for stale results")
			assert.Zero(t, store.indexCalls, "no write for stale results")
			assert.Equal(t, 1, rec.counts[OutcomeSkipped])
		})
	}
}

func TestIndex_LaterAnalysisOfSameVersionIsWritten(t *testing.T) {
	store := newFakeStore()
	ix := New(store, &fakeEmbedder{}, testPolicy(), nil, nil)

	first := result("a1", t0)
	first.Topic = "first"
	require.NoError(t, ix.Index(context.Background(), first, &t0))

	second := result("a1", t1)
	second.Topic = "second"
	require.NoError(t, ix.Index(context.Background(), second, &t1))

	assert.Equal(t, 2, store.indexCalls)
	assert.Equal(t, "second", store.written["a1"].Topic)
	assert.True(t, store.written["a1"].AnalyzedAt.Equal(t1))
	assert.True(t, store.written["a1"].ModifiedAt.Equal(t0), "same article version")
}

func TestIndex_NoAnalyzedAtSkipsFreshnessCheck(t *testing.T) {
	store := newFakeStore()
	store.analyzedAt["a1"] = t1
	ix := New(store, &fakeEmbedder{}, testPolicy(), nil, nil)

	require.NoError(t, ix.Index(context.Background(), result("a1", t0), nil))
	assert.Equal(t, 1, store.indexCalls)
}

func TestIndex_LookupErrorFailsOpen(t *testing.T) {
	store := newFakeStore()
	store.lookupErr = errors.New("cluster unavailable")
	ix := New(store, &fakeEmbedder{}, testPolicy(), nil, nil)

	require.NoError(t, ix.Index(context.Background(), result("a1", t0), &t0))
	assert.Equal(t, 1, store.indexCalls)
}

func TestIndex_EmbeddingFailureIndexesWithoutVector(t *testing.T) {
	store := newFakeStore()
	rec := &outcomes{}
	ix := New(store, &fakeEmbedder{err: errors.New("quota exceeded")}, testPolicy(), rec, nil)

	require.NoError(t, ix.Index(context.Background(), result("a1", t0), nil))
	assert.Nil(t, store.written["a1"].ContentEmbedding)
	assert.Equal(t, 1, rec.embeddingFailures)
}

func TestIndex_WriteExhaustion(t *testing.T) {
	store := newFakeStore()
	store.indexErr = errors.New("429 too many requests")
	rec := &outcomes{}
	ix := New(store, &fakeEmbedder{}, testPolicy(), rec, nil)

	err := ix.Index(context.Background(), result("a1", t0), nil)

	var indexErr *ArticleIndexingError
	require.ErrorAs(t, err, &indexErr)
	assert.Equal(t, "a1", indexErr.ArticleID)
	assert.ErrorIs(t, err, store.indexErr)
	assert.Equal(t, 3, store.indexCalls)
	assert.Equal(t, 1, rec.counts[OutcomeFailed])
}

func TestIndexAll_FiltersStaleBeforeEmbedding(t *testing.T) {
	store := newFakeStore()
	store.analyzedAt["stale"] = t1
	emb := &fakeEmbedder{}
	rec := &outcomes{}
	ix := New(store, emb, testPolicy(), rec, nil)

	errs := ix.IndexAll(context.Background(), []Item{
		{Result: result("a1", t0), AnalyzedAt: &t0},
		{Result: result("stale", t0), AnalyzedAt: &t0},
		{Result: result("a2", t0), AnalyzedAt: &t0},
	})

	assert.Equal(t, []error{nil, nil, nil}, errs)
	require.Len(t, emb.allCalls, 1)
	assert.Len(t, emb.allCalls[0], 2, "stale item never embedded")
	require.Len(t, store.bulkCalls, 1)
	assert.Equal(t, []string{"a1", "a2"}, store.bulkCalls[0])
	assert.Equal(t, []float32{1}, store.written["a2"].ContentEmbedding)
	assert.Equal(t, 1, rec.counts[OutcomeSkipped])
	assert.Equal(t, 2, rec.counts[OutcomeWritten])
}

func TestIndexAll_AllStale(t *testing.T) {
	store := newFakeStore()
	store.analyzedAt["a1"] = t0
	emb := &fakeEmbedder{}
	ix := New(store, emb, testPolicy(), nil, nil)

	errs := ix.IndexAll(context.Background(), []Item{{Result: result("a1", t0), AnalyzedAt: &t0}})

	assert.Equal(t, []error{nil}, errs)
	assert.Empty(t, emb.allCalls)
	assert.Empty(t, store.bulkCalls)
}

func TestIndexAll_EmbeddingFailureWritesWithoutVectors(t *testing.T) {
	store := newFakeStore()
	ix := New(store, &fakeEmbedder{err: errors.New("timeout")}, testPolicy(), nil, nil)

	errs := ix.IndexAll(context.Background(), []Item{{Result: result("a1", t0)}, {Result: result("a2", t0)}})

	assert.Equal(t, []error{nil, nil}, errs)
	assert.Nil(t, store.written["a1"].ContentEmbedding)
	assert.Nil(t, store.written["a2"].ContentEmbedding)
}

func TestIndexAll_RetriesOnlyFailedDocuments(t *testing.T) {
	store := newFakeStore()
	store.bulkFailures = func(call int) map[string]error {
		if call == 0 {
			return map[string]error{"a2": errors.New("status 429")}
		}
		return nil
	}
	ix := New(store, &fakeEmbedder{}, testPolicy(), nil, nil)

	errs := ix.IndexAll(context.Background(), []Item{{Result: result("a1", t0)}, {Result: result("a2", t0)}})

	assert.Equal(t, []error{nil, nil}, errs)
	require.Len(t, store.bulkCalls, 2)
	assert.Equal(t, []string{"a2"}, store.bulkCalls[1])
}

func TestIndexAll_ExhaustionReportsEachOriginatingItem(t *testing.T) {
	store := newFakeStore()
	store.bulkFailures = func(int) map[string]error {
		return map[string]error{"a2": errors.New("mapper_parsing_exception")}
	}
	rec := &outcomes{}
	ix := New(store, &fakeEmbedder{}, testPolicy(), rec, nil)

	errs := ix.IndexAll(context.Background(), []Item{
		{Result: result("a1", t0)},
		{Result: result("a2", t0)},
		{Result: result("a2", t1)},
	})

	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	for _, err := range errs[1:] {
		var indexErr *ArticleIndexingError
		require.ErrorAs(t, err, &indexErr)
		assert.Equal(t, "a2", indexErr.ArticleID)
	}
	assert.Len(t, store.bulkCalls, 3, "one call plus two retries")
	assert.Equal(t, 1, rec.counts[OutcomeWritten])
	assert.Equal(t, 2, rec.counts[OutcomeFailed])
}

func TestIndexAll_Empty(t *testing.T) {
	ix := New(newFakeStore(), &fakeEmbedder{}, testPolicy(), nil, nil)
	assert.Empty(t, ix.IndexAll(context.Background(), nil))
}
