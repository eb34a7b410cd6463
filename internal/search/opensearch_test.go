package search

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/newsflow/internal/config"
	"github.com/ppiankov/newsflow/internal/model"
)

type request struct {
	method string
	path   string
	query  string
	body   string
}

type fakeCluster struct {
	mu       sync.Mutex
	requests []request
	handler  func(w http.ResponseWriter, r request)
}

func (c *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := request{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: string(body)}
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if req.path == "/" {
		_, _ = io.WriteString(w, `{"version":{"number":"2.11.0","distribution":"opensearch"}}`)
		return
	}
	c.handler(w, req)
}

func (c *fakeCluster) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *fakeCluster) last() request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

func newTestIndexer(t *testing.T, handler func(w http.ResponseWriter, r request)) (*OpenSearchIndexer, *fakeCluster) {
	t.Helper()
	cluster := &fakeCluster{handler: handler}
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.OpenSearchConfig{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewOpenSearchIndexer(client, "articles", nil), cluster
}

func sampleDocument(id string) model.ArticleIndexDocument {
	return model.ArticleIndexDocument{
		ArticleID:  id,
		Title:      "강남역 침수",
		ModifiedAt: time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
		GeoPoints:  []model.GeoPoint{{Lat: 37.4979, Lon: 127.0276}},
	}
}

func TestIndex(t *testing.T) {
	x, cluster := newTestIndexer(t, func(w http.ResponseWriter, r request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	})

	require.NoError(t, x.Index(context.Background(), sampleDocument("a1")))

	req := cluster.last()
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/articles/_doc/a1", req.path)
	var doc model.ArticleIndexDocument
	require.NoError(t, json.Unmarshal([]byte(req.body), &doc))
	assert.Equal(t, "a1", doc.ArticleID)
	assert.Len(t, doc.GeoPoints, 1)
}

func TestIndex_ErrorStatus(t *testing.T) {
	x, _ := newTestIndexer(t, func(w http.ResponseWriter, r request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"rejected"}`)
	})

	err := x.Index(context.Background(), sampleDocument("a1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestIndexAll(t *testing.T) {
	x, cluster := newTestIndexer(t, func(w http.ResponseWriter, r request) {
		_, _ = io.WriteString(w, `{"errors":false,"items":[{"index":{"_id":"a1","status":201}},{"index":{"_id":"a2","status":200}}]}`)
	})

	docs := []model.ArticleIndexDocument{sampleDocument("a1"), sampleDocument("a2")}
	require.NoError(t, x.IndexAll(context.Background(), docs))

	req := cluster.last()
	assert.Equal(t, "/articles/_bulk", req.path)

	var lines []string
	sc := bufio.NewScanner(strings.NewReader(req.body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{"_index":"articles","_id":"a1"}}`, lines[0])
	assert.JSONEq(t, `{"index":{"_index":"articles","_id":"a2"}}`, lines[2])
}

func TestIndexAll_PartialFailure(t *testing.T) {
	x, _ := newTestIndexer(t, func(w http.ResponseWriter, r request) {
		_, _ = io.WriteString(w, `{"errors":true,"items":[`+
			`{"index":{"_id":"a1","status":201}},`+
			`{"index":{"_id":"a2","status":429,"error":{"type":"es_rejected_execution_exception"}}}]}`)
	})

	err := x.IndexAll(context.Background(), []model.ArticleIndexDocument{sampleDocument("a1"), sampleDocument("a2")})

	var bulkErr *BulkError
	require.ErrorAs(t, err, &bulkErr)
	assert.Len(t, bulkErr.Failed, 1)
	assert.Contains(t, bulkErr.Failed, "a2")
}

func TestIndexAll_Empty(t *testing.T) {
	x, cluster := newTestIndexer(t, func(w http.ResponseWriter, r request) {
		t.Error("no request expected")
	})

	require.NoError(t, x.IndexAll(context.Background(), nil))
	assert.Zero(t, cluster.count())
}

func TestFindAnalyzedAtByArticleID(t *testing.T) {
	x, cluster := newTestIndexer(t, func(w http.ResponseWriter, r request) {
		if strings.HasSuffix(r.path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"_index":"articles","_id":"missing","found":false}`)
			return
		}
		_, _ = io.WriteString(w, `{"_index":"articles","_id":"a1","found":true,"_source":{"analyzedAt":"2024-07-01T09:00:00Z"}}`)
	})

	got, ok, err := x.FindAnalyzedAtByArticleID(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)))
	assert.Contains(t, cluster.last().query, "_source_includes=analyzedAt")

	_, ok, err = x.FindAnalyzedAtByArticleID(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureIndex(t *testing.T) {
	var exists atomic.Bool
	x, cluster := newTestIndexer(t, func(w http.ResponseWriter, r request) {
		switch r.method {
		case http.MethodHead:
			if !exists.Load() {
				w.WriteHeader(http.StatusNotFound)
			}
		case http.MethodPut:
			_, _ = io.WriteString(w, `{"acknowledged":true}`)
		}
	})

	require.NoError(t, x.EnsureIndex(context.Background(), 1536))
	create := cluster.last()
	assert.Equal(t, http.MethodPut, create.method)
	assert.Contains(t, create.body, `"knn_vector"`)
	assert.Contains(t, create.body, `"geo_point"`)

	exists.Store(true)
	before := cluster.count()
	require.NoError(t, x.EnsureIndex(context.Background(), 1536))
	assert.Equal(t, before+1, cluster.count(), "only the existence check")
}

func TestNewClient_RequiresAddresses(t *testing.T) {
	_, err := NewClient(config.OpenSearchConfig{})
	assert.Error(t, err)
}
