// Package search writes article documents to OpenSearch.
package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/ppiankov/newsflow/internal/config"
	"github.com/ppiankov/newsflow/internal/logging"
	"github.com/ppiankov/newsflow/internal/model"
)

// NewClient creates an OpenSearch client from cfg
func NewClient(cfg config.OpenSearchConfig) (*opensearch.Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("opensearch addresses are required")
	}
	osCfg := opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	if cfg.InsecureTLS {
		osCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}
	return client, nil
}

// BulkError lists the documents a bulk request failed to write, by article id
type BulkError struct {
	Failed map[string]error
}

func (e *BulkError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	return fmt.Sprintf("bulk write failed for %d documents: %s", len(ids), strings.Join(ids, ", "))
}

// OpenSearchIndexer stores one document per article, using the article id as document id
type OpenSearchIndexer struct {
	client *opensearch.Client
	index  string
	logger *slog.Logger
}

// NewOpenSearchIndexer creates an indexer writing to index
func NewOpenSearchIndexer(client *opensearch.Client, index string, logger *slog.Logger) *OpenSearchIndexer {
	return &OpenSearchIndexer{
		client: client,
		index:  index,
		logger: logging.OrDefault(logger).With("component", "search", "index", index),
	}
}

// Index writes a single document, replacing any previous version
func (x *OpenSearchIndexer) Index(ctx context.Context, doc model.ArticleIndexDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ArticleID, err)
	}

	res, err := opensearchapi.IndexRequest{
		Index:      x.index,
		DocumentID: doc.ArticleID,
		Body:       bytes.NewReader(body),
	}.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("index document %s: %w", doc.ArticleID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index document %s: %s", doc.ArticleID, responseError(res))
	}
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string          `json:"_id"`
		Status int             `json:"status"`
		Error  json.RawMessage `json:"error,omitempty"`
	} `json:"items"`
}

// IndexAll writes docs in one bulk request. Item-level failures are reported as *BulkError.
func (x *OpenSearchIndexer) IndexAll(ctx context.Context, docs []model.ArticleIndexDocument) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]any{"index": map[string]any{"_index": x.index, "_id": doc.ArticleID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode document %s: %w", doc.ArticleID, err)
		}
	}

	res, err := opensearchapi.BulkRequest{
		Index: x.index,
		Body:  &buf,
	}.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("bulk index %d documents: %w", len(docs), err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk index %d documents: %s", len(docs), responseError(res))
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil
	}

	failed := make(map[string]error)
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Status >= 300 {
				failed[result.ID] = fmt.Errorf("status %d: %s", result.Status, result.Error)
			}
		}
	}
	if len(failed) == 0 {
		return nil
	}
	x.logger.Warn("bulk write partially failed", "failed", len(failed), "total", len(docs))
	return &BulkError{Failed: failed}
}

// FindAnalyzedAtByArticleID returns when the indexed document was analyzed.
// ok is false when the article is not indexed.
func (x *OpenSearchIndexer) FindAnalyzedAtByArticleID(ctx context.Context, articleID string) (time.Time, bool, error) {
	res, err := opensearchapi.GetRequest{
		Index:          x.index,
		DocumentID:     articleID,
		SourceIncludes: []string{"analyzedAt"},
	}.Do(ctx, x.client)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get document %s: %w", articleID, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return time.Time{}, false, nil
	}
	if res.IsError() {
		return time.Time{}, false, fmt.Errorf("get document %s: %s", articleID, responseError(res))
	}

	var parsed struct {
		Found  bool `json:"found"`
		Source struct {
			AnalyzedAt time.Time `json:"analyzedAt"`
		} `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return time.Time{}, false, fmt.Errorf("decode document %s: %w", articleID, err)
	}
	if !parsed.Found {
		return time.Time{}, false, nil
	}
	return parsed.Source.AnalyzedAt, true, nil
}

// EnsureIndex creates the index with its mapping if it does not exist
func (x *OpenSearchIndexer) EnsureIndex(ctx context.Context, embeddingDimension int) error {
	res, err := opensearchapi.IndicesExistsRequest{Index: []string{x.index}}.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("check index %s: %w", x.index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(indexMapping(embeddingDimension))
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	res, err = opensearchapi.IndicesCreateRequest{
		Index: x.index,
		Body:  bytes.NewReader(body),
	}.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("create index %s: %w", x.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("create index %s: %s", x.index, responseError(res))
	}
	x.logger.Info("created index", "embedding_dimension", embeddingDimension)
	return nil
}

func indexMapping(dimension int) map[string]any {
	properties := map[string]any{
		"articleId":     map[string]any{"type": "keyword"},
		"originId":      map[string]any{"type": "keyword"},
		"sourceId":      map[string]any{"type": "keyword"},
		"title":         map[string]any{"type": "text"},
		"content":       map[string]any{"type": "text"},
		"summary":       map[string]any{"type": "text"},
		"writtenAt":     map[string]any{"type": "date"},
		"modifiedAt":    map[string]any{"type": "date"},
		"analyzedAt":    map[string]any{"type": "date"},
		"incidentTypes": map[string]any{"type": "keyword"},
		"urgency":       map[string]any{"type": "keyword"},
		"urgencyLevel":  map[string]any{"type": "integer"},
		"keywords":      map[string]any{"type": "keyword"},
		"topic":         map[string]any{"type": "text"},
		"locations":     map[string]any{"type": "object", "enabled": false},
		"geoPoints":     map[string]any{"type": "geo_point"},
	}
	settings := map[string]any{}
	if dimension > 0 {
		properties["contentEmbedding"] = map[string]any{"type": "knn_vector", "dimension": dimension}
		settings["index"] = map[string]any{"knn": true}
	}
	return map[string]any{
		"settings": settings,
		"mappings": map[string]any{"properties": properties},
	}
}

func responseError(res *opensearchapi.Response) string {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Sprintf("%s: %s", res.Status(), strings.TrimSpace(string(body)))
}
