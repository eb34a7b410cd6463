package cdc

import (
	"encoding/json"
	"fmt"

	"github.com/ppiankov/newsflow/internal/model"
)

// ArticleRow is the after image of the collector's article table
type ArticleRow struct {
	ArticleID  string    `json:"article_id"`
	OriginID   string    `json:"origin_id"`
	SourceID   string    `json:"source_id"`
	WrittenAt  Timestamp `json:"written_at"`
	ModifiedAt Timestamp `json:"modified_at"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
}

// Article converts the row to the domain article
func (r ArticleRow) Article() model.Article {
	return model.Article{
		ArticleID:  r.ArticleID,
		OriginID:   r.OriginID,
		SourceID:   r.SourceID,
		WrittenAt:  r.WrittenAt.Time(),
		ModifiedAt: r.ModifiedAt.Time(),
		Title:      r.Title,
		Content:    r.Content,
	}
}

// OutboxRow is the after image of the analysis outbox table.
// Payload holds a JSON-encoded model.AnalysisResult.
type OutboxRow struct {
	ID        string    `json:"id"`
	ArticleID string    `json:"article_id"`
	Payload   string    `json:"payload"`
	CreatedAt Timestamp `json:"created_at"`
}

// AnalysisResult decodes the outbox payload
func (r OutboxRow) AnalysisResult() (model.AnalysisResult, error) {
	var result model.AnalysisResult
	if err := json.Unmarshal([]byte(r.Payload), &result); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("decode outbox payload %s: %w", r.ID, err)
	}
	if result.ArticleID == "" {
		result.ArticleID = r.ArticleID
	}
	return result, nil
}

// DecodeArticle decodes an article create event
func DecodeArticle(raw []byte) (model.Article, bool) {
	row, ok := Decode[ArticleRow](raw)
	if !ok || row.ArticleID == "" {
		return model.Article{}, false
	}
	return row.Article(), true
}

// DecodeAnalysisResult decodes an outbox create event into the analysis result it carries
func DecodeAnalysisResult(raw []byte) (model.AnalysisResult, bool) {
	row, ok := Decode[OutboxRow](raw)
	if !ok {
		return model.AnalysisResult{}, false
	}
	result, err := row.AnalysisResult()
	if err != nil || result.ArticleID == "" {
		return model.AnalysisResult{}, false
	}
	return result, true
}
