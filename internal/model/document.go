package model

import "time"

// ArticleIndexDocument is the search-engine representation of an analyzed article.
// It is keyed by ArticleID.
type ArticleIndexDocument struct {
	ArticleID        string     `json:"articleId"`
	OriginID         string     `json:"originId,omitempty"`
	SourceID         string     `json:"sourceId,omitempty"`
	Title            string     `json:"title"`
	Content          string     `json:"content"`
	Summary          string     `json:"summary"`
	WrittenAt        time.Time  `json:"writtenAt"`
	ModifiedAt       time.Time  `json:"modifiedAt"`
	AnalyzedAt       time.Time  `json:"analyzedAt"`
	IncidentTypes    []string   `json:"incidentTypes"`
	Urgency          string     `json:"urgency"`
	UrgencyLevel     int        `json:"urgencyLevel"`
	Keywords         []string   `json:"keywords"`
	Topic            string     `json:"topic"`
	Locations        []Location `json:"locations"`
	GeoPoints        []GeoPoint `json:"geoPoints,omitempty"`
	ContentEmbedding []float32  `json:"contentEmbedding,omitempty"`
}

// GeoPoint is the search engine's geo_point shape
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewArticleIndexDocument builds a document from an analysis result.
// Only resolved locations contribute geo points.
func NewArticleIndexDocument(r AnalysisResult, embedding []float32) ArticleIndexDocument {
	doc := ArticleIndexDocument{
		ArticleID:        r.ArticleID,
		OriginID:         r.OriginID,
		SourceID:         r.SourceID,
		Title:            r.RefinedArticle.Title,
		Content:          r.RefinedArticle.Content,
		Summary:          r.RefinedArticle.Summary,
		WrittenAt:        r.RefinedArticle.WrittenAt,
		ModifiedAt:       r.ModifiedAt,
		AnalyzedAt:       r.AnalyzedAt,
		IncidentTypes:    r.IncidentTypeNames(),
		Urgency:          r.Urgency.Name,
		UrgencyLevel:     r.Urgency.Level,
		Keywords:         r.KeywordTexts(),
		Topic:            r.Topic,
		Locations:        r.Locations,
		ContentEmbedding: embedding,
	}

	for _, loc := range r.Locations {
		if loc.Resolved() {
			doc.GeoPoints = append(doc.GeoPoints, GeoPoint{Lat: loc.Coordinate.Lat, Lon: loc.Coordinate.Lon})
		}
	}

	return doc
}

// EmbeddingText returns the text used to compute the content embedding
func (r AnalysisResult) EmbeddingText() string {
	if r.RefinedArticle.Summary != "" {
		return r.RefinedArticle.Title + "\n" + r.RefinedArticle.Summary
	}
	return r.RefinedArticle.Title + "\n" + r.RefinedArticle.Content
}
