package model

import "time"

// AnalysisResult is the combined output of all facets for one article.
// There is at most one result per ArticleID; re-analysis replaces it.
type AnalysisResult struct {
	ArticleID      string         `json:"articleId"`
	OriginID       string         `json:"originId,omitempty"`
	SourceID       string         `json:"sourceId,omitempty"`
	RefinedArticle RefinedArticle `json:"refinedArticle"`
	IncidentTypes  []IncidentType `json:"incidentTypes"`
	Urgency        Urgency        `json:"urgency"`
	Keywords       []Keyword      `json:"keywords"`
	Topic          string         `json:"topic"`
	Locations      []Location     `json:"locations"`

	// ModifiedAt is the article's own modification time and drives freshness checks
	ModifiedAt time.Time `json:"modifiedAt"`
	AnalyzedAt time.Time `json:"analyzedAt"`
}

// IncidentTypeNames returns the names of the incident types, in order
func (r AnalysisResult) IncidentTypeNames() []string {
	names := make([]string, 0, len(r.IncidentTypes))
	for _, it := range r.IncidentTypes {
		names = append(names, it.Name)
	}
	return names
}

// KeywordTexts returns the keyword strings, in priority order as stored
func (r AnalysisResult) KeywordTexts() []string {
	texts := make([]string, 0, len(r.Keywords))
	for _, k := range r.Keywords {
		texts = append(texts, k.Text)
	}
	return texts
}
