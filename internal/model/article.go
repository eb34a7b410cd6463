package model

import "time"

// Article is a raw news article as captured from the collector's table
type Article struct {
	ArticleID  string    `json:"articleId"`
	OriginID   string    `json:"originId"`
	SourceID   string    `json:"sourceId"`
	WrittenAt  time.Time `json:"writtenAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
}

// RefinedArticle is the LLM-cleaned version of an article that every facet consumes
type RefinedArticle struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary"`
	WrittenAt time.Time `json:"writtenAt"`
}

// IncidentType is one entry of the incident type catalog
type IncidentType struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Urgency is one entry of the urgency catalog. Higher levels are more urgent.
type Urgency struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Level       int    `json:"level"`
	Description string `json:"description,omitempty"`
}

// Keyword is a ranked keyword extracted from an article
type Keyword struct {
	Text     string `json:"keyword"`
	Priority int    `json:"priority"`
}
