// Package extract derives the analysis facets of an article with catalog prompts and geocoding.
package extract

import (
	"context"
	"time"

	"github.com/ppiankov/newsflow/internal/llm"
	"github.com/ppiankov/newsflow/internal/model"
)

// PromptExecutor runs a catalog prompt and decodes its JSON answer into output
type PromptExecutor interface {
	Execute(ctx context.Context, promptID string, input, output any) (llm.Metadata, error)
}

// IncidentTypeRepository reads the incident type catalog
type IncidentTypeRepository interface {
	FindAll(ctx context.Context) ([]model.IncidentType, error)
}

// UrgencyRepository reads the urgency catalog
type UrgencyRepository interface {
	FindAll(ctx context.Context) ([]model.Urgency, error)
}

// articleInput is the prompt input shared by the facet prompts
type articleInput struct {
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
	Content string `json:"content"`
}

func newArticleInput(article model.RefinedArticle) articleInput {
	return articleInput{
		Title:   article.Title,
		Summary: article.Summary,
		Content: article.Content,
	}
}

type refineInput struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	WrittenAt time.Time `json:"writtenAt"`
}
