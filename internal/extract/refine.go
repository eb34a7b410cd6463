package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/newsflow/internal/llm"
	"github.com/ppiankov/newsflow/internal/model"
)

// Refiner cleans an article into the refined form every facet works on
type Refiner struct {
	prompts PromptExecutor
}

// NewRefiner creates a new refiner
func NewRefiner(prompts PromptExecutor) *Refiner {
	return &Refiner{prompts: prompts}
}

type refineOutput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Summary string `json:"summary"`
}

// Refine strips markup, then asks the model to clean up the text and summarize it.
// An empty title falls back to the original one; empty content is an error.
func (r *Refiner) Refine(ctx context.Context, article model.Article) (model.RefinedArticle, error) {
	input := refineInput{
		Title:     strings.TrimSpace(article.Title),
		Content:   PlainText(article.Content),
		WrittenAt: article.WrittenAt,
	}

	var out refineOutput
	if _, err := r.prompts.Execute(ctx, llm.PromptRefine, input, &out); err != nil {
		return model.RefinedArticle{}, fmt.Errorf("refine: %w", err)
	}

	refined := model.RefinedArticle{
		Title:     strings.TrimSpace(out.Title),
		Content:   strings.TrimSpace(out.Content),
		Summary:   strings.TrimSpace(out.Summary),
		WrittenAt: article.WrittenAt,
	}
	if refined.Title == "" {
		refined.Title = input.Title
	}
	if refined.Content == "" {
		return model.RefinedArticle{}, fmt.Errorf("refine: model returned empty content")
	}

	return refined, nil
}
