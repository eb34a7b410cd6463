package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/newsflow/internal/llm"
	"github.com/ppiankov/newsflow/internal/model"
	"github.com/ppiankov/newsflow/internal/retry"
)

// UrgencyExtractor rates an article against the urgency catalog
type UrgencyExtractor struct {
	prompts PromptExecutor
	catalog UrgencyRepository
}

// NewUrgencyExtractor creates a new urgency extractor
func NewUrgencyExtractor(prompts PromptExecutor, catalog UrgencyRepository) *UrgencyExtractor {
	return &UrgencyExtractor{prompts: prompts, catalog: catalog}
}

type urgencyInput struct {
	articleInput
	Levels []catalogEntry `json:"levels"`
}

type urgencyOutput struct {
	Urgency string `json:"urgency"`
}

// Extract returns exactly one catalog urgency. An answer outside the catalog is an error
// so the call is retried.
func (e *UrgencyExtractor) Extract(ctx context.Context, _ string, article model.RefinedArticle) (model.Urgency, error) {
	levels, err := e.catalog.FindAll(ctx)
	if err != nil {
		return model.Urgency{}, fmt.Errorf("load urgencies: %w", err)
	}
	if len(levels) == 0 {
		return model.Urgency{}, retry.NonRetryable(fmt.Errorf("urgency catalog is empty"))
	}

	input := urgencyInput{articleInput: newArticleInput(article)}
	for _, u := range levels {
		input.Levels = append(input.Levels, catalogEntry{Name: u.Name, Level: u.Level, Description: u.Description})
	}

	var out urgencyOutput
	if _, err := e.prompts.Execute(ctx, llm.PromptUrgency, input, &out); err != nil {
		return model.Urgency{}, fmt.Errorf("urgency: %w", err)
	}

	answer := strings.TrimSpace(out.Urgency)
	for _, u := range levels {
		if u.Name == answer {
			return u, nil
		}
	}
	return model.Urgency{}, fmt.Errorf("urgency: %q is not in the catalog", answer)
}
