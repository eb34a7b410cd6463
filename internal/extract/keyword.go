package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/newsflow/internal/llm"
	"github.com/ppiankov/newsflow/internal/model"
)

// MaxKeywords caps the keywords kept per article
const MaxKeywords = 10

// KeywordExtractor extracts prioritized search keywords
type KeywordExtractor struct {
	prompts PromptExecutor
}

// NewKeywordExtractor creates a new keyword extractor
func NewKeywordExtractor(prompts PromptExecutor) *KeywordExtractor {
	return &KeywordExtractor{prompts: prompts}
}

type keywordOutput struct {
	Keywords []model.Keyword `json:"keywords"`
}

// Extract returns keywords ordered by priority, without blanks or duplicates
func (e *KeywordExtractor) Extract(ctx context.Context, _ string, article model.RefinedArticle) ([]model.Keyword, error) {
	var out keywordOutput
	if _, err := e.prompts.Execute(ctx, llm.PromptKeyword, newArticleInput(article), &out); err != nil {
		return nil, fmt.Errorf("keyword: %w", err)
	}

	seen := make(map[string]bool, len(out.Keywords))
	keywords := []model.Keyword{}
	for _, k := range out.Keywords {
		k.Text = strings.TrimSpace(k.Text)
		key := strings.ToLower(k.Text)
		if k.Text == "" || seen[key] {
			continue
		}
		seen[key] = true
		keywords = append(keywords, k)
	}

	sort.SliceStable(keywords, func(i, j int) bool {
		return keywords[i].Priority < keywords[j].Priority
	})
	if len(keywords) > MaxKeywords {
		keywords = keywords[:MaxKeywords]
	}
	return keywords, nil
}
