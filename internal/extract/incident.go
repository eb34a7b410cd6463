package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/newsflow/internal/llm"
	"github.com/ppiankov/newsflow/internal/model"
)

// IncidentTypeExtractor classifies an article against the incident type catalog
type IncidentTypeExtractor struct {
	prompts PromptExecutor
	catalog IncidentTypeRepository
}

// NewIncidentTypeExtractor creates a new incident type extractor
func NewIncidentTypeExtractor(prompts PromptExecutor, catalog IncidentTypeRepository) *IncidentTypeExtractor {
	return &IncidentTypeExtractor{prompts: prompts, catalog: catalog}
}

type catalogEntry struct {
	Name        string `json:"name"`
	Level       int    `json:"level,omitempty"`
	Description string `json:"description,omitempty"`
}

type incidentTypeInput struct {
	articleInput
	Candidates []catalogEntry `json:"candidates"`
}

type incidentTypeOutput struct {
	IncidentTypes []string `json:"incidentTypes"`
}

// Extract returns the catalog incident types the article matches, as a set in catalog order.
// Names the model invents are dropped.
func (e *IncidentTypeExtractor) Extract(ctx context.Context, _ string, article model.RefinedArticle) ([]model.IncidentType, error) {
	types, err := e.catalog.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load incident types: %w", err)
	}
	if len(types) == 0 {
		return []model.IncidentType{}, nil
	}

	input := incidentTypeInput{articleInput: newArticleInput(article)}
	for _, t := range types {
		input.Candidates = append(input.Candidates, catalogEntry{Name: t.Name, Description: t.Description})
	}

	var out incidentTypeOutput
	if _, err := e.prompts.Execute(ctx, llm.PromptIncidentType, input, &out); err != nil {
		return nil, fmt.Errorf("incident type: %w", err)
	}

	chosen := make(map[string]bool, len(out.IncidentTypes))
	for _, name := range out.IncidentTypes {
		chosen[strings.TrimSpace(name)] = true
	}

	result := []model.IncidentType{}
	for _, t := range types {
		if chosen[t.Name] {
			result = append(result, t)
		}
	}
	return result, nil
}
