package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/newsflow/internal/llm"
	"github.com/ppiankov/newsflow/internal/model"
)

// TopicExtractor names the topic of an article
type TopicExtractor struct {
	prompts PromptExecutor
}

// NewTopicExtractor creates a new topic extractor
func NewTopicExtractor(prompts PromptExecutor) *TopicExtractor {
	return &TopicExtractor{prompts: prompts}
}

type topicOutput struct {
	Topic string `json:"topic"`
}

// Extract returns a non-empty topic phrase
func (e *TopicExtractor) Extract(ctx context.Context, _ string, article model.RefinedArticle) (string, error) {
	var out topicOutput
	if _, err := e.prompts.Execute(ctx, llm.PromptTopic, newArticleInput(article), &out); err != nil {
		return "", fmt.Errorf("topic: %w", err)
	}

	topic := strings.TrimSpace(out.Topic)
	if topic == "" {
		return "", fmt.Errorf("topic: model returned an empty topic")
	}
	return topic, nil
}
