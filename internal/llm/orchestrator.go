package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/newsflow/internal/logging"
	"github.com/ppiankov/newsflow/internal/retry"
)

// RateLimiter blocks until a call to the named service may proceed
type RateLimiter interface {
	Wait(ctx context.Context, key string) error
}

// Metadata describes one prompt execution
type Metadata struct {
	PromptID   string
	Model      string
	TokensUsed int
	Latency    time.Duration
}

// PromptOrchestrator runs catalog prompts against a provider and decodes the JSON answer
type PromptOrchestrator struct {
	provider Provider
	prompts  map[string]Prompt
	limiter  RateLimiter
	logger   *slog.Logger
}

// Option configures a PromptOrchestrator
type Option func(*PromptOrchestrator)

// WithPrompts replaces or adds catalog entries
func WithPrompts(prompts map[string]Prompt) Option {
	return func(o *PromptOrchestrator) {
		for id, p := range prompts {
			o.prompts[id] = p
		}
	}
}

// WithRateLimiter limits calls per provider name
func WithRateLimiter(limiter RateLimiter) Option {
	return func(o *PromptOrchestrator) {
		o.limiter = limiter
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *PromptOrchestrator) {
		o.logger = logger
	}
}

// NewPromptOrchestrator creates an orchestrator over the built-in catalog
func NewPromptOrchestrator(provider Provider, opts ...Option) *PromptOrchestrator {
	o := &PromptOrchestrator{
		provider: provider,
		prompts:  DefaultPrompts(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrDefault(o.logger).With("component", "prompt_orchestrator")
	return o
}

// Execute renders prompt promptID with input as JSON, asks for a JSON answer and decodes it into output.
// Unknown prompt ids and unencodable input are non-retryable; provider and decode failures are not.
func (o *PromptOrchestrator) Execute(ctx context.Context, promptID string, input, output any) (Metadata, error) {
	meta := Metadata{PromptID: promptID}

	prompt, ok := o.prompts[promptID]
	if !ok {
		return meta, retry.NonRetryable(fmt.Errorf("unknown prompt %q", promptID))
	}

	payload, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return meta, retry.NonRetryable(fmt.Errorf("encode %s input: %w", promptID, err))
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx, o.provider.Name()); err != nil {
			return meta, fmt.Errorf("rate limit %s: %w", promptID, err)
		}
	}

	var sb strings.Builder
	sb.WriteString(prompt.Instruction)
	sb.WriteString("\n\nInput:\n")
	sb.Write(payload)

	start := time.Now()
	resp, err := o.provider.Complete(ctx, CompletionRequest{
		System: prompt.System,
		Prompt: sb.String(),
		JSON:   true,
	})
	meta.Latency = time.Since(start)
	if err != nil {
		return meta, fmt.Errorf("prompt %s: %w", promptID, err)
	}
	meta.Model = resp.Model
	meta.TokensUsed = resp.TokensUsed

	if err := json.Unmarshal([]byte(StripCodeFence(resp.Text)), output); err != nil {
		return meta, fmt.Errorf("decode %s answer: %w", promptID, err)
	}

	o.logger.Debug("prompt executed",
		"prompt", promptID,
		"model", meta.Model,
		"tokens", meta.TokensUsed,
		"latency", meta.Latency)

	return meta, nil
}
