package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/newsflow/internal/config"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(cfg Config) (Provider, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(cfg)

	case "anthropic", "claude":
		return NewAnthropicProvider(cfg)

	case "ollama":
		return NewOllamaProvider(cfg)

	case "":
		return nil, fmt.Errorf("LLM provider is required (supported: openai, anthropic, ollama)")

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", cfg.Provider)
	}
}

// ConfigFrom converts the application LLM and proxy settings to llm.Config
func ConfigFrom(llmCfg config.LLMConfig, proxy config.ProxyConfig) Config {
	return Config{
		Provider:    llmCfg.Provider,
		Model:       llmCfg.Model,
		APIKey:      llmCfg.APIKey,
		BaseURL:     llmCfg.BaseURL,
		Timeout:     llmCfg.Timeout,
		MaxTokens:   llmCfg.MaxTokens,
		Temperature: llmCfg.Temperature,
		HTTPProxy:   proxy.HTTPProxy,
		HTTPSProxy:  proxy.HTTPSProxy,
		NoProxy:     proxy.NoProxy,
	}
}
