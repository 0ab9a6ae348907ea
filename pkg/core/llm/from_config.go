package llm

import (
	"fmt"
	"net/http"

	"github.com/easyops/verba-go/pkg/core/config"
)

// FromConfig 从配置创建 LLM Provider
func FromConfig(cfg config.LLMConfig) (Provider, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		return createOpenAIFromConfig(cfg)
	case config.ProviderOllama:
		return createOllamaFromConfig(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// createOpenAIFromConfig 从配置创建 OpenAI 客户端
func createOpenAIFromConfig(cfg config.LLMConfig) (*OpenAIClient, error) {
	opts := []Option{
		WithModel(cfg.Model),
		WithTimeout(cfg.Timeout),
		WithMaxRetries(cfg.MaxRetries),
		WithRetryDelay(cfg.RetryDelay),
	}

	if cfg.Temperature != nil {
		opts = append(opts, WithTemperature(*cfg.Temperature))
	}
	if cfg.APIKey != "" {
		opts = append(opts, WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}

	return NewOpenAI(opts...)
}

// createOllamaFromConfig 从配置创建 Ollama 客户端
func createOllamaFromConfig(cfg config.LLMConfig) *OllamaClient {
	opts := []OllamaOption{
		WithOllamaModel(cfg.Model),
		WithOllamaHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}

	if cfg.BaseURL != "" {
		opts = append(opts, WithOllamaBaseURL(cfg.BaseURL))
	}

	return NewOllamaClient(opts...)
}
