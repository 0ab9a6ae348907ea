package config

import "os"

// 内置生成器名称
const (
	// GeneratorGPT4 基于 GPT-4 的生成器
	GeneratorGPT4 = "GPT4Generator"
	// GeneratorGPT3 基于 GPT-3.5 的生成器
	GeneratorGPT3 = "GPT3Generator"
	// GeneratorLlama2 基于本地 Llama2 的生成器
	GeneratorLlama2 = "Llama2Generator"
)

// DefaultMaxConversationTokens 未指定预算时的对话历史 Token 上限
const DefaultMaxConversationTokens = 1000

// GenerationConfig 生成调度配置
type GenerationConfig struct {
	// Default 启动时选中的生成器
	// 默认: GPT3Generator
	Default string `koanf:"default"`
	// MaxConversationTokens 对话历史 Token 预算
	// 默认: 1000
	MaxConversationTokens int `koanf:"max_conversation_tokens"`
	// EncodingModel 截断使用的参考编码模型
	// 默认: gpt-3.5-turbo
	EncodingModel string `koanf:"encoding_model"`
	// GPT4 GPT-4 生成器配置
	GPT4 GeneratorConfig `koanf:"gpt4"`
	// GPT3 GPT-3.5 生成器配置
	GPT3 GeneratorConfig `koanf:"gpt3"`
	// Llama2 本地 Llama2 生成器配置
	Llama2 GeneratorConfig `koanf:"llama2"`
}

// GeneratorConfig 单个生成器配置
type GeneratorConfig struct {
	// Disabled 是否禁用
	Disabled bool `koanf:"disabled"`
	// MaxConversationTokens 覆盖全局预算，0 表示沿用全局值
	MaxConversationTokens int `koanf:"max_conversation_tokens"`
	// LLM 底层模型配置
	LLM LLMConfig `koanf:"llm"`
}

// Validate 验证生成调度配置
func (c *GenerationConfig) Validate() error {
	if c.Default == "" {
		return ErrDefaultRequired
	}
	if c.MaxConversationTokens < 0 {
		return ErrInvalidMaxTokens
	}
	for _, g := range []GeneratorConfig{c.GPT4, c.GPT3, c.Llama2} {
		if g.MaxConversationTokens < 0 {
			return ErrInvalidMaxTokens
		}
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c GenerationConfig) WithDefaults() GenerationConfig {
	if c.Default == "" {
		c.Default = GeneratorGPT3
	}
	if c.MaxConversationTokens == 0 {
		c.MaxConversationTokens = DefaultMaxConversationTokens
	}
	if c.EncodingModel == "" {
		c.EncodingModel = "gpt-3.5-turbo"
	}

	c.GPT4.LLM = openAIDefaults(c.GPT4.LLM, "gpt-4")
	c.GPT3.LLM = openAIDefaults(c.GPT3.LLM, "gpt-3.5-turbo")

	if c.Llama2.LLM.Provider == "" {
		c.Llama2.LLM.Provider = ProviderOllama
	}
	if c.Llama2.LLM.Model == "" {
		c.Llama2.LLM.Model = "llama2"
	}
	if c.Llama2.LLM.BaseURL == "" {
		c.Llama2.LLM.BaseURL = "http://localhost:11434"
	}
	c.Llama2.LLM = c.Llama2.LLM.WithDefaults()

	return c
}

// openAIDefaults 填充 OpenAI 生成器默认值，API Key 回退到 OPENAI_API_KEY
func openAIDefaults(c LLMConfig, model string) LLMConfig {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.BaseURL == "" {
		c.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	return c.WithDefaults()
}
