package generation

import (
	stderrors "errors"
	"fmt"
	"io"

	vctx "github.com/easyops/verba-go/pkg/context"
	"github.com/easyops/verba-go/pkg/core/config"
	"github.com/easyops/verba-go/pkg/core/errors"
	"github.com/easyops/verba-go/pkg/core/llm"
)

// backendFactory 按 LLM 客户端构造后端
type backendFactory func(provider llm.Provider, opts ...ChatOption) (Backend, error)

// FromConfig 从配置创建调度器
//
// 被禁用的生成器不会注册；缺少 API Key 的生成器记录警告后跳过。
// 若初始选中的生成器未能注册则返回错误。opts 在配置之后应用。
func FromConfig(cfg config.GenerationConfig, opts ...Option) (*Manager, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generation config: %w", err)
	}

	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	logger := options.Logger

	entries := []struct {
		name    string
		cfg     config.GeneratorConfig
		factory backendFactory
	}{
		{config.GeneratorGPT4, cfg.GPT4, GPT4Backend},
		{config.GeneratorGPT3, cfg.GPT3, GPT3Backend},
		{config.GeneratorLlama2, cfg.Llama2, Llama2Backend},
	}

	backends := make([]Backend, 0, len(entries))
	for _, e := range entries {
		if e.cfg.Disabled {
			continue
		}

		provider, err := llm.FromConfig(e.cfg.LLM)
		if stderrors.Is(err, errors.ErrInvalidAPIKey) {
			logger.Warn("generator skipped: missing API key", "generator", e.name)
			continue
		}
		if err != nil {
			closeBackends(backends)
			return nil, fmt.Errorf("generator %s: %w", e.name, err)
		}

		var chatOpts []ChatOption
		if t := e.cfg.LLM.Temperature; t != nil {
			chatOpts = append(chatOpts, WithTemperature(*t))
		}

		backend, err := e.factory(provider, chatOpts...)
		if err != nil {
			closeBackends(backends)
			return nil, fmt.Errorf("generator %s: %w", e.name, err)
		}
		backend.MaxConversationTokens = e.cfg.MaxConversationTokens
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, errors.ErrNoGenerators
	}

	base := []Option{
		WithDefault(cfg.Default),
		WithMaxConversationTokens(cfg.MaxConversationTokens),
	}
	if options.Encoder == nil {
		enc, err := vctx.NewTiktokenEncoder(vctx.WithModel(cfg.EncodingModel))
		if err != nil {
			closeBackends(backends)
			return nil, fmt.Errorf("load reference encoding: %w", err)
		}
		base = append(base, WithEncoder(enc))
	}

	m, err := NewManager(backends, append(base, opts...)...)
	if err != nil {
		closeBackends(backends)
		return nil, err
	}
	return m, nil
}

// closeBackends 关闭未能注册的后端
func closeBackends(backends []Backend) {
	for _, b := range backends {
		if c, ok := b.Generator.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
