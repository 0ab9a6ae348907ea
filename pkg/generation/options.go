package generation

import (
	vctx "github.com/easyops/verba-go/pkg/context"
	"github.com/easyops/verba-go/pkg/core/config"
	"github.com/easyops/verba-go/pkg/otel"
)

// Option Manager 配置选项函数
type Option func(*Options)

// Options Manager 配置选项
type Options struct {
	// Default 初始选中的后端名称
	Default string
	// MaxConversationTokens 后端未指定预算时使用的对话历史预算
	MaxConversationTokens int
	// Encoder 截断使用的参考编码，nil 时使用 gpt-3.5-turbo 的 tiktoken 编码
	Encoder vctx.Encoder
	// Logger 日志器
	Logger otel.Logger
	// Tracer 追踪器
	Tracer otel.Tracer
	// Metrics 指标收集器
	Metrics otel.Metrics
}

// DefaultOptions 返回默认选项
func DefaultOptions() *Options {
	return &Options{
		Default:               config.GeneratorGPT3,
		MaxConversationTokens: config.DefaultMaxConversationTokens,
		Logger:                otel.NewNoopLogger(),
		Tracer:                otel.NewNoopTracer(),
		Metrics:               otel.NewNoopMetrics(),
	}
}

// WithDefault 设置初始选中的后端
func WithDefault(name string) Option {
	return func(o *Options) {
		o.Default = name
	}
}

// WithMaxConversationTokens 设置默认对话历史预算
func WithMaxConversationTokens(n int) Option {
	return func(o *Options) {
		o.MaxConversationTokens = n
	}
}

// WithEncoder 设置截断使用的编码器
func WithEncoder(enc vctx.Encoder) Option {
	return func(o *Options) {
		o.Encoder = enc
	}
}

// WithLogger 设置日志器
func WithLogger(logger otel.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithTracer 设置追踪器
func WithTracer(tracer otel.Tracer) Option {
	return func(o *Options) {
		if tracer != nil {
			o.Tracer = tracer
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(metrics otel.Metrics) Option {
	return func(o *Options) {
		if metrics != nil {
			o.Metrics = metrics
		}
	}
}

// WithProvider 使用可观测性提供者的日志、追踪和指标
func WithProvider(p *otel.Provider) Option {
	return func(o *Options) {
		if p == nil {
			return
		}
		o.Logger = p.Logger()
		o.Tracer = p.Tracer()
		o.Metrics = p.Metrics()
	}
}
