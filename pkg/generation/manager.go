package generation

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	vctx "github.com/easyops/verba-go/pkg/context"
	"github.com/easyops/verba-go/pkg/core/errors"
	"github.com/easyops/verba-go/pkg/core/message"
	"github.com/easyops/verba-go/pkg/otel"
)

// Span 名称
const (
	SpanGenerate       = "generation.generate"
	SpanGenerateStream = "generation.generate_stream"
)

// 生成模式
const (
	ModeSingle = "single"
	ModeStream = "stream"
)

// Manager 生成后端调度器
//
// 注册表在构造后固定不变；唯一可变的状态是当前选中的后端名称，
// 以原子方式读写。每次生成调用只在入口处读取一次选中名称。
type Manager struct {
	backends  map[string]Backend
	names     []string
	selected  atomic.Pointer[string]
	truncator *Truncator
	maxTokens int

	logger  otel.Logger
	tracer  otel.Tracer
	metrics otel.Metrics
}

// NewManager 创建调度器
//
// 后端名称不能重复，初始选中的后端（默认 GPT3Generator）必须已注册。
func NewManager(backends []Backend, opts ...Option) (*Manager, error) {
	if len(backends) == 0 {
		return nil, errors.ErrNoGenerators
	}

	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.MaxConversationTokens < 0 {
		return nil, fmt.Errorf("%w: max conversation tokens %d", errors.ErrInvalidConfig, options.MaxConversationTokens)
	}

	encoder := options.Encoder
	if encoder == nil {
		enc, err := vctx.NewTiktokenEncoder()
		if err != nil {
			return nil, fmt.Errorf("load reference encoding: %w", err)
		}
		encoder = enc
	}

	m := &Manager{
		backends:  make(map[string]Backend, len(backends)),
		names:     make([]string, 0, len(backends)),
		truncator: NewTruncator(encoder),
		maxTokens: options.MaxConversationTokens,
		logger:    options.Logger,
		tracer:    options.Tracer,
		metrics:   options.Metrics,
	}

	for _, b := range backends {
		if b.Name == "" || b.Generator == nil {
			return nil, fmt.Errorf("%w: backend %q requires a name and a generator", errors.ErrInvalidConfig, b.Name)
		}
		if _, ok := m.backends[b.Name]; ok {
			return nil, fmt.Errorf("%w: %s", errors.ErrDuplicateGenerator, b.Name)
		}
		m.backends[b.Name] = b
		m.names = append(m.names, b.Name)
	}

	if _, ok := m.backends[options.Default]; !ok {
		return nil, fmt.Errorf("%w: default %s", errors.ErrGeneratorNotFound, options.Default)
	}
	name := options.Default
	m.selected.Store(&name)

	return m, nil
}

// Backends 返回注册表的快照
func (m *Manager) Backends() map[string]Backend {
	snapshot := make(map[string]Backend, len(m.backends))
	for name, b := range m.backends {
		snapshot[name] = b
	}
	return snapshot
}

// Names 按注册顺序返回后端名称
func (m *Manager) Names() []string {
	names := make([]string, len(m.names))
	copy(names, m.names)
	return names
}

// Backend 按名称查找后端
func (m *Manager) Backend(name string) (Backend, bool) {
	b, ok := m.backends[name]
	return b, ok
}

// Selected 返回当前选中的后端名称
func (m *Manager) Selected() string {
	return *m.selected.Load()
}

// Truncator 返回对话历史截断器
func (m *Manager) Truncator() *Truncator {
	return m.truncator
}

// SelectBackend 切换当前后端
//
// 名称未注册时记录警告并返回 false，当前选择保持不变。
func (m *Manager) SelectBackend(name string) bool {
	if _, ok := m.backends[name]; !ok {
		m.logger.Warn("generator not found", "generator", name)
		return false
	}

	m.selected.Store(&name)
	m.logger.Info("generator selected", "generator", name)
	m.metrics.Counter(otel.MetricGenerationSelections).Add(context.Background(), 1,
		otel.NewAttr(otel.AttrGenerator, name))
	return true
}

// MaxConversationTokens 返回指定后端使用的对话历史预算
func (m *Manager) MaxConversationTokens(name string) int {
	if b, ok := m.backends[name]; ok && b.MaxConversationTokens > 0 {
		return b.MaxConversationTokens
	}
	return m.maxTokens
}

// Answer 单次生成的结果
type Answer struct {
	// Text 回答文本
	Text string `json:"answer"`
	// Generator 实际作答的后端名称
	Generator string `json:"generator"`
}

// Generate 使用当前后端生成完整回答
//
// 后端错误原样包装返回，不做重试。
func (m *Manager) Generate(ctx context.Context, queries, contexts []string, conversation message.Conversation) (string, error) {
	answer, err := m.GenerateAnswer(ctx, queries, contexts, conversation)
	return answer.Text, err
}

// GenerateAnswer 与 Generate 相同，同时返回入口处读取到的后端名称
func (m *Manager) GenerateAnswer(ctx context.Context, queries, contexts []string, conversation message.Conversation) (Answer, error) {
	backend := m.current()
	result := Answer{Generator: backend.Name}
	if len(queries) == 0 {
		return result, errors.ErrEmptyQueries
	}

	requestID := uuid.NewString()
	ctx, span := m.tracer.Start(ctx, SpanGenerate,
		otel.WithAttributes(m.spanAttrs(backend.Name, ModeSingle, requestID, queries, contexts)...))
	defer span.End()

	logger := m.requestLogger(ctx, backend.Name, requestID)
	attrs := []otel.Attr{otel.NewAttr(otel.AttrGenerator, backend.Name), otel.NewAttr(otel.AttrGenerationMode, ModeSingle)}
	start := time.Now()

	m.metrics.Counter(otel.MetricGenerationRequests).Add(ctx, 1, attrs...)
	truncated := m.truncate(ctx, span, backend, conversation, attrs)

	answer, err := backend.Generator.Generate(ctx, queries, contexts, truncated)
	m.metrics.Histogram(otel.MetricGenerationDuration).Record(ctx, durationMillis(start), attrs...)
	if err != nil {
		m.fail(ctx, span, logger, err, attrs)
		return result, fmt.Errorf("generator %s: %w", backend.Name, err)
	}

	span.SetStatus(otel.StatusOK, "")
	logger.Debug("generation completed", "duration", time.Since(start))
	result.Text = answer
	return result, nil
}

// GenerateStream 使用当前后端流式生成回答
//
// 块按后端产生的顺序经无缓冲通道转发。ctx 取消后停止转发，
// 并取消后端调用；错误通道最多产生一个错误。
func (m *Manager) GenerateStream(ctx context.Context, queries, contexts []string, conversation message.Conversation) (<-chan string, <-chan error) {
	out := make(chan string)
	errCh := make(chan error, 1)
	backend := m.current()

	go func() {
		defer close(out)
		defer close(errCh)

		if len(queries) == 0 {
			errCh <- errors.ErrEmptyQueries
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		requestID := uuid.NewString()
		ctx, span := m.tracer.Start(ctx, SpanGenerateStream,
			otel.WithAttributes(m.spanAttrs(backend.Name, ModeStream, requestID, queries, contexts)...))
		defer span.End()

		logger := m.requestLogger(ctx, backend.Name, requestID)
		attrs := []otel.Attr{otel.NewAttr(otel.AttrGenerator, backend.Name), otel.NewAttr(otel.AttrGenerationMode, ModeStream)}
		start := time.Now()
		sent := 0

		defer func() {
			m.metrics.Histogram(otel.MetricGenerationDuration).Record(ctx, durationMillis(start), attrs...)
			m.metrics.Counter(otel.MetricGenerationChunks).Add(ctx, int64(sent), attrs...)
		}()

		m.metrics.Counter(otel.MetricGenerationRequests).Add(ctx, 1, attrs...)
		truncated := m.truncate(ctx, span, backend, conversation, attrs)

		chunks, errs := backend.Generator.GenerateStream(ctx, queries, contexts, truncated)

		abort := func(err error) {
			m.fail(ctx, span, logger, err, attrs)
			if ctx.Err() == nil {
				err = fmt.Errorf("generator %s: %w", backend.Name, err)
			}
			errCh <- err
		}

		for chunks != nil || errs != nil {
			select {
			case <-ctx.Done():
				abort(ctx.Err())
				return
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				if err != nil {
					abort(err)
					return
				}
			case chunk, ok := <-chunks:
				if !ok {
					chunks = nil
					continue
				}
				if err := ctx.Err(); err != nil {
					abort(err)
					return
				}
				select {
				case out <- chunk:
					sent++
				case <-ctx.Done():
					abort(ctx.Err())
					return
				}
			}
		}

		if err := ctx.Err(); err != nil {
			abort(err)
			return
		}

		span.SetAttributes(attribute.Int("generation.chunks", sent))
		span.SetStatus(otel.StatusOK, "")
		logger.Debug("stream completed", "chunks", sent, "duration", time.Since(start))
	}()

	return out, errCh
}

// Close 关闭实现了 io.Closer 的后端
func (m *Manager) Close() error {
	var errs []error
	for _, name := range m.names {
		if c, ok := m.backends[name].Generator.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	return stderrors.Join(errs...)
}

// current 读取当前选中的后端
func (m *Manager) current() Backend {
	return m.backends[*m.selected.Load()]
}

// truncate 按后端预算截断对话历史并记录截断情况
func (m *Manager) truncate(ctx context.Context, span otel.Span, backend Backend, conversation message.Conversation, attrs []otel.Attr) message.Conversation {
	budget := m.maxTokens
	if backend.MaxConversationTokens > 0 {
		budget = backend.MaxConversationTokens
	}

	truncated := m.truncator.Truncate(conversation, budget)
	span.SetAttributes(otel.ConversationAttrs(len(conversation), len(truncated), budget)...)

	if dropped := countTruncated(conversation, truncated); dropped > 0 {
		m.metrics.Counter(otel.MetricGenerationTruncatedTurns).Add(ctx, int64(dropped), attrs...)
	}
	return truncated
}

// fail 记录失败的生成调用
func (m *Manager) fail(ctx context.Context, span otel.Span, logger otel.Logger, err error, attrs []otel.Attr) {
	if stderrors.Is(err, context.Canceled) {
		span.SetStatus(otel.StatusError, "canceled")
		logger.Info("generation canceled")
		return
	}

	span.RecordError(err)
	span.SetStatus(otel.StatusError, err.Error())
	m.metrics.Counter(otel.MetricGenerationErrors).Add(ctx, 1, attrs...)
	logger.Error("generation failed", "error", err)
}

func (m *Manager) requestLogger(ctx context.Context, generator, requestID string) otel.Logger {
	return m.logger.WithContext(ctx).WithFields(map[string]any{
		"generator":  generator,
		"request_id": requestID,
	})
}

func (m *Manager) spanAttrs(generator, mode, requestID string, queries, contexts []string) []attribute.KeyValue {
	return []attribute.KeyValue{
		otel.Generator(generator),
		otel.GenerationMode(mode),
		otel.RequestID(requestID),
		attribute.Int(otel.AttrQueryCount, len(queries)),
		attribute.Int(otel.AttrContextCount, len(contexts)),
	}
}

// countTruncated 返回被丢弃或被截短的轮次数
func countTruncated(original, truncated message.Conversation) int {
	n := len(original) - len(truncated)
	if len(truncated) > 0 {
		oldest := original[len(original)-len(truncated)]
		if oldest.Content != truncated[0].Content {
			n++
		}
	}
	return n
}

func durationMillis(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
