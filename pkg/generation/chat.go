package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/easyops/verba-go/pkg/core/config"
	"github.com/easyops/verba-go/pkg/core/errors"
	"github.com/easyops/verba-go/pkg/core/llm"
	"github.com/easyops/verba-go/pkg/core/message"
)

// DefaultSystemPrompt 对话式 RAG 的系统提示词
const DefaultSystemPrompt = "You are Verba, The Golden RAGtriever, a chatbot for Retrieval Augmented Generation (RAG). " +
	"You will receive a user query and context pieces that have a semantic similarity to that specific query. " +
	"Please answer these user queries only with their provided context. " +
	"If the provided documentation does not provide enough information, say so. " +
	"If the answer requires code examples encapsulate them with ```programming-language-name ```. " +
	"Don't do pseudo-code."

// ChatGenerator 基于对话式 LLM 的生成后端
//
// 提示词由三部分组成：系统提示词、映射为 user/assistant 消息的对话历史，
// 以及包含查询和检索上下文的最后一条用户消息。
type ChatGenerator struct {
	provider     llm.Provider
	systemPrompt string
	temperature  *float64
	maxTokens    *int
}

// ChatOption ChatGenerator 配置选项
type ChatOption func(*ChatGenerator)

// WithSystemPrompt 设置系统提示词
func WithSystemPrompt(prompt string) ChatOption {
	return func(g *ChatGenerator) {
		g.systemPrompt = prompt
	}
}

// WithTemperature 设置生成温度
func WithTemperature(t float64) ChatOption {
	return func(g *ChatGenerator) {
		g.temperature = &t
	}
}

// WithMaxAnswerTokens 设置回答的最大 Token 数
func WithMaxAnswerTokens(n int) ChatOption {
	return func(g *ChatGenerator) {
		g.maxTokens = &n
	}
}

// NewChatGenerator 创建 ChatGenerator
func NewChatGenerator(provider llm.Provider, opts ...ChatOption) (*ChatGenerator, error) {
	if provider == nil {
		return nil, errors.ErrProviderUnavailable
	}

	g := &ChatGenerator{
		provider:     provider,
		systemPrompt: DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Provider 返回底层 LLM 提供商
func (g *ChatGenerator) Provider() llm.Provider {
	return g.provider
}

// Close 关闭底层 LLM 客户端
func (g *ChatGenerator) Close() error {
	return g.provider.Close()
}

// Generate 生成完整回答
func (g *ChatGenerator) Generate(ctx context.Context, queries, contexts []string, conversation message.Conversation) (string, error) {
	resp, err := g.provider.Generate(ctx, g.buildRequest(queries, contexts, conversation))
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// GenerateStream 流式生成回答
func (g *ChatGenerator) GenerateStream(ctx context.Context, queries, contexts []string, conversation message.Conversation) (<-chan string, <-chan error) {
	out := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		chunks, errs := g.provider.GenerateStream(ctx, g.buildRequest(queries, contexts, conversation))

		for chunks != nil || errs != nil {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				if err != nil {
					errCh <- err
					return
				}
			case chunk, ok := <-chunks:
				if !ok {
					chunks = nil
					continue
				}
				if chunk.Content == "" {
					continue
				}
				select {
				case out <- chunk.Content:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
		}

		if err := ctx.Err(); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// buildRequest 构建 LLM 请求
func (g *ChatGenerator) buildRequest(queries, contexts []string, conversation message.Conversation) llm.Request {
	msgs := make([]message.Message, 0, len(conversation)+2)
	if g.systemPrompt != "" {
		msgs = append(msgs, message.NewSystemMessage(g.systemPrompt))
	}
	for _, msg := range conversation.Messages() {
		if msg.Content != "" {
			msgs = append(msgs, msg)
		}
	}
	msgs = append(msgs, message.NewUserMessage(buildQueryPrompt(queries, contexts)))

	return llm.Request{
		Messages:    msgs,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
}

// buildQueryPrompt 合并查询与检索上下文
func buildQueryPrompt(queries, contexts []string) string {
	query := strings.Join(queries, " ")
	if len(contexts) == 0 {
		return fmt.Sprintf("Please answer this query: '%s'", query)
	}
	return fmt.Sprintf("Please answer this query: '%s' with this provided context: %s",
		query, strings.Join(contexts, " "))
}

// GPT4Backend 基于 OpenAI GPT-4 的后端
func GPT4Backend(provider llm.Provider, opts ...ChatOption) (Backend, error) {
	g, err := NewChatGenerator(provider, opts...)
	if err != nil {
		return Backend{}, err
	}
	return Backend{
		Name:        config.GeneratorGPT4,
		Description: "Generator using OpenAI's GPT-4 model",
		RequiresEnv: []string{"OPENAI_API_KEY"},
		Streamable:  true,
		Generator:   g,
	}, nil
}

// GPT3Backend 基于 OpenAI GPT-3.5 的后端
func GPT3Backend(provider llm.Provider, opts ...ChatOption) (Backend, error) {
	g, err := NewChatGenerator(provider, opts...)
	if err != nil {
		return Backend{}, err
	}
	return Backend{
		Name:        config.GeneratorGPT3,
		Description: "Generator using OpenAI's GPT-3.5 Turbo model",
		RequiresEnv: []string{"OPENAI_API_KEY"},
		Streamable:  true,
		Generator:   g,
	}, nil
}

// Llama2Backend 基于本地 Llama 2 的后端
func Llama2Backend(provider llm.Provider, opts ...ChatOption) (Backend, error) {
	g, err := NewChatGenerator(provider, opts...)
	if err != nil {
		return Backend{}, err
	}
	return Backend{
		Name:        config.GeneratorLlama2,
		Description: "Generator using Meta's Llama 2 chat model served by a local Ollama instance",
		Streamable:  true,
		Generator:   g,
	}, nil
}

// 编译时接口检查
var _ Generator = (*ChatGenerator)(nil)
