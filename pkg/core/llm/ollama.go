package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/easyops/verba-go/pkg/core/errors"
	"github.com/easyops/verba-go/pkg/core/message"
)

// OllamaClient Ollama 客户端
//
// 用于本地部署的开源权重模型（如 llama2）。
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// OllamaOption Ollama 客户端选项
type OllamaOption func(*OllamaClient)

// WithOllamaBaseURL 设置基础 URL
func WithOllamaBaseURL(url string) OllamaOption {
	return func(c *OllamaClient) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithOllamaModel 设置模型名称
func WithOllamaModel(model string) OllamaOption {
	return func(c *OllamaClient) {
		c.model = model
	}
}

// WithOllamaHTTPClient 设置 HTTP 客户端
func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(c *OllamaClient) {
		c.httpClient = client
	}
}

// NewOllamaClient 创建 Ollama 客户端
func NewOllamaClient(opts ...OllamaOption) *OllamaClient {
	c := &OllamaClient{
		baseURL: "http://localhost:11434",
		model:   "llama2",
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ollamaRequest Ollama 请求结构
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

// ollamaMessage Ollama 消息
type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaOptions Ollama 选项
type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// ollamaResponse Ollama 响应
type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

// Generate 生成响应（非流式）
func (c *OllamaClient) Generate(ctx context.Context, req Request) (Response, error) {
	resp, err := c.post(ctx, c.buildRequest(req, false))
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return Response{}, fmt.Errorf("%w: %v", errors.ErrInvalidResponse, err)
	}
	if ollamaResp.Error != "" {
		return Response{}, fmt.Errorf("ollama error: %s", ollamaResp.Error)
	}

	return c.convertResponse(ollamaResp), nil
}

// GenerateStream 生成响应（流式）
func (c *OllamaClient) GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, <-chan error) {
	chunkCh := make(chan StreamChunk)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)
		defer close(errCh)

		resp, err := c.post(ctx, c.buildRequest(req, true))
		if err != nil {
			errCh <- err
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var streamResp ollamaResponse
			if err := json.Unmarshal(line, &streamResp); err != nil {
				errCh <- fmt.Errorf("%w: %v", errors.ErrInvalidResponse, err)
				return
			}
			if streamResp.Error != "" {
				errCh <- fmt.Errorf("ollama error: %s", streamResp.Error)
				return
			}

			chunk := StreamChunk{
				Content: streamResp.Message.Content,
				Done:    streamResp.Done,
			}
			if streamResp.Done {
				chunk.FinishReason = c.mapFinishReason(streamResp.DoneReason)
				chunk.TokenUsage = &message.TokenUsage{
					PromptTokens:     streamResp.PromptEvalCount,
					CompletionTokens: streamResp.EvalCount,
					TotalTokens:      streamResp.PromptEvalCount + streamResp.EvalCount,
				}
			}

			if !send(ctx, chunkCh, chunk) {
				errCh <- ctx.Err()
				return
			}

			if streamResp.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				errCh <- ctxErr
				return
			}
			errCh <- fmt.Errorf("stream read error: %w", err)
		}
	}()

	return chunkCh, errCh
}

// post 发送 /api/chat 请求并检查状态码
func (c *OllamaClient) post(ctx context.Context, ollamaReq ollamaRequest) (*http.Response, error) {
	body, err := json.Marshal(ollamaReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", errors.ErrModelNotFound, string(bodyBytes))
		}
		return nil, fmt.Errorf("ollama error: %s - %s", resp.Status, string(bodyBytes))
	}

	return resp, nil
}

// Name 返回提供商名称
func (c *OllamaClient) Name() string {
	return "ollama"
}

// Model 返回当前模型名称
func (c *OllamaClient) Model() string {
	return c.model
}

// Close 关闭客户端连接
func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// buildRequest 构建 Ollama 请求
func (c *OllamaClient) buildRequest(req Request, stream bool) ollamaRequest {
	ollamaReq := ollamaRequest{
		Model:    c.model,
		Messages: make([]ollamaMessage, len(req.Messages)),
		Stream:   stream,
	}

	for i, msg := range req.Messages {
		ollamaReq.Messages[i] = ollamaMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	if req.Temperature != nil || req.MaxTokens != nil || req.TopP != nil || len(req.Stop) > 0 {
		ollamaReq.Options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
			TopP:        req.TopP,
			Stop:        req.Stop,
		}
	}

	return ollamaReq
}

// convertResponse 转换 Ollama 响应
func (c *OllamaClient) convertResponse(resp ollamaResponse) Response {
	return Response{
		Content: resp.Message.Content,
		TokenUsage: message.TokenUsage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
		FinishReason: c.mapFinishReason(resp.DoneReason),
	}
}

// mapFinishReason 映射结束原因
func (c *OllamaClient) mapFinishReason(reason string) string {
	if reason == "length" {
		return "length"
	}
	return "stop"
}

// compile-time interface check
var _ Provider = (*OllamaClient)(nil)
