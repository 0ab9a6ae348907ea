package llm

import (
	"context"
	stderrors "errors"
	"io"
)

// GenerateStream 生成响应（流式）
//
// 块按服务端顺序逐个发送，channel 不带缓冲；ctx 取消会中断底层 HTTP 连接。
func (c *OpenAIClient) GenerateStream(ctx context.Context, req Request) (<-chan StreamChunk, <-chan error) {
	chunkCh := make(chan StreamChunk)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)
		defer close(errCh)

		chatReq := c.buildChatRequest(req)
		chatReq.Stream = true

		stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			errCh <- mapOpenAIError(err)
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if stderrors.Is(err, io.EOF) {
				send(ctx, chunkCh, StreamChunk{Done: true, FinishReason: "stop"})
				return
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					errCh <- ctxErr
					return
				}
				errCh <- mapOpenAIError(err)
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			choice := response.Choices[0]
			if choice.Delta.Content != "" {
				if !send(ctx, chunkCh, StreamChunk{Content: choice.Delta.Content}) {
					errCh <- ctx.Err()
					return
				}
			}

			if choice.FinishReason != "" {
				send(ctx, chunkCh, StreamChunk{
					Done:         true,
					FinishReason: string(choice.FinishReason),
				})
				return
			}
		}
	}()

	return chunkCh, errCh
}
