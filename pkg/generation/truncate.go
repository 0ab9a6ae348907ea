package generation

import (
	vctx "github.com/easyops/verba-go/pkg/context"
	"github.com/easyops/verba-go/pkg/core/message"
)

// Truncator 按 Token 预算截断对话历史
type Truncator struct {
	encoder vctx.Encoder
}

// NewTruncator 创建截断器
func NewTruncator(encoder vctx.Encoder) *Truncator {
	return &Truncator{encoder: encoder}
}

// Encoder 返回截断使用的编码器
func (t *Truncator) Encoder() vctx.Encoder {
	return t.encoder
}

// Truncate 保留能放进 maxTokens 的最近若干轮对话
//
// 从最新一轮向最早一轮累计 Token 数。整轮放得下就完整保留；放不下时，
// 若仍有剩余预算，则保留该轮文本的前 remaining 个 Token 作为新的一轮，
// 随后停止。结果按时间顺序（最早在前）返回，输入不会被修改。
func (t *Truncator) Truncate(conversation message.Conversation, maxTokens int) message.Conversation {
	if maxTokens <= 0 || len(conversation) == 0 {
		return message.Conversation{}
	}

	kept := make(message.Conversation, 0, len(conversation))
	used := 0

	for i := len(conversation) - 1; i >= 0; i-- {
		turn := conversation[i]
		tokens := t.encoder.Encode(turn.Content)

		if used+len(tokens) > maxTokens {
			if remaining := maxTokens - used; remaining > 0 {
				kept = append(kept, turn.WithContent(t.encoder.Decode(tokens[:remaining])))
			}
			break
		}

		kept = append(kept, turn)
		used += len(tokens)
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// Count 返回对话历史的总 Token 数
func (t *Truncator) Count(conversation message.Conversation) int {
	total := 0
	for _, turn := range conversation {
		total += t.encoder.Count(turn.Content)
	}
	return total
}
