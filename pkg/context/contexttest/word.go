// Package contexttest 提供测试用的 Token 编码器。
package contexttest

import (
	"strings"
	"sync"

	vctx "github.com/easyops/verba-go/pkg/context"
)

// WordEncoder 按空白分词，每个词一个 Token。
//
// 词表在编码过程中增量建立且不会收缩，只适合在测试中使用。
// Decode 以单个空格连接词语，原文中的连续空白与换行不会被保留。
type WordEncoder struct {
	mu    sync.Mutex
	ids   map[string]int
	words []string
}

// NewWordEncoder 创建新的 WordEncoder。
func NewWordEncoder() *WordEncoder {
	return &WordEncoder{
		ids: make(map[string]int),
	}
}

// Encode 将文本按空白切分并映射为词 ID。
func (e *WordEncoder) Encode(text string) []int {
	fields := strings.Fields(text)
	tokens := make([]int, len(fields))

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, word := range fields {
		id, ok := e.ids[word]
		if !ok {
			id = len(e.words)
			e.ids[word] = id
			e.words = append(e.words, word)
		}
		tokens[i] = id
	}
	return tokens
}

// Decode 将词 ID 还原为以空格分隔的文本，未知 ID 被忽略。
func (e *WordEncoder) Decode(tokens []int) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	words := make([]string, 0, len(tokens))
	for _, id := range tokens {
		if id >= 0 && id < len(e.words) {
			words = append(words, e.words[id])
		}
	}
	return strings.Join(words, " ")
}

// Count 返回文本中的词数。
func (e *WordEncoder) Count(text string) int {
	return len(strings.Fields(text))
}

var _ vctx.Encoder = (*WordEncoder)(nil)
