package generation

import (
	"context"

	"github.com/easyops/verba-go/pkg/core/message"
)

// Generator 生成后端能力接口
//
// 实现之间互不共享可变状态，Manager 只通过这两个方法使用后端。
type Generator interface {
	// Generate 根据查询、检索上下文和对话历史生成完整回答
	Generate(ctx context.Context, queries, contexts []string, conversation message.Conversation) (string, error)

	// GenerateStream 以流式方式生成回答
	//
	// 返回两个 channel：
	//   - <-chan string: 按产生顺序排列的文本块
	//   - <-chan error: 错误通道（最多一个错误）
	//
	// 两个通道在生成结束或 ctx 取消后关闭。
	GenerateStream(ctx context.Context, queries, contexts []string, conversation message.Conversation) (<-chan string, <-chan error)
}

// Backend 注册表中的一个命名后端
type Backend struct {
	// Name 注册名，即选择时使用的标识
	Name string `json:"name"`
	// Description 描述信息
	Description string `json:"description"`
	// RequiresEnv 后端运行所需的环境变量
	RequiresEnv []string `json:"requires_env,omitempty"`
	// Streamable 是否支持流式输出
	Streamable bool `json:"streamable"`
	// MaxConversationTokens 对话历史预算，0 表示使用 Manager 的默认值
	MaxConversationTokens int `json:"max_conversation_tokens,omitempty"`
	// Generator 生成能力
	Generator Generator `json:"-"`
}
