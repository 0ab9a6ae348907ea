package message

// TurnKind 对话轮次的类别标签
type TurnKind string

const (
	// TurnUser 用户输入
	TurnUser TurnKind = "user"
	// TurnSystem 生成器给出的回答
	TurnSystem TurnKind = "system"
	// TurnAssistant 助手回答（与 TurnSystem 等价）
	TurnAssistant TurnKind = "assistant"
)

// Turn 对话历史中的一轮内容
//
// Turn 构造后不可变，截断时产生新的 Turn 而不修改原值。
type Turn struct {
	// Kind 类别标签
	Kind TurnKind `json:"type"`
	// Content 文本内容，参与 Token 计数与截断
	Content string `json:"content"`
	// Typewriter 前端展示提示，原样透传
	Typewriter bool `json:"typewriter"`
}

// NewTurn 创建对话轮次
func NewTurn(kind TurnKind, content string, typewriter bool) Turn {
	return Turn{Kind: kind, Content: content, Typewriter: typewriter}
}

// WithContent 返回替换内容后的副本
func (t Turn) WithContent(content string) Turn {
	t.Content = content
	return t
}

// Role 返回该轮次映射到 LLM 消息时的角色
func (t Turn) Role() Role {
	if t.Kind == TurnUser {
		return RoleUser
	}
	return RoleAssistant
}

// Conversation 按时间顺序排列的对话历史（最早的在前）
type Conversation []Turn

// Len 返回轮次数量
func (c Conversation) Len() int {
	return len(c)
}

// Messages 将对话历史转换为 LLM 消息
func (c Conversation) Messages() []Message {
	msgs := make([]Message, 0, len(c))
	for _, turn := range c {
		msgs = append(msgs, NewMessage(turn.Role(), turn.Content))
	}
	return msgs
}
