package otel

import "go.opentelemetry.io/otel/attribute"

// 预定义的语义属性键
const (
	// Generation 相关属性
	AttrGenerator          = "generation.generator"
	AttrGenerationMode     = "generation.mode"
	AttrRequestID          = "generation.request_id"
	AttrQueryCount         = "generation.query_count"
	AttrContextCount       = "generation.context_count"
	AttrConversationTurns  = "generation.conversation.turns"
	AttrConversationKept   = "generation.conversation.kept"
	AttrConversationBudget = "generation.conversation.max_tokens"

	// Error 相关属性
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Generator 创建生成器名称属性
func Generator(name string) attribute.KeyValue {
	return attribute.String(AttrGenerator, name)
}

// GenerationMode 创建生成模式属性（"single" 或 "stream"）
func GenerationMode(mode string) attribute.KeyValue {
	return attribute.String(AttrGenerationMode, mode)
}

// RequestID 创建请求标识属性
func RequestID(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// ConversationAttrs 创建对话截断相关属性
func ConversationAttrs(turns, kept, budget int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrConversationTurns, turns),
		attribute.Int(AttrConversationKept, kept),
		attribute.Int(AttrConversationBudget, budget),
	}
}

// ErrorAttrs 创建错误属性
func ErrorAttrs(errType, message string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, message),
	}
}
