// Package context 提供对话上下文的 Token 编码能力。
//
// 截断对话历史需要同时做两件事：统计文本的 Token 数，以及把
// Token 序列的前缀还原为文本。Encoder 接口同时覆盖这两种能力。
//
// # 基本用法
//
//	enc, err := context.NewTiktokenEncoder()
//	if err != nil {
//	    return err
//	}
//	tokens := enc.Encode("hello world")
//	head := enc.Decode(tokens[:1])
//
// TiktokenEncoder 使用 tiktoken 的固定参考编码（默认 gpt-3.5-turbo，
// 即 cl100k_base），无论最终选用哪个生成后端。BPE 编码表内嵌在
// 二进制中，离线环境同样可用。
//
// 测试用的按词编码器见 contexttest 子包。
package context
