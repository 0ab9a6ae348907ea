package context

import (
	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	// 使用内嵌的 BPE 编码表，编码器的创建不依赖网络
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// DefaultEncodingModel 截断时使用的参考模型
const DefaultEncodingModel = "gpt-3.5-turbo"

// Encoder 定义 Token 编解码接口。
type Encoder interface {
	// Encode 将文本编码为 Token 序列。
	Encode(text string) []int

	// Decode 将 Token 序列还原为文本。
	Decode(tokens []int) string

	// Count 返回给定文本的 Token 数量。
	Count(text string) int
}

// TiktokenEncoder 使用 tiktoken 实现精确的 Token 编解码。
type TiktokenEncoder struct {
	encoding *tiktoken.Tiktoken
	model    string
}

// TiktokenOption 配置 TiktokenEncoder。
type TiktokenOption func(*TiktokenEncoder)

// WithModel 设置 Token 编码使用的模型。
func WithModel(model string) TiktokenOption {
	return func(e *TiktokenEncoder) {
		if model != "" {
			e.model = model
		}
	}
}

// NewTiktokenEncoder 创建新的 TiktokenEncoder。
// 模型未知时降级到 cl100k_base 编码。
func NewTiktokenEncoder(opts ...TiktokenOption) (*TiktokenEncoder, error) {
	e := &TiktokenEncoder{
		model: DefaultEncodingModel,
	}

	for _, opt := range opts {
		opt(e)
	}

	encoding, err := tiktoken.EncodingForModel(e.model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	e.encoding = encoding
	return e, nil
}

// Model 返回参考模型名称。
func (e *TiktokenEncoder) Model() string {
	return e.model
}

// Encode 将文本编码为 Token 序列，特殊 Token 按普通文本处理。
func (e *TiktokenEncoder) Encode(text string) []int {
	return e.encoding.EncodeOrdinary(text)
}

// Decode 将 Token 序列还原为文本。
func (e *TiktokenEncoder) Decode(tokens []int) string {
	return e.encoding.Decode(tokens)
}

// Count 返回给定文本的 Token 数量。
func (e *TiktokenEncoder) Count(text string) int {
	return len(e.Encode(text))
}

// 编译时接口检查
var _ Encoder = (*TiktokenEncoder)(nil)
