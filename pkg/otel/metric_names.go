package otel

// 预定义的指标名称
// 遵循 OpenTelemetry 语义约定
const (
	// Generation 指标
	MetricGenerationRequests       = "generation.requests"                     // 计数器: 生成请求次数
	MetricGenerationErrors         = "generation.errors"                       // 计数器: 生成错误次数
	MetricGenerationDuration       = "generation.duration"                     // 直方图: 生成耗时(ms)
	MetricGenerationChunks         = "generation.chunks"                       // 计数器: 流式输出块数
	MetricGenerationTruncatedTurns = "generation.conversation.truncated_turns" // 计数器: 截断丢弃的轮次数
	MetricGenerationSelections     = "generation.selections"                   // 计数器: 切换生成器次数
)

// MetricUnit 指标单位
type MetricUnit string

const (
	UnitNone         MetricUnit = ""
	UnitMilliseconds MetricUnit = "ms"
	UnitCount        MetricUnit = "1"
)

// MetricDescription 指标描述
type MetricDescription struct {
	Name        string
	Description string
	Unit        MetricUnit
	Type        string // counter, histogram, gauge
}

// PredefinedMetrics 预定义指标列表
var PredefinedMetrics = []MetricDescription{
	{MetricGenerationRequests, "Number of generation requests", UnitCount, "counter"},
	{MetricGenerationErrors, "Number of failed generation requests", UnitCount, "counter"},
	{MetricGenerationDuration, "Duration of generation requests", UnitMilliseconds, "histogram"},
	{MetricGenerationChunks, "Number of streamed answer chunks", UnitCount, "counter"},
	{MetricGenerationTruncatedTurns, "Number of conversation turns dropped or cut by truncation", UnitCount, "counter"},
	{MetricGenerationSelections, "Number of successful generator selections", UnitCount, "counter"},
}

// describe 查找预定义指标描述
func describe(name string) (MetricDescription, bool) {
	for _, d := range PredefinedMetrics {
		if d.Name == name {
			return d, true
		}
	}
	return MetricDescription{}, false
}
