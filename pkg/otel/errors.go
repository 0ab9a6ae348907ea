package otel

import "errors"

// 可观测性相关错误
var (
	// ErrInvalidSampleRate 采样率无效
	ErrInvalidSampleRate = errors.New("sample rate must be between 0 and 1")
	// ErrInvalidLogLevel 日志级别无效
	ErrInvalidLogLevel = errors.New("log level must be one of debug, info, warn, error")
)
