package models

import (
	"errors"
	"fmt"
)

// FetchError 页面或资源抓取失败
// Transient=true 表示瞬时网络错误(连接重置、超时),可按策略重试;
// Transient=false 表示非2xx响应等确定性结果,不应重试
type FetchError struct {
	// URL 请求的URL
	URL string

	// StatusCode HTTP状态码 (网络层错误时为0)
	StatusCode int

	// Attempts 已尝试次数
	Attempts int

	// Transient 是否为瞬时错误
	Transient bool

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("抓取失败 [%s]: HTTP %d (尝试%d次)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("抓取失败 [%s]: %v (尝试%d次)", e.URL, e.Cause, e.Attempts)
}

// Unwrap 支持errors.Unwrap
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// IsTransientFetch 判断错误是否为可重试的瞬时抓取错误
func IsTransientFetch(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return false
}

// SeedUnreachableError 种子URL不可达
// 致命错误: 整个导出任务中止,不产生任何输出
type SeedUnreachableError struct {
	// SeedURL 种子URL
	SeedURL string

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *SeedUnreachableError) Error() string {
	return fmt.Sprintf("种子URL不可达 [%s]: %v", e.SeedURL, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *SeedUnreachableError) Unwrap() error {
	return e.Cause
}

// OutputWriteError 输出写入失败
// 致命错误: 不能声称导出成功
type OutputWriteError struct {
	// Path 写入失败的路径
	Path string

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("输出写入失败 [%s]: %v", e.Path, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *OutputWriteError) Unwrap() error {
	return e.Cause
}

// MalformedReferenceError 页面内引用格式错误
// 引用级错误: 丢弃该引用并记录日志,绝不中断页面处理
type MalformedReferenceError struct {
	// Ref 原始引用文本
	Ref string

	// PageURL 引用所在页面
	PageURL string

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *MalformedReferenceError) Error() string {
	return fmt.Sprintf("无效引用 [%s] (页面: %s): %v", e.Ref, e.PageURL, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *MalformedReferenceError) Unwrap() error {
	return e.Cause
}

// ValidationError 配置项验证错误
// 表示头部或配置验证失败的详细信息
type ValidationError struct {
	// Field 出错的字段 ("name" 或 "value")
	Field string

	// HeaderName 头部名称
	HeaderName string

	// Reason 错误原因
	Reason string

	// Suggestion 修复建议 (可选)
	Suggestion string
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (建议: %s)", e.Suggestion)
	}
	return msg
}

// ConfigError 配置文件错误
type ConfigError struct {
	// FilePath 配置文件路径
	FilePath string

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
