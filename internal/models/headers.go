package models

import (
	"fmt"
	"net/http"
	"strings"
)

// HeaderConfig 表示headers.yaml配置文件的结构
type HeaderConfig struct {
	// Headers 自定义HTTP头部 (名称→值)
	// 应用于页面抓取和资源下载的所有请求
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`
}

// CliHeaders 命令行传递的头部列表
// 每个字符串格式为 "Name: Value"
type CliHeaders []string

// Parse 将字符串列表解析为 http.Header
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header)
	for i, s := range ch {
		name, value, err := splitHeaderString(s)
		if err != nil {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: %w", i+1, err)
		}
		result.Set(name, value)
	}
	return result, nil
}

// splitHeaderString 解析单个头部字符串 "Name: Value"
func splitHeaderString(s string) (name, value string, err error) {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("格式错误: 缺少冒号分隔符, 应为 'Name: Value'")
	}

	name = strings.TrimSpace(s[:idx])
	value = strings.TrimSpace(s[idx+1:])

	if name == "" {
		return "", "", fmt.Errorf("头部名称不能为空")
	}

	return name, value, nil
}

// HeaderProvider 定义HTTP头部提供者接口
// 抓取器和下载器通过此接口获取请求头,不关心头部的来源层次
type HeaderProvider interface {
	// GetHeaders 返回当前有效的HTTP请求头部
	// 返回的http.Header已按优先级合并(默认 < 配置文件 < 命令行)
	//
	// 错误情况:
	//   - 配置文件解析失败
	//   - 头部验证失败
	GetHeaders() (http.Header, error)
}
