package main

import (
	"fmt"
	"net/url"

	"github.com/studiobloom/Reflow/internal/models"
)

// ValidateURL 验证URL格式
func ValidateURL(urlStr string) error {
	return models.ValidateURL(urlStr)
}

// ValidateFlags 验证命令行标志
func ValidateFlags(
	targetURL string,
	workers int,
	delay float64,
	timeout int,
	maxDepth int,
	mergePolicy string,
) error {
	// 验证URL
	if targetURL != "" {
		if err := ValidateURL(targetURL); err != nil {
			return fmt.Errorf("无效的种子URL: %w", err)
		}
	}

	// 验证并发数
	if workers < 1 || workers > 100 {
		return fmt.Errorf("并发数必须在1-100之间,当前值: %d", workers)
	}

	// 验证抓取间隔
	if delay < 0 || delay > 60 {
		return fmt.Errorf("抓取间隔必须在0-60秒之间,当前值: %.2f", delay)
	}

	// 验证超时
	if timeout < 1 || timeout > 300 {
		return fmt.Errorf("请求超时必须在1-300秒之间,当前值: %d", timeout)
	}

	// 验证深度
	if maxDepth < 0 || maxDepth > 50 {
		return fmt.Errorf("爬取深度必须在0-50之间,当前值: %d", maxDepth)
	}

	// 验证合并策略
	switch models.MergePolicy(mergePolicy) {
	case "", models.MergeMostComplete, models.MergeLastWriteWins:
	default:
		return fmt.Errorf("无效的合并策略: %s (有效值: %s, %s)",
			mergePolicy, models.MergeMostComplete, models.MergeLastWriteWins)
	}

	return nil
}

// NormalizeURL 规范化URL
// 无协议时默认补全https
func NormalizeURL(urlStr string) (string, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "" {
		urlStr = "https://" + urlStr
		parsed, err = url.Parse(urlStr)
		if err != nil {
			return "", err
		}
	}

	return parsed.String(), nil
}
