package models

import (
	"fmt"
)

// MergePolicy 集合条目字段合并策略
type MergePolicy string

const (
	// MergeMostComplete 非空字段更多的观测优先 (默认)
	MergeMostComplete MergePolicy = "most_complete"
	// MergeLastWriteWins 后观测覆盖先观测
	MergeLastWriteWins MergePolicy = "last_write_wins"
)

// ExportConfig 导出配置
// 运行期间不可变,创建后仅读取
type ExportConfig struct {
	Workers            int     `json:"workers"`             // 资源下载并发数 (默认:5)
	Delay              float64 `json:"delay"`               // 页面抓取间隔(秒) (默认:0.2)
	Timeout            int     `json:"timeout"`             // 单次请求超时(秒) (默认:30)
	MaxDepth           int     `json:"max_depth"`           // 最大爬取深度 (0=不限制)
	FollowCollections  bool    `json:"follow_collections"`  // 跟随集合条目页面 (默认:true)
	RewriteStylesheets bool    `json:"rewrite_stylesheets"` // 重写样式表引用 (默认:true)
	ZipOutput          bool    `json:"zip_output"`          // 打包为zip归档 (默认:true)
	RespectRobots      bool    `json:"respect_robots"`      // 遵守robots.txt (默认:false)
	Resume             bool    `json:"resume"`              // 从检查点恢复
	Force              bool    `json:"force"`               // 允许覆盖已有输出目录
	UserAgent          string  `json:"user_agent"`          // 自定义User-Agent (空=默认)
	MergePolicy        MergePolicy `json:"merge_policy"`    // 集合字段合并策略
}

// Validate 验证配置
func (c *ExportConfig) Validate() error {
	if c.Workers < 1 || c.Workers > 100 {
		return fmt.Errorf("并发数必须在1-100之间, 当前值: %d", c.Workers)
	}
	if c.Delay < 0 || c.Delay > 60 {
		return fmt.Errorf("抓取间隔必须在0-60秒之间, 当前值: %.2f", c.Delay)
	}
	if c.Timeout < 1 || c.Timeout > 300 {
		return fmt.Errorf("请求超时必须在1-300秒之间, 当前值: %d", c.Timeout)
	}
	if c.MaxDepth < 0 || c.MaxDepth > 50 {
		return fmt.Errorf("爬取深度必须在0-50之间, 当前值: %d", c.MaxDepth)
	}
	switch c.MergePolicy {
	case "", MergeMostComplete, MergeLastWriteWins:
	default:
		return fmt.Errorf("无效的合并策略: %s (有效值: %s, %s)",
			c.MergePolicy, MergeMostComplete, MergeLastWriteWins)
	}
	return nil
}

// DefaultExportConfig 返回默认导出配置
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		Workers:            5,
		Delay:              0.2,
		Timeout:            30,
		MaxDepth:           0,
		FollowCollections:  true,
		RewriteStylesheets: true,
		ZipOutput:          true,
		RespectRobots:      false,
		MergePolicy:        MergeMostComplete,
	}
}
