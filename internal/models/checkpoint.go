package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint 导出检查点
// 周期性写入输出目录,--resume时跳过已完成的工作
type Checkpoint struct {
	// 任务信息
	TaskID  string `json:"task_id"`  // 关联的任务ID
	SeedURL string `json:"seed_url"` // 种子URL

	// 进度信息
	VisitedPages    []string `json:"visited_pages"`    // 已访问页面URL列表
	PendingPages    []string `json:"pending_pages"`    // 待抓取页面URL列表
	CompletedAssets []string `json:"completed_assets"` // 已下载资源URL列表
	FailedAssets    []string `json:"failed_assets"`    // 下载失败资源URL列表

	// 统计信息
	Stats ExportStats `json:"stats"` // 当前统计

	// 时间戳
	CreatedAt time.Time `json:"created_at"` // 检查点创建时间
	UpdatedAt time.Time `json:"updated_at"` // 最后更新时间

	// 配置快照
	Config ExportConfig `json:"config"` // 配置快照
}

// CheckpointFilename 生成检查点文件名
func CheckpointFilename(host string) string {
	return fmt.Sprintf("checkpoint_%s.json", host)
}

// ToJSON 序列化为JSON
func (c *Checkpoint) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// FromJSON 从JSON反序列化
func (c *Checkpoint) FromJSON(data []byte) error {
	return json.Unmarshal(data, c)
}

// SaveToFile 保存到文件
// 先写临时文件再重命名,避免中断留下损坏的检查点
func (c *Checkpoint) SaveToFile(path string) error {
	c.UpdatedAt = time.Now()

	data, err := c.ToJSON()
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// LoadCheckpointFromFile 从文件加载检查点
func LoadCheckpointFromFile(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := cp.FromJSON(data); err != nil {
		return nil, err
	}

	return &cp, nil
}
