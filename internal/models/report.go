package models

import (
	"encoding/json"
	"time"
)

// ExportStats 导出统计
type ExportStats struct {
	PagesFetched    int     `json:"pages_fetched"`    // 成功抓取页面数
	PagesFailed     int     `json:"pages_failed"`     // 抓取失败页面数
	VisitedURLs     int     `json:"visited_urls"`     // 已访问URL数
	AssetsTotal     int     `json:"assets_total"`     // 入队资源总数(去重后)
	AssetsCompleted int     `json:"assets_completed"` // 下载成功资源数
	AssetsFailed    int     `json:"assets_failed"`    // 下载失败资源数
	AssetsSkipped   int     `json:"assets_skipped"`   // 跳过资源数
	Collections     int     `json:"collections"`      // 发现的集合数
	CMSPages        int     `json:"cms_pages"`        // 集合条目页面数
	UnresolvedRefs  int     `json:"unresolved_refs"`  // 未解析的样式表引用数
	BytesDownloaded int64   `json:"bytes_downloaded"` // 下载总字节数
	Duration        float64 `json:"duration"`         // 总耗时(秒)
}

// FailedAssetInfo 失败资源信息
type FailedAssetInfo struct {
	URL       string `json:"url"`
	ErrorType string `json:"error_type"` // timeout, network_error, http_error等
	ErrorMsg  string `json:"error_msg"`
	Retries   int    `json:"retries"`
}

// UnresolvedRef 未解析的样式表引用
// 引用指向的资源未被下载,原文保留不改写
type UnresolvedRef struct {
	Source string `json:"source"` // 引用所在的样式表URL
	Ref    string `json:"ref"`    // 原始引用文本
}

// DuplicateGroup 内容重复的资源组 (相同SHA-256,不同URL)
type DuplicateGroup struct {
	Hash string   `json:"hash"` // 内容哈希
	URLs []string `json:"urls"` // 指向相同内容的源URL列表
	Size int64    `json:"size"` // 单份内容大小(字节)
}

// DownloadReport 资源下载阶段报告
// drain()返回,队列清空且所有在途下载结束后生成
type DownloadReport struct {
	Total      int               `json:"total"`      // 入队资源总数
	Completed  int               `json:"completed"`  // 成功数
	Failed     int               `json:"failed"`     // 失败数
	Skipped    int               `json:"skipped"`    // 跳过数
	Bytes      int64             `json:"bytes"`      // 下载总字节数
	Results    []AssetResult     `json:"results"`    // 每个资源的结果
	Failures   []FailedAssetInfo `json:"failures"`   // 失败明细
	Duplicates []DuplicateGroup  `json:"duplicates"` // 内容重复组
	Duration   float64           `json:"duration"`   // 下载阶段耗时(秒)
}

// ExportReport 导出任务报告
type ExportReport struct {
	// 任务信息
	TaskID  string `json:"task_id"`
	SeedURL string `json:"seed_url"`
	Host    string `json:"host"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	Stats ExportStats `json:"stats"`

	// 资源结果
	Assets       []AssetResult     `json:"assets"`
	FailedAssets []FailedAssetInfo `json:"failed_assets"`

	// 未解析的样式表引用
	UnresolvedRefs []UnresolvedRef `json:"unresolved_refs"`

	// 内容重复资源组
	DuplicateAssets []DuplicateGroup `json:"duplicate_assets,omitempty"`

	// 输出路径
	OutputDir   string `json:"output_dir"`
	ArchivePath string `json:"archive_path,omitempty"` // zip归档路径 (启用时)

	// 配置快照
	Config ExportConfig `json:"config"`
}

// ToJSON 序列化为JSON
func (r *ExportReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *ExportReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
