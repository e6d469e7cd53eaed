package models

import "time"

// PageState 页面在边界(Frontier)中的状态
// 状态机: discovered → queued → fetched → processed (终态)
type PageState string

const (
	PageDiscovered PageState = "discovered" // 已发现,尚未判定是否入队
	PageQueued     PageState = "queued"     // 已入队(同时写入visited集合)
	PageFetched    PageState = "fetched"    // 已抓取,等待处理
	PageProcessed  PageState = "processed"  // 已处理完成 (终态)
)

// PageItem 表示边界队列中的一个页面项
// 用途:
//   - 在channel中传递规范化URL和深度信息
//   - 深度仅用于诊断与可选的maxDepth限制,不影响FIFO顺序
type PageItem struct {
	// URL 规范化后的完整URL字符串
	URL string

	// Depth 发现深度
	//   - 0: 种子URL
	//   - 1: 从种子页面发现的链接
	//   - 以此类推
	Depth int

	// SourceURL 发现此URL的源页面(可选,用于诊断)
	SourceURL string
}

// PageDocument 一个已抓取页面及其提取结果
// 爬取阶段结束后只读,供重写阶段使用
type PageDocument struct {
	// URL 规范化的页面URL
	URL string

	// Depth 发现深度
	Depth int

	// Body 原始响应体 (重写阶段之前不修改)
	Body []byte

	// ContentType HTTP Content-Type
	ContentType string

	// IsHTML 是否为HTML文档 (非HTML页面原样保存,不做处理)
	IsHTML bool

	// OutputPath 输出树内的相对路径 (抓取时确定,之后不变)
	OutputPath string

	// Links 页面内发现的超链接 (规范化后,保持文档顺序)
	Links []string

	// Assets 页面内发现的资源引用 (保持文档顺序)
	Assets []AssetRef

	// Markers 页面内发现的集合标记 (保持文档顺序)
	Markers []CollectionMarker

	// FetchedAt 抓取时间
	FetchedAt time.Time
}
