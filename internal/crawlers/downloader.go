package crawlers

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/studiobloom/Reflow/internal/models"
	"github.com/studiobloom/Reflow/internal/utils"
)

const (
	// assetFetchAttempts 资源下载最大尝试次数 (含首次)
	assetFetchAttempts = 3

	// assetBackoffBase 资源重试线性退避基数
	assetBackoffBase = 300 * time.Millisecond

	// workerIdleWait worker空转等待 (队列空但有在途任务时)
	workerIdleWait = 50 * time.Millisecond
)

// DownloadManagerConfig 下载管理器配置
type DownloadManagerConfig struct {
	// Workers worker池大小 (≥1)
	Workers int

	// Timeout 单次请求超时
	Timeout time.Duration

	// OutputDir 输出根目录 (资源写入 OutputDir/<LocalPath>)
	OutputDir string

	// HeaderProvider 请求头部提供者
	HeaderProvider models.HeaderProvider

	// Robots robots.txt检查器 (nil=不检查)
	Robots *RobotsGuard

	// Governor 资源调节器 (nil=不调节)
	Governor *DownloadGovernor

	// ShowProgress 是否显示进度条
	ShowProgress bool
}

// DownloadManager 资源下载管理器
// 职责: 用固定大小的worker池消费共享下载队列,抓取并落盘资源
//
// 去重集合(按规范化源URL)与结果列表是worker间唯一共享的可变状态,
// 全部由同一互斥锁保护;每个资源映射到固定的目标路径,
// worker间的完成顺序不影响最终输出
type DownloadManager struct {
	cfg    DownloadManagerConfig
	client *http.Client
	canon  *Canonicalizer

	mu sync.Mutex

	// seen 已入队的规范化URL (重复Enqueue为无操作)
	seen map[string]bool

	// completed 下载成功的规范化URL → 本地相对路径 (重写阶段的解析依据)
	completed map[string]string

	// queue 待下载队列 (FIFO)
	queue []models.AssetRef

	// active 在途下载数 (队列空且在途为零即排空完成)
	active int

	// closed 取消后拒绝新的入队
	closed bool

	// results 每个资源的下载结果 (完成顺序)
	results []models.AssetResult

	// hashGroups 内容哈希 → 源URL列表 (重复内容报告)
	hashGroups map[string][]string
	hashSizes  map[string]int64

	bytesDownloaded int64

	bar *progressbar.ProgressBar
}

// NewDownloadManager 创建下载管理器
func NewDownloadManager(cfg DownloadManagerConfig, canon *Canonicalizer) *DownloadManager {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	return &DownloadManager{
		cfg:   cfg,
		canon: canon,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true,
				},
				MaxIdleConnsPerHost: cfg.Workers,
			},
			Timeout: cfg.Timeout,
		},
		seen:       make(map[string]bool),
		completed:  make(map[string]string),
		hashGroups: make(map[string][]string),
		hashSizes:  make(map[string]int64),
	}
}

// Enqueue 资源入队
// 按规范化源URL幂等: 已见过的URL重复入队为无操作
// 返回true表示本次入队被接受
func (dm *DownloadManager) Enqueue(ref models.AssetRef) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.closed || dm.seen[ref.URL] {
		return false
	}

	dm.seen[ref.URL] = true
	dm.queue = append(dm.queue, ref)

	if dm.bar != nil {
		dm.bar.ChangeMax(dm.bar.GetMax() + 1)
	}
	return true
}

// MarkCompleted 将URL登记为先前运行已完成 (检查点恢复)
// 资源不再下载,但重写阶段仍可解析其本地路径
func (dm *DownloadManager) MarkCompleted(canonicalURL string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.seen[canonicalURL] {
		return
	}
	dm.seen[canonicalURL] = true
	dm.completed[canonicalURL] = models.AssetLocalPath(canonicalURL)
}

// QueuedCount 已入队资源总数(去重后)
func (dm *DownloadManager) QueuedCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.seen)
}

// ResolveLocal 实现AssetResolver: 仅下载成功的资源可解析
func (dm *DownloadManager) ResolveLocal(canonicalURL string) (string, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	path, ok := dm.completed[canonicalURL]
	return path, ok
}

// CompletedURLs 下载成功的URL列表 (排序后,用于检查点)
func (dm *DownloadManager) CompletedURLs() []string {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	urls := make([]string, 0, len(dm.completed))
	for u := range dm.completed {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// FailedURLs 重试耗尽后失败的URL列表 (排序后,用于检查点)
func (dm *DownloadManager) FailedURLs() []string {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	var urls []string
	for _, result := range dm.results {
		if result.Status == models.AssetFailed {
			urls = append(urls, result.URL)
		}
	}
	sort.Strings(urls)
	return urls
}

// Close 拒绝后续入队 (收到外部中止信号时调用)
func (dm *DownloadManager) Close() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.closed = true
}

// Drain 排空下载队列
// 阻塞直到队列为空且所有在途下载结束 (样式表落盘时提取的嵌套资源
// 会在同一次排空内继续下载),返回每个资源的结果报告
//
// 取消语义: context取消后worker不再领取新任务,在途下载依靠
// 单请求超时自行结束,不强杀
func (dm *DownloadManager) Drain(ctx context.Context) *models.DownloadReport {
	start := time.Now()

	dm.mu.Lock()
	pending := len(dm.queue)
	if dm.cfg.ShowProgress && pending > 0 {
		dm.bar = utils.NewProgressBar(pending, "下载资源")
	}
	dm.mu.Unlock()

	utils.Infof("⬇️  开始下载资源: %d个待下载, %d个worker", pending, dm.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < dm.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			dm.workerLoop(ctx, workerID)
		}(i)
	}
	wg.Wait()

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.bar != nil {
		_ = dm.bar.Finish()
		dm.bar = nil
		fmt.Println()
	}

	report := &models.DownloadReport{
		Total:    len(dm.seen),
		Bytes:    dm.bytesDownloaded,
		Results:  append([]models.AssetResult(nil), dm.results...),
		Duration: time.Since(start).Seconds(),
	}

	for _, result := range dm.results {
		switch result.Status {
		case models.AssetCompleted:
			report.Completed++
		case models.AssetFailed:
			report.Failed++
			report.Failures = append(report.Failures, models.FailedAssetInfo{
				URL:       result.URL,
				ErrorType: classifyAssetError(result.ErrorMsg),
				ErrorMsg:  result.ErrorMsg,
				Retries:   result.Retries,
			})
		case models.AssetSkipped:
			report.Skipped++
		}
	}

	// 内容重复组 (相同SHA-256,不同源URL)
	hashes := make([]string, 0, len(dm.hashGroups))
	for hash, urls := range dm.hashGroups {
		if len(urls) > 1 {
			hashes = append(hashes, hash)
		}
	}
	sort.Strings(hashes)
	for _, hash := range hashes {
		urls := append([]string(nil), dm.hashGroups[hash]...)
		sort.Strings(urls)
		report.Duplicates = append(report.Duplicates, models.DuplicateGroup{
			Hash: hash,
			URLs: urls,
			Size: dm.hashSizes[hash],
		})
	}

	utils.Infof("✅ 资源下载完成: 成功 %d, 失败 %d, 跳过 %d, 共 %.2f MB",
		report.Completed, report.Failed, report.Skipped,
		float64(report.Bytes)/(1024*1024))

	return report
}

// workerLoop 单个worker的消费循环
// 队列空且无在途任务时退出;被调节器限制的worker暂缓领取新任务
func (dm *DownloadManager) workerLoop(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			dm.Close()
			return
		}

		dm.mu.Lock()
		if len(dm.queue) == 0 {
			if dm.active == 0 {
				dm.mu.Unlock()
				return
			}
			dm.mu.Unlock()
			time.Sleep(workerIdleWait)
			continue
		}
		dm.mu.Unlock()

		// 资源调节: 序号超出当前允许数的worker暂缓领取
		if dm.cfg.Governor != nil && workerID >= dm.cfg.Governor.AllowedWorkers() {
			time.Sleep(200 * time.Millisecond)
			continue
		}

		dm.mu.Lock()
		if len(dm.queue) == 0 {
			dm.mu.Unlock()
			continue
		}
		ref := dm.queue[0]
		dm.queue = dm.queue[1:]
		dm.active++
		dm.mu.Unlock()

		dm.processAsset(ref)

		dm.mu.Lock()
		dm.active--
		if dm.bar != nil {
			_ = dm.bar.Add(1)
		}
		dm.mu.Unlock()
	}
}

// processAsset 下载并落盘单个资源
func (dm *DownloadManager) processAsset(ref models.AssetRef) {
	result := models.AssetResult{
		AssetRef:     ref,
		DownloadedAt: time.Now(),
	}

	// robots检查
	if dm.cfg.Robots != nil && !dm.cfg.Robots.Allowed(ref.URL) {
		utils.Debugf("robots.txt禁止,跳过资源: %s", ref.URL)
		result.Status = models.AssetSkipped
		result.ErrorMsg = "robots.txt禁止"
		dm.record(result)
		return
	}

	body, contentType, retries, err := dm.fetchAsset(ref.URL)
	result.Retries = retries
	if err != nil {
		utils.Warnf("资源下载失败 [%s]: %v", ref.URL, err)
		result.Status = models.AssetFailed
		result.ErrorMsg = err.Error()
		dm.record(result)
		return
	}

	// 落盘
	fullPath := filepath.Join(dm.cfg.OutputDir, filepath.FromSlash(ref.LocalPath))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		result.Status = models.AssetFailed
		result.ErrorMsg = fmt.Sprintf("创建目录失败: %v", err)
		dm.record(result)
		return
	}
	if err := os.WriteFile(fullPath, body, 0644); err != nil {
		result.Status = models.AssetFailed
		result.ErrorMsg = fmt.Sprintf("写入文件失败: %v", err)
		dm.record(result)
		return
	}

	hash := fmt.Sprintf("%x", sha256.Sum256(body))
	result.Status = models.AssetCompleted
	result.Size = int64(len(body))
	result.Hash = hash
	result.DownloadedAt = time.Now()
	dm.record(result)

	utils.Debugf("📥 资源下载成功: %s (%d bytes)", ref.URL, len(body))

	// 样式表: 提取内嵌引用(字体、背景图),在同一次排空内继续下载
	if isStylesheet(ref, contentType) {
		for _, nested := range ExtractStylesheetRefs(string(body), ref.URL, dm.canon) {
			dm.Enqueue(models.NewAssetRef(nested, KindForAssetURL(nested)))
		}
	}
}

// record 登记下载结果 (互斥锁保护的共享状态)
func (dm *DownloadManager) record(result models.AssetResult) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.results = append(dm.results, result)
	if result.Status == models.AssetCompleted {
		dm.completed[result.URL] = result.LocalPath
		dm.bytesDownloaded += result.Size
		dm.hashGroups[result.Hash] = append(dm.hashGroups[result.Hash], result.URL)
		dm.hashSizes[result.Hash] = result.Size
	}
}

// fetchAsset 抓取资源,瞬时错误按线性退避重试
// 返回(响应体, Content-Type, 重试次数, 错误)
func (dm *DownloadManager) fetchAsset(assetURL string) ([]byte, string, int, error) {
	var lastErr error

	for attempt := 1; attempt <= assetFetchAttempts; attempt++ {
		body, contentType, err := dm.fetchOnce(assetURL)
		if err == nil {
			return body, contentType, attempt - 1, nil
		}

		lastErr = err
		if !models.IsTransientFetch(err) {
			return nil, "", attempt - 1, err
		}

		if attempt < assetFetchAttempts {
			time.Sleep(time.Duration(attempt) * assetBackoffBase)
		}
	}

	return nil, "", assetFetchAttempts - 1, lastErr
}

// fetchOnce 单次资源请求
func (dm *DownloadManager) fetchOnce(assetURL string) ([]byte, string, error) {
	req, err := http.NewRequest(http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, "", &models.FetchError{URL: assetURL, Attempts: 1, Cause: err}
	}

	if dm.cfg.HeaderProvider != nil {
		headers, err := dm.cfg.HeaderProvider.GetHeaders()
		if err == nil {
			for name, values := range headers {
				if len(values) > 0 {
					req.Header.Set(name, values[0])
				}
			}
		}
	}

	resp, err := dm.client.Do(req)
	if err != nil {
		return nil, "", &models.FetchError{
			URL:       assetURL,
			Attempts:  1,
			Transient: isTransientNetErr(err),
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &models.FetchError{
			URL:        assetURL,
			StatusCode: resp.StatusCode,
			Attempts:   1,
		}
	}

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &models.FetchError{
			URL:       assetURL,
			Attempts:  1,
			Transient: true,
			Cause:     err,
		}
	}

	body := rawBody
	if encoding := resp.Header.Get("Content-Encoding"); encoding != "" {
		if decompressed, decErr := decompressBody(encoding, rawBody); decErr == nil {
			body = decompressed
		}
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// isStylesheet 判断资源是否为样式表
func isStylesheet(ref models.AssetRef, contentType string) bool {
	if ref.Kind == models.AssetStyle {
		return true
	}
	if strings.Contains(strings.ToLower(contentType), "text/css") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(ref.LocalPath), ".css")
}

// classifyAssetError 失败原因归类 (报告用)
func classifyAssetError(errMsg string) string {
	lower := strings.ToLower(errMsg)
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline"):
		return "timeout"
	case strings.Contains(lower, "http "), strings.Contains(errMsg, "HTTP"):
		return "http_error"
	case strings.Contains(lower, "目录"), strings.Contains(lower, "文件"):
		return "write_error"
	default:
		return "network_error"
	}
}
