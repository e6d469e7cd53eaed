package core

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/studiobloom/Reflow/internal/crawlers"
	"github.com/studiobloom/Reflow/internal/models"
	"github.com/studiobloom/Reflow/internal/utils"
)

// checkpointInterval 每处理多少个页面写一次检查点
const checkpointInterval = 10

// Exporter 导出任务协调器
// 按阶段顺序执行: 爬取 → 集合跟随 → 资源下载 → 样式表重写 → 链接重写 → 落盘归档
type Exporter struct {
	config  models.ExportConfig
	seedURL string
	host    string
	origin  string // scheme://host 形式的站点源
	taskID  string

	headerProvider models.HeaderProvider

	// 流水线组件
	canon      *crawlers.Canonicalizer
	frontier   *crawlers.Frontier
	fetcher    *crawlers.PageFetcher
	processor  *crawlers.PageProcessor
	aggregator *crawlers.CollectionAggregator
	downloader *crawlers.DownloadManager
	robots     *crawlers.RobotsGuard
	governor   *crawlers.DownloadGovernor
	writer     *OutputWriter

	// 已抓取页面 (URL → 文档),pageOrder保持抓取顺序
	pages     map[string]*models.PageDocument
	pageOrder []string

	// 样式表重写阶段收集的未解析引用
	unresolved []models.UnresolvedRef

	stats models.ExportStats

	// quiet 抑制进度条 (日志级别另行控制)
	quiet bool
}

// NewExporter 创建导出器
func NewExporter(seedURL string, cfg models.ExportConfig, outputBaseDir string, headerProvider models.HeaderProvider, quiet bool) (*Exporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := models.ValidateURL(seedURL); err != nil {
		return nil, err
	}

	canon, err := crawlers.NewCanonicalizer(seedURL)
	if err != nil {
		return nil, fmt.Errorf("解析种子URL失败: %w", err)
	}

	parsed, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("解析种子URL失败: %w", err)
	}

	host := canon.SeedHost()
	outputDir := filepath.Join(outputBaseDir, host)

	e := &Exporter{
		config:         cfg,
		seedURL:        seedURL,
		host:           host,
		origin:         fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host),
		taskID:         models.NewTaskID(),
		headerProvider: headerProvider,
		canon:          canon,
		frontier:       crawlers.NewFrontier(cfg.MaxDepth),
		processor:      crawlers.NewPageProcessor(canon),
		aggregator:     crawlers.NewCollectionAggregator(cfg.MergePolicy),
		writer:         NewOutputWriter(outputDir, host),
		pages:          make(map[string]*models.PageDocument),
		quiet:          quiet,
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	delay := time.Duration(cfg.Delay * float64(time.Second))
	e.fetcher = crawlers.NewPageFetcher(delay, timeout, headerProvider)

	if cfg.RespectRobots {
		e.robots = crawlers.NewRobotsGuard(&http.Client{Timeout: timeout}, userAgentOf(headerProvider))
	}

	e.governor = crawlers.NewDownloadGovernor(cfg.Workers)
	e.downloader = crawlers.NewDownloadManager(crawlers.DownloadManagerConfig{
		Workers:        cfg.Workers,
		Timeout:        timeout,
		OutputDir:      outputDir,
		HeaderProvider: headerProvider,
		Robots:         e.robots,
		Governor:       e.governor,
		ShowProgress:   !quiet,
	}, canon)

	return e, nil
}

// userAgentOf 读取头部提供者的有效User-Agent (robots检查用)
func userAgentOf(provider models.HeaderProvider) string {
	if provider == nil {
		return "*"
	}
	headers, err := provider.GetHeaders()
	if err != nil || headers.Get("User-Agent") == "" {
		return "*"
	}
	return headers.Get("User-Agent")
}

// OutputDir 输出目录路径
func (e *Exporter) OutputDir() string {
	return e.writer.OutputDir()
}

// Stats 当前统计信息
func (e *Exporter) Stats() models.ExportStats {
	return e.stats
}

// Export 执行完整导出任务
// 执行流程:
//  1. 覆盖保护检查 (任何网络请求之前)
//  2. 抓取种子页面 (不可达则致命失败,不产生任何输出)
//  3. 创建输出目录,顺序爬取同源页面
//  4. 跟随集合条目页面 (启用时)
//  5. 并行下载资源
//  6. 样式表与页面链接重写
//  7. 写出页面、CMS数据、报告与归档
func (e *Exporter) Export(ctx context.Context) (*models.ExportReport, error) {
	startTime := time.Now()

	utils.Infof("🚀 开始导出任务")
	utils.Infof("种子URL: %s", e.seedURL)
	utils.Infof("站点: %s", e.host)
	utils.Infof("输出目录: %s", e.writer.OutputDir())
	utils.Infof("任务ID: %s", e.taskID)

	// 覆盖保护: 在任何网络请求之前检查
	if !e.config.Resume {
		if err := e.writer.CheckClobber(e.config.Force); err != nil {
			return nil, err
		}
	}

	// 恢复检查点
	if e.config.Resume {
		e.loadCheckpoint()
	}

	// 种子抓取: 失败则整个任务中止,此时尚未写入任何输出
	seedDoc, err := e.fetchSeed(ctx)
	if err != nil {
		return nil, err
	}

	if err := e.writer.Setup(); err != nil {
		return nil, err
	}

	// 爬取阶段 (顺序,单线程)
	utils.Infof("🔍 开始爬取: 深度限制=%d (0=不限)", e.config.MaxDepth)
	if seedDoc != nil {
		e.handlePage(seedDoc)
	}
	if err := e.crawlLoop(ctx); err != nil {
		return nil, err
	}

	// 集合跟随: 从聚合的集合数据推导条目页面URL,再次排空边界
	if e.config.FollowCollections && e.aggregator.CollectionCount() > 0 {
		derived := e.aggregator.DerivePageURLs(e.origin)
		pushed := 0
		for _, pageURL := range derived {
			if e.frontier.Push(pageURL, 1, "collection") {
				pushed++
			}
		}
		if pushed > 0 {
			utils.Infof("📚 集合跟随: 新增%d个条目页面", pushed)
			if err := e.crawlLoop(ctx); err != nil {
				return nil, err
			}
		}
	}

	utils.Infof("✅ 爬取完成: %d个页面, %d个URL", e.stats.PagesFetched, e.frontier.VisitedCount())

	// 资源下载阶段 (唯一的并行区域)
	e.governor.Start(1 * time.Second)
	downloadReport := e.downloader.Drain(ctx)
	e.governor.Stop()

	e.stats.AssetsTotal = downloadReport.Total
	e.stats.AssetsCompleted = downloadReport.Completed
	e.stats.AssetsFailed = downloadReport.Failed
	e.stats.AssetsSkipped = downloadReport.Skipped
	e.stats.BytesDownloaded = downloadReport.Bytes

	e.saveCheckpoint()

	// 样式表重写阶段
	if e.config.RewriteStylesheets {
		e.rewriteStylesheets(downloadReport)
	}

	// 链接重写与页面落盘
	if err := e.writePages(); err != nil {
		return nil, err
	}

	// CMS数据
	collections, cmsPages := e.aggregator.Finalize()
	e.stats.Collections = len(collections)
	e.stats.CMSPages = len(cmsPages)
	if err := e.writer.WriteCMSData(collections, cmsPages); err != nil {
		return nil, err
	}

	e.stats.VisitedURLs = e.frontier.VisitedCount()
	e.stats.UnresolvedRefs = len(e.unresolved)
	e.stats.Duration = time.Since(startTime).Seconds()

	// 报告
	report := &models.ExportReport{
		TaskID:          e.taskID,
		SeedURL:         e.seedURL,
		Host:            e.host,
		StartTime:       startTime,
		EndTime:         time.Now(),
		Duration:        e.stats.Duration,
		Stats:           e.stats,
		Assets:          downloadReport.Results,
		FailedAssets:    downloadReport.Failures,
		UnresolvedRefs:  e.unresolved,
		DuplicateAssets: downloadReport.Duplicates,
		OutputDir:       e.writer.OutputDir(),
		Config:          e.config,
	}

	reporter := utils.NewReporter(e.writer.OutputDir())
	if err := reporter.GenerateReport(report); err != nil {
		utils.Warnf("生成报告失败: %v", err)
	}

	// 归档
	if e.config.ZipOutput {
		archivePath, err := e.writer.CreateArchive()
		if err != nil {
			return nil, err
		}
		report.ArchivePath = archivePath
	}

	// 导出成功,移除检查点
	e.removeCheckpoint()

	utils.Infof("✅ 导出任务完成")
	utils.Infof("页面: %d, 资源: %d/%d, 总耗时: %.2f秒",
		e.stats.PagesFetched, e.stats.AssetsCompleted, e.stats.AssetsTotal, e.stats.Duration)

	return report, nil
}

// fetchSeed 抓取种子页面
// 种子不在边界循环内抓取,保证失败时不创建输出目录
func (e *Exporter) fetchSeed(ctx context.Context) (*models.PageDocument, error) {
	canonical, ok := e.canon.CanonicalizePage(e.seedURL, "")
	if !ok {
		return nil, &models.SeedUnreachableError{
			SeedURL: e.seedURL,
			Cause:   fmt.Errorf("种子URL无法规范化"),
		}
	}

	// 恢复模式下种子可能已处理过
	if e.frontier.Visited(canonical) {
		utils.Infof("⏭️  种子页面已在检查点中,跳过")
		return nil, nil
	}

	if e.robots != nil && !e.robots.Allowed(canonical) {
		return nil, &models.SeedUnreachableError{
			SeedURL: e.seedURL,
			Cause:   fmt.Errorf("robots.txt禁止抓取种子页面"),
		}
	}

	result, err := e.fetcher.Fetch(ctx, canonical)
	if err != nil {
		return nil, &models.SeedUnreachableError{SeedURL: e.seedURL, Cause: err}
	}
	if !result.OK() {
		return nil, &models.SeedUnreachableError{
			SeedURL: e.seedURL,
			Cause:   fmt.Errorf("HTTP %d", result.StatusCode),
		}
	}

	e.frontier.MarkVisited(canonical)
	return e.newPageDocument(canonical, 0, result), nil
}

// crawlLoop 排空爬取边界
// 普通页面抓取失败只记录并继续,不中断任务
func (e *Exporter) crawlLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			utils.Warnf("⚠️  收到中止信号,停止爬取")
			e.saveCheckpoint()
			return ctx.Err()
		}

		item, ok := e.frontier.Pop(ctx)
		if !ok {
			return nil
		}

		if e.robots != nil && !e.robots.Allowed(item.URL) {
			utils.Debugf("robots.txt禁止,跳过页面: %s", item.URL)
			e.frontier.MarkProcessed(item.URL)
			continue
		}

		result, err := e.fetcher.Fetch(ctx, item.URL)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			utils.Warnf("页面抓取失败 [%s]: %v", item.URL, err)
			e.stats.PagesFailed++
			e.frontier.MarkProcessed(item.URL)
			continue
		}
		if !result.OK() {
			utils.Debugf("页面跳过 [%s]: HTTP %d", item.URL, result.StatusCode)
			e.stats.PagesFailed++
			e.frontier.MarkProcessed(item.URL)
			continue
		}

		e.frontier.MarkFetched(item.URL)
		doc := e.newPageDocument(item.URL, item.Depth, result)
		e.handlePage(doc)

		if e.stats.PagesFetched%checkpointInterval == 0 {
			e.saveCheckpoint()
		}
	}
}

// newPageDocument 从抓取结果构建页面文档
func (e *Exporter) newPageDocument(pageURL string, depth int, result *crawlers.FetchResult) *models.PageDocument {
	isHTML := strings.Contains(strings.ToLower(result.ContentType), "text/html")
	if result.ContentType == "" {
		// 无Content-Type时按内容嗅探
		isHTML = strings.Contains(strings.ToLower(string(result.Body[:min(len(result.Body), 512)])), "<html")
	}

	return &models.PageDocument{
		URL:         pageURL,
		Depth:       depth,
		Body:        result.Body,
		ContentType: result.ContentType,
		IsHTML:      isHTML,
		OutputPath:  PageOutputPath(pageURL),
		FetchedAt:   time.Now(),
	}
}

// handlePage 处理单个已抓取页面: 提取链接/资源/集合标记并分发
func (e *Exporter) handlePage(doc *models.PageDocument) {
	if doc.IsHTML {
		if err := e.processor.Process(doc); err != nil {
			utils.Warnf("页面处理失败 [%s]: %v", doc.URL, err)
		}

		for _, link := range doc.Links {
			e.frontier.Push(link, doc.Depth+1, doc.URL)
		}
		for _, asset := range doc.Assets {
			e.downloader.Enqueue(asset)
		}
		for _, marker := range doc.Markers {
			e.aggregator.Ingest(marker)
		}
	}

	e.pages[doc.URL] = doc
	e.pageOrder = append(e.pageOrder, doc.URL)
	e.frontier.MarkProcessed(doc.URL)
	e.stats.PagesFetched++

	utils.Debugf("📄 页面已处理: %s (深度=%d, 链接=%d, 资源=%d, 标记=%d)",
		doc.URL, doc.Depth, len(doc.Links), len(doc.Assets), len(doc.Markers))
}

// rewriteStylesheets 重写已下载样式表中的url()/@import引用
func (e *Exporter) rewriteStylesheets(report *models.DownloadReport) {
	rewriter := crawlers.NewStylesheetRewriter(e.canon)
	rewritten := 0

	for _, result := range report.Results {
		if result.Status != models.AssetCompleted {
			continue
		}
		if result.Kind != models.AssetStyle && !strings.HasSuffix(result.LocalPath, ".css") {
			continue
		}

		fullPath := filepath.Join(e.writer.OutputDir(), filepath.FromSlash(result.LocalPath))
		cssText, err := os.ReadFile(fullPath)
		if err != nil {
			utils.Warnf("读取样式表失败 [%s]: %v", fullPath, err)
			continue
		}

		updated, refs := rewriter.Rewrite(string(cssText), result.URL, result.LocalPath, e.downloader)
		e.unresolved = append(e.unresolved, refs...)

		if updated != string(cssText) {
			if err := os.WriteFile(fullPath, []byte(updated), 0644); err != nil {
				utils.Warnf("写回样式表失败 [%s]: %v", fullPath, err)
				continue
			}
			rewritten++
		}
	}

	utils.Infof("🎨 样式表重写完成: %d个文件, %d个未解析引用", rewritten, len(e.unresolved))
}

// writePages 重写页面链接并落盘
func (e *Exporter) writePages() error {
	// 页面URL → 输出相对路径 (链接重写的查找表)
	pagePaths := make(map[string]string, len(e.pages))
	for pageURL, doc := range e.pages {
		pagePaths[pageURL] = doc.OutputPath
	}

	rewriter := NewLinkRewriter(e.canon, e.downloader, pagePaths, e.config.RewriteStylesheets)

	for _, pageURL := range e.pageOrder {
		doc := e.pages[pageURL]

		body, refs := rewriter.RewritePage(doc)
		e.unresolved = append(e.unresolved, refs...)

		if err := e.writer.WritePage(doc.OutputPath, body); err != nil {
			return err
		}
	}

	utils.Infof("📝 页面已写出: %d个文件", len(e.pageOrder))
	return nil
}

// checkpointPath 检查点文件路径
func (e *Exporter) checkpointPath() string {
	return filepath.Join(e.writer.OutputDir(), models.CheckpointFilename(e.host))
}

// saveCheckpoint 保存当前进度
// 检查点写入失败不中断任务
func (e *Exporter) saveCheckpoint() {
	cp := &models.Checkpoint{
		TaskID:          e.taskID,
		SeedURL:         e.seedURL,
		VisitedPages:    e.frontier.VisitedURLs(),
		PendingPages:    e.frontier.PendingURLs(),
		CompletedAssets: e.downloader.CompletedURLs(),
		FailedAssets:    e.downloader.FailedURLs(),
		Stats:           e.stats,
		CreatedAt:       time.Now(),
		Config:          e.config,
	}

	if err := cp.SaveToFile(e.checkpointPath()); err != nil {
		utils.Warnf("保存检查点失败: %v", err)
	}
}

// loadCheckpoint 从检查点恢复进度
// 检查点缺失或损坏时从头开始,不算错误
func (e *Exporter) loadCheckpoint() {
	cp, err := models.LoadCheckpointFromFile(e.checkpointPath())
	if err != nil {
		if !os.IsNotExist(err) {
			utils.Warnf("加载检查点失败, 从头开始: %v", err)
		}
		return
	}

	if cp.SeedURL != e.seedURL {
		utils.Warnf("检查点种子URL不匹配 (%s), 从头开始", cp.SeedURL)
		return
	}

	// 页面重新抓取以重建内容,已下载资源直接跳过 (下载是恢复节省的大头)
	for _, pageURL := range cp.PendingPages {
		e.frontier.Push(pageURL, 1, "checkpoint")
	}
	for _, assetURL := range cp.CompletedAssets {
		e.downloader.MarkCompleted(assetURL)
	}

	utils.Infof("♻️  已从检查点恢复: %d个待抓取页面, %d个已下载资源",
		len(cp.PendingPages), len(cp.CompletedAssets))
}

// removeCheckpoint 导出成功后移除检查点
func (e *Exporter) removeCheckpoint() {
	if err := os.Remove(e.checkpointPath()); err != nil && !os.IsNotExist(err) {
		utils.Debugf("移除检查点失败: %v", err)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
