package core

import (
	"context"
	"fmt"
	"time"

	"github.com/studiobloom/Reflow/internal/models"
	"github.com/studiobloom/Reflow/internal/utils"
)

// BatchExporter 批量导出器
// 逐个导出URL列表中的站点,每个站点写入独立的输出目录
type BatchExporter struct {
	config         models.ExportConfig
	outputDir      string
	batchDelay     time.Duration
	continueOnErr  bool
	headerProvider models.HeaderProvider
	quiet          bool
}

// BatchResult 单个站点的导出结果
type BatchResult struct {
	URL         string
	Success     bool
	Error       error
	Stats       models.ExportStats
	ProcessedAt time.Time
	Duration    float64
}

// BatchSummary 批量导出摘要
type BatchSummary struct {
	TotalURLs     int
	SuccessCount  int
	FailCount     int
	TotalPages    int
	TotalAssets   int
	TotalSize     int64
	TotalDuration float64
	Results       []BatchResult
}

// NewBatchExporter 创建批量导出器
func NewBatchExporter(config models.ExportConfig, outputDir string, batchDelay int, continueOnErr bool, headerProvider models.HeaderProvider, quiet bool) *BatchExporter {
	return &BatchExporter{
		config:         config,
		outputDir:      outputDir,
		batchDelay:     time.Duration(batchDelay) * time.Second,
		continueOnErr:  continueOnErr,
		headerProvider: headerProvider,
		quiet:          quiet,
	}
}

// ExportBatch 批量导出URL列表
func (be *BatchExporter) ExportBatch(ctx context.Context, urls []string) (*BatchSummary, error) {
	utils.Infof("🚀 开始批量导出: %d个URL", len(urls))

	summary := &BatchSummary{
		TotalURLs: len(urls),
		Results:   make([]BatchResult, 0, len(urls)),
	}

	startTime := time.Now()

	for i, seedURL := range urls {
		if ctx.Err() != nil {
			utils.Warn("批量导出中止 (收到中止信号)")
			break
		}

		utils.Infof("\n==================== [%d/%d] ====================", i+1, len(urls))
		utils.Infof("种子URL: %s", seedURL)

		result := be.exportSingle(ctx, seedURL)
		summary.Results = append(summary.Results, result)

		if result.Success {
			summary.SuccessCount++
			summary.TotalPages += result.Stats.PagesFetched
			summary.TotalAssets += result.Stats.AssetsCompleted
			summary.TotalSize += result.Stats.BytesDownloaded
		} else {
			summary.FailCount++
			utils.Errorf("❌ 导出失败: %v", result.Error)

			if !be.continueOnErr {
				utils.Warn("批量导出中止 (--continue-on-error=false)")
				break
			}
		}

		// 批量延迟(最后一个URL不需要延迟)
		if i < len(urls)-1 && be.batchDelay > 0 {
			utils.Debugf("等待 %.0f 秒后处理下一个URL...", be.batchDelay.Seconds())
			select {
			case <-ctx.Done():
			case <-time.After(be.batchDelay):
			}
		}
	}

	summary.TotalDuration = time.Since(startTime).Seconds()

	be.printSummary(summary)

	return summary, nil
}

// exportSingle 导出单个站点
func (be *BatchExporter) exportSingle(ctx context.Context, seedURL string) BatchResult {
	result := BatchResult{
		URL:         seedURL,
		ProcessedAt: time.Now(),
	}

	startTime := time.Now()

	exporter, err := NewExporter(seedURL, be.config, be.outputDir, be.headerProvider, be.quiet)
	if err != nil {
		result.Error = fmt.Errorf("创建导出器失败: %w", err)
		result.Duration = time.Since(startTime).Seconds()
		return result
	}

	if _, err := exporter.Export(ctx); err != nil {
		result.Error = err
		result.Stats = exporter.Stats()
		result.Duration = time.Since(startTime).Seconds()
		return result
	}

	result.Success = true
	result.Stats = exporter.Stats()
	result.Duration = time.Since(startTime).Seconds()

	return result
}

// printSummary 打印批量导出摘要
func (be *BatchExporter) printSummary(summary *BatchSummary) {
	utils.Info("\n==================================================")
	utils.Info("📊 批量导出摘要")
	utils.Info("==================================================")
	utils.Infof("总URL数: %d", summary.TotalURLs)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("📄 总页面数: %d", summary.TotalPages)
	utils.Infof("📦 总资源数: %d", summary.TotalAssets)
	utils.Infof("📦 总大小: %.2f MB", float64(summary.TotalSize)/(1024*1024))
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	if summary.FailCount > 0 {
		utils.Warn("\n失败的URL:")
		for _, result := range summary.Results {
			if !result.Success {
				utils.Warnf("  - %s: %v", result.URL, result.Error)
			}
		}
	}
}
