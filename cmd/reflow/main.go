package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/studiobloom/Reflow/internal/core"
	"github.com/studiobloom/Reflow/internal/models"
	"github.com/studiobloom/Reflow/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	quiet      bool
	logLevel   string
	logFile    string

	// HTTP头部参数
	headers        []string // 自定义HTTP请求头
	validateConfig bool     // 验证配置文件
	userAgent      string   // 自定义User-Agent

	// 导出参数
	targetURL     string
	urlFile       string
	workers       int
	delay         float64
	timeout       int
	maxDepth      int
	noCMS         bool
	noCSSRewrite  bool
	noZip         bool
	respectRobots bool
	resume        bool
	force         bool
	mergePolicy   string
	outputDir     string

	// 批量处理参数
	batchDelay      int
	continueOnError bool
)

var rootCmd = &cobra.Command{
	Use:   "reflow [url]",
	Short: "动态渲染站点的静态镜像导出工具",
	Long: `Reflow - 把在线站点导出为自包含的静态镜像

从种子URL开始同源爬取,下载页面引用的资源,重写链接使镜像离线可浏览:
  • 同源广度优先爬取,礼貌延迟可调
  • 资源并行下载与内容去重
  • CMS集合检测与条目页面跟随
  • 样式表与页面链接本地化重写
  • 断点续传与批量URL处理
  • 自定义HTTP请求头

使用示例:
  # 导出单个站点
  reflow https://example.com

  # 提高下载并发,跳过zip归档
  reflow -u https://example.com --workers 10 --no-zip

  # 自定义请求头
  reflow -u https://example.com -H "Authorization: Bearer token"

  # 验证头部配置文件
  reflow --validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	Args:    cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		appConfig, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 初始化日志系统
		logConfig := utils.LogConfig{
			Level:      appConfig.Logging.Level,
			LogDir:     appConfig.Logging.LogDir,
			LogFile:    logFile,
			MaxSize:    appConfig.Logging.Rotation.MaxSize,
			MaxBackups: appConfig.Logging.Rotation.MaxBackups,
			MaxAge:     appConfig.Logging.Rotation.MaxAge,
			Compress:   appConfig.Logging.Rotation.Compress,
		}

		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		if verbose {
			logConfig.Level = "debug"
		}
		if quiet {
			// 日志文件仍记录全量,仅控制台收敛到警告以上
			logConfig.ConsoleLevel = "warn"
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// 信号处理: Ctrl+C取消context,各阶段自行收尾
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			utils.Warnf("\n收到中断信号: %v, 正在优雅关闭...", sig)
			cancel()
		}()

		appConfig, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		headerManager, err := core.NewHeaderManager(configFile, headers, userAgent)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		// 验证配置模式
		if validateConfig {
			utils.Info("🔍 验证HTTP头部配置...")
			if err := headerManager.LoadConfig(); err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			if err := headerManager.Validate(); err != nil {
				return fmt.Errorf("配置验证失败: %w", err)
			}

			safeHeaders := headerManager.GetSafeHeaders()
			utils.Info("✅ 配置验证通过!")
			utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
			for name, value := range safeHeaders {
				utils.Infof("  %s: %s", name, value)
			}
			return nil
		}

		// 位置参数等价于 --url
		if targetURL == "" && len(args) > 0 {
			targetURL = args[0]
		}

		if targetURL == "" && urlFile == "" {
			return cmd.Help()
		}

		// 无协议的URL补全https后再验证
		if targetURL != "" {
			normalized, err := NormalizeURL(targetURL)
			if err != nil {
				return fmt.Errorf("无效的种子URL: %w", err)
			}
			targetURL = normalized
		}

		if err := ValidateFlags(targetURL, workers, delay, timeout, maxDepth, mergePolicy); err != nil {
			return err
		}

		// 配置文件打底,命令行覆盖
		exportConfig := appConfig.ExportConfig()
		exportConfig.Workers = workers
		exportConfig.Delay = delay
		exportConfig.Timeout = timeout
		exportConfig.MaxDepth = maxDepth
		exportConfig.FollowCollections = exportConfig.FollowCollections && !noCMS
		exportConfig.RewriteStylesheets = exportConfig.RewriteStylesheets && !noCSSRewrite
		exportConfig.ZipOutput = exportConfig.ZipOutput && !noZip
		exportConfig.RespectRobots = exportConfig.RespectRobots || respectRobots
		exportConfig.Resume = resume
		exportConfig.Force = force
		exportConfig.UserAgent = userAgent
		if mergePolicy != "" {
			exportConfig.MergePolicy = models.MergePolicy(mergePolicy)
		}

		// 批量处理模式
		if urlFile != "" {
			urls, err := utils.ReadURLsFromFile(urlFile)
			if err != nil {
				return fmt.Errorf("读取URL文件失败: %w", err)
			}

			batchExporter := core.NewBatchExporter(exportConfig, outputDir, batchDelay, continueOnError, headerManager, quiet)
			summary, err := batchExporter.ExportBatch(ctx, urls)
			if err != nil {
				return fmt.Errorf("批量导出失败: %w", err)
			}
			if summary.FailCount > 0 && summary.SuccessCount == 0 {
				return fmt.Errorf("批量导出全部失败 (%d个URL)", summary.FailCount)
			}

			utils.Info("✨ 批量导出任务完成!")
			return nil
		}

		// 单URL导出模式
		exporter, err := core.NewExporter(targetURL, exportConfig, outputDir, headerManager, quiet)
		if err != nil {
			return fmt.Errorf("创建导出器失败: %w", err)
		}

		report, err := exporter.Export(ctx)
		if err != nil {
			return fmt.Errorf("导出失败: %w", err)
		}

		// 显示统计结果
		// 个别资源下载失败不算任务失败,退出码仍为0
		stats := report.Stats
		fmt.Println("\n==================================================")
		fmt.Println("📊 导出统计")
		fmt.Println("==================================================")
		fmt.Printf("✅ 抓取页面: %d\n", stats.PagesFetched)
		fmt.Printf("✅ 下载资源: %d\n", stats.AssetsCompleted)
		fmt.Printf("❌ 失败资源: %d\n", stats.AssetsFailed)
		fmt.Printf("📚 CMS集合: %d (条目页面: %d)\n", stats.Collections, stats.CMSPages)
		fmt.Printf("🔗 未解析引用: %d\n", stats.UnresolvedRefs)
		fmt.Printf("📦 下载大小: %.2f MB\n", float64(stats.BytesDownloaded)/(1024*1024))
		fmt.Printf("⏱️  总耗时: %.2f秒\n", stats.Duration)
		fmt.Printf("📁 输出目录: %s\n", report.OutputDir)
		if report.ArchivePath != "" {
			fmt.Printf("🗜️  归档文件: %s\n", report.ArchivePath)
		}
		fmt.Println("==================================================")

		utils.Info("✨ 导出任务完成!")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Reflow %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
		fmt.Println("站点静态镜像导出工具")
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式 (debug级别)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "安静模式 (控制台仅输出警告和错误)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "日志文件路径 (默认: logs/reflow.log)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "自定义User-Agent")

	// 导出参数
	rootCmd.Flags().StringVarP(&targetURL, "url", "u", "", "种子URL (必需,除非使用 --url-file 或位置参数)")
	rootCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "包含URL列表的文件路径")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 5, "资源下载并发数 (1-100)")
	rootCmd.Flags().Float64Var(&delay, "delay", 0.2, "页面抓取间隔(秒, 0-60)")
	rootCmd.Flags().IntVar(&timeout, "timeout", 30, "单次请求超时(秒, 1-300)")
	rootCmd.Flags().IntVarP(&maxDepth, "max-depth", "d", 0, "最大爬取深度 (0=不限制)")
	rootCmd.Flags().BoolVar(&noCMS, "no-cms", false, "禁用CMS集合检测与跟随")
	rootCmd.Flags().BoolVar(&noCSSRewrite, "no-css-rewrite", false, "禁用样式表引用重写")
	rootCmd.Flags().BoolVar(&noZip, "no-zip", false, "禁用zip归档")
	rootCmd.Flags().BoolVar(&respectRobots, "respect-robots", false, "遵守robots.txt")
	rootCmd.Flags().BoolVar(&resume, "resume", false, "从检查点恢复")
	rootCmd.Flags().BoolVar(&force, "force", false, "允许覆盖非空输出目录")
	rootCmd.Flags().StringVar(&mergePolicy, "merge-policy", "", "集合字段合并策略 (most_complete|last_write_wins)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "output", "输出目录")

	// 批量处理参数
	rootCmd.Flags().IntVar(&batchDelay, "batch-delay", 1, "批量处理URL间延迟(秒)")
	rootCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "遇到错误继续处理")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
