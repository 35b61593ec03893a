package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/RecoveryAshes/sitesnap/internal/analysis"
	"github.com/RecoveryAshes/sitesnap/internal/core"
	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/sources"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"github.com/spf13/cobra"
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
	logLevel   string

	// HTTP头部参数
	headers        []string
	validateConfig bool

	// 快照参数
	targetURL  string
	urlFile    string
	outputDir  string
	sourceKind string
	htmlFile   string
	waitTime   int
	headless   bool
	workers    int
	timeout    int
	clean      bool
	mergeJS    bool
	overwrite  bool
	useLLM     bool

	// 批量处理参数
	batchDelay      int
	continueOnError bool
)

// appConfig 在 PersistentPreRunE 中加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "sitesnap",
	Short: "单页离线快照工具",
	Long: `sitesnap - 把单个网页保存为可离线浏览的静态项目

支持:
  • 无头浏览器 / 静态抓取 / 本地HTML 三种页面源
  • 前端框架识别与复杂度评估 (可选LLM二次分析)
  • 样式表嵌套资源追踪与本地化
  • 样式合并到 styles.css, 内联脚本合并到 script.js
  • 清理模式移除统计追踪脚本
  • 批量URL处理

示例:
  sitesnap -u https://example.com
  sitesnap -u https://example.com --source static --clean -o out/example
  sitesnap --source file --file saved.html -u https://example.com/
  sitesnap -f urls.txt --batch-delay 2
  sitesnap detect -u https://example.com

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		appConfig = config

		logConfig := config.LogConfig()
		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		// detect 的JSON输出在stdout上
		if cmd.Name() == detectCmd.Name() {
			logConfig.Quiet = true
		}
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}
		return nil
	},
	RunE: runSnapshot,
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "只检测页面使用的前端框架, 不下载资源",
	RunE:  runDetect,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sitesnap %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	headerManager, err := core.NewHeaderManager(appConfig.Headers, headers)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}

	if validateConfig {
		return printHeaderCheck(headerManager)
	}

	// 如果没有提供任何参数,显示帮助信息
	if targetURL == "" && urlFile == "" {
		return cmd.Help()
	}

	cfg := snapshotConfig(cmd)
	if targetURL != "" {
		if targetURL, err = NormalizeURL(targetURL); err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
	}
	if err := ValidateFlags(targetURL, urlFile, htmlFile, cfg); err != nil {
		return err
	}

	snapshotter, err := newSnapshotter(cfg, headerManager)
	if err != nil {
		return err
	}

	if urlFile != "" {
		urls, err := utils.ReadURLsFromFile(urlFile)
		if err != nil {
			return fmt.Errorf("读取URL文件失败: %w", err)
		}

		delay, keepGoing := appConfig.Batch.Delay, appConfig.Batch.ContinueOnError
		if cmd.Flags().Changed("batch-delay") {
			delay = batchDelay
		}
		if cmd.Flags().Changed("continue-on-error") {
			keepGoing = continueOnError
		}

		batch := core.NewBatchSnapshotter(snapshotter, baseOutputDir(cmd), delay, keepGoing)
		summary, err := batch.RunBatch(ctx, urls)
		if err != nil {
			return fmt.Errorf("批量快照中断: %w", err)
		}
		if summary.FailCount > 0 && summary.SuccessCount == 0 {
			return fmt.Errorf("全部 %d 个URL快照失败", summary.FailCount)
		}
		utils.Info("✨ 批量快照任务完成!")
		return nil
	}

	out := outputDir
	if !cmd.Flags().Changed("output") {
		out = filepath.Join(appConfig.Output.BaseDir, utils.URLSlug(targetURL))
	}

	report, err := snapshotter.Run(ctx, targetURL, out)
	if err != nil {
		return fmt.Errorf("快照失败: %w", err)
	}
	printStats(report)
	utils.Info("✨ 快照任务完成!")
	return nil
}

func runDetect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if targetURL == "" {
		return fmt.Errorf("detect 需要通过 -u 指定目标URL")
	}
	normalized, err := NormalizeURL(targetURL)
	if err != nil {
		return fmt.Errorf("无效的目标URL: %w", err)
	}

	headerManager, err := core.NewHeaderManager(appConfig.Headers, headers)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	cfg := snapshotConfig(cmd)
	if err := ValidateFlags(normalized, "", htmlFile, cfg); err != nil {
		return err
	}

	snapshotter, err := newSnapshotter(cfg, headerManager)
	if err != nil {
		return err
	}
	result, err := snapshotter.Detect(ctx, normalized)
	if err != nil {
		return fmt.Errorf("检测失败: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化检测结果失败: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// snapshotConfig 以配置文件为基础, 用显式指定的命令行参数覆盖
func snapshotConfig(cmd *cobra.Command) models.SnapshotConfig {
	cfg := appConfig.SnapshotConfig()
	flags := cmd.Flags()

	if flags.Changed("source") {
		cfg.Source = models.SourceKind(sourceKind)
	}
	if htmlFile != "" && !flags.Changed("source") {
		cfg.Source = models.SourceFile
	}
	if flags.Changed("wait") {
		cfg.WaitTime = waitTime
	}
	if flags.Changed("headless") {
		cfg.Headless = headless
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("timeout") {
		cfg.AssetTimeout = timeout
	}
	if flags.Changed("clean") {
		cfg.Clean = clean
	}
	if flags.Changed("merge-scripts") {
		cfg.ConsolidateScripts = mergeJS
	}
	if flags.Changed("overwrite") {
		cfg.Overwrite = overwrite
	}
	return cfg
}

func newSnapshotter(cfg models.SnapshotConfig, headerManager *core.HeaderManager) (*core.Snapshotter, error) {
	source, err := sources.NewSource(cfg.Source, cfg, headerManager, htmlFile)
	if err != nil {
		return nil, err
	}

	opts := []core.Option{core.WithGenerator("sitesnap " + Version)}
	llmCfg := appConfig.LLM
	if useLLM {
		llmCfg.Enabled = true
	}
	if llmCfg.Enabled {
		if llmCfg.APIKey == "" {
			utils.Warn("⚠️ 已启用LLM分析但未配置 llm.api_key (可用环境变量 SITESNAP_LLM_API_KEY)")
		}
		utils.Infof("🤖 LLM分析: %s (%s)", llmCfg.Model, llmCfg.BaseURL)
		opts = append(opts, core.WithAnalyzer(analysis.NewLLMAnalyzer(llmCfg, nil)))
	}
	return core.NewSnapshotter(cfg, source, headerManager, opts...), nil
}

func baseOutputDir(cmd *cobra.Command) string {
	if cmd.Flags().Changed("output") {
		return outputDir
	}
	return appConfig.Output.BaseDir
}

func printHeaderCheck(headerManager *core.HeaderManager) error {
	utils.Info("🔍 验证HTTP头部配置...")
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	safeHeaders := headerManager.GetSafeHeaders()
	utils.Info("✅ 配置验证通过!")
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
	for _, line := range safeHeaders {
		utils.Infof("  %s", line)
	}
	return nil
}

func printStats(report *models.RunReport) {
	stats := report.Stats
	fmt.Println("\n==================================================")
	fmt.Println("📊 快照统计")
	fmt.Println("==================================================")
	fmt.Printf("🔍 框架: %s (复杂度 %s)\n", report.Detection.PrimaryName(), report.Detection.Complexity)
	fmt.Printf("✅ 已下载资源: %d\n", stats.Fetched)
	fmt.Printf("✅ 内嵌资源: %d\n", stats.Embedded)
	fmt.Printf("❌ 失败资源: %d\n", stats.Failed)
	for _, f := range report.Failures {
		fmt.Printf("   - %s/%s: %d\n", f.Category, f.Reason, f.Count)
	}
	if report.Rewrite != nil {
		fmt.Printf("🔗 本地化引用: %d (回退绝对地址 %d)\n", report.Rewrite.LocalRefs, report.Rewrite.FallbackRefs)
	}
	if report.Emit != nil {
		fmt.Printf("🎨 合并样式块: %d\n", report.Emit.StylesConsolidated)
		fmt.Printf("📜 合并内联脚本: %d\n", report.Emit.ScriptsInlined)
		if report.Emit.TrackersRemoved > 0 {
			fmt.Printf("🧹 移除追踪元素: %d\n", report.Emit.TrackersRemoved)
		}
	}
	fmt.Printf("📦 总大小: %.2f MB\n", float64(stats.TotalBytes)/(1024*1024))
	fmt.Printf("⏱️  总耗时: %.2f秒\n", report.Duration)
	fmt.Printf("📁 输出目录: %s\n", report.OutputDir)
	fmt.Println("==================================================")
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径 (默认查找 ./configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证HTTP头部配置并退出")

	// 页面源参数, detect 子命令共用
	for _, c := range []*cobra.Command{rootCmd, detectCmd} {
		c.Flags().StringVarP(&targetURL, "url", "u", "", "目标URL")
		c.Flags().StringVar(&sourceKind, "source", string(models.SourceBrowser), "页面源 (browser|static|file)")
		c.Flags().StringVar(&htmlFile, "file", "", "本地HTML文件, 配合 -u 作为解析基准")
		c.Flags().IntVarP(&waitTime, "wait", "w", 3, "页面渲染后等待时间(秒)")
		c.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
		c.Flags().BoolVar(&useLLM, "llm", false, "启用LLM二次分析")
	}

	// 快照参数
	rootCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "包含URL列表的文件路径")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "output", "输出目录")
	rootCmd.Flags().IntVar(&workers, "workers", 8, "资源下载并发数")
	rootCmd.Flags().IntVar(&timeout, "timeout", 20, "单个资源下载超时(秒)")
	rootCmd.Flags().BoolVar(&clean, "clean", false, "移除统计/追踪脚本")
	rootCmd.Flags().BoolVar(&mergeJS, "merge-scripts", true, "内联脚本合并到 script.js")
	rootCmd.Flags().BoolVar(&overwrite, "overwrite", true, "覆盖已存在的输出目录")

	// 批量处理参数
	rootCmd.Flags().IntVar(&batchDelay, "batch-delay", 0, "批量处理URL间延迟(秒)")
	rootCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "遇到错误继续处理")

	// 添加子命令
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
