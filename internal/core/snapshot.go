package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/sitesnap/internal/analysis"
	"github.com/RecoveryAshes/sitesnap/internal/assets"
	"github.com/RecoveryAshes/sitesnap/internal/detector"
	"github.com/RecoveryAshes/sitesnap/internal/emitter"
	"github.com/RecoveryAshes/sitesnap/internal/fetcher"
	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/rewriter"
	"github.com/RecoveryAshes/sitesnap/internal/sources"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
)

// maxStylesheetDepth 外部样式表中嵌套引用的最大追踪层数
const maxStylesheetDepth = 3

// ErrOutputExists 输出目录已存在且不允许覆盖
var ErrOutputExists = errors.New("输出目录已存在")

// Snapshotter 单页离线快照的编排器
type Snapshotter struct {
	cfg       models.SnapshotConfig
	source    sources.PageSource
	headers   models.HeaderProvider
	fetcher   fetcher.ByteFetcher
	detector  *detector.Detector
	analyzer  analysis.Analyzer
	generator string
}

// Option 编排器可选项
type Option func(*Snapshotter)

// WithFetcher 替换资源下载器, 默认每次运行按页面地址创建HTTPFetcher
func WithFetcher(f fetcher.ByteFetcher) Option {
	return func(s *Snapshotter) { s.fetcher = f }
}

// WithAnalyzer 启用LLM二次分析
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(s *Snapshotter) { s.analyzer = a }
}

// WithGenerator 写入 meta generator 的名称
func WithGenerator(name string) Option {
	return func(s *Snapshotter) { s.generator = name }
}

// NewSnapshotter 创建编排器
func NewSnapshotter(cfg models.SnapshotConfig, source sources.PageSource, headers models.HeaderProvider, opts ...Option) *Snapshotter {
	s := &Snapshotter{
		cfg:       cfg,
		source:    source,
		headers:   headers,
		detector:  detector.New(),
		generator: "sitesnap",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run 渲染页面并生成离线项目
func (s *Snapshotter) Run(ctx context.Context, targetURL, outputDir string) (*models.RunReport, error) {
	if err := s.checkOutput(outputDir); err != nil {
		return nil, err
	}
	snap, err := s.source.Render(ctx, targetURL)
	if err != nil {
		return nil, fmt.Errorf("页面渲染失败: %w", err)
	}
	return s.RunSnapshot(ctx, snap, outputDir)
}

// RunSnapshot 对已渲染的DOM快照执行发现、下载、改写和输出
// 取消或致命错误时不会留下任何输出
func (s *Snapshotter) RunSnapshot(ctx context.Context, snap *models.PageSnapshot, outputDir string) (*models.RunReport, error) {
	if err := s.checkOutput(outputDir); err != nil {
		return nil, err
	}

	report := models.NewRunReport(models.NewID(), snap.URL)
	report.FinalURL = snap.BaseURL()
	report.Source = snap.SourceName
	report.OutputDir = outputDir
	utils.Infof("🚀 开始生成快照 [%s]: %s", report.RunID[:8], report.FinalURL)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return nil, fmt.Errorf("解析DOM快照失败: %w", err)
	}

	// 检测只读原始HTML, 与资源管线并行
	detection := make(chan *models.DetectionResult, 1)
	go func() {
		detection <- s.detect(ctx, snap.HTML)
	}()

	trackers := 0
	if s.cfg.Clean {
		trackers = emitter.StripTrackers(doc)
	}

	catalog, err := assets.NewCatalog(snap.BaseURL())
	if err != nil {
		return nil, err
	}
	catalog.DiscoverDocument(doc)

	staging, err := stagingDir(outputDir, report.RunID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, &models.EmitError{Path: staging, Cause: err}
	}
	keepStaging := false
	defer func() {
		if !keepStaging {
			os.RemoveAll(staging)
		}
	}()

	if err := s.materialize(ctx, catalog, staging, snap.BaseURL()); err != nil {
		return nil, err
	}

	rw := rewriter.New(catalog)
	if _, err := rw.Rewrite(doc); err != nil {
		return nil, err
	}

	var result *models.DetectionResult
	select {
	case result = <-detection:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	meta := models.SnapshotMeta{
		RunID:       report.RunID,
		SourceURL:   report.FinalURL,
		Framework:   result.PrimaryName(),
		Complexity:  string(result.Complexity),
		GeneratedAt: time.Now(),
		Generator:   s.generator,
	}
	em := emitter.New(rw, emitter.Options{
		ConsolidateScripts: s.cfg.ConsolidateScripts,
		UtilityCSS:         s.cfg.UtilityCSS,
	})
	emitResult, err := em.Emit(doc, catalog.Records(), staging, meta)
	if err != nil {
		return nil, err
	}
	emitResult.TrackersRemoved = trackers

	report.Detection = result
	report.Summarize(catalog.Records())
	for _, issue := range catalog.Issues() {
		report.DiscoveryIssues = append(report.DiscoveryIssues, issue.Error())
	}
	report.Rewrite = rw.Stats()
	report.Emit = emitResult
	report.Finish()

	if _, err := utils.NewReporter(staging).WriteRunReport(report); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := swapInto(staging, outputDir); err != nil {
		return nil, err
	}
	keepStaging = true

	utils.Infof("🎉 快照完成: %s (%.2f秒)", outputDir, report.Duration)
	return report, nil
}

// Detect 只渲染和检测, 不下载资源
func (s *Snapshotter) Detect(ctx context.Context, targetURL string) (*models.DetectionResult, error) {
	snap, err := s.source.Render(ctx, targetURL)
	if err != nil {
		return nil, fmt.Errorf("页面渲染失败: %w", err)
	}
	return s.detect(ctx, snap.HTML), nil
}

func (s *Snapshotter) detect(ctx context.Context, htmlContent string) *models.DetectionResult {
	result, err := s.detector.Analyze(htmlContent)
	if err != nil {
		utils.Warnf("⚠️ 框架检测失败: %v", err)
		result = &models.DetectionResult{Complexity: models.ComplexityLow, Source: models.SourceHeuristic}
	}
	utils.Infof("🔍 框架检测: %s (复杂度 %s)", result.PrimaryName(), result.Complexity)
	return analysis.Refine(ctx, s.analyzer, htmlContent, result)
}

// materialize 下载页面资源, 再逐层下载已下载样式表中引用的资源
func (s *Snapshotter) materialize(ctx context.Context, catalog *assets.Catalog, staging, referer string) error {
	f := s.fetcher
	if f == nil {
		f = fetcher.NewHTTPFetcher(fetcher.OptionsFromConfig(s.cfg, referer), s.headers)
	}
	budget := fetcher.NewWorkerBudget(fetcher.DefaultBudgetConfig(s.cfg.Workers, s.cfg.MaxAssetBytes()))
	m := fetcher.NewMaterializer(f, staging, fetcher.MaterializeOptions{
		Workers:      budget.Workers(),
		AssetTimeout: s.cfg.AssetTimeoutDuration(),
		ShowProgress: s.cfg.ShowProgress,
	})

	batch := catalog.Pending()
	for depth := 0; len(batch) > 0; depth++ {
		if _, err := m.MaterializeAll(ctx, batch); err != nil {
			return err
		}
		if depth == maxStylesheetDepth {
			break
		}
		var nested []*models.AssetRecord
		for _, rec := range batch {
			nested = append(nested, catalog.DiscoverStylesheet(rec)...)
		}
		if len(nested) > 0 {
			utils.Debugf("样式表第 %d 层引用: %d 个新资源", depth+1, len(nested))
		}
		batch = nested
	}
	return nil
}

func (s *Snapshotter) checkOutput(outputDir string) error {
	if s.cfg.Overwrite {
		return nil
	}
	if _, err := os.Stat(outputDir); err == nil {
		return fmt.Errorf("%w: %s", ErrOutputExists, outputDir)
	}
	return nil
}

// stagingDir 与输出目录同级的临时目录, 保证最后的rename在同一文件系统内
func stagingDir(outputDir, runID string) (string, error) {
	abs, err := filepath.Abs(outputDir)
	if err != nil {
		return "", fmt.Errorf("解析输出目录失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", &models.EmitError{Path: filepath.Dir(abs), Cause: err}
	}
	return filepath.Join(filepath.Dir(abs), fmt.Sprintf(".%s.staging-%s", filepath.Base(abs), runID[:8])), nil
}

// swapInto 用临时目录替换输出目录, 失败时恢复旧目录
func swapInto(staging, outputDir string) error {
	var backup string
	if _, err := os.Stat(outputDir); err == nil {
		backup = staging + ".old"
		if err := os.Rename(outputDir, backup); err != nil {
			return &models.EmitError{Path: outputDir, Cause: err}
		}
	}
	if err := os.Rename(staging, outputDir); err != nil {
		if backup != "" {
			os.Rename(backup, outputDir)
		}
		return &models.EmitError{Path: outputDir, Cause: err}
	}
	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			utils.Warnf("清理旧输出目录失败: %v", err)
		}
	}
	return nil
}
