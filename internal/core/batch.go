package core

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
)

// BatchSnapshotter 依次为多个URL生成快照, 每个URL一个子目录
type BatchSnapshotter struct {
	snapshotter   *Snapshotter
	outputDir     string
	batchDelay    time.Duration
	continueOnErr bool
}

// BatchResult 单个URL的结果
type BatchResult struct {
	URL         string
	OutputDir   string
	Success     bool
	Error       error
	Report      *models.RunReport
	ProcessedAt time.Time
	Duration    float64
}

// BatchSummary 批量快照摘要
type BatchSummary struct {
	TotalURLs     int
	SuccessCount  int
	FailCount     int
	TotalAssets   int
	TotalFailed   int
	TotalSize     int64
	TotalDuration float64
	Results       []BatchResult
}

// NewBatchSnapshotter 创建批量快照器, batchDelay 单位为秒
func NewBatchSnapshotter(snapshotter *Snapshotter, outputDir string, batchDelay int, continueOnErr bool) *BatchSnapshotter {
	return &BatchSnapshotter{
		snapshotter:   snapshotter,
		outputDir:     outputDir,
		batchDelay:    time.Duration(batchDelay) * time.Second,
		continueOnErr: continueOnErr,
	}
}

// RunBatch 依次处理URL列表, 取消时返回已完成部分的摘要和context错误
func (bs *BatchSnapshotter) RunBatch(ctx context.Context, urls []string) (*BatchSummary, error) {
	utils.Infof("🚀 开始批量快照: %d个URL", len(urls))

	summary := &BatchSummary{
		TotalURLs: len(urls),
		Results:   make([]BatchResult, 0, len(urls)),
	}
	startTime := time.Now()
	used := make(map[string]int)

	var runErr error
	for i, targetURL := range urls {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		utils.Infof("==================== [%d/%d] ====================", i+1, len(urls))

		slug := utils.URLSlug(targetURL)
		used[slug]++
		if n := used[slug]; n > 1 {
			slug = fmt.Sprintf("%s-%d", slug, n)
		}

		result := bs.snapshotOne(ctx, targetURL, filepath.Join(bs.outputDir, slug))
		summary.Results = append(summary.Results, result)

		if result.Success {
			summary.SuccessCount++
			summary.TotalAssets += result.Report.Stats.Fetched + result.Report.Stats.Embedded
			summary.TotalFailed += result.Report.Stats.Failed
			summary.TotalSize += result.Report.Stats.TotalBytes
		} else {
			summary.FailCount++
			utils.Errorf("❌ 快照失败: %v", result.Error)
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			if !bs.continueOnErr {
				utils.Warn("批量快照中止 (continue_on_error=false)")
				break
			}
		}

		if i < len(urls)-1 && bs.batchDelay > 0 {
			utils.Debugf("等待 %.0f 秒后处理下一个URL...", bs.batchDelay.Seconds())
			select {
			case <-ctx.Done():
			case <-time.After(bs.batchDelay):
			}
		}
	}

	summary.TotalDuration = time.Since(startTime).Seconds()
	bs.printSummary(summary)
	return summary, runErr
}

func (bs *BatchSnapshotter) snapshotOne(ctx context.Context, targetURL, outputDir string) BatchResult {
	result := BatchResult{
		URL:         targetURL,
		OutputDir:   outputDir,
		ProcessedAt: time.Now(),
	}
	startTime := time.Now()

	report, err := bs.snapshotter.Run(ctx, targetURL, outputDir)
	result.Duration = time.Since(startTime).Seconds()
	if err != nil {
		result.Error = err
		return result
	}
	result.Success = true
	result.Report = report
	return result
}

// printSummary 打印批量快照摘要
func (bs *BatchSnapshotter) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 批量快照摘要")
	utils.Info("==================================================")
	utils.Infof("总URL数: %d", summary.TotalURLs)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("📦 本地资源: %d (下载失败 %d)", summary.TotalAssets, summary.TotalFailed)
	utils.Infof("📦 总大小: %.2f MB", float64(summary.TotalSize)/(1024*1024))
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	if summary.FailCount > 0 {
		utils.Warn("失败的URL:")
		for _, result := range summary.Results {
			if !result.Success {
				utils.Warnf("  - %s: %v", result.URL, result.Error)
			}
		}
	}
}
