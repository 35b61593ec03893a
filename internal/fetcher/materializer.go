package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"golang.org/x/sync/errgroup"
)

// MaterializeOptions 资源落盘配置
type MaterializeOptions struct {
	Workers      int
	AssetTimeout time.Duration
	ShowProgress bool
}

// MaterializeStats 一轮下载的统计
type MaterializeStats struct {
	Attempted int
	Fetched   int
	Failed    int
	Bytes     int64
}

// Materializer 并发下载pending记录并写入暂存目录
type Materializer struct {
	fetcher    ByteFetcher
	stagingDir string
	opts       MaterializeOptions
}

// NewMaterializer 创建资源落盘器
func NewMaterializer(fetcher ByteFetcher, stagingDir string, opts MaterializeOptions) *Materializer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.AssetTimeout <= 0 {
		opts.AssetTimeout = 20 * time.Second
	}
	return &Materializer{fetcher: fetcher, stagingDir: stagingDir, opts: opts}
}

// MaterializeAll 下载所有pending的远程记录
// 单个资源失败只记录在该资源上, 写盘失败和取消会终止整轮
func (m *Materializer) MaterializeAll(ctx context.Context, records []*models.AssetRecord) (MaterializeStats, error) {
	var pending []*models.AssetRecord
	for _, rec := range records {
		if rec.Origin == models.OriginRemote && rec.FetchState == models.FetchPending {
			pending = append(pending, rec)
		}
	}

	stats := MaterializeStats{Attempted: len(pending)}
	if len(pending) == 0 {
		return stats, nil
	}

	utils.Infof("📥 开始下载 %d 个资源 (并发 %d)", len(pending), m.opts.Workers)
	bar := utils.NewProgressBar(len(pending), "下载资源", m.opts.ShowProgress)
	defer bar.Finish()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)

	for _, rec := range pending {
		g.Go(func() error {
			defer bar.Add(1)

			size, err := m.Materialize(gctx, rec)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				return err
			case rec.FetchState == models.FetchFetched:
				stats.Fetched++
				stats.Bytes += size
			default:
				stats.Failed++
			}
			return nil
		})
	}

	err := g.Wait()

	// 中止时仍未处理的记录统一标记为取消
	for _, rec := range pending {
		if rec.FetchState == models.FetchPending {
			rec.MarkFailed(models.ReasonCancelled, context.Cause(gctx))
			stats.Failed++
		}
	}

	if err != nil {
		return stats, err
	}
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}

	utils.Infof("✅ 资源下载完成: 成功 %d, 失败 %d, 共 %.2f KB",
		stats.Fetched, stats.Failed, float64(stats.Bytes)/1024)
	return stats, nil
}

// Materialize 下载并落盘单条记录, 返回的error只用于致命错误
// 下载失败记录在rec上, 不作为error返回
func (m *Materializer) Materialize(ctx context.Context, rec *models.AssetRecord) (int64, error) {
	if ctx.Err() != nil {
		return 0, rec.MarkFailed(models.ReasonCancelled, ctx.Err())
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.opts.AssetTimeout)
	defer cancel()

	result, err := m.fetcher.Fetch(fetchCtx, rec.CanonicalURL)
	if err != nil {
		reason := models.ReasonNetwork
		var fetchErr *models.FetchError
		if errors.As(err, &fetchErr) {
			reason = fetchErr.Reason
			rec.StatusCode = fetchErr.StatusCode
		}
		// 父context取消优先于单资源超时
		if ctx.Err() != nil {
			reason = models.ReasonCancelled
		}
		utils.Debugf("资源下载失败 [%s] %s: %v", reason, rec.CanonicalURL, err)
		return 0, rec.MarkFailed(reason, err)
	}

	target := filepath.Join(m.stagingDir, filepath.FromSlash(rec.LocalPath("")))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, &models.EmitError{Path: target, Cause: err}
	}
	if err := os.WriteFile(target, result.Body, 0644); err != nil {
		return 0, &models.EmitError{Path: target, Cause: err}
	}

	if rec.Category == models.CategoryStyle {
		rec.Content = result.Body
	}
	size := int64(len(result.Body))
	if err := rec.MarkFetched(result, size); err != nil {
		return 0, fmt.Errorf("更新资源状态失败: %w", err)
	}
	utils.Debugf("已下载 %s → %s (%d 字节)", rec.CanonicalURL, rec.LocalPath(""), size)
	return size, nil
}
