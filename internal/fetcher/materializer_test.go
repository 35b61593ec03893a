package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteRecord(rawURL string, category models.AssetCategory, filename string) *models.AssetRecord {
	return &models.AssetRecord{
		ID:            models.NewID(),
		CanonicalURL:  rawURL,
		Category:      category,
		LocalFilename: filename,
		Origin:        models.OriginRemote,
		FetchState:    models.FetchPending,
	}
}

// countingFetcher 记录最大并发数的假下载器
type countingFetcher struct {
	active  atomic.Int32
	maxSeen atomic.Int32
	delay   time.Duration
}

func (f *countingFetcher) Fetch(ctx context.Context, rawURL string) (*models.FetchResult, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		old := f.maxSeen.Load()
		if n <= old || f.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	select {
	case <-ctx.Done():
		return nil, &models.FetchError{URL: rawURL, Reason: models.ReasonCancelled, Cause: ctx.Err()}
	case <-time.After(f.delay):
	}
	return &models.FetchResult{URL: rawURL, FinalURL: rawURL, StatusCode: 200, Body: []byte("ok")}, nil
}

func TestMaterializeAll(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("PNG")) })
	mux.HandleFunc("/site.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.Write([]byte("body{background:url(bg.png)}"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	staging := t.TempDir()
	logo := remoteRecord(server.URL+"/logo.png", models.CategoryImage, "logo_0123456789.png")
	css := remoteRecord(server.URL+"/site.css", models.CategoryStyle, "site_0123456789.css")
	missing := remoteRecord(server.URL+"/missing.png", models.CategoryImage, "missing_0123456789.png")
	embedded := &models.AssetRecord{
		Category:      models.CategoryImage,
		LocalFilename: "embedded_1_abcd1234.png",
		Origin:        models.OriginEmbedded,
		FetchState:    models.FetchFetched,
	}

	m := NewMaterializer(newTestFetcher(Options{}), staging, MaterializeOptions{Workers: 4, AssetTimeout: 5 * time.Second})
	stats, err := m.MaterializeAll(context.Background(), []*models.AssetRecord{logo, css, missing, embedded})
	require.NoError(t, err)

	assert.Equal(t, MaterializeStats{Attempted: 3, Fetched: 2, Failed: 1, Bytes: 3 + 28}, stats)

	data, err := os.ReadFile(filepath.Join(staging, "assets", "images", "logo_0123456789.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNG", string(data))

	assert.Equal(t, models.FetchFetched, css.FetchState)
	assert.Equal(t, "body{background:url(bg.png)}", string(css.Content))
	assert.Equal(t, "text/css", css.ContentType)
	assert.Nil(t, logo.Content, "非样式表不保留内容")

	assert.Equal(t, models.FetchFailed, missing.FetchState)
	assert.Equal(t, models.ReasonHTTPStatus, missing.FailReason)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	assert.NoFileExists(t, filepath.Join(staging, "assets", "images", "missing_0123456789.png"))

	assert.Equal(t, models.FetchFetched, embedded.FetchState)
	for _, rec := range []*models.AssetRecord{logo, css, missing} {
		assert.True(t, rec.Settled())
	}
}

func TestMaterializeBoundedConcurrency(t *testing.T) {
	f := &countingFetcher{delay: 20 * time.Millisecond}
	var records []*models.AssetRecord
	for i := 0; i < 12; i++ {
		records = append(records, remoteRecord(fmt.Sprintf("https://cdn.example.com/%d.js", i), models.CategoryScript, fmt.Sprintf("%d.js", i)))
	}

	m := NewMaterializer(f, t.TempDir(), MaterializeOptions{Workers: 3})
	stats, err := m.MaterializeAll(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 12, stats.Fetched)
	assert.LessOrEqual(t, f.maxSeen.Load(), int32(3))
	assert.GreaterOrEqual(t, f.maxSeen.Load(), int32(1))
}

func TestMaterializeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := []*models.AssetRecord{
		remoteRecord("https://cdn.example.com/a.js", models.CategoryScript, "a.js"),
		remoteRecord("https://cdn.example.com/b.js", models.CategoryScript, "b.js"),
	}
	m := NewMaterializer(&countingFetcher{delay: time.Second}, t.TempDir(), MaterializeOptions{Workers: 2})
	_, err := m.MaterializeAll(ctx, records)
	require.ErrorIs(t, err, context.Canceled)

	for _, rec := range records {
		assert.Equal(t, models.FetchFailed, rec.FetchState)
		assert.Equal(t, models.ReasonCancelled, rec.FailReason)
	}
}

func TestMaterializeSkipsSettledRecords(t *testing.T) {
	done := remoteRecord("https://cdn.example.com/done.png", models.CategoryImage, "done.png")
	require.NoError(t, done.MarkFetched(&models.FetchResult{StatusCode: 200}, 10))

	f := &countingFetcher{}
	stats, err := NewMaterializer(f, t.TempDir(), MaterializeOptions{}).MaterializeAll(context.Background(), []*models.AssetRecord{done})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Attempted)
	assert.Equal(t, int32(0), f.maxSeen.Load())

	// 已确定的记录不能再次转换
	assert.ErrorIs(t, done.MarkFailed(models.ReasonNetwork, nil), models.ErrInvalidTransition)
}

type statusFetcher struct{ status int }

func (f statusFetcher) Fetch(ctx context.Context, rawURL string) (*models.FetchResult, error) {
	return nil, &models.FetchError{URL: rawURL, Reason: models.ReasonHTTPStatus, StatusCode: f.status}
}

func TestMaterializeSingleFailure(t *testing.T) {
	staging := t.TempDir()
	rec := remoteRecord("https://cdn.example.com/gone.png", models.CategoryImage, "gone.png")

	size, err := NewMaterializer(statusFetcher{status: 410}, staging, MaterializeOptions{}).Materialize(context.Background(), rec)
	require.NoError(t, err, "下载失败不是致命错误")
	assert.Zero(t, size)
	assert.Equal(t, models.FetchFailed, rec.FetchState)
	assert.Equal(t, models.ReasonHTTPStatus, rec.FailReason)
	assert.Equal(t, 410, rec.StatusCode)
	assert.NoFileExists(t, filepath.Join(staging, filepath.FromSlash(rec.LocalPath(""))))
}

func TestMaterializeWriteFailureIsFatal(t *testing.T) {
	// 暂存目录是一个普通文件, 无法在其下创建子目录
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	rec := remoteRecord("https://cdn.example.com/a.js", models.CategoryScript, "a.js")
	_, err := NewMaterializer(&countingFetcher{}, blocker, MaterializeOptions{}).MaterializeAll(context.Background(), []*models.AssetRecord{rec})
	require.Error(t, err)

	var emitErr *models.EmitError
	assert.True(t, errors.As(err, &emitErr))
}

func TestWorkerBudget(t *testing.T) {
	const mb = 1024 * 1024
	b := &WorkerBudget{config: BudgetConfig{
		Requested:        8,
		PerWorkerMemory:  100 * mb,
		SafetyReserve:    512 * mb,
		CPULoadThreshold: 90,
	}}

	tests := []struct {
		name      string
		available uint64
		cpuLoad   float64
		want      int
	}{
		{"内存未知时使用请求值", 0, 0, 8},
		{"内存充足", 4096 * mb, 10, 8},
		{"内存收紧", 812 * mb, 10, 3},
		{"内存极少时至少1个", 100 * mb, 10, 1},
		{"CPU过载减半", 4096 * mb, 95, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.compute(tt.available, tt.cpuLoad))
		})
	}
}
