package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/sitesnap/internal/emitter"
	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/sources"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sitePage = `<!DOCTYPE html>
<html><head>
<title>测试站点</title>
<link rel="stylesheet" href="/css/site.css">
<script>window.dataLayer = window.dataLayer || []; function gtag(){dataLayer.push(arguments);}</script>
</head><body>
<div id="__next">
<img id="logo" src="/img/logo.png">
<img id="missing" src="img/missing.png">
<a id="home" href="/about">关于</a>
</div>
<script id="__NEXT_DATA__" type="application/json">{"page":"/"}</script>
<script src="/js/app.js"></script>
</body></html>`

// siteServer 提供页面与资源, /img/missing.png 返回404
func siteServer(t *testing.T) *httptest.Server {
	t.Helper()
	files := map[string]string{
		"/":              sitePage,
		"/css/site.css":  `@font-face{font-family:x;src:url(../fonts/a.woff2)} body{background:url("../img/bg.png")}`,
		"/fonts/a.woff2": "wOF2",
		"/img/bg.png":    "bg-bytes",
		"/img/logo.png":  "logo-bytes",
		"/js/app.js":     "console.log('app')",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == "/" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testSnapshotConfig() models.SnapshotConfig {
	cfg := models.DefaultSnapshotConfig()
	cfg.Source = models.SourceFile
	cfg.Workers = 4
	cfg.AssetTimeout = 5
	cfg.ShowProgress = false
	return cfg
}

func writePage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(sitePage), 0644))
	return path
}

func findAsset(t *testing.T, report *models.RunReport, canonical string) *models.AssetRecord {
	t.Helper()
	for _, rec := range report.Assets {
		if rec.CanonicalURL == canonical {
			return rec
		}
	}
	t.Fatalf("报告中没有资源 %s", canonical)
	return nil
}

func TestSnapshotEndToEnd(t *testing.T) {
	srv := siteServer(t)
	out := filepath.Join(t.TempDir(), "site")

	s := NewSnapshotter(testSnapshotConfig(), sources.NewFileSource(writePage(t)), nil)
	report, err := s.Run(context.Background(), srv.URL+"/", out)
	require.NoError(t, err)

	// css, logo, app.js, font, bg 成功; missing.png 失败
	assert.Equal(t, 6, report.Stats.Total)
	assert.Equal(t, 5, report.Stats.Fetched)
	assert.Equal(t, 1, report.Stats.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, models.ReasonHTTPStatus, report.Failures[0].Reason)
	assert.Equal(t, "Next.js", report.Detection.PrimaryName())

	for _, name := range []string{emitter.IndexFile, emitter.StylesFile, utils.ReportFileName, utils.FailedAssetsFileName} {
		assert.FileExists(t, filepath.Join(out, name))
	}

	font := findAsset(t, report, srv.URL+"/fonts/a.woff2")
	logo := findAsset(t, report, srv.URL+"/img/logo.png")
	sheet := findAsset(t, report, srv.URL+"/css/site.css")
	assert.FileExists(t, filepath.Join(out, filepath.FromSlash(font.LocalPath(""))))
	assert.FileExists(t, filepath.Join(out, filepath.FromSlash(sheet.LocalPath(""))))

	styles, err := os.ReadFile(filepath.Join(out, emitter.StylesFile))
	require.NoError(t, err)
	assert.Contains(t, string(styles), font.LocalPath(""))

	index, err := os.ReadFile(filepath.Join(out, emitter.IndexFile))
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(index)))
	require.NoError(t, err)

	src, _ := doc.Find("#logo").Attr("src")
	assert.Equal(t, logo.LocalPath(""), src)
	src, _ = doc.Find("#missing").Attr("src")
	assert.Equal(t, srv.URL+"/img/missing.png", src, "失败资源回退为绝对地址")
	href, _ := doc.Find("#home").Attr("href")
	assert.Equal(t, srv.URL+"/about", href)
	assert.Equal(t, 1, doc.Find(`script[type="application/json"]`).Length())

	// 未开启清理模式时追踪脚本随其他内联脚本合并
	scripts, err := os.ReadFile(filepath.Join(out, emitter.ScriptFile))
	require.NoError(t, err)
	assert.Contains(t, string(scripts), "dataLayer")

	// 临时目录已被替换, 父目录中只剩输出目录
	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "site", entries[0].Name())
}

func TestSnapshotCleanModeAndOverwrite(t *testing.T) {
	srv := siteServer(t)
	out := filepath.Join(t.TempDir(), "site")
	require.NoError(t, os.MkdirAll(out, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "stale.txt"), []byte("old"), 0644))

	cfg := testSnapshotConfig()
	cfg.Clean = true
	report, err := NewSnapshotter(cfg, sources.NewFileSource(writePage(t)), nil).Run(context.Background(), srv.URL+"/", out)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Emit.TrackersRemoved)
	assert.NoFileExists(t, filepath.Join(out, "stale.txt"))
	index, err := os.ReadFile(filepath.Join(out, emitter.IndexFile))
	require.NoError(t, err)
	assert.NotContains(t, string(index), "dataLayer")
	assert.NoFileExists(t, filepath.Join(out, emitter.ScriptFile))
}

func TestSnapshotRefusesExistingOutput(t *testing.T) {
	out := t.TempDir()
	cfg := testSnapshotConfig()
	cfg.Overwrite = false

	_, err := NewSnapshotter(cfg, sources.NewFileSource(writePage(t)), nil).Run(context.Background(), "https://example.com/", out)
	assert.ErrorIs(t, err, ErrOutputExists)
}

// cancellingFetcher 第一次下载时取消整个运行
type cancellingFetcher struct {
	cancel context.CancelFunc
}

func (f *cancellingFetcher) Fetch(ctx context.Context, rawURL string) (*models.FetchResult, error) {
	f.cancel()
	<-ctx.Done()
	return nil, &models.FetchError{URL: rawURL, Reason: models.ReasonCancelled, Cause: ctx.Err()}
}

func TestSnapshotCancelledLeavesNothing(t *testing.T) {
	parent := t.TempDir()
	out := filepath.Join(parent, "site")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSnapshotter(testSnapshotConfig(), sources.NewFileSource(writePage(t)), nil,
		WithFetcher(&cancellingFetcher{cancel: cancel}))
	_, err := s.Run(ctx, "https://example.com/", out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "实际错误: %v", err)

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Empty(t, entries, "取消后不应留下输出目录或临时目录")
}

func TestDetect(t *testing.T) {
	s := NewSnapshotter(testSnapshotConfig(), sources.NewFileSource(writePage(t)), nil)
	result, err := s.Detect(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, "Next.js", result.PrimaryName())
	assert.Equal(t, models.SourceHeuristic, result.Source)
}

func TestBatchSnapshotter(t *testing.T) {
	srv := siteServer(t)
	out := t.TempDir()

	cfg := testSnapshotConfig()
	cfg.Source = models.SourceStatic
	s := NewSnapshotter(cfg, sources.NewStaticSource(cfg, nil), nil)

	urls := []string{srv.URL + "/", srv.URL + "/nope", srv.URL + "/"}
	summary, err := NewBatchSnapshotter(s, out, 0, true).RunBatch(context.Background(), urls)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalURLs)
	assert.Equal(t, 2, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailCount)
	require.Len(t, summary.Results, 3)
	assert.NotEqual(t, summary.Results[0].OutputDir, summary.Results[2].OutputDir, "重复URL使用不同子目录")
	assert.DirExists(t, summary.Results[0].OutputDir)
	assert.DirExists(t, summary.Results[2].OutputDir)
	assert.Error(t, summary.Results[1].Error)

	// 失败即停止
	summary, err = NewBatchSnapshotter(s, t.TempDir(), 0, false).RunBatch(context.Background(), []string{srv.URL + "/nope", srv.URL + "/"})
	require.NoError(t, err)
	assert.Len(t, summary.Results, 1)
}

func TestSnapshotStylesheetDepthLimit(t *testing.T) {
	files := map[string]string{
		"/css/l0.css":   `@import "l1.css"; body{margin:0}`,
		"/css/l1.css":   `@import "l2.css";`,
		"/css/l2.css":   `@import "l3.css";`,
		"/css/l3.css":   `.deep{background:url(../img/deep.png)}`,
		"/img/deep.png": "deep",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	page := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(page, []byte(`<html><head><link rel="stylesheet" href="/css/l0.css"></head><body></body></html>`), 0644))
	out := filepath.Join(t.TempDir(), "site")

	report, err := NewSnapshotter(testSnapshotConfig(), sources.NewFileSource(page), nil).Run(context.Background(), srv.URL+"/", out)
	require.NoError(t, err)

	// 第4层样式表中的引用不再追踪
	for _, rec := range report.Assets {
		assert.NotEqual(t, srv.URL+"/img/deep.png", rec.CanonicalURL)
	}
	l3 := findAsset(t, report, srv.URL+"/css/l3.css")
	copied, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(l3.LocalPath(""))))
	require.NoError(t, err)
	assert.Contains(t, string(copied), srv.URL+"/img/deep.png", "未追踪的相对引用改为绝对地址")
	assert.NotContains(t, string(copied), "url(../img/deep.png)")
}
