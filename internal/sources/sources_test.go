package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticHeaders http.Header

func (h staticHeaders) GetHeaders() (http.Header, error) {
	return http.Header(h), nil
}

func testConfig() models.SnapshotConfig {
	cfg := models.DefaultSnapshotConfig()
	cfg.AssetTimeout = 5
	cfg.MaxRedirects = 3
	return cfg
}

func TestNewSource(t *testing.T) {
	tests := []struct {
		name     string
		kind     models.SourceKind
		file     string
		wantName string
		wantErr  bool
	}{
		{"浏览器", models.SourceBrowser, "", "browser", false},
		{"静态", models.SourceStatic, "", "static", false},
		{"文件", models.SourceFile, "page.html", "file", false},
		{"文件缺少路径", models.SourceFile, "", "", true},
		{"未知类型", models.SourceKind("ftp"), "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewSource(tt.kind, testConfig(), nil, tt.file)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, src.Name())
		})
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.html")
	require.NoError(t, os.WriteFile(path, []byte(`<html><head><title> 保存的页面 </title></head><body></body></html>`), 0644))

	snap, err := NewFileSource(path).Render(context.Background(), "https://example.com/page")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", snap.BaseURL())
	assert.Equal(t, "保存的页面", snap.Title)
	assert.Equal(t, "file", snap.SourceName)
}

func TestFileSourceErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.html")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0644))

	_, err := NewFileSource(empty).Render(context.Background(), "https://example.com/")
	assert.ErrorIs(t, err, models.ErrNoSnapshot)

	_, err = NewFileSource(filepath.Join(dir, "missing.html")).Render(context.Background(), "https://example.com/")
	assert.Error(t, err)

	_, err = NewFileSource(empty).Render(context.Background(), "relative/path")
	assert.Error(t, err)
}

func TestStaticSource(t *testing.T) {
	var gotHeader string
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Test")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>新页面</title></head><body><p>ok</p></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := NewStaticSource(testConfig(), staticHeaders{"X-Test": {"sitesnap"}})
	snap, err := src.Render(context.Background(), srv.URL+"/old")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/old", snap.URL)
	assert.Equal(t, srv.URL+"/new", snap.FinalURL)
	assert.Equal(t, "新页面", snap.Title)
	assert.Contains(t, snap.HTML, "<p>ok</p>")
	assert.Equal(t, "sitesnap", gotHeader)
}

func TestStaticSourceErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missing", http.NotFound)
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src := NewStaticSource(testConfig(), nil)

	_, err := src.Render(context.Background(), srv.URL+"/missing")
	assert.Error(t, err, "404 页面视为失败")

	_, err = src.Render(context.Background(), srv.URL+"/loop")
	assert.Error(t, err, "重定向循环应当失败")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Render(ctx, srv.URL+"/missing")
	assert.ErrorIs(t, err, context.Canceled)
}
