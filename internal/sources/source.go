package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/sitesnap/internal/models"
)

// PageSource 把目标页面渲染成DOM快照
type PageSource interface {
	Name() string
	Render(ctx context.Context, rawURL string) (*models.PageSnapshot, error)
}

// NewSource 按类型创建页面源
// file 类型需要额外的 filePath, 此时 Render 的URL参数作为解析基准
func NewSource(kind models.SourceKind, cfg models.SnapshotConfig, headers models.HeaderProvider, filePath string) (PageSource, error) {
	switch kind {
	case models.SourceBrowser:
		return NewBrowserSource(cfg, headers), nil
	case models.SourceStatic:
		return NewStaticSource(cfg, headers), nil
	case models.SourceFile:
		if filePath == "" {
			return nil, fmt.Errorf("file 页面源需要指定HTML文件路径")
		}
		return NewFileSource(filePath), nil
	default:
		return nil, fmt.Errorf("未知的页面源类型: %q", kind)
	}
}

// pageTitle 提取 <title> 文本
func pageTitle(htmlContent string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func checkSnapshot(snap *models.PageSnapshot) (*models.PageSnapshot, error) {
	if strings.TrimSpace(snap.HTML) == "" {
		return nil, fmt.Errorf("%w: %s", models.ErrNoSnapshot, snap.URL)
	}
	if snap.Title == "" {
		snap.Title = pageTitle(snap.HTML)
	}
	return snap, nil
}
