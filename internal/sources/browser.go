package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// scrollPause 每次滚动后等待懒加载内容的时间
const scrollPause = 400 * time.Millisecond

// BrowserSource 用无头浏览器渲染页面, 捕获脚本执行后的DOM
type BrowserSource struct {
	cfg     models.SnapshotConfig
	headers models.HeaderProvider
}

// NewBrowserSource 创建浏览器页面源
func NewBrowserSource(cfg models.SnapshotConfig, headers models.HeaderProvider) *BrowserSource {
	return &BrowserSource{cfg: cfg, headers: headers}
}

// Name 页面源名称
func (b *BrowserSource) Name() string {
	return string(models.SourceBrowser)
}

// Render 启动浏览器、导航、滚动并等待, 返回渲染后的HTML
func (b *BrowserSource) Render(ctx context.Context, rawURL string) (*models.PageSnapshot, error) {
	if err := utils.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	l := launcher.New().Context(ctx).Headless(b.cfg.Headless)
	// 允许访问自签名、过期或主机名不匹配的HTTPS站点
	l = l.Set("ignore-certificate-errors")
	defer l.Cleanup()

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			utils.Debugf("关闭浏览器失败: %v", err)
		}
	}()
	utils.Debugf("浏览器已启动: %s", controlURL)

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}
	if err := b.applyHeaders(page); err != nil {
		utils.Warnf("设置浏览器请求头失败: %v", err)
	}

	utils.Infof("🌐 浏览器渲染页面: %s", rawURL)
	if err := page.Navigate(rawURL); err != nil {
		return nil, fmt.Errorf("导航失败: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("等待页面加载失败: %w", err)
	}

	b.scroll(ctx, page)

	if b.cfg.WaitTime > 0 {
		utils.Debugf("额外等待 %d 秒", b.cfg.WaitTime)
		if err := sleep(ctx, time.Duration(b.cfg.WaitTime)*time.Second); err != nil {
			return nil, err
		}
	}

	htmlContent, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("获取页面HTML失败: %w", err)
	}
	snap := &models.PageSnapshot{
		URL:        rawURL,
		FinalURL:   rawURL,
		HTML:       htmlContent,
		SourceName: b.Name(),
		CapturedAt: time.Now(),
	}
	if info, err := page.Info(); err == nil {
		snap.FinalURL = info.URL
		snap.Title = info.Title
	}
	return checkSnapshot(snap)
}

// applyHeaders 浏览器请求也带上自定义请求头
func (b *BrowserSource) applyHeaders(page *rod.Page) error {
	if b.headers == nil {
		return nil
	}
	headers, err := b.headers.GetHeaders()
	if err != nil {
		return err
	}
	var dict []string
	for name, values := range headers {
		// UA 由浏览器自身决定
		if len(values) == 0 || name == "User-Agent" {
			continue
		}
		dict = append(dict, name, values[0])
	}
	if len(dict) == 0 {
		return nil
	}
	_, err = page.SetExtraHeaders(dict)
	return err
}

// scroll 分步滚动到底部触发懒加载, 最后回到顶部
func (b *BrowserSource) scroll(ctx context.Context, page *rod.Page) {
	for i := 0; i < b.cfg.ScrollSteps; i++ {
		if _, err := page.Eval(`() => window.scrollBy(0, window.innerHeight)`); err != nil {
			utils.Debugf("滚动失败: %v", err)
			return
		}
		if sleep(ctx, scrollPause) != nil {
			return
		}
	}
	if b.cfg.ScrollSteps > 0 {
		if _, err := page.Eval(`() => window.scrollTo(0, 0)`); err != nil {
			utils.Debugf("回到顶部失败: %v", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
