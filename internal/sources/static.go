package sources

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/sitesnap/internal/fetcher"
	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"github.com/gocolly/colly/v2"
)

// StaticSource 用colly抓取服务端返回的HTML, 不执行脚本
type StaticSource struct {
	cfg     models.SnapshotConfig
	headers models.HeaderProvider
}

// NewStaticSource 创建静态页面源
func NewStaticSource(cfg models.SnapshotConfig, headers models.HeaderProvider) *StaticSource {
	return &StaticSource{cfg: cfg, headers: headers}
}

// Name 页面源名称
func (s *StaticSource) Name() string {
	return string(models.SourceStatic)
}

// Render 发起一次GET请求, 跟随重定向直到上限
func (s *StaticSource) Render(ctx context.Context, rawURL string) (*models.PageSnapshot, error) {
	if err := utils.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.UserAgent(fetcher.DefaultUserAgent),
		colly.MaxBodySize(int(s.cfg.MaxAssetBytes())),
		colly.AllowURLRevisit(),
	)
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: s.cfg.InsecureTLS,
		},
	})
	timeout := time.Duration(s.cfg.AssetTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c.SetRequestTimeout(timeout)

	finalURL := rawURL
	maxRedirects := s.cfg.MaxRedirects
	c.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("%w: %d", models.ErrTooManyRedirects, maxRedirects)
		}
		finalURL = req.URL.String()
		utils.Debugf("页面重定向: %s", finalURL)
		return nil
	})

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if s.headers == nil {
			return
		}
		headers, err := s.headers.GetHeaders()
		if err != nil {
			utils.Warnf("获取HTTP头部失败: %v", err)
			return
		}
		for name, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})

	var snap *models.PageSnapshot
	var bodyErr error
	c.OnResponse(func(r *colly.Response) {
		encoding := r.Headers.Get("Content-Encoding")
		// gzip 已由colly解压
		if strings.EqualFold(strings.TrimSpace(encoding), "gzip") {
			encoding = ""
		}
		body, err := fetcher.DecompressBody(encoding, r.Body)
		if err != nil {
			bodyErr = fmt.Errorf("解压页面失败: %w", err)
			return
		}
		snap = &models.PageSnapshot{
			URL:        rawURL,
			FinalURL:   finalURL,
			HTML:       string(body),
			SourceName: s.Name(),
			CapturedAt: time.Now(),
		}
	})

	utils.Infof("🌐 静态抓取页面: %s", rawURL)
	if err := c.Visit(rawURL); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("抓取页面失败: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bodyErr != nil {
		return nil, bodyErr
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrNoSnapshot, rawURL)
	}
	return checkSnapshot(snap)
}
