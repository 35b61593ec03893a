package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"golang.org/x/time/rate"
)

// ByteFetcher 字节下载能力, 返回结果携带重定向信息
type ByteFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*models.FetchResult, error)
}

// Options HTTP下载器配置
type Options struct {
	MaxRedirects int
	MaxBytes     int64
	PerHostRPS   float64
	InsecureTLS  bool
	ChromeTLS    bool
	// Referer 资源请求携带的来源页面
	Referer string
}

// OptionsFromConfig 从快照配置构造下载器选项
func OptionsFromConfig(cfg models.SnapshotConfig, referer string) Options {
	return Options{
		MaxRedirects: cfg.MaxRedirects,
		MaxBytes:     cfg.MaxAssetBytes(),
		PerHostRPS:   cfg.PerHostRPS,
		InsecureTLS:  cfg.InsecureTLS,
		ChromeTLS:    cfg.ChromeTLS,
		Referer:      referer,
	}
}

// HTTPFetcher 基于net/http的资源下载器
type HTTPFetcher struct {
	client  *http.Client
	opts    Options
	headers models.HeaderProvider

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

type redirectChainKey struct{}

// NewHTTPFetcher 创建下载器, headers可以为nil
func NewHTTPFetcher(opts Options, headers models.HeaderProvider) *HTTPFetcher {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 50 * 1024 * 1024
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureTLS,
		},
	}
	if opts.ChromeTLS {
		transport.DialTLSContext = dialChromeTLS(opts.InsecureTLS)
		transport.ForceAttemptHTTP2 = false
	}

	f := &HTTPFetcher{
		opts:     opts,
		headers:  headers,
		limiters: make(map[string]*rate.Limiter),
	}
	f.client = &http.Client{
		Transport:     transport,
		CheckRedirect: f.checkRedirect,
	}
	return f
}

// checkRedirect 限制重定向深度并记录重定向链
func (f *HTTPFetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > f.opts.MaxRedirects {
		return fmt.Errorf("%w (%d)", models.ErrTooManyRedirects, f.opts.MaxRedirects)
	}
	if chain, ok := req.Context().Value(redirectChainKey{}).(*[]string); ok {
		*chain = append(*chain, req.URL.String())
	}
	return nil
}

// Fetch 下载单个URL, 非2xx状态视为失败
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*models.FetchResult, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, &models.FetchError{URL: rawURL, Reason: models.ReasonInvalidURL, Cause: err}
	}

	if err := f.wait(ctx, parsed.Host); err != nil {
		return nil, &models.FetchError{URL: rawURL, Reason: classify(ctx, err), Cause: err}
	}

	var chain []string
	ctx = context.WithValue(ctx, redirectChainKey{}, &chain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Reason: models.ReasonInvalidURL, Cause: err}
	}
	f.applyHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Reason: classify(ctx, err), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &models.FetchError{URL: rawURL, Reason: models.ReasonHTTPStatus, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Reason: classify(ctx, err), Cause: err}
	}
	if int64(len(body)) > f.opts.MaxBytes {
		return nil, &models.FetchError{
			URL:    rawURL,
			Reason: models.ReasonTooLarge,
			Cause:  fmt.Errorf("超过大小上限 %d 字节", f.opts.MaxBytes),
		}
	}

	body, err = DecompressBody(resp.Header.Get("Content-Encoding"), body)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Reason: models.ReasonNetwork, Cause: err}
	}

	return &models.FetchResult{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		Redirects:   chain,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (f *HTTPFetcher) applyHeaders(req *http.Request) {
	if f.headers != nil {
		headers, err := f.headers.GetHeaders()
		if err != nil {
			utils.Warnf("获取请求头失败, 使用默认值: %v", err)
		}
		for name, values := range headers {
			for _, v := range values {
				req.Header.Add(name, v)
			}
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", DefaultUserAgent)
	}
	if f.opts.Referer != "" && req.Header.Get("Referer") == "" {
		req.Header.Set("Referer", f.opts.Referer)
	}
}

// wait 按主机限速, PerHostRPS为0时不限
func (f *HTTPFetcher) wait(ctx context.Context, host string) error {
	if f.opts.PerHostRPS <= 0 {
		return nil
	}
	f.limitersMu.Lock()
	limiter, ok := f.limiters[host]
	if !ok {
		burst := int(f.opts.PerHostRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(f.opts.PerHostRPS), burst)
		f.limiters[host] = limiter
	}
	f.limitersMu.Unlock()
	return limiter.Wait(ctx)
}

// classify 把底层错误归类为失败原因
func classify(ctx context.Context, err error) models.FailureReason {
	switch {
	case errors.Is(err, models.ErrTooManyRedirects):
		return models.ReasonRedirectLimit
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return models.ReasonTimeout
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return models.ReasonCancelled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ReasonTimeout
	}
	if strings.Contains(err.Error(), "rate: Wait") {
		return models.ReasonTimeout
	}
	return models.ReasonNetwork
}
