package emitter

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/sitesnap/internal/assets"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"github.com/bmatcuk/doublestar/v4"
)

// trackerPatterns 统计/追踪资源的 host/path glob
var trackerPatterns = []string{
	"www.googletagmanager.com/**",
	"googletagmanager.com/**",
	"*.google-analytics.com/**",
	"google-analytics.com/**",
	"stats.g.doubleclick.net/**",
	"connect.facebook.net/**",
	"www.facebook.com/tr",
	"static.hotjar.com/**",
	"script.hotjar.com/**",
	"js.hs-scripts.com/**",
	"js.hs-analytics.net/**",
	"cdn.segment.com/**",
	"cdn.mxpnl.com/**",
	"snap.licdn.com/**",
	"bat.bing.com/**",
	"mc.yandex.ru/**",
	"*.clarity.ms/**",
	"plausible.io/js/**",
	"static.cloudflareinsights.com/**",
}

// inlineTrackerSignatures 内联追踪脚本的特征片段
var inlineTrackerSignatures = []string{
	"gtag(",
	"GoogleAnalyticsObject",
	"googletagmanager.com/gtm.js",
	"fbq(",
	"_hsq",
	"_hjSettings",
	"dataLayer.push",
	"mixpanel.init",
	"analytics.load(",
	"clarity.ms/tag",
}

// IsTrackerURL 判断外部地址是否属于统计/追踪服务
func IsTrackerURL(raw string) bool {
	ref := strings.TrimSpace(raw)
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}
	parsed, err := url.Parse(ref)
	if err != nil || parsed.Host == "" {
		return false
	}
	hostPath := strings.ToLower(parsed.Hostname()) + parsed.EscapedPath()
	for _, pattern := range trackerPatterns {
		if ok, _ := doublestar.Match(pattern, hostPath); ok {
			return true
		}
	}
	return false
}

func isTrackerScript(code string) bool {
	for _, sig := range inlineTrackerSignatures {
		if strings.Contains(code, sig) {
			return true
		}
	}
	return false
}

// StripTrackers 移除统计/追踪脚本、像素图和GTM的 noscript iframe, 返回移除数量
func StripTrackers(doc *goquery.Document) int {
	removed := 0

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if src, ok := s.Attr("src"); ok {
			if IsTrackerURL(src) {
				utils.Debugf("移除追踪脚本: %s", src)
				s.Remove()
				removed++
			}
			return
		}
		if isTrackerScript(assets.TextContent(node)) {
			s.Remove()
			removed++
		}
	})

	doc.Find("img[src], iframe[src]").Each(func(_ int, s *goquery.Selection) {
		if src, _ := s.Attr("src"); IsTrackerURL(src) {
			s.Remove()
			removed++
		}
	})

	// noscript 内容按文本解析
	doc.Find("noscript").Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		if strings.Contains(text, "googletagmanager.com/ns.html") || strings.Contains(text, "facebook.com/tr") {
			s.Remove()
			removed++
		}
	})

	if removed > 0 {
		utils.Infof("🧹 清理模式: 移除 %d 个统计/追踪元素", removed)
	}
	return removed
}
