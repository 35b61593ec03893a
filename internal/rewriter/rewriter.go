package rewriter

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/sitesnap/internal/assets"
	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"golang.org/x/net/html"
)

// outcome 单个引用的改写结果
type outcome int

const (
	unchanged outcome = iota
	localCopy
	fallback
)

// sriAttrs 指向本地副本后失效的属性
var sriAttrs = []string{"integrity", "crossorigin"}

// location DOM中一个需要改写的位置
type location struct {
	node *html.Node
	attr string
	kind models.RefKind
}

// Rewriter 依据已确定状态的资源目录改写引用
type Rewriter struct {
	catalog *assets.Catalog
	stats   *models.RewriteStats
}

// New 创建改写器
func New(catalog *assets.Catalog) *Rewriter {
	return &Rewriter{catalog: catalog, stats: &models.RewriteStats{}}
}

// Stats 累计的改写统计(包含 RewriteCSS 的调用)
func (r *Rewriter) Stats() *models.RewriteStats {
	return r.stats
}

// Rewrite 改写文档中全部资源引用和超链接
// 调用前所有记录必须已经下载成功或失败
func (r *Rewriter) Rewrite(doc *goquery.Document) (*models.RewriteStats, error) {
	if pending := len(r.catalog.Pending()); pending > 0 {
		return nil, fmt.Errorf("%w: %d 条记录仍未完成", models.ErrUnsettledCatalog, pending)
	}

	base := r.catalog.Base()
	for _, loc := range r.locations() {
		r.rewriteLocation(loc, base)
	}

	r.rewriteLinks(doc, base)

	// 本地路径相对于 index.html 解析
	doc.Find("base").Remove()

	utils.Infof("🔗 引用改写完成: 本地 %d, 回退原地址 %d, 内嵌 %d, 链接绝对化 %d, 外链 %d",
		r.stats.LocalRefs, r.stats.FallbackRefs, r.stats.EmbeddedRefs,
		r.stats.LinksAbsolutized, r.stats.LinksExternal)
	if len(r.stats.Warnings) > 0 {
		utils.Warnf("⚠️ %d 个引用没有对应的目录记录, 已改为绝对地址", len(r.stats.Warnings))
	}
	return r.stats, nil
}

// RewriteCSS 改写任意CSS文本中的 url()/@import 引用
// base 为解析相对引用的基准, prefix 为输出文件到资源类别目录的相对前缀
func (r *Rewriter) RewriteCSS(css string, base *url.URL, prefix string) string {
	return assets.ReplaceCSS(css, func(tok assets.CSSToken) (string, bool) {
		value, result := r.resolve("style", tok.Raw, base, prefix)
		return value, result != unchanged
	})
}

// locations 按发现顺序收集所有引用位置, 同一位置只处理一次
func (r *Rewriter) locations() []location {
	seen := make(map[location]bool)
	var out []location
	for _, rec := range r.catalog.Records() {
		for _, ref := range rec.References {
			if ref.Node == nil || ref.Kind == models.RefProxyTarget {
				continue
			}
			loc := location{node: ref.Node, attr: ref.Attr, kind: ref.Kind}
			if !seen[loc] {
				seen[loc] = true
				out = append(out, loc)
			}
		}
	}
	return out
}

func (r *Rewriter) rewriteLocation(loc location, base *url.URL) {
	tag := loc.node.Data
	switch loc.kind {
	case models.RefAttribute:
		raw, ok := assets.AttrValue(loc.node, loc.attr)
		if !ok {
			return
		}
		value, result := r.resolve(tag, raw, base, "")
		if result == unchanged {
			return
		}
		assets.SetAttr(loc.node, loc.attr, value)
		if result == localCopy && (tag == "link" || tag == "script") {
			for _, attr := range sriAttrs {
				assets.RemoveAttr(loc.node, attr)
			}
		}
	case models.RefSrcset:
		raw, ok := assets.AttrValue(loc.node, loc.attr)
		if !ok {
			return
		}
		rewritten := assets.ReplaceSrcset(raw, func(c assets.SrcsetCandidate) (string, bool) {
			value, result := r.resolve(tag, c.URL, base, "")
			return value, result != unchanged
		})
		assets.SetAttr(loc.node, loc.attr, rewritten)
	case models.RefInlineStyle:
		raw, ok := assets.AttrValue(loc.node, "style")
		if !ok {
			return
		}
		assets.SetAttr(loc.node, "style", r.RewriteCSS(raw, base, ""))
	case models.RefStyleBlock:
		css := assets.TextContent(loc.node)
		if rewritten := r.RewriteCSS(css, base, ""); rewritten != css {
			assets.SetTextContent(loc.node, rewritten)
		}
	}
}

// resolve 把一个原始引用映射到改写后的值
func (r *Rewriter) resolve(tag, raw string, base *url.URL, prefix string) (string, outcome) {
	ref := strings.TrimSpace(raw)
	if assets.IsDataURL(ref) {
		r.stats.EmbeddedRefs++
		return "", unchanged
	}
	if assets.IsSkippable(ref) {
		return "", unchanged
	}

	canonical, err := assets.Canonicalize(ref, base)
	if err != nil {
		// 发现阶段已记录为 DiscoveryError
		return "", unchanged
	}
	rec, ok := r.catalog.Lookup(canonical)
	if !ok {
		// 超出样式表追踪层数等未编目引用, 相对地址在资源目录下会失效
		r.warn(&models.RewriteError{Tag: tag, Raw: ref})
		r.stats.FallbackRefs++
		return canonical, fallback
	}

	if rec.FetchState == models.FetchFetched {
		r.stats.LocalRefs++
		return rec.LocalPath(prefix), localCopy
	}
	if rec.ProxyTarget != "" {
		if target, ok := r.catalog.Lookup(rec.ProxyTarget); ok && target.FetchState == models.FetchFetched {
			r.stats.LocalRefs++
			return target.LocalPath(prefix), localCopy
		}
	}
	r.stats.FallbackRefs++
	return rec.CanonicalURL, fallback
}

// rewriteLinks 同源链接改为绝对地址, 跨源链接在新标签页打开
func (r *Rewriter) rewriteLinks(doc *goquery.Document, base *url.URL) {
	page := r.catalog.PageURL()
	doc.Find("a[href], area[href]").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		href, _ := assets.AttrValue(node, "href")
		if assets.IsSkippable(href) || assets.IsDataURL(href) {
			return
		}
		absolute, err := assets.Canonicalize(href, base)
		if err != nil {
			return
		}
		parsed, err := url.Parse(absolute)
		if err != nil {
			return
		}

		assets.SetAttr(node, "href", absolute)
		if assets.SameOrigin(parsed, page) {
			r.stats.LinksAbsolutized++
			return
		}
		assets.SetAttr(node, "target", "_blank")
		assets.SetAttr(node, "rel", "noopener noreferrer")
		r.stats.LinksExternal++
	})
}

func (r *Rewriter) warn(err *models.RewriteError) {
	r.stats.Warnings = append(r.stats.Warnings, err.Error())
	utils.Warnf("⚠️ %v", err)
}
