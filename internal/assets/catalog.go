package assets

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"golang.org/x/net/html"
)

var (
	// lazySourceAttrs 懒加载属性, 与src同等对待
	lazySourceAttrs = []string{"data-src", "data-lazy-src", "data-original", "data-lazy"}
	// srcsetAttrs 响应式图片列表属性
	srcsetAttrs = []string{"srcset", "data-srcset", "data-lazy-srcset"}
	// proxyParams 图片代理/优化服务携带真实地址的查询参数
	proxyParams = []string{"url", "src", "image", "img", "u"}
	// backgroundTags 支持旧式 background 属性的元素
	backgroundTags = map[string]bool{"body": true, "table": true, "td": true, "th": true}
)

// Catalog 资源目录
// 发现阶段单线程追加记录, 下载阶段每个worker只修改自己负责的记录
type Catalog struct {
	pageURL *url.URL
	base    *url.URL

	records []*models.AssetRecord
	index   map[string]*models.AssetRecord
	issues  []*models.DiscoveryError

	now func() time.Time
}

// NewCatalog 创建资源目录, baseURL必须是绝对URL
func NewCatalog(baseURL string) (*Catalog, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("解析基准URL失败: %w", err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("基准URL必须是绝对地址: %s", baseURL)
	}
	return &Catalog{
		pageURL: base,
		base:    base,
		index:   make(map[string]*models.AssetRecord),
		now:     time.Now,
	}, nil
}

// Discover 解析DOM快照并返回全部资源记录
func Discover(domSnapshot, baseURL string) ([]*models.AssetRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(domSnapshot))
	if err != nil {
		return nil, fmt.Errorf("解析DOM快照失败: %w", err)
	}
	c, err := NewCatalog(baseURL)
	if err != nil {
		return nil, err
	}
	c.DiscoverDocument(doc)
	return c.Records(), nil
}

// DiscoverDocument 按文档顺序扫描所有元素, 返回本次新增的记录
func (c *Catalog) DiscoverDocument(doc *goquery.Document) []*models.AssetRecord {
	before := len(c.records)
	c.applyBaseElement(doc)

	doc.Find("*").Each(func(i int, s *goquery.Selection) {
		c.scanElement(s.Get(0), i)
	})

	added := c.records[before:]
	utils.Debugf("资源发现完成: 新增 %d 条记录, 问题 %d 个", len(added), len(c.issues))
	return added
}

// DiscoverStylesheet 扫描已下载的外部样式表正文, 相对引用基于样式表的最终地址解析
func (c *Catalog) DiscoverStylesheet(rec *models.AssetRecord) []*models.AssetRecord {
	if rec.Category != models.CategoryStyle || rec.FetchState != models.FetchFetched || len(rec.Content) == 0 {
		return nil
	}
	base, err := url.Parse(rec.BaseURL())
	if err != nil {
		c.addIssue("link", "href", rec.CanonicalURL, err.Error())
		return nil
	}

	before := len(c.records)
	loc := models.Reference{Kind: models.RefStylesheet, Tag: "link", NodeIndex: -1, Owner: rec.CanonicalURL}
	c.scanCSS(string(rec.Content), loc, base)
	return c.records[before:]
}

// Records 返回全部记录(发现顺序)
func (c *Catalog) Records() []*models.AssetRecord {
	out := make([]*models.AssetRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Pending 返回仍待下载的记录
func (c *Catalog) Pending() []*models.AssetRecord {
	var out []*models.AssetRecord
	for _, rec := range c.records {
		if rec.FetchState == models.FetchPending {
			out = append(out, rec)
		}
	}
	return out
}

// Lookup 按规范URL查找记录
func (c *Catalog) Lookup(canonicalURL string) (*models.AssetRecord, bool) {
	rec, ok := c.index[canonicalURL]
	return rec, ok
}

// LookupEmbedded 按data: URL原文查找内嵌记录
func (c *Catalog) LookupEmbedded(dataURL string) (*models.AssetRecord, bool) {
	rec, ok := c.index[strings.TrimSpace(dataURL)]
	return rec, ok
}

// Base 文档引用的解析基准(考虑 <base href>)
func (c *Catalog) Base() *url.URL {
	return c.base
}

// PageURL 页面地址
func (c *Catalog) PageURL() *url.URL {
	return c.pageURL
}

// Resolve 用文档基准规范化引用
func (c *Catalog) Resolve(raw string) (string, error) {
	return Canonicalize(raw, c.base)
}

// Issues 发现阶段跳过的节点
func (c *Catalog) Issues() []*models.DiscoveryError {
	return c.issues
}

func (c *Catalog) applyBaseElement(doc *goquery.Document) {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return
	}
	resolved, err := Canonicalize(href, c.pageURL)
	if err != nil {
		c.addIssue("base", "href", href, err.Error())
		return
	}
	if base, err := url.Parse(resolved); err == nil {
		c.base = base
		utils.Debugf("使用 <base href> 作为解析基准: %s", resolved)
	}
}

func (c *Catalog) scanElement(node *html.Node, idx int) {
	tag := node.Data
	loc := models.Reference{Tag: tag, NodeIndex: idx, Node: node}

	switch tag {
	case "img":
		c.scanAttr(loc, "src", models.CategoryImage)
		c.scanAttrs(loc, lazySourceAttrs, models.CategoryImage)
		c.scanSrcsets(loc, models.CategoryImage)
	case "source":
		category := models.CategoryImage
		if p := node.Parent; p != nil && (p.Data == "video" || p.Data == "audio") {
			category = models.CategoryMedia
		}
		c.scanAttr(loc, "src", category)
		c.scanAttrs(loc, lazySourceAttrs, category)
		c.scanSrcsets(loc, models.CategoryImage)
	case "video":
		c.scanAttr(loc, "src", models.CategoryMedia)
		c.scanAttrs(loc, lazySourceAttrs, models.CategoryMedia)
		c.scanAttr(loc, "poster", models.CategoryImage)
		c.scanAttr(loc, "data-poster", models.CategoryImage)
	case "audio", "track":
		c.scanAttr(loc, "src", models.CategoryMedia)
	case "input":
		if t, _ := AttrValue(node, "type"); strings.EqualFold(t, "image") {
			c.scanAttr(loc, "src", models.CategoryImage)
		}
	case "script":
		c.scanAttr(loc, "src", models.CategoryScript)
	case "link":
		c.scanLink(loc)
	case "image":
		// SVG <image href|xlink:href>
		c.scanAttr(loc, "href", models.CategoryImage)
	case "style":
		ref := loc
		ref.Kind = models.RefStyleBlock
		c.scanCSS(TextContent(node), ref, c.base)
	}

	if backgroundTags[tag] {
		c.scanAttr(loc, "background", models.CategoryImage)
	}
	if style, ok := AttrValue(node, "style"); ok && style != "" {
		ref := loc
		ref.Kind = models.RefInlineStyle
		ref.Attr = "style"
		c.scanCSS(style, ref, c.base)
	}
}

func (c *Catalog) scanLink(loc models.Reference) {
	rel, _ := AttrValue(loc.Node, "rel")
	as, _ := AttrValue(loc.Node, "as")
	if category, ok := LinkCategory(rel, as); ok {
		c.scanAttr(loc, "href", category)
	}
	c.scanSrcset(loc, "imagesrcset", models.CategoryImage)
}

// LinkCategory 根据 <link> 的 rel/as 判断资源类别
func LinkCategory(rel, as string) (models.AssetCategory, bool) {
	tokens := strings.Fields(strings.ToLower(rel))
	has := func(want ...string) bool {
		for _, t := range tokens {
			for _, w := range want {
				if t == w {
					return true
				}
			}
		}
		return false
	}

	switch {
	case has("stylesheet"):
		return models.CategoryStyle, true
	case has("icon", "apple-touch-icon", "apple-touch-icon-precomposed", "mask-icon"):
		return models.CategoryIcon, true
	case has("modulepreload"):
		return models.CategoryScript, true
	case has("preload", "prefetch"):
		switch strings.ToLower(strings.TrimSpace(as)) {
		case "style":
			return models.CategoryStyle, true
		case "script":
			return models.CategoryScript, true
		case "font":
			return models.CategoryFont, true
		case "image":
			return models.CategoryImage, true
		case "audio", "video", "track":
			return models.CategoryMedia, true
		}
	}
	return "", false
}

func (c *Catalog) scanAttrs(loc models.Reference, attrs []string, category models.AssetCategory) {
	for _, attr := range attrs {
		c.scanAttr(loc, attr, category)
	}
}

func (c *Catalog) scanAttr(loc models.Reference, attr string, category models.AssetCategory) {
	raw, ok := AttrValue(loc.Node, attr)
	if !ok {
		return
	}
	ref := loc
	ref.Kind = models.RefAttribute
	ref.Attr = attr
	ref.Raw = cleanReference(raw)
	c.catalogReference(ref, category, c.base)
}

func (c *Catalog) scanSrcsets(loc models.Reference, category models.AssetCategory) {
	for _, attr := range srcsetAttrs {
		c.scanSrcset(loc, attr, category)
	}
}

func (c *Catalog) scanSrcset(loc models.Reference, attr string, category models.AssetCategory) {
	value, ok := AttrValue(loc.Node, attr)
	if !ok {
		return
	}
	for _, candidate := range ParseSrcset(value) {
		ref := loc
		ref.Kind = models.RefSrcset
		ref.Attr = attr
		ref.Raw = candidate.URL
		c.catalogReference(ref, category, c.base)
	}
}

func (c *Catalog) scanCSS(css string, loc models.Reference, base *url.URL) {
	for _, tok := range ScanCSS(css) {
		ref := loc
		ref.Raw = cleanReference(tok.Raw)
		c.catalogReference(ref, tok.Category(), base)
	}
}

// catalogReference 规范化一个引用并合并到目录
func (c *Catalog) catalogReference(ref models.Reference, category models.AssetCategory, base *url.URL) {
	raw := ref.Raw
	if IsSkippable(raw) {
		return
	}
	if IsDataURL(raw) {
		c.addEmbedded(ref, category)
		return
	}

	canonical, err := Canonicalize(raw, base)
	if err != nil {
		c.addIssue(ref.Tag, ref.Attr, raw, err.Error())
		return
	}

	rec := c.upsert(canonical, category, ref)
	if rec.Category == models.CategoryImage || rec.Category == models.CategoryIcon {
		c.catalogProxyTarget(rec, ref)
	}
}

func (c *Catalog) upsert(canonical string, category models.AssetCategory, ref models.Reference) *models.AssetRecord {
	if rec, ok := c.index[canonical]; ok {
		rec.AddReference(ref)
		return rec
	}
	rec := &models.AssetRecord{
		ID:            models.NewID(),
		CanonicalURL:  canonical,
		Category:      category,
		LocalFilename: MakeAssetFilename(canonical, category),
		Origin:        models.OriginRemote,
		FetchState:    models.FetchPending,
		DiscoveredAt:  c.now(),
	}
	rec.AddReference(ref)
	c.records = append(c.records, rec)
	c.index[canonical] = rec
	return rec
}

// catalogProxyTarget 代理/优化图片URL同时编目其携带的真实地址
func (c *Catalog) catalogProxyTarget(proxy *models.AssetRecord, ref models.Reference) {
	proxyURL, err := url.Parse(proxy.CanonicalURL)
	if err != nil || proxyURL.RawQuery == "" {
		return
	}
	query := proxyURL.Query()
	for _, param := range proxyParams {
		value := strings.TrimSpace(query.Get(param))
		if value == "" {
			continue
		}
		lower := strings.ToLower(value)
		if !strings.HasPrefix(value, "/") && !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			continue
		}
		target, err := Canonicalize(value, proxyURL)
		if err != nil || target == proxy.CanonicalURL {
			continue
		}

		proxy.ProxyTarget = target
		derived := ref
		derived.Kind = models.RefProxyTarget
		derived.Raw = value
		c.upsert(target, proxy.Category, derived)
		return
	}
}

// addEmbedded 解码data: URL, 生成无需下载的内嵌记录
func (c *Catalog) addEmbedded(ref models.Reference, category models.AssetCategory) {
	key := strings.TrimSpace(ref.Raw)
	if category == models.CategoryScript || category == models.CategoryStyle {
		return
	}

	// 报告中只保留MIME类型, 不保存整段数据
	if rec, ok := c.index[key]; ok {
		ref.Raw = "data:" + rec.MimeType
		rec.AddReference(ref)
		return
	}

	data, err := DecodeDataURL(key)
	if err != nil {
		c.addIssue(ref.Tag, ref.Attr, key, err.Error())
		return
	}
	ref.Raw = "data:" + data.MimeType

	category = categoryForMime(data.MimeType, category)
	now := c.now()
	rec := &models.AssetRecord{
		ID:            models.NewID(),
		Category:      category,
		LocalFilename: EmbeddedFilename(data.MimeType, category, now),
		Origin:        models.OriginEmbedded,
		FetchState:    models.FetchFetched,
		MimeType:      data.MimeType,
		Size:          int64(len(data.Data)),
		Content:       data.Data,
		DiscoveredAt:  now,
		SettledAt:     now,
	}
	rec.AddReference(ref)
	c.records = append(c.records, rec)
	c.index[key] = rec
}

func (c *Catalog) addIssue(tag, attr, value, reason string) {
	issue := &models.DiscoveryError{Tag: tag, Attr: attr, Value: value, Reason: reason}
	c.issues = append(c.issues, issue)
	utils.Debugf("跳过无法解析的引用: %v", issue)
}
