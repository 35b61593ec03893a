package emitter

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/sitesnap/internal/assets"
	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/rewriter"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// 输出项目顶层文件
const (
	IndexFile  = "index.html"
	StylesFile = "styles.css"
	ScriptFile = "script.js"

	// stylesheetPrefix 样式表副本位于 assets/styles/, 引用其他类别目录需要回到上一级
	stylesheetPrefix = "../"
)

var cssImportStatement = regexp.MustCompile(`(?i)@import\s+(url\([^)]*\)|"[^"]*"|'[^']*')([^;]*);`)

// classicScriptTypes 可以合并到 script.js 的内联脚本类型
var classicScriptTypes = map[string]bool{
	"":                       true,
	"text/javascript":        true,
	"application/javascript": true,
}

// Options 输出配置
type Options struct {
	ConsolidateScripts bool
	UtilityCSS         string
}

// Emitter 写出最终项目目录
type Emitter struct {
	rewriter *rewriter.Rewriter
	opts     Options

	result *models.EmitResult
}

// New 创建输出器, 样式表正文通过rw改写
func New(rw *rewriter.Rewriter, opts Options) *Emitter {
	return &Emitter{rewriter: rw, opts: opts}
}

// Emit 写出内嵌资源、合并样式与脚本、写入 index.html
// 任何文件系统错误都是致命的 EmitError
func (e *Emitter) Emit(doc *goquery.Document, records []*models.AssetRecord, outputDir string, meta models.SnapshotMeta) (*models.EmitResult, error) {
	e.result = &models.EmitResult{}

	if err := e.writeEmbedded(records, outputDir); err != nil {
		return nil, err
	}
	if err := e.writeStylesheetCopies(records, outputDir); err != nil {
		return nil, err
	}
	if err := e.consolidateStyles(doc, records, outputDir); err != nil {
		return nil, err
	}
	if e.opts.ConsolidateScripts {
		if err := e.consolidateScripts(doc, outputDir); err != nil {
			return nil, err
		}
	}

	annotate(doc, meta)

	var buf bytes.Buffer
	for _, node := range doc.Nodes {
		if err := html.Render(&buf, node); err != nil {
			return nil, fmt.Errorf("渲染HTML失败: %w", err)
		}
	}
	if err := e.writeFile(outputDir, IndexFile, buf.Bytes()); err != nil {
		return nil, err
	}

	utils.Infof("📦 项目输出完成: %d 个文件, 合并样式 %d 段, 合并脚本 %d 段",
		len(e.result.Files), e.result.StylesConsolidated, e.result.ScriptsInlined)
	return e.result, nil
}

// writeEmbedded data: URL资源在发现阶段已解码, 这里直接落盘
func (e *Emitter) writeEmbedded(records []*models.AssetRecord, outputDir string) error {
	for _, rec := range records {
		if !rec.IsEmbedded() {
			continue
		}
		if err := e.writeFile(outputDir, rec.LocalPath(""), rec.Content); err != nil {
			return err
		}
	}
	return nil
}

// writeStylesheetCopies 已下载样式表中的引用改写为相对 assets/styles/ 的路径
func (e *Emitter) writeStylesheetCopies(records []*models.AssetRecord, outputDir string) error {
	for _, rec := range records {
		if rec.Category != models.CategoryStyle || rec.FetchState != models.FetchFetched || rec.IsEmbedded() || rec.Content == nil {
			continue
		}
		base, err := url.Parse(rec.BaseURL())
		if err != nil {
			continue
		}
		css := e.rewriter.RewriteCSS(string(rec.Content), base, stylesheetPrefix)
		if err := e.writeFile(outputDir, rec.LocalPath(""), []byte(css)); err != nil {
			return err
		}
	}
	return nil
}

// consolidateStyles 按文档顺序合并外部样式表与 <style> 块到 styles.css
func (e *Emitter) consolidateStyles(doc *goquery.Document, records []*models.AssetRecord, outputDir string) error {
	linkRecords := make(map[*html.Node]*models.AssetRecord)
	for _, rec := range records {
		for _, ref := range rec.References {
			if ref.Node != nil && ref.Tag == "link" && ref.Attr == "href" {
				linkRecords[ref.Node] = rec
			}
		}
	}

	var chunks []styleChunk
	var consumed []*html.Node
	doc.Find("link, style").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		media, _ := s.Attr("media")

		switch node.Data {
		case "link":
			rel, _ := s.Attr("rel")
			// 备用样式表默认不启用, 保留原 <link>
			if !hasToken(rel, "stylesheet") || hasToken(rel, "alternate") {
				return
			}
			rec := linkRecords[node]
			// 下载失败的样式表保留原 <link>, 指向原始地址
			if rec == nil || rec.FetchState != models.FetchFetched || rec.Content == nil {
				return
			}
			base, err := url.Parse(rec.BaseURL())
			if err != nil {
				return
			}
			css := e.rewriter.RewriteCSS(string(rec.Content), base, "")
			chunks = append(chunks, styleChunk{label: rec.CanonicalURL, css: css, media: media})
		case "style":
			if t, _ := s.Attr("type"); t != "" && !strings.EqualFold(t, "text/css") {
				return
			}
			if node.Parent != nil && node.Parent.Namespace == "svg" {
				return
			}
			chunks = append(chunks, styleChunk{label: fmt.Sprintf("<style> #%d", len(consumed)+1), css: assets.TextContent(node), media: media})
		}
		consumed = append(consumed, node)
	})

	if utility := strings.TrimSpace(e.opts.UtilityCSS); utility != "" {
		chunks = append(chunks, styleChunk{label: "utility", css: utility})
	}
	if len(chunks) == 0 {
		return nil
	}

	stylesheet := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Link,
		Data:     "link",
		Attr:     []html.Attribute{{Key: "rel", Val: "stylesheet"}, {Key: "href", Val: StylesFile}},
	}
	if len(consumed) > 0 {
		consumed[0].Parent.InsertBefore(stylesheet, consumed[0])
	} else if head := doc.Find("head").Get(0); head != nil {
		head.AppendChild(stylesheet)
	}
	for _, node := range consumed {
		node.Parent.RemoveChild(node)
	}

	e.result.StylesConsolidated = len(consumed)
	return e.writeFile(outputDir, StylesFile, []byte(hoistImports(chunks)))
}

// consolidateScripts 内联经典脚本按文档顺序合并到 script.js, 在 body 末尾引用
func (e *Emitter) consolidateScripts(doc *goquery.Document, outputDir string) error {
	var chunks []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, hasSrc := s.Attr("src"); hasSrc {
			return
		}
		t, _ := s.Attr("type")
		if !classicScriptTypes[strings.ToLower(strings.TrimSpace(t))] {
			return
		}
		node := s.Get(0)
		code := assets.TextContent(node)
		if strings.TrimSpace(code) == "" {
			return
		}
		chunks = append(chunks, fmt.Sprintf("/* inline script #%d */\n%s\n;", len(chunks)+1, code))
		node.Parent.RemoveChild(node)
	})
	if len(chunks) == 0 {
		return nil
	}

	body := doc.Find("body").Get(0)
	if body == nil {
		return nil
	}
	body.AppendChild(&html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
		Attr:     []html.Attribute{{Key: "src", Val: ScriptFile}},
	})

	e.result.ScriptsInlined = len(chunks)
	return e.writeFile(outputDir, ScriptFile, []byte(strings.Join(chunks, "\n\n")+"\n"))
}

// annotate 写入快照元数据和文件头注释
func annotate(doc *goquery.Document, meta models.SnapshotMeta) {
	head := doc.Find("head").Get(0)
	if head != nil {
		tags := [][2]string{
			{"snapshot-source", meta.SourceURL},
			{"snapshot-framework", meta.Framework},
			{"snapshot-generated", meta.GeneratedAt.UTC().Format(time.RFC3339)},
		}
		if doc.Find(`meta[name="generator"]`).Length() == 0 {
			tags = append([][2]string{{"generator", meta.Generator}}, tags...)
		}
		for _, tag := range tags {
			head.AppendChild(&html.Node{
				Type:     html.ElementNode,
				DataAtom: atom.Meta,
				Data:     "meta",
				Attr:     []html.Attribute{{Key: "name", Val: tag[0]}, {Key: "content", Val: tag[1]}},
			})
		}
	}

	comment := &html.Node{
		Type: html.CommentNode,
		Data: fmt.Sprintf(" 离线快照: %s | 框架: %s | 生成时间: %s | %s ",
			meta.SourceURL, meta.Framework, meta.GeneratedAt.Format("2006-01-02 15:04:05"), meta.Generator),
	}
	if root := doc.Find("html").Get(0); root != nil && root.Parent != nil {
		root.Parent.InsertBefore(comment, root)
	}
}

func (e *Emitter) writeFile(outputDir, relPath string, data []byte) error {
	target := filepath.Join(outputDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return &models.EmitError{Path: target, Cause: err}
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return &models.EmitError{Path: target, Cause: err}
	}
	e.result.Files = append(e.result.Files, relPath)
	e.result.BytesWritten += int64(len(data))
	return nil
}

func wrapMedia(css, media string) string {
	media = strings.TrimSpace(media)
	if media == "" || strings.EqualFold(media, "all") {
		return css
	}
	return fmt.Sprintf("@media %s {\n%s\n}", media, css)
}

// styleChunk styles.css 中的一段, media 来自原 <link>/<style> 的 media 属性
type styleChunk struct {
	label string
	css   string
	media string
}

// hoistImports @import 只在样式表开头生效, 合并后统一提到文件顶部
// 来自带 media 的块的 @import 把条件并入语句本身
func hoistImports(chunks []styleChunk) string {
	var imports []string
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		css := cssImportStatement.ReplaceAllStringFunc(chunk.css, func(stmt string) string {
			imports = append(imports, importWithMedia(stmt, chunk.media))
			return ""
		})
		parts = append(parts, fmt.Sprintf("/* %s */\n%s", chunk.label, wrapMedia(css, chunk.media)))
	}

	var b strings.Builder
	for _, stmt := range imports {
		b.WriteString(stmt)
		b.WriteString("\n")
	}
	if len(imports) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(strings.Join(parts, "\n\n"))
	b.WriteString("\n")
	return b.String()
}

// importWithMedia 把外层 media 条件合并进 @import 语句
func importWithMedia(stmt, media string) string {
	media = strings.TrimSpace(media)
	if media == "" || strings.EqualFold(media, "all") {
		return stmt
	}
	m := cssImportStatement.FindStringSubmatch(stmt)
	if m == nil {
		return stmt
	}
	target, own := m[1], strings.TrimSpace(m[2])
	if own == "" || strings.EqualFold(own, "all") {
		return fmt.Sprintf("@import %s %s;", target, media)
	}
	if strings.EqualFold(own, media) {
		return stmt
	}
	// 只有外层是单个纯条件时才能与自身的media列表逐项相与
	if strings.HasPrefix(media, "(") && !strings.Contains(media, ",") {
		queries := strings.Split(own, ",")
		for i, q := range queries {
			queries[i] = strings.TrimSpace(q) + " and " + media
		}
		return fmt.Sprintf("@import %s %s;", target, strings.Join(queries, ", "))
	}
	utils.Warnf("⚠️ 无法合并 @import 的media条件 (%s / %s), 保留原语句", own, media)
	return stmt
}

func hasToken(list, token string) bool {
	for _, t := range strings.Fields(strings.ToLower(list)) {
		if t == token {
			return true
		}
	}
	return false
}
