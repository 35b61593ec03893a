package assets

import (
	"regexp"
	"sort"
	"strings"

	"github.com/RecoveryAshes/sitesnap/internal/models"
)

var (
	cssCommentPattern      = regexp.MustCompile(`(?s)/\*.*?\*/`)
	cssURLPattern          = regexp.MustCompile(`(?i)url\(\s*(?:"([^"]*)"|'([^']*)'|([^)'"\s]*))\s*\)`)
	cssImportStringPattern = regexp.MustCompile(`(?i)@import\s+(?:"([^"]*)"|'([^']*)')`)
	cssFontFacePattern     = regexp.MustCompile(`(?i)@font-face\s*\{`)
)

// CSSToken CSS文本中的一个URL引用
type CSSToken struct {
	// Start/End 原始CSS中URL值(不含引号)的字节区间
	Start    int
	End      int
	Raw      string
	Quoted   bool
	Import   bool
	FontFace bool
}

// Category 推断该引用的资源类别
func (t CSSToken) Category() models.AssetCategory {
	switch {
	case t.Import:
		return models.CategoryStyle
	case t.FontFace:
		return models.CategoryFont
	default:
		return categoryFromExtension(t.Raw)
	}
}

// ScanCSS 提取CSS中全部 url(...) 与 @import 引用, 注释中的内容被忽略
func ScanCSS(css string) []CSSToken {
	if !strings.Contains(strings.ToLower(css), "url(") && !strings.Contains(css, "@import") {
		return nil
	}

	// 注释替换为等长空白,保持偏移量不变
	masked := cssCommentPattern.ReplaceAllStringFunc(css, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
	fontFaces := fontFaceRanges(masked)

	var tokens []CSSToken
	for _, m := range cssURLPattern.FindAllStringSubmatchIndex(masked, -1) {
		start, end, quoted := groupSpan(m)
		if start < 0 {
			continue
		}
		tokens = append(tokens, CSSToken{
			Start:    start,
			End:      end,
			Raw:      css[start:end],
			Quoted:   quoted,
			Import:   precededByImport(masked, m[0]),
			FontFace: inRanges(fontFaces, m[0]),
		})
	}
	for _, m := range cssImportStringPattern.FindAllStringSubmatchIndex(masked, -1) {
		start, end, _ := groupSpan(m)
		if start < 0 {
			continue
		}
		tokens = append(tokens, CSSToken{
			Start:  start,
			End:    end,
			Raw:    css[start:end],
			Quoted: true,
			Import: true,
		})
	}

	sort.SliceStable(tokens, func(i, j int) bool { return tokens[i].Start < tokens[j].Start })
	return tokens
}

// ReplaceCSS 按token替换CSS中的URL, replace返回false的token保持原样
func ReplaceCSS(css string, replace func(tok CSSToken) (string, bool)) string {
	tokens := ScanCSS(css)
	if len(tokens) == 0 {
		return css
	}

	var b strings.Builder
	b.Grow(len(css))
	last := 0
	for _, tok := range tokens {
		value, ok := replace(tok)
		if !ok || value == tok.Raw {
			continue
		}
		if !tok.Quoted && strings.ContainsAny(value, "()'\" \t\n") {
			value = `"` + strings.ReplaceAll(value, `"`, "%22") + `"`
		}
		b.WriteString(css[last:tok.Start])
		b.WriteString(value)
		last = tok.End
	}
	b.WriteString(css[last:])
	return b.String()
}

// groupSpan 返回第一个命中的捕获组区间
// url() 模式的第三组是无引号形式, @import 模式只有两个带引号的组
func groupSpan(m []int) (start, end int, quoted bool) {
	groups := len(m)/2 - 1
	for g := 1; g <= groups; g++ {
		if m[2*g] >= 0 {
			return m[2*g], m[2*g+1], groups < 3 || g < 3
		}
	}
	return -1, -1, false
}

func precededByImport(masked string, pos int) bool {
	prefix := strings.TrimRight(masked[:pos], " \t\r\n")
	return len(prefix) >= 7 && strings.EqualFold(prefix[len(prefix)-7:], "@import")
}

func fontFaceRanges(masked string) [][2]int {
	var ranges [][2]int
	for _, m := range cssFontFacePattern.FindAllStringIndex(masked, -1) {
		end := len(masked)
		if i := strings.IndexByte(masked[m[1]:], '}'); i >= 0 {
			end = m[1] + i
		}
		ranges = append(ranges, [2]int{m[0], end})
	}
	return ranges
}

func inRanges(ranges [][2]int, pos int) bool {
	for _, r := range ranges {
		if pos >= r[0] && pos <= r[1] {
			return true
		}
	}
	return false
}
