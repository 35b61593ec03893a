package assets

import "strings"

// SrcsetCandidate srcset中的一个候选项
type SrcsetCandidate struct {
	URL        string
	Descriptor string
	// Start/End URL在原始属性值中的字节区间
	Start int
	End   int
}

func isSrcsetSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// ParseSrcset 解析响应式图片列表, 取每个描述符前的URL
// URL内部的逗号(如data: URL)会被保留, 只有紧跟在URL后的逗号被视为分隔符
func ParseSrcset(value string) []SrcsetCandidate {
	var out []SrcsetCandidate
	n := len(value)
	i := 0
	for i < n {
		for i < n && (isSrcsetSpace(value[i]) || value[i] == ',') {
			i++
		}
		if i >= n {
			break
		}

		start := i
		for i < n && !isSrcsetSpace(value[i]) {
			i++
		}
		token := value[start:i]
		trimmed := strings.TrimRight(token, ",")

		descriptor := ""
		if len(trimmed) == len(token) {
			descStart := i
			for i < n && value[i] != ',' {
				i++
			}
			descriptor = strings.TrimSpace(value[descStart:i])
		}

		if trimmed != "" {
			out = append(out, SrcsetCandidate{
				URL:        trimmed,
				Descriptor: descriptor,
				Start:      start,
				End:        start + len(trimmed),
			})
		}
	}
	return out
}

// ReplaceSrcset 替换srcset中的URL, 保留描述符与分隔符
func ReplaceSrcset(value string, replace func(c SrcsetCandidate) (string, bool)) string {
	candidates := ParseSrcset(value)
	var b strings.Builder
	last := 0
	for _, c := range candidates {
		newURL, ok := replace(c)
		if !ok || newURL == c.URL {
			continue
		}
		b.WriteString(value[last:c.Start])
		b.WriteString(newURL)
		last = c.End
	}
	b.WriteString(value[last:])
	return b.String()
}
