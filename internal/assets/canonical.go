package assets

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	errEmptyReference    = errors.New("空引用")
	errUnsupportedScheme = errors.New("不支持的URL协议")

	schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
)

// skippedSchemes 不参与编目也不参与改写的协议
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "sms:", "about:", "blob:"}

// IsDataURL 是否为data: URL
func IsDataURL(raw string) bool {
	return len(raw) >= 5 && strings.EqualFold(raw[:5], "data:")
}

// IsScriptURL 是否为javascript: URL
func IsScriptURL(raw string) bool {
	return len(raw) >= 11 && strings.EqualFold(raw[:11], "javascript:")
}

// IsSkippable 空引用、页内锚点和非资源协议直接跳过
func IsSkippable(raw string) bool {
	ref := strings.TrimSpace(raw)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return true
	}
	lower := strings.ToLower(ref)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// cleanReference 去除首尾空白和属性值中的换行/制表符(与浏览器处理一致)
func cleanReference(raw string) string {
	ref := strings.TrimSpace(raw)
	if strings.ContainsAny(ref, "\t\n\r") {
		ref = strings.NewReplacer("\t", "", "\n", "", "\r", "").Replace(ref)
	}
	return ref
}

// Canonicalize 将引用解析为规范URL
//
// 协议相对引用继承基准页面的协议, 根相对引用基于基准源解析,
// 相对引用基于当前页面解析, 绝对URL原样返回。不做任何查询串或尾部斜杠规范化。
func Canonicalize(raw string, base *url.URL) (string, error) {
	ref := cleanReference(raw)
	if ref == "" {
		return "", errEmptyReference
	}

	switch {
	case strings.HasPrefix(ref, "//"):
		if _, err := url.Parse(base.Scheme + ":" + ref); err != nil {
			return "", fmt.Errorf("解析协议相对URL失败: %w", err)
		}
		return base.Scheme + ":" + ref, nil
	case strings.HasPrefix(ref, "/"):
		if _, err := url.Parse(ref); err != nil {
			return "", fmt.Errorf("解析根相对URL失败: %w", err)
		}
		return base.Scheme + "://" + base.Host + ref, nil
	case schemePattern.MatchString(ref):
		parsed, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("解析绝对URL失败: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return "", fmt.Errorf("%w: %s", errUnsupportedScheme, parsed.Scheme)
		}
		return ref, nil
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("解析相对URL失败: %w", err)
	}
	return base.ResolveReference(parsed).String(), nil
}

// SameOrigin 判断两个URL是否同源
func SameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
