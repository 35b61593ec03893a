package utils

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/RecoveryAshes/sitesnap/internal/models"
)

// MaxHeaderValueLength 请求头值最大长度 (8KB)
const MaxHeaderValueLength = 8192

var (
	headerNamePattern  = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	headerValuePattern = regexp.MustCompile(`^[\x20-\x7E\t]*$`)

	// forbiddenHeaders 由HTTP客户端自行管理的头部
	forbiddenHeaders = map[string]bool{
		"host":              true,
		"content-length":    true,
		"transfer-encoding": true,
		"connection":        true,
	}

	// sensitiveKeywords 名称包含这些关键字的头部在日志中脱敏
	sensitiveKeywords = []string{"authorization", "cookie", "token", "key", "secret", "password", "credential"}
)

// ValidateHeader 校验单个请求头
func ValidateHeader(name, value string) error {
	switch {
	case name == "":
		return &models.ValidationError{Field: "name", HeaderName: name, Reason: "头部名称不能为空"}
	case forbiddenHeaders[strings.ToLower(name)]:
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "此头部由HTTP客户端自动管理,不允许自定义",
			Suggestion: fmt.Sprintf("移除 '%s' 头部配置", name),
		}
	case !headerNamePattern.MatchString(name):
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "头部名称包含非法字符",
			Suggestion: "仅使用字母、数字和连字符",
		}
	case len(value) > MaxHeaderValueLength:
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), MaxHeaderValueLength),
		}
	case !headerValuePattern.MatchString(value):
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     "头部值包含非法字符 (仅允许可打印ASCII字符)",
		}
	}
	return nil
}

// ValidateHeaders 校验整组请求头, 返回第一个错误
func ValidateHeaders(headers http.Header) error {
	for name, values := range headers {
		for _, value := range values {
			if err := ValidateHeader(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsSensitiveHeader 是否为敏感头部
func IsSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// RedactValue 脱敏单个头部值
func RedactValue(name, value string) string {
	switch {
	case !IsSensitiveHeader(name):
		return value
	case strings.HasPrefix(value, "Bearer "):
		return "Bearer ***"
	case len(value) > 8:
		return value[:4] + "***" + value[len(value)-4:]
	default:
		return "***"
	}
}

// RedactHeaders 返回按名称排序的脱敏头部列表, 用于日志与 --show-headers
func RedactHeaders(headers http.Header) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, name+": "+RedactValue(name, headers.Get(name)))
	}
	return lines
}
