package models

import (
	"fmt"
	"net/http"
	"strings"
)

// HeaderProvider 为资源下载和页面抓取提供请求头
type HeaderProvider interface {
	// GetHeaders 返回按 默认 < 配置文件 < 命令行 合并后的请求头
	GetHeaders() (http.Header, error)
}

// CliHeaders 命令行 -H 传入的 "Name: Value" 列表
type CliHeaders []string

// Parse 解析为 http.Header
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header)
	for i, s := range ch {
		name, value, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("参数 --header 第%d项缺少冒号, 应为 'Name: Value'", i+1)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("参数 --header 第%d项头部名称为空", i+1)
		}
		result.Set(name, strings.TrimSpace(value))
	}
	return result, nil
}

// ValidationError 请求头校验失败
type ValidationError struct {
	Field      string // "name" 或 "value"
	HeaderName string
	Reason     string
	Suggestion string
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("请求头校验失败 [%s]: %s", e.HeaderName, e.Reason)
	if e.Suggestion != "" {
		msg += " (建议: " + e.Suggestion + ")"
	}
	return msg
}

// ConfigError 配置文件解析失败
type ConfigError struct {
	FilePath string
	Cause    error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
