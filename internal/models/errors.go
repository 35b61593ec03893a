package models

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyRedirects 重定向链超过上限
	ErrTooManyRedirects = errors.New("重定向次数超过上限")
	// ErrUnsettledCatalog 改写前仍有未完成下载的资源
	ErrUnsettledCatalog = errors.New("资源目录中存在未完成的下载")
	// ErrInvalidTransition 非法的下载状态转换
	ErrInvalidTransition = errors.New("非法的下载状态转换")
	// ErrNoSnapshot 页面源没有返回任何DOM
	ErrNoSnapshot = errors.New("页面快照为空")
)

// FailureReason 单个资源下载失败的原因分类
type FailureReason string

const (
	ReasonTimeout       FailureReason = "timeout"
	ReasonHTTPStatus    FailureReason = "http_status"
	ReasonRedirectLimit FailureReason = "redirect_limit"
	ReasonTooLarge      FailureReason = "too_large"
	ReasonNetwork       FailureReason = "network"
	ReasonCancelled     FailureReason = "cancelled"
	ReasonInvalidURL    FailureReason = "invalid_url"
)

// DiscoveryError 快照中某个节点无法解析,跳过该节点继续
type DiscoveryError struct {
	Tag    string
	Attr   string
	Value  string
	Reason string
}

// Error 实现error接口
func (e *DiscoveryError) Error() string {
	value := e.Value
	if len(value) > 80 {
		value = value[:80] + "..."
	}
	return fmt.Sprintf("资源发现失败 <%s %s=%q>: %s", e.Tag, e.Attr, value, e.Reason)
}

// FetchError 单个资源下载失败(非致命)
type FetchError struct {
	URL        string
	Reason     FailureReason
	StatusCode int
	Cause      error
}

// Error 实现error接口
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("下载失败 [%s] %s: HTTP %d", e.Reason, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("下载失败 [%s] %s: %v", e.Reason, e.URL, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// RewriteError 引用在资源目录中找不到对应记录
type RewriteError struct {
	Tag string
	Raw string
}

// Error 实现error接口
func (e *RewriteError) Error() string {
	return fmt.Sprintf("引用未被编目 <%s> %q", e.Tag, e.Raw)
}

// EmitError 文件系统写入失败,整个输出无效
type EmitError struct {
	Path  string
	Cause error
}

// Error 实现error接口
func (e *EmitError) Error() string {
	return fmt.Sprintf("写入输出失败 [%s]: %v", e.Path, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *EmitError) Unwrap() error {
	return e.Cause
}
