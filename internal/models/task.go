package models

import (
	"fmt"
	"time"
)

// SourceKind 页面源类型
type SourceKind string

const (
	SourceBrowser SourceKind = "browser" // go-rod 无头浏览器渲染
	SourceStatic  SourceKind = "static"  // colly 静态抓取
	SourceFile    SourceKind = "file"    // 本地保存的HTML文件
)

// SnapshotConfig 快照运行配置
type SnapshotConfig struct {
	Source      SourceKind `json:"source" mapstructure:"source"`
	WaitTime    int        `json:"wait_time" mapstructure:"wait_time"`       // 页面渲染后的等待时间(秒)
	Headless    bool       `json:"headless" mapstructure:"headless"`         // 无头模式
	ScrollSteps int        `json:"scroll_steps" mapstructure:"scroll_steps"` // 触发懒加载的滚动次数

	Workers        int     `json:"workers" mapstructure:"workers"`                     // 下载并发数
	AssetTimeout   int     `json:"asset_timeout" mapstructure:"asset_timeout"`         // 单个资源超时(秒)
	MaxRedirects   int     `json:"max_redirects" mapstructure:"max_redirects"`         // 重定向上限
	MaxAssetSizeMB int     `json:"max_asset_size_mb" mapstructure:"max_asset_size_mb"` // 单个资源大小上限(MB)
	PerHostRPS     float64 `json:"per_host_rps" mapstructure:"per_host_rps"`           // 每个主机每秒请求数, 0为不限
	InsecureTLS    bool    `json:"insecure_tls" mapstructure:"insecure_tls"`           // 跳过证书验证
	ChromeTLS      bool    `json:"chrome_tls" mapstructure:"chrome_tls"`               // 使用Chrome TLS指纹

	Clean              bool   `json:"clean" mapstructure:"clean"`                             // 移除统计/追踪脚本
	ConsolidateScripts bool   `json:"consolidate_scripts" mapstructure:"consolidate_scripts"` // 内联脚本合并到script.js
	UtilityCSS         string `json:"-" mapstructure:"utility_css"`                           // 追加到styles.css末尾的CSS

	ShowProgress bool `json:"-" mapstructure:"show_progress"`
	Overwrite    bool `json:"overwrite" mapstructure:"overwrite"` // 覆盖已存在的输出目录
}

// DefaultSnapshotConfig 默认配置
func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		Source:             SourceBrowser,
		WaitTime:           3,
		Headless:           true,
		ScrollSteps:        8,
		Workers:            8,
		AssetTimeout:       20,
		MaxRedirects:       10,
		MaxAssetSizeMB:     50,
		ConsolidateScripts: true,
		Overwrite:          true,
	}
}

// AssetTimeoutDuration 单个资源超时
func (c *SnapshotConfig) AssetTimeoutDuration() time.Duration {
	return time.Duration(c.AssetTimeout) * time.Second
}

// MaxAssetBytes 单个资源字节上限
func (c *SnapshotConfig) MaxAssetBytes() int64 {
	return int64(c.MaxAssetSizeMB) * 1024 * 1024
}

// Validate 验证配置
func (c *SnapshotConfig) Validate() error {
	switch c.Source {
	case SourceBrowser, SourceStatic, SourceFile:
	default:
		return fmt.Errorf("页面源必须是 browser、static 或 file 之一: %q", c.Source)
	}
	if c.WaitTime < 0 || c.WaitTime > 120 {
		return fmt.Errorf("等待时间必须在0-120秒之间")
	}
	if c.ScrollSteps < 0 || c.ScrollSteps > 100 {
		return fmt.Errorf("滚动次数必须在0-100之间")
	}
	if c.Workers < 1 || c.Workers > 64 {
		return fmt.Errorf("下载并发数必须在1-64之间")
	}
	if c.AssetTimeout < 1 || c.AssetTimeout > 600 {
		return fmt.Errorf("资源超时必须在1-600秒之间")
	}
	if c.MaxRedirects < 0 || c.MaxRedirects > 30 {
		return fmt.Errorf("重定向上限必须在0-30之间")
	}
	if c.MaxAssetSizeMB < 1 {
		return fmt.Errorf("资源大小上限必须大于0")
	}
	if c.PerHostRPS < 0 {
		return fmt.Errorf("每主机请求速率不能为负数")
	}
	return nil
}
