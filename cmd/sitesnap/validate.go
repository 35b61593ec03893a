package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
)

// ValidateFlags 验证命令行标志
func ValidateFlags(targetURL, urlFile, filePath string, cfg models.SnapshotConfig) error {
	// 验证URL
	if targetURL != "" {
		if err := utils.ValidateURL(targetURL); err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
	}

	if targetURL != "" && urlFile != "" {
		return fmt.Errorf("--url 与 --url-file 不能同时使用")
	}

	if cfg.Source == models.SourceFile {
		if filePath == "" {
			return fmt.Errorf("file 页面源需要通过 --file 指定HTML文件")
		}
		if urlFile != "" {
			return fmt.Errorf("file 页面源不支持批量模式")
		}
		if targetURL == "" {
			return fmt.Errorf("file 页面源需要通过 -u 指定页面原始地址作为解析基准")
		}
		if err := ValidateHTMLFile(filePath); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("参数无效: %w", err)
	}
	return nil
}

// ValidateHTMLFile 检查本地HTML文件可读
func ValidateHTMLFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("无法读取HTML文件: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("HTML文件路径是目录: %s", path)
	}
	return nil
}

// NormalizeURL 规范化URL
func NormalizeURL(urlStr string) (string, error) {
	urlStr = strings.TrimSpace(urlStr)

	// 如果没有协议,默认使用https
	if !strings.Contains(urlStr, "://") {
		urlStr = "https://" + urlStr
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	return parsed.String(), nil
}
