package utils

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
)

var slugUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ReadURLsFromFile 从文件中读取URL列表, 忽略空行与 # 注释
func ReadURLsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开URL文件失败: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := ValidateURL(line); err != nil {
			Warnf("跳过无效URL (行 %d): %s - %v", lineNum, line, err)
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取URL文件失败: %w", err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("URL文件中没有有效的URL")
	}

	Infof("从文件加载了 %d 个URL", len(urls))
	return urls, nil
}

// ValidateURL 验证URL格式
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("URL格式无效: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL协议必须是http或https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL缺少主机名")
	}
	return nil
}

// URLSlug 把URL转换为可用作目录名的短标识, 如 example.com_blog_post
func URLSlug(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "page"
	}
	slug := parsed.Host + strings.TrimSuffix(parsed.Path, "/")
	slug = strings.Trim(slugUnsafe.ReplaceAllString(strings.ReplaceAll(slug, "/", "_"), "-"), "_-")
	if len(slug) > 80 {
		slug = slug[:80]
	}
	if slug == "" {
		return "page"
	}
	return slug
}
