package core

import (
	"net/http"
	"sync"

	"github.com/RecoveryAshes/sitesnap/internal/fetcher"
	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
)

// HeaderManager 管理HTTP请求头部的合并与校验
// 实现 HeaderProvider 接口
type HeaderManager struct {
	// defaults 系统默认头部
	defaults http.Header

	// config 配置文件 headers 段
	config http.Header

	// cli 命令行 -H 参数
	cli http.Header

	validateOnce sync.Once
	validateErr  error
}

// NewHeaderManager 创建头部管理器
func NewHeaderManager(configHeaders map[string]string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults: getDefaultHeaders(),
		config:   make(http.Header),
		cli:      make(http.Header),
	}

	// viper 会把键名转成小写, Set 负责规范化
	for name, value := range configHeaders {
		hm.config.Set(name, value)
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}

	if len(hm.config) > 0 {
		utils.Debugf("从配置文件加载了 %d 个HTTP头部: %v", len(hm.config), utils.RedactHeaders(hm.config))
	}
	return hm, nil
}

// getDefaultHeaders 返回系统默认头部
func getDefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{fetcher.DefaultUserAgent},
		"Accept":          []string{"*/*"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// Validate 验证所有头部的合法性
// 验证顺序: 默认 → 配置 → 命令行
func (hm *HeaderManager) Validate() error {
	for _, layer := range []struct {
		name    string
		headers http.Header
	}{
		{"默认", hm.defaults},
		{"配置文件", hm.config},
		{"命令行", hm.cli},
	} {
		if err := utils.ValidateHeaders(layer.headers); err != nil {
			utils.Errorf("%s头部验证失败: %v", layer.name, err)
			return err
		}
	}
	return nil
}

// GetMergedHeaders 按优先级合并头部 (default < config < cli)
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// GetSafeHeaders 脱敏后的头部, 用于日志和展示
func (hm *HeaderManager) GetSafeHeaders() []string {
	return utils.RedactHeaders(hm.GetMergedHeaders())
}

// GetHeaders 实现 HeaderProvider 接口
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	hm.validateOnce.Do(func() {
		hm.validateErr = hm.Validate()
	})
	if hm.validateErr != nil {
		return nil, hm.validateErr
	}
	return hm.GetMergedHeaders(), nil
}
