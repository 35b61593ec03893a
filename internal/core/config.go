package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/sitesnap/internal/analysis"
	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/RecoveryAshes/sitesnap/internal/utils"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀, 如 SITESNAP_LLM_API_KEY
const EnvPrefix = "SITESNAP"

// Config 应用程序配置
type Config struct {
	Snapshot SnapshotSection   `mapstructure:"snapshot"`
	Fetch    FetchSection      `mapstructure:"fetch"`
	Emit     EmitSection       `mapstructure:"emit"`
	LLM      analysis.Config   `mapstructure:"llm"`
	Headers  map[string]string `mapstructure:"headers"`
	Logging  LoggingConfig     `mapstructure:"logging"`
	Output   OutputConfig      `mapstructure:"output"`
	Batch    BatchConfig       `mapstructure:"batch"`
}

// SnapshotSection 页面渲染配置
type SnapshotSection struct {
	Source      string `mapstructure:"source"`
	WaitTime    int    `mapstructure:"wait_time"`
	Headless    bool   `mapstructure:"headless"`
	ScrollSteps int    `mapstructure:"scroll_steps"`
}

// FetchSection 资源下载配置
type FetchSection struct {
	Workers        int     `mapstructure:"workers"`
	AssetTimeout   int     `mapstructure:"asset_timeout"`
	MaxRedirects   int     `mapstructure:"max_redirects"`
	MaxAssetSizeMB int     `mapstructure:"max_asset_size_mb"`
	PerHostRPS     float64 `mapstructure:"per_host_rps"`
	InsecureTLS    bool    `mapstructure:"insecure_tls"`
	ChromeTLS      bool    `mapstructure:"chrome_tls"`
}

// EmitSection 输出配置
type EmitSection struct {
	Clean              bool   `mapstructure:"clean"`
	ConsolidateScripts bool   `mapstructure:"consolidate_scripts"`
	UtilityCSS         string `mapstructure:"utility_css"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出目录配置
type OutputConfig struct {
	BaseDir      string `mapstructure:"base_dir"`
	Overwrite    bool   `mapstructure:"overwrite"`
	ShowProgress bool   `mapstructure:"show_progress"`
}

// BatchConfig 批量模式配置
type BatchConfig struct {
	Delay           int  `mapstructure:"delay"` // 秒
	ContinueOnError bool `mapstructure:"continue_on_error"`
}

// LoadConfig 加载配置文件, 找不到文件时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".sitesnap"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
	} else {
		utils.Debugf("使用配置文件: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	d := models.DefaultSnapshotConfig()

	v.SetDefault("snapshot.source", string(d.Source))
	v.SetDefault("snapshot.wait_time", d.WaitTime)
	v.SetDefault("snapshot.headless", d.Headless)
	v.SetDefault("snapshot.scroll_steps", d.ScrollSteps)

	v.SetDefault("fetch.workers", d.Workers)
	v.SetDefault("fetch.asset_timeout", d.AssetTimeout)
	v.SetDefault("fetch.max_redirects", d.MaxRedirects)
	v.SetDefault("fetch.max_asset_size_mb", d.MaxAssetSizeMB)
	v.SetDefault("fetch.per_host_rps", 0.0)
	v.SetDefault("fetch.insecure_tls", false)
	v.SetDefault("fetch.chrome_tls", false)

	v.SetDefault("emit.clean", false)
	v.SetDefault("emit.consolidate_scripts", d.ConsolidateScripts)
	v.SetDefault("emit.utility_css", "")

	llm := analysis.DefaultConfig()
	v.SetDefault("llm.enabled", llm.Enabled)
	v.SetDefault("llm.base_url", llm.BaseURL)
	v.SetDefault("llm.model", llm.Model)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout", llm.Timeout)
	v.SetDefault("llm.max_chars", llm.MaxChars)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.base_dir", "output")
	v.SetDefault("output.overwrite", d.Overwrite)
	v.SetDefault("output.show_progress", true)

	v.SetDefault("batch.delay", 0)
	v.SetDefault("batch.continue_on_error", true)
}

// SnapshotConfig 展开为单次运行配置
func (c *Config) SnapshotConfig() models.SnapshotConfig {
	return models.SnapshotConfig{
		Source:             models.SourceKind(c.Snapshot.Source),
		WaitTime:           c.Snapshot.WaitTime,
		Headless:           c.Snapshot.Headless,
		ScrollSteps:        c.Snapshot.ScrollSteps,
		Workers:            c.Fetch.Workers,
		AssetTimeout:       c.Fetch.AssetTimeout,
		MaxRedirects:       c.Fetch.MaxRedirects,
		MaxAssetSizeMB:     c.Fetch.MaxAssetSizeMB,
		PerHostRPS:         c.Fetch.PerHostRPS,
		InsecureTLS:        c.Fetch.InsecureTLS,
		ChromeTLS:          c.Fetch.ChromeTLS,
		Clean:              c.Emit.Clean,
		ConsolidateScripts: c.Emit.ConsolidateScripts,
		UtilityCSS:         c.Emit.UtilityCSS,
		ShowProgress:       c.Output.ShowProgress,
		Overwrite:          c.Output.Overwrite,
	}
}

// LogConfig 转换为日志系统配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}
