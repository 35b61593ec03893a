package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/RecoveryAshes/sitesnap/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
snapshot:
  source: static
  wait_time: 1
fetch:
  workers: 16
  per_host_rps: 2.5
emit:
  clean: true
llm:
  enabled: true
  model: local-model
headers:
  X-Team: frontend
  Authorization: Bearer abc
batch:
  delay: 2
  continue_on_error: false
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0644))
	t.Setenv("SITESNAP_LLM_API_KEY", "env-key")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	snap := cfg.SnapshotConfig()
	assert.Equal(t, models.SourceStatic, snap.Source)
	assert.Equal(t, 1, snap.WaitTime)
	assert.Equal(t, 16, snap.Workers)
	assert.Equal(t, 2.5, snap.PerHostRPS)
	assert.True(t, snap.Clean)
	// 未配置的项使用默认值
	assert.Equal(t, 10, snap.MaxRedirects)
	assert.Equal(t, 20, snap.AssetTimeout)
	assert.True(t, snap.ConsolidateScripts)
	assert.NoError(t, snap.Validate())

	assert.True(t, cfg.LLM.Enabled)
	assert.Equal(t, "local-model", cfg.LLM.Model)
	assert.Equal(t, "env-key", cfg.LLM.APIKey, "环境变量覆盖配置")
	assert.Equal(t, 12000, cfg.LLM.MaxChars)

	assert.Equal(t, "frontend", cfg.Headers["x-team"])
	assert.Equal(t, 2, cfg.Batch.Delay)
	assert.False(t, cfg.Batch.ContinueOnError)

	logCfg := cfg.LogConfig()
	assert.Equal(t, "info", logCfg.Level)
	assert.Equal(t, 10, logCfg.MaxSize)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *models.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("snapshot: [unclosed"), 0644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func TestHeaderManager(t *testing.T) {
	hm, err := NewHeaderManager(
		map[string]string{"x-team": "frontend", "accept": "text/html"},
		[]string{"Accept: application/json", "Cookie: session=1"},
	)
	require.NoError(t, err)

	headers, err := hm.GetHeaders()
	require.NoError(t, err)
	assert.Equal(t, "frontend", headers.Get("X-Team"))
	assert.Equal(t, "application/json", headers.Get("Accept"), "命令行优先于配置文件")
	assert.Equal(t, "gzip, deflate, br", headers.Get("Accept-Encoding"))
	assert.Contains(t, headers.Get("User-Agent"), "Chrome")

	for _, line := range hm.GetSafeHeaders() {
		assert.NotContains(t, line, "session=1")
	}
}

func TestHeaderManagerErrors(t *testing.T) {
	_, err := NewHeaderManager(nil, []string{"no-colon"})
	assert.Error(t, err)

	hm, err := NewHeaderManager(map[string]string{"host": "evil.example"}, nil)
	require.NoError(t, err)
	_, err = hm.GetHeaders()
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}
