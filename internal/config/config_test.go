package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/llm"
	"github.com/wwwzy/SalesAgent/internal/retention"
	"github.com/wwwzy/SalesAgent/internal/storage"
)

// clearEnv 屏蔽开发机上的真实配置。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LM_STUDIO_URL", "LM_STUDIO_MODEL", "OPENAI_API_KEY",
		"ARK_API_KEY", "ARK_MODEL_ID", "ARK_BASE_URL",
		"SALESAGENT_LLM_PROVIDER", "SALESAGENT_LOG_LEVEL", "SALESAGENT_STORAGE_PATH",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "salesagent.log", cfg.LogFile)
	assert.Equal(t, "salesagent.db", cfg.Storage.Path)
	assert.True(t, cfg.Storage.EnableWAL)
	assert.Equal(t, llm.ProviderLMStudio, cfg.LLM.Provider)
	assert.Equal(t, "http://localhost:1234/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "phi-4", cfg.LLM.Model)
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 256, cfg.Router.SessionCacheSize)
	assert.Equal(t, 5, cfg.Router.HistoryWindow)
	assert.True(t, cfg.Router.Persist)
	assert.Equal(t, 0.5, cfg.Router.Thresholds.DataCollection)
	assert.Equal(t, time.Hour, cfg.Retention.Interval)
	assert.Equal(t, 720*time.Hour, cfg.Retention.Sessions.KeepAll)
	assert.Equal(t, 168*time.Hour, cfg.Retention.Audit.KeepAll)
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)

	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
log_level: "debug"
llm:
  provider: ark
ark:
  api_key: "file-key"
  model_id: "file-model"
storage:
  path: "test.db"
  busy_timeout: "10s"
router:
  persist: false
  thresholds:
    sales: 0.4
retention:
  enabled: false
  audit:
    keep_latest: 1000
`)
	require.NoError(t, os.WriteFile(configFile, content, 0644))

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, llm.ProviderArk, cfg.LLM.Provider)
	assert.Equal(t, "file-key", cfg.Ark.APIKey)
	assert.Equal(t, "test.db", cfg.Storage.Path)
	assert.Equal(t, 10*time.Second, cfg.Storage.BusyTimeout)
	assert.False(t, cfg.Router.Persist)
	assert.False(t, cfg.Retention.Enabled)
	assert.Equal(t, 1000, cfg.Retention.Audit.KeepLatest)

	th := cfg.Router.RouterThresholds()
	assert.Equal(t, 0.4, th[convo.Sales])
	// 未覆盖的字段保持默认值
	assert.Equal(t, 0.35, th[convo.Engineer])
	assert.Equal(t, retention.DefaultConfig().BatchRows, cfg.Retention.BatchRows)
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("SALESAGENT_LOG_LEVEL", "warn")
	t.Setenv("SALESAGENT_STORAGE_PATH", "env.db")
	t.Setenv("SALESAGENT_RETENTION_INTERVAL", "5m")
	t.Setenv("LM_STUDIO_URL", "http://10.0.0.5:1234/v1")
	t.Setenv("LM_STUDIO_MODEL", "llama-3")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "env.db", cfg.Storage.Path)
	assert.Equal(t, 5*time.Minute, cfg.Retention.Interval)
	assert.Equal(t, "http://10.0.0.5:1234/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "llama-3", cfg.LLM.Model)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, storage.Config{Path: "salesagent.db", BusyTimeout: 5 * time.Second, EnableWAL: true}, cfg.Storage)
	assert.Equal(t, string(convo.General), cfg.Router.DefaultAgent)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"unknown provider": {func(c *Config) { c.LLM.Provider = "bard" }, "unknown llm.provider"},
		"ark without key":  {func(c *Config) { c.LLM.Provider = llm.ProviderArk }, "ark.api_key is required"},
		"ark without model": {func(c *Config) {
			c.LLM.Provider = llm.ProviderArk
			c.Ark.APIKey = "k"
		}, "ark.model_id is required"},
		"openai without key": {func(c *Config) { c.LLM.Provider = llm.ProviderOpenAI }, "llm.api_key is required"},
		"missing model":      {func(c *Config) { c.LLM.Model = "" }, "llm.model is required"},
		"missing base url":   {func(c *Config) { c.LLM.BaseURL = "" }, "llm.base_url is required"},
		"threshold range":    {func(c *Config) { c.Router.Thresholds.Sales = 1.5 }, "router threshold"},
		"default agent":      {func(c *Config) { c.Router.DefaultAgent = "robot" }, "router.default_agent"},
		"storage path":       {func(c *Config) { c.Storage.Path = "" }, "storage.path is required"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
