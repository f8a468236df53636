package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/llm"
	"github.com/wwwzy/SalesAgent/internal/retention"
	"github.com/wwwzy/SalesAgent/internal/router"
	"github.com/wwwzy/SalesAgent/internal/storage"
)

type ThresholdConfig struct {
	General        float64 `mapstructure:"general"`
	Sales          float64 `mapstructure:"sales"`
	Engineer       float64 `mapstructure:"engineer"`
	DataCollection float64 `mapstructure:"data_collection"`
}

type RouterConfig struct {
	SessionCacheSize int             `mapstructure:"session_cache_size"`
	HistoryWindow    int             `mapstructure:"history_window"`
	DefaultAgent     string          `mapstructure:"default_agent"`
	Persist          bool            `mapstructure:"persist"`
	Thresholds       ThresholdConfig `mapstructure:"thresholds"`
}

// RouterThresholds 转换为 router 使用的门槛表。
func (c RouterConfig) RouterThresholds() router.Thresholds {
	return router.Thresholds{
		convo.General:        c.Thresholds.General,
		convo.Sales:          c.Thresholds.Sales,
		convo.Engineer:       c.Thresholds.Engineer,
		convo.DataCollection: c.Thresholds.DataCollection,
	}
}

type Config struct {
	Storage   storage.Config   `mapstructure:"storage"`
	LLM       llm.Config       `mapstructure:"llm"`
	Ark       llm.ArkConfig    `mapstructure:"ark"`
	Router    RouterConfig     `mapstructure:"router"`
	Retention retention.Config `mapstructure:"retention"`
	LogLevel  string           `mapstructure:"log_level"`
	LogFormat string           `mapstructure:"log_format"`
	LogFile   string           `mapstructure:"log_file"`
}

func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// 默认搜索路径
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.salesagent")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SALESAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal 只认识有默认值或显式绑定的 key，仅出现在环境变量里的 key 会被忽略。
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case llm.ProviderArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("ark.api_key is required (or set ARK_API_KEY env var)")
		}
		if c.Ark.ModelID == "" {
			return fmt.Errorf("ark.model_id is required (or set ARK_MODEL_ID env var)")
		}
	case llm.ProviderOpenAI, llm.ProviderLMStudio:
		if c.LLM.Provider == llm.ProviderOpenAI && c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for provider openai (or set OPENAI_API_KEY env var)")
		}
		if c.LLM.Model == "" {
			return fmt.Errorf("llm.model is required (or set LM_STUDIO_MODEL env var)")
		}
		if c.LLM.BaseURL == "" {
			return fmt.Errorf("llm.base_url is required (or set LM_STUDIO_URL env var)")
		}
	default:
		return fmt.Errorf("unknown llm.provider %q (want lmstudio, openai or ark)", c.LLM.Provider)
	}

	for k, v := range c.Router.RouterThresholds() {
		if v < 0 || v > 1 {
			return fmt.Errorf("router threshold for %s must be within [0,1], got %v", k, v)
		}
	}
	if c.Router.DefaultAgent != "" {
		if _, ok := convo.ParseAgentKind(c.Router.DefaultAgent); !ok {
			return fmt.Errorf("unknown router.default_agent %q", c.Router.DefaultAgent)
		}
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_file", d.LogFile)

	// Storage
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.busy_timeout", d.Storage.BusyTimeout)
	v.SetDefault("storage.enable_wal", d.Storage.EnableWAL)

	// LLM
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout)

	_ = v.BindEnv("llm.base_url", "SALESAGENT_LLM_BASE_URL", "LM_STUDIO_URL")
	_ = v.BindEnv("llm.model", "SALESAGENT_LLM_MODEL", "LM_STUDIO_MODEL")
	_ = v.BindEnv("llm.api_key", "SALESAGENT_LLM_API_KEY", "OPENAI_API_KEY")

	// Ark
	v.SetDefault("ark.api_key", "")
	v.SetDefault("ark.model_id", "")
	v.SetDefault("ark.base_url", d.Ark.BaseURL)

	_ = v.BindEnv("ark.api_key", "ARK_API_KEY")
	_ = v.BindEnv("ark.model_id", "ARK_MODEL_ID")
	_ = v.BindEnv("ark.base_url", "ARK_BASE_URL")

	// Router
	v.SetDefault("router.session_cache_size", d.Router.SessionCacheSize)
	v.SetDefault("router.history_window", d.Router.HistoryWindow)
	v.SetDefault("router.default_agent", d.Router.DefaultAgent)
	v.SetDefault("router.persist", d.Router.Persist)
	v.SetDefault("router.thresholds.general", d.Router.Thresholds.General)
	v.SetDefault("router.thresholds.sales", d.Router.Thresholds.Sales)
	v.SetDefault("router.thresholds.engineer", d.Router.Thresholds.Engineer)
	v.SetDefault("router.thresholds.data_collection", d.Router.Thresholds.DataCollection)

	// Retention
	v.SetDefault("retention.enabled", d.Retention.Enabled)
	v.SetDefault("retention.interval", d.Retention.Interval)
	v.SetDefault("retention.workers", d.Retention.Workers)
	v.SetDefault("retention.batch_rows", d.Retention.BatchRows)
	v.SetDefault("retention.idle_sleep", d.Retention.IdleSleep)
	v.SetDefault("retention.sessions.keep_all", d.Retention.Sessions.KeepAll)
	v.SetDefault("retention.audit.keep_all", d.Retention.Audit.KeepAll)
	v.SetDefault("retention.audit.keep_latest", d.Retention.Audit.KeepLatest)
}

func DefaultConfig() Config {
	th := router.DefaultThresholds()
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		LogFile:   "salesagent.log",
		Storage: storage.Config{
			Path:        "salesagent.db",
			BusyTimeout: 5 * time.Second,
			EnableWAL:   true,
		},
		LLM: llm.DefaultConfig(),
		Ark: llm.ArkConfig{BaseURL: "https://ark.cn-beijing.volces.com/api/v3"},
		Router: RouterConfig{
			SessionCacheSize: 256,
			HistoryWindow:    5,
			DefaultAgent:     string(convo.General),
			Persist:          true,
			Thresholds: ThresholdConfig{
				General:        th[convo.General],
				Sales:          th[convo.Sales],
				Engineer:       th[convo.Engineer],
				DataCollection: th[convo.DataCollection],
			},
		},
		Retention: retention.DefaultConfig(),
	}
}
