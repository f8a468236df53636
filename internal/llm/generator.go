package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
)

// 支持的 Provider。
const (
	ProviderLMStudio = "lmstudio"
	ProviderOpenAI   = "openai"
	ProviderArk      = "ark"
)

// Config 为文本生成服务配置。lmstudio/openai 走 OpenAI 兼容接口，ark 走火山方舟。
type Config struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ArkConfig 为火山方舟模型配置。
type ArkConfig struct {
	APIKey  string `mapstructure:"api_key"`
	ModelID string `mapstructure:"model_id"`
	BaseURL string `mapstructure:"base_url"`
}

// DefaultConfig 默认连接本地 LM Studio。
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderLMStudio,
		BaseURL:     "http://localhost:1234/v1",
		Model:       "phi-4",
		Temperature: 0.7,
		MaxTokens:   500,
		Timeout:     30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Provider == "" {
		c.Provider = d.Provider
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	return c
}

// Generator 为文本生成协作方。
// GenerateStream 中途失败时，错误以 *GenerationError 从 Recv 返回；io.EOF 表示正常结束。
type Generator interface {
	GenerateStream(ctx context.Context, systemPrompt, userMessage string) (*schema.StreamReader[string], error)
	Generate(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// HealthChecker 由支持连通性检查的 Generator 实现。
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ErrGeneration 可通过 errors.Is 匹配所有生成失败。
var ErrGeneration = errors.New("generation failed")

// ErrEmptyResponse 表示模型没有返回任何内容。
var ErrEmptyResponse = errors.New("empty response from model")

// GenerationError 包装网络、超时、非 2xx 与空响应等失败。
type GenerationError struct {
	Op       string
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

func genErr(provider, op string, err error) error {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Op: op, Provider: provider, Err: err}
}

// NewGenerator 按 Provider 创建 Generator。
func NewGenerator(ctx context.Context, cfg Config, arkCfg ArkConfig) (Generator, error) {
	cfg = cfg.withDefaults()
	switch cfg.Provider {
	case ProviderLMStudio, ProviderOpenAI:
		return NewOpenAIGenerator(cfg), nil
	case ProviderArk:
		return NewArkGenerator(ctx, cfg, arkCfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Collect 读完流并拼接全部分片。
func Collect(sr *schema.StreamReader[string]) (string, error) {
	defer sr.Close()
	var b strings.Builder
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
