package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ArkGenerator 基于 eino ChatModel 生成文本，默认使用火山方舟。
type ArkGenerator struct {
	chatModel model.BaseChatModel
	timeout   time.Duration
}

// NewChatModel 初始化 Ark ChatModel
func NewChatModel(ctx context.Context, cfg Config, arkCfg ArkConfig) (*ark.ChatModel, error) {
	if arkCfg.APIKey == "" || arkCfg.ModelID == "" {
		return nil, fmt.Errorf("ARK_API_KEY, ARK_MODEL_ID must be set")
	}

	cfg = cfg.withDefaults()
	timeout := cfg.Timeout
	maxTokens := cfg.MaxTokens
	temperature := cfg.Temperature

	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:      arkCfg.APIKey,
		Model:       arkCfg.ModelID,
		BaseURL:     arkCfg.BaseURL,
		Timeout:     &timeout,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("init ark chat model: %w", err)
	}
	return chatModel, nil
}

// NewArkGenerator 创建基于 Ark 的 Generator。
func NewArkGenerator(ctx context.Context, cfg Config, arkCfg ArkConfig) (*ArkGenerator, error) {
	cm, err := NewChatModel(ctx, cfg, arkCfg)
	if err != nil {
		return nil, err
	}
	return NewChatModelGenerator(cm, cfg.withDefaults().Timeout), nil
}

// NewChatModelGenerator 将任意 eino ChatModel 适配为 Generator。
func NewChatModelGenerator(cm model.BaseChatModel, timeout time.Duration) *ArkGenerator {
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &ArkGenerator{chatModel: cm, timeout: timeout}
}

func messages(systemPrompt, userMessage string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userMessage),
	}
}

// GenerateStream 流式生成，输出为纯文本分片。
func (g *ArkGenerator) GenerateStream(ctx context.Context, systemPrompt, userMessage string) (*schema.StreamReader[string], error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)

	msgStream, err := g.chatModel.Stream(ctx, messages(systemPrompt, userMessage))
	if err != nil {
		cancel()
		slog.Error("llm stream failed to create", "provider", ProviderArk, "error", err)
		return nil, genErr(ProviderArk, "stream", err)
	}

	sr, sw := schema.Pipe[string](8)
	go func() {
		defer cancel()
		defer sw.Close()
		defer msgStream.Close()

		text, err := forward(msgStream, sw)
		if err != nil {
			sw.Send("", genErr(ProviderArk, "stream", err))
			return
		}
		if text == 0 {
			sw.Send("", genErr(ProviderArk, "stream", ErrEmptyResponse))
		}
	}()
	return sr, nil
}

// forward 转发消息流中的文本，返回转发的字节数。
func forward(in *schema.StreamReader[*schema.Message], out *schema.StreamWriter[string]) (int, error) {
	n := 0
	for {
		msg, err := in.Recv()
		if err != nil {
			if isEOF(err) {
				return n, nil
			}
			return n, err
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		n += len(msg.Content)
		if closed := out.Send(msg.Content, nil); closed {
			return n, nil
		}
	}
}

// Generate 非流式生成。
func (g *ArkGenerator) Generate(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msg, err := g.chatModel.Generate(ctx, messages(systemPrompt, userMessage))
	if err != nil {
		return "", genErr(ProviderArk, "generate", err)
	}
	if msg == nil || msg.Content == "" {
		return "", genErr(ProviderArk, "generate", ErrEmptyResponse)
	}
	return msg.Content, nil
}
