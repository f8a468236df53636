package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"
)

// OpenAIGenerator 通过 OpenAI 兼容接口生成文本（LM Studio 默认监听 http://localhost:1234/v1）。
type OpenAIGenerator struct {
	client      *openai.Client
	provider    string
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

// NewOpenAIGenerator 创建 OpenAI 兼容的 Generator。
func NewOpenAIGenerator(cfg Config) *OpenAIGenerator {
	cfg = cfg.withDefaults()

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientConfig),
		provider:    cfg.Provider,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

func (g *OpenAIGenerator) request(systemPrompt, userMessage string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Stream:      stream,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMessage},
		},
	}
}

// GenerateStream 流式生成；超时覆盖整个流。
func (g *OpenAIGenerator) GenerateStream(ctx context.Context, systemPrompt, userMessage string) (*schema.StreamReader[string], error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)

	slog.Debug("llm stream starting", "provider", g.provider, "model", g.model)
	stream, err := g.client.CreateChatCompletionStream(ctx, g.request(systemPrompt, userMessage, true))
	if err != nil {
		cancel()
		slog.Error("llm stream failed to create", "provider", g.provider, "error", err)
		return nil, genErr(g.provider, "stream", err)
	}

	sr, sw := schema.Pipe[string](8)
	go func() {
		defer cancel()
		defer sw.Close()
		defer func() { _ = stream.Close() }()

		received := 0
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				if received == 0 {
					sw.Send("", genErr(g.provider, "stream", ErrEmptyResponse))
				}
				return
			}
			if err != nil {
				slog.Error("llm stream recv failed", "provider", g.provider, "error", err)
				sw.Send("", genErr(g.provider, "stream", err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			content := resp.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			received += len(content)
			if closed := sw.Send(content, nil); closed {
				return
			}
		}
	}()
	return sr, nil
}

// Generate 非流式生成。
func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, g.request(systemPrompt, userMessage, false))
	if err != nil {
		slog.Error("llm generate failed", "provider", g.provider, "error", err)
		return "", genErr(g.provider, "generate", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", genErr(g.provider, "generate", ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// Health 通过 /models 检查服务是否可用。
func (g *OpenAIGenerator) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	models, err := g.client.ListModels(ctx)
	if err != nil {
		return genErr(g.provider, "health", err)
	}
	slog.Debug("llm health ok", "provider", g.provider, "models", len(models.Models))
	return nil
}
