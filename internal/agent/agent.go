package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/intent"
	"github.com/wwwzy/SalesAgent/internal/llm"
)

// ApologyMessage 为生成失败时返回给用户的唯一分片。
const ApologyMessage = "Lo siento, ha ocurrido un error al procesar tu mensaje. Por favor, inténtalo de nuevo."

const defaultHistoryWindow = 5

// Agent 为一个可被路由选中的对话角色。
type Agent interface {
	Kind() convo.AgentKind
	Description() string
	// CanHandle 返回 [0,1] 的置信度。
	CanHandle(message string, c *convo.Context) float64
	// Process 流式返回回复；流结束时回复已写入 c 且 c.CurrentAgent 为本 Agent。
	// 生成失败不会返回错误，而是输出一条 ApologyMessage。
	Process(ctx context.Context, message string, c *convo.Context) *schema.StreamReader[string]
}

// LeadSink 接收完整的线索。
type LeadSink interface {
	SaveLead(ctx context.Context, lead convo.Lead) error
}

// Deps 为 Agent 的外部依赖。
type Deps struct {
	Generator  llm.Generator
	Classifier *intent.Classifier
	// Leads 仅 DataCollectionAgent 使用，可为空。
	Leads  LeadSink
	Logger *slog.Logger
	// HistoryWindow 为写入提示词的历史消息条数，<=0 使用默认值 5。
	HistoryWindow int
}

func (d Deps) withDefaults() Deps {
	if d.Classifier == nil {
		d.Classifier = intent.NewClassifier(intent.WithLogger(d.Logger))
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.HistoryWindow <= 0 {
		d.HistoryWindow = defaultHistoryWindow
	}
	return d
}

// hooks 为各 Agent 的差异化行为。
type hooks interface {
	// adjust 在分类器分数基础上做 Agent 自身的加减分。
	adjust(confidence float64, message string, c *convo.Context) float64
	// prepare 在构造提示词前执行，可修改上下文。
	prepare(ctx context.Context, message string, c *convo.Context)
	// promptVars 返回模板变量（history 由 base 填充）。
	promptVars(c *convo.Context) map[string]any
}

type base struct {
	kind        convo.AgentKind
	description string
	template    string
	deps        Deps
	logger      *slog.Logger
	h           hooks
}

func newBase(kind convo.AgentKind, description, template string, deps Deps) *base {
	deps = deps.withDefaults()
	return &base{
		kind:        kind,
		description: description,
		template:    template,
		deps:        deps,
		logger:      deps.Logger.With("agent", string(kind)),
	}
}

func (b *base) Kind() convo.AgentKind { return b.kind }

func (b *base) Description() string { return b.description }

// CanHandle 先检测显式切换，再取分类器分数并交给 adjust。
func (b *base) CanHandle(message string, c *convo.Context) float64 {
	if target, ok := intent.DetectExplicitAgent(message); ok {
		if target == b.kind {
			b.logger.Info("explicit switch requested")
			return 1.0
		}
		return 0
	}

	scores := b.deps.Classifier.Classify(message, c)
	confidence, ok := scores[b.kind]
	if !ok {
		confidence = 0.1
	}
	if b.logger.Enabled(context.Background(), slog.LevelDebug) {
		b.logger.Debug(intent.Explain(scores, b.kind))
	}

	if c == nil {
		c = convo.New("")
	}
	return clamp01(b.h.adjust(confidence, message, c))
}

// Process 在独立 goroutine 中生成回复并逐片转发。
func (b *base) Process(ctx context.Context, message string, c *convo.Context) *schema.StreamReader[string] {
	sr, sw := schema.Pipe[string](8)
	go func() {
		defer sw.Close()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("agent panicked", "panic", r)
				sw.Send(ApologyMessage, nil)
				c.AddAssistantMessage(ApologyMessage, b.kind)
				c.SetCurrentAgent(b.kind)
			}
		}()

		full, err := b.run(ctx, message, c, sw)
		if err != nil {
			b.logger.Error("generation failed", "error", err, "trace_id", llm.GetTraceID(ctx))
			full = ApologyMessage
			sw.Send(ApologyMessage, nil)
		}
		c.AddAssistantMessage(full, b.kind)
		c.SetCurrentAgent(b.kind)
	}()
	return sr
}

func (b *base) run(ctx context.Context, message string, c *convo.Context, sw *schema.StreamWriter[string]) (string, error) {
	if b.deps.Generator == nil {
		return "", errors.New("generator not configured")
	}
	c.Normalize()
	b.h.prepare(ctx, message, c)

	systemPrompt, err := b.systemPrompt(ctx, c)
	if err != nil {
		return "", err
	}

	stream, err := b.deps.Generator.GenerateStream(llm.WithCaller(ctx, string(b.kind)), systemPrompt, message)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if isEOF(err) {
				return full.String(), nil
			}
			return "", err
		}
		full.WriteString(chunk)
		if closed := sw.Send(chunk, nil); closed {
			return full.String(), nil
		}
	}
}

// NewAll 按注册顺序创建全部 Agent。
func NewAll(deps Deps) []Agent {
	out := make([]Agent, 0, len(convo.Kinds()))
	for _, k := range convo.Kinds() {
		a, _ := New(k, deps)
		out = append(out, a)
	}
	return out
}

// New 按名称创建 Agent。
func New(kind convo.AgentKind, deps Deps) (Agent, error) {
	switch kind {
	case convo.General:
		return NewGeneralAgent(deps), nil
	case convo.Sales:
		return NewSalesAgent(deps), nil
	case convo.Engineer:
		return NewEngineerAgent(deps), nil
	case convo.DataCollection:
		return NewDataCollectionAgent(deps), nil
	default:
		return nil, fmt.Errorf("unknown agent %q", kind)
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
