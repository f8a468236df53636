package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wwwzy/SalesAgent/internal/agent"
	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/intent"
	"github.com/wwwzy/SalesAgent/internal/llm"
	"github.com/wwwzy/SalesAgent/internal/sentiment"
)

// 面向用户的固定文案。
const (
	NoAgentsMessage      = "No hay agentes disponibles para procesar tu mensaje."
	ContinuationMessage  = "Por favor, continúa la conversación basándote en el contexto anterior."
	controlPrefix        = "!cambiar_agente:"
	switchConfirmation   = "Ahora estás hablando con el agente: %s"
	unknownAgentResponse = "No se reconoce el agente: %s"
)

// 选择原因，写入 SelectionHistory。
const (
	ReasonControl       = "control_switch"
	ReasonForceEngineer = "force_engineer"
	ReasonForceSales    = "force_sales"
	ReasonExplicit      = "explicit_switch"
	ReasonFollowUp      = "short_follow_up"
	ReasonBestScore     = "best_score"
	ReasonFallback      = "fallback"
)

const defaultCacheSize = 256

// ErrEmptyMessage 表示消息为空。
var ErrEmptyMessage = errors.New("message is empty")

// ContextStore 为会话上下文的持久化存储。
type ContextStore interface {
	Save(ctx context.Context, userID string, c *convo.Context) error
	// Load 在没有记录时返回 nil, nil。
	Load(ctx context.Context, userID string) (*convo.Context, error)
	ListSessions(ctx context.Context, userID string) ([]convo.SessionMeta, error)
}

// Thresholds 为每个 Agent 的最低置信度。
type Thresholds map[convo.AgentKind]float64

// DefaultThresholds DataCollectionAgent 门槛最高，GeneralAgent 最低。
func DefaultThresholds() Thresholds {
	return Thresholds{
		convo.General:        0.2,
		convo.Sales:          0.35,
		convo.Engineer:       0.35,
		convo.DataCollection: 0.5,
	}
}

// Options 为 Router 的依赖与参数。
type Options struct {
	Agents     []agent.Agent
	Classifier *intent.Classifier
	Sentiment  *sentiment.Analyzer
	Store      ContextStore
	Logger     *slog.Logger
	// Thresholds 中缺失的 Agent 使用默认门槛。
	Thresholds   Thresholds
	DefaultAgent convo.AgentKind
	// CacheSize 为内存中保留的会话数，<=0 使用 256。
	CacheSize int
	// Persist 为 false 时不写入 Store，但仍会从 Store 加载。
	Persist bool
}

type session struct {
	mu  sync.Mutex
	ctx *convo.Context
	// refs 为持有或等待该会话的轮次数，由 Router.mu 保护。
	refs int
}

// Router 为每条消息选择 Agent 并驱动流式轮次。
// 同一用户的轮次严格串行，不同用户之间互不影响。
type Router struct {
	agents       []agent.Agent
	byKind       map[convo.AgentKind]agent.Agent
	analyzer     *sentiment.Analyzer
	store        ContextStore
	logger       *slog.Logger
	thresholds   Thresholds
	defaultAgent convo.AgentKind
	persist      bool

	mu       sync.Mutex
	sessions *lru.Cache[string, *session]
	// active 保存正在使用的会话，LRU 淘汰不会影响它们。
	active map[string]*session
}

// New 创建 Router。
func New(opts Options) (*Router, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sentiment == nil {
		opts.Sentiment = sentiment.NewAnalyzer()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.DefaultAgent == "" {
		opts.DefaultAgent = convo.General
	}

	thresholds := DefaultThresholds()
	for k, v := range opts.Thresholds {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("threshold for %s out of range: %v", k, v)
		}
		thresholds[k] = v
	}

	cache, err := lru.New[string, *session](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}

	r := &Router{
		agents:       opts.Agents,
		byKind:       make(map[convo.AgentKind]agent.Agent, len(opts.Agents)),
		analyzer:     opts.Sentiment,
		store:        opts.Store,
		logger:       opts.Logger,
		thresholds:   thresholds,
		defaultAgent: opts.DefaultAgent,
		persist:      opts.Persist,
		sessions:     cache,
		active:       map[string]*session{},
	}
	for _, a := range opts.Agents {
		if _, dup := r.byKind[a.Kind()]; dup {
			return nil, fmt.Errorf("agent %s registered twice", a.Kind())
		}
		r.byKind[a.Kind()] = a
	}
	return r, nil
}

// Agents 返回已注册的 Agent。
func (r *Router) Agents() []agent.Agent {
	return append([]agent.Agent(nil), r.agents...)
}

// Agent 按名称查找。
func (r *Router) Agent(kind convo.AgentKind) (agent.Agent, bool) {
	a, ok := r.byKind[kind]
	return a, ok
}

// HandleMessage 处理一条用户消息并流式返回回复。
// 会话锁一直持有到流结束，调用方必须读到 EOF 或 Close 返回的流。
func (r *Router) HandleMessage(ctx context.Context, userID, message string) (*schema.StreamReader[string], error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	s := r.acquire(ctx, userID)
	sr, sw := schema.Pipe[string](16)
	go func() {
		defer r.release(userID, s)
		defer sw.Close()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("turn panicked", "user_id", userID, "panic", p)
				sw.Send(agent.ApologyMessage, nil)
			}
		}()
		r.turn(ctx, userID, message, s.ctx, sw)
	}()
	return sr, nil
}

func (r *Router) turn(ctx context.Context, userID, message string, c *convo.Context, sw *schema.StreamWriter[string]) {
	ctx, traceID := llm.EnsureTraceID(ctx)
	log := r.logger.With("user_id", userID, "session_id", c.SessionID, "trace_id", traceID)

	if len(r.agents) == 0 {
		log.Error("no agents registered")
		sw.Send(NoAgentsMessage, nil)
		return
	}

	if name, ok := strings.CutPrefix(message, controlPrefix); ok {
		r.controlSwitch(ctx, userID, strings.TrimSpace(name), c, sw, log)
		return
	}

	analysis := r.analyzer.Analyze(message)
	c.AddUserMessage(message, &analysis)
	sniffForceFlags(message, c)

	a, confidence, reason := r.selectAgent(message, c)
	c.RecordSelection(a.Kind(), confidence, reason)
	log.Info("agent selected", "agent", a.Kind(), "confidence", confidence, "reason", reason)

	r.run(ctx, a, message, c, sw, log)
	c.ClearOverrides()
	r.save(ctx, userID, c, log)
}

// controlSwitch 处理 "!cambiar_agente:<name>"：确认切换后让新 Agent 接着上下文继续。
func (r *Router) controlSwitch(ctx context.Context, userID, name string, c *convo.Context, sw *schema.StreamWriter[string], log *slog.Logger) {
	kind, ok := convo.ParseAgentKind(name)
	var a agent.Agent
	if ok {
		a, ok = r.byKind[kind]
	}
	if !ok {
		log.Warn("unknown agent in control message", "agent", name)
		sw.Send(fmt.Sprintf(unknownAgentResponse, name), nil)
		return
	}

	log.Info("agent switched by control message", "from", c.CurrentAgent, "to", kind)
	if closed := sw.Send(fmt.Sprintf(switchConfirmation, kind.DisplayName()), nil); !closed {
		sw.Send("\n\n", nil)
	}

	analysis := r.analyzer.Analyze(ContinuationMessage)
	c.AddUserMessage(ContinuationMessage, &analysis)
	c.RecordSelection(kind, 1.0, ReasonControl)

	r.run(ctx, a, ContinuationMessage, c, sw, log)
	c.ClearOverrides()
	r.save(ctx, userID, c, log)
}

// run 让 Agent 在上下文副本上工作，转发全部分片，流结束后合并回会话。
func (r *Router) run(ctx context.Context, a agent.Agent, message string, c *convo.Context, sw *schema.StreamWriter[string], log *slog.Logger) {
	view := c.Clone()
	stream := a.Process(ctx, message, view)
	defer stream.Close()

	// 调用方关闭流后继续读完，保证 Agent 完成对副本的修改
	detached := false
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if !isEOF(err) {
				log.Error("agent stream failed", "agent", a.Kind(), "error", err)
			}
			break
		}
		if !detached && sw.Send(chunk, nil) {
			log.Debug("consumer closed stream", "agent", a.Kind())
			detached = true
		}
	}
	c.Merge(view)
}

func (r *Router) save(ctx context.Context, userID string, c *convo.Context, log *slog.Logger) {
	if !r.persist || r.store == nil {
		return
	}
	if err := r.store.Save(context.WithoutCancel(ctx), userID, c); err != nil {
		log.Warn("failed to persist context", "error", err)
	}
}

// acquire 返回已加锁的会话，必要时从 Store 恢复。用完必须调用 release。
func (r *Router) acquire(ctx context.Context, userID string) *session {
	r.mu.Lock()
	s, ok := r.active[userID]
	if !ok {
		s, ok = r.sessions.Get(userID)
	}
	if !ok {
		s = &session{}
	}
	s.refs++
	r.active[userID] = s
	r.sessions.Add(userID, s)
	r.mu.Unlock()

	s.mu.Lock()
	if s.ctx == nil {
		s.ctx = r.load(ctx, userID)
	}
	return s
}

func (r *Router) release(userID string, s *session) {
	s.mu.Unlock()
	r.mu.Lock()
	s.refs--
	if s.refs == 0 && r.active[userID] == s {
		delete(r.active, userID)
	}
	r.mu.Unlock()
}

func (r *Router) load(ctx context.Context, userID string) *convo.Context {
	if r.store != nil {
		c, err := r.store.Load(ctx, userID)
		if err != nil {
			r.logger.Warn("failed to load context", "user_id", userID, "error", err)
		}
		if c != nil {
			c.Normalize()
			r.logger.Info("context restored", "user_id", userID, "session_id", c.SessionID, "message_count", c.MessageCount)
			return c
		}
	}
	return convo.New(userID)
}

// Reset 清空用户的会话，生成新的 SessionID。
func (r *Router) Reset(ctx context.Context, userID string) {
	s := r.acquire(ctx, userID)
	defer r.release(userID, s)
	old := s.ctx.SessionID
	s.ctx.Reset()
	r.logger.Info("session reset", "user_id", userID, "old_session_id", old, "session_id", s.ctx.SessionID)
	r.save(ctx, userID, s.ctx, r.logger)
}

// Snapshot 返回用户会话的副本。
func (r *Router) Snapshot(ctx context.Context, userID string) *convo.Context {
	s := r.acquire(ctx, userID)
	defer r.release(userID, s)
	return s.ctx.Clone()
}

// documentAnalyzer 由 EngineerAgent 实现。
type documentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, filename, text string) (agent.ProjectAnalysis, error)
}

// AttachDocument 分析需求文档，将结果写入 ProjectInfo，并让下一轮强制交给 EngineerAgent。
func (r *Router) AttachDocument(ctx context.Context, userID, filename, text string) (agent.ProjectAnalysis, agent.BudgetEstimate, error) {
	var (
		analysis agent.ProjectAnalysis
		err      error
	)
	if da, ok := r.byKind[convo.Engineer].(documentAnalyzer); ok {
		analysis, err = da.AnalyzeDocument(ctx, filename, text)
	} else {
		analysis, err = agent.AnalyzeDocument(ctx, nil, r.logger, filename, text)
	}
	if err != nil {
		return agent.ProjectAnalysis{}, agent.BudgetEstimate{}, fmt.Errorf("analyze %s: %w", filename, err)
	}
	budget := agent.EstimateBudget(analysis)

	s := r.acquire(ctx, userID)
	defer r.release(userID, s)
	agent.ApplyToContext(s.ctx, filename, text, analysis, budget)
	s.ctx.ForceEngineer = true
	r.logger.Info("document attached", "user_id", userID, "file", filename,
		"complexity", analysis.Complexity, "total", budget.Total)
	r.save(ctx, userID, s.ctx, r.logger)
	return analysis, budget, nil
}

// Sessions 列出用户保存过的会话。
func (r *Router) Sessions(ctx context.Context, userID string) ([]convo.SessionMeta, error) {
	if r.store == nil {
		return nil, errors.New("context store not configured")
	}
	return r.store.ListSessions(ctx, userID)
}
