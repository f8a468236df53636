package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wwwzy/SalesAgent/internal/agent"
	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/intent"
	"github.com/wwwzy/SalesAgent/internal/llm"
	"github.com/wwwzy/SalesAgent/internal/router"
	"github.com/wwwzy/SalesAgent/internal/storage"
)

// app 组装一次命令运行所需的依赖。
type app struct {
	store  *storage.Storage
	gen    llm.Generator
	router *router.Router
}

func openStorage(ctx context.Context) (*storage.Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("打开存储失败: %w", err)
	}
	return store, nil
}

// newGenerator 创建文本生成器；store 非空时每次调用都会写审计记录。
func newGenerator(ctx context.Context, store *storage.Storage) (llm.Generator, error) {
	gen, err := llm.NewGenerator(ctx, cfg.LLM, cfg.Ark)
	if err != nil {
		return nil, fmt.Errorf("创建文本生成器失败: %w", err)
	}
	return llm.WithAudit(gen, store, "llm."+cfg.LLM.Provider), nil
}

func newApp(ctx context.Context) (*app, error) {
	store, err := openStorage(ctx)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(ctx, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logger := slog.Default()
	sessions := storage.NewSessionStore(store)
	classifier := intent.NewClassifier(intent.WithLogger(logger))

	defaultAgent := convo.General
	if k, ok := convo.ParseAgentKind(cfg.Router.DefaultAgent); ok {
		defaultAgent = k
	}

	r, err := router.New(router.Options{
		Agents: agent.NewAll(agent.Deps{
			Generator:     gen,
			Classifier:    classifier,
			Leads:         sessions,
			Logger:        logger,
			HistoryWindow: cfg.Router.HistoryWindow,
		}),
		Classifier:   classifier,
		Store:        sessions,
		Logger:       logger,
		Thresholds:   cfg.Router.RouterThresholds(),
		DefaultAgent: defaultAgent,
		CacheSize:    cfg.Router.SessionCacheSize,
		Persist:      cfg.Router.Persist,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("创建路由失败: %w", err)
	}
	return &app{store: store, gen: gen, router: r}, nil
}

func (a *app) Close() {
	if a == nil || a.store == nil {
		return
	}
	_ = a.store.Close()
}
