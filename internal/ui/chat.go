package ui

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/SalesAgent/internal/agent"
	"github.com/wwwzy/SalesAgent/internal/convo"
)

// ChatBackend 为聊天界面依赖的路由能力，由 router.Router 实现。
type ChatBackend interface {
	HandleMessage(ctx context.Context, userID, message string) (*schema.StreamReader[string], error)
	Reset(ctx context.Context, userID string)
	Snapshot(ctx context.Context, userID string) *convo.Context
	AttachDocument(ctx context.Context, userID, filename, text string) (agent.ProjectAnalysis, agent.BudgetEstimate, error)
}

type ChatUI interface {
	Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error
}

type ChatOptions struct {
	// UserID 为会话所属用户，为空时使用 DefaultUserID。
	UserID string
}

const DefaultUserID = "local"

func (o ChatOptions) user() string {
	if o.UserID == "" {
		return DefaultUserID
	}
	return o.UserID
}
