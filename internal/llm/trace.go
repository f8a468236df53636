package llm

import (
	"context"

	"github.com/google/uuid"
)

type (
	traceIDKey struct{}
	callerKey  struct{}
)

// WithTraceID 将 TraceID 注入 context，一轮对话共用一个 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// GetTraceID 从 context 获取 TraceID
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}

// EnsureTraceID 没有 TraceID 时生成一个新的。
func EnsureTraceID(ctx context.Context) (context.Context, string) {
	if id := GetTraceID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return WithTraceID(ctx, id), id
}

// WithCaller 记录发起生成的组件名（通常是 Agent 名），用于审计。
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// GetCaller 返回发起生成的组件名。
func GetCaller(ctx context.Context) string {
	if v, ok := ctx.Value(callerKey{}).(string); ok {
		return v
	}
	return ""
}
