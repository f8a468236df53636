package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/SalesAgent/internal/storage"
)

const (
	auditTruncateLimit = 2048

	auditStatusRunning = "running"
	auditStatusSuccess = "success"
	auditStatusFailed  = "failed"
)

// AuditedGenerator 在每次生成前后写入审计记录。
type AuditedGenerator struct {
	impl  Generator
	store *storage.Storage
	name  string
}

// WithAudit 为 Generator 加上审计；store 为 nil 时原样返回。
func WithAudit(g Generator, store *storage.Storage, name string) Generator {
	if g == nil || store == nil {
		return g
	}
	if name == "" {
		name = "llm"
	}
	return &AuditedGenerator{impl: g, store: store, name: name}
}

// Unwrap 返回被包装的 Generator。
func (a *AuditedGenerator) Unwrap() Generator { return a.impl }

// Health 透传健康检查。
func (a *AuditedGenerator) Health(ctx context.Context) error {
	if hc, ok := a.impl.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

func (a *AuditedGenerator) action(ctx context.Context, op string) string {
	action := a.name + "." + op
	if caller := GetCaller(ctx); caller != "" {
		action += "/" + caller
	}
	return action
}

func (a *AuditedGenerator) begin(ctx context.Context, op, systemPrompt, userMessage string) *storage.AuditRecord {
	params, _ := json.Marshal(map[string]string{
		"system": truncate(systemPrompt, auditTruncateLimit),
		"user":   truncate(userMessage, auditTruncateLimit),
	})
	rec := &storage.AuditRecord{
		TraceID:    GetTraceID(ctx),
		Action:     a.action(ctx, op),
		ParamsJSON: string(params),
		Status:     auditStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	// 审计失败不影响生成
	if err := a.store.InsertAuditRecord(ctx, rec); err != nil {
		slog.Warn("failed to insert audit record", "action", rec.Action, "error", err)
	}
	return rec
}

func (a *AuditedGenerator) finish(ctx context.Context, rec *storage.AuditRecord, result string, runErr error) {
	if rec == nil || rec.ID == 0 {
		return
	}
	finishedAt := time.Now().UTC()
	status := auditStatusSuccess
	up := storage.AuditUpdate{Status: &status, FinishedAt: &finishedAt}
	if runErr != nil {
		status = auditStatusFailed
		e := truncate(runErr.Error(), auditTruncateLimit)
		up.ErrorMessage = &e
	}
	if result != "" {
		r := truncate(result, auditTruncateLimit)
		up.ResultJSON = &r
	}
	// 调用方可能已取消，审计仍需落库
	if err := a.store.UpdateAuditRecord(context.WithoutCancel(ctx), rec.ID, up); err != nil {
		slog.Warn("failed to update audit record", "id", rec.ID, "error", err)
	}
}

func (a *AuditedGenerator) Generate(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	rec := a.begin(ctx, "generate", systemPrompt, userMessage)
	out, err := a.impl.Generate(ctx, systemPrompt, userMessage)
	a.finish(ctx, rec, out, err)
	return out, err
}

func (a *AuditedGenerator) GenerateStream(ctx context.Context, systemPrompt, userMessage string) (*schema.StreamReader[string], error) {
	rec := a.begin(ctx, "stream", systemPrompt, userMessage)
	in, err := a.impl.GenerateStream(ctx, systemPrompt, userMessage)
	if err != nil {
		a.finish(ctx, rec, "", err)
		return nil, err
	}

	sr, sw := schema.Pipe[string](8)
	go func() {
		defer sw.Close()
		defer in.Close()

		var b strings.Builder
		for {
			chunk, err := in.Recv()
			if isEOF(err) {
				a.finish(ctx, rec, b.String(), nil)
				return
			}
			if err != nil {
				a.finish(ctx, rec, b.String(), err)
				sw.Send("", err)
				return
			}
			if b.Len() <= auditTruncateLimit {
				b.WriteString(chunk)
			}
			if closed := sw.Send(chunk, nil); closed {
				a.finish(ctx, rec, b.String(), context.Canceled)
				return
			}
		}
	}()
	return sr, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
