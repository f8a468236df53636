package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/SalesAgent/internal/storage"
)

// newOpenAIServer 模拟 OpenAI 兼容接口：流式请求逐段返回 chunks。
func newOpenAIServer(t *testing.T, chunks []string, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		var req struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, strings.Join(chunks, ""))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", c)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"phi-4","object":"model","owned_by":"local"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL + "/v1"
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestOpenAIGeneratorStream(t *testing.T) {
	srv := newOpenAIServer(t, []string{"Hola", ", ", "¿en qué puedo ayudarte?"}, http.StatusOK)
	g := NewOpenAIGenerator(testConfig(srv.URL))

	sr, err := g.GenerateStream(context.Background(), "Eres un asistente.", "Hola")
	require.NoError(t, err)

	out, err := Collect(sr)
	require.NoError(t, err)
	assert.Equal(t, "Hola, ¿en qué puedo ayudarte?", out)
}

func TestOpenAIGeneratorGenerate(t *testing.T) {
	srv := newOpenAIServer(t, []string{"Respuesta completa"}, http.StatusOK)
	g := NewOpenAIGenerator(testConfig(srv.URL))

	out, err := g.Generate(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "Respuesta completa", out)
}

func TestOpenAIGeneratorEmptyStream(t *testing.T) {
	srv := newOpenAIServer(t, nil, http.StatusOK)
	g := NewOpenAIGenerator(testConfig(srv.URL))

	sr, err := g.GenerateStream(context.Background(), "sys", "user")
	require.NoError(t, err)

	_, err = Collect(sr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeneration))
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestOpenAIGeneratorServerError(t *testing.T) {
	srv := newOpenAIServer(t, nil, http.StatusInternalServerError)
	g := NewOpenAIGenerator(testConfig(srv.URL))

	_, err := g.GenerateStream(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeneration))

	var ge *GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, ProviderLMStudio, ge.Provider)
	assert.Equal(t, "stream", ge.Op)
}

func TestOpenAIGeneratorUnreachable(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Timeout = time.Second
	g := NewOpenAIGenerator(cfg)

	_, err := g.Generate(context.Background(), "sys", "user")
	assert.True(t, errors.Is(err, ErrGeneration))
	assert.Error(t, g.Health(context.Background()))
}

func TestOpenAIGeneratorHealth(t *testing.T) {
	srv := newOpenAIServer(t, nil, http.StatusOK)
	g := NewOpenAIGenerator(testConfig(srv.URL))
	assert.NoError(t, g.Health(context.Background()))
}

type fakeChatModel struct {
	chunks []string
	err    error
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(strings.Join(f.chunks, ""), nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if f.err != nil {
		return nil, f.err
	}
	msgs := make([]*schema.Message, 0, len(f.chunks))
	for _, c := range f.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func TestChatModelGenerator(t *testing.T) {
	g := NewChatModelGenerator(&fakeChatModel{chunks: []string{"Buenos ", "días"}}, time.Second)

	sr, err := g.GenerateStream(context.Background(), "sys", "hola")
	require.NoError(t, err)
	out, err := Collect(sr)
	require.NoError(t, err)
	assert.Equal(t, "Buenos días", out)

	out, err = g.Generate(context.Background(), "sys", "hola")
	require.NoError(t, err)
	assert.Equal(t, "Buenos días", out)
}

func TestChatModelGeneratorErrors(t *testing.T) {
	g := NewChatModelGenerator(&fakeChatModel{err: errors.New("network down")}, time.Second)
	_, err := g.GenerateStream(context.Background(), "sys", "hola")
	assert.True(t, errors.Is(err, ErrGeneration))

	empty := NewChatModelGenerator(&fakeChatModel{}, time.Second)
	sr, err := empty.GenerateStream(context.Background(), "sys", "hola")
	require.NoError(t, err)
	_, err = Collect(sr)
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestNewGenerator(t *testing.T) {
	ctx := context.Background()

	g, err := NewGenerator(ctx, Config{Provider: ProviderOpenAI, BaseURL: "http://localhost:1/v1", Model: "m"}, ArkConfig{})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGenerator{}, g)

	_, err = NewGenerator(ctx, Config{Provider: ProviderArk}, ArkConfig{})
	assert.Error(t, err)

	_, err = NewGenerator(ctx, Config{Provider: "bogus"}, ArkConfig{})
	assert.Error(t, err)
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))

	ctx, id := EnsureTraceID(ctx)
	assert.NotEmpty(t, id)
	ctx2, id2 := EnsureTraceID(ctx)
	assert.Equal(t, id, id2)
	assert.Equal(t, id, GetTraceID(ctx2))

	assert.Equal(t, "SalesAgent", GetCaller(WithCaller(ctx, "SalesAgent")))
}

func openAuditStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.Open(context.Background(), storage.Config{
		Path: filepath.Join(t.TempDir(), "audit.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWithAuditStream(t *testing.T) {
	s := openAuditStorage(t)
	g := WithAudit(NewChatModelGenerator(&fakeChatModel{chunks: []string{"Hola ", "Ana"}}, time.Second), s, "llm")

	ctx := WithCaller(WithTraceID(context.Background(), "trace-1"), "GeneralAgent")
	sr, err := g.GenerateStream(ctx, "sys", "hola")
	require.NoError(t, err)
	out, err := Collect(sr)
	require.NoError(t, err)
	assert.Equal(t, "Hola Ana", out)

	var recs []storage.AuditRecord
	require.Eventually(t, func() bool {
		recs, err = s.QueryAuditRecords(context.Background(), storage.AuditQuery{TraceID: "trace-1"})
		return err == nil && len(recs) == 1 && recs[0].Status == auditStatusSuccess
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "llm.stream/GeneralAgent", recs[0].Action)
	assert.Equal(t, "Hola Ana", recs[0].ResultJSON)
	assert.Contains(t, recs[0].ParamsJSON, `"user":"hola"`)
}

func TestWithAuditFailure(t *testing.T) {
	s := openAuditStorage(t)
	g := WithAudit(NewChatModelGenerator(&fakeChatModel{err: errors.New("boom")}, time.Second), s, "llm")

	_, err := g.Generate(context.Background(), "sys", "hola")
	require.Error(t, err)

	recs, err := s.QueryAuditRecords(context.Background(), storage.AuditQuery{Status: auditStatusFailed})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].ErrorMessage, "boom")
	assert.Equal(t, "llm.generate", recs[0].Action)
}

func TestWithAuditNilStore(t *testing.T) {
	inner := NewChatModelGenerator(&fakeChatModel{}, time.Second)
	assert.Same(t, inner, WithAudit(inner, nil, "llm"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...(truncated)", truncate("abcdef", 2))
	// 不截断多字节字符
	assert.Equal(t, "a...(truncated)", truncate("añb", 2))
}
