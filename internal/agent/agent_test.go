package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/llm"
	"github.com/wwwzy/SalesAgent/internal/sentiment"
)

type fakeGenerator struct {
	mu      sync.Mutex
	chunks  []string
	reply   string
	err     error
	prompts []string
	callers []string
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, systemPrompt, _ string) (*schema.StreamReader[string], error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, systemPrompt)
	f.callers = append(f.callers, llm.GetCaller(ctx))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return schema.StreamReaderFromArray(f.chunks), nil
}

func (f *fakeGenerator) Generate(_ context.Context, systemPrompt, _ string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, systemPrompt)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// brokenStreamGenerator 先输出一片，然后中途报错。
type brokenStreamGenerator struct{}

func (brokenStreamGenerator) GenerateStream(context.Context, string, string) (*schema.StreamReader[string], error) {
	sr, sw := schema.Pipe[string](2)
	go func() {
		defer sw.Close()
		sw.Send("parcial", nil)
		sw.Send("", errors.New("connection reset"))
	}()
	return sr, nil
}

func (brokenStreamGenerator) Generate(context.Context, string, string) (string, error) {
	return "", errors.New("connection reset")
}

type fakeLeads struct {
	mu    sync.Mutex
	leads []convo.Lead
	err   error
	calls int
}

func (f *fakeLeads) SaveLead(_ context.Context, lead convo.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.leads = append(f.leads, lead)
	return nil
}

func turn(t *testing.T, a Agent, c *convo.Context, msg string) string {
	t.Helper()
	c.AddUserMessage(msg, nil)
	out, err := llm.Collect(a.Process(context.Background(), msg, c))
	require.NoError(t, err)
	return out
}

func TestNewAll_Order(t *testing.T) {
	agents := NewAll(Deps{})
	require.Len(t, agents, 4)
	for i, k := range convo.Kinds() {
		assert.Equal(t, k, agents[i].Kind())
		assert.NotEmpty(t, agents[i].Description())
	}

	_, err := New("RobotAgent", Deps{})
	assert.Error(t, err)
}

func TestCanHandle_ExplicitSwitch(t *testing.T) {
	c := convo.New("")
	for _, a := range NewAll(Deps{}) {
		want := 0.0
		if a.Kind() == convo.Sales {
			want = 1.0
		}
		assert.Equal(t, want, a.CanHandle("quiero hablar con ventas", c), a.Kind())
	}
}

func TestCanHandle_GreetingFavorsGeneral(t *testing.T) {
	c := convo.New("")
	c.AddUserMessage("Hola", nil)

	general := NewGeneralAgent(Deps{}).CanHandle("Hola", c)
	assert.Equal(t, 1.0, general)
	for _, a := range NewAll(Deps{})[1:] {
		assert.Less(t, a.CanHandle("Hola", c), general, a.Kind())
	}
}

func TestCanHandle_NilContext(t *testing.T) {
	for _, a := range NewAll(Deps{}) {
		v := a.CanHandle("necesito una cotización", nil)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestSalesAgent_Adjust(t *testing.T) {
	a := NewSalesAgent(Deps{})

	c := convo.New("")
	// 联系数据且无价格意图 -0.3
	assert.InDelta(t, 0.2, a.adjust(0.5, "me llamo Juan", c), 1e-9)

	c.SetCurrentAgent(convo.Engineer)
	// costaria +0.15，上一位是 Engineer +0.2，方案名 +0.25
	assert.InDelta(t, 1.1, a.adjust(0.5, "¿Cuánto costaría el plan premium?", c), 1e-9)

	c.ProjectInfo[ProjectKeyInterest] = "integración CRM"
	assert.InDelta(t, 0.5+0.15+0.2+0.15, a.adjust(0.5, "¿y cuánto costaría?", c), 1e-9)

	c.PriceDiscussed = true
	assert.InDelta(t, 0.5+0.15+0.2, a.adjust(0.5, "¿y cuánto costaría?", c), 1e-9)
}

func TestEngineerAgent_Adjust(t *testing.T) {
	a := NewEngineerAgent(Deps{})
	c := convo.New("")

	assert.InDelta(t, 0.6, a.adjust(0.5, "necesito integrar una API", c), 1e-9)

	c.ProjectInfo[ProjectKeyAnalysis] = "Integración de CRM"
	assert.InDelta(t, 0.8, a.adjust(0.5, "necesito integrar una API", c), 1e-9)
	// 出现销售词时不再因已有分析加分
	assert.InDelta(t, 0.6, a.adjust(0.5, "¿qué precio tiene integrar la API?", c), 1e-9)
}

func TestGeneralAgent_Adjust(t *testing.T) {
	a := NewGeneralAgent(Deps{})
	c := convo.New("")
	c.MessageCount = 1
	assert.InDelta(t, 0.2+0.1+0.2+0.1+0.2, a.adjust(0.2, "Hola", c), 1e-9)

	c.MessageCount = 5
	c.SetCurrentAgent(convo.Sales)
	assert.InDelta(t, 0.2, a.adjust(0.2, "necesito una propuesta detallada para mi empresa", c), 1e-9)
}

func TestDataCollectionAgent_Adjust(t *testing.T) {
	a := NewDataCollectionAgent(Deps{})
	c := convo.New("")
	assert.InDelta(t, 0.45, a.adjust(0.3, "mi correo es ana@example.com", c), 1e-9)

	c.FormActive = true
	assert.InDelta(t, 0.65, a.adjust(0.3, "mi correo es ana@example.com", c), 1e-9)

	for _, f := range convo.RequiredFields() {
		c.UserInfo[f] = "x"
	}
	assert.InDelta(t, 0.3, a.adjust(0.3, "gracias por todo", c), 1e-9)
}

func TestProcess_StreamsAndRecords(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"Hola", ", ", "¿en qué puedo ayudarte?"}}
	a := NewGeneralAgent(Deps{Generator: gen})
	c := convo.New("u1")

	out := turn(t, a, c, "Hola")
	assert.Equal(t, "Hola, ¿en qué puedo ayudarte?", out)

	require.Len(t, c.Messages, 2)
	last := c.Messages[1]
	assert.Equal(t, convo.RoleAssistant, last.Role)
	assert.Equal(t, out, last.Content)
	assert.Equal(t, convo.General, last.Agent)
	assert.Equal(t, convo.General, c.CurrentAgent)
	assert.Equal(t, convo.AgentKind(""), c.PreviousAgent)

	assert.Contains(t, gen.lastPrompt(), noHistory)
	assert.Equal(t, []string{string(convo.General)}, gen.callers)
}

func TestProcess_PromptIncludesHistory(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"ok"}}
	a := NewEngineerAgent(Deps{Generator: gen, HistoryWindow: 2})
	c := convo.New("")
	c.AddUserMessage("primer mensaje", nil)
	c.AddAssistantMessage("primera respuesta", convo.General)
	c.AddUserMessage("segundo mensaje", nil)
	c.AddAssistantMessage("segunda respuesta", convo.General)
	c.SetCurrentAgent(convo.General)

	turn(t, a, c, "¿cómo se integra la API?")

	prompt := gen.lastPrompt()
	assert.Contains(t, prompt, "Usuario: segundo mensaje\nAsistente: segunda respuesta")
	assert.NotContains(t, prompt, "primer mensaje")
	assert.NotContains(t, prompt, "Usuario: ¿cómo se integra la API?")
	assert.Equal(t, convo.Engineer, c.CurrentAgent)
	assert.Equal(t, convo.General, c.PreviousAgent)
}

func TestProcess_SentimentInstructions(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"ok"}}
	a := NewGeneralAgent(Deps{Generator: gen})
	c := convo.New("")
	msg := "estoy muy molesto, esto no funciona"
	c.AddUserMessage(msg, &sentiment.Analysis{Dominant: sentiment.Enojo, Polarity: -0.7, Urgency: 0.8})

	_, err := llm.Collect(a.Process(context.Background(), msg, c))
	require.NoError(t, err)

	prompt := gen.lastPrompt()
	assert.Contains(t, prompt, sentimentHeader)
	assert.Contains(t, prompt, "frustración")
	assert.Contains(t, prompt, "urgencia")
	assert.Contains(t, prompt, "Tono sugerido:")
}

func TestSentimentBlock(t *testing.T) {
	assert.Empty(t, sentimentBlock(nil))
	assert.Empty(t, sentimentBlock(&sentiment.Analysis{}))

	block := sentimentBlock(&sentiment.Analysis{Dominant: sentiment.Confusion})
	assert.True(t, strings.HasPrefix(block, "\n\n"+sentimentHeader))
	assert.Contains(t, block, "confusión")
	assert.NotContains(t, block, "urgencia")
}

func TestProcess_ApologyOnError(t *testing.T) {
	cases := map[string]llm.Generator{
		"start error": &fakeGenerator{err: errors.New("connection refused")},
		"mid stream":  brokenStreamGenerator{},
		"nil":         nil,
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			a := NewSalesAgent(Deps{Generator: gen})
			c := convo.New("")
			out := turn(t, a, c, "¿cuánto cuesta?")

			assert.True(t, strings.HasSuffix(out, ApologyMessage))
			last := c.Messages[len(c.Messages)-1]
			assert.Equal(t, ApologyMessage, last.Content)
			assert.Equal(t, convo.Sales, c.CurrentAgent)
		})
	}
}

func TestSalesAgent_MarksPriceDiscussed(t *testing.T) {
	a := NewSalesAgent(Deps{Generator: &fakeGenerator{chunks: []string{"El Plan Básico..."}}})
	c := convo.New("")
	turn(t, a, c, "¿cuánto cuesta?")
	assert.True(t, c.PriceDiscussed)
}

func TestEngineerAgent_RecordsInterest(t *testing.T) {
	a := NewEngineerAgent(Deps{Generator: &fakeGenerator{chunks: []string{"ok"}}})
	c := convo.New("")

	turn(t, a, c, "gracias")
	assert.Empty(t, c.ProjectInfo[ProjectKeyInterest])

	turn(t, a, c, "Quiero integrar mi call center con IA")
	assert.Equal(t, "Quiero integrar mi call center con IA", c.ProjectInfo[ProjectKeyInterest])

	turn(t, a, c, "también una API para el CRM")
	assert.Equal(t, "Quiero integrar mi call center con IA", c.ProjectInfo[ProjectKeyInterest])
}

func TestDataCollection_SavesLeadOnce(t *testing.T) {
	leads := &fakeLeads{}
	gen := &fakeGenerator{chunks: []string{"Gracias"}}
	a := NewDataCollectionAgent(Deps{Generator: gen, Leads: leads})
	c := convo.New("")

	turn(t, a, c, "Me llamo Ana y mi correo es ana@example.com")
	assert.True(t, c.FormShown)
	assert.True(t, c.FormActive)
	assert.Equal(t, "Ana", c.UserInfo[convo.FieldName])
	assert.Equal(t, "ana@example.com", c.UserInfo[convo.FieldEmail])
	assert.Contains(t, gen.lastPrompt(), "Próximo campo a solicitar: phone")
	assert.Empty(t, leads.leads)

	turn(t, a, c, "mi teléfono es +34 600 123 456")
	assert.Equal(t, "+34 600 123 456", c.UserInfo[convo.FieldPhone])

	turn(t, a, c, "mi empresa es Acme Corp")
	assert.True(t, c.FormCompleted)
	assert.False(t, c.FormActive)
	assert.True(t, c.LeadSaved)
	assert.Contains(t, gen.lastPrompt(), allCollected)

	turn(t, a, c, "gracias")
	turn(t, a, c, "Pedro")

	require.Len(t, leads.leads, 1)
	lead := leads.leads[0]
	assert.Equal(t, c.SessionID, lead.SessionID)
	assert.Equal(t, "Ana", lead.Name)
	assert.Equal(t, "Acme Corp", lead.Company)
	assert.Equal(t, "mi empresa es Acme Corp", lead.Message)
	// 已有名字不会被覆盖
	assert.Equal(t, "Ana", c.UserInfo[convo.FieldName])
}

func TestDataCollection_LeadSaveFailureRetries(t *testing.T) {
	leads := &fakeLeads{err: errors.New("disk full")}
	a := NewDataCollectionAgent(Deps{Generator: &fakeGenerator{chunks: []string{"ok"}}, Leads: leads})
	c := convo.New("")
	c.UserInfo = map[string]string{
		convo.FieldName:  "Ana",
		convo.FieldEmail: "ana@example.com",
		convo.FieldPhone: "600123456",
	}

	turn(t, a, c, "mi empresa es Acme Corp")
	assert.True(t, c.FormCompleted)
	assert.False(t, c.LeadSaved)

	leads.err = nil
	turn(t, a, c, "¿ya lo tienen?")
	assert.True(t, c.LeadSaved)
	assert.Equal(t, 2, leads.calls)
	assert.Len(t, leads.leads, 1)
}

func TestDataCollection_ConfirmedPreviousInfo(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"ok"}}
	a := NewDataCollectionAgent(Deps{Generator: gen})
	c := convo.New("")
	c.UserInfo[convo.FieldName] = "Ana"

	turn(t, a, c, "ya te lo dije antes")
	assert.True(t, c.ConfirmedPreviousInfo)
	prompt := gen.lastPrompt()
	assert.Contains(t, prompt, "El siguiente campo que necesitamos es: email")
	assert.Contains(t, prompt, "- Nombre: Ana")
}
