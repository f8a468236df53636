package agent

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/SalesAgent/internal/convo"
)

const sampleRequirements = "Necesitamos integrar nuestro call center con el CRM y una API REST, con un chatbot de IA. Plazo de 3 meses."

func TestParseDurationDays(t *testing.T) {
	cases := map[string]int{
		"3-4 semanas":     20,
		"6 semanas":       30,
		"1 mes":           22,
		"2 Meses":         44,
		"10 a 12 semanas": 60,
		"pronto":          defaultProjectDays,
		"":                defaultProjectDays,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseDurationDays(in), in)
	}
}

func TestEstimateBudget(t *testing.T) {
	b := EstimateBudget(ProjectAnalysis{
		Complexity:    3,
		EstimatedTime: "4 semanas",
		Developers:    2,
		Risks:         []string{"alcance", "plazo"},
	})
	assert.Equal(t, 600.0, b.DayRate)
	assert.Equal(t, 20, b.Days)
	assert.Equal(t, 24000.0, b.DevCost)
	assert.InDelta(t, 1.16, b.RiskFactor, 1e-9)
	assert.Equal(t, 39000.0, b.Total)
	assert.Equal(t, "EUR", b.Currency)

	// 非法输入按最小值处理
	b = EstimateBudget(ProjectAnalysis{})
	assert.Equal(t, 400.0, b.DayRate)
	assert.Equal(t, 1, b.Developers)
	assert.Equal(t, defaultProjectDays, b.Days)
}

func TestEstimateBudget_MonotonicInComplexity(t *testing.T) {
	prev := 0.0
	for c := 1; c <= 5; c++ {
		b := EstimateBudget(ProjectAnalysis{Complexity: c, EstimatedTime: "4 semanas", Developers: 1})
		assert.Greater(t, b.Total, prev, "complexity %d", c)
		assert.Zero(t, int(b.Total)%1000)
		prev = b.Total
	}
}

func TestParseAnalysis(t *testing.T) {
	raw := "Aquí está el análisis:\n```json\n" +
		`{"complejidad": 7, "tecnologias": ["Go", "Kafka"], "tiempo_estimado": "6-8 semanas", ` +
		`"desarrolladores": "3 desarrolladores", "riesgos": "plazo, alcance", "tareas": [], "resumen": "Plataforma omnicanal"}` +
		"\n```"
	a, err := parseAnalysis(raw)
	require.NoError(t, err)
	assert.Equal(t, 5, a.Complexity)
	assert.Equal(t, []string{"Go", "Kafka"}, a.Technologies)
	assert.Equal(t, "6-8 semanas", a.EstimatedTime)
	assert.Equal(t, 3, a.Developers)
	assert.Equal(t, []string{"plazo", "alcance"}, a.Risks)
	assert.Empty(t, a.Tasks)
	assert.Equal(t, "Plataforma omnicanal", a.Summary)

	_, err = parseAnalysis("no tengo datos suficientes")
	assert.Error(t, err)
	_, err = parseAnalysis("{roto")
	assert.Error(t, err)
}

func TestAnalyzeDocument_Heuristic(t *testing.T) {
	for name, gen := range map[string]*fakeGenerator{
		"garbage output": {reply: "lo siento, no puedo"},
		"generator down": {err: errors.New("timeout")},
	} {
		t.Run(name, func(t *testing.T) {
			a, err := AnalyzeDocument(context.Background(), gen, nil, "req.txt", sampleRequirements)
			require.NoError(t, err)
			assert.Equal(t, 3, a.Complexity)
			assert.Contains(t, a.Technologies, "Contact Center (CCaaS)")
			assert.Contains(t, a.Technologies, "Integración CRM")
			assert.Equal(t, "3 meses", a.EstimatedTime)
			assert.Equal(t, 2, a.Developers)
			assert.Len(t, a.Risks, 3)
			assert.Contains(t, a.Summary, "req.txt")
		})
	}

	a, err := AnalyzeDocument(context.Background(), nil, nil, "req.txt", sampleRequirements)
	require.NoError(t, err)
	assert.Equal(t, 3, a.Complexity)

	_, err = AnalyzeDocument(context.Background(), nil, nil, "vacio.txt", "   ")
	assert.Error(t, err)
}

func TestEngineerAgent_AnalyzeDocument(t *testing.T) {
	gen := &fakeGenerator{reply: `{"complejidad": 2, "tecnologias": ["APIs REST"], "tiempo_estimado": "3-4 semanas", "desarrolladores": 1, "riesgos": [], "tareas": ["Integración"], "resumen": "Integración CRM"}`}
	a := NewEngineerAgent(Deps{Generator: gen})

	got, err := a.AnalyzeDocument(context.Background(), "crm.md", "Integrar el CRM con la centralita.")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Complexity)
	assert.Equal(t, "Integración CRM", got.Summary)
	assert.Equal(t, analysisPrompt, gen.lastPrompt())
}

func TestEngineerAgent_AnalyzeDocumentLogsFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	a := NewEngineerAgent(Deps{Generator: &fakeGenerator{reply: "lo siento, no puedo"}, Logger: logger})

	got, err := a.AnalyzeDocument(context.Background(), "req.txt", sampleRequirements)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Complexity)
	assert.Contains(t, buf.String(), "document analysis fell back to heuristic")
	assert.Contains(t, buf.String(), "agent=EngineerAgent")
	assert.Contains(t, buf.String(), "file=req.txt")
}

func TestApplyToContext(t *testing.T) {
	a := ProjectAnalysis{
		Complexity:    3,
		Technologies:  []string{"APIs REST", "IA / NLP"},
		EstimatedTime: "4 semanas",
		Developers:    2,
		Risks:         []string{"alcance", "plazo"},
		Summary:       "Integración de call center",
	}
	c := convo.New("")
	ApplyToContext(c, "req.txt", sampleRequirements, a, EstimateBudget(a))

	assert.Equal(t, "req.txt", c.ProjectInfo[ProjectKeyFile])
	assert.Equal(t, sampleRequirements, c.ProjectInfo[ProjectKeyDocument])
	assert.Equal(t, "3", c.ProjectInfo[ProjectKeyComplexity])
	assert.Equal(t, "APIs REST, IA / NLP", c.ProjectInfo[ProjectKeyTechnologies])
	assert.Equal(t, "alcance; plazo", c.ProjectInfo[ProjectKeyRisks])
	assert.Equal(t, "39000 EUR", c.ProjectInfo[ProjectKeyBudget])
	assert.Equal(t, "Integración de call center", c.ProjectInfo[ProjectKeyInterest])

	// 已有兴趣点不会被覆盖
	c.ProjectInfo[ProjectKeyInterest] = "IVR"
	ApplyToContext(c, "req.txt", sampleRequirements, a, EstimateBudget(a))
	assert.Equal(t, "IVR", c.ProjectInfo[ProjectKeyInterest])
}
