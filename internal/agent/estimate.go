package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/intent"
	"github.com/wwwzy/SalesAgent/internal/llm"
)

// ProjectInfo 中由文档分析写入的键。
const (
	ProjectKeyFile         = "archivo"
	ProjectKeyDocument     = "documento"
	ProjectKeyAnalysis     = "analisis_tecnico"
	ProjectKeyComplexity   = "complejidad"
	ProjectKeyTechnologies = "tecnologias"
	ProjectKeyTime         = "tiempo_estimado"
	ProjectKeyDevelopers   = "desarrolladores"
	ProjectKeyRisks        = "riesgos"
	ProjectKeyBudget       = "costo_total"
	ProjectKeyInterest     = "interest"
)

var projectFieldLabels = map[string]string{
	ProjectKeyFile:         "Archivo",
	ProjectKeyDocument:     "Documento",
	ProjectKeyAnalysis:     "Análisis técnico",
	ProjectKeyComplexity:   "Complejidad (1-5)",
	ProjectKeyTechnologies: "Tecnologías",
	ProjectKeyTime:         "Tiempo estimado",
	ProjectKeyDevelopers:   "Desarrolladores",
	ProjectKeyRisks:        "Riesgos",
	ProjectKeyBudget:       "Costo total estimado",
	ProjectKeyInterest:     "Interés",
}

const (
	maxDocumentPrompt = 6000
	maxDocumentStored = 2000

	defaultProjectDays = 20
	daysPerWeek        = 5
	daysPerMonth       = 22
)

// ProjectAnalysis 为需求文档的结构化分析结果。
type ProjectAnalysis struct {
	Complexity    int      `json:"complejidad"`
	Technologies  []string `json:"tecnologias"`
	EstimatedTime string   `json:"tiempo_estimado"`
	Developers    int      `json:"desarrolladores"`
	Risks         []string `json:"riesgos"`
	Tasks         []string `json:"tareas"`
	Summary       string   `json:"resumen"`
}

// BudgetEstimate 为根据分析结果计算的预算（EUR）。
type BudgetEstimate struct {
	DayRate    float64 `json:"tarifa_diaria"`
	Days       int     `json:"dias"`
	Developers int     `json:"desarrolladores"`
	DevCost    float64 `json:"costo_desarrollo"`
	RiskFactor float64 `json:"factor_riesgo"`
	PMCost     float64 `json:"gestion_proyecto"`
	QACost     float64 `json:"control_calidad"`
	InfraCost  float64 `json:"infraestructura"`
	Total      float64 `json:"costo_total"`
	Currency   string  `json:"moneda"`
}

const analysisPrompt = `Eres un ingeniero de software senior de Alisys. Analiza el documento de requisitos del usuario y responde SOLO con un objeto JSON con estas claves:
- "complejidad": entero de 1 a 5
- "tecnologias": lista de tecnologías recomendadas
- "tiempo_estimado": texto como "6-8 semanas" o "3 meses"
- "desarrolladores": número de desarrolladores recomendados
- "riesgos": lista de riesgos
- "tareas": lista de tareas principales
- "resumen": resumen breve del proyecto
No incluyas texto fuera del JSON.`

// AnalyzeDocument 让模型输出 JSON 分析；模型不可用或输出无法解析时退回词法启发式。
// logger 为 nil 时使用 slog.Default()。
func AnalyzeDocument(ctx context.Context, gen llm.Generator, logger *slog.Logger, filename, text string) (ProjectAnalysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ProjectAnalysis{}, errors.New("document is empty")
	}

	if gen != nil {
		user := fmt.Sprintf("Archivo: %s\n\n%s", filename, truncateRunes(text, maxDocumentPrompt))
		raw, err := gen.Generate(llm.WithCaller(ctx, "DocumentAnalysis"), analysisPrompt, user)
		if err == nil {
			a, perr := parseAnalysis(raw)
			if perr == nil {
				return a, nil
			}
			err = perr
		}
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("document analysis fell back to heuristic", "file", filename, "error", err)
	}
	return heuristicAnalysis(filename, text), nil
}

var (
	jsonObject    = regexp.MustCompile(`(?s)\{.*\}`)
	digitsPattern = regexp.MustCompile(`\d+`)
)

func parseAnalysis(raw string) (ProjectAnalysis, error) {
	body := jsonObject.FindString(raw)
	if body == "" {
		return ProjectAnalysis{}, errors.New("no json object in model output")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return ProjectAnalysis{}, fmt.Errorf("decode analysis: %w", err)
	}

	a := ProjectAnalysis{
		Complexity:    clampInt(toInt(m["complejidad"]), 1, 5),
		Technologies:  toStrings(m["tecnologias"]),
		EstimatedTime: toString(m["tiempo_estimado"]),
		Developers:    toInt(m["desarrolladores"]),
		Risks:         toStrings(m["riesgos"]),
		Tasks:         toStrings(m["tareas"]),
		Summary:       toString(m["resumen"]),
	}
	if a.Developers < 1 {
		a.Developers = 1
	}
	return a, nil
}

type techHint struct {
	terms []string
	name  string
}

var techHints = []techHint{
	{[]string{"call center", "contact center", "centro de llamadas"}, "Contact Center (CCaaS)"},
	{[]string{"api", "apis", "rest", "webhook"}, "APIs REST"},
	{[]string{"crm"}, "Integración CRM"},
	{[]string{"erp"}, "Integración ERP"},
	{[]string{"ia", "inteligencia artificial", "machine learning"}, "IA / NLP"},
	{[]string{"chatbot", "chatbots", "bot"}, "Chatbots"},
	{[]string{"ivr"}, "IVR"},
	{[]string{"voip", "telefonia ip", "pbx"}, "Telefonía IP / VoIP"},
	{[]string{"whatsapp", "sms"}, "Mensajería (SMS / WhatsApp Business)"},
	{[]string{"cloud", "nube", "aws", "azure"}, "Infraestructura cloud"},
	{[]string{"base de datos", "sql", "postgres", "mysql"}, "Base de datos"},
	{[]string{"migracion", "migrar"}, "Migración de datos"},
}

func heuristicAnalysis(filename, text string) ProjectAnalysis {
	n := intent.Normalize(text)
	words := intent.Words(n)

	var techs []string
	for _, h := range techHints {
		for _, t := range h.terms {
			if containsWords(words, intent.Words(t)) {
				techs = append(techs, h.name)
				break
			}
		}
	}

	complexity := clampInt(1+len(techs)/2+len(words)/1500, 1, 5)

	estimated := ""
	if m := durationPattern.FindString(n); m != "" {
		estimated = m
	} else {
		estimated = fmt.Sprintf("%d-%d semanas", 2*complexity, 2*complexity+2)
	}

	risks := []string{"Requisitos sujetos a cambios durante el proyecto"}
	if len(techs) >= 3 {
		risks = append(risks, "Integración con múltiples sistemas de terceros")
	}
	if containsAny(n, []string{"migracion", "migrar", "legacy"}) {
		risks = append(risks, "Migración de datos desde sistemas existentes")
	}
	if len(words) < 80 {
		risks = append(risks, "Documento de requisitos poco detallado")
	}

	return ProjectAnalysis{
		Complexity:    complexity,
		Technologies:  techs,
		EstimatedTime: estimated,
		Developers:    1 + complexity/2,
		Risks:         risks,
		Tasks: []string{
			"Análisis de requisitos",
			"Diseño de arquitectura",
			"Desarrollo e integración",
			"Pruebas",
			"Despliegue y capacitación",
		},
		Summary: fmt.Sprintf("Análisis automático de %s: %d tecnologías detectadas, complejidad %d/5.", filename, len(techs), complexity),
	}
}

var durationPattern = regexp.MustCompile(`(\d+)\s*(?:-|a|–)?\s*(\d+)?\s*(semanas?|mes(?:es)?)`)

// ParseDurationDays 从 "N semanas"/"N-M meses" 解析工作日数，区间取上限；解析失败返回 20。
func ParseDurationDays(s string) int {
	m := durationPattern.FindStringSubmatch(intent.Normalize(s))
	if m == nil {
		return defaultProjectDays
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return defaultProjectDays
	}
	if m[2] != "" {
		if upper, err := strconv.Atoi(m[2]); err == nil && upper > n {
			n = upper
		}
	}
	if n <= 0 {
		return defaultProjectDays
	}
	if strings.HasPrefix(m[3], "mes") {
		return n * daysPerMonth
	}
	return n * daysPerWeek
}

// EstimateBudget 按固定成本模型估算预算。
func EstimateBudget(a ProjectAnalysis) BudgetEstimate {
	complexity := clampInt(a.Complexity, 1, 5)
	developers := a.Developers
	if developers < 1 {
		developers = 1
	}

	dayRate := 400 + 100*float64(complexity-1)
	days := ParseDurationDays(a.EstimatedTime)
	devCost := dayRate * float64(days) * float64(developers)

	risks := len(a.Risks)
	if risks > 5 {
		risks = 5
	}
	riskFactor := 1 + 0.05*float64(complexity-1) + 0.03*float64(risks)

	pm := devCost * 0.15
	qa := devCost * 0.20
	infra := 1000 * float64(complexity)
	total := devCost*riskFactor + pm + qa + infra

	return BudgetEstimate{
		DayRate:    dayRate,
		Days:       days,
		Developers: developers,
		DevCost:    devCost,
		RiskFactor: riskFactor,
		PMCost:     pm,
		QACost:     qa,
		InfraCost:  infra,
		Total:      math.Round(total/1000) * 1000,
		Currency:   "EUR",
	}
}

// ApplyToContext 将分析与预算写入 ProjectInfo，供技术与销售 Agent 的提示词使用。
func ApplyToContext(c *convo.Context, filename, text string, a ProjectAnalysis, b BudgetEstimate) {
	c.Normalize()
	c.ProjectInfo[ProjectKeyFile] = filename
	c.ProjectInfo[ProjectKeyDocument] = truncateRunes(strings.TrimSpace(text), maxDocumentStored)
	c.ProjectInfo[ProjectKeyAnalysis] = a.Summary
	c.ProjectInfo[ProjectKeyComplexity] = strconv.Itoa(a.Complexity)
	c.ProjectInfo[ProjectKeyTechnologies] = strings.Join(a.Technologies, ", ")
	c.ProjectInfo[ProjectKeyTime] = a.EstimatedTime
	c.ProjectInfo[ProjectKeyDevelopers] = strconv.Itoa(a.Developers)
	c.ProjectInfo[ProjectKeyRisks] = strings.Join(a.Risks, "; ")
	c.ProjectInfo[ProjectKeyBudget] = fmt.Sprintf("%.0f %s", b.Total, b.Currency)
	if c.ProjectInfo[ProjectKeyInterest] == "" && a.Summary != "" {
		c.ProjectInfo[ProjectKeyInterest] = a.Summary
	}
	c.UpdatedAt = time.Now().UTC()
}

func containsWords(words, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(words) {
		return false
	}
outer:
	for i := 0; i+len(seq) <= len(words); i++ {
		for j, w := range seq {
			if words[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "..."
}

func clampInt(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

func toInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(math.Round(x))
	case string:
		if m := digitsPattern.FindString(x); m != "" {
			n, _ := strconv.Atoi(m)
			return n
		}
	}
	return 0
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func toStrings(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s := toString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(x, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
