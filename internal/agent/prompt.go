package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/sentiment"
)

const sentimentHeader = "INSTRUCCIONES ADICIONALES BASADAS EN EL SENTIMIENTO DEL USUARIO:"

const noHistory = "No hay historial de conversación disponible."

// systemPrompt 渲染模板并追加情感指令。
// 模板使用 FString 语法，变量写作 {name}。
func (b *base) systemPrompt(ctx context.Context, c *convo.Context) (string, error) {
	vars := b.h.promptVars(c)
	if vars == nil {
		vars = map[string]any{}
	}
	vars["history"] = formatHistory(c.HistoryWindow(b.deps.HistoryWindow))

	tpl := prompt.FromMessages(schema.FString, schema.SystemMessage(b.template))
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("format %s prompt: %w", b.kind, err)
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("format %s prompt: no messages", b.kind)
	}
	return msgs[0].Content + sentimentBlock(c.CurrentSentiment), nil
}

func formatHistory(msgs []convo.Message) string {
	if len(msgs) == 0 {
		return noHistory
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		role := "Asistente"
		if m.Role == convo.RoleUser {
			role = "Usuario"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, m.Content))
	}
	return strings.Join(lines, "\n")
}

// sentimentBlock 根据当前消息的情感生成附加指令，无需调整时返回空串。
func sentimentBlock(a *sentiment.Analysis) string {
	if a == nil {
		return ""
	}

	var lines []string
	switch a.Dominant {
	case sentiment.Alegria:
		lines = append(lines, "El usuario muestra un tono positivo. Mantén un tono animado y refuerza esta actitud positiva.")
	case sentiment.Tristeza:
		lines = append(lines, "El usuario muestra un tono triste o decepcionado. Usa un tono empático y comprensivo.")
	case sentiment.Enojo:
		lines = append(lines, "El usuario muestra frustración o enojo. Mantén la calma, no uses un tono defensivo y centra tu respuesta en soluciones concretas.")
	case sentiment.Miedo:
		lines = append(lines, "El usuario muestra preocupación o ansiedad. Usa un tono tranquilizador y ofrece información clara y precisa.")
	case sentiment.Confusion:
		lines = append(lines, "El usuario muestra confusión. Estructura tu respuesta de manera clara y simple, evitando términos técnicos innecesarios.")
	}

	switch {
	case a.Polarity < -0.5:
		lines = append(lines, "El usuario muestra una actitud muy negativa. Enfoca tu respuesta en ofrecer soluciones concretas y alternativas.")
	case a.Polarity > 0.5:
		lines = append(lines, "El usuario muestra una actitud muy positiva. Refuerza esta actitud en tu respuesta.")
	}

	if a.Urgency > 0.7 {
		lines = append(lines, "El usuario muestra urgencia en su consulta. Prioriza la eficiencia en tu respuesta y ofrece soluciones inmediatas cuando sea posible.")
	}

	if len(lines) == 0 {
		return ""
	}

	s := sentiment.Suggest(*a)
	tone := fmt.Sprintf("Tono sugerido: %s (prioridad %s)", s.Tone, s.Priority)
	if len(s.Focus) > 0 {
		tone += ", enfócate en: " + strings.Join(s.Focus, ", ")
	}
	lines = append(lines, tone+".")

	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(sentimentHeader)
	for _, l := range lines {
		sb.WriteString("\n- ")
		sb.WriteString(l)
	}
	return sb.String()
}

// formatInfo 将键值对按键名排序后渲染为列表。
func formatInfo(m map[string]string, labels map[string]string, empty string) string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return empty
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		label, ok := labels[k]
		if !ok {
			label = humanize(k)
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", label, m[k]))
	}
	return strings.Join(lines, "\n")
}

// humanize: "tiempo_estimado" -> "Tiempo estimado"
func humanize(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
