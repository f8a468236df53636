package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wwwzy/SalesAgent/internal/agent"
	"github.com/wwwzy/SalesAgent/internal/convo"
)

// 路由层识别的切换前缀。
const controlPrefix = "!cambiar_agente:"

const helpText = `Comandos disponibles:
  /reset            reinicia la conversación
  /agente <nombre>  cambia de agente (ventas, tecnico, datos, general)
  /archivo <ruta>   adjunta un documento de requisitos para análisis técnico
  /estado           muestra el estado de la conversación
  exit | quit       salir`

// CommandResult 为斜杠命令的处理结果。
type CommandResult struct {
	// Output 直接展示给用户。
	Output string
	// Message 非空时需要作为普通消息发给后端。
	Message string
	Quit    bool
}

// IsQuit 判断是否为退出指令。
func IsQuit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "exit", "quit":
		return true
	}
	return false
}

// HandleCommand 处理以 / 开头的命令；不是命令时返回 false。
func HandleCommand(ctx context.Context, backend ChatBackend, userID, line string) (CommandResult, bool) {
	line = strings.TrimSpace(line)
	if IsQuit(line) {
		return CommandResult{Quit: true}, true
	}
	if !strings.HasPrefix(line, "/") {
		return CommandResult{}, false
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/reset":
		backend.Reset(ctx, userID)
		return CommandResult{Output: "Conversación reiniciada."}, true
	case "/agente":
		if arg == "" {
			return CommandResult{Output: "Uso: /agente <nombre>"}, true
		}
		return CommandResult{Message: controlPrefix + arg}, true
	case "/archivo":
		if arg == "" {
			return CommandResult{Output: "Uso: /archivo <ruta>"}, true
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return CommandResult{Output: fmt.Sprintf("No se pudo leer el archivo: %v", err)}, true
		}
		filename := filepath.Base(arg)
		a, b, err := backend.AttachDocument(ctx, userID, filename, string(data))
		if err != nil {
			return CommandResult{Output: fmt.Sprintf("No se pudo analizar el documento: %v", err)}, true
		}
		return CommandResult{Output: FormatAnalysis(filename, a, b)}, true
	case "/estado":
		return CommandResult{Output: FormatStatus(backend.Snapshot(ctx, userID))}, true
	case "/ayuda", "/help":
		return CommandResult{Output: helpText}, true
	default:
		return CommandResult{Output: fmt.Sprintf("Comando desconocido: %s\n%s", name, helpText)}, true
	}
}

// FormatAnalysis 渲染文档分析与预算。
func FormatAnalysis(filename string, a agent.ProjectAnalysis, b agent.BudgetEstimate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Análisis de %s\n", filename)
	if a.Summary != "" {
		fmt.Fprintf(&sb, "  Resumen: %s\n", a.Summary)
	}
	fmt.Fprintf(&sb, "  Complejidad: %d/5\n", a.Complexity)
	if len(a.Technologies) > 0 {
		fmt.Fprintf(&sb, "  Tecnologías: %s\n", strings.Join(a.Technologies, ", "))
	}
	fmt.Fprintf(&sb, "  Tiempo estimado: %s (%d días)\n", a.EstimatedTime, b.Days)
	fmt.Fprintf(&sb, "  Desarrolladores: %d\n", b.Developers)
	if len(a.Risks) > 0 {
		fmt.Fprintf(&sb, "  Riesgos: %s\n", strings.Join(a.Risks, "; "))
	}
	fmt.Fprintf(&sb, "Presupuesto estimado\n")
	fmt.Fprintf(&sb, "  Desarrollo: %.0f %s (%.0f %s/día)\n", b.DevCost, b.Currency, b.DayRate, b.Currency)
	fmt.Fprintf(&sb, "  Gestión de proyecto: %.0f %s\n", b.PMCost, b.Currency)
	fmt.Fprintf(&sb, "  Control de calidad: %.0f %s\n", b.QACost, b.Currency)
	fmt.Fprintf(&sb, "  Infraestructura: %.0f %s\n", b.InfraCost, b.Currency)
	fmt.Fprintf(&sb, "  Factor de riesgo: %.2f\n", b.RiskFactor)
	fmt.Fprintf(&sb, "  Total: %.0f %s", b.Total, b.Currency)
	return sb.String()
}

var statusFieldLabels = map[string]string{
	convo.FieldName:    "Nombre",
	convo.FieldEmail:   "Correo",
	convo.FieldPhone:   "Teléfono",
	convo.FieldCompany: "Empresa",
}

// FormatStatus 渲染会话状态；不输出原始文档内容。
func FormatStatus(c *convo.Context) string {
	if c == nil {
		return "Sin conversación activa."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sesión: %s\n", c.SessionID)
	fmt.Fprintf(&sb, "Agente actual: %s\n", agentName(c.CurrentAgent))
	fmt.Fprintf(&sb, "Mensajes: %d\n", c.MessageCount)
	if s := c.CurrentSentiment; s != nil {
		emotion := string(s.Dominant)
		if emotion == "" {
			emotion = "ninguna"
		}
		fmt.Fprintf(&sb, "Sentimiento: polaridad %.2f, emoción %s, urgencia %.2f\n", s.Polarity, emotion, s.Urgency)
	}
	for _, f := range convo.RequiredFields() {
		v := c.UserInfo[f]
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(&sb, "%s: %s\n", statusFieldLabels[f], v)
	}
	keys := make([]string, 0, len(c.ProjectInfo))
	for k := range c.ProjectInfo {
		if k != agent.ProjectKeyDocument {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "Proyecto/%s: %s\n", k, c.ProjectInfo[k])
	}
	fmt.Fprintf(&sb, "Formulario completado: %s, lead guardado: %s", yesNo(c.FormCompleted), yesNo(c.LeadSaved))
	return sb.String()
}

func agentName(k convo.AgentKind) string {
	if k == "" {
		return "ninguno"
	}
	return string(k)
}

func yesNo(b bool) string {
	if b {
		return "sí"
	}
	return "no"
}
