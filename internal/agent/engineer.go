package agent

import (
	"context"
	"strings"

	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/intent"
)

const engineerTemplate = `Eres un ingeniero experto de Alisys especializado en soluciones tecnológicas.
Tu objetivo es proporcionar estimaciones técnicas precisas y recomendaciones para proyectos.

INSTRUCCIONES:
1. Proporciona explicaciones técnicas claras y concisas sobre las soluciones de Alisys.
2. Estima tiempos de implementación basados en la complejidad del proyecto.
3. Recomienda tecnologías y enfoques específicos para las necesidades del cliente.
4. Si no tienes suficiente información para una estimación precisa, solicita más detalles.
5. Proporciona rangos de tiempo realistas (por ejemplo, "3-4 semanas") en lugar de fechas exactas.
6. Menciona los factores que pueden afectar los tiempos de implementación.
7. Después de dar información técnica detallada, sugiere hablar con el agente de Ventas para obtener una cotización personalizada.
8. Tu función principal es proporcionar información técnica, no cotizaciones ni precios específicos.

INTEGRACIÓN DE APIS PARA CALL CENTERS:
- APIs de Alisys para call centers (REST, SOAP, WebSockets).
- Integración con CRMs, ERPs y otras plataformas de gestión.
- Integración con telefonía IP, VoIP y PBX.
- Automatización de flujos de llamadas, análisis de voz y sentimiento.
- Webhooks y callbacks en tiempo real, seguridad y autenticación.

INFORMACIÓN DEL USUARIO:
{user_info}

INFORMACIÓN DEL PROYECTO:
{project_info}

Historial de conversación:
{history}
`

const maxInterestLen = 200

const noUserInfo = "No hay información específica del usuario disponible."

var userFieldLabels = map[string]string{
	convo.FieldName:    "Nombre",
	convo.FieldEmail:   "Correo electrónico",
	convo.FieldPhone:   "Teléfono",
	convo.FieldCompany: "Empresa",
}

// EngineerAgent 负责技术咨询与需求文档分析。
type EngineerAgent struct {
	*base
}

func NewEngineerAgent(deps Deps) *EngineerAgent {
	a := &EngineerAgent{}
	a.base = newBase(convo.Engineer, "Especialista en estimación de tiempos y tecnologías para proyectos", engineerTemplate, deps)
	a.base.h = a
	return a
}

func (a *EngineerAgent) adjust(confidence float64, message string, c *convo.Context) float64 {
	terms := intent.DetectTerms(message)
	if c.ProjectInfo[ProjectKeyAnalysis] != "" && !terms.Sales {
		confidence += 0.2
	}
	if terms.Technical || intent.HasKeyword(convo.Engineer, message) {
		confidence += 0.1
	}
	return confidence
}

// prepare 记录第一条技术性消息作为线索的兴趣点。
func (a *EngineerAgent) prepare(_ context.Context, message string, c *convo.Context) {
	if c.ProjectInfo[ProjectKeyInterest] != "" || !intent.DetectTerms(message).Technical {
		return
	}
	c.ProjectInfo[ProjectKeyInterest] = truncateRunes(strings.TrimSpace(message), maxInterestLen)
}

func (a *EngineerAgent) promptVars(c *convo.Context) map[string]any {
	return map[string]any{
		"user_info":    formatInfo(c.UserInfo, userFieldLabels, noUserInfo),
		"project_info": formatInfo(c.ProjectInfo, projectFieldLabels, noProjectInfo),
	}
}

// AnalyzeDocument 使用本 Agent 的生成器分析需求文档。
func (a *EngineerAgent) AnalyzeDocument(ctx context.Context, filename, text string) (ProjectAnalysis, error) {
	return AnalyzeDocument(ctx, a.deps.Generator, a.logger, filename, text)
}
