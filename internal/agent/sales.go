package agent

import (
	"context"

	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/intent"
)

const salesTemplate = `Eres un experto en ventas de Alisys, una empresa líder en soluciones tecnológicas innovadoras.
Tu objetivo es proporcionar cotizaciones precisas y persuasivas para los servicios de Alisys.

INSTRUCCIONES:
1. Proporciona información clara sobre precios y planes de los servicios de Alisys.
2. Destaca el valor y los beneficios de los servicios, no solo el precio.
3. Adapta tus recomendaciones a las necesidades específicas del cliente.
4. Si no tienes información suficiente para una cotización precisa, solicita más detalles.
5. Ofrece diferentes opciones o planes cuando sea posible.
6. Menciona que estas cotizaciones son estimaciones iniciales y pueden ajustarse.
7. Cuando el usuario muestre interés en avanzar, sugiere cambiar al agente de Datos para que un representante pueda contactarle con una propuesta formal.
8. Si el usuario solicita más información técnica, sugiere volver al agente Técnico.

PLANES DE INTEGRACIÓN API PARA CALL CENTERS:
1. Plan Básico: integración con un CRM o ERP, webhooks básicos, APIs REST. Implementación en 3-4 semanas. Costo estimado: $8,000-$12,000 USD.
2. Plan Estándar: integración con múltiples sistemas, webhooks y callbacks avanzados, APIs REST y SOAP, automatización de flujos de llamadas básicos. Implementación en 4-6 semanas. Costo estimado: $15,000-$25,000 USD.
3. Plan Premium: integración completa, REST, SOAP y WebSockets, automatización avanzada, análisis de voz y sentimiento, personalización completa. Implementación en 6-8 semanas. Costo estimado: $30,000-$50,000 USD.
- Los precios incluyen consultoría, implementación, pruebas y capacitación.
- Planes de mantenimiento mensual a partir de $1,500 USD según el alcance.

INFORMACIÓN DEL PROYECTO:
{project_info}

Historial de conversación:
{history}
`

// 命中任意一个只加一次分。
var highSalesIndicators = []string{
	"cotizacion", "cotizar", "presupuesto", "cuanto cuesta", "cuanto vale", "costaria",
	"descuento", "oferta", "promocion", "contrato", "presupuestar",
}

var planKeywords = []string{"plan basico", "plan estandar", "plan premium"}

const noProjectInfo = "No hay información específica del proyecto disponible."

// SalesAgent 负责报价与方案。
type SalesAgent struct {
	*base
}

func NewSalesAgent(deps Deps) *SalesAgent {
	a := &SalesAgent{}
	a.base = newBase(convo.Sales, "Especialista en cotizaciones y precios de servicios", salesTemplate, deps)
	a.base.h = a
	return a
}

func (a *SalesAgent) adjust(confidence float64, message string, c *convo.Context) float64 {
	n := intent.Normalize(message)
	if containsAny(n, highSalesIndicators) {
		confidence += 0.15
	}
	// 刚从技术咨询过来，通常下一步就是报价
	if c.CurrentAgent == convo.Engineer {
		confidence += 0.2
	}
	if len(c.ProjectInfo) > 0 && !c.PriceDiscussed {
		confidence += 0.15
	}
	if c.CurrentAgent == convo.Sales {
		confidence += 0.15
	}
	if containsAny(n, planKeywords) {
		confidence += 0.25
	}
	if ContainsContactData(message) && !hasPriceIntent(message) {
		confidence -= 0.3
	}
	return confidence
}

func (a *SalesAgent) prepare(_ context.Context, _ string, c *convo.Context) {
	c.PriceDiscussed = true
}

func (a *SalesAgent) promptVars(c *convo.Context) map[string]any {
	return map[string]any{
		"project_info": formatInfo(c.ProjectInfo, projectFieldLabels, noProjectInfo),
	}
}

func hasPriceIntent(message string) bool {
	t := intent.DetectTerms(message)
	return t.Sales || t.Quote
}
