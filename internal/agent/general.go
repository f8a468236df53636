package agent

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/intent"
)

const generalTemplate = `Eres un asistente virtual de Alisys, una empresa especializada en soluciones de comunicación.

INFORMACIÓN SOBRE ALISYS:
Alisys ofrece soluciones de comunicación avanzadas para empresas, incluyendo:
1. Contact Center as a Service (CCaaS): Plataforma en la nube para gestionar interacciones con clientes.
2. Comunicaciones unificadas: Integración de voz, video, mensajería y colaboración.
3. Telefonía IP empresarial: Soluciones de voz sobre IP para empresas de todos los tamaños.
4. SMS y WhatsApp Business: Comunicación masiva y personalizada con clientes.
5. Números de teléfono virtuales: Números locales e internacionales para presencia global.
6. Soluciones de IVR y chatbots: Automatización de atención al cliente con IA.

INSTRUCCIONES:
1. Proporciona información clara y concisa sobre los servicios de Alisys.
2. Si el usuario pregunta por precios específicos, explica que varían según las necesidades y volumen, y sugiere cambiar al agente de Ventas para obtener una cotización.
3. Si el usuario muestra interés en algún servicio o tiene preguntas técnicas, sugiere cambiar al agente Técnico.
4. Si el usuario ya conoce los detalles técnicos y quiere adquirir el servicio, sugiere cambiar al agente de Ventas.
5. Si el usuario está listo para avanzar, sugiere cambiar al agente de Datos para dejar sus datos de contacto.
6. Mantén un tono profesional y amigable en todo momento.
7. No inventes información sobre Alisys que no esté en este prompt.

FLUJO DE CONVERSACIÓN RECOMENDADO:
Información general (tú) → Detalles técnicos (agente Técnico) → Cotización (agente Ventas) → Recopilación de datos (agente Datos).

Historial de conversación:
{history}
`

var greetings = []string{"hola", "buenos dias", "buenas tardes", "buenas noches", "saludos", "hello"}

// GeneralAgent 回答公司与服务的一般性问题，也是兜底 Agent。
type GeneralAgent struct {
	*base
}

func NewGeneralAgent(deps Deps) *GeneralAgent {
	a := &GeneralAgent{}
	a.base = newBase(convo.General, "Especialista en información general sobre Alisys", generalTemplate, deps)
	a.base.h = a
	return a
}

func (a *GeneralAgent) adjust(confidence float64, message string, c *convo.Context) float64 {
	if utf8.RuneCountInString(message) < 15 {
		confidence += 0.1
	}
	if c.MessageCount <= 1 {
		confidence += 0.2
	}
	if c.CurrentAgent == "" {
		confidence += 0.1
	}
	if containsAny(intent.Normalize(message), greetings) {
		confidence += 0.2
	}
	return confidence
}

func (a *GeneralAgent) prepare(context.Context, string, *convo.Context) {}

func (a *GeneralAgent) promptVars(*convo.Context) map[string]any {
	return map[string]any{}
}

// containsAny 子串匹配，list 需为已归一化文本。
func containsAny(normalized string, list []string) bool {
	for _, s := range list {
		if strings.Contains(normalized, s) {
			return true
		}
	}
	return false
}
