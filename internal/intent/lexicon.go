package intent

import "github.com/wwwzy/SalesAgent/internal/convo"

// 基础分：GeneralAgent 最高，作为默认兜底倾向。
var baseScores = map[convo.AgentKind]float64{
	convo.General:        0.2,
	convo.Sales:          0.1,
	convo.Engineer:       0.1,
	convo.DataCollection: 0.05,
}

const (
	keywordStep       = 0.15
	salesKeywordStep  = 0.25
	phraseStep        = 0.25
	salesPhraseStep   = 0.35
	serviceQuestionGA = 0.9
)

var keywords = map[convo.AgentKind][]phrase{
	convo.Engineer: compile(
		"técnico", "tecnico", "problema", "configurar", "instalar", "error",
		"funciona", "integración", "integracion", "api", "desarrollo", "servidor",
		"cloud", "implementación", "implementacion", "arquitectura", "tecnología", "tecnologia",
		"plataforma", "software", "aplicación", "aplicacion", "sistema", "infraestructura",
		"hosting", "base de datos", "seguridad", "programación", "programacion", "código", "codigo",
		"soporte técnico", "soporte tecnico", "implementar", "conectar", "backend", "frontend",
	),
	convo.Sales: compile(
		"precio", "costo", "pagar", "plan", "contratar", "comprar", "adquirir",
		"presupuesto", "oferta", "descuento", "tarifas", "inversión", "inversion",
		"propuesta", "comercial", "venta", "cotización", "cotizacion", "contrato",
		"facturación", "facturacion", "paquete", "suscripción", "suscripcion", "precios",
		"promoción", "promocion", "pago", "dinero", "euros", "cuesta", "costar", "valor",
		"económico", "economico", "costes", "mensualidad", "anualidad", "financiación", "financiacion",
		"cotizar", "costará", "costara", "vale", "valer", "interesado en", "proforma",
	),
	convo.DataCollection: compile(
		"formulario", "datos", "contacto", "email", "teléfono", "telefono",
		"llamar", "nombre", "empresa", "información", "informacion", "contactarme",
		"representante", "asesor", "registrar", "visita", "reunión", "reunion",
		"demo", "demostración", "demostracion", "prueba", "gratuita", "trial",
		"correo", "dirección", "direccion", "móvil", "movil", "celular", "whatsapp",
		"contactar", "comunicar", "comunicarse", "interesado",
	),
	convo.General: compile(
		"hola", "información", "informacion", "ayuda", "servicio", "solución", "solucion",
		"explicar", "contar", "qué es", "que es", "cómo", "como", "cuál", "cual",
		"beneficios", "ventajas", "características", "caracteristicas", "funcionalidades",
		"diferencia", "similar", "competencia", "alternativas", "mejor", "recomendación",
		"recomendacion", "opinión", "opinion", "experiencia", "caso de éxito", "caso de exito",
	),
}

// 命中即加 salesKeywordStep 的高价值销售词。
var highValueSales = map[string]bool{
	"cotizar":    true,
	"cotizacion": true,
	"precio":     true,
	"costo":      true,
}

var phrases = map[convo.AgentKind][]phrase{
	convo.Engineer: compile(
		"cómo funciona", "cómo se integra", "cómo se implementa", "necesito ayuda técnica",
		"tengo un problema técnico", "puedo conectar", "es compatible con", "requisitos técnicos",
	),
	convo.Sales: compile(
		"cuánto cuesta", "qué precio tiene", "tienen descuentos", "hay promociones",
		"formas de pago", "métodos de pago", "planes disponibles", "quiero contratar",
		"quiero comprar", "estoy interesado en cotizar", "necesito cotizar",
		"quiero una cotización", "quiero cotización", "pueden cotizar", "me gustaría cotizar",
		"precio para", "costo de", "interesado en comprar", "interesado en contratar",
		"interesado en adquirir", "cuanto me costaría", "quiero una propuesta comercial",
	),
	convo.DataCollection: compile(
		"quiero que me contacten", "me gustaría hablar con un representante", "pueden llamarme",
		"quiero una demostración", "necesito que me contacte un asesor", "mi correo es",
		"mi email es", "mi teléfono es", "mis datos son", "quiero dejar mis datos",
	),
}

// 询问服务/公司信息的问题，配合问号直接交给 GeneralAgent。
var serviceQuestions = compile(
	"qué servicios", "qué ofrecen", "qué hacen", "a qué se dedican", "quiénes son",
	"qué es alisys", "información sobre", "qué soluciones", "en qué consiste",
	"qué tipo de servicios", "háblame de",
)

var technicalTerms = compile(
	"call center", "contact center", "ia", "inteligencia artificial", "migración", "migrar",
	"implementación", "implementar", "plataforma", "integrar", "integración", "api", "apis",
	"automatización", "automatizar", "chatbot", "chatbots", "bot", "crm", "erp", "voip", "ivr",
	"desarrollo", "arquitectura", "servidor", "cloud", "nube", "software", "omnicanal",
)

var salesTerms = compile(
	"precio", "precios", "cotizar", "cotización", "presupuesto", "contrato", "costo", "costos",
	"coste", "costes", "tarifa", "tarifas", "descuento", "descuentos", "pagar", "pago",
	"comprar", "contratar", "cuánto cuesta", "cuánto vale", "costaría", "costará", "factura",
	"inversión",
)

var quoteTerms = compile(
	"cotizar", "cotización", "presupuesto", "precio", "costo", "cuánto cuesta", "cuánto vale",
)

var contactTerms = compile(
	"contacten", "contactarme", "contáctenme", "llámenme", "llamenme", "demo", "demostración",
	"mis datos", "mi correo", "mi email", "mi teléfono", "mi nombre", "me llamo", "mi empresa",
)

var callCenterTerms = compile("call center", "contact center")

var interrogatives = compile(
	"qué", "cómo", "cuándo", "dónde", "por qué", "cuál", "cuáles", "quién", "quiénes",
	"cuánto", "cuánta", "cuántos", "cuántas",
)

// 显式切换关键词；按 Engineer、Sales、DataCollection、General 顺序检测。
var explicitOrder = []convo.AgentKind{convo.Engineer, convo.Sales, convo.DataCollection, convo.General}

var explicitKeywords = map[convo.AgentKind][]phrase{
	convo.Engineer: compile(
		"hablar con técnico", "hablar con un técnico", "quiero hablar con soporte",
		"necesito ayuda técnica", "quiero hablar con ingeniería",
		"me gustaría hablar con alguien técnico", "me gustaría hablar con un técnico",
		"hablar con alguien técnico", "quiero al técnico", "pasar al técnico",
		"cambiar a técnico", "conectar con técnico", "pasa al departamento técnico",
		"necesito soporte técnico", "técnico",
	),
	convo.Sales: compile(
		"hablar con ventas", "hablar con un vendedor", "hablar con comercial",
		"hablar con un comercial", "departamento de ventas", "información de precios",
		"me gustaría hablar con ventas", "pasar a ventas", "cambiar a ventas",
		"conectar con ventas", "quiero hablar con un comercial", "necesito hablar con ventas",
		"ventas", "comercial", "cotización", "precios", "presupuesto", "costo", "pago", "precio",
	),
	convo.DataCollection: compile(
		"quiero registrarme", "quiero dejar mis datos", "completar formulario",
		"enviar mis datos", "quiero que me contacten", "me gustaría dejar mis datos",
		"hablar con agente de datos", "pasar a datos", "cambiar a datos",
		"conectar con datos", "registro", "formulario", "contacto", "datos", "contactarme",
	),
	convo.General: compile(
		"información general", "volver al inicio", "empezar de nuevo",
		"reiniciar conversación", "pasar a general", "cambiar a general", "agente general",
		"general", "inicio", "reiniciar", "empezar",
	),
}
