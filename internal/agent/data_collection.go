package agent

import (
	"context"
	"strings"

	"github.com/wwwzy/SalesAgent/internal/convo"
)

const dataCollectionTemplate = `Eres un asistente de Alisys especializado en recopilar información de contacto.
Tu objetivo es obtener los datos necesarios para que un representante pueda contactar al usuario.

INSTRUCCIONES GENERALES:
1. Explica que eres el agente de recopilación de datos y que un representante contactará al usuario con una propuesta personalizada.
2. Solicita la información de contacto que falta, un dato a la vez.
3. Confirma cada dato recibido antes de solicitar el siguiente.
4. Mantén un tono profesional y respetuoso. Si el usuario se muestra reacio, no insistas.
5. IMPORTANTE: No vuelvas a solicitar información que ya ha sido proporcionada.
6. Una vez recopilados todos los datos, confirma la información e informa que un representante se pondrá en contacto en 24-48 horas.

INFORMACIÓN YA RECOPILADA:
{collected}

INFORMACIÓN PENDIENTE:
{missing}

INSTRUCCIÓN ESPECÍFICA PARA ESTE MENSAJE:
{instruction}

ESTADO DE LA CONVERSACIÓN:
- Campos ya recopilados: {collected_fields}
- Próximo campo a solicitar: {next_field}

Historial de conversación:
{history}
`

var fieldInstructions = map[string]string{
	convo.FieldName:    "Solicita amablemente el nombre completo del usuario.",
	convo.FieldEmail:   "Solicita la dirección de correo electrónico del usuario. Explica que es necesaria para enviar información relevante.",
	convo.FieldPhone:   "Solicita el número de teléfono del usuario. Explica que es para que un representante pueda contactarle.",
	convo.FieldCompany: "Pregunta por el nombre de la empresa u organización del usuario.",
}

const allCollected = "Todos los datos han sido recopilados. Agradece al usuario y confirma que un representante se pondrá en contacto en 24-48 horas."

// DataCollectionAgent 收集联系方式，字段齐全后保存一次线索。
type DataCollectionAgent struct {
	*base
}

func NewDataCollectionAgent(deps Deps) *DataCollectionAgent {
	a := &DataCollectionAgent{}
	a.base = newBase(convo.DataCollection, "Especialista en recopilar información de contacto del usuario", dataCollectionTemplate, deps)
	a.base.h = a
	return a
}

func (a *DataCollectionAgent) adjust(confidence float64, message string, c *convo.Context) float64 {
	if ContainsContactData(message) {
		confidence += 0.15
	}
	if c.FormActive && len(c.MissingFields()) > 0 {
		confidence += 0.2
	}
	return confidence
}

// prepare 提取字段；字段齐全且尚未保存时写入一次线索并完成表单。
func (a *DataCollectionAgent) prepare(ctx context.Context, message string, c *convo.Context) {
	if confirmsPreviousInfo(message) {
		c.ConfirmedPreviousInfo = true
		a.logger.Info("user says info was already provided")
	}
	if !c.FormCompleted {
		c.FormShown = true
		c.FormActive = true
	}

	extracted := ExtractContact(message, c.UserInfo)
	for field, value := range extracted {
		c.SetUserField(field, value)
	}
	if len(extracted) > 0 {
		a.logger.Info("contact fields extracted", "fields", len(extracted), "missing", strings.Join(c.MissingFields(), ","))
	}

	if len(c.MissingFields()) > 0 || c.LeadSaved {
		return
	}
	c.CompleteForm()
	if a.deps.Leads == nil {
		a.logger.Warn("lead complete but no sink configured", "session_id", c.SessionID)
		return
	}
	if err := a.deps.Leads.SaveLead(ctx, convo.LeadFromContext(c, message)); err != nil {
		a.logger.Error("failed to save lead", "session_id", c.SessionID, "error", err)
		return
	}
	c.LeadSaved = true
	a.logger.Info("lead saved", "session_id", c.SessionID)
}

func (a *DataCollectionAgent) promptVars(c *convo.Context) map[string]any {
	missing := c.MissingFields()

	next := "Ninguno, todos los datos han sido recopilados"
	instruction := allCollected
	if len(missing) > 0 {
		next = missing[0]
		instruction = fieldInstructions[next]
		if c.ConfirmedPreviousInfo {
			instruction = "El usuario ha indicado que ya proporcionó información anteriormente. " +
				"Revisa la información ya recopilada y NO vuelvas a solicitar esos datos. " +
				"El siguiente campo que necesitamos es: " + next + ". " +
				"Si el usuario dice que ya lo proporcionó pero no lo tenemos, explícale amablemente que no está en nuestro sistema y pídele que lo indique de nuevo."
		}
	}

	pending := "Toda la información ha sido recopilada."
	if len(missing) > 0 {
		pending = strings.Join(missing, ", ")
	}

	var collected []string
	for _, f := range convo.RequiredFields() {
		if strings.TrimSpace(c.UserInfo[f]) != "" {
			collected = append(collected, f)
		}
	}
	collectedFields := "Ninguno"
	if len(collected) > 0 {
		collectedFields = strings.Join(collected, ", ")
	}

	return map[string]any{
		"collected":        formatInfo(c.UserInfo, userFieldLabels, "No se ha recopilado información todavía."),
		"missing":          pending,
		"instruction":      instruction,
		"collected_fields": collectedFields,
		"next_field":       next,
	}
}
