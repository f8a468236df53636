package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wwwzy/SalesAgent/internal/convo"
)

func TestExtractContact(t *testing.T) {
	cases := []struct {
		msg  string
		want map[string]string
	}{
		{"Mi nombre es Ana, mi correo es ana@ex.com", map[string]string{convo.FieldName: "Ana", convo.FieldEmail: "ana@ex.com"}},
		{"Me llamo Juan y mi email es x@y.com", map[string]string{convo.FieldName: "Juan", convo.FieldEmail: "x@y.com"}},
		{"Soy Laura Gómez de Acme", map[string]string{convo.FieldName: "Laura Gómez"}},
		{"soy de Madrid", map[string]string{}},
		{"Juan Pérez", map[string]string{convo.FieldName: "Juan Pérez"}},
		{"María de la Cruz", map[string]string{convo.FieldName: "María de la Cruz"}},
		{"sí", map[string]string{}},
		{"Ok", map[string]string{}},
		{"teléfono: 912 345 678", map[string]string{convo.FieldPhone: "912 345 678"}},
		{"mi teléfono es +34 600 123 456", map[string]string{convo.FieldPhone: "+34 600 123 456"}},
		{"Trabajo en Telefónica y busco una API", map[string]string{convo.FieldCompany: "Telefónica"}},
		{"Mi correo es ana@ex.com.", map[string]string{convo.FieldEmail: "ana@ex.com"}},
		{"llámame al 600 123 456", map[string]string{convo.FieldPhone: "600 123 456"}},
		{"Mi empresa es Acme Corp y queremos una demo", map[string]string{convo.FieldCompany: "Acme Corp"}},
		{"Acme Corp es mi empresa", map[string]string{convo.FieldCompany: "Acme Corp"}},
		// 金额与动词短语不是联系数据
		{"El presupuesto es de 1.500.000 euros", map[string]string{}},
		{"Tenemos 250 000 000 euros para el proyecto", map[string]string{}},
		{"pedido 2024-0001 del año pasado", map[string]string{}},
		{"mi empresa necesita integrar un CRM", map[string]string{}},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractContact(tc.msg, nil))
		})
	}
}

func TestExtractContact_KeepsKnownFields(t *testing.T) {
	known := map[string]string{convo.FieldEmail: "a@b.com", convo.FieldName: "Ana"}
	assert.Empty(t, ExtractContact("mi correo es b@c.com", known))
	// 名字已知时不做猜测
	assert.Empty(t, ExtractContact("Pedro", known))
}

func TestExtractContact_Idempotent(t *testing.T) {
	msg := "Me llamo Juan, mi correo es juan@acme.com y mi teléfono es 600 123 456"
	c := convo.New("")
	for i := 0; i < 2; i++ {
		for f, v := range ExtractContact(msg, c.UserInfo) {
			c.SetUserField(f, v)
		}
	}
	assert.Equal(t, map[string]string{
		convo.FieldName:  "Juan",
		convo.FieldEmail: "juan@acme.com",
		convo.FieldPhone: "600 123 456",
	}, c.UserInfo)
	assert.Empty(t, ExtractContact(msg, c.UserInfo))
}

func TestContainsContactData(t *testing.T) {
	assert.True(t, ContainsContactData("escríbeme a ana@ex.com"))
	assert.True(t, ContainsContactData("llámame al 600 123 456"))
	assert.True(t, ContainsContactData("me llamo Ana"))
	assert.True(t, ContainsContactData("Juan Pérez"))

	assert.False(t, ContainsContactData("quiero información"))
	assert.False(t, ContainsContactData("Hola"))
	assert.False(t, ContainsContactData("¿cuánto costaría el plan básico?"))
	assert.False(t, ContainsContactData("el presupuesto ronda 1.500.000 €"))
}

func TestConfirmsPreviousInfo(t *testing.T) {
	assert.True(t, confirmsPreviousInfo("Ya te lo dije"))
	assert.True(t, confirmsPreviousInfo("ya lo he proporcionado"))
	assert.True(t, confirmsPreviousInfo("YA LO SABES"))
	assert.False(t, confirmsPreviousInfo("ya está bien así"))
}
