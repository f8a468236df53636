package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SALESAGENT_LLM_PROVIDER", "lmstudio")
	t.Setenv("SALESAGENT_STORAGE_PATH", filepath.Join(dir, "cli.db"))
	return dir
}

func TestAnalyzeOffline(t *testing.T) {
	dir := isolate(t)
	doc := filepath.Join(dir, "requisitos.txt")
	require.NoError(t, os.WriteFile(doc, []byte("Necesitamos integrar nuestro call center con el CRM y una API REST, con un chatbot de IA. Plazo de 3 meses."), 0o644))

	out := execute(t, "analyze", "--offline", "--json", doc)

	var got struct {
		Analysis struct {
			Complexity    int    `json:"complejidad"`
			EstimatedTime string `json:"tiempo_estimado"`
		} `json:"analisis"`
		Budget struct {
			Total    float64 `json:"costo_total"`
			Currency string  `json:"moneda"`
		} `json:"presupuesto"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 3, got.Analysis.Complexity)
	assert.Equal(t, "3 meses", got.Analysis.EstimatedTime)
	assert.Equal(t, "EUR", got.Budget.Currency)
	assert.Positive(t, got.Budget.Total)

	analyzeJSON = false
	t.Cleanup(func() { analyzeOffline = false })
	out = execute(t, "analyze", "--offline", doc)
	assert.Contains(t, out, "Análisis de requisitos.txt")
}

func TestStorageInfoAndPrune(t *testing.T) {
	isolate(t)

	out := execute(t, "storage", "info")
	assert.Contains(t, out, "SessionSnapshots")
	assert.Contains(t, out, "AuditRecords")

	out = execute(t, "storage", "prune")
	assert.Contains(t, out, "Deleted 0 session snapshots, 0 audit records")

	out = execute(t, "storage", "sessions")
	assert.Contains(t, out, "SESSION")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "hola", clip("hola", 10))
	assert.Equal(t, "integra...", clip("integración CRM", 10))
	assert.Equal(t, "-", orDash(""))
}
