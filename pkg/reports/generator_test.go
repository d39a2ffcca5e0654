package reports

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r2flows/churn-agent/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func dec(t *testing.T, value string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return &d
}

func fixtureAssessments() []models.RiskAssessment {
	return []models.RiskAssessment{
		{
			PosID:                 "101",
			Score:                 0.80,
			Confidence:            0.85,
			TriggeredFlags:        []string{"🧟 Zombie", "Tendencia de compra riesgosa (inactive/risky)"},
			Tier:                  models.RiskTierUrgent,
			Rationale:             "POS cumple 2 de 3 criterios de riesgo: 🧟 Zombie, Tendencia de compra riesgosa (inactive/risky).",
			RecommendedAction:     "URGENTE: Asignar ejecutivo inmediatamente para prevenir churn",
			OrdersDelivered4w:     "12.00",
			PercentageDelivered4w: "40.00%",
			PercentageDelivered2w: "20.00%",
		},
		{
			PosID:                 "102",
			Score:                 0.30,
			Confidence:            0.60,
			TriggeredFlags:        nil,
			Tier:                  models.RiskTierLow,
			Rationale:             "POS cumple 0 de 3 criterios de riesgo.",
			RecommendedAction:     "Monitoreo rutinario.",
			OrdersDelivered4w:     models.NoData,
			PercentageDelivered4w: models.NoData,
			PercentageDelivered2w: models.NoData,
		},
	}
}

func fixtureSignals(t *testing.T) map[string]models.PosSignal {
	return map[string]models.PosSignal{
		"101": {
			PosID:                 "101",
			TrendClassification:   models.TrendInactive,
			PercentageDelivered4w: dec(t, "40"),
			PercentageDelivered2w: dec(t, "20"),
		},
		"102": {
			PosID:               "102",
			TrendClassification: models.TrendUnknown,
		},
	}
}

func fixtureSummaries() []models.OwnerSummary {
	return []models.OwnerSummary{
		{
			OwnerID:      "owner-a",
			OwnerCompany: "hs-alpha",
			PosCount:     3,
			CountByTier: map[models.RiskTier]int{
				models.RiskTierUrgent:   2,
				models.RiskTierModerate: 1,
				models.RiskTierLow:      0,
			},
			AverageScore:   0.85,
			CriticalPosIDs: []string{"303", "302"},
			HasCritical:    true,
		},
		{
			OwnerID:      "owner-b",
			OwnerCompany: "owner-b",
			PosCount:     1,
			CountByTier: map[models.RiskTier]int{
				models.RiskTierUrgent:   0,
				models.RiskTierModerate: 0,
				models.RiskTierLow:      1,
			},
			AverageScore:   0.30,
			CriticalPosIDs: nil,
			HasCritical:    false,
		},
	}
}

func TestGenerator_RenderPosHTML(t *testing.T) {
	g := NewGenerator(testLogger())

	html, err := g.RenderPosHTML(context.Background(), fixtureAssessments(), fixtureSignals(t))
	require.NoError(t, err)

	assert.Contains(t, html, "Alertas de comportamiento riesgoso")
	assert.Contains(t, html, "POS 101")
	assert.Contains(t, html, "background:#F44336")
	assert.Contains(t, html, "🧟 Zombie")
	assert.Contains(t, html, "Score: 0.80 | Conf: 0.85")
	assert.Contains(t, html, "inactive")
	assert.Contains(t, html, "40.00%")

	// POS without triggered flags stay out of the alert table
	assert.NotContains(t, html, "POS 102")
}

func TestGenerator_RenderPosMarkdown(t *testing.T) {
	g := NewGenerator(testLogger())

	t.Run("with alerts", func(t *testing.T) {
		markdown, err := g.RenderPosMarkdown(context.Background(), fixtureAssessments(), fixtureSignals(t))
		require.NoError(t, err)

		assert.Contains(t, markdown, "# Alertas de comportamiento riesgoso")
		assert.Contains(t, markdown, "- **POS 101**")
		assert.Contains(t, markdown, "Riesgo estimado: Urgent (score 0.80, confianza 0.85)")
		assert.Contains(t, markdown, "Motivos: 🧟 Zombie; Tendencia de compra riesgosa (inactive/risky)")
		assert.Contains(t, markdown, "Purchase trend: inactive")
		assert.Contains(t, markdown, "Orders delivery rate (4w / 2w): 40.00% / 20.00%")
		assert.Contains(t, markdown, "Acción recomendada: URGENTE: Asignar ejecutivo inmediatamente para prevenir churn")
		assert.NotContains(t, markdown, "POS 102")
	})

	t.Run("no alerts", func(t *testing.T) {
		markdown, err := g.RenderPosMarkdown(context.Background(), nil, nil)
		require.NoError(t, err)

		assert.Contains(t, markdown, "No se detectaron puntos de venta con banderas de riesgo para la semana analizada.")
	})
}

func TestGenerator_RenderASCIIChart(t *testing.T) {
	g := NewGenerator(testLogger())

	t.Run("bars scale to the max rate", func(t *testing.T) {
		chart := g.RenderASCIIChart(context.Background(), fixtureAssessments(), fixtureSignals(t))

		require.NotEmpty(t, chart)
		assert.Contains(t, chart, "ASCII chart: Orders delivery rate (4w vs 2w) by POS ID")
		// max rate 40 gives scale 1: 40 hashes for 4w, 20 pluses for 2w
		assert.Contains(t, chart, "4w  40.00% "+strings.Repeat("#", 40))
		assert.Contains(t, chart, "2w  20.00% "+strings.Repeat("+", 20))
	})

	t.Run("no rates no chart", func(t *testing.T) {
		assessments := fixtureAssessments()
		signals := map[string]models.PosSignal{"101": {PosID: "101"}}

		chart := g.RenderASCIIChart(context.Background(), assessments, signals)
		assert.Empty(t, chart)
	})

	t.Run("empty portfolio", func(t *testing.T) {
		chart := g.RenderASCIIChart(context.Background(), nil, nil)
		assert.Empty(t, chart)
	})
}

func TestGenerator_RenderOwnerHTML(t *testing.T) {
	g := NewGenerator(testLogger())

	html, err := g.RenderOwnerHTML(context.Background(), fixtureSummaries())
	require.NoError(t, err)

	assert.Contains(t, html, "Reporte de Riesgo Comportamental por Owner")
	assert.Contains(t, html, "hs-alpha")
	assert.Contains(t, html, "ID: owner-a")
	assert.Contains(t, html, "POS 303")
	assert.Contains(t, html, "background:#F44336")
	assert.Contains(t, html, "Alto")
	assert.Contains(t, html, "Score: 0.85")
}

func TestGenerator_RenderOwnerMarkdown(t *testing.T) {
	g := NewGenerator(testLogger())

	t.Run("with owners", func(t *testing.T) {
		markdown, err := g.RenderOwnerMarkdown(context.Background(), fixtureSummaries())
		require.NoError(t, err)

		assert.Contains(t, markdown, "### hs-alpha (ID: owner-a)")
		assert.Contains(t, markdown, "🔴 Alto")
		assert.Contains(t, markdown, "**POS críticos**: 303, 302")
		assert.Contains(t, markdown, "🟢 Bajo")
		assert.Contains(t, markdown, "**POS críticos**: Ninguno")
	})

	t.Run("no owners", func(t *testing.T) {
		markdown, err := g.RenderOwnerMarkdown(context.Background(), nil)
		require.NoError(t, err)

		assert.Contains(t, markdown, "No se detectaron owners con puntos de venta en riesgo.")
	})
}

func TestGenerator_WriteAll(t *testing.T) {
	g := NewGenerator(testLogger())
	dir := t.TempDir()

	paths, err := g.WriteAll(context.Background(), filepath.Join(dir, "reports"), fixtureAssessments(), fixtureSignals(t), fixtureSummaries())
	require.NoError(t, err)

	require.Len(t, paths, 5)
	for format, path := range paths {
		info, err := os.Stat(path)
		require.NoError(t, err, "report %s missing", format)
		assert.Greater(t, info.Size(), int64(0))
	}

	assert.Equal(t, filepath.Join(dir, "reports", MarkdownReportName), paths["markdown"])
	assert.Equal(t, filepath.Join(dir, "reports", OwnerHTMLReportName), paths["owner_html"])
}

func TestGenerator_WriteAll_EmptyPortfolio(t *testing.T) {
	g := NewGenerator(testLogger())
	dir := t.TempDir()

	paths, err := g.WriteAll(context.Background(), dir, nil, nil, nil)
	require.NoError(t, err)

	// only the Markdown variants exist when there is nothing to show
	require.Len(t, paths, 2)
	assert.Contains(t, paths, "markdown")
	assert.Contains(t, paths, "owner_markdown")
}
