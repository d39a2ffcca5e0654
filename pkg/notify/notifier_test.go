package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r2flows/churn-agent/pkg/kafka"
	"github.com/r2flows/churn-agent/pkg/models"
)

type capturingPublisher struct {
	events []*kafka.AlertEvent
	err    error
}

func (c *capturingPublisher) Publish(_ context.Context, event *kafka.AlertEvent) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func fixturePortfolio() ([]models.RiskAssessment, []models.OwnerSummary, models.OwnerMap) {
	assessments := []models.RiskAssessment{
		{PosID: "101", Score: 0.80, Confidence: 0.85, Tier: models.RiskTierUrgent, TriggeredFlags: []string{"🧟 Zombie"}, RecommendedAction: "Contactar hoy"},
		{PosID: "102", Score: 0.65, Confidence: 0.70, Tier: models.RiskTierModerate, RecommendedAction: "Agendar llamada"},
		{PosID: "103", Score: 0.30, Confidence: 0.60, Tier: models.RiskTierLow, RecommendedAction: "Monitoreo"},
	}

	summaries := []models.OwnerSummary{
		{
			OwnerID:      "owner-a",
			OwnerCompany: "hs-alpha",
			PosCount:     2,
			CountByTier: map[models.RiskTier]int{
				models.RiskTierUrgent:   1,
				models.RiskTierModerate: 1,
				models.RiskTierLow:      0,
			},
			AverageScore:   0.725,
			CriticalPosIDs: []string{"101"},
			HasCritical:    true,
		},
		{
			OwnerID:      models.UnassignedOwner,
			OwnerCompany: models.UnassignedOwner,
			PosCount:     1,
			CountByTier: map[models.RiskTier]int{
				models.RiskTierUrgent:   0,
				models.RiskTierModerate: 0,
				models.RiskTierLow:      1,
			},
			AverageScore: 0.30,
		},
	}

	owners := models.OwnerMap{
		"101": {OwnerID: "owner-a", HSCompanyID: "hs-alpha"},
		"102": {OwnerID: "owner-a", HSCompanyID: "hs-alpha"},
	}

	return assessments, summaries, owners
}

func TestNotifier_Dispatch(t *testing.T) {
	publisher := &capturingPublisher{}
	notifier := NewNotifier(publisher, testLogger())

	assessments, summaries, owners := fixturePortfolio()
	notifier.Dispatch(context.Background(), "run-1", assessments, summaries, owners)

	require.Len(t, publisher.events, 3)

	assert.Equal(t, models.EventTypeAssessment, publisher.events[0].Type)
	assert.Equal(t, "101", publisher.events[0].EntityID)
	assert.Equal(t, "run-1", publisher.events[0].RunID)

	var assessment models.AssessmentEvent
	require.NoError(t, json.Unmarshal(publisher.events[0].Data, &assessment))
	assert.Equal(t, models.RiskTierUrgent, assessment.Tier)
	assert.Equal(t, []string{"🧟 Zombie"}, assessment.TriggeredFlags)
	assert.False(t, assessment.OccurredAt.IsZero())

	assert.Equal(t, models.EventTypeAssessment, publisher.events[1].Type)
	assert.Equal(t, "102", publisher.events[1].EntityID)

	assert.Equal(t, models.EventTypeOwnerDigest, publisher.events[2].Type)
	assert.Equal(t, "owner-a", publisher.events[2].EntityID)

	var digest models.OwnerDigestEvent
	require.NoError(t, json.Unmarshal(publisher.events[2].Data, &digest))
	assert.Equal(t, "Reporte Farmacias Riesgosas - hs-alpha", digest.Subject)
	assert.Equal(t, []string{"101"}, digest.CriticalPosIDs)
	assert.Contains(t, digest.Body, "🔴 URGENTE: 1 POS urgentes de 2 total")
	assert.Contains(t, digest.Body, "- POS 101: score 0.80 (URGENT) → Contactar hoy")
	assert.Contains(t, digest.Body, "- POS 102: score 0.65 (MODERATE) → Agendar llamada")
}

func TestNotifier_Dispatch_EmptyPortfolio(t *testing.T) {
	publisher := &capturingPublisher{}
	notifier := NewNotifier(publisher, testLogger())

	notifier.Dispatch(context.Background(), "run-1", nil, nil, nil)

	assert.Empty(t, publisher.events)
}

func TestNotifier_Dispatch_NilPublisher(t *testing.T) {
	notifier := NewNotifier(nil, testLogger())

	assessments, summaries, owners := fixturePortfolio()
	assert.NotPanics(t, func() {
		notifier.Dispatch(context.Background(), "run-1", assessments, summaries, owners)
	})
}

func TestNotifier_Dispatch_PublishFailure(t *testing.T) {
	publisher := &capturingPublisher{err: errors.New("broker down")}
	notifier := NewNotifier(publisher, testLogger())

	assessments, summaries, owners := fixturePortfolio()
	assert.NotPanics(t, func() {
		notifier.Dispatch(context.Background(), "run-1", assessments, summaries, owners)
	})
	assert.Empty(t, publisher.events)
}

func TestDigestBody_Standing(t *testing.T) {
	moderateOnly := models.OwnerSummary{
		OwnerID:      "owner-b",
		OwnerCompany: "hs-beta",
		PosCount:     3,
		CountByTier: map[models.RiskTier]int{
			models.RiskTierModerate: 2,
			models.RiskTierLow:      1,
		},
	}
	body := DigestBody(moderateOnly, nil)
	assert.Contains(t, body, "🟡 MODERADO: 2 POS seguimiento de 3 total")
	assert.Contains(t, body, "Programar llamadas en 1 semana")

	stable := models.OwnerSummary{
		OwnerID:      "owner-c",
		OwnerCompany: "hs-gamma",
		PosCount:     4,
		CountByTier:  map[models.RiskTier]int{models.RiskTierLow: 4},
	}
	body = DigestBody(stable, nil)
	assert.Contains(t, body, "✅ ESTABLE: Todos los 4 POS bajo control")
	assert.Contains(t, body, "Monitoreo rutinario semanal")
}
