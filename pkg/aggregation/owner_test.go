package aggregation

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r2flows/churn-agent/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func assessment(posID string, score float64, tier models.RiskTier) models.RiskAssessment {
	return models.RiskAssessment{
		PosID:      posID,
		Score:      score,
		Confidence: 0.70,
		Tier:       tier,
	}
}

func TestAggregator_AggregateByOwner_Grouping(t *testing.T) {
	aggregator := NewAggregator(testLogger())

	assessments := []models.RiskAssessment{
		assessment("101", 0.95, models.RiskTierUrgent),
		assessment("102", 0.55, models.RiskTierLow),
		assessment("103", 0.82, models.RiskTierUrgent),
		assessment("104", 0.65, models.RiskTierModerate),
		assessment("105", 0.30, models.RiskTierLow), // no owner mapping
	}

	owners := models.OwnerMap{
		"101": {ClientID: "c-101", HSCompanyID: "hs-alpha", OwnerID: "owner-a"},
		"102": {ClientID: "c-102", HSCompanyID: "hs-alpha", OwnerID: "owner-a"},
		"103": {ClientID: "c-103", HSCompanyID: "hs-alpha", OwnerID: "owner-a"},
		"104": {ClientID: "c-104", HSCompanyID: "hs-beta", OwnerID: "owner-b"},
		// "105" intentionally unmapped
	}

	summaries := aggregator.AggregateByOwner(context.Background(), assessments, owners)
	require.Len(t, summaries, 3)

	total := 0
	byOwner := map[string]models.OwnerSummary{}
	for _, summary := range summaries {
		total += summary.PosCount
		byOwner[summary.OwnerID] = summary
	}
	assert.Equal(t, len(assessments), total)

	ownerA, ok := byOwner["owner-a"]
	require.True(t, ok)
	assert.Equal(t, "hs-alpha", ownerA.OwnerCompany)
	assert.Equal(t, 3, ownerA.PosCount)
	assert.Equal(t, 2, ownerA.CountByTier[models.RiskTierUrgent])
	assert.Equal(t, 0, ownerA.CountByTier[models.RiskTierModerate])
	assert.Equal(t, 1, ownerA.CountByTier[models.RiskTierLow])
	assert.InDelta(t, (0.95+0.55+0.82)/3, ownerA.AverageScore, 1e-12)
	assert.True(t, ownerA.HasCritical)

	unassigned, ok := byOwner[models.UnassignedOwner]
	require.True(t, ok)
	assert.Equal(t, models.UnassignedOwner, unassigned.OwnerCompany)
	assert.Equal(t, 1, unassigned.PosCount)
	assert.False(t, unassigned.HasCritical)
}

func TestAggregator_AggregateByOwner_EmptyOwnerIDIsUnassigned(t *testing.T) {
	aggregator := NewAggregator(testLogger())

	assessments := []models.RiskAssessment{
		assessment("201", 0.30, models.RiskTierLow),
	}
	owners := models.OwnerMap{
		"201": {ClientID: "c-201", HSCompanyID: "hs-gamma", OwnerID: ""},
	}

	summaries := aggregator.AggregateByOwner(context.Background(), assessments, owners)
	require.Len(t, summaries, 1)
	assert.Equal(t, models.UnassignedOwner, summaries[0].OwnerID)
	assert.Equal(t, models.UnassignedOwner, summaries[0].OwnerCompany)
}

func TestAggregator_AggregateByOwner_CriticalOrdering(t *testing.T) {
	aggregator := NewAggregator(testLogger())

	assessments := []models.RiskAssessment{
		assessment("301", 0.55, models.RiskTierLow),
		assessment("302", 0.82, models.RiskTierUrgent),
		assessment("303", 0.95, models.RiskTierUrgent),
	}
	owners := models.OwnerMap{
		"301": {OwnerID: "owner-c"},
		"302": {OwnerID: "owner-c"},
		"303": {OwnerID: "owner-c"},
	}

	summaries := aggregator.AggregateByOwner(context.Background(), assessments, owners)
	require.Len(t, summaries, 1)

	assert.Equal(t, []string{"303", "302"}, summaries[0].CriticalPosIDs)
	assert.True(t, summaries[0].HasCritical)
	// No company token in the mapping falls back to the owner id
	assert.Equal(t, "owner-c", summaries[0].OwnerCompany)
}

func TestAggregator_AggregateByOwner_OwnerOrdering(t *testing.T) {
	aggregator := NewAggregator(testLogger())

	assessments := []models.RiskAssessment{
		// owner-high: no criticals, very high average
		assessment("401", 0.75, models.RiskTierModerate),
		// owner-crit-low: critical but low average
		assessment("402", 0.85, models.RiskTierUrgent),
		assessment("403", 0.30, models.RiskTierLow),
		// owner-crit-high: critical, higher average
		assessment("404", 0.95, models.RiskTierUrgent),
		// tie pair: identical averages, no criticals
		assessment("405", 0.50, models.RiskTierLow),
		assessment("406", 0.50, models.RiskTierLow),
	}
	owners := models.OwnerMap{
		"401": {OwnerID: "owner-high"},
		"402": {OwnerID: "owner-crit-low"},
		"403": {OwnerID: "owner-crit-low"},
		"404": {OwnerID: "owner-crit-high"},
		"405": {OwnerID: "owner-tie-b"},
		"406": {OwnerID: "owner-tie-a"},
	}

	summaries := aggregator.AggregateByOwner(context.Background(), assessments, owners)
	require.Len(t, summaries, 5)

	ids := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		ids = append(ids, summary.OwnerID)
	}

	// Critical owners first (by average), then the rest by average, ties by id
	assert.Equal(t, []string{"owner-crit-high", "owner-crit-low", "owner-high", "owner-tie-a", "owner-tie-b"}, ids)
}

func TestAggregator_AggregateByOwner_Empty(t *testing.T) {
	aggregator := NewAggregator(testLogger())

	summaries := aggregator.AggregateByOwner(context.Background(), nil, nil)
	assert.Empty(t, summaries)
}
