package scoring

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

func TestPortfolio_ScoreAll_Ordering(t *testing.T) {
	portfolio := NewPortfolio(testLogger())

	zombie := models.NewPosSignal("510")
	zombie.IsZombie = true
	zombie.PlatformUse = models.PlatformUseLow // 0.95 urgent

	quiet := models.NewPosSignal("520") // 0.30 low

	moderate := models.NewPosSignal("530")
	moderate.PlatformUse = models.PlatformUseLow
	moderate.TrendClassification = models.TrendInactive // 0.65 moderate

	assessments := portfolio.ScoreAll(context.Background(), []models.PosSignal{quiet, moderate, zombie})

	require.Len(t, assessments, 3)
	assert.Equal(t, "510", assessments[0].PosID)
	assert.Equal(t, "530", assessments[1].PosID)
	assert.Equal(t, "520", assessments[2].PosID)
}

func TestPortfolio_ScoreAll_ConfidenceBreaksScoreTies(t *testing.T) {
	portfolio := NewPortfolio(testLogger())

	// Both score 0.70: the zombie path carries confidence 0.85, the
	// three-rule path carries 0.70.
	zombie := models.NewPosSignal("620")
	zombie.IsZombie = true

	stacked := models.NewPosSignal("610")
	stacked.PlatformUse = models.PlatformUseLow
	stacked.TrendClassification = models.TrendRisky
	stacked.AverageDailySavings = dec(t, "2.00")

	assessments := portfolio.ScoreAll(context.Background(), []models.PosSignal{stacked, zombie})

	require.Len(t, assessments, 2)
	assert.Equal(t, assessments[0].Score, assessments[1].Score)
	assert.Equal(t, "620", assessments[0].PosID)
	assert.Equal(t, "610", assessments[1].PosID)
}

func TestPortfolio_ScoreAll_PosIDBreaksFullTies(t *testing.T) {
	portfolio := NewPortfolio(testLogger())

	a := models.NewPosSignal("702")
	a.IsZombie = true
	b := models.NewPosSignal("701")
	b.IsZombie = true

	assessments := portfolio.ScoreAll(context.Background(), []models.PosSignal{a, b})

	require.Len(t, assessments, 2)
	assert.Equal(t, "701", assessments[0].PosID)
	assert.Equal(t, "702", assessments[1].PosID)
}

func TestPortfolio_ScoreAll_Idempotent(t *testing.T) {
	portfolio := NewPortfolio(testLogger())

	signals := []models.PosSignal{}
	for _, id := range []string{"801", "802", "803", "804"} {
		s := models.NewPosSignal(id)
		if id == "802" {
			s.IsZombie = true
		}
		if id == "804" {
			s.PlatformUse = models.PlatformUseLow
			s.TimeSaved = models.TimeSavedMinimum
		}
		signals = append(signals, s)
	}

	first := portfolio.ScoreAll(context.Background(), signals)
	second := portfolio.ScoreAll(context.Background(), signals)

	assert.Equal(t, first, second)
}

func TestPortfolio_ScoreAll_Empty(t *testing.T) {
	portfolio := NewPortfolio(testLogger())

	assessments := portfolio.ScoreAll(context.Background(), nil)
	assert.Empty(t, assessments)
}
