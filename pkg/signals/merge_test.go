package signals

import (
	"context"
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

func decPtr(t *testing.T, value string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return &d
}

func TestMerger_Merge_Union(t *testing.T) {
	merger := NewMerger(testLogger())

	snapshot := models.SignalSnapshot{
		Trials: map[string]models.TrialRecord{
			"101": {PosID: "101", PlatformUse: models.PlatformUseLow, TimeSaved: models.TimeSavedMinimum, AverageDailySavings: decPtr(t, "3.50")},
		},
		Deliveries: map[string]models.DeliveryRecord{
			"102": {PosID: "102", PercentageDelivered4w: decPtr(t, "92.31"), MaliciousUseRisk: models.MaliciousUseRiskLow},
		},
		Trends: map[string]models.TrendRecord{
			"103": {PosID: "103", TrendClassification: models.TrendRisky},
		},
		Zombies: map[string]models.ZombieRecord{
			"104": {PosID: "104", PlatformUse: models.PlatformUseLow, TimeSaved: models.TimeSavedMinimum},
		},
	}

	merged, err := merger.Merge(context.Background(), snapshot)
	require.NoError(t, err)
	require.Len(t, merged, 4)

	// Ascending POS id order
	assert.Equal(t, "101", merged[0].PosID)
	assert.Equal(t, "102", merged[1].PosID)
	assert.Equal(t, "103", merged[2].PosID)
	assert.Equal(t, "104", merged[3].PosID)

	// Fields each source does not know stay at defaults
	assert.Equal(t, models.TrendUnknown, merged[0].TrendClassification)
	assert.False(t, merged[0].IsZombie)
	assert.Equal(t, models.PlatformUseUnknown, merged[1].PlatformUse)
	assert.Equal(t, models.MaliciousUseRiskUnknown, merged[2].MaliciousUseRisk)
	assert.True(t, merged[3].IsZombie)
}

func TestMerger_Merge_TrialFieldsWinOverZombieDuplicates(t *testing.T) {
	merger := NewMerger(testLogger())

	snapshot := models.SignalSnapshot{
		Trials: map[string]models.TrialRecord{
			"201": {PosID: "201", PlatformUse: models.PlatformUseMedium, TimeSaved: models.TimeSavedHigh},
		},
		Zombies: map[string]models.ZombieRecord{
			"201": {PosID: "201", PlatformUse: models.PlatformUseLow, TimeSaved: models.TimeSavedMinimum},
			"202": {PosID: "202", PlatformUse: models.PlatformUseLow, TimeSaved: models.TimeSavedMinimum},
		},
	}

	merged, err := merger.Merge(context.Background(), snapshot)
	require.NoError(t, err)
	require.Len(t, merged, 2)

	// 201 keeps the trial values, 202 falls back to the zombie duplicates
	assert.True(t, merged[0].IsZombie)
	assert.Equal(t, models.PlatformUseMedium, merged[0].PlatformUse)
	assert.Equal(t, models.TimeSavedHigh, merged[0].TimeSaved)
	assert.True(t, merged[1].IsZombie)
	assert.Equal(t, models.PlatformUseLow, merged[1].PlatformUse)
	assert.Equal(t, models.TimeSavedMinimum, merged[1].TimeSaved)
}

func TestMerger_Merge_MissingSourceDegrades(t *testing.T) {
	merger := NewMerger(testLogger())

	// Trend source entirely absent: the schema does not change, the trend
	// field defaults to unknown for every POS.
	snapshot := models.SignalSnapshot{
		Trials: map[string]models.TrialRecord{
			"301": {PosID: "301", PlatformUse: models.PlatformUseLow},
		},
		SourceWarnings: []string{"purchase_trend source unavailable"},
	}

	merged, err := merger.Merge(context.Background(), snapshot)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, models.TrendUnknown, merged[0].TrendClassification)
}

func TestMerger_Merge_EmptyUniverse(t *testing.T) {
	merger := NewMerger(testLogger())

	_, err := merger.Merge(context.Background(), models.SignalSnapshot{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyUniverse)
}
