package extractor

import (
	"context"
	"os"
	"path/filepath"
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

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func fixtureConfig(t *testing.T) (Config, string) {
	t.Helper()
	dir := t.TempDir()
	return Config{
		TrialPath:    filepath.Join(dir, "trial_data.json"),
		OrdersPath:   filepath.Join(dir, "orders_delivered.json"),
		TrendPath:    filepath.Join(dir, "purchase_trend.json"),
		ZombiesPath:  filepath.Join(dir, "zombies.json"),
		PosOwnerPath: filepath.Join(dir, "pos_owner.csv"),
	}, dir
}

func TestLoader_LoadSnapshot_AllSources(t *testing.T) {
	cfg, dir := fixtureConfig(t)

	writeFixture(t, dir, "trial_data.json", `[
		{"point_of_sale_id": 101, "platform use": "Low", "time saved": "Minimum", "average daily savings": 3.25, "predicted subscription value": "120.50"},
		{"point_of_sale_id": "102", "platform use": "high", "time saved": "high", "average daily savings": null}
	]`)
	writeFixture(t, dir, "orders_delivered.json", `[
		{"point_of_sale_id": 101, "orders_delivered (4 weeks)": 12, "percentage_delivered (4 weeks)": 97.5, "percentage_delivered (2 weeks)": 88, "malicious_use_risk_4_weeks": "High"}
	]`)
	writeFixture(t, dir, "purchase_trend.json", `[
		{"point_of_sale_id": 101, "trend_classification": "Inactive"},
		{"point_of_sale_id": 104, "trend_classification": "sideways"}
	]`)
	writeFixture(t, dir, "zombies.json", `[
		{"point_of_sale_id": 105, "days_since_first_purchase": 45, "platform_use": "low", "time_saved": "minimum", "predicted_subscription_value": 80}
	]`)
	writeFixture(t, dir, "pos_owner.csv", "id,client_id,hs_company_id,company_owner_id\n101,client-1,hs-1,owner-1\n102,client-2,,\n,client-x,hs-x,owner-x\n")

	loader := NewLoader(cfg, testLogger())
	snapshot := loader.LoadSnapshot(context.Background())

	require.Empty(t, snapshot.SourceWarnings)

	require.Len(t, snapshot.Trials, 2)
	trial := snapshot.Trials["101"]
	assert.Equal(t, models.PlatformUseLow, trial.PlatformUse)
	assert.Equal(t, models.TimeSavedMinimum, trial.TimeSaved)
	require.NotNil(t, trial.AverageDailySavings)
	assert.True(t, trial.AverageDailySavings.Equal(decimal.RequireFromString("3.25")))
	require.NotNil(t, trial.PredictedSubscriptionValue)
	assert.True(t, trial.PredictedSubscriptionValue.Equal(decimal.RequireFromString("120.50")))
	assert.Nil(t, snapshot.Trials["102"].AverageDailySavings)

	require.Len(t, snapshot.Deliveries, 1)
	delivery := snapshot.Deliveries["101"]
	require.NotNil(t, delivery.OrdersDelivered4w)
	assert.True(t, delivery.OrdersDelivered4w.Equal(decimal.NewFromInt(12)))
	require.NotNil(t, delivery.PercentageDelivered4w)
	assert.True(t, delivery.PercentageDelivered4w.Equal(decimal.RequireFromString("97.5")))
	require.NotNil(t, delivery.PercentageDelivered2w)
	assert.True(t, delivery.PercentageDelivered2w.Equal(decimal.NewFromInt(88)))
	assert.Equal(t, models.MaliciousUseRiskHigh, delivery.MaliciousUseRisk)

	require.Len(t, snapshot.Trends, 2)
	assert.Equal(t, models.TrendInactive, snapshot.Trends["101"].TrendClassification)
	assert.Equal(t, models.TrendUnknown, snapshot.Trends["104"].TrendClassification)

	require.Len(t, snapshot.Zombies, 1)
	zombie := snapshot.Zombies["105"]
	require.NotNil(t, zombie.DaysSinceFirstPurchase)
	assert.Equal(t, 45, *zombie.DaysSinceFirstPurchase)
	assert.Equal(t, models.PlatformUseLow, zombie.PlatformUse)
	assert.Equal(t, models.TimeSavedMinimum, zombie.TimeSaved)

	require.Len(t, snapshot.Owners, 2)
	assert.Equal(t, models.OwnerRef{ClientID: "client-1", HSCompanyID: "hs-1", OwnerID: "owner-1"}, snapshot.Owners["101"])
	assert.Equal(t, models.OwnerRef{ClientID: "client-2"}, snapshot.Owners["102"])
}

func TestLoader_LoadSnapshot_MissingSources(t *testing.T) {
	cfg, _ := fixtureConfig(t)

	loader := NewLoader(cfg, testLogger())
	snapshot := loader.LoadSnapshot(context.Background())

	assert.Empty(t, snapshot.Trials)
	assert.Empty(t, snapshot.Deliveries)
	assert.Empty(t, snapshot.Trends)
	assert.Empty(t, snapshot.Zombies)
	assert.Empty(t, snapshot.Owners)
	require.Len(t, snapshot.SourceWarnings, 5)
	assert.Contains(t, snapshot.SourceWarnings[0], SourceTrial)
	assert.Contains(t, snapshot.SourceWarnings[4], SourcePosOwner)
}

func TestLoader_LoadSnapshot_MalformedSource(t *testing.T) {
	cfg, dir := fixtureConfig(t)

	writeFixture(t, dir, "trial_data.json", `[{"point_of_sale_id": 201, "platform use": "medium"}]`)
	writeFixture(t, dir, "orders_delivered.json", `[{"point_of_sale_id": 201, "orders_delivered (4 weeks)": "junk", "malicious_use_risk_4_weeks": null}]`)
	writeFixture(t, dir, "purchase_trend.json", `{this is not json`)
	writeFixture(t, dir, "zombies.json", `[]`)
	writeFixture(t, dir, "pos_owner.csv", "id,client_id,hs_company_id,company_owner_id\n")

	loader := NewLoader(cfg, testLogger())
	snapshot := loader.LoadSnapshot(context.Background())

	require.Len(t, snapshot.SourceWarnings, 1)
	assert.Contains(t, snapshot.SourceWarnings[0], SourceTrend)
	assert.Empty(t, snapshot.Trends)

	trial := snapshot.Trials["201"]
	assert.Equal(t, models.PlatformUseMedium, trial.PlatformUse)
	assert.Equal(t, models.TimeSavedUnknown, trial.TimeSaved)
	assert.Nil(t, trial.AverageDailySavings)

	delivery := snapshot.Deliveries["201"]
	assert.Nil(t, delivery.OrdersDelivered4w)
	assert.Equal(t, models.MaliciousUseRiskUnknown, delivery.MaliciousUseRisk)
}

func TestLoader_LoadSnapshot_RowWithoutPosID(t *testing.T) {
	cfg, dir := fixtureConfig(t)

	writeFixture(t, dir, "trial_data.json", `[
		{"platform use": "low"},
		{"point_of_sale_id": 301, "platform use": "low"}
	]`)
	writeFixture(t, dir, "orders_delivered.json", `[]`)
	writeFixture(t, dir, "purchase_trend.json", `[]`)
	writeFixture(t, dir, "zombies.json", `[]`)
	writeFixture(t, dir, "pos_owner.csv", "id,client_id,hs_company_id,company_owner_id\n")

	loader := NewLoader(cfg, testLogger())
	snapshot := loader.LoadSnapshot(context.Background())

	require.Len(t, snapshot.Trials, 1)
	assert.Contains(t, snapshot.Trials, "301")
}

func TestLoader_LoadSnapshot_SnakeCaseFieldNames(t *testing.T) {
	cfg, dir := fixtureConfig(t)

	writeFixture(t, dir, "trial_data.json", `[
		{"pos_id": "401", "platform_use": "low", "time_saved": "minimum", "average_daily_savings": 4.5}
	]`)
	writeFixture(t, dir, "orders_delivered.json", `[
		{"pos_id": "401", "orders_delivered_4w": 3, "percentage_delivered_4w": 50, "percentage_delivered_2w": 40, "malicious_use_risk": "low"}
	]`)
	writeFixture(t, dir, "purchase_trend.json", `[]`)
	writeFixture(t, dir, "zombies.json", `[]`)
	writeFixture(t, dir, "pos_owner.csv", "pos_id,client_id,hs_company_id,owner_id\n401,client-4,hs-4,owner-4\n")

	loader := NewLoader(cfg, testLogger())
	snapshot := loader.LoadSnapshot(context.Background())

	require.Empty(t, snapshot.SourceWarnings)

	trial := snapshot.Trials["401"]
	assert.Equal(t, models.PlatformUseLow, trial.PlatformUse)
	require.NotNil(t, trial.AverageDailySavings)
	assert.True(t, trial.AverageDailySavings.Equal(decimal.RequireFromString("4.5")))

	delivery := snapshot.Deliveries["401"]
	assert.Equal(t, models.MaliciousUseRiskLow, delivery.MaliciousUseRisk)

	assert.Equal(t, models.OwnerRef{ClientID: "client-4", HSCompanyID: "hs-4", OwnerID: "owner-4"}, snapshot.Owners["401"])
}
