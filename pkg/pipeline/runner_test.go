package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r2flows/churn-agent/pkg/aggregation"
	"github.com/r2flows/churn-agent/pkg/extractor"
	"github.com/r2flows/churn-agent/pkg/models"
	"github.com/r2flows/churn-agent/pkg/notify"
	"github.com/r2flows/churn-agent/pkg/reports"
	"github.com/r2flows/churn-agent/pkg/scoring"
	"github.com/r2flows/churn-agent/pkg/signals"
)

type fakeRunRepo struct {
	created  *models.ScoringRun
	finished *models.ScoringRun
}

func (f *fakeRunRepo) Create(_ context.Context, r *models.ScoringRun) (*models.ScoringRun, error) {
	if r.ID == "" {
		r.ID = "run-fixture"
	}
	f.created = r
	return r, nil
}

func (f *fakeRunRepo) Finish(_ context.Context, r *models.ScoringRun) error {
	finished := *r
	f.finished = &finished
	return nil
}

func (f *fakeRunRepo) Get(context.Context, string) (*models.ScoringRun, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRunRepo) List(context.Context, int, int) ([]*models.ScoringRun, int, error) {
	return nil, 0, errors.New("not implemented")
}

func (f *fakeRunRepo) LatestCompleted(context.Context) (*models.ScoringRun, error) {
	return nil, errors.New("not implemented")
}

type fakeAssessmentRepo struct {
	runID string
	rows  []models.RiskAssessment
	err   error
}

func (f *fakeAssessmentRepo) InsertBatch(_ context.Context, runID string, rows []models.RiskAssessment) error {
	if f.err != nil {
		return f.err
	}
	f.runID = runID
	f.rows = rows
	return nil
}

func (f *fakeAssessmentRepo) ListByRun(context.Context, string, int, int) ([]models.RiskAssessment, int, error) {
	return nil, 0, errors.New("not implemented")
}

func (f *fakeAssessmentRepo) GetByRunAndPos(context.Context, string, string) (*models.RiskAssessment, error) {
	return nil, errors.New("not implemented")
}

type fakeSummaryRepo struct {
	runID string
	rows  []models.OwnerSummary
	err   error
}

func (f *fakeSummaryRepo) InsertBatch(_ context.Context, runID string, rows []models.OwnerSummary) error {
	if f.err != nil {
		return f.err
	}
	f.runID = runID
	f.rows = rows
	return nil
}

func (f *fakeSummaryRepo) ListByRun(context.Context, string) ([]models.OwnerSummary, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSummaryRepo) GetByRunAndOwner(context.Context, string, string) (*models.OwnerSummary, error) {
	return nil, errors.New("not implemented")
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// fixtureConfig writes a full source set: POS 101 with every source, POS 102
// known only to the zombie source.
func fixtureConfig(t *testing.T) extractor.Config {
	t.Helper()
	dir := t.TempDir()

	return extractor.Config{
		TrialPath: writeFixture(t, dir, "trial_data.json",
			`[{"pos_id": "101", "platform_use": "low", "time_saved": "minimum", "average_daily_savings": "3.50"}]`),
		OrdersPath: writeFixture(t, dir, "orders_delivered.json",
			`[{"pos_id": "101", "orders_delivered (4 weeks)": 12, "percentage_delivered (4 weeks)": 80, "percentage_delivered (2 weeks)": 70, "malicious_use_risk_4_weeks": "low"}]`),
		TrendPath: writeFixture(t, dir, "purchase_trend.json",
			`[{"pos_id": "101", "trend_classification": "stable"}]`),
		ZombiesPath: writeFixture(t, dir, "zombies.json",
			`[{"pos_id": "102", "days_since_first_purchase": 45}]`),
		PosOwnerPath: writeFixture(t, dir, "pos_owner.csv",
			"id,company_owner_id\n101,owner-a\n"),
	}
}

func newTestRunner(t *testing.T, cfg extractor.Config, runs *fakeRunRepo, assessments *fakeAssessmentRepo, owners *fakeSummaryRepo, reportDir string) *Runner {
	t.Helper()
	log := testLogger()

	return NewRunner(RunnerConfig{
		Loader:      extractor.NewLoader(cfg, log),
		Merger:      signals.NewMerger(log),
		Portfolio:   scoring.NewPortfolio(log),
		Aggregator:  aggregation.NewAggregator(log),
		Runs:        runs,
		Assessments: assessments,
		Owners:      owners,
		Reports:     reports.NewGenerator(log),
		Notifier:    notify.NewNotifier(nil, log),
		ReportDir:   reportDir,
	}, log)
}

func TestRunner_Run(t *testing.T) {
	runs := &fakeRunRepo{}
	assessments := &fakeAssessmentRepo{}
	owners := &fakeSummaryRepo{}
	reportDir := t.TempDir()

	runner := newTestRunner(t, fixtureConfig(t), runs, assessments, owners, reportDir)

	scoringRun, err := runner.Run(context.Background(), models.RunTriggerSchedule)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, scoringRun.Status)
	assert.Equal(t, models.RunTriggerSchedule, scoringRun.TriggeredBy)
	assert.Equal(t, 2, scoringRun.PosCount)
	assert.Equal(t, 2, scoringRun.OwnerCount)
	assert.Equal(t, 1, scoringRun.UrgentCount)
	assert.Equal(t, 1, scoringRun.ModerateCount)
	assert.Equal(t, 0, scoringRun.LowCount)
	assert.Empty(t, scoringRun.SourceWarnings)
	require.NotNil(t, scoringRun.CompletedAt)

	require.NotNil(t, runs.finished)
	assert.Equal(t, models.RunStatusCompleted, runs.finished.Status)

	assert.Equal(t, scoringRun.ID, assessments.runID)
	require.Len(t, assessments.rows, 2)
	// Portfolio order: 101 scores 0.80 (three triggered rules), 102 scores
	// 0.70 (zombie only).
	assert.Equal(t, "101", assessments.rows[0].PosID)
	assert.Equal(t, models.RiskTierUrgent, assessments.rows[0].Tier)
	assert.Equal(t, "102", assessments.rows[1].PosID)
	assert.Equal(t, models.RiskTierModerate, assessments.rows[1].Tier)

	assert.Equal(t, scoringRun.ID, owners.runID)
	require.Len(t, owners.rows, 2)
	assert.Equal(t, "owner-a", owners.rows[0].OwnerID)
	assert.True(t, owners.rows[0].HasCritical)
	assert.Equal(t, models.UnassignedOwner, owners.rows[1].OwnerID)

	_, err = os.Stat(filepath.Join(reportDir, reports.MarkdownReportName))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(reportDir, reports.OwnerMarkdownReportName))
	assert.NoError(t, err)
}

func TestRunner_Run_EmptyUniverse(t *testing.T) {
	dir := t.TempDir()
	cfg := extractor.Config{
		TrialPath:    filepath.Join(dir, "missing.json"),
		OrdersPath:   filepath.Join(dir, "missing.json"),
		TrendPath:    filepath.Join(dir, "missing.json"),
		ZombiesPath:  filepath.Join(dir, "missing.json"),
		PosOwnerPath: filepath.Join(dir, "missing.csv"),
	}

	runs := &fakeRunRepo{}
	assessments := &fakeAssessmentRepo{}
	owners := &fakeSummaryRepo{}

	runner := newTestRunner(t, cfg, runs, assessments, owners, "")

	scoringRun, err := runner.Run(context.Background(), models.RunTriggerAPI)
	require.ErrorIs(t, err, signals.ErrEmptyUniverse)

	assert.Equal(t, models.RunStatusFailed, scoringRun.Status)
	require.NotNil(t, scoringRun.Error)
	assert.Contains(t, *scoringRun.Error, "no POS identifiable")
	assert.Len(t, scoringRun.SourceWarnings, 5)

	require.NotNil(t, runs.finished)
	assert.Equal(t, models.RunStatusFailed, runs.finished.Status)
	assert.Empty(t, assessments.rows)
	assert.Empty(t, owners.rows)
}

func TestRunner_Run_PersistFailure(t *testing.T) {
	runs := &fakeRunRepo{}
	assessments := &fakeAssessmentRepo{err: errors.New("connection refused")}
	owners := &fakeSummaryRepo{}

	runner := newTestRunner(t, fixtureConfig(t), runs, assessments, owners, "")

	scoringRun, err := runner.Run(context.Background(), models.RunTriggerSchedule)
	require.Error(t, err)

	assert.Equal(t, models.RunStatusFailed, scoringRun.Status)
	require.NotNil(t, scoringRun.Error)
	assert.Contains(t, *scoringRun.Error, "connection refused")
	assert.Empty(t, owners.rows)
}
