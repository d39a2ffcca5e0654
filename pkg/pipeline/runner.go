// Package pipeline executes one scoring pass end to end: load, merge, score,
// aggregate, persist, report, notify. Stages run in order; a stage either
// degrades (sources, reports, alerts) or fails the run (merge, persistence).
package pipeline

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/r2flows/churn-agent/internal/repositories/assessment"
	"github.com/r2flows/churn-agent/internal/repositories/ownersummary"
	"github.com/r2flows/churn-agent/internal/repositories/run"
	"github.com/r2flows/churn-agent/pkg/aggregation"
	pkgcontext "github.com/r2flows/churn-agent/pkg/context"
	"github.com/r2flows/churn-agent/pkg/extractor"
	"github.com/r2flows/churn-agent/pkg/metrics"
	"github.com/r2flows/churn-agent/pkg/models"
	"github.com/r2flows/churn-agent/pkg/notify"
	"github.com/r2flows/churn-agent/pkg/reports"
	"github.com/r2flows/churn-agent/pkg/scoring"
	"github.com/r2flows/churn-agent/pkg/signals"
	"github.com/r2flows/churn-agent/pkg/tracing"
)

// RunnerConfig wires the stages of a scoring pass
type RunnerConfig struct {
	Loader      *extractor.Loader
	Merger      *signals.Merger
	Portfolio   *scoring.Portfolio
	Aggregator  *aggregation.Aggregator
	Runs        run.RunRepository
	Assessments assessment.AssessmentRepository
	Owners      ownersummary.SummaryRepository
	Reports     *reports.Generator
	Notifier    *notify.Notifier

	// ReportDir is where report files land. Empty disables report writing.
	ReportDir string
}

// Runner executes scoring passes. One instance serves all passes; per-pass
// state lives on the stack and in the run row.
type Runner struct {
	cfg RunnerConfig
	log ectologger.Logger
}

// NewRunner creates a pass runner
func NewRunner(cfg RunnerConfig, log ectologger.Logger) *Runner {
	return &Runner{cfg: cfg, log: log}
}

// Run executes one scoring pass and returns its run record. The record is
// also returned on failure, carrying the failed status and error text.
func (r *Runner) Run(ctx context.Context, trigger string) (*models.ScoringRun, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Runner.Run")
	defer span.End()

	start := time.Now()

	scoringRun, err := r.cfg.Runs.Create(ctx, &models.ScoringRun{
		Status:      models.RunStatusRunning,
		TriggeredBy: trigger,
		StartedAt:   start.UTC(),
	})
	if err != nil {
		return nil, err
	}

	ctx = pkgcontext.SetRunID(ctx, scoringRun.ID)
	log := r.log.WithContext(ctx).WithFields(map[string]any{
		"run_id":  scoringRun.ID,
		"trigger": trigger,
	})
	log.Info("Scoring pass started")

	snapshot := r.cfg.Loader.LoadSnapshot(ctx)
	scoringRun.SourceWarnings = snapshot.SourceWarnings

	merged, err := r.cfg.Merger.Merge(ctx, snapshot)
	if err != nil {
		return r.fail(ctx, scoringRun, start, err)
	}

	assessments := r.cfg.Portfolio.ScoreAll(ctx, merged)
	summaries := r.cfg.Aggregator.AggregateByOwner(ctx, assessments, snapshot.Owners)

	if err := r.cfg.Assessments.InsertBatch(ctx, scoringRun.ID, assessments); err != nil {
		return r.fail(ctx, scoringRun, start, err)
	}
	if err := r.cfg.Owners.InsertBatch(ctx, scoringRun.ID, summaries); err != nil {
		return r.fail(ctx, scoringRun, start, err)
	}

	r.writeReports(ctx, assessments, merged, summaries)

	if r.cfg.Notifier != nil {
		r.cfg.Notifier.Dispatch(ctx, scoringRun.ID, assessments, summaries, snapshot.Owners)
	}

	completedAt := time.Now().UTC()
	scoringRun.Status = models.RunStatusCompleted
	scoringRun.CompletedAt = &completedAt
	applyCounts(scoringRun, assessments, summaries)

	if err := r.cfg.Runs.Finish(ctx, scoringRun); err != nil {
		return scoringRun, err
	}

	r.recordMetrics(trigger, start, assessments, summaries)

	log.WithFields(map[string]any{
		"pos_count":       scoringRun.PosCount,
		"owner_count":     scoringRun.OwnerCount,
		"urgent_count":    scoringRun.UrgentCount,
		"moderate_count":  scoringRun.ModerateCount,
		"low_count":       scoringRun.LowCount,
		"source_warnings": len(scoringRun.SourceWarnings),
		"duration":        time.Since(start).String(),
	}).Info("Scoring pass completed")

	return scoringRun, nil
}

// fail records a terminal failed state for the run and surfaces the cause
func (r *Runner) fail(ctx context.Context, scoringRun *models.ScoringRun, start time.Time, runErr error) (*models.ScoringRun, error) {
	errText := runErr.Error()
	completedAt := time.Now().UTC()
	scoringRun.Status = models.RunStatusFailed
	scoringRun.Error = &errText
	scoringRun.CompletedAt = &completedAt

	if err := r.cfg.Runs.Finish(ctx, scoringRun); err != nil {
		r.log.WithContext(ctx).WithError(err).Error("Failed to record failed run")
	}

	metrics.RecordRun(scoringRun.TriggeredBy, string(models.RunStatusFailed), time.Since(start).Seconds())
	r.log.WithContext(ctx).WithError(runErr).WithField("run_id", scoringRun.ID).Error("Scoring pass failed")
	return scoringRun, runErr
}

// writeReports renders the report files. Reports are artifacts of the pass,
// not part of its contract; failures degrade to a warning.
func (r *Runner) writeReports(ctx context.Context, assessments []models.RiskAssessment, merged []models.PosSignal, summaries []models.OwnerSummary) {
	if r.cfg.Reports == nil || r.cfg.ReportDir == "" {
		return
	}

	signalIndex := make(map[string]models.PosSignal, len(merged))
	for _, signal := range merged {
		signalIndex[signal.PosID] = signal
	}

	if _, err := r.cfg.Reports.WriteAll(ctx, r.cfg.ReportDir, assessments, signalIndex, summaries); err != nil {
		r.log.WithContext(ctx).WithError(err).Warn("Report generation failed; pass continues")
	}
}

func (r *Runner) recordMetrics(trigger string, start time.Time, assessments []models.RiskAssessment, summaries []models.OwnerSummary) {
	metrics.RecordRun(trigger, string(models.RunStatusCompleted), time.Since(start).Seconds())
	metrics.PortfolioSize.Set(float64(len(assessments)))

	for _, a := range assessments {
		metrics.RecordAssessment(string(a.Tier))
	}

	critical := 0
	for _, s := range summaries {
		if s.HasCritical {
			critical++
		}
	}
	metrics.OwnersWithCritical.Set(float64(critical))
}

func applyCounts(scoringRun *models.ScoringRun, assessments []models.RiskAssessment, summaries []models.OwnerSummary) {
	scoringRun.PosCount = len(assessments)
	scoringRun.OwnerCount = len(summaries)
	scoringRun.UrgentCount = 0
	scoringRun.ModerateCount = 0
	scoringRun.LowCount = 0

	for _, a := range assessments {
		switch a.Tier {
		case models.RiskTierUrgent:
			scoringRun.UrgentCount++
		case models.RiskTierModerate:
			scoringRun.ModerateCount++
		default:
			scoringRun.LowCount++
		}
	}
}
