package run

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/r2flows/churn-agent/pkg/database"
	"github.com/r2flows/churn-agent/pkg/models"
	"github.com/r2flows/churn-agent/pkg/tracing"
)

// RunRepository defines the interface for scoring run data access
type RunRepository interface {
	Create(ctx context.Context, run *models.ScoringRun) (*models.ScoringRun, error)
	Finish(ctx context.Context, run *models.ScoringRun) error
	Get(ctx context.Context, id string) (*models.ScoringRun, error)
	List(ctx context.Context, page, pageSize int) ([]*models.ScoringRun, int, error)
	LatestCompleted(ctx context.Context) (*models.ScoringRun, error)
}

// Repository handles scoring run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new scoring run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new run in the running state
func (r *Repository) Create(ctx context.Context, run *models.ScoringRun) (*models.ScoringRun, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.Create")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = Now()
	}

	row := FromRun(run)
	ib := runStruct.InsertInto(runsTable, row)
	query, args := ib.Build()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":           run.ID,
		"triggered_by": run.TriggeredBy,
	}).Debug("Creating scoring run")

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create scoring run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create scoring run")
	}

	return run, nil
}

// Finish writes a run's terminal state: status, counts, source warnings and
// completion time.
func (r *Repository) Finish(ctx context.Context, run *models.ScoringRun) error {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.Finish")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(runsTable)
	assignments := []string{
		ub.Assign("status", string(run.Status)),
		ub.Assign("pos_count", run.PosCount),
		ub.Assign("owner_count", run.OwnerCount),
		ub.Assign("urgent_count", run.UrgentCount),
		ub.Assign("moderate_count", run.ModerateCount),
		ub.Assign("low_count", run.LowCount),
		ub.Assign("source_warnings", database.JSONB[[]string]{Data: run.SourceWarnings}),
		ub.Assign("completed_at", run.CompletedAt),
	}
	if run.Error != nil {
		assignments = append(assignments, ub.Assign("error", *run.Error))
	}
	ub.Set(assignments...)
	ub.Where(ub.Equal("id", run.ID))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to finish scoring run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish scoring run")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("scoring run %s not found", run.ID))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":     run.ID,
		"status": string(run.Status),
	}).Info("Finished scoring run")
	return nil
}

// Get retrieves a run by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.ScoringRun, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.Get")
	defer span.End()

	sb := runStruct.SelectFrom(runsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row RunRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("scoring run %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get scoring run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get scoring run")
	}

	return ToRun(&row), nil
}

// List retrieves runs newest first
func (r *Repository) List(ctx context.Context, page, pageSize int) ([]*models.ScoringRun, int, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := database.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From(runsTable)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count scoring runs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count scoring runs")
	}

	sb := runStruct.SelectFrom(runsTable)
	sb.OrderBy("started_at").Desc()
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var rows []RunRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list scoring runs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list scoring runs")
	}

	return ToRuns(rows), totalCount, nil
}

// LatestCompleted retrieves the most recent completed run
func (r *Repository) LatestCompleted(ctx context.Context) (*models.ScoringRun, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.LatestCompleted")
	defer span.End()

	sb := runStruct.SelectFrom(runsTable)
	sb.Where(sb.Equal("status", string(models.RunStatusCompleted)))
	sb.OrderBy("completed_at").Desc()
	sb.Limit(1)

	query, args := sb.Build()
	var row RunRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "no completed scoring runs")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get latest completed run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get latest completed run")
	}

	return ToRun(&row), nil
}
