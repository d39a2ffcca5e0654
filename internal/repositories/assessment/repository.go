package assessment

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/r2flows/churn-agent/pkg/database"
	"github.com/r2flows/churn-agent/pkg/models"
	"github.com/r2flows/churn-agent/pkg/tracing"
)

// AssessmentRepository defines the interface for risk assessment data access
type AssessmentRepository interface {
	InsertBatch(ctx context.Context, runID string, assessments []models.RiskAssessment) error
	ListByRun(ctx context.Context, runID string, page, pageSize int) ([]models.RiskAssessment, int, error)
	GetByRunAndPos(ctx context.Context, runID, posID string) (*models.RiskAssessment, error)
}

// Repository handles risk assessment persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new risk assessment repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertBatch writes the full portfolio of one run in a single transaction.
// Rows upsert on (run_id, pos_id) so a retried persist stays idempotent.
func (r *Repository) InsertBatch(ctx context.Context, runID string, assessments []models.RiskAssessment) error {
	ctx, span := tracing.StartSpan(ctx, "assessment.Repository.InsertBatch")
	defer span.End()

	if len(assessments) == 0 {
		return nil
	}

	now := Now()
	rows := make([]any, len(assessments))
	for i, a := range assessments {
		rows[i] = FromAssessment(runID, a, now)
	}

	ib := assessmentStruct.InsertInto(assessmentsTable, rows...)
	ub := ib.OnConflict("run_id", "pos_id")
	ub.Set(
		ub.Assign("score", database.Excluded("score")),
		ub.Assign("confidence", database.Excluded("confidence")),
		ub.Assign("tier", database.Excluded("tier")),
		ub.Assign("triggered_flags", database.Excluded("triggered_flags")),
		ub.Assign("rationale", database.Excluded("rationale")),
		ub.Assign("recommended_action", database.Excluded("recommended_action")),
		ub.Assign("orders_delivered_4w", database.Excluded("orders_delivered_4w")),
		ub.Assign("percentage_delivered_4w", database.Excluded("percentage_delivered_4w")),
		ub.Assign("percentage_delivered_2w", database.Excluded("percentage_delivered_2w")),
	)

	query, args := ib.Build()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": runID,
		"count":  len(assessments),
	}).Debug("Inserting risk assessments")

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to insert risk assessments")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert risk assessments")
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": runID,
		"count":  len(assessments),
	}).Info("Inserted risk assessments")
	return nil
}

// ListByRun retrieves one run's assessments in portfolio order: score
// descending, confidence descending, POS id ascending.
func (r *Repository) ListByRun(ctx context.Context, runID string, page, pageSize int) ([]models.RiskAssessment, int, error) {
	ctx, span := tracing.StartSpan(ctx, "assessment.Repository.ListByRun")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 1000 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	countSb := database.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From(assessmentsTable)
	countSb.Where(countSb.Equal("run_id", runID))

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count risk assessments")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count risk assessments")
	}

	sb := assessmentStruct.SelectFrom(assessmentsTable)
	sb.Where(sb.Equal("run_id", runID))
	sb.OrderBy("score DESC", "confidence DESC", "pos_id ASC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var rows []AssessmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list risk assessments")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list risk assessments")
	}

	return ToAssessments(rows), totalCount, nil
}

// GetByRunAndPos retrieves one POS's assessment from one run
func (r *Repository) GetByRunAndPos(ctx context.Context, runID, posID string) (*models.RiskAssessment, error) {
	ctx, span := tracing.StartSpan(ctx, "assessment.Repository.GetByRunAndPos")
	defer span.End()

	sb := assessmentStruct.SelectFrom(assessmentsTable)
	sb.Where(
		sb.Equal("run_id", runID),
		sb.Equal("pos_id", posID),
	)

	query, args := sb.Build()
	var row AssessmentRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("assessment for POS %s not found", posID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get risk assessment")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get risk assessment")
	}

	assessment := ToAssessment(&row)
	return &assessment, nil
}
