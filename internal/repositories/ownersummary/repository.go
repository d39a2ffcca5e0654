package ownersummary

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

// SummaryRepository defines the interface for owner summary data access
type SummaryRepository interface {
	InsertBatch(ctx context.Context, runID string, summaries []models.OwnerSummary) error
	ListByRun(ctx context.Context, runID string) ([]models.OwnerSummary, error)
	GetByRunAndOwner(ctx context.Context, runID, ownerID string) (*models.OwnerSummary, error)
}

// Repository handles owner summary persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new owner summary repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertBatch writes all owner summaries of one run in a single transaction.
// Rows upsert on (run_id, owner_id) so a retried persist stays idempotent.
func (r *Repository) InsertBatch(ctx context.Context, runID string, summaries []models.OwnerSummary) error {
	ctx, span := tracing.StartSpan(ctx, "ownersummary.Repository.InsertBatch")
	defer span.End()

	if len(summaries) == 0 {
		return nil
	}

	now := Now()
	rows := make([]any, len(summaries))
	for i, s := range summaries {
		rows[i] = FromSummary(runID, s, now)
	}

	ib := summaryStruct.InsertInto(summariesTable, rows...)
	ub := ib.OnConflict("run_id", "owner_id")
	ub.Set(
		ub.Assign("owner_company", database.Excluded("owner_company")),
		ub.Assign("pos_count", database.Excluded("pos_count")),
		ub.Assign("count_by_tier", database.Excluded("count_by_tier")),
		ub.Assign("average_score", database.Excluded("average_score")),
		ub.Assign("critical_pos_ids", database.Excluded("critical_pos_ids")),
		ub.Assign("has_critical", database.Excluded("has_critical")),
	)

	query, args := ib.Build()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": runID,
		"count":  len(summaries),
	}).Debug("Inserting owner summaries")

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", runID).Error("Failed to insert owner summaries")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert owner summaries")
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": runID,
		"count":  len(summaries),
	}).Info("Inserted owner summaries")
	return nil
}

// ListByRun retrieves one run's owner summaries in priority order: owners
// with critical POS first, then by descending average score, then owner id.
func (r *Repository) ListByRun(ctx context.Context, runID string) ([]models.OwnerSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "ownersummary.Repository.ListByRun")
	defer span.End()

	sb := summaryStruct.SelectFrom(summariesTable)
	sb.Where(sb.Equal("run_id", runID))
	sb.OrderBy("has_critical DESC", "average_score DESC", "owner_id ASC")

	query, args := sb.Build()
	var rows []SummaryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list owner summaries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list owner summaries")
	}

	return ToSummaries(rows), nil
}

// GetByRunAndOwner retrieves one owner's summary from one run
func (r *Repository) GetByRunAndOwner(ctx context.Context, runID, ownerID string) (*models.OwnerSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "ownersummary.Repository.GetByRunAndOwner")
	defer span.End()

	sb := summaryStruct.SelectFrom(summariesTable)
	sb.Where(
		sb.Equal("run_id", runID),
		sb.Equal("owner_id", ownerID),
	)

	query, args := sb.Build()
	var row SummaryRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("owner summary %s not found", ownerID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get owner summary")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get owner summary")
	}

	summary := ToSummary(&row)
	return &summary, nil
}
