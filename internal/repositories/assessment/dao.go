package assessment

import (
	"database/sql"
	"time"

	"github.com/r2flows/churn-agent/pkg/database"
	"github.com/r2flows/churn-agent/pkg/models"
)

const (
	assessmentsTable = "risk_assessments"
)

// AssessmentRow represents the database row for a risk assessment
type AssessmentRow struct {
	RunID                 sql.NullString           `db:"run_id"`
	PosID                 sql.NullString           `db:"pos_id"`
	Score                 sql.NullFloat64          `db:"score"`
	Confidence            sql.NullFloat64          `db:"confidence"`
	Tier                  sql.NullString           `db:"tier"`
	TriggeredFlags        database.JSONB[[]string] `db:"triggered_flags"`
	Rationale             sql.NullString           `db:"rationale"`
	RecommendedAction     sql.NullString           `db:"recommended_action"`
	OrdersDelivered4w     sql.NullString           `db:"orders_delivered_4w"`
	PercentageDelivered4w sql.NullString           `db:"percentage_delivered_4w"`
	PercentageDelivered2w sql.NullString           `db:"percentage_delivered_2w"`
	CreatedAt             sql.NullTime             `db:"created_at"`
}

var assessmentStruct = database.NewStruct(new(AssessmentRow))

// FromAssessment converts a domain model to a database row. Flags always
// persist as a JSON array, never null.
func FromAssessment(runID string, a models.RiskAssessment, createdAt time.Time) *AssessmentRow {
	flags := a.TriggeredFlags
	if flags == nil {
		flags = []string{}
	}

	return &AssessmentRow{
		RunID:                 sql.NullString{String: runID, Valid: runID != ""},
		PosID:                 sql.NullString{String: a.PosID, Valid: a.PosID != ""},
		Score:                 sql.NullFloat64{Float64: a.Score, Valid: true},
		Confidence:            sql.NullFloat64{Float64: a.Confidence, Valid: true},
		Tier:                  sql.NullString{String: string(a.Tier), Valid: a.Tier != ""},
		TriggeredFlags:        database.JSONB[[]string]{Data: flags},
		Rationale:             sql.NullString{String: a.Rationale, Valid: a.Rationale != ""},
		RecommendedAction:     sql.NullString{String: a.RecommendedAction, Valid: a.RecommendedAction != ""},
		OrdersDelivered4w:     sql.NullString{String: a.OrdersDelivered4w, Valid: a.OrdersDelivered4w != ""},
		PercentageDelivered4w: sql.NullString{String: a.PercentageDelivered4w, Valid: a.PercentageDelivered4w != ""},
		PercentageDelivered2w: sql.NullString{String: a.PercentageDelivered2w, Valid: a.PercentageDelivered2w != ""},
		CreatedAt:             sql.NullTime{Time: createdAt, Valid: !createdAt.IsZero()},
	}
}

// ToAssessment converts a database row to a domain model
func ToAssessment(row *AssessmentRow) models.RiskAssessment {
	return models.RiskAssessment{
		PosID:                 row.PosID.String,
		Score:                 row.Score.Float64,
		Confidence:            row.Confidence.Float64,
		Tier:                  models.RiskTier(row.Tier.String),
		TriggeredFlags:        row.TriggeredFlags.Data,
		Rationale:             row.Rationale.String,
		RecommendedAction:     row.RecommendedAction.String,
		OrdersDelivered4w:     row.OrdersDelivered4w.String,
		PercentageDelivered4w: row.PercentageDelivered4w.String,
		PercentageDelivered2w: row.PercentageDelivered2w.String,
	}
}

// ToAssessments converts a slice of database rows to domain models
func ToAssessments(rows []AssessmentRow) []models.RiskAssessment {
	assessments := make([]models.RiskAssessment, len(rows))
	for i, row := range rows {
		assessments[i] = ToAssessment(&row)
	}
	return assessments
}

// Now returns the current time in UTC
func Now() time.Time {
	return time.Now().UTC()
}
