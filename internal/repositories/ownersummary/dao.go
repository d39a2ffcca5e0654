package ownersummary

import (
	"database/sql"
	"time"

	"github.com/r2flows/churn-agent/pkg/database"
	"github.com/r2flows/churn-agent/pkg/models"
)

const (
	summariesTable = "owner_summaries"
)

// SummaryRow represents the database row for an owner summary
type SummaryRow struct {
	RunID          sql.NullString                          `db:"run_id"`
	OwnerID        sql.NullString                          `db:"owner_id"`
	OwnerCompany   sql.NullString                          `db:"owner_company"`
	PosCount       sql.NullInt64                           `db:"pos_count"`
	CountByTier    database.JSONB[map[models.RiskTier]int] `db:"count_by_tier"`
	AverageScore   sql.NullFloat64                         `db:"average_score"`
	CriticalPosIDs database.JSONB[[]string]                `db:"critical_pos_ids"`
	HasCritical    sql.NullBool                            `db:"has_critical"`
	CreatedAt      sql.NullTime                            `db:"created_at"`
}

var summaryStruct = database.NewStruct(new(SummaryRow))

// FromSummary converts a domain model to a database row. The critical list
// always persists as a JSON array, never null.
func FromSummary(runID string, s models.OwnerSummary, createdAt time.Time) *SummaryRow {
	criticals := s.CriticalPosIDs
	if criticals == nil {
		criticals = []string{}
	}
	countByTier := s.CountByTier
	if countByTier == nil {
		countByTier = map[models.RiskTier]int{}
	}

	return &SummaryRow{
		RunID:          sql.NullString{String: runID, Valid: runID != ""},
		OwnerID:        sql.NullString{String: s.OwnerID, Valid: s.OwnerID != ""},
		OwnerCompany:   sql.NullString{String: s.OwnerCompany, Valid: s.OwnerCompany != ""},
		PosCount:       sql.NullInt64{Int64: int64(s.PosCount), Valid: true},
		CountByTier:    database.JSONB[map[models.RiskTier]int]{Data: countByTier},
		AverageScore:   sql.NullFloat64{Float64: s.AverageScore, Valid: true},
		CriticalPosIDs: database.JSONB[[]string]{Data: criticals},
		HasCritical:    sql.NullBool{Bool: s.HasCritical, Valid: true},
		CreatedAt:      sql.NullTime{Time: createdAt, Valid: !createdAt.IsZero()},
	}
}

// ToSummary converts a database row to a domain model
func ToSummary(row *SummaryRow) models.OwnerSummary {
	return models.OwnerSummary{
		OwnerID:        row.OwnerID.String,
		OwnerCompany:   row.OwnerCompany.String,
		PosCount:       int(row.PosCount.Int64),
		CountByTier:    row.CountByTier.Data,
		AverageScore:   row.AverageScore.Float64,
		CriticalPosIDs: row.CriticalPosIDs.Data,
		HasCritical:    row.HasCritical.Bool,
	}
}

// ToSummaries converts a slice of database rows to domain models
func ToSummaries(rows []SummaryRow) []models.OwnerSummary {
	summaries := make([]models.OwnerSummary, len(rows))
	for i, row := range rows {
		summaries[i] = ToSummary(&row)
	}
	return summaries
}

// Now returns the current time in UTC
func Now() time.Time {
	return time.Now().UTC()
}
