package run

import (
	"database/sql"
	"time"

	"github.com/r2flows/churn-agent/pkg/database"
	"github.com/r2flows/churn-agent/pkg/models"
)

const (
	runsTable = "scoring_runs"
)

// RunRow represents the database row for a scoring run
type RunRow struct {
	ID             sql.NullString            `db:"id"`
	Status         sql.NullString            `db:"status"`
	TriggeredBy    sql.NullString            `db:"triggered_by"`
	PosCount       sql.NullInt64             `db:"pos_count"`
	OwnerCount     sql.NullInt64             `db:"owner_count"`
	UrgentCount    sql.NullInt64             `db:"urgent_count"`
	ModerateCount  sql.NullInt64             `db:"moderate_count"`
	LowCount       sql.NullInt64             `db:"low_count"`
	SourceWarnings database.JSONB[[]string]  `db:"source_warnings"`
	Error          sql.NullString            `db:"error"`
	StartedAt      sql.NullTime              `db:"started_at"`
	CompletedAt    sql.NullTime              `db:"completed_at"`
}

var runStruct = database.NewStruct(new(RunRow))

// FromRun converts a domain model to a database row
func FromRun(run *models.ScoringRun) *RunRow {
	row := &RunRow{
		ID:             sql.NullString{String: run.ID, Valid: run.ID != ""},
		Status:         sql.NullString{String: string(run.Status), Valid: run.Status != ""},
		TriggeredBy:    sql.NullString{String: run.TriggeredBy, Valid: run.TriggeredBy != ""},
		PosCount:       sql.NullInt64{Int64: int64(run.PosCount), Valid: true},
		OwnerCount:     sql.NullInt64{Int64: int64(run.OwnerCount), Valid: true},
		UrgentCount:    sql.NullInt64{Int64: int64(run.UrgentCount), Valid: true},
		ModerateCount:  sql.NullInt64{Int64: int64(run.ModerateCount), Valid: true},
		LowCount:       sql.NullInt64{Int64: int64(run.LowCount), Valid: true},
		SourceWarnings: database.JSONB[[]string]{Data: run.SourceWarnings},
		StartedAt:      sql.NullTime{Time: run.StartedAt, Valid: !run.StartedAt.IsZero()},
	}
	if run.Error != nil {
		row.Error = sql.NullString{String: *run.Error, Valid: true}
	}
	if run.CompletedAt != nil {
		row.CompletedAt = sql.NullTime{Time: *run.CompletedAt, Valid: true}
	}
	return row
}

// ToRun converts a database row to a domain model
func ToRun(row *RunRow) *models.ScoringRun {
	run := &models.ScoringRun{
		ID:             row.ID.String,
		Status:         models.RunStatus(row.Status.String),
		TriggeredBy:    row.TriggeredBy.String,
		PosCount:       int(row.PosCount.Int64),
		OwnerCount:     int(row.OwnerCount.Int64),
		UrgentCount:    int(row.UrgentCount.Int64),
		ModerateCount:  int(row.ModerateCount.Int64),
		LowCount:       int(row.LowCount.Int64),
		SourceWarnings: row.SourceWarnings.Data,
		StartedAt:      row.StartedAt.Time,
	}
	if row.Error.Valid {
		errText := row.Error.String
		run.Error = &errText
	}
	if row.CompletedAt.Valid {
		completedAt := row.CompletedAt.Time
		run.CompletedAt = &completedAt
	}
	return run
}

// ToRuns converts a slice of database rows to domain models
func ToRuns(rows []RunRow) []*models.ScoringRun {
	runs := make([]*models.ScoringRun, len(rows))
	for i, row := range rows {
		runs[i] = ToRun(&row)
	}
	return runs
}

// Now returns the current time in UTC
func Now() time.Time {
	return time.Now().UTC()
}
