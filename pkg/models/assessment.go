package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskTier is the discretized risk bucket derived from the continuous score
type RiskTier string

const (
	RiskTierLow      RiskTier = "Low"
	RiskTierModerate RiskTier = "Moderate"
	RiskTierUrgent   RiskTier = "Urgent"
)

// UnassignedOwner is the sentinel owner for POS with no CRM mapping.
// Those POS are grouped here, never dropped.
const UnassignedOwner = "Unassigned"

// NoData is the display token for absent numeric values. Downstream reports
// match on it verbatim.
const NoData = "N/D"

// RiskAssessment is the scored, immutable output for one POS. It is created
// once per scoring pass and superseded, never mutated, by the next pass.
type RiskAssessment struct {
	PosID             string   `json:"pos_id" db:"pos_id"`
	Score             float64  `json:"score" db:"score"`
	Confidence        float64  `json:"confidence" db:"confidence"`
	TriggeredFlags    []string `json:"triggered_flags" db:"-"`
	Tier              RiskTier `json:"tier" db:"tier"`
	Rationale         string   `json:"rationale" db:"rationale"`
	RecommendedAction string   `json:"recommended_action" db:"recommended_action"`

	// Delivery fields carried through for display: "NN.NN" / "NN.NN%" or "N/D"
	OrdersDelivered4w     string `json:"orders_delivered_4w" db:"orders_delivered_4w"`
	PercentageDelivered4w string `json:"percentage_delivered_4w" db:"percentage_delivered_4w"`
	PercentageDelivered2w string `json:"percentage_delivered_2w" db:"percentage_delivered_2w"`
}

// OwnerSummary rolls the assessments of one owning entity up for prioritization.
// Recomputed fully on each pass.
type OwnerSummary struct {
	OwnerID        string           `json:"owner_id" db:"owner_id"`
	OwnerCompany   string           `json:"owner_company" db:"owner_company"`
	PosCount       int              `json:"pos_count" db:"pos_count"`
	CountByTier    map[RiskTier]int `json:"count_by_tier" db:"-"`
	AverageScore   float64          `json:"average_score" db:"average_score"`
	CriticalPosIDs []string         `json:"critical_pos_ids" db:"-"`
	HasCritical    bool             `json:"has_critical" db:"has_critical"`
}

// RunStatus is the lifecycle state of a scoring run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run triggers
const (
	RunTriggerSchedule = "schedule"
	RunTriggerAPI      = "api"
)

// ScoringRun records one scoring pass end to end
type ScoringRun struct {
	ID             string     `json:"id" db:"id"`
	Status         RunStatus  `json:"status" db:"status"`
	TriggeredBy    string     `json:"triggered_by" db:"triggered_by"`
	PosCount       int        `json:"pos_count" db:"pos_count"`
	OwnerCount     int        `json:"owner_count" db:"owner_count"`
	UrgentCount    int        `json:"urgent_count" db:"urgent_count"`
	ModerateCount  int        `json:"moderate_count" db:"moderate_count"`
	LowCount       int        `json:"low_count" db:"low_count"`
	SourceWarnings []string   `json:"source_warnings,omitempty" db:"-"`
	Error          *string    `json:"error,omitempty" db:"error"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// ScoringRunListResponse is the API response for listing scoring runs
type ScoringRunListResponse struct {
	Items      []*ScoringRun `json:"items"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}

// RiskAssessmentListResponse is the API response for listing the assessments of a run
type RiskAssessmentListResponse struct {
	RunID      string           `json:"run_id"`
	Items      []RiskAssessment `json:"items"`
	TotalCount int              `json:"total_count"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
}

// OwnerSummaryListResponse is the API response for listing the owner summaries of a run
type OwnerSummaryListResponse struct {
	RunID      string         `json:"run_id"`
	Items      []OwnerSummary `json:"items"`
	TotalCount int            `json:"total_count"`
}

// FormatOptional renders an optional numeric value for display: two decimal
// places plus suffix when known, the literal "N/D" token when absent.
func FormatOptional(value *decimal.Decimal, suffix string) string {
	if value == nil {
		return NoData
	}
	return value.StringFixed(2) + suffix
}
