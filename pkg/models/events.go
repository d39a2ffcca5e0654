package models

import "time"

// Event types published to the alerts topic
const (
	EventTypeAssessment  = "risk.assessment"
	EventTypeOwnerDigest = "owner.digest"
)

// AssessmentEvent is published for every Urgent or Moderate POS after a pass
type AssessmentEvent struct {
	RunID             string   `json:"run_id"`
	PosID             string   `json:"pos_id"`
	Score             float64  `json:"score"`
	Confidence        float64  `json:"confidence"`
	Tier              RiskTier `json:"tier"`
	TriggeredFlags    []string `json:"triggered_flags"`
	Rationale         string   `json:"rationale"`
	RecommendedAction string   `json:"recommended_action"`

	OccurredAt time.Time `json:"occurred_at"`
}

// OwnerDigestEvent is published for every owner with critical POS after a pass
type OwnerDigestEvent struct {
	RunID          string   `json:"run_id"`
	OwnerID        string   `json:"owner_id"`
	OwnerCompany   string   `json:"owner_company"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	PosCount       int      `json:"pos_count"`
	UrgentCount    int      `json:"urgent_count"`
	AverageScore   float64  `json:"average_score"`
	CriticalPosIDs []string `json:"critical_pos_ids"`

	OccurredAt time.Time `json:"occurred_at"`
}
