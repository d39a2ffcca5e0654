package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PlatformUse classifies how actively a POS orders through the platform
type PlatformUse string

const (
	PlatformUseLow     PlatformUse = "low"
	PlatformUseMedium  PlatformUse = "medium"
	PlatformUseHigh    PlatformUse = "high"
	PlatformUseUnknown PlatformUse = "unknown"
)

// ParsePlatformUse maps raw source values to a PlatformUse, defaulting to unknown
func ParsePlatformUse(value string) PlatformUse {
	switch PlatformUse(strings.ToLower(strings.TrimSpace(value))) {
	case PlatformUseLow:
		return PlatformUseLow
	case PlatformUseMedium:
		return PlatformUseMedium
	case PlatformUseHigh:
		return PlatformUseHigh
	default:
		return PlatformUseUnknown
	}
}

// TimeSaved classifies the time a POS saves by ordering through the platform
type TimeSaved string

const (
	TimeSavedMinimum TimeSaved = "minimum"
	TimeSavedMedium  TimeSaved = "medium"
	TimeSavedHigh    TimeSaved = "high"
	TimeSavedUnknown TimeSaved = "unknown"
)

// ParseTimeSaved maps raw source values to a TimeSaved, defaulting to unknown
func ParseTimeSaved(value string) TimeSaved {
	switch TimeSaved(strings.ToLower(strings.TrimSpace(value))) {
	case TimeSavedMinimum:
		return TimeSavedMinimum
	case TimeSavedMedium:
		return TimeSavedMedium
	case TimeSavedHigh:
		return TimeSavedHigh
	default:
		return TimeSavedUnknown
	}
}

// MaliciousUseRisk classifies suspected abuse of delivery guarantees
type MaliciousUseRisk string

const (
	MaliciousUseRiskHigh     MaliciousUseRisk = "high"
	MaliciousUseRiskModerate MaliciousUseRisk = "moderate"
	MaliciousUseRiskLow      MaliciousUseRisk = "low"
	MaliciousUseRiskUnknown  MaliciousUseRisk = "unknown"
)

// ParseMaliciousUseRisk maps raw source values to a MaliciousUseRisk, defaulting to unknown
func ParseMaliciousUseRisk(value string) MaliciousUseRisk {
	switch MaliciousUseRisk(strings.ToLower(strings.TrimSpace(value))) {
	case MaliciousUseRiskHigh:
		return MaliciousUseRiskHigh
	case MaliciousUseRiskModerate:
		return MaliciousUseRiskModerate
	case MaliciousUseRiskLow:
		return MaliciousUseRiskLow
	default:
		return MaliciousUseRiskUnknown
	}
}

// TrendClassification classifies the purchase trend of a POS
type TrendClassification string

const (
	TrendActive   TrendClassification = "active"
	TrendRisky    TrendClassification = "risky"
	TrendInactive TrendClassification = "inactive"
	TrendUnknown  TrendClassification = "unknown"
)

// ParseTrendClassification maps raw source values to a TrendClassification, defaulting to unknown
func ParseTrendClassification(value string) TrendClassification {
	switch TrendClassification(strings.ToLower(strings.TrimSpace(value))) {
	case TrendActive:
		return TrendActive
	case TrendRisky:
		return TrendRisky
	case TrendInactive:
		return TrendInactive
	default:
		return TrendUnknown
	}
}

// PosSignal is the merged, immutable view of one POS across all signal sources.
// A POS absent from a source carries the unknown/absent defaults for that
// source's fields. PosID is an opaque join token and is never parsed for meaning.
type PosSignal struct {
	PosID                            string              `json:"pos_id"`
	PlatformUse                      PlatformUse         `json:"platform_use"`
	TimeSaved                        TimeSaved           `json:"time_saved"`
	AverageDailySavings              *decimal.Decimal    `json:"average_daily_savings,omitempty"`
	OrdersDelivered4w                *decimal.Decimal    `json:"orders_delivered_4w,omitempty"`
	PercentageDelivered4w            *decimal.Decimal    `json:"percentage_delivered_4w,omitempty"`
	PercentageDelivered2w            *decimal.Decimal    `json:"percentage_delivered_2w,omitempty"`
	MaliciousUseRisk                 MaliciousUseRisk    `json:"malicious_use_risk"`
	TrendClassification              TrendClassification `json:"trend_classification"`
	IsZombie                         bool                `json:"is_zombie"`
	ZombieDaysSinceFirstPurchase     *int                `json:"zombie_days_since_first_purchase,omitempty"`
	ZombiePredictedSubscriptionValue *decimal.Decimal    `json:"zombie_predicted_subscription_value,omitempty"`
}

// NewPosSignal returns a PosSignal with every source field defaulted to unknown/absent
func NewPosSignal(posID string) PosSignal {
	return PosSignal{
		PosID:               posID,
		PlatformUse:         PlatformUseUnknown,
		TimeSaved:           TimeSavedUnknown,
		MaliciousUseRisk:    MaliciousUseRiskUnknown,
		TrendClassification: TrendUnknown,
	}
}

// TrialRecord is one row of the trial/usage source
type TrialRecord struct {
	PosID                      string           `json:"pos_id"`
	PlatformUse                PlatformUse      `json:"platform_use"`
	TimeSaved                  TimeSaved        `json:"time_saved"`
	AverageDailySavings        *decimal.Decimal `json:"average_daily_savings,omitempty"`
	PredictedSubscriptionValue *decimal.Decimal `json:"predicted_subscription_value,omitempty"`
}

// DeliveryRecord is one row of the delivery-rate source
type DeliveryRecord struct {
	PosID                 string           `json:"pos_id"`
	OrdersDelivered4w     *decimal.Decimal `json:"orders_delivered_4w,omitempty"`
	PercentageDelivered4w *decimal.Decimal `json:"percentage_delivered_4w,omitempty"`
	PercentageDelivered2w *decimal.Decimal `json:"percentage_delivered_2w,omitempty"`
	MaliciousUseRisk      MaliciousUseRisk `json:"malicious_use_risk"`
}

// TrendRecord is one row of the purchase-trend source
type TrendRecord struct {
	PosID               string              `json:"pos_id"`
	TrendClassification TrendClassification `json:"trend_classification"`
}

// ZombieRecord is one row of the zombie source. Presence of a POS in this
// source marks it as a zombie regardless of what the other sources say.
type ZombieRecord struct {
	PosID                      string           `json:"pos_id"`
	DaysSinceFirstPurchase     *int             `json:"days_since_first_purchase,omitempty"`
	PlatformUse                PlatformUse      `json:"platform_use"`
	TimeSaved                  TimeSaved        `json:"time_saved"`
	PredictedSubscriptionValue *decimal.Decimal `json:"predicted_subscription_value,omitempty"`
}

// OwnerRef identifies the commercial owner of a POS in the CRM mapping.
// OwnerID may be empty when the CRM has no executive assigned.
type OwnerRef struct {
	ClientID    string `json:"client_id"`
	HSCompanyID string `json:"hs_company_id"`
	OwnerID     string `json:"owner_id"`
}

// OwnerMap resolves a POS id to its owning entity. Read-only to the scoring core.
type OwnerMap map[string]OwnerRef

// SignalSnapshot is the immutable input of one scoring pass: every source
// loaded once, keyed by POS id. Runs never share a snapshot.
type SignalSnapshot struct {
	Trials     map[string]TrialRecord
	Deliveries map[string]DeliveryRecord
	Trends     map[string]TrendRecord
	Zombies    map[string]ZombieRecord
	Owners     OwnerMap

	// SourceWarnings records sources that could not be read this pass.
	// Scoring proceeds with defaults for their fields.
	SourceWarnings []string
}
