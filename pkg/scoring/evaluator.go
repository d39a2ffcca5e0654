// Package scoring implements the churn risk engine with a clear separation:
// - Evaluator = the fixed rule set (one POS in, one assessment out, pure)
// - Portfolio = the batch pass (union of POS, deterministic ordering)
package scoring

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/r2flows/churn-agent/pkg/models"
)

// Rule labels are contractual: downstream reports and alert consumers match
// on these strings verbatim.
const (
	LabelLowPlatformUse   = "Bajo uso de plataforma (≤1 orden/semana)"
	LabelMinimumTimeSaved = "Tiempo de ahorro mínimo (opera con 1 proveedor)"
	LabelZombie           = "🧟 Zombie"
	LabelRiskyTrend       = "Tendencia de compra riesgosa (inactive/risky)"
	LabelLowSavings       = "Ahorros bajos (<$5 USD)"
)

// Recommended actions per tier. Zombie-sourced urgent assessments keep the
// stronger wording.
const (
	ActionUrgent       = "URGENTE: Contacto inmediato - Asignar ejecutivo en 48 horas."
	ActionUrgentZombie = "URGENTE: Asignar ejecutivo inmediatamente para prevenir churn"
	ActionModerate     = "MODERADO: Programar llamada de seguimiento en 1 semana."
	ActionLow          = "Monitoreo rutinario."
)

// Scores are computed in integer basis points (hundredths) and divided once at
// the end, so published values equal their decimal literals exactly.
const (
	baseScoreBps = 30

	weightLowPlatformBps = 25
	weightMinimumTimeBps = 20
	weightZombieBps      = 40
	weightRiskyTrendBps  = 10
	weightLowSavingsBps  = 5

	minScoreBps = 0
	maxScoreBps = 100

	urgentFloorBps   = 80
	moderateFloorBps = 60
)

const (
	confidenceZombie    = 0.85
	confidenceTriggered = 0.70
	confidenceDefault   = 0.60
)

// narrativeRuleCount is the size of the criteria group quoted in rationales
// (low platform use, risky trend, zombie).
const narrativeRuleCount = 3

// lowSavingsThreshold is the USD/day floor under which savings count as low
var lowSavingsThreshold = decimal.NewFromInt(5)

// riskRule is one entry of the fixed, ordered rule set
type riskRule struct {
	label     string
	weightBps int
	narrative bool // counted in the k-of-3 rationale
	triggered func(models.PosSignal) bool
}

// Evaluator maps one POS's merged signals to a risk assessment. It is pure and
// total: unknown or absent fields simply fail their rule condition, they never
// produce an error.
type Evaluator struct {
	rules []riskRule
}

// NewEvaluator creates an evaluator carrying the fixed rule set
func NewEvaluator() *Evaluator {
	return &Evaluator{
		rules: []riskRule{
			{
				label:     LabelLowPlatformUse,
				weightBps: weightLowPlatformBps,
				narrative: true,
				triggered: func(s models.PosSignal) bool {
					return s.PlatformUse == models.PlatformUseLow
				},
			},
			{
				label:     LabelMinimumTimeSaved,
				weightBps: weightMinimumTimeBps,
				triggered: func(s models.PosSignal) bool {
					return s.TimeSaved == models.TimeSavedMinimum
				},
			},
			{
				label:     LabelZombie,
				weightBps: weightZombieBps,
				narrative: true,
				triggered: func(s models.PosSignal) bool {
					return s.IsZombie
				},
			},
			{
				label:     LabelRiskyTrend,
				weightBps: weightRiskyTrendBps,
				narrative: true,
				triggered: func(s models.PosSignal) bool {
					return s.TrendClassification == models.TrendRisky ||
						s.TrendClassification == models.TrendInactive
				},
			},
			{
				label:     LabelLowSavings,
				weightBps: weightLowSavingsBps,
				triggered: func(s models.PosSignal) bool {
					return s.AverageDailySavings != nil &&
						s.AverageDailySavings.LessThan(lowSavingsThreshold)
				},
			},
		},
	}
}

// Evaluate scores one POS. Rules are evaluated in their fixed order; each
// triggered rule adds its weight and its label.
func (e *Evaluator) Evaluate(signal models.PosSignal) models.RiskAssessment {
	scoreBps := baseScoreBps
	flags := make([]string, 0, len(e.rules))
	zombieFired := false
	narrativeHits := 0

	for _, rule := range e.rules {
		if !rule.triggered(signal) {
			continue
		}
		scoreBps += rule.weightBps
		flags = append(flags, rule.label)
		if rule.label == LabelZombie {
			zombieFired = true
		}
		if rule.narrative {
			narrativeHits++
		}
	}

	if scoreBps > maxScoreBps {
		scoreBps = maxScoreBps
	}
	if scoreBps < minScoreBps {
		scoreBps = minScoreBps
	}

	confidence := confidenceDefault
	if zombieFired {
		confidence = confidenceZombie
	} else if len(flags) > 0 {
		confidence = confidenceTriggered
	}

	tier := tierForScore(scoreBps)

	return models.RiskAssessment{
		PosID:                 signal.PosID,
		Score:                 float64(scoreBps) / 100,
		Confidence:            confidence,
		TriggeredFlags:        flags,
		Tier:                  tier,
		Rationale:             rationale(narrativeHits, flags),
		RecommendedAction:     actionForTier(tier, zombieFired),
		OrdersDelivered4w:     models.FormatOptional(signal.OrdersDelivered4w, ""),
		PercentageDelivered4w: models.FormatOptional(signal.PercentageDelivered4w, "%"),
		PercentageDelivered2w: models.FormatOptional(signal.PercentageDelivered2w, "%"),
	}
}

// tierForScore applies the fixed boundaries with inclusive lower bounds
func tierForScore(scoreBps int) models.RiskTier {
	switch {
	case scoreBps >= urgentFloorBps:
		return models.RiskTierUrgent
	case scoreBps >= moderateFloorBps:
		return models.RiskTierModerate
	default:
		return models.RiskTierLow
	}
}

func actionForTier(tier models.RiskTier, zombieFired bool) string {
	switch tier {
	case models.RiskTierUrgent:
		if zombieFired {
			return ActionUrgentZombie
		}
		return ActionUrgent
	case models.RiskTierModerate:
		return ActionModerate
	default:
		return ActionLow
	}
}

func rationale(narrativeHits int, flags []string) string {
	if len(flags) == 0 {
		return fmt.Sprintf("POS cumple 0 de %d criterios de riesgo.", narrativeRuleCount)
	}
	return fmt.Sprintf("POS cumple %d de %d criterios de riesgo: %s.",
		narrativeHits, narrativeRuleCount, strings.Join(flags, ", "))
}
