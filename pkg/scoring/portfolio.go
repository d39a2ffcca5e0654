package scoring

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/r2flows/churn-agent/pkg/models"
	"github.com/r2flows/churn-agent/pkg/tracing"
)

// Portfolio scores every POS in a snapshot and orders the result by
// descending risk. One instance is safe for concurrent passes because it
// holds no per-run state.
type Portfolio struct {
	log       ectologger.Logger
	evaluator *Evaluator
}

// NewPortfolio creates a portfolio scorer
func NewPortfolio(log ectologger.Logger) *Portfolio {
	return &Portfolio{
		log:       log,
		evaluator: NewEvaluator(),
	}
}

// Evaluator exposes the underlying rule evaluator
func (p *Portfolio) Evaluator() *Evaluator {
	return p.evaluator
}

// ScoreAll evaluates every signal and returns assessments sorted by
// descending score, descending confidence, ascending POS id. The input is
// never filtered: a POS known to a single source scores with defaults for
// the rest.
func (p *Portfolio) ScoreAll(ctx context.Context, signals []models.PosSignal) []models.RiskAssessment {
	ctx, span := tracing.StartSpan(ctx, "scoring.Portfolio.ScoreAll")
	defer span.End()

	assessments := make([]models.RiskAssessment, 0, len(signals))
	for _, signal := range signals {
		assessments = append(assessments, p.evaluator.Evaluate(signal))
	}

	sort.Slice(assessments, func(i, j int) bool {
		a, b := assessments[i], assessments[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.PosID < b.PosID
	})

	tierCounts := map[models.RiskTier]int{}
	for _, a := range assessments {
		tierCounts[a.Tier]++
	}

	p.log.WithContext(ctx).WithFields(map[string]any{
		"pos_count":      len(assessments),
		"urgent_count":   tierCounts[models.RiskTierUrgent],
		"moderate_count": tierCounts[models.RiskTierModerate],
		"low_count":      tierCounts[models.RiskTierLow],
	}).Info("Scored portfolio")

	return assessments
}
