// Package signals builds the merged per-POS view a scoring pass consumes.
package signals

import (
	"context"
	"errors"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/r2flows/churn-agent/pkg/models"
	"github.com/r2flows/churn-agent/pkg/tracing"
)

// ErrEmptyUniverse is returned when no POS is identifiable across any signal
// source. There is nothing to score, so the pass terminates.
var ErrEmptyUniverse = errors.New("no POS identifiable across any signal source")

// Merger folds the four signal sources into one PosSignal per POS
type Merger struct {
	log ectologger.Logger
}

// NewMerger creates a signal merger
func NewMerger(log ectologger.Logger) *Merger {
	return &Merger{log: log}
}

// Merge builds the union view: every POS present in at least one source gets
// a PosSignal, with unknown/absent defaults for the sources that do not know
// it. Zombie membership wins regardless of what other sources say; trial
// fields take precedence over the duplicates the zombie source carries.
// Output is ordered by ascending POS id so identical snapshots merge
// identically.
func (m *Merger) Merge(ctx context.Context, snapshot models.SignalSnapshot) ([]models.PosSignal, error) {
	ctx, span := tracing.StartSpan(ctx, "signals.Merger.Merge")
	defer span.End()

	universe := make(map[string]struct{})
	for posID := range snapshot.Trials {
		universe[posID] = struct{}{}
	}
	for posID := range snapshot.Deliveries {
		universe[posID] = struct{}{}
	}
	for posID := range snapshot.Trends {
		universe[posID] = struct{}{}
	}
	for posID := range snapshot.Zombies {
		universe[posID] = struct{}{}
	}

	if len(universe) == 0 {
		return nil, ErrEmptyUniverse
	}

	posIDs := make([]string, 0, len(universe))
	for posID := range universe {
		posIDs = append(posIDs, posID)
	}
	sort.Strings(posIDs)

	merged := make([]models.PosSignal, 0, len(posIDs))
	for _, posID := range posIDs {
		merged = append(merged, m.mergeOne(posID, snapshot))
	}

	m.log.WithContext(ctx).WithFields(map[string]any{
		"pos_count":       len(merged),
		"trial_count":     len(snapshot.Trials),
		"delivery_count":  len(snapshot.Deliveries),
		"trend_count":     len(snapshot.Trends),
		"zombie_count":    len(snapshot.Zombies),
		"source_warnings": len(snapshot.SourceWarnings),
	}).Info("Merged signal sources")

	return merged, nil
}

func (m *Merger) mergeOne(posID string, snapshot models.SignalSnapshot) models.PosSignal {
	signal := models.NewPosSignal(posID)

	if trial, ok := snapshot.Trials[posID]; ok {
		signal.PlatformUse = trial.PlatformUse
		signal.TimeSaved = trial.TimeSaved
		signal.AverageDailySavings = trial.AverageDailySavings
	}

	if delivery, ok := snapshot.Deliveries[posID]; ok {
		signal.OrdersDelivered4w = delivery.OrdersDelivered4w
		signal.PercentageDelivered4w = delivery.PercentageDelivered4w
		signal.PercentageDelivered2w = delivery.PercentageDelivered2w
		signal.MaliciousUseRisk = delivery.MaliciousUseRisk
	}

	if trend, ok := snapshot.Trends[posID]; ok {
		signal.TrendClassification = trend.TrendClassification
	}

	if zombie, ok := snapshot.Zombies[posID]; ok {
		signal.IsZombie = true
		signal.ZombieDaysSinceFirstPurchase = zombie.DaysSinceFirstPurchase
		signal.ZombiePredictedSubscriptionValue = zombie.PredictedSubscriptionValue
		if signal.PlatformUse == models.PlatformUseUnknown {
			signal.PlatformUse = zombie.PlatformUse
		}
		if signal.TimeSaved == models.TimeSavedUnknown {
			signal.TimeSaved = zombie.TimeSaved
		}
	}

	return signal
}
