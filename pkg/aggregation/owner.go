// Package aggregation rolls per-POS risk assessments up into per-owner
// summaries used for prioritization.
package aggregation

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/r2flows/churn-agent/pkg/models"
	"github.com/r2flows/churn-agent/pkg/tracing"
)

// Aggregator groups assessments by owning entity. Pure transformation over
// two already-loaded collections; the owner map is read-only.
type Aggregator struct {
	log ectologger.Logger
}

// NewAggregator creates an owner aggregator
func NewAggregator(log ectologger.Logger) *Aggregator {
	return &Aggregator{log: log}
}

// Group is the assessment set of one owner plus the CRM reference those POS
// resolved to
type Group struct {
	Ref         models.OwnerRef
	Assessments []models.RiskAssessment
}

// GroupByOwner indexes assessments by the owner each POS resolves to via the
// owner map. A POS with no mapping entry, or a mapping with an empty owner id,
// groups under the "Unassigned" sentinel and is never dropped.
func GroupByOwner(assessments []models.RiskAssessment, owners models.OwnerMap) map[string]Group {
	groups := make(map[string]Group)
	for _, assessment := range assessments {
		ref, ok := owners[assessment.PosID]
		ownerID := ref.OwnerID
		if !ok || ownerID == "" {
			ownerID = models.UnassignedOwner
			ref = models.OwnerRef{OwnerID: models.UnassignedOwner}
		}

		group, ok := groups[ownerID]
		if !ok {
			group = Group{Ref: ref}
		}
		group.Assessments = append(group.Assessments, assessment)
		groups[ownerID] = group
	}
	return groups
}

// AggregateByOwner groups assessments by owner and summarizes each group.
// Output order: owners with critical POS first, then by descending average
// score, then by ascending owner id.
func (a *Aggregator) AggregateByOwner(ctx context.Context, assessments []models.RiskAssessment, owners models.OwnerMap) []models.OwnerSummary {
	ctx, span := tracing.StartSpan(ctx, "aggregation.Aggregator.AggregateByOwner")
	defer span.End()

	groups := GroupByOwner(assessments, owners)

	summaries := make([]models.OwnerSummary, 0, len(groups))
	for ownerID, group := range groups {
		summaries = append(summaries, a.summarize(ownerID, group))
	}

	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.HasCritical != b.HasCritical {
			return a.HasCritical
		}
		if a.AverageScore != b.AverageScore {
			return a.AverageScore > b.AverageScore
		}
		return a.OwnerID < b.OwnerID
	})

	a.log.WithContext(ctx).WithFields(map[string]any{
		"owner_count": len(summaries),
		"pos_count":   len(assessments),
	}).Info("Aggregated assessments by owner")

	return summaries
}

func (a *Aggregator) summarize(ownerID string, group Group) models.OwnerSummary {
	countByTier := map[models.RiskTier]int{
		models.RiskTierLow:      0,
		models.RiskTierModerate: 0,
		models.RiskTierUrgent:   0,
	}

	var scoreSum float64
	criticals := make([]models.RiskAssessment, 0)
	for _, assessment := range group.Assessments {
		countByTier[assessment.Tier]++
		scoreSum += assessment.Score
		if assessment.Tier == models.RiskTierUrgent {
			criticals = append(criticals, assessment)
		}
	}

	sort.Slice(criticals, func(i, j int) bool {
		if criticals[i].Score != criticals[j].Score {
			return criticals[i].Score > criticals[j].Score
		}
		return criticals[i].PosID < criticals[j].PosID
	})

	criticalIDs := make([]string, 0, len(criticals))
	for _, critical := range criticals {
		criticalIDs = append(criticalIDs, critical.PosID)
	}

	return models.OwnerSummary{
		OwnerID:        ownerID,
		OwnerCompany:   a.companyName(ownerID, group.Ref),
		PosCount:       len(group.Assessments),
		CountByTier:    countByTier,
		AverageScore:   scoreSum / float64(len(group.Assessments)),
		CriticalPosIDs: criticalIDs,
		HasCritical:    len(criticalIDs) > 0,
	}
}

// companyName picks the display name for an owner group. The CRM mapping
// carries no free-text name, so the company token stands in for it.
func (a *Aggregator) companyName(ownerID string, ref models.OwnerRef) string {
	if ownerID == models.UnassignedOwner {
		return models.UnassignedOwner
	}
	if ref.HSCompanyID != "" {
		return ref.HSCompanyID
	}
	return ownerID
}
