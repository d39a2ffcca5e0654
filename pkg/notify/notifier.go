// Package notify turns a finished scoring pass into alert events: one per
// risky POS and a digest per owner holding critical POS. Event composition
// lives here; the Kafka producer only moves bytes.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/r2flows/churn-agent/pkg/aggregation"
	"github.com/r2flows/churn-agent/pkg/kafka"
	"github.com/r2flows/churn-agent/pkg/models"
	"github.com/r2flows/churn-agent/pkg/tracing"
)

// EventPublisher publishes one alert event. *kafka.Producer satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event *kafka.AlertEvent) error
}

// Notifier composes and publishes alert events after a scoring pass
type Notifier struct {
	publisher EventPublisher
	log       ectologger.Logger
}

// NewNotifier creates a notifier. A nil publisher disables publication; the
// notifier still logs what it would have sent.
func NewNotifier(publisher EventPublisher, log ectologger.Logger) *Notifier {
	return &Notifier{publisher: publisher, log: log}
}

// Dispatch publishes the alert events for one pass: a risk.assessment event
// per Urgent or Moderate POS and an owner.digest event per owner with critical
// POS. Publish failures are logged and skipped; alerting is best effort and
// never fails the pass.
func (n *Notifier) Dispatch(ctx context.Context, runID string, assessments []models.RiskAssessment, summaries []models.OwnerSummary, owners models.OwnerMap) {
	ctx, span := tracing.StartSpan(ctx, "notify.Notifier.Dispatch")
	defer span.End()

	if len(assessments) == 0 {
		n.log.WithContext(ctx).Info("No hay alertas para notificar")
		return
	}

	n.logTopAssessment(ctx, assessments[0])

	published := 0
	for _, assessment := range assessments {
		if assessment.Tier == models.RiskTierLow {
			continue
		}
		if n.publishAssessment(ctx, runID, assessment) {
			published++
		}
	}

	groups := aggregation.GroupByOwner(assessments, owners)
	digests := 0
	for _, summary := range summaries {
		if !summary.HasCritical {
			continue
		}
		if n.publishDigest(ctx, runID, summary, groups[summary.OwnerID].Assessments) {
			digests++
		}
	}

	n.log.WithContext(ctx).WithFields(map[string]any{
		"run_id":            runID,
		"assessment_events": published,
		"digest_events":     digests,
	}).Info("Alert events dispatched")
}

// logTopAssessment surfaces the riskiest POS of the pass in the run log
func (n *Notifier) logTopAssessment(ctx context.Context, top models.RiskAssessment) {
	n.log.WithContext(ctx).WithFields(map[string]any{
		"pos_id": top.PosID,
		"tier":   string(top.Tier),
		"score":  fmt.Sprintf("%.2f", top.Score),
	}).Infof("POS %s riesgo %s (score %.2f). Sugerencia: %s",
		top.PosID, strings.ToUpper(string(top.Tier)), top.Score, top.RecommendedAction)
}

func (n *Notifier) publishAssessment(ctx context.Context, runID string, assessment models.RiskAssessment) bool {
	payload := models.AssessmentEvent{
		RunID:             runID,
		PosID:             assessment.PosID,
		Score:             assessment.Score,
		Confidence:        assessment.Confidence,
		Tier:              assessment.Tier,
		TriggeredFlags:    assessment.TriggeredFlags,
		Rationale:         assessment.Rationale,
		RecommendedAction: assessment.RecommendedAction,
		OccurredAt:        time.Now().UTC(),
	}

	return n.publish(ctx, models.EventTypeAssessment, runID, assessment.PosID, payload)
}

func (n *Notifier) publishDigest(ctx context.Context, runID string, summary models.OwnerSummary, assessments []models.RiskAssessment) bool {
	payload := models.OwnerDigestEvent{
		RunID:          runID,
		OwnerID:        summary.OwnerID,
		OwnerCompany:   summary.OwnerCompany,
		Subject:        DigestSubject(summary),
		Body:           DigestBody(summary, assessments),
		PosCount:       summary.PosCount,
		UrgentCount:    summary.CountByTier[models.RiskTierUrgent],
		AverageScore:   summary.AverageScore,
		CriticalPosIDs: summary.CriticalPosIDs,
		OccurredAt:     time.Now().UTC(),
	}

	return n.publish(ctx, models.EventTypeOwnerDigest, runID, summary.OwnerID, payload)
}

func (n *Notifier) publish(ctx context.Context, eventType, runID, entityID string, payload any) bool {
	event, err := kafka.NewAlertEvent(eventType, runID, entityID, payload)
	if err != nil {
		n.log.WithContext(ctx).WithError(err).WithField("entity_id", entityID).Error("Failed to build alert event")
		return false
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		event.TraceID = traceID
	}

	if n.publisher == nil {
		n.log.WithContext(ctx).WithFields(map[string]any{
			"event_type": eventType,
			"entity_id":  entityID,
		}).Info("Alert publishing disabled, event dropped")
		return false
	}

	if err := n.publisher.Publish(ctx, event); err != nil {
		n.log.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": eventType,
			"entity_id":  entityID,
		}).Error("Failed to publish alert event")
		return false
	}

	return true
}

// DigestSubject is the subject line of an owner digest
func DigestSubject(summary models.OwnerSummary) string {
	return fmt.Sprintf("Reporte Farmacias Riesgosas - %s", summary.OwnerCompany)
}

// DigestBody renders the plain-text body of an owner digest: headline, the
// owner's standing, and one line per POS.
func DigestBody(summary models.OwnerSummary, assessments []models.RiskAssessment) string {
	headline, action := ownerStanding(summary)

	var b strings.Builder
	b.WriteString("Reporte Farmacias Riesgosas\n")
	fmt.Fprintf(&b, "Owner: %s (%s)\n", summary.OwnerCompany, summary.OwnerID)
	fmt.Fprintf(&b, "Resumen: %s\n", headline)
	fmt.Fprintf(&b, "Acción prioritaria: %s\n", action)
	b.WriteString("\nDetalle por POS:\n")

	for _, assessment := range assessments {
		fmt.Fprintf(&b, "- POS %s: score %.2f (%s) → %s\n",
			assessment.PosID, assessment.Score, strings.ToUpper(string(assessment.Tier)), assessment.RecommendedAction)
	}

	b.WriteString("\nEste mensaje se generó automáticamente desde el agente de churn.")
	return b.String()
}

// ownerStanding condenses an owner's portfolio into a one-line summary and a
// recommended action, keyed off the worst tier present.
func ownerStanding(summary models.OwnerSummary) (string, string) {
	urgent := summary.CountByTier[models.RiskTierUrgent]
	moderate := summary.CountByTier[models.RiskTierModerate]

	switch {
	case urgent > 0:
		return fmt.Sprintf("🔴 URGENTE: %d POS urgentes de %d total", urgent, summary.PosCount),
			fmt.Sprintf("URGENTE: Contactar en 48h - POS prioritarios: %s", strings.Join(summary.CriticalPosIDs, ", "))
	case moderate > 0:
		return fmt.Sprintf("🟡 MODERADO: %d POS seguimiento de %d total", moderate, summary.PosCount),
			"Programar llamadas en 1 semana"
	default:
		return fmt.Sprintf("✅ ESTABLE: Todos los %d POS bajo control", summary.PosCount),
			"Monitoreo rutinario semanal"
	}
}
