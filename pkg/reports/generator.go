// Package reports renders the scoring output as HTML, Markdown and ASCII
// artifacts for the commercial team.
package reports

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	texttemplate "text/template"

	"github.com/Gobusters/ectologger"

	"github.com/r2flows/churn-agent/pkg/metrics"
	"github.com/r2flows/churn-agent/pkg/models"
	"github.com/r2flows/churn-agent/pkg/tracing"
)

// Report file names
const (
	HTMLReportName          = "behavioral_alerts.html"
	MarkdownReportName      = "behavioral_alerts.md"
	ASCIIChartName          = "behavioral_alerts_chart.txt"
	OwnerHTMLReportName     = "owner_behavioral_alerts.html"
	OwnerMarkdownReportName = "owner_behavioral_alerts.md"
)

//go:embed templates/*.html templates/*.md.tmpl
var templatesFS embed.FS

var htmlTemplates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))
var textTemplates = texttemplate.Must(texttemplate.ParseFS(templatesFS, "templates/*.md.tmpl"))

// Tier colors for the HTML reports
var tierColors = map[models.RiskTier]string{
	models.RiskTierUrgent:   "#F44336",
	models.RiskTierModerate: "#FF9800",
	models.RiskTierLow:      "#4CAF50",
}

const defaultTierColor = "#9E9E9E"

// Generator renders reports from the output of one scoring pass
type Generator struct {
	log ectologger.Logger
}

// NewGenerator creates a report generator
func NewGenerator(log ectologger.Logger) *Generator {
	return &Generator{log: log}
}

type posRow struct {
	PosID       string
	Tier        string
	Color       string
	Score       string
	Confidence  string
	Flags       []string
	FlagsJoined string
	Trend       string
	Rate4w      string
	Rate2w      string
	Rationale   string
	Action      string
}

type posReport struct {
	Rows []posRow
}

type ownerRow struct {
	OwnerID        string
	Company        string
	RiskLabel      string
	Color          string
	AvgScore       string
	PosCount       int
	UrgentCount    int
	ModerateCount  int
	LowCount       int
	CriticalPosIDs []string
	CriticalJoined string
}

type ownerReport struct {
	Rows []ownerRow
}

// RenderPosHTML renders the per-POS alert table. Only POS with at least one
// triggered flag appear; the full portfolio stays queryable through the API.
func (g *Generator) RenderPosHTML(ctx context.Context, assessments []models.RiskAssessment, signals map[string]models.PosSignal) (string, error) {
	_, span := tracing.StartSpan(ctx, "reports.Generator.RenderPosHTML")
	defer span.End()

	data := posReport{Rows: buildPosRows(assessments, signals, "Sin dato")}

	var buf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&buf, "pos_report.html", data); err != nil {
		return "", fmt.Errorf("failed to render POS HTML report: %w", err)
	}
	return buf.String(), nil
}

// RenderPosMarkdown renders the per-POS alert list
func (g *Generator) RenderPosMarkdown(ctx context.Context, assessments []models.RiskAssessment, signals map[string]models.PosSignal) (string, error) {
	_, span := tracing.StartSpan(ctx, "reports.Generator.RenderPosMarkdown")
	defer span.End()

	data := posReport{Rows: buildPosRows(assessments, signals, "sin dato")}

	var buf bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&buf, "pos_report.md.tmpl", data); err != nil {
		return "", fmt.Errorf("failed to render POS Markdown report: %w", err)
	}
	return buf.String(), nil
}

// RenderASCIIChart renders delivery rates as text bars, 4 weeks against 2
// weeks per flagged POS. Returns "" when there is nothing to chart.
func (g *Generator) RenderASCIIChart(ctx context.Context, assessments []models.RiskAssessment, signals map[string]models.PosSignal) string {
	_, span := tracing.StartSpan(ctx, "reports.Generator.RenderASCIIChart")
	defer span.End()

	flagged := flaggedAssessments(assessments)
	if len(flagged) == 0 {
		return ""
	}

	maxValue := 0.0
	for _, a := range flagged {
		sig := signals[a.PosID]
		if sig.PercentageDelivered4w != nil {
			if v := sig.PercentageDelivered4w.InexactFloat64(); v > maxValue {
				maxValue = v
			}
		}
		if sig.PercentageDelivered2w != nil {
			if v := sig.PercentageDelivered2w.InexactFloat64(); v > maxValue {
				maxValue = v
			}
		}
	}
	if maxValue == 0 {
		return ""
	}

	scale := 40 / maxValue

	var b strings.Builder
	b.WriteString("ASCII chart: Orders delivery rate (4w vs 2w) by POS ID\n")
	b.WriteString("Legend: #=4w, +=2w; riesgo por texto\n\n")

	for _, a := range flagged {
		sig := signals[a.PosID]
		perc4, perc2 := 0.0, 0.0
		if sig.PercentageDelivered4w != nil {
			perc4 = sig.PercentageDelivered4w.InexactFloat64()
		}
		if sig.PercentageDelivered2w != nil {
			perc2 = sig.PercentageDelivered2w.InexactFloat64()
		}

		fmt.Fprintf(&b, "POS %-6s | Risk %-8s | 4w %6.2f%% %s\n", a.PosID, a.Tier, perc4, bar("#", perc4, scale))
		fmt.Fprintf(&b, "%18s | %16s | 2w %6.2f%% %s\n\n", "", "", perc2, bar("+", perc2, scale))
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// RenderOwnerHTML renders the owner rollup table
func (g *Generator) RenderOwnerHTML(ctx context.Context, summaries []models.OwnerSummary) (string, error) {
	_, span := tracing.StartSpan(ctx, "reports.Generator.RenderOwnerHTML")
	defer span.End()

	data := ownerReport{Rows: buildOwnerRows(summaries, false)}

	var buf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&buf, "owner_report.html", data); err != nil {
		return "", fmt.Errorf("failed to render owner HTML report: %w", err)
	}
	return buf.String(), nil
}

// RenderOwnerMarkdown renders the owner rollup list
func (g *Generator) RenderOwnerMarkdown(ctx context.Context, summaries []models.OwnerSummary) (string, error) {
	_, span := tracing.StartSpan(ctx, "reports.Generator.RenderOwnerMarkdown")
	defer span.End()

	data := ownerReport{Rows: buildOwnerRows(summaries, true)}

	var buf bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&buf, "owner_report.md.tmpl", data); err != nil {
		return "", fmt.Errorf("failed to render owner Markdown report: %w", err)
	}
	return buf.String(), nil
}

// WriteAll renders every report into dir and returns the written paths keyed
// by format. HTML and chart variants are skipped when there is nothing to
// show; the Markdown variants always exist so consumers have a stable file.
func (g *Generator) WriteAll(ctx context.Context, dir string, assessments []models.RiskAssessment, signals map[string]models.PosSignal, summaries []models.OwnerSummary) (map[string]string, error) {
	ctx, span := tracing.StartSpan(ctx, "reports.Generator.WriteAll")
	defer span.End()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}

	paths := map[string]string{}
	write := func(format, name, content string) error {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s report: %w", format, err)
		}
		paths[format] = path
		metrics.RecordReportRender(format)
		return nil
	}

	markdown, err := g.RenderPosMarkdown(ctx, assessments, signals)
	if err != nil {
		return nil, err
	}
	if err := write("markdown", MarkdownReportName, markdown); err != nil {
		return nil, err
	}

	if len(flaggedAssessments(assessments)) > 0 {
		html, err := g.RenderPosHTML(ctx, assessments, signals)
		if err != nil {
			return nil, err
		}
		if err := write("html", HTMLReportName, html); err != nil {
			return nil, err
		}
	}

	if chart := g.RenderASCIIChart(ctx, assessments, signals); chart != "" {
		if err := write("ascii_chart", ASCIIChartName, chart); err != nil {
			return nil, err
		}
	}

	ownerMarkdown, err := g.RenderOwnerMarkdown(ctx, summaries)
	if err != nil {
		return nil, err
	}
	if err := write("owner_markdown", OwnerMarkdownReportName, ownerMarkdown); err != nil {
		return nil, err
	}

	if len(summaries) > 0 {
		ownerHTML, err := g.RenderOwnerHTML(ctx, summaries)
		if err != nil {
			return nil, err
		}
		if err := write("owner_html", OwnerHTMLReportName, ownerHTML); err != nil {
			return nil, err
		}
	}

	g.log.WithContext(ctx).WithFields(map[string]any{
		"dir":     dir,
		"formats": len(paths),
	}).Info("Reports written")

	return paths, nil
}

func flaggedAssessments(assessments []models.RiskAssessment) []models.RiskAssessment {
	flagged := make([]models.RiskAssessment, 0, len(assessments))
	for _, a := range assessments {
		if len(a.TriggeredFlags) > 0 {
			flagged = append(flagged, a)
		}
	}
	return flagged
}

func buildPosRows(assessments []models.RiskAssessment, signals map[string]models.PosSignal, trendFallback string) []posRow {
	flagged := flaggedAssessments(assessments)
	rows := make([]posRow, 0, len(flagged))
	for _, a := range flagged {
		sig := signals[a.PosID]
		trend := trendFallback
		if sig.TrendClassification != "" && sig.TrendClassification != models.TrendUnknown {
			trend = string(sig.TrendClassification)
		}

		color, ok := tierColors[a.Tier]
		if !ok {
			color = defaultTierColor
		}

		rows = append(rows, posRow{
			PosID:       a.PosID,
			Tier:        string(a.Tier),
			Color:       color,
			Score:       fmt.Sprintf("%.2f", a.Score),
			Confidence:  fmt.Sprintf("%.2f", a.Confidence),
			Flags:       a.TriggeredFlags,
			FlagsJoined: strings.Join(a.TriggeredFlags, "; "),
			Trend:       trend,
			Rate4w:      a.PercentageDelivered4w,
			Rate2w:      a.PercentageDelivered2w,
			Rationale:   a.Rationale,
			Action:      a.RecommendedAction,
		})
	}
	return rows
}

func buildOwnerRows(summaries []models.OwnerSummary, emojiLabels bool) []ownerRow {
	rows := make([]ownerRow, 0, len(summaries))
	for _, s := range summaries {
		label, color := ownerRiskLabel(s.AverageScore)
		if emojiLabels {
			switch label {
			case "Alto":
				label = "🔴 Alto"
			case "Moderado":
				label = "🟡 Moderado"
			default:
				label = "🟢 Bajo"
			}
		}

		criticalJoined := "Ninguno"
		if len(s.CriticalPosIDs) > 0 {
			criticalJoined = strings.Join(s.CriticalPosIDs, ", ")
		}

		rows = append(rows, ownerRow{
			OwnerID:        s.OwnerID,
			Company:        s.OwnerCompany,
			RiskLabel:      label,
			Color:          color,
			AvgScore:       fmt.Sprintf("%.2f", s.AverageScore),
			PosCount:       s.PosCount,
			UrgentCount:    s.CountByTier[models.RiskTierUrgent],
			ModerateCount:  s.CountByTier[models.RiskTierModerate],
			LowCount:       s.CountByTier[models.RiskTierLow],
			CriticalPosIDs: s.CriticalPosIDs,
			CriticalJoined: criticalJoined,
		})
	}
	return rows
}

// ownerRiskLabel buckets an owner's average score with the same floors the
// per-POS tiers use.
func ownerRiskLabel(avgScore float64) (string, string) {
	switch {
	case avgScore >= 0.8:
		return "Alto", tierColors[models.RiskTierUrgent]
	case avgScore >= 0.6:
		return "Moderado", tierColors[models.RiskTierModerate]
	default:
		return "Bajo", tierColors[models.RiskTierLow]
	}
}

func bar(symbol string, value, scale float64) string {
	if value <= 0 {
		return ""
	}
	length := int(value * scale)
	if length < 1 {
		length = 1
	}
	return strings.Repeat(symbol, length)
}
