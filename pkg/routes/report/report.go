package report

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/r2flows/churn-agent/internal/repositories/assessment"
	"github.com/r2flows/churn-agent/internal/repositories/ownersummary"
	"github.com/r2flows/churn-agent/internal/repositories/run"
	"github.com/r2flows/churn-agent/pkg/metrics"
	"github.com/r2flows/churn-agent/pkg/models"
	"github.com/r2flows/churn-agent/pkg/reports"
	"github.com/r2flows/churn-agent/pkg/tracing"
)

// Register registers report routes
func Register(g *echo.Group) {
	g.GET("/:kind", GetReport)
}

// GetReport renders a report from the latest completed run. kind selects the
// format (html, markdown, ascii); view=owners switches to the owner rollup.
func GetReport(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "report_handler.GetReport")
	defer span.End()

	kind := c.Param("kind")
	view := c.QueryParam("view")
	if view == "" {
		view = "pos"
	}

	ctx, runs, err := ectoinject.GetContext[*run.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	latest, err := runs.LatestCompleted(ctx)
	if err != nil {
		return err
	}

	ctx, generator, err := ectoinject.GetContext[*reports.Generator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	switch view {
	case "pos":
		return renderPosReport(c, ctx, generator, latest, kind)
	case "owners":
		return renderOwnerReport(c, ctx, generator, latest, kind)
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "view must be pos or owners")
	}
}

func renderPosReport(c echo.Context, ctx context.Context, generator *reports.Generator, latest *models.ScoringRun, kind string) error {
	ctx, repo, err := ectoinject.GetContext[*assessment.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	assessments, _, err := repo.ListByRun(ctx, latest.ID, 1, 1000)
	if err != nil {
		return err
	}

	switch kind {
	case "html":
		out, err := generator.RenderPosHTML(ctx, assessments, nil)
		if err != nil {
			return err
		}
		metrics.RecordReportRender("html")
		return c.HTML(http.StatusOK, out)
	case "markdown":
		out, err := generator.RenderPosMarkdown(ctx, assessments, nil)
		if err != nil {
			return err
		}
		metrics.RecordReportRender("markdown")
		return c.Blob(http.StatusOK, "text/markdown; charset=UTF-8", []byte(out))
	case "ascii":
		out := generator.RenderASCIIChart(ctx, assessments, nil)
		metrics.RecordReportRender("ascii_chart")
		return c.String(http.StatusOK, out)
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "kind must be html, markdown, or ascii")
	}
}

func renderOwnerReport(c echo.Context, ctx context.Context, generator *reports.Generator, latest *models.ScoringRun, kind string) error {
	ctx, repo, err := ectoinject.GetContext[*ownersummary.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	summaries, err := repo.ListByRun(ctx, latest.ID)
	if err != nil {
		return err
	}

	switch kind {
	case "html":
		out, err := generator.RenderOwnerHTML(ctx, summaries)
		if err != nil {
			return err
		}
		metrics.RecordReportRender("owner_html")
		return c.HTML(http.StatusOK, out)
	case "markdown":
		out, err := generator.RenderOwnerMarkdown(ctx, summaries)
		if err != nil {
			return err
		}
		metrics.RecordReportRender("owner_markdown")
		return c.Blob(http.StatusOK, "text/markdown; charset=UTF-8", []byte(out))
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "kind must be html or markdown for the owners view")
	}
}
