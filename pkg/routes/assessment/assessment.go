package assessment

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/r2flows/churn-agent/internal/repositories/assessment"
	"github.com/r2flows/churn-agent/internal/repositories/run"
	"github.com/r2flows/churn-agent/pkg/models"
)

// Register registers assessment read routes
func Register(g *echo.Group) {
	g.GET("/assessments/latest", ListLatestAssessments)
	g.GET("/pos/:posId/assessment", GetLatestPosAssessment)
}

// ListLatestAssessments lists the assessments of the latest completed run,
// ordered by descending risk
func ListLatestAssessments(c echo.Context) error {
	ctx := c.Request().Context()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 100
	}

	ctx, runs, err := ectoinject.GetContext[*run.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	latest, err := runs.LatestCompleted(ctx)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*assessment.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	assessments, totalCount, err := repo.ListByRun(ctx, latest.ID, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.RiskAssessmentListResponse{
		RunID:      latest.ID,
		Items:      assessments,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// GetLatestPosAssessment gets one POS's assessment from the latest completed run
func GetLatestPosAssessment(c echo.Context) error {
	ctx := c.Request().Context()

	posID := c.Param("posId")

	ctx, runs, err := ectoinject.GetContext[*run.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	latest, err := runs.LatestCompleted(ctx)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*assessment.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	posAssessment, err := repo.GetByRunAndPos(ctx, latest.ID, posID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, posAssessment)
}
