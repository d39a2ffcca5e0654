package owner

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/r2flows/churn-agent/internal/repositories/ownersummary"
	"github.com/r2flows/churn-agent/internal/repositories/run"
	"github.com/r2flows/churn-agent/pkg/models"
)

// Register registers owner summary read routes
func Register(g *echo.Group) {
	g.GET("/owners/latest", ListLatestOwnerSummaries)
}

// ListLatestOwnerSummaries lists the owner summaries of the latest completed
// run, critical owners first
func ListLatestOwnerSummaries(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, runs, err := ectoinject.GetContext[*run.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	latest, err := runs.LatestCompleted(ctx)
	if err != nil {
		return err
	}

	ctx, repo, err := ectoinject.GetContext[*ownersummary.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	summaries, err := repo.ListByRun(ctx, latest.ID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OwnerSummaryListResponse{
		RunID:      latest.ID,
		Items:      summaries,
		TotalCount: len(summaries),
	})
}
