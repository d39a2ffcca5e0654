package run

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/r2flows/churn-agent/config"
	"github.com/r2flows/churn-agent/internal/repositories/assessment"
	"github.com/r2flows/churn-agent/internal/repositories/ownersummary"
	"github.com/r2flows/churn-agent/internal/repositories/run"
	"github.com/r2flows/churn-agent/pkg/models"
	"github.com/r2flows/churn-agent/pkg/redis"
)

var validate = validator.New()

// Register registers scoring run routes
func Register(g *echo.Group) {
	g.POST("", EnqueueRun)
	g.GET("", ListRuns)
	g.GET("/:id", GetRun)
	g.GET("/:id/assessments", ListRunAssessments)
	g.GET("/:id/owners", ListRunOwners)
	g.GET("/:id/owners/:ownerId", GetRunOwner)
}

// EnqueueRunRequest is the request body for triggering a scoring pass
type EnqueueRunRequest struct {
	RequestedBy string `json:"requested_by" validate:"omitempty,max=120"`
}

// EnqueueRunResponse acknowledges a queued scoring pass
type EnqueueRunResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// EnqueueRun queues a scoring pass. The scheduler picks the request up off the
// run stream, so the pass serializes with scheduled ones instead of racing them.
func EnqueueRun(c echo.Context) error {
	ctx := c.Request().Context()

	var req EnqueueRunRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, cfg, err := ectoinject.GetContext[*config.Config](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	ctx, streams, err := ectoinject.GetContext[*redis.Streams](ctx)
	if err != nil || streams == nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "manual runs require redis")
	}

	message := &redis.RunRequestMessage{
		Trigger:     models.RunTriggerAPI,
		RequestedBy: req.RequestedBy,
	}
	if _, err := streams.Publish(ctx, cfg.RedisStreamsRunQueue, message); err != nil {
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"request_id":   message.ID,
			"requested_by": req.RequestedBy,
		}).Info("Queued scoring run request")
	}

	return c.JSON(http.StatusAccepted, EnqueueRunResponse{
		RequestID: message.ID,
		Status:    "queued",
	})
}

// ListRuns lists scoring runs, newest first
func ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	ctx, repo, err := ectoinject.GetContext[*run.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	runs, totalCount, err := repo.List(ctx, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ScoringRunListResponse{
		Items:      runs,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// GetRun gets a scoring run by ID
func GetRun(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*run.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	scoringRun, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, scoringRun)
}

// ListRunAssessments lists the assessments of a run ordered by descending risk
func ListRunAssessments(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 100
	}

	ctx, repo, err := ectoinject.GetContext[*assessment.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	assessments, totalCount, err := repo.ListByRun(ctx, id, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.RiskAssessmentListResponse{
		RunID:      id,
		Items:      assessments,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// ListRunOwners lists the owner summaries of a run, critical owners first
func ListRunOwners(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*ownersummary.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	summaries, err := repo.ListByRun(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OwnerSummaryListResponse{
		RunID:      id,
		Items:      summaries,
		TotalCount: len(summaries),
	})
}

// GetRunOwner gets one owner summary of a run
func GetRunOwner(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")
	ownerID := c.Param("ownerId")

	ctx, repo, err := ectoinject.GetContext[*ownersummary.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	summary, err := repo.GetByRunAndOwner(ctx, id, ownerID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, summary)
}
