package vendormix

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/r2flows/churn-agent/pkg/vendormix"
)

// Register registers vendor mix routes
func Register(g *echo.Group) {
	g.GET("/pos/:posId/vendor-mix", GetPosVendorMix)
	g.GET("/pos/:posId/vendor-mix/weekly", GetPosVendorMixWeekly)
	g.GET("/vendor-mix/totals", GetVendorMixTotals)
}

// GetPosVendorMix returns one POS's purchase share per vendor
func GetPosVendorMix(c echo.Context) error {
	ctx := c.Request().Context()

	posID := c.Param("posId")

	ctx, service, err := ectoinject.GetContext[*vendormix.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rows, err := service.Mix(ctx, posID)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []vendormix.MixRow{}
	}

	return c.JSON(http.StatusOK, rows)
}

// GetPosVendorMixWeekly returns one POS's purchase totals per vendor and week
func GetPosVendorMixWeekly(c echo.Context) error {
	ctx := c.Request().Context()

	posID := c.Param("posId")

	ctx, service, err := ectoinject.GetContext[*vendormix.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rows, err := service.Weekly(ctx, posID)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []vendormix.WeeklyRow{}
	}

	return c.JSON(http.StatusOK, rows)
}

// GetVendorMixTotals returns purchase totals for every POS and vendor pair
func GetVendorMixTotals(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, service, err := ectoinject.GetContext[*vendormix.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rows, err := service.Totals(ctx)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []vendormix.VendorTotal{}
	}

	return c.JSON(http.StatusOK, rows)
}
