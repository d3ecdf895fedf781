package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/attendance"
)

type attendanceApi struct {
	svc *attendance.Service
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *attendance.Service) {
	api := attendanceApi{svc: svc}

	ag := g.Group("/attendance", jwt, centerMiddleware())
	ag.GET("", api.query)
	ag.POST("", api.mark)
	ag.POST("/bulk", api.bulkMark)
	ag.POST("/refresh", api.refresh)
	ag.GET("/historical", api.historical)
}

// Handlers

func (api *attendanceApi) mark(ctx echo.Context) error {
	var data MarkRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkRequest")
	}
	in, err := data.Validate()
	if err != nil {
		return err
	}

	rec, err := api.svc.Mark(ctx.Request().Context(), getContextCenterID(ctx), in)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) bulkMark(ctx echo.Context) error {
	var data BulkMarkRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkMarkRequest")
	}
	ins, err := data.Validate()
	if err != nil {
		return err
	}

	if err := api.svc.BulkMark(ctx.Request().Context(), getContextCenterID(ctx), ins); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "attendance records saved"})
}

func (api *attendanceApi) query(ctx echo.Context) error {
	var data QueryRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QueryRequest")
	}
	filter, err := data.Validate()
	if err != nil {
		return err
	}

	recs, err := api.svc.Query(ctx.Request().Context(), getContextCenterID(ctx), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, recs)
}

// refresh flags the center's cached scope stale; the next query will hit the
// store. Marks never force a refetch on their own.
func (api *attendanceApi) refresh(ctx echo.Context) error {
	api.svc.Refresh(getContextCenterID(ctx))
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "refresh scheduled"})
}

func (api *attendanceApi) historical(ctx echo.Context) error {
	var data HistoricalRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to HistoricalRequest")
	}
	start, end, err := data.Validate()
	if err != nil {
		return err
	}

	recs, err := api.svc.Historical(ctx.Request().Context(), getContextCenterID(ctx), start, end)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, recs)
}
