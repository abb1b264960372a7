package echoapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/weeklog/core/progress"
)

type (
	logAPI struct {
		svc progress.Service
	}

	SubmitResponse struct {
		Entry   progress.LogEntry `json:"entry"`
		Warning string            `json:"warning,omitempty"`
	}
)

func registerLogAPI(g *echo.Group, jwt, sess echo.MiddlewareFunc, svc progress.Service) {
	api := logAPI{svc: svc}

	lg := g.Group("/logs", jwt, sess, passwordChangedMiddleware)
	lg.POST("", api.submit, studentMiddleware)
	lg.GET("", api.query)
	lg.GET("/summary", api.summary)
	lg.GET("/export", api.export, adminMiddleware)
}

func (api *logAPI) submit(ctx echo.Context) error {
	var data progress.NewLogEntry
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLogEntry")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	sub, err := api.svc.Submit(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "submitting log")
	}
	return ctx.JSON(http.StatusCreated, SubmitResponse{Entry: sub.Entry, Warning: sub.Warning})
}

func bindLogFilter(ctx echo.Context) (progress.QueryFilter, error) {
	var filter progress.QueryFilter
	err := ctx.Bind(&filter)
	return filter, errors.Wrap(err, "binding to QueryFilter")
}

func (api *logAPI) list(ctx echo.Context) ([]progress.LogEntry, error) {
	filter, err := bindLogFilter(ctx)
	if err != nil {
		return nil, err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return nil, err
	}

	logs, err := api.svc.Query(ctx.Request().Context(), usr, filter, bindOrdering(ctx, progress.OrderingFields...))
	return logs, errors.Wrap(err, "querying logs")
}

func (api *logAPI) query(ctx echo.Context) error {
	logs, err := api.list(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, logs)
}

func (api *logAPI) summary(ctx echo.Context) error {
	filter, err := bindLogFilter(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	sum, err := api.svc.Summary(ctx.Request().Context(), usr, filter)
	if err != nil {
		return errors.Wrap(err, "summarizing logs")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *logAPI) export(ctx echo.Context) error {
	logs, err := api.list(ctx)
	if err != nil {
		return err
	}

	fname := fmt.Sprintf("logs-%s.csv", time.Now().UTC().Format("20060102"))
	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	resp.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fname))
	resp.WriteHeader(http.StatusOK)
	return errors.Wrap(progress.WriteCSV(resp, logs), "writing csv")
}
