package cmd

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/afero"

	"github.com/materials-commons/dsstage/pkg/clog"
	"github.com/materials-commons/dsstage/pkg/mcdb/stor"
	"github.com/materials-commons/dsstage/pkg/status"
	"github.com/materials-commons/dsstage/pkg/status/webapi"
)

type RouteDependencies struct {
	e          *echo.Echo
	fs         afero.Fs
	stors      *stor.Stors
	reporter   *status.Reporter
	logHandler *clog.Handler
	managerDir string
}

func setupRoutes(deps RouteDependencies) {
	deps.e.Use(middleware.Recover())
	g := deps.e.Group("/api")

	logController := webapi.NewLogController(deps.fs, nil, deps.logHandler)
	g.POST("/set-logging-level", logController.SetLogLevel)
	g.POST("/set-logging-output", logController.SetLogOutput)
	g.POST("/set-logging", logController.SetLogging)
	g.GET("/show-logging", logController.ShowCurrentLogging)

	statusController := webapi.NewStatusController(deps.reporter, deps.stors.TaskStatusStor, deps.fs, deps.managerDir)
	g.GET("/status", statusController.ShowCurrentStatus)
	g.GET("/statuses", statusController.IndexTaskStatuses)
	g.GET("/statuses/:manager", statusController.GetTaskStatusForManager)
	g.POST("/abort", statusController.RequestAbort)
}
