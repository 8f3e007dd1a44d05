package webapi

import (
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/materials-commons/dsstage/pkg/mcdb/stor"
	"github.com/materials-commons/dsstage/pkg/status"
)

type StatusController struct {
	reporter       *status.Reporter
	taskStatusStor stor.TaskStatusStor
	fs             afero.Fs
	managerDir     string
}

// NewStatusController serves the status of reporter's manager and of every
// manager recorded in taskStatusStor. Abort requests create the abort file in
// managerDir.
func NewStatusController(reporter *status.Reporter, taskStatusStor stor.TaskStatusStor, fs afero.Fs, managerDir string) *StatusController {
	return &StatusController{
		reporter:       reporter,
		taskStatusStor: taskStatusStor,
		fs:             fs,
		managerDir:     managerDir,
	}
}

func (c *StatusController) ShowCurrentStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.reporter.Current())
}

func (c *StatusController) IndexTaskStatuses(ctx echo.Context) error {
	statuses, err := c.taskStatusStor.ListTaskStatuses()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ctx.JSON(http.StatusOK, statuses)
}

func (c *StatusController) GetTaskStatusForManager(ctx echo.Context) error {
	ts, err := c.taskStatusStor.GetTaskStatusByManager(ctx.Param("manager"))
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "no status for manager "+ctx.Param("manager"))
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ctx.JSON(http.StatusOK, ts)
}

// RequestAbort asks the manager to stop before its next job step.
func (c *StatusController) RequestAbort(ctx echo.Context) error {
	path := filepath.Join(c.managerDir, status.AbortProcessingFileName)
	if err := afero.WriteFile(c.fs, path, []byte("Abort requested\n"), 0644); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ctx.JSON(http.StatusOK, map[string]bool{"abort_requested": status.CheckForAbortProcessingFile(c.fs, c.managerDir)})
}
