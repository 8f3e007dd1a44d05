package webapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/materials-commons/dsstage/pkg/clog"
	"github.com/materials-commons/dsstage/pkg/mcdb/mcmodel"
	"github.com/materials-commons/dsstage/pkg/mcdb/stor"
	"github.com/materials-commons/dsstage/pkg/status"
)

func newRequest(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func requireHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, code, httpErr.Code)
}

func TestLogController(t *testing.T) {
	e := echo.New()
	fs := afero.NewMemMapFs()
	logger := &log.Logger{Level: log.InfoLevel}
	handler := clog.NewHandlerWithClock(os.Stdout, func() time.Time {
		return time.Date(2023, 11, 2, 14, 5, 0, 0, time.Local)
	})
	c := NewLogController(fs, logger, handler)

	ctx, rec := newRequest(e, http.MethodGet, "/api/show-logging", "")
	require.NoError(t, c.ShowCurrentLogging(ctx))
	require.JSONEq(t, `{"current_log_level":"info","current_log_file":"stdout"}`, rec.Body.String())

	ctx, _ = newRequest(e, http.MethodPost, "/api/set-logging-output", `{"log_output":"/logs/dsstaged.log"}`)
	require.NoError(t, c.SetLogOutput(ctx))
	logger.Info("Staging ds1")
	logger.Debug("not written")

	contents, err := afero.ReadFile(fs, "/logs/dsstaged.log")
	require.NoError(t, err)
	require.Equal(t, " INFO 2023-11-02 14:05:00 Staging ds1\n", string(contents))

	ctx, rec = newRequest(e, http.MethodPost, "/api/set-logging-level", `{"log_level":"debug"}`)
	require.NoError(t, c.SetLogLevel(ctx))
	require.Equal(t, log.DebugLevel, logger.Level)
	require.Contains(t, rec.Body.String(), `"current_log_file":"/logs/dsstaged.log"`)

	ctx, _ = newRequest(e, http.MethodPost, "/api/set-logging-level", `{"log_level":"loud"}`)
	requireHTTPError(t, c.SetLogLevel(ctx), http.StatusBadRequest)
	require.Equal(t, log.DebugLevel, logger.Level)
}

func TestLogController_SetLoggingIsAllOrNothing(t *testing.T) {
	e := echo.New()
	logger := &log.Logger{Level: log.InfoLevel}
	c := NewLogController(afero.NewReadOnlyFs(afero.NewMemMapFs()), logger, clog.NewHandler(os.Stdout))

	ctx, _ := newRequest(e, http.MethodPost, "/api/set-logging", `{"log_level":"warn","log_output":"/logs/dsstaged.log"}`)
	requireHTTPError(t, c.SetLogging(ctx), http.StatusBadRequest)
	require.Equal(t, log.InfoLevel, logger.Level)
	require.Equal(t, "info", c.CurrentLogLevel)
	require.Equal(t, "stdout", c.CurrentLogFile)

	ctx, _ = newRequest(e, http.MethodPost, "/api/set-logging", `{"log_level":"warn","log_output":"stderr"}`)
	require.NoError(t, c.SetLogging(ctx))
	require.Equal(t, log.WarnLevel, logger.Level)
	require.Equal(t, "stderr", c.CurrentLogFile)
}

func TestStatusController(t *testing.T) {
	e := echo.New()
	fs := afero.NewMemMapFs()
	taskStatusStor := stor.NewInMemoryTaskStatusStor()
	reporter := status.NewReporter("Pub-12-1", taskStatusStor)
	c := NewStatusController(reporter, taskStatusStor, fs, "/manager")

	require.NoError(t, reporter.StartTask(2105, 3, "MASIC_Finnigan", "ds1"))
	_, err := taskStatusStor.UpsertTaskStatus(&mcmodel.TaskStatus{ManagerName: "Pub-10-2", State: mcmodel.TaskStateIdle})
	require.NoError(t, err)

	t.Run("current", func(t *testing.T) {
		ctx, rec := newRequest(e, http.MethodGet, "/api/status", "")
		require.NoError(t, c.ShowCurrentStatus(ctx))

		var ts mcmodel.TaskStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ts))
		require.Equal(t, "Pub-12-1", ts.ManagerName)
		require.Equal(t, 2105, ts.Job)
		require.Equal(t, mcmodel.TaskStateRunning, ts.State)
	})

	t.Run("index", func(t *testing.T) {
		ctx, rec := newRequest(e, http.MethodGet, "/api/statuses", "")
		require.NoError(t, c.IndexTaskStatuses(ctx))

		var statuses []mcmodel.TaskStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
		require.Len(t, statuses, 2)
		require.Equal(t, "Pub-10-2", statuses[0].ManagerName)
	})

	t.Run("by manager", func(t *testing.T) {
		tests := []struct {
			manager string
			code    int
		}{
			{manager: "Pub-12-1", code: http.StatusOK},
			{manager: "Pub-99-1", code: http.StatusNotFound},
		}

		for _, test := range tests {
			t.Run(test.manager, func(t *testing.T) {
				ctx, rec := newRequest(e, http.MethodGet, "/api/statuses/"+test.manager, "")
				ctx.SetParamNames("manager")
				ctx.SetParamValues(test.manager)

				err := c.GetTaskStatusForManager(ctx)
				if test.code == http.StatusOK {
					require.NoError(t, err)
					require.Equal(t, http.StatusOK, rec.Code)
					return
				}

				requireHTTPError(t, err, test.code)
			})
		}
	})

	t.Run("abort", func(t *testing.T) {
		require.False(t, status.CheckForAbortProcessingFile(fs, "/manager"))

		ctx, rec := newRequest(e, http.MethodPost, "/api/abort", "")
		require.NoError(t, c.RequestAbort(ctx))
		require.JSONEq(t, `{"abort_requested":true}`, rec.Body.String())
		require.True(t, status.CheckForAbortProcessingFile(fs, "/manager"))
	})
}
