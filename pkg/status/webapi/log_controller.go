package webapi

import (
	"net/http"
	"os"
	"sync"

	"github.com/apex/log"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/materials-commons/dsstage/pkg/clog"
)

// LogController changes the level and destination of the process logger
// while the daemon runs.
type LogController struct {
	mu              sync.Mutex
	CurrentLogLevel string `json:"current_log_level"`
	CurrentLogFile  string `json:"current_log_file"`
	level           log.Level
	handler         *clog.Handler
	fs              afero.Fs
	logger          *log.Logger
}

// NewLogController takes over logger, writing through handler. When logger
// is nil the apex/log default logger is used.
func NewLogController(fs afero.Fs, logger *log.Logger, handler *clog.Handler) *LogController {
	if logger == nil {
		logger = log.Log.(*log.Logger)
	}

	logger.Handler = handler

	return &LogController{
		CurrentLogLevel: logger.Level.String(),
		CurrentLogFile:  "stdout",
		level:           logger.Level,
		handler:         handler,
		fs:              fs,
		logger:          logger,
	}
}

type logRequest struct {
	LogLevel  string `json:"log_level"`
	LogOutput string `json:"log_output"`
}

func (c *LogController) SetLogging(ctx echo.Context) error {
	var req logRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	oldLevel := c.level
	if err := c.setLoggingLevel(req.LogLevel); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := c.setLoggingOutput(req.LogOutput); err != nil {
		// Both changes or neither.
		c.applyLevel(oldLevel)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return ctx.JSON(http.StatusOK, c)
}

func (c *LogController) SetLogLevel(ctx echo.Context) error {
	var req logRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setLoggingLevel(req.LogLevel); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return ctx.JSON(http.StatusOK, c)
}

func (c *LogController) SetLogOutput(ctx echo.Context) error {
	var req logRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setLoggingOutput(req.LogOutput); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return ctx.JSON(http.StatusOK, c)
}

func (c *LogController) ShowCurrentLogging(ctx echo.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ctx.JSON(http.StatusOK, c)
}

func (c *LogController) setLoggingLevel(logLevel string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %s", logLevel)
	}

	c.applyLevel(level)

	return nil
}

func (c *LogController) applyLevel(level log.Level) {
	c.level = level
	c.CurrentLogLevel = level.String()
	c.logger.Level = level
}

func (c *LogController) setLoggingOutput(logOutput string) error {
	switch logOutput {
	case "stdout":
		c.handler.SetOutput(os.Stdout)
	case "stderr":
		c.handler.SetOutput(os.Stderr)
	case "":
		return errors.New("no log output given")
	default:
		f, err := c.fs.OpenFile(logOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrapf(err, "unable to open log output %s", logOutput)
		}

		c.handler.SetOutput(f)
	}

	c.CurrentLogFile = logOutput

	return nil
}
