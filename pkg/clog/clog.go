package clog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// ContextLogger keeps the manager log plus one log per context. A context is
// normally a job step writing its own log file in the step's work directory.
// Warnings and errors logged in a context are copied to the manager log.
type ContextLogger struct {
	GlobalLogger *log.Logger

	mu       sync.RWMutex
	contexts map[string]*contextLog
}

type contextLog struct {
	logger  *log.Logger
	handler *Handler
}

const GlobalLoggerCtx = "global"

func NewContextLogger(globalLoggerWriter io.WriteCloser) *ContextLogger {
	return &ContextLogger{
		GlobalLogger: &log.Logger{
			Handler: NewHandler(globalLoggerWriter),
			Level:   log.InfoLevel,
		},
		contexts: make(map[string]*contextLog),
	}
}

// JobContext is the logging context name for a job step.
func JobContext(job, step int) string {
	return fmt.Sprintf("job-%d-step-%d", job, step)
}

// JobLogFileName is the log file a job step writes into its work directory.
func JobLogFileName(job, step int) string {
	return fmt.Sprintf("Job%d_Step%d.log", job, step)
}

// AddLoggingContext registers ctx writing to w. An existing context with the
// same name is closed first.
func (l *ContextLogger) AddLoggingContext(ctx string, w io.WriteCloser) {
	handler := NewHandler(w)
	cl := &contextLog{
		handler: handler,
		logger: &log.Logger{
			Handler: &escalatingHandler{local: handler, global: l.GlobalLogger},
			Level:   log.InfoLevel,
		},
	}

	l.mu.Lock()
	previous := l.contexts[ctx]
	l.contexts[ctx] = cl
	l.mu.Unlock()

	if previous != nil {
		previous.handler.Close()
	}
}

// AddJobLog creates the log file for a job step in dir and registers a context
// for it. It returns the context name.
func (l *ContextLogger) AddJobLog(dir string, job, step int) (string, error) {
	path := filepath.Join(dir, JobLogFileName(job, step))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", errors.Wrapf(err, "unable to open job log %s", path)
	}

	ctx := JobContext(job, step)
	l.AddLoggingContext(ctx, f)

	return ctx, nil
}

// RemoveLoggingContext closes the context's output.
func (l *ContextLogger) RemoveLoggingContext(ctx string) {
	l.mu.Lock()
	cl, ok := l.contexts[ctx]
	delete(l.contexts, ctx)
	l.mu.Unlock()

	if ok {
		cl.handler.Close()
	}
}

func (l *ContextLogger) SetLevel(ctx string, level log.Level) {
	if ctx == GlobalLoggerCtx {
		l.GlobalLogger.Level = level
		return
	}

	if cl := l.lookup(ctx); cl != nil {
		cl.logger.Level = level
	}
}

func (l *ContextLogger) SetLevelFromString(ctx, s string) error {
	level, err := log.ParseLevel(s)
	if err != nil {
		return err
	}

	l.SetLevel(ctx, level)

	return nil
}

func (l *ContextLogger) SetOutput(ctx string, w io.WriteCloser) error {
	if ctx == GlobalLoggerCtx {
		h, ok := l.GlobalLogger.Handler.(*Handler)
		if !ok {
			return errors.New("manager log has no settable output")
		}

		h.SetOutput(w)
		return nil
	}

	cl := l.lookup(ctx)
	if cl == nil {
		return errors.Errorf("no such logging context %s", ctx)
	}

	cl.handler.SetOutput(w)

	return nil
}

// UsingCtx returns an entry for ctx. Unknown contexts log to the manager log.
func (l *ContextLogger) UsingCtx(ctx string) *log.Entry {
	if cl := l.lookup(ctx); cl != nil {
		return cl.logger.WithField("ctx", ctx)
	}

	return l.GlobalLogger.WithField("ctx", ctx)
}

func (l *ContextLogger) Global() *log.Entry {
	return l.UsingCtx(GlobalLoggerCtx)
}

func (l *ContextLogger) lookup(ctx string) *contextLog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.contexts[ctx]
}

// escalatingHandler writes every entry locally and warnings and errors to the
// manager log as well.
type escalatingHandler struct {
	local  log.Handler
	global *log.Logger
}

func (h *escalatingHandler) HandleLog(e *log.Entry) error {
	err := h.local.HandleLog(e)

	if e.Level >= log.WarnLevel && e.Level >= h.global.Level {
		if gerr := h.global.Handler.HandleLog(e); err == nil {
			err = gerr
		}
	}

	return err
}
