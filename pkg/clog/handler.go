package clog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// Handler writes one text line per entry: level, local timestamp, message and
// the entry fields sorted by name.
type Handler struct {
	mu     sync.Mutex
	Writer io.WriteCloser
	now    func() time.Time
}

var levelToStrings = [...]string{
	log.DebugLevel: "DEBUG",
	log.InfoLevel:  "INFO",
	log.WarnLevel:  "WARN",
	log.ErrorLevel: "ERROR",
	log.FatalLevel: "FATAL",
}

func NewHandler(w io.WriteCloser) *Handler {
	return &Handler{Writer: w, now: time.Now}
}

// NewHandlerWithClock is NewHandler with a fixed time source.
func NewHandlerWithClock(w io.WriteCloser, now func() time.Time) *Handler {
	return &Handler{Writer: w, now: now}
}

func (h *Handler) SetOutput(w io.WriteCloser) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closeWriter()
	h.Writer = w
}

func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closeWriter()
}

func (h *Handler) closeWriter() {
	if h.Writer == nil || h.Writer == os.Stdout || h.Writer == os.Stderr {
		return
	}

	_ = h.Writer.Close()
}

func (h *Handler) HandleLog(e *log.Entry) error {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%5s %s ", levelToStrings[e.Level], h.now().Format(time.DateTime)))

	names := e.Fields.Names()
	if len(names) == 0 {
		b.WriteString(e.Message)
	} else {
		b.WriteString(fmt.Sprintf("%-25s", e.Message))
	}

	for _, name := range names {
		b.WriteString(fmt.Sprintf(" %s=%v", name, e.Fields.Get(name)))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.Writer, b.String())

	return err
}
