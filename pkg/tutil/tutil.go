package tutil

import (
	"os"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/spf13/afero"
)

// IsIntegrationTest is true when DSSTAGE_TEST=integration. Tests that need a
// real MySQL server or network shares check this and skip otherwise.
func IsIntegrationTest() bool {
	testType := os.Getenv("DSSTAGE_TEST")
	return strings.ToLower(testType) == "integration"
}

// NewMemoryLogger returns a debug level logger whose entries can be inspected.
func NewMemoryLogger() (*log.Logger, *memory.Handler) {
	h := memory.New()
	return &log.Logger{Handler: h, Level: log.DebugLevel}, h
}

// EntriesAtLevel returns the messages logged at exactly level.
func EntriesAtLevel(h *memory.Handler, level log.Level) []string {
	var msgs []string
	for _, e := range h.Entries {
		if e.Level == level {
			msgs = append(msgs, e.Message)
		}
	}

	return msgs
}

// CountingFs wraps an afero.Fs and counts Stat calls per path. OnStat, when
// set, runs before the wrapped Stat so a test can change the filesystem
// between probes.
type CountingFs struct {
	afero.Fs

	mu     sync.Mutex
	stats  map[string]int
	OnStat func(name string, count int)
}

func NewCountingFs(fs afero.Fs) *CountingFs {
	return &CountingFs{Fs: fs, stats: make(map[string]int)}
}

func (f *CountingFs) Stat(name string) (os.FileInfo, error) {
	f.mu.Lock()
	f.stats[name]++
	count := f.stats[name]
	f.mu.Unlock()

	if f.OnStat != nil {
		f.OnStat(name, count)
	}

	return f.Fs.Stat(name)
}

func (f *CountingFs) StatCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats[name]
}

// FlakyRemoveFs fails Remove for a path a fixed number of times before
// letting it through.
type FlakyRemoveFs struct {
	afero.Fs

	mu       sync.Mutex
	failures map[string]int
}

func NewFlakyRemoveFs(fs afero.Fs, failures map[string]int) *FlakyRemoveFs {
	return &FlakyRemoveFs{Fs: fs, failures: failures}
}

func (f *FlakyRemoveFs) Remove(name string) error {
	f.mu.Lock()
	if f.failures[name] > 0 {
		f.failures[name]--
		f.mu.Unlock()
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrPermission}
	}
	f.mu.Unlock()

	return f.Fs.Remove(name)
}
