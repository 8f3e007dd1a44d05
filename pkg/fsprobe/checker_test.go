package fsprobe

import (
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/materials-commons/dsstage/pkg/tutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		policy   RetryPolicy
		target   Target
		attempts int
		holdoff  int
	}{
		{name: "zero attempts becomes one", policy: RetryPolicy{MaxAttempts: 0, HoldoffSeconds: 3}, target: TargetFile, attempts: 1, holdoff: 3},
		{name: "negative attempts becomes one", policy: RetryPolicy{MaxAttempts: -4, HoldoffSeconds: 3}, target: TargetFile, attempts: 1, holdoff: 3},
		{name: "attempts clamped to ten", policy: RetryPolicy{MaxAttempts: 50, HoldoffSeconds: 3}, target: TargetFile, attempts: 10, holdoff: 3},
		{name: "directory default holdoff", policy: RetryPolicy{MaxAttempts: 2}, target: TargetDirectory, attempts: 2, holdoff: 5},
		{name: "file default holdoff", policy: RetryPolicy{MaxAttempts: 2, HoldoffSeconds: -1}, target: TargetFile, attempts: 2, holdoff: 15},
		{name: "holdoff clamped to 600", policy: RetryPolicy{MaxAttempts: 2, HoldoffSeconds: 9000}, target: TargetDirectory, attempts: 2, holdoff: 600},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := test.policy.Normalize(test.target)
			require.Equal(t, test.attempts, p.MaxAttempts)
			require.Equal(t, test.holdoff, p.HoldoffSeconds)
		})
	}
}

func TestChecker_RetryExhaustion(t *testing.T) {
	cfs := tutil.NewCountingFs(afero.NewMemMapFs())
	var sleeps []time.Duration
	logger, h := tutil.NewMemoryLogger()
	c := NewChecker(cfs, WithLogger(logger), WithSleeper(func(d time.Duration) { sleeps = append(sleeps, d) }))

	found := c.DirectoryExists("/never/there", RetryPolicy{MaxAttempts: 3, HoldoffSeconds: 0, LogOnFailure: true})
	require.False(t, found)
	require.Equal(t, 3, cfs.StatCount("/never/there"))

	// No sleep after the final attempt, and holdoff 0 maps to the directory default.
	require.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleeps)

	// Only the final failure is logged at the default debug level.
	require.Len(t, tutil.EntriesAtLevel(h, log.WarnLevel), 1)
}

func TestChecker_AppearsOnSecondAttempt(t *testing.T) {
	memfs := afero.NewMemMapFs()
	cfs := tutil.NewCountingFs(memfs)
	cfs.OnStat = func(name string, count int) {
		if name == "/late/dir" && count == 2 {
			require.NoError(t, memfs.MkdirAll("/late/dir", 0755))
		}
	}

	c := NewChecker(cfs, WithSleeper(func(time.Duration) {}))
	require.True(t, c.DirectoryExists("/late/dir", RetryPolicy{MaxAttempts: 3}))
	require.Equal(t, 2, cfs.StatCount("/late/dir"))
}

func TestChecker_FileVersusDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data/ds1", 0755))
	require.NoError(t, afero.WriteFile(fs, "/data/ds1/ds1.raw", []byte("raw"), 0644))

	c := NewChecker(fs, WithSleeper(func(time.Duration) {}))

	tests := []struct {
		name     string
		target   Target
		path     string
		expected bool
	}{
		{name: "dir exists", target: TargetDirectory, path: "/data/ds1", expected: true},
		{name: "file is not a dir", target: TargetDirectory, path: "/data/ds1/ds1.raw", expected: false},
		{name: "file exists", target: TargetFile, path: "/data/ds1/ds1.raw", expected: true},
		{name: "dir is not a file", target: TargetFile, path: "/data/ds1", expected: false},
		{name: "empty path", target: TargetFile, path: "", expected: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, c.exists(test.target, test.path, SingleAttempt(false)))
		})
	}
}

func TestChecker_VerboseLogsEveryAttempt(t *testing.T) {
	logger, h := tutil.NewMemoryLogger()
	c := NewChecker(afero.NewMemMapFs(), WithLogger(logger), WithDebugLevel(2), WithSleeper(func(time.Duration) {}))

	require.False(t, c.FileExists("/missing.txt", RetryPolicy{MaxAttempts: 3, HoldoffSeconds: 1, LogOnFailure: true}))
	require.Len(t, tutil.EntriesAtLevel(h, log.WarnLevel), 3)
}
