// Package fsprobe implements existence checks with retry and backoff against
// storage that may be slow or briefly unavailable, plus a queue for deleting
// files whose handles have not been released yet.
package fsprobe

import (
	"os"
	"time"

	"github.com/apex/log"
	"github.com/spf13/afero"
)

// Checker probes for files and directories, retrying according to a
// RetryPolicy. It is not safe to change its options concurrently with a probe.
type Checker struct {
	fs         afero.Fs
	log        log.Interface
	debugLevel int
	sleep      func(time.Duration)
}

type CheckerOptionFN func(*Checker)

func NewChecker(fs afero.Fs, optFNs ...CheckerOptionFN) *Checker {
	c := &Checker{
		fs:    fs,
		log:   log.Log,
		sleep: time.Sleep,
	}

	for _, optfn := range optFNs {
		optfn(c)
	}

	return c
}

func WithLogger(l log.Interface) CheckerOptionFN {
	return func(c *Checker) {
		c.log = l
	}
}

// WithDebugLevel sets the verbosity. At 2 and above every failed attempt is
// logged, not just the final one.
func WithDebugLevel(level int) CheckerOptionFN {
	return func(c *Checker) {
		c.debugLevel = level
	}
}

// WithSleeper replaces time.Sleep. Tests use this to avoid real backoff.
func WithSleeper(sleep func(time.Duration)) CheckerOptionFN {
	return func(c *Checker) {
		c.sleep = sleep
	}
}

func (c *Checker) Fs() afero.Fs {
	return c.fs
}

func (c *Checker) DirectoryExists(path string, policy RetryPolicy) bool {
	return c.exists(TargetDirectory, path, policy)
}

func (c *Checker) FileExists(path string, policy RetryPolicy) bool {
	return c.exists(TargetFile, path, policy)
}

func (c *Checker) exists(target Target, path string, policy RetryPolicy) bool {
	policy = policy.Normalize(target)

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		found, err := c.probe(target, path)
		if found {
			return true
		}

		if attempt == policy.MaxAttempts {
			if policy.LogOnFailure {
				c.logFailure(target, path, attempt, policy, err)
			}
			break
		}

		if policy.LogOnFailure && c.debugLevel >= 2 {
			c.log.WithField("path", path).
				WithField("attempt", attempt).
				Warnf("%s not found, waiting %d seconds before retrying", target, policy.HoldoffSeconds)
		}

		c.sleep(policy.Holdoff())
	}

	return false
}

func (c *Checker) logFailure(target Target, path string, attempts int, policy RetryPolicy, err error) {
	entry := c.log.WithField("path", path)
	if err != nil && !os.IsNotExist(err) {
		entry = entry.WithError(err)
	}

	if policy.MaxAttempts == 1 {
		entry.Warnf("%s not found", target)
		return
	}

	entry.Warnf("%s not found after %d attempts", target, attempts)
}

func (c *Checker) probe(target Target, path string) (bool, error) {
	if path == "" {
		return false, nil
	}

	fi, err := c.fs.Stat(path)
	if err != nil {
		return false, err
	}

	if target == TargetDirectory {
		return fi.IsDir(), nil
	}

	return !fi.IsDir(), nil
}
