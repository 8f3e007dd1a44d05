package fsprobe

import "time"

// Target selects the kind of filesystem entry a probe looks for. The kind only
// changes the default holdoff and the probe itself.
type Target int

const (
	TargetDirectory Target = iota
	TargetFile
)

func (t Target) String() string {
	if t == TargetDirectory {
		return "directory"
	}

	return "file"
}

const (
	MaxAttemptsLimit = 10

	MaxHoldoffSeconds = 600

	DefaultDirectoryHoldoffSeconds = 5
	DefaultFileHoldoffSeconds      = 15
)

// RetryPolicy controls how many times an existence check runs and how long to
// wait between attempts. Always call Normalize before using the values.
type RetryPolicy struct {
	MaxAttempts    int
	HoldoffSeconds int
	LogOnFailure   bool
}

// SingleAttempt is a policy that probes exactly once.
func SingleAttempt(logOnFailure bool) RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, LogOnFailure: logOnFailure}
}

// Normalize clamps MaxAttempts to [1,10] and HoldoffSeconds to [1,600]. A
// non-positive holdoff is replaced with the default for the target.
func (p RetryPolicy) Normalize(target Target) RetryPolicy {
	switch {
	case p.MaxAttempts < 1:
		p.MaxAttempts = 1
	case p.MaxAttempts > MaxAttemptsLimit:
		p.MaxAttempts = MaxAttemptsLimit
	}

	switch {
	case p.HoldoffSeconds <= 0 && target == TargetDirectory:
		p.HoldoffSeconds = DefaultDirectoryHoldoffSeconds
	case p.HoldoffSeconds <= 0:
		p.HoldoffSeconds = DefaultFileHoldoffSeconds
	case p.HoldoffSeconds > MaxHoldoffSeconds:
		p.HoldoffSeconds = MaxHoldoffSeconds
	}

	return p
}

func (p RetryPolicy) Holdoff() time.Duration {
	return time.Duration(p.HoldoffSeconds) * time.Second
}
