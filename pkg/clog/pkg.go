package clog

import (
	"os"

	"github.com/apex/log"
)

var clogger = NewContextLogger(os.Stdout)

func AddJobLog(dir string, job, step int) (string, error) {
	return clogger.AddJobLog(dir, job, step)
}

func RemoveLoggingContext(ctx string) {
	clogger.RemoveLoggingContext(ctx)
}

func SetLevelFromString(ctx, s string) error {
	return clogger.SetLevelFromString(ctx, s)
}

func UsingCtx(ctx string) *log.Entry {
	return clogger.UsingCtx(ctx)
}

func Global() *log.Entry {
	return clogger.Global()
}
