package status

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/materials-commons/dsstage/pkg/filecopy"
	"github.com/materials-commons/dsstage/pkg/lock"
	"github.com/materials-commons/dsstage/pkg/mcdb/mcmodel"
	"github.com/materials-commons/dsstage/pkg/mcdb/stor"
)

// Reporter records the task status of one manager. Every change is written to
// the status store and, when a queue is configured, pushed to the broker.
type Reporter struct {
	managerName string
	stor        stor.TaskStatusStor
	queue       *MessageQueue
	locker      *lock.KeyLocker[string]
	log         log.Interface
	now         func() time.Time

	mu             sync.Mutex
	current        mcmodel.TaskStatus
	queueWaitStart time.Time
}

type ReporterOptionFN func(*Reporter)

func NewReporter(managerName string, taskStatusStor stor.TaskStatusStor, optFNs ...ReporterOptionFN) *Reporter {
	r := &Reporter{
		managerName: managerName,
		stor:        taskStatusStor,
		locker:      lock.NewKeyLocker[string](),
		log:         log.Log,
		now:         time.Now,
		current:     mcmodel.TaskStatus{ManagerName: managerName, State: mcmodel.TaskStateIdle},
	}

	for _, optfn := range optFNs {
		optfn(r)
	}

	return r
}

func WithReporterLogger(l log.Interface) ReporterOptionFN {
	return func(r *Reporter) {
		r.log = l
	}
}

func WithMessageQueue(q *MessageQueue) ReporterOptionFN {
	return func(r *Reporter) {
		r.queue = q
	}
}

// WithLocker shares a locker between reporters writing to the same store.
func WithLocker(l *lock.KeyLocker[string]) ReporterOptionFN {
	return func(r *Reporter) {
		r.locker = l
	}
}

func WithReporterClock(now func() time.Time) ReporterOptionFN {
	return func(r *Reporter) {
		r.now = now
	}
}

func (r *Reporter) ManagerName() string {
	return r.managerName
}

// Current returns the last status written.
func (r *Reporter) Current() mcmodel.TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// StartTask marks the manager as running a job step.
func (r *Reporter) StartTask(job, step int, tool, dataset string) error {
	return r.update("Started job step", func(ts *mcmodel.TaskStatus) {
		*ts = mcmodel.TaskStatus{
			ManagerName:   r.managerName,
			Job:           job,
			Step:          step,
			Tool:          tool,
			Dataset:       dataset,
			State:         mcmodel.TaskStateRunning,
			TaskStartedAt: r.now(),
		}
	})
}

// UpdateProgress records progress, a percentage clamped to 0..100.
func (r *Reporter) UpdateProgress(progress float32, message string) error {
	return r.update(message, func(ts *mcmodel.TaskStatus) {
		ts.Progress = clampProgress(progress)
		if message != "" {
			ts.MostRecentLogMessage = message
		}
	})
}

// ReportError records an error message without changing the state.
func (r *Reporter) ReportError(message string) error {
	return r.update(message, func(ts *mcmodel.TaskStatus) {
		ts.MostRecentErrorMessage = message
	})
}

// CloseTask marks the step as closing, or failed when succeeded is false.
func (r *Reporter) CloseTask(succeeded bool, message string) error {
	return r.update(message, func(ts *mcmodel.TaskStatus) {
		if succeeded {
			ts.State = mcmodel.TaskStateClosing
			ts.Progress = 100
			ts.MostRecentLogMessage = message
		} else {
			ts.State = mcmodel.TaskStateFailed
			ts.MostRecentErrorMessage = message
		}
	})
}

// SetIdle marks the manager as waiting for work.
func (r *Reporter) SetIdle() error {
	return r.update("Idle", func(ts *mcmodel.TaskStatus) {
		*ts = mcmodel.TaskStatus{
			ManagerName:            r.managerName,
			State:                  mcmodel.TaskStateIdle,
			MostRecentLogMessage:   ts.MostRecentLogMessage,
			MostRecentErrorMessage: ts.MostRecentErrorMessage,
		}
	})
}

// CopyEvents returns file copy callbacks that report each completed copy.
func (r *Reporter) CopyEvents() filecopy.Events {
	return filecopy.Events{
		ResetTimestampForQueueWaitTime: func() {
			r.mu.Lock()
			r.queueWaitStart = r.now()
			r.mu.Unlock()
		},
		CopyWithLocksComplete: func(startTime time.Time, destPath string) {
			r.mu.Lock()
			waitStart := r.queueWaitStart
			r.queueWaitStart = time.Time{}
			r.mu.Unlock()

			entry := r.log.WithField("elapsed", r.now().Sub(startTime).Round(time.Millisecond))
			if !waitStart.IsZero() && startTime.After(waitStart) {
				entry = entry.WithField("queue_wait", startTime.Sub(waitStart).Round(time.Millisecond))
			}
			entry.Infof("Copied %s", destPath)

			if err := r.update("Copied "+filepath.Base(destPath), func(ts *mcmodel.TaskStatus) {
				ts.MostRecentLogMessage = "Copied " + filepath.Base(destPath)
			}); err != nil {
				r.log.WithError(err).Warn("Unable to record copy status")
			}
		},
	}
}

func (r *Reporter) update(text string, fn func(ts *mcmodel.TaskStatus)) error {
	return r.locker.WithLock(r.managerName, func() error {
		r.mu.Lock()
		next := r.current
		r.mu.Unlock()

		fn(&next)

		stored, err := r.stor.UpsertTaskStatus(&next)
		if err != nil {
			r.log.WithError(err).WithField("manager", r.managerName).Error("Unable to store task status")
			return err
		}

		r.mu.Lock()
		r.current = *stored
		r.mu.Unlock()

		if r.queue != nil {
			r.queue.Push(NewMessage(*stored, text, r.now()))
		}

		return nil
	})
}

func clampProgress(p float32) float32 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
