package fsprobe

import (
	"os"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
)

// DefaultDrainTimeout is how long Drain keeps retrying before giving up on
// files that still can't be removed.
const DefaultDrainTimeout = 20 * time.Second

const defaultDeleteRetryDelay = 500 * time.Millisecond

// DeleteQueue removes files that may still be held open for a short time
// after the process that wrote them closed them. Failed deletes are queued in
// FIFO order and retried until a deadline passes.
type DeleteQueue struct {
	fs         afero.Fs
	log        log.Interface
	now        func() time.Time
	sleep      func(time.Duration)
	retryDelay time.Duration

	mu      sync.Mutex
	pending []string
}

type DeleteQueueOptionFN func(*DeleteQueue)

func NewDeleteQueue(fs afero.Fs, optFNs ...DeleteQueueOptionFN) *DeleteQueue {
	q := &DeleteQueue{
		fs:         fs,
		log:        log.Log,
		now:        time.Now,
		sleep:      time.Sleep,
		retryDelay: defaultDeleteRetryDelay,
	}

	for _, optfn := range optFNs {
		optfn(q)
	}

	return q
}

func WithDeleteQueueLogger(l log.Interface) DeleteQueueOptionFN {
	return func(q *DeleteQueue) {
		q.log = l
	}
}

func WithDeleteQueueClock(now func() time.Time, sleep func(time.Duration)) DeleteQueueOptionFN {
	return func(q *DeleteQueue) {
		q.now = now
		q.sleep = sleep
	}
}

func WithRetryDelay(d time.Duration) DeleteQueueOptionFN {
	return func(q *DeleteQueue) {
		q.retryDelay = d
	}
}

// Delete removes path now, or queues it if the removal fails. It returns true
// when the file is gone.
func (q *DeleteQueue) Delete(path string) bool {
	if err := q.remove(path); err != nil {
		q.log.WithField("path", path).WithError(err).Debug("Delete failed, queueing for retry")
		q.Add(path)
		return false
	}

	return true
}

func (q *DeleteQueue) Add(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, path)
}

func (q *DeleteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Process makes one pass over the queue in FIFO order. Entries that still
// can't be removed keep their relative order. The number of entries left is
// returned along with the errors from this pass.
func (q *DeleteQueue) Process() (int, error) {
	q.mu.Lock()
	current := q.pending
	q.pending = nil
	q.mu.Unlock()

	var (
		remaining []string
		errs      *multierror.Error
	)

	for _, path := range current {
		if err := q.remove(path); err != nil {
			remaining = append(remaining, path)
			errs = multierror.Append(errs, err)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(remaining, q.pending...)

	return len(q.pending), errs.ErrorOrNil()
}

// Drain retries queued deletes until the queue is empty or timeout elapses.
// Files that could not be removed stay queued and their errors are returned.
func (q *DeleteQueue) Drain(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}

	deadline := q.now().Add(timeout)

	for {
		remaining, err := q.Process()
		if remaining == 0 {
			return nil
		}

		if !q.now().Before(deadline) {
			q.log.WithField("remaining", remaining).
				Warnf("Unable to delete %d file(s) within %s", remaining, timeout)
			return err
		}

		q.sleep(q.retryDelay)
	}
}

func (q *DeleteQueue) remove(path string) error {
	err := q.fs.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}

	return err
}
