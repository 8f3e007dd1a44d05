package status

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/materials-commons/dsstage/pkg/filecopy"
	"github.com/materials-commons/dsstage/pkg/location"
	"github.com/materials-commons/dsstage/pkg/mcdb/mcmodel"
	"github.com/materials-commons/dsstage/pkg/mcdb/stor"
	"github.com/materials-commons/dsstage/pkg/tutil"
)

// recordingSender keeps every message it is given. When gate is set, Send
// signals started and then waits on gate.
type recordingSender struct {
	mu       sync.Mutex
	messages []Message
	failOn   map[string]bool
	closed   bool
	started  chan struct{}
	gate     chan struct{}
}

func (s *recordingSender) Send(msg Message) error {
	if s.gate != nil {
		s.started <- struct{}{}
		<-s.gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failOn[msg.Message] {
		return errors.New("broker unavailable")
	}

	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var texts []string
	for _, m := range s.messages {
		texts = append(texts, m.Message)
	}

	return texts
}

func TestMessageQueue_SendsInOrder(t *testing.T) {
	sender := &recordingSender{failOn: map[string]bool{"two": true}}
	l, _ := tutil.NewMemoryLogger()
	q := NewMessageQueue(sender, WithQueueLogger(l))

	for _, text := range []string{"one", "two", "three"} {
		require.True(t, q.Push(Message{Message: text}))
	}

	q.Flush()
	require.Equal(t, []string{"one", "three"}, sender.texts())

	sent, dropped := q.Stats()
	require.Equal(t, 2, sent)
	require.Equal(t, 1, dropped)

	require.NoError(t, q.Close())
	require.True(t, sender.closed)
	require.False(t, q.Push(Message{Message: "late"}))
	require.NoError(t, q.Close())
}

func TestMessageQueue_DropsOldestWhenFull(t *testing.T) {
	sender := &recordingSender{started: make(chan struct{}, 10), gate: make(chan struct{})}
	q := NewMessageQueue(sender, WithMaxPending(2))

	q.Push(Message{Message: "m1"})
	<-sender.started

	for _, text := range []string{"m2", "m3", "m4", "m5"} {
		q.Push(Message{Message: text})
	}

	close(sender.gate)
	require.NoError(t, q.Close())

	require.Equal(t, []string{"m1", "m4", "m5"}, sender.texts())
	_, dropped := q.Stats()
	require.Equal(t, 2, dropped)
}

func newTestReporter(t *testing.T) (*Reporter, *recordingSender, *MessageQueue) {
	sender := &recordingSender{}
	q := NewMessageQueue(sender)
	t.Cleanup(func() { _ = q.Close() })

	now := time.Date(2023, 11, 2, 14, 0, 0, 0, time.UTC)
	l, _ := tutil.NewMemoryLogger()
	r := NewReporter("Pub-12-1", stor.NewInMemoryTaskStatusStor(),
		WithMessageQueue(q),
		WithReporterLogger(l),
		WithReporterClock(func() time.Time { return now }))

	return r, sender, q
}

func TestReporter(t *testing.T) {
	r, sender, q := newTestReporter(t)

	require.Equal(t, mcmodel.TaskStateIdle, r.Current().State)

	require.NoError(t, r.StartTask(2105, 3, "MASIC_Finnigan", "ds1"))
	require.NoError(t, r.UpdateProgress(150, "Retrieving spectra"))
	require.Equal(t, float32(100), r.Current().Progress)
	require.NoError(t, r.UpdateProgress(-5, ""))
	require.Equal(t, float32(0), r.Current().Progress)
	require.Equal(t, "Retrieving spectra", r.Current().MostRecentLogMessage)

	require.NoError(t, r.CloseTask(false, "Instrument data not found"))
	current := r.Current()
	require.Equal(t, mcmodel.TaskStateFailed, current.State)
	require.Equal(t, "Instrument data not found", current.MostRecentErrorMessage)
	require.Equal(t, 2105, current.Job)
	require.Equal(t, "ds1", current.Dataset)

	require.NoError(t, r.SetIdle())
	require.Equal(t, mcmodel.TaskStateIdle, r.Current().State)
	require.Zero(t, r.Current().Job)
	require.Equal(t, "Instrument data not found", r.Current().MostRecentErrorMessage)

	q.Flush()
	require.Equal(t, []string{"Started job step", "Retrieving spectra", "", "Instrument data not found", "Idle"}, sender.texts())

	sender.mu.Lock()
	first := sender.messages[0]
	sender.mu.Unlock()
	require.Equal(t, "Pub-12-1", first.Manager)
	require.Equal(t, 2105, first.Job)
	require.Equal(t, 3, first.Step)
	require.Equal(t, mcmodel.TaskStateRunning, first.State)
	require.NotEmpty(t, first.ID)
}

func TestReporter_CopyEvents(t *testing.T) {
	r, _, _ := newTestReporter(t)
	require.NoError(t, r.StartTask(2105, 1, "MSGFPlus", "ds1"))

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/storage/vol1/ds1/ds1.raw", []byte("raw"), 0644))

	copier := filecopy.NewCopier(fs, filecopy.WithEvents(r.CopyEvents()), filecopy.WithSleeper(func(time.Duration) {}))
	_, ok := copier.CopyToWorkDir("ds1.raw", location.Local("/storage/vol1/ds1"), "/work", filecopy.DefaultCopyOptions())
	require.True(t, ok)

	require.Equal(t, "Copied ds1.raw", r.Current().MostRecentLogMessage)
	require.Equal(t, mcmodel.TaskStateRunning, r.Current().State)
}

func TestCheckForAbortProcessingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.False(t, CheckForAbortProcessingFile(fs, "/manager"))

	require.NoError(t, afero.WriteFile(fs, "/manager/"+AbortProcessingFileName, nil, 0644))
	require.True(t, CheckForAbortProcessingFile(fs, "/manager"))
}
