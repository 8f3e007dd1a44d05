package status

import (
	"sync"

	"github.com/apex/log"
)

// DefaultMaxPending bounds the messages held while the broker is unreachable.
const DefaultMaxPending = 500

// MessageQueue sends messages from a background goroutine. Push only appends
// to the queue; when more than maxPending messages are waiting the oldest are
// dropped. A message that fails to send is dropped and logged.
type MessageQueue struct {
	mu         sync.Mutex
	cond       *sync.Cond
	pending    []Message
	maxPending int
	sending    bool
	closed     bool
	done       chan struct{}

	sender  Sender
	log     log.Interface
	sent    int
	dropped int
}

type MessageQueueOptionFN func(*MessageQueue)

// NewMessageQueue starts the sending goroutine. Call Close to stop it.
func NewMessageQueue(sender Sender, optFNs ...MessageQueueOptionFN) *MessageQueue {
	q := &MessageQueue{
		sender:     sender,
		maxPending: DefaultMaxPending,
		done:       make(chan struct{}),
		log:        log.Log,
	}
	q.cond = sync.NewCond(&q.mu)

	for _, optfn := range optFNs {
		optfn(q)
	}

	go q.run()

	return q
}

func WithQueueLogger(l log.Interface) MessageQueueOptionFN {
	return func(q *MessageQueue) {
		q.log = l
	}
}

func WithMaxPending(n int) MessageQueueOptionFN {
	return func(q *MessageQueue) {
		if n > 0 {
			q.maxPending = n
		}
	}
}

// Push queues msg. It returns false once the queue is closed.
func (q *MessageQueue) Push(msg Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.pending = append(q.pending, msg)
	if over := len(q.pending) - q.maxPending; over > 0 {
		q.pending = q.pending[over:]
		q.dropped += over
	}

	q.cond.Signal()

	return true
}

func (q *MessageQueue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}

		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}

		batch := q.pending
		q.pending = nil
		q.sending = true
		q.mu.Unlock()

		sent := 0
		for _, msg := range batch {
			if err := q.sender.Send(msg); err != nil {
				q.log.WithError(err).Warn("Unable to send status message")
				continue
			}
			sent++
		}

		q.mu.Lock()
		q.sent += sent
		q.dropped += len(batch) - sent
		q.sending = false
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// Flush waits until every message pushed so far has been handed to the
// sender.
func (q *MessageQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) > 0 || q.sending {
		q.cond.Wait()
	}
}

// Close sends what is still queued, stops the goroutine and closes the
// sender.
func (q *MessageQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	<-q.done

	return q.sender.Close()
}

// Stats returns how many messages were sent and how many were dropped.
func (q *MessageQueue) Stats() (sent, dropped int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sent, q.dropped
}
