package process

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Queue runs processes one at a time in dispatch order.
//
// The head of the queue is the only process that may be running. When it
// finishes the queue removes it and starts the next entry. Queue is safe for
// concurrent use.
type Queue struct {
	mu      sync.Mutex
	pending []*Process

	// drained is closed whenever the queue is empty.
	drained chan struct{}
	closed  bool

	log     zerolog.Logger
	onStart func(p *Process)
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the queue logger.
func WithQueueLogger(log zerolog.Logger) QueueOption {
	return func(q *Queue) {
		q.log = log
	}
}

// WithStartCallback sets a callback invoked right before a process is started.
func WithStartCallback(fn func(p *Process)) QueueOption {
	return func(q *Queue) {
		q.onStart = fn
	}
}

// NewQueue creates an empty queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		drained: make(chan struct{}),
		log:     zerolog.Nop(),
	}
	close(q.drained)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Dispatch enqueues p and returns it. It starts immediately when the queue
// was empty and otherwise waits behind everything dispatched before it.
// A non-empty id replaces the process correlation identifier.
func (q *Queue) Dispatch(p *Process, id string) *Process {
	if id != "" {
		p.ID = id
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		p.abort()
		return p
	}
	if p.finish != nil {
		q.mu.Unlock()
		panic(fmt.Sprintf("process queue: %s dispatched twice", formatHead(p)))
	}
	p.finish = q.complete
	q.pending = append(q.pending, p)
	first := len(q.pending) == 1
	if first {
		q.drained = make(chan struct{})
	}
	q.mu.Unlock()

	q.log.Debug().Str("id", p.ID).Str("cmd", p.command.String()).Bool("immediate", first).Msg("process dispatched")

	if first {
		q.startHead(p)
	}
	return p
}

// startHead starts p, which must be the current head.
func (q *Queue) startHead(p *Process) {
	if q.onStart != nil {
		q.onStart(p)
	}
	// A failed start completes the process, which advances the queue.
	if err := p.Start(context.Background()); err != nil {
		q.log.Debug().Err(err).Str("id", p.ID).Msg("queued process did not start")
	}
}

// complete is the default completion handler of queued processes. It
// dequeues p and starts the next entry. An aborted head reaches it only
// after it has been reaped, so its successor never overlaps it.
func (q *Queue) complete(p *Process) {
	q.mu.Lock()
	if len(q.pending) == 0 || q.pending[0] != p {
		var head *Process
		if len(q.pending) > 0 {
			head = q.pending[0]
		}
		q.mu.Unlock()
		// Abort and Close dequeue waiting entries themselves.
		if p.Aborted() {
			return
		}
		panic(fmt.Sprintf("process queue: %s completed while %s is head", formatHead(p), formatHead(head)))
	}
	next := q.advanceLocked()
	q.mu.Unlock()

	if next != nil {
		q.startHead(next)
	}
}

// advanceLocked drops the head and returns the new one, if any.
func (q *Queue) advanceLocked() *Process {
	q.pending[0] = nil
	q.pending = q.pending[1:]
	if len(q.pending) == 0 {
		close(q.drained)
		return nil
	}
	return q.pending[0]
}

// Abort removes p from the queue. A running process is killed and stays
// head until it has exited, then the next entry is started. A waiting
// process is dropped at once. Both finish with ErrAborted. It returns false
// if p is not queued.
func (q *Queue) Abort(p *Process) bool {
	q.mu.Lock()
	idx := -1
	for i, queued := range q.pending {
		if queued == p {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return false
	}

	p.aborted.Store(true)
	if idx > 0 {
		q.pending = append(q.pending[:idx], q.pending[idx+1:]...)
	}
	q.mu.Unlock()

	q.log.Debug().Str("id", p.ID).Bool("running", idx == 0).Msg("process aborted")

	p.abort()
	return true
}

// WaitForCompletion blocks until the queue is empty or ctx is done.
// Synchronous commands call it first so that nothing queued races with them.
func (q *Queue) WaitForCompletion(ctx context.Context) error {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return nil
		}
		drained := q.drained
		q.mu.Unlock()

		select {
		case <-drained:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Head returns the running process, or nil if the queue is empty.
func (q *Queue) Head() *Process {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	return q.pending[0]
}

// Len returns the number of queued processes including the running one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Pending returns a snapshot of the queue, head first.
func (q *Queue) Pending() []*Process {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Process(nil), q.pending...)
}

// Close aborts every queued process and rejects further dispatches.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	procs := q.pending
	q.pending = nil
	if len(procs) > 0 {
		close(q.drained)
	}
	for _, p := range procs {
		p.aborted.Store(true)
	}
	q.mu.Unlock()

	// Abort waiting entries first so the running one cannot start them.
	for i := len(procs) - 1; i >= 0; i-- {
		procs[i].abort()
	}
}

// IsClosed reports whether Close has been called.
func (q *Queue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
