package dispatch

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
	"github.com/spooky-finn/go-marketdata-checker/domain"
)

// Queue runs submitted tasks one at a time, in submission order, on its own
// goroutine.
type Queue struct {
	id     int
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	inbox   deque.Deque[func()]
	stopped bool
	done    chan struct{}

	processed atomic.Uint64
	panics    atomic.Uint64
	onPanic   func(queueID int, recovered any)
}

func newQueue(id int, logger *slog.Logger, onPanic func(int, any)) *Queue {
	q := &Queue{
		id:      id,
		logger:  logger.With("queue", id),
		done:    make(chan struct{}),
		onPanic: onPanic,
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *Queue) ID() int {
	return q.id
}

// Enqueue schedules task and reports false once the queue is stopped.
func (q *Queue) Enqueue(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return false
	}
	q.inbox.PushBack(task)
	q.cond.Signal()
	return true
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inbox.Len()
}

func (q *Queue) Processed() uint64 {
	return q.processed.Load()
}

func (q *Queue) Panics() uint64 {
	return q.panics.Load()
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for q.inbox.Len() == 0 && !q.stopped {
			q.cond.Wait()
		}
		if q.inbox.Len() == 0 {
			q.mu.Unlock()
			return
		}
		task := q.inbox.PopFront()
		q.mu.Unlock()

		q.exec(task)
	}
}

// exec keeps a panicking handler from taking the queue down with it.
func (q *Queue) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.panics.Add(1)
			q.logger.Error("task_panic", "panic", r, "stack", string(debug.Stack()))
			if q.onPanic != nil {
				q.onPanic(q.id, r)
			}
		}
		q.processed.Add(1)
	}()
	task()
}

// stop lets the queue drain what is already queued and exit.
func (q *Queue) stop() {
	q.mu.Lock()
	q.stopped = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// QueueGroup is a fixed pool of queues handed out round-robin. Everything
// bound to one queue is processed strictly in order; different queues run
// concurrently.
type QueueGroup struct {
	queues []*Queue
	next   atomic.Uint64
	once   sync.Once
}

type GroupOption func(*groupOptions)

type groupOptions struct {
	logger  *slog.Logger
	onPanic func(int, any)
}

func WithLogger(logger *slog.Logger) GroupOption {
	return func(o *groupOptions) { o.logger = logger }
}

// WithPanicHook is called on the queue goroutine after a task panicked.
func WithPanicHook(fn func(queueID int, recovered any)) GroupOption {
	return func(o *groupOptions) { o.onPanic = fn }
}

func NewQueueGroup(n int, opts ...GroupOption) (*QueueGroup, error) {
	if n <= 0 {
		return nil, &domain.ConfigError{Field: "queue_count", Err: fmt.Errorf("must be positive, got %d", n)}
	}

	o := groupOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "queue-group")

	g := &QueueGroup{queues: make([]*Queue, n)}
	for i := range g.queues {
		g.queues[i] = newQueue(i, logger, o.onPanic)
	}
	return g, nil
}

// Next returns the queue for a new subscription.
func (g *QueueGroup) Next() *Queue {
	i := g.next.Add(1) - 1
	return g.queues[i%uint64(len(g.queues))]
}

func (g *QueueGroup) Queue(i int) *Queue {
	return g.queues[i]
}

func (g *QueueGroup) Len() int {
	return len(g.queues)
}

// Pending is the number of tasks waiting across all queues.
func (g *QueueGroup) Pending() int {
	n := 0
	for _, q := range g.queues {
		n += q.Len()
	}
	return n
}

// Stop drains every queue and waits for their goroutines to exit.
func (g *QueueGroup) Stop() {
	g.once.Do(func() {
		for _, q := range g.queues {
			q.stop()
		}
		for _, q := range g.queues {
			<-q.done
		}
	})
}
