// Package memqueue is an in-process tundra.Queue, a due-time min-heap
// of messages consumed by one or more worker goroutines. It exists as
// the default collaborator for tests and single-process deployments;
// it is grounded on _examples/sa6mwa-lockd's lease/backoff dispatcher
// loop shape, replacing lockd's durable lease store with an in-memory
// heap since this package has no persistence Non-goal to satisfy.
package memqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kvpipe/kvpipe/tundra"
)

// item is one pending message, ordered in the heap by due (its next
// eligible delivery time).
type item struct {
	id       string
	mid      string
	payload  []byte
	attempts int
	due      time.Time
	index    int
}

type itemHeap []*item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

type namedQueue struct {
	mu       sync.Mutex
	pending  itemHeap
	byMID    map[string]*item
	wake     chan struct{}
}

func newNamedQueue() *namedQueue {
	return &namedQueue{byMID: make(map[string]*item), wake: make(chan struct{}, 1)}
}

func (q *namedQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Queue is an in-process, non-durable tundra.Queue implementation.
type Queue struct {
	mu     sync.Mutex
	queues map[string]*namedQueue
}

// New constructs an empty Queue.
func New() *Queue {
	return &Queue{queues: make(map[string]*namedQueue)}
}

func (q *Queue) named(qname string) *namedQueue {
	q.mu.Lock()
	defer q.mu.Unlock()
	nq, ok := q.queues[qname]
	if !ok {
		nq = newNamedQueue()
		q.queues[qname] = nq
	}
	return nq
}

// Enqueue adds msg under mid to qname. When mid is already pending,
// Enqueue is a no-op success — the caller's message is assumed already
// represented on the queue. When mid is in flight, a second copy is
// added only if allowLockedDupe is true.
func (q *Queue) Enqueue(ctx context.Context, qname string, msg []byte, mid string, allowLockedDupe bool) error {
	nq := q.named(qname)
	nq.mu.Lock()
	defer nq.mu.Unlock()

	if existing, dup := nq.byMID[mid]; dup && (!allowLockedDupe || existing.index >= 0) {
		return nil
	}

	it := &item{id: uuid.NewString(), mid: mid, payload: msg, due: dueNow()}
	nq.byMID[mid] = it
	heap.Push(&nq.pending, it)
	nq.notify()
	return nil
}

type consumer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (c *consumer) Stop() {
	c.cancel()
	<-c.done
}

// Worker starts opts.NThreads goroutines pulling due messages off
// qname and running handler against each, requeueing with backoff on
// tundra.ResultRetry and dropping (after emitting an Event) on
// tundra.ResultError or when a retry brings attempts up to
// opts.MaxAttempts.
func (q *Queue) Worker(ctx context.Context, qname string, opts tundra.WorkerOptions, handler tundra.Handler) (tundra.Consumer, error) {
	if opts.NThreads <= 0 {
		opts.NThreads = 1
	}
	nq := q.named(qname)
	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(opts.NThreads)
	for i := 0; i < opts.NThreads; i++ {
		go func() {
			defer wg.Done()
			q.loop(wctx, nq, qname, opts, handler)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	return &consumer{cancel: cancel, done: done}, nil
}

func (q *Queue) loop(ctx context.Context, nq *namedQueue, qname string, opts tundra.WorkerOptions, handler tundra.Handler) {
	throttle := time.Duration(opts.ThrottleMs) * time.Millisecond
	eoq := time.Duration(opts.EOQBackoffMs) * time.Millisecond
	if eoq <= 0 {
		eoq = 200 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		it, ok := q.dequeueDue(nq)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-nq.wake:
			case <-time.After(eoq):
			}
			continue
		}

		result := handler(ctx, tundra.QueueMessage{ID: it.mid, Payload: it.payload, Attempts: it.attempts})
		switch result.Kind {
		case tundra.ResultSuccess:
			q.ack(nq, it)
		case tundra.ResultRetry:
			it.attempts++
			if opts.MaxAttempts > 0 && it.attempts >= opts.MaxAttempts {
				q.ack(nq, it)
				emit(opts.Monitor, qname, it.mid, result.Err)
				break
			}
			backoff := result.Backoff
			if backoff <= 0 {
				backoff = eoq
			}
			q.requeue(nq, it, backoff)
		case tundra.ResultError:
			q.ack(nq, it)
			emit(opts.Monitor, qname, it.mid, result.Err)
		}

		if throttle > 0 {
			time.Sleep(throttle)
		}
	}
}

func emit(monitor func(tundra.Event), qname, mid string, err error) {
	if monitor != nil {
		monitor(tundra.Event{Queue: qname, MessageID: mid, Err: err})
	}
}

// dequeueDue pops the earliest-due item if it's actually due. The item
// stays in byMID while in flight (its heap index is -1 until requeue
// pushes it back); only ack removes it from byMID.
func (q *Queue) dequeueDue(nq *namedQueue) (*item, bool) {
	nq.mu.Lock()
	defer nq.mu.Unlock()
	if len(nq.pending) == 0 {
		return nil, false
	}
	if nq.pending[0].due.After(nowFunc()) {
		return nil, false
	}
	it := heap.Pop(&nq.pending).(*item)
	return it, true
}

func (q *Queue) ack(nq *namedQueue, it *item) {
	nq.mu.Lock()
	defer nq.mu.Unlock()
	delete(nq.byMID, it.mid)
}

func (q *Queue) requeue(nq *namedQueue, it *item, backoff time.Duration) {
	nq.mu.Lock()
	defer nq.mu.Unlock()
	it.due = nowFunc().Add(backoff)
	heap.Push(&nq.pending, it)
	nq.notify()
}

// nowFunc and dueNow are indirected through a var so tests can freeze
// time deterministically if needed.
var nowFunc = time.Now

func dueNow() time.Time { return nowFunc() }
