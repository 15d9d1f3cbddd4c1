package projector

import (
	"context"
	"sync"
)

type job func(ctx context.Context)

// workQueue runs jobs one at a time in submission order. A job starts only
// after the previous one returned, so consumers never observe a projection
// that is half rebuilt.
//
// The queue is unbounded so listeners enqueueing from event callbacks never
// block the component that fired the event.
type workQueue struct {
	mu     sync.Mutex
	jobs   []job
	closed bool
	signal chan struct{} // buffered, size 1
}

func newWorkQueue() *workQueue {
	return &workQueue{signal: make(chan struct{}, 1)}
}

// enqueue adds j to the back of the queue. Returns false once closed.
func (q *workQueue) enqueue(j job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, j)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

func (q *workQueue) tryDequeue() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}
	j := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.jobs = nil
	}
	return j, true
}

func (q *workQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// run executes jobs until ctx is cancelled. Jobs still queued at that point
// are dropped.
func (q *workQueue) run(ctx context.Context) {
	defer q.close()
	for {
		for {
			if ctx.Err() != nil {
				return
			}
			j, ok := q.tryDequeue()
			if !ok {
				break
			}
			j(ctx)
		}

		select {
		case <-ctx.Done():
			return
		case <-q.signal:
		}
	}
}
