package sched

import (
	"sync"

	"voxelstream.ai/internal/stream/chunk"
)

// Queue is a worker's mailbox: an unbounded FIFO fed in batches. The lock is
// held only to append a batch or to swap the whole backlog out.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []chunk.Task
	closed bool
}

func newQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// PushBatch appends tasks in order. It fails once the queue is closed.
func (q *Queue) PushBatch(tasks []chunk.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrPoolClosed
	}
	q.items = append(q.items, tasks...)
	q.cond.Signal()
	return nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// take blocks until tasks are queued or the queue is closed and empty.
func (q *Queue) take() ([]chunk.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	batch := q.items
	q.items = nil
	return batch, true
}

// close stops accepting tasks. With discard the backlog is returned to the
// caller instead of being left for the worker.
func (q *Queue) close(discard bool) []chunk.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	var dropped []chunk.Task
	if discard {
		dropped = q.items
		q.items = nil
	}
	q.cond.Broadcast()
	return dropped
}
