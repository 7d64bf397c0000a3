package sched

import (
	"sync"

	"voxelstream.ai/internal/stream/chunk"
)

// Sink receives completions from workers and inline execution.
type Sink interface {
	Deliver(c chunk.Completion)
}

// Mailbox is an unbounded completion inbox drained by the coordinating
// goroutine. Deliver never blocks, so a worker can always report.
type Mailbox struct {
	mu     sync.Mutex
	items  []chunk.Completion
	notify chan struct{}
}

func NewMailbox() *Mailbox {
	return &Mailbox{notify: make(chan struct{}, 1)}
}

func (m *Mailbox) Deliver(c chunk.Completion) {
	m.mu.Lock()
	m.items = append(m.items, c)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Drain returns everything delivered so far in delivery order.
func (m *Mailbox) Drain() []chunk.Completion {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.items
	m.items = nil
	return out
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Ready fires after at least one Deliver since the last receive.
func (m *Mailbox) Ready() <-chan struct{} { return m.notify }
