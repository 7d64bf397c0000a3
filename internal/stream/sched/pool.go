package sched

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"voxelstream.ai/internal/stream/chunk"
)

type ClosePolicy uint8

const (
	// DrainQueued lets workers finish every queued task before exiting.
	DrainQueued ClosePolicy = iota
	// DiscardQueued drops queued tasks; they are reported with ErrPoolClosed.
	DiscardQueued
)

func (p ClosePolicy) String() string {
	if p == DiscardQueued {
		return "discard"
	}
	return "drain"
}

type WorkerStats struct {
	Queued   int
	Executed uint64
	Failed   uint64
}

type workerCounters struct {
	executed atomic.Uint64
	failed   atomic.Uint64
}

// Pool is a fixed set of worker goroutines, each draining its own Queue.
// A task's affinity picks the queue, so all tasks of one chunk run on the
// same worker in submission order.
type Pool struct {
	name   string
	queues []*Queue
	exec   Executor
	sink   Sink
	log    *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	discard   atomic.Bool
	discarded atomic.Int64
	closeOnce sync.Once
	wg        sync.WaitGroup

	counters []workerCounters
}

func NewPool(name string, workers int, exec Executor, sink Sink, logger *log.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if exec == nil || sink == nil {
		panic("sched: pool needs an executor and a sink")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:     name,
		queues:   make([]*Queue, workers),
		exec:     exec,
		sink:     sink,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
		counters: make([]workerCounters, workers),
	}
	for i := range p.queues {
		p.queues[i] = newQueue()
	}
	for i := range p.queues {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *Pool) Name() string { return p.name }
func (p *Pool) Workers() int { return len(p.queues) }

// Index maps an affinity to a worker; stable for the pool's lifetime.
func (p *Pool) Index(affinity uint32) int {
	return int(affinity % uint32(len(p.queues)))
}

func (p *Pool) Queue(affinity uint32) *Queue {
	return p.queues[p.Index(affinity)]
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	q := p.queues[id]
	c := &p.counters[id]
	for {
		batch, ok := q.take()
		if !ok {
			return
		}
		for _, t := range batch {
			if p.discard.Load() {
				p.drop(t)
				continue
			}
			done := run(p.ctx, p.exec, t)
			c.executed.Add(1)
			if done.Err != nil {
				c.failed.Add(1)
				var pe *PanicError
				if errors.As(done.Err, &pe) {
					p.log.Printf("%s worker %d: %v\n%s", p.name, id, pe, pe.Stack)
				}
			}
			p.sink.Deliver(done)
		}
	}
}

func (p *Pool) drop(t chunk.Task) {
	p.discarded.Add(1)
	p.sink.Deliver(chunk.Completion{Task: t, Err: ErrPoolClosed})
}

// Close stops the pool per policy and waits for every worker to exit. It
// returns the number of discarded tasks. Later calls return 0.
func (p *Pool) Close(policy ClosePolicy) int {
	n := 0
	p.closeOnce.Do(func() {
		if policy == DiscardQueued {
			p.discard.Store(true)
			p.cancel()
		}
		for _, q := range p.queues {
			for _, t := range q.close(policy == DiscardQueued) {
				p.drop(t)
			}
		}
		p.wg.Wait()
		p.cancel()
		n = int(p.discarded.Load())
		p.log.Printf("%s pool closed (%s): %d discarded", p.name, policy, n)
	})
	return n
}

func (p *Pool) Stats() []WorkerStats {
	out := make([]WorkerStats, len(p.queues))
	for i, q := range p.queues {
		out[i] = WorkerStats{
			Queued:   q.Len(),
			Executed: p.counters[i].executed.Load(),
			Failed:   p.counters[i].failed.Load(),
		}
	}
	return out
}
