package sched

import (
	"context"
	"time"

	"voxelstream.ai/internal/stream/chunk"
)

// Strategy is how a scheduler executes committed work: on a worker pool or
// inline on the coordinating goroutine.
type Strategy interface {
	// Lanes is the number of independent execution lanes; Lane maps an
	// affinity onto one of them.
	Lanes() int
	Lane(affinity uint32) int
	// Dispatch hands over a run of tasks that share a lane, in order.
	Dispatch(run []chunk.Task)
	// Flush executes backlogged inline work under the strategy's budget and
	// returns how many tasks ran and how many remain.
	Flush() (executed, remaining int)
}

// PoolStrategy pushes runs onto pool queues.
type PoolStrategy struct {
	pool *Pool
}

func NewPoolStrategy(p *Pool) *PoolStrategy { return &PoolStrategy{pool: p} }

func (s *PoolStrategy) Lanes() int               { return s.pool.Workers() }
func (s *PoolStrategy) Lane(affinity uint32) int { return s.pool.Index(affinity) }

func (s *PoolStrategy) Dispatch(run []chunk.Task) {
	if len(run) == 0 {
		return
	}
	if err := s.pool.Queue(run[0].Affinity).PushBatch(run); err != nil {
		// Closed pool: report every task back so no chunk stays in flight.
		for _, t := range run {
			s.pool.sink.Deliver(chunk.Completion{Task: t, Err: err})
		}
	}
}

func (s *PoolStrategy) Flush() (int, int) { return 0, 0 }

// InlineStrategy runs tasks on the caller's goroutine, at most budget per
// Flush. Whatever does not fit stays in the backlog for the next Flush; at
// least one task runs per Flush so the backlog always drains.
type InlineStrategy struct {
	exec    Executor
	sink    Sink
	budget  time.Duration
	now     func() time.Time
	backlog []chunk.Task
}

func NewInlineStrategy(exec Executor, sink Sink, budget time.Duration) *InlineStrategy {
	if exec == nil || sink == nil {
		panic("sched: inline strategy needs an executor and a sink")
	}
	return &InlineStrategy{exec: exec, sink: sink, budget: budget, now: time.Now}
}

// SetClock replaces the time source; used by tests.
func (s *InlineStrategy) SetClock(now func() time.Time) { s.now = now }

func (s *InlineStrategy) Lanes() int      { return 1 }
func (s *InlineStrategy) Lane(uint32) int { return 0 }
func (s *InlineStrategy) Backlog() int    { return len(s.backlog) }

func (s *InlineStrategy) Dispatch(run []chunk.Task) {
	s.backlog = append(s.backlog, run...)
}

func (s *InlineStrategy) Flush() (int, int) {
	if len(s.backlog) == 0 {
		return 0, 0
	}
	start := s.now()
	ran := 0
	for ran < len(s.backlog) {
		t := s.backlog[ran]
		s.backlog[ran] = chunk.Task{}
		ran++
		s.sink.Deliver(run(context.Background(), s.exec, t))
		if s.budget > 0 && s.now().Sub(start) >= s.budget {
			break
		}
	}
	s.backlog = s.backlog[ran:]
	if len(s.backlog) == 0 {
		s.backlog = nil
	}
	return ran, len(s.backlog)
}
