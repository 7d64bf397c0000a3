package sched

import (
	"sort"

	"voxelstream.ai/internal/stream/chunk"
)

type CommitStats struct {
	// Dispatched is the number of tasks handed to the strategy.
	Dispatched int
	// Runs is the number of locked appends (one per contiguous lane run).
	Runs int
	// Executed and Deferred count inline work; both stay 0 on a pool.
	Executed int
	Deferred int
}

// record folds one commit or resume into the running totals. Deferred is a
// backlog size, not a counter, so the latest flush replaces it.
func (s *CommitStats) record(o CommitStats) {
	s.Dispatched += o.Dispatched
	s.Runs += o.Runs
	s.Executed += o.Executed
	s.Deferred = o.Deferred
}

// Merge combines a RunDeferred result with the Commit of the same cycle.
// Deferred comes from whichever flushed last: the commit when it dispatched
// anything, otherwise the resume.
func Merge(resumed, committed CommitStats) CommitStats {
	out := committed
	out.Executed += resumed.Executed
	if committed.Dispatched == 0 {
		out.Deferred = resumed.Deferred
	}
	return out
}

// WorkScheduler batches compute tasks per cycle. Commit orders the batch by
// (worker lane, enqueue stamp) and hands each contiguous same-lane run to the
// strategy in one piece, so a commit takes at most one queue lock per worker.
// A chunk's tasks share one affinity and therefore one lane, and stamps come
// from a single clock, so per-chunk submission order survives the sort.
type WorkScheduler struct {
	strategy Strategy
	pending  []chunk.Task
	total    CommitStats
}

func NewWorkScheduler(s Strategy) *WorkScheduler {
	return &WorkScheduler{strategy: s}
}

// Submit buffers t until the next Commit. It implements chunk.Dispatcher.
func (s *WorkScheduler) Submit(t chunk.Task) { s.pending = append(s.pending, t) }

func (s *WorkScheduler) Pending() int        { return len(s.pending) }
func (s *WorkScheduler) Strategy() Strategy  { return s.strategy }
// Totals accumulates every commit and resume. Its Deferred field is the
// backlog left by the most recent flush.
func (s *WorkScheduler) Totals() CommitStats { return s.total }

func (s *WorkScheduler) Commit() CommitStats {
	if len(s.pending) == 0 {
		return CommitStats{}
	}
	batch := s.pending
	s.pending = nil

	lanes := make([]int, len(batch))
	for i, t := range batch {
		lanes[i] = s.strategy.Lane(t.Affinity)
	}
	sort.Stable(byLane{tasks: batch, lanes: lanes})

	var st CommitStats
	for i := 0; i < len(batch); {
		j := i + 1
		for j < len(batch) && lanes[j] == lanes[i] {
			j++
		}
		s.strategy.Dispatch(batch[i:j:j])
		st.Runs++
		i = j
	}
	st.Dispatched = len(batch)
	st.Executed, st.Deferred = s.strategy.Flush()
	s.total.record(st)
	return st
}

// RunDeferred resumes inline work left over from earlier cycles.
func (s *WorkScheduler) RunDeferred() CommitStats {
	var st CommitStats
	st.Executed, st.Deferred = s.strategy.Flush()
	s.total.record(st)
	return st
}

// byLane sorts tasks by (lane, stamp) and keeps the lane slice aligned.
type byLane struct {
	tasks []chunk.Task
	lanes []int
}

func (b byLane) Len() int { return len(b.tasks) }
func (b byLane) Less(i, j int) bool {
	if b.lanes[i] != b.lanes[j] {
		return b.lanes[i] < b.lanes[j]
	}
	return b.tasks[i].Enqueued < b.tasks[j].Enqueued
}
func (b byLane) Swap(i, j int) {
	b.tasks[i], b.tasks[j] = b.tasks[j], b.tasks[i]
	b.lanes[i], b.lanes[j] = b.lanes[j], b.lanes[i]
}

// IOScheduler batches disk-bound tasks. There is no ordering pass: tasks are
// bucketed by lane in submission order and each bucket is dispatched once.
type IOScheduler struct {
	strategy Strategy
	pending  []chunk.Task
	buckets  [][]chunk.Task
	total    CommitStats
}

func NewIOScheduler(s Strategy) *IOScheduler {
	return &IOScheduler{strategy: s, buckets: make([][]chunk.Task, s.Lanes())}
}

func (s *IOScheduler) Submit(t chunk.Task) { s.pending = append(s.pending, t) }

func (s *IOScheduler) Pending() int        { return len(s.pending) }
func (s *IOScheduler) Strategy() Strategy  { return s.strategy }
func (s *IOScheduler) Totals() CommitStats { return s.total }

func (s *IOScheduler) Commit() CommitStats {
	if len(s.pending) == 0 {
		return CommitStats{}
	}
	for _, t := range s.pending {
		lane := s.strategy.Lane(t.Affinity)
		s.buckets[lane] = append(s.buckets[lane], t)
	}
	var st CommitStats
	st.Dispatched = len(s.pending)
	s.pending = nil

	for i, b := range s.buckets {
		if len(b) == 0 {
			continue
		}
		s.strategy.Dispatch(b)
		s.buckets[i] = nil
		st.Runs++
	}
	st.Executed, st.Deferred = s.strategy.Flush()
	s.total.record(st)
	return st
}

func (s *IOScheduler) RunDeferred() CommitStats {
	var st CommitStats
	st.Executed, st.Deferred = s.strategy.Flush()
	s.total.record(st)
	return st
}
