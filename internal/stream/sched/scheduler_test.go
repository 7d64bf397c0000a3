package sched

import (
	"context"
	"testing"
	"time"

	"voxelstream.ai/internal/stream/chunk"
)

type recordingStrategy struct {
	lanes   int
	runs    [][]chunk.Task
	flushes int
}

func (s *recordingStrategy) Lanes() int { return s.lanes }
func (s *recordingStrategy) Lane(a uint32) int {
	return int(a % uint32(s.lanes))
}
func (s *recordingStrategy) Dispatch(run []chunk.Task) {
	s.runs = append(s.runs, append([]chunk.Task(nil), run...))
}
func (s *recordingStrategy) Flush() (int, int) {
	s.flushes++
	return 0, 0
}

func task(affinity uint32, stamp uint64) chunk.Task {
	return chunk.Task{Kind: chunk.KindGenerate, Affinity: affinity, Enqueued: stamp}
}

func TestWorkScheduler_EmptyCommitIsNoOp(t *testing.T) {
	rs := &recordingStrategy{lanes: 4}
	s := NewWorkScheduler(rs)
	if st := s.Commit(); st != (CommitStats{}) {
		t.Fatalf("stats=%+v", st)
	}
	if len(rs.runs) != 0 || rs.flushes != 0 {
		t.Fatalf("empty commit touched the strategy: runs=%d flushes=%d", len(rs.runs), rs.flushes)
	}
}

func TestWorkScheduler_GroupsByLaneInStampOrder(t *testing.T) {
	rs := &recordingStrategy{lanes: 4}
	s := NewWorkScheduler(rs)
	for i, a := range []uint32{1, 1, 2, 2, 1} {
		s.Submit(task(a, uint64(i+1)))
	}
	st := s.Commit()
	if st.Dispatched != 5 || st.Runs != 2 {
		t.Fatalf("stats=%+v", st)
	}
	if s.Pending() != 0 {
		t.Fatalf("pending not cleared")
	}
	want := [][]uint64{{1, 2, 5}, {3, 4}}
	if len(rs.runs) != len(want) {
		t.Fatalf("runs=%d want %d", len(rs.runs), len(want))
	}
	for i, run := range rs.runs {
		if len(run) != len(want[i]) {
			t.Fatalf("run %d len=%d want %d", i, len(run), len(want[i]))
		}
		for k, task := range run {
			if task.Enqueued != want[i][k] {
				t.Fatalf("run %d pos %d: stamp=%d want %d", i, k, task.Enqueued, want[i][k])
			}
			if task.Affinity != run[0].Affinity {
				t.Fatalf("run %d mixes affinities", i)
			}
		}
	}
}

func TestWorkScheduler_OneRunPerWorker(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, chunk.Task) (chunk.Result, error) { return chunk.Result{}, nil })
	mb := NewMailbox()
	pool := NewPool("compute", 2, exec, mb, nil)
	defer pool.Close(DrainQueued)
	s := NewWorkScheduler(NewPoolStrategy(pool))

	stamp := uint64(0)
	for x := 0; x < 10; x++ {
		for z := 0; z < 10; z++ {
			c := chunk.New(chunk.Coord{X: x, Z: z})
			stamp++
			s.Submit(chunk.Task{Kind: chunk.KindGenerate, Chunk: c, Affinity: c.Affinity, Enqueued: stamp})
		}
	}
	st := s.Commit()
	if st.Dispatched != 100 {
		t.Fatalf("dispatched=%d want 100", st.Dispatched)
	}
	if st.Runs > pool.Workers() {
		t.Fatalf("commit took %d queue locks for %d workers", st.Runs, pool.Workers())
	}
	if got := len(waitCompletions(t, mb, 100)); got != 100 {
		t.Fatalf("completions=%d want 100", got)
	}
}

func TestWorkScheduler_LaneRunsKeepChunkOrder(t *testing.T) {
	rs := &recordingStrategy{lanes: 2}
	s := NewWorkScheduler(rs)
	// affinities 3 and 5 share lane 1; 2 and 4 share lane 0
	for i, a := range []uint32{3, 2, 5, 3, 4, 2, 5} {
		s.Submit(task(a, uint64(i+1)))
	}
	st := s.Commit()
	if st.Runs != 2 || len(rs.runs) != 2 {
		t.Fatalf("stats=%+v runs=%d", st, len(rs.runs))
	}
	want := [][]uint64{{2, 5, 6}, {1, 3, 4, 7}}
	for i, run := range rs.runs {
		if len(run) != len(want[i]) {
			t.Fatalf("run %d len=%d want %d", i, len(run), len(want[i]))
		}
		for k, task := range run {
			if task.Enqueued != want[i][k] {
				t.Fatalf("run %d pos %d: stamp=%d want %d", i, k, task.Enqueued, want[i][k])
			}
			if rs.Lane(task.Affinity) != i {
				t.Fatalf("run %d holds affinity %d from another lane", i, task.Affinity)
			}
		}
	}
}

func TestIOScheduler_BucketsInSubmissionOrder(t *testing.T) {
	rs := &recordingStrategy{lanes: 2}
	s := NewIOScheduler(rs)
	s.Submit(task(3, 9))
	s.Submit(task(2, 1))
	s.Submit(task(5, 4))
	s.Submit(task(4, 2))
	st := s.Commit()
	if st.Dispatched != 4 || st.Runs != 2 {
		t.Fatalf("stats=%+v", st)
	}
	// lane 0 holds the even affinities, lane 1 the odd ones; no sorting by stamp.
	if rs.runs[0][0].Affinity != 2 || rs.runs[0][1].Affinity != 4 {
		t.Fatalf("lane 0 run=%+v", rs.runs[0])
	}
	if rs.runs[1][0].Affinity != 3 || rs.runs[1][1].Affinity != 5 {
		t.Fatalf("lane 1 run=%+v", rs.runs[1])
	}
	if st := s.Commit(); st != (CommitStats{}) {
		t.Fatalf("second commit should be empty, got %+v", st)
	}
}

type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func TestInlineStrategy_BudgetDefersWithoutDropping(t *testing.T) {
	var order []uint64
	exec := ExecutorFunc(func(_ context.Context, t chunk.Task) (chunk.Result, error) {
		order = append(order, t.Enqueued)
		return chunk.Result{}, nil
	})
	mb := NewMailbox()
	inline := NewInlineStrategy(exec, mb, 2*time.Millisecond)
	clock := &fakeClock{t: time.Unix(0, 0), step: time.Millisecond}
	inline.SetClock(clock.now)

	s := NewWorkScheduler(inline)
	for i := 1; i <= 5; i++ {
		s.Submit(task(7, uint64(i)))
	}
	st := s.Commit()
	if st.Executed == 0 || st.Deferred == 0 || st.Executed+st.Deferred != 5 {
		t.Fatalf("stats=%+v", st)
	}
	for i := 0; i < 10 && inline.Backlog() > 0; i++ {
		if r := s.RunDeferred(); r.Executed == 0 {
			t.Fatalf("deferred cycle ran nothing")
		}
	}
	if inline.Backlog() != 0 {
		t.Fatalf("backlog never drained: %d", inline.Backlog())
	}
	if len(order) != 5 {
		t.Fatalf("executed %d tasks want 5", len(order))
	}
	for i, stamp := range order {
		if stamp != uint64(i+1) {
			t.Fatalf("order=%v", order)
		}
	}
	if got := len(mb.Drain()); got != 5 {
		t.Fatalf("completions=%d want 5", got)
	}
}

func TestWorkScheduler_TotalsTrackResumedWork(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, chunk.Task) (chunk.Result, error) { return chunk.Result{}, nil })
	inline := NewInlineStrategy(exec, NewMailbox(), 2*time.Millisecond)
	clock := &fakeClock{t: time.Unix(0, 0), step: time.Millisecond}
	inline.SetClock(clock.now)

	s := NewWorkScheduler(inline)
	for i := 1; i <= 5; i++ {
		s.Submit(task(7, uint64(i)))
	}
	first := s.Commit()
	if s.Totals().Deferred != first.Deferred {
		t.Fatalf("totals deferred=%d want %d", s.Totals().Deferred, first.Deferred)
	}
	resumed := s.RunDeferred()
	tot := s.Totals()
	if tot.Deferred != resumed.Deferred {
		t.Fatalf("totals deferred=%d want backlog %d", tot.Deferred, resumed.Deferred)
	}
	if tot.Executed != first.Executed+resumed.Executed {
		t.Fatalf("totals executed=%d want %d", tot.Executed, first.Executed+resumed.Executed)
	}
	if tot.Executed+tot.Deferred != 5 {
		t.Fatalf("totals=%+v lose tasks", tot)
	}
}

func TestMerge(t *testing.T) {
	resumed := CommitStats{Executed: 2, Deferred: 3}
	idle := Merge(resumed, CommitStats{})
	if idle.Executed != 2 || idle.Deferred != 3 {
		t.Fatalf("idle commit: %+v", idle)
	}
	busy := Merge(resumed, CommitStats{Dispatched: 4, Runs: 1, Executed: 1, Deferred: 6})
	if busy.Executed != 3 || busy.Deferred != 6 || busy.Dispatched != 4 {
		t.Fatalf("busy commit: %+v", busy)
	}
}

func TestInlineStrategy_RunsAtLeastOneTask(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, chunk.Task) (chunk.Result, error) { return chunk.Result{}, nil })
	inline := NewInlineStrategy(exec, NewMailbox(), time.Nanosecond)
	clock := &fakeClock{t: time.Unix(0, 0), step: time.Second}
	inline.SetClock(clock.now)
	inline.Dispatch([]chunk.Task{task(1, 1), task(1, 2)})
	ran, left := inline.Flush()
	if ran != 1 || left != 1 {
		t.Fatalf("ran=%d left=%d", ran, left)
	}
}

func TestInlineStrategy_RecoversPanics(t *testing.T) {
	exec := ExecutorFunc(func(_ context.Context, t chunk.Task) (chunk.Result, error) {
		if t.Enqueued == 1 {
			panic("bad voxel")
		}
		return chunk.Result{}, nil
	})
	mb := NewMailbox()
	inline := NewInlineStrategy(exec, mb, 0)
	inline.Dispatch([]chunk.Task{task(1, 1), task(1, 2)})
	if ran, left := inline.Flush(); ran != 2 || left != 0 {
		t.Fatalf("ran=%d left=%d", ran, left)
	}
	done := mb.Drain()
	if _, ok := done[0].Err.(*PanicError); !ok {
		t.Fatalf("first completion err=%v want *PanicError", done[0].Err)
	}
	if done[1].Err != nil {
		t.Fatalf("second completion err=%v", done[1].Err)
	}
}
