package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voxelstream.ai/internal/stream/chunk"
)

func waitCompletions(t *testing.T, mb *Mailbox, n int) []chunk.Completion {
	t.Helper()
	var out []chunk.Completion
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		out = append(out, mb.Drain()...)
		if len(out) >= n {
			break
		}
		select {
		case <-mb.Ready():
		case <-deadline:
			t.Fatalf("got %d completions want %d", len(out), n)
		}
	}
	return out
}

func TestPool_IndexIsStableModulo(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, chunk.Task) (chunk.Result, error) { return chunk.Result{}, nil })
	p := NewPool("test", 3, exec, NewMailbox(), nil)
	defer p.Close(DrainQueued)
	for a := uint32(0); a < 20; a++ {
		if p.Index(a) != int(a%3) {
			t.Fatalf("Index(%d)=%d", a, p.Index(a))
		}
		if p.Queue(a) != p.Queue(a+3) {
			t.Fatalf("affinity %d and %d should share a queue", a, a+3)
		}
	}
}

func TestPool_PerAffinityOrder(t *testing.T) {
	var mu sync.Mutex
	seen := map[uint32][]uint64{}
	exec := ExecutorFunc(func(_ context.Context, t chunk.Task) (chunk.Result, error) {
		mu.Lock()
		seen[t.Affinity] = append(seen[t.Affinity], t.Enqueued)
		mu.Unlock()
		return chunk.Result{}, nil
	})
	mb := NewMailbox()
	p := NewPool("compute", 2, exec, mb, nil)
	s := NewWorkScheduler(NewPoolStrategy(p))

	stamp := uint64(0)
	for cycle := 0; cycle < 5; cycle++ {
		for _, a := range []uint32{1, 1, 2, 2, 1, 3} {
			stamp++
			s.Submit(task(a, stamp))
		}
		s.Commit()
	}
	waitCompletions(t, mb, 30)
	p.Close(DrainQueued)

	mu.Lock()
	defer mu.Unlock()
	for a, stamps := range seen {
		for i := 1; i < len(stamps); i++ {
			if stamps[i] <= stamps[i-1] {
				t.Fatalf("affinity %d ran out of order: %v", a, stamps)
			}
		}
	}
	var executed uint64
	for _, ws := range p.Stats() {
		executed += ws.Executed
	}
	if executed != 30 {
		t.Fatalf("executed=%d want 30", executed)
	}
}

func TestPool_WorkerSurvivesPanic(t *testing.T) {
	exec := ExecutorFunc(func(_ context.Context, t chunk.Task) (chunk.Result, error) {
		if t.Enqueued == 1 {
			panic("mesher blew up")
		}
		return chunk.Result{Found: true}, nil
	})
	mb := NewMailbox()
	p := NewPool("compute", 1, exec, mb, nil)
	defer p.Close(DrainQueued)

	if err := p.Queue(0).PushBatch([]chunk.Task{task(0, 1), task(0, 2)}); err != nil {
		t.Fatalf("PushBatch: %v", err)
	}
	done := waitCompletions(t, mb, 2)
	var pe *PanicError
	if !errors.As(done[0].Err, &pe) || pe.Value != "mesher blew up" {
		t.Fatalf("first err=%v", done[0].Err)
	}
	if done[1].Err != nil || !done[1].Result.Found {
		t.Fatalf("second completion=%+v", done[1])
	}
	if st := p.Stats()[0]; st.Failed != 1 || st.Executed != 2 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestPool_CloseDrainRunsQueued(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, chunk.Task) (chunk.Result, error) { return chunk.Result{}, nil })
	mb := NewMailbox()
	p := NewPool("io", 2, exec, mb, nil)
	for i := 0; i < 10; i++ {
		if err := p.Queue(uint32(i)).PushBatch([]chunk.Task{task(uint32(i), uint64(i))}); err != nil {
			t.Fatalf("PushBatch: %v", err)
		}
	}
	if n := p.Close(DrainQueued); n != 0 {
		t.Fatalf("discarded=%d", n)
	}
	done := mb.Drain()
	if len(done) != 10 {
		t.Fatalf("completions=%d want 10", len(done))
	}
	for _, c := range done {
		if c.Err != nil {
			t.Fatalf("err=%v", c.Err)
		}
	}
	if p.Close(DrainQueued) != 0 {
		t.Fatalf("second close should be a no-op")
	}
}

func TestPool_CloseDiscardReportsDropped(t *testing.T) {
	started := make(chan struct{})
	exec := ExecutorFunc(func(ctx context.Context, t chunk.Task) (chunk.Result, error) {
		if t.Enqueued == 1 {
			close(started)
			<-ctx.Done()
			return chunk.Result{}, ctx.Err()
		}
		return chunk.Result{}, nil
	})
	mb := NewMailbox()
	p := NewPool("io", 1, exec, mb, nil)
	if err := p.Queue(0).PushBatch([]chunk.Task{task(0, 1), task(0, 2), task(0, 3)}); err != nil {
		t.Fatalf("PushBatch: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatalf("first task never started")
	}
	if n := p.Close(DiscardQueued); n != 2 {
		t.Fatalf("discarded=%d want 2", n)
	}
	done := mb.Drain()
	if len(done) != 3 {
		t.Fatalf("completions=%d want 3", len(done))
	}
	if !errors.Is(done[0].Err, context.Canceled) {
		t.Fatalf("in-flight task err=%v", done[0].Err)
	}
	for _, c := range done[1:] {
		if !errors.Is(c.Err, ErrPoolClosed) {
			t.Fatalf("dropped task err=%v", c.Err)
		}
	}
}

func TestPoolStrategy_ClosedPoolReportsFailures(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, chunk.Task) (chunk.Result, error) { return chunk.Result{}, nil })
	mb := NewMailbox()
	p := NewPool("compute", 1, exec, mb, nil)
	p.Close(DrainQueued)

	s := NewWorkScheduler(NewPoolStrategy(p))
	s.Submit(task(4, 1))
	s.Commit()
	done := mb.Drain()
	if len(done) != 1 || !errors.Is(done[0].Err, ErrPoolClosed) {
		t.Fatalf("completions=%+v", done)
	}
}
