package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/observerproto"
	persistlog "voxelstream.ai/internal/persistence/log"
	"voxelstream.ai/internal/stream/chunk"
	"voxelstream.ai/internal/stream/sched"
	"voxelstream.ai/internal/stream/tuning"
	"voxelstream.ai/internal/stream/world"
	"voxelstream.ai/internal/transport/observer"
)

const failureHistory = 32

// status is the copy of runner state readable from HTTP handlers.
type status struct {
	Cycle      uint64              `json:"cycle"`
	Viewpoint  [3]float32          `json:"viewpoint"`
	Center     [3]int              `json:"center"`
	Loaded     int                 `json:"loaded"`
	InFlight   int                 `json:"in_flight"`
	StepMS     float64             `json:"step_ms"`
	Machine    chunk.MachineStats  `json:"machine"`
	Compute    []sched.WorkerStats `json:"compute_workers"`
	IO         []sched.WorkerStats `json:"io_workers"`
	Failures   []failureView       `json:"recent_failures"`
	LastUpdate world.UpdateStats   `json:"last_update"`
}

type failureView struct {
	Cycle    uint64 `json:"cycle"`
	Coord    [3]int `json:"coord"`
	Task     string `json:"task"`
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
	Parked   bool   `json:"parked"`
}

var errRunnerStopped = errors.New("runner stopped")

// runner owns the world and drives it at the tick rate. Everything that
// touches the world goes through ops so it runs on the loop goroutine.
type runner struct {
	w       *world.World
	tune    tuning.Tuning
	runID   string
	started time.Time
	path    viewpointPath

	hub    *observer.Hub
	cycles *persistlog.CycleLogger
	log    *log.Logger

	ops  chan func(*world.World)
	done chan struct{}

	mu sync.Mutex
	st status
}

func newRunner(w *world.World, tune tuning.Tuning, runID string, path viewpointPath, hub *observer.Hub, cycles *persistlog.CycleLogger, logger *log.Logger) *runner {
	return &runner{
		w:       w,
		tune:    tune,
		runID:   runID,
		started: time.Now().UTC(),
		path:    path,
		hub:     hub,
		cycles:  cycles,
		log:     logger,
		ops:     make(chan func(*world.World), 16),
		done:    make(chan struct{}),
	}
}

// run ticks until ctx is done or maxCycles updates ran (0 = unbounded).
func (r *runner) run(ctx context.Context, maxCycles uint64) {
	defer close(r.done)
	ticker := time.NewTicker(r.tune.TickInterval())
	defer ticker.Stop()
	begin := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-r.ops:
			op(r.w)
		case now := <-ticker.C:
			st := r.step(now.Sub(begin))
			if maxCycles > 0 && st.Cycle >= maxCycles {
				return
			}
		}
	}
}

func (r *runner) step(elapsed time.Duration) world.UpdateStats {
	vp := r.path.At(elapsed)
	st := r.w.Update(vp)
	fails := r.w.Failures()
	for _, f := range fails {
		if f.Parked {
			r.log.Printf("chunk %d,%d,%d parked: %s failed %d times: %v", f.Coord.X, f.Coord.Y, f.Coord.Z, f.Kind, f.Attempts, f.Err)
		}
	}
	r.record(vp, st)
	r.publish(vp, st, fails)
	return st
}

func (r *runner) record(vp mgl32.Vec3, st world.UpdateStats) {
	if r.cycles == nil {
		return
	}
	err := r.cycles.WriteCycle(persistlog.CycleRecord{
		RunID:       r.runID,
		Cycle:       st.Cycle,
		Viewpoint:   [3]float32{vp.X(), vp.Y(), vp.Z()},
		Center:      coordArr(st.Center),
		Loaded:      st.Loaded,
		Admitted:    st.Admitted,
		Evicted:     st.Evicted,
		Reaped:      st.Reaped,
		Completions: st.Completions,
		Dispatched:  st.Compute.Dispatched + st.IO.Dispatched,
		Deferred:    st.Compute.Deferred + st.IO.Deferred,
		Failures:    st.Failures,
		DurationUs:  st.Duration.Microseconds(),
	})
	if err != nil {
		r.log.Printf("cycle journal: %v", err)
	}
	// Flush about once per second so a crash loses little.
	if rate := uint64(r.tune.TickRateHz); rate > 0 && st.Cycle%rate == 0 {
		_ = r.cycles.Flush()
	}
}

func (r *runner) publish(vp mgl32.Vec3, st world.UpdateStats, fails []world.Failure) {
	if r.hub != nil {
		r.hub.PublishCycle(observerproto.CycleMsg{
			Type:            observerproto.TypeCycle,
			ProtocolVersion: observerproto.Version,
			RunID:           r.runID,
			Cycle:           st.Cycle,
			Center:          coordArr(st.Center),
			Loaded:          st.Loaded,
			Admitted:        st.Admitted,
			Evicted:         st.Evicted,
			Completions:     st.Completions,
			Dispatched:      st.Compute.Dispatched + st.IO.Dispatched,
			Deferred:        st.Compute.Deferred + st.IO.Deferred,
			Failures:        st.Failures,
		})
	}

	compute, io := r.w.PoolStats()
	inFlight := r.w.InFlight()
	machine := r.w.MachineStats()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.Cycle = st.Cycle
	r.st.Viewpoint = [3]float32{vp.X(), vp.Y(), vp.Z()}
	r.st.Center = coordArr(st.Center)
	r.st.Loaded = st.Loaded
	r.st.InFlight = inFlight
	r.st.StepMS = float64(st.Duration.Microseconds()) / 1000
	r.st.Machine = machine
	r.st.Compute = compute
	r.st.IO = io
	r.st.LastUpdate = st
	for _, f := range fails {
		r.st.Failures = append(r.st.Failures, failureView{
			Cycle:    st.Cycle,
			Coord:    coordArr(f.Coord),
			Task:     string(f.Kind),
			Error:    f.Err.Error(),
			Attempts: f.Attempts,
			Parked:   f.Parked,
		})
	}
	if n := len(r.st.Failures); n > failureHistory {
		r.st.Failures = append([]failureView(nil), r.st.Failures[n-failureHistory:]...)
	}
}

func (r *runner) Status() status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.st
	out.Failures = append([]failureView(nil), r.st.Failures...)
	return out
}

// do runs fn on the loop goroutine and waits for it.
func (r *runner) do(ctx context.Context, fn func(*world.World)) error {
	finished := make(chan struct{})
	op := func(w *world.World) {
		defer close(finished)
		fn(w)
	}
	select {
	case r.ops <- op:
	case <-r.done:
		return errRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		// The loop may have exited after taking op; it is never run then.
		select {
		case <-finished:
			return nil
		default:
			return errRunnerStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *runner) Bootstrap() observerproto.BootstrapResponse {
	st := r.Status()
	persist := r.tune.Persistence.Enabled
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		RunID:           r.runID,
		StartedAt:       r.started.Format(time.RFC3339),
		Cycle:           st.Cycle,
		Center:          st.Center,
		Loaded:          st.Loaded,
		StreamParams: observerproto.StreamParams{
			TickRateHz:   r.tune.TickRateHz,
			ChunkSize:    [3]int{chunk.Size, chunk.Size, chunk.Size},
			LoadRadius:   r.tune.LoadRadius,
			UnloadRadius: r.tune.UnloadRadius,
			LayerMin:     r.tune.LayerMin,
			Layers:       r.tune.Layers,
			Seed:         r.tune.Seed,
			Persistence:  persist,
		},
	}
}

func coordArr(c chunk.Coord) [3]int { return [3]int{c.X, c.Y, c.Z} }

func parseCoord(s string) (chunk.Coord, error) {
	var c chunk.Coord
	if _, err := fmt.Sscanf(s, "%d,%d,%d", &c.X, &c.Y, &c.Z); err != nil {
		return c, fmt.Errorf("bad coord %q (want x,y,z): %w", s, err)
	}
	return c, nil
}
