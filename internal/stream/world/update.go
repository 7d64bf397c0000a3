package world

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/stream/chunk"
	"voxelstream.ai/internal/stream/loadorder"
	"voxelstream.ai/internal/stream/mathx"
	"voxelstream.ai/internal/stream/sched"
	"voxelstream.ai/internal/stream/spatial"
)

type UpdateStats struct {
	Cycle       uint64
	Center      chunk.Coord
	Completions int
	Failures    int
	Evicted     int
	Admitted    int
	Reaped      int
	Loaded      int
	Compute     sched.CommitStats
	IO          sched.CommitStats
	Duration    time.Duration
}

// Update runs one streaming cycle around the viewpoint.
func (w *World) Update(viewpoint mgl32.Vec3) UpdateStats {
	start := time.Now()
	w.cycle++
	st := UpdateStats{Cycle: w.cycle}
	if w.closed || w.closing {
		st.Center = w.center
		st.Loaded = len(w.chunks)
		return st
	}

	st.Completions, st.Failures = w.pump()

	cd := w.compute.RunDeferred()
	id := w.io.RunDeferred()

	center := chunk.Coord{
		X: mathx.CellOf(viewpoint.X(), chunk.Size),
		Y: w.cfg.LayerMin,
		Z: mathx.CellOf(viewpoint.Z(), chunk.Size),
	}
	st.Center = center
	st.Evicted = w.recenter(center)
	st.Admitted = w.admit(center)

	st.Compute = sched.Merge(cd, w.compute.Commit())
	st.IO = sched.Merge(id, w.io.Commit())

	st.Reaped = w.reap()
	st.Loaded = len(w.chunks)
	st.Duration = time.Since(start)
	return st
}

// pump applies every delivered completion and runs the failure policy.
func (w *World) pump() (completions, failures int) {
	for _, done := range w.mailbox.Drain() {
		c := done.Task.Chunk
		w.machine.Complete(done)
		completions++
		if done.Err == nil {
			if c.State() == chunk.Ready {
				delete(w.retries, c.Coord)
			}
			continue
		}
		failures++
		w.onFailure(c, done)
	}
	return completions, failures
}

func (w *World) onFailure(c *chunk.Chunk, done chunk.Completion) {
	f := Failure{Coord: c.Coord, Kind: done.Task.Kind, Err: done.Err}
	if c.State() != chunk.Failed || w.closing {
		// Already on its way out.
		w.failures = append(w.failures, f)
		return
	}
	w.retries[c.Coord]++
	f.Attempts = w.retries[c.Coord]
	if f.Attempts > w.cfg.MaxRetries {
		f.Parked = true
		w.failures = append(w.failures, f)
		w.log.Printf("chunk %d,%d,%d parked after %d failures: %v", c.Coord.X, c.Coord.Y, c.Coord.Z, f.Attempts, done.Err)
		return
	}
	w.failures = append(w.failures, f)
	w.retry(c, done.Task.Kind)
}

func (w *World) retry(c *chunk.Chunk, kind chunk.Kind) {
	switch {
	case kind == chunk.KindLoad:
		w.machine.RequestState(c, chunk.Loading)
	case c.SaveEligible:
		w.machine.RequestState(c, chunk.MeshBuilding)
	default:
		w.machine.RequestState(c, chunk.Generating)
	}
}

// recenter moves the window and requests removal of every chunk beyond the
// unload radius or outside the vertical layer band.
func (w *World) recenter(center chunk.Coord) int {
	if w.centered && center == w.center {
		return 0
	}
	w.center = center
	w.centered = true
	u := w.cfg.UnloadRadius
	w.index.Recenter(spatial.Vec3{X: center.X - u, Y: w.cfg.LayerMin, Z: center.Z - u})

	var out []*chunk.Chunk
	w.index.Each(func(_ spatial.Vec3, c *chunk.Chunk) {
		if !w.inRange(c.Coord, u) {
			out = append(out, c)
		}
	})
	n := 0
	for _, c := range out {
		if w.evict(c) {
			n++
		}
	}
	return n
}

func (w *World) inRange(c chunk.Coord, radius int) bool {
	if c.Y < w.cfg.LayerMin || c.Y >= w.cfg.LayerMin+w.cfg.Layers {
		return false
	}
	dx, dz := c.X-w.center.X, c.Z-w.center.Z
	return dx*dx+dz*dz <= radius*radius
}

func (w *World) evict(c *chunk.Chunk) bool {
	switch c.State() {
	case chunk.Removing, chunk.Removed:
		return false
	}
	if c.RemovePending() {
		return false
	}
	return w.machine.RequestState(c, chunk.Removing) != chunk.Rejected
}

// admit walks the load order around center and creates missing chunks.
func (w *World) admit(center chunk.Coord) int {
	n := 0
	for _, off := range loadorder.ChunkPositions(w.cfg.LoadRadius) {
		for y := 0; y < w.cfg.Layers; y++ {
			if w.cfg.MaxAdmitPerCycle > 0 && n >= w.cfg.MaxAdmitPerCycle {
				return n
			}
			coord := chunk.Coord{X: center.X + off.X, Y: w.cfg.LayerMin + y, Z: center.Z + off.Z}
			if _, ok := w.chunks[coord]; ok {
				continue
			}
			// A stale occupant still owns the slot until it is reaped.
			if !w.index.Free(coord.Vec()) {
				continue
			}
			c := chunk.New(coord)
			w.index.Set(coord.Vec(), c)
			w.chunks[coord] = c
			if w.store != nil {
				w.machine.RequestState(c, chunk.Loading)
			} else {
				w.machine.RequestState(c, chunk.Generating)
			}
			n++
		}
	}
	return n
}

// reap drops chunks that reached Removed and frees their slots.
func (w *World) reap() int {
	n := 0
	for coord, c := range w.chunks {
		if c.State() != chunk.Removed {
			continue
		}
		delete(w.chunks, coord)
		delete(w.retries, coord)
		w.index.Delete(coord.Vec())
		n++
	}
	return n
}

// commit flushes both schedulers outside of a full Update.
func (w *World) commit() {
	w.compute.Commit()
	w.io.Commit()
}
