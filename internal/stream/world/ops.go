package world

import (
	"context"
	"fmt"
	"time"

	"voxelstream.ai/internal/stream/chunk"
	"voxelstream.ai/internal/stream/loadorder"
	"voxelstream.ai/internal/stream/mathx"
	"voxelstream.ai/internal/stream/sched"
)

// SaveAll requests a save for every loaded chunk that can start one now, in
// load order around the current center, and commits the work.
func (w *World) SaveAll() []chunk.Coord {
	if w.closed {
		return nil
	}
	accepted := w.machine.SaveAll(w.inLoadOrder())
	out := make([]chunk.Coord, len(accepted))
	for i, c := range accepted {
		out[i] = c.Coord
	}
	w.commit()
	return out
}

// inLoadOrder lists loaded chunks nearest-first; chunks beyond the unload
// radius follow in no particular order.
func (w *World) inLoadOrder() []*chunk.Chunk {
	out := make([]*chunk.Chunk, 0, len(w.chunks))
	seen := make(map[chunk.Coord]bool, len(w.chunks))
	for _, off := range loadorder.ChunkPositions(w.cfg.UnloadRadius) {
		for y := 0; y < w.cfg.Layers; y++ {
			coord := chunk.Coord{X: w.center.X + off.X, Y: w.cfg.LayerMin + y, Z: w.center.Z + off.Z}
			if c, ok := w.chunks[coord]; ok {
				out = append(out, c)
				seen[coord] = true
			}
		}
	}
	for coord, c := range w.chunks {
		if !seen[coord] {
			out = append(out, c)
		}
	}
	return out
}

func (w *World) Chunk(c chunk.Coord) (*chunk.Chunk, bool) {
	ch, ok := w.chunks[c]
	return ch, ok
}

func (w *World) Loaded() int { return len(w.chunks) }

// InFlight counts chunks with an outstanding task.
func (w *World) InFlight() int {
	n := 0
	for _, c := range w.chunks {
		if c.State().InFlight() {
			n++
		}
	}
	return n
}

// Failures returns and clears the failures collected since the last call.
func (w *World) Failures() []Failure {
	out := w.failures
	w.failures = nil
	return out
}

func (w *World) RequestRemesh(c chunk.Coord) (chunk.Verdict, error) {
	ch, ok := w.chunks[c]
	if !ok {
		return chunk.Rejected, ErrNotLoaded
	}
	return w.machine.RequestState(ch, chunk.MeshBuilding), nil
}

// Requeue regenerates a parked chunk.
func (w *World) Requeue(c chunk.Coord) (chunk.Verdict, error) {
	ch, ok := w.chunks[c]
	if !ok {
		return chunk.Rejected, ErrNotLoaded
	}
	if ch.State() != chunk.Failed {
		return chunk.Rejected, fmt.Errorf("world: requeue %+v: state %s", c, ch.State())
	}
	delete(w.retries, c)
	return w.machine.RequestState(ch, chunk.Generating), nil
}

// Evict removes a parked chunk; it is re-admitted on a later cycle if it is
// still in range.
func (w *World) Evict(c chunk.Coord) (chunk.Verdict, error) {
	ch, ok := w.chunks[c]
	if !ok {
		return chunk.Rejected, ErrNotLoaded
	}
	if ch.State() != chunk.Failed {
		return chunk.Rejected, fmt.Errorf("world: evict %+v: state %s", c, ch.State())
	}
	delete(w.retries, c)
	return w.machine.RequestState(ch, chunk.Removing), nil
}

func split(x, y, z int) (chunk.Coord, int, int, int) {
	c := chunk.CoordOf(x, y, z)
	return c, mathx.Mod(x, chunk.Size), mathx.Mod(y, chunk.Size), mathx.Mod(z, chunk.Size)
}

// Block reads a world-space voxel from a Ready chunk.
func (w *World) Block(x, y, z int) (uint16, error) {
	c, lx, ly, lz := split(x, y, z)
	ch, ok := w.chunks[c]
	if !ok {
		return 0, ErrNotLoaded
	}
	if ch.State() != chunk.Ready {
		return 0, ErrNotReady
	}
	return ch.Get(lx, ly, lz), nil
}

// SetBlock edits a world-space voxel. Only Ready chunks accept edits since
// any other state has a task reading or writing the voxel data. A change
// marks the chunk dirty and requests a remesh.
func (w *World) SetBlock(x, y, z int, b uint16) error {
	c, lx, ly, lz := split(x, y, z)
	ch, ok := w.chunks[c]
	if !ok {
		return ErrNotLoaded
	}
	if ch.State() != chunk.Ready || !ch.SaveEligible {
		return ErrNotReady
	}
	if ch.Set(lx, ly, lz, b) {
		w.machine.RequestState(ch, chunk.MeshBuilding)
	}
	return nil
}

// Close saves dirty chunks, waits for in-flight work and stops the pools per
// the shutdown policy. It returns an error if ctx expired first; the pools are
// then closed with DiscardQueued.
func (w *World) Close(ctx context.Context) error {
	if w.closed {
		return ErrClosed
	}
	w.closing = true

	var err error
	for {
		if w.saveDirty() == 0 && w.InFlight() == 0 {
			break
		}
		if ctx.Err() != nil {
			err = fmt.Errorf("world: close with %d chunks in flight: %w", w.InFlight(), ctx.Err())
			break
		}
		w.settle(ctx)
	}

	policy := w.cfg.ShutdownPolicy
	if err != nil {
		policy = sched.DiscardQueued
	}
	if w.computePool != nil {
		w.computePool.Close(policy)
	}
	if w.ioPool != nil {
		w.ioPool.Close(policy)
	}
	w.pump()
	w.reap()
	w.closed = true
	return err
}

// saveDirty starts a save for every chunk with unsaved edits.
func (w *World) saveDirty() int {
	var dirty []*chunk.Chunk
	for _, c := range w.inLoadOrder() {
		if c.Dirty {
			dirty = append(dirty, c)
		}
	}
	n := len(w.machine.SaveAll(dirty))
	w.commit()
	return n
}

// settle advances in-flight work once: inline backlogs run on this goroutine,
// pool completions are awaited.
func (w *World) settle(ctx context.Context) {
	w.compute.RunDeferred()
	w.io.RunDeferred()
	if w.mailbox.Len() == 0 && (w.computePool != nil || w.ioPool != nil) {
		t := time.NewTimer(50 * time.Millisecond)
		select {
		case <-w.mailbox.Ready():
		case <-ctx.Done():
		case <-t.C:
		}
		t.Stop()
	}
	w.pump()
	w.commit()
}
