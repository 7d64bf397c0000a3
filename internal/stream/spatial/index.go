// Package spatial implements circular addressing for a sliding window of chunk
// coordinates over fixed-capacity storage.
package spatial

import (
	"fmt"

	"voxelstream.ai/internal/stream/mathx"
)

type Vec3 struct {
	X, Y, Z int
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

type slot[T any] struct {
	used  bool
	coord Vec3
	value T
}

// Index stores at most one value per live coordinate. The live window is the
// box [origin, origin+capacity). A coordinate addresses slot
// (coord - origin + offset) mod capacity on every axis; Recenter moves the
// origin and advances the offset by the same delta, so a coordinate that stays
// inside the window keeps its slot and no memory moves.
type Index[T any] struct {
	capacity Vec3
	origin   Vec3
	offset   Vec3
	slots    []slot[T]
	count    int
}

func New[T any](capacity Vec3) *Index[T] {
	if capacity.X <= 0 || capacity.Y <= 0 || capacity.Z <= 0 {
		panic(fmt.Sprintf("spatial: capacity must be positive, got %+v", capacity))
	}
	return &Index[T]{
		capacity: capacity,
		slots:    make([]slot[T], capacity.X*capacity.Y*capacity.Z),
	}
}

func (ix *Index[T]) Capacity() Vec3 { return ix.capacity }
func (ix *Index[T]) Origin() Vec3   { return ix.origin }
func (ix *Index[T]) Offset() Vec3   { return ix.offset }
func (ix *Index[T]) Len() int       { return ix.count }

// Contains reports whether c lies inside the live window.
func (ix *Index[T]) Contains(c Vec3) bool {
	d := c.Sub(ix.origin)
	return d.X >= 0 && d.X < ix.capacity.X &&
		d.Y >= 0 && d.Y < ix.capacity.Y &&
		d.Z >= 0 && d.Z < ix.capacity.Z
}

// Slot returns the storage slot for c. Addressing a coordinate outside the
// live window is a contract violation and panics.
func (ix *Index[T]) Slot(c Vec3) int {
	if !ix.Contains(c) {
		panic(fmt.Sprintf("spatial: coordinate %+v outside live window origin=%+v capacity=%+v", c, ix.origin, ix.capacity))
	}
	r := c.Sub(ix.origin).Add(ix.offset)
	x := mathx.Mod(r.X, ix.capacity.X)
	y := mathx.Mod(r.Y, ix.capacity.Y)
	z := mathx.Mod(r.Z, ix.capacity.Z)
	return x + ix.capacity.X*(z+ix.capacity.Z*y)
}

func (ix *Index[T]) Get(c Vec3) (T, bool) {
	var zero T
	if !ix.Contains(c) {
		return zero, false
	}
	s := &ix.slots[ix.Slot(c)]
	if !s.used || s.coord != c {
		return zero, false
	}
	return s.value, true
}

// Set stores v for c. The slot must be empty or already owned by c; a
// previous occupant has to be deleted by the caller first.
func (ix *Index[T]) Set(c Vec3, v T) {
	s := &ix.slots[ix.Slot(c)]
	if s.used && s.coord != c {
		panic(fmt.Sprintf("spatial: slot for %+v still owned by %+v", c, s.coord))
	}
	if !s.used {
		ix.count++
	}
	s.used = true
	s.coord = c
	s.value = v
}

// Free reports whether c could be stored without evicting another occupant.
func (ix *Index[T]) Free(c Vec3) bool {
	if !ix.Contains(c) {
		return false
	}
	s := &ix.slots[ix.Slot(c)]
	return !s.used || s.coord == c
}

// Delete frees the slot owned by c. Occupants that already left the window
// can still be deleted, which is how stale slots get flushed.
func (ix *Index[T]) Delete(c Vec3) bool {
	if ix.Contains(c) {
		s := &ix.slots[ix.Slot(c)]
		if !s.used || s.coord != c {
			return false
		}
		*s = slot[T]{}
		ix.count--
		return true
	}
	for i := range ix.slots {
		s := &ix.slots[i]
		if s.used && s.coord == c {
			*s = slot[T]{}
			ix.count--
			return true
		}
	}
	return false
}

// Recenter moves the live window to start at origin and advances the offset by
// the same delta. It returns the occupants now outside the window; they keep
// their slots until deleted.
func (ix *Index[T]) Recenter(origin Vec3) []Vec3 {
	delta := origin.Sub(ix.origin)
	if delta == (Vec3{}) {
		return nil
	}
	ix.origin = origin
	ix.offset = Vec3{
		X: mathx.Mod(ix.offset.X+delta.X, ix.capacity.X),
		Y: mathx.Mod(ix.offset.Y+delta.Y, ix.capacity.Y),
		Z: mathx.Mod(ix.offset.Z+delta.Z, ix.capacity.Z),
	}
	var stale []Vec3
	for i := range ix.slots {
		s := &ix.slots[i]
		if s.used && !ix.Contains(s.coord) {
			stale = append(stale, s.coord)
		}
	}
	return stale
}

// Each calls fn for every occupant, including ones outside the window.
func (ix *Index[T]) Each(fn func(c Vec3, v T)) {
	for i := range ix.slots {
		s := &ix.slots[i]
		if s.used {
			fn(s.coord, s.value)
		}
	}
}
