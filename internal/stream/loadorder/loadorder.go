// Package loadorder produces the nearest-first sequence of chunk offsets that
// the streamer walks around a viewpoint.
package loadorder

import (
	"sort"
	"sync"

	"voxelstream.ai/internal/stream/mathx"
)

type Offset struct {
	X, Z int
}

var (
	mu    sync.Mutex
	cache = map[int][]Offset{}
)

// ChunkPositions returns every offset with x²+z² <= radius², ordered by
// Manhattan distance, then |x|, then |z|, then x and z descending. The slice is
// shared between callers and must not be modified.
func ChunkPositions(radius int) []Offset {
	if radius < 0 {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	if out, ok := cache[radius]; ok {
		return out
	}
	out := generate(radius)
	cache[radius] = out
	return out
}

func generate(radius int) []Offset {
	r2 := radius * radius
	out := make([]Offset, 0, (2*radius+1)*(2*radius+1))
	for x := -radius; x <= radius; x++ {
		for z := -radius; z <= radius; z++ {
			if x*x+z*z > r2 {
				continue
			}
			out = append(out, Offset{X: x, Z: z})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	return out
}

func less(a, b Offset) bool {
	ax, az := mathx.AbsInt(a.X), mathx.AbsInt(a.Z)
	bx, bz := mathx.AbsInt(b.X), mathx.AbsInt(b.Z)
	if ax+az != bx+bz {
		return ax+az < bx+bz
	}
	if ax != bx {
		return ax < bx
	}
	if az != bz {
		return az < bz
	}
	if a.X != b.X {
		return a.X > b.X
	}
	return a.Z > b.Z
}
