// Package meshing builds render geometry for a chunk's voxels. The geometry is
// opaque to the streaming core: it only stores the returned Buffer.
package meshing

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// VertexStride is the number of float32 per vertex (pos.xyz + normal.xyz).
const VertexStride = 6

// Air is the empty block id; air never produces faces.
const Air uint16 = 0

type Buffer struct {
	Vertices []float32
	Faces    int
}

func (b *Buffer) VertexCount() int {
	if b == nil {
		return 0
	}
	return len(b.Vertices) / VertexStride
}

type face struct {
	dx, dy, dz int
	normal     mgl32.Vec3
	// corners relative to the block's min corner, counter-clockwise seen from outside
	corners [4]mgl32.Vec3
}

var faces = [6]face{
	{1, 0, 0, mgl32.Vec3{1, 0, 0}, [4]mgl32.Vec3{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{-1, 0, 0, mgl32.Vec3{-1, 0, 0}, [4]mgl32.Vec3{{0, 0, 1}, {0, 1, 1}, {0, 1, 0}, {0, 0, 0}}},
	{0, 1, 0, mgl32.Vec3{0, 1, 0}, [4]mgl32.Vec3{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	{0, -1, 0, mgl32.Vec3{0, -1, 0}, [4]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{0, 0, 1, mgl32.Vec3{0, 0, 1}, [4]mgl32.Vec3{{1, 0, 1}, {1, 1, 1}, {0, 1, 1}, {0, 0, 1}}},
	{0, 0, -1, mgl32.Vec3{0, 0, -1}, [4]mgl32.Vec3{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
}

// Build emits two triangles for every solid block face whose neighbour is air.
// blocks is a size³ volume indexed x + z*size + y*size*size; faces on the
// volume boundary are treated as exposed. origin is the world-space position
// of the volume's min corner.
func Build(blocks []uint16, size int, origin mgl32.Vec3) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("meshing: bad size %d", size)
	}
	if blocks == nil {
		return &Buffer{}, nil
	}
	if len(blocks) != size*size*size {
		return nil, fmt.Errorf("meshing: %d blocks for size %d", len(blocks), size)
	}

	solid := func(x, y, z int) bool {
		if x < 0 || y < 0 || z < 0 || x >= size || y >= size || z >= size {
			return false
		}
		return blocks[x+z*size+y*size*size] != Air
	}

	out := &Buffer{Vertices: make([]float32, 0, 1024)}
	for y := 0; y < size; y++ {
		for z := 0; z < size; z++ {
			for x := 0; x < size; x++ {
				if !solid(x, y, z) {
					continue
				}
				base := origin.Add(mgl32.Vec3{float32(x), float32(y), float32(z)})
				for i := range faces {
					f := &faces[i]
					if solid(x+f.dx, y+f.dy, z+f.dz) {
						continue
					}
					out.emitQuad(base, f)
				}
			}
		}
	}
	return out, nil
}

func (b *Buffer) emitQuad(base mgl32.Vec3, f *face) {
	// v0,v1,v2 then v2,v3,v0
	for _, i := range [6]int{0, 1, 2, 2, 3, 0} {
		p := base.Add(f.corners[i])
		b.Vertices = append(b.Vertices, p[0], p[1], p[2], f.normal[0], f.normal[1], f.normal[2])
	}
	b.Faces++
}
