package world

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/stream/chunk"
	"voxelstream.ai/internal/stream/meshing"
)

// Execute runs one task against the collaborators. It is called on pool
// workers (or inline) and touches only the task's chunk.
func (w *World) Execute(ctx context.Context, t chunk.Task) (chunk.Result, error) {
	c := t.Chunk
	switch t.Kind {
	case chunk.KindLoad:
		rec, ok, err := w.store.Load(ctx, c.Coord)
		if err != nil || !ok {
			return chunk.Result{}, err
		}
		c.Blocks = rec.Blocks
		return chunk.Result{Found: true}, nil

	case chunk.KindGenerate:
		return chunk.Result{}, w.gen.Generate(ctx, c)

	case chunk.KindBuildMesh:
		buf, err := w.mesher.BuildMesh(c)
		return chunk.Result{Mesh: buf}, err

	case chunk.KindPrepareSave:
		return chunk.Result{Record: c.Snapshot()}, nil

	case chunk.KindSerialize:
		return chunk.Result{}, w.store.Save(ctx, t.Record)

	case chunk.KindRemove:
		return chunk.Result{}, nil
	}
	return chunk.Result{}, fmt.Errorf("world: unknown task kind %q", t.Kind)
}

// FaceMesher meshes a chunk in isolation: faces on the chunk boundary are
// always emitted.
type FaceMesher struct{}

func (FaceMesher) BuildMesh(c *chunk.Chunk) (*meshing.Buffer, error) {
	origin := mgl32.Vec3{
		float32(c.Coord.X * chunk.Size),
		float32(c.Coord.Y * chunk.Size),
		float32(c.Coord.Z * chunk.Size),
	}
	return meshing.Build(c.Blocks, chunk.Size, origin)
}
