package terrain

import (
	"context"
	"testing"

	"voxelstream.ai/internal/stream/chunk"
)

func generate(t *testing.T, g *Generator, c chunk.Coord) *chunk.Chunk {
	t.Helper()
	ch := chunk.New(c)
	if err := g.Generate(context.Background(), ch); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return ch
}

func TestGenerate_Deterministic(t *testing.T) {
	for _, c := range []chunk.Coord{{X: 0, Y: 1, Z: 0}, {X: -3, Y: 0, Z: 7}, {X: 12, Y: 1, Z: -9}} {
		a := generate(t, New(DefaultParams(42)), c)
		b := generate(t, New(DefaultParams(42)), c)
		if chunk.Digest(a.Blocks) != chunk.Digest(b.Blocks) {
			t.Fatalf("chunk %+v differs between runs", c)
		}
	}
}

func TestGenerate_SpawnIsFlat(t *testing.T) {
	p := DefaultParams(7)
	g := New(p)
	for x := -3; x <= 3; x++ {
		for z := -3; z <= 3; z++ {
			if h := g.Height(x, z); h != p.BaseHeight {
				t.Fatalf("height(%d,%d)=%d want %d", x, z, h, p.BaseHeight)
			}
		}
	}
	c := generate(t, g, chunk.CoordOf(0, p.BaseHeight, 0))
	ly := p.BaseHeight - c.Coord.Y*chunk.Size
	top := c.Get(0, ly, 0)
	if top != Grass && top != Sand {
		t.Fatalf("surface block=%d", top)
	}
	if above := c.Get(0, ly+1, 0); above != Air && above != Log {
		t.Fatalf("block above surface=%d", above)
	}
	if below := c.Get(0, ly-1, 0); below == Air {
		t.Fatalf("block below surface is air")
	}
}

func TestGenerate_BedrockFloor(t *testing.T) {
	p := DefaultParams(1)
	g := New(p)
	c := generate(t, g, chunk.CoordOf(0, p.BedrockY, 0))
	ly := p.BedrockY - c.Coord.Y*chunk.Size
	for x := 0; x < chunk.Size; x++ {
		if b := c.Get(x, ly, 0); b != Bedrock {
			t.Fatalf("x=%d block=%d want bedrock", x, b)
		}
		if ly > 0 && c.Get(x, ly-1, 0) != Air {
			t.Fatalf("below bedrock should be air")
		}
	}
}

func TestGenerate_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(DefaultParams(1)).Generate(ctx, chunk.New(chunk.Coord{})); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestValueNoiseRange(t *testing.T) {
	for x := -100; x < 100; x += 7 {
		for z := -100; z < 100; z += 5 {
			v := ValueNoise(3, x, z, 16)
			if v < 0 || v >= 1 {
				t.Fatalf("noise(%d,%d)=%f out of range", x, z, v)
			}
		}
	}
}
