// Package terrain is the default generation collaborator: a seeded height
// field with biome bands and ore clusters. Output depends only on the seed and
// the chunk coordinate.
package terrain

import (
	"context"

	"voxelstream.ai/internal/stream/chunk"
	"voxelstream.ai/internal/stream/mathx"
)

const (
	Air uint16 = iota
	Stone
	Dirt
	Grass
	Sand
	Gravel
	Log
	CoalOre
	IronOre
	CopperOre
	CrystalOre
	Bedrock
)

type Params struct {
	Seed            int64
	BaseHeight      int
	Amplitude       int
	NoisePeriod     int
	BiomeRegionSize int
	// SpawnClearRadius flattens terrain to BaseHeight around the origin.
	SpawnClearRadius int
	// OreScalePermille scales every ore cluster probability.
	OreScalePermille int
	// BedrockY is the lowest solid layer; nothing is generated below it.
	BedrockY int
}

func DefaultParams(seed int64) Params {
	return Params{
		Seed:             seed,
		BaseHeight:       24,
		Amplitude:        20,
		NoisePeriod:      48,
		BiomeRegionSize:  128,
		SpawnClearRadius: 8,
		OreScalePermille: 1000,
		BedrockY:         -64,
	}
}

type Generator struct {
	p Params
}

func New(p Params) *Generator {
	if p.NoisePeriod <= 0 {
		p.NoisePeriod = 1
	}
	return &Generator{p: p}
}

func (g *Generator) Params() Params { return g.p }

// Height returns the surface height at world column (x,z).
func (g *Generator) Height(x, z int) int {
	p := g.p
	if p.SpawnClearRadius > 0 && x*x+z*z <= p.SpawnClearRadius*p.SpawnClearRadius {
		return p.BaseHeight
	}
	n := ValueNoise(p.Seed, x, z, p.NoisePeriod)
	// A second octave at a quarter of the period adds detail.
	n = n*0.75 + ValueNoise(p.Seed+1, x, z, max(1, p.NoisePeriod/4))*0.25
	h := p.BaseHeight + int(n*float64(p.Amplitude)) - p.Amplitude/2
	if BiomeAt(p.Seed, x, z, p.BiomeRegionSize) == Desert {
		h -= p.Amplitude / 4
	}
	return h
}

// Generate fills the chunk's voxel data. It only touches c.Blocks.
func (g *Generator) Generate(ctx context.Context, c *chunk.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.Blocks == nil || len(c.Blocks) != chunk.Volume {
		c.Blocks = make([]uint16, chunk.Volume)
	}
	baseX := c.Coord.X * chunk.Size
	baseY := c.Coord.Y * chunk.Size
	baseZ := c.Coord.Z * chunk.Size

	for z := 0; z < chunk.Size; z++ {
		for x := 0; x < chunk.Size; x++ {
			wx, wz := baseX+x, baseZ+z
			h := g.Height(wx, wz)
			biome := BiomeAt(g.p.Seed, wx, wz, g.p.BiomeRegionSize)
			for y := 0; y < chunk.Size; y++ {
				c.Blocks[x+z*chunk.Size+y*chunk.Size*chunk.Size] = g.blockAt(wx, baseY+y, wz, h, biome)
			}
		}
	}
	return nil
}

func (g *Generator) blockAt(x, y, z, height int, biome Biome) uint16 {
	p := g.p
	switch {
	case y < p.BedrockY:
		return Air
	case y == p.BedrockY:
		return Bedrock
	case y > height:
		if biome == Forest && y <= height+4 && InCluster(p.Seed+201, x, z, 24, 1, 60) {
			return Log
		}
		return Air
	case y == height:
		if biome == Desert {
			return Sand
		}
		return Grass
	case y > height-4:
		if biome == Desert {
			return Sand
		}
		if InCluster(p.Seed+403, x, z, 96, 2, 180) {
			return Gravel
		}
		return Dirt
	}
	return g.underground(x, y, z)
}

func (g *Generator) underground(x, y, z int) uint16 {
	p := g.p
	// Ore clusters are columns of the 2D cluster mask, thinned per block.
	thin := mathx.Hash3(p.Seed+7, x, y, z) % 1000
	switch {
	case y < 0 && thin < 500 && InCluster(p.Seed+101, x, z, 96, 2, ScalePermille(200, p.OreScalePermille)):
		return CrystalOre
	case thin < 600 && InCluster(p.Seed+102, x, z, 64, 3, ScalePermille(450, p.OreScalePermille)):
		return IronOre
	case thin < 600 && InCluster(p.Seed+103, x, z, 64, 3, ScalePermille(450, p.OreScalePermille)):
		return CopperOre
	case thin < 700 && InCluster(p.Seed+104, x, z, 32, 4, ScalePermille(650, p.OreScalePermille)):
		return CoalOre
	}
	return Stone
}
