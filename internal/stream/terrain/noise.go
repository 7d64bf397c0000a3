package terrain

import "voxelstream.ai/internal/stream/mathx"

type Biome string

const (
	Plains Biome = "PLAINS"
	Forest Biome = "FOREST"
	Desert Biome = "DESERT"
)

func BiomeFrom(noise uint64) Biome {
	switch noise % 3 {
	case 0:
		return Plains
	case 1:
		return Forest
	default:
		return Desert
	}
}

func BiomeAt(seed int64, x, z, regionSize int) Biome {
	if regionSize <= 0 {
		regionSize = 1
	}
	rx := mathx.FloorDiv(x, regionSize)
	rz := mathx.FloorDiv(z, regionSize)
	return BiomeFrom(mathx.Hash2(seed, rx, rz))
}

func ClampPermille(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}

func ScalePermille(base uint64, scalePermille int) uint64 {
	if scalePermille <= 0 {
		scalePermille = 1000
	}
	scaled := (base*uint64(scalePermille) + 500) / 1000
	if scaled > 1000 {
		return 1000
	}
	return scaled
}

// InCluster reports whether (x,z) falls in one of the round clusters seeded on
// a jittered grid. Neighbouring cells are checked so clusters cross cell edges.
func InCluster(seed int64, x, z, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := mathx.FloorDiv(x, grid)
	gz := mathx.FloorDiv(z, grid)
	r2 := radius * radius

	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgz := gz + dz
			h := mathx.Hash2(seed, cgx, cgz)
			if h%1000 >= probPermille {
				continue
			}

			ox := int((h >> 10) % uint64(grid))
			oz := int((h >> 20) % uint64(grid))
			ddx := x - (cgx*grid + ox)
			ddz := z - (cgz*grid + oz)
			if ddx*ddx+ddz*ddz <= r2 {
				return true
			}
		}
	}
	return false
}

// lattice returns a value in [0,1) for an integer lattice point.
func lattice(seed int64, x, z int) float64 {
	return float64(mathx.Hash2(seed, x, z)>>11) / float64(1<<53)
}

func smooth(t float64) float64 { return t * t * (3 - 2*t) }

// ValueNoise is bilinear value noise over a lattice with the given period,
// smoothed with a cubic fade. The result is in [0,1).
func ValueNoise(seed int64, x, z, period int) float64 {
	if period <= 1 {
		return lattice(seed, x, z)
	}
	gx := mathx.FloorDiv(x, period)
	gz := mathx.FloorDiv(z, period)
	tx := smooth(float64(mathx.Mod(x, period)) / float64(period))
	tz := smooth(float64(mathx.Mod(z, period)) / float64(period))

	v00 := lattice(seed, gx, gz)
	v10 := lattice(seed, gx+1, gz)
	v01 := lattice(seed, gx, gz+1)
	v11 := lattice(seed, gx+1, gz+1)
	a := v00 + (v10-v00)*tx
	b := v01 + (v11-v01)*tx
	return a + (b-a)*tz
}
