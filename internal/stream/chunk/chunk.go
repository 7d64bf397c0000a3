package chunk

import (
	"crypto/sha256"
	"encoding/binary"

	"voxelstream.ai/internal/stream/mathx"
	"voxelstream.ai/internal/stream/meshing"
	"voxelstream.ai/internal/stream/spatial"
)

// Size is the edge length of a cubic chunk in blocks.
const (
	Size   = 16
	Volume = Size * Size * Size
)

type Coord struct {
	X, Y, Z int
}

func (c Coord) Vec() spatial.Vec3 { return spatial.Vec3(c) }

// CoordOf returns the chunk containing the world-space block position.
func CoordOf(x, y, z int) Coord {
	return Coord{X: mathx.FloorDiv(x, Size), Y: mathx.FloorDiv(y, Size), Z: mathx.FloorDiv(z, Size)}
}

type Chunk struct {
	Coord    Coord
	Affinity uint32

	// Blocks is owned by whichever task is in flight; the coordinator only
	// touches it while the chunk is Ready.
	Blocks []uint16
	Mesh   *meshing.Buffer

	SaveEligible bool
	Dirty        bool
	Err          error

	state       State
	requestTime uint64

	removeRequested bool
	remeshRequested bool
}

func New(c Coord) *Chunk {
	return &Chunk{
		Coord:    c,
		Affinity: mathx.Affinity(c.X, c.Y, c.Z),
		state:    Created,
	}
}

func (c *Chunk) State() State { return c.state }

// RequestTime is the stamp of the most recently dispatched task.
func (c *Chunk) RequestTime() uint64 { return c.requestTime }

func (c *Chunk) RemovePending() bool { return c.removeRequested }

func index(x, y, z int) int {
	return x + z*Size + y*Size*Size
}

func (c *Chunk) Get(x, y, z int) uint16 {
	if c.Blocks == nil {
		return 0
	}
	return c.Blocks[index(x, y, z)]
}

// Set writes a local block and reports whether it changed.
func (c *Chunk) Set(x, y, z int, b uint16) bool {
	if c.Blocks == nil {
		c.Blocks = make([]uint16, Volume)
	}
	i := index(x, y, z)
	if c.Blocks[i] == b {
		return false
	}
	c.Blocks[i] = b
	c.Dirty = true
	return true
}

// Record is an immutable save payload captured from a chunk.
type Record struct {
	Coord   Coord
	Version int
	Blocks  []uint16
	Digest  [32]byte
}

const RecordVersion = 1

// Snapshot copies the chunk's voxel data into a Record.
func (c *Chunk) Snapshot() *Record {
	blocks := make([]uint16, len(c.Blocks))
	copy(blocks, c.Blocks)
	return &Record{
		Coord:   c.Coord,
		Version: RecordVersion,
		Blocks:  blocks,
		Digest:  Digest(blocks),
	}
}

func Digest(blocks []uint16) [32]byte {
	h := sha256.New()
	var tmp [2]byte
	for _, v := range blocks {
		binary.LittleEndian.PutUint16(tmp[:], v)
		h.Write(tmp[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
