package sched

import (
	"errors"
	"fmt"

	"voxelstream.ai/internal/stream/chunk"
)

var ErrPoolClosed = errors.New("sched: pool closed")

// PanicError wraps a panic recovered from a task.
type PanicError struct {
	Kind  chunk.Kind
	Coord chunk.Coord
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s task for %d,%d,%d panicked: %v", e.Kind, e.Coord.X, e.Coord.Y, e.Coord.Z, e.Value)
}
