package sched

import (
	"context"
	"runtime/debug"

	"voxelstream.ai/internal/stream/chunk"
)

// Executor performs one task. It runs on a worker (or inline on the
// coordinator) and may only touch the task's own chunk.
type Executor interface {
	Execute(ctx context.Context, t chunk.Task) (chunk.Result, error)
}

type ExecutorFunc func(ctx context.Context, t chunk.Task) (chunk.Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, t chunk.Task) (chunk.Result, error) {
	return f(ctx, t)
}

// run executes t and converts a panic into a *PanicError completion.
func run(ctx context.Context, exec Executor, t chunk.Task) (done chunk.Completion) {
	done.Task = t
	defer func() {
		if r := recover(); r != nil {
			var coord chunk.Coord
			if t.Chunk != nil {
				coord = t.Chunk.Coord
			}
			done.Result = chunk.Result{}
			done.Err = &PanicError{Kind: t.Kind, Coord: coord, Value: r, Stack: debug.Stack()}
		}
	}()
	done.Result, done.Err = exec.Execute(ctx, t)
	return done
}
