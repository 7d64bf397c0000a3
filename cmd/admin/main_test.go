package main

import (
	"context"
	"path/filepath"
	"testing"

	"voxelstream.ai/internal/persistence/chunkdb"
	"voxelstream.ai/internal/stream/chunk"
)

func TestVerifyEntries(t *testing.T) {
	s, err := chunkdb.Open(filepath.Join(t.TempDir(), "chunks.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	c := chunk.New(chunk.Coord{X: 2, Y: 0, Z: -1})
	c.Set(1, 2, 3, 7)
	if err := s.Save(ctx, c.Snapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := s.List(ctx, 0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("List=%v err=%v", entries, err)
	}
	// A listed coordinate with no row behaves like a stale listing.
	entries = append(entries, chunkdb.Entry{Coord: chunk.Coord{X: 99}})

	var reported []chunk.Coord
	bad := verifyEntries(ctx, s, entries, func(c chunk.Coord, err error) { reported = append(reported, c) })
	if bad != 1 || len(reported) != 1 || reported[0] != (chunk.Coord{X: 99}) {
		t.Fatalf("bad=%d reported=%v", bad, reported)
	}
}
