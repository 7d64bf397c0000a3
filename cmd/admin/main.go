package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"voxelstream.ai/internal/persistence/chunkdb"
	"voxelstream.ai/internal/stream/chunk"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "events":
			eventsCmd(os.Args[2:])
			return
		case "verify":
			verifyCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "save":
			postCmd("save", os.Args[2:], false)
			return
		case "requeue", "evict", "remesh":
			postCmd(os.Args[1], os.Args[2:], true)
			return
		case "chunks":
			chunksCmd(os.Args[2:])
			return
		}
	}
	chunksCmd(os.Args[1:])
}

func openStore(path string) *chunkdb.Store {
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "chunk store:", err)
		os.Exit(1)
	}
	s, err := chunkdb.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return s
}

func chunksCmd(args []string) {
	fs := flag.NewFlagSet("chunks", flag.ExitOnError)
	dbPath := fs.String("db", "./data/chunks.sqlite", "chunk store path")
	limit := fs.Int("limit", 50, "result limit (0 = all)")
	asJSON := fs.Bool("json", false, "print json")
	_ = fs.Parse(args)

	s := openStore(*dbPath)
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.Count(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "count:", err)
		os.Exit(1)
	}
	entries, err := s.List(ctx, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	if *asJSON {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]any{"count": n, "chunks": entries})
		return
	}
	fmt.Printf("%d chunks stored\n", n)
	for _, e := range entries {
		fmt.Printf("%5d %5d %5d  v%d  %6d bytes  %s  %s\n", e.Coord.X, e.Coord.Y, e.Coord.Z, e.Version, e.Bytes, e.Digest[:12], e.UpdatedAt)
	}
}

func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dbPath := fs.String("db", "./data/chunks.sqlite", "chunk store path")
	typ := fs.String("type", "", "event type filter (TRANSITION|FAILED)")
	limit := fs.Int("limit", 50, "result limit")
	_ = fs.Parse(args)

	s := openStore(*dbPath)
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := s.Events(ctx, *typ, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "events:", err)
		os.Exit(1)
	}
	for _, e := range rows {
		line := fmt.Sprintf("%s run=%s stamp=%d %s %d,%d,%d %s->%s", e.At.Format(time.RFC3339), e.RunID, e.Stamp, e.Type, e.Coord.X, e.Coord.Y, e.Coord.Z, e.From, e.To)
		if e.Task != "" {
			line += " task=" + e.Task
		}
		if e.Reason != "" {
			line += " reason=" + e.Reason
		}
		fmt.Println(line)
	}
}

// verifyCmd loads every stored chunk, which checks version and digest.
func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	dbPath := fs.String("db", "./data/chunks.sqlite", "chunk store path")
	_ = fs.Parse(args)

	s := openStore(*dbPath)
	defer s.Close()
	ctx := context.Background()

	entries, err := s.List(ctx, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	bad := verifyEntries(ctx, s, entries, func(c chunk.Coord, err error) {
		fmt.Printf("corrupt %d,%d,%d: %v\n", c.X, c.Y, c.Z, err)
	})
	fmt.Printf("verified %d chunks, %d corrupt\n", len(entries), bad)
	if bad > 0 {
		os.Exit(1)
	}
}

type loader interface {
	Load(ctx context.Context, c chunk.Coord) (*chunk.Record, bool, error)
}

func verifyEntries(ctx context.Context, s loader, entries []chunkdb.Entry, report func(chunk.Coord, error)) int {
	bad := 0
	for _, e := range entries {
		_, ok, err := s.Load(ctx, e.Coord)
		if err == nil && !ok {
			err = fmt.Errorf("listed but not loadable")
		}
		if err != nil {
			bad++
			report(e.Coord, err)
		}
	}
	return bad
}
