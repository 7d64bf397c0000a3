package log

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func TestLifecycleLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewLifecycleLogger(dir)
	for i := 1; i <= 3; i++ {
		if err := l.WriteLifecycle(LifecycleRecord{RunID: "r", Stamp: uint64(i), Type: "TRANSITION", Coord: [3]int{i, 0, -i}, From: "CREATED", To: "GENERATING"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	files, err := Files(filepath.Join(dir, "lifecycle"), "lifecycle")
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	var got []LifecycleRecord
	read := func() {
		got = got[:0]
		err := ReadLines(files[0], func(line []byte) error {
			var r LifecycleRecord
			if err := json.Unmarshal(line, &r); err != nil {
				return err
			}
			got = append(got, r)
			return nil
		})
		if err != nil {
			t.Fatalf("ReadLines: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	read()
	if len(got) != 3 || got[2].Stamp != 3 || got[2].Coord != [3]int{3, 0, -3} {
		t.Fatalf("records=%+v", got)
	}
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "cycles")
	clock := time.Date(2026, 1, 2, 3, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	if err := w.Write(CycleRecord{Cycle: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(CycleRecord{Cycle: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, err := Files(dir, "cycles")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "cycles-2026-01-02-03.jsonl.zst" {
		t.Fatalf("files=%v", files)
	}
	total := 0
	for _, f := range files {
		if err := ReadLines(f, func([]byte) error { total++; return nil }); err != nil {
			t.Fatalf("ReadLines: %v", err)
		}
	}
	if total != 2 {
		t.Fatalf("lines=%d want 2", total)
	}
}
