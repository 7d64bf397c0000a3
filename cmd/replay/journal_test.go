package main

import (
	"testing"

	persistlog "voxelstream.ai/internal/persistence/log"
)

func TestCheckLifecycle_ValidChain(t *testing.T) {
	c := [3]int{1, 0, 2}
	recs := []persistlog.LifecycleRecord{
		{Type: "TRANSITION", Coord: c, From: "CREATED", To: "GENERATING"},
		{Type: "DEFERRED", Coord: c, From: "GENERATING", To: "MESH_BUILDING"},
		{Type: "TRANSITION", Coord: c, From: "GENERATING", To: "READY"},
		{Type: "TRANSITION", Coord: c, From: "READY", To: "MESH_BUILDING"},
		{Type: "TRANSITION", Coord: c, From: "MESH_BUILDING", To: "READY"},
		{Type: "TRANSITION", Coord: c, From: "READY", To: "REMOVING"},
		{Type: "TRANSITION", Coord: c, From: "REMOVING", To: "REMOVED"},
		{Type: "TRANSITION", Coord: c, From: "CREATED", To: "GENERATING"},
		{Type: "FAILED", Coord: c, From: "GENERATING", To: "FAILED"},
	}
	chk := checkLifecycle(recs)
	if len(chk.Violations) != 0 {
		t.Fatalf("violations: %v", chk.Violations)
	}
	if chk.Removed != 1 || chk.FailedNow != 1 || chk.Chunks != 1 {
		t.Fatalf("check=%+v", chk)
	}
	if chk.ByType["TRANSITION"] != 7 || chk.ByType["DEFERRED"] != 1 {
		t.Fatalf("by type=%v", chk.ByType)
	}
}

func TestCheckLifecycle_DetectsBrokenChain(t *testing.T) {
	c := [3]int{0, 0, 0}
	recs := []persistlog.LifecycleRecord{
		{Type: "TRANSITION", Coord: c, From: "CREATED", To: "GENERATING"},
		{Type: "TRANSITION", Coord: c, From: "MESH_BUILDING", To: "READY"},
	}
	if chk := checkLifecycle(recs); len(chk.Violations) != 1 {
		t.Fatalf("violations=%v", chk.Violations)
	}
}

func TestSummarizeCycles(t *testing.T) {
	recs := []persistlog.CycleRecord{
		{Cycle: 1, Loaded: 5, Admitted: 5, DurationUs: 100},
		{Cycle: 2, Loaded: 9, Admitted: 4, DurationUs: 300},
		{Cycle: 5, Loaded: 7, Evicted: 2, Failures: 1, DurationUs: 200},
	}
	s := summarizeCycles(recs)
	if s.Cycles != 3 || s.Gaps != 2 || s.MaxLoaded != 9 || s.Admitted != 9 || s.Evicted != 2 || s.Failures != 1 {
		t.Fatalf("summary=%+v", s)
	}
	if s.P50Us != 200 || s.MaxUs != 300 {
		t.Fatalf("durations=%+v", s)
	}
}
