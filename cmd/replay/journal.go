package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	persistlog "voxelstream.ai/internal/persistence/log"
)

func readCycles(dir, runID string) (map[string][]persistlog.CycleRecord, error) {
	files, err := persistlog.Files(dir, "cycles")
	if err != nil {
		return nil, err
	}
	out := map[string][]persistlog.CycleRecord{}
	for _, path := range files {
		err := persistlog.ReadLines(path, func(line []byte) error {
			var rec persistlog.CycleRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if runID == "" || rec.RunID == runID {
				out[rec.RunID] = append(out[rec.RunID], rec)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readLifecycle(dir, runID string) (map[string][]persistlog.LifecycleRecord, error) {
	files, err := persistlog.Files(dir, "lifecycle")
	if err != nil {
		return nil, err
	}
	out := map[string][]persistlog.LifecycleRecord{}
	for _, path := range files {
		err := persistlog.ReadLines(path, func(line []byte) error {
			var rec persistlog.LifecycleRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if runID == "" || rec.RunID == runID {
				out[rec.RunID] = append(out[rec.RunID], rec)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type cycleSummary struct {
	Cycles    int
	Gaps      int
	MaxLoaded int
	Admitted  int
	Evicted   int
	Failures  int
	P50Us     int64
	P99Us     int64
	MaxUs     int64
}

func summarizeCycles(recs []persistlog.CycleRecord) cycleSummary {
	var s cycleSummary
	if len(recs) == 0 {
		return s
	}
	durs := make([]int64, 0, len(recs))
	var last uint64
	for i, r := range recs {
		if i > 0 && r.Cycle > last+1 {
			s.Gaps += int(r.Cycle - last - 1)
		}
		last = r.Cycle
		s.Cycles++
		s.Admitted += r.Admitted
		s.Evicted += r.Evicted
		s.Failures += r.Failures
		if r.Loaded > s.MaxLoaded {
			s.MaxLoaded = r.Loaded
		}
		durs = append(durs, r.DurationUs)
	}
	sort.Slice(durs, func(i, j int) bool { return durs[i] < durs[j] })
	s.P50Us = durs[len(durs)/2]
	s.P99Us = durs[(len(durs)*99)/100]
	s.MaxUs = durs[len(durs)-1]
	return s
}

type lifecycleCheck struct {
	ByType     map[string]int
	Chunks     int
	Removed    int
	FailedNow  int
	Violations []string
}

// checkLifecycle replays the per-chunk event chain: every event must start
// from the state the previous transition left the chunk in, and a removed
// coordinate restarts from CREATED.
func checkLifecycle(recs []persistlog.LifecycleRecord) lifecycleCheck {
	chk := lifecycleCheck{ByType: map[string]int{}}
	cur := map[[3]int]string{}
	for _, r := range recs {
		chk.ByType[r.Type]++
		state, seen := cur[r.Coord]
		if !seen || state == "REMOVED" {
			state = "CREATED"
		}
		if r.From != state {
			chk.Violations = append(chk.Violations, fmt.Sprintf("stamp=%d coord=%v %s %s->%s while %s", r.Stamp, r.Coord, r.Type, r.From, r.To, state))
		}
		switch r.Type {
		case "TRANSITION", "FAILED":
			cur[r.Coord] = r.To
			if r.To == "REMOVED" {
				chk.Removed++
			}
		default:
			cur[r.Coord] = state
		}
	}
	chk.Chunks = len(cur)
	for _, s := range cur {
		if s == "FAILED" {
			chk.FailedNow++
		}
	}
	return chk
}
