package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

func main() {
	var (
		journalDir = flag.String("journal", "./data/journal", "journal dir containing lifecycle/ and cycles/")
		runID      = flag.String("run", "", "only consider this run id (optional)")
		strict     = flag.Bool("strict", true, "exit non-zero on lifecycle chain violations")
		maxReport  = flag.Int("max_report", 20, "violations to print")
	)
	flag.Parse()

	cycles, err := readCycles(filepath.Join(*journalDir, "cycles"), *runID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read cycles:", err)
		os.Exit(1)
	}
	life, err := readLifecycle(filepath.Join(*journalDir, "lifecycle"), *runID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read lifecycle:", err)
		os.Exit(1)
	}
	if len(cycles) == 0 && len(life) == 0 {
		fmt.Fprintln(os.Stderr, "no journal entries found in", *journalDir)
		os.Exit(1)
	}

	runs := make([]string, 0, len(cycles))
	for id := range cycles {
		runs = append(runs, id)
	}
	for id := range life {
		if _, ok := cycles[id]; !ok {
			runs = append(runs, id)
		}
	}
	sort.Strings(runs)

	failed := false
	for _, id := range runs {
		cs := summarizeCycles(cycles[id])
		fmt.Printf("run %s: cycles=%d max_loaded=%d admitted=%d evicted=%d failures=%d step_us p50=%d p99=%d max=%d\n",
			id, cs.Cycles, cs.MaxLoaded, cs.Admitted, cs.Evicted, cs.Failures, cs.P50Us, cs.P99Us, cs.MaxUs)
		if gaps := cs.Gaps; gaps > 0 {
			fmt.Printf("  warning: %d cycle numbers missing\n", gaps)
		}

		chk := checkLifecycle(life[id])
		types := make([]string, 0, len(chk.ByType))
		for t := range chk.ByType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Printf("  %-10s %d\n", t, chk.ByType[t])
		}
		fmt.Printf("  chunks=%d removed=%d failed_now=%d\n", chk.Chunks, chk.Removed, chk.FailedNow)
		if len(chk.Violations) > 0 {
			failed = true
			fmt.Printf("  %d lifecycle violations\n", len(chk.Violations))
			for i, v := range chk.Violations {
				if i >= *maxReport {
					break
				}
				fmt.Printf("    %s\n", v)
			}
		}
	}
	if failed && *strict {
		os.Exit(1)
	}
	fmt.Println("replay ok")
}
