package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	persistlog "voxelstream.ai/internal/persistence/log"
	"voxelstream.ai/internal/stream/chunk"
	"voxelstream.ai/internal/stream/terrain"
	"voxelstream.ai/internal/stream/tuning"
	"voxelstream.ai/internal/stream/world"
	"voxelstream.ai/internal/transport/observer"
)

func newTestRunner(t *testing.T, journalDir string) (*runner, *persistlog.LifecycleLogger) {
	t.Helper()
	tune := tuning.Defaults()
	tune.TickRateHz = 200
	tune.LoadRadius = 1
	tune.UnloadRadius = 2
	tune.Layers = 1
	tune.WorkerPool.Enabled = false
	tune.IOPool.Enabled = false
	tune.Persistence.Enabled = false

	logger := log.New(io.Discard, "", 0)
	hub := observer.NewHub()
	var life *persistlog.LifecycleLogger
	var cycles *persistlog.CycleLogger
	if journalDir != "" {
		life = persistlog.NewLifecycleLogger(journalDir)
		cycles = persistlog.NewCycleLogger(journalDir)
		t.Cleanup(func() { _ = cycles.Close() })
	}
	sink := &eventSink{runID: "run-test", journal: life, hub: hub, log: logger, now: time.Now}
	w, err := world.New(world.ConfigFromTuning(tune), world.Deps{
		Generator: terrain.New(terrain.DefaultParams(tune.Seed)),
		Observe:   sink.Observe,
	})
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	path, _ := parsePath("still", mgl32.Vec3{8, 40, 8}, 0, 0)
	return newRunner(w, tune, "run-test", path, hub, cycles, logger), life
}

func TestRunner_RunsCyclesAndReportsStatus(t *testing.T) {
	dir := t.TempDir()
	r, life := newTestRunner(t, dir)
	r.run(context.Background(), 10)

	st := r.Status()
	if st.Cycle != 10 {
		t.Fatalf("cycle=%d", st.Cycle)
	}
	if st.Loaded != 5 || st.InFlight != 0 {
		t.Fatalf("loaded=%d in flight=%d", st.Loaded, st.InFlight)
	}
	b := r.Bootstrap()
	if b.RunID != "run-test" || b.StreamParams.LoadRadius != 1 || b.StreamParams.ChunkSize[0] != chunk.Size {
		t.Fatalf("bootstrap=%+v", b)
	}

	if err := life.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}
	files, err := persistlog.Files(dir+"/lifecycle", "lifecycle")
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	transitions := 0
	err = persistlog.ReadLines(files[0], func(line []byte) error {
		var rec persistlog.LifecycleRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		if rec.Type == string(chunk.EventTransition) && rec.To == chunk.Ready.String() {
			transitions++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	// Each chunk reaches READY after generation and again after meshing.
	if transitions != 10 {
		t.Fatalf("ready transitions=%d want 10", transitions)
	}
}

func TestRunner_DoRunsOnLoop(t *testing.T) {
	r, _ := newTestRunner(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	go r.run(ctx, 0)

	deadline := time.Now().Add(5 * time.Second)
	for r.Status().InFlight != 0 || r.Status().Loaded != 5 {
		if time.Now().After(deadline) {
			t.Fatalf("runner did not settle: %+v", r.Status())
		}
		time.Sleep(5 * time.Millisecond)
	}

	var saved []chunk.Coord
	if err := r.do(context.Background(), func(w *world.World) { saved = w.SaveAll() }); err != nil {
		t.Fatalf("do: %v", err)
	}
	// Persistence is off, so nothing can be saved.
	if len(saved) != 0 {
		t.Fatalf("saved=%v", saved)
	}

	cancel()
	<-r.done
	if err := r.do(context.Background(), func(*world.World) {}); err != errRunnerStopped {
		t.Fatalf("do after stop err=%v", err)
	}
}

func TestAdminEndpointsRejectBadInput(t *testing.T) {
	r, _ := newTestRunner(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.run(ctx, 0)

	mux := http.NewServeMux()
	registerAdmin(mux, r, log.New(io.Discard, "", 0))

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/requeue?coord=oops", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad coord code=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/v1/evict?coord=40,0,40", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "not loaded") {
		t.Fatalf("evict unknown chunk code=%d body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "10.0.0.9:5000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote state code=%d", rec.Code)
	}
}

func TestParseCoordAndVec(t *testing.T) {
	c, err := parseCoord("1,-2,3")
	if err != nil || c != (chunk.Coord{X: 1, Y: -2, Z: 3}) {
		t.Fatalf("parseCoord=%+v err=%v", c, err)
	}
	v, err := parseVec("1.5, 2, -3")
	if err != nil || v != (mgl32.Vec3{1.5, 2, -3}) {
		t.Fatalf("parseVec=%v err=%v", v, err)
	}
	if _, err := parseVec("1,2"); err == nil {
		t.Fatalf("short vec accepted")
	}
}
