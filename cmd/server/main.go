package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"voxelstream.ai/internal/persistence/chunkdb"
	persistlog "voxelstream.ai/internal/persistence/log"
	"voxelstream.ai/internal/stream/chunk"
	"voxelstream.ai/internal/stream/terrain"
	"voxelstream.ai/internal/stream/tuning"
	"voxelstream.ai/internal/stream/world"
	"voxelstream.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (default: observer.addr from tuning)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seed       = flag.Int64("seed", 0, "override the terrain seed (0 keeps tuning)")
		disableDB  = flag.Bool("disable_db", false, "stream without loading or saving chunks")

		pathKind = flag.String("path", "orbit", "viewpoint path: still|line|orbit")
		speed    = flag.Float64("speed", 8, "viewpoint speed in blocks per second")
		radius   = flag.Float64("radius", 96, "orbit radius in blocks")
		startAt  = flag.String("start", "8,40,8", "viewpoint start (or orbit center) x,y,z")
		cycles   = flag.Uint64("cycles", 0, "stop after this many cycles (0 = run until signalled)")
		shutdown = flag.Duration("shutdown_timeout", 10*time.Second, "time allowed to save and drain on exit")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	if *disableDB {
		tune.Persistence.Enabled = false
	}
	listen := strings.TrimSpace(*addr)
	if listen == "" {
		listen = tune.Observer.Addr
	}

	start, err := parseVec(*startAt)
	if err != nil {
		logger.Fatalf("bad -start: %v", err)
	}
	path, err := parsePath(*pathKind, start, float32(*speed), float32(*radius))
	if err != nil {
		logger.Fatalf("bad -path: %v", err)
	}

	runID := uuid.NewString()
	logger.Printf("run=%s seed=%d load_radius=%d unload_radius=%d layers=%d", runID, tune.Seed, tune.LoadRadius, tune.UnloadRadius, tune.Layers)

	var store *chunkdb.Store
	if tune.Persistence.Enabled {
		store, err = chunkdb.Open(tune.Persistence.Path)
		if err != nil {
			logger.Fatalf("open chunk store: %v", err)
		}
		defer store.Close()
	}

	var (
		lifeLog  *persistlog.LifecycleLogger
		cycleLog *persistlog.CycleLogger
	)
	if tune.Journal.Enabled {
		lifeLog = persistlog.NewLifecycleLogger(tune.Journal.Dir)
		cycleLog = persistlog.NewCycleLogger(tune.Journal.Dir)
		defer lifeLog.Close()
		defer cycleLog.Close()
	}

	hub := observer.NewHub()
	sink := &eventSink{runID: runID, journal: lifeLog, db: store, hub: hub, log: logger, now: time.Now}

	deps := world.Deps{
		Generator: terrain.New(terrain.DefaultParams(tune.Seed)),
		Logger:    logger,
		Observe:   sink.Observe,
	}
	if store != nil {
		deps.Store = store
	}
	w, err := world.New(world.ConfigFromTuning(tune), deps)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	r := newRunner(w, tune, runID, path, hub, cycleLog, logger)

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, req *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(r, store, hub))
	registerAdmin(mux, r, logger)

	obsSrv := observer.NewServer(hub, r.Bootstrap, logger)
	mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())

	if envBool("VS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("listening on %s", listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("ListenAndServe: %v", err)
			cancel()
		}
	}()

	r.run(ctx, *cycles)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), *shutdown)
	defer closeCancel()
	if err := w.Close(closeCtx); err != nil {
		logger.Printf("world close: %v", err)
	}
	st := w.MachineStats()
	logger.Printf("stopped after %d cycles: accepted=%d deferred=%d rejected=%d completed=%d failed=%d",
		w.Cycle(), st.Accepted, st.Deferred, st.Rejected, st.Completed, st.Failed)

	if lifeLog != nil {
		_ = lifeLog.Flush()
	}
	if cycleLog != nil {
		_ = cycleLog.Flush()
	}
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	_ = srv.Shutdown(httpCtx)
}

// registerAdmin exposes local-only operator endpoints.
func registerAdmin(mux *http.ServeMux, r *runner, logger *log.Logger) {
	local := func(h http.HandlerFunc) http.HandlerFunc {
		return func(rw http.ResponseWriter, req *http.Request) {
			if !isLoopbackRemote(req.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			h(rw, req)
		}
	}

	mux.HandleFunc("/admin/v1/state", local(func(rw http.ResponseWriter, req *http.Request) {
		writeJSON(rw, http.StatusOK, r.Status())
	}))

	mux.HandleFunc("/admin/v1/save", local(func(rw http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()
		var saved []chunk.Coord
		if err := r.do(ctx, func(w *world.World) { saved = w.SaveAll() }); err != nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		logger.Printf("admin: save requested for %d chunks", len(saved))
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "requested": len(saved)})
	}))

	chunkOp := func(name string, op func(*world.World, chunk.Coord) (chunk.Verdict, error)) http.HandlerFunc {
		return local(func(rw http.ResponseWriter, req *http.Request) {
			if req.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			c, err := parseCoord(req.URL.Query().Get("coord"))
			if err != nil {
				writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
			defer cancel()
			var (
				verdict chunk.Verdict
				opErr   error
			)
			if err := r.do(ctx, func(w *world.World) { verdict, opErr = op(w, c) }); err != nil {
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			if opErr != nil {
				writeJSON(rw, http.StatusConflict, map[string]any{"ok": false, "error": opErr.Error()})
				return
			}
			logger.Printf("admin: %s %d,%d,%d -> %s", name, c.X, c.Y, c.Z, verdict)
			writeJSON(rw, http.StatusOK, map[string]any{"ok": verdict != chunk.Rejected, "verdict": verdict.String()})
		})
	}
	mux.HandleFunc("/admin/v1/requeue", chunkOp("requeue", (*world.World).Requeue))
	mux.HandleFunc("/admin/v1/evict", chunkOp("evict", (*world.World).Evict))
	mux.HandleFunc("/admin/v1/remesh", chunkOp("remesh", (*world.World).RequestRemesh))
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}

func parseVec(s string) (mgl32.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return mgl32.Vec3{}, strconv.ErrSyntax
	}
	var v mgl32.Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return mgl32.Vec3{}, err
		}
		v[i] = float32(f)
	}
	return v, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
