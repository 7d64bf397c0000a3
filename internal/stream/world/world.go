// Package world owns the streamed chunk set: it moves the live window with the
// viewpoint, admits and evicts chunks, applies task completions to the
// lifecycle machine and commits the schedulers once per cycle. All methods
// must be called from one goroutine.
package world

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"voxelstream.ai/internal/stream/chunk"
	"voxelstream.ai/internal/stream/meshing"
	"voxelstream.ai/internal/stream/sched"
	"voxelstream.ai/internal/stream/spatial"
	"voxelstream.ai/internal/stream/tuning"
)

var (
	ErrNotLoaded = errors.New("world: chunk not loaded")
	ErrNotReady  = errors.New("world: chunk not ready")
	ErrClosed    = errors.New("world: closed")
)

type Generator interface {
	Generate(ctx context.Context, c *chunk.Chunk) error
}

type Mesher interface {
	BuildMesh(c *chunk.Chunk) (*meshing.Buffer, error)
}

type Store interface {
	Load(ctx context.Context, c chunk.Coord) (*chunk.Record, bool, error)
	Save(ctx context.Context, rec *chunk.Record) error
}

type PoolConfig struct {
	Enabled bool
	Workers int
}

type Config struct {
	LoadRadius   int
	UnloadRadius int
	LayerMin     int
	Layers       int

	// MaxAdmitPerCycle bounds new chunks per Update; 0 means no bound.
	MaxAdmitPerCycle int
	// MaxRetries is how often a failed chunk is retried before it is parked
	// in Failed for the operator.
	MaxRetries int

	Compute        PoolConfig
	IO             PoolConfig
	DegradedBudget time.Duration
	IOBudget       time.Duration
	ShutdownPolicy sched.ClosePolicy
}

func ConfigFromTuning(t tuning.Tuning) Config {
	policy := sched.DrainQueued
	if t.ShutdownPolicy == "discard" {
		policy = sched.DiscardQueued
	}
	return Config{
		LoadRadius:       t.LoadRadius,
		UnloadRadius:     t.UnloadRadius,
		LayerMin:         t.LayerMin,
		Layers:           t.Layers,
		MaxAdmitPerCycle: t.MaxAdmitPerCycle,
		MaxRetries:       t.MaxRetries,
		Compute:          PoolConfig{Enabled: t.WorkerPool.Enabled, Workers: t.WorkerPool.WorkerCount()},
		IO:               PoolConfig{Enabled: t.IOPool.Enabled, Workers: t.IOPool.WorkerCount()},
		DegradedBudget:   t.DegradedBudget(),
		IOBudget:         t.IOBudget(),
		ShutdownPolicy:   policy,
	}
}

type Deps struct {
	Generator Generator
	// Mesher defaults to FaceMesher.
	Mesher Mesher
	// Store enables persistence; nil streams without loading or saving.
	Store   Store
	Logger  *log.Logger
	Observe func(chunk.Event)
}

// Failure is a task error surfaced to the owner.
type Failure struct {
	Coord    chunk.Coord
	Kind     chunk.Kind
	Err      error
	Attempts int
	// Parked is set when retries are exhausted and the chunk stays Failed.
	Parked bool
}

type World struct {
	cfg    Config
	log    *log.Logger
	gen    Generator
	mesher Mesher
	store  Store
	notify func(chunk.Event)

	machine     *chunk.Machine
	compute     *sched.WorkScheduler
	io          *sched.IOScheduler
	computePool *sched.Pool
	ioPool      *sched.Pool
	mailbox     *sched.Mailbox

	index    *spatial.Index[*chunk.Chunk]
	chunks   map[chunk.Coord]*chunk.Chunk
	center   chunk.Coord
	centered bool

	retries  map[chunk.Coord]int
	failures []Failure
	cycle    uint64
	closing  bool
	closed   bool
}

func New(cfg Config, deps Deps) (*World, error) {
	if deps.Generator == nil {
		return nil, errors.New("world: generator is required")
	}
	if cfg.LoadRadius < 0 || cfg.UnloadRadius < cfg.LoadRadius {
		return nil, errors.New("world: need 0 <= load_radius <= unload_radius")
	}
	if cfg.Layers <= 0 {
		cfg.Layers = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	mesher := deps.Mesher
	if mesher == nil {
		mesher = FaceMesher{}
	}

	// The window spans the unload radius on X and Z and every layer on Y.
	span := 2*cfg.UnloadRadius + 1
	index := spatial.New[*chunk.Chunk](spatial.Vec3{X: span, Y: cfg.Layers, Z: span})

	w := &World{
		cfg:     cfg,
		log:     logger,
		gen:     deps.Generator,
		mesher:  mesher,
		store:   deps.Store,
		notify:  deps.Observe,
		mailbox: sched.NewMailbox(),
		index:   index,
		chunks:  map[chunk.Coord]*chunk.Chunk{},
		retries: map[chunk.Coord]int{},
	}

	var computeStrategy, ioStrategy sched.Strategy
	if cfg.Compute.Enabled {
		w.computePool = sched.NewPool("compute", cfg.Compute.Workers, w, w.mailbox, logger)
		computeStrategy = sched.NewPoolStrategy(w.computePool)
	} else {
		computeStrategy = sched.NewInlineStrategy(w, w.mailbox, cfg.DegradedBudget)
	}
	if cfg.IO.Enabled && w.store != nil {
		w.ioPool = sched.NewPool("io", cfg.IO.Workers, w, w.mailbox, logger)
		ioStrategy = sched.NewPoolStrategy(w.ioPool)
	} else {
		ioStrategy = sched.NewInlineStrategy(w, w.mailbox, cfg.IOBudget)
	}
	w.compute = sched.NewWorkScheduler(computeStrategy)
	w.io = sched.NewIOScheduler(ioStrategy)

	w.machine = chunk.NewMachine(chunk.MachineConfig{
		Compute: w.compute,
		IO:      w.io,
		Persist: w.store != nil,
		Observe: w.observe,
		Logger:  logger,
	})
	return w, nil
}

func (w *World) observe(e chunk.Event) {
	if w.notify != nil {
		w.notify(e)
	}
}

func (w *World) Config() Config { return w.cfg }

// Center is the chunk the window is centred on (Y is the lowest layer).
func (w *World) Center() chunk.Coord { return w.center }

func (w *World) Cycle() uint64 { return w.cycle }

func (w *World) MachineStats() chunk.MachineStats { return w.machine.Stats() }

func (w *World) PoolStats() (compute, io []sched.WorkerStats) {
	if w.computePool != nil {
		compute = w.computePool.Stats()
	}
	if w.ioPool != nil {
		io = w.ioPool.Stats()
	}
	return compute, io
}
