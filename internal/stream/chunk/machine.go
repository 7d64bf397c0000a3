package chunk

import (
	"fmt"
	"io"
	"log"
)

// Dispatcher accepts tasks for later execution. Submit must not block.
type Dispatcher interface {
	Submit(t Task)
}

type EventType string

const (
	EventTransition EventType = "TRANSITION"
	EventDeferred   EventType = "DEFERRED"
	EventRejected   EventType = "REJECTED"
	EventFailed     EventType = "FAILED"
)

type Event struct {
	Type   EventType
	Coord  Coord
	From   State
	To     State
	Task   Kind
	Stamp  uint64
	Reason string
}

type MachineStats struct {
	Accepted  uint64
	Deferred  uint64
	Rejected  uint64
	Completed uint64
	Failed    uint64
	// Dropped counts removals that discarded unsaved edits after a failed save.
	Dropped uint64
}

// Machine owns every chunk's lifecycle state. It is not safe for concurrent
// use: requests and completions are applied on the coordinating goroutine.
type Machine struct {
	compute Dispatcher
	io      Dispatcher
	persist bool
	clock   uint64

	observe func(Event)
	log     *log.Logger
	stats   MachineStats
}

type MachineConfig struct {
	Compute Dispatcher
	IO      Dispatcher
	// Persist enables the Loading state and the save path.
	Persist bool
	Observe func(Event)
	Logger  *log.Logger
}

func NewMachine(cfg MachineConfig) *Machine {
	if cfg.Compute == nil || cfg.IO == nil {
		panic("chunk: machine needs compute and io dispatchers")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Machine{
		compute: cfg.Compute,
		io:      cfg.IO,
		persist: cfg.Persist,
		observe: cfg.Observe,
		log:     logger,
	}
}

func (m *Machine) Stats() MachineStats { return m.stats }

// IsSavePossible reports whether the chunk may start serialization now: it is
// Ready, has data worth saving and no removal is pending.
func (m *Machine) IsSavePossible(c *Chunk) bool {
	return m.persist && c.state == Ready && c.SaveEligible && !c.removeRequested
}

// SaveAll requests PrepareSaveData for every chunk that can start a save now
// and returns the accepted chunks in input order. Chunks that cannot save are
// skipped without a rejection being counted.
func (m *Machine) SaveAll(chunks []*Chunk) []*Chunk {
	var out []*Chunk
	for _, c := range chunks {
		if !m.IsSavePossible(c) {
			continue
		}
		if m.RequestState(c, PrepareSaveData) == Accepted {
			out = append(out, c)
		}
	}
	return out
}

// RequestState asks for a transition. Unreachable targets and conflicting
// requests are reported no-ops. A request that collides with in-flight work
// is Deferred and honoured when that work completes.
func (m *Machine) RequestState(c *Chunk, to State) Verdict {
	switch to {
	case Loading, Generating:
		if to == Loading && !m.persist {
			return m.reject(c, to, "persistence disabled")
		}
		if c.state != Created && c.state != Failed {
			return m.reject(c, to, "chunk already populated")
		}
		c.Err = nil
		c.SaveEligible = false
		m.enter(c, to, nil)
		return m.accept()

	case MeshBuilding:
		switch c.state {
		case Ready:
			m.enter(c, MeshBuilding, nil)
			return m.accept()
		case Failed:
			// Recovery path for failures that left voxel data intact.
			if !c.SaveEligible {
				return m.reject(c, to, "no voxel data")
			}
			c.Err = nil
			m.enter(c, MeshBuilding, nil)
			return m.accept()
		case Loading, Generating:
			// Population completion requests the first mesh on its own.
			return m.postpone(c, to, "mesh follows population")
		case MeshBuilding, PrepareSaveData, Saving:
			if c.removeRequested {
				return m.reject(c, to, "removal pending")
			}
			c.remeshRequested = true
			return m.postpone(c, to, "remesh after in-flight task")
		}
		return m.reject(c, to, "no voxel data")

	case PrepareSaveData:
		if !m.IsSavePossible(c) {
			return m.reject(c, to, "save not possible")
		}
		m.enter(c, PrepareSaveData, nil)
		return m.accept()

	case Removing:
		switch c.state {
		case Created, Ready, Failed:
			m.beginRemove(c)
			return m.accept()
		case Loading, Generating, MeshBuilding, PrepareSaveData, Saving:
			c.removeRequested = true
			c.remeshRequested = false
			return m.postpone(c, to, "remove after in-flight task")
		}
		return m.reject(c, to, "already removing")
	}
	return m.reject(c, to, "state is not requestable")
}

// Complete applies a finished task. A completion that does not match the
// chunk's in-flight state means a task ran twice or out of band and panics.
func (m *Machine) Complete(done Completion) {
	c := done.Task.Chunk
	want := stateFor(done.Task.Kind)
	if c.state != want {
		panic(fmt.Sprintf("chunk: %s completion for %+v in state %s", done.Task.Kind, c.Coord, c.state))
	}
	m.stats.Completed++

	if done.Err != nil {
		m.fail(c, done.Task.Kind, done.Err)
		return
	}

	switch done.Task.Kind {
	case KindLoad:
		if !done.Result.Found {
			if c.removeRequested {
				c.removeRequested = false
				m.enter(c, Removing, nil)
				return
			}
			m.enter(c, Generating, nil)
			return
		}
		c.SaveEligible = true
		c.Dirty = false
		m.settle(c, true)

	case KindGenerate:
		c.SaveEligible = true
		c.Dirty = true
		m.settle(c, true)

	case KindBuildMesh:
		c.Mesh = done.Result.Mesh
		m.settle(c, false)

	case KindPrepareSave:
		if c.removeRequested && !c.Dirty {
			// Removal requested after a clean chunk was snapshotted.
			c.removeRequested = false
			m.enter(c, Removing, nil)
			return
		}
		m.enter(c, Saving, done.Result.Record)

	case KindSerialize:
		c.Dirty = false
		m.settle(c, false)

	case KindRemove:
		from := c.state
		c.state = Removed
		c.Blocks = nil
		c.Mesh = nil
		m.emit(Event{Type: EventTransition, Coord: c.Coord, From: from, To: Removed, Task: KindRemove, Stamp: c.requestTime})
	}
}

// settle returns the chunk to Ready and runs whatever was queued behind the
// finished task: a pending removal wins over a remesh.
func (m *Machine) settle(c *Chunk, mesh bool) {
	from := c.state
	c.state = Ready
	m.emit(Event{Type: EventTransition, Coord: c.Coord, From: from, To: Ready, Stamp: c.requestTime})

	if c.removeRequested {
		m.beginRemove(c)
		return
	}
	if mesh || c.remeshRequested {
		c.remeshRequested = false
		m.enter(c, MeshBuilding, nil)
	}
}

// beginRemove saves dirty voxel data before removing. A Failed chunk that
// still holds intact edits gets one save attempt too.
func (m *Machine) beginRemove(c *Chunk) {
	if m.persist && (c.state == Ready || c.state == Failed) && c.SaveEligible && c.Dirty {
		c.Err = nil
		c.removeRequested = true
		m.enter(c, PrepareSaveData, nil)
		return
	}
	c.removeRequested = false
	c.remeshRequested = false
	m.enter(c, Removing, nil)
}

func (m *Machine) fail(c *Chunk, kind Kind, err error) {
	m.stats.Failed++
	from := c.state
	c.state = Failed
	c.Err = err
	c.remeshRequested = false
	m.log.Printf("chunk %d,%d,%d: %s failed: %v", c.Coord.X, c.Coord.Y, c.Coord.Z, kind, err)
	m.emit(Event{Type: EventFailed, Coord: c.Coord, From: from, To: Failed, Task: kind, Stamp: c.requestTime, Reason: err.Error()})

	if c.removeRequested {
		// The owner already decided to evict this chunk.
		c.removeRequested = false
		if m.persist && c.SaveEligible && c.Dirty {
			m.stats.Dropped++
			m.log.Printf("chunk %d,%d,%d: removing with unsaved edits after %s failure", c.Coord.X, c.Coord.Y, c.Coord.Z, kind)
		}
		m.enter(c, Removing, nil)
	}
}

func (m *Machine) enter(c *Chunk, to State, rec *Record) {
	from := c.state
	kind := kindFor(to)
	if kind == KindSerialize && rec == nil {
		panic(fmt.Sprintf("chunk: serialize for %+v without a record", c.Coord))
	}
	if kind == KindSerialize && from != PrepareSaveData {
		panic(fmt.Sprintf("chunk: serialize for %+v dispatched from %s", c.Coord, from))
	}

	m.clock++
	c.state = to
	c.requestTime = m.clock

	t := Task{Kind: kind, Chunk: c, Affinity: c.Affinity, Enqueued: m.clock, Record: rec}
	if kind.IO() {
		m.io.Submit(t)
	} else {
		m.compute.Submit(t)
	}
	m.emit(Event{Type: EventTransition, Coord: c.Coord, From: from, To: to, Task: kind, Stamp: m.clock})
}

func (m *Machine) accept() Verdict {
	m.stats.Accepted++
	return Accepted
}

func (m *Machine) postpone(c *Chunk, to State, reason string) Verdict {
	m.stats.Deferred++
	m.emit(Event{Type: EventDeferred, Coord: c.Coord, From: c.state, To: to, Stamp: c.requestTime, Reason: reason})
	return Deferred
}

func (m *Machine) reject(c *Chunk, to State, reason string) Verdict {
	m.stats.Rejected++
	m.emit(Event{Type: EventRejected, Coord: c.Coord, From: c.state, To: to, Stamp: c.requestTime, Reason: reason})
	return Rejected
}

func (m *Machine) emit(e Event) {
	if m.observe != nil {
		m.observe(e)
	}
}
