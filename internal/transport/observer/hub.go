package observer

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"voxelstream.ai/internal/observerproto"
	"voxelstream.ai/internal/stream/mathx"
)

type subscriber struct {
	id  string
	out chan []byte

	mu     sync.Mutex
	events map[string]bool
	cycles bool
	radius int

	drops atomic.Uint64
}

func (s *subscriber) update(sub observerproto.SubscribeMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = map[string]bool{}
	for _, e := range sub.Events {
		s.events[e] = true
	}
	if len(s.events) == 0 {
		s.events["TRANSITION"] = true
		s.events["FAILED"] = true
	}
	s.cycles = sub.Cycles
	s.radius = sub.ChunkRadius
}

func (s *subscriber) wantsLifecycle(event string, coord, center [3]int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.events[event] {
		return false
	}
	if s.radius <= 0 {
		return true
	}
	dx := mathx.AbsInt(coord[0] - center[0])
	dz := mathx.AbsInt(coord[2] - center[2])
	return dx <= s.radius && dz <= s.radius
}

func (s *subscriber) wantsCycles() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// Hub fans observer messages out to websocket sessions. Publishing never
// blocks: a session that cannot keep up loses messages.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	center [3]int

	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: map[string]*subscriber{}}
}

type HubStats struct {
	Subscribers int
	Published   uint64
	Dropped     uint64
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.subs)
	h.mu.RUnlock()
	return HubStats{Subscribers: n, Published: h.published.Load(), Dropped: h.dropped.Load()}
}

func (h *Hub) join(id string, sub observerproto.SubscribeMsg, buffer int) *subscriber {
	s := &subscriber{id: id, out: make(chan []byte, buffer)}
	s.update(sub)
	h.mu.Lock()
	h.subs[id] = s
	h.mu.Unlock()
	return s
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (h *Hub) PublishLifecycle(m observerproto.LifecycleMsg) {
	m.Type = observerproto.TypeLifecycle
	m.ProtocolVersion = observerproto.Version

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.subs) == 0 {
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	for _, s := range h.subs {
		if s.wantsLifecycle(m.Event, m.Coord, h.center) {
			h.send(s, b)
		}
	}
}

func (h *Hub) PublishCycle(m observerproto.CycleMsg) {
	m.Type = observerproto.TypeCycle
	m.ProtocolVersion = observerproto.Version

	h.mu.Lock()
	h.center = m.Center
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.subs) == 0 {
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	for _, s := range h.subs {
		if s.wantsCycles() {
			h.send(s, b)
		}
	}
}

func (h *Hub) send(s *subscriber, b []byte) {
	select {
	case s.out <- b:
		h.published.Add(1)
	default:
		s.drops.Add(1)
		h.dropped.Add(1)
	}
}
