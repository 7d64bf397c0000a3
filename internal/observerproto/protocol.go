package observerproto

import (
	"encoding/json"
	"fmt"
)

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeLifecycle = "LIFECYCLE"
	TypeCycle     = "CYCLE"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Events selects lifecycle event types (TRANSITION, DEFERRED, REJECTED,
	// FAILED). Empty means TRANSITION and FAILED.
	Events []string `json:"events,omitempty"`
	// Cycles enables one CYCLE message per update.
	Cycles bool `json:"cycles"`
	// ChunkRadius limits lifecycle events to chunks within this XZ distance
	// of the streaming center; 0 means no limit.
	ChunkRadius int `json:"chunk_radius"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string       `json:"protocol_version"`
	RunID           string       `json:"run_id"`
	StartedAt       string       `json:"started_at"`
	Cycle           uint64       `json:"cycle"`
	Center          [3]int       `json:"center"`
	Loaded          int          `json:"loaded"`
	StreamParams    StreamParams `json:"stream_params"`
}

type StreamParams struct {
	TickRateHz   int    `json:"tick_rate_hz"`
	ChunkSize    [3]int `json:"chunk_size"`
	LoadRadius   int    `json:"load_radius"`
	UnloadRadius int    `json:"unload_radius"`
	LayerMin     int    `json:"layer_min"`
	Layers       int    `json:"layers"`
	Seed         int64  `json:"seed"`
	Persistence  bool   `json:"persistence"`
}

// Server -> Client. One chunk lifecycle event.
type LifecycleMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Stamp           uint64 `json:"stamp"`
	Event           string `json:"event"`
	Coord           [3]int `json:"coord"`
	From            string `json:"from"`
	To              string `json:"to"`
	Task            string `json:"task,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// Server -> Client. Sent once per update cycle to subscribers that asked.
type CycleMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Cycle           uint64 `json:"cycle"`
	Center          [3]int `json:"center"`
	Loaded          int    `json:"loaded"`
	Admitted        int    `json:"admitted"`
	Evicted         int    `json:"evicted"`
	Completions     int    `json:"completions"`
	Dispatched      int    `json:"dispatched"`
	Deferred        int    `json:"deferred"`
	Failures        int    `json:"failures"`
}

type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var base BaseMessage
	if err := json.Unmarshal(b, &base); err != nil {
		return base, err
	}
	if base.Type == "" {
		return base, fmt.Errorf("missing type")
	}
	return base, nil
}
