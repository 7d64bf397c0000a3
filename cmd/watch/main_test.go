package main

import (
	"testing"

	"voxelstream.ai/internal/observerproto"
)

func TestSubscribeMsg(t *testing.T) {
	m := subscribeMsg(" transition, ,failed ", true, 4)
	if m.Type != observerproto.TypeSubscribe || m.ProtocolVersion != observerproto.Version {
		t.Fatalf("header=%+v", m)
	}
	if len(m.Events) != 2 || m.Events[0] != "TRANSITION" || m.Events[1] != "FAILED" {
		t.Fatalf("events=%v", m.Events)
	}
	if !m.Cycles || m.ChunkRadius != 4 {
		t.Fatalf("msg=%+v", m)
	}
}
