package main

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

func TestViewpointPath_Line(t *testing.T) {
	p, err := parsePath("line", mgl32.Vec3{8, 40, 8}, 16, 0)
	if err != nil {
		t.Fatalf("parsePath: %v", err)
	}
	got := p.At(2 * time.Second)
	if !got.ApproxEqual(mgl32.Vec3{40, 40, 8}) {
		t.Fatalf("At(2s)=%v", got)
	}
	if h := p.Heading(0); !h.ApproxEqual(mgl32.Vec3{1, 0, 0}) {
		t.Fatalf("heading=%v", h)
	}
}

func TestViewpointPath_OrbitKeepsRadius(t *testing.T) {
	center := mgl32.Vec3{0, 30, 0}
	p, err := parsePath("orbit", center, 10, 64)
	if err != nil {
		t.Fatalf("parsePath: %v", err)
	}
	for _, s := range []time.Duration{0, time.Second, 7 * time.Second, 42 * time.Second} {
		d := p.At(s).Sub(center).Len()
		if d < 63.9 || d > 64.1 {
			t.Fatalf("distance at %s = %f", s, d)
		}
	}
}

func TestViewpointPath_Still(t *testing.T) {
	p, err := parsePath("STILL", mgl32.Vec3{1, 2, 3}, 5, 0)
	if err != nil {
		t.Fatalf("parsePath: %v", err)
	}
	if got := p.At(time.Hour); got != (mgl32.Vec3{1, 2, 3}) {
		t.Fatalf("At=%v", got)
	}
	if h := p.Heading(time.Second); h != (mgl32.Vec3{}) {
		t.Fatalf("heading=%v", h)
	}
	if _, err := parsePath("spiral", mgl32.Vec3{}, 1, 1); err == nil {
		t.Fatalf("unknown path accepted")
	}
}
