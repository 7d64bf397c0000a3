package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// viewpointPath drives the streaming viewpoint for a headless run.
type viewpointPath struct {
	kind   string
	start  mgl32.Vec3
	speed  float32 // blocks per second
	radius float32 // orbit radius in blocks
}

func parsePath(kind string, start mgl32.Vec3, speed, radius float32) (viewpointPath, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	switch kind {
	case "still", "line", "orbit":
	default:
		return viewpointPath{}, fmt.Errorf("unknown path %q (want still|line|orbit)", kind)
	}
	if speed < 0 || radius < 0 {
		return viewpointPath{}, fmt.Errorf("speed and radius must be non-negative")
	}
	return viewpointPath{kind: kind, start: start, speed: speed, radius: radius}, nil
}

// At returns the viewpoint after elapsed time.
func (p viewpointPath) At(elapsed time.Duration) mgl32.Vec3 {
	dist := p.speed * float32(elapsed.Seconds())
	switch p.kind {
	case "line":
		return p.start.Add(mgl32.Vec3{1, 0, 0}.Mul(dist))
	case "orbit":
		if p.radius == 0 {
			return p.start
		}
		angle := dist / p.radius
		arm := mgl32.Rotate3DY(angle).Mul3x1(mgl32.Vec3{p.radius, 0, 0})
		return p.start.Add(arm)
	}
	return p.start
}

// Heading is the unit direction of travel, zero when standing still.
func (p viewpointPath) Heading(elapsed time.Duration) mgl32.Vec3 {
	const dt = 50 * time.Millisecond
	d := p.At(elapsed + dt).Sub(p.At(elapsed))
	if l := d.Len(); l > 0 && !math.IsNaN(float64(l)) {
		return d.Mul(1 / l)
	}
	return mgl32.Vec3{}
}
