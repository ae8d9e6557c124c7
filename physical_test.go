package main

import (
	"math"
	"testing"
)

func momentum(bodies ...*Physical) Vector {
	var p Vector
	for _, b := range bodies {
		p = p.Add(b.Velocity.Mul(b.Mass))
	}
	return p
}

func TestCollideConservesMomentumHeadOn(t *testing.T) {
	w := NewWorld(768, 768)
	a := &Physical{Position: Vector{100, 100}, Velocity: Vector{1, 0}, Mass: 1, Radius: 10}
	b := &Physical{Position: Vector{120, 100}, Velocity: Vector{-1, 0}, Mass: 1, Radius: 10}

	before := momentum(a, b)
	Collide(w, a, b)
	after := momentum(a, b)

	if before.Sub(after).Len() > 1e-12 {
		t.Errorf("momentum changed: %v -> %v", before, after)
	}
	if a.Velocity != (Vector{-1, 0}) || b.Velocity != (Vector{1, 0}) {
		t.Errorf("equal masses should swap velocities, got %v and %v", a.Velocity, b.Velocity)
	}
	if a.Position != (Vector{100, 100}) || b.Position != (Vector{120, 100}) {
		t.Error("touching bodies must not be pushed")
	}
}

func TestCollideConservesMomentumUnequalMasses(t *testing.T) {
	w := NewWorld(768, 768)
	a := &Physical{Position: Vector{200, 200}, Velocity: Vector{2, 1}, Mass: 1, Radius: 10}
	b := &Physical{Position: Vector{212, 216}, Velocity: Vector{0, -1}, Mass: 0.5, Radius: 10}

	before := momentum(a, b)
	Collide(w, a, b)
	after := momentum(a, b)
	if before.Sub(after).Len() > 1e-9 {
		t.Errorf("momentum changed: %v -> %v", before, after)
	}
}

func TestCollideKeepsSeparatingVelocities(t *testing.T) {
	w := NewWorld(768, 768)
	a := &Physical{Position: Vector{100, 100}, Velocity: Vector{-1, 0}, Mass: 1, Radius: 10}
	b := &Physical{Position: Vector{110, 100}, Velocity: Vector{1, 0}, Mass: 1, Radius: 10}
	Collide(w, a, b)
	if a.Velocity != (Vector{-1, 0}) || b.Velocity != (Vector{1, 0}) {
		t.Errorf("separating pair should keep velocities, got %v and %v", a.Velocity, b.Velocity)
	}
	if d := w.TorusDistance(a.Position, b.Position); d < 20-1e-9 {
		t.Errorf("overlap not resolved, distance %v", d)
	}
}

func TestCollideAcrossSeam(t *testing.T) {
	w := NewWorld(100, 100)
	a := &Physical{Position: Vector{99, 50}, Mass: 1, Radius: 5}
	b := &Physical{Position: Vector{1, 50}, Mass: 1, Radius: 5}
	Collide(w, a, b)

	if d := w.TorusDistance(a.Position, b.Position); d < 10-1e-9 {
		t.Errorf("bodies still overlap across the seam, distance %v", d)
	}
	for _, p := range []Vector{a.Position, b.Position} {
		if p.X < 0 || p.X >= 100 {
			t.Errorf("position %v left the world", p)
		}
	}
	// pushed apart along the short way, not through the middle of the map
	if math.Abs(a.Position.X-91) > 1e-9 || math.Abs(b.Position.X-9) > 1e-9 {
		t.Errorf("unexpected push result %v, %v", a.Position, b.Position)
	}
}

func TestCollideSplitsCoincidentBodies(t *testing.T) {
	w := NewWorld(768, 768)
	a := &Physical{Position: Vector{300, 300}, Mass: 1, Radius: 10}
	b := &Physical{Position: Vector{300, 300}, Mass: 1, Radius: 10}
	Collide(w, a, b)
	if d := w.TorusDistance(a.Position, b.Position); d < 20-1e-9 {
		t.Errorf("coincident bodies not separated, distance %v", d)
	}
}

func TestIntegrateAppliesFrictionThenThrust(t *testing.T) {
	w := NewWorld(100, 100)
	p := &Physical{Position: Vector{50, 50}, Velocity: Vector{1, 0}, Friction: 0.5}
	p.integrate(w, Vector{0, 1}, 2)
	if p.Velocity != (Vector{0.5, 2}) {
		t.Errorf("velocity = %v, want (0.5, 2)", p.Velocity)
	}
	if p.Position != (Vector{50.5, 52}) {
		t.Errorf("position = %v, want (50.5, 52)", p.Position)
	}
}
