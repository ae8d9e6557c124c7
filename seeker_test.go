package main

import (
	"math"
	"testing"
)

func testSeeker(id string, pos Vector) *Seeker {
	return NewSeeker(id, "owner", pos, DefaultConfig().Game.Seeker)
}

func TestSeekerCollisionDisablesBothWithoutMagnets(t *testing.T) {
	w := NewWorld(768, 768)
	a := testSeeker("a", Vector{100, 100})
	b := testSeeker("b", Vector{110, 100})

	collideSeekers(w, a, b)

	disabled := DefaultConfig().Game.Seeker.DisabledTime
	if a.DisabledCounter != disabled || b.DisabledCounter != disabled {
		t.Fatalf("expected both counters at %d, got %d and %d", disabled, a.DisabledCounter, b.DisabledCounter)
	}
	for i := 1; i < disabled; i++ {
		a.Recover()
	}
	if !a.IsDisabled() {
		t.Errorf("seeker recovered one tick early")
	}
	a.Recover()
	if a.IsDisabled() {
		t.Errorf("seeker still disabled after %d ticks", disabled)
	}
	a.Recover()
	if a.DisabledCounter != 0 {
		t.Errorf("counter went below zero: %d", a.DisabledCounter)
	}
}

func TestSeekerCollisionDisablesMagnetCarrierOnly(t *testing.T) {
	w := NewWorld(768, 768)
	a := testSeeker("a", Vector{100, 100})
	b := testSeeker("b", Vector{110, 100})
	a.Magnet.Strength = MagnetMax

	collideSeekers(w, a, b)

	if !a.IsDisabled() {
		t.Error("magnet carrier should be disabled")
	}
	if b.IsDisabled() {
		t.Error("seeker without magnet should keep control")
	}
}

func TestSeekerCollisionDisablesBothMagnetCarriers(t *testing.T) {
	w := NewWorld(768, 768)
	a := testSeeker("a", Vector{100, 100})
	b := testSeeker("b", Vector{110, 100})
	a.Magnet.Strength = MagnetMax
	b.Magnet.Strength = MagnetMin

	collideSeekers(w, a, b)

	if !a.IsDisabled() || !b.IsDisabled() {
		t.Error("both magnet carriers should be disabled")
	}
}

func TestSeekerThrustMagnetSlowdown(t *testing.T) {
	cfg := DefaultConfig().Game.Seeker
	s := testSeeker("a", Vector{})
	base := cfg.MaxSpeed * cfg.Friction
	if math.Abs(s.Thrust()-base) > 1e-12 {
		t.Errorf("thrust = %v, want %v", s.Thrust(), base)
	}
	s.Magnet.Strength = -3
	if math.Abs(s.Thrust()-base*cfg.MagnetSlowdown) > 1e-12 {
		t.Errorf("thrust with magnet = %v, want %v", s.Thrust(), base*cfg.MagnetSlowdown)
	}
}

func TestDisabledSeekerCoasts(t *testing.T) {
	w := NewWorld(768, 768)
	s := testSeeker("a", Vector{100, 100})
	s.Velocity = Vector{1, 0}
	s.Target = Vector{100, 300}
	s.Disable()

	s.Move(w)

	if s.Acceleration != (Vector{}) {
		t.Errorf("disabled seeker accelerated: %v", s.Acceleration)
	}
	if s.Velocity.Y != 0 || s.Velocity.X >= 1 {
		t.Errorf("disabled seeker should only lose speed to friction, velocity %v", s.Velocity)
	}
}

func TestSeekerSteersTheShortWayAcrossSeam(t *testing.T) {
	w := NewWorld(768, 768)
	s := testSeeker("a", Vector{10, 10})
	s.Target = Vector{760, 760}

	s.Move(w)

	if s.Velocity.X >= 0 || s.Velocity.Y >= 0 {
		t.Errorf("expected negative velocity on both axes, got %v", s.Velocity)
	}
}

func TestBump(t *testing.T) {
	if got := bump(0); math.Abs(got-math.Exp(-1)) > 1e-12 {
		t.Errorf("bump(0) = %v, want 1/e", got)
	}
	if got := bump(1); got != 0 {
		t.Errorf("bump(1) = %v, want 0", got)
	}
	if got := bump(5); got != 0 {
		t.Errorf("bump(5) = %v, want 0", got)
	}
	if bump(0.2) <= bump(0.5) {
		t.Error("bump should decrease with distance")
	}
}

func TestMagneticForce(t *testing.T) {
	w := NewWorld(768, 768)
	goal := Vector{110, 100}

	s := testSeeker("a", Vector{100, 100})
	if f := s.MagneticForce(w, goal); f != (Vector{}) {
		t.Errorf("magnet off should exert no force, got %v", f)
	}

	s.Magnet.Strength = 1
	f := s.MagneticForce(w, goal)
	if f.X >= 0 || f.Y != 0 {
		t.Errorf("attracting magnet should pull the goal toward the seeker, got %v", f)
	}

	s.Magnet.Strength = -1
	if f := s.MagneticForce(w, goal); f.X <= 0 {
		t.Errorf("repelling magnet should push the goal away, got %v", f)
	}

	s.Disable()
	if f := s.MagneticForce(w, goal); f != (Vector{}) {
		t.Errorf("disabled seeker should exert no force, got %v", f)
	}

	far := testSeeker("b", Vector{100 + w.Diameter()/10 + 1, 100})
	far.Magnet.Strength = 1
	if f := far.MagneticForce(w, Vector{100, 100}); f != (Vector{}) {
		t.Errorf("force beyond the field range should be zero, got %v", f)
	}
}

func TestValidMagnetStrength(t *testing.T) {
	for _, s := range []float64{MagnetMin, -1, 0, 0.5, MagnetMax} {
		if !ValidMagnetStrength(s) {
			t.Errorf("%v should be valid", s)
		}
	}
	for _, s := range []float64{MagnetMin - 0.1, 1.5, math.NaN(), math.Inf(1)} {
		if ValidMagnetStrength(s) {
			t.Errorf("%v should be invalid", s)
		}
	}
}
