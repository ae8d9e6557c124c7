package main

import "math"

const (
	MagnetMin = -8.0
	MagnetMax = 1.0
)

// Magnet is a seeker's goal-moving field. Negative strength repels,
// positive attracts, zero is off.
type Magnet struct {
	Strength float64 `json:"strength" msgpack:"s"`
}

// IsOn reports whether the magnet affects goals
func (m Magnet) IsOn() bool { return m.Strength != 0 }

// ValidMagnetStrength reports whether s is a legal magnet strength
func ValidMagnetStrength(s float64) bool {
	return !math.IsNaN(s) && s >= MagnetMin && s <= MagnetMax
}

// Seeker is a player-controlled entity that accelerates toward its target
type Seeker struct {
	Physical
	Owner           string
	Target          Vector
	Magnet          Magnet
	DisabledCounter int

	magnetSlowdown float64
	disabledTime   int
}

// NewSeeker creates a seeker at rest whose target is its own position
func NewSeeker(id, owner string, pos Vector, cfg SeekerConfig) *Seeker {
	return &Seeker{
		Physical: Physical{
			ID:         id,
			Position:   pos,
			Mass:       cfg.Mass,
			Radius:     cfg.Radius,
			Friction:   cfg.Friction,
			BaseThrust: cfg.MaxSpeed * cfg.Friction,
		},
		Owner:          owner,
		Target:         pos,
		magnetSlowdown: cfg.MagnetSlowdown,
		disabledTime:   cfg.DisabledTime,
	}
}

// IsDisabled reports whether the seeker is still recovering from a collision
func (s *Seeker) IsDisabled() bool { return s.DisabledCounter > 0 }

// Disable starts the recovery countdown
func (s *Seeker) Disable() { s.DisabledCounter = s.disabledTime }

// Thrust is the base thrust, reduced while the magnet is on
func (s *Seeker) Thrust() float64 {
	if s.Magnet.IsOn() {
		return s.BaseThrust * s.magnetSlowdown
	}
	return s.BaseThrust
}

// Move advances the seeker one tick. Disabled seekers coast.
func (s *Seeker) Move(w World) {
	var accel Vector
	if !s.IsDisabled() {
		accel = w.TorusDirection(s.Position, s.Target)
	}
	s.integrate(w, accel, s.Thrust())
}

// Recover counts the disabled countdown down by one tick
func (s *Seeker) Recover() {
	if s.DisabledCounter > 0 {
		s.DisabledCounter--
	}
}

// MagneticForce is the force this seeker's magnet applies to a goal at pos
func (s *Seeker) MagneticForce(w World, pos Vector) Vector {
	if s.IsDisabled() || !s.Magnet.IsOn() {
		return Vector{}
	}
	r := w.TorusDistance(s.Position, pos) / w.Diameter()
	d := w.TorusDirection(s.Position, pos)
	return d.Neg().Mul(s.Magnet.Strength * bump(r*10))
}

// bump is a smooth falloff that is zero for r >= 1
func bump(r float64) float64 {
	if r >= 1 {
		return 0
	}
	return math.Exp(1 / (r*r - 1))
}

// collideSeekers disables the magnet-carrying side of a seeker collision,
// or both seekers when neither carries a magnet, then bounces them
func collideSeekers(w World, a, b *Seeker) {
	switch {
	case a.Magnet.IsOn() || b.Magnet.IsOn():
		if a.Magnet.IsOn() {
			a.Disable()
		}
		if b.Magnet.IsOn() {
			b.Disable()
		}
	default:
		a.Disable()
		b.Disable()
	}
	Collide(w, &a.Physical, &b.Physical)
}
