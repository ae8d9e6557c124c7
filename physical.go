package main

// Physical is the movement and collision state shared by seekers and goals
type Physical struct {
	ID           string
	Position     Vector
	Velocity     Vector
	Acceleration Vector
	Mass         float64
	Radius       float64
	Friction     float64
	// BaseThrust is max_speed * friction for the entity kind
	BaseThrust float64
}

// body is implemented by the closed set of entity variants (*Seeker, *Goal)
type body interface {
	physical() *Physical
}

func (p *Physical) physical() *Physical { return p }

// integrate applies one tick of friction, acceleration and displacement
func (p *Physical) integrate(w World, accel Vector, thrust float64) {
	p.Velocity = p.Velocity.Mul(1 - p.Friction)
	p.Acceleration = accel
	p.Velocity = p.Velocity.Add(accel.Mul(thrust))
	p.Position = w.Normalize(p.Position.Add(p.Velocity))
}

// Overlaps reports whether two bodies are closer than the sum of their radii
func Overlaps(w World, a, b *Physical) bool {
	return w.TorusDistance(a.Position, b.Position) < a.Radius+b.Radius
}

// Collide applies the symmetric elastic impulse to an unordered pair. It must
// be called once per pair and tick. Separating pairs keep their velocities;
// overlapping pairs are pushed apart along the collision normal. Coincident
// bodies are split along the x axis.
func Collide(w World, a, b *Physical) {
	d := w.TorusDifference(a.Position, b.Position)
	minDist := a.Radius + b.Radius
	dn := d.Normalized()
	if dn == (Vector{}) {
		dn = Vector{X: 1}
	}
	dv := b.Velocity.Sub(a.Velocity)
	m := 2 / (a.Mass + b.Mass)

	if dvdn := dv.Dot(dn); dvdn < 0 {
		a.Velocity = a.Velocity.Add(dn.Mul(m * b.Mass * dvdn))
		b.Velocity = b.Velocity.Sub(dn.Mul(m * a.Mass * dvdn))
	}

	if ddn := d.Dot(dn); ddn < minDist {
		push := dn.Mul(ddn - minDist)
		a.Position = w.Normalize(a.Position.Add(push))
		b.Position = w.Normalize(b.Position.Sub(push))
	}
}
