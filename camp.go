package main

import "math"

// Camp is a player's fixed scoring territory. Containment is a plain
// axis-aligned box test; camps sit far from the world seams.
type Camp struct {
	ID       string
	Owner    string
	Position Vector
	Width    float64
	Height   float64
}

// Contains reports whether pos lies strictly inside the camp
func (c *Camp) Contains(pos Vector) bool {
	d := c.Position.Sub(pos)
	return 2*math.Abs(d.X) < c.Width && 2*math.Abs(d.Y) < c.Height
}
