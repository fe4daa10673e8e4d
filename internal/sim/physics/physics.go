// Package physics is the rigid-body collaborator of the simulation. It is a
// deliberately small 2D engine: circle bodies, force/impulse accumulation,
// fixed-step semi-implicit Euler integration, pairwise contact resolution and
// axis-aligned trigger regions. The match code treats it as a black box that
// integrates motion and answers contact/region queries after each step.
package physics

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Body categories used by proximity queries.
const (
	CategoryPlayer = 1 << iota
	CategoryBall
)

type Body struct {
	ID       int
	Category uint8

	Pos mgl32.Vec2
	Vel mgl32.Vec2

	// Spin is the angular velocity about the vertical axis. It only affects
	// the reported state (kicks zero it for a clean trajectory); the circle
	// contact model ignores it.
	Spin float32

	Radius        float32
	InvMass       float32
	LinearDamping float32
	Restitution   float32

	// Enabled gates the body out of integration, contacts and queries
	// without destroying it (benched players).
	Enabled bool

	accel mgl32.Vec2
}

// ApplyAcceleration accumulates an acceleration applied over the next Step.
func (b *Body) ApplyAcceleration(a mgl32.Vec2) {
	b.accel = b.accel.Add(a)
}

// ApplyForce accumulates a force applied over the next Step.
func (b *Body) ApplyForce(f mgl32.Vec2) {
	b.accel = b.accel.Add(f.Mul(b.InvMass))
}

// ApplyImpulse changes the body's velocity immediately.
func (b *Body) ApplyImpulse(j mgl32.Vec2) {
	b.Vel = b.Vel.Add(j.Mul(b.InvMass))
}

// Contact is an overlap between two bodies detected during the last Step.
type Contact struct {
	A, B *Body
	Pos  mgl32.Vec2
}

// Region is an axis-aligned trigger area. Regions do not affect motion; they
// are reported by RegionHits when a body's center is inside.
type Region struct {
	Name     string
	Min, Max mgl32.Vec2
}

func (r Region) contains(p mgl32.Vec2) bool {
	return p.X() >= r.Min.X() && p.X() <= r.Max.X() &&
		p.Y() >= r.Min.Y() && p.Y() <= r.Max.Y()
}

// World owns all bodies and trigger regions of one simulation.
type World struct {
	bodies  []*Body
	regions []Region

	contacts []Contact
	nextID   int
}

func NewWorld() *World {
	return &World{}
}

func (w *World) AddBody(b *Body) *Body {
	b.ID = w.nextID
	w.nextID++
	if b.InvMass == 0 {
		b.InvMass = 1
	}
	b.Enabled = true
	w.bodies = append(w.bodies, b)
	return b
}

func (w *World) AddRegion(r Region) {
	w.regions = append(w.regions, r)
}

// Step integrates all enabled bodies by dt and rebuilds the contact list.
func (w *World) Step(dt float32) {
	for _, b := range w.bodies {
		if !b.Enabled {
			continue
		}
		b.Vel = b.Vel.Add(b.accel.Mul(dt))
		b.accel = mgl32.Vec2{}
		if b.LinearDamping > 0 {
			b.Vel = b.Vel.Mul(1 / (1 + b.LinearDamping*dt))
		}
		b.Pos = b.Pos.Add(b.Vel.Mul(dt))
	}
	w.resolveContacts()
}

func (w *World) resolveContacts() {
	w.contacts = w.contacts[:0]
	for i := 0; i < len(w.bodies); i++ {
		a := w.bodies[i]
		if !a.Enabled {
			continue
		}
		for j := i + 1; j < len(w.bodies); j++ {
			b := w.bodies[j]
			if !b.Enabled {
				continue
			}
			d := b.Pos.Sub(a.Pos)
			dist := d.Len()
			overlap := a.Radius + b.Radius - dist
			if overlap <= 0 {
				continue
			}
			var n mgl32.Vec2
			if dist > 1e-6 {
				n = d.Mul(1 / dist)
			} else {
				n = mgl32.Vec2{1, 0}
			}
			w.contacts = append(w.contacts, Contact{
				A: a, B: b,
				Pos: a.Pos.Add(n.Mul(a.Radius)),
			})

			invSum := a.InvMass + b.InvMass
			if invSum <= 0 {
				continue
			}
			// Positional correction proportional to inverse mass.
			corr := n.Mul(overlap / invSum)
			a.Pos = a.Pos.Sub(corr.Mul(a.InvMass))
			b.Pos = b.Pos.Add(corr.Mul(b.InvMass))

			// Impulse along the normal if the bodies are approaching.
			relVel := b.Vel.Sub(a.Vel).Dot(n)
			if relVel >= 0 {
				continue
			}
			e := math32.Min(a.Restitution, b.Restitution)
			jmag := -(1 + e) * relVel / invSum
			imp := n.Mul(jmag)
			a.Vel = a.Vel.Sub(imp.Mul(a.InvMass))
			b.Vel = b.Vel.Add(imp.Mul(b.InvMass))
		}
	}
}

// Contacts returns the overlaps found during the last Step.
func (w *World) Contacts() []Contact {
	return w.contacts
}

// QueryCircle returns all enabled bodies matching the category mask whose
// center lies within radius of center.
func (w *World) QueryCircle(center mgl32.Vec2, radius float32, mask uint8) []*Body {
	var out []*Body
	for _, b := range w.bodies {
		if !b.Enabled || b.Category&mask == 0 {
			continue
		}
		if b.Pos.Sub(center).Len() <= radius {
			out = append(out, b)
		}
	}
	return out
}

// RegionHits returns the names of all regions containing the body's current
// position.
func (w *World) RegionHits(b *Body) []string {
	var out []string
	for _, r := range w.regions {
		if r.contains(b.Pos) {
			out = append(out, r.Name)
		}
	}
	return out
}

// SyncTransform flushes any state cached for the body after it has been
// repositioned out of band, so the next query sees the new transform with no
// one-step lag.
func (w *World) SyncTransform(b *Body) {
	b.accel = mgl32.Vec2{}
	kept := w.contacts[:0]
	for _, c := range w.contacts {
		if c.A != b && c.B != b {
			kept = append(kept, c)
		}
	}
	w.contacts = kept
}
