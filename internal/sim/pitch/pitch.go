package pitch

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Field is the playable rectangle. X is the lateral axis (width), Y the depth
// axis (length). Team 0 defends -Y and attacks +Y; team 1 the opposite.
type Field struct {
	HalfWidth  float32
	HalfLength float32

	GoalHalfWidth float32

	// BoundsMargin is the clearance between the visual boundary and the
	// effective play area (trigger placement + ball radius).
	BoundsMargin float32
}

// DefaultField matches the default training pitch.
func DefaultField() Field {
	return Field{
		HalfWidth:     15,
		HalfLength:    22.5,
		GoalHalfWidth: 4.5,
		BoundsMargin:  0.5,
	}
}

// DefendedSign returns the sign of the depth coordinate of the goal line the
// given team defends: -1 for team 0, +1 for team 1.
func DefendedSign(team int) float32 {
	if team == 0 {
		return -1
	}
	return 1
}

// GoalCenter returns the center of the goal the given team defends.
func (f Field) GoalCenter(team int) mgl32.Vec2 {
	return mgl32.Vec2{0, DefendedSign(team) * f.HalfLength}
}

// GoalPosts returns the two posts of the goal the given team defends.
func (f Field) GoalPosts(team int) (mgl32.Vec2, mgl32.Vec2) {
	y := DefendedSign(team) * f.HalfLength
	return mgl32.Vec2{-f.GoalHalfWidth, y}, mgl32.Vec2{f.GoalHalfWidth, y}
}

// Contains reports whether p lies within the field shrunk by margin on every
// side.
func (f Field) Contains(p mgl32.Vec2, margin float32) bool {
	return math32.Abs(p.X()) <= f.HalfWidth-margin &&
		math32.Abs(p.Y()) <= f.HalfLength-margin
}

// Clamp returns p moved to the nearest point within the field shrunk by
// margin.
func (f Field) Clamp(p mgl32.Vec2, margin float32) mgl32.Vec2 {
	return mgl32.Vec2{
		clamp(p.X(), -(f.HalfWidth-margin), f.HalfWidth-margin),
		clamp(p.Y(), -(f.HalfLength-margin), f.HalfLength-margin),
	}
}

// Heading converts a yaw angle (radians, 0 = +Y, increasing clockwise when
// viewed from above) to a unit direction vector.
func Heading(yaw float32) mgl32.Vec2 {
	return mgl32.Vec2{math32.Sin(yaw), math32.Cos(yaw)}
}

// YawOf is the inverse of Heading for a non-zero direction.
func YawOf(dir mgl32.Vec2) float32 {
	return math32.Atan2(dir.X(), dir.Y())
}

// WrapAngle normalizes an angle to (-pi, pi].
func WrapAngle(a float32) float32 {
	for a > math32.Pi {
		a -= 2 * math32.Pi
	}
	for a <= -math32.Pi {
		a += 2 * math32.Pi
	}
	return a
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp32 clamps v into [lo, hi].
func Clamp32(v, lo, hi float32) float32 { return clamp(v, lo, hi) }

// SafeNormalize returns the unit vector of v, or the zero vector if v is too
// short to normalize meaningfully.
func SafeNormalize(v mgl32.Vec2) mgl32.Vec2 {
	l := v.Len()
	if l < 1e-6 {
		return mgl32.Vec2{}
	}
	return v.Mul(1 / l)
}
