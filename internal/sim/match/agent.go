package match

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"pitchsim.ai/internal/sim/physics"
	"pitchsim.ai/internal/sim/pitch"
)

// AgentState is the officiating state of one player. Transitions are driven
// by the orchestrator; the only self-transition is Armed -> Restricted on the
// agent's own kick.
type AgentState uint8

const (
	StateRegular AgentState = iota
	StateStalled
	StateArmed
	StateRestricted
)

func (s AgentState) String() string {
	switch s {
	case StateRegular:
		return "REGULAR"
	case StateStalled:
		return "STALLED"
	case StateArmed:
		return "ARMED"
	case StateRestricted:
		return "RESTRICTED"
	}
	return "UNKNOWN"
}

const staminaMax = 100

// Agent is one player: a physical body plus locomotion, stamina and
// officiating state. Agents are allocated once at match setup and benched
// rather than destroyed.
type Agent struct {
	Index int
	Team  int
	ID    string

	body *physics.Body

	Yaw      float32
	prevYaw  float32
	angSpeed float32 // measured, rad/s

	State AgentState

	Stamina   float32
	Exhausted bool

	// Yaw arc restriction, applied during restarts. When yawLimited is
	// false the full circle is allowed.
	yawLimited bool
	yawCenter  float32
	yawHalf    float32

	attractSuppressedUntil float64
	kickCooldownUntil      float64
	actionSuppressedUntil  float64

	Benched bool
}

func (a *Agent) Pos() mgl32.Vec2 { return a.body.Pos }
func (a *Agent) Vel() mgl32.Vec2 { return a.body.Vel }

// Heading is the unit vector the agent faces.
func (a *Agent) Heading() mgl32.Vec2 { return pitch.Heading(a.Yaw) }

// ControlPoint is the "feet" reference point used for dribble attraction and
// kick range, offset forward from the body center.
func (a *Agent) ControlPoint(offset float32) mgl32.Vec2 {
	return a.body.Pos.Add(a.Heading().Mul(offset))
}

// SetYawArc restricts rotation to center +/- half radians.
func (a *Agent) SetYawArc(center, half float32) {
	a.yawLimited = true
	a.yawCenter = pitch.WrapAngle(center)
	a.yawHalf = half
}

// ClearYawArc restores full rotation freedom.
func (a *Agent) ClearYawArc() {
	a.yawLimited = false
}

// YawAllowed reports whether the given yaw lies within the active arc.
func (a *Agent) YawAllowed(yaw float32) bool {
	if !a.yawLimited {
		return true
	}
	return math32.Abs(pitch.WrapAngle(yaw-a.yawCenter)) <= a.yawHalf
}

// measureTurn records the angular speed over the last tick. It runs first in
// the pipeline so the stamina update sees this tick's value.
func (a *Agent) measureTurn(dt float32) {
	a.angSpeed = pitch.WrapAngle(a.Yaw-a.prevYaw) / dt
	a.prevYaw = a.Yaw
}

// updateStamina drains or regenerates the stamina pool and maintains the
// exhausted flag with hysteresis: the flag latches on at the depletion
// threshold and releases only above the strictly higher recovery threshold.
func (m *Match) updateStamina(a *Agent, dt float32) {
	t := &m.tun.Agent
	drain := float32(0)
	if a.body.Vel.Len() > t.SprintSpeedThreshold {
		drain += t.StaminaDrainMove * dt
	}
	if math32.Abs(a.angSpeed) > t.TurnSpeedThreshold {
		drain += t.StaminaDrainTurn * dt
	}
	if drain > 0 {
		a.Stamina -= drain
	} else {
		a.Stamina += t.StaminaRegen * dt
	}
	a.Stamina = pitch.Clamp32(a.Stamina, 0, staminaMax)

	if !a.Exhausted && a.Stamina <= t.ExhaustedThreshold {
		a.Exhausted = true
	} else if a.Exhausted && a.Stamina > t.RecoveryThreshold {
		a.Exhausted = false
	}
}

// applyAttraction runs the continuous dribble magnet: a damped spring pulling
// the ball toward the agent's control point, gated by range, a forward
// field-of-view cone, and the post-kick suppression window. The pull is
// scaled by the sensor's force-sharing multiplier so N contesting agents do
// not sum to N times the force.
func (m *Match) applyAttraction(a *Agent, now float64) {
	if now < a.attractSuppressedUntil {
		return
	}
	t := &m.tun.Agent
	cp := a.ControlPoint(t.ControlPointOffset)
	ball := m.sensor.body
	toBall := ball.Pos.Sub(cp)
	dist := toBall.Len()
	if dist > t.AttractRange {
		return
	}
	// Losing the cone breaks the magnet, forcing a turn to regain control.
	if dist > 1e-4 && a.Heading().Dot(toBall.Mul(1/dist)) < t.AttractFOVMinDot {
		return
	}

	share := m.sensor.ShareMultiplier()
	weight := 1 - dist/t.AttractRange
	err := cp.Sub(ball.Pos)
	accel := err.Mul(t.AttractStiffness * share * weight)
	relVel := a.body.Vel.Sub(ball.Vel)
	accel = accel.Add(relVel.Mul(t.AttractDamping * share))

	if l := accel.Len(); l > t.AttractMaxAccel {
		accel = accel.Mul(t.AttractMaxAccel / l)
	}
	ball.ApplyAcceleration(accel)
}

// enforceExclusion keeps the agent out of the active restart exclusion zones:
// a fixed radius around a staged taker, and, for a Restricted agent, a radius
// around the ball. Positions are projected to the ring and only the inward
// velocity component is removed, to avoid discontinuous stops.
func (m *Match) enforceExclusion(a *Agent, now float64) {
	if m.taker >= 0 && m.taker != a.Index {
		t := m.agents[m.taker]
		if t.State == StateStalled || t.State == StateArmed {
			m.pushOutside(a, t.body.Pos, m.tun.Rules.TakerExclusionRadius)
		}
	}
	if a.State == StateRestricted && now >= a.attractSuppressedUntil {
		m.pushOutside(a, m.sensor.body.Pos, m.tun.Rules.BallExclusionRadius)
	}
}

func (m *Match) pushOutside(a *Agent, center mgl32.Vec2, radius float32) {
	d := a.body.Pos.Sub(center)
	dist := d.Len()
	if dist >= radius {
		return
	}
	var n mgl32.Vec2
	if dist > 1e-6 {
		n = d.Mul(1 / dist)
	} else {
		n = mgl32.Vec2{1, 0}
	}
	a.body.Pos = m.field.Clamp(center.Add(n.Mul(radius)), m.field.BoundsMargin)
	// Clamp only the inward component of the velocity.
	if in := a.body.Vel.Dot(n); in < 0 {
		a.body.Vel = a.body.Vel.Sub(n.Mul(in))
	}
}

func (m *Match) bench(a *Agent) {
	a.Benched = true
	a.body.Enabled = false
	a.body.Vel = mgl32.Vec2{}
}

func (m *Match) unbench(a *Agent) {
	a.Benched = false
	a.body.Enabled = true
}
