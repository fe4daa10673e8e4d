package match

import (
	"github.com/go-gl/mathgl/mgl32"

	"pitchsim.ai/internal/protocol"
	"pitchsim.ai/internal/sim/pitch"
)

// teamSign mirrors the action frame so "forward" always points at the
// opposing goal: +1 for team 0 (attacks +Y), -1 for team 1. The same
// mirroring is applied to the observation space, which is what lets one
// shared policy control both teams.
func teamSign(team int) float32 {
	if team == 0 {
		return 1
	}
	return -1
}

// applyAction executes one agent's discrete action vector for this tick.
// Out-of-range vectors and actions during the post-spawn suppression window
// are dropped without effect.
func (m *Match) applyAction(a *Agent, act protocol.ActMsg, now float64) {
	if a.Benched || !act.Valid() {
		return
	}
	if now < a.actionSuppressedUntil {
		return
	}
	m.applyMovement(a, act.Action[0])
	m.applyRotation(a, act.Action[1])
	if act.Action[2] != protocol.KickIdle {
		m.tryKick(a, act.Action[2], now)
	}
}

func (m *Match) applyMovement(a *Agent, move int) {
	// Stalled and Armed agents hold position; Restricted moves like Regular
	// and is gated by the ball exclusion zone instead.
	if a.State == StateStalled || a.State == StateArmed {
		a.body.Vel = mgl32.Vec2{}
		return
	}
	t := &m.tun.Agent
	s := teamSign(a.Team)
	var dir mgl32.Vec2
	var speed float32
	switch move {
	case protocol.MoveIdle:
		return
	case protocol.MoveForward:
		dir = mgl32.Vec2{0, 1}
		speed = t.MoveSpeed
	case protocol.MoveBackward:
		dir = mgl32.Vec2{0, -1}
		speed = t.BackSpeed
	case protocol.MoveStrafeLeft:
		dir = mgl32.Vec2{-1, 0}
		speed = t.StrafeSpeed
	case protocol.MoveStrafeRight:
		dir = mgl32.Vec2{1, 0}
		speed = t.StrafeSpeed
	}
	if a.Exhausted {
		speed *= t.ExhaustedFactor
	}
	a.body.Vel = dir.Mul(s * speed)
}

func (m *Match) applyRotation(a *Agent, rot int) {
	if a.State == StateStalled {
		return // rotation frozen while a restart is being staged
	}
	var dir float32
	switch rot {
	case protocol.RotIdle:
		return
	case protocol.RotClockwise:
		dir = 1
	case protocol.RotCounterClockwise:
		dir = -1
	}
	t := &m.tun.Agent
	rate := t.TurnSpeed
	if a.Exhausted {
		rate *= t.ExhaustedFactor
	}
	next := pitch.WrapAngle(a.Yaw + teamSign(a.Team)*dir*rate*m.dt)
	// Requests outside the arc are rejected outright, no partial clamp.
	if !a.YawAllowed(next) {
		return
	}
	a.Yaw = next
}

// tryKick attempts an impulse kick at the given power tier. Invalid attempts
// are dropped silently: no mutation, no signal.
func (m *Match) tryKick(a *Agent, tier int, now float64) {
	if a.State == StateStalled {
		return
	}
	if now < a.kickCooldownUntil || now < a.attractSuppressedUntil {
		return
	}
	t := &m.tun.Agent
	ball := m.sensor.body
	if ball.Pos.Sub(a.ControlPoint(t.ControlPointOffset)).Len() > t.AttractRange {
		return
	}

	var impulse float32
	switch tier {
	case protocol.KickLow:
		impulse = t.KickLow
	case protocol.KickMid:
		impulse = t.KickMid
	case protocol.KickHigh:
		impulse = t.KickHigh
		a.Stamina = pitch.Clamp32(a.Stamina-t.KickHighStaminaCost, 0, staminaMax)
	default:
		return
	}
	if a.Exhausted {
		impulse *= 0.5
	}

	a.kickCooldownUntil = now + float64(t.KickCooldownSec)
	a.attractSuppressedUntil = now + float64(t.LostControlSec)

	// Suppress nearby magnets so a passed ball is not instantly re-captured.
	for _, other := range m.agents {
		if other == a || other.Benched {
			continue
		}
		if other.body.Pos.Sub(ball.Pos).Len() <= t.BroadcastSuppressR {
			until := now + float64(t.BroadcastSuppressS)
			if until > other.attractSuppressedUntil {
				other.attractSuppressedUntil = until
			}
		}
	}

	m.sensor.RegisterKick(a, now, m.tun.Ball.KickIgnoreSec)
	ball.ApplyImpulse(a.Heading().Mul(impulse))
	ball.Spin = 0 // clean, predictable trajectory

	if a.State == StateArmed {
		a.State = StateRestricted // restart taken, open play begins
	}
}
