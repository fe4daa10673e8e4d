package match

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"pitchsim.ai/internal/protocol"
)

// Observation layout, 44 floats total. Every spatial value is normalized by
// the field half-dimensions and team-mirrored so the agent's own goal is
// always at -Y regardless of its physical half.
const (
	obsTeammateSlots = 2
	obsOpponentSlots = 3
)

// buildObs assembles one agent's observation vector for the current tick.
func (m *Match) buildObs(a *Agent) []float32 {
	v := make([]float32, 0, protocol.ObsSize)
	s := teamSign(a.Team)

	// Possession signal: +1 own team, -1 opponent, 0 loose/contested.
	switch {
	case m.phase == PhaseTeam0Possession && a.Team == 0,
		m.phase == PhaseTeam1Possession && a.Team == 1:
		v = append(v, 1)
	case m.phase == PhaseTeam0Possession || m.phase == PhaseTeam1Possession:
		v = append(v, -1)
	default:
		v = append(v, 0)
	}

	// Self: position, heading, velocity, stamina.
	v = m.appendPos(v, a.body.Pos.Mul(s))
	h := a.Heading().Mul(s)
	v = append(v, h.X(), h.Y())
	v = m.appendVel(v, a.body.Vel.Mul(s))
	v = append(v, a.Stamina/staminaMax)

	// Ball-relative position and velocity.
	ball := m.sensor.body
	v = m.appendPos(v, ball.Pos.Sub(a.body.Pos).Mul(s))
	v = m.appendVel(v, ball.Vel.Sub(a.body.Vel).Mul(s))

	// Goals: own center + posts, then opponent center + posts, relative.
	for _, team := range [2]int{a.Team, 1 - a.Team} {
		c := m.field.GoalCenter(team)
		p1, p2 := m.field.GoalPosts(team)
		if s < 0 {
			p1, p2 = p2, p1 // posts in the agent's mirrored frame
		}
		for _, g := range [3]mgl32.Vec2{c, p1, p2} {
			v = m.appendPos(v, g.Sub(a.body.Pos).Mul(s))
		}
	}

	// Nearest teammates and opponents, zero-padded.
	mates, opps := m.neighborsOf(a)
	v = m.appendNeighbors(v, a, mates, obsTeammateSlots, s)
	v = m.appendNeighbors(v, a, opps, obsOpponentSlots, s)
	return v
}

func (m *Match) appendPos(v []float32, p mgl32.Vec2) []float32 {
	return append(v, p.X()/m.field.HalfWidth, p.Y()/m.field.HalfLength)
}

func (m *Match) appendVel(v []float32, vel mgl32.Vec2) []float32 {
	max := m.tun.Agent.MaxObservedSpeed
	return append(v,
		clampUnit(vel.X()/max),
		clampUnit(vel.Y()/max))
}

func clampUnit(x float32) float32 {
	return math32.Max(-1, math32.Min(1, x))
}

// neighborsOf returns the agent's non-benched teammates and opponents sorted
// by distance.
func (m *Match) neighborsOf(a *Agent) (mates, opps []*Agent) {
	for _, o := range m.agents {
		if o == a || o.Benched {
			continue
		}
		if o.Team == a.Team {
			mates = append(mates, o)
		} else {
			opps = append(opps, o)
		}
	}
	byDist := func(list []*Agent) {
		sort.Slice(list, func(i, j int) bool {
			return list[i].body.Pos.Sub(a.body.Pos).Len() < list[j].body.Pos.Sub(a.body.Pos).Len()
		})
	}
	byDist(mates)
	byDist(opps)
	return mates, opps
}

func (m *Match) appendNeighbors(v []float32, a *Agent, list []*Agent, slots int, s float32) []float32 {
	for i := 0; i < slots; i++ {
		if i < len(list) {
			o := list[i]
			v = m.appendPos(v, o.body.Pos.Sub(a.body.Pos).Mul(s))
			v = m.appendVel(v, o.body.Vel.Sub(a.body.Vel).Mul(s))
		} else {
			v = append(v, 0, 0, 0, 0)
		}
	}
	return v
}
