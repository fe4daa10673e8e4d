package match

import (
	"github.com/go-gl/mathgl/mgl32"

	"pitchsim.ai/internal/sim/pitch"
	"pitchsim.ai/internal/sim/scenario"
)

// Layout is one fully resolved episode-start placement: ball position plus
// per-agent placements. Agents absent from the layout get benched.
type Layout struct {
	Scenario string
	Ball     mgl32.Vec2
	Agents   []AgentPlacement
}

type AgentPlacement struct {
	Index int
	Pos   mgl32.Vec2
	Yaw   float32
}

// loadScenario runs the bounded sample-and-validate loop for the scenario
// selected by the current curriculum index, falling back to the last
// known-valid layout when every attempt produces an out-of-bounds candidate.
// The first episode gets a much larger attempt budget to guarantee a valid
// initial state.
func (m *Match) loadScenario() Layout {
	sc := m.scenarios.ByIndex(m.curriculumIdx)

	attempts := m.tun.Rules.PlacementAttempts
	if m.episode == 0 {
		attempts = m.tun.Rules.FirstEpisodeAttempts
	}

	var candidate Layout
	for i := 0; i < attempts; i++ {
		candidate = m.buildLayout(sc)
		if m.validLayout(candidate) {
			m.lastGoodLayout = &candidate
			return candidate
		}
	}
	if m.lastGoodLayout != nil {
		m.logEvent("PLACEMENT_FALLBACK", sc.Name)
		return *m.lastGoodLayout
	}
	// No known-good layout exists yet: clamp the last candidate in bounds
	// rather than fail the episode.
	m.logEvent("PLACEMENT_CLAMPED", sc.Name)
	margin := m.placementMargin()
	candidate.Ball = m.field.Clamp(candidate.Ball, margin)
	for i := range candidate.Agents {
		candidate.Agents[i].Pos = m.field.Clamp(candidate.Agents[i].Pos, margin)
	}
	m.lastGoodLayout = &candidate
	return candidate
}

func (m *Match) placementMargin() float32 {
	return m.field.BoundsMargin + m.tun.Rules.PlacementMargin
}

// buildLayout samples one candidate layout. Random draws happen in a fixed
// order (role swap, ball, then each rule) so identically seeded matches
// produce identical layouts.
func (m *Match) buildLayout(sc *scenario.Scenario) Layout {
	out := Layout{Scenario: sc.Name}

	// Role swap: 50% of episodes hand each team the other's placement
	// rules, so one policy learns both the attacking and defending role.
	swap := sc.AllowRoleSwap && m.rng.Float64() < 0.5

	ball := m.sampleRegion(sc.Ball.Region)
	ball = ball.Add(m.sampleJitter(sc.Ball.Jitter))
	if swap {
		ball = mgl32.Vec2{ball.X(), -ball.Y()}
	}
	out.Ball = ball

	for role := 0; role < 2; role++ {
		team := role
		if swap {
			team = 1 - role
		}
		slot := 0
		for _, rule := range sc.Teams[role] {
			if !rule.Active {
				continue
			}
			idx := m.agentSlot(team, slot)
			if idx < 0 {
				break // more rules than roster slots
			}
			slot++

			pos := m.resolveRule(&rule, sc, team, ball)
			yaw := m.resolveFacing(&rule, team, pos, ball)
			out.Agents = append(out.Agents, AgentPlacement{Index: idx, Pos: pos, Yaw: yaw})
		}
	}
	return out
}

// resolveRule resolves one placement rule to a world position. Zone and
// fixed coordinates are authored in the team-0 frame and depth-mirrored for
// the +Y team; anchor interpolation uses team-specific anchors and needs no
// mirroring.
func (m *Match) resolveRule(rule *scenario.AgentRule, sc *scenario.Scenario, team int, ball mgl32.Vec2) mgl32.Vec2 {
	var p mgl32.Vec2
	switch rule.ResolvedMode() {
	case scenario.ModeFixed:
		p = mgl32.Vec2{rule.Pos[0], rule.Pos[1]}
		p = mirrorDepth(p, sc, team)
	case scenario.ModeZone:
		p = m.sampleRegion(rule.Region)
		p = mirrorDepth(p, sc, team)
	case scenario.ModeAnchor:
		fromA, toA := rule.Anchors()
		from := m.anchorPoint(fromA, team, ball)
		to := m.anchorPoint(toA, team, ball)
		dir := pitch.SafeNormalize(to.Sub(from))
		if rule.Extend {
			dir = dir.Mul(-1)
		}
		d := m.sampleRange(rule.Distance[0], rule.Distance[1])
		lat := m.sampleRange(rule.Lateral[0], rule.Lateral[1])
		perp := mgl32.Vec2{dir.Y(), -dir.X()}
		p = from.Add(dir.Mul(d)).Add(perp.Mul(lat))
	}
	return p.Add(m.sampleJitter(rule.Jitter))
}

func mirrorDepth(p mgl32.Vec2, sc *scenario.Scenario, team int) mgl32.Vec2 {
	if team == 1 && sc.MirrorDepth {
		return mgl32.Vec2{p.X(), -p.Y()}
	}
	return p
}

func (m *Match) anchorPoint(a scenario.Anchor, team int, ball mgl32.Vec2) mgl32.Vec2 {
	switch a {
	case scenario.AnchorBall:
		return ball
	case scenario.AnchorOwnGoal:
		return m.field.GoalCenter(team)
	case scenario.AnchorOpponentGoal:
		return m.field.GoalCenter(1 - team)
	default:
		return mgl32.Vec2{}
	}
}

func (m *Match) resolveFacing(rule *scenario.AgentRule, team int, pos, ball mgl32.Vec2) float32 {
	var yaw float32
	switch rule.FaceTarget() {
	case scenario.LookBall:
		yaw = pitch.YawOf(ball.Sub(pos))
	case scenario.LookOwnGoal:
		yaw = pitch.YawOf(m.field.GoalCenter(team).Sub(pos))
	case scenario.LookOpponentGoal:
		yaw = pitch.YawOf(m.field.GoalCenter(1 - team).Sub(pos))
	case scenario.LookCustom:
		yaw = rule.CustomYaw
	}
	if rule.YawNoise > 0 {
		yaw += m.sampleRange(-rule.YawNoise, rule.YawNoise)
	}
	return pitch.WrapAngle(yaw)
}

// validLayout checks the full candidate against the field bounds with the
// placement safety margin. A layout is valid only as a whole.
func (m *Match) validLayout(l Layout) bool {
	margin := m.placementMargin()
	if !m.field.Contains(l.Ball, margin) {
		return false
	}
	for _, ap := range l.Agents {
		if !m.field.Contains(ap.Pos, margin) {
			return false
		}
	}
	return true
}

// applyLayout repositions the ball, wakes and places every agent the layout
// uses, and benches the rest. Placed agents get a brief action-suppression
// window so actions from the previous episode cannot carry over.
func (m *Match) applyLayout(l Layout, now float64) {
	m.sensor.Reset(m, l.Ball)

	placed := make(map[int]bool, len(l.Agents))
	for _, ap := range l.Agents {
		placed[ap.Index] = true
		a := m.agents[ap.Index]
		m.unbench(a)
		a.body.Pos = ap.Pos
		a.body.Vel = mgl32.Vec2{}
		a.Yaw = ap.Yaw
		a.prevYaw = ap.Yaw
		a.angSpeed = 0
		a.State = StateRegular
		a.ClearYawArc()
		a.Stamina = staminaMax
		a.Exhausted = false
		a.kickCooldownUntil = 0
		a.attractSuppressedUntil = now + float64(m.tun.Agent.SpawnSuppressSec)
		a.actionSuppressedUntil = now + float64(m.tun.Agent.SpawnSuppressSec)
		m.phys.SyncTransform(a.body)
	}
	for _, a := range m.agents {
		if !placed[a.Index] {
			m.bench(a)
		}
	}
}

func (m *Match) agentSlot(team, slot int) int {
	if slot >= m.teamSize {
		return -1
	}
	return team*m.teamSize + slot
}

func (m *Match) sampleRegion(r scenario.Region) mgl32.Vec2 {
	return mgl32.Vec2{
		m.sampleRange(r.Min[0], r.Max[0]),
		m.sampleRange(r.Min[1], r.Max[1]),
	}
}

func (m *Match) sampleRange(lo, hi float32) float32 {
	if hi <= lo {
		return lo
	}
	return lo + float32(m.rng.Float64())*(hi-lo)
}

func (m *Match) sampleJitter(j float32) mgl32.Vec2 {
	if j <= 0 {
		return mgl32.Vec2{}
	}
	return mgl32.Vec2{
		m.sampleRange(-j, j),
		m.sampleRange(-j, j),
	}
}
