package match

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"pitchsim.ai/internal/sim/pitch"
)

// Phase is the live possession classification, recomputed every tick from
// the sensor's contest flags.
type Phase uint8

const (
	PhaseLoose Phase = iota
	PhaseTeam0Possession
	PhaseTeam1Possession
	PhaseContested
)

func (p Phase) String() string {
	switch p {
	case PhaseTeam0Possession:
		return "TEAM0_POSSESSION"
	case PhaseTeam1Possession:
		return "TEAM1_POSSESSION"
	case PhaseContested:
		return "CONTESTED"
	}
	return "LOOSE"
}

// RestartType classifies the active dead-ball resumption.
type RestartType uint8

const (
	RestartOpenPlay RestartType = iota
	RestartGoalKick
	RestartCorner
	RestartThrowIn
)

func (r RestartType) String() string {
	switch r {
	case RestartGoalKick:
		return "GOAL_KICK"
	case RestartCorner:
		return "CORNER"
	case RestartThrowIn:
		return "THROW_IN"
	}
	return "OPEN_PLAY"
}

// orchestrate is stage 5 of the tick pipeline: the referee. It interprets
// the sensor's contest data into a phase, resolves boundary events into goal
// rulings or restart choreography, runs the stall timer, and enforces the
// step limit. Episode resets are only staged here; they apply at the end of
// the tick so no component is read in a transitional state.
func (m *Match) orchestrate(now float64) {
	m.stepCount++
	m.ticksSinceReset++

	m.detectPhase()

	// Anti-double-fire: triggers on the very first tick after a reset are
	// the reloaded layout itself, not play.
	if m.ticksSinceReset > 1 && !m.reloadStaged {
		m.checkBoundary()
	}

	// Stall timer: the "whistle" that arms a staged taker.
	if m.taker >= 0 && m.agents[m.taker].State == StateStalled {
		m.stallTimer -= m.dt
		if m.stallTimer <= 0 {
			m.agents[m.taker].State = StateArmed
		}
	}

	if m.stepCount >= m.stepLimit && !m.reloadStaged {
		m.stageReload("step_limit")
	}
}

// detectPhase derives the possession phase and, on a genuine change, applies
// the early-release rule for a restricted restart taker. Change detection
// uses a signature over the phase and the sorted contesting set so identical
// contests do not retrigger side effects.
func (m *Match) detectPhase() {
	var p Phase
	switch {
	case m.sensor.teamContest[0] && m.sensor.teamContest[1]:
		p = PhaseContested
	case m.sensor.teamContest[0]:
		p = PhaseTeam0Possession
	case m.sensor.teamContest[1]:
		p = PhaseTeam1Possession
	default:
		p = PhaseLoose
	}

	sig := phaseSignature(p, m.sensor.contestIDs)
	if sig == m.phaseSig {
		m.phase = p
		return
	}
	m.phaseSig = sig
	m.phase = p

	// Double-touch rule: once any other agent contests the ball, the taker
	// is released back to open play with full rotation freedom.
	if m.taker >= 0 && m.agents[m.taker].State == StateRestricted {
		for _, idx := range m.sensor.contestIDs {
			if idx != m.taker {
				m.releaseTaker()
				break
			}
		}
	}
}

func phaseSignature(p Phase, contest []int) string {
	var b strings.Builder
	b.WriteString(p.String())
	for _, idx := range contest {
		fmt.Fprintf(&b, ":%d", idx)
	}
	return b.String()
}

func (m *Match) releaseTaker() {
	t := m.agents[m.taker]
	t.State = StateRegular
	t.ClearYawArc()
	m.taker = -1
	m.restartType = RestartOpenPlay
}

// checkBoundary queries the physics collaborator for trigger hits on the
// ball. Goal triggers take priority over the out-of-bounds strips.
func (m *Match) checkBoundary() {
	hits := m.phys.RegionHits(m.sensor.body)
	if len(hits) == 0 {
		return
	}
	for _, h := range hits {
		switch h {
		case regionGoal0:
			// Behind team 0's line: team 1 scores.
			m.resolveGoal(1)
			return
		case regionGoal1:
			m.resolveGoal(0)
			return
		}
	}
	for _, h := range hits {
		if strings.HasPrefix(h, regionOOBPrefix) {
			m.resolveOutOfBounds(m.sensor.body.Pos)
			return
		}
	}
}

// resolveGoal assigns the zero-sum team rewards and ends the episode. The
// scoring team's reward decays with how late in the step budget the goal
// came; the conceding side's is a fixed negative constant.
func (m *Match) resolveGoal(scoring int) {
	r := pitch.Clamp32(1-float32(m.stepCount)/float32(m.stepLimit),
		m.tun.Rules.GoalMinReward, 1)
	m.addTeamReward(scoring, r)
	m.addTeamReward(1-scoring, m.tun.Rules.ConcedeReward)

	touch := m.sensor.Touch()
	if touch.Toucher >= 0 {
		if touch.Team == scoring {
			m.agentBonus[touch.Toucher] += m.tun.Rules.ScorerReward
			m.scorer = m.agents[touch.Toucher].ID
		} else {
			// Own goal: penalize the unlucky last toucher, but never
			// record them as the scorer.
			m.agentBonus[touch.Toucher] += m.tun.Rules.OwnGoalReward
		}
	}

	m.logEvent("GOAL", fmt.Sprintf("team=%d toucher=%d action=%s step=%d",
		scoring, touch.Toucher, touch.Action, m.stepCount))
	m.stageReload(fmt.Sprintf("goal_team%d", scoring))
}

// resolveOutOfBounds classifies the exit into a restart type, selects the
// taker and stages the restart. With too few active agents to field a valid
// match the episode ends outright.
func (m *Match) resolveOutOfBounds(contact mgl32.Vec2) {
	var active [2]int
	for _, a := range m.agents {
		if !a.Benched {
			active[a.Team]++
		}
	}
	if active[0] == 0 || active[1] == 0 {
		m.stageReload("insufficient_agents")
		return
	}

	touch := m.sensor.Touch()
	if touch.Team < 0 {
		// Nobody ever touched the ball; nothing to officiate.
		m.stageReload("untouched_out")
		return
	}

	rt := classifyRestart(m.field, contact, touch.Team)
	beneficiary := 1 - touch.Team

	taker := m.nearestActiveAgent(beneficiary, contact)
	if taker < 0 {
		m.stageReload("insufficient_agents")
		return
	}

	// The delay stands in for the time the taker needs to jog to the ball.
	dist := m.agents[taker].body.Pos.Sub(contact).Len()
	m.stallTimer = dist / m.tun.Rules.AssumedRunSpeed

	m.logEvent("OUT_OF_BOUNDS", fmt.Sprintf("type=%s toucher=%d taker=%d",
		rt, touch.Toucher, taker))
	m.stageRestart(rt, contact, taker)
}

// classifyRestart is a pure function of the exit position and last-touch
// team: side boundary exits are always throw-ins; end boundary exits are
// goal kicks when the attacking team touched last, else corners.
func classifyRestart(f pitch.Field, contact mgl32.Vec2, touchTeam int) RestartType {
	if math32.Abs(contact.Y()) < f.HalfLength {
		return RestartThrowIn
	}
	// Which end: the team defending this goal line.
	defending := 0
	if contact.Y() > 0 {
		defending = 1
	}
	attacking := 1 - defending
	if touchTeam == attacking {
		return RestartGoalKick
	}
	return RestartCorner
}

func (m *Match) nearestActiveAgent(team int, p mgl32.Vec2) int {
	best := -1
	var bestD float32
	for _, a := range m.agents {
		if a.Benched || a.Team != team {
			continue
		}
		d := a.body.Pos.Sub(p).Len()
		if best < 0 || d < bestD {
			best = a.Index
			bestD = d
		}
	}
	return best
}

// stageRestart performs the dead-ball choreography: canonical anchor, ball
// inset toward the field center, taker placed behind the ball facing it and
// stalled, a restart-specific yaw arc, and every other agent pushed out of
// the exclusion zone.
func (m *Match) stageRestart(rt RestartType, contact mgl32.Vec2, taker int) {
	anchor := restartAnchor(m.field, rt, contact)

	inward := pitch.SafeNormalize(anchor.Mul(-1)) // toward field center
	ballPos := anchor.Add(inward.Mul(m.tun.Rules.RestartBallInset))
	m.sensor.Reset(m, ballPos)
	m.restartBallPos = ballPos

	t := m.agents[taker]
	outward := inward.Mul(-1)
	t.body.Pos = m.field.Clamp(ballPos.Add(outward.Mul(m.tun.Rules.TakerBehindOffset)), m.tun.Agent.Radius)
	t.body.Vel = mgl32.Vec2{}
	t.Yaw = pitch.YawOf(ballPos.Sub(t.body.Pos))
	t.prevYaw = t.Yaw
	t.State = StateStalled
	m.phys.SyncTransform(t.body)

	center, half := restartYawArc(m.field, rt, anchor, m.tun.Rules.EndLineNarrowBand)
	t.SetYawArc(center, half)

	m.taker = taker
	m.restartType = rt

	// Clear the exclusion zone around the taker, clamped within bounds.
	for _, a := range m.agents {
		if a.Benched || a.Index == taker {
			continue
		}
		m.pushOutside(a, t.body.Pos, m.tun.Rules.TakerExclusionRadius)
	}
}

// restartAnchor computes the canonical resumption point: centered goal-line
// point for goal kicks, nearest corner for corners, the contact point itself
// (snapped to the side line) for throw-ins.
func restartAnchor(f pitch.Field, rt RestartType, contact mgl32.Vec2) mgl32.Vec2 {
	sx := sign(contact.X())
	sy := sign(contact.Y())
	switch rt {
	case RestartGoalKick:
		return mgl32.Vec2{0, sy * f.HalfLength}
	case RestartCorner:
		return mgl32.Vec2{sx * f.HalfWidth, sy * f.HalfLength}
	default: // throw-in
		y := pitch.Clamp32(contact.Y(), -f.HalfLength, f.HalfLength)
		return mgl32.Vec2{sx * f.HalfWidth, y}
	}
}

// restartYawArc returns the rotation restriction applied to the taker:
// goal kick gets a forward band that excludes turning fully backward, corner
// the interior-facing quadrant, throw-in the inward half, narrowed near the
// end lines so the taker cannot face out of bounds.
func restartYawArc(f pitch.Field, rt RestartType, anchor mgl32.Vec2, endBand float32) (center, half float32) {
	inward := pitch.SafeNormalize(anchor.Mul(-1))
	switch rt {
	case RestartGoalKick:
		// Face up field from the goal line.
		return pitch.YawOf(mgl32.Vec2{0, -sign(anchor.Y())}), 2 * math32.Pi / 3
	case RestartCorner:
		return pitch.YawOf(inward), math32.Pi / 4
	default: // throw-in
		c := mgl32.Vec2{-sign(anchor.X()), 0}
		h := float32(math32.Pi / 2)
		if f.HalfLength-math32.Abs(anchor.Y()) < endBand {
			// Near an end line: tilt inward and narrow the arc.
			c = pitch.SafeNormalize(c.Add(mgl32.Vec2{0, -sign(anchor.Y())}))
			h = math32.Pi / 4
		}
		return pitch.YawOf(c), h
	}
}

func sign(v float32) float32 {
	if v < 0 {
		return -1
	}
	return 1
}

// pinRestartBall holds the ball at the staged restart spot while the taker
// is Stalled or Armed, so drift cannot move a dead ball.
func (m *Match) pinRestartBall() {
	if m.taker < 0 {
		return
	}
	switch m.agents[m.taker].State {
	case StateStalled, StateArmed:
		m.sensor.body.Pos = m.restartBallPos
		m.sensor.body.Vel = mgl32.Vec2{}
		m.sensor.body.Spin = 0
	}
}

func (m *Match) addTeamReward(team int, r float32) {
	m.teamRewardTick[team] += r
}

func (m *Match) logEvent(kind, detail string) {
	if m.log != nil {
		m.log.Printf("tick=%d %s %s", m.tick, kind, detail)
	}
	m.tickEvents = append(m.tickEvents, TickEvent{Kind: kind, Detail: detail})
}
