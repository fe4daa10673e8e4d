package match

import (
	"github.com/go-gl/mathgl/mgl32"

	"pitchsim.ai/internal/sim/physics"
)

// ActionKind classifies how the ball was last influenced.
type ActionKind uint8

const (
	ActionNone ActionKind = iota
	ActionKick
	ActionTouch
	ActionDeflection
)

func (k ActionKind) String() string {
	switch k {
	case ActionKick:
		return "KICK"
	case ActionTouch:
		return "TOUCH"
	case ActionDeflection:
		return "DEFLECTION"
	}
	return "NONE"
}

// BallSensor owns the ball body and attributes possession. Every tick it
// scans the ball's neighborhood for contesting agents, maintains the
// last-toucher record, and exposes the force-sharing multiplier used by the
// dribble magnets.
type BallSensor struct {
	body *physics.Body

	lastToucher   int // agent index, -1 = none
	lastTouchTeam int // -1 = none
	lastAction    ActionKind

	// Time-boxed exemption for the most recent kicker, so the ball's
	// immediate rebound off the kicker's own body is not re-attributed.
	ignoreSource int
	ignoreUntil  float64

	contestCount int
	teamContest  [2]bool
	contestIDs   []int // sorted agent indices in contest
	closest      int
	closestDist  float32
}

func newBallSensor(body *physics.Body) *BallSensor {
	return &BallSensor{
		body:          body,
		lastToucher:   -1,
		lastTouchTeam: -1,
		ignoreSource:  -1,
	}
}

// Tick expires the kick-ignore window, rescans the ball's neighborhood and
// re-attributes ownership to the closest contester (deflection rule). Runs
// after physics integration.
func (s *BallSensor) Tick(m *Match, now float64) {
	if s.ignoreSource >= 0 && now >= s.ignoreUntil {
		s.ignoreSource = -1
	}

	s.contestCount = 0
	s.teamContest[0] = false
	s.teamContest[1] = false
	s.contestIDs = s.contestIDs[:0]
	s.closest = -1
	s.closestDist = 0

	influence := m.tun.Ball.InfluenceRadius
	scanR := influence + m.tun.Ball.ScanMargin
	for _, b := range m.phys.QueryCircle(s.body.Pos, scanR, physics.CategoryPlayer) {
		a := m.byBody[b]
		if a == nil || a.Benched || a.State == StateRestricted {
			continue
		}
		d := s.body.Pos.Sub(a.ControlPoint(m.tun.Agent.ControlPointOffset)).Len()
		if d > influence {
			continue
		}
		s.contestCount++
		s.teamContest[a.Team] = true
		s.contestIDs = append(s.contestIDs, a.Index)
		if s.closest < 0 || d < s.closestDist {
			s.closest = a.Index
			s.closestDist = d
		}
	}
	sortInts(s.contestIDs)

	// Closest-contester attribution: a ball drifting into the goal with no
	// registered touch still credits the nearest contester.
	if s.closest >= 0 && s.closest != s.activeIgnoreSource(now) {
		s.lastToucher = s.closest
		s.lastTouchTeam = m.agents[s.closest].Team
		s.lastAction = ActionDeflection
	}
}

func (s *BallSensor) activeIgnoreSource(now float64) int {
	if s.ignoreSource >= 0 && now < s.ignoreUntil {
		return s.ignoreSource
	}
	return -1
}

// OnContact attributes a direct body-to-body collision, unless it is the
// kick-ignore source rebounding off its own kick.
func (s *BallSensor) OnContact(a *Agent, now float64) {
	if a.Index == s.activeIgnoreSource(now) {
		return
	}
	s.lastToucher = a.Index
	s.lastTouchTeam = a.Team
	s.lastAction = ActionTouch
}

// RegisterKick unconditionally attributes a kick and opens the ignore window
// that suppresses the kicker's immediate rebound.
func (s *BallSensor) RegisterKick(a *Agent, now float64, ignoreSec float32) {
	s.lastToucher = a.Index
	s.lastTouchTeam = a.Team
	s.lastAction = ActionKick
	s.ignoreSource = a.Index
	s.ignoreUntil = now + float64(ignoreSec)
}

// ShareMultiplier is 1/contestCount, or 1 when nobody contests, so the summed
// pull of all contesting dribble magnets never exceeds a single agent's.
func (s *BallSensor) ShareMultiplier() float32 {
	if s.contestCount > 0 {
		return 1 / float32(s.contestCount)
	}
	return 1
}

// Reset repositions the ball, zeroes its motion and clears all ownership and
// ignore state. The transform sync guarantees the next proximity scan sees
// the new position with no one-tick lag.
func (s *BallSensor) Reset(m *Match, pos mgl32.Vec2) {
	s.body.Pos = pos
	s.body.Vel = mgl32.Vec2{}
	s.body.Spin = 0
	s.lastToucher = -1
	s.lastTouchTeam = -1
	s.lastAction = ActionNone
	s.ignoreSource = -1
	s.ignoreUntil = 0
	s.contestCount = 0
	s.teamContest[0] = false
	s.teamContest[1] = false
	s.contestIDs = s.contestIDs[:0]
	s.closest = -1
	m.phys.SyncTransform(s.body)
}

// TouchInfo is the ownership record reported with boundary events.
type TouchInfo struct {
	Toucher int
	Team    int
	Action  ActionKind
}

func (s *BallSensor) Touch() TouchInfo {
	return TouchInfo{Toucher: s.lastToucher, Team: s.lastTouchTeam, Action: s.lastAction}
}

func sortInts(v []int) {
	// Insertion sort: the contest set is tiny.
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}
