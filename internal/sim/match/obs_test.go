package match

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"pitchsim.ai/internal/protocol"
)

func TestBuildObs_SizeAndRanges(t *testing.T) {
	tun := testTuning()
	tun.TeamSize = 4
	m := newTestMatch(t, tun, nil) // built-in kickoff scenario

	for _, a := range m.agents {
		if a.Benched {
			continue
		}
		v := m.buildObs(a)
		if len(v) != protocol.ObsSize {
			t.Fatalf("agent %d: obs length = %d, want %d", a.Index, len(v), protocol.ObsSize)
		}
		// Positions normalized, velocities clamped: nothing should explode.
		for i, x := range v {
			if x < -2 || x > 2 {
				t.Fatalf("agent %d: obs[%d] = %v out of sane range", a.Index, i, x)
			}
		}
	}
}

func TestBuildObs_TeamMirroring(t *testing.T) {
	m := newTestMatch(t, testTuning(), centeredScenario())
	a0, a1 := m.agents[0], m.agents[1]

	// Perfectly mirrored world state: identical observations for both sides.
	placeBall(m, mgl32.Vec2{0, 0})
	a0.body.Pos = mgl32.Vec2{2, -5}
	a0.Yaw = 0 // facing opponent goal
	a0.body.Vel = mgl32.Vec2{0, 1}
	a1.body.Pos = mgl32.Vec2{-2, 5}
	a1.Yaw = mgl32.DegToRad(180)
	a1.body.Vel = mgl32.Vec2{0, -1}

	v0 := m.buildObs(a0)
	v1 := m.buildObs(a1)
	for i := range v0 {
		if !approx(v0[i], v1[i], 1e-5) {
			t.Fatalf("obs[%d]: team0=%v team1=%v, mirrored states must observe alike", i, v0[i], v1[i])
		}
	}

	// Own position is reported in the team frame: own half is always -Y.
	if v0[2] >= 0 || v1[2] >= 0 {
		t.Fatalf("own depth not mirrored into -Y: team0=%v team1=%v", v0[2], v1[2])
	}
}

func TestBuildObs_PossessionSignal(t *testing.T) {
	m := newTestMatch(t, testTuning(), centeredScenario())
	a0, a1 := m.agents[0], m.agents[1]

	m.phase = PhaseTeam0Possession
	if v := m.buildObs(a0); v[0] != 1 {
		t.Fatalf("possessing team sees %v, want +1", v[0])
	}
	if v := m.buildObs(a1); v[0] != -1 {
		t.Fatalf("defending team sees %v, want -1", v[0])
	}

	m.phase = PhaseContested
	if v := m.buildObs(a0); v[0] != 0 {
		t.Fatalf("contested phase sees %v, want 0", v[0])
	}
	m.phase = PhaseLoose
	if v := m.buildObs(a1); v[0] != 0 {
		t.Fatalf("loose phase sees %v, want 0", v[0])
	}
}

func TestBuildObs_BallRelative(t *testing.T) {
	tun := testTuning()
	m := newTestMatch(t, tun, centeredScenario())
	a := m.agents[0]

	a.body.Pos = mgl32.Vec2{0, -5}
	a.body.Vel = mgl32.Vec2{}
	placeBall(m, mgl32.Vec2{3, -2})

	v := m.buildObs(a)
	// Indices 8..11: ball-relative position then velocity.
	if !approx(v[8], 3/m.field.HalfWidth, 1e-5) {
		t.Fatalf("ball rel x = %v", v[8])
	}
	if !approx(v[9], 3/m.field.HalfLength, 1e-5) {
		t.Fatalf("ball rel y = %v", v[9])
	}
	if v[10] != 0 || v[11] != 0 {
		t.Fatalf("ball rel vel = (%v, %v), want zero", v[10], v[11])
	}
}

func TestBuildObs_NeighborPaddingAndOrder(t *testing.T) {
	tun := testTuning()
	tun.TeamSize = 3
	set := centeredScenario() // one active rule per team: two teammates benched
	m := newTestMatch(t, tun, set)

	a := m.agents[0]
	v := m.buildObs(a)

	// Teammate slots start after possession+self+ball+goals = 1+7+4+12 = 24.
	for i := 24; i < 24+4*obsTeammateSlots; i++ {
		if v[i] != 0 {
			t.Fatalf("benched teammate slot obs[%d] = %v, want zero padding", i, v[i])
		}
	}

	// One real opponent, remaining opponent slots padded.
	opp := 24 + 4*obsTeammateSlots
	nonzero := false
	for i := opp; i < opp+4; i++ {
		if v[i] != 0 {
			nonzero = true
		}
	}
	if !nonzero {
		t.Fatal("active opponent observed as all zeros")
	}
	for i := opp + 4; i < opp+4*obsOpponentSlots; i++ {
		if v[i] != 0 {
			t.Fatalf("missing opponent slot obs[%d] = %v, want zero padding", i, v[i])
		}
	}
}
