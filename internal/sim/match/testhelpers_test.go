package match

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"pitchsim.ai/internal/protocol"
	"pitchsim.ai/internal/sim/scenario"
	"pitchsim.ai/internal/sim/tuning"
)

// testTuning is a small fast configuration: 1v1 teams, short episodes.
func testTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.TeamSize = 1
	t.StepLimit = 500
	return t
}

// centeredScenario places the ball dead center and both agents at fixed
// mirrored spots, with no randomness at all.
func centeredScenario() *scenario.Set {
	set := &scenario.Set{Scenarios: []scenario.Scenario{{
		Name: "centered",
		Ball: scenario.BallRule{Region: scenario.Region{Min: [2]float32{0, 0}, Max: [2]float32{0, 0}}},
		Teams: [2][]scenario.AgentRule{
			{{Mode: "fixed", Pos: [2]float32{0, -5}, Face: "ball", Active: true}},
			{{Mode: "fixed", Pos: [2]float32{0, -5}, Face: "ball", Active: true}},
		},
		MirrorDepth:   true,
		AllowRoleSwap: false,
	}}}
	if err := set.Normalize(); err != nil {
		panic(err)
	}
	return set
}

func newTestMatch(t *testing.T, tun tuning.Tuning, scns *scenario.Set) *Match {
	t.Helper()
	m, err := New(Config{ID: "test", Seed: 7}, tun, scns, nil)
	if err != nil {
		t.Fatalf("new match: %v", err)
	}
	return m
}

func idleActions(m *Match) []ActionEnvelope {
	out := make([]ActionEnvelope, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, ActionEnvelope{AgentID: a.ID, Act: protocol.ActMsg{
			Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Tick: m.tick, AgentID: a.ID,
		}})
	}
	return out
}

func actionFor(m *Match, a *Agent, move, rot, kick int) []ActionEnvelope {
	return []ActionEnvelope{{AgentID: a.ID, Act: protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Tick: m.tick, AgentID: a.ID,
		Action: [3]int{move, rot, kick},
	}}}
}

// wakeAgents clears the spawn suppression windows so tests can act on the
// very first tick.
func wakeAgents(m *Match) {
	for _, a := range m.agents {
		a.attractSuppressedUntil = 0
		a.actionSuppressedUntil = 0
	}
}

// placeBall teleports the ball, clearing its motion and ownership.
func placeBall(m *Match, p mgl32.Vec2) {
	m.sensor.Reset(m, p)
}

func approx(a, b, eps float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}
