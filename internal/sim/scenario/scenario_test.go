package scenario

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
scenarios:
  - name: kickoff
    ball:
      region: {min: [0, 0], max: [0, 0]}
      jitter: 1.0
    mirror_depth: true
    allow_role_swap: true
    teams:
      - - mode: zone
          region: {min: [-12, -18], max: [12, -2]}
          face: ball
          jitter: 0.5
          active: true
      - - mode: anchor
          from: own_goal
          to: ball
          distance: [4, 6]
          lateral: [-1, 1]
          face: opponent_goal
          active: true
  - name: fixed_drill
    step_limit: 250
    ball:
      region: {min: [3, 6], max: [3, 6]}
    teams:
      - - mode: fixed
          pos: [0, -5]
          face: ball
          active: true
      - - mode: fixed
          pos: [0, -5]
          face: ball
          active: true
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	set, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(set.Scenarios) != 2 {
		t.Fatalf("scenarios = %d, want 2", len(set.Scenarios))
	}

	kickoff := set.Scenarios[0]
	if !kickoff.MirrorDepth || !kickoff.AllowRoleSwap {
		t.Fatalf("kickoff flags = %+v", kickoff)
	}
	if kickoff.Teams[0][0].ResolvedMode() != ModeZone {
		t.Fatalf("team 0 mode = %v", kickoff.Teams[0][0].ResolvedMode())
	}
	anchor := kickoff.Teams[1][0]
	if anchor.ResolvedMode() != ModeAnchor {
		t.Fatalf("team 1 mode = %v", anchor.ResolvedMode())
	}
	from, to := anchor.Anchors()
	if from != AnchorOwnGoal || to != AnchorBall {
		t.Fatalf("anchors = %v %v", from, to)
	}
	if anchor.FaceTarget() != LookOpponentGoal {
		t.Fatalf("face = %v", anchor.FaceTarget())
	}

	if set.Scenarios[1].StepLimit != 250 {
		t.Fatalf("step limit = %d", set.Scenarios[1].StepLimit)
	}
}

func TestNormalize_Rejections(t *testing.T) {
	base := func() Set {
		return Set{Scenarios: []Scenario{{
			Name: "s",
			Ball: BallRule{Region: Region{Min: [2]float32{0, 0}, Max: [2]float32{0, 0}}},
			Teams: [2][]AgentRule{
				{{Mode: "fixed", Face: "ball", Active: true}},
				{{Mode: "fixed", Face: "ball", Active: true}},
			},
		}}}
	}

	cases := []struct {
		name   string
		mutate func(*Set)
	}{
		{"empty set", func(s *Set) { s.Scenarios = nil }},
		{"missing name", func(s *Set) { s.Scenarios[0].Name = "" }},
		{"inverted ball region", func(s *Set) { s.Scenarios[0].Ball.Region.Min = [2]float32{1, 0} }},
		{"no active agents", func(s *Set) {
			s.Scenarios[0].Teams[0][0].Active = false
			s.Scenarios[0].Teams[1][0].Active = false
		}},
		{"unknown mode", func(s *Set) { s.Scenarios[0].Teams[0][0].Mode = "teleport" }},
		{"unknown face", func(s *Set) { s.Scenarios[0].Teams[0][0].Face = "north" }},
		{"negative jitter", func(s *Set) { s.Scenarios[0].Teams[0][0].Jitter = -1 }},
		{"anchor same endpoints", func(s *Set) {
			s.Scenarios[0].Teams[0][0] = AgentRule{
				Mode: "anchor", From: "ball", To: "ball", Face: "ball", Active: true,
			}
		}},
		{"anchor inverted distance", func(s *Set) {
			s.Scenarios[0].Teams[0][0] = AgentRule{
				Mode: "anchor", From: "own_goal", To: "ball",
				Distance: [2]float32{5, 2}, Face: "ball", Active: true,
			}
		}},
	}
	for _, tc := range cases {
		s := base()
		tc.mutate(&s)
		if err := s.Normalize(); err == nil {
			t.Errorf("%s: Normalize accepted invalid asset", tc.name)
		}
	}

	good := base()
	if err := good.Normalize(); err != nil {
		t.Fatalf("valid asset rejected: %v", err)
	}
}

func TestByIndex_Clamps(t *testing.T) {
	set := Default(2)
	if set.ByIndex(-5) != &set.Scenarios[0] {
		t.Fatal("negative index not clamped to first")
	}
	if set.ByIndex(99) != &set.Scenarios[len(set.Scenarios)-1] {
		t.Fatal("overlarge index not clamped to last")
	}
}

func TestDefault_IndependentTeams(t *testing.T) {
	set := Default(3)
	sc := set.ByIndex(0)
	if len(sc.Teams[0]) != 3 || len(sc.Teams[1]) != 3 {
		t.Fatalf("team rule counts = %d/%d", len(sc.Teams[0]), len(sc.Teams[1]))
	}

	// The two rule lists must not alias the same backing array.
	sc.Teams[0][0].Jitter = 9
	if sc.Teams[1][0].Jitter == 9 {
		t.Fatal("team rule lists share backing storage")
	}
}
