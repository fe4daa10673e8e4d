// Package scenario defines the declarative episode-start placement assets.
// A scenario describes where the ball and each agent spawn and which way
// they face. Assets are authored in scenarios.yaml, validated at load time
// and never mutated afterwards; the orchestrator selects one by curriculum
// index on every episode reload.
package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlacementMode selects how an agent's target position is resolved.
type PlacementMode int

const (
	// ModeZone samples uniformly within a rectangular region.
	ModeZone PlacementMode = iota
	// ModeAnchor interpolates between two anchor points (e.g. own goal and
	// ball) at a sampled distance, with an optional lateral offset.
	ModeAnchor
	// ModeFixed places at an exact coordinate.
	ModeFixed
)

// Anchor names a reference point used by ModeAnchor.
type Anchor int

const (
	AnchorBall Anchor = iota
	AnchorOwnGoal
	AnchorOpponentGoal
	AnchorCenter
)

// LookTarget selects what a placed agent initially faces.
type LookTarget int

const (
	LookBall LookTarget = iota
	LookOwnGoal
	LookOpponentGoal
	LookCustom
)

// Region is an axis-aligned rectangle in field coordinates, authored from
// team 0's perspective.
type Region struct {
	Min [2]float32 `yaml:"min"`
	Max [2]float32 `yaml:"max"`
}

func (r Region) valid() bool {
	return r.Min[0] <= r.Max[0] && r.Min[1] <= r.Max[1]
}

// BallRule places the ball.
type BallRule struct {
	Region Region  `yaml:"region"`
	Jitter float32 `yaml:"jitter"`
}

// AgentRule places one agent. Exactly one mode is used, selected by Mode.
type AgentRule struct {
	Mode string `yaml:"mode"` // "zone", "anchor", "fixed"

	Region Region     `yaml:"region,omitempty"` // zone mode
	Pos    [2]float32 `yaml:"pos,omitempty"`    // fixed mode

	// Anchor mode: a point between From and To at a distance sampled from
	// [Distance[0], Distance[1]] measured from From, offset laterally by a
	// value sampled from [Lateral[0], Lateral[1]]. Extend flips the
	// direction away from To.
	From     string     `yaml:"from,omitempty"`
	To       string     `yaml:"to,omitempty"`
	Distance [2]float32 `yaml:"distance,omitempty"`
	Lateral  [2]float32 `yaml:"lateral,omitempty"`
	Extend   bool       `yaml:"extend,omitempty"`

	Face      string  `yaml:"face"` // "ball", "own_goal", "opponent_goal", "custom"
	CustomYaw float32 `yaml:"custom_yaw,omitempty"`
	YawNoise  float32 `yaml:"yaw_noise,omitempty"` // radians, uniform +/-

	Jitter float32 `yaml:"jitter"`
	Active bool    `yaml:"active"`

	mode PlacementMode
	from Anchor
	to   Anchor
	face LookTarget
}

// ResolvedMode returns the parsed placement mode. Valid after Normalize.
func (a AgentRule) ResolvedMode() PlacementMode { return a.mode }

// Anchors returns the parsed From/To anchors. Valid after Normalize.
func (a AgentRule) Anchors() (Anchor, Anchor) { return a.from, a.to }

// FaceTarget returns the parsed look-at target. Valid after Normalize.
func (a AgentRule) FaceTarget() LookTarget { return a.face }

// Scenario is one complete placement description.
type Scenario struct {
	Name string   `yaml:"name"`
	Ball BallRule `yaml:"ball"`

	// Teams holds the placement rules per role (index 0 = team whose rules
	// are authored for the -Y half); role swap may hand either rule list to
	// either physical team.
	Teams [2][]AgentRule `yaml:"teams"`

	// MirrorDepth mirrors zone/fixed coordinates in depth for the team
	// playing the +Y half, so rules are authored once.
	MirrorDepth bool `yaml:"mirror_depth"`

	// AllowRoleSwap enables the 50% per-episode swap of which physical team
	// uses which rule list.
	AllowRoleSwap bool `yaml:"allow_role_swap"`

	// StepLimit overrides the global step limit when positive.
	StepLimit int `yaml:"step_limit,omitempty"`
}

// Set is the full scenario asset.
type Set struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// ByIndex selects a scenario by curriculum index, clamping into range.
func (s *Set) ByIndex(idx int) *Scenario {
	if len(s.Scenarios) == 0 {
		return nil
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.Scenarios) {
		idx = len(s.Scenarios) - 1
	}
	return &s.Scenarios[idx]
}

func Load(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var set Set
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("scenarios.yaml: %w", err)
	}
	if err := set.Normalize(); err != nil {
		return nil, fmt.Errorf("scenarios.yaml: %w", err)
	}
	return &set, nil
}

// Normalize parses string selectors into their enum forms and validates the
// asset. It must be called before any scenario is used.
func (s *Set) Normalize() error {
	if len(s.Scenarios) == 0 {
		return fmt.Errorf("no scenarios defined")
	}
	for i := range s.Scenarios {
		sc := &s.Scenarios[i]
		if sc.Name == "" {
			return fmt.Errorf("scenario %d: missing name", i)
		}
		if !sc.Ball.Region.valid() {
			return fmt.Errorf("scenario %q: invalid ball region", sc.Name)
		}
		if sc.Ball.Jitter < 0 {
			return fmt.Errorf("scenario %q: negative ball jitter", sc.Name)
		}
		active := 0
		for t := range sc.Teams {
			for j := range sc.Teams[t] {
				r := &sc.Teams[t][j]
				if err := r.normalize(); err != nil {
					return fmt.Errorf("scenario %q team %d rule %d: %w", sc.Name, t, j, err)
				}
				if r.Active {
					active++
				}
			}
		}
		if active == 0 {
			return fmt.Errorf("scenario %q: no active agents", sc.Name)
		}
	}
	return nil
}

func (a *AgentRule) normalize() error {
	switch strings.ToLower(a.Mode) {
	case "zone":
		a.mode = ModeZone
		if !a.Region.valid() {
			return fmt.Errorf("invalid zone region")
		}
	case "anchor":
		a.mode = ModeAnchor
		from, err := parseAnchor(a.From)
		if err != nil {
			return err
		}
		to, err := parseAnchor(a.To)
		if err != nil {
			return err
		}
		if from == to {
			return fmt.Errorf("anchor from and to must differ")
		}
		if a.Distance[0] > a.Distance[1] || a.Distance[0] < 0 {
			return fmt.Errorf("invalid anchor distance range")
		}
		if a.Lateral[0] > a.Lateral[1] {
			return fmt.Errorf("invalid lateral range")
		}
		a.from, a.to = from, to
	case "fixed":
		a.mode = ModeFixed
	default:
		return fmt.Errorf("unknown placement mode %q", a.Mode)
	}

	switch strings.ToLower(a.Face) {
	case "", "ball":
		a.face = LookBall
	case "own_goal":
		a.face = LookOwnGoal
	case "opponent_goal":
		a.face = LookOpponentGoal
	case "custom":
		a.face = LookCustom
	default:
		return fmt.Errorf("unknown face target %q", a.Face)
	}

	if a.Jitter < 0 {
		return fmt.Errorf("negative jitter")
	}
	if a.YawNoise < 0 {
		return fmt.Errorf("negative yaw noise")
	}
	return nil
}

func parseAnchor(s string) (Anchor, error) {
	switch strings.ToLower(s) {
	case "ball":
		return AnchorBall, nil
	case "own_goal":
		return AnchorOwnGoal, nil
	case "opponent_goal":
		return AnchorOpponentGoal, nil
	case "center":
		return AnchorCenter, nil
	default:
		return 0, fmt.Errorf("unknown anchor %q", s)
	}
}

// Default returns a minimal built-in scenario set used when no asset file is
// supplied: a loose kickoff ball at center with both teams in their own
// halves.
func Default(teamSize int) *Set {
	team := make([]AgentRule, teamSize)
	for i := range team {
		team[i] = AgentRule{
			Mode:   "zone",
			Region: Region{Min: [2]float32{-12, -18}, Max: [2]float32{12, -2}},
			Face:   "ball",
			Jitter: 0.5,
			Active: true,
		}
	}
	set := &Set{Scenarios: []Scenario{{
		Name:          "kickoff",
		Ball:          BallRule{Region: Region{Min: [2]float32{0, 0}, Max: [2]float32{0, 0}}, Jitter: 1},
		Teams:         [2][]AgentRule{team, append([]AgentRule(nil), team...)},
		MirrorDepth:   true,
		AllowRoleSwap: true,
	}}}
	if err := set.Normalize(); err != nil {
		panic(err) // built-in asset must be valid
	}
	return set
}
