package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds every numeric knob of the simulation. Values not present in
// tuning.yaml keep their defaults.
type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz"`

	StepLimit int `yaml:"step_limit"`

	TeamSize int `yaml:"team_size"`

	Field FieldTuning `yaml:"field"`
	Ball  BallTuning  `yaml:"ball"`
	Agent AgentTuning `yaml:"agent"`
	Rules RulesTuning `yaml:"rules"`
}

type FieldTuning struct {
	HalfWidth     float32 `yaml:"half_width"`
	HalfLength    float32 `yaml:"half_length"`
	GoalHalfWidth float32 `yaml:"goal_half_width"`
	BoundsMargin  float32 `yaml:"bounds_margin"`
}

type BallTuning struct {
	Radius        float32 `yaml:"radius"`
	Mass          float32 `yaml:"mass"`
	LinearDamping float32 `yaml:"linear_damping"`
	Restitution   float32 `yaml:"restitution"`

	InfluenceRadius float32 `yaml:"influence_radius"`
	ScanMargin      float32 `yaml:"scan_margin"`
	KickIgnoreSec   float32 `yaml:"kick_ignore_sec"`
}

type AgentTuning struct {
	Radius        float32 `yaml:"radius"`
	Mass          float32 `yaml:"mass"`
	LinearDamping float32 `yaml:"linear_damping"`

	ControlPointOffset float32 `yaml:"control_point_offset"`

	MoveSpeed   float32 `yaml:"move_speed"`
	BackSpeed   float32 `yaml:"back_speed"`
	StrafeSpeed float32 `yaml:"strafe_speed"`
	TurnSpeed   float32 `yaml:"turn_speed"` // rad/s

	SprintSpeedThreshold float32 `yaml:"sprint_speed_threshold"`
	TurnSpeedThreshold   float32 `yaml:"turn_speed_threshold"`
	StaminaDrainMove     float32 `yaml:"stamina_drain_move"` // per second
	StaminaDrainTurn     float32 `yaml:"stamina_drain_turn"` // per second
	StaminaRegen         float32 `yaml:"stamina_regen"`      // per second
	ExhaustedThreshold   float32 `yaml:"exhausted_threshold"`
	RecoveryThreshold    float32 `yaml:"recovery_threshold"`
	ExhaustedFactor      float32 `yaml:"exhausted_factor"`

	AttractRange     float32 `yaml:"attract_range"`
	AttractFOVMinDot float32 `yaml:"attract_fov_min_dot"`
	AttractStiffness float32 `yaml:"attract_stiffness"`
	AttractDamping   float32 `yaml:"attract_damping"`
	AttractMaxAccel  float32 `yaml:"attract_max_accel"`

	KickLow             float32 `yaml:"kick_low"`
	KickMid             float32 `yaml:"kick_mid"`
	KickHigh            float32 `yaml:"kick_high"`
	KickHighStaminaCost float32 `yaml:"kick_high_stamina_cost"`
	KickCooldownSec     float32 `yaml:"kick_cooldown_sec"`

	LostControlSec     float32 `yaml:"lost_control_sec"`
	BroadcastSuppressR float32 `yaml:"broadcast_suppress_radius"`
	BroadcastSuppressS float32 `yaml:"broadcast_suppress_sec"`
	SpawnSuppressSec   float32 `yaml:"spawn_suppress_sec"`
	MaxObservedSpeed   float32 `yaml:"max_observed_speed"`
}

type RulesTuning struct {
	TakerExclusionRadius float32 `yaml:"taker_exclusion_radius"`
	BallExclusionRadius  float32 `yaml:"ball_exclusion_radius"`
	AssumedRunSpeed      float32 `yaml:"assumed_run_speed"`
	RestartBallInset     float32 `yaml:"restart_ball_inset"`
	TakerBehindOffset    float32 `yaml:"taker_behind_offset"`
	EndLineNarrowBand    float32 `yaml:"end_line_narrow_band"`

	GoalMinReward float32 `yaml:"goal_min_reward"`
	ConcedeReward float32 `yaml:"concede_reward"`
	ScorerReward  float32 `yaml:"scorer_reward"`
	OwnGoalReward float32 `yaml:"own_goal_reward"`

	PlacementMargin      float32 `yaml:"placement_margin"`
	FirstEpisodeAttempts int     `yaml:"first_episode_attempts"`
	PlacementAttempts    int     `yaml:"placement_attempts"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz: 50,
		StepLimit:  3000,
		TeamSize:   4,
		Field: FieldTuning{
			HalfWidth:     15,
			HalfLength:    22.5,
			GoalHalfWidth: 4.5,
			BoundsMargin:  0.5,
		},
		Ball: BallTuning{
			Radius:          0.35,
			Mass:            0.45,
			LinearDamping:   0.6,
			Restitution:     0.5,
			InfluenceRadius: 1.2,
			ScanMargin:      0.5,
			KickIgnoreSec:   0.15,
		},
		Agent: AgentTuning{
			Radius:             0.5,
			Mass:               75,
			LinearDamping:      4,
			ControlPointOffset: 0.45,

			MoveSpeed:   6,
			BackSpeed:   3.5,
			StrafeSpeed: 4.5,
			TurnSpeed:   3.5,

			SprintSpeedThreshold: 4.5,
			TurnSpeedThreshold:   2.5,
			StaminaDrainMove:     12,
			StaminaDrainTurn:     6,
			StaminaRegen:         8,
			ExhaustedThreshold:   0.1,
			RecoveryThreshold:    20,
			ExhaustedFactor:      0.5,

			AttractRange:     1.2,
			AttractFOVMinDot: 0.55,
			AttractStiffness: 60,
			AttractDamping:   8,
			AttractMaxAccel:  40,

			KickLow:             3,
			KickMid:             5,
			KickHigh:            8,
			KickHighStaminaCost: 10,
			KickCooldownSec:     0.3,

			LostControlSec:     0.5,
			BroadcastSuppressR: 2,
			BroadcastSuppressS: 0.25,
			SpawnSuppressSec:   0.2,
			MaxObservedSpeed:   10,
		},
		Rules: RulesTuning{
			TakerExclusionRadius: 5,
			BallExclusionRadius:  2.5,
			AssumedRunSpeed:      5,
			RestartBallInset:     1,
			TakerBehindOffset:    1,
			EndLineNarrowBand:    4,

			GoalMinReward: 0.1,
			ConcedeReward: -1,
			ScorerReward:  0.2,
			OwnGoalReward: -0.2,

			PlacementMargin:      1,
			FirstEpisodeAttempts: 100,
			PlacementAttempts:    10,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be positive")
	}
	if t.StepLimit <= 0 {
		return fmt.Errorf("step_limit must be positive")
	}
	if t.TeamSize <= 0 {
		return fmt.Errorf("team_size must be positive")
	}
	if t.Agent.RecoveryThreshold <= t.Agent.ExhaustedThreshold {
		return fmt.Errorf("recovery_threshold must exceed exhausted_threshold")
	}
	if t.Ball.InfluenceRadius <= 0 {
		return fmt.Errorf("influence_radius must be positive")
	}
	if t.Rules.PlacementAttempts <= 0 || t.Rules.FirstEpisodeAttempts <= 0 {
		return fmt.Errorf("placement attempt counts must be positive")
	}
	return nil
}
