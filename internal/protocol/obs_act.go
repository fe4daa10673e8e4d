package protocol

// Action branch sizes. An action is three small integers:
// movement in [0,4], rotation in [0,2], kick in [0,3].
const (
	MoveBranchSize = 5
	RotBranchSize  = 3
	KickBranchSize = 4
)

// Movement branch values.
const (
	MoveIdle = iota
	MoveForward
	MoveBackward
	MoveStrafeLeft
	MoveStrafeRight
)

// Rotation branch values.
const (
	RotIdle = iota
	RotClockwise
	RotCounterClockwise
)

// Kick branch values.
const (
	KickIdle = iota
	KickLow
	KickMid
	KickHigh
)

// ObsSize is the length of the observation vector:
// 1 possession + 7 self + 4 ball + 12 goals + 8 teammates + 12 opponents.
const ObsSize = 44

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentName       string `json:"agent_name"`
	// TeamPref requests a team (0 or 1); -1 lets the server assign.
	TeamPref int `json:"team_pref"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentID         string `json:"agent_id"`
	Team            int    `json:"team"`

	MatchParams MatchParams `json:"match_params"`
}

type MatchParams struct {
	TickRateHz     int        `json:"tick_rate_hz"`
	FieldHalfSize  [2]float32 `json:"field_half_size"`
	ObsSize        int        `json:"obs_size"`
	ActionBranches [3]int     `json:"action_branches"`
	StepLimit      int        `json:"step_limit"`
}

// OBS (server -> client), one per agent per tick.
type ObsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	AgentID         string `json:"agent_id"`

	EpisodeStep int    `json:"episode_step"`
	Phase       string `json:"phase"`
	RestartType string `json:"restart_type"`

	// Vector is the fixed-length observation described in MatchParams.
	Vector []float32 `json:"vector"`

	// Reward is the agent's team reward accrued since the previous OBS,
	// plus any individual credit.
	Reward float32 `json:"reward"`
	// Done marks the final observation of an episode.
	Done bool `json:"done"`

	// Benched marks an agent the current scenario left off the field. The
	// vector is zeroed while set; the session stays live and resumes real
	// observations when a later scenario places the agent.
	Benched bool `json:"benched,omitempty"`
}

// ACT (client -> server), one per agent per tick. Missing ACTs default to
// the all-idle action.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	AgentID         string `json:"agent_id"`

	// Action is [movement, rotation, kick].
	Action [3]int `json:"action"`
}

// Valid reports whether every branch value is in range.
func (a ActMsg) Valid() bool {
	return a.Action[0] >= 0 && a.Action[0] < MoveBranchSize &&
		a.Action[1] >= 0 && a.Action[1] < RotBranchSize &&
		a.Action[2] >= 0 && a.Action[2] < KickBranchSize
}

// CURRICULUM (client -> server): selects the scenario for the next reload
// and optionally overrides the step limit. Read once per scenario load.
type CurriculumMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	ScenarioIndex int `json:"scenario_index"`
	// StepLimit overrides the configured limit when positive.
	StepLimit int `json:"step_limit,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
