package match

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"pitchsim.ai/internal/protocol"
	"pitchsim.ai/internal/sim/physics"
	"pitchsim.ai/internal/sim/pitch"
	"pitchsim.ai/internal/sim/scenario"
	"pitchsim.ai/internal/sim/tuning"
)

// Trigger region names registered with the physics collaborator.
const (
	regionGoal0     = "goal0"
	regionGoal1     = "goal1"
	regionOOBPrefix = "oob_"
)

type Config struct {
	ID   string
	Seed int64

	// ScenarioIndex selects the initial curriculum scenario.
	ScenarioIndex int
	// StepLimit overrides the tuned episode length when positive. The
	// override persists across episode reloads until a curriculum message
	// replaces it.
	StepLimit int
}

type JoinRequest struct {
	Name     string
	TeamPref int // -1 = any
	Out      chan []byte
	Resp     chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	ErrCode string
}

type ActionEnvelope struct {
	AgentID string
	Act     protocol.ActMsg
}

// TickLogger receives one entry per tick; implemented in
// internal/persistence. May be nil.
type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// EpisodeLogger receives one summary per finished episode. May be nil.
type EpisodeLogger interface {
	WriteEpisode(result EpisodeResult) error
}

type TickLogEntry struct {
	Tick    uint64           `json:"tick"`
	Step    int              `json:"step"`
	Phase   string           `json:"phase"`
	Actions []RecordedAction `json:"actions,omitempty"`
	Events  []TickEvent      `json:"events,omitempty"`
	Digest  string           `json:"digest"`
}

type RecordedAction struct {
	AgentID string `json:"agent_id"`
	Action  [3]int `json:"action"`
}

type TickEvent struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

type EpisodeResult struct {
	Episode    int        `json:"episode"`
	Scenario   string     `json:"scenario"`
	Steps      int        `json:"steps"`
	EndTick    uint64     `json:"end_tick"`
	Outcome    string     `json:"outcome"`
	TeamReward [2]float32 `json:"team_reward"`
	Scorer     string     `json:"scorer,omitempty"`
}

type clientState struct {
	Out chan []byte
}

// Match is a single-threaded authoritative simulation of one refereed
// micro-match. All state must be accessed only from the match loop
// goroutine; clients talk to it through the channels.
type Match struct {
	cfg Config
	tun tuning.Tuning

	field pitch.Field
	phys  *physics.World

	sensor *BallSensor
	agents []*Agent
	byBody map[*physics.Body]*Agent
	byID   map[string]*Agent

	teamSize int

	rng *rand.Rand
	log *log.Logger

	tickCounter atomic.Uint64
	tick        uint64
	clock       float64
	dt          float32

	// Officiating state.
	phase          Phase
	phaseSig       string
	restartType    RestartType
	taker          int
	stallTimer     float32
	restartBallPos mgl32.Vec2

	// Episode state.
	episode            int
	stepCount          int
	stepLimit          int
	ticksSinceReset    int
	teamRewardTick     [2]float32
	teamRewardEpisode  [2]float32
	agentBonus         []float32
	scorer             string
	reloadStaged       bool
	reloadOutcome      string
	lastGoodLayout     *Layout
	scenarios          *scenario.Set
	curriculumIdx      int
	stepLimitOverride  int
	pendingCurriculum  *protocol.CurriculumMsg
	tickEvents         []TickEvent

	clients map[string]*clientState

	inbox      chan ActionEnvelope
	join       chan JoinRequest
	leave      chan string
	curriculum chan protocol.CurriculumMsg
	stop       chan struct{}
	done       chan struct{}

	tickLogger    TickLogger
	episodeLogger EpisodeLogger
}

func New(cfg Config, tun tuning.Tuning, scns *scenario.Set, logger *log.Logger) (*Match, error) {
	if err := tun.Validate(); err != nil {
		return nil, err
	}
	if scns == nil {
		scns = scenario.Default(tun.TeamSize)
	}

	m := &Match{
		cfg: cfg,
		tun: tun,
		field: pitch.Field{
			HalfWidth:     tun.Field.HalfWidth,
			HalfLength:    tun.Field.HalfLength,
			GoalHalfWidth: tun.Field.GoalHalfWidth,
			BoundsMargin:  tun.Field.BoundsMargin,
		},
		phys:      physics.NewWorld(),
		byBody:    map[*physics.Body]*Agent{},
		byID:      map[string]*Agent{},
		teamSize:  tun.TeamSize,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		log:       logger,
		dt:        1 / float32(tun.TickRateHz),
		taker:     -1,
		scenarios: scns,
		clients:   map[string]*clientState{},

		inbox:      make(chan ActionEnvelope, 256),
		join:       make(chan JoinRequest, 8),
		leave:      make(chan string, 8),
		curriculum: make(chan protocol.CurriculumMsg, 4),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	m.curriculumIdx = cfg.ScenarioIndex
	m.stepLimitOverride = cfg.StepLimit

	m.stepLimit = tun.StepLimit
	if sc := scns.ByIndex(m.curriculumIdx); sc.StepLimit > 0 {
		m.stepLimit = sc.StepLimit
	}
	if m.stepLimitOverride > 0 {
		m.stepLimit = m.stepLimitOverride
	}

	m.buildBodies()
	m.buildRegions()

	// Initial episode placement.
	m.applyLayout(m.loadScenario(), 0)
	m.episode = 1

	return m, nil
}

func (m *Match) buildBodies() {
	ballBody := m.phys.AddBody(&physics.Body{
		Category:      physics.CategoryBall,
		Radius:        m.tun.Ball.Radius,
		InvMass:       1 / m.tun.Ball.Mass,
		LinearDamping: m.tun.Ball.LinearDamping,
		Restitution:   m.tun.Ball.Restitution,
	})
	m.sensor = newBallSensor(ballBody)

	n := m.teamSize * 2
	m.agents = make([]*Agent, n)
	m.agentBonus = make([]float32, n)
	for i := 0; i < n; i++ {
		team := i / m.teamSize
		body := m.phys.AddBody(&physics.Body{
			Category:      physics.CategoryPlayer,
			Radius:        m.tun.Agent.Radius,
			InvMass:       1 / m.tun.Agent.Mass,
			LinearDamping: m.tun.Agent.LinearDamping,
		})
		a := &Agent{
			Index:   i,
			Team:    team,
			ID:      fmt.Sprintf("T%dP%d", team, i%m.teamSize+1),
			body:    body,
			Stamina: staminaMax,
		}
		m.agents[i] = a
		m.byBody[body] = a
		m.byID[a.ID] = a
	}
}

// buildRegions registers the goal triggers behind each goal mouth and the
// out-of-bounds strips around the perimeter. The ball's radius plus the
// trigger inset define the effective play area.
func (m *Match) buildRegions() {
	f := m.field
	const depth = 30 // outer extent of the perimeter strips
	gw := f.GoalHalfWidth
	m.phys.AddRegion(physics.Region{
		Name: regionGoal0,
		Min:  mgl32.Vec2{-gw, -f.HalfLength - depth},
		Max:  mgl32.Vec2{gw, -f.HalfLength},
	})
	m.phys.AddRegion(physics.Region{
		Name: regionGoal1,
		Min:  mgl32.Vec2{-gw, f.HalfLength},
		Max:  mgl32.Vec2{gw, f.HalfLength + depth},
	})
	m.phys.AddRegion(physics.Region{
		Name: regionOOBPrefix + "left",
		Min:  mgl32.Vec2{-f.HalfWidth - depth, -f.HalfLength - depth},
		Max:  mgl32.Vec2{-f.HalfWidth, f.HalfLength + depth},
	})
	m.phys.AddRegion(physics.Region{
		Name: regionOOBPrefix + "right",
		Min:  mgl32.Vec2{f.HalfWidth, -f.HalfLength - depth},
		Max:  mgl32.Vec2{f.HalfWidth + depth, f.HalfLength + depth},
	})
	m.phys.AddRegion(physics.Region{
		Name: regionOOBPrefix + "end0",
		Min:  mgl32.Vec2{-f.HalfWidth, -f.HalfLength - depth},
		Max:  mgl32.Vec2{f.HalfWidth, -f.HalfLength},
	})
	m.phys.AddRegion(physics.Region{
		Name: regionOOBPrefix + "end1",
		Min:  mgl32.Vec2{-f.HalfWidth, f.HalfLength},
		Max:  mgl32.Vec2{f.HalfWidth, f.HalfLength + depth},
	})
}

func (m *Match) SetTickLogger(l TickLogger)       { m.tickLogger = l }
func (m *Match) SetEpisodeLogger(l EpisodeLogger) { m.episodeLogger = l }

func (m *Match) Inbox() chan<- ActionEnvelope            { return m.inbox }
func (m *Match) Join() chan<- JoinRequest                { return m.join }
func (m *Match) Leave() chan<- string                    { return m.leave }
func (m *Match) Curriculum() chan<- protocol.CurriculumMsg { return m.curriculum }

func (m *Match) CurrentTick() uint64 { return m.tickCounter.Load() }

func (m *Match) Stop() { close(m.stop) }

// Done is closed when the match loop has exited. Channel senders must select
// against it so sessions cannot block on a stopped match.
func (m *Match) Done() <-chan struct{} { return m.done }

// Run drives the fixed-timestep loop. One physics step per tick; buffered
// actions apply at the tick boundary in arrival order.
func (m *Match) Run(ctx context.Context) error {
	defer close(m.done)
	interval := time.Second / time.Duration(m.tun.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []ActionEnvelope
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stop:
			return nil
		case req := <-m.join:
			m.handleJoin(req)
		case id := <-m.leave:
			delete(m.clients, id)
		case cur := <-m.curriculum:
			m.pendingCurriculum = &cur
		case env := <-m.inbox:
			pending = append(pending, env)
		case <-ticker.C:
			m.step(pending)
			pending = pending[:0]
		}
	}
}

// handleJoin attaches a policy client to a free agent slot.
func (m *Match) handleJoin(req JoinRequest) {
	var resp JoinResponse
	a := m.freeSlot(req.TeamPref)
	if a == nil {
		resp.ErrCode = protocol.ErrMatchFull
	} else {
		m.clients[a.ID] = &clientState{Out: req.Out}
		resp.Welcome = protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			AgentID:         a.ID,
			Team:            a.Team,
			MatchParams: protocol.MatchParams{
				TickRateHz:     m.tun.TickRateHz,
				FieldHalfSize:  [2]float32{m.field.HalfWidth, m.field.HalfLength},
				ObsSize:        protocol.ObsSize,
				ActionBranches: [3]int{protocol.MoveBranchSize, protocol.RotBranchSize, protocol.KickBranchSize},
				StepLimit:      m.stepLimit,
			},
		}
	}
	if req.Resp != nil {
		req.Resp <- resp
	}
}

func (m *Match) freeSlot(teamPref int) *Agent {
	// Slots the current scenario placed come first; a benched slot only
	// sees play once a later scenario uses it.
	for _, wantBenched := range [2]bool{false, true} {
		for _, a := range m.agents {
			if m.clients[a.ID] != nil || a.Benched != wantBenched {
				continue
			}
			if (teamPref == 0 || teamPref == 1) && a.Team != teamPref {
				continue
			}
			return a
		}
	}
	return nil
}

// step advances the simulation one tick through the fixed pipeline:
// per-agent pre-update, discrete action application, physics integration,
// ball sensor rescan, orchestration, observation fan-out, and finally the
// atomic application of any staged episode reload.
func (m *Match) step(actions []ActionEnvelope) {
	now := m.clock
	dt := m.dt
	m.tickEvents = m.tickEvents[:0]

	// (1) Agent pre-update.
	for _, a := range m.agents {
		if a.Benched {
			continue
		}
		a.measureTurn(dt)
	}
	m.pinRestartBall()
	for _, a := range m.agents {
		if a.Benched {
			continue
		}
		if a.State == StateStalled || a.State == StateArmed {
			a.body.Vel = mgl32.Vec2{}
		}
		m.applyAttraction(a, now)
		m.enforceExclusion(a, now)
		m.updateStamina(a, dt)
	}

	// (2) Discrete actions, in arrival order; latest ACT per agent wins.
	latest := map[string]protocol.ActMsg{}
	recorded := make([]RecordedAction, 0, len(actions))
	for _, env := range actions {
		if env.Act.Tick+2 < m.tick || env.Act.Tick > m.tick {
			continue // stale or future
		}
		latest[env.AgentID] = env.Act
	}
	for _, a := range m.agents {
		act, ok := latest[a.ID]
		if !ok {
			continue
		}
		recorded = append(recorded, RecordedAction{AgentID: a.ID, Action: act.Action})
		m.applyAction(a, act, now)
	}

	// (3) Physics integration, then contact dispatch to the sensor.
	m.phys.Step(dt)
	for _, c := range m.phys.Contacts() {
		var other *physics.Body
		switch m.sensor.body {
		case c.A:
			other = c.B
		case c.B:
			other = c.A
		default:
			continue
		}
		if a := m.byBody[other]; a != nil && !a.Benched {
			m.sensor.OnContact(a, now)
		}
	}

	// (4) Sensor rescan.
	m.sensor.Tick(m, now)

	// (5) Orchestration.
	m.orchestrate(now)

	// Observations carry the reward accrued this tick and the done flag.
	m.sendObservations()

	if m.tickLogger != nil {
		_ = m.tickLogger.WriteTick(TickLogEntry{
			Tick:    m.tick,
			Step:    m.stepCount,
			Phase:   m.phase.String(),
			Actions: recorded,
			Events:  append([]TickEvent(nil), m.tickEvents...),
			Digest:  m.stateDigest(),
		})
	}

	m.settleRewards()
	if m.reloadStaged {
		m.applyReload(now)
	}

	m.clock += float64(dt)
	m.tick++
	m.tickCounter.Store(m.tick)
}

// StepOnce advances the match a single tick with the given actions, using
// the same ordering semantics as Run. Intended for tests and replays.
func (m *Match) StepOnce(actions []ActionEnvelope) (tick uint64, digest string) {
	tick = m.tick
	m.step(actions)
	return tick, m.stateDigest()
}

func (m *Match) sendObservations() {
	for _, a := range m.agents {
		cl := m.clients[a.ID]
		if cl == nil {
			continue
		}
		obs := protocol.ObsMsg{
			Type:            protocol.TypeObs,
			ProtocolVersion: protocol.Version,
			Tick:            m.tick,
			AgentID:         a.ID,
			EpisodeStep:     m.stepCount,
			Phase:           m.phase.String(),
			RestartType:     m.restartType.String(),
			Done:            m.reloadStaged,
		}
		if a.Benched {
			// Keepalive: benched slots still get a tick pulse so the
			// session survives scenarios that leave them off the field.
			obs.Vector = make([]float32, protocol.ObsSize)
			obs.Benched = true
		} else {
			obs.Vector = m.buildObs(a)
			obs.Reward = m.teamRewardTick[a.Team] + m.agentBonus[a.Index]
		}
		b, err := json.Marshal(obs)
		if err != nil {
			continue
		}
		sendLatest(cl.Out, b)
	}
}

// sendLatest drops the oldest queued message rather than blocking the match
// loop on a slow client.
func sendLatest(out chan []byte, b []byte) {
	for {
		select {
		case out <- b:
			return
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}

// settleRewards folds this tick's rewards into the episode totals and clears
// the per-tick accumulators.
func (m *Match) settleRewards() {
	m.teamRewardEpisode[0] += m.teamRewardTick[0]
	m.teamRewardEpisode[1] += m.teamRewardTick[1]
	m.teamRewardTick[0] = 0
	m.teamRewardTick[1] = 0
	for i := range m.agentBonus {
		m.agentBonus[i] = 0
	}
}

// stageReload marks the episode finished. The reload itself happens at the
// end of the tick so the rest of the pipeline never sees a half-applied
// layout.
func (m *Match) stageReload(outcome string) {
	m.reloadStaged = true
	m.reloadOutcome = outcome
}

func (m *Match) applyReload(now float64) {
	if m.episodeLogger != nil {
		_ = m.episodeLogger.WriteEpisode(EpisodeResult{
			Episode:    m.episode,
			Scenario:   m.scenarios.ByIndex(m.curriculumIdx).Name,
			Steps:      m.stepCount,
			EndTick:    m.tick,
			Outcome:    m.reloadOutcome,
			TeamReward: m.teamRewardEpisode,
			Scorer:     m.scorer,
		})
	}

	// Curriculum signal is read once per scenario load.
	if m.pendingCurriculum != nil {
		m.curriculumIdx = m.pendingCurriculum.ScenarioIndex
		m.stepLimitOverride = m.pendingCurriculum.StepLimit
		m.pendingCurriculum = nil
	}

	layout := m.loadScenario()
	m.applyLayout(layout, now)

	sc := m.scenarios.ByIndex(m.curriculumIdx)
	m.stepLimit = m.tun.StepLimit
	if sc.StepLimit > 0 {
		m.stepLimit = sc.StepLimit
	}
	if m.stepLimitOverride > 0 {
		m.stepLimit = m.stepLimitOverride
	}

	m.episode++
	m.stepCount = 0
	m.ticksSinceReset = 0
	m.stallTimer = 0
	m.taker = -1
	m.restartType = RestartOpenPlay
	m.phase = PhaseLoose
	m.phaseSig = ""
	m.scorer = ""
	m.teamRewardEpisode = [2]float32{}
	m.reloadStaged = false
	m.reloadOutcome = ""
}

type digestAgent struct {
	ID      string     `json:"id"`
	Pos     [2]float32 `json:"pos"`
	Vel     [2]float32 `json:"vel"`
	Yaw     float32    `json:"yaw"`
	Stamina float32    `json:"stamina"`
	State   string     `json:"state"`
	Benched bool       `json:"benched"`
}

type digestState struct {
	Tick    uint64        `json:"tick"`
	Episode int           `json:"episode"`
	Step    int           `json:"step"`
	Phase   string        `json:"phase"`
	Restart string        `json:"restart"`
	BallPos [2]float32    `json:"ball_pos"`
	BallVel [2]float32    `json:"ball_vel"`
	Rewards [2]float32    `json:"rewards"`
	Agents  []digestAgent `json:"agents"`
}

// stateDigest hashes the full live state; used by determinism tests and the
// tick log.
func (m *Match) stateDigest() string {
	st := digestState{
		Tick:    m.tick,
		Episode: m.episode,
		Step:    m.stepCount,
		Phase:   m.phase.String(),
		Restart: m.restartType.String(),
		BallPos: [2]float32{m.sensor.body.Pos.X(), m.sensor.body.Pos.Y()},
		BallVel: [2]float32{m.sensor.body.Vel.X(), m.sensor.body.Vel.Y()},
		Rewards: m.teamRewardEpisode,
	}
	for _, a := range m.agents {
		st.Agents = append(st.Agents, digestAgent{
			ID:      a.ID,
			Pos:     [2]float32{a.body.Pos.X(), a.body.Pos.Y()},
			Vel:     [2]float32{a.body.Vel.X(), a.body.Vel.Y()},
			Yaw:     a.Yaw,
			Stamina: a.Stamina,
			State:   a.State.String(),
			Benched: a.Benched,
		})
	}
	b, _ := json.Marshal(st)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
