package multimatch

import (
	"context"
	"testing"
	"time"

	"pitchsim.ai/internal/sim/match"
	"pitchsim.ai/internal/sim/scenario"
	"pitchsim.ai/internal/sim/tuning"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := Config{
		DefaultMatchID: "main",
		Matches: []MatchSpec{
			{ID: "main"},
			{ID: "drills", SeedOffset: 100},
		},
	}
	tun := tuning.Defaults()
	tun.TeamSize = 1
	mgr, err := NewManager(cfg, 7, tun, scenario.Default(tun.TeamSize), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func TestManager_GetResolvesIDsAndDefault(t *testing.T) {
	mgr := newTestManager(t)

	main, ok := mgr.Get("main")
	if !ok || main == nil {
		t.Fatal("Get(main) failed")
	}
	drills, ok := mgr.Get("drills")
	if !ok || drills == main {
		t.Fatal("Get(drills) should return a distinct match")
	}
	byDefault, ok := mgr.Get("")
	if !ok || byDefault != main {
		t.Fatal("Get(\"\") should resolve to the default match")
	}
	if _, ok := mgr.Get("nope"); ok {
		t.Fatal("Get(nope) should miss")
	}
}

func TestManager_ManifestIsSorted(t *testing.T) {
	mgr := newTestManager(t)

	refs := mgr.Manifest()
	if len(refs) != 2 {
		t.Fatalf("manifest length = %d, want 2", len(refs))
	}
	if refs[0].ID != "drills" || refs[1].ID != "main" {
		t.Fatalf("manifest order = %q, %q; want sorted IDs", refs[0].ID, refs[1].ID)
	}
}

func TestManager_StartRunsAllMatches(t *testing.T) {
	mgr := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.StopAll()

	deadline := time.Now().Add(5 * time.Second)
	for {
		advanced := true
		mgr.Each(func(rt *Runtime) {
			if rt.Match.CurrentTick() == 0 {
				advanced = false
			}
		})
		if advanced {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("matches never ticked")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManager_RejectsInvalidConfig(t *testing.T) {
	tun := tuning.Defaults()
	_, err := NewManager(Config{}, 1, tun, scenario.Default(tun.TeamSize), nil)
	if err == nil {
		t.Fatal("NewManager accepted an empty config")
	}
}

// Per-spec step limits must flow into the match; a short drill episode ends
// well before the tuned default.
func TestManager_SpecStepLimitApplies(t *testing.T) {
	cfg := Config{
		DefaultMatchID: "short",
		Matches:        []MatchSpec{{ID: "short", StepLimit: 3}},
	}
	tun := tuning.Defaults()
	tun.TeamSize = 1
	mgr, err := NewManager(cfg, 7, tun, scenario.Default(tun.TeamSize), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m, _ := mgr.Get("short")

	var done []match.EpisodeResult
	m.SetEpisodeLogger(episodeCapture{&done})
	for i := 0; i < 4; i++ {
		m.StepOnce(nil)
	}
	if len(done) != 1 {
		t.Fatalf("episodes finished = %d, want 1 at the overridden step limit", len(done))
	}
	if done[0].Outcome != "step_limit" {
		t.Fatalf("outcome = %q, want step_limit", done[0].Outcome)
	}
}

type episodeCapture struct{ out *[]match.EpisodeResult }

func (c episodeCapture) WriteEpisode(r match.EpisodeResult) error {
	*c.out = append(*c.out, r)
	return nil
}
