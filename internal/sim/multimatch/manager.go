package multimatch

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"pitchsim.ai/internal/sim/match"
	"pitchsim.ai/internal/sim/scenario"
	"pitchsim.ai/internal/sim/tuning"
)

// Runtime is one live match plus the MatchSpec it was built from.
type Runtime struct {
	Spec  MatchSpec
	Match *match.Match
}

// MatchRef is the manifest entry reported to operators.
type MatchRef struct {
	ID   string `json:"id"`
	Tick uint64 `json:"tick"`
}

// Manager owns the pool of match runtimes. Matches are created up front from
// the config and run until StopAll; lookups are read-only after construction.
type Manager struct {
	mu        sync.RWMutex
	runtimes  map[string]*Runtime
	defaultID string

	wg sync.WaitGroup
}

// NewManager builds one match per spec. All matches share the tuning and
// scenario assets; per-match variation comes from the MatchSpec (seed offset,
// scenario index, step limit).
func NewManager(cfg Config, baseSeed int64, tun tuning.Tuning, scns *scenario.Set, logger *log.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mgr := &Manager{
		runtimes:  make(map[string]*Runtime, len(cfg.Matches)),
		defaultID: cfg.DefaultMatchID,
	}
	for _, spec := range cfg.Matches {
		var matchLog *log.Logger
		if logger != nil {
			matchLog = log.New(logger.Writer(), fmt.Sprintf("[match %s] ", spec.ID), logger.Flags())
		}
		m, err := match.New(match.Config{
			ID:            spec.ID,
			Seed:          baseSeed + spec.SeedOffset,
			ScenarioIndex: spec.ScenarioIndex,
			StepLimit:     spec.StepLimit,
		}, tun, scns, matchLog)
		if err != nil {
			return nil, fmt.Errorf("match %q: %w", spec.ID, err)
		}
		mgr.runtimes[spec.ID] = &Runtime{Spec: spec, Match: m}
	}
	return mgr, nil
}

// Start launches every match loop. It returns immediately; the loops stop
// when ctx is cancelled or StopAll is called.
func (g *Manager) Start(ctx context.Context) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, rt := range g.runtimes {
		rt := rt
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			_ = rt.Match.Run(ctx)
		}()
	}
}

// Get resolves a match by ID; the empty ID means the configured default.
func (g *Manager) Get(id string) (*match.Match, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if id == "" {
		id = g.defaultID
	}
	rt, ok := g.runtimes[id]
	if !ok {
		return nil, false
	}
	return rt.Match, true
}

// Each visits every runtime, in stable ID order.
func (g *Manager) Each(fn func(rt *Runtime)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, id := range g.sortedIDs() {
		fn(g.runtimes[id])
	}
}

// Manifest lists the live matches, in stable ID order.
func (g *Manager) Manifest() []MatchRef {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]MatchRef, 0, len(g.runtimes))
	for _, id := range g.sortedIDs() {
		out = append(out, MatchRef{ID: id, Tick: g.runtimes[id].Match.CurrentTick()})
	}
	return out
}

func (g *Manager) sortedIDs() []string {
	ids := make([]string, 0, len(g.runtimes))
	for id := range g.runtimes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StopAll stops every match loop and waits for them to exit.
func (g *Manager) StopAll() {
	g.mu.RLock()
	for _, rt := range g.runtimes {
		rt.Match.Stop()
	}
	g.mu.RUnlock()
	g.wg.Wait()
}
