// Package multimatch runs several independent match environments behind one
// server. Each match gets its own seed and optional step-limit override, so a
// single process can serve a mixed training pool (e.g. a long self-play match
// next to short drill matches).
package multimatch

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DefaultMatchID string      `yaml:"default_match_id"`
	Matches        []MatchSpec `yaml:"matches"`
}

type MatchSpec struct {
	ID string `yaml:"id"`

	// SeedOffset is added to the server's base seed so every match in the
	// pool evolves differently while staying reproducible.
	SeedOffset int64 `yaml:"seed_offset"`

	// ScenarioIndex selects the initial curriculum scenario.
	ScenarioIndex int `yaml:"scenario_index"`

	// StepLimit overrides the tuned episode length when positive.
	StepLimit int `yaml:"step_limit,omitempty"`

	// LogTicks enables the per-tick JSONL stream for this match (large).
	LogTicks bool `yaml:"log_ticks"`
}

// Load reads matches.yaml. An empty path yields the single-match default.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("matches.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("matches.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DefaultMatchID: "match_1",
		Matches: []MatchSpec{
			{ID: "match_1"},
		},
	}
}

// Normalize lowercases IDs so route lookups are case-insensitive.
func (c *Config) Normalize() {
	c.DefaultMatchID = strings.ToLower(strings.TrimSpace(c.DefaultMatchID))
	for i := range c.Matches {
		c.Matches[i].ID = strings.ToLower(strings.TrimSpace(c.Matches[i].ID))
	}
	if c.DefaultMatchID == "" && len(c.Matches) > 0 {
		c.DefaultMatchID = c.Matches[0].ID
	}
}

func (c Config) Validate() error {
	if len(c.Matches) == 0 {
		return fmt.Errorf("no matches defined")
	}
	seen := map[string]bool{}
	for _, spec := range c.Matches {
		if spec.ID == "" {
			return fmt.Errorf("match with empty id")
		}
		if seen[spec.ID] {
			return fmt.Errorf("duplicate match id %q", spec.ID)
		}
		seen[spec.ID] = true
		if spec.ScenarioIndex < 0 {
			return fmt.Errorf("match %q: negative scenario index", spec.ID)
		}
		if spec.StepLimit < 0 {
			return fmt.Errorf("match %q: negative step limit", spec.ID)
		}
	}
	if !seen[c.DefaultMatchID] {
		return fmt.Errorf("default match %q not defined", c.DefaultMatchID)
	}
	return nil
}
