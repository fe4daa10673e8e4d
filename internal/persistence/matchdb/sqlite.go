// Package matchdb is the SQLite index of finished episodes. Writes go
// through a single writer goroutine so the match loop never blocks on disk.
package matchdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"pitchsim.ai/internal/sim/match"
)

type Store struct {
	db *sql.DB

	ch   chan match.EpisodeResult
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db: db,
		ch: make(chan match.EpisodeResult, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS episodes (
			episode INTEGER PRIMARY KEY,
			scenario TEXT NOT NULL,
			steps INTEGER NOT NULL,
			end_tick INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			team0_reward REAL NOT NULL,
			team1_reward REAL NOT NULL,
			scorer TEXT,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_outcome ON episodes(outcome);`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_scenario ON episodes(scenario);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loop() {
	for r := range s.ch {
		_, err := s.db.Exec(
			`INSERT OR REPLACE INTO episodes
			 (episode, scenario, steps, end_tick, outcome, team0_reward, team1_reward, scorer, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Episode, r.Scenario, r.Steps, r.EndTick, r.Outcome,
			r.TeamReward[0], r.TeamReward[1], r.Scorer,
			time.Now().UTC().Format(time.RFC3339),
		)
		_ = err // a failed index write must not affect the simulation
	}
}

// WriteEpisode queues an episode row; drops it if the writer is backed up or
// the store is closed.
func (s *Store) WriteEpisode(r match.EpisodeResult) error {
	if s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- r:
	default:
	}
	return nil
}

// Summary is an aggregated view over recorded episodes.
type Summary struct {
	Episodes   int
	GoalsTeam0 int
	GoalsTeam1 int
	StepLimit  int
}

func (s *Store) Summarize() (Summary, error) {
	var out Summary
	rows, err := s.db.Query(`SELECT outcome, COUNT(*) FROM episodes GROUP BY outcome`)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return out, err
		}
		out.Episodes += n
		switch outcome {
		case "goal_team0":
			out.GoalsTeam0 = n
		case "goal_team1":
			out.GoalsTeam1 = n
		case "step_limit":
			out.StepLimit = n
		}
	}
	return out, rows.Err()
}

// Recent returns the most recent episode rows, newest first.
func (s *Store) Recent(limit int) ([]match.EpisodeResult, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT episode, scenario, steps, end_tick, outcome, team0_reward, team1_reward, COALESCE(scorer, '')
		 FROM episodes ORDER BY episode DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []match.EpisodeResult
	for rows.Next() {
		var r match.EpisodeResult
		if err := rows.Scan(&r.Episode, &r.Scenario, &r.Steps, &r.EndTick, &r.Outcome,
			&r.TeamReward[0], &r.TeamReward[1], &r.Scorer); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}
