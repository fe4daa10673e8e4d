package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"pitchsim.ai/internal/persistence/episodelog"
	"pitchsim.ai/internal/persistence/matchdb"
	"pitchsim.ai/internal/sim/match"
	"pitchsim.ai/internal/sim/multimatch"
	"pitchsim.ai/internal/sim/scenario"
	"pitchsim.ai/internal/sim/tuning"
	"pitchsim.ai/internal/transport/ws"
)

func main() {
	var (
		addr      = flag.String("addr", ":8080", "http listen address")
		seed      = flag.Int64("seed", 1337, "base simulation seed")
		configDir = flag.String("configs", "./configs", "config directory")
		dataDir   = flag.String("data", "./data", "runtime data directory")
		disableDB = flag.Bool("disable_db", false, "disable the episode index database")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning.yaml not found; using defaults")
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	scnPath := filepath.Join(*configDir, "scenarios.yaml")
	var scns *scenario.Set
	if _, err := os.Stat(scnPath); err == nil {
		scns, err = scenario.Load(scnPath)
		if err != nil {
			logger.Fatalf("load scenarios: %v", err)
		}
	} else {
		logger.Printf("scenarios.yaml not found; using built-in kickoff scenario")
		scns = scenario.Default(tune.TeamSize)
	}

	poolPath := filepath.Join(*configDir, "matches.yaml")
	if _, err := os.Stat(poolPath); os.IsNotExist(err) {
		logger.Printf("matches.yaml not found; running a single default match")
		poolPath = ""
	}
	pool, err := multimatch.Load(poolPath)
	if err != nil {
		logger.Fatalf("load match pool: %v", err)
	}

	mgr, err := multimatch.NewManager(pool, *seed, tune, scns, logger)
	if err != nil {
		logger.Fatalf("create matches: %v", err)
	}

	// Persistence fan-out per match: episode JSONL always, SQLite index
	// unless disabled, per-tick stream only where the match enables it.
	type matchStore struct {
		id string
		db *matchdb.Store
	}
	var closers []interface{ Close() error }
	var stores []matchStore
	mgr.Each(func(rt *multimatch.Runtime) {
		matchDir := filepath.Join(*dataDir, "matches", rt.Spec.ID)
		_ = os.MkdirAll(matchDir, 0o755)

		epLog := episodelog.NewEpisodeLogger(matchDir)
		closers = append(closers, epLog)

		if *disableDB {
			rt.Match.SetEpisodeLogger(epLog)
		} else {
			db, err := matchdb.Open(filepath.Join(matchDir, "episodes.db"))
			if err != nil {
				logger.Fatalf("open episode db (%s): %v", rt.Spec.ID, err)
			}
			closers = append(closers, db)
			stores = append(stores, matchStore{rt.Spec.ID, db})
			rt.Match.SetEpisodeLogger(teeEpisodes{epLog, db})
		}

		if rt.Spec.LogTicks {
			tl := episodelog.NewTickLogger(matchDir)
			closers = append(closers, tl)
			rt.Match.SetTickLogger(tl)
		}
	})
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	wsServer := ws.NewServer(mgr, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", wsServer.Handler())
	mux.HandleFunc("/v1/matches", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(mgr.Manifest())
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		for _, ref := range mgr.Manifest() {
			fmt.Fprintf(w, "ok match=%s tick=%d\n", ref.ID, ref.Tick)
		}
	})
	if len(stores) > 0 {
		mux.HandleFunc("/v1/summary", func(w http.ResponseWriter, r *http.Request) {
			for _, ms := range stores {
				sum, err := ms.db.Summarize()
				if err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				fmt.Fprintf(w, "match=%s episodes=%d goals_team0=%d goals_team1=%d step_limit=%d\n",
					ms.id, sum.Episodes, sum.GoalsTeam0, sum.GoalsTeam1, sum.StepLimit)
			}
		})
	}

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Printf("listening on %s (matches=%d seed=%d)", *addr, len(pool.Matches), *seed)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Printf("shutting down")
	mgr.StopAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

// teeEpisodes fans an episode result out to both the JSONL log and the
// SQLite index.
type teeEpisodes struct {
	a match.EpisodeLogger
	b match.EpisodeLogger
}

func (t teeEpisodes) WriteEpisode(r match.EpisodeResult) error {
	err1 := t.a.WriteEpisode(r)
	err2 := t.b.WriteEpisode(r)
	if err1 != nil {
		return err1
	}
	return err2
}
