// A scripted random-policy client for smoke testing the protocol end to end:
// joins a match and chases the ball with noisy actions.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"pitchsim.ai/internal/protocol"
)

func main() {
	var (
		url  = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name = flag.String("name", "bot", "agent name")
		team = flag.Int("team", -1, "team preference (-1 = any)")
		seed = flag.Int64("seed", 1, "action noise seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       *name,
		TeamPref:        *team,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	rng := rand.New(rand.NewSource(*seed))

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME agent_id=%s team=%d tick_rate=%d",
				w.AgentID, w.Team, w.MatchParams.TickRateHz)

		case protocol.TypeObs:
			var obs protocol.ObsMsg
			if err := json.Unmarshal(msg, &obs); err != nil {
				continue
			}
			act := chooseAction(rng, &obs)
			act.Tick = obs.Tick
			act.AgentID = obs.AgentID
			_ = conn.WriteJSON(act)
			if obs.Done {
				logger.Printf("episode done step=%d reward=%.3f", obs.EpisodeStep, obs.Reward)
			}

		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			logger.Fatalf("server error: %s %s", e.Code, e.Message)
		}
	}
}

// chooseAction runs toward the ball with some noise and kicks when close.
func chooseAction(rng *rand.Rand, obs *protocol.ObsMsg) protocol.ActMsg {
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
	}
	if len(obs.Vector) < 12 {
		return act
	}
	// Ball-relative position sits after possession(1) + self(7).
	bx, by := obs.Vector[8], obs.Vector[9]

	switch {
	case by > 0.02:
		act.Action[0] = protocol.MoveForward
	case by < -0.02:
		act.Action[0] = protocol.MoveBackward
	case bx > 0.02:
		act.Action[0] = protocol.MoveStrafeRight
	case bx < -0.02:
		act.Action[0] = protocol.MoveStrafeLeft
	}
	if rng.Intn(4) == 0 {
		act.Action[1] = 1 + rng.Intn(2)
	}
	if bx*bx+by*by < 0.01 {
		act.Action[2] = 1 + rng.Intn(3)
	}
	return act
}
