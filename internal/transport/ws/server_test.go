package ws

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pitchsim.ai/internal/protocol"
	"pitchsim.ai/internal/sim/match"
	"pitchsim.ai/internal/sim/tuning"
)

func startTestServer(t *testing.T) (*httptest.Server, *match.Match) {
	t.Helper()
	tun := tuning.Defaults()
	tun.TeamSize = 1
	tun.TickRateHz = 100 // fast observations for the test

	m, err := match.New(match.Config{ID: "ws-test", Seed: 11}, tun, nil, nil)
	if err != nil {
		t.Fatalf("new match: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = m.Run(ctx) }()

	srv := httptest.NewServer(NewServer(Single(m), nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, m
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestSession_HelloWelcomeObsAct(t *testing.T) {
	srv, _ := startTestServer(t)
	conn := dial(t, srv)

	send(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       "bot",
		TeamPref:        -1,
	})

	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(recv(t, conn), &welcome); err != nil {
		t.Fatal(err)
	}
	if welcome.Type != protocol.TypeWelcome || welcome.AgentID == "" {
		t.Fatalf("welcome = %+v", welcome)
	}
	if welcome.MatchParams.ObsSize != protocol.ObsSize {
		t.Fatalf("obs size = %d", welcome.MatchParams.ObsSize)
	}

	var obs protocol.ObsMsg
	if err := json.Unmarshal(recv(t, conn), &obs); err != nil {
		t.Fatal(err)
	}
	if obs.Type != protocol.TypeObs || obs.AgentID != welcome.AgentID {
		t.Fatalf("obs = %+v", obs)
	}
	if len(obs.Vector) != protocol.ObsSize {
		t.Fatalf("obs vector length = %d", len(obs.Vector))
	}

	// An ACT for the observed tick is accepted without closing the session.
	send(t, conn, protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            obs.Tick,
		AgentID:         welcome.AgentID,
		Action:          [3]int{protocol.MoveForward, protocol.RotIdle, protocol.KickIdle},
	})
	if err := json.Unmarshal(recv(t, conn), &obs); err != nil {
		t.Fatalf("no OBS after ACT: %v", err)
	}
}

func TestSession_VersionMismatchRejected(t *testing.T) {
	srv, _ := startTestServer(t)
	conn := dial(t, srv)

	send(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: "0.9",
		AgentName:       "old-bot",
		TeamPref:        -1,
	})

	var errMsg protocol.ErrorMsg
	if err := json.Unmarshal(recv(t, conn), &errMsg); err != nil {
		t.Fatal(err)
	}
	if errMsg.Type != protocol.TypeError || errMsg.Code != protocol.ErrProtoVersion {
		t.Fatalf("error = %+v", errMsg)
	}
}

func TestSession_BadTeamPrefRejected(t *testing.T) {
	srv, _ := startTestServer(t)
	conn := dial(t, srv)

	send(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       "bot",
		TeamPref:        5,
	})

	var errMsg protocol.ErrorMsg
	if err := json.Unmarshal(recv(t, conn), &errMsg); err != nil {
		t.Fatal(err)
	}
	if errMsg.Code != protocol.ErrBadTeam {
		t.Fatalf("code = %q, want %q", errMsg.Code, protocol.ErrBadTeam)
	}
}

func TestSession_MatchFull(t *testing.T) {
	srv, _ := startTestServer(t)

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       "bot",
		TeamPref:        -1,
	}

	// Fill both slots of the 1v1 match.
	for i := 0; i < 2; i++ {
		c := dial(t, srv)
		send(t, c, hello)
		var welcome protocol.WelcomeMsg
		if err := json.Unmarshal(recv(t, c), &welcome); err != nil {
			t.Fatal(err)
		}
		if welcome.Type != protocol.TypeWelcome {
			t.Fatalf("join %d: %+v", i, welcome)
		}
	}

	c := dial(t, srv)
	send(t, c, hello)
	var errMsg protocol.ErrorMsg
	if err := json.Unmarshal(recv(t, c), &errMsg); err != nil {
		t.Fatal(err)
	}
	if errMsg.Code != protocol.ErrMatchFull {
		t.Fatalf("code = %q, want %q", errMsg.Code, protocol.ErrMatchFull)
	}
}

func TestSession_BadTeamPrefBelowRange(t *testing.T) {
	srv, _ := startTestServer(t)
	conn := dial(t, srv)

	send(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       "bot",
		TeamPref:        -2,
	})

	var errMsg protocol.ErrorMsg
	if err := json.Unmarshal(recv(t, conn), &errMsg); err != nil {
		t.Fatal(err)
	}
	if errMsg.Code != protocol.ErrBadTeam {
		t.Fatalf("code = %q, want %q", errMsg.Code, protocol.ErrBadTeam)
	}
}

// A handshake against a stopped match must fail fast instead of parking the
// session goroutine on a channel nobody drains.
func TestSession_StoppedMatchClosesInsteadOfBlocking(t *testing.T) {
	srv, m := startTestServer(t)

	m.Stop()
	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("match loop did not exit")
	}
	// Saturate the join buffer so an unguarded send would block forever.
	for i := 0; i < 8; i++ {
		m.Join() <- match.JoinRequest{}
	}

	conn := dial(t, srv)
	send(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       "late",
		TeamPref:        -1,
	})

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("received a message from a stopped match")
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		t.Fatal("session blocked on the stopped match instead of closing")
	}
}

type emptyResolver struct{}

func (emptyResolver) Get(string) (*match.Match, bool) { return nil, false }

func TestHandler_UnknownMatchRejectedBeforeUpgrade(t *testing.T) {
	srv := httptest.NewServer(NewServer(emptyResolver{}, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?match=nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}
