// Package ws is the websocket session layer between policy clients and a
// match. One connection drives one agent: HELLO in, WELCOME out, then a
// stream of OBS out and ACT (or CURRICULUM) in.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"pitchsim.ai/internal/protocol"
	"pitchsim.ai/internal/sim/match"
)

// MatchResolver maps the ?match= query parameter to a live match. The empty
// ID resolves to the pool default.
type MatchResolver interface {
	Get(id string) (*match.Match, bool)
}

// Single wraps one match as a resolver for single-match deployments.
func Single(m *match.Match) MatchResolver { return singleMatch{m} }

type singleMatch struct{ m *match.Match }

func (s singleMatch) Get(string) (*match.Match, bool) { return s.m, true }

type Server struct {
	matches MatchResolver
	log     *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(matches MatchResolver, logger *log.Logger) *Server {
	return &Server{
		matches: matches,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		m, ok := s.matches.Get(strings.ToLower(r.URL.Query().Get("match")))
		if !ok {
			http.Error(rw, "unknown match", http.StatusNotFound)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		agentID, out := s.handshake(conn, m)
		if agentID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine: OBS fan-out.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: ACT and CURRICULUM.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.ProtocolVersion != protocol.Version {
				continue
			}
			switch base.Type {
			case protocol.TypeAct:
				var act protocol.ActMsg
				if err := json.Unmarshal(msg, &act); err != nil || !act.Valid() {
					continue
				}
				select {
				case m.Inbox() <- match.ActionEnvelope{AgentID: agentID, Act: act}:
				case <-m.Done():
					return
				}
			case protocol.TypeCurriculum:
				var cur protocol.CurriculumMsg
				if err := json.Unmarshal(msg, &cur); err != nil {
					continue
				}
				select {
				case m.Curriculum() <- cur:
				case <-m.Done():
					return
				}
			}
		}

		// The match loop may already be gone; never block the session
		// goroutine on a stopped match.
		select {
		case m.Leave() <- agentID:
		case <-m.Done():
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn, m *match.Match) (agentID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"),
			time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.ErrorMsg{
			Type: protocol.TypeError, ProtocolVersion: protocol.Version,
			Code: protocol.ErrProtoVersion,
		})
		return "", nil
	}
	if hello.TeamPref < -1 || hello.TeamPref > 1 {
		_ = writeJSON(conn, protocol.ErrorMsg{
			Type: protocol.TypeError, ProtocolVersion: protocol.Version,
			Code: protocol.ErrBadTeam,
		})
		return "", nil
	}

	out = make(chan []byte, 8)
	respCh := make(chan match.JoinResponse, 1)
	var resp match.JoinResponse
	select {
	case m.Join() <- match.JoinRequest{
		Name:     hello.AgentName,
		TeamPref: hello.TeamPref,
		Out:      out,
		Resp:     respCh,
	}:
	case <-m.Done():
		return "", nil
	}
	select {
	case resp = <-respCh:
	case <-m.Done():
		return "", nil
	}
	if resp.ErrCode != "" {
		_ = writeJSON(conn, protocol.ErrorMsg{
			Type: protocol.TypeError, ProtocolVersion: protocol.Version,
			Code: resp.ErrCode,
		})
		return "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", nil
	}
	return resp.Welcome.AgentID, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
