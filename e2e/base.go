// Package e2e drives scenarios against a running coordination server over
// its real WebSocket endpoints. The server under test must be configured
// with an identity provider that accepts the scenario's authorization
// codes (a stub in CI); the scenarios only assert on the wire protocol.
package e2e

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"musink/protocol"
)

type BaseSocketSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSocketSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.UserURL == "" {
		s.T().Skip("MUSINK_USER_URL not set, skipping e2e scenarios")
	}
}

// Dial opens a WebSocket connection with a colorized header in the logs.
func (s *BaseSocketSuite) Dial(name, url string) *websocket.Conn {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err, "could not dial %s at %s", name, url)
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendFrame writes one envelope, logging the body when E2E_DEBUG_JSON is on.
func (s *BaseSocketSuite) SendFrame(conn *websocket.Conn, msg protocol.Message) {
	raw, err := json.Marshal(msg)
	s.Require().NoError(err)
	if s.Config.DebugJSON {
		s.T().Logf(">>> %s", raw)
	}
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, raw))
}

// AwaitType reads frames until one of the wanted type arrives, skipping
// everything else. Broadcasts interleave with replies, so scenarios must
// never assume the next frame is the one they asked for.
func (s *BaseSocketSuite) AwaitType(conn *websocket.Conn, messageType string) protocol.Message {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(s.Config.ReplyTimeout)))
	for {
		_, raw, err := conn.ReadMessage()
		s.Require().NoError(err, "no %s frame before deadline", messageType)
		if s.Config.DebugJSON {
			s.T().Logf("<<< %s", raw)
		}
		msg, err := protocol.Parse(raw)
		s.Require().NoError(err)
		if msg.Type == messageType {
			return msg
		}
	}
}

// Snapshot decodes the group list carried by an advertising_groups frame.
func (s *BaseSocketSuite) Snapshot(msg protocol.Message) []protocol.GroupView {
	var views []protocol.GroupView
	s.Require().NoError(json.Unmarshal(msg.Data, &views))
	return views
}
