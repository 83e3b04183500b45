package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"raggate/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// the gateway is same-origin or fronted by a proxy that enforces CORS
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// handleWS runs the conversational loop on one WebSocket connection.
// Each received query frame produces one turn: an id frame for new
// sessions, token frames in model order, an error frame on failure, and
// exactly one terminal frame.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	wsConnections.Inc()
	defer wsConnections.Dec()

	ctx := r.Context()
	for {
		var q types.QueryFrame
		if err := conn.ReadJSON(&q); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}
		if !s.runTurn(ctx, conn, q) {
			return
		}
	}
}

// runTurn executes one query on the connection. Returns false when the
// connection is no longer writable.
func (s *Server) runTurn(ctx context.Context, conn *websocket.Conn, q types.QueryFrame) bool {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessionID := q.SessionID
	if sessionID == "" {
		id, err := s.orch.NewSession(turnCtx)
		if err != nil {
			s.writeFrame(conn, types.WSFrame{Event: types.EventError, Detail: "could not create session"})
			s.writeFrame(conn, types.WSFrame{Event: types.EventDone})
			return true
		}
		sessionID = id
		if !s.writeFrame(conn, types.WSFrame{Event: types.EventSessionID, SessionID: sessionID}) {
			return false
		}
	}

	writable := true
	_, _, err := s.orch.Answer(turnCtx, sessionID, q.Query, func(tok string) error {
		if !s.writeFrame(conn, types.WSFrame{Token: tok, SessionID: sessionID}) {
			writable = false
			// stop the upstream stream instead of generating into the void
			cancel()
			return context.Canceled
		}
		wsTokensTotal.Inc()
		return nil
	})
	if !writable {
		return false
	}
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("chat turn failed")
		if !s.writeFrame(conn, types.WSFrame{Event: types.EventError, Detail: err.Error(), SessionID: sessionID}) {
			return false
		}
	}
	return s.writeFrame(conn, types.WSFrame{Event: types.EventDone, SessionID: sessionID})
}

func (s *Server) writeFrame(conn *websocket.Conn, f types.WSFrame) bool {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(f); err != nil {
		s.log.Debug().Err(err).Msg("websocket write failed")
		return false
	}
	return true
}
