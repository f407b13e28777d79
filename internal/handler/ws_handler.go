package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/falachabt/bacblanc-sub000/internal/middleware"
	"github.com/falachabt/bacblanc-sub000/internal/session"
	ws "github.com/falachabt/bacblanc-sub000/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the exam countdown over WebSocket and accepts session
// actions on the same connection.
type WSHandler struct {
	manager  *session.Manager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(manager *session.Manager, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		manager:  manager,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/portal/exams/:id/stream
// Streams tick, low_time and finished events; accepts answer, flag, goto,
// finish and ping actions. The server closes the stream once the session
// finishes.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	ctrl, ok := h.manager.Get(claims.UserID, examID)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "no active session for this exam"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("exam_id", examID.String()).
		Logger()
	wsLog.Info().Msg("Session stream connected")

	go h.writePump(conn, ctrl, wsLog)
	h.readLoop(conn, ctrl, wsLog)
}

// writePump forwards controller events to the client until the event stream
// closes, then signals a normal close so the read loop unblocks.
func (h *WSHandler) writePump(conn *ws.Conn, ctrl *session.Controller, log zerolog.Logger) {
	for ev := range ctrl.Events() {
		var err error
		switch ev.Type {
		case session.EventFinished:
			err = conn.WriteTyped(ws.FinishedEvent{Event: ws.EventFinished, Result: ev.Result})
		case session.EventLowTime:
			err = conn.WriteTyped(ws.TimerEvent{Event: ws.EventLowTime, TimeLeft: ev.TimeLeft, Clock: ev.Clock})
		default:
			err = conn.WriteTyped(ws.TimerEvent{Event: ws.EventTick, TimeLeft: ev.TimeLeft, Clock: ev.Clock})
		}
		if err != nil {
			log.Debug().Err(err).Msg("Event write failed")
			return
		}
	}

	conn.WriteClose("session ended")
}

func (h *WSHandler) readLoop(conn *ws.Conn, ctrl *session.Controller, log zerolog.Logger) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			} else {
				log.Debug().Msg("Connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			conn.WriteError("malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionAnswer:
			var req ws.AnswerRequest
			if err := json.Unmarshal(raw, &req); err != nil || req.QuestionID == "" {
				conn.WriteError("malformed answer")
				continue
			}
			if err := ctrl.SubmitAnswer(req.QuestionID, req.Answer); err != nil {
				conn.WriteError("session is not active")
			}
		case ws.ActionFlag:
			var req ws.FlagRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				conn.WriteError("malformed flag")
				continue
			}
			if err := ctrl.ToggleFlag(req.Index); err != nil {
				conn.WriteError("session is not active")
			}
		case ws.ActionGoto:
			var req ws.GotoRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				conn.WriteError("malformed goto")
				continue
			}
			if err := ctrl.GoTo(req.Index); err != nil {
				conn.WriteError("session is not active")
			}
		case ws.ActionFinish:
			if _, err := ctrl.Finish(); err != nil {
				conn.WriteError("session is not active")
			}
			// The finished event with the result arrives via the write pump.
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			conn.WriteError("unknown action")
		}
	}
}
