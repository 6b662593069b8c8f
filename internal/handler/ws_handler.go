package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/session"
	ws "github.com/stemsi/exstem-session/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
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

// WSHandler streams session events (ticks, phase changes, finalization) to
// the student's browser.
type WSHandler struct {
	sessions *service.ExamSessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/exams/:exam_id/session/stream
// Requires an open session; the stream ends when the session is closed.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	sess, err := h.sessions.Get(examID, claims.UserID)
	if err != nil {
		failWith(c, err)
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

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go h.forward(conn, events, done, wsLog)

	// Greet with the current phase so the client can render before the first tick.
	v := sess.View()
	greeting := session.Event{Type: session.EventPhase, Phase: v.Phase}
	if v.Attempt != nil {
		greeting.SecondsRemaining = v.Attempt.SecondsRemaining
	}
	if err := conn.WriteTyped(ws.FromSessionEvent(greeting)); err != nil {
		return
	}

	for {
		var msg ws.RequestEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		select {
		case <-done:
			return
		default:
		}

		switch msg.Action {
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		case ws.ActionSubmit:
			// The finalized or error event reaches the client through the subscription.
			if _, err := sess.Submit(context.Background()); err != nil && !errors.Is(err, session.ErrReportSubmissionFailed) {
				_, code := resolveError(err)
				conn.WriteError(string(code))
			}
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

// forward relays session events until the subscription closes.
func (h *WSHandler) forward(conn *ws.Conn, events <-chan session.Event, done chan<- struct{}, log zerolog.Logger) {
	defer close(done)
	for ev := range events {
		if err := conn.WriteTyped(ws.FromSessionEvent(ev)); err != nil {
			log.Debug().Err(err).Msg("Event write failed")
			return
		}
	}
	// Subscription closed: the session itself was closed.
	conn.CloseNormal("session closed")
}
