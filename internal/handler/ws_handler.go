package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vigilo/vigilo-backend/internal/middleware"
	"github.com/vigilo/vigilo-backend/internal/service"
	"github.com/vigilo/vigilo-backend/internal/session"
	ws "github.com/vigilo/vigilo-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
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

// WSHandler streams one attempt: inbound answer, visibility and nav
// events feed the controller; warnings, violations and the final
// outcome are pushed back.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// pushListener forwards controller events to the client connection.
type pushListener struct {
	conn *ws.Conn
}

func (l *pushListener) OnWarning(remainingSeconds int) {
	_ = l.conn.WriteTyped(ws.WarningResponse{
		Event:            ws.EventWarning,
		RemainingSeconds: remainingSeconds,
	})
}

func (l *pushListener) OnViolation(count, limit int) {
	_ = l.conn.WriteTyped(ws.ViolationResponse{
		Event: ws.EventViolation,
		Count: count,
		Limit: limit,
	})
}

func (l *pushListener) OnFinished(out *session.Outcome, reason session.SubmitReason) {
	status := "SUBMITTED"
	if out.Terminated {
		status = "TERMINATED"
	}
	_ = l.conn.WriteTyped(ws.FinishedResponse{
		Event:      ws.EventFinished,
		Status:     status,
		Reason:     string(reason),
		Score:      out.Score,
		Total:      out.Total,
		Passed:     out.Passed,
		Terminated: out.Terminated,
	})
}

// AttemptStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
func (h *WSHandler) AttemptStream(c *gin.Context) {
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

	ctrl, err := h.attemptService.Controller(examID, claims.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active attempt for this exam"})
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
		Int("student_id", claims.UserID).
		Str("exam_id", examID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	ctrl.SetListener(&pushListener{conn: conn})
	defer ctrl.SetListener(nil)

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, ctrl, &msg)
		case ws.ActionVisibility:
			ctrl.ObserveVisibility(msg.Hidden)
			_ = conn.WriteTyped(ws.AckResponse{Event: ws.EventAck})
		case ws.ActionNav:
			h.handleNav(conn, ctrl, &msg)
		case ws.ActionBegin:
			if err := ctrl.Begin(); err != nil {
				_ = conn.WriteError("attempt already finished")
				continue
			}
			_ = conn.WriteTyped(ws.AckResponse{Event: ws.EventAck})
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, ctrl)
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = conn.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

func (h *WSHandler) handleAnswer(conn *ws.Conn, ctrl *session.Controller, msg *ws.RequestPayload) {
	if msg.QID == "" || msg.Option == nil {
		_ = conn.WriteError("q_id and option are required")
		return
	}
	if _, err := uuid.Parse(msg.QID); err != nil {
		_ = conn.WriteError("invalid q_id format")
		return
	}
	if *msg.Option < 0 {
		_ = conn.WriteError("invalid option index")
		return
	}

	ctrl.RecordAnswer(msg.QID, *msg.Option)
	_ = conn.WriteTyped(ws.AckResponse{Event: ws.EventAck})
}

func (h *WSHandler) handleNav(conn *ws.Conn, ctrl *session.Controller, msg *ws.RequestPayload) {
	switch msg.Op {
	case ws.NavNext:
		ctrl.MoveNext()
	case ws.NavPrev:
		ctrl.MovePrev()
	case ws.NavJump:
		ctrl.JumpTo(msg.Index)
	default:
		_ = conn.WriteError("unknown nav op: " + msg.Op)
		return
	}
	_ = conn.WriteTyped(ws.AckResponse{Event: ws.EventAck})
}

// handleSubmit drives a submit over the stream. The push listener
// delivers the finished event; this only reports errors.
func (h *WSHandler) handleSubmit(conn *ws.Conn, wsLog zerolog.Logger, ctrl *session.Controller) {
	if _, err := ctrl.Submit(context.Background(), session.ReasonManual); err != nil {
		wsLog.Error().Err(err).Msg("Stream submit failed")
		_ = conn.WriteError("submission failed")
	}
}
