package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/edushift/examgate-backend/internal/middleware"
	"github.com/edushift/examgate-backend/internal/model"
	"github.com/edushift/examgate-backend/internal/service"
	"github.com/edushift/examgate-backend/internal/timer"
	ws "github.com/edushift/examgate-backend/internal/websocket"
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

// WSHandler handles the per-attempt WebSocket stream: autosave and security
// reports inbound, timer threshold notifications outbound.
type WSHandler struct {
	attemptService  *service.AttemptService
	answerService   *service.AnswerService
	securityService *service.SecurityService
	timers          *timer.Registry
	log             zerolog.Logger
	upgrader        websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	attemptService *service.AttemptService,
	answerService *service.AnswerService,
	securityService *service.SecurityService,
	timers *timer.Registry,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		attemptService:  attemptService,
		answerService:   answerService,
		securityService: securityService,
		timers:          timers,
		log:             log.With().Str("component", "ws_handler").Logger(),
		upgrader:        buildUpgrader(allowedOrigins),
	}
}

// AttemptWebSocketStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream
// Upgrades to WebSocket for autosave, timer checkpoints, security reports,
// and server-pushed countdown threshold events.
func (h *WSHandler) AttemptWebSocketStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.UserID

	// SECURITY: Verify ownership before streaming anything.
	state, err := h.attemptService.GetState(c.Request.Context(), attemptID, studentID)
	if err != nil {
		ws.WriteError(conn, "attempt not accessible")
		return
	}

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("attempt_id", attemptID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	// All writes are funneled through the outbox so the timer forwarder and
	// the action dispatcher never interleave frames.
	outbox := make(chan interface{}, 16)
	done := make(chan struct{})
	defer close(done)

	var timerCh <-chan timer.Event
	if co := h.timers.Get(attemptID); co != nil {
		timerCh = co.Subscribe()
	}

	go func() {
		for {
			select {
			case <-done:
				return
			case ev := <-timerCh:
				if err := ws.WriteTyped(conn, thresholdResponse(ev)); err != nil {
					return
				}
			case v := <-outbox:
				if err := ws.WriteTyped(conn, v); err != nil {
					return
				}
			}
		}
	}()

	session := &wsSession{
		handler:   h,
		attemptID: attemptID,
		studentID: studentID,
		activeSA:  state.ActiveSection,
		outbox:    outbox,
		log:       wsLog,
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			session.send(ws.ErrorResponse{Event: ws.EventError, Error: "malformed message"})
			continue
		}

		switch envelope.Action {
		case ws.ActionAutosave:
			session.handleAutosave(raw)
		case ws.ActionSyncTime:
			session.handleSyncTime(raw)
		case ws.ActionReport:
			session.handleReport(raw)
		case ws.ActionPing:
			session.send(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			session.send(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(envelope.Action)})
		}
	}
}

// wsSession carries per-connection state through the action handlers.
type wsSession struct {
	handler   *WSHandler
	attemptID uuid.UUID
	studentID int
	activeSA  *model.SectionAttempt
	outbox    chan interface{}
	log       zerolog.Logger
}

func (s *wsSession) send(v interface{}) {
	select {
	case s.outbox <- v:
	default:
		s.log.Warn().Msg("Outbox full, dropping frame")
	}
}

func (s *wsSession) handleAutosave(raw []byte) {
	var msg ws.AutosaveRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.send(ws.ErrorResponse{Event: ws.EventError, Error: "malformed autosave"})
		return
	}

	questionID, err := uuid.Parse(msg.QuestionID)
	if err != nil {
		s.send(ws.ErrorResponse{Event: ws.EventError, Error: "invalid question_id format"})
		return
	}

	req := model.UpsertAnswerRequest{TextAnswer: msg.TextAnswer}
	if msg.SelectedChoiceID != nil {
		choiceID, err := uuid.Parse(*msg.SelectedChoiceID)
		if err != nil {
			s.send(ws.ErrorResponse{Event: ws.EventError, Error: "invalid selected_choice_id format"})
			return
		}
		req.SelectedChoiceID = &choiceID
	}

	if err := s.handler.answerService.Upsert(context.Background(), s.attemptID, questionID, s.studentID, &req); err != nil {
		s.log.Debug().Err(err).Msg("Autosave rejected")
		s.send(ws.ErrorResponse{Event: ws.EventError, Error: "save failed"})
		return
	}

	s.send(ws.AckResponse{Event: ws.EventSuccess, Status: "saved"})
}

// handleSyncTime queues a countdown checkpoint for batch persistence. The
// active section attempt is resolved once per section and cached on the
// session.
func (s *wsSession) handleSyncTime(raw []byte) {
	var msg ws.SyncTimeRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.send(ws.ErrorResponse{Event: ws.EventError, Error: "malformed sync_time"})
		return
	}
	if msg.RemainingSeconds < 0 {
		s.send(ws.ErrorResponse{Event: ws.EventError, Error: "remaining_seconds must be >= 0"})
		return
	}

	ctx := context.Background()

	if s.activeSA == nil || !s.sectionMatches(msg.SectionID) {
		state, err := s.handler.attemptService.GetState(ctx, s.attemptID, s.studentID)
		if err != nil {
			s.send(ws.ErrorResponse{Event: ws.EventError, Error: "sync failed"})
			return
		}
		s.activeSA = state.ActiveSection
	}
	if s.activeSA == nil {
		s.send(ws.ErrorResponse{Event: ws.EventError, Error: "no active section"})
		return
	}

	if err := s.handler.attemptService.QueueTimeCheckpoint(ctx, s.attemptID, s.activeSA.ID, msg.RemainingSeconds); err != nil {
		s.log.Warn().Err(err).Msg("Checkpoint queue failed")
		s.send(ws.ErrorResponse{Event: ws.EventError, Error: "sync failed"})
		return
	}

	s.send(ws.AckResponse{Event: ws.EventSuccess, Status: "synced"})
}

func (s *wsSession) handleReport(raw []byte) {
	var msg ws.ReportRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.send(ws.ErrorResponse{Event: ws.EventError, Error: "malformed report"})
		return
	}

	req := model.ReportSecurityEventRequest{
		Type: model.SecurityEventType(msg.EventType),
	}
	if msg.EventData != "" {
		req.Data = json.RawMessage(msg.EventData)
	}

	result, err := s.handler.securityService.Report(context.Background(), s.attemptID, s.studentID, &req)
	if err != nil {
		s.log.Debug().Err(err).Msg("Security report rejected")
		s.send(ws.ErrorResponse{Event: ws.EventError, Error: "report rejected"})
		return
	}

	s.send(ws.SecurityStateResponse{
		Event:         ws.EventSecurityState,
		Counted:       result.Violations > 0 || result.Warnings > 0,
		Warnings:      result.Warnings,
		Violations:    result.Violations,
		AutoSubmitted: result.AutoSubmitted,
		Reason:        result.Reason,
	})
	if result.AutoSubmitted {
		s.send(ws.AutoSubmittedResponse{Event: ws.EventAutoSubmitted, Reason: result.Reason})
	}
}

func (s *wsSession) sectionMatches(sectionID *string) bool {
	if sectionID == nil {
		return s.activeSA.SectionID == nil
	}
	if s.activeSA.SectionID == nil {
		return false
	}
	return s.activeSA.SectionID.String() == *sectionID
}

func thresholdResponse(ev timer.Event) interface{} {
	switch ev.Threshold {
	case timer.ThresholdExpiry:
		return ws.AutoSubmittedResponse{Event: ws.EventAutoSubmitted, Reason: "time expired"}
	case timer.ThresholdDanger:
		return ws.TimeResponse{Event: ws.EventTimeDanger, RemainingSeconds: ev.RemainingSeconds}
	default:
		return ws.TimeResponse{Event: ws.EventTimeWarning, RemainingSeconds: ev.RemainingSeconds}
	}
}
