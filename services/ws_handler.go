package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/careerquest/backend/models"
	ws "github.com/careerquest/backend/websocket"
)

// WebSocketHandler bridges the live channel to the interview manager: each
// incoming answer runs through the same SubmitAnswer path as the HTTP
// surface, so the protocol rules hold regardless of transport.
type WebSocketHandler struct {
	manager *InterviewManager
}

func NewWebSocketHandler(manager *InterviewManager) *WebSocketHandler {
	return &WebSocketHandler{manager: manager}
}

// SendOpenQuestion pushes the session's current question to a freshly
// connected client, so a reconnect resumes exactly where the interview left
// off.
func (h *WebSocketHandler) SendOpenQuestion(client *ws.Client, session *models.InterviewSession) {
	if session.Status != models.StatusInProgress {
		client.SendMessage(ws.Message{Type: "completed"})
		return
	}
	open := session.OpenTurn()
	if open == nil {
		client.SendMessage(ws.Message{Type: "error", Error: "Session has no open question"})
		return
	}
	client.SendMessage(ws.Message{
		Type:     "question",
		Question: open.Question,
		Category: open.Category,
	})
}

// HandleMessage processes one incoming envelope from the client.
func (h *WebSocketHandler) HandleMessage(client *ws.Client, messageBytes []byte) {
	var msg ws.Message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		slog.Error("Failed to unmarshal websocket message", "error", err, "session_id", client.SessionID)
		client.SendMessage(ws.Message{Type: "error", Error: "Invalid message"})
		return
	}

	switch msg.Type {
	case "answer":
		h.handleAnswer(client, msg)
	case "ping":
		client.SendMessage(ws.Message{Type: "pong"})
	default:
		slog.Warn("Unknown websocket message type", "type", msg.Type, "session_id", client.SessionID)
		client.SendMessage(ws.Message{Type: "error", Error: "Unknown message type"})
	}
}

func (h *WebSocketHandler) handleAnswer(client *ws.Client, msg ws.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var facial *models.FacialAnalysis
	if msg.Facial != "" {
		facial = &models.FacialAnalysis{}
		if err := json.Unmarshal([]byte(msg.Facial), facial); err != nil {
			slog.Warn("Ignoring unparsable facial analysis payload", "error", err, "session_id", client.SessionID)
			facial = nil
		}
	}

	outcome, err := h.manager.SubmitAnswer(ctx, client.UserID, client.SessionID, msg.Answer, msg.Written, facial)
	if err != nil {
		slog.Error("Failed to process websocket answer", "error", err, "session_id", client.SessionID, "user_id", client.UserID)
		client.SendMessage(ws.Message{Type: "error", Error: protocolErrorText(err)})
		return
	}

	if outcome.Completed {
		client.SendMessage(ws.Message{
			Type:     "completed",
			Score:    outcome.Score,
			Analysis: outcome.OverallAnalysis,
		})
		return
	}

	client.SendMessage(ws.Message{
		Type:     "question",
		Question: outcome.Question,
		Category: outcome.Category,
		Score:    outcome.Score,
		Analysis: outcome.OverallAnalysis,
	})
}

func protocolErrorText(err error) string {
	switch {
	case errors.Is(err, ErrEmptyAnswer):
		return "An answer is required before continuing"
	case errors.Is(err, ErrSessionBusy):
		return "A previous answer for this session is still being processed"
	case errors.Is(err, ErrSessionCompleted):
		return "This interview has already ended"
	case errors.Is(err, ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, ErrModelTimeout):
		return "The interviewer took too long to respond, please try again"
	default:
		return "The interview could not be processed, please try again"
	}
}
