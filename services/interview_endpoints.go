package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/careerquest/backend/models"
	"github.com/careerquest/backend/repository"
	"github.com/go-chi/chi/v5"
)

// InterviewEndpoints exposes the turn-taking protocol over HTTP: starting a
// session, submitting answers, and browsing or deleting past sessions.
type InterviewEndpoints struct {
	repo    *repository.GORMRepository
	manager *InterviewManager
}

func NewInterviewEndpoints(repo *repository.GORMRepository, manager *InterviewManager) *InterviewEndpoints {
	return &InterviewEndpoints{
		repo:    repo,
		manager: manager,
	}
}

type StartInterviewRequest struct {
	InterviewData models.InterviewContext `json:"interviewData"`
	JobOrMock     string                  `json:"jobOrMock"`
	Job           bool                    `json:"job"`
}

type StartInterviewResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Question  string `json:"question,omitempty"`
	Category  int    `json:"category,omitempty"`
	Completed bool   `json:"completed"`
}

type ContinueInterviewResponse struct {
	Success         bool   `json:"success"`
	SessionID       string `json:"session_id"`
	Question        string `json:"question,omitempty"`
	Category        int    `json:"category,omitempty"`
	Score           int    `json:"score"`
	OverallScore    int    `json:"overall_score"`
	AISummary       string `json:"aiSummary"`
	OverallAnalysis string `json:"overallAnalysis"`
	Completed       bool   `json:"completed"`
}

func (e *InterviewEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/interview", func(r chi.Router) {
		r.Post("/start", e.StartHandler)
		r.Post("/continue", e.ContinueHandler)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", e.GetSessionsHandler)
			r.Delete("/bulk", e.BulkDeleteSessionsHandler)
			r.Get("/{id}", e.GetSessionHandler)
			r.Delete("/{id}", e.DeleteSessionHandler)
		})
	})
}

func (e *InterviewEndpoints) StartHandler(w http.ResponseWriter, r *http.Request) {
	// Get user from context (set by auth middleware)
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	var req StartInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	mode := req.JobOrMock
	if mode == "" {
		// Older clients send only the boolean flag.
		if req.Job {
			mode = models.ModeJob
		} else {
			mode = models.ModeMock
		}
	}

	session, err := e.manager.StartSession(r.Context(), user.ID, mode, req.InterviewData)
	if err != nil {
		slog.Error("Failed to start interview", "error", err, "user_id", user.ID, "mode", mode)
		writeProtocolError(w, err)
		return
	}

	response := StartInterviewResponse{
		Success:   true,
		SessionID: session.ID,
		Completed: session.Status == models.StatusCompleted,
	}
	if open := session.OpenTurn(); open != nil {
		response.Question = open.Question
		response.Category = open.Category
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)

	slog.Info("Interview started via API", "session_id", session.ID, "user_id", user.ID, "mode", mode)
}

func (e *InterviewEndpoints) ContinueHandler(w http.ResponseWriter, r *http.Request) {
	// Get user from context (set by auth middleware)
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	// Audio and video blobs ride along in the same form for downstream
	// analysis collaborators; 32 MB keeps a short clip in memory.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	answer := r.FormValue("answer")
	written := r.FormValue("written")

	var facial *models.FacialAnalysis
	if raw := r.FormValue("facial"); raw != "" {
		facial = &models.FacialAnalysis{}
		if err := json.Unmarshal([]byte(raw), facial); err != nil {
			slog.Warn("Ignoring unparsable facial analysis payload", "error", err, "session_id", sessionID)
			facial = nil
		}
	}

	outcome, err := e.manager.SubmitAnswer(r.Context(), user.ID, sessionID, answer, written, facial)
	if err != nil {
		slog.Error("Failed to process answer", "error", err, "session_id", sessionID, "user_id", user.ID)
		writeProtocolError(w, err)
		return
	}

	response := ContinueInterviewResponse{
		Success:         true,
		SessionID:       outcome.SessionID,
		Question:        outcome.Question,
		Category:        outcome.Category,
		Score:           outcome.Score,
		OverallScore:    outcome.OverallScore,
		AISummary:       outcome.AISummary,
		OverallAnalysis: outcome.OverallAnalysis,
		Completed:       outcome.Completed,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

	slog.Info("Interview continued via API", "session_id", sessionID, "user_id", user.ID, "completed", outcome.Completed)
}

func (e *InterviewEndpoints) GetSessionsHandler(w http.ResponseWriter, r *http.Request) {
	// Get user from context (set by auth middleware)
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessions, err := e.repo.GetInterviewSessions(r.Context(), user.ID)
	if err != nil {
		slog.Error("Failed to get interview sessions", "error", err, "user_id", user.ID)
		http.Error(w, "Failed to get sessions", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

	slog.Info("Interview sessions retrieved", "user_id", user.ID, "count", len(sessions))
}

func (e *InterviewEndpoints) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	// Get user from context (set by auth middleware)
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	session, err := e.repo.GetInterviewSessionWithTurns(r.Context(), sessionID, user.ID)
	if err != nil {
		slog.Error("Failed to get interview session", "error", err, "session_id", sessionID, "user_id", user.ID)
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session": session,
	})

	slog.Info("Interview session retrieved", "session_id", sessionID, "user_id", user.ID)
}

func (e *InterviewEndpoints) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	// Get user from context (set by auth middleware)
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	// Verify session belongs to user before deleting
	session, err := e.repo.GetInterviewSessionWithTurns(r.Context(), sessionID, user.ID)
	if err != nil {
		slog.Error("Failed to get interview session for deletion", "error", err, "session_id", sessionID, "user_id", user.ID)
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if err := e.repo.DeleteInterviewSession(r.Context(), sessionID); err != nil {
		slog.Error("Failed to delete interview session", "error", err, "session_id", sessionID, "user_id", user.ID)
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	slog.Info("Interview session deleted", "session_id", sessionID, "user_id", user.ID)
}

type BulkDeleteRequest struct {
	SessionIDs []string `json:"session_ids"`
}

func (e *InterviewEndpoints) BulkDeleteSessionsHandler(w http.ResponseWriter, r *http.Request) {
	// Get user from context (set by auth middleware)
	user, ok := r.Context().Value("user").(*models.User)
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	var req BulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.SessionIDs) == 0 {
		http.Error(w, "At least one session ID is required", http.StatusBadRequest)
		return
	}

	// Verify all sessions belong to user before deleting
	sessions, err := e.repo.GetInterviewSessions(r.Context(), user.ID)
	if err != nil {
		slog.Error("Failed to get user sessions for bulk deletion", "error", err, "user_id", user.ID)
		http.Error(w, "Failed to verify sessions", http.StatusInternalServerError)
		return
	}

	userSessionIDs := make(map[string]bool)
	for _, session := range sessions {
		userSessionIDs[session.ID] = true
	}
	for _, sessionID := range req.SessionIDs {
		if !userSessionIDs[sessionID] {
			http.Error(w, "One or more sessions do not belong to the user", http.StatusForbidden)
			return
		}
	}

	deletedCount, err := e.repo.BulkDeleteInterviewSessions(r.Context(), req.SessionIDs)
	if err != nil {
		slog.Error("Failed to bulk delete interview sessions", "error", err, "session_ids", req.SessionIDs, "user_id", user.ID)
		http.Error(w, "Failed to delete sessions", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"message":       "Sessions deleted successfully",
		"deleted_count": deletedCount,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

	slog.Info("Bulk interview sessions deleted", "deleted_count", deletedCount, "user_id", user.ID)
}

// writeProtocolError maps the interview sentinel errors onto HTTP statuses
// and a JSON error envelope.
func writeProtocolError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.Is(err, ErrEmptyAnswer):
		status = http.StatusBadRequest
		message = "An answer is required before continuing"
	case errors.Is(err, ErrSessionBusy):
		status = http.StatusConflict
		message = "A previous answer for this session is still being processed"
	case errors.Is(err, ErrSessionCompleted):
		status = http.StatusConflict
		message = "This interview has already ended"
	case errors.Is(err, ErrSessionNotFound):
		status = http.StatusNotFound
		message = "Session not found"
	case errors.Is(err, ErrModelTimeout):
		status = http.StatusGatewayTimeout
		message = "The interviewer took too long to respond, please try again"
	case errors.Is(err, ErrModelUnavailable),
		errors.Is(err, ErrMalformedModelOutput),
		errors.Is(err, ErrSchemaViolation):
		status = http.StatusBadGateway
		message = "The interviewer is unavailable right now, please try again"
	case errors.Is(err, ErrSessionStartFailed), errors.Is(err, ErrTurnProcessingFailed):
		// Wrapper without a more specific cause underneath.
		status = http.StatusBadGateway
		message = "The interview could not be processed, please try again"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
