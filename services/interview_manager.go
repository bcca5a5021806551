package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/careerquest/backend/models"
	"github.com/google/uuid"
)

// ModelClient is the seam to the generation backend.
type ModelClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SessionStore is the persistence surface the manager needs. Implemented by
// repository.GORMRepository.
type SessionStore interface {
	CreateInterviewSession(ctx context.Context, session *models.InterviewSession) error
	GetInterviewSessionWithTurns(ctx context.Context, sessionID, userID string) (*models.InterviewSession, error)
	ApplyTurnResult(ctx context.Context, session *models.InterviewSession, answered *models.Turn, next *models.Turn) error
}

// InterviewManager drives the turn-taking protocol: it owns the session
// state transitions (in_progress -> completed, never back), enforces the
// hard turn cap and the single-flight rule, and coordinates prompt building,
// model invocation and response extraction for every exchange.
type InterviewManager struct {
	store   SessionStore
	model   ModelClient
	prompts *PromptBuilder
	cfg     InterviewConfig

	mu       sync.Mutex
	inflight map[string]struct{}
}

// TurnOutcome is what one completed exchange hands back to the caller.
type TurnOutcome struct {
	SessionID            string `json:"session_id"`
	Question             string `json:"question,omitempty"`
	Category             int    `json:"category,omitempty"`
	Score                int    `json:"score"`
	OverallScore         int    `json:"overall_score"`
	AISummary            string `json:"ai_summary"`
	OverallAnalysis      string `json:"overall_analysis"`
	HypotheticalResponse string `json:"hypothetical_response,omitempty"`
	Weaknesses           string `json:"weaknesses,omitempty"`
	Completed            bool   `json:"completed"`
}

func NewInterviewManager(store SessionStore, model ModelClient, cfg InterviewConfig) *InterviewManager {
	if cfg.HardCap <= 0 {
		cfg.HardCap = 15
	}
	if cfg.CategoryCap <= 0 {
		cfg.CategoryCap = 3
	}
	return &InterviewManager{
		store:    store,
		model:    model,
		prompts:  NewPromptBuilder(cfg),
		cfg:      cfg,
		inflight: make(map[string]struct{}),
	}
}

// StartSession creates a fresh session, asks the model for the opening
// question and persists both together. The returned session carries the
// first turn unless the model ended the interview immediately.
func (m *InterviewManager) StartSession(ctx context.Context, userID, mode string, ictx models.InterviewContext) (*models.InterviewSession, error) {
	if mode != models.ModeJob && mode != models.ModeMock {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrSessionStartFailed, mode)
	}

	session := &models.InterviewSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		Mode:      mode,
		Context:   ictx,
		Status:    models.StatusInProgress,
		StartedAt: time.Now(),
	}

	prompt := m.prompts.BuildOpeningPrompt(session)
	result, err := m.generateAndExtract(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionStartFailed, err)
	}

	session.AISummary = result.AISummary
	session.Weaknesses = result.Weaknesses

	if result.Completed {
		// The model can end an interview before it begins (e.g. a context
		// it refuses to interview for). Callers must treat a session with
		// no open question as terminal.
		now := time.Now()
		session.Status = models.StatusCompleted
		session.EndedAt = &now
	} else {
		session.Turns = []models.Turn{{
			ID:                   uuid.New().String(),
			SessionID:            session.ID,
			TurnOrder:            1,
			Question:             result.GeneratedQuestion,
			Category:             result.QuestionCategory,
			HypotheticalResponse: result.HypotheticalResponse,
		}}
	}

	if err := m.store.CreateInterviewSession(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionStartFailed, err)
	}

	slog.Info("Interview session started", "session_id", session.ID, "user_id", userID, "mode", mode, "status", session.Status)
	return session, nil
}

// SubmitAnswer processes one answer: it attaches the answer to the open
// turn, has the model score it and produce the next question, and commits
// the whole exchange atomically. On any failure the session is unchanged
// and the same submission can be retried.
func (m *InterviewManager) SubmitAnswer(ctx context.Context, userID, sessionID, answer, written string, facial *models.FacialAnalysis) (*TurnOutcome, error) {
	if strings.TrimSpace(answer) == "" && strings.TrimSpace(written) == "" {
		return nil, ErrEmptyAnswer
	}

	if !m.tryAcquire(sessionID) {
		return nil, ErrSessionBusy
	}
	defer m.release(sessionID)

	session, err := m.store.GetInterviewSessionWithTurns(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTurnProcessingFailed, err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Status != models.StatusInProgress {
		return nil, ErrSessionCompleted
	}

	open := session.OpenTurn()
	if open == nil {
		return nil, fmt.Errorf("%w: session has no open question", ErrTurnProcessingFailed)
	}

	// Past the hard cap the model is told, and then forced, to stop.
	finalTurn := session.QuestionsAsked() >= m.cfg.HardCap

	prompt := m.prompts.BuildTurnPrompt(session, answer, written, facial, finalTurn)
	result, err := m.generateAndExtract(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTurnProcessingFailed, err)
	}
	result = m.enforceCategoryCap(ctx, session, prompt, result)

	if finalTurn && !result.Completed {
		slog.Warn("Model ignored question budget, forcing completion", "session_id", sessionID, "questions_asked", session.QuestionsAsked())
		result.Completed = true
	}

	now := time.Now()
	answered := *open
	answered.Answer = answer
	answered.WrittenAnswer = written
	answered.FacialAnalysis = facial
	answered.Score = &result.Score
	answered.Analysis = result.CurrentAnalysis
	answered.AnsweredAt = &now

	session.OverallScore = result.OverallScore
	session.AISummary = result.AISummary
	session.Weaknesses = result.Weaknesses

	var next *models.Turn
	if result.Completed {
		session.Status = models.StatusCompleted
		session.EndedAt = &now
	} else {
		next = &models.Turn{
			ID:                   uuid.New().String(),
			SessionID:            session.ID,
			TurnOrder:            answered.TurnOrder + 1,
			Question:             result.GeneratedQuestion,
			Category:             result.QuestionCategory,
			HypotheticalResponse: result.HypotheticalResponse,
		}
	}

	if err := m.store.ApplyTurnResult(ctx, session, &answered, next); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTurnProcessingFailed, err)
	}

	outcome := &TurnOutcome{
		SessionID:       session.ID,
		Score:           result.Score,
		OverallScore:    result.OverallScore,
		AISummary:       result.AISummary,
		OverallAnalysis: result.CurrentAnalysis,
		Weaknesses:      result.Weaknesses,
		Completed:       result.Completed,
	}
	if next != nil {
		outcome.Question = next.Question
		outcome.Category = next.Category
		outcome.HypotheticalResponse = next.HypotheticalResponse
	}

	slog.Info("Turn processed", "session_id", session.ID, "turn", answered.TurnOrder, "score", result.Score, "overall_score", result.OverallScore, "completed", result.Completed)
	return outcome, nil
}

// generateAndExtract runs one model call plus extraction. Content errors
// (no fence, schema violation) get exactly one retry with a corrective
// suffix, since they usually mean the model ignored the format instructions.
func (m *InterviewManager) generateAndExtract(ctx context.Context, prompt string) (*TurnResult, error) {
	raw, err := m.model.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	result, err := ExtractTurnResult(raw)
	if err == nil {
		return result, nil
	}
	if !isContentError(err) {
		return nil, err
	}

	slog.Warn("Model output unusable, retrying with corrective prompt", "error", err)
	raw, err = m.model.Generate(ctx, prompt+m.prompts.CorrectiveSuffix())
	if err != nil {
		return nil, err
	}
	return ExtractTurnResult(raw)
}

// enforceCategoryCap is the server-side backstop for the per-category
// question cap. One corrective retry; if the model insists, the turn is
// accepted with a warning rather than dropped.
func (m *InterviewManager) enforceCategoryCap(ctx context.Context, session *models.InterviewSession, prompt string, result *TurnResult) *TurnResult {
	if result.Completed {
		return result
	}
	counts := session.CategoryCounts()
	if counts[result.QuestionCategory] < m.cfg.CategoryCap {
		return result
	}

	slog.Warn("Model picked an exhausted category, retrying",
		"session_id", session.ID, "category", result.QuestionCategory, "count", counts[result.QuestionCategory])

	retry, err := m.generateAndExtract(ctx, prompt+m.prompts.CorrectiveSuffix())
	if err != nil {
		slog.Warn("Category retry failed, keeping original result", "session_id", session.ID, "error", err)
		return result
	}
	if !retry.Completed && counts[retry.QuestionCategory] >= m.cfg.CategoryCap {
		slog.Warn("Model insisted on exhausted category, accepting", "session_id", session.ID, "category", retry.QuestionCategory)
	}
	return retry
}

func (m *InterviewManager) tryAcquire(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[sessionID]; busy {
		return false
	}
	m.inflight[sessionID] = struct{}{}
	return true
}

func (m *InterviewManager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, sessionID)
}

func isContentError(err error) bool {
	return errors.Is(err, ErrMalformedModelOutput) || errors.Is(err, ErrSchemaViolation)
}
