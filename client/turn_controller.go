// Package client implements the candidate-facing side of the interview
// loop: it sequences answer capture, submission, and question display
// against the backend's interview endpoints, and owns the capture device
// lifecycle so microphones and cameras are always released.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Controller states. Transitions only move forward through a turn and
// never leave Completed.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateSubmitting
	StateCompleted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateSubmitting:
		return "submitting"
	case StateCompleted:
		return "completed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyAnswer      = errors.New("answer is empty")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrSessionDone      = errors.New("interview already completed")
	ErrNothingToRetry   = errors.New("no failed submission to retry")
	ErrSubmitFailed     = errors.New("submission failed")
)

// Capture is what the recorder hands back when stopped: the speech-to-text
// transcript plus the raw media, which ride along for server-side analysis.
type Capture struct {
	Transcript string
	Audio      []byte
	Video      []byte
}

// Recorder abstracts the browser/device capture collaborators. Start may be
// called again after Stop; Stop releases the underlying devices.
type Recorder interface {
	Start() error
	Stop() (Capture, error)
}

// Question is the server's current ask.
type Question struct {
	Text     string
	Category int
}

// Feedback carries the evaluation of the answer just submitted.
type Feedback struct {
	Score           int
	OverallScore    int
	AISummary       string
	OverallAnalysis string
	Completed       bool
}

type continueResponse struct {
	Success         bool   `json:"success"`
	SessionID       string `json:"session_id"`
	Question        string `json:"question"`
	Category        int    `json:"category"`
	Score           int    `json:"score"`
	OverallScore    int    `json:"overall_score"`
	AISummary       string `json:"aiSummary"`
	OverallAnalysis string `json:"overallAnalysis"`
	Completed       bool   `json:"completed"`
	Error           string `json:"error"`
}

type startResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Category  int    `json:"category"`
	Completed bool   `json:"completed"`
	Error     string `json:"error"`
}

// pendingSubmission keeps an unsent answer alive across a network failure
// so the user can retry without re-recording.
type pendingSubmission struct {
	capture Capture
	written string
	facial  string
}

// TurnController drives one interview session from the candidate's side.
// All methods are safe for concurrent use, though the protocol itself is
// strictly sequential.
type TurnController struct {
	httpClient *http.Client
	baseURL    string
	recorder   Recorder

	mu        sync.Mutex
	state     State
	sessionID string
	question  Question
	pending   *pendingSubmission
}

func NewTurnController(baseURL string, httpClient *http.Client, recorder Recorder) *TurnController {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TurnController{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		recorder:   recorder,
		state:      StateIdle,
	}
}

// State returns the controller's current state.
func (c *TurnController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the active session id, empty before Start.
func (c *TurnController) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// CurrentQuestion returns the question awaiting an answer.
func (c *TurnController) CurrentQuestion() Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.question
}

// Start opens a new session and begins recording for the first answer. If
// the server ends the interview immediately the controller lands in
// StateCompleted with no recording started.
func (c *TurnController) Start(ctx context.Context, body any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return fmt.Errorf("controller is closed")
	}
	if c.state != StateIdle {
		return fmt.Errorf("cannot start from state %s", c.state)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode start request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/interview/start", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	defer resp.Body.Close()

	var start startResponse
	if err := json.NewDecoder(resp.Body).Decode(&start); err != nil {
		return fmt.Errorf("%w: invalid response: %v", ErrSubmitFailed, err)
	}
	if resp.StatusCode >= 400 || !start.Success {
		return fmt.Errorf("%w: %s", ErrSubmitFailed, start.Error)
	}

	c.sessionID = start.SessionID
	if start.Completed {
		c.state = StateCompleted
		slog.Info("Interview completed at start", "session_id", c.sessionID)
		return nil
	}

	c.question = Question{Text: start.Question, Category: start.Category}
	if err := c.recorder.Start(); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	c.state = StateRecording

	slog.Info("Interview started", "session_id", c.sessionID, "category", start.Category)
	return nil
}

// Submit stops the recording, validates the answer, and posts it. On a
// network failure the capture is kept and Retry resubmits it; on success
// recording restarts automatically unless the interview ended.
func (c *TurnController) Submit(ctx context.Context, written, facial string) (*Feedback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateCompleted:
		return nil, ErrSessionDone
	case StateRecording:
		// expected
	default:
		return nil, ErrNotRecording
	}

	capture, err := c.recorder.Stop()
	if err != nil {
		return nil, fmt.Errorf("failed to stop recording: %w", err)
	}

	// Empty answers never reach the network; restart capture so the user
	// can try again.
	if strings.TrimSpace(capture.Transcript) == "" && strings.TrimSpace(written) == "" {
		if err := c.recorder.Start(); err != nil {
			return nil, fmt.Errorf("failed to restart recording: %w", err)
		}
		return nil, ErrEmptyAnswer
	}

	c.pending = &pendingSubmission{capture: capture, written: written, facial: facial}
	c.state = StateSubmitting

	return c.submitPendingLocked(ctx)
}

// Retry resubmits the answer kept from a failed Submit. The recorded
// capture survives network failures, so nothing is lost.
func (c *TurnController) Retry(ctx context.Context) (*Feedback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateCompleted {
		return nil, ErrSessionDone
	}
	if c.state != StateSubmitting || c.pending == nil {
		return nil, ErrNothingToRetry
	}
	return c.submitPendingLocked(ctx)
}

// submitPendingLocked posts the pending answer. Caller holds c.mu. On
// failure the pending submission and state are left untouched for Retry.
func (c *TurnController) submitPendingLocked(ctx context.Context) (*Feedback, error) {
	p := c.pending

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"session_id": c.sessionID,
		"question":   c.question.Text,
		"category":   strconv.Itoa(c.question.Category),
		"answer":     p.capture.Transcript,
		"written":    p.written,
	}
	if p.facial != "" {
		fields["facial"] = p.facial
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
		}
	}
	if len(p.capture.Audio) > 0 {
		fw, err := mw.CreateFormFile("audio", "answer.webm")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
		}
		if _, err := fw.Write(p.capture.Audio); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
		}
	}
	if len(p.capture.Video) > 0 {
		fw, err := mw.CreateFormFile("video", "answer.webm")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
		}
		if _, err := fw.Write(p.capture.Video); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/interview/continue", &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failure: the pending capture stays put for Retry.
		slog.Warn("Answer submission failed, kept for retry", "error", err, "session_id", c.sessionID)
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	var cont continueResponse
	if err := json.Unmarshal(body, &cont); err != nil {
		return nil, fmt.Errorf("%w: invalid response: %v", ErrSubmitFailed, err)
	}
	if resp.StatusCode >= 400 || !cont.Success {
		return nil, fmt.Errorf("%w: %s (status %d)", ErrSubmitFailed, cont.Error, resp.StatusCode)
	}

	// The exchange landed; the capture is no longer needed.
	c.pending = nil

	feedback := &Feedback{
		Score:           cont.Score,
		OverallScore:    cont.OverallScore,
		AISummary:       cont.AISummary,
		OverallAnalysis: cont.OverallAnalysis,
		Completed:       cont.Completed,
	}

	if cont.Completed {
		c.state = StateCompleted
		slog.Info("Interview completed", "session_id", c.sessionID, "overall_score", cont.OverallScore)
		return feedback, nil
	}

	c.question = Question{Text: cont.Question, Category: cont.Category}
	if err := c.recorder.Start(); err != nil {
		return feedback, fmt.Errorf("failed to restart recording: %w", err)
	}
	c.state = StateRecording

	slog.Info("Next question received", "session_id", c.sessionID, "category", cont.Category, "score", cont.Score)
	return feedback, nil
}

// Close releases the capture devices regardless of state. Safe to call
// multiple times and after completion.
func (c *TurnController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasRecording := c.state == StateRecording
	if c.state != StateClosed && c.state != StateCompleted {
		c.state = StateClosed
	}
	c.pending = nil

	if wasRecording {
		if _, err := c.recorder.Stop(); err != nil {
			return fmt.Errorf("failed to release capture devices: %w", err)
		}
	}
	return nil
}
