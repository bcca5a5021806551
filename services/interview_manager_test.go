package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/careerquest/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
	entered   chan struct{} // signals each Generate call, when set
	block     chan struct{} // when set, Generate waits for a signal
}

func (f *fakeModel) Generate(ctx context.Context, prompt string) (string, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if len(f.responses) == 0 {
		return "", ErrModelUnavailable
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*models.InterviewSession
	applied  int
	applyErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*models.InterviewSession)}
}

func (f *fakeStore) CreateInterviewSession(ctx context.Context, session *models.InterviewSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeStore) GetInterviewSessionWithTurns(ctx context.Context, sessionID, userID string) (*models.InterviewSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok || session.UserID != userID {
		return nil, nil
	}
	return session, nil
}

func (f *fakeStore) ApplyTurnResult(ctx context.Context, session *models.InterviewSession, answered *models.Turn, next *models.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied++
	stored := f.sessions[session.ID]
	stored.Status = session.Status
	stored.OverallScore = session.OverallScore
	stored.AISummary = session.AISummary
	stored.Weaknesses = session.Weaknesses
	stored.EndedAt = session.EndedAt
	if answered != nil {
		for i := range stored.Turns {
			if stored.Turns[i].ID == answered.ID {
				stored.Turns[i] = *answered
			}
		}
	}
	if next != nil {
		stored.Turns = append(stored.Turns, *next)
	}
	return nil
}

func modelReply(question, category, score, overall, completed string) string {
	return "```json\n" + `{
		"aiSummary": "<p>summary</p>",
		"currentAnalysis": "analysis",
		"generated_question": "` + question + `",
		"question_category": "` + category + `",
		"hypothetical_response": "a strong answer",
		"score": "` + score + `",
		"overallScore": "` + overall + `",
		"weaknesses": "pacing",
		"completed": "` + completed + `"
	}` + "\n```"
}

func testManager(store SessionStore, model ModelClient) *InterviewManager {
	return NewInterviewManager(store, model, InterviewConfig{
		MinQuestions: 9,
		MaxQuestions: 12,
		HardCap:      15,
		CategoryCap:  3,
	})
}

func seedSession(store *fakeStore, turns []models.Turn) *models.InterviewSession {
	session := &models.InterviewSession{
		ID:        "session-1",
		UserID:    "user-1",
		Mode:      models.ModeJob,
		Context:   models.InterviewContext{Role: "Engineer"},
		Status:    models.StatusInProgress,
		StartedAt: time.Now(),
		Turns:     turns,
	}
	store.sessions[session.ID] = session
	return session
}

func answeredTurn(order int) models.Turn {
	score := 6
	answeredAt := time.Now()
	return models.Turn{
		ID:         "turn-" + string(rune('0'+order)),
		SessionID:  "session-1",
		TurnOrder:  order,
		Question:   "Q",
		Category:   models.CategoryGeneral,
		Answer:     "A",
		Score:      &score,
		AnsweredAt: &answeredAt,
	}
}

func openTurn(order int) models.Turn {
	return models.Turn{
		ID:        "turn-open",
		SessionID: "session-1",
		TurnOrder: order,
		Question:  "Open question",
		Category:  models.CategoryBehavioral,
	}
}

func TestStartSession(t *testing.T) {
	store := newFakeStore()
	model := &fakeModel{responses: []string{
		modelReply("Tell me about yourself", "1", "0", "0", "false"),
	}}
	manager := testManager(store, model)

	session, err := manager.StartSession(context.Background(), "user-1", models.ModeJob, models.InterviewContext{Role: "Engineer"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusInProgress, session.Status)
	require.Len(t, session.Turns, 1)
	assert.Equal(t, "Tell me about yourself", session.Turns[0].Question)
	assert.Equal(t, 1, session.Turns[0].Category)
	assert.Equal(t, 1, session.Turns[0].TurnOrder)
	assert.Nil(t, session.Turns[0].AnsweredAt)
	assert.Contains(t, store.sessions, session.ID)
}

func TestStartSession_InvalidMode(t *testing.T) {
	manager := testManager(newFakeStore(), &fakeModel{})

	_, err := manager.StartSession(context.Background(), "user-1", "panel", models.InterviewContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionStartFailed)
}

func TestStartSession_ImmediateCompletion(t *testing.T) {
	store := newFakeStore()
	model := &fakeModel{responses: []string{
		modelReply("", "", "0", "0", "true"),
	}}
	manager := testManager(store, model)

	session, err := manager.StartSession(context.Background(), "user-1", models.ModeMock, models.InterviewContext{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, session.Status)
	assert.Empty(t, session.Turns)
	assert.NotNil(t, session.EndedAt)
}

func TestSubmitAnswer_NextQuestion(t *testing.T) {
	store := newFakeStore()
	seedSession(store, []models.Turn{openTurn(1)})
	model := &fakeModel{responses: []string{
		modelReply("What is your biggest strength?", "3", "7", "65", "false"),
	}}
	manager := testManager(store, model)

	outcome, err := manager.SubmitAnswer(context.Background(), "user-1", "session-1", "I built the billing system.", "", nil)
	require.NoError(t, err)

	assert.False(t, outcome.Completed)
	assert.Equal(t, "What is your biggest strength?", outcome.Question)
	assert.Equal(t, 3, outcome.Category)
	assert.Equal(t, 7, outcome.Score)
	assert.Equal(t, 65, outcome.OverallScore)

	stored := store.sessions["session-1"]
	require.Len(t, stored.Turns, 2)
	assert.NotNil(t, stored.Turns[0].AnsweredAt)
	assert.Equal(t, "I built the billing system.", stored.Turns[0].Answer)
	assert.Equal(t, 2, stored.Turns[1].TurnOrder)
	assert.Nil(t, stored.Turns[1].AnsweredAt)
}

func TestSubmitAnswer_Completion(t *testing.T) {
	store := newFakeStore()
	turns := make([]models.Turn, 0, 9)
	for i := 1; i <= 8; i++ {
		turns = append(turns, answeredTurn(i))
	}
	turns = append(turns, openTurn(9))
	seedSession(store, turns)

	model := &fakeModel{responses: []string{
		modelReply("", "", "8", "81", "true"),
	}}
	manager := testManager(store, model)

	outcome, err := manager.SubmitAnswer(context.Background(), "user-1", "session-1", "Final answer.", "", nil)
	require.NoError(t, err)

	assert.True(t, outcome.Completed)
	assert.Empty(t, outcome.Question)

	stored := store.sessions["session-1"]
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, 81, stored.OverallScore)
	assert.Len(t, stored.Turns, 9) // no new question stored
	assert.NotNil(t, stored.EndedAt)
}

func TestSubmitAnswer_EmptyAnswer(t *testing.T) {
	store := newFakeStore()
	seedSession(store, []models.Turn{openTurn(1)})
	model := &fakeModel{}
	manager := testManager(store, model)

	_, err := manager.SubmitAnswer(context.Background(), "user-1", "session-1", "   ", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyAnswer)
	assert.Equal(t, 0, model.callCount()) // validated locally, no model call
}

func TestSubmitAnswer_WrittenOnlyIsValid(t *testing.T) {
	store := newFakeStore()
	seedSession(store, []models.Turn{openTurn(1)})
	model := &fakeModel{responses: []string{
		modelReply("Next?", "2", "6", "60", "false"),
	}}
	manager := testManager(store, model)

	_, err := manager.SubmitAnswer(context.Background(), "user-1", "session-1", "", "typed answer", nil)
	require.NoError(t, err)
}

func TestSubmitAnswer_SessionNotFound(t *testing.T) {
	manager := testManager(newFakeStore(), &fakeModel{})

	_, err := manager.SubmitAnswer(context.Background(), "user-1", "missing", "answer", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmitAnswer_CompletedSessionRejected(t *testing.T) {
	store := newFakeStore()
	session := seedSession(store, []models.Turn{answeredTurn(1)})
	session.Status = models.StatusCompleted
	model := &fakeModel{}
	manager := testManager(store, model)

	_, err := manager.SubmitAnswer(context.Background(), "user-1", "session-1", "answer", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionCompleted)
	assert.Equal(t, 0, model.callCount())
}

func TestSubmitAnswer_HardCapForcesCompletion(t *testing.T) {
	store := newFakeStore()
	turns := make([]models.Turn, 0, 15)
	for i := 1; i <= 14; i++ {
		turns = append(turns, answeredTurn(i))
	}
	turns = append(turns, openTurn(15))
	seedSession(store, turns)

	// The model keeps trying to ask another question; the cap wins.
	model := &fakeModel{responses: []string{
		modelReply("One more question?", "2", "7", "70", "false"),
	}}
	manager := testManager(store, model)

	outcome, err := manager.SubmitAnswer(context.Background(), "user-1", "session-1", "answer", "", nil)
	require.NoError(t, err)

	assert.True(t, outcome.Completed)
	stored := store.sessions["session-1"]
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Len(t, stored.Turns, 15) // never exceeds the cap
}

func TestSubmitAnswer_CorrectiveRetryOnMalformedOutput(t *testing.T) {
	store := newFakeStore()
	seedSession(store, []models.Turn{openTurn(1)})
	model := &fakeModel{responses: []string{
		"I think the candidate did well, score 7.", // no fence
		modelReply("Next question?", "2", "7", "68", "false"),
	}}
	manager := testManager(store, model)

	outcome, err := manager.SubmitAnswer(context.Background(), "user-1", "session-1", "answer", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "Next question?", outcome.Question)
	assert.Equal(t, 2, model.callCount())
}

func TestSubmitAnswer_MalformedTwiceSurfacesError(t *testing.T) {
	store := newFakeStore()
	seedSession(store, []models.Turn{openTurn(1)})
	model := &fakeModel{responses: []string{"no fence here"}}
	manager := testManager(store, model)

	_, err := manager.SubmitAnswer(context.Background(), "user-1", "session-1", "answer", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedModelOutput)
	assert.Equal(t, 2, model.callCount()) // exactly one corrective retry

	// Nothing was committed; the same submission can be retried.
	stored := store.sessions["session-1"]
	assert.Equal(t, 0, store.applied)
	assert.Nil(t, stored.Turns[0].AnsweredAt)
}

func TestSubmitAnswer_SingleFlight(t *testing.T) {
	store := newFakeStore()
	seedSession(store, []models.Turn{openTurn(1)})
	model := &fakeModel{
		responses: []string{modelReply("Next?", "2", "7", "68", "false")},
		entered:   make(chan struct{}, 1),
		block:     make(chan struct{}),
	}
	manager := testManager(store, model)

	firstDone := make(chan error, 1)
	go func() {
		_, err := manager.SubmitAnswer(context.Background(), "user-1", "session-1", "first answer", "", nil)
		firstDone <- err
	}()

	// Wait until the first submission is inside the model call, holding
	// the session.
	select {
	case <-model.entered:
	case <-time.After(time.Second):
		t.Fatal("first submission never reached the model")
	}

	_, err := manager.SubmitAnswer(context.Background(), "user-1", "session-1", "second answer", "", nil)
	require.ErrorIs(t, err, ErrSessionBusy)

	close(model.block)
	require.NoError(t, <-firstDone)

	stored := store.sessions["session-1"]
	assert.Len(t, stored.Turns, 2) // only the first submission landed
}

func TestSubmitAnswer_CategoryCapRetries(t *testing.T) {
	store := newFakeStore()
	answeredAt := time.Now()
	score := 6
	turns := []models.Turn{}
	for i := 1; i <= 3; i++ {
		turns = append(turns, models.Turn{
			ID: "t" + string(rune('0'+i)), SessionID: "session-1", TurnOrder: i,
			Question: "Q", Category: models.CategoryTechnical,
			Answer: "A", Score: &score, AnsweredAt: &answeredAt,
		})
	}
	turns = append(turns, models.Turn{
		ID: "turn-open", SessionID: "session-1", TurnOrder: 4,
		Question: "Open question", Category: models.CategoryGeneral,
	})
	seedSession(store, turns)

	// First reply picks the exhausted technical category, the corrective
	// retry picks a fresh one.
	model := &fakeModel{responses: []string{
		modelReply("Another technical one", "2", "7", "70", "false"),
		modelReply("A behavioral one", "3", "7", "70", "false"),
	}}
	manager := testManager(store, model)

	outcome, err := manager.SubmitAnswer(context.Background(), "user-1", "session-1", "answer", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Category)
	assert.Equal(t, 2, model.callCount())
}
