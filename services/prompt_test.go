package services

import (
	"strings"
	"testing"
	"time"

	"github.com/careerquest/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPromptBuilder() *PromptBuilder {
	return NewPromptBuilder(InterviewConfig{
		MinQuestions: 9,
		MaxQuestions: 12,
		HardCap:      15,
		CategoryCap:  3,
	})
}

func jobSession() *models.InterviewSession {
	return &models.InterviewSession{
		ID:     "session-1",
		UserID: "user-1",
		Mode:   models.ModeJob,
		Context: models.InterviewContext{
			Role:       "Backend Engineer",
			Company:    "Acme",
			Industry:   "Fintech",
			Experience: "4 years",
		},
		Status:    models.StatusInProgress,
		StartedAt: time.Now(),
	}
}

func TestBuildOpeningPrompt(t *testing.T) {
	prompt := testPromptBuilder().BuildOpeningPrompt(jobSession())

	assert.Contains(t, prompt, "Backend Engineer")
	assert.Contains(t, prompt, "Acme")
	assert.Contains(t, prompt, "Fintech")
	assert.Contains(t, prompt, "start of the interview")
	assert.Contains(t, prompt, "```json")
	assert.Contains(t, prompt, `"completed": "false"`)
	assert.Contains(t, prompt, "between 9 and 12 questions")
}

func TestBuildOpeningPrompt_MockMode(t *testing.T) {
	session := &models.InterviewSession{
		ID:   "session-2",
		Mode: models.ModeMock,
		Context: models.InterviewContext{
			Position:      "Data Analyst",
			CompanyType:   "startup",
			Focus:         "SQL",
			Intensity:     "high",
			Experience:    "2 years",
			FeedbackStyle: "direct",
		},
		Status:    models.StatusInProgress,
		StartedAt: time.Now(),
	}

	prompt := testPromptBuilder().BuildOpeningPrompt(session)
	assert.Contains(t, prompt, "Data Analyst")
	assert.Contains(t, prompt, "high-intensity mock interview")
	assert.Contains(t, prompt, "SQL")
}

func TestBuildOpeningPrompt_MissingContextRendersPlaceholders(t *testing.T) {
	session := jobSession()
	session.Context = models.InterviewContext{Role: "Backend Engineer"}

	prompt := testPromptBuilder().BuildOpeningPrompt(session)
	// Missing fields render as placeholders so the prompt shape is fixed.
	assert.Contains(t, prompt, "N/A")
}

func TestBuildTurnPrompt_History(t *testing.T) {
	score := 6
	answeredAt := time.Now().Add(-time.Minute)
	session := jobSession()
	session.Turns = []models.Turn{
		{
			TurnOrder:  1,
			Question:   "Tell me about yourself",
			Category:   models.CategoryGeneral,
			Answer:     "I am a backend engineer.",
			Score:      &score,
			AnsweredAt: &answeredAt,
		},
		{
			TurnOrder: 2,
			Question:  "Describe a hard bug you fixed",
			Category:  models.CategoryTechnical,
		},
	}

	prompt := testPromptBuilder().BuildTurnPrompt(session, "It was a race condition.", "", nil, false)

	assert.Contains(t, prompt, "Tell me about yourself")
	assert.Contains(t, prompt, "I am a backend engineer.")
	assert.Contains(t, prompt, "Score: 6/10")
	assert.Contains(t, prompt, "Describe a hard bug you fixed")
	assert.Contains(t, prompt, "It was a race condition.")
	assert.Contains(t, prompt, "```json")
	assert.NotContains(t, prompt, "Do not ask another question")
}

func TestBuildTurnPrompt_FinalTurn(t *testing.T) {
	session := jobSession()
	session.Turns = []models.Turn{{
		TurnOrder: 1,
		Question:  "Tell me about yourself",
		Category:  models.CategoryGeneral,
	}}

	prompt := testPromptBuilder().BuildTurnPrompt(session, "An answer.", "", nil, true)
	assert.Contains(t, prompt, "Do not ask another question")
}

func TestBuildTurnPrompt_ExhaustedCategories(t *testing.T) {
	answeredAt := time.Now()
	session := jobSession()
	for i := 1; i <= 3; i++ {
		session.Turns = append(session.Turns, models.Turn{
			TurnOrder:  i,
			Question:   "Q",
			Category:   models.CategoryTechnical,
			Answer:     "A",
			AnsweredAt: &answeredAt,
		})
	}
	session.Turns = append(session.Turns, models.Turn{
		TurnOrder: 4,
		Question:  "Open question",
		Category:  models.CategoryBehavioral,
	})

	prompt := testPromptBuilder().BuildTurnPrompt(session, "An answer.", "", nil, false)
	require.Contains(t, prompt, "must NOT be used again")
	assert.Contains(t, prompt, models.CategoryName(models.CategoryTechnical))
}

func TestBuildTurnPrompt_FacialAnalysis(t *testing.T) {
	session := jobSession()
	session.Turns = []models.Turn{{
		TurnOrder: 1,
		Question:  "Tell me about yourself",
		Category:  models.CategoryGeneral,
	}}

	facial := &models.FacialAnalysis{
		Emotions: []models.EmotionReading{
			{Emotion: "calm", Intensity: 0.8},
			{Emotion: "nervous", Intensity: 0.2},
		},
		ExpressionAnalysis: "mostly relaxed",
	}

	prompt := testPromptBuilder().BuildTurnPrompt(session, "An answer.", "", facial, false)
	assert.Contains(t, prompt, "calm (0.80)")
	assert.Contains(t, prompt, "mostly relaxed")

	// Without facial data the slot still renders.
	prompt = testPromptBuilder().BuildTurnPrompt(session, "An answer.", "", nil, false)
	assert.Contains(t, prompt, "Facial expression summary: no data")
}

func TestPromptRoundTripWithExtractor(t *testing.T) {
	// The worked example embedded in every prompt must itself satisfy the
	// extractor's contract.
	prompt := testPromptBuilder().BuildOpeningPrompt(jobSession())

	start := strings.Index(prompt, "```json")
	require.GreaterOrEqual(t, start, 0)

	result, err := ExtractTurnResult(prompt[start:])
	require.NoError(t, err)
	assert.Equal(t, 7, result.Score)
	assert.Equal(t, 62, result.OverallScore)
	assert.False(t, result.Completed)
}
