package models

import (
	"time"

	"gorm.io/gorm"
)

// Question categories. The model assigns one per generated question; the
// prompt steers it away from categories that already hit their cap.
const (
	CategoryGeneral = iota + 1
	CategoryTechnical
	CategoryBehavioral
	CategoryProblemSolving
	CategorySituational
	CategoryWorkExperience
	CategoryCompanyIndustry
	CategoryCulturalFit
	CategoryCandidateQuestions

	NumCategories = 9
)

var categoryNames = map[int]string{
	CategoryGeneral:            "general/personal",
	CategoryTechnical:          "technical",
	CategoryBehavioral:         "behavioral",
	CategoryProblemSolving:     "problem-solving",
	CategorySituational:        "situational",
	CategoryWorkExperience:     "work experience",
	CategoryCompanyIndustry:    "company/industry",
	CategoryCulturalFit:        "cultural fit",
	CategoryCandidateQuestions: "candidate asks the interviewer",
}

// CategoryName returns the human-readable name for a category id,
// or "unknown" for ids outside 1-9.
func CategoryName(category int) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}

// Turn is one question/answer/score unit within a session. A turn is created
// with only the question; the answer and score arrive on the next exchange
// (the model scores an answer while generating the following question).
type Turn struct {
	ID                   string          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SessionID            string          `gorm:"type:uuid;not null;index" json:"session_id"`
	TurnOrder            int             `gorm:"not null" json:"turn_order"`
	Question             string          `gorm:"type:text;not null" json:"question"`
	Category             int             `gorm:"not null" json:"category"` // 1-9
	Answer               string          `gorm:"type:text" json:"answer"`
	WrittenAnswer        string          `gorm:"type:text" json:"written_answer,omitempty"`
	FacialAnalysis       *FacialAnalysis `gorm:"serializer:json;type:jsonb" json:"facial_analysis,omitempty"`
	Score                *int            `json:"score,omitempty"` // 0-10, set when the answer is evaluated
	Analysis             string          `gorm:"type:text" json:"analysis,omitempty"`
	HypotheticalResponse string          `gorm:"type:text" json:"hypothetical_response,omitempty"`
	AnsweredAt           *time.Time      `json:"answered_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	DeletedAt            gorm.DeletedAt  `gorm:"index" json:"-"`

	// Relationships
	Session InterviewSession `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}

// FacialAnalysis is the optional per-turn summary supplied by the external
// video-analysis collaborator.
type FacialAnalysis struct {
	Emotions           []EmotionReading `json:"emotions"`
	ExpressionAnalysis string           `json:"expression_analysis,omitempty"`
}

type EmotionReading struct {
	Emotion   string  `json:"emotion"`
	Intensity float64 `json:"intensity"`
}
