package models

import (
	"time"

	"gorm.io/gorm"
)

// Session status values. A session never leaves "completed" or "abandoned".
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusAbandoned  = "abandoned"
)

// Interview modes
const (
	ModeJob  = "job"  // interview for a specific job posting
	ModeMock = "mock" // generic practice interview
)

// InterviewContext is the immutable snapshot of what the interview is about,
// captured at session start. Job mode fills the first group of fields, mock
// mode the second; unused fields stay empty.
type InterviewContext struct {
	// Job mode
	Role       string `json:"role,omitempty"`
	Company    string `json:"company,omitempty"`
	Industry   string `json:"industry,omitempty"`
	Experience string `json:"experience,omitempty"`

	// Mock mode
	Position      string `json:"position,omitempty"`
	CompanyType   string `json:"company_type,omitempty"`
	Focus         string `json:"focus,omitempty"`
	Intensity     string `json:"intensity,omitempty"`
	FeedbackStyle string `json:"feedback_style,omitempty"`
}

// InterviewSession records one interview attempt and its full turn history
type InterviewSession struct {
	ID           string           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID       string           `gorm:"type:uuid;not null;index" json:"user_id"`
	Mode         string           `gorm:"size:10;not null;check:mode IN ('job', 'mock')" json:"mode"`
	Context      InterviewContext `gorm:"serializer:json;type:jsonb" json:"context"`
	Status       string           `gorm:"not null;default:'in_progress';check:status IN ('in_progress', 'completed', 'abandoned')" json:"status"`
	OverallScore int              `gorm:"not null;default:0" json:"overall_score"` // 0-100, recomputed after each turn
	AISummary    string           `gorm:"type:text" json:"ai_summary,omitempty"`
	Weaknesses   string           `gorm:"type:text" json:"weaknesses,omitempty"`
	StartedAt    time.Time        `gorm:"not null" json:"started_at"`
	EndedAt      *time.Time       `json:"ended_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	DeletedAt    gorm.DeletedAt   `gorm:"index" json:"-"`

	// Relationships
	User  User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Turns []Turn `gorm:"foreignKey:SessionID" json:"turns,omitempty"`
}

// QuestionsAsked returns the number of questions generated so far,
// including the currently open one.
func (s *InterviewSession) QuestionsAsked() int {
	return len(s.Turns)
}

// OpenTurn returns the most recent turn if it has not been answered yet.
// Turns must be loaded in turn order.
func (s *InterviewSession) OpenTurn() *Turn {
	if len(s.Turns) == 0 {
		return nil
	}
	last := &s.Turns[len(s.Turns)-1]
	if last.AnsweredAt == nil {
		return last
	}
	return nil
}

// CategoryCounts maps each question category to the number of questions
// asked in it so far.
func (s *InterviewSession) CategoryCounts() map[int]int {
	counts := make(map[int]int, NumCategories)
	for _, turn := range s.Turns {
		counts[turn.Category]++
	}
	return counts
}
