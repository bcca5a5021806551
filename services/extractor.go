package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/careerquest/backend/models"
)

// TurnResult is the validated, typed record extracted from one model reply.
type TurnResult struct {
	AISummary            string
	CurrentAnalysis      string
	GeneratedQuestion    string
	QuestionCategory     int
	HypotheticalResponse string
	Score                int // 0-10, for the answer just evaluated
	OverallScore         int // 0-100, running mark for the whole session
	Weaknesses           string
	Completed            bool
}

// turnResultWire mirrors the contract the prompt requests: every value a
// string, numbers and booleans included. Pointers let us tell a missing
// field from an empty one.
type turnResultWire struct {
	AISummary            *string `json:"aiSummary"`
	CurrentAnalysis      *string `json:"currentAnalysis"`
	GeneratedQuestion    *string `json:"generated_question"`
	QuestionCategory     *string `json:"question_category"`
	HypotheticalResponse *string `json:"hypothetical_response"`
	Score                *string `json:"score"`
	OverallScore         *string `json:"overallScore"`
	Weaknesses           *string `json:"weaknesses"`
	Completed            *string `json:"completed"`
}

const (
	fenceOpen  = "```json"
	fenceClose = "```"
)

// ExtractTurnResult locates the fenced JSON block in raw model text and
// parses it into a TurnResult. Failures are always typed: a missing or
// unparsable block is ErrMalformedModelOutput, a parsed block with missing
// or uncoercible fields is ErrSchemaViolation.
func ExtractTurnResult(raw string) (*TurnResult, error) {
	block, err := fencedBlock(raw)
	if err != nil {
		return nil, err
	}

	var wire turnResultWire
	if err := json.Unmarshal([]byte(block), &wire); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON in fenced block: %v", ErrMalformedModelOutput, err)
	}

	return validateWire(&wire)
}

func fencedBlock(raw string) (string, error) {
	start := strings.Index(raw, fenceOpen)
	if start < 0 {
		return "", fmt.Errorf("%w: no %s fence found", ErrMalformedModelOutput, fenceOpen)
	}
	rest := raw[start+len(fenceOpen):]
	end := strings.Index(rest, fenceClose)
	if end < 0 {
		return "", fmt.Errorf("%w: fence never closed", ErrMalformedModelOutput)
	}
	return strings.TrimSpace(rest[:end]), nil
}

func validateWire(wire *turnResultWire) (*TurnResult, error) {
	required := map[string]*string{
		"aiSummary":             wire.AISummary,
		"currentAnalysis":       wire.CurrentAnalysis,
		"generated_question":    wire.GeneratedQuestion,
		"question_category":     wire.QuestionCategory,
		"hypothetical_response": wire.HypotheticalResponse,
		"score":                 wire.Score,
		"overallScore":          wire.OverallScore,
		"weaknesses":            wire.Weaknesses,
		"completed":             wire.Completed,
	}
	for field, value := range required {
		if value == nil {
			return nil, fmt.Errorf("%w: missing field %q", ErrSchemaViolation, field)
		}
	}

	completed, err := strconv.ParseBool(strings.TrimSpace(*wire.Completed))
	if err != nil {
		return nil, fmt.Errorf("%w: completed is not a boolean: %q", ErrSchemaViolation, *wire.Completed)
	}

	score, err := coerceInt("score", *wire.Score, 0, 10)
	if err != nil {
		return nil, err
	}
	overallScore, err := coerceInt("overallScore", *wire.OverallScore, 0, 100)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{
		AISummary:            *wire.AISummary,
		CurrentAnalysis:      *wire.CurrentAnalysis,
		GeneratedQuestion:    strings.TrimSpace(*wire.GeneratedQuestion),
		HypotheticalResponse: *wire.HypotheticalResponse,
		Score:                score,
		OverallScore:         overallScore,
		Weaknesses:           *wire.Weaknesses,
		Completed:            completed,
	}

	// A terminal reply carries no next question, so the category is not
	// meaningful there.
	if !completed {
		if result.GeneratedQuestion == "" {
			return nil, fmt.Errorf("%w: generated_question empty while completed is false", ErrSchemaViolation)
		}
		category, err := coerceInt("question_category", *wire.QuestionCategory, 1, models.NumCategories)
		if err != nil {
			return nil, err
		}
		result.QuestionCategory = category
	}

	return result, nil
}

func coerceInt(field, value string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not an integer: %q", ErrSchemaViolation, field, value)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %s out of range [%d,%d]: %d", ErrSchemaViolation, field, lo, hi, n)
	}
	return n, nil
}
