package services

import (
	"fmt"
	"strings"

	"github.com/careerquest/backend/models"
)

// PromptBuilder renders an interview session into the single prompt string
// sent to the model. Rendering is deterministic: optional data (facial
// analysis, scores not yet assigned) is printed as an explicit placeholder
// so the model always sees the same prompt shape.
type PromptBuilder struct {
	minQuestions int
	maxQuestions int
	categoryCap  int
}

func NewPromptBuilder(cfg InterviewConfig) *PromptBuilder {
	return &PromptBuilder{
		minQuestions: cfg.MinQuestions,
		maxQuestions: cfg.MaxQuestions,
		categoryCap:  cfg.CategoryCap,
	}
}

const noData = "N/A"

// responseContract is the output-schema section appended to every prompt.
// All values are strings, including numbers and booleans; the extractor
// coerces them back.
const responseContract = "RESPONSE FORMAT:\n" +
	"Reply with a single fenced JSON block and nothing else. No prose before or after it.\n" +
	"Every field must be present and every value must be a string.\n" +
	"```json\n" +
	`{ "aiSummary": "<running HTML summary of the whole interview>", "currentAnalysis": "<analysis of the answer just given>", "generated_question": "<the next question to ask>", "question_category": "3", "hypothetical_response": "<a strong example answer to the generated question>", "score": "7", "overallScore": "62", "weaknesses": "<themes to work on>", "completed": "false" }` + "\n" +
	"```\n" +
	`"question_category" is the category id (1-9) of the generated question, "score" is the 0-10 mark for the answer just given, "overallScore" the 0-100 running mark, "completed" is "true" only when the interview should end.`

// BuildOpeningPrompt renders the prompt for the very first question of a
// session, before any answer exists.
func (b *PromptBuilder) BuildOpeningPrompt(session *models.InterviewSession) string {
	var sb strings.Builder

	b.writeRole(&sb, session)
	b.writeRules(&sb, session)

	sb.WriteString("\nThis is the start of the interview. No questions have been asked yet.\n")
	sb.WriteString("Open the interview with your first question. Since there is no answer to evaluate yet, ")
	sb.WriteString(`set "score" to "0", "overallScore" to "0", "currentAnalysis" to "N/A" and "completed" to "false".` + "\n\n")
	sb.WriteString(responseContract)

	return sb.String()
}

// BuildTurnPrompt renders the prompt for evaluating the newly submitted
// answer and producing the next question. The answer is passed separately
// because it has not been folded into the session yet.
func (b *PromptBuilder) BuildTurnPrompt(session *models.InterviewSession, answer, written string, facial *models.FacialAnalysis, finalTurn bool) string {
	var sb strings.Builder

	b.writeRole(&sb, session)
	b.writeRules(&sb, session)
	b.writeHistory(&sb, session)

	open := session.OpenTurn()
	sb.WriteString("\nCURRENT QUESTION:\n")
	if open != nil {
		fmt.Fprintf(&sb, "Question (%s): %s\n", models.CategoryName(open.Category), open.Question)
	} else {
		sb.WriteString("Question: " + noData + "\n")
	}
	fmt.Fprintf(&sb, "Spoken answer: %s\n", placeholder(answer))
	fmt.Fprintf(&sb, "Written answer: %s\n", placeholder(written))
	sb.WriteString("Facial expression summary: " + renderFacial(facial) + "\n")

	fmt.Fprintf(&sb, "\nRunning overall score so far: %d/100\n", session.OverallScore)

	sb.WriteString("\nEvaluate the answer above, update the running summary, and produce the next question.\n")
	if finalTurn {
		sb.WriteString(`The interview has reached its question budget. Do not ask another question: set "generated_question" to "", "question_category" to "1" and "completed" to "true".` + "\n")
	}
	sb.WriteString("\n")
	sb.WriteString(responseContract)

	return sb.String()
}

// CorrectiveSuffix is appended to a prompt when the previous reply ignored
// the output contract, for the single content-error retry.
func (b *PromptBuilder) CorrectiveSuffix() string {
	return "\n\nIMPORTANT: your previous reply did not follow the response format. " +
		"Reply again with ONLY the fenced JSON block described above. Every field present, every value a string, no text outside the fences."
}

func (b *PromptBuilder) writeRole(sb *strings.Builder, session *models.InterviewSession) {
	ctx := session.Context
	if session.Mode == models.ModeJob {
		fmt.Fprintf(sb, "You are a professional interviewer conducting a job interview for a %s position at %s (%s industry). The candidate has %s of experience.\n",
			placeholder(ctx.Role), placeholder(ctx.Company), placeholder(ctx.Industry), placeholder(ctx.Experience))
	} else {
		fmt.Fprintf(sb, "You are a professional interviewer conducting a %s-intensity mock interview for a %s position at a %s company. Focus area: %s. The candidate has %s of experience. Feedback style: %s.\n",
			placeholder(ctx.Intensity), placeholder(ctx.Position), placeholder(ctx.CompanyType),
			placeholder(ctx.Focus), placeholder(ctx.Experience), placeholder(ctx.FeedbackStyle))
	}
	sb.WriteString("Keep your tone conversational and concise, and mirror the candidate's phrasing where natural.\n")
}

func (b *PromptBuilder) writeRules(sb *strings.Builder, session *models.InterviewSession) {
	sb.WriteString("\nQUESTION CATEGORIES:\n")
	for i := 1; i <= models.NumCategories; i++ {
		fmt.Fprintf(sb, "%d. %s\n", i, models.CategoryName(i))
	}

	fmt.Fprintf(sb, "\nRULES:\n- Ask between %d and %d questions in total, then end the interview by setting completed to true.\n", b.minQuestions, b.maxQuestions)
	fmt.Fprintf(sb, "- Ask at most %d questions per category; prefer categories not yet explored.\n", b.categoryCap)

	if exhausted := b.exhaustedCategories(session); len(exhausted) > 0 {
		fmt.Fprintf(sb, "- These categories have hit their cap and must NOT be used again: %s.\n", strings.Join(exhausted, ", "))
	}
	fmt.Fprintf(sb, "- %d of the question budget has been used so far.\n", session.QuestionsAsked())
}

func (b *PromptBuilder) writeHistory(sb *strings.Builder, session *models.InterviewSession) {
	sb.WriteString("\nINTERVIEW SO FAR:\n")
	if len(session.Turns) <= 1 {
		sb.WriteString("No completed turns yet.\n")
		return
	}

	// All turns except the open one are completed question/answer pairs.
	for _, turn := range session.Turns[:len(session.Turns)-1] {
		fmt.Fprintf(sb, "Q%d (%s): %s\n", turn.TurnOrder, models.CategoryName(turn.Category), turn.Question)
		fmt.Fprintf(sb, "A%d: %s\n", turn.TurnOrder, placeholder(strings.TrimSpace(turn.Answer+" "+turn.WrittenAnswer)))
		if turn.Score != nil {
			fmt.Fprintf(sb, "Score: %d/10\n", *turn.Score)
		} else {
			sb.WriteString("Score: " + noData + "\n")
		}
		sb.WriteString("Facial expression summary: " + renderFacial(turn.FacialAnalysis) + "\n")
	}
}

func (b *PromptBuilder) exhaustedCategories(session *models.InterviewSession) []string {
	counts := session.CategoryCounts()
	var exhausted []string
	for i := 1; i <= models.NumCategories; i++ {
		if counts[i] >= b.categoryCap {
			exhausted = append(exhausted, fmt.Sprintf("%d (%s)", i, models.CategoryName(i)))
		}
	}
	return exhausted
}

func renderFacial(facial *models.FacialAnalysis) string {
	if facial == nil || len(facial.Emotions) == 0 {
		return "no data"
	}
	parts := make([]string, 0, len(facial.Emotions))
	for _, e := range facial.Emotions {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", e.Emotion, e.Intensity))
	}
	out := strings.Join(parts, ", ")
	if facial.ExpressionAnalysis != "" {
		out += " - " + facial.ExpressionAnalysis
	}
	return out
}

func placeholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return noData
	}
	return strings.TrimSpace(s)
}
