package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/harishm17/study-buddy/pkg/models"
)

const partialCreditFeedback = "Unable to fully grade this response. Please review with your instructor."

// GradedQuestion is the per-question outcome stored in ai_grading.
type GradedQuestion struct {
	QuestionIndex  int             `json:"question_index"`
	QuestionText   string          `json:"question_text"`
	QuestionType   string          `json:"question_type"`
	PointsPossible float64         `json:"points_possible"`
	PointsEarned   float64         `json:"points_earned"`
	IsCorrect      bool            `json:"is_correct"`
	StudentAnswer  json.RawMessage `json:"student_answer"`
	Feedback       string          `json:"feedback"`
	CorrectAnswer  json.RawMessage `json:"correct_answer,omitempty"`
}

// Grading is the full result for one submission.
type Grading struct {
	SubmissionID    string           `json:"submission_id"`
	GradedQuestions []GradedQuestion `json:"graded_questions"`
	TotalPoints     float64          `json:"total_points"`
	EarnedPoints    float64          `json:"earned_points"`
	OverallScore    float64          `json:"overall_score"`
	GradedAt        time.Time        `json:"graded_at"`
}

// Feedback is the summary stored in ai_feedback.
func (g *Grading) Feedback() map[string]float64 {
	return map[string]float64{
		"overall_score": g.OverallScore,
		"earned_points": g.EarnedPoints,
		"total_points":  g.TotalPoints,
	}
}

// Grader scores answers. Objective questions are checked locally; short
// answers go to the generator.
type Grader struct {
	gen    models.Generator
	logger *slog.Logger
}

func NewGrader(gen models.Generator) *Grader {
	return &Grader{gen: gen, logger: slog.Default().With("component", "grader")}
}

type verdict struct {
	points   float64
	correct  bool
	feedback string
}

// Grade scores every question. answers is keyed by question index; a
// missing or null answer scores zero.
func (g *Grader) Grade(ctx context.Context, submissionID string, questions []Question, answers map[string]json.RawMessage, now time.Time) *Grading {
	out := &Grading{
		SubmissionID:    submissionID,
		GradedQuestions: make([]GradedQuestion, 0, len(questions)),
		GradedAt:        now,
	}

	for i, q := range questions {
		possible := q.PointValue()
		out.TotalPoints += possible

		gq := GradedQuestion{
			QuestionIndex:  i,
			QuestionText:   q.QuestionText,
			QuestionType:   q.QuestionType,
			PointsPossible: possible,
		}

		raw, ok := answers[strconv.Itoa(i)]
		if !ok || len(raw) == 0 || string(raw) == "null" {
			gq.StudentAnswer = json.RawMessage("null")
			gq.Feedback = "Question not answered"
			out.GradedQuestions = append(out.GradedQuestions, gq)
			continue
		}

		var v verdict
		switch q.QuestionType {
		case models.QuestionMultipleChoice:
			v = gradeMultipleChoice(q, raw)
		case models.QuestionTrueFalse:
			v = gradeTrueFalse(q, raw)
		case models.QuestionNumerical:
			v = gradeNumerical(q, raw)
		case models.QuestionShortAnswer:
			v = g.gradeShortAnswer(ctx, q, raw)
		default:
			v = verdict{feedback: "Unknown question type"}
		}

		gq.PointsEarned = v.points
		gq.IsCorrect = v.correct
		gq.StudentAnswer = raw
		gq.Feedback = v.feedback
		if q.QuestionType != models.QuestionShortAnswer {
			gq.CorrectAnswer = q.CorrectAnswer
		}
		out.EarnedPoints += v.points
		out.GradedQuestions = append(out.GradedQuestions, gq)
	}

	if out.TotalPoints > 0 {
		out.OverallScore = math.Round(out.EarnedPoints/out.TotalPoints*100*100) / 100
	}
	return out
}

func objectiveVerdict(q Question, correct bool) verdict {
	if correct {
		return verdict{points: q.PointValue(), correct: true, feedback: strings.TrimSpace("Correct! " + q.Explanation)}
	}
	return verdict{feedback: strings.TrimSpace(fmt.Sprintf("Incorrect. The correct answer is %s. %s", answerString(q.CorrectAnswer), q.Explanation))}
}

func gradeMultipleChoice(q Question, raw json.RawMessage) verdict {
	want := strings.ToUpper(strings.TrimSpace(answerString(q.CorrectAnswer)))
	got := strings.ToUpper(strings.TrimSpace(answerString(raw)))
	return objectiveVerdict(q, want != "" && got == want)
}

func gradeTrueFalse(q Question, raw json.RawMessage) verdict {
	return objectiveVerdict(q, answerBool(raw) == answerBool(q.CorrectAnswer))
}

func gradeNumerical(q Question, raw json.RawMessage) verdict {
	want, ok := answerFloat(q.CorrectAnswer)
	if !ok {
		return objectiveVerdict(q, false)
	}
	got, ok := answerFloat(raw)
	return objectiveVerdict(q, ok && math.Abs(got-want) <= q.Tolerance)
}

func (g *Grader) gradeShortAnswer(ctx context.Context, q Question, raw json.RawMessage) verdict {
	possible := q.PointValue()

	var keyPoints strings.Builder
	for _, p := range q.KeyPoints {
		fmt.Fprintf(&keyPoints, "- %s\n", p)
	}

	prompt := fmt.Sprintf(`You are grading a student's short answer response.

**Question:** %s

**Sample Answer:** %s

**Key Points to Look For:**
%s
**Student's Answer:**
%s

Award up to %g points for accuracy, completeness and clarity. Give partial credit for partially correct answers.

Return a JSON object:
{"points_earned": <number between 0 and %g>, "is_correct": <true if points >= %g>, "feedback": "<2-3 sentences>"}`,
		q.QuestionText, q.SampleAnswer, keyPoints.String(), answerString(raw), possible, possible, possible*0.7)

	var resp struct {
		PointsEarned float64 `json:"points_earned"`
		IsCorrect    bool    `json:"is_correct"`
		Feedback     string  `json:"feedback"`
	}
	if err := g.gen.GenerateJSON(ctx, models.Prompt{User: prompt, Temperature: 0.3, Mini: true}, &resp); err != nil {
		g.logger.Warn("short answer grading failed, awarding partial credit", "error", err)
		return verdict{points: possible * 0.5, feedback: partialCreditFeedback}
	}

	if resp.Feedback == "" {
		resp.Feedback = "Graded by AI"
	}
	return verdict{
		points:   math.Max(0, math.Min(possible, resp.PointsEarned)),
		correct:  resp.IsCorrect,
		feedback: resp.Feedback,
	}
}
