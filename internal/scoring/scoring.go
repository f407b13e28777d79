// Package scoring grades a completed answer map against an exam
// definition. Score is a pure function: no I/O, no mutation of its inputs,
// identical inputs always yield identical results. Both the live "finish
// exam" path and later read-only result display go through it.
package scoring

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/falachabt/bacblanc-sub000/internal/model"
)

// Outcome classifies how a single question was graded.
type Outcome string

const (
	OutcomeCorrect    Outcome = "correct"
	OutcomeIncorrect  Outcome = "incorrect"
	OutcomeUnanswered Outcome = "unanswered"
)

// QuestionScore is the per-question grading detail.
type QuestionScore struct {
	QuestionID string  `json:"question_id"`
	Outcome    Outcome `json:"outcome"`
	Earned     float64 `json:"earned"`
	Points     float64 `json:"points"`
}

// Score grades answers against exam and aggregates the result. A question
// contributes either its full point value or zero; there is no partial
// credit anywhere in the system.
func Score(exam *model.Exam, answers model.AnswerMap) model.Result {
	result := model.Result{
		QuestionCount: len(exam.Questions),
		CompletedAt:   time.Now(),
	}

	for i := range exam.Questions {
		q := &exam.Questions[i]
		result.Total += q.Points

		switch grade(q, answers[q.ID.String()]) {
		case OutcomeCorrect:
			result.CorrectCount++
			result.Score += q.Points
		case OutcomeIncorrect:
			result.IncorrectCount++
		case OutcomeUnanswered:
			result.UnansweredCount++
		}
	}

	if result.Total > 0 {
		result.Percentage = int(math.Round(result.Score / result.Total * 100))
	}
	return result
}

// Breakdown grades answers question by question, in exam order.
func Breakdown(exam *model.Exam, answers model.AnswerMap) []QuestionScore {
	scores := make([]QuestionScore, 0, len(exam.Questions))
	for i := range exam.Questions {
		q := &exam.Questions[i]
		qs := QuestionScore{
			QuestionID: q.ID.String(),
			Outcome:    grade(q, answers[q.ID.String()]),
			Points:     q.Points,
		}
		if qs.Outcome == OutcomeCorrect {
			qs.Earned = q.Points
		}
		scores = append(scores, qs)
	}
	return scores
}

// grade decodes the submitted raw value against the question's type tag and
// compares it to the correct-answer specification. The answer shape is only
// validated here, at the scoring boundary.
func grade(q *model.Question, raw json.RawMessage) Outcome {
	if len(raw) == 0 {
		return OutcomeUnanswered
	}

	switch q.Type {
	case model.QuestionTypeSingle, model.QuestionTypeTrueFalse:
		return gradeExact(q.CorrectAnswer, raw)
	case model.QuestionTypeMultiple:
		return gradeSet(q.CorrectAnswer, raw)
	case model.QuestionTypeText:
		return gradeText(q.CorrectAnswer, raw)
	default:
		return OutcomeIncorrect
	}
}

// gradeExact handles single-choice and true/false: correct iff the submitted
// string strictly equals the correct value.
func gradeExact(key, raw json.RawMessage) Outcome {
	submitted, ok := decodeString(raw)
	if !ok {
		return OutcomeIncorrect
	}
	if submitted == "" {
		return OutcomeUnanswered
	}
	want, ok := decodeString(key)
	if !ok || submitted != want {
		return OutcomeIncorrect
	}
	return OutcomeCorrect
}

// gradeSet handles multiple-choice: correct iff the submitted ids equal the
// correct ids as sets. Order-independent, strict supersets and subsets are
// incorrect.
func gradeSet(key, raw json.RawMessage) Outcome {
	var submitted []string
	if err := json.Unmarshal(raw, &submitted); err != nil {
		return OutcomeIncorrect
	}
	if len(submitted) == 0 {
		return OutcomeUnanswered
	}

	var want []string
	if err := json.Unmarshal(key, &want); err != nil {
		return OutcomeIncorrect
	}

	wantSet := make(map[string]struct{}, len(want))
	for _, id := range want {
		wantSet[id] = struct{}{}
	}
	submittedSet := make(map[string]struct{}, len(submitted))
	for _, id := range submitted {
		submittedSet[id] = struct{}{}
	}

	if len(submittedSet) != len(wantSet) {
		return OutcomeIncorrect
	}
	for id := range wantSet {
		if _, ok := submittedSet[id]; !ok {
			return OutcomeIncorrect
		}
	}
	return OutcomeCorrect
}

// gradeText handles free text: trimmed, case-insensitive comparison against
// the reference string.
func gradeText(key, raw json.RawMessage) Outcome {
	submitted, ok := decodeString(raw)
	if !ok {
		return OutcomeIncorrect
	}
	if strings.TrimSpace(submitted) == "" {
		return OutcomeUnanswered
	}
	want, ok := decodeString(key)
	if !ok {
		return OutcomeIncorrect
	}
	if !strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(want)) {
		return OutcomeIncorrect
	}
	return OutcomeCorrect
}

func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
