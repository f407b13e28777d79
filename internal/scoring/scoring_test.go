package scoring

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/falachabt/bacblanc-sub000/internal/model"
)

var (
	qSingle    = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	qMultiple  = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	qTrueFalse = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	qText      = uuid.MustParse("44444444-4444-4444-4444-444444444444")
)

func buildExam() *model.Exam {
	return &model.Exam{
		ID:    uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"),
		Title: "Bac blanc — Physique",
		Questions: []model.Question{
			{
				ID:     qSingle,
				Type:   model.QuestionTypeSingle,
				Points: 2,
				Options: []model.Option{
					{ID: "a", Text: "9.8 m/s²"}, {ID: "b", Text: "12 m/s²"},
				},
				CorrectAnswer: json.RawMessage(`"a"`),
			},
			{
				ID:     qMultiple,
				Type:   model.QuestionTypeMultiple,
				Points: 3,
				Options: []model.Option{
					{ID: "a", Text: "Proton"}, {ID: "b", Text: "Photon"},
					{ID: "c", Text: "Neutron"}, {ID: "d", Text: "Électron"},
				},
				CorrectAnswer: json.RawMessage(`["a","c"]`),
			},
			{
				ID:            qTrueFalse,
				Type:          model.QuestionTypeTrueFalse,
				Points:        1,
				CorrectAnswer: json.RawMessage(`"true"`),
			},
			{
				ID:            qText,
				Type:          model.QuestionTypeText,
				Points:        1,
				CorrectAnswer: json.RawMessage(`"Paris"`),
			},
		},
	}
}

func answers(pairs map[uuid.UUID]string) model.AnswerMap {
	m := model.AnswerMap{}
	for id, raw := range pairs {
		m[id.String()] = json.RawMessage(raw)
	}
	return m
}

func TestScore_AllCorrect(t *testing.T) {
	exam := buildExam()
	got := Score(exam, answers(map[uuid.UUID]string{
		qSingle:    `"a"`,
		qMultiple:  `["c","a"]`, // order must not matter
		qTrueFalse: `"true"`,
		qText:      `" paris "`, // trim + case-insensitive
	}))

	if got.Score != 7 || got.Total != 7 {
		t.Fatalf("score/total = %v/%v, want 7/7", got.Score, got.Total)
	}
	if got.CorrectCount != 4 || got.IncorrectCount != 0 || got.UnansweredCount != 0 {
		t.Fatalf("counts = %d/%d/%d, want 4/0/0",
			got.CorrectCount, got.IncorrectCount, got.UnansweredCount)
	}
	if got.Percentage != 100 {
		t.Fatalf("percentage = %d, want 100", got.Percentage)
	}
}

func TestScore_EmptyAnswers(t *testing.T) {
	exam := buildExam()
	got := Score(exam, model.AnswerMap{})

	if got.CorrectCount != 0 {
		t.Fatalf("correct = %d, want 0", got.CorrectCount)
	}
	if got.UnansweredCount != len(exam.Questions) {
		t.Fatalf("unanswered = %d, want %d", got.UnansweredCount, len(exam.Questions))
	}
	if got.Score != 0 || got.Percentage != 0 {
		t.Fatalf("score/percentage = %v/%d, want 0/0", got.Score, got.Percentage)
	}
	if got.Total != exam.TotalPoints() {
		t.Fatalf("total = %v, want %v", got.Total, exam.TotalPoints())
	}
}

func TestScore_MultipleChoiceNoPartialCredit(t *testing.T) {
	exam := buildExam()
	tests := []struct {
		name    string
		payload string
		outcome Outcome
	}{
		{"canonical order", `["a","c"]`, OutcomeCorrect},
		{"reversed order", `["c","a"]`, OutcomeCorrect},
		{"duplicate ids collapse", `["a","c","a"]`, OutcomeCorrect},
		{"strict subset", `["a"]`, OutcomeIncorrect},
		{"strict superset", `["a","c","d"]`, OutcomeIncorrect},
		{"disjoint", `["b","d"]`, OutcomeIncorrect},
		{"empty list", `[]`, OutcomeUnanswered},
		{"malformed payload", `"a"`, OutcomeIncorrect},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(exam, answers(map[uuid.UUID]string{qMultiple: tc.payload}))
			breakdown := Breakdown(exam, answers(map[uuid.UUID]string{qMultiple: tc.payload}))
			if breakdown[1].Outcome != tc.outcome {
				t.Fatalf("outcome = %s, want %s", breakdown[1].Outcome, tc.outcome)
			}
			wantScore := 0.0
			if tc.outcome == OutcomeCorrect {
				wantScore = 3
			}
			if got.Score != wantScore {
				t.Fatalf("score = %v, want %v", got.Score, wantScore)
			}
		})
	}
}

func TestScore_TextComparison(t *testing.T) {
	exam := buildExam()
	tests := []struct {
		name    string
		payload string
		outcome Outcome
	}{
		{"exact", `"Paris"`, OutcomeCorrect},
		{"lowercase padded", `" paris "`, OutcomeCorrect},
		{"uppercase", `"PARIS"`, OutcomeCorrect},
		{"wrong answer", `"Lyon"`, OutcomeIncorrect},
		{"blank", `"   "`, OutcomeUnanswered},
		{"malformed", `42`, OutcomeIncorrect},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			breakdown := Breakdown(exam, answers(map[uuid.UUID]string{qText: tc.payload}))
			if breakdown[3].Outcome != tc.outcome {
				t.Fatalf("outcome = %s, want %s", breakdown[3].Outcome, tc.outcome)
			}
		})
	}
}

func TestScore_TrueFalseStrictEquality(t *testing.T) {
	exam := buildExam()
	tests := []struct {
		payload string
		outcome Outcome
	}{
		{`"true"`, OutcomeCorrect},
		{`"false"`, OutcomeIncorrect},
		{`"TRUE"`, OutcomeIncorrect}, // strict equality, not case-folded
		{`""`, OutcomeUnanswered},
	}

	for _, tc := range tests {
		breakdown := Breakdown(exam, answers(map[uuid.UUID]string{qTrueFalse: tc.payload}))
		if breakdown[2].Outcome != tc.outcome {
			t.Fatalf("payload %s: outcome = %s, want %s", tc.payload, breakdown[2].Outcome, tc.outcome)
		}
	}
}

func TestScore_Idempotent(t *testing.T) {
	exam := buildExam()
	submitted := answers(map[uuid.UUID]string{
		qSingle:   `"b"`,
		qMultiple: `["a","c"]`,
		qText:     `"paris"`,
	})

	first := Score(exam, submitted)
	second := Score(exam, submitted)

	// CompletedAt is stamped per call; everything derived must be identical.
	first.CompletedAt = second.CompletedAt
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestScore_ZeroQuestionsGuardsDivision(t *testing.T) {
	exam := &model.Exam{Title: "empty"}
	got := Score(exam, model.AnswerMap{})
	if got.Percentage != 0 || got.Total != 0 || got.QuestionCount != 0 {
		t.Fatalf("unexpected result for empty exam: %+v", got)
	}
}

func TestScore_TotalIsSumOfPoints(t *testing.T) {
	exam := buildExam()
	got := Score(exam, answers(map[uuid.UUID]string{qSingle: `"a"`}))
	if got.Total != exam.TotalPoints() {
		t.Fatalf("total = %v, want %v", got.Total, exam.TotalPoints())
	}
	if got.Score != 2 || got.Percentage != 29 { // round(2/7*100)
		t.Fatalf("score/percentage = %v/%d, want 2/29", got.Score, got.Percentage)
	}
}
