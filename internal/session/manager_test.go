package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/falachabt/bacblanc-sub000/internal/model"
)

// fakeProvider serves one published exam by id.
type fakeProvider struct {
	exam *model.Exam
}

func (p *fakeProvider) GetExamByID(_ context.Context, examID uuid.UUID) (*model.Exam, error) {
	if p.exam != nil && p.exam.ID == examID {
		return p.exam, nil
	}
	return nil, errors.New("exam not found")
}

func TestManager_StartOrResume_ReturnsSameController(t *testing.T) {
	gw := &fakeGateway{}
	exam := twoQuestionExam("30m")
	m := NewManager(gw, &fakeProvider{exam: exam}, fastConfig(), zerolog.Nop())

	first, err := m.StartOrResume(context.Background(), 7, exam.ID)
	if err != nil {
		t.Fatalf("StartOrResume: %v", err)
	}
	second, err := m.StartOrResume(context.Background(), 7, exam.ID)
	if err != nil {
		t.Fatalf("StartOrResume again: %v", err)
	}
	if first != second {
		t.Fatal("second StartOrResume returned a different controller for the same pair")
	}

	third, err := m.StartOrResume(context.Background(), 8, exam.ID)
	if err != nil {
		t.Fatalf("StartOrResume other user: %v", err)
	}
	if third == first {
		t.Fatal("controllers are shared across users")
	}
}

func TestManager_UnknownExam(t *testing.T) {
	m := NewManager(&fakeGateway{}, &fakeProvider{}, fastConfig(), zerolog.Nop())

	if _, err := m.StartOrResume(context.Background(), 7, uuid.New()); !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("err = %v, want ErrExamNotFound", err)
	}
}

func TestManager_CompletedAttemptPassesThrough(t *testing.T) {
	gw := &fakeGateway{result: &model.Result{Score: 2, Total: 2, Percentage: 100}}
	exam := twoQuestionExam("30m")
	m := NewManager(gw, &fakeProvider{exam: exam}, fastConfig(), zerolog.Nop())

	if _, err := m.StartOrResume(context.Background(), 7, exam.ID); !errors.Is(err, ErrAttemptCompleted) {
		t.Fatalf("err = %v, want ErrAttemptCompleted", err)
	}

	result, err := m.Result(context.Background(), 7, exam.ID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result == nil || result.Percentage != 100 {
		t.Fatalf("result = %+v, want stored result", result)
	}
}

func TestManager_FinishedSessionIsReaped(t *testing.T) {
	gw := &fakeGateway{}
	exam := twoQuestionExam("30m")
	m := NewManager(gw, &fakeProvider{exam: exam}, fastConfig(), zerolog.Nop())

	ctrl, err := m.StartOrResume(context.Background(), 7, exam.ID)
	if err != nil {
		t.Fatalf("StartOrResume: %v", err)
	}
	if _, err := ctrl.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		_, ok := m.Get(7, exam.ID)
		return !ok
	})
}

func TestManager_ShutdownPersistsActiveSessions(t *testing.T) {
	gw := &fakeGateway{}
	exam := twoQuestionExam("30m")
	m := NewManager(gw, &fakeProvider{exam: exam}, fastConfig(), zerolog.Nop())

	ctrl, err := m.StartOrResume(context.Background(), 7, exam.ID)
	if err != nil {
		t.Fatalf("StartOrResume: %v", err)
	}
	if err := ctrl.SubmitAnswer(testQ1.String(), []byte(`"b"`)); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	before := gw.saveCount()
	m.Shutdown(context.Background())

	// Quit saves synchronously, so at least one more write landed.
	if gw.saveCount() < before+1 {
		t.Fatal("no save recorded on shutdown")
	}
	if gw.completeCount() != 0 {
		t.Fatal("shutdown must not finish attempts")
	}
	if ctrl.Active() {
		t.Fatal("controller still active after shutdown")
	}
}
