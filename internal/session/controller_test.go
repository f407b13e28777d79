package session

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/falachabt/bacblanc-sub000/internal/model"
	"github.com/falachabt/bacblanc-sub000/internal/scoring"
)

var (
	testExamID = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	testQ1     = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testQ2     = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

// fakeGateway is an in-memory Gateway with switchable failure modes.
type fakeGateway struct {
	mu        sync.Mutex
	attempt   *model.Attempt
	result    *model.Result
	answers   model.AnswerMap
	saves     int
	completes int

	failLoad bool
	failSave bool
}

func (g *fakeGateway) FindIncompleteAttempt(_ context.Context, _ int, _ uuid.UUID) (*model.Attempt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failLoad {
		return nil, errors.New("store unavailable")
	}
	if g.attempt == nil || g.attempt.Completed() {
		return nil, nil
	}
	return g.attempt, nil
}

func (g *fakeGateway) CreateAttempt(_ context.Context, userID int, examID uuid.UUID, order []string) (*model.Attempt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempt = &model.Attempt{
		ID:            uuid.New(),
		UserID:        userID,
		ExamID:        examID,
		QuestionOrder: order,
		Answers:       model.AnswerMap{},
		StartedAt:     time.Now(),
	}
	return g.attempt, nil
}

func (g *fakeGateway) SaveProgress(_ context.Context, _ int, _ uuid.UUID, p model.Progress) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSave {
		return errors.New("store unavailable")
	}
	g.saves++
	if g.attempt != nil {
		g.attempt.Answers = p.Answers
		g.attempt.Flags = p.Flags
		g.attempt.CurrentIndex = p.CurrentIndex
		g.attempt.TimeLeft = p.TimeLeft
		g.attempt.SavedAt = p.SavedAt
	}
	return nil
}

func (g *fakeGateway) CompleteAttempt(_ context.Context, _ int, _ uuid.UUID, result model.Result, answers model.AnswerMap) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completes++
	g.result = &result
	g.answers = answers
	if g.attempt != nil {
		now := time.Now()
		g.attempt.CompletedAt = &now
		g.attempt.Result = &result
	}
	return nil
}

func (g *fakeGateway) FindCompletedResult(_ context.Context, _ int, _ uuid.UUID) (*model.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result, nil
}

func (g *fakeGateway) saveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saves
}

func (g *fakeGateway) completeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.completes
}

func twoQuestionExam(duration string) *model.Exam {
	return &model.Exam{
		ID:       testExamID,
		Title:    "Bac blanc — Maths",
		Duration: duration,
		Status:   model.ExamStatusPublished,
		Questions: []model.Question{
			{
				ID:            testQ1,
				Type:          model.QuestionTypeSingle,
				Points:        1,
				Options:       []model.Option{{ID: "a", Text: "2"}, {ID: "b", Text: "4"}},
				CorrectAnswer: json.RawMessage(`"b"`),
			},
			{
				ID:            testQ2,
				Type:          model.QuestionTypeText,
				Points:        1,
				CorrectAnswer: json.RawMessage(`"pi"`),
			},
		},
	}
}

// fastConfig keeps timers far enough apart that tests control the sequence.
func fastConfig() Config {
	return Config{TickInterval: 5 * time.Millisecond, AutosaveInterval: 20 * time.Millisecond}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFinish_ScoresCurrentAnswers(t *testing.T) {
	gw := &fakeGateway{}
	exam := twoQuestionExam("1h")

	ctrl, err := Start(context.Background(), gw, 7, exam, fastConfig(), testLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := ctrl.SubmitAnswer(testQ1.String(), []byte(`"b"`)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	result, err := ctrl.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	if result.Score != 1 || result.Total != 2 {
		t.Fatalf("score/total = %v/%v, want 1/2", result.Score, result.Total)
	}
	if result.CorrectCount != 1 || result.UnansweredCount != 1 {
		t.Fatalf("correct/unanswered = %d/%d, want 1/1", result.CorrectCount, result.UnansweredCount)
	}
	if result.Percentage != 50 {
		t.Fatalf("percentage = %d, want 50", result.Percentage)
	}
	if gw.completeCount() != 1 {
		t.Fatalf("completes = %d, want 1", gw.completeCount())
	}
}

func TestFinish_Idempotent(t *testing.T) {
	gw := &fakeGateway{}
	ctrl, err := Start(context.Background(), gw, 7, twoQuestionExam("1h"), fastConfig(), testLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := ctrl.Finish()
	if err != nil {
		t.Fatalf("first finish: %v", err)
	}
	second, err := ctrl.Finish()
	if err != nil {
		t.Fatalf("second finish: %v", err)
	}

	if first != second {
		t.Fatal("second finish must return the same result, not rescore")
	}
	if gw.completeCount() != 1 {
		t.Fatalf("completes = %d, want exactly 1", gw.completeCount())
	}
	if err := ctrl.SubmitAnswer(testQ2.String(), []byte(`"pi"`)); !errors.Is(err, ErrNotActive) {
		t.Fatalf("submit after finish = %v, want ErrNotActive", err)
	}
}

func TestTimerExpiry_AutonomousFinish(t *testing.T) {
	gw := &fakeGateway{}
	// Thirty seconds of countdown at 5 ms per tick.
	ctrl, err := Start(context.Background(), gw, 7, twoQuestionExam("30"), fastConfig(), testLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := ctrl.SubmitAnswer(testQ1.String(), []byte(`"b"`)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-ctrl.Done():
	case <-time.After(time.Second):
		t.Fatal("controller did not finish on expiry")
	}

	view := ctrl.View()
	if view.State != StateFinished {
		t.Fatalf("state = %s, want FINISHED", view.State)
	}
	if view.Result == nil {
		t.Fatal("expiry must produce a result")
	}

	// Expiry must be equivalent to an explicit finish over the same answers.
	want := scoring.Score(twoQuestionExam("30"), model.AnswerMap{
		testQ1.String(): json.RawMessage(`"b"`),
	})
	got := *view.Result
	got.CompletedAt = want.CompletedAt
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expiry result %+v, want %+v", got, want)
	}
	if gw.completeCount() != 1 {
		t.Fatalf("completes = %d, want 1", gw.completeCount())
	}
}

func TestResume_RestoresPersistedState(t *testing.T) {
	gw := &fakeGateway{
		attempt: &model.Attempt{
			ID:            uuid.New(),
			UserID:        7,
			ExamID:        testExamID,
			QuestionOrder: []string{testQ2.String(), testQ1.String()},
			Answers:       model.AnswerMap{testQ1.String(): json.RawMessage(`"a"`)},
			Flags:         []int{1},
			CurrentIndex:  1,
			TimeLeft:      120,
			StartedAt:     time.Now().Add(-time.Hour),
		},
	}

	ctrl, err := Start(context.Background(), gw, 7, twoQuestionExam("1h"), fastConfig(), testLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ctrl.Quit(context.Background())

	view := ctrl.View()
	if string(view.Answers[testQ1.String()]) != `"a"` {
		t.Fatalf("answers not resumed: %v", view.Answers)
	}
	if view.TimeLeft > 120 || view.TimeLeft < 110 {
		t.Fatalf("time_left = %d, want the stored 120", view.TimeLeft)
	}
	if view.CurrentIndex != 1 {
		t.Fatalf("current_index = %d, want 1", view.CurrentIndex)
	}
	if !reflect.DeepEqual(view.Flags, []int{1}) {
		t.Fatalf("flags = %v, want [1]", view.Flags)
	}
	if !reflect.DeepEqual(view.QuestionOrder, []string{testQ2.String(), testQ1.String()}) {
		t.Fatalf("stored question order not replayed: %v", view.QuestionOrder)
	}
}

func TestResume_NonPositiveTimerRebuilt(t *testing.T) {
	gw := &fakeGateway{
		attempt: &model.Attempt{
			ID:        uuid.New(),
			UserID:    7,
			ExamID:    testExamID,
			Answers:   model.AnswerMap{},
			TimeLeft:  0, // must never resume with zero time
			StartedAt: time.Now(),
		},
	}

	ctrl, err := Start(context.Background(), gw, 7, twoQuestionExam("45m"), fastConfig(), testLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ctrl.Quit(context.Background())

	if view := ctrl.View(); view.TimeLeft < 2690 || view.TimeLeft > 2700 {
		t.Fatalf("time_left = %d, want full 45m duration", view.TimeLeft)
	}
}

func TestStart_CompletedAttemptReported(t *testing.T) {
	gw := &fakeGateway{result: &model.Result{Score: 2, Total: 2, Percentage: 100}}

	_, err := Start(context.Background(), gw, 7, twoQuestionExam("1h"), fastConfig(), testLogger())
	if !errors.Is(err, ErrAttemptCompleted) {
		t.Fatalf("err = %v, want ErrAttemptCompleted", err)
	}
}

func TestStart_LoadFailureFallsBackToFresh(t *testing.T) {
	gw := &fakeGateway{failLoad: true}

	ctrl, err := Start(context.Background(), gw, 7, twoQuestionExam("1h"), fastConfig(), testLogger())
	if err != nil {
		t.Fatalf("load failure must not block start: %v", err)
	}
	defer ctrl.Quit(context.Background())

	if view := ctrl.View(); len(view.Answers) != 0 || view.TimeLeft > 3600 || view.TimeLeft < 3590 {
		t.Fatalf("expected fresh state, got %+v", view)
	}
}

func TestSubmitAnswer_SaveFailureSwallowed(t *testing.T) {
	gw := &fakeGateway{failSave: true}

	ctrl, err := Start(context.Background(), gw, 7, twoQuestionExam("1h"), fastConfig(), testLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ctrl.Quit(context.Background())

	if err := ctrl.SubmitAnswer(testQ1.String(), []byte(`"b"`)); err != nil {
		t.Fatalf("submit must not surface save failure: %v", err)
	}
	if view := ctrl.View(); string(view.Answers[testQ1.String()]) != `"b"` {
		t.Fatal("in-memory state must stay authoritative")
	}
}

func TestGoTo_BoundsChecked(t *testing.T) {
	gw := &fakeGateway{}
	ctrl, err := Start(context.Background(), gw, 7, twoQuestionExam("1h"), fastConfig(), testLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ctrl.Quit(context.Background())

	if err := ctrl.GoTo(1); err != nil {
		t.Fatalf("goto 1: %v", err)
	}
	if err := ctrl.GoTo(5); err != nil {
		t.Fatalf("out-of-range goto must be a no-op, got %v", err)
	}
	if err := ctrl.GoTo(-1); err != nil {
		t.Fatalf("negative goto must be a no-op, got %v", err)
	}
	if view := ctrl.View(); view.CurrentIndex != 1 {
		t.Fatalf("current_index = %d, want 1", view.CurrentIndex)
	}
}

func TestToggleFlag_AddsAndRemoves(t *testing.T) {
	gw := &fakeGateway{}
	ctrl, err := Start(context.Background(), gw, 7, twoQuestionExam("1h"), fastConfig(), testLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ctrl.Quit(context.Background())

	ctrl.ToggleFlag(0)
	ctrl.ToggleFlag(1)
	ctrl.ToggleFlag(0)
	ctrl.ToggleFlag(9) // out of range, ignored

	if view := ctrl.View(); !reflect.DeepEqual(view.Flags, []int{1}) {
		t.Fatalf("flags = %v, want [1]", view.Flags)
	}
}

func TestQuit_PersistsWithoutFinishing(t *testing.T) {
	gw := &fakeGateway{}
	ctrl, err := Start(context.Background(), gw, 7, twoQuestionExam("1h"), fastConfig(), testLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := ctrl.SubmitAnswer(testQ1.String(), []byte(`"b"`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, time.Second, func() bool { return gw.saveCount() > 0 })

	if err := ctrl.Quit(context.Background()); err != nil {
		t.Fatalf("quit: %v", err)
	}

	if gw.completeCount() != 0 {
		t.Fatal("quit must not finalize the attempt")
	}
	gw.mu.Lock()
	stored := gw.attempt
	gw.mu.Unlock()
	if stored.Completed() {
		t.Fatal("attempt must stay resumable after quit")
	}
	if string(stored.Answers[testQ1.String()]) != `"b"` {
		t.Fatalf("progress not persisted on quit: %v", stored.Answers)
	}
}

func TestQuit_RacingTickDoesNotEmitOnClosedStream(t *testing.T) {
	// Quit closes the event stream while leaving the state Active so the
	// attempt stays resumable. A tick that already won its select race
	// against done must see the stopped flag and bail instead of sending
	// on the closed channel, which would panic the timer goroutine. A
	// microsecond tick across many start/quit cycles makes that window
	// essentially certain to be hit.
	gw := &fakeGateway{}
	cfg := Config{TickInterval: time.Microsecond, AutosaveInterval: time.Hour}

	for i := 0; i < 500; i++ {
		ctrl, err := Start(context.Background(), gw, 7, twoQuestionExam("1h"), cfg, testLogger())
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if err := ctrl.Quit(context.Background()); err != nil {
			t.Fatalf("quit %d: %v", i, err)
		}
		<-ctrl.Done()
	}
}

func TestAutosave_RunsWhileActiveAndStopsAfterFinish(t *testing.T) {
	gw := &fakeGateway{}
	ctrl, err := Start(context.Background(), gw, 7, twoQuestionExam("1h"), fastConfig(), testLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, time.Second, func() bool { return gw.saveCount() >= 2 })

	if _, err := ctrl.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	after := gw.saveCount()
	time.Sleep(60 * time.Millisecond)
	if gw.saveCount() != after {
		t.Fatal("autosave fired after the Finished transition")
	}
}

func TestEvents_LowTimeWarningOnce(t *testing.T) {
	gw := &fakeGateway{}
	// 302 seconds: the countdown crosses the 300 s threshold immediately.
	ctrl, err := Start(context.Background(), gw, 7, twoQuestionExam("302"), fastConfig(), testLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer ctrl.Quit(context.Background())

	warnings := 0
	deadline := time.After(time.Second)
	for warnings == 0 {
		select {
		case ev, ok := <-ctrl.Events():
			if !ok {
				t.Fatal("event stream closed before warning")
			}
			if ev.Type == EventLowTime {
				warnings++
				if ev.TimeLeft != LowTimeThresholdSeconds {
					t.Fatalf("warning at %d s, want %d", ev.TimeLeft, LowTimeThresholdSeconds)
				}
			}
		case <-deadline:
			t.Fatal("no low-time warning emitted")
		}
	}
}
