// Package session implements the timed exam attempt state machine: it
// resumes or starts an attempt, runs the countdown, autosaves progress,
// records answers and flags, and finalizes the attempt through the scoring
// engine on submission or timer expiry.
package session

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/falachabt/bacblanc-sub000/internal/metrics"
	"github.com/falachabt/bacblanc-sub000/internal/model"
	"github.com/falachabt/bacblanc-sub000/internal/scoring"
	"github.com/falachabt/bacblanc-sub000/internal/timeutil"
)

// State is the controller lifecycle: Loading → Active → Finished.
// Finished is terminal; there are no reverse transitions.
type State string

const (
	StateLoading  State = "LOADING"
	StateActive   State = "ACTIVE"
	StateFinished State = "FINISHED"
)

// Domain errors surfaced to callers.
var (
	// ErrAttemptCompleted is a distinct condition, not a failure: the caller
	// should show the stored result instead of starting a new attempt.
	ErrAttemptCompleted = errors.New("attempt already completed")
	ErrExamNotFound     = errors.New("exam not found")
	ErrNotActive        = errors.New("session is not active")
)

const (
	// LowTimeThresholdSeconds is the remaining time at which the one-time
	// low-time warning fires.
	LowTimeThresholdSeconds = 300

	defaultTickInterval     = time.Second
	defaultAutosaveInterval = 5 * time.Second
	persistTimeout          = 3 * time.Second
)

// Config tunes the controller's timers. Zero values take the production
// defaults (1 s tick, 5 s autosave); tests inject shorter intervals.
type Config struct {
	TickInterval     time.Duration
	AutosaveInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.AutosaveInterval <= 0 {
		c.AutosaveInterval = defaultAutosaveInterval
	}
	return c
}

// EventType tags events pushed to timer stream subscribers.
type EventType string

const (
	EventTick     EventType = "tick"
	EventLowTime  EventType = "low_time"
	EventFinished EventType = "finished"
)

// Event is a countdown notification for the WebSocket stream.
type Event struct {
	Type     EventType     `json:"event"`
	TimeLeft int           `json:"time_left"`
	Clock    string        `json:"clock"`
	Result   *model.Result `json:"result,omitempty"`
}

// Controller orchestrates a single timed attempt for one (user, exam) pair.
// All mutation happens under one mutex; the countdown and autosave share a
// single goroutine, so neither can fire after the Finished transition.
type Controller struct {
	gw  Gateway
	log zerolog.Logger
	cfg Config

	userID int
	exam   *model.Exam
	order  []string

	mu            sync.Mutex
	state         State
	answers       model.AnswerMap
	flags         map[int]struct{}
	currentIndex  int
	timeLeft      int
	startedAt     time.Time
	lowTimeWarned bool
	result        *model.Result
	stopped       bool

	done   chan struct{}
	events chan Event
}

// Start resumes the open attempt for (user, exam) or creates a fresh one,
// then begins the countdown and autosave loop.
//
// An already-completed attempt yields ErrAttemptCompleted. A failed load
// falls back to a fresh in-memory attempt rather than blocking the start;
// a failed create is logged and the session runs in-memory only.
func Start(ctx context.Context, gw Gateway, userID int, exam *model.Exam, cfg Config, log zerolog.Logger) (*Controller, error) {
	c := &Controller{
		gw:  gw,
		log: log.With().Int("user_id", userID).Str("exam_id", exam.ID.String()).Logger(),
		cfg: cfg.withDefaults(),

		userID:  userID,
		exam:    exam,
		state:   StateLoading,
		answers: model.AnswerMap{},
		flags:   map[int]struct{}{},
		done:    make(chan struct{}),
		events:  make(chan Event, 16),
	}

	if result, err := gw.FindCompletedResult(ctx, userID, exam.ID); err == nil && result != nil {
		return nil, ErrAttemptCompleted
	}

	attempt, err := gw.FindIncompleteAttempt(ctx, userID, exam.ID)
	if err != nil {
		// Persistence down is not fatal: treat as a new attempt.
		c.log.Warn().Err(err).Msg("Load attempt failed, starting fresh")
		attempt = nil
	}

	if attempt != nil {
		c.resume(attempt)
	} else {
		c.initialize(ctx)
	}

	c.state = StateActive
	go c.run()

	c.log.Info().
		Int("time_left", c.timeLeft).
		Int("answers", len(c.answers)).
		Msg("Session started")
	return c, nil
}

// resume restores state from a stored incomplete attempt. A missing or
// non-positive stored timer is rebuilt from the exam duration: a session
// must never silently run with zero time.
func (c *Controller) resume(a *model.Attempt) {
	c.order = a.QuestionOrder
	if len(c.order) == 0 {
		c.order = naturalOrder(c.exam)
	}
	c.answers = a.Answers.Clone()
	for _, idx := range a.Flags {
		c.flags[idx] = struct{}{}
	}
	c.currentIndex = a.CurrentIndex
	if c.currentIndex < 0 || c.currentIndex >= len(c.order) {
		c.currentIndex = 0
	}
	c.timeLeft = a.TimeLeft
	if c.timeLeft <= 0 {
		c.timeLeft = timeutil.ParseDuration(c.exam.Duration)
	}
	c.startedAt = a.StartedAt
}

// initialize sets up a fresh attempt and records it through the gateway,
// freezing the question order for every future resume.
func (c *Controller) initialize(ctx context.Context) {
	c.order = naturalOrder(c.exam)
	if c.exam.Shuffle {
		rand.Shuffle(len(c.order), func(i, j int) {
			c.order[i], c.order[j] = c.order[j], c.order[i]
		})
	}
	c.timeLeft = timeutil.ParseDuration(c.exam.Duration)
	c.startedAt = time.Now()

	if _, err := c.gw.CreateAttempt(ctx, c.userID, c.exam.ID, c.order); err != nil {
		c.log.Warn().Err(err).Msg("Create attempt failed, continuing in-memory")
	}
}

func naturalOrder(exam *model.Exam) []string {
	order := make([]string, len(exam.Questions))
	for i := range exam.Questions {
		order[i] = exam.Questions[i].ID.String()
	}
	return order
}

// run is the single timer goroutine: one ticker for the countdown, one for
// the autosave. Both stop together when the loop exits, which only happens
// after the state is terminal or the controller was stopped.
func (c *Controller) run() {
	tick := time.NewTicker(c.cfg.TickInterval)
	defer tick.Stop()
	save := time.NewTicker(c.cfg.AutosaveInterval)
	defer save.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-tick.C:
			if c.tick() {
				return
			}
		case <-save.C:
			c.autosave()
		}
	}
}

// tick decrements the countdown. Returns true when the loop must exit.
func (c *Controller) tick() bool {
	c.mu.Lock()
	// activeLocked, not a bare state check: Quit stops the session while
	// leaving state Active so the attempt stays resumable, and a tick that
	// won its select race against done must not emit on the closed stream.
	if !c.activeLocked() {
		c.mu.Unlock()
		return true
	}

	c.timeLeft--
	if c.timeLeft < 0 {
		c.timeLeft = 0
	}
	c.emitLocked(Event{Type: EventTick, TimeLeft: c.timeLeft, Clock: timeutil.FormatSeconds(c.timeLeft)})

	if c.timeLeft == LowTimeThresholdSeconds && !c.lowTimeWarned {
		c.lowTimeWarned = true
		c.emitLocked(Event{Type: EventLowTime, TimeLeft: c.timeLeft, Clock: timeutil.FormatSeconds(c.timeLeft)})
		c.log.Info().Msg("Low time warning")
	}

	if c.timeLeft == 0 {
		// Timer expiry scores the current in-memory answers, which are at
		// least as fresh as the last autosave.
		c.finishLocked("timer_expiry")
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()
	return false
}

// autosave persists the full snapshot. Failures are logged and swallowed:
// in-memory state stays authoritative and the next tick retries.
func (c *Controller) autosave() {
	c.mu.Lock()
	if !c.activeLocked() {
		c.mu.Unlock()
		return
	}
	snapshot := c.progressLocked()
	c.mu.Unlock()

	c.persist(snapshot)
}

func (c *Controller) persist(snapshot model.Progress) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.gw.SaveProgress(ctx, c.userID, c.exam.ID, snapshot); err != nil {
		c.log.Warn().Err(err).Msg("Save progress failed, keeping in-memory state")
	}
}

// progressLocked builds a snapshot of the current state. Caller holds mu.
func (c *Controller) progressLocked() model.Progress {
	flags := make([]int, 0, len(c.flags))
	for idx := range c.flags {
		flags = append(flags, idx)
	}
	sort.Ints(flags)
	return model.Progress{
		Answers:      c.answers.Clone(),
		Flags:        flags,
		CurrentIndex: c.currentIndex,
		TimeLeft:     c.timeLeft,
		SavedAt:      time.Now(),
	}
}

// SubmitAnswer merges an answer into the map (last-write-wins per question)
// and triggers an immediate fire-and-forget persistence write. The value's
// shape is not validated here; that is the scoring boundary's concern.
func (c *Controller) SubmitAnswer(questionID string, value []byte) error {
	c.mu.Lock()
	if !c.activeLocked() {
		c.mu.Unlock()
		return ErrNotActive
	}
	raw := make([]byte, len(value))
	copy(raw, value)
	c.answers[questionID] = raw
	snapshot := c.progressLocked()
	c.mu.Unlock()

	go c.persist(snapshot)
	return nil
}

// ToggleFlag adds or removes a review marker on a question index. Flags
// have no scoring effect and ride along with the next state write.
func (c *Controller) ToggleFlag(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked() {
		return ErrNotActive
	}
	if index < 0 || index >= len(c.order) {
		return nil
	}
	if _, ok := c.flags[index]; ok {
		delete(c.flags, index)
	} else {
		c.flags[index] = struct{}{}
	}
	return nil
}

// GoTo moves the current question pointer. Out-of-range requests are
// no-ops, not errors.
func (c *Controller) GoTo(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked() {
		return ErrNotActive
	}
	if index < 0 || index >= len(c.order) {
		return nil
	}
	c.currentIndex = index
	return nil
}

// Finish finalizes the attempt on user request. Calling it again, or after
// the timer already expired, is an idempotent no-op returning the same
// result.
func (c *Controller) Finish() (*model.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateFinished {
		return c.result, nil
	}
	if !c.activeLocked() {
		return nil, ErrNotActive
	}
	c.finishLocked("user_submit")
	return c.result, nil
}

// finishLocked converges user submission and timer expiry: score, persist,
// enter the terminal state and release the timer goroutine. Caller holds mu.
func (c *Controller) finishLocked(cause string) {
	result := scoring.Score(c.exam, c.answers)
	c.result = &result
	c.state = StateFinished
	c.stopLocked()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.gw.CompleteAttempt(ctx, c.userID, c.exam.ID, result, c.answers.Clone()); err != nil {
		c.log.Error().Err(err).Msg("Complete attempt persistence failed")
	}

	c.emitLocked(Event{
		Type:     EventFinished,
		TimeLeft: c.timeLeft,
		Clock:    timeutil.FormatSeconds(c.timeLeft),
		Result:   c.result,
	})
	close(c.events)

	metrics.AttemptsCompleted.WithLabelValues(cause).Inc()
	c.log.Info().
		Str("cause", cause).
		Float64("score", result.Score).
		Int("percentage", result.Percentage).
		Msg("Session finished")
}

// Quit persists the current state and halts the timers without entering
// Finished, so the attempt can be resumed later.
func (c *Controller) Quit(ctx context.Context) error {
	c.mu.Lock()
	if !c.activeLocked() {
		c.mu.Unlock()
		return ErrNotActive
	}
	snapshot := c.progressLocked()
	c.stopLocked()
	close(c.events)
	c.mu.Unlock()

	if err := c.gw.SaveProgress(ctx, c.userID, c.exam.ID, snapshot); err != nil {
		c.log.Warn().Err(err).Msg("Save on quit failed")
	}
	c.log.Info().Int("time_left", snapshot.TimeLeft).Msg("Session quit, resumable")
	return nil
}

// stopLocked releases the timer goroutine exactly once. Caller holds mu.
func (c *Controller) stopLocked() {
	if !c.stopped {
		c.stopped = true
		close(c.done)
	}
}

// activeLocked reports whether operations may mutate the session. A quit
// controller is dead even though its state never reached Finished.
func (c *Controller) activeLocked() bool {
	return c.state == StateActive && !c.stopped
}

func (c *Controller) emitLocked(ev Event) {
	select {
	case c.events <- ev:
	default:
		// Slow subscriber: drop rather than stall the countdown.
	}
}

// Events exposes the countdown stream. The channel closes when the session
// finishes or quits.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Done closes when the timer goroutine has been released.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// View is a read-only snapshot served to the UI on load and reload.
type View struct {
	State         State           `json:"state"`
	ExamID        uuid.UUID       `json:"exam_id"`
	QuestionOrder []string        `json:"question_order"`
	Answers       model.AnswerMap `json:"answers"`
	Flags         []int           `json:"flags"`
	CurrentIndex  int             `json:"current_index"`
	TimeLeft      int             `json:"time_left"`
	Clock         string          `json:"clock"`
	StartedAt     time.Time       `json:"started_at"`
	Result        *model.Result   `json:"result,omitempty"`
}

// View returns the current session state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	flags := make([]int, 0, len(c.flags))
	for idx := range c.flags {
		flags = append(flags, idx)
	}
	sort.Ints(flags)
	return View{
		State:         c.state,
		ExamID:        c.exam.ID,
		QuestionOrder: append([]string(nil), c.order...),
		Answers:       c.answers.Clone(),
		Flags:         flags,
		CurrentIndex:  c.currentIndex,
		TimeLeft:      c.timeLeft,
		Clock:         timeutil.FormatSeconds(c.timeLeft),
		StartedAt:     c.startedAt,
		Result:        c.result,
	}
}

// Paper returns the student-facing exam payload in this attempt's order.
func (c *Controller) Paper() model.ExamPaper {
	c.mu.Lock()
	order := append([]string(nil), c.order...)
	c.mu.Unlock()
	return c.exam.PaperFor(order)
}

// Active reports whether the controller is still running its timers.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateActive && !c.stopped
}
