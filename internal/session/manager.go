package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/falachabt/bacblanc-sub000/internal/metrics"
	"github.com/falachabt/bacblanc-sub000/internal/model"
)

type sessionKey struct {
	userID int
	examID uuid.UUID
}

// Manager owns the active controllers, one per (user, exam) pair. It is the
// in-process half of the single-attempt invariant; the store's partial
// unique index covers concurrent processes.
type Manager struct {
	gw    Gateway
	exams ExamProvider
	log   zerolog.Logger
	cfg   Config

	mu       sync.Mutex
	sessions map[sessionKey]*Controller
}

// NewManager creates a session manager.
func NewManager(gw Gateway, exams ExamProvider, cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		gw:       gw,
		exams:    exams,
		log:      log.With().Str("component", "session_manager").Logger(),
		cfg:      cfg,
		sessions: make(map[sessionKey]*Controller),
	}
}

// StartOrResume returns the running controller for the pair, or starts one,
// resuming persisted progress when it exists. ErrExamNotFound and
// ErrAttemptCompleted pass through to the caller.
func (m *Manager) StartOrResume(ctx context.Context, userID int, examID uuid.UUID) (*Controller, error) {
	key := sessionKey{userID: userID, examID: examID}

	m.mu.Lock()
	if existing, ok := m.sessions[key]; ok && existing.Active() {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	exam, err := m.exams.GetExamByID(ctx, examID)
	if err != nil || exam == nil {
		return nil, ErrExamNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check under the lock: another request may have won the race.
	if existing, ok := m.sessions[key]; ok && existing.Active() {
		return existing, nil
	}

	ctrl, err := Start(ctx, m.gw, userID, exam, m.cfg, m.log)
	if err != nil {
		return nil, err
	}
	m.sessions[key] = ctrl
	metrics.ActiveSessions.Inc()

	go m.reap(key, ctrl)
	return ctrl, nil
}

// reap removes the controller from the registry once its timers stop.
func (m *Manager) reap(key sessionKey, ctrl *Controller) {
	<-ctrl.Done()
	m.mu.Lock()
	if m.sessions[key] == ctrl {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	metrics.ActiveSessions.Dec()
}

// Get returns the running controller for the pair, if any.
func (m *Manager) Get(userID int, examID uuid.UUID) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctrl, ok := m.sessions[sessionKey{userID: userID, examID: examID}]
	if !ok || !ctrl.Active() {
		return nil, false
	}
	return ctrl, true
}

// Result returns the stored result for a completed attempt.
func (m *Manager) Result(ctx context.Context, userID int, examID uuid.UUID) (*model.Result, error) {
	result, err := m.gw.FindCompletedResult(ctx, userID, examID)
	if err != nil {
		return nil, fmt.Errorf("find completed result: %w", err)
	}
	return result, nil
}

// Shutdown quits every active session so progress survives a restart.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	controllers := make([]*Controller, 0, len(m.sessions))
	for _, ctrl := range m.sessions {
		controllers = append(controllers, ctrl)
	}
	m.mu.Unlock()

	for _, ctrl := range controllers {
		if err := ctrl.Quit(ctx); err != nil && err != ErrNotActive {
			m.log.Warn().Err(err).Msg("Quit on shutdown failed")
		}
	}
	if len(controllers) > 0 {
		m.log.Info().Int("count", len(controllers)).Msg("Active sessions persisted for resume")
	}
}
