// Package session sequences one interview run: configuration, question
// delivery, answer evaluation and completion.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/mockinterview/internal/evaluator"
	"github.com/pavelanni/mockinterview/internal/model"
	"github.com/pavelanni/mockinterview/internal/score"
)

// DefaultCallTimeout bounds each evaluation service call.
const DefaultCallTimeout = 30 * time.Second

// Option configures a Machine.
type Option func(*Machine)

// WithCallTimeout sets the per-call timeout. Expiry counts as the service
// being unavailable.
func WithCallTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(m *Machine) { m.observers = append(m.observers, o) }
}

// WithLogger sets the logger used for transitions.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// Machine is the state machine for one session. It is safe for concurrent
// use; the lock is never held during a call to the evaluation service, and
// the phase guard keeps at most one call outstanding.
type Machine struct {
	client  evaluator.Client
	timeout time.Duration
	log     *slog.Logger

	mu           sync.Mutex
	phase        Phase
	role         string
	difficulty   model.Difficulty
	sessionID    string
	questions    []model.Question
	cursor       int
	answers      []model.AnswerRecord
	evaluation   *model.EvaluationResult
	summary      *model.SessionSummary
	localSummary bool
	lastErr      error

	// ticket changes whenever an outstanding call must no longer be applied.
	ticket    uint64
	version   uint64
	closed    bool
	observers []Observer
}

// New creates a machine in the Configuring phase.
func New(client evaluator.Client, opts ...Option) *Machine {
	m := &Machine{
		client:  client,
		timeout: DefaultCallTimeout,
		log:     slog.Default(),
		phase:   PhaseConfiguring,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Subscribe adds an observer and immediately sends it the current snapshot.
func (m *Machine) Subscribe(o Observer) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.observers = append(m.observers, o)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	o.OnSnapshot(snap)
	return nil
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Configure sets the target role and difficulty.
func (m *Machine) Configure(role string, difficulty model.Difficulty) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return fmt.Errorf("%w: target role is required", ErrValidation)
	}
	if !slices.Contains(model.Difficulties, difficulty) {
		return fmt.Errorf("%w: unknown difficulty %q", ErrValidation, difficulty)
	}

	m.mu.Lock()
	if err := m.checkLocked(PhaseConfiguring); err != nil {
		m.mu.Unlock()
		return err
	}
	m.role = role
	m.difficulty = difficulty
	snap, obs := m.commitLocked()
	m.mu.Unlock()

	emit(snap, obs)
	return nil
}

// Start opens the session on the evaluation service and fetches its
// questions. On failure the machine stays in Configuring and nothing is kept.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if err := m.checkLocked(PhaseConfiguring); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.role == "" || m.difficulty == "" {
		m.mu.Unlock()
		return fmt.Errorf("%w: configure role and difficulty first", ErrValidation)
	}
	role, difficulty := m.role, m.difficulty
	ticket := m.beginLocked(PhaseStarting)
	snap, obs := m.commitLocked()
	m.mu.Unlock()
	emit(snap, obs)

	var res evaluator.StartResult
	err := m.call(ctx, func(ctx context.Context) (err error) {
		res, err = m.client.StartSession(ctx, role, difficulty)
		return err
	})
	if err == nil {
		switch {
		case len(res.Questions) == 0:
			err = fmt.Errorf("%w: no questions", evaluator.ErrInvalidResponse)
		case res.SessionID == "":
			err = fmt.Errorf("%w: no session id", evaluator.ErrInvalidResponse)
		}
	}

	m.mu.Lock()
	if m.staleLocked(ticket, PhaseStarting, 0) {
		m.mu.Unlock()
		return ErrDiscarded
	}
	if err != nil {
		m.phase = PhaseConfiguring
		m.lastErr = err
	} else {
		m.sessionID = res.SessionID
		m.questions = slices.Clone(res.Questions)
		m.cursor = 0
		m.answers = make([]model.AnswerRecord, 0, len(res.Questions))
		m.phase = PhaseInProgress
		sessionsTotal.WithLabelValues(outcomeStarted).Inc()
		m.log.Info("session started", "session_id", m.sessionID, "role", role, "difficulty", difficulty, "questions", len(m.questions))
	}
	snap, obs = m.commitLocked()
	m.mu.Unlock()
	emit(snap, obs)
	return err
}

// SubmitAnswer sends the answer to the current question for evaluation.
// Blank answers are rejected without a call. On failure the machine returns
// to InProgress at the same cursor and the answer can be resubmitted.
func (m *Machine) SubmitAnswer(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	m.mu.Lock()
	if err := m.checkLocked(PhaseInProgress); err != nil {
		m.mu.Unlock()
		return err
	}
	if text == "" {
		m.mu.Unlock()
		return fmt.Errorf("%w: answer is empty", ErrValidation)
	}
	cursor := m.cursor
	q := m.questions[cursor]
	role := m.role
	ticket := m.beginLocked(PhaseEvaluating)
	snap, obs := m.commitLocked()
	m.mu.Unlock()
	emit(snap, obs)

	var res model.EvaluationResult
	err := m.call(ctx, func(ctx context.Context) (err error) {
		res, err = m.client.EvaluateAnswer(ctx, evaluator.EvaluateRequest{
			Question:         q,
			Answer:           text,
			ExpectedKeywords: q.ExpectedKeywords,
			Role:             role,
		})
		return err
	})

	m.mu.Lock()
	if m.staleLocked(ticket, PhaseEvaluating, cursor) {
		m.mu.Unlock()
		return ErrDiscarded
	}
	if err != nil {
		m.phase = PhaseInProgress
		m.lastErr = err
	} else {
		category := q.Category
		if category == "" {
			category = model.DefaultCategory
		}
		m.answers = append(m.answers, model.AnswerRecord{
			QuestionIndex: cursor,
			QuestionText:  q.Text,
			AnswerText:    text,
			Category:      category,
			TotalScore:    res.TotalScore,
			Feedback:      slices.Clone(res.Feedback),
		})
		m.evaluation = &res
		m.phase = PhaseAnswerReviewed
		answersTotal.Inc()
	}
	snap, obs = m.commitLocked()
	m.mu.Unlock()
	emit(snap, obs)
	return err
}

// Advance moves to the next question, or completes the session after the
// last one. If completion fails because the service is unavailable, the
// machine returns to AnswerReviewed and Advance retries completion. An
// unusable summary is replaced by one computed from the answers.
func (m *Machine) Advance(ctx context.Context) error {
	m.mu.Lock()
	if err := m.checkLocked(PhaseAnswerReviewed); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.cursor+1 < len(m.questions) {
		m.cursor++
		m.evaluation = nil
		m.lastErr = nil
		m.phase = PhaseInProgress
		snap, obs := m.commitLocked()
		m.mu.Unlock()
		emit(snap, obs)
		return nil
	}

	cursor := m.cursor
	sessionID := m.sessionID
	answers := slices.Clone(m.answers)
	reviewed := m.evaluation
	m.evaluation = nil
	ticket := m.beginLocked(PhaseCompleting)
	snap, obs := m.commitLocked()
	m.mu.Unlock()
	emit(snap, obs)

	var sum model.SessionSummary
	err := m.call(ctx, func(ctx context.Context) (err error) {
		sum, err = m.client.CompleteSession(ctx, sessionID, answers)
		return err
	})

	m.mu.Lock()
	if m.staleLocked(ticket, PhaseCompleting, cursor) {
		m.mu.Unlock()
		return ErrDiscarded
	}
	local := false
	if errors.Is(err, evaluator.ErrInvalidResponse) {
		m.log.Warn("using local summary", "session_id", sessionID, "error", err)
		sum, err, local = score.Summarize(answers), nil, true
	}
	if err != nil {
		m.phase = PhaseAnswerReviewed
		m.evaluation = reviewed
		m.lastErr = err
	} else {
		m.summary = &sum
		m.localSummary = local
		m.phase = PhaseCompleted
		outcome := outcomeCompleted
		if local {
			outcome = outcomeCompletedLocal
		}
		sessionsTotal.WithLabelValues(outcome).Inc()
		m.log.Info("session completed", "session_id", sessionID, "average", sum.AverageScore, "grade", sum.Grade, "local", local)
	}
	snap, obs = m.commitLocked()
	m.mu.Unlock()
	emit(snap, obs)
	return err
}

// Reset discards a completed session and returns to Configuring.
func (m *Machine) Reset() error {
	m.mu.Lock()
	if err := m.checkLocked(PhaseCompleted); err != nil {
		m.mu.Unlock()
		return err
	}
	m.discardLocked()
	snap, obs := m.commitLocked()
	m.mu.Unlock()
	emit(snap, obs)
	return nil
}

// Abandon discards the session in any phase and returns to Configuring.
// An outstanding call is not applied when it returns.
func (m *Machine) Abandon() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.phase != PhaseConfiguring && m.phase != PhaseCompleted {
		sessionsTotal.WithLabelValues(outcomeAbandoned).Inc()
		m.log.Info("session abandoned", "session_id", m.sessionID, "phase", m.phase, "cursor", m.cursor)
	}
	m.discardLocked()
	snap, obs := m.commitLocked()
	m.mu.Unlock()
	emit(snap, obs)
	return nil
}

// Close tears the machine down. Outstanding calls are not applied, observers
// are dropped and every later operation returns ErrClosed.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.phase != PhaseConfiguring && m.phase != PhaseCompleted {
		sessionsTotal.WithLabelValues(outcomeAbandoned).Inc()
	}
	m.closed = true
	m.ticket++
	m.observers = nil
}

func (m *Machine) checkLocked(want Phase) error {
	if m.closed {
		return ErrClosed
	}
	if m.phase != want {
		return fmt.Errorf("%w: %s", ErrInvalidPhase, m.phase)
	}
	return nil
}

// beginLocked enters a busy phase and returns the ticket the response must
// present to be applied.
func (m *Machine) beginLocked(busy Phase) uint64 {
	m.phase = busy
	m.lastErr = nil
	m.ticket++
	return m.ticket
}

func (m *Machine) staleLocked(ticket uint64, phase Phase, cursor int) bool {
	return m.closed || m.ticket != ticket || m.phase != phase || m.cursor != cursor
}

func (m *Machine) discardLocked() {
	m.ticket++
	m.phase = PhaseConfiguring
	m.role = ""
	m.difficulty = ""
	m.sessionID = ""
	m.questions = nil
	m.cursor = 0
	m.answers = nil
	m.evaluation = nil
	m.summary = nil
	m.localSummary = false
	m.lastErr = nil
}

// call runs fn under the call timeout. Errors outside the evaluator taxonomy
// count as the service being unavailable.
func (m *Machine) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := fn(ctx)
	if err == nil || evaluator.IsRetriable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", evaluator.ErrServiceUnavailable, err)
}

func (m *Machine) commitLocked() (Snapshot, []Observer) {
	m.version++
	m.log.Debug("session transition", "session_id", m.sessionID, "phase", m.phase, "cursor", m.cursor, "version", m.version)
	return m.snapshotLocked(), slices.Clone(m.observers)
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		Version:      m.version,
		Phase:        m.phase,
		Role:         m.role,
		Difficulty:   m.difficulty,
		SessionID:    m.sessionID,
		Questions:    slices.Clone(m.questions),
		Cursor:       m.cursor,
		Answers:      slices.Clone(m.answers),
		LocalSummary: m.localSummary,
		Err:          m.lastErr,
	}
	if m.evaluation != nil {
		ev := *m.evaluation
		ev.Feedback = slices.Clone(ev.Feedback)
		s.Evaluation = &ev
	}
	if m.summary != nil {
		sum := *m.summary
		sum.StrongAreas = slices.Clone(sum.StrongAreas)
		sum.WeakAreas = slices.Clone(sum.WeakAreas)
		s.Summary = &sum
	}
	return s
}

func emit(s Snapshot, observers []Observer) {
	for _, o := range observers {
		o.OnSnapshot(s)
	}
}
