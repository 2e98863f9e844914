package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pavelanni/mockinterview/internal/evaluator"
	"github.com/pavelanni/mockinterview/internal/model"
	"github.com/pavelanni/mockinterview/internal/score"
)

type fakeClient struct {
	start    func(ctx context.Context, role string, d model.Difficulty) (evaluator.StartResult, error)
	evaluate func(ctx context.Context, req evaluator.EvaluateRequest) (model.EvaluationResult, error)
	complete func(ctx context.Context, id string, answers []model.AnswerRecord) (model.SessionSummary, error)

	startCalls    atomic.Int32
	evaluateCalls atomic.Int32
	completeCalls atomic.Int32

	mu        sync.Mutex
	completed [][]model.AnswerRecord
}

func (f *fakeClient) StartSession(ctx context.Context, role string, d model.Difficulty) (evaluator.StartResult, error) {
	f.startCalls.Add(1)
	return f.start(ctx, role, d)
}

func (f *fakeClient) EvaluateAnswer(ctx context.Context, req evaluator.EvaluateRequest) (model.EvaluationResult, error) {
	f.evaluateCalls.Add(1)
	return f.evaluate(ctx, req)
}

func (f *fakeClient) CompleteSession(ctx context.Context, id string, answers []model.AnswerRecord) (model.SessionSummary, error) {
	f.completeCalls.Add(1)
	f.mu.Lock()
	f.completed = append(f.completed, answers)
	f.mu.Unlock()
	return f.complete(ctx, id, answers)
}

// newFake serves questions in the given categories and scores each answer
// with the matching entry of scores.
func newFake(categories []string, scores []int) *fakeClient {
	questions := make([]model.Question, len(categories))
	byText := make(map[string]int, len(categories))
	for i, c := range categories {
		text := fmt.Sprintf("Question %d", i+1)
		questions[i] = model.Question{ID: fmt.Sprint(i + 1), Text: text, Category: c, Difficulty: model.DifficultyMedium}
		byText[text] = scores[i]
	}
	return &fakeClient{
		start: func(context.Context, string, model.Difficulty) (evaluator.StartResult, error) {
			return evaluator.StartResult{SessionID: "INT_1", Questions: questions}, nil
		},
		evaluate: func(_ context.Context, req evaluator.EvaluateRequest) (model.EvaluationResult, error) {
			s := byText[req.Question.Text]
			perf, emoji := score.Rate(s)
			return model.EvaluationResult{TotalScore: s, Performance: perf, Emoji: emoji, Feedback: []string{"ok"}}, nil
		},
		complete: func(_ context.Context, _ string, answers []model.AnswerRecord) (model.SessionSummary, error) {
			return score.Summarize(answers), nil
		},
	}
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) OnSnapshot(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Phase, 0, len(r.snaps))
	for _, s := range r.snaps {
		out = append(out, s.Phase)
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func startedMachine(t *testing.T, f *fakeClient, opts ...Option) *Machine {
	t.Helper()
	m := New(f, opts...)
	require.NoError(t, m.Configure("Data Scientist", model.DifficultyMixed))
	require.NoError(t, m.Start(context.Background()))
	require.Equal(t, PhaseInProgress, m.Snapshot().Phase)
	return m
}

// blockEvaluate makes the fake's evaluate wait for release. It returns a
// channel that receives once per call entering evaluate.
func blockEvaluate(f *fakeClient, release <-chan struct{}) <-chan struct{} {
	entered := make(chan struct{}, 4)
	f.evaluate = func(ctx context.Context, req evaluator.EvaluateRequest) (model.EvaluationResult, error) {
		entered <- struct{}{}
		select {
		case <-release:
			return model.EvaluationResult{TotalScore: 99}, nil
		case <-ctx.Done():
			return model.EvaluationResult{}, ctx.Err()
		}
	}
	return entered
}

func TestFullSessionSingleCategory(t *testing.T) {
	f := newFake([]string{"Technical", "Technical", "Technical", "Technical", "Technical"}, []int{80, 60, 90, 40, 100})
	rec := &recorder{}
	m := New(f, WithObserver(rec))

	require.NoError(t, m.Configure("Data Scientist", model.DifficultyMixed))
	require.NoError(t, m.Start(context.Background()))
	require.Len(t, m.Snapshot().Questions, 5)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.SubmitAnswer(context.Background(), fmt.Sprintf("answer %d", i)))
		snap := m.Snapshot()
		require.Equal(t, PhaseAnswerReviewed, snap.Phase)
		require.NotNil(t, snap.Evaluation)
		require.NoError(t, m.Advance(context.Background()))
	}

	snap := m.Snapshot()
	require.Equal(t, PhaseCompleted, snap.Phase)
	require.NotNil(t, snap.Summary)
	require.Nil(t, snap.Evaluation)
	require.False(t, snap.LocalSummary)
	require.Equal(t, 74, snap.Summary.AverageScore)
	require.Equal(t, model.GradeB, snap.Summary.Grade)
	require.Empty(t, snap.Summary.StrongAreas)
	require.Empty(t, snap.Summary.WeakAreas)

	require.Len(t, snap.Answers, len(snap.Questions))
	for i, a := range snap.Answers {
		require.Equal(t, i, a.QuestionIndex)
		require.Equal(t, snap.Questions[i].Text, a.QuestionText)
	}

	require.EqualValues(t, 1, f.completeCalls.Load())
	require.Equal(t, snap.Answers, f.completed[0])

	// Versions strictly increase across notifications.
	rec.mu.Lock()
	for i := 1; i < len(rec.snaps); i++ {
		require.Greater(t, rec.snaps[i].Version, rec.snaps[i-1].Version)
	}
	rec.mu.Unlock()

	require.Equal(t, []Phase{
		PhaseConfiguring, PhaseStarting, PhaseInProgress,
		PhaseEvaluating, PhaseAnswerReviewed, PhaseInProgress,
		PhaseEvaluating, PhaseAnswerReviewed, PhaseInProgress,
		PhaseEvaluating, PhaseAnswerReviewed, PhaseInProgress,
		PhaseEvaluating, PhaseAnswerReviewed, PhaseInProgress,
		PhaseEvaluating, PhaseAnswerReviewed, PhaseCompleting, PhaseCompleted,
	}, rec.phases())
}

func TestFullSessionTwoCategories(t *testing.T) {
	f := newFake([]string{"Technical", "Behavioral", "Technical"}, []int{90, 50, 70})
	m := startedMachine(t, f)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.SubmitAnswer(context.Background(), "answer"))
		require.NoError(t, m.Advance(context.Background()))
	}
	sum := m.Snapshot().Summary
	require.NotNil(t, sum)
	require.Equal(t, []string{"Technical"}, sum.StrongAreas)
	require.Equal(t, []string{"Behavioral"}, sum.WeakAreas)
}

func TestConfigureValidation(t *testing.T) {
	f := newFake([]string{"Technical"}, []int{50})
	m := New(f)

	require.ErrorIs(t, m.Start(context.Background()), ErrValidation)
	require.ErrorIs(t, m.Configure("   ", model.DifficultyEasy), ErrValidation)
	require.ErrorIs(t, m.Configure("AI Engineer", "Impossible"), ErrValidation)
	require.EqualValues(t, 0, f.startCalls.Load())
	require.Equal(t, PhaseConfiguring, m.Snapshot().Phase)

	require.NoError(t, m.Configure("  AI Engineer ", model.DifficultyHard))
	snap := m.Snapshot()
	require.Equal(t, "AI Engineer", snap.Role)
	require.Equal(t, model.DifficultyHard, snap.Difficulty)
	require.Equal(t, []Action{ActionConfigure, ActionStart}, snap.Actions())

	require.NoError(t, m.Start(context.Background()))
	require.ErrorIs(t, m.Configure("Data Scientist", model.DifficultyEasy), ErrInvalidPhase)
	require.ErrorIs(t, m.Start(context.Background()), ErrInvalidPhase)
}

func TestStartFailureStaysConfiguring(t *testing.T) {
	f := newFake([]string{"Technical"}, []int{50})
	ok := f.start
	f.start = func(context.Context, string, model.Difficulty) (evaluator.StartResult, error) {
		return evaluator.StartResult{}, fmt.Errorf("%w: connection refused", evaluator.ErrServiceUnavailable)
	}
	m := New(f)
	require.NoError(t, m.Configure("Data Scientist", model.DifficultyMixed))

	err := m.Start(context.Background())
	require.ErrorIs(t, err, evaluator.ErrServiceUnavailable)
	snap := m.Snapshot()
	require.Equal(t, PhaseConfiguring, snap.Phase)
	require.ErrorIs(t, snap.Err, evaluator.ErrServiceUnavailable)
	require.Empty(t, snap.SessionID)
	require.Empty(t, snap.Questions)
	require.Equal(t, "Data Scientist", snap.Role)

	f.start = ok
	require.NoError(t, m.Start(context.Background()))
	snap = m.Snapshot()
	require.Equal(t, PhaseInProgress, snap.Phase)
	require.Equal(t, "INT_1", snap.SessionID)
	require.NoError(t, snap.Err)
}

func TestStartEmptyQuestionsIsInvalid(t *testing.T) {
	f := newFake(nil, nil)
	m := New(f)
	require.NoError(t, m.Configure("Data Scientist", model.DifficultyEasy))

	err := m.Start(context.Background())
	require.ErrorIs(t, err, evaluator.ErrInvalidResponse)
	require.Equal(t, PhaseConfiguring, m.Snapshot().Phase)
}

func TestBlankAnswerIsLocal(t *testing.T) {
	f := newFake([]string{"Technical"}, []int{50})
	m := startedMachine(t, f)
	before := m.Snapshot()

	for _, text := range []string{"", "   ", "\n\t "} {
		require.ErrorIs(t, m.SubmitAnswer(context.Background(), text), ErrValidation)
	}

	after := m.Snapshot()
	require.EqualValues(t, 0, f.evaluateCalls.Load())
	require.Equal(t, PhaseInProgress, after.Phase)
	require.Equal(t, before.Version, after.Version)
}

func TestEvaluateFailureKeepsCursor(t *testing.T) {
	f := newFake([]string{"Technical", "Technical"}, []int{70, 80})
	ok := f.evaluate
	f.evaluate = func(context.Context, evaluator.EvaluateRequest) (model.EvaluationResult, error) {
		return model.EvaluationResult{}, fmt.Errorf("%w: total_score out of range", evaluator.ErrInvalidResponse)
	}
	m := startedMachine(t, f)
	require.NoError(t, m.SubmitAnswer(context.Background(), "first"))
	require.NoError(t, m.Advance(context.Background()))

	err := m.SubmitAnswer(context.Background(), "second")
	require.ErrorIs(t, err, evaluator.ErrInvalidResponse)
	snap := m.Snapshot()
	require.Equal(t, PhaseInProgress, snap.Phase)
	require.Equal(t, 1, snap.Cursor)
	require.Len(t, snap.Answers, 1)
	require.Nil(t, snap.Evaluation)
	require.Error(t, snap.Err)

	f.evaluate = ok
	require.NoError(t, m.SubmitAnswer(context.Background(), "second again"))
	snap = m.Snapshot()
	require.Len(t, snap.Answers, 2)
	require.Equal(t, 1, snap.Answers[1].QuestionIndex)
	require.Equal(t, "second again", snap.Answers[1].AnswerText)
	require.NoError(t, snap.Err)
}

func TestUnknownErrorIsUnavailable(t *testing.T) {
	f := newFake([]string{"Technical"}, []int{70})
	f.evaluate = func(context.Context, evaluator.EvaluateRequest) (model.EvaluationResult, error) {
		return model.EvaluationResult{}, errors.New("socket closed")
	}
	m := startedMachine(t, f)
	require.ErrorIs(t, m.SubmitAnswer(context.Background(), "a"), evaluator.ErrServiceUnavailable)
}

func TestSubmitWhileEvaluatingIsRejected(t *testing.T) {
	f := newFake([]string{"Technical", "Technical"}, []int{70, 80})
	release := make(chan struct{})
	entered := blockEvaluate(f, release)
	m := startedMachine(t, f)

	done := make(chan error, 1)
	go func() { done <- m.SubmitAnswer(context.Background(), "first") }()
	<-entered

	require.Equal(t, PhaseEvaluating, m.Snapshot().Phase)
	require.ErrorIs(t, m.SubmitAnswer(context.Background(), "again"), ErrInvalidPhase)
	require.ErrorIs(t, m.Advance(context.Background()), ErrInvalidPhase)
	require.ErrorIs(t, m.Reset(), ErrInvalidPhase)

	close(release)
	require.NoError(t, <-done)
	require.EqualValues(t, 1, f.evaluateCalls.Load())
	require.Len(t, m.Snapshot().Answers, 1)
}

func TestLateEvaluateAfterAbandonIsDiscarded(t *testing.T) {
	f := newFake([]string{"Technical", "Technical"}, []int{70, 80})
	release := make(chan struct{})
	entered := blockEvaluate(f, release)
	m := startedMachine(t, f)

	done := make(chan error, 1)
	go func() { done <- m.SubmitAnswer(context.Background(), "slow answer") }()
	<-entered

	require.NoError(t, m.Abandon())
	snap := m.Snapshot()
	require.Equal(t, PhaseConfiguring, snap.Phase)
	require.Empty(t, snap.SessionID)
	require.Empty(t, snap.Role)

	require.NoError(t, m.Configure("AI Engineer", model.DifficultyEasy))
	require.NoError(t, m.Start(context.Background()))
	fresh := m.Snapshot()

	close(release)
	require.ErrorIs(t, <-done, ErrDiscarded)

	after := m.Snapshot()
	require.Equal(t, PhaseInProgress, after.Phase)
	require.Empty(t, after.Answers)
	require.Equal(t, 0, after.Cursor)
	require.Equal(t, fresh.Version, after.Version)
}

func TestLateCompleteAfterCloseIsDiscarded(t *testing.T) {
	f := newFake([]string{"Technical"}, []int{70})
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.complete = func(ctx context.Context, _ string, answers []model.AnswerRecord) (model.SessionSummary, error) {
		entered <- struct{}{}
		<-release
		return score.Summarize(answers), nil
	}
	rec := &recorder{}
	m := startedMachine(t, f, WithObserver(rec))
	require.NoError(t, m.SubmitAnswer(context.Background(), "a"))

	done := make(chan error, 1)
	go func() { done <- m.Advance(context.Background()) }()
	<-entered

	m.Close()
	seen := rec.count()
	close(release)
	require.ErrorIs(t, <-done, ErrDiscarded)
	require.Equal(t, seen, rec.count())

	require.Equal(t, PhaseCompleting, m.Snapshot().Phase)
	require.ErrorIs(t, m.Abandon(), ErrClosed)
	require.ErrorIs(t, m.Configure("x", model.DifficultyEasy), ErrClosed)
	require.ErrorIs(t, m.Subscribe(rec), ErrClosed)
	m.Close()
}

func TestCallTimeoutIsUnavailable(t *testing.T) {
	f := newFake([]string{"Technical"}, []int{70})
	blockEvaluate(f, make(chan struct{}))
	m := startedMachine(t, f, WithCallTimeout(20*time.Millisecond))

	err := m.SubmitAnswer(context.Background(), "a")
	require.ErrorIs(t, err, evaluator.ErrServiceUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	snap := m.Snapshot()
	require.Equal(t, PhaseInProgress, snap.Phase)
	require.Empty(t, snap.Answers)
}

func TestCompleteUnavailableRetries(t *testing.T) {
	f := newFake([]string{"Technical", "Behavioral"}, []int{90, 50})
	ok := f.complete
	f.complete = func(context.Context, string, []model.AnswerRecord) (model.SessionSummary, error) {
		return model.SessionSummary{}, fmt.Errorf("%w: status 502", evaluator.ErrServiceUnavailable)
	}
	rec := &recorder{}
	m := startedMachine(t, f, WithObserver(rec))
	for i := 0; i < 2; i++ {
		require.NoError(t, m.SubmitAnswer(context.Background(), "a"))
		if i == 0 {
			require.NoError(t, m.Advance(context.Background()))
		}
	}
	reviewed := m.Snapshot().Evaluation
	require.NotNil(t, reviewed)

	require.ErrorIs(t, m.Advance(context.Background()), evaluator.ErrServiceUnavailable)
	snap := m.Snapshot()
	require.Equal(t, PhaseAnswerReviewed, snap.Phase)
	require.True(t, snap.IsLastQuestion())
	require.Equal(t, reviewed, snap.Evaluation)
	require.Nil(t, snap.Summary)
	require.Error(t, snap.Err)

	f.complete = ok
	require.NoError(t, m.Advance(context.Background()))
	snap = m.Snapshot()
	require.Equal(t, PhaseCompleted, snap.Phase)
	require.EqualValues(t, 2, f.evaluateCalls.Load())
	require.EqualValues(t, 2, f.completeCalls.Load())
	require.Equal(t, f.completed[0], f.completed[1])

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, s := range rec.snaps {
		if s.Phase == PhaseAnswerReviewed {
			require.NotNil(t, s.Evaluation, "version %d", s.Version)
		} else {
			require.Nil(t, s.Evaluation, "version %d in %s", s.Version, s.Phase)
		}
	}
}

func TestCompleteInvalidUsesLocalSummary(t *testing.T) {
	f := newFake([]string{"Technical", "Behavioral", "Technical"}, []int{90, 50, 70})
	f.complete = func(context.Context, string, []model.AnswerRecord) (model.SessionSummary, error) {
		return model.SessionSummary{}, fmt.Errorf("%w: grade missing", evaluator.ErrInvalidResponse)
	}
	m := startedMachine(t, f)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.SubmitAnswer(context.Background(), "a"))
		require.NoError(t, m.Advance(context.Background()))
	}

	snap := m.Snapshot()
	require.Equal(t, PhaseCompleted, snap.Phase)
	require.True(t, snap.LocalSummary)
	require.Equal(t, score.Summarize(snap.Answers), *snap.Summary)
}

func TestReset(t *testing.T) {
	f := newFake([]string{"Technical"}, []int{70})
	m := startedMachine(t, f)
	require.ErrorIs(t, m.Reset(), ErrInvalidPhase)

	require.NoError(t, m.SubmitAnswer(context.Background(), "a"))
	require.ErrorIs(t, m.Reset(), ErrInvalidPhase)
	require.NoError(t, m.Advance(context.Background()))
	require.Equal(t, []Action{ActionReset}, m.Snapshot().Actions())

	require.NoError(t, m.Reset())
	snap := m.Snapshot()
	require.Equal(t, PhaseConfiguring, snap.Phase)
	require.Empty(t, snap.SessionID)
	require.Empty(t, snap.Questions)
	require.Empty(t, snap.Answers)
	require.Nil(t, snap.Summary)
	require.Equal(t, []Action{ActionConfigure}, snap.Actions())
}

func TestSnapshotIsACopy(t *testing.T) {
	f := newFake([]string{"Technical", "Technical"}, []int{70, 80})
	m := startedMachine(t, f)
	require.NoError(t, m.SubmitAnswer(context.Background(), "a"))

	snap := m.Snapshot()
	snap.Answers[0].TotalScore = 0
	snap.Questions[0].Text = "changed"
	snap.Evaluation.Feedback[0] = "changed"

	again := m.Snapshot()
	require.Equal(t, 70, again.Answers[0].TotalScore)
	require.Equal(t, "Question 1", again.Questions[0].Text)
	require.Equal(t, "ok", again.Evaluation.Feedback[0])
}

func TestSubscribeSendsCurrentSnapshot(t *testing.T) {
	m := New(newFake([]string{"Technical"}, []int{70}))
	rec := &recorder{}
	require.NoError(t, m.Subscribe(rec))
	require.Equal(t, []Phase{PhaseConfiguring}, rec.phases())

	require.NoError(t, m.Configure("Data Scientist", model.DifficultyEasy))
	require.Equal(t, 2, rec.count())
}
