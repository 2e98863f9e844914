package session

import (
	"errors"

	"github.com/pavelanni/mockinterview/internal/model"
)

// Phase is the current stage of a session.
type Phase string

const (
	PhaseConfiguring    Phase = "configuring"
	PhaseStarting       Phase = "starting"
	PhaseInProgress     Phase = "in_progress"
	PhaseEvaluating     Phase = "evaluating"
	PhaseAnswerReviewed Phase = "answer_reviewed"
	PhaseCompleting     Phase = "completing"
	PhaseCompleted      Phase = "completed"
)

// Busy reports whether a call to the evaluation service is outstanding.
func (p Phase) Busy() bool {
	return p == PhaseStarting || p == PhaseEvaluating || p == PhaseCompleting
}

var (
	// ErrValidation reports bad user input; nothing changed and no call was made.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidPhase reports an operation that is not allowed in the current phase.
	ErrInvalidPhase = errors.New("operation not allowed in current phase")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session closed")
	// ErrDiscarded is returned to the caller whose response arrived after the
	// session was abandoned, reset or closed. The response was not applied.
	ErrDiscarded = errors.New("response discarded")
)

// Action is a user intent a front end may offer.
type Action string

const (
	ActionConfigure Action = "configure"
	ActionStart     Action = "start"
	ActionAnswer    Action = "answer"
	ActionAdvance   Action = "advance"
	ActionReset     Action = "reset"
)

// Snapshot is an immutable copy of a session's state after a transition.
// Evaluation is only set in AnswerReviewed, Summary only in Completed.
type Snapshot struct {
	Version    uint64
	Phase      Phase
	Role       string
	Difficulty model.Difficulty
	SessionID  string
	Questions  []model.Question
	Cursor     int
	Answers    []model.AnswerRecord
	Evaluation *model.EvaluationResult
	Summary    *model.SessionSummary
	// LocalSummary is set when the service's summary was unusable and the
	// summary was computed from the answers instead.
	LocalSummary bool
	// Err is the retriable error of the last failed call, cleared by the next
	// successful transition.
	Err error
}

// CurrentQuestion returns the question at the cursor, if the session has started.
func (s Snapshot) CurrentQuestion() (model.Question, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Questions) {
		return model.Question{}, false
	}
	return s.Questions[s.Cursor], true
}

// IsLastQuestion reports whether the cursor is on the final question.
func (s Snapshot) IsLastQuestion() bool {
	return len(s.Questions) > 0 && s.Cursor == len(s.Questions)-1
}

// Actions lists the intents valid in the snapshot's phase.
func (s Snapshot) Actions() []Action {
	switch s.Phase {
	case PhaseConfiguring:
		if s.Role != "" && s.Difficulty != "" {
			return []Action{ActionConfigure, ActionStart}
		}
		return []Action{ActionConfigure}
	case PhaseInProgress:
		return []Action{ActionAnswer}
	case PhaseAnswerReviewed:
		return []Action{ActionAdvance}
	case PhaseCompleted:
		return []Action{ActionReset}
	default:
		return []Action{}
	}
}

// Observer receives every committed snapshot. Calls happen outside the
// machine's lock and may arrive from different goroutines; compare Version to
// drop stale ones.
type Observer interface {
	OnSnapshot(Snapshot)
}
