// Package view turns session snapshots into localized, render-ready data for
// the HTTP API and the terminal front end.
package view

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/pavelanni/mockinterview/internal/evaluator"
	"github.com/pavelanni/mockinterview/internal/i18n"
	"github.com/pavelanni/mockinterview/internal/model"
	"github.com/pavelanni/mockinterview/internal/session"
)

// View is what a front end renders for one snapshot.
type View struct {
	Version      uint64             `json:"version"`
	Phase        session.Phase      `json:"phase"`
	Title        string             `json:"title"`
	Heading      string             `json:"heading"`
	Busy         bool               `json:"busy"`
	Role         string             `json:"target_role,omitempty"`
	Difficulty   model.Difficulty   `json:"difficulty,omitempty"`
	SessionID    string             `json:"interview_id,omitempty"`
	Progress     string             `json:"progress,omitempty"`
	Answered     string             `json:"answered,omitempty"`
	Question     *QuestionView      `json:"question,omitempty"`
	Feedback     *FeedbackView      `json:"feedback,omitempty"`
	Summary      *SummaryView       `json:"summary,omitempty"`
	Error        string             `json:"error,omitempty"`
	Actions      []ActionView       `json:"actions"`
	Capabilities model.Capabilities `json:"capabilities"`
	VoiceNote    string             `json:"voice_note,omitempty"`
}

// QuestionView is the question at the cursor.
type QuestionView struct {
	Number     int              `json:"number"`
	Total      int              `json:"total"`
	Text       string           `json:"text"`
	Category   string           `json:"category"`
	Difficulty model.Difficulty `json:"difficulty,omitempty"`
}

// Metric is one labelled sub-score of an evaluation.
type Metric struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value int    `json:"value"`
}

// FeedbackView is the evaluation of the last submitted answer.
type FeedbackView struct {
	ScoreLabel  string   `json:"score_label"`
	Score       int      `json:"score"`
	Performance string   `json:"performance"`
	Emoji       string   `json:"emoji"`
	Breakdown   []Metric `json:"breakdown"`
	Comments    []string `json:"comments"`
}

// SummaryView is the end-of-session report. StrongText and WeakText fall
// back to a placeholder when the area list is empty.
type SummaryView struct {
	AverageLabel string      `json:"average_label"`
	AverageScore int         `json:"average_score"`
	GradeLabel   string      `json:"grade_label"`
	Grade        model.Grade `json:"grade"`
	Message      string      `json:"message"`
	StrongLabel  string      `json:"strong_label"`
	StrongAreas  []string    `json:"strong_areas"`
	StrongText   string      `json:"strong_text"`
	WeakLabel    string      `json:"weak_label"`
	WeakAreas    []string    `json:"weak_areas"`
	WeakText     string      `json:"weak_text"`
	Note         string      `json:"note,omitempty"`
}

// ActionView is an intent the front end may offer, with its label.
type ActionView struct {
	ID    session.Action `json:"id"`
	Label string         `json:"label"`
}

// Presenter observes a session machine and keeps the newest snapshot.
type Presenter struct {
	caps model.Capabilities

	mu     sync.RWMutex
	latest session.Snapshot
	seen   bool
}

// NewPresenter creates a presenter advertising caps to front ends.
func NewPresenter(caps model.Capabilities) *Presenter {
	return &Presenter{caps: caps}
}

// OnSnapshot implements session.Observer. Snapshots older than the one held
// are ignored.
func (p *Presenter) OnSnapshot(s session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen && s.Version < p.latest.Version {
		return
	}
	p.latest = s
	p.seen = true
}

// Latest returns the newest snapshot received, if any.
func (p *Presenter) Latest() (session.Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.seen
}

// View renders the newest snapshot in the context's language.
func (p *Presenter) View(ctx context.Context) View {
	s, _ := p.Latest()
	return Render(ctx, s, p.caps)
}

// Render builds the view for a snapshot.
func Render(ctx context.Context, s session.Snapshot, caps model.Capabilities) View {
	v := View{
		Version:      s.Version,
		Phase:        s.Phase,
		Title:        i18n.T(ctx, "AppTitle"),
		Heading:      i18n.T(ctx, phaseMessage(s.Phase)),
		Busy:         s.Phase.Busy(),
		Role:         s.Role,
		Difficulty:   s.Difficulty,
		SessionID:    s.SessionID,
		Actions:      actions(ctx, s),
		Capabilities: caps,
	}
	if !caps.VoiceInputSupported {
		v.VoiceNote = i18n.T(ctx, "VoiceInputUnsupported")
	}

	if len(s.Questions) > 0 && s.Phase != session.PhaseCompleted {
		v.Progress = i18n.Td(ctx, "QuestionProgress", map[string]any{"Current": s.Cursor + 1, "Total": len(s.Questions)})
		v.Answered = i18n.Tp(ctx, "AnswersRecorded", len(s.Answers))
		if q, ok := s.CurrentQuestion(); ok {
			v.Question = &QuestionView{
				Number:     s.Cursor + 1,
				Total:      len(s.Questions),
				Text:       q.Text,
				Category:   q.Category,
				Difficulty: q.Difficulty,
			}
		}
	}

	if s.Evaluation != nil {
		ev := s.Evaluation
		v.Feedback = &FeedbackView{
			ScoreLabel:  i18n.T(ctx, "TotalScore"),
			Score:       ev.TotalScore,
			Performance: ev.Performance,
			Emoji:       ev.Emoji,
			Breakdown: []Metric{
				{Key: "keyword_coverage", Label: i18n.T(ctx, "KeywordCoverage"), Value: ev.Breakdown.KeywordCoverage},
				{Key: "answer_length", Label: i18n.T(ctx, "AnswerLength"), Value: ev.Breakdown.AnswerLength},
				{Key: "confidence", Label: i18n.T(ctx, "Confidence"), Value: ev.Breakdown.Confidence},
				{Key: "clarity", Label: i18n.T(ctx, "Clarity"), Value: ev.Breakdown.Clarity},
			},
			Comments: nonNil(ev.Feedback),
		}
	}

	if s.Summary != nil {
		sum := s.Summary
		noArea := i18n.T(ctx, "NoSpecificArea")
		v.Summary = &SummaryView{
			AverageLabel: i18n.T(ctx, "AverageScore"),
			AverageScore: sum.AverageScore,
			GradeLabel:   i18n.T(ctx, "Grade"),
			Grade:        sum.Grade,
			Message:      sum.Message,
			StrongLabel:  i18n.T(ctx, "StrongAreas"),
			StrongAreas:  nonNil(sum.StrongAreas),
			StrongText:   areaText(sum.StrongAreas, noArea),
			WeakLabel:    i18n.T(ctx, "WeakAreas"),
			WeakAreas:    nonNil(sum.WeakAreas),
			WeakText:     areaText(sum.WeakAreas, noArea),
		}
		if s.LocalSummary {
			v.Summary.Note = i18n.T(ctx, "LocalSummaryNote")
		}
	}

	if s.Err != nil {
		v.Error = ErrorText(ctx, s.Err)
	}
	return v
}

// ErrorText is the user-facing message for a failed evaluation service call.
func ErrorText(ctx context.Context, err error) string {
	if errors.Is(err, evaluator.ErrInvalidResponse) {
		return i18n.T(ctx, "ErrInvalidResponse")
	}
	return i18n.T(ctx, "ErrServiceUnavailable")
}

func phaseMessage(p session.Phase) string {
	switch p {
	case session.PhaseStarting:
		return "PhaseStarting"
	case session.PhaseInProgress:
		return "PhaseInProgress"
	case session.PhaseEvaluating:
		return "PhaseEvaluating"
	case session.PhaseAnswerReviewed:
		return "PhaseAnswerReviewed"
	case session.PhaseCompleting:
		return "PhaseCompleting"
	case session.PhaseCompleted:
		return "PhaseCompleted"
	default:
		return "PhaseConfiguring"
	}
}

func actions(ctx context.Context, s session.Snapshot) []ActionView {
	allowed := s.Actions()
	out := make([]ActionView, 0, len(allowed))
	for _, a := range allowed {
		var id string
		switch a {
		case session.ActionConfigure:
			id = "ActionConfigure"
		case session.ActionStart:
			id = "ActionStart"
		case session.ActionAnswer:
			id = "ActionAnswer"
		case session.ActionAdvance:
			id = "ActionAdvance"
			if s.IsLastQuestion() {
				id = "ActionFinish"
			}
		case session.ActionReset:
			id = "ActionReset"
		}
		out = append(out, ActionView{ID: a, Label: i18n.T(ctx, id)})
	}
	return out
}

// areaText joins an area set for display. An empty set is not an error and
// renders as the placeholder.
func areaText(areas []string, placeholder string) string {
	if len(areas) == 0 {
		return placeholder
	}
	return strings.Join(areas, ", ")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
