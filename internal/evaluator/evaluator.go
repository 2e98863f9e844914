// Package evaluator is the boundary to the service that supplies questions,
// scores answers and closes interview sessions.
package evaluator

import (
	"context"
	"errors"

	"github.com/pavelanni/mockinterview/internal/model"
)

var (
	// ErrServiceUnavailable reports a transport failure, a non-2xx status or a timeout.
	ErrServiceUnavailable = errors.New("evaluation service unavailable")
	// ErrInvalidResponse reports a malformed or out-of-range response payload.
	ErrInvalidResponse = errors.New("invalid response from evaluation service")
)

// StartResult is the outcome of opening a session on the evaluation service.
type StartResult struct {
	SessionID string
	Questions []model.Question
}

// EvaluateRequest carries one answer to be scored.
type EvaluateRequest struct {
	Question         model.Question
	Answer           string
	ExpectedKeywords []string
	Role             string
}

// Client issues the three session calls. Each call is a single round trip
// with no retry; callers own the retry policy.
type Client interface {
	StartSession(ctx context.Context, role string, difficulty model.Difficulty) (StartResult, error)
	EvaluateAnswer(ctx context.Context, req EvaluateRequest) (model.EvaluationResult, error)
	CompleteSession(ctx context.Context, sessionID string, answers []model.AnswerRecord) (model.SessionSummary, error)
}

// Kind classifies an error for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "service_unavailable"
	default:
		return "other"
	}
}

// IsRetriable reports whether err belongs to the evaluator failure taxonomy.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrInvalidResponse)
}
