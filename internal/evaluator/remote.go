package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pavelanni/mockinterview/internal/model"
)

const (
	backendRemote = "remote"

	pathStart    = "/api/interview/start"
	pathEvaluate = "/api/interview/evaluate"
	pathComplete = "/api/interview/complete"

	maxResponseBytes = 1 << 20
)

// RemoteClient talks to the interview service over JSON/HTTP.
type RemoteClient struct {
	baseURL string
	http    *http.Client
}

// NewRemote creates a client for the service at baseURL. The timeout bounds
// each round trip; zero means no client-side limit beyond the caller's context.
func NewRemote(baseURL string, timeout time.Duration) (*RemoteClient, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse service URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("service URL %q must be http or https", baseURL)
	}
	return &RemoteClient{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type startRequest struct {
	TargetRole string `json:"target_role"`
	Difficulty string `json:"difficulty"`
}

type evaluateRequest struct {
	Question         string   `json:"question"`
	Answer           string   `json:"answer"`
	ExpectedKeywords []string `json:"expected_keywords"`
	TargetRole       string   `json:"target_role"`
}

type answerWire struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Score    int      `json:"score"`
	Category string   `json:"category"`
	Feedback []string `json:"feedback"`
}

type completeRequest struct {
	InterviewID string       `json:"interview_id"`
	Answers     []answerWire `json:"answers"`
}

// StartSession opens a session and fetches its questions.
func (c *RemoteClient) StartSession(ctx context.Context, role string, difficulty model.Difficulty) (res StartResult, err error) {
	ctx, done := Track(ctx, backendRemote, "start")
	defer func() { done(err) }()

	body, err := c.post(ctx, pathStart, startRequest{TargetRole: role, Difficulty: string(difficulty)})
	if err != nil {
		return StartResult{}, err
	}
	return DecodeStart(body)
}

// EvaluateAnswer scores one answer.
func (c *RemoteClient) EvaluateAnswer(ctx context.Context, req EvaluateRequest) (res model.EvaluationResult, err error) {
	ctx, done := Track(ctx, backendRemote, "evaluate")
	defer func() { done(err) }()

	keywords := req.ExpectedKeywords
	if keywords == nil {
		keywords = []string{}
	}
	body, err := c.post(ctx, pathEvaluate, evaluateRequest{
		Question:         req.Question.Text,
		Answer:           req.Answer,
		ExpectedKeywords: keywords,
		TargetRole:       req.Role,
	})
	if err != nil {
		return model.EvaluationResult{}, err
	}
	return DecodeEvaluation(body)
}

// CompleteSession sends the accumulated answers, in order, and returns the
// service's summary.
func (c *RemoteClient) CompleteSession(ctx context.Context, sessionID string, answers []model.AnswerRecord) (sum model.SessionSummary, err error) {
	ctx, done := Track(ctx, backendRemote, "complete")
	defer func() { done(err) }()

	wire := make([]answerWire, 0, len(answers))
	for _, a := range answers {
		feedback := a.Feedback
		if feedback == nil {
			feedback = []string{}
		}
		wire = append(wire, answerWire{
			Question: a.QuestionText,
			Answer:   a.AnswerText,
			Score:    a.TotalScore,
			Category: a.Category,
			Feedback: feedback,
		})
	}
	body, err := c.post(ctx, pathComplete, completeRequest{InterviewID: sessionID, Answers: wire})
	if err != nil {
		return model.SessionSummary{}, err
	}
	return DecodeSummary(body)
}

// Ping checks that the service answers HTTP at all.
func (c *RemoteClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *RemoteClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %w", ErrServiceUnavailable, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrServiceUnavailable, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: POST %s: status %d: %s", ErrServiceUnavailable, path, resp.StatusCode, snippet(body))
	}
	return body, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
