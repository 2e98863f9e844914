package evaluator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/mockinterview/internal/model"
)

func newRemote(t *testing.T, h http.HandlerFunc) *RemoteClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewRemote(srv.URL, 2*time.Second)
	require.NoError(t, err)
	return c
}

func TestNewRemoteRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8000", "ftp://example.com"} {
		_, err := NewRemote(u, time.Second)
		require.Error(t, err, u)
	}
}

func TestRemoteStartSession(t *testing.T) {
	var got startRequest
	c := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathStart, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"interview_id": "INT_1", "questions": [{"question": "Q1", "category": "SQL"}]}`))
	})

	res, err := c.StartSession(context.Background(), "Data Scientist", model.DifficultyMixed)
	require.NoError(t, err)
	require.Equal(t, "INT_1", res.SessionID)
	require.Len(t, res.Questions, 1)
	require.Equal(t, startRequest{TargetRole: "Data Scientist", Difficulty: "Mixed"}, got)
}

func TestRemoteEvaluateAnswer(t *testing.T) {
	var got evaluateRequest
	c := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathEvaluate, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"total_score": 64, "performance": "Good", "emoji": "👍",
			"breakdown": {"keyword_coverage": 24, "answer_length": 20, "confidence": 10, "clarity": 10},
			"feedback": "Good job!"}`))
	})

	res, err := c.EvaluateAnswer(context.Background(), EvaluateRequest{
		Question:         model.Question{Text: "Explain joins."},
		Answer:           "Joins combine rows.",
		ExpectedKeywords: []string{"inner", "outer"},
		Role:             "Full Stack Developer",
	})
	require.NoError(t, err)
	require.Equal(t, 64, res.TotalScore)
	require.Equal(t, evaluateRequest{
		Question:         "Explain joins.",
		Answer:           "Joins combine rows.",
		ExpectedKeywords: []string{"inner", "outer"},
		TargetRole:       "Full Stack Developer",
	}, got)
}

func TestRemoteCompleteSessionSendsAnswersInOrder(t *testing.T) {
	var got completeRequest
	c := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathComplete, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"average_score": 70, "grade": "C", "strong_areas": ["SQL"], "weak_areas": [], "message": "ok"}`))
	})

	answers := []model.AnswerRecord{
		{QuestionIndex: 0, QuestionText: "Q1", AnswerText: "A1", Category: "SQL", TotalScore: 80, Feedback: []string{"nice"}},
		{QuestionIndex: 1, QuestionText: "Q2", AnswerText: "A2", Category: "Go", TotalScore: 60},
	}
	sum, err := c.CompleteSession(context.Background(), "INT_9", answers)
	require.NoError(t, err)
	require.Equal(t, model.GradeC, sum.Grade)

	require.Equal(t, "INT_9", got.InterviewID)
	require.Len(t, got.Answers, 2)
	require.Equal(t, "Q1", got.Answers[0].Question)
	require.Equal(t, 80, got.Answers[0].Score)
	require.Equal(t, "SQL", got.Answers[0].Category)
	require.Equal(t, "Q2", got.Answers[1].Question)
	require.Equal(t, []string{}, got.Answers[1].Feedback)
}

func TestRemoteStatusErrorIsUnavailable(t *testing.T) {
	c := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := c.StartSession(context.Background(), "AI Engineer", model.DifficultyEasy)
	require.ErrorIs(t, err, ErrServiceUnavailable)
	require.Equal(t, "service_unavailable", Kind(err))
}

func TestRemoteMalformedIsInvalidResponse(t *testing.T) {
	c := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total_score": 250, "breakdown": {}}`))
	})

	_, err := c.EvaluateAnswer(context.Background(), EvaluateRequest{Question: model.Question{Text: "q"}, Answer: "a"})
	require.ErrorIs(t, err, ErrInvalidResponse)
	require.Equal(t, "invalid_response", Kind(err))
}

func TestRemoteTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewRemote(url, time.Second)
	require.NoError(t, err)
	_, err = c.StartSession(context.Background(), "AI Engineer", model.DifficultyEasy)
	require.ErrorIs(t, err, ErrServiceUnavailable)
	require.ErrorIs(t, c.Ping(context.Background()), ErrServiceUnavailable)
}

func TestRemoteContextTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.StartSession(ctx, "AI Engineer", model.DifficultyEasy)
	require.ErrorIs(t, err, ErrServiceUnavailable)
}
