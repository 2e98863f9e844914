// Package llm is an evaluation backend that serves questions from the local
// question bank and asks an OpenAI-compatible model to score answers.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/mockinterview/internal/evaluator"
	"github.com/pavelanni/mockinterview/internal/llm/prompts"
	"github.com/pavelanni/mockinterview/internal/model"
	"github.com/pavelanni/mockinterview/internal/score"
)

const (
	backendLLM = "llm"

	// FallbackRole is used when the bank has no questions for the requested role.
	FallbackRole = "Data Scientist"

	DefaultNumQuestions = 5
)

// QuestionBank supplies the questions for a role.
type QuestionBank interface {
	ListQuestions(role string, difficulty model.Difficulty) ([]model.BankQuestion, error)
}

// Config configures the model endpoint and question selection.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Variant      prompts.PromptVariant
	NumQuestions int
}

// Client wraps an OpenAI-compatible API client and the question bank.
type Client struct {
	api          *openai.Client
	model        string
	variant      prompts.PromptVariant
	bank         QuestionBank
	numQuestions int
}

// New creates a new LLM backend.
func New(cfg Config, bank QuestionBank) (*Client, error) {
	if err := prompts.Load(prompts.Templates); err != nil {
		return nil, err
	}
	if cfg.Variant == "" {
		cfg.Variant = prompts.PromptStandard
	}
	if !prompts.IsValidVariant(string(cfg.Variant)) {
		return nil, fmt.Errorf("invalid prompt variant %q", cfg.Variant)
	}
	if cfg.NumQuestions <= 0 {
		cfg.NumQuestions = DefaultNumQuestions
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:          openai.NewClientWithConfig(config),
		model:        cfg.Model,
		variant:      cfg.Variant,
		bank:         bank,
		numQuestions: cfg.NumQuestions,
	}, nil
}

// StartSession picks up to NumQuestions random questions for the role.
// Difficulty filters the questions unless it is Mixed.
func (c *Client) StartSession(ctx context.Context, role string, difficulty model.Difficulty) (res evaluator.StartResult, err error) {
	_, done := evaluator.Track(ctx, backendLLM, "start")
	defer func() { done(err) }()

	all, err := c.bank.ListQuestions(role, model.DifficultyMixed)
	if err != nil {
		return evaluator.StartResult{}, fmt.Errorf("%w: question bank: %w", evaluator.ErrServiceUnavailable, err)
	}
	if len(all) == 0 && role != FallbackRole {
		slog.Info("no questions for role, using fallback", "role", role, "fallback", FallbackRole)
		all, err = c.bank.ListQuestions(FallbackRole, model.DifficultyMixed)
		if err != nil {
			return evaluator.StartResult{}, fmt.Errorf("%w: question bank: %w", evaluator.ErrServiceUnavailable, err)
		}
	}

	var picked []model.Question
	for _, q := range all {
		if difficulty == model.DifficultyMixed || q.Difficulty == difficulty {
			picked = append(picked, q.Question)
		}
	}
	if len(picked) == 0 {
		return evaluator.StartResult{}, fmt.Errorf("%w: empty question set for %s/%s", evaluator.ErrInvalidResponse, role, difficulty)
	}

	rand.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	if len(picked) > c.numQuestions {
		picked = picked[:c.numQuestions]
	}

	return evaluator.StartResult{
		SessionID: "INT_" + uuid.NewString(),
		Questions: picked,
	}, nil
}

// EvaluateAnswer asks the model to score one answer. The reply goes through
// the same validation as the remote service's.
func (c *Client) EvaluateAnswer(ctx context.Context, req evaluator.EvaluateRequest) (res model.EvaluationResult, err error) {
	ctx, done := evaluator.Track(ctx, backendLLM, "evaluate")
	defer func() { done(err) }()

	keywords := req.ExpectedKeywords
	if len(keywords) == 0 {
		keywords = req.Question.ExpectedKeywords
	}
	prompt, err := prompts.BuildEvalPrompt(c.variant, prompts.EvalData{
		Role:             req.Role,
		QuestionText:     req.Question.Text,
		Category:         req.Question.Category,
		ExpectedKeywords: keywords,
		Answer:           req.Answer,
	})
	if err != nil {
		return model.EvaluationResult{}, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return model.EvaluationResult{}, fmt.Errorf("%w: LLM API call: %w", evaluator.ErrServiceUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return model.EvaluationResult{}, fmt.Errorf("%w: LLM returned no choices", evaluator.ErrInvalidResponse)
	}

	raw := stripCodeFence(resp.Choices[0].Message.Content)
	slog.Debug("LLM response", "raw", raw)

	res, err = evaluator.DecodeEvaluation([]byte(raw))
	if err != nil {
		return model.EvaluationResult{}, err
	}
	performance, emoji := score.Rate(res.TotalScore)
	if res.Performance == "" {
		res.Performance = performance
	}
	if res.Emoji == "" {
		res.Emoji = emoji
	}
	return res, nil
}

// CompleteSession summarizes locally; no model call is needed.
func (c *Client) CompleteSession(ctx context.Context, sessionID string, answers []model.AnswerRecord) (sum model.SessionSummary, err error) {
	_, done := evaluator.Track(ctx, backendLLM, "complete")
	defer func() { done(err) }()

	if len(answers) == 0 {
		return model.SessionSummary{}, fmt.Errorf("%w: no answers provided", evaluator.ErrInvalidResponse)
	}
	slog.Debug("completing session locally", "session_id", sessionID, "answers", len(answers))
	return score.Summarize(answers), nil
}

// Ping verifies the model endpoint by listing its models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("%w: list models: %w", evaluator.ErrServiceUnavailable, err)
	}
	return nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add despite
// the JSON response format.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
