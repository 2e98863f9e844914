package evaluator

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pavelanni/mockinterview/internal/model"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	schemaStart      = "start.json"
	schemaEvaluation = "evaluation.json"
	schemaSummary    = "summary.json"
)

var (
	compileOnce sync.Once
	compileErr  error
	schemas     map[string]*jsonschema.Schema
)

func loadSchemas() error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		schemas = make(map[string]*jsonschema.Schema)
		for _, name := range []string{schemaStart, schemaEvaluation, schemaSummary} {
			data, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				compileErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			url := "mem://evaluator/" + name
			if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
				compileErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
			s, err := compiler.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			schemas[name] = s
		}
	})
	return compileErr
}

// validate checks body against a named schema. Any failure is ErrInvalidResponse.
func validate(name string, body []byte) error {
	if err := loadSchemas(); err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: decode json: %w", ErrInvalidResponse, err)
	}
	if err := schemas[name].Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}

type questionWire struct {
	ID               json.RawMessage `json:"id"`
	Question         string          `json:"question"`
	Category         string          `json:"category"`
	Difficulty       string          `json:"difficulty"`
	ExpectedKeywords []string        `json:"expected_keywords"`
}

type startWire struct {
	InterviewID string         `json:"interview_id"`
	Questions   []questionWire `json:"questions"`
}

type breakdownWire struct {
	KeywordCoverage *float64 `json:"keyword_coverage"`
	AnswerLength    *float64 `json:"answer_length"`
	Confidence      *float64 `json:"confidence"`
	Clarity         *float64 `json:"clarity"`
}

type evaluationWire struct {
	TotalScore  *float64        `json:"total_score"`
	Performance string          `json:"performance"`
	Emoji       string          `json:"emoji"`
	Breakdown   *breakdownWire  `json:"breakdown"`
	Feedback    json.RawMessage `json:"feedback"`
}

type summaryWire struct {
	AverageScore *float64 `json:"average_score"`
	Grade        string   `json:"grade"`
	StrongAreas  []string `json:"strong_areas"`
	WeakAreas    []string `json:"weak_areas"`
	Message      string   `json:"message"`
}

// DecodeStart parses a start-session response. A missing or empty question
// list is rejected rather than producing an empty session.
func DecodeStart(body []byte) (StartResult, error) {
	if err := validate(schemaStart, body); err != nil {
		return StartResult{}, err
	}
	var w startWire
	if err := json.Unmarshal(body, &w); err != nil {
		return StartResult{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if len(w.Questions) == 0 {
		return StartResult{}, fmt.Errorf("%w: no questions", ErrInvalidResponse)
	}

	questions := make([]model.Question, 0, len(w.Questions))
	for i, q := range w.Questions {
		text := strings.TrimSpace(q.Question)
		if text == "" {
			return StartResult{}, fmt.Errorf("%w: question %d has no text", ErrInvalidResponse, i+1)
		}
		id := strings.Trim(string(q.ID), `"`)
		if id == "" || id == "null" {
			id = strconv.Itoa(i + 1)
		}
		category := strings.TrimSpace(q.Category)
		if category == "" {
			category = model.DefaultCategory
		}
		questions = append(questions, model.Question{
			ID:               id,
			Text:             text,
			Category:         category,
			Difficulty:       model.Difficulty(q.Difficulty),
			ExpectedKeywords: cleanStrings(q.ExpectedKeywords),
		})
	}

	return StartResult{SessionID: w.InterviewID, Questions: questions}, nil
}

// DecodeEvaluation parses an evaluate-answer response. Scores must be present
// and within [0,100]; fractional scores are rounded.
func DecodeEvaluation(body []byte) (model.EvaluationResult, error) {
	if err := validate(schemaEvaluation, body); err != nil {
		return model.EvaluationResult{}, err
	}
	var w evaluationWire
	if err := json.Unmarshal(body, &w); err != nil {
		return model.EvaluationResult{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if w.Breakdown == nil {
		return model.EvaluationResult{}, fmt.Errorf("%w: missing breakdown", ErrInvalidResponse)
	}

	var (
		res  model.EvaluationResult
		errs []error
	)
	res.TotalScore = toScore("total_score", w.TotalScore, &errs)
	res.Breakdown = model.Breakdown{
		KeywordCoverage: toScore("keyword_coverage", w.Breakdown.KeywordCoverage, &errs),
		AnswerLength:    toScore("answer_length", w.Breakdown.AnswerLength, &errs),
		Confidence:      toScore("confidence", w.Breakdown.Confidence, &errs),
		Clarity:         toScore("clarity", w.Breakdown.Clarity, &errs),
	}
	if len(errs) > 0 {
		return model.EvaluationResult{}, fmt.Errorf("%w: %w", ErrInvalidResponse, errs[0])
	}

	feedback, err := decodeFeedback(w.Feedback)
	if err != nil {
		return model.EvaluationResult{}, err
	}
	res.Performance = strings.TrimSpace(w.Performance)
	res.Emoji = strings.TrimSpace(w.Emoji)
	res.Feedback = feedback
	return res, nil
}

// DecodeSummary parses a complete-session response.
func DecodeSummary(body []byte) (model.SessionSummary, error) {
	if err := validate(schemaSummary, body); err != nil {
		return model.SessionSummary{}, err
	}
	var w summaryWire
	if err := json.Unmarshal(body, &w); err != nil {
		return model.SessionSummary{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	var errs []error
	avg := toScore("average_score", w.AverageScore, &errs)
	if len(errs) > 0 {
		return model.SessionSummary{}, fmt.Errorf("%w: %w", ErrInvalidResponse, errs[0])
	}
	grade, err := model.ParseGrade(w.Grade)
	if err != nil {
		return model.SessionSummary{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	return model.SessionSummary{
		AverageScore: avg,
		Grade:        grade,
		StrongAreas:  uniqueSorted(w.StrongAreas),
		WeakAreas:    uniqueSorted(w.WeakAreas),
		Message:      strings.TrimSpace(w.Message),
	}, nil
}

func toScore(field string, v *float64, errs *[]error) int {
	switch {
	case v == nil:
		*errs = append(*errs, fmt.Errorf("%s is missing", field))
		return 0
	case math.IsNaN(*v) || math.IsInf(*v, 0):
		*errs = append(*errs, fmt.Errorf("%s is not a number", field))
		return 0
	case *v < 0 || *v > 100:
		*errs = append(*errs, fmt.Errorf("%s %.1f out of range [0,100]", field, *v))
		return 0
	}
	return int(math.Round(*v))
}

// decodeFeedback accepts either a single string or an array of strings.
func decodeFeedback(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return cleanStrings([]string{single}), nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("%w: feedback: %w", ErrInvalidResponse, err)
	}
	return cleanStrings(many), nil
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range cleanStrings(in) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
