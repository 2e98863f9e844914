package model

import (
	"fmt"
	"strings"
)

// Difficulty is the difficulty setting of a session or the tag of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
	// DifficultyMixed is only meaningful as a session setting: no filtering.
	DifficultyMixed Difficulty = "Mixed"
)

// Difficulties lists the session difficulty settings in display order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyMixed}

// ParseDifficulty parses a difficulty name case-insensitively.
func ParseDifficulty(s string) (Difficulty, error) {
	for _, d := range Difficulties {
		if strings.EqualFold(strings.TrimSpace(s), string(d)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// IsQuestionTag reports whether d can tag an individual question.
func (d Difficulty) IsQuestionTag() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// DefaultRoles is the catalog of target roles offered to candidates.
var DefaultRoles = []string{
	"Data Scientist",
	"AI Engineer",
	"Full Stack Developer",
	"Cloud Architect",
	"Product Manager",
}

// DefaultCategory is used for questions and answers without a category.
const DefaultCategory = "General"

// Question is one interview question. Questions are immutable once a session
// has started and their order is the presentation order.
type Question struct {
	ID               string     `json:"id"`
	Text             string     `json:"text"`
	Category         string     `json:"category"`
	Difficulty       Difficulty `json:"difficulty"`
	ExpectedKeywords []string   `json:"expected_keywords"`
}

// Breakdown holds the four named sub-scores of one evaluation.
type Breakdown struct {
	KeywordCoverage int `json:"keyword_coverage"`
	AnswerLength    int `json:"answer_length"`
	Confidence      int `json:"confidence"`
	Clarity         int `json:"clarity"`
}

// EvaluationResult is the evaluator's verdict on a single answer.
type EvaluationResult struct {
	TotalScore  int       `json:"total_score"`
	Performance string    `json:"performance"`
	Emoji       string    `json:"emoji"`
	Breakdown   Breakdown `json:"breakdown"`
	Feedback    []string  `json:"feedback"`
}

// AnswerRecord is the committed outcome of one submit/evaluate cycle.
type AnswerRecord struct {
	QuestionIndex int      `json:"question_index"`
	QuestionText  string   `json:"question"`
	AnswerText    string   `json:"answer"`
	Category      string   `json:"category"`
	TotalScore    int      `json:"score"`
	Feedback      []string `json:"feedback"`
}

// Grade is the letter grade of a completed session.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// ParseGrade accepts a single letter A-F, case-insensitively.
func ParseGrade(s string) (Grade, error) {
	switch g := Grade(strings.ToUpper(strings.TrimSpace(s))); g {
	case GradeA, GradeB, GradeC, GradeD, GradeF:
		return g, nil
	}
	return "", fmt.Errorf("unknown grade %q", s)
}

// SessionSummary is the end-of-session report.
type SessionSummary struct {
	AverageScore int      `json:"average_score"`
	Grade        Grade    `json:"grade"`
	StrongAreas  []string `json:"strong_areas"`
	WeakAreas    []string `json:"weak_areas"`
	Message      string   `json:"message"`
}

// Capabilities are feature flags front ends check before offering an input mode.
type Capabilities struct {
	VoiceInputSupported bool `json:"voice_input_supported"`
}

// DefaultCapabilities reports what this build supports.
func DefaultCapabilities() Capabilities {
	return Capabilities{VoiceInputSupported: false}
}

// QuestionImport is one entry of a question bank file (JSON or YAML).
type QuestionImport struct {
	Role             string     `json:"role" yaml:"role"`
	Question         string     `json:"question" yaml:"question"`
	Category         string     `json:"category" yaml:"category"`
	Difficulty       Difficulty `json:"difficulty" yaml:"difficulty"`
	ExpectedKeywords []string   `json:"expected_keywords" yaml:"expected_keywords"`
}

// BankQuestion is a question bank row: a question tagged with its target role.
type BankQuestion struct {
	ID   int64
	Role string
	Question
}
