// Package score reduces per-answer results into an end-of-session summary.
package score

import (
	"math"
	"sort"
	"strings"

	"github.com/pavelanni/mockinterview/internal/model"
)

// epsilon absorbs float noise when comparing category means.
const epsilon = 1e-9

// band is a half-open lower bound: scores >= Min map to Grade.
type band struct {
	Min   int
	Grade model.Grade
}

var bands = []band{
	{80, model.GradeA},
	{70, model.GradeB},
	{60, model.GradeC},
}

var gradeMessages = map[model.Grade]string{
	model.GradeA: "Outstanding performance! You're interview-ready!",
	model.GradeB: "Good job! A bit more practice and you'll ace it!",
	model.GradeC: "Decent effort. Focus on key concepts and practice more.",
	model.GradeD: "Keep practicing! Review fundamentals and try again.",
}

// GradeFor maps an average score to a letter grade. Anything below the C
// band is a D.
func GradeFor(average int) model.Grade {
	for _, b := range bands {
		if average >= b.Min {
			return b.Grade
		}
	}
	return model.GradeD
}

// Message returns the summary message for a grade. Grades outside A-D share
// the D message.
func Message(g model.Grade) string {
	if text, ok := gradeMessages[g]; ok {
		return text
	}
	return gradeMessages[model.GradeD]
}

// Summarize computes the session summary from the committed answers.
// An empty slice yields a zero average and no strong or weak areas.
func Summarize(answers []model.AnswerRecord) model.SessionSummary {
	avg := Average(answers)
	grade := GradeFor(avg)
	strong, weak := Areas(answers)
	return model.SessionSummary{
		AverageScore: avg,
		Grade:        grade,
		StrongAreas:  strong,
		WeakAreas:    weak,
		Message:      Message(grade),
	}
}

// Average is the mean total score rounded to the nearest integer.
func Average(answers []model.AnswerRecord) int {
	if len(answers) == 0 {
		return 0
	}
	sum := 0
	for _, a := range answers {
		sum += a.TotalScore
	}
	return int(math.Round(float64(sum) / float64(len(answers))))
}

// CategoryMeans groups answers by category and returns each category's mean score.
func CategoryMeans(answers []model.AnswerRecord) map[string]float64 {
	sums := make(map[string]int)
	counts := make(map[string]int)
	for _, a := range answers {
		c := categoryOf(a)
		sums[c] += a.TotalScore
		counts[c]++
	}
	means := make(map[string]float64, len(sums))
	for c, s := range sums {
		means[c] = float64(s) / float64(counts[c])
	}
	return means
}

// Areas classifies categories against the unweighted mean of category means.
// Categories exactly at that mean are neither strong nor weak.
func Areas(answers []model.AnswerRecord) (strong, weak []string) {
	means := CategoryMeans(answers)
	strong, weak = []string{}, []string{}
	if len(means) == 0 {
		return strong, weak
	}

	var total float64
	for _, m := range means {
		total += m
	}
	overall := total / float64(len(means))

	for c, m := range means {
		switch {
		case m > overall+epsilon:
			strong = append(strong, c)
		case m < overall-epsilon:
			weak = append(weak, c)
		}
	}
	sort.Strings(strong)
	sort.Strings(weak)
	return strong, weak
}

func categoryOf(a model.AnswerRecord) string {
	c := strings.TrimSpace(a.Category)
	if c == "" {
		return model.DefaultCategory
	}
	return c
}

// Rate labels a single answer score the way the evaluation service does.
func Rate(total int) (performance, emoji string) {
	switch {
	case total >= 80:
		return "Excellent", "🌟"
	case total >= 60:
		return "Good", "👍"
	case total >= 40:
		return "Fair", "😐"
	default:
		return "Poor", "❌"
	}
}
