package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Templates holds the built-in evaluation prompts.
//
//go:embed templates/*.txt
var Templates embed.FS

const maxAnswerRunes = 10000

var (
	candidateAnswerRegex    = regexp.MustCompile(`(?i)</?\s*candidate-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)

	stripPolicy = bluemonday.StrictPolicy()
)

// PromptVariant represents an evaluation prompt variant.
type PromptVariant string

const (
	// PromptStrict only credits precise answers.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default evaluation variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient gives partial credit generously.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce      sync.Once
	loadErr       error
	evalTemplates map[PromptVariant]*template.Template
)

var funcs = template.FuncMap{"join": strings.Join}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// EvalData holds template data for evaluation prompts.
type EvalData struct {
	Role             string
	QuestionText     string
	Category         string
	ExpectedKeywords []string
	Answer           string
}

// Load parses the evaluation templates from fsys. Only the first call has
// any effect.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		evalTemplates = make(map[PromptVariant]*template.Template)
		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			file := "templates/eval_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New("eval").Funcs(funcs).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			evalTemplates[v] = tmpl
		}
	})
	return loadErr
}

// BuildEvalPrompt renders the evaluation prompt for variant. The answer is
// sanitized before rendering.
func BuildEvalPrompt(variant PromptVariant, data EvalData) (string, error) {
	if evalTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := evalTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data.Answer = sanitizeAnswer(data.Answer)
	if data.Category == "" {
		data.Category = "General"
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeAnswer drops markup and prompt delimiters from a candidate answer
// and caps its length.
func sanitizeAnswer(answer string) string {
	answer = html.UnescapeString(stripPolicy.Sanitize(answer))
	answer = candidateAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
