package prompts

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/codeboard/internal/model"
)

var (
	studentCodeRegex        = regexp.MustCompile(`(?i)</?\s*student-code\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// maxSubmissionRunes bounds the submission text placed into a prompt.
const maxSubmissionRunes = 4000

// PromptVariant represents a hint prompt variant.
type PromptVariant string

const (
	// PromptStandard points at the mistake directly.
	PromptStandard PromptVariant = "standard"
	// PromptSocratic only asks a guiding question.
	PromptSocratic PromptVariant = "socratic"
)

var validVariants = map[PromptVariant]bool{
	PromptStandard: true,
	PromptSocratic: true,
}

var (
	loadOnce      sync.Once
	loadErr       error
	hintTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// HintData holds template data for hint prompts.
type HintData struct {
	Title       string
	Category    string
	Prompt      string
	Submission  string
	Output      string
	FailedTests []string
	Language    string
}

// Load loads prompt templates from fsys. Templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		hintTemplates = make(map[PromptVariant]*template.Template)
		for _, v := range []PromptVariant{PromptStandard, PromptSocratic} {
			file := "prompts/hint_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}
			tmpl, err := template.New("hint").Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			hintTemplates[v] = tmpl
		}
	})
	return loadErr
}

// BuildHintPrompt builds the system prompt asking for a hint about a failed
// submission. lang names the language the hint should be written in.
func BuildHintPrompt(variant PromptVariant, q model.QuestionInfo, submission string, v model.Verdict, lang string) (string, error) {
	if hintTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := hintTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data := HintData{
		Title:       q.Title,
		Category:    q.Category,
		Prompt:      q.Prompt,
		Submission:  sanitizeSubmission(submission),
		Output:      sanitizeSubmission(v.Output),
		FailedTests: FailedTests(v.Tests),
		Language:    languageName(lang),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FailedTests returns the labels of the failing test cases in order.
func FailedTests(tests model.TestResults) []string {
	var failed []string
	for _, t := range tests {
		if !t.Passed {
			failed = append(failed, t.Label)
		}
	}
	return failed
}

func languageName(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "ru":
		return "Russian"
	default:
		return "English"
	}
}

func sanitizeSubmission(s string) string {
	s = studentCodeRegex.ReplaceAllString(s, "")
	s = systemInstructionsRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if s == "" {
		return "[empty]"
	}

	if utf8.RuneCountInString(s) > maxSubmissionRunes {
		runes := []rune(s)
		s = string(runes[:maxSubmissionRunes]) + "\n\n[truncated due to length]"
	}
	return s
}
