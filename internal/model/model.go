package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QuestionKind tells the client how a question is answered.
type QuestionKind string

const (
	// KindCoding questions take a Python snippet.
	KindCoding QuestionKind = "coding"
	// KindMultipleChoice questions take a single option letter.
	KindMultipleChoice QuestionKind = "multiple_choice"
)

// Option is one answer of a multiple-choice question.
type Option struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// QuestionInfo describes a question for the client. It never carries the
// expected answer.
type QuestionInfo struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Category string       `json:"category"`
	Kind     QuestionKind `json:"kind"`
	Prompt   string       `json:"prompt"`
	Options  []Option     `json:"options,omitempty"`
}

// TestResult is the outcome of one labelled test case.
type TestResult struct {
	Label  string
	Passed bool
}

// TestResults keeps test cases in the order they ran. It encodes as a JSON
// object mapping label to outcome.
type TestResults []TestResult

// Add records a test case. A label that is already present is overwritten.
func (tr *TestResults) Add(label string, passed bool) {
	for i := range *tr {
		if (*tr)[i].Label == label {
			(*tr)[i].Passed = passed
			return
		}
	}
	*tr = append(*tr, TestResult{Label: label, Passed: passed})
}

// Get returns the outcome recorded for label.
func (tr TestResults) Get(label string) (passed, ok bool) {
	for _, t := range tr {
		if t.Label == label {
			return t.Passed, true
		}
	}
	return false, false
}

// AllPassed reports whether no recorded test case failed.
func (tr TestResults) AllPassed() bool {
	for _, t := range tr {
		if !t.Passed {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the results as an ordered JSON object.
func (tr TestResults) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range tr {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(t.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%t", t.Passed)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of label to outcome, keeping key order.
func (tr *TestResults) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*tr = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("test results: expected object, got %v", tok)
	}
	var out TestResults
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, _ := tok.(string)
		var passed bool
		if err := dec.Decode(&passed); err != nil {
			return fmt.Errorf("test results: %s: %w", label, err)
		}
		out = append(out, TestResult{Label: label, Passed: passed})
	}
	*tr = out
	return nil
}

// Verdict is the result of grading one submission. Passed is true iff every
// test case passed.
type Verdict struct {
	Passed  bool        `json:"passed"`
	Tests   TestResults `json:"tests"`
	Output  string      `json:"output"`
	Message string      `json:"message"`
	// MessageID selects a localized Message. Message is the English text.
	MessageID string `json:"-"`
}

// Attempt is one graded submission kept in the attempt log.
type Attempt struct {
	ID         int64       `json:"id"`
	QuestionID string      `json:"question_id"`
	Submission string      `json:"submission"`
	Passed     bool        `json:"passed"`
	Tests      TestResults `json:"tests"`
	Output     string      `json:"output"`
	Message    string      `json:"message"`
	CreatedAt  time.Time   `json:"created_at"`
}

// QuestionStats aggregates the attempt log for one question.
type QuestionStats struct {
	QuestionID  string     `json:"question_id"`
	Attempts    int        `json:"attempts"`
	Passed      int        `json:"passed"`
	PassRate    float64    `json:"pass_rate"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
}

// ServerConfig holds runtime settings for the HTTP layer set via CLI flags.
type ServerConfig struct {
	Lang              string        // fallback language for messages and hints
	AdminUser         string        // basic auth user for /admin
	AdminPasswordHash string        // bcrypt hash; empty leaves /admin open
	HintTimeout       time.Duration // upper bound for one hint request
	MaxBodyBytes      int64
}

type adminCtxKey struct{}

// ContextWithAdmin stores the authenticated admin name in the request context.
func ContextWithAdmin(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, adminCtxKey{}, name)
}

// AdminFromContext retrieves the authenticated admin name, or "".
func AdminFromContext(ctx context.Context) string {
	name, _ := ctx.Value(adminCtxKey{}).(string)
	return name
}
