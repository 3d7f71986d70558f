// Package grader maps question ids to their validators and grades
// submissions against them.
package grader

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/pavelanni/codeboard/internal/model"
	"github.com/pavelanni/codeboard/internal/sandbox"
)

// Validator grades one submission for a single question. It never returns
// an error: every failure is reported as a failing test case.
type Validator interface {
	Validate(ctx context.Context, submission string) model.Verdict
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, submission string) model.Verdict

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, submission string) model.Verdict {
	return f(ctx, submission)
}

// Question couples the public description of a question with its validator.
type Question struct {
	Info      model.QuestionInfo
	Validator Validator
}

// Registry is the dispatch table from question id to question.
type Registry struct {
	byID  map[string]Question
	order []string
}

// NewRegistry builds a registry. Question ids must be unique and non-empty.
func NewRegistry(questions ...Question) (*Registry, error) {
	r := &Registry{byID: make(map[string]Question, len(questions))}
	for _, q := range questions {
		id := q.Info.ID
		if id == "" {
			return nil, fmt.Errorf("question with empty id")
		}
		if q.Validator == nil {
			return nil, fmt.Errorf("question %s: no validator", id)
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("duplicate question id %s", id)
		}
		r.byID[id] = q
		r.order = append(r.order, id)
	}
	return r, nil
}

// Lookup returns the question registered under id.
func (r *Registry) Lookup(id string) (Question, bool) {
	q, ok := r.byID[id]
	return q, ok
}

// Len returns the number of registered questions.
func (r *Registry) Len() int {
	return len(r.order)
}

// Infos returns the question descriptions in registration order.
func (r *Registry) Infos() []model.QuestionInfo {
	infos := make([]model.QuestionInfo, 0, len(r.order))
	for _, id := range r.order {
		infos = append(infos, r.byID[id].Info)
	}
	return infos
}

// Grader is the grading service.
type Grader struct {
	registry *Registry
}

// New returns a Grader over the built-in question set, evaluating coding
// submissions with runner.
func New(runner *sandbox.Runner) (*Grader, error) {
	reg, err := NewRegistry(Questions(runner)...)
	if err != nil {
		return nil, fmt.Errorf("build question registry: %w", err)
	}
	return NewWithRegistry(reg), nil
}

// NewWithRegistry returns a Grader over an arbitrary registry.
func NewWithRegistry(reg *Registry) *Grader {
	return &Grader{registry: reg}
}

// Has reports whether a validator is registered for questionID.
func (g *Grader) Has(questionID string) bool {
	_, ok := g.registry.Lookup(questionID)
	return ok
}

// Question returns the description of questionID.
func (g *Grader) Question(questionID string) (model.QuestionInfo, bool) {
	q, ok := g.registry.Lookup(questionID)
	return q.Info, ok
}

// Questions returns every question description in board order.
func (g *Grader) Questions() []model.QuestionInfo {
	return g.registry.Infos()
}

// Grade runs the validator registered for questionID. It never panics and
// always returns a well-formed verdict.
func (g *Grader) Grade(ctx context.Context, questionID, submission string) (v model.Verdict) {
	q, ok := g.registry.Lookup(questionID)
	if !ok {
		return model.Verdict{
			Tests:     model.TestResults{},
			Message:   "No test found for question_id: " + questionID,
			MessageID: "NoTestFound",
		}
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("validator panicked", "question_id", questionID, "panic", p, "stack", string(debug.Stack()))
			var tests model.TestResults
			tests.Add("test_1", false)
			v = model.Verdict{
				Tests:     tests,
				Output:    fmt.Sprintf("Error: %v", p),
				Message:   "Internal grading error. Please try again.",
				MessageID: "GradingFailed",
			}
		}
	}()
	v = q.Validator.Validate(ctx, submission)
	v.Passed = v.Tests.AllPassed()
	if v.Tests == nil {
		v.Tests = model.TestResults{}
	}
	return v
}
