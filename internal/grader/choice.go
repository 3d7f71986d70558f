package grader

import (
	"context"
	"strings"

	"github.com/pavelanni/codeboard/internal/model"
)

// choice grades a multiple-choice answer against a single letter.
type choice struct {
	id      string
	answer  string
	success string
}

func (c choice) Validate(_ context.Context, submission string) model.Verdict {
	var t tally
	selected := strings.TrimSpace(submission)
	t.record("test_1", strings.ToUpper(selected) == c.answer)
	t.show("Selected: " + selected)
	v := t.verdict(c.id, c.success, "Incorrect. Try again!")
	if !v.Passed {
		v.MessageID = "IncorrectChoice"
	}
	return v
}
