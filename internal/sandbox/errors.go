package sandbox

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// SyntaxError reports a submission that could not be parsed. Line refers to
// the submission as written.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("SyntaxError: %s (line %d)", e.Msg, e.Line)
	}
	return "SyntaxError: " + e.Msg
}

// RuntimeError reports a failure while a submission was running.
type RuntimeError struct {
	Msg string
}

func (e *RuntimeError) Error() string {
	return e.Msg
}

const (
	reasonTimeout     = "execution timed out"
	reasonOutputLimit = "output limit exceeded"
)

var (
	undefinedName    = regexp.MustCompile(`^undefined: (\S+)`)
	beforeAssignment = regexp.MustCompile(`^global variable (\w+) referenced before assignment$`)
)

// translate converts interpreter errors into SyntaxError or RuntimeError.
func (p *program) translate(err error) error {
	var se *SyntaxError
	if errors.As(err, &se) {
		return se
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return re
	}

	var perr syntax.Error
	if errors.As(err, &perr) {
		return &SyntaxError{Line: p.origLine(int(perr.Pos.Line)), Msg: perr.Msg}
	}

	var list resolve.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		if m := undefinedName.FindStringSubmatch(first.Msg); m != nil {
			return &RuntimeError{Msg: fmt.Sprintf("NameError: name '%s' is not defined", m[1])}
		}
		return &SyntaxError{Line: p.origLine(int(first.Pos.Line)), Msg: first.Msg}
	}

	var eval *starlark.EvalError
	if errors.As(err, &eval) {
		return &RuntimeError{Msg: runtimeMessage(eval.Msg)}
	}
	return &RuntimeError{Msg: runtimeMessage(err.Error())}
}

func runtimeMessage(msg string) string {
	switch {
	case strings.Contains(msg, "too many steps"):
		return "TimeoutError: step limit exceeded"
	case strings.Contains(msg, reasonTimeout):
		return "TimeoutError: " + reasonTimeout
	case strings.Contains(msg, reasonOutputLimit):
		return "RuntimeError: " + reasonOutputLimit
	}
	msg = strings.TrimPrefix(msg, "fail: ")
	if m := beforeAssignment.FindStringSubmatch(msg); m != nil {
		return fmt.Sprintf("NameError: name '%s' is not defined", m[1])
	}
	return msg
}
