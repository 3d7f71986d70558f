package grader

import (
	"context"
	"strings"

	"go.starlark.net/starlark"

	"github.com/pavelanni/codeboard/internal/model"
	"github.com/pavelanni/codeboard/internal/sandbox"
)

// tally accumulates test cases and the output shown to the learner.
type tally struct {
	tests     model.TestResults
	output    string
	outputSet bool
}

func (t *tally) record(label string, passed bool) {
	t.tests.Add(label, passed)
}

// show sets the displayed output. Only the first call has an effect.
func (t *tally) show(output string) {
	if t.outputSet {
		return
	}
	t.output, t.outputSet = output, true
}

// fail records a failing case and, if nothing is displayed yet, the error.
func (t *tally) fail(label string, err error) {
	t.record(label, false)
	t.show(errorOutput(err))
}

// verdict assembles the result. id selects the localized pass or fail message.
func (t *tally) verdict(id, success, failure string) model.Verdict {
	passed := t.tests.AllPassed()
	v := model.Verdict{
		Passed: passed,
		Tests:  t.tests,
		Output: t.output,
	}
	if passed {
		v.Message, v.MessageID = success, id+".pass"
	} else {
		v.Message, v.MessageID = failure, id+".fail"
	}
	return v
}

func errorOutput(err error) string {
	return "Error: " + err.Error()
}

// normalizeOutput trims trailing whitespace from every line, drops trailing
// blank lines and strips the result.
func normalizeOutput(s string) string {
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, " \t\r")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// orDefault returns s, or placeholder when s is empty.
func orDefault(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}

// evaluate runs code against env and returns the result with normalized output.
func evaluate(ctx context.Context, r *sandbox.Runner, code string, env sandbox.Env) (*sandbox.Result, string, error) {
	res, err := r.Run(ctx, code, env)
	if err != nil {
		return res, "", err
	}
	return res, normalizeOutput(res.Output), nil
}

// varEquals reports whether name is bound after evaluation and equals want.
func varEquals(res *sandbox.Result, name string, want any) bool {
	v, ok := res.Var(name)
	return ok && sandbox.Equal(v, want)
}

// firstSet returns the value of the first name bound to something other than
// None, the way `a if a is not None else b` picks one.
func firstSet(res *sandbox.Result, names ...string) (starlark.Value, bool) {
	for _, name := range names {
		if v, ok := res.Var(name); ok && v != starlark.None {
			return v, true
		}
	}
	return nil, false
}

// attr returns the attribute of v like Python's getattr with a default of None.
func attr(v starlark.Value, name string) (starlark.Value, bool) {
	ha, ok := v.(starlark.HasAttrs)
	if !ok {
		return nil, false
	}
	a, err := ha.Attr(name)
	if err != nil || a == nil {
		return nil, false
	}
	return a, true
}

// dictGet looks up a string key of a dict value.
func dictGet(v starlark.Value, key string) (starlark.Value, bool) {
	m, ok := v.(starlark.Mapping)
	if !ok {
		return nil, false
	}
	got, found, err := m.Get(starlark.String(key))
	if err != nil || !found {
		return nil, false
	}
	return got, true
}

// callMethod calls a method of a Starlark value with string keyword arguments.
func callMethod(v starlark.Value, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	fn, ok := attr(v, name)
	if !ok {
		return nil, &sandbox.RuntimeError{Msg: "AttributeError: no attribute " + name}
	}
	thread := &starlark.Thread{Name: "grader"}
	return starlark.Call(thread, fn, args, kwargs)
}
