// Package sandbox evaluates learner submissions in an embedded Starlark
// interpreter with Python-compatible builtins and resource limits.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/afero"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const filename = "submission.py"

func init() {
	// Python allows sets, top-level control flow, rebinding and while loops.
	resolve.AllowSet = true
	resolve.AllowGlobalReassign = true
	resolve.AllowRecursion = true
}

// Limits bound a single evaluation.
type Limits struct {
	MaxSteps  uint64
	Timeout   time.Duration
	MaxOutput int
}

// DefaultLimits are used for any zero field passed to NewRunner.
var DefaultLimits = Limits{
	MaxSteps:  1_000_000,
	Timeout:   2 * time.Second,
	MaxOutput: 64 << 10,
}

// Runner evaluates submissions. It is safe for concurrent use.
type Runner struct {
	limits Limits
}

// NewRunner returns a Runner with the given limits.
func NewRunner(limits Limits) *Runner {
	if limits.MaxSteps == 0 {
		limits.MaxSteps = DefaultLimits.MaxSteps
	}
	if limits.Timeout <= 0 {
		limits.Timeout = DefaultLimits.Timeout
	}
	if limits.MaxOutput <= 0 {
		limits.MaxOutput = DefaultLimits.MaxOutput
	}
	return &Runner{limits: limits}
}

// Limits returns the limits applied to every evaluation.
func (r *Runner) Limits() Limits {
	return r.limits
}

// Vars are fixture values injected into the namespace. Values are converted
// with ValueOf.
type Vars map[string]any

// Env describes the namespace a submission runs against.
type Env struct {
	Vars Vars
	// Modules are importable by name and take precedence over the
	// built-in json and math modules.
	Modules map[string]starlark.Value
	// Files seeds the in-memory filesystem seen by open().
	Files map[string]string
}

// Result is the state of a namespace after evaluation.
type Result struct {
	Output string

	runner      *Runner
	state       *runState
	globals     starlark.StringDict
	predeclared starlark.StringDict
}

// runState is shared by the builtins of one evaluation through a thread local.
type runState struct {
	out     *output
	fs      afero.Fs
	modules map[string]starlark.Value
}

const localState = "codeboard.sandbox.state"

func stateOf(thread *starlark.Thread) *runState {
	st, _ := thread.Local(localState).(*runState)
	return st
}

type output struct {
	buf      strings.Builder
	limit    int
	cancel   func(string)
	exceeded bool
}

func (o *output) write(s string) {
	if o.exceeded {
		return
	}
	if o.buf.Len()+len(s) > o.limit {
		cut := o.limit - o.buf.Len()
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		o.buf.WriteString(s[:cut])
		o.exceeded = true
		if o.cancel != nil {
			o.cancel(reasonOutputLimit)
		}
		return
	}
	o.buf.WriteString(s)
}

// Check reports whether src parses. It returns a *SyntaxError when it does not.
func Check(src string) error {
	p, err := lower(src)
	if err != nil {
		return err
	}
	if _, err := syntax.Parse(filename, p.text, 0); err != nil {
		return p.translate(err)
	}
	return nil
}

// Run evaluates src in a fresh namespace built from env. Everything the
// submission prints is collected in Result.Output. On evaluation failure the
// partial result is returned together with a *SyntaxError or *RuntimeError.
func (r *Runner) Run(ctx context.Context, src string, env Env) (*Result, error) {
	p, err := lower(src)
	if err != nil {
		return &Result{runner: r}, err
	}

	fs := afero.NewMemMapFs()
	for name, content := range env.Files {
		if err := afero.WriteFile(fs, name, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("seed file %s: %w", name, err)
		}
	}
	modules := make(map[string]starlark.Value, len(stdModules)+len(env.Modules))
	for name, m := range stdModules {
		modules[name] = m
	}
	for name, m := range env.Modules {
		modules[name] = m
	}

	predeclared := builtins()
	for name, v := range env.Vars {
		sv, err := ValueOf(v)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", name, err)
		}
		predeclared[name] = sv
	}

	res := &Result{
		runner:      r,
		state:       &runState{out: &output{limit: r.limits.MaxOutput}, fs: fs, modules: modules},
		predeclared: predeclared,
	}
	prog, err := p.compile(predeclared.Has)
	if err != nil {
		return res, p.translate(err)
	}
	thread, stop := r.thread(ctx, res.state)
	globals, err := prog.Init(thread, predeclared)
	stop()

	res.globals = globals
	res.Output = res.state.out.buf.String()
	if err != nil {
		return res, p.translate(err)
	}
	return res, nil
}

// maxResolvePasses bounds how often compile rewrites unresolved names.
const maxResolvePasses = 3

// compile parses and resolves the lowered program. Names the resolver cannot
// find are rewritten into __undefined__("name") calls, so the NameError is
// raised when the reference runs, not before the first statement.
func (p *program) compile(isPredeclared func(string) bool) (*starlark.Program, error) {
	for pass := 0; ; pass++ {
		_, prog, err := starlark.SourceProgram(filename, p.text, isPredeclared)
		if err == nil {
			return prog, nil
		}
		var list resolve.ErrorList
		if pass == maxResolvePasses || !errors.As(err, &list) {
			return nil, err
		}
		text, ok := deferUndefined(p.text, list)
		if !ok {
			return nil, err
		}
		p.text = text
	}
}

// deferUndefined replaces every identifier reported as undefined in list
// with a call to __undefined__. Line numbers are preserved.
func deferUndefined(text string, list resolve.ErrorList) (string, bool) {
	type edit struct {
		at   int
		name string
	}
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	seen := make(map[int]bool)
	var edits []edit
	for _, e := range list {
		m := undefinedName.FindStringSubmatch(e.Msg)
		if m == nil {
			continue
		}
		line, col := int(e.Pos.Line), int(e.Pos.Col)
		if line < 1 || line > len(starts) || col < 1 {
			continue
		}
		at := starts[line-1]
		for n := 1; n < col && at < len(text); n++ {
			_, size := utf8.DecodeRuneInString(text[at:])
			at += size
		}
		if seen[at] || !identAt(text, at, m[1]) {
			continue
		}
		seen[at] = true
		edits = append(edits, edit{at: at, name: m[1]})
	}
	if len(edits) == 0 {
		return text, false
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].at > edits[j].at })
	for _, e := range edits {
		text = text[:e.at] + fmt.Sprintf("__undefined__(%q)", e.name) + text[e.at+len(e.name):]
	}
	return text, true
}

// identAt reports whether the identifier name starts at offset at of text.
func identAt(text string, at int, name string) bool {
	if !strings.HasPrefix(text[at:], name) {
		return false
	}
	end := at + len(name)
	if end == len(text) {
		return true
	}
	c := text[end]
	return !(c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= utf8.RuneSelf)
}

// thread returns a thread bound to st whose evaluation is cancelled when ctx
// is done or the timeout elapses. stop must be called once evaluation ends.
func (r *Runner) thread(ctx context.Context, st *runState) (*starlark.Thread, func()) {
	thread := &starlark.Thread{
		Name: "submission",
		Print: func(_ *starlark.Thread, msg string) {
			st.out.write(msg + "\n")
		},
	}
	thread.SetMaxExecutionSteps(r.limits.MaxSteps)
	thread.SetLocal(localState, st)
	st.out.cancel = thread.Cancel

	ctx, cancel := context.WithTimeout(ctx, r.limits.Timeout)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			select {
			case <-done:
				return
			default:
			}
			thread.Cancel(reasonTimeout)
		case <-done:
		}
	}()
	return thread, func() {
		close(done)
		cancel()
	}
}

// Var returns the value bound to name after evaluation. Fixture values that
// were mutated in place are visible through Var as well.
func (r *Result) Var(name string) (starlark.Value, bool) {
	if v, ok := r.globals[name]; ok {
		return v, true
	}
	if _, builtin := universe[name]; builtin {
		return nil, false
	}
	v, ok := r.predeclared[name]
	return v, ok
}

// Call invokes the callable bound to name with Go arguments converted by
// ValueOf. Output produced by the call is appended to Result.Output.
func (r *Result) Call(ctx context.Context, name string, args ...any) (starlark.Value, error) {
	fn, ok := r.Var(name)
	if !ok {
		return nil, &RuntimeError{Msg: fmt.Sprintf("NameError: name '%s' is not defined", name)}
	}
	if _, ok := fn.(starlark.Callable); !ok {
		return nil, &RuntimeError{Msg: fmt.Sprintf("TypeError: '%s' object is not callable", pyTypeName(fn))}
	}
	sargs := make(starlark.Tuple, len(args))
	for i, a := range args {
		v, err := ValueOf(a)
		if err != nil {
			return nil, err
		}
		sargs[i] = v
	}

	thread, stop := r.runner.thread(ctx, r.state)
	v, err := starlark.Call(thread, fn, sargs, nil)
	stop()
	r.Output = r.state.out.buf.String()
	if err != nil {
		return nil, (&program{}).translate(err)
	}
	return v, nil
}

// ReadFile returns the content of a file in the evaluation's filesystem.
func (r *Result) ReadFile(name string) (string, error) {
	if r.state == nil {
		return "", fmt.Errorf("read %s: no filesystem", name)
	}
	b, err := afero.ReadFile(r.state.fs, name)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(b), nil
}

// Equal reports whether v == want in Python after want is converted with
// ValueOf.
func Equal(v starlark.Value, want any) bool {
	if v == nil {
		return false
	}
	w, err := ValueOf(want)
	if err != nil {
		return false
	}
	return PyEqual(v, w)
}
