package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.starlark.net/starlark"
)

func run(t *testing.T, src string, env Env) (*Result, error) {
	t.Helper()
	r := NewRunner(Limits{})
	return r.Run(context.Background(), src, env)
}

func mustRun(t *testing.T, src string, env Env) *Result {
	t.Helper()
	res, err := run(t, src, env)
	if err != nil {
		t.Fatalf("Run(%q): %v", src, err)
	}
	return res
}

func TestNewRunnerDefaults(t *testing.T) {
	r := NewRunner(Limits{MaxSteps: 10})
	got := r.Limits()
	if got.MaxSteps != 10 {
		t.Errorf("MaxSteps = %d, want 10", got.MaxSteps)
	}
	if got.Timeout != DefaultLimits.Timeout {
		t.Errorf("Timeout = %v, want %v", got.Timeout, DefaultLimits.Timeout)
	}
	if got.MaxOutput != DefaultLimits.MaxOutput {
		t.Errorf("MaxOutput = %d, want %d", got.MaxOutput, DefaultLimits.MaxOutput)
	}
}

func TestRunOutput(t *testing.T) {
	tests := []struct {
		name string
		src  string
		vars Vars
		want string
	}{
		{"float", "x = 7.0\nprint(x)\n", nil, "7.0\n"},
		{"division", "print(7 / 2)\n", nil, "3.5\n"},
		{"fixture", "print(\"Hello, \" + name)\n", Vars{"name": "Alice"}, "Hello, Alice\n"},
		{"f-string", "print(f\"Hello, {name}!\")\n", Vars{"name": "Bob"}, "Hello, Bob!\n"},
		{"ternary", "print(\"adult\" if age >= 18 else \"minor\")\n", Vars{"age": 18}, "adult\n"},
		{"loop", "for n in nums:\n    print(n)\n", Vars{"nums": []int{1, 2, 3}}, "1\n2\n3\n"},
		{"sep and end", "print(1, 2, sep=\"-\", end=\"!\")\n", nil, "1-2!"},
		{"python reprs", "print([None, True, 'a', 1.5], {'k': (1,)})\n", nil, "[None, True, 'a', 1.5] {'k': (1,)}\n"},
		{"format spec", "print(f\"{3.14159:.2f}|{42:>5}|{'ab':<4}|\")\n", nil, "3.14|   42|ab  |\n"},
		{"lowered operators", "x = 5\nprint(1 < 2 < 3, 2 ** 10, 2 ** -1, x is not None)\n", nil, "True 1024 0.5 True\n"},
		{"round", "print(round(2.5), round(3.5), round(2.666, 2))\n", nil, "2 4 2.67\n"},
		{"while loop", "i = 0\nwhile i < 3:\n    i += 1\nprint(i)\n", nil, "3\n"},
		{"json dumps", "import json\nprint(json.dumps({\"a\": [1, 2.5, None]}))\n", nil, "{\"a\": [1, 2.5, null]}\n"},
		{"math", "from math import sqrt\nprint(sqrt(16))\n", nil, "4.0\n"},
		{"string loop", "for ch in name:\n    print(ch)\n", Vars{"name": "hé"}, "h\né\n"},
		{"untaken branch", "if False:\n    print(missing)\nprint(\"ok\")\n", nil, "ok\n"},
		{"uncalled function", "def unused():\n    return helper()\nprint(\"ok\")\n", nil, "ok\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustRun(t, tt.src, Env{Vars: tt.vars})
			if res.Output != tt.want {
				t.Errorf("Output = %q, want %q", res.Output, tt.want)
			}
		})
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"undefined name", "print(y)\n", "NameError: name 'y' is not defined"},
		{"unknown module", "import numpy\n", "ModuleNotFoundError: No module named 'numpy'"},
		{"missing file", "open(\"nope.txt\")\n", "FileNotFoundError: [Errno 2] No such file or directory: 'nope.txt'"},
		{"input", "x = input()\n", "EOFError: EOF when reading a line"},
		{"misspelled name", "name = 1\nprint(nme)\n", "NameError: name 'nme' is not defined"},
		{"undefined in function", "def f():\n    return helper()\nf()\n", "NameError: name 'helper' is not defined"},
		{"not iterable", "for x in 5:\n    pass\n", "TypeError: 'int' object is not iterable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.src, Env{})
			var re *RuntimeError
			if !errors.As(err, &re) {
				t.Fatalf("expected *RuntimeError, got %v", err)
			}
			if re.Msg != tt.wantMsg {
				t.Errorf("Msg = %q, want %q", re.Msg, tt.wantMsg)
			}
		})
	}
}

func TestRunSyntaxError(t *testing.T) {
	res, err := run(t, "print(\"hi\"\n", Env{})
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SyntaxError, got %v", err)
	}
	if !strings.HasPrefix(se.Error(), "SyntaxError: ") {
		t.Errorf("Error() = %q, want SyntaxError prefix", se.Error())
	}
	if res == nil || res.Output != "" {
		t.Errorf("expected empty partial result, got %+v", res)
	}
}

func TestRunPartialOutput(t *testing.T) {
	res, err := run(t, "print(\"before\")\nprint(missing)\n", Env{})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Output != "before\n" {
		t.Errorf("Output = %q, want %q", res.Output, "before\n")
	}
}

func TestRunStepLimit(t *testing.T) {
	r := NewRunner(Limits{MaxSteps: 10_000})
	_, err := r.Run(context.Background(), "while True:\n    pass\n", Env{})
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuntimeError, got %v", err)
	}
	if re.Msg != "TimeoutError: step limit exceeded" {
		t.Errorf("Msg = %q, want step limit", re.Msg)
	}
}

func TestRunTimeout(t *testing.T) {
	r := NewRunner(Limits{MaxSteps: 1 << 62, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := r.Run(context.Background(), "while True:\n    pass\n", Env{})
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuntimeError, got %v", err)
	}
	if re.Msg != "TimeoutError: execution timed out" {
		t.Errorf("Msg = %q, want timeout", re.Msg)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("run took %v", elapsed)
	}
}

func TestRunOutputLimit(t *testing.T) {
	r := NewRunner(Limits{MaxOutput: 16})
	res, err := r.Run(context.Background(), "for i in range(100):\n    print(\"line\")\n", Env{})
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuntimeError, got %v", err)
	}
	if re.Msg != "RuntimeError: output limit exceeded" {
		t.Errorf("Msg = %q, want output limit", re.Msg)
	}
	if len(res.Output) != 16 {
		t.Errorf("len(Output) = %d, want 16", len(res.Output))
	}
}

func TestRunOutputLimitKeepsRunes(t *testing.T) {
	r := NewRunner(Limits{MaxOutput: 5})
	res, _ := r.Run(context.Background(), "print(\"aaaaé\")\n", Env{})
	if res.Output != "aaaa" {
		t.Errorf("Output = %q, want %q", res.Output, "aaaa")
	}
	if !utf8.ValidString(res.Output) {
		t.Errorf("Output %q is not valid UTF-8", res.Output)
	}
}

func TestResultVar(t *testing.T) {
	res := mustRun(t, "evens = [n for n in range(11) if n % 2 == 0]\n", Env{})
	v, ok := res.Var("evens")
	if !ok {
		t.Fatal("evens not bound")
	}
	if !Equal(v, []int{0, 2, 4, 6, 8, 10}) {
		t.Errorf("evens = %s, want [0, 2, 4, 6, 8, 10]", v)
	}
	if _, ok := res.Var("print"); ok {
		t.Error("builtins must not be reported as variables")
	}
	if _, ok := res.Var("missing"); ok {
		t.Error("missing reported as bound")
	}
}

func TestResultVarSeesMutatedFixture(t *testing.T) {
	env := Env{Vars: Vars{"student": Dict{{"name", "Alex"}}}}
	res := mustRun(t, "student[\"grade\"] = 95\n", env)
	v, ok := res.Var("student")
	if !ok {
		t.Fatal("student not bound")
	}
	if !Equal(v, Dict{{"name", "Alex"}, {"grade", 95}}) {
		t.Errorf("student = %s", v)
	}
}

func TestResultCall(t *testing.T) {
	res := mustRun(t, "def square(n):\n    return n ** 2\n", Env{})
	tests := []struct {
		n    int
		want int
	}{{2, 4}, {5, 25}, {0, 0}, {-3, 9}}
	for _, tt := range tests {
		got, err := res.Call(context.Background(), "square", tt.n)
		if err != nil {
			t.Fatalf("square(%d): %v", tt.n, err)
		}
		if !Equal(got, tt.want) {
			t.Errorf("square(%d) = %s, want %d", tt.n, got, tt.want)
		}
	}

	if _, err := res.Call(context.Background(), "cube", 2); err == nil {
		t.Error("expected error calling undefined function")
	}
}

func TestResultCallNotCallable(t *testing.T) {
	res := mustRun(t, "square = 4\n", Env{})
	_, err := res.Call(context.Background(), "square", 2)
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuntimeError, got %v", err)
	}
	if re.Msg != "TypeError: 'int' object is not callable" {
		t.Errorf("Msg = %q", re.Msg)
	}
}

func TestRunFiles(t *testing.T) {
	env := Env{Files: map[string]string{"data.txt": "Line 1\nLine 2\n", "log.txt": "existing content\n"}}
	src := `with open("data.txt") as f:
    text = f.read()
with open("log.txt", "a") as log:
    log.write("done\n")
lines = open("data.txt").readlines()
`
	res := mustRun(t, src, env)
	text, _ := res.Var("text")
	if !Equal(text, "Line 1\nLine 2\n") {
		t.Errorf("text = %s", text)
	}
	lines, _ := res.Var("lines")
	if !Equal(lines, []string{"Line 1\n", "Line 2\n"}) {
		t.Errorf("lines = %s", lines)
	}
	got, err := res.ReadFile("log.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != "existing content\ndone\n" {
		t.Errorf("log.txt = %q, want %q", got, "existing content\ndone\n")
	}
}

func TestRunFilesAreIsolated(t *testing.T) {
	mustRun(t, "open(\"out.txt\", \"w\").write(\"x\")\n", Env{})
	res := mustRun(t, "pass\n", Env{})
	if _, err := res.ReadFile("out.txt"); err == nil {
		t.Error("file leaked between runs")
	}
}

func TestRunInjectedModule(t *testing.T) {
	mod := starlark.String("injected")
	env := Env{Modules: map[string]starlark.Value{"json": mod}}
	res := mustRun(t, "import json\n", env)
	v, _ := res.Var("json")
	if v != mod {
		t.Errorf("json = %s, want injected value", v)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(Limits{MaxSteps: 1 << 62})
	_, err := r.Run(ctx, "while True:\n    pass\n", Env{})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
