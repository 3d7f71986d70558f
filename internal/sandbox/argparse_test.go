package sandbox

import (
	"errors"
	"strings"
	"testing"

	"go.starlark.net/starlark"
)

func TestArgumentParserDescription(t *testing.T) {
	res := mustRun(t, "import argparse\nparser = argparse.ArgumentParser(description=\"Demo script\")\n", Env{})
	v, ok := res.Var("parser")
	if !ok {
		t.Fatal("parser not bound")
	}
	p, ok := v.(*ArgumentParser)
	if !ok {
		t.Fatalf("parser is %s, want ArgumentParser", v.Type())
	}
	desc, ok := p.Description()
	if !ok || desc != "Demo script" {
		t.Errorf("Description() = %q, %v, want %q", desc, ok, "Demo script")
	}
}

func TestArgumentParserInjected(t *testing.T) {
	p := NewArgumentParser()
	mustRun(t, "parser.add_argument(\"filename\", type=str, help=\"input file\")\n", Env{Vars: Vars{"parser": p}})

	a, ok := p.Argument("filename")
	if !ok {
		t.Fatal("filename argument not registered")
	}
	if !a.Required || !a.Positional() {
		t.Errorf("filename: Required = %v, Positional = %v, want both true", a.Required, a.Positional())
	}

	ns, err := p.Parse([]string{"test.txt"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, _ := ns.Get("filename")
	if got != starlark.String("test.txt") {
		t.Errorf("filename = %s, want \"test.txt\"", got)
	}
}

func TestArgumentParserParse(t *testing.T) {
	src := `import argparse
parser = argparse.ArgumentParser(prog="tool")
parser.add_argument("path")
parser.add_argument("-n", "--count", type=int, default=1)
parser.add_argument("--verbose", action="store_true")
args = parser.parse_args(["in.txt", "--count", "3", "--verbose"])
print(args.path, args.count, args.verbose)
`
	res := mustRun(t, src, Env{})
	if res.Output != "in.txt 3 True\n" {
		t.Errorf("Output = %q, want %q", res.Output, "in.txt 3 True\n")
	}
}

func TestArgumentParserDefaults(t *testing.T) {
	src := `from argparse import ArgumentParser
parser = ArgumentParser()
parser.add_argument("--name", type=str, default="test")
args = parser.parse_args()
`
	res := mustRun(t, src, Env{})
	v, _ := res.Var("args")
	ns, ok := v.(*Object)
	if !ok {
		t.Fatalf("args is %s, want Namespace", v.Type())
	}
	if got, _ := ns.Get("name"); got != starlark.String("test") {
		t.Errorf("name = %s, want \"test\"", got)
	}
	if ns.String() != "Namespace(name='test')" {
		t.Errorf("String() = %q", ns.String())
	}
}

func TestArgumentParserMissingRequired(t *testing.T) {
	src := "import argparse\np = argparse.ArgumentParser()\np.add_argument(\"filename\")\np.parse_args([])\n"
	res, err := run(t, src, Env{})
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuntimeError, got %v", err)
	}
	if re.Msg != "SystemExit: 2" {
		t.Errorf("Msg = %q, want SystemExit: 2", re.Msg)
	}
	want := "main.py: error: the following arguments are required: filename"
	if !strings.Contains(res.Output, want) {
		t.Errorf("Output = %q, want it to contain %q", res.Output, want)
	}
}

func TestArgumentParserInvalidType(t *testing.T) {
	p := NewArgumentParser()
	mustRun(t, "parser.add_argument(\"--count\", type=int)\n", Env{Vars: Vars{"parser": p}})
	if _, err := p.Parse([]string{"--count", "many"}); err == nil {
		t.Error("expected error for non-integer count")
	}
}

func TestArgumentParserHelp(t *testing.T) {
	src := "import argparse\np = argparse.ArgumentParser(description=\"Demo script\")\np.add_argument(\"filename\", help=\"file to read\")\np.print_help()\n"
	res := mustRun(t, src, Env{})
	for _, want := range []string{"usage: main.py [-h] filename", "Demo script", "  filename  file to read"} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("help output missing %q:\n%s", want, res.Output)
		}
	}
}
