package grader

import (
	"context"
	"fmt"
	"strings"

	"github.com/pavelanni/codeboard/internal/model"
	"github.com/pavelanni/codeboard/internal/sandbox"
)

// Diagnostics for the with-open check, in the order they are evaluated.
const (
	diagNoWith       = "No with statement found. Open the file with: with open('data.txt') as f:"
	diagNoOpen       = "The with statement does not call open(). Use: with open('data.txt') as f:"
	diagWrongFile    = "open() must be called with the filename 'data.txt'."
	diagWrongVarName = "The file must be bound to a variable named f"
)

// checkWithOpen finds a with statement that opens the literal file name and
// binds it to target. It returns "" when one exists, otherwise the diagnostic
// for the first unmet condition.
func checkWithOpen(items []sandbox.WithItem, file, target string) string {
	if len(items) == 0 {
		return diagNoWith
	}
	var opens, named []sandbox.WithItem
	for _, it := range items {
		if arg, ok := sandbox.OpenCall(it.Expr); ok {
			opens = append(opens, it)
			if name, lit := sandbox.StringLiteral(arg); lit && name == file {
				named = append(named, it)
			}
		}
	}
	switch {
	case len(opens) == 0:
		return diagNoOpen
	case len(named) == 0:
		return diagWrongFile
	}
	for _, it := range named {
		if it.Target == target {
			return ""
		}
	}
	if got := named[0].Target; got != "" {
		return fmt.Sprintf("%s (found '%s').", diagWrongVarName, got)
	}
	return diagWrongVarName + " using 'as f'."
}

// atlantic: open data.txt for reading in a with statement bound to f.
func atlantic(r *sandbox.Runner) Validator {
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		if err := sandbox.Check(code); err != nil {
			t.fail("test_1_syntax", err)
			return atlanticVerdict(&t)
		}
		t.record("test_1_syntax", true)

		items, err := sandbox.WithBlocks(code)
		if err != nil {
			t.fail("test_2_with_open", err)
			return atlanticVerdict(&t)
		}
		if diag := checkWithOpen(items, "data.txt", "f"); diag != "" {
			t.record("test_2_with_open", false)
			t.show(diag)
		} else {
			t.record("test_2_with_open", true)
		}

		env := sandbox.Env{Files: map[string]string{"data.txt": "test content"}}
		_, out, err := evaluate(ctx, r, code, env)
		if err != nil {
			t.fail("test_3_runs", err)
		} else {
			t.show(orDefault(out, "No output (file opened)"))
			t.record("test_3_runs", true)
		}
		return atlanticVerdict(&t)
	})
}

func atlanticVerdict(t *tally) model.Verdict {
	return t.verdict("atlantic_q1",
		"All tests passed! Your code correctly opens the file using a with statement.",
		"Test failed. Make sure you open 'data.txt' for reading using a with statement and assign it to a variable named f.")
}

// ventnor: read the whole of data.txt into text.
func ventnor(r *sandbox.Runner) Validator {
	contents := []string{
		"Hello, world!",
		"Line 1\nLine 2\nLine 3",
		"Single line",
	}
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		for i, content := range contents {
			label := fmt.Sprintf("test_%d", i+1)
			env := sandbox.Env{Files: map[string]string{"data.txt": content}}
			res, out, err := evaluate(ctx, r, code, env)
			if err != nil {
				t.fail(label, err)
				continue
			}
			t.show(orDefault(out, "No output (file read)"))
			t.record(label, varEquals(res, "text", content))
		}
		return t.verdict("ventnor_q1",
			"All tests passed! Your code correctly reads the file contents.",
			"Some tests failed. Make sure you read the entire contents of 'data.txt' into a variable named text.")
	})
}

// marvinGardens: append "done\n" to log.txt.
func marvinGardens(r *sandbox.Runner) Validator {
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		env := sandbox.Env{Files: map[string]string{"log.txt": "existing content\n"}}
		res, out, err := evaluate(ctx, r, code, env)
		if err != nil {
			t.fail("test_1", err)
		} else {
			t.show(orDefault(out, "No output (file appended)"))
			content, err := res.ReadFile("log.txt")
			t.record("test_1", err == nil && strings.Contains(content, "done\n"))
		}
		return t.verdict("marvin_gardens_q1",
			"All tests passed! Your code correctly appends to the file.",
			"Test failed. Make sure you append the string 'done\\n' to the file 'log.txt'.")
	})
}
