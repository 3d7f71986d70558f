package grader

import (
	"context"
	"fmt"

	"github.com/pavelanni/codeboard/internal/model"
	"github.com/pavelanni/codeboard/internal/sandbox"
)

// mediterranean: store 7 in x and print it as 7.0.
func mediterranean(r *sandbox.Runner) Validator {
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		res, out, err := evaluate(ctx, r, code, sandbox.Env{})
		if err != nil {
			t.fail("test_1", err)
		} else {
			t.show(out)
			t.record("test_1", out == "7.0" && varEquals(res, "x", 7.0))
		}
		return t.verdict("mediterranean_q1",
			"All tests passed! Your code correctly stores 7 in x and prints 7.0.",
			"Test failed. Make sure you store 7 in a variable named x and print it. The output should be 7.0.")
	})
}

// baltic: print a greeting built from name.
func baltic(r *sandbox.Runner) Validator {
	cases := []string{"Alice", "Bob", "Charlie"}
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		for i, name := range cases {
			label := fmt.Sprintf("test_%d_name_%s", i+1, name)
			_, out, err := evaluate(ctx, r, code, sandbox.Env{Vars: sandbox.Vars{"name": name}})
			if err != nil {
				t.fail(label, err)
				continue
			}
			t.show(out)
			t.record(label, out == "Hello, "+name)
		}
		return t.verdict("baltic_q1",
			"All tests passed! Your code correctly formats and prints the greeting.",
			"Some tests failed. Make sure you store a name in a variable and print 'Hello, ' followed by the name.")
	})
}
