package grader

import (
	"context"

	"go.starlark.net/starlark"

	"github.com/pavelanni/codeboard/internal/model"
	"github.com/pavelanni/codeboard/internal/sandbox"
)

// kentucky: create an ArgumentParser with the description "Demo script".
func kentucky(r *sandbox.Runner) Validator {
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		env := sandbox.Env{Vars: sandbox.Vars{
			"ArgumentParser": sandbox.Argparse.Members["ArgumentParser"],
		}}
		res, out, err := evaluate(ctx, r, code, env)
		switch {
		case err != nil:
			t.fail("test_1", err)
		default:
			t.show(orDefault(out, "No output (parser created)"))
			parser, ok := res.Var("parser")
			if !ok {
				t.record("test_1_parser_exists", false)
				break
			}
			desc, ok := attr(parser, "description")
			t.record("test_1", ok && sandbox.Equal(desc, "Demo script"))
		}
		return t.verdict("kentucky_q1",
			"All tests passed! Your code correctly creates the ArgumentParser.",
			"Test failed. Make sure you create an ArgumentParser named parser with description 'Demo script'.")
	})
}

// indiana: add a required positional filename argument to parser.
func indiana(r *sandbox.Runner) Validator {
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		parser := sandbox.NewArgumentParser()
		_, out, err := evaluate(ctx, r, code, sandbox.Env{Vars: sandbox.Vars{"parser": parser}})
		if err != nil {
			t.fail("test_1", err)
		} else {
			t.show(orDefault(out, "No output (argument added)"))
			ns, err := parser.Parse([]string{"test.txt"})
			if err == nil {
				v, ok := ns.Get("filename")
				t.record("test_1", ok && sandbox.Equal(v, "test.txt"))
			} else {
				a, ok := parser.Argument("filename")
				t.record("test_1", ok && a.Required)
			}
		}
		return t.verdict("indiana_q1",
			"All tests passed! Your code correctly adds the filename argument.",
			"Test failed. Make sure you add a required string argument called 'filename' to the parser.")
	})
}

// illinois: parse the command line into args.
func illinois(r *sandbox.Runner) Validator {
	const (
		success = "All tests passed! Your code correctly parses the arguments."
		failure = "Test failed. Make sure you call parser.parse_args() and store the result in a variable named args."
	)
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		parser := sandbox.NewArgumentParser()
		_, err := callMethod(parser, "add_argument",
			starlark.Tuple{starlark.String("--name")},
			[]starlark.Tuple{
				{starlark.String("type"), starlark.Universe["str"]},
				{starlark.String("default"), starlark.String("test")},
			})
		if err != nil {
			t.fail("test_1", err)
			return t.verdict("illinois_q1", success, failure)
		}

		res, out, err := evaluate(ctx, r, code, sandbox.Env{Vars: sandbox.Vars{"parser": parser}})
		if err != nil {
			t.fail("test_1", err)
		} else {
			t.show(orDefault(out, "No output (args parsed)"))
			passed := false
			if args, ok := res.Var("args"); ok && args != starlark.None {
				_, passed = attr(args, "name")
			}
			t.record("test_1", passed)
		}
		return t.verdict("illinois_q1", success, failure)
	})
}
