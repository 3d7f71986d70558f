package grader

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"

	"github.com/pavelanni/codeboard/internal/model"
	"github.com/pavelanni/codeboard/internal/sandbox"
)

// stCharles: define square(n).
func stCharles(r *sandbox.Runner) Validator {
	cases := []struct{ n, want int }{
		{2, 4},
		{5, 25},
		{0, 0},
		{-3, 9},
	}
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		res, out, err := evaluate(ctx, r, code, sandbox.Env{})
		if err != nil {
			t.fail("test_1_function_exists", err)
		} else if _, ok := res.Var("square"); !ok {
			t.show(orDefault(out, "No output (function defined)"))
			t.record("test_1_function_exists", false)
		} else {
			t.show(orDefault(out, "No output (function defined)"))
			for i, c := range cases {
				got, err := res.Call(ctx, "square", c.n)
				t.record(fmt.Sprintf("test_%d_n_%d", i+1, c.n), err == nil && sandbox.Equal(got, c.want))
			}
		}
		return t.verdict("st_charles_q1",
			"All tests passed! Your code correctly defines the square function.",
			"Test failed. Make sure you define a function named square(n) that returns n squared.")
	})
}

// greet is the helper the states question asks learners to call.
var greet = starlark.NewBuiltin("greet", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	return starlark.String("Hello, " + sandbox.Str(name) + "!"), nil
})

// states: call greet("Alex") and keep the result in message.
func states(r *sandbox.Runner) Validator {
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		res, out, err := evaluate(ctx, r, code, sandbox.Env{Vars: sandbox.Vars{"greet": greet}})
		if err != nil {
			t.fail("test_1", err)
		} else {
			t.show(orDefault(out, "No output (result stored)"))
			t.record("test_1", varEquals(res, "message", "Hello, Alex!"))
		}
		return t.verdict("states_q1",
			"All tests passed! Your code correctly calls the function and stores the result.",
			"Test failed. Make sure you call greet('Alex') and store the result in a variable named message.")
	})
}

// virginia: define add(a, b=10).
func virginia(r *sandbox.Runner) Validator {
	cases := []struct {
		a    int
		b    *int
		want int
	}{
		{5, ptr(10), 15},
		{5, nil, 15},
		{0, ptr(10), 10},
		{10, nil, 20},
	}
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		res, out, err := evaluate(ctx, r, code, sandbox.Env{})
		if err != nil {
			t.fail("test_1_function_exists", err)
		} else if _, ok := res.Var("add"); !ok {
			t.show(orDefault(out, "No output (function defined)"))
			t.record("test_1_function_exists", false)
		} else {
			t.show(orDefault(out, "No output (function defined)"))
			for i, c := range cases {
				args := []any{c.a}
				if c.b != nil {
					args = append(args, *c.b)
				}
				got, err := res.Call(ctx, "add", args...)
				t.record(fmt.Sprintf("test_%d", i+1), err == nil && sandbox.Equal(got, c.want))
			}
		}
		return t.verdict("virginia_q1",
			"All tests passed! Your code correctly defines the add function with a default argument.",
			"Test failed. Make sure you define a function named add(a, b=10) that returns the sum of a and b.")
	})
}

func ptr[T any](v T) *T { return &v }
