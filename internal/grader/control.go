package grader

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pavelanni/codeboard/internal/model"
	"github.com/pavelanni/codeboard/internal/sandbox"
)

// oriental: print adult or minor with a conditional expression.
func oriental(r *sandbox.Runner) Validator {
	cases := []struct {
		age  int
		want string
	}{
		{20, "adult"},
		{18, "adult"},
		{15, "minor"},
		{0, "minor"},
		{25, "adult"},
	}
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		for i, c := range cases {
			label := fmt.Sprintf("test_%d_age_%d", i+1, c.age)
			_, out, err := evaluate(ctx, r, code, sandbox.Env{Vars: sandbox.Vars{"age": c.age}})
			if err != nil {
				t.fail(label, err)
				continue
			}
			t.show(out)
			t.record(label, out == c.want)
		}
		return t.verdict("oriental_q1",
			"All tests passed! Your code correctly uses a conditional expression.",
			"Some tests failed. Make sure your code uses a conditional expression (ternary operator) and prints 'adult' for age >= 18, 'minor' otherwise.")
	})
}

// vermont: range check into is_valid (or isValid), or printed as True/False.
func vermont(r *sandbox.Runner) Validator {
	cases := []struct {
		x    int
		want bool
	}{
		{5, true},
		{1, true},
		{10, true},
		{15, false},
		{0, false},
		{11, false},
		{-5, false},
	}
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		for i, c := range cases {
			label := fmt.Sprintf("test_%d_x_%d", i+1, c.x)
			res, out, err := evaluate(ctx, r, code, sandbox.Env{Vars: sandbox.Vars{"x": c.x}})
			if err != nil {
				t.fail(label, err)
				continue
			}
			t.show(out)

			v, set := firstSet(res, "is_valid", "isValid")
			varOK := set && sandbox.Equal(v, c.want)
			printed := strings.Contains(strings.ToLower(out), strconv.FormatBool(c.want))
			t.record(label, varOK || printed)
		}
		return t.verdict("vermont_q1",
			"All tests passed! Your code correctly checks the range and prints the result.",
			"Some tests failed. Make sure your code checks if x is between 1 and 10 (inclusive) and prints True or False.")
	})
}

// connecticut: print every element of nums on its own line.
func connecticut(r *sandbox.Runner) Validator {
	cases := []struct {
		nums []int
		want string
	}{
		{[]int{1, 2, 3}, "1\n2\n3"},
		{[]int{5}, "5"},
		{[]int{10, 20, 30, 40}, "10\n20\n30\n40"},
		{[]int{0, 1}, "0\n1"},
	}
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		for i, c := range cases {
			label := fmt.Sprintf("test_%d", i+1)
			_, out, err := evaluate(ctx, r, code, sandbox.Env{Vars: sandbox.Vars{"nums": c.nums}})
			if err != nil {
				t.fail(label, err)
				continue
			}
			t.show(out)
			t.record(label, out == c.want)
		}
		return t.verdict("connecticut_q1",
			"All tests passed! Your code correctly loops through the list and prints each number.",
			"Some tests failed. Make sure your code uses a for loop to iterate through nums and prints each number on its own line.")
	})
}
