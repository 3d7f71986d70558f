package grader

import (
	"context"
	"fmt"

	"github.com/pavelanni/codeboard/internal/model"
	"github.com/pavelanni/codeboard/internal/sandbox"
)

// stJames: build the list of even numbers from 0 to 10.
func stJames(r *sandbox.Runner) Validator {
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		res, out, err := evaluate(ctx, r, code, sandbox.Env{})
		if err != nil {
			t.fail("test_1", err)
		} else {
			t.show(orDefault(out, "No output (list created)"))
			t.record("test_1", varEquals(res, "evens", []int{0, 2, 4, 6, 8, 10}))
		}
		return t.verdict("st_james_q1",
			"All tests passed! Your code correctly creates the list of even numbers.",
			"Test failed. Make sure you create a list named evens containing all even numbers from 0 to 10 (inclusive): [0, 2, 4, 6, 8, 10].")
	})
}

// tennessee: add grade 95 to the student dictionary.
func tennessee(r *sandbox.Runner) Validator {
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		env := sandbox.Env{Vars: sandbox.Vars{"student": sandbox.Dict{{Key: "name", Value: "Alex"}}}}
		res, out, err := evaluate(ctx, r, code, env)
		if err != nil {
			t.fail("test_1", err)
		} else {
			t.show(orDefault(out, "No output (dictionary updated)"))
			passed := false
			if student, ok := res.Var("student"); ok {
				name, _ := dictGet(student, "name")
				grade, _ := dictGet(student, "grade")
				passed = sandbox.Equal(name, "Alex") && sandbox.Equal(grade, 95)
			}
			t.record("test_1", passed)
		}
		return t.verdict("tennessee_q1",
			"All tests passed! Your code correctly adds the grade key to the dictionary.",
			"Test failed. Make sure you add a key 'grade' with value 95 to the existing student dictionary.")
	})
}

// newYork: read the name of a student into student_name.
func newYork(r *sandbox.Runner) Validator {
	cases := []struct {
		student sandbox.Dict
		want    string
	}{
		{sandbox.Dict{{Key: "name", Value: "Alice"}, {Key: "age", Value: 20}}, "Alice"},
		{sandbox.Dict{{Key: "name", Value: "Bob"}, {Key: "grade", Value: 95}}, "Bob"},
		{sandbox.Dict{{Key: "name", Value: "Charlie"}, {Key: "city", Value: "NYC"}}, "Charlie"},
	}
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		for i, c := range cases {
			label := fmt.Sprintf("test_%d", i+1)
			res, out, err := evaluate(ctx, r, code, sandbox.Env{Vars: sandbox.Vars{"student": c.student}})
			if err != nil {
				t.fail(label, err)
				continue
			}
			t.show(orDefault(out, "No output (value retrieved)"))
			t.record(label, varEquals(res, "student_name", c.want))
		}
		return t.verdict("new_york_q1",
			"All tests passed! Your code correctly retrieves the value from the dictionary.",
			"Some tests failed. Make sure you get the value associated with the key 'name' from the student dictionary and store it in a variable named student_name.")
	})
}
