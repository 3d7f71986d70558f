package grader

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.starlark.net/starlark"

	"github.com/pavelanni/codeboard/internal/model"
	"github.com/pavelanni/codeboard/internal/sandbox"
)

const (
	pacificURL   = "https://api.example.com/data"
	boardwalkURL = "https://api.example.com/submit"
)

// requestsEnv makes fake importable as requests and also binds it directly,
// so submissions work with or without the import statement.
func requestsEnv(fake *sandbox.FakeRequests, vars sandbox.Vars) sandbox.Env {
	if vars == nil {
		vars = sandbox.Vars{}
	}
	vars["requests"] = fake
	return sandbox.Env{
		Vars:    vars,
		Modules: map[string]starlark.Value{"requests": fake},
	}
}

// storedResponse reports whether name holds the exact response the fake
// handed out.
func storedResponse(res *sandbox.Result, name string, fake *sandbox.FakeRequests) bool {
	v, ok := res.Var(name)
	if !ok {
		return false
	}
	got, ok := v.(*sandbox.Response)
	return ok && got == fake.Response
}

// pacific: send a GET request and keep the response.
func pacific(r *sandbox.Runner) Validator {
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		fake := sandbox.NewFakeRequests(&sandbox.Response{
			StatusCode: http.StatusOK,
			Text:       `{"message": "ok"}`,
		})
		res, out, err := evaluate(ctx, r, code, requestsEnv(fake, nil))
		if err != nil {
			t.fail("test_1", err)
		} else {
			t.show(orDefault(out, "No output (request sent)"))
			if _, ok := res.Var("response"); !ok {
				t.record("test_1_response_exists", false)
			} else {
				call, called := fake.LastCall(http.MethodGet)
				t.record("get_called", called)
				t.record("url_correct", called && call.URL == pacificURL)
				t.record("response_stored", storedResponse(res, "response", fake))
			}
		}
		return t.verdict("pacific_q1",
			"All tests passed! Your code correctly sends the GET request.",
			"Test failed. Make sure you send a GET request to the URL and store the response in a variable named response.")
	})
}

// northCarolina: decode the JSON body of response into data.
func northCarolina(r *sandbox.Runner) Validator {
	want := sandbox.Dict{{Key: "key", Value: "value"}, {Key: "number", Value: 42}}
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		resp := &sandbox.Response{StatusCode: http.StatusOK, JSON: want}
		env := requestsEnv(sandbox.NewFakeRequests(resp), sandbox.Vars{"response": resp})
		res, out, err := evaluate(ctx, r, code, env)
		if err != nil {
			t.fail("test_1", err)
		} else {
			t.show(orDefault(out, "No output (JSON parsed)"))
			t.record("test_1", varEquals(res, "data", want))
		}
		return t.verdict("north_carolina_q1",
			"All tests passed! Your code correctly extracts JSON from the response.",
			"Test failed. Make sure you extract JSON data from the response object and store it in a variable named data.")
	})
}

// pennsylvania: keep the status code of response.
func pennsylvania(r *sandbox.Runner) Validator {
	codes := []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError}
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		for i, status := range codes {
			label := fmt.Sprintf("test_%d_status_%d", i+1, status)
			resp := &sandbox.Response{StatusCode: status}
			env := requestsEnv(sandbox.NewFakeRequests(resp), sandbox.Vars{"response": resp})
			res, out, err := evaluate(ctx, r, code, env)
			if err != nil {
				t.fail(label, err)
				continue
			}
			t.show(orDefault(out, "No output (status code stored)"))
			t.record(label, varEquals(res, "status_code", status))
		}
		return t.verdict("pennsylvania_q1",
			"All tests passed! Your code correctly stores the status code.",
			"Test failed. Make sure you store the status code from the response object in a variable named status_code.")
	})
}

// parkPlace: keep the text body of response.
func parkPlace(r *sandbox.Runner) Validator {
	bodies := []string{
		"Hello, world!",
		`{"key": "value"}`,
		"Line 1\nLine 2\nLine 3",
	}
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		for i, body := range bodies {
			label := fmt.Sprintf("test_%d", i+1)
			resp := &sandbox.Response{StatusCode: http.StatusOK, Text: body}
			env := requestsEnv(sandbox.NewFakeRequests(resp), sandbox.Vars{"response": resp})
			res, out, err := evaluate(ctx, r, code, env)
			if err != nil {
				t.fail(label, err)
				continue
			}
			t.show(orDefault(out, "No output (content stored)"))
			t.record(label, varEquals(res, "content", body))
		}
		return t.verdict("park_place_q1",
			"All tests passed! Your code correctly stores the response text content.",
			"Test failed. Make sure you store the text content from the response object in a variable named content.")
	})
}

// boardwalk: POST a JSON payload and keep the response.
func boardwalk(r *sandbox.Runner) Validator {
	payload := sandbox.Dict{{Key: "name", Value: "Alex"}, {Key: "score", Value: 95}}
	return ValidatorFunc(func(ctx context.Context, code string) model.Verdict {
		var t tally
		lower := strings.ToLower(code)
		if !strings.Contains(lower, "post") || !strings.Contains(code, "api.example.com/submit") ||
			!strings.Contains(lower, "json") || !strings.Contains(lower, "response") {
			t.record("test_1_code_check", false)
			t.show("Code missing required elements (post, url, json, response)")
			return boardwalkVerdict(&t)
		}

		fake := sandbox.NewFakeRequests(&sandbox.Response{
			StatusCode: http.StatusOK,
			Text:       "Success",
			JSON:       sandbox.Dict{{Key: "status", Value: "success"}},
		})
		res, out, err := evaluate(ctx, r, code, requestsEnv(fake, nil))
		if err != nil {
			t.fail("test_1", err)
			return boardwalkVerdict(&t)
		}
		t.show(orDefault(out, "No output (POST request sent)"))
		if _, ok := res.Var("response"); !ok {
			t.record("test_1_response_exists", false)
			return boardwalkVerdict(&t)
		}
		call, called := fake.LastCall(http.MethodPost)
		t.record("post_called", called)
		t.record("url_correct", called && call.URL == boardwalkURL)
		t.record("json_correct", called && sandbox.Equal(call.Kwargs["json"], payload))
		t.record("response_stored", storedResponse(res, "response", fake))
		return boardwalkVerdict(&t)
	})
}

func boardwalkVerdict(t *tally) model.Verdict {
	return t.verdict("boardwalk_q1",
		"All tests passed! Your code correctly sends the POST request with JSON data.",
		"Test failed. Make sure you send a POST request to the URL with the JSON data and store the response in a variable named response.")
}
