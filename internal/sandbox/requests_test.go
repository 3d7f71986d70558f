package sandbox

import (
	"errors"
	"testing"

	"go.starlark.net/starlark"
)

func TestFakeRequestsGet(t *testing.T) {
	fake := NewFakeRequests(&Response{StatusCode: 200, Text: `{"key": "value"}`})
	env := Env{Modules: map[string]starlark.Value{"requests": fake}}
	src := `import requests
response = requests.get("https://api.example.com/data", timeout=5)
data = response.json()
print(response.status_code, response.ok)
`
	res := mustRun(t, src, env)
	if res.Output != "200 True\n" {
		t.Errorf("Output = %q, want %q", res.Output, "200 True\n")
	}

	call, ok := fake.LastCall("GET")
	if !ok {
		t.Fatal("no GET recorded")
	}
	if call.URL != "https://api.example.com/data" {
		t.Errorf("URL = %q", call.URL)
	}
	if _, ok := call.Kwargs["timeout"]; !ok {
		t.Error("timeout keyword not recorded")
	}

	v, _ := res.Var("response")
	if v != starlark.Value(fake.Response) {
		t.Error("response is not the value returned by the fake")
	}
	data, _ := res.Var("data")
	if !Equal(data, Dict{{"key", "value"}}) {
		t.Errorf("data = %s", data)
	}
}

func TestFakeRequestsPost(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"keyword json", `response = requests.post("https://api.example.com/submit", json={"name": "Alex", "score": 95})`},
		{"positional json", `response = requests.post("https://api.example.com/submit", None, {"name": "Alex", "score": 95})`},
		{"keyword url", `response = requests.post(url="https://api.example.com/submit", json={"name": "Alex", "score": 95})`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := NewFakeRequests(nil)
			mustRun(t, tt.src+"\n", Env{Vars: Vars{"requests": fake}})
			call, ok := fake.LastCall("POST")
			if !ok {
				t.Fatal("no POST recorded")
			}
			if call.URL != "https://api.example.com/submit" {
				t.Errorf("URL = %q", call.URL)
			}
			if !Equal(call.Kwargs["json"], Dict{{"name", "Alex"}, {"score", 95}}) {
				t.Errorf("json = %v", call.Kwargs["json"])
			}
		})
	}
}

func TestFakeRequestsMissingURL(t *testing.T) {
	fake := NewFakeRequests(nil)
	_, err := run(t, "requests.get()\n", Env{Vars: Vars{"requests": fake}})
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuntimeError, got %v", err)
	}
	if len(fake.Calls()) != 0 {
		t.Errorf("recorded %d calls, want 0", len(fake.Calls()))
	}
}

func TestResponseRaiseForStatus(t *testing.T) {
	fake := NewFakeRequests(&Response{StatusCode: 404})
	_, err := run(t, "requests.get(\"https://api.example.com/x\").raise_for_status()\n", Env{Vars: Vars{"requests": fake}})
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuntimeError, got %v", err)
	}
	want := "HTTPError: 404 Client Error: Not Found for url: https://api.example.com/x"
	if re.Msg != want {
		t.Errorf("Msg = %q, want %q", re.Msg, want)
	}
}
