package sandbox

import (
	"fmt"
	"net/http"
	"sort"

	starlarkjson "go.starlark.net/lib/json"
	"go.starlark.net/starlark"
)

// Response is a canned HTTP response handed out by FakeRequests. JSON is
// what json() returns; when it is nil, json() decodes Text.
type Response struct {
	StatusCode int
	Text       string
	JSON       any
	URL        string
	Headers    map[string]string
}

var _ starlark.HasAttrs = (*Response)(nil)

func (r *Response) String() string        { return fmt.Sprintf("<Response [%d]>", r.StatusCode) }
func (r *Response) Type() string          { return "Response" }
func (r *Response) Freeze()               {}
func (r *Response) Truth() starlark.Bool  { return r.ok() }
func (r *Response) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: 'Response'") }
func (r *Response) ok() starlark.Bool     { return r.StatusCode < 400 }

var responseMethods = map[string]*starlark.Builtin{
	"json":             starlark.NewBuiltin("json", responseJSON),
	"raise_for_status": starlark.NewBuiltin("raise_for_status", responseRaiseForStatus),
}

func (r *Response) Attr(name string) (starlark.Value, error) {
	switch name {
	case "status_code":
		return starlark.MakeInt(r.StatusCode), nil
	case "text":
		return starlark.String(r.Text), nil
	case "content":
		return starlark.Bytes(r.Text), nil
	case "ok":
		return r.ok(), nil
	case "url":
		return starlark.String(r.URL), nil
	case "reason":
		return starlark.String(http.StatusText(r.StatusCode)), nil
	case "headers":
		keys := make([]string, 0, len(r.Headers))
		for k := range r.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(keys))
		for _, k := range keys {
			if err := d.SetKey(starlark.String(k), starlark.String(r.Headers[k])); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	if m, ok := responseMethods[name]; ok {
		return m.BindReceiver(r), nil
	}
	return nil, nil
}

func (r *Response) AttrNames() []string {
	return []string{"content", "headers", "json", "ok", "raise_for_status", "reason", "status_code", "text", "url"}
}

func responseJSON(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	r := b.Receiver().(*Response)
	if r.JSON != nil {
		return ValueOf(r.JSON)
	}
	v, err := starlark.Call(thread, starlarkjson.Module.Members["decode"], starlark.Tuple{starlark.String(r.Text)}, nil)
	if err != nil {
		return nil, fmt.Errorf("JSONDecodeError: Expecting value: line 1 column 1 (char 0)")
	}
	return v, nil
}

func responseRaiseForStatus(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	r := b.Receiver().(*Response)
	switch {
	case r.StatusCode >= 500:
		return nil, fmt.Errorf("HTTPError: %d Server Error: %s for url: %s", r.StatusCode, http.StatusText(r.StatusCode), r.URL)
	case r.StatusCode >= 400:
		return nil, fmt.Errorf("HTTPError: %d Client Error: %s for url: %s", r.StatusCode, http.StatusText(r.StatusCode), r.URL)
	}
	return starlark.None, nil
}

// HTTPCall records one request made through FakeRequests.
type HTTPCall struct {
	Method string
	URL    string
	Kwargs starlark.StringDict
}

// FakeRequests stands in for the requests module. Every call is recorded
// and answered with the same Response, so a submission that stores the
// result can be checked by identity.
type FakeRequests struct {
	Response *Response
	calls    []HTTPCall
}

var _ starlark.HasAttrs = (*FakeRequests)(nil)

// NewFakeRequests returns a fake answering every call with resp. A nil resp
// is replaced by an empty 200 response.
func NewFakeRequests(resp *Response) *FakeRequests {
	if resp == nil {
		resp = &Response{StatusCode: http.StatusOK}
	}
	return &FakeRequests{Response: resp}
}

// Calls returns the recorded calls in order.
func (f *FakeRequests) Calls() []HTTPCall {
	return f.calls
}

// LastCall returns the most recent call made with method.
func (f *FakeRequests) LastCall(method string) (HTTPCall, bool) {
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method {
			return f.calls[i], true
		}
	}
	return HTTPCall{}, false
}

func (f *FakeRequests) String() string        { return "<module 'requests'>" }
func (f *FakeRequests) Type() string          { return "module" }
func (f *FakeRequests) Freeze()               {}
func (f *FakeRequests) Truth() starlark.Bool  { return starlark.True }
func (f *FakeRequests) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: 'module'") }

var requestVerbs = map[string]string{
	"get":     http.MethodGet,
	"post":    http.MethodPost,
	"put":     http.MethodPut,
	"patch":   http.MethodPatch,
	"delete":  http.MethodDelete,
	"head":    http.MethodHead,
	"options": http.MethodOptions,
}

func (f *FakeRequests) Attr(name string) (starlark.Value, error) {
	if name == "request" {
		return starlark.NewBuiltin("request", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("TypeError: request() missing required argument: 'method'")
			}
			method, ok := args[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("TypeError: method must be str")
			}
			return f.record(string(method), "request", args[1:], kwargs)
		}), nil
	}
	method, ok := requestVerbs[name]
	if !ok {
		return nil, nil
	}
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return f.record(method, name, args, kwargs)
	}), nil
}

func (f *FakeRequests) AttrNames() []string {
	names := []string{"request"}
	for name := range requestVerbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// positionalParams lists the parameters after url that each verb accepts
// positionally.
var positionalParams = map[string][]string{
	"get":   {"params"},
	"post":  {"data", "json"},
	"put":   {"data"},
	"patch": {"data"},
}

func (f *FakeRequests) record(method, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	call := HTTPCall{Method: method, Kwargs: make(starlark.StringDict)}
	for _, kv := range kwargs {
		call.Kwargs[string(kv[0].(starlark.String))] = kv[1]
	}
	url, hasURL := call.Kwargs["url"]
	delete(call.Kwargs, "url")
	if len(args) > 0 {
		if hasURL {
			return nil, fmt.Errorf("TypeError: %s() got multiple values for argument 'url'", fn)
		}
		url, hasURL = args[0], true
		extra := args[1:]
		params := positionalParams[fn]
		if len(extra) > len(params) {
			return nil, fmt.Errorf("TypeError: %s() takes from 1 to %d positional arguments but %d were given", fn, len(params)+1, len(args))
		}
		for i, v := range extra {
			call.Kwargs[params[i]] = v
		}
	}
	if !hasURL {
		return nil, fmt.Errorf("TypeError: %s() missing 1 required positional argument: 'url'", fn)
	}
	s, ok := url.(starlark.String)
	if !ok {
		return nil, fmt.Errorf("requests.exceptions.MissingSchema: Invalid URL %s: No scheme supplied", pyRepr(url))
	}
	call.URL = string(s)
	f.calls = append(f.calls, call)
	if f.Response.URL == "" {
		f.Response.URL = call.URL
	}
	return f.Response, nil
}
