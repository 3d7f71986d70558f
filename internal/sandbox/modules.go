package sandbox

import (
	"fmt"
	"sort"
	"strings"

	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// stdModules are importable by every submission.
var stdModules = map[string]starlark.Value{
	"json":     jsonModule,
	"math":     starlarkmath.Module,
	"argparse": Argparse,
}

var jsonModule = &starlarkstruct.Module{
	Name: "json",
	Members: starlark.StringDict{
		"dumps": starlark.NewBuiltin("json.dumps", jsonDumps),
		"loads": starlarkjson.Module.Members["decode"],
	},
}

func jsonDumps(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var obj starlark.Value
	var indent starlark.Value = starlark.None
	var sortKeys bool
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "obj", &obj, "indent?", &indent, "sort_keys?", &sortKeys); err != nil {
		return nil, err
	}
	enc := jsonEncoder{sortKeys: sortKeys}
	switch v := indent.(type) {
	case starlark.Int:
		n, _ := v.Int64()
		enc.indent = strings.Repeat(" ", int(max(n, 0)))
		enc.pretty = true
	case starlark.String:
		enc.indent = string(v)
		enc.pretty = true
	}
	if err := enc.encode(obj, 0); err != nil {
		return nil, err
	}
	return starlark.String(enc.sb.String()), nil
}

// jsonEncoder writes JSON the way Python's json.dumps does by default:
// ", " and ": " separators and ASCII-only output.
type jsonEncoder struct {
	sb       strings.Builder
	indent   string
	pretty   bool
	sortKeys bool
}

func (e *jsonEncoder) newline(level int) {
	if e.pretty {
		e.sb.WriteByte('\n')
		e.sb.WriteString(strings.Repeat(e.indent, level))
	}
}

func (e *jsonEncoder) separator() {
	if e.pretty {
		e.sb.WriteByte(',')
	} else {
		e.sb.WriteString(", ")
	}
}

func (e *jsonEncoder) encode(v starlark.Value, level int) error {
	if level > maxReprDepth {
		return fmt.Errorf("RecursionError: maximum recursion depth exceeded while encoding a JSON object")
	}
	switch v := v.(type) {
	case starlark.NoneType:
		e.sb.WriteString("null")
	case starlark.Bool:
		if v {
			e.sb.WriteString("true")
		} else {
			e.sb.WriteString("false")
		}
	case starlark.Int:
		e.sb.WriteString(v.String())
	case starlark.Float:
		switch s := pyFloat(float64(v)); s {
		case "inf":
			e.sb.WriteString("Infinity")
		case "-inf":
			e.sb.WriteString("-Infinity")
		case "nan":
			e.sb.WriteString("NaN")
		default:
			e.sb.WriteString(s)
		}
	case starlark.String:
		e.sb.WriteString(jsonQuote(string(v)))
	case *starlark.List, starlark.Tuple:
		seq := v.(starlark.Indexable)
		if seq.Len() == 0 {
			e.sb.WriteString("[]")
			return nil
		}
		e.sb.WriteByte('[')
		for i := 0; i < seq.Len(); i++ {
			if i > 0 {
				e.separator()
			}
			e.newline(level + 1)
			if err := e.encode(seq.Index(i), level+1); err != nil {
				return err
			}
		}
		e.newline(level)
		e.sb.WriteByte(']')
	case *starlark.Dict:
		items := v.Items()
		if len(items) == 0 {
			e.sb.WriteString("{}")
			return nil
		}
		keys := make([]string, len(items))
		for i, item := range items {
			k, err := jsonKey(item[0])
			if err != nil {
				return err
			}
			keys[i] = k
		}
		order := make([]int, len(items))
		for i := range order {
			order[i] = i
		}
		if e.sortKeys {
			sort.SliceStable(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })
		}
		e.sb.WriteByte('{')
		for n, i := range order {
			if n > 0 {
				e.separator()
			}
			e.newline(level + 1)
			e.sb.WriteString(jsonQuote(keys[i]))
			e.sb.WriteString(": ")
			if err := e.encode(items[i][1], level+1); err != nil {
				return err
			}
		}
		e.newline(level)
		e.sb.WriteByte('}')
	default:
		return fmt.Errorf("TypeError: Object of type %s is not JSON serializable", pyTypeName(v))
	}
	return nil
}

func jsonKey(k starlark.Value) (string, error) {
	switch k := k.(type) {
	case starlark.String:
		return string(k), nil
	case starlark.Int:
		return k.String(), nil
	case starlark.Float:
		return pyFloat(float64(k)), nil
	case starlark.Bool:
		if k {
			return "true", nil
		}
		return "false", nil
	case starlark.NoneType:
		return "null", nil
	}
	return "", fmt.Errorf("TypeError: keys must be str, int, float, bool or None, not %s", pyTypeName(k))
}

func jsonQuote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		default:
			switch {
			case r < 0x20 || (r > 0x7f && r <= 0xffff):
				fmt.Fprintf(&sb, `\u%04x`, r)
			case r > 0xffff:
				r -= 0x10000
				fmt.Fprintf(&sb, `\u%04x\u%04x`, 0xd800+(r>>10), 0xdc00+(r&0x3ff))
			default:
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
