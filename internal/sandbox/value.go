package sandbox

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// KV is one entry of a Dict.
type KV struct {
	Key   string
	Value any
}

// Dict is an insertion-ordered dictionary literal for fixtures and expected
// values. Plain maps are converted with sorted keys.
type Dict []KV

// ValueOf converts a Go value into a fresh Starlark value. Supported inputs
// are nil, bool, int, int64, float64, string, []any, []int, []string, Dict,
// map[string]any and any starlark.Value, which is returned as is.
func ValueOf(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return v, nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		return starlark.Float(v), nil
	case string:
		return starlark.String(v), nil
	case []int:
		elems := make([]starlark.Value, len(v))
		for i, n := range v {
			elems[i] = starlark.MakeInt(n)
		}
		return starlark.NewList(elems), nil
	case []string:
		elems := make([]starlark.Value, len(v))
		for i, s := range v {
			elems[i] = starlark.String(s)
		}
		return starlark.NewList(elems), nil
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			sv, err := ValueOf(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case Dict:
		d := starlark.NewDict(len(v))
		for _, kv := range v {
			sv, err := ValueOf(kv.Value)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(kv.Key), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(Dict, len(keys))
		for i, k := range keys {
			ordered[i] = KV{Key: k, Value: v[k]}
		}
		return ValueOf(ordered)
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

// PyEqual reports whether x == y under Python rules: True and False equal
// 1 and 0, also inside lists, tuples and dicts.
func PyEqual(x, y starlark.Value) bool {
	eq, err := starlark.Equal(numeric(x), numeric(y))
	return err == nil && eq
}

// numeric returns v with every bool replaced by the matching int.
func numeric(v starlark.Value) starlark.Value {
	switch v := v.(type) {
	case starlark.Bool:
		if v {
			return starlark.MakeInt(1)
		}
		return starlark.MakeInt(0)
	case *starlark.List:
		elems := make([]starlark.Value, v.Len())
		for i := range elems {
			elems[i] = numeric(v.Index(i))
		}
		return starlark.NewList(elems)
	case starlark.Tuple:
		t := make(starlark.Tuple, len(v))
		for i, e := range v {
			t[i] = numeric(e)
		}
		return t
	case *starlark.Dict:
		d := starlark.NewDict(v.Len())
		for _, kv := range v.Items() {
			if err := d.SetKey(numeric(kv[0]), numeric(kv[1])); err != nil {
				return v
			}
		}
		return d
	}
	return v
}

// Str renders v the way Python's str() does.
func Str(v starlark.Value) string {
	return pyStr(v)
}

// Repr renders v the way Python's repr() does.
func Repr(v starlark.Value) string {
	return pyRepr(v)
}
