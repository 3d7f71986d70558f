package sandbox

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// universe holds the Python builtins layered over Starlark's own. Entries
// here shadow Starlark builtins of the same name.
var universe = starlark.StringDict{
	"print":      starlark.NewBuiltin("print", builtinPrint),
	"str":        starlark.NewBuiltin("str", builtinStr),
	"repr":       starlark.NewBuiltin("repr", builtinRepr),
	"format":     starlark.NewBuiltin("format", builtinFormat),
	"pow":        starlark.NewBuiltin("pow", builtinPow),
	"round":      starlark.NewBuiltin("round", builtinRound),
	"sum":        starlark.NewBuiltin("sum", builtinSum),
	"abs":        starlark.NewBuiltin("abs", builtinAbs),
	"isinstance": starlark.NewBuiltin("isinstance", builtinIsinstance),
	"input":      starlark.NewBuiltin("input", builtinInput),
	"open":       starlark.NewBuiltin("open", builtinOpen),
	"__import__": starlark.NewBuiltin("__import__", builtinImport),
	"__with__":   starlark.NewBuiltin("__with__", builtinWith),
	"__iter__":   starlark.NewBuiltin("__iter__", builtinIter),

	"__undefined__": starlark.NewBuiltin("__undefined__", builtinUndefined),
}

// builtins returns a fresh predeclared dictionary.
func builtins() starlark.StringDict {
	d := make(starlark.StringDict, len(universe)+8)
	for k, v := range universe {
		d[k] = v
	}
	return d
}

func builtinPrint(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	sep, end := " ", "\n"
	for _, kv := range kwargs {
		key := string(kv[0].(starlark.String))
		switch key {
		case "sep", "end":
			var s string
			switch v := kv[1].(type) {
			case starlark.String:
				s = string(v)
			case starlark.NoneType:
				continue
			default:
				return nil, fmt.Errorf("TypeError: %s must be None or a string, not %s", key, pyTypeName(v))
			}
			if key == "sep" {
				sep = s
			} else {
				end = s
			}
		case "file", "flush":
		default:
			return nil, fmt.Errorf("TypeError: '%s' is an invalid keyword argument for print()", key)
		}
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = pyStr(a)
	}
	if st := stateOf(thread); st != nil {
		st.out.write(strings.Join(parts, sep) + end)
	}
	return starlark.None, nil
}

// builtinUndefined stands in for a name that was never bound.
func builtinUndefined(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("NameError: name '%s' is not defined", name)
}

// builtinIter returns what a for clause iterates. Strings yield their
// characters.
func builtinIter(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case starlark.String:
		var chars []starlark.Value
		for _, r := range string(v) {
			chars = append(chars, starlark.String(string(r)))
		}
		return starlark.NewList(chars), nil
	case starlark.Iterable:
		return v, nil
	}
	return nil, fmt.Errorf("TypeError: '%s' object is not iterable", pyTypeName(v))
}

func builtinStr(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value = starlark.String("")
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &v); err != nil {
		return nil, err
	}
	return starlark.String(pyStr(v)), nil
}

func builtinRepr(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	return starlark.String(pyRepr(v)), nil
}

func builtinFormat(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	var spec string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v, &spec); err != nil {
		return nil, err
	}
	s, err := applyFormat(v, spec)
	if err != nil {
		return nil, err
	}
	return starlark.String(s), nil
}

func builtinPow(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var base, exp starlark.Value
	var mod starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "base", &base, "exp", &exp, "mod?", &mod); err != nil {
		return nil, err
	}
	return power(base, exp, mod)
}

// maxPowBits caps the size of integer powers.
const maxPowBits = 1 << 20

func power(x, y, mod starlark.Value) (starlark.Value, error) {
	xi, xInt := x.(starlark.Int)
	yi, yInt := y.(starlark.Int)

	if mod != starlark.None {
		mi, mInt := mod.(starlark.Int)
		if !xInt || !yInt || !mInt {
			return nil, fmt.Errorf("TypeError: pow() 3rd argument not allowed unless all arguments are integers")
		}
		if mi.Sign() == 0 {
			return nil, fmt.Errorf("ValueError: pow() 3rd argument cannot be 0")
		}
		if yi.Sign() < 0 {
			return nil, fmt.Errorf("ValueError: pow() negative exponent not supported")
		}
		m := mi.BigInt()
		r := new(big.Int).Exp(xi.BigInt(), yi.BigInt(), new(big.Int).Abs(m))
		if m.Sign() < 0 && r.Sign() != 0 {
			r.Add(r, m)
		}
		return starlark.MakeBigInt(r), nil
	}

	if xInt && yInt && yi.Sign() >= 0 {
		e, ok := yi.Int64()
		bits := int64(xi.BigInt().BitLen())
		if !ok || (bits > 1 && e > maxPowBits/bits) {
			return nil, fmt.Errorf("OverflowError: result too large")
		}
		return starlark.MakeBigInt(new(big.Int).Exp(xi.BigInt(), yi.BigInt(), nil)), nil
	}

	xf, ok1 := starlark.AsFloat(x)
	yf, ok2 := starlark.AsFloat(y)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("TypeError: unsupported operand type(s) for ** or pow(): '%s' and '%s'", pyTypeName(x), pyTypeName(y))
	}
	if xf == 0 && yf < 0 {
		return nil, fmt.Errorf("ZeroDivisionError: 0.0 cannot be raised to a negative power")
	}
	return starlark.Float(math.Pow(xf, yf)), nil
}

func builtinRound(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	var ndigits starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "number", &x, "ndigits?", &ndigits); err != nil {
		return nil, err
	}

	if ndigits == starlark.None {
		switch x := x.(type) {
		case starlark.Int:
			return x, nil
		case starlark.Float:
			f := float64(x)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("ValueError: cannot convert float %s to integer", pyFloat(f))
			}
			r, _ := big.NewFloat(math.RoundToEven(f)).Int(nil)
			return starlark.MakeBigInt(r), nil
		}
		return nil, fmt.Errorf("TypeError: type %s doesn't define __round__ method", pyTypeName(x))
	}

	nv, ok := ndigits.(starlark.Int)
	if !ok {
		return nil, fmt.Errorf("TypeError: '%s' object cannot be interpreted as an integer", pyTypeName(ndigits))
	}
	n, _ := nv.Int64()
	switch x := x.(type) {
	case starlark.Int:
		if n >= 0 {
			return x, nil
		}
		unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(-n), nil)
		q, r := new(big.Int).QuoRem(x.BigInt(), unit, new(big.Int))
		twice := new(big.Int).Abs(new(big.Int).Mul(r, big.NewInt(2)))
		if c := twice.Cmp(unit); c > 0 || (c == 0 && q.Bit(0) == 1) {
			if x.Sign() < 0 {
				q.Sub(q, big.NewInt(1))
			} else {
				q.Add(q, big.NewInt(1))
			}
		}
		return starlark.MakeBigInt(q.Mul(q, unit)), nil
	case starlark.Float:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return x, nil
		}
		if n < 0 {
			unit := math.Pow(10, float64(-n))
			return starlark.Float(math.RoundToEven(f/unit) * unit), nil
		}
		r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', int(min(n, 323)), 64), 64)
		if err != nil {
			return nil, err
		}
		return starlark.Float(r), nil
	}
	return nil, fmt.Errorf("TypeError: type %s doesn't define __round__ method", pyTypeName(x))
}

func builtinSum(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var acc starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "start?", &acc); err != nil {
		return nil, err
	}
	if _, ok := acc.(starlark.String); ok {
		return nil, fmt.Errorf("TypeError: sum() can't sum strings [use ''.join(seq) instead]")
	}
	it := iterable.Iterate()
	defer it.Done()
	var x starlark.Value
	for it.Next(&x) {
		next, err := starlark.Binary(syntax.PLUS, acc, x)
		if err != nil {
			return nil, fmt.Errorf("TypeError: unsupported operand type(s) for +: '%s' and '%s'", pyTypeName(acc), pyTypeName(x))
		}
		acc = next
	}
	return acc, nil
}

func builtinAbs(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	switch x := x.(type) {
	case starlark.Int:
		if x.Sign() < 0 {
			return starlark.MakeBigInt(new(big.Int).Neg(x.BigInt())), nil
		}
		return x, nil
	case starlark.Float:
		return starlark.Float(math.Abs(float64(x))), nil
	case starlark.Bool:
		if x {
			return starlark.MakeInt(1), nil
		}
		return starlark.MakeInt(0), nil
	}
	return nil, fmt.Errorf("TypeError: bad operand type for abs(): '%s'", pyTypeName(x))
}

// builtinIsinstance accepts the conversion builtins (int, str, ...) as types.
func builtinIsinstance(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var obj, classinfo starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &obj, &classinfo); err != nil {
		return nil, err
	}
	classes := starlark.Tuple{classinfo}
	if t, ok := classinfo.(starlark.Tuple); ok {
		classes = t
	}
	name := pyTypeName(obj)
	for _, c := range classes {
		cb, ok := c.(*starlark.Builtin)
		if !ok {
			return nil, fmt.Errorf("TypeError: isinstance() arg 2 must be a type or tuple of types")
		}
		if cb.Name() == name || (cb.Name() == "int" && name == "bool") {
			return starlark.True, nil
		}
	}
	return starlark.False, nil
}

func builtinInput(_ *starlark.Thread, _ *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
	return nil, fmt.Errorf("EOFError: EOF when reading a line")
}

func builtinOpen(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	mode := "r"
	var encoding, newline starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "file", &name, "mode?", &mode, "encoding?", &encoding, "newline?", &newline); err != nil {
		return nil, err
	}
	st := stateOf(thread)
	if st == nil {
		return nil, fmt.Errorf("PermissionError: file access is not available")
	}
	return openFile(st.fs, name, mode)
}

func builtinImport(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	if st := stateOf(thread); st != nil {
		if m, ok := st.modules[name]; ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("ModuleNotFoundError: No module named '%s'", name)
}

// builtinWith returns the context value unchanged; lowered with-statements
// bind its result to the target name.
func builtinWith(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs("with", args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	return v, nil
}
