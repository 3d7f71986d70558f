package sandbox

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.starlark.net/starlark"
)

func pyStr(v starlark.Value) string {
	if s, ok := v.(starlark.String); ok {
		return string(s)
	}
	return pyRepr(v)
}

func pyRepr(v starlark.Value) string {
	var sb strings.Builder
	writeRepr(&sb, v, 0)
	return sb.String()
}

const maxReprDepth = 64

func writeRepr(sb *strings.Builder, v starlark.Value, depth int) {
	if depth > maxReprDepth {
		sb.WriteString("...")
		return
	}
	switch v := v.(type) {
	case starlark.NoneType:
		sb.WriteString("None")
	case starlark.Bool:
		if v {
			sb.WriteString("True")
		} else {
			sb.WriteString("False")
		}
	case starlark.String:
		sb.WriteString(pyQuote(string(v)))
	case starlark.Float:
		sb.WriteString(pyFloat(float64(v)))
	case starlark.Int:
		sb.WriteString(v.String())
	case *starlark.List:
		sb.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeRepr(sb, v.Index(i), depth+1)
		}
		sb.WriteByte(']')
	case starlark.Tuple:
		sb.WriteByte('(')
		for i, e := range v {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeRepr(sb, e, depth+1)
		}
		if len(v) == 1 {
			sb.WriteByte(',')
		}
		sb.WriteByte(')')
	case *starlark.Dict:
		sb.WriteByte('{')
		for i, item := range v.Items() {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeRepr(sb, item[0], depth+1)
			sb.WriteString(": ")
			writeRepr(sb, item[1], depth+1)
		}
		sb.WriteByte('}')
	case *starlark.Set:
		if v.Len() == 0 {
			sb.WriteString("set()")
			return
		}
		sb.WriteByte('{')
		it := v.Iterate()
		defer it.Done()
		var x starlark.Value
		for i := 0; it.Next(&x); i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeRepr(sb, x, depth+1)
		}
		sb.WriteByte('}')
	case *starlark.Function:
		fmt.Fprintf(sb, "<function %s>", v.Name())
	case *starlark.Builtin:
		fmt.Fprintf(sb, "<built-in function %s>", v.Name())
	default:
		sb.WriteString(v.String())
	}
}

// pyQuote quotes s like Python's repr: single quotes unless the string
// contains a single quote and no double quote.
func pyQuote(s string) string {
	q := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var sb strings.Builder
	sb.WriteRune(q)
	for _, r := range s {
		switch {
		case r == '\\':
			sb.WriteString(`\\`)
		case r == q:
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, r)
		case !unicode.IsPrint(r) && r != ' ':
			if r < 0x10000 {
				fmt.Fprintf(&sb, `\u%04x`, r)
			} else {
				fmt.Fprintf(&sb, `\U%08x`, r)
			}
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteRune(q)
	return sb.String()
}

// pyFloat formats f like Python's float repr.
func pyFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e16 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(s[strings.IndexByte(s, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return s
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func pyTypeName(v starlark.Value) string {
	switch v.(type) {
	case starlark.String:
		return "str"
	case starlark.Int:
		return "int"
	case starlark.Float:
		return "float"
	case starlark.Bool:
		return "bool"
	case starlark.NoneType:
		return "NoneType"
	case *starlark.List:
		return "list"
	case starlark.Tuple:
		return "tuple"
	case *starlark.Dict:
		return "dict"
	case *starlark.Set:
		return "set"
	case *starlark.Function:
		return "function"
	case *starlark.Builtin:
		return "builtin_function_or_method"
	}
	return v.Type()
}

// formatSpec is a parsed format-spec mini-language string:
// [[fill]align][sign][#][0][width][,|_][.precision][type]
type formatSpec struct {
	fill      rune
	align     byte
	sign      byte
	alternate bool
	width     int
	grouping  byte
	precision int
	verb      byte
}

func parseFormatSpec(spec string) (formatSpec, error) {
	fs := formatSpec{fill: ' ', precision: -1}
	r := []rune(spec)
	isAlign := func(c rune) bool { return c == '<' || c == '>' || c == '^' || c == '=' }
	i := 0
	switch {
	case len(r) >= 2 && isAlign(r[1]):
		fs.fill, fs.align = r[0], byte(r[1])
		i = 2
	case len(r) >= 1 && isAlign(r[0]):
		fs.align = byte(r[0])
		i = 1
	}
	if i < len(r) && (r[i] == '+' || r[i] == '-' || r[i] == ' ') {
		fs.sign = byte(r[i])
		i++
	}
	if i < len(r) && r[i] == '#' {
		fs.alternate = true
		i++
	}
	if i < len(r) && r[i] == '0' {
		if fs.align == 0 {
			fs.fill, fs.align = '0', '='
		}
		i++
	}
	start := i
	for i < len(r) && r[i] >= '0' && r[i] <= '9' {
		i++
	}
	if i > start {
		fs.width, _ = strconv.Atoi(string(r[start:i]))
	}
	if i < len(r) && (r[i] == ',' || r[i] == '_') {
		fs.grouping = byte(r[i])
		i++
	}
	if i < len(r) && r[i] == '.' {
		i++
		start = i
		for i < len(r) && r[i] >= '0' && r[i] <= '9' {
			i++
		}
		if i == start {
			return fs, fmt.Errorf("ValueError: Format specifier missing precision")
		}
		fs.precision, _ = strconv.Atoi(string(r[start:i]))
	}
	if i < len(r) && r[i] < utf8.RuneSelf {
		fs.verb = byte(r[i])
		i++
	}
	if i < len(r) {
		return fs, fmt.Errorf("ValueError: Invalid format specifier '%s'", spec)
	}
	return fs, nil
}

// applyFormat implements Python's format(value, spec) for strings, numbers
// and, with alignment only, any other value.
func applyFormat(v starlark.Value, spec string) (string, error) {
	if spec == "" {
		return pyStr(v), nil
	}
	fs, err := parseFormatSpec(spec)
	if err != nil {
		return "", err
	}
	switch x := v.(type) {
	case starlark.String:
		return fs.formatString(string(x), "str")
	case starlark.Bool:
		if fs.verb == 0 {
			return fs.formatString(pyStr(x), "bool")
		}
		n := 0
		if x {
			n = 1
		}
		return fs.formatInt(starlark.MakeInt(n), "bool")
	case starlark.Int:
		return fs.formatInt(x, "int")
	case starlark.Float:
		return fs.formatFloat(float64(x))
	}
	if fs.verb != 0 || fs.sign != 0 || fs.precision >= 0 || fs.grouping != 0 || fs.alternate {
		return "", fmt.Errorf("TypeError: unsupported format string passed to %s.__format__", pyTypeName(v))
	}
	return fs.pad(pyStr(v), "", '<'), nil
}

func (fs formatSpec) formatString(s, typeName string) (string, error) {
	switch {
	case fs.verb != 0 && fs.verb != 's':
		return "", fmt.Errorf("ValueError: Unknown format code '%c' for object of type '%s'", fs.verb, typeName)
	case fs.sign != 0:
		return "", fmt.Errorf("ValueError: Sign not allowed in string format specifier")
	case fs.align == '=':
		return "", fmt.Errorf("ValueError: '=' alignment not allowed in string format specifier")
	}
	if fs.precision >= 0 && utf8.RuneCountInString(s) > fs.precision {
		s = string([]rune(s)[:fs.precision])
	}
	return fs.pad(s, "", '<'), nil
}

func (fs formatSpec) formatInt(x starlark.Int, typeName string) (string, error) {
	switch fs.verb {
	case 'e', 'E', 'f', 'F', 'g', 'G', '%':
		f, _ := starlark.AsFloat(x)
		return fs.formatFloat(f)
	case 0, 'd', 'n', 'b', 'o', 'x', 'X', 'c':
	default:
		return "", fmt.Errorf("ValueError: Unknown format code '%c' for object of type '%s'", fs.verb, typeName)
	}
	if fs.precision >= 0 {
		return "", fmt.Errorf("ValueError: Precision not allowed in integer format specifier")
	}

	b := x.BigInt()
	abs := new(big.Int).Abs(b)
	var digits, prefix string
	groupSize := 3
	switch fs.verb {
	case 'b':
		digits, prefix, groupSize = abs.Text(2), "0b", 4
	case 'o':
		digits, prefix, groupSize = abs.Text(8), "0o", 4
	case 'x':
		digits, prefix, groupSize = abs.Text(16), "0x", 4
	case 'X':
		digits, prefix, groupSize = strings.ToUpper(abs.Text(16)), "0X", 4
	case 'c':
		if !b.IsInt64() || b.Int64() < 0 || b.Int64() > unicode.MaxRune {
			return "", fmt.Errorf("OverflowError: %%c arg not in range(0x110000)")
		}
		return fs.pad(string(rune(b.Int64())), "", '<'), nil
	default:
		digits = abs.Text(10)
	}
	if !fs.alternate {
		prefix = ""
	}
	if fs.grouping != 0 {
		digits = group(digits, fs.grouping, groupSize)
	}
	return fs.pad(digits, fs.signFor(b.Sign() < 0)+prefix, '>'), nil
}

func (fs formatSpec) formatFloat(f float64) (string, error) {
	neg := math.Signbit(f) && !math.IsNaN(f)
	a := math.Abs(f)
	prec := fs.precision
	if prec < 0 && fs.verb != 0 {
		prec = 6
	}

	var body string
	switch fs.verb {
	case 'f', 'F':
		body = strconv.FormatFloat(a, 'f', prec, 64)
	case 'e', 'E':
		body = strconv.FormatFloat(a, 'e', prec, 64)
	case 'g', 'G':
		body = strconv.FormatFloat(a, 'g', max(prec, 1), 64)
	case '%':
		body = strconv.FormatFloat(a*100, 'f', prec, 64) + "%"
	case 0:
		if prec < 0 {
			body = pyFloat(a)
			break
		}
		body = strconv.FormatFloat(a, 'g', max(prec, 1), 64)
		if !strings.ContainsAny(body, ".e") {
			body += ".0"
		}
	default:
		return "", fmt.Errorf("ValueError: Unknown format code '%c' for object of type 'float'", fs.verb)
	}
	switch {
	case math.IsInf(a, 0):
		body = strings.Replace(body, "+Inf", "inf", 1)
	case math.IsNaN(a):
		body = strings.Replace(body, "NaN", "nan", 1)
	}
	if fs.verb == 'E' || fs.verb == 'F' || fs.verb == 'G' {
		body = strings.ToUpper(body)
	}
	if fs.grouping != 0 {
		end := strings.IndexAny(body, ".e%")
		if end < 0 {
			end = len(body)
		}
		body = group(body[:end], fs.grouping, 3) + body[end:]
	}
	return fs.pad(body, fs.signFor(neg), '>'), nil
}

func (fs formatSpec) signFor(neg bool) string {
	switch {
	case neg:
		return "-"
	case fs.sign == '+':
		return "+"
	case fs.sign == ' ':
		return " "
	}
	return ""
}

func (fs formatSpec) pad(body, sign string, defaultAlign byte) string {
	n := utf8.RuneCountInString(sign) + utf8.RuneCountInString(body)
	if n >= fs.width {
		return sign + body
	}
	fill := string(fs.fill)
	gap := fs.width - n
	align := fs.align
	if align == 0 {
		align = defaultAlign
	}
	switch align {
	case '<':
		return sign + body + strings.Repeat(fill, gap)
	case '^':
		left := gap / 2
		return strings.Repeat(fill, left) + sign + body + strings.Repeat(fill, gap-left)
	case '=':
		return sign + strings.Repeat(fill, gap) + body
	}
	return strings.Repeat(fill, gap) + sign + body
}

func group(digits string, sep byte, size int) string {
	if len(digits) <= size {
		return digits
	}
	var sb strings.Builder
	lead := len(digits) % size
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += size {
		if sb.Len() > 0 {
			sb.WriteByte(sep)
		}
		sb.WriteString(digits[i : i+size])
	}
	return sb.String()
}
