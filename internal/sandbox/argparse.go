package sandbox

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Argparse is the importable argparse module.
var Argparse = &starlarkstruct.Module{
	Name: "argparse",
	Members: starlark.StringDict{
		"ArgumentParser": starlark.NewBuiltin("ArgumentParser", newArgumentParser),
		"Namespace":      starlark.NewBuiltin("Namespace", newNamespace),
	},
}

type actionKind int

const (
	actionStore actionKind = iota
	actionStoreTrue
	actionStoreFalse
	actionAppend
	actionCount
)

var actionNames = map[string]actionKind{
	"store":       actionStore,
	"store_true":  actionStoreTrue,
	"store_false": actionStoreFalse,
	"append":      actionAppend,
	"count":       actionCount,
}

// Argument is one add_argument registration.
type Argument struct {
	Dest     string
	Flags    []string
	Required bool
	Help     string

	kind    actionKind
	typ     starlark.Value
	deflt   starlark.Value
	choices starlark.Value
	nargs   string
}

// Positional reports whether the argument has no option strings.
func (a *Argument) Positional() bool {
	return len(a.Flags) == 0
}

func (a *Argument) display() string {
	if a.Positional() {
		return a.Dest
	}
	return strings.Join(a.Flags, "/")
}

func (a *Argument) metavar() string {
	if a.Positional() {
		return a.Dest
	}
	return strings.ToUpper(a.Dest)
}

func (a *Argument) takesValue() bool {
	return a.kind == actionStore || a.kind == actionAppend
}

// ArgumentParser is a subset of Python's argparse.ArgumentParser.
type ArgumentParser struct {
	prog        string
	usage       starlark.Value
	description starlark.Value
	epilog      starlark.Value
	addHelp     bool
	args        []*Argument
	frozen      bool
}

var _ starlark.HasAttrs = (*ArgumentParser)(nil)

// NewArgumentParser returns a parser with no arguments and no description.
func NewArgumentParser() *ArgumentParser {
	return &ArgumentParser{
		prog:        "main.py",
		usage:       starlark.None,
		description: starlark.None,
		epilog:      starlark.None,
		addHelp:     true,
	}
}

func newArgumentParser(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	p := NewArgumentParser()
	var prog starlark.Value = starlark.None
	var formatterClass, parents, prefixChars, exitOnError starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"prog?", &prog,
		"usage?", &p.usage,
		"description?", &p.description,
		"epilog?", &p.epilog,
		"parents?", &parents,
		"formatter_class?", &formatterClass,
		"prefix_chars?", &prefixChars,
		"add_help?", &p.addHelp,
		"exit_on_error?", &exitOnError,
	); err != nil {
		return nil, err
	}
	if s, ok := prog.(starlark.String); ok {
		p.prog = string(s)
	}
	return p, nil
}

func newNamespace(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("TypeError: Namespace() takes no positional arguments")
	}
	ns := NewObject("Namespace")
	for _, kv := range kwargs {
		ns.Set(string(kv[0].(starlark.String)), kv[1])
	}
	return ns, nil
}

// Description returns the description passed to the constructor.
func (p *ArgumentParser) Description() (string, bool) {
	s, ok := p.description.(starlark.String)
	return string(s), ok
}

// Arguments returns the registered arguments in registration order.
func (p *ArgumentParser) Arguments() []*Argument {
	return p.args
}

// Argument returns the argument stored under dest.
func (p *ArgumentParser) Argument(dest string) (*Argument, bool) {
	for _, a := range p.args {
		if a.Dest == dest {
			return a, true
		}
	}
	return nil, false
}

func (p *ArgumentParser) String() string {
	return fmt.Sprintf("ArgumentParser(prog=%s, usage=%s, description=%s, add_help=%s)",
		pyQuote(p.prog), pyRepr(p.usage), pyRepr(p.description), pyRepr(starlark.Bool(p.addHelp)))
}

func (p *ArgumentParser) Type() string         { return "ArgumentParser" }
func (p *ArgumentParser) Freeze()              { p.frozen = true }
func (p *ArgumentParser) Truth() starlark.Bool { return starlark.True }
func (p *ArgumentParser) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: 'ArgumentParser'")
}

var parserMethods = map[string]*starlark.Builtin{
	"add_argument": starlark.NewBuiltin("add_argument", parserAddArgument),
	"parse_args":   starlark.NewBuiltin("parse_args", parserParseArgs),
	"print_help":   starlark.NewBuiltin("print_help", parserPrintHelp),
	"print_usage":  starlark.NewBuiltin("print_usage", parserPrintUsage),
	"format_help":  starlark.NewBuiltin("format_help", parserFormatHelp),
	"format_usage": starlark.NewBuiltin("format_usage", parserFormatUsage),
}

func (p *ArgumentParser) Attr(name string) (starlark.Value, error) {
	switch name {
	case "prog":
		return starlark.String(p.prog), nil
	case "usage":
		return p.usage, nil
	case "description":
		return p.description, nil
	case "epilog":
		return p.epilog, nil
	case "add_help":
		return starlark.Bool(p.addHelp), nil
	}
	if m, ok := parserMethods[name]; ok {
		return m.BindReceiver(p), nil
	}
	return nil, nil
}

func (p *ArgumentParser) AttrNames() []string {
	names := []string{"add_help", "description", "epilog", "prog", "usage"}
	for name := range parserMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parserAddArgument(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	p := b.Receiver().(*ArgumentParser)
	if p.frozen {
		return nil, fmt.Errorf("add_argument: parser is frozen")
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("TypeError: add_argument() missing required argument: 'name or flags'")
	}
	names := make([]string, len(args))
	for i, v := range args {
		s, ok := v.(starlark.String)
		if !ok {
			return nil, fmt.Errorf("TypeError: add_argument() argument must be str, not %s", pyTypeName(v))
		}
		names[i] = string(s)
	}

	a := &Argument{deflt: starlark.None}
	if !strings.HasPrefix(names[0], "-") {
		if len(names) > 1 {
			return nil, fmt.Errorf("ValueError: invalid option string '%s': must start with a character '-'", names[1])
		}
		a.Dest = names[0]
		a.Required = true
	} else {
		for _, n := range names {
			if !strings.HasPrefix(n, "-") {
				return nil, fmt.Errorf("ValueError: invalid option string '%s': must start with a character '-'", n)
			}
			if _, dup := p.option(n); dup {
				return nil, fmt.Errorf("ArgumentError: argument %s: conflicting option string: %s", n, n)
			}
		}
		a.Flags = names
		a.Dest = optionDest(names)
	}

	for _, kv := range kwargs {
		key, v := string(kv[0].(starlark.String)), kv[1]
		switch key {
		case "type":
			if _, ok := v.(starlark.Callable); !ok && v != starlark.None {
				return nil, fmt.Errorf("ValueError: %s is not callable", pyRepr(v))
			}
			a.typ = v
		case "default":
			a.deflt = v
		case "required":
			if a.Positional() {
				return nil, fmt.Errorf("TypeError: 'required' is an invalid argument for positionals")
			}
			a.Required = bool(v.Truth())
		case "action":
			name, _ := v.(starlark.String)
			kind, ok := actionNames[string(name)]
			if !ok {
				return nil, fmt.Errorf("ValueError: unknown action %s", pyRepr(v))
			}
			a.kind = kind
		case "dest":
			s, ok := v.(starlark.String)
			if !ok {
				return nil, fmt.Errorf("TypeError: dest must be a string")
			}
			if a.Positional() {
				return nil, fmt.Errorf("ValueError: dest supplied twice for positional argument")
			}
			a.Dest = string(s)
		case "help":
			a.Help = pyStr(v)
		case "choices":
			if _, ok := v.(starlark.Iterable); !ok {
				return nil, fmt.Errorf("TypeError: choices must be iterable")
			}
			a.choices = v
		case "nargs":
			s := pyStr(v)
			switch s {
			case "?", "*", "+":
				a.nargs = s
			default:
				if n, err := strconv.Atoi(s); err != nil || n != 1 {
					return nil, fmt.Errorf("ValueError: nargs=%s is not supported", pyRepr(v))
				}
			}
		case "metavar", "const":
		default:
			return nil, fmt.Errorf("TypeError: add_argument() got an unexpected keyword argument '%s'", key)
		}
	}
	if a.Positional() && (a.nargs == "?" || a.nargs == "*") {
		a.Required = false
	}
	switch a.kind {
	case actionStoreTrue:
		if a.deflt == starlark.None {
			a.deflt = starlark.False
		}
	case actionStoreFalse:
		if a.deflt == starlark.None {
			a.deflt = starlark.True
		}
	}
	p.args = append(p.args, a)
	return starlark.None, nil
}

func optionDest(flags []string) string {
	name := flags[0]
	for _, f := range flags {
		if strings.HasPrefix(f, "--") {
			name = f
			break
		}
	}
	return strings.ReplaceAll(strings.TrimLeft(name, "-"), "-", "_")
}

func (p *ArgumentParser) option(flag string) (*Argument, bool) {
	for _, a := range p.args {
		for _, f := range a.Flags {
			if f == flag {
				return a, true
			}
		}
	}
	return nil, false
}

func parserParseArgs(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	p := b.Receiver().(*ArgumentParser)
	var argv, namespace starlark.Value = starlark.None, starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "args?", &argv, "namespace?", &namespace); err != nil {
		return nil, err
	}
	var list []string
	if argv != starlark.None {
		iter, ok := argv.(starlark.Iterable)
		if !ok {
			return nil, fmt.Errorf("TypeError: args must be a list of strings")
		}
		it := iter.Iterate()
		defer it.Done()
		var x starlark.Value
		for it.Next(&x) {
			list = append(list, pyStr(x))
		}
	}
	ns, _ := namespace.(*Object)
	return p.parse(thread, list, ns)
}

// Parse parses argv as parse_args would and returns the resulting namespace.
func (p *ArgumentParser) Parse(argv []string) (*Object, error) {
	thread := &starlark.Thread{Name: "argparse"}
	thread.SetMaxExecutionSteps(DefaultLimits.MaxSteps)
	return p.parse(thread, argv, nil)
}

func (p *ArgumentParser) parse(thread *starlark.Thread, argv []string, ns *Object) (*Object, error) {
	if ns == nil {
		ns = NewObject("Namespace")
	}
	for _, a := range p.args {
		if _, set := ns.Get(a.Dest); set {
			continue
		}
		deflt := a.deflt
		if s, ok := deflt.(starlark.String); ok && a.typ != nil && a.typ != starlark.None {
			v, err := p.convert(thread, a, string(s))
			if err != nil {
				return nil, err
			}
			deflt = v
		}
		ns.Set(a.Dest, deflt)
	}

	var positionals []*Argument
	for _, a := range p.args {
		if a.Positional() {
			positionals = append(positionals, a)
		}
	}
	seen := make(map[*Argument]bool)
	var extras []string
	next := 0
	onlyPositional := false

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if arg == "--" && !onlyPositional {
			onlyPositional = true
			continue
		}
		if !onlyPositional && isFlag(arg) {
			if p.addHelp && (arg == "-h" || arg == "--help") {
				p.write(thread, p.help())
				return nil, &RuntimeError{Msg: "SystemExit: 0"}
			}
			name, value, inline := strings.Cut(arg, "=")
			a, ok := p.option(name)
			if !ok {
				extras = append(extras, arg)
				continue
			}
			seen[a] = true
			switch a.kind {
			case actionStoreTrue:
				ns.Set(a.Dest, starlark.True)
				continue
			case actionStoreFalse:
				ns.Set(a.Dest, starlark.False)
				continue
			case actionCount:
				n := 0
				if cur, ok := ns.Get(a.Dest); ok {
					if ci, ok := cur.(starlark.Int); ok {
						v, _ := ci.Int64()
						n = int(v)
					}
				}
				ns.Set(a.Dest, starlark.MakeInt(n+1))
				continue
			}
			if !inline {
				if i+1 >= len(argv) || isFlag(argv[i+1]) {
					return nil, p.fail(thread, fmt.Sprintf("argument %s: expected one argument", a.display()))
				}
				i++
				value = argv[i]
			}
			v, err := p.convert(thread, a, value)
			if err != nil {
				return nil, err
			}
			if a.kind == actionAppend {
				cur, _ := ns.Get(a.Dest)
				list, ok := cur.(*starlark.List)
				if !ok {
					list = starlark.NewList(nil)
				}
				if err := list.Append(v); err != nil {
					return nil, err
				}
				v = list
			}
			ns.Set(a.Dest, v)
			continue
		}

		if next >= len(positionals) {
			extras = append(extras, arg)
			continue
		}
		a := positionals[next]
		next++
		seen[a] = true
		if a.nargs == "*" || a.nargs == "+" {
			var elems []starlark.Value
			for ; i < len(argv) && (onlyPositional || !isFlag(argv[i])); i++ {
				v, err := p.convert(thread, a, argv[i])
				if err != nil {
					return nil, err
				}
				elems = append(elems, v)
			}
			i--
			ns.Set(a.Dest, starlark.NewList(elems))
			continue
		}
		v, err := p.convert(thread, a, arg)
		if err != nil {
			return nil, err
		}
		ns.Set(a.Dest, v)
	}

	var missing []string
	for _, a := range p.args {
		if a.Required && !seen[a] {
			missing = append(missing, a.display())
		}
	}
	if len(missing) > 0 {
		return nil, p.fail(thread, "the following arguments are required: "+strings.Join(missing, ", "))
	}
	if len(extras) > 0 {
		return nil, p.fail(thread, "unrecognized arguments: "+strings.Join(extras, " "))
	}
	return ns, nil
}

func isFlag(arg string) bool {
	if len(arg) < 2 || arg[0] != '-' {
		return false
	}
	_, err := strconv.ParseFloat(arg, 64)
	return err != nil
}

func (p *ArgumentParser) convert(thread *starlark.Thread, a *Argument, raw string) (starlark.Value, error) {
	var v starlark.Value = starlark.String(raw)
	if a.typ != nil && a.typ != starlark.None {
		conv, err := starlark.Call(thread, a.typ, starlark.Tuple{v}, nil)
		if err != nil {
			typeName := "type"
			if b, ok := a.typ.(*starlark.Builtin); ok {
				typeName = b.Name()
			} else if f, ok := a.typ.(*starlark.Function); ok {
				typeName = f.Name()
			}
			return nil, p.fail(thread, fmt.Sprintf("argument %s: invalid %s value: %s", a.display(), typeName, pyQuote(raw)))
		}
		v = conv
	}
	if a.choices != nil {
		ok := false
		it := a.choices.(starlark.Iterable).Iterate()
		defer it.Done()
		var c starlark.Value
		var options []string
		for it.Next(&c) {
			options = append(options, pyRepr(c))
			if eq, err := starlark.Equal(v, c); err == nil && eq {
				ok = true
			}
		}
		if !ok {
			return nil, p.fail(thread, fmt.Sprintf("argument %s: invalid choice: %s (choose from %s)",
				a.display(), pyRepr(v), strings.Join(options, ", ")))
		}
	}
	return v, nil
}

// fail writes the usage and error message like argparse does before exiting
// with status 2.
func (p *ArgumentParser) fail(thread *starlark.Thread, msg string) error {
	p.write(thread, p.usageLine()+"\n"+p.prog+": error: "+msg+"\n")
	return &RuntimeError{Msg: "SystemExit: 2"}
}

func (p *ArgumentParser) write(thread *starlark.Thread, s string) {
	if st := stateOf(thread); st != nil {
		st.out.write(s)
	}
}

func (p *ArgumentParser) usageLine() string {
	if s, ok := p.usage.(starlark.String); ok {
		return "usage: " + string(s)
	}
	parts := []string{"usage:", p.prog}
	if p.addHelp {
		parts = append(parts, "[-h]")
	}
	for _, a := range p.args {
		if a.Positional() {
			continue
		}
		opt := a.Flags[0]
		if a.takesValue() {
			opt += " " + a.metavar()
		}
		if !a.Required {
			opt = "[" + opt + "]"
		}
		parts = append(parts, opt)
	}
	for _, a := range p.args {
		if !a.Positional() {
			continue
		}
		switch a.nargs {
		case "?":
			parts = append(parts, "["+a.Dest+"]")
		case "*":
			parts = append(parts, "["+a.Dest+" ...]")
		case "+":
			parts = append(parts, a.Dest+" ["+a.Dest+" ...]")
		default:
			parts = append(parts, a.Dest)
		}
	}
	return strings.Join(parts, " ")
}

func (p *ArgumentParser) help() string {
	var sb strings.Builder
	sb.WriteString(p.usageLine() + "\n")
	if d, ok := p.description.(starlark.String); ok {
		sb.WriteString("\n" + string(d) + "\n")
	}
	var positional, optional []string
	for _, a := range p.args {
		line := "  " + a.display()
		if !a.Positional() && a.takesValue() {
			line = "  " + strings.Join(a.Flags, " "+a.metavar()+", ") + " " + a.metavar()
		}
		if a.Help != "" {
			line += "  " + a.Help
		}
		if a.Positional() {
			positional = append(positional, line)
		} else {
			optional = append(optional, line)
		}
	}
	if p.addHelp {
		optional = append([]string{"  -h, --help  show this help message and exit"}, optional...)
	}
	if len(positional) > 0 {
		sb.WriteString("\npositional arguments:\n" + strings.Join(positional, "\n") + "\n")
	}
	if len(optional) > 0 {
		sb.WriteString("\noptions:\n" + strings.Join(optional, "\n") + "\n")
	}
	if e, ok := p.epilog.(starlark.String); ok {
		sb.WriteString("\n" + string(e) + "\n")
	}
	return sb.String()
}

func parserPrintHelp(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	p := b.Receiver().(*ArgumentParser)
	p.write(thread, p.help())
	return starlark.None, nil
}

func parserPrintUsage(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	p := b.Receiver().(*ArgumentParser)
	p.write(thread, p.usageLine()+"\n")
	return starlark.None, nil
}

func parserFormatHelp(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return starlark.String(b.Receiver().(*ArgumentParser).help()), nil
}

func parserFormatUsage(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return starlark.String(b.Receiver().(*ArgumentParser).usageLine() + "\n"), nil
}
