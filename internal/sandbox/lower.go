package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

// program is submission source rewritten into the Starlark dialect.
type program struct {
	text string
	// inserted holds lowered line numbers that have no counterpart in the
	// original source.
	inserted []int
}

// origLine maps a line of the lowered text back to the submission.
func (p *program) origLine(line int) int {
	n := line
	for _, ins := range p.inserted {
		if ins <= line {
			n--
		}
	}
	if n < 1 {
		n = 1
	}
	return n
}

// lower rewrites the Python constructs Starlark lacks:
//
//	import m [as a]            ->  a = __import__("m")
//	from m import x [as y]     ->  y = __import__("m").x
//	with e as v: body          ->  v = __with__(e) / if True: body
//	f"...{e:spec}..."          ->  "...{}...".format(format(e, "spec"))
//	a ** b                     ->  pow(a, b)
//	a < b < c                  ->  (a < b and b < c)
//	a is b, a is not b         ->  a == b, a != b
//	for x in e                 ->  for x in __iter__(e)
func lower(src string) (*program, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	p := &program{}
	var stage1 strings.Builder
	outLine, srcLine := 1, 1
	for _, ln := range splitLines(toks) {
		if first := nextSig(ln, 0); first >= 0 && ln[first].kind == tokName {
			if what, ok := unsupportedStatements[ln[first].text]; ok {
				return nil, &SyntaxError{Line: srcLine, Msg: what + " are not supported"}
			}
		}
		srcLine += strings.Count(render(ln), "\n")
		text, insertAt := lowerStatement(ln)
		if insertAt > 0 {
			p.inserted = append(p.inserted, outLine+insertAt)
		}
		stage1.WriteString(text)
		outLine += strings.Count(text, "\n")
	}

	toks, err = tokenize(stage1.String())
	if err != nil {
		return nil, p.translate(err)
	}
	var out strings.Builder
	line := 1
	for _, ln := range splitLines(toks) {
		lowered, err := lowerExpressions(ln)
		if err != nil {
			var se *SyntaxError
			if errors.As(err, &se) {
				return nil, &SyntaxError{Line: p.origLine(line), Msg: se.Msg}
			}
			return nil, &SyntaxError{Line: p.origLine(line), Msg: err.Error()}
		}
		out.WriteString(render(lowered))
		line += strings.Count(render(ln), "\n")
	}
	p.text = out.String()
	return p, nil
}

// unsupportedStatements are Python statements with no Starlark counterpart.
var unsupportedStatements = map[string]string{
	"try":      "try statements",
	"except":   "except clauses",
	"finally":  "finally clauses",
	"class":    "class definitions",
	"global":   "global statements",
	"nonlocal": "nonlocal statements",
	"raise":    "raise statements",
	"del":      "del statements",
	"assert":   "assert statements",
	"yield":    "yield statements",
	"async":    "async statements",
	"await":    "await statements",
}

// lowerStatement rewrites import, from-import and with statements. It
// returns the new text and, when a line was inserted, its offset from the
// first line of the statement (0 when nothing was inserted).
func lowerStatement(ln []token) (string, int) {
	first := nextSig(ln, 0)
	if first < 0 || ln[first].kind != tokName {
		return render(ln), 0
	}
	indent := render(ln[:first])
	switch ln[first].text {
	case "import", "from":
		if text, ok := lowerImports(ln[first:]); ok {
			return indent + text, 0
		}
	case "with":
		items, rest, ok := withItems(ln[first+1:])
		if !ok {
			break
		}
		var stmts []string
		for _, it := range items {
			call := "__with__(" + render(it.expr) + ")"
			if len(it.target) > 0 {
				call = render(it.target) + " = " + call
			}
			stmts = append(stmts, call)
		}
		head := strings.Join(stmts, "; ")
		return indent + head + "\n" + indent + "if True:" + render(rest), strings.Count(head, "\n") + 1
	}
	return render(ln), 0
}

// lowerImports rewrites a simple-statement list that starts with import or
// from. Statements after a semicolon are lowered too.
func lowerImports(toks []token) (string, bool) {
	stmt, tail := toks, []token(nil)
	for i, t := range toks {
		if t.is(tokOp, ";") {
			stmt, tail = toks[:i], toks[i+1:]
			break
		}
		if t.kind == tokComment || t.kind == tokNewline {
			stmt, tail = toks[:i], toks[i:]
			break
		}
	}

	var text string
	var ok bool
	head := nextSig(stmt, 0)
	if head < 0 {
		return "", false
	}
	switch stmt[head].text {
	case "import":
		text, ok = lowerImport(stmt[head+1:])
	case "from":
		text, ok = lowerFromImport(stmt[head+1:])
	}
	if !ok {
		return "", false
	}

	if len(tail) > 0 && tail[0].kind != tokComment && tail[0].kind != tokNewline {
		next := nextSig(tail, 0)
		if next >= 0 && (tail[next].is(tokName, "import") || tail[next].is(tokName, "from")) {
			if more, ok := lowerImports(tail[next:]); ok {
				return text + "; " + more, true
			}
		}
		return text + ";" + render(tail), true
	}
	return text + render(trailingSpace(stmt)) + render(tail), true
}

func trailingSpace(toks []token) []token {
	i := len(toks)
	for i > 0 && toks[i-1].kind == tokSpace {
		i--
	}
	return toks[i:]
}

func lowerImport(toks []token) (string, bool) {
	var stmts []string
	for _, item := range splitTopLevel(toks, func(t token) bool { return t.is(tokOp, ",") }) {
		item = trimTrivia(item)
		name, alias := item, []token(nil)
		if i := indexTopLevel(item, func(t token) bool { return t.is(tokName, "as") }); i >= 0 {
			name, alias = trimTrivia(item[:i]), trimTrivia(item[i+1:])
		}
		module, ok := dottedName(name)
		if !ok {
			return "", false
		}
		switch {
		case alias == nil:
			top, _, _ := strings.Cut(module, ".")
			stmts = append(stmts, fmt.Sprintf("%s = __import__(%q)", top, top))
		case len(alias) == 1 && alias[0].kind == tokName:
			stmts = append(stmts, fmt.Sprintf("%s = __import__(%q)", alias[0].text, module))
		default:
			return "", false
		}
	}
	return strings.Join(stmts, "; "), len(stmts) > 0
}

func lowerFromImport(toks []token) (string, bool) {
	at := indexTopLevel(toks, func(t token) bool { return t.is(tokName, "import") })
	if at < 0 {
		return "", false
	}
	modToks := trimTrivia(toks[:at])
	if len(modToks) > 0 && modToks[0].is(tokOp, ".") {
		return `fail("ImportError: relative imports are not supported")`, true
	}
	module, ok := dottedName(modToks)
	if !ok {
		return "", false
	}

	names := trimTrivia(toks[at+1:])
	if len(names) >= 2 && names[0].is(tokOp, "(") && names[len(names)-1].is(tokOp, ")") {
		names = trimTrivia(names[1 : len(names)-1])
	}
	if len(names) == 1 && names[0].is(tokOp, "*") {
		return `fail("ImportError: wildcard imports are not supported")`, true
	}

	var stmts []string
	for _, item := range splitTopLevel(names, func(t token) bool { return t.is(tokOp, ",") }) {
		item = trimTrivia(item)
		if len(item) == 0 {
			continue
		}
		if item[0].kind != tokName {
			return "", false
		}
		bind := item[0].text
		if i := indexTopLevel(item, func(t token) bool { return t.is(tokName, "as") }); i >= 0 {
			alias := trimTrivia(item[i+1:])
			if len(alias) != 1 || alias[0].kind != tokName {
				return "", false
			}
			bind = alias[0].text
		}
		stmts = append(stmts, fmt.Sprintf("%s = __import__(%q).%s", bind, module, item[0].text))
	}
	return strings.Join(stmts, "; "), len(stmts) > 0
}

func dottedName(toks []token) (string, bool) {
	var sb strings.Builder
	wantName := true
	for _, t := range toks {
		switch {
		case t.trivia():
			continue
		case wantName && t.kind == tokName:
			sb.WriteString(t.text)
		case !wantName && t.is(tokOp, "."):
			sb.WriteByte('.')
		default:
			return "", false
		}
		wantName = !wantName
	}
	return sb.String(), sb.Len() > 0 && !wantName
}

type withItem struct {
	expr   []token
	target []token
}

// withItems parses the part of a with statement after the keyword. rest
// holds everything after the header colon.
func withItems(toks []token) (items []withItem, rest []token, ok bool) {
	colon := indexTopLevel(toks, func(t token) bool { return t.is(tokOp, ":") })
	if colon < 0 {
		return nil, nil, false
	}
	for _, part := range splitTopLevel(toks[:colon], func(t token) bool { return t.is(tokOp, ",") }) {
		part = trimTrivia(part)
		it := withItem{expr: part}
		if i := indexTopLevel(part, func(t token) bool { return t.is(tokName, "as") }); i >= 0 {
			it.expr, it.target = trimTrivia(part[:i]), trimTrivia(part[i+1:])
			if len(it.target) == 0 {
				return nil, nil, false
			}
		}
		if len(it.expr) == 0 {
			return nil, nil, false
		}
		items = append(items, it)
	}
	return items, toks[colon+1:], true
}

func indexTopLevel(toks []token, pred func(token) bool) int {
	depth := 0
	for i, t := range toks {
		switch {
		case isOpener(t):
			depth++
		case isCloser(t):
			depth--
		case depth == 0 && pred(t):
			return i
		}
	}
	return -1
}

// lowerExpressions applies the expression-level rewrites to one logical line.
func lowerExpressions(ln []token) ([]token, error) {
	toks, err := lowerStrings(ln)
	if err != nil {
		return nil, err
	}
	toks = lowerIdentity(toks)
	toks = lowerPow(toks)
	toks = lowerChains(toks)
	return lowerLoops(toks, true), nil
}

// lowerLoops wraps the iterable of every for clause in __iter__ so strings
// iterate by character. stmt is set for a logical line, whose leading for
// clause ends at the colon; comprehension clauses also end at if or for.
func lowerLoops(toks []token, stmt bool) []token {
	first := nextSig(toks, 0)
	var out []token
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if isOpener(t) {
			j := matchForward(toks, i)
			if j < 0 {
				return append(out, toks[i:]...)
			}
			out = append(out, t)
			out = append(out, lowerLoops(toks[i+1:j], false)...)
			out = append(out, toks[j])
			i = j
			continue
		}
		out = append(out, t)
		if !t.is(tokName, "for") {
			continue
		}
		in := indexTopLevel(toks[i+1:], func(t token) bool { return t.is(tokName, "in") })
		if in < 0 {
			continue
		}
		in += i + 1
		end := in + 1 + iterableEnd(toks[in+1:], stmt && i == first)
		expr := toks[in+1 : end]
		lo, hi := nextSig(expr, 0), len(expr)
		for hi > 0 && expr[hi-1].trivia() {
			hi--
		}
		if lo < 0 || lo >= hi {
			continue
		}
		inner := lowerLoops(expr[lo:hi], false)
		if indexTopLevel(inner, func(t token) bool { return t.is(tokOp, ",") }) >= 0 {
			inner = append(append([]token{{kind: tokOp, text: "("}}, inner...), token{kind: tokOp, text: ")"})
		}
		out = append(out, toks[i+1:in+1]...)
		out = append(out, expr[:lo]...)
		out = append(out, token{kind: tokName, text: "__iter__"}, token{kind: tokOp, text: "("})
		out = append(out, inner...)
		out = append(out, token{kind: tokOp, text: ")"})
		out = append(out, expr[hi:]...)
		i = end - 1
	}
	return out
}

// iterableEnd returns the length of the iterable at the start of toks.
func iterableEnd(toks []token, stmt bool) int {
	depth := 0
	for i, t := range toks {
		switch {
		case isOpener(t):
			depth++
		case isCloser(t):
			depth--
		case depth != 0:
		case t.is(tokOp, ":"), t.is(tokOp, ";"):
			return i
		case stmt && (t.kind == tokNewline || t.kind == tokComment):
			return i
		case !stmt && t.kind == tokName && (t.text == "if" || t.text == "for" || t.text == "async"):
			return i
		}
	}
	return len(toks)
}

func lowerStrings(toks []token) ([]token, error) {
	var out []token
	for _, t := range toks {
		if t.kind != tokString {
			out = append(out, t)
			continue
		}
		q := strings.IndexAny(t.text, `"'`)
		prefix := t.text[:q]
		if strings.ContainsAny(prefix, "uU") {
			prefix = strings.NewReplacer("u", "", "U", "").Replace(prefix)
			t.text = prefix + t.text[q:]
		}
		if !strings.ContainsAny(prefix, "fF") {
			out = append(out, t)
			continue
		}
		text, err := lowerFString(t.text)
		if err != nil {
			return nil, err
		}
		sub, err := tokenize(text)
		if err != nil {
			return nil, err
		}
		sub, err = lowerStrings(sub)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

type fstringField struct {
	expr  string
	conv  byte
	spec  string
	debug bool
}

func lowerFString(lit string) (string, error) {
	q := strings.IndexAny(lit, `"'`)
	prefix := strings.NewReplacer("f", "", "F", "").Replace(lit[:q])
	delim := lit[q : q+1]
	if strings.HasPrefix(lit[q:], strings.Repeat(delim, 3)) && len(lit)-q >= 6 {
		delim = strings.Repeat(delim, 3)
	}
	body := lit[q+len(delim) : len(lit)-len(delim)]

	var sb strings.Builder
	var args []string
	for i := 0; i < len(body); {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body):
			sb.WriteString(body[i : i+2])
			i += 2
		case c == '{' && i+1 < len(body) && body[i+1] == '{':
			sb.WriteString("{{")
			i += 2
		case c == '}' && i+1 < len(body) && body[i+1] == '}':
			sb.WriteString("}}")
			i += 2
		case c == '}':
			return "", errors.New("f-string: single '}' is not allowed")
		case c == '{':
			f, end, err := scanField(body, i+1)
			if err != nil {
				return "", err
			}
			arg, placeholder, err := f.lower()
			if err != nil {
				return "", err
			}
			if f.debug {
				sb.WriteString(strings.NewReplacer("{", "{{", "}", "}}").Replace(f.expr) + "=")
			}
			sb.WriteString(placeholder)
			args = append(args, arg)
			i = end
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return prefix + delim + sb.String() + delim + ".format(" + strings.Join(args, ", ") + ")", nil
}

func (f fstringField) lower() (arg, placeholder string, err error) {
	conv := f.conv
	if conv == 'a' {
		conv = 'r'
	}
	if f.debug && conv == 0 && f.spec == "" {
		conv = 'r'
	}
	expr := "str(" + f.expr + ")"
	if conv == 'r' {
		expr = "repr(" + f.expr + ")"
	}
	if f.spec == "" {
		return expr, "{}", nil
	}
	if conv == 0 {
		expr = "(" + f.expr + ")"
	}
	spec := fmt.Sprintf("%q", f.spec)
	if strings.Contains(f.spec, "{") {
		if spec, err = lowerFString("f" + spec); err != nil {
			return "", "", err
		}
	}
	return "format(" + expr + ", " + spec + ")", "{}", nil
}

// scanField reads a replacement field starting just after its '{' and
// returns the index just past the closing '}'.
func scanField(body string, start int) (fstringField, int, error) {
	var f fstringField
	depth := 0
	var quote byte
	i := start
scan:
	for ; i < len(body); i++ {
		c := body[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']':
			depth--
		case '}':
			if depth == 0 {
				break scan
			}
			depth--
		case '!':
			if depth == 0 && i+1 < len(body) && body[i+1] != '=' {
				break scan
			}
		case ':':
			if depth == 0 {
				break scan
			}
		}
	}
	f.expr = strings.TrimSpace(body[start:i])
	if strings.HasSuffix(f.expr, "=") && !strings.HasSuffix(f.expr, "==") &&
		!strings.HasSuffix(f.expr, "!=") && !strings.HasSuffix(f.expr, "<=") && !strings.HasSuffix(f.expr, ">=") {
		f.debug = true
		f.expr = strings.TrimSpace(strings.TrimSuffix(f.expr, "="))
	}
	if f.expr == "" {
		return f, 0, errors.New("f-string: empty expression not allowed")
	}
	if i < len(body) && body[i] == '!' {
		if i+1 >= len(body) || !strings.ContainsRune("rsa", rune(body[i+1])) {
			return f, 0, errors.New("f-string: invalid conversion character")
		}
		f.conv = body[i+1]
		i += 2
	}
	if i < len(body) && body[i] == ':' {
		specStart := i + 1
		nested := 0
		for i = specStart; i < len(body); i++ {
			if body[i] == '{' {
				nested++
			} else if body[i] == '}' {
				if nested == 0 {
					break
				}
				nested--
			}
		}
		f.spec = body[specStart:i]
	}
	if i >= len(body) || body[i] != '}' {
		return f, 0, errors.New("f-string: expecting '}'")
	}
	return f, i + 1, nil
}

// lowerIdentity turns "is not" into != and "is" into ==.
func lowerIdentity(toks []token) []token {
	var out []token
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if !t.is(tokName, "is") {
			out = append(out, t)
			continue
		}
		if j := nextSig(toks, i+1); j >= 0 && toks[j].is(tokName, "not") {
			out = append(out, token{tokOp, "!="})
			i = j
			continue
		}
		out = append(out, token{tokOp, "=="})
	}
	return out
}

// lowerPow rewrites binary ** into pow(), rightmost first so that the
// operator stays right-associative.
func lowerPow(toks []token) []token {
	for {
		at := -1
		for i := len(toks) - 1; i >= 0; i-- {
			if toks[i].is(tokOp, "**") && isBinaryPow(toks, i) {
				at = i
				break
			}
		}
		if at < 0 {
			return toks
		}
		start, end := powLeft(toks, at), powRight(toks, at)
		if start < 0 || end < 0 {
			return toks
		}
		var repl []token
		repl = append(repl, token{tokName, "pow"}, token{tokOp, "("})
		repl = append(repl, trimTrivia(toks[start:at])...)
		repl = append(repl, token{tokOp, ","}, token{tokSpace, " "})
		repl = append(repl, trimTrivia(toks[at+1:end])...)
		repl = append(repl, token{tokOp, ")"})

		next := make([]token, 0, len(toks)+4)
		next = append(next, toks[:start]...)
		next = append(next, repl...)
		next = append(next, toks[end:]...)
		toks = next
	}
}

func isOperand(t token) bool {
	switch t.kind {
	case tokNumber, tokString:
		return true
	case tokName:
		return !pyKeywords[t.text] || t.text == "True" || t.text == "False" || t.text == "None"
	}
	return isCloser(t)
}

func isBinaryPow(toks []token, at int) bool {
	p := prevSig(toks, at-1)
	return p >= 0 && isOperand(toks[p])
}

// powLeft returns the index where the primary expression ending before at starts.
func powLeft(toks []token, at int) int {
	i := prevSig(toks, at-1)
	for i >= 0 {
		t := toks[i]
		switch {
		case isCloser(t):
			j := matchBackward(toks, i)
			if j < 0 {
				return -1
			}
			if p := prevSig(toks, j-1); p >= 0 && isOperand(toks[p]) && toks[p].kind != tokNumber {
				i = p
				continue
			}
			return j
		case t.kind == tokName || t.kind == tokNumber || t.kind == tokString:
			if p := prevSig(toks, i-1); p >= 0 && toks[p].is(tokOp, ".") {
				i = prevSig(toks, p-1)
				continue
			}
			return i
		default:
			return -1
		}
	}
	return -1
}

// powRight returns the index just past the unary expression starting after at.
func powRight(toks []token, at int) int {
	i := nextSig(toks, at+1)
	for i >= 0 && toks[i].kind == tokOp && (toks[i].text == "-" || toks[i].text == "+" || toks[i].text == "~") {
		i = nextSig(toks, i+1)
	}
	if i < 0 {
		return -1
	}
	var end int
	switch t := toks[i]; {
	case isOpener(t):
		j := matchForward(toks, i)
		if j < 0 {
			return -1
		}
		end = j + 1
	case isOperand(t):
		end = i + 1
	default:
		return -1
	}
	for {
		n := nextSig(toks, end)
		if n < 0 {
			return end
		}
		switch {
		case toks[n].is(tokOp, "."):
			m := nextSig(toks, n+1)
			if m < 0 || toks[m].kind != tokName {
				return end
			}
			end = m + 1
		case toks[n].is(tokOp, "(") || toks[n].is(tokOp, "["):
			j := matchForward(toks, n)
			if j < 0 {
				return -1
			}
			end = j + 1
		default:
			return end
		}
	}
}

// lowerChains expands chained comparisons, innermost brackets first.
func lowerChains(toks []token) []token {
	var flat []token
	for i := 0; i < len(toks); i++ {
		if isOpener(toks[i]) {
			j := matchForward(toks, i)
			if j < 0 {
				flat = append(flat, toks[i:]...)
				break
			}
			flat = append(flat, toks[i])
			flat = append(flat, lowerChains(toks[i+1:j])...)
			flat = append(flat, toks[j])
			i = j
			continue
		}
		flat = append(flat, toks[i])
	}

	var out []token
	depth, start := 0, 0
	forPending := false
	for i, t := range flat {
		switch {
		case isOpener(t):
			depth++
			continue
		case isCloser(t):
			depth--
			continue
		case depth != 0:
			continue
		}
		if t.is(tokName, "for") {
			forPending = true
		}
		if isChainDelimiter(flat, i, &forPending) {
			out = append(out, rewriteChain(flat[start:i])...)
			out = append(out, t)
			start = i + 1
		}
	}
	return append(out, rewriteChain(flat[start:])...)
}

var chainDelimiterWords = map[string]bool{
	"and": true, "or": true, "if": true, "else": true, "elif": true, "while": true,
	"for": true, "lambda": true, "return": true, "yield": true, "assert": true,
	"del": true, "import": true, "from": true, "as": true, "with": true, "def": true,
	"class": true,
}

func isChainDelimiter(toks []token, i int, forPending *bool) bool {
	t := toks[i]
	switch t.kind {
	case tokNewline, tokComment:
		return true
	case tokOp:
		switch t.text {
		case ",", ":", ";", "->":
			return true
		}
		return strings.HasSuffix(t.text, "=") && !isComparison(t.text)
	case tokName:
		if chainDelimiterWords[t.text] {
			return true
		}
		if t.text == "in" && *forPending {
			*forPending = false
			return true
		}
		if t.text == "not" {
			j := nextSig(toks, i+1)
			return j < 0 || !toks[j].is(tokName, "in")
		}
	}
	return false
}

func isComparison(op string) bool {
	switch op {
	case "<", ">", "==", "!=", "<=", ">=":
		return true
	}
	return false
}

func rewriteChain(seg []token) []token {
	type span struct{ start, end int }
	var ops []span
	depth := 0
	for i := 0; i < len(seg); i++ {
		t := seg[i]
		switch {
		case isOpener(t):
			depth++
		case isCloser(t):
			depth--
		case depth != 0:
		case t.kind == tokOp && isComparison(t.text), t.is(tokName, "in"):
			ops = append(ops, span{i, i + 1})
		case t.is(tokName, "not"):
			if j := nextSig(seg, i+1); j >= 0 && seg[j].is(tokName, "in") {
				ops = append(ops, span{i, j + 1})
				i = j
			}
		}
	}
	if len(ops) < 2 {
		return seg
	}

	first, last := nextSig(seg, 0), prevSig(seg, len(seg)-1)
	operands := make([][]token, 0, len(ops)+1)
	prev := first
	for _, op := range ops {
		operands = append(operands, trimTrivia(seg[prev:op.start]))
		prev = op.end
	}
	operands = append(operands, trimTrivia(seg[prev:last+1]))
	for _, o := range operands {
		if len(o) == 0 {
			return seg
		}
	}

	out := append([]token(nil), seg[:first]...)
	out = append(out, token{tokOp, "("})
	for k, op := range ops {
		if k > 0 {
			out = append(out, token{tokSpace, " "}, token{tokName, "and"}, token{tokSpace, " "})
		}
		out = append(out, operands[k]...)
		out = append(out, token{tokSpace, " "})
		out = append(out, seg[op.start:op.end]...)
		out = append(out, token{tokSpace, " "})
		out = append(out, operands[k+1]...)
	}
	out = append(out, token{tokOp, ")"})
	return append(out, seg[last+1:]...)
}
