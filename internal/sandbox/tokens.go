package sandbox

import (
	"errors"
	"strings"
)

type tokenKind int

const (
	tokSpace tokenKind = iota // spaces, tabs and backslash continuations
	tokComment
	tokNewline
	tokName
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

func (t token) trivia() bool {
	return t.kind == tokSpace || t.kind == tokComment || t.kind == tokNewline
}

var pyKeywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true, "assert": true,
	"async": true, "await": true, "break": true, "class": true, "continue": true,
	"def": true, "del": true, "elif": true, "else": true, "except": true, "finally": true,
	"for": true, "from": true, "global": true, "if": true, "import": true, "in": true,
	"is": true, "lambda": true, "nonlocal": true, "not": true, "or": true, "pass": true,
	"raise": true, "return": true, "try": true, "while": true, "with": true, "yield": true,
}

// Longest operators first.
var pyOperators = []string{
	"**=", "//=", ">>=", "<<=",
	"**", "//", "==", "!=", "<=", ">=", "->", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<", ">>",
}

var errUnterminatedString = errors.New("unterminated string literal")

// tokenize splits Python source into tokens. Concatenating the text of
// every token reproduces src exactly.
func tokenize(src string) ([]token, error) {
	var toks []token
	line := 1
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\n':
			toks = append(toks, token{tokNewline, "\n"})
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f':
			j := i
			for j < len(src) && strings.IndexByte(" \t\r\f", src[j]) >= 0 {
				j++
			}
			toks = append(toks, token{tokSpace, src[i:j]})
			i = j
		case c == '\\' && i+1 < len(src) && src[i+1] == '\n':
			toks = append(toks, token{tokSpace, src[i : i+2]})
			line++
			i += 2
		case c == '#':
			j := strings.IndexByte(src[i:], '\n')
			if j < 0 {
				j = len(src)
			} else {
				j += i
			}
			toks = append(toks, token{tokComment, src[i:j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			if j < len(src) && (src[j] == '"' || src[j] == '\'') && isStringPrefix(src[i:j]) {
				end, err := scanString(src, j)
				if err != nil {
					return nil, &SyntaxError{Line: line, Msg: err.Error()}
				}
				toks = append(toks, token{tokString, src[i:end]})
				line += strings.Count(src[i:end], "\n")
				i = end
				continue
			}
			toks = append(toks, token{tokName, src[i:j]})
			i = j
		case c == '"' || c == '\'':
			end, err := scanString(src, i)
			if err != nil {
				return nil, &SyntaxError{Line: line, Msg: err.Error()}
			}
			toks = append(toks, token{tokString, src[i:end]})
			line += strings.Count(src[i:end], "\n")
			i = end
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			j := i + 1
			for j < len(src) {
				d := src[j]
				if isIdentPart(d) || d == '.' {
					j++
					continue
				}
				if (d == '+' || d == '-') && (src[j-1] == 'e' || src[j-1] == 'E') && !strings.HasPrefix(strings.ToLower(src[i:j]), "0x") {
					j++
					continue
				}
				break
			}
			toks = append(toks, token{tokNumber, src[i:j]})
			i = j
		default:
			op := src[i : i+1]
			for _, candidate := range pyOperators {
				if strings.HasPrefix(src[i:], candidate) {
					op = candidate
					break
				}
			}
			toks = append(toks, token{tokOp, op})
			i += len(op)
		}
	}
	return toks, nil
}

func scanString(src string, start int) (int, error) {
	quote := src[start]
	delim := string(quote)
	if strings.HasPrefix(src[start:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	for i := start + len(delim); i < len(src); {
		switch c := src[i]; {
		case c == '\\':
			i += 2
			continue
		case c == '\n' && len(delim) == 1:
			return 0, errUnterminatedString
		case strings.HasPrefix(src[i:], delim):
			return i + len(delim), nil
		}
		i++
	}
	return 0, errUnterminatedString
}

func isStringPrefix(s string) bool {
	switch strings.ToLower(s) {
	case "r", "u", "f", "b", "rb", "br", "fr", "rf":
		return true
	}
	return false
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 0x80 || (c|0x20 >= 'a' && c|0x20 <= 'z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isOpener(t token) bool {
	return t.kind == tokOp && (t.text == "(" || t.text == "[" || t.text == "{")
}

func isCloser(t token) bool {
	return t.kind == tokOp && (t.text == ")" || t.text == "]" || t.text == "}")
}

// splitLines groups tokens into logical lines. A newline inside brackets
// does not end a line. Each line keeps its terminating newline token.
func splitLines(toks []token) [][]token {
	var lines [][]token
	depth, start := 0, 0
	for i, t := range toks {
		switch {
		case isOpener(t):
			depth++
		case isCloser(t):
			if depth > 0 {
				depth--
			}
		case t.kind == tokNewline && depth == 0:
			lines = append(lines, toks[start:i+1])
			start = i + 1
		}
	}
	if start < len(toks) {
		lines = append(lines, toks[start:])
	}
	return lines
}

func render(toks []token) string {
	var sb strings.Builder
	for _, t := range toks {
		sb.WriteString(t.text)
	}
	return sb.String()
}

// nextSig returns the index of the first non-trivia token at or after i, or -1.
func nextSig(toks []token, i int) int {
	for ; i < len(toks); i++ {
		if !toks[i].trivia() {
			return i
		}
	}
	return -1
}

// prevSig returns the index of the last non-trivia token at or before i, or -1.
func prevSig(toks []token, i int) int {
	for ; i >= 0; i-- {
		if !toks[i].trivia() {
			return i
		}
	}
	return -1
}

// matchForward returns the index of the bracket closing the opener at i, or -1.
func matchForward(toks []token, i int) int {
	depth := 0
	for j := i; j < len(toks); j++ {
		switch {
		case isOpener(toks[j]):
			depth++
		case isCloser(toks[j]):
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

// matchBackward returns the index of the bracket opening the closer at i, or -1.
func matchBackward(toks []token, i int) int {
	depth := 0
	for j := i; j >= 0; j-- {
		switch {
		case isCloser(toks[j]):
			depth++
		case isOpener(toks[j]):
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

// trimTrivia strips leading and trailing trivia.
func trimTrivia(toks []token) []token {
	for len(toks) > 0 && toks[0].trivia() {
		toks = toks[1:]
	}
	for len(toks) > 0 && toks[len(toks)-1].trivia() {
		toks = toks[:len(toks)-1]
	}
	return toks
}

// splitTopLevel splits toks at every depth-0 token for which sep returns true.
func splitTopLevel(toks []token, sep func(token) bool) [][]token {
	var parts [][]token
	depth, start := 0, 0
	for i, t := range toks {
		switch {
		case isOpener(t):
			depth++
		case isCloser(t):
			depth--
		case depth == 0 && sep(t):
			parts = append(parts, toks[start:i])
			start = i + 1
		}
	}
	return append(parts, toks[start:])
}
