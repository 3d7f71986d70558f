package sandbox

import (
	"strings"

	"go.starlark.net/syntax"
)

// WithItem is one context manager of a with statement.
type WithItem struct {
	Line int
	// Expr is the parsed context expression, nil when it could not be parsed.
	Expr syntax.Expr
	// Target is the bound name as written, empty without "as".
	Target string
}

// WithBlocks returns every with-statement item in src in source order.
func WithBlocks(src string) ([]WithItem, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	var items []WithItem
	line := 1
	for _, ln := range splitLines(toks) {
		first := nextSig(ln, 0)
		if first >= 0 && ln[first].is(tokName, "with") {
			at := line + strings.Count(render(ln[:first]), "\n")
			if parsed, _, ok := withItems(ln[first+1:]); ok {
				for _, it := range parsed {
					wi := WithItem{Line: at, Target: render(it.target)}
					if expr, err := parseExpr(it.expr); err == nil {
						wi.Expr = expr
					}
					items = append(items, wi)
				}
			}
		}
		line += strings.Count(render(ln), "\n")
	}
	return items, nil
}

func parseExpr(toks []token) (syntax.Expr, error) {
	lowered, err := lowerExpressions(trimTrivia(toks))
	if err != nil {
		return nil, err
	}
	return syntax.ParseExpr(filename, render(lowered), 0)
}

// OpenCall reports whether expr is a call to open and returns its first
// argument, or the file= keyword argument.
func OpenCall(expr syntax.Expr) (syntax.Expr, bool) {
	call, ok := unparen(expr).(*syntax.CallExpr)
	if !ok {
		return nil, false
	}
	if id, ok := call.Fn.(*syntax.Ident); !ok || id.Name != "open" {
		return nil, false
	}
	for _, arg := range call.Args {
		if bin, ok := arg.(*syntax.BinaryExpr); ok && bin.Op == syntax.EQ {
			if id, ok := bin.X.(*syntax.Ident); ok && id.Name == "file" {
				return bin.Y, true
			}
			continue
		}
		return arg, true
	}
	return nil, true
}

// StringLiteral returns the value of a string literal expression.
func StringLiteral(expr syntax.Expr) (string, bool) {
	lit, ok := unparen(expr).(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return "", false
	}
	s, ok := lit.Value.(string)
	return s, ok
}

func unparen(expr syntax.Expr) syntax.Expr {
	for {
		p, ok := expr.(*syntax.ParenExpr)
		if !ok {
			return expr
		}
		expr = p.X
	}
}
