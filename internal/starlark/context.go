package starlark

import (
	"fmt"
	"sort"
	"strings"

	starmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Predeclared returns the globals every expression can use: the math module
// and each of its members.
func Predeclared() starlark.StringDict {
	globals := starlark.StringDict{"math": starmath.Module}
	for name, v := range starmath.Module.Members {
		globals[name] = v
	}
	return globals
}

var predeclared = Predeclared()

// Expr is an expression compiled into a function of its free variables.
type Expr struct {
	Src    string
	Params []string
	fn     *starlark.Function
}

// Identifiers returns the sorted free variable names of src, excluding the
// predeclared globals.
func Identifiers(src string) ([]string, error) {
	e, err := syntax.ParseExpr("expr", src, 0)
	if err != nil {
		return nil, &EvalError{Expr: src, Message: err.Error()}
	}
	seen := make(map[string]bool)
	bound := make(map[string]bool)
	syntax.Walk(e, func(n syntax.Node) bool {
		switch x := n.(type) {
		case *syntax.LambdaExpr:
			for _, p := range x.Params {
				if id, ok := p.(*syntax.Ident); ok {
					bound[id.Name] = true
				}
			}
		case *syntax.Comprehension:
			for _, c := range x.Clauses {
				if f, ok := c.(*syntax.ForClause); ok {
					syntax.Walk(f.Vars, func(v syntax.Node) bool {
						if id, ok := v.(*syntax.Ident); ok {
							bound[id.Name] = true
						}
						return true
					})
				}
			}
		case *syntax.DotExpr:
			// only the receiver is a variable
			syntax.Walk(x.X, func(v syntax.Node) bool {
				if id, ok := v.(*syntax.Ident); ok {
					seen[id.Name] = true
				}
				return true
			})
			return false
		case *syntax.Ident:
			seen[x.Name] = true
		}
		return true
	})
	var out []string
	for name := range seen {
		if _, ok := predeclared[name]; ok || bound[name] {
			continue
		}
		if _, ok := starlark.Universe[name]; ok {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Compile compiles src as a function of params. Every free variable of src
// must be listed in params.
func Compile(src string, params []string) (*Expr, error) {
	for _, p := range params {
		if !isIdent(p) {
			return nil, &EvalError{Expr: src, Message: fmt.Sprintf("%q is not a valid variable name", p)}
		}
	}
	thread := NewThread("compile")
	lambda := fmt.Sprintf("lambda %s: (%s)", strings.Join(params, ", "), src)
	v, err := starlark.EvalOptions(&syntax.FileOptions{}, thread, "expr", lambda, predeclared)
	if err != nil {
		return nil, &EvalError{Expr: src, Message: err.Error()}
	}
	fn, ok := v.(*starlark.Function)
	if !ok {
		return nil, &EvalError{Expr: src, Message: "not an expression"}
	}
	return &Expr{Src: src, Params: params, fn: fn}, nil
}

// Call evaluates the expression with one value per parameter.
func (e *Expr) Call(thread *starlark.Thread, args ...starlark.Value) (starlark.Value, error) {
	if len(args) != len(e.Params) {
		return nil, &EvalError{Expr: e.Src, Message: fmt.Sprintf("got %d arguments, want %d", len(args), len(e.Params))}
	}
	v, err := starlark.Call(thread, e.fn, starlark.Tuple(args), nil)
	if err != nil {
		return nil, &EvalError{Expr: e.Src, Message: err.Error()}
	}
	return v, nil
}

// CallFloat evaluates the expression over float arguments.
func (e *Expr) CallFloat(thread *starlark.Thread, xs ...float64) (float64, error) {
	args := make([]starlark.Value, len(xs))
	for i, x := range xs {
		args[i] = starlark.Float(x)
	}
	v, err := e.Call(thread, args...)
	if err != nil {
		return 0, err
	}
	f, ok := ToFloat(v)
	if !ok {
		return 0, &EvalError{Expr: e.Src, Message: fmt.Sprintf("expected a number, got %s", v.Type())}
	}
	return f, nil
}

func isIdent(s string) bool {
	if s == "" || keywords[s] {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

var keywords = map[string]bool{
	"and": true, "break": true, "continue": true, "def": true, "elif": true,
	"else": true, "for": true, "if": true, "in": true, "lambda": true,
	"load": true, "not": true, "or": true, "pass": true, "return": true, "while": true,
	"None": true, "True": true, "False": true,
}

// NewThread creates a thread that discards print output.
func NewThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name:  name,
		Print: func(_ *starlark.Thread, _ string) {},
	}
}

// EvalError represents an error during expression evaluation.
type EvalError struct {
	Expr    string
	Message string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("error evaluating %q: %s", e.Expr, e.Message)
}
