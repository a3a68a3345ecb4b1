package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/QTest-hq/pytestify/pkg/cst"
	"github.com/QTest-hq/pytestify/pkg/result"
)

// Scope selects the kind of fixture the synthesizer builds.
type Scope int

const (
	ScopeInstance Scope = iota
	ScopeClass
	ScopeModule
	// ScopeTeardown is a teardown-only fixture with a bare marker.
	ScopeTeardown
)

func (s Scope) String() string {
	switch s {
	case ScopeInstance:
		return "instance"
	case ScopeClass:
		return "class"
	case ScopeModule:
		return "module"
	case ScopeTeardown:
		return "teardown"
	}
	return "unknown"
}

// ParseScope maps a scope name to its Scope.
func ParseScope(name string) (Scope, error) {
	switch strings.ToLower(name) {
	case "instance", "method", "function":
		return ScopeInstance, nil
	case "class":
		return ScopeClass, nil
	case "module":
		return ScopeModule, nil
	case "teardown":
		return ScopeTeardown, nil
	}
	return 0, fmt.Errorf("unknown fixture scope %q", name)
}

// fixtureSignature gives the function name and parameters for a scope.
func fixtureSignature(scope Scope) (string, []*cst.Param) {
	switch scope {
	case ScopeClass:
		return "setup_class", []*cst.Param{cst.NewParam("cls")}
	case ScopeModule:
		return "setup_module", nil
	case ScopeTeardown:
		return "teardown_method", []*cst.Param{cst.NewParam("self")}
	}
	return "setup_method", []*cst.Param{cst.NewParam("self")}
}

func fixtureDecorator(scope Scope) *cst.Decorator {
	marker := cst.NewDotted("pytest", "fixture")
	autouse := cst.KwArg("autouse", cst.NewName("True"))
	switch scope {
	case ScopeClass:
		return cst.NewDecorator(cst.NewCall(marker, cst.KwArg("scope", cst.Quote("class")), autouse))
	case ScopeModule:
		return cst.NewDecorator(cst.NewCall(marker, cst.KwArg("scope", cst.Quote("module")), autouse))
	case ScopeTeardown:
		return cst.NewDecorator(marker)
	}
	return cst.NewDecorator(cst.NewCall(marker, autouse))
}

var errUnparsable = errors.New("snippet is neither an expression nor a statement")

// parseSnippet parses one line of setup or teardown code, first as an
// expression statement and then as any single statement. The core has no
// cancellation, so snippets are parsed with a background context.
func (r *Rewriter) parseSnippet(snippet string) result.Result[cst.Stmt] {
	ctx := context.Background()
	if e, err := r.parser.ParseExpression(ctx, snippet).Unwrap(); err == nil {
		return result.Ok[cst.Stmt](cst.NewExprStmt(e))
	}
	if s, err := r.parser.ParseStatement(ctx, snippet).Unwrap(); err == nil {
		return result.Ok(s)
	}
	return result.Fail[cst.Stmt](fmt.Errorf("%w: %q", errUnparsable, snippet))
}

// SynthesizeFixture builds a fixture function from setup and teardown
// source snippets. Snippets that fail to parse become "pass"; the result
// is always a valid function.
func (r *Rewriter) SynthesizeFixture(scope Scope, setup, teardown []string) Outcome[*cst.FunctionDef] {
	toStmts := func(snippets []string) []cst.Stmt {
		out := make([]cst.Stmt, 0, len(snippets))
		for _, snippet := range snippets {
			res := r.parseSnippet(snippet)
			if err := res.Err(); err != nil {
				r.absorb("fixture snippet", err)
			}
			out = append(out, res.Or(cst.NewPass()))
		}
		return out
	}
	return BuildFixture(scope, toStmts(setup), toStmts(teardown))
}

// BuildFixture assembles setup statements, a yield, and teardown
// statements into a fixture function.
func BuildFixture(scope Scope, setup, teardown []cst.Stmt) Outcome[*cst.FunctionDef] {
	var body []cst.Stmt
	if len(setup) == 0 && len(teardown) == 0 {
		body = []cst.Stmt{cst.NewPass(), cst.NewYield(), cst.NewPass()}
	} else {
		body = make([]cst.Stmt, 0, len(setup)+len(teardown)+1)
		body = append(body, setup...)
		body = append(body, cst.NewYield())
		body = append(body, teardown...)
	}

	name, params := fixtureSignature(scope)
	fn := cst.NewFunctionDef(name, params, cst.NewBlock(body...), fixtureDecorator(scope))
	return needs(fn, ImportPytest)
}
