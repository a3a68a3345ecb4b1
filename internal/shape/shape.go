// Package shape checks that CST nodes have the structure a rewrite expects
// before the rewrite touches them.
package shape

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/QTest-hq/pytestify/pkg/cst"
)

// Range bounds the number of call arguments. A negative Max means no
// upper bound.
type Range struct {
	Min int
	Max int
}

// Shape describes what a node must look like.
type Shape struct {
	Kind cst.Kind
	// Args constrains the argument count of a Call.
	Args *Range
	// Chain is the dotted name the node (or a Call's target) must spell,
	// e.g. ["self", "subTest"].
	Chain []string
	// HasBody requires a compound statement with a non-empty body.
	HasBody bool
}

func (s Shape) String() string {
	var b strings.Builder
	b.WriteString(s.Kind.String())
	if len(s.Chain) > 0 {
		b.WriteString(" " + strings.Join(s.Chain, "."))
	}
	if s.Args != nil {
		if s.Args.Max < 0 {
			fmt.Fprintf(&b, " with >=%d args", s.Args.Min)
		} else {
			fmt.Fprintf(&b, " with %d..%d args", s.Args.Min, s.Args.Max)
		}
	}
	if s.HasBody {
		b.WriteString(" with body")
	}
	return b.String()
}

// ShapeError reports a node that does not match its expected shape.
type ShapeError struct {
	Expected Shape
	Actual   cst.Kind
	Node     cst.Node
	Reason   string
}

func (e *ShapeError) Error() string {
	msg := fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Expect returns n unchanged when it matches want, or a *ShapeError.
func Expect[N cst.Node](n N, want Shape) (N, error) {
	var node cst.Node = n
	if node == nil {
		var zero N
		return zero, &ShapeError{Expected: want, Actual: -1, Reason: "nil node"}
	}
	fail := func(reason string) (N, error) {
		var zero N
		return zero, &ShapeError{Expected: want, Actual: node.Kind(), Node: node, Reason: reason}
	}

	if node.Kind() != want.Kind {
		return fail("")
	}

	if want.Args != nil {
		call, ok := node.(*cst.Call)
		if !ok {
			return fail("argument count applies to calls only")
		}
		count := len(call.Args)
		if count < want.Args.Min || (want.Args.Max >= 0 && count > want.Args.Max) {
			return fail(fmt.Sprintf("%d arguments", count))
		}
	}

	if len(want.Chain) > 0 {
		target := node
		if call, ok := node.(*cst.Call); ok {
			target = call.Func
		}
		expr, ok := target.(cst.Expr)
		if !ok || !cst.IsDotted(expr, strings.Join(want.Chain, ".")) {
			return fail("name chain mismatch")
		}
	}

	if want.HasBody && bodyLen(node) == 0 {
		return fail("empty body")
	}

	return n, nil
}

func bodyLen(n cst.Node) int {
	var b *cst.Block
	switch v := n.(type) {
	case *cst.Module:
		return len(v.Body)
	case *cst.Block:
		b = v
	case *cst.FunctionDef:
		b = v.Body
	case *cst.ClassDef:
		b = v.Body
	case *cst.With:
		b = v.Body
	case *cst.For:
		b = v.Body
	case *cst.While:
		b = v.Body
	case *cst.If:
		b = v.Body
	case *cst.Try:
		b = v.Body
	}
	if b == nil {
		return 0
	}
	return len(b.Stmts)
}

// Chain returns the segments of a dotted Name/Attribute chain, or nil.
func Chain(e cst.Expr) []string {
	name, ok := cst.DottedName(e)
	if !ok {
		return nil
	}
	return strings.Split(name, ".")
}

// Probe walks a dotted path of field names from n and returns what it
// finds, or false as soon as a step is absent. Numeric steps index into
// lists. Supported fields per node:
//
//	func, args, value, keyword, attr, name, body, decorators, params,
//	items, target, iter, test, targets, elements, inner, left, right, op
func Probe(n any, path string) (any, bool) {
	cur := n
	if path == "" {
		return cur, cur != nil
	}
	for _, step := range strings.Split(path, ".") {
		next, ok := probeStep(cur, step)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// ProbeOr is Probe with a default for absent paths.
func ProbeOr(n any, path string, def any) any {
	if v, ok := Probe(n, path); ok {
		return v
	}
	return def
}

// ProbeString probes a path and renders the result as text: strings as
// is, expressions as code.
func ProbeString(n any, path string) (string, bool) {
	v, ok := Probe(n, path)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case cst.Expr:
		return cst.Code(s), true
	}
	return "", false
}

func probeStep(cur any, step string) (any, bool) {
	if idx, err := strconv.Atoi(step); err == nil {
		return index(cur, idx)
	}

	switch v := cur.(type) {
	case *cst.Call:
		switch step {
		case "func":
			return v.Func, true
		case "args":
			return v.Args, true
		}
	case *cst.Arg:
		switch step {
		case "value":
			return v.Value, true
		case "keyword":
			return v.Keyword, v.Keyword != ""
		}
	case *cst.Attribute:
		switch step {
		case "value":
			return v.Value, true
		case "attr":
			return v.Attr, true
		}
	case *cst.Name:
		if step == "value" || step == "name" {
			return v.Value, true
		}
	case *cst.Decorator:
		if step == "value" {
			return v.Value, true
		}
	case *cst.FunctionDef:
		switch step {
		case "name":
			return v.Name, true
		case "body":
			return v.Body.Stmts, true
		case "decorators":
			return v.Decorators, true
		case "params":
			return v.ParamNames(), true
		}
	case *cst.ClassDef:
		switch step {
		case "name":
			return v.Name, true
		case "body":
			return v.Body.Stmts, true
		case "decorators":
			return v.Decorators, true
		}
	case *cst.With:
		switch step {
		case "items":
			return v.Items, true
		case "body":
			return v.Body.Stmts, true
		}
	case *cst.WithItem:
		switch step {
		case "value":
			return v.Value, true
		case "alias":
			return v.Alias, v.Alias != nil
		}
	case *cst.For:
		switch step {
		case "target":
			return v.Target, true
		case "iter":
			return v.Iter, true
		case "body":
			return v.Body.Stmts, true
		}
	case *cst.If:
		switch step {
		case "test":
			return v.Test, true
		case "body":
			return v.Body.Stmts, true
		}
	case *cst.ExprStmt:
		if step == "value" {
			return v.Value, true
		}
	case *cst.Assign:
		switch step {
		case "targets":
			return v.Targets, true
		case "value":
			return v.Value, true
		}
	case *cst.Comparison:
		if step == "left" {
			return v.Left, true
		}
	case *cst.BinaryOp:
		switch step {
		case "left":
			return v.Left, true
		case "right":
			return v.Right, true
		case "op":
			return v.Op, true
		}
	case *cst.List:
		if step == "elements" {
			return v.Elements, true
		}
	case *cst.Tuple:
		if step == "elements" {
			return v.Elements, true
		}
	case *cst.Paren:
		if step == "inner" {
			return v.Inner, true
		}
	case *cst.Module:
		if step == "body" {
			return v.Body, true
		}
	}
	return nil, false
}

func index(cur any, i int) (any, bool) {
	if i < 0 {
		return nil, false
	}
	switch v := cur.(type) {
	case []*cst.Arg:
		if i < len(v) {
			return v[i], true
		}
	case []cst.Stmt:
		if i < len(v) {
			return v[i], true
		}
	case []cst.Expr:
		if i < len(v) {
			return v[i], true
		}
	case []*cst.Decorator:
		if i < len(v) {
			return v[i], true
		}
	case []*cst.WithItem:
		if i < len(v) {
			return v[i], true
		}
	case []string:
		if i < len(v) {
			return v[i], true
		}
	}
	return nil, false
}

// IsExpression reports whether n is an expression category that can be
// spliced into a new context. Raw code qualifies only when its binding
// strength is known; splats, yields and fragments do not.
func IsExpression(n cst.Node) bool {
	switch v := n.(type) {
	case *cst.Name, *cst.Attribute, *cst.Call, *cst.Subscript,
		*cst.BinaryOp, *cst.BoolOp, *cst.UnaryOp, *cst.Comparison,
		*cst.List, *cst.Tuple, *cst.Set, *cst.Dict,
		*cst.Integer, *cst.Float, *cst.String, *cst.Paren:
		return true
	case *cst.RawExpr:
		return strings.TrimSpace(v.Code) != "" && cst.PrecedenceOf(v) != cst.PrecUnknown
	}
	return false
}
