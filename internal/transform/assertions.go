package transform

import (
	"fmt"

	"github.com/QTest-hq/pytestify/internal/shape"
	"github.com/QTest-hq/pytestify/pkg/cst"
)

// assertForm builds the asserted expression from bound operands.
type assertForm func(ops map[string]cst.Expr) (cst.Expr, []Import, error)

type assertMethod struct {
	params []string
	// required is the number of leading params that must be bound.
	required int
	build    assertForm
}

func binary(op string) assertForm {
	return func(ops map[string]cst.Expr) (cst.Expr, []Import, error) {
		return cst.Compare(ops["0"], op, ops["1"]), nil, nil
	}
}

func equality(first, second string) assertMethod {
	return assertMethod{params: []string{first, second, "msg"}, required: 2, build: binary("==")}
}

var assertMethods = map[string]assertMethod{
	"assertEqual":          equality("first", "second"),
	"assertEquals":         equality("first", "second"),
	"failUnlessEqual":      equality("first", "second"),
	"assertMultiLineEqual": equality("first", "second"),
	"assertListEqual":      equality("list1", "list2"),
	"assertTupleEqual":     equality("tuple1", "tuple2"),
	"assertDictEqual":      equality("d1", "d2"),
	"assertSetEqual":       equality("set1", "set2"),
	"assertSequenceEqual":  equality("seq1", "seq2"),

	"assertNotEqual":  {params: []string{"first", "second", "msg"}, required: 2, build: binary("!=")},
	"assertNotEquals": {params: []string{"first", "second", "msg"}, required: 2, build: binary("!=")},
	"failIfEqual":     {params: []string{"first", "second", "msg"}, required: 2, build: binary("!=")},

	"assertTrue": {params: []string{"expr", "msg"}, required: 1, build: truthy},
	"assert_":    {params: []string{"expr", "msg"}, required: 1, build: truthy},
	"failUnless": {params: []string{"expr", "msg"}, required: 1, build: truthy},
	"assertFalse": {params: []string{"expr", "msg"}, required: 1, build: func(ops map[string]cst.Expr) (cst.Expr, []Import, error) {
		return cst.Not(ops["0"]), nil, nil
	}},
	"failIf": {params: []string{"expr", "msg"}, required: 1, build: func(ops map[string]cst.Expr) (cst.Expr, []Import, error) {
		return cst.Not(ops["0"]), nil, nil
	}},

	"assertIs":    {params: []string{"expr1", "expr2", "msg"}, required: 2, build: binary("is")},
	"assertIsNot": {params: []string{"expr1", "expr2", "msg"}, required: 2, build: binary("is not")},
	"assertIsNone": {params: []string{"obj", "msg"}, required: 1, build: func(ops map[string]cst.Expr) (cst.Expr, []Import, error) {
		return cst.Compare(ops["0"], "is", cst.NewName("None")), nil, nil
	}},
	"assertIsNotNone": {params: []string{"obj", "msg"}, required: 1, build: func(ops map[string]cst.Expr) (cst.Expr, []Import, error) {
		return cst.Compare(ops["0"], "is not", cst.NewName("None")), nil, nil
	}},

	"assertIn":    {params: []string{"member", "container", "msg"}, required: 2, build: binary("in")},
	"assertNotIn": {params: []string{"member", "container", "msg"}, required: 2, build: binary("not in")},

	"assertIsInstance": {params: []string{"obj", "cls", "msg"}, required: 2, build: func(ops map[string]cst.Expr) (cst.Expr, []Import, error) {
		return isinstance(ops), nil, nil
	}},
	"assertNotIsInstance": {params: []string{"obj", "cls", "msg"}, required: 2, build: func(ops map[string]cst.Expr) (cst.Expr, []Import, error) {
		return cst.Not(isinstance(ops)), nil, nil
	}},

	"assertGreater":      {params: []string{"a", "b", "msg"}, required: 2, build: binary(">")},
	"assertGreaterEqual": {params: []string{"a", "b", "msg"}, required: 2, build: binary(">=")},
	"assertLess":         {params: []string{"a", "b", "msg"}, required: 2, build: binary("<")},
	"assertLessEqual":    {params: []string{"a", "b", "msg"}, required: 2, build: binary("<=")},

	"assertAlmostEqual":     {params: []string{"first", "second", "places", "msg", "delta"}, required: 2, build: almost(false)},
	"assertAlmostEquals":    {params: []string{"first", "second", "places", "msg", "delta"}, required: 2, build: almost(false)},
	"failUnlessAlmostEqual": {params: []string{"first", "second", "places", "msg", "delta"}, required: 2, build: almost(false)},
	"assertNotAlmostEqual":  {params: []string{"first", "second", "places", "msg", "delta"}, required: 2, build: almost(true)},
	"assertNotAlmostEquals": {params: []string{"first", "second", "places", "msg", "delta"}, required: 2, build: almost(true)},
	"failIfAlmostEqual":     {params: []string{"first", "second", "places", "msg", "delta"}, required: 2, build: almost(true)},

	"assertRegex":             {params: []string{"text", "expected_regex", "msg"}, required: 2, build: search(false)},
	"assertRegexpMatches":     {params: []string{"text", "expected_regex", "msg"}, required: 2, build: search(false)},
	"assertNotRegex":          {params: []string{"text", "unexpected_regex", "msg"}, required: 2, build: search(true)},
	"assertNotRegexpMatches":  {params: []string{"text", "unexpected_regex", "msg"}, required: 2, build: search(true)},
}

func truthy(ops map[string]cst.Expr) (cst.Expr, []Import, error) {
	return ops["0"], nil, nil
}

func isinstance(ops map[string]cst.Expr) cst.Expr {
	return cst.NewCall(cst.NewName("isinstance"), cst.PosArg(ops["0"]), cst.PosArg(ops["1"]))
}

func almost(negate bool) assertForm {
	return func(ops map[string]cst.Expr) (cst.Expr, []Import, error) {
		places, hasPlaces := ops["places"]
		delta, hasDelta := ops["delta"]
		if hasPlaces && hasDelta {
			return nil, nil, fmt.Errorf("places and delta are exclusive")
		}
		diff := cst.NewCall(cst.NewName("abs"), cst.PosArg(cst.BinOp(ops["0"], "-", ops["1"])))
		if hasDelta {
			op := "<="
			if negate {
				op = ">"
			}
			return cst.Compare(diff, op, delta), nil, nil
		}
		if !hasPlaces {
			places = cst.NewInteger(7)
		}
		rounded := cst.NewCall(cst.NewName("round"), cst.PosArg(diff), cst.PosArg(places))
		op := "=="
		if negate {
			op = "!="
		}
		return cst.Compare(rounded, op, cst.NewInteger(0)), nil, nil
	}
}

func search(negate bool) assertForm {
	return func(ops map[string]cst.Expr) (cst.Expr, []Import, error) {
		var e cst.Expr = cst.NewCall(cst.NewDotted("re", "search"), cst.PosArg(ops["1"]), cst.PosArg(ops["0"]))
		if negate {
			e = cst.Not(e)
		}
		return e, []Import{ImportRe}, nil
	}
}

// bindArgs maps call arguments onto a method's parameters. Positional
// operands are keyed "0", "1", ... by parameter index for the required
// ones and by name for the rest.
func bindArgs(m assertMethod, args []*cst.Arg) (map[string]cst.Expr, error) {
	bound := make(map[string]cst.Expr, len(args))
	named := make(map[string]cst.Expr, len(m.params))
	for i, a := range args {
		if a.Star != "" {
			return nil, fmt.Errorf("splat argument")
		}
		if a.Keyword == "" {
			if i >= len(m.params) {
				return nil, fmt.Errorf("too many arguments")
			}
			named[m.params[i]] = a.Value
			continue
		}
		known := false
		for _, p := range m.params {
			if p == a.Keyword {
				known = true
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown keyword %q", a.Keyword)
		}
		if _, dup := named[a.Keyword]; dup {
			return nil, fmt.Errorf("duplicate argument %q", a.Keyword)
		}
		named[a.Keyword] = a.Value
	}

	for i, p := range m.params {
		v, ok := named[p]
		if i < m.required {
			if !ok {
				return nil, fmt.Errorf("missing argument %q", p)
			}
			bound[fmt.Sprint(i)] = v
			continue
		}
		if ok {
			bound[p] = v
		}
	}
	return bound, nil
}

// selfMethod returns the method name of a call on self, or "".
func selfMethod(e cst.Expr) (string, *cst.Call) {
	call, ok := e.(*cst.Call)
	if !ok {
		return "", nil
	}
	if owner, ok := shape.Probe(call, "func.value"); !ok || !isSelf(owner) {
		return "", nil
	}
	name, ok := shape.ProbeString(call, "func.attr")
	if !ok {
		return "", nil
	}
	return name, call
}

func isSelf(v any) bool {
	e, ok := v.(cst.Expr)
	return ok && cst.IsDotted(e, "self")
}

// spliceable checks that every operand can be moved into the assert
// expression.
func spliceable(ops map[string]cst.Expr) error {
	for name, e := range ops {
		if !shape.IsExpression(e) {
			return fmt.Errorf("operand %s is not an expression: %s", name, cst.Code(e))
		}
	}
	return nil
}

// RewriteAssertion rewrites a single statement that calls a unittest
// assertion helper on self. It reports false when s is not such a call
// or cannot be rewritten safely.
func (r *Rewriter) RewriteAssertion(s cst.Stmt) (Outcome[cst.Stmt], bool) {
	var (
		out Outcome[cst.Stmt]
		ok  bool
	)
	r.guard("assertion", func() {
		out, ok = r.rewriteAssertion(s)
	})
	return out, ok
}

func (r *Rewriter) rewriteAssertion(s cst.Stmt) (Outcome[cst.Stmt], bool) {
	switch n := s.(type) {
	case *cst.ExprStmt:
		name, call := selfMethod(n.Value)
		if call == nil {
			return Outcome[cst.Stmt]{}, false
		}
		if m, ok := assertMethods[name]; ok {
			ops, err := bindArgs(m, call.Args)
			if err != nil {
				decline(name, err.Error())
				return Outcome[cst.Stmt]{}, false
			}
			if err := spliceable(ops); err != nil {
				decline(name, err.Error())
				return Outcome[cst.Stmt]{}, false
			}
			test, imps, err := m.build(ops)
			if err != nil {
				decline(name, err.Error())
				return Outcome[cst.Stmt]{}, false
			}
			stmt := cst.Adopt(cst.NewAssert(test, ops["msg"]), n)
			return needs[cst.Stmt](stmt, imps...), true
		}
		return r.rewriteHelperCall(n, name, call)
	case *cst.With:
		return r.rewriteRaisesContext(n)
	}
	return Outcome[cst.Stmt]{}, false
}

// rewriteHelperCall handles fail, skipTest and the call form of
// assertRaises/assertWarns.
func (r *Rewriter) rewriteHelperCall(n *cst.ExprStmt, name string, call *cst.Call) (Outcome[cst.Stmt], bool) {
	switch name {
	case "fail":
		return r.pytestCall(n, "fail", call.Args)
	case "skipTest":
		return r.pytestCall(n, "skip", call.Args)
	case "assertRaises", "assertWarns", "assertRaisesRegex", "assertWarnsRegex", "assertRaisesRegexp":
		ctxArgs := 1
		if name != "assertRaises" && name != "assertWarns" {
			ctxArgs = 2
		}
		args := call.Args
		if len(args) <= ctxArgs {
			return Outcome[cst.Stmt]{}, false
		}
		for _, a := range args[:ctxArgs+1] {
			if a.Star != "" || a.Keyword != "" {
				decline(name, "keyword or splat in leading arguments")
				return Outcome[cst.Stmt]{}, false
			}
		}
		manager := raisesCall(name, args[:ctxArgs])
		body := cst.NewExprStmt(cst.NewCall(args[ctxArgs].Value, args[ctxArgs+1:]...))
		with := cst.NewWith([]*cst.WithItem{cst.NewWithItem(manager, nil)}, cst.NewBlock(body))
		return needs[cst.Stmt](cst.Adopt(with, n), ImportPytest), true
	}
	return Outcome[cst.Stmt]{}, false
}

func (r *Rewriter) pytestCall(n *cst.ExprStmt, fn string, args []*cst.Arg) (Outcome[cst.Stmt], bool) {
	if len(args) > 1 {
		return Outcome[cst.Stmt]{}, false
	}
	for _, a := range args {
		if a.Star != "" || (a.Keyword != "" && a.Keyword != "msg" && a.Keyword != "reason") {
			return Outcome[cst.Stmt]{}, false
		}
	}
	var callArgs []*cst.Arg
	if len(args) == 1 {
		callArgs = []*cst.Arg{cst.PosArg(args[0].Value)}
	}
	stmt := cst.NewExprStmt(cst.NewCall(cst.NewDotted("pytest", fn), callArgs...))
	return needs[cst.Stmt](cst.Adopt(stmt, n), ImportPytest), true
}

// raisesCall builds pytest.raises/pytest.warns from the leading
// arguments of an assertRaises-style call.
func raisesCall(name string, args []*cst.Arg) *cst.Call {
	target := "raises"
	if name == "assertWarns" || name == "assertWarnsRegex" {
		target = "warns"
	}
	out := []*cst.Arg{cst.PosArg(args[0].Value)}
	if len(args) > 1 {
		out = append(out, cst.KwArg("match", args[1].Value))
	}
	return cst.NewCall(cst.NewDotted("pytest", target), out...)
}

// rewriteRaisesContext rewrites "with self.assertRaises(E):" items.
// Items bound with "as" are left alone: the unittest context object has
// a different interface from pytest's.
func (r *Rewriter) rewriteRaisesContext(w *cst.With) (Outcome[cst.Stmt], bool) {
	items := make([]*cst.WithItem, len(w.Items))
	changed := false
	for i, it := range w.Items {
		items[i] = it
		name, call := selfMethod(it.Value)
		if call == nil || it.Alias != nil {
			continue
		}
		want := 0
		switch name {
		case "assertRaises", "assertWarns":
			want = 1
		case "assertRaisesRegex", "assertRaisesRegexp", "assertWarnsRegex":
			want = 2
		default:
			continue
		}
		if len(call.Args) != want {
			continue
		}
		plain := true
		for _, a := range call.Args {
			if a.Star != "" || a.Keyword != "" {
				plain = false
			}
		}
		if !plain {
			continue
		}
		items[i] = cst.NewWithItem(raisesCall(name, call.Args), nil)
		changed = true
	}
	if !changed {
		return Outcome[cst.Stmt]{}, false
	}
	return needs[cst.Stmt](w.WithItems(items), ImportPytest), true
}

// RewriteAssertions rewrites every assertion call in stmts, descending
// into nested blocks but not into nested classes.
func (r *Rewriter) RewriteAssertions(stmts []cst.Stmt) Outcome[[]cst.Stmt] {
	var imports ImportSet
	changed := false
	out := make([]cst.Stmt, len(stmts))
	for i, s := range stmts {
		out[i] = s
		if _, isClass := s.(*cst.ClassDef); isClass {
			continue
		}

		cur := cst.MapBlocks(s, func(b *cst.Block) *cst.Block {
			res := r.RewriteAssertions(b.Stmts)
			imports = imports.Merge(res.Imports)
			if sameStmts(res.Node, b.Stmts) {
				return b
			}
			return b.WithStmts(res.Node)
		})

		if res, ok := r.RewriteAssertion(cur); ok {
			cur = res.Node
			imports = imports.Merge(res.Imports)
		}
		if cur != s {
			out[i] = cur
			changed = true
		}
	}
	if !changed {
		return Outcome[[]cst.Stmt]{Node: stmts, Imports: imports}
	}
	return Outcome[[]cst.Stmt]{Node: out, Imports: imports}
}

func sameStmts(a, b []cst.Stmt) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
