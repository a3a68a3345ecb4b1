package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/QTest-hq/pytestify/internal/shape"
	"github.com/QTest-hq/pytestify/pkg/cst"
)

var subTestShape = shape.Shape{
	Kind:  cst.KindCall,
	Args:  &shape.Range{Min: 1, Max: 1},
	Chain: []string{"self", "subTest"},
}

// ParametrizeSubtests turns
//
//	for v in VALUES:
//	    with self.subTest(v):
//	        BODY
//
// into a function decorated with pytest.mark.parametrize("v", VALUES)
// whose body is BODY. It reports false, leaving fn untouched, whenever
// the rewrite cannot be proven equivalent.
func (r *Rewriter) ParametrizeSubtests(fn *cst.FunctionDef) (Outcome[*cst.FunctionDef], bool) {
	return r.ParametrizeMethod(fn, nil)
}

// ParametrizeMethod is ParametrizeSubtests for a method of a class whose
// body is classBody. The decorator is evaluated in class scope, so values
// may not name anything the class body binds.
func (r *Rewriter) ParametrizeMethod(fn *cst.FunctionDef, classBody []cst.Stmt) (Outcome[*cst.FunctionDef], bool) {
	var (
		out Outcome[*cst.FunctionDef]
		err error
	)
	completed := r.guard("parametrize", func() {
		out, err = r.parametrize(fn, classBody)
	})
	if !completed {
		return Outcome[*cst.FunctionDef]{}, false
	}
	if err != nil {
		decline("parametrize", fmt.Sprintf("%s: %v", fn.Name, err))
		return Outcome[*cst.FunctionDef]{}, false
	}
	return out, true
}

func (r *Rewriter) parametrize(fn *cst.FunctionDef, classBody []cst.Stmt) (Outcome[*cst.FunctionDef], error) {
	var none Outcome[*cst.FunctionDef]
	if _, err := shape.Expect(fn, shape.Shape{Kind: cst.KindFunctionDef, HasBody: true}); err != nil {
		return none, err
	}
	if fn.Async {
		return none, fmt.Errorf("async function")
	}
	if hasParametrize(fn.Decorators) {
		return none, fmt.Errorf("already parametrized")
	}

	stmts := fn.Body.Stmts
	loopAt := -1
	for i, s := range stmts {
		if _, ok := s.(*cst.For); ok {
			loopAt = i
			break
		}
	}
	if loopAt < 0 {
		return none, fmt.Errorf("no loop")
	}
	if loopAt != len(stmts)-1 {
		return none, fmt.Errorf("statements follow the loop")
	}
	loop := stmts[loopAt].(*cst.For)
	before := stmts[:loopAt]

	if loop.Async || loop.Else != nil {
		return none, fmt.Errorf("async loop or loop with else")
	}
	target, ok := loop.Target.(*cst.Name)
	if !ok {
		return none, fmt.Errorf("loop target is not a simple name")
	}
	param := target.Value
	for _, p := range fn.Params {
		if p.Name == param {
			return none, fmt.Errorf("%s is already a parameter", param)
		}
		if strings.HasPrefix(p.Code, "*") || strings.Contains(p.Code, "=") || p.Code == "/" {
			return none, fmt.Errorf("parameter list cannot take another positional parameter")
		}
	}
	for _, s := range before {
		if cst.Mentions(s, param) {
			return none, fmt.Errorf("%s is used before the loop", param)
		}
	}

	if len(loop.Body.Stmts) != 1 {
		return none, fmt.Errorf("loop body is not a single with statement")
	}
	with, ok := loop.Body.Stmts[0].(*cst.With)
	if !ok {
		return none, fmt.Errorf("loop body is not a with statement")
	}
	if with.Async || len(with.Items) != 1 || with.Items[0].Alias != nil {
		return none, fmt.Errorf("with statement has more than one item or an alias")
	}
	call, err := shape.Expect(with.Items[0].Value, subTestShape)
	if err != nil {
		return none, err
	}
	arg := call.(*cst.Call).Args[0]
	switch {
	case arg.Star != "":
		return none, fmt.Errorf("splat subTest argument")
	case arg.Keyword != "":
		if arg.Keyword != param {
			return none, fmt.Errorf("subTest keyword %s does not match loop variable %s", arg.Keyword, param)
		}
	default:
		if !cst.IsDotted(arg.Value, param) {
			return none, fmt.Errorf("subTest argument %s does not match loop variable %s", cst.Code(arg.Value), param)
		}
	}

	inner := with.Body.Stmts
	for _, s := range inner {
		if !hoistable(s) {
			return none, fmt.Errorf("%s statement in subTest body", s.Kind())
		}
	}

	values, err := r.resolveValues(fn, classBody, loop.Iter, before)
	if err != nil {
		return none, err
	}

	decorator := cst.NewDecorator(cst.NewCall(mark("parametrize"),
		cst.PosArg(cst.Quote(param)),
		cst.PosArg(cst.NewList(values...)),
	))
	decorators := append([]*cst.Decorator{decorator}, fn.Decorators...)

	params := append(append([]*cst.Param(nil), fn.Params...), cst.NewParam(param))

	body := make([]cst.Stmt, 0, len(before)+len(inner))
	body = append(body, before...)
	hoisted := append([]cst.Stmt(nil), inner...)
	if len(hoisted) > 0 {
		lead := append(append([]cst.Line(nil), cst.TriviaOf(loop).Leading...), cst.TriviaOf(with).Leading...)
		hoisted[0] = cst.PrependLeading(hoisted[0], lead)
	}
	body = append(body, hoisted...)

	rewritten := fn.WithDecorators(decorators).WithParams(params).WithBody(fn.Body.WithStmts(body))
	return needs(rewritten, ImportPytest), nil
}

// hoistable reports whether s may run once per parameter instead of once
// per loop iteration without changing behavior.
func hoistable(s cst.Stmt) bool {
	switch n := s.(type) {
	case *cst.ExprStmt, *cst.Assign, *cst.AugAssign, *cst.Assert, *cst.Pass,
		*cst.Import, *cst.ImportFrom:
		return true
	case *cst.RawStmt:
		return !n.Compound
	case *cst.If:
		if !allHoistable(n.Body.Stmts) {
			return false
		}
		for _, e := range n.Elifs {
			if !allHoistable(e.Body.Stmts) {
				return false
			}
		}
		return n.Else == nil || allHoistable(n.Else.Body.Stmts)
	}
	return false
}

func allHoistable(stmts []cst.Stmt) bool {
	for _, s := range stmts {
		if !hoistable(s) {
			return false
		}
	}
	return true
}

func hasParametrize(decs []*cst.Decorator) bool {
	for _, d := range decs {
		target, _ := shape.ProbeOr(d, "value.func", d.Value).(cst.Expr)
		if chain := shape.Chain(target); len(chain) > 0 && chain[len(chain)-1] == "parametrize" {
			return true
		}
	}
	return false
}

// resolveValues determines the literal values a loop iterates over.
func (r *Rewriter) resolveValues(fn *cst.FunctionDef, classBody []cst.Stmt, iter cst.Expr, before []cst.Stmt) ([]cst.Expr, error) {
	var values []cst.Expr
	switch it := cst.Unparen(iter).(type) {
	case *cst.List:
		values = it.Elements
	case *cst.Tuple:
		values = it.Elements
	case *cst.Call:
		seq, err := materializeRange(it, r.opts.MaxParamValues)
		if err != nil {
			return nil, err
		}
		values = seq
	case *cst.Name:
		seq, err := valuesFromAssignment(it.Value, before)
		if err != nil {
			return nil, err
		}
		values = seq
	default:
		return nil, fmt.Errorf("unsupported iterable %s", it.Kind())
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("no values to parametrize")
	}
	if len(values) > r.opts.MaxParamValues {
		return nil, fmt.Errorf("%d values exceed the limit of %d", len(values), r.opts.MaxParamValues)
	}
	locals := localNames(fn)
	for name := range classNames(classBody) {
		locals[name] = true
	}
	for _, v := range values {
		if !shape.IsExpression(v) {
			return nil, fmt.Errorf("value %s is not an expression", cst.Code(v))
		}
		if !constant(v, locals) {
			return nil, fmt.Errorf("value %s is not a module-level constant", cst.Code(v))
		}
	}
	return values, nil
}

// materializeRange expands range(stop), range(start, stop) and
// range(start, stop, step) with integer literal arguments.
func materializeRange(call *cst.Call, limit int) ([]cst.Expr, error) {
	if !cst.IsDotted(call.Func, "range") {
		return nil, fmt.Errorf("call to %s is not range", cst.Code(call.Func))
	}
	if len(call.Args) < 1 || len(call.Args) > 3 {
		return nil, fmt.Errorf("range takes 1 to 3 arguments")
	}
	nums := make([]int64, len(call.Args))
	for i, a := range call.Args {
		if a.Star != "" || a.Keyword != "" {
			return nil, fmt.Errorf("range argument is not positional")
		}
		n, ok := intLiteral(a.Value)
		if !ok {
			return nil, fmt.Errorf("range argument %s is not an integer literal", cst.Code(a.Value))
		}
		nums[i] = n
	}

	start, stop, step := int64(0), nums[0], int64(1)
	if len(nums) >= 2 {
		start, stop = nums[0], nums[1]
	}
	if len(nums) == 3 {
		step = nums[2]
	}
	if step == 0 {
		return nil, fmt.Errorf("range step is zero")
	}

	var out []cst.Expr
	for v := start; (step > 0 && v < stop) || (step < 0 && v > stop); v += step {
		if len(out) == limit {
			return nil, fmt.Errorf("range produces more than %d values", limit)
		}
		out = append(out, cst.NewInteger(v))
	}
	return out, nil
}

func intLiteral(e cst.Expr) (int64, bool) {
	switch n := cst.Unparen(e).(type) {
	case *cst.Integer:
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	case *cst.UnaryOp:
		v, ok := intLiteral(n.Operand)
		if !ok {
			return 0, false
		}
		switch n.Op {
		case "-":
			return -v, true
		case "+":
			return v, true
		}
	}
	return 0, false
}

// valuesFromAssignment finds the single literal list or tuple assigned to
// name before the loop. Any other use of name before the loop declines.
func valuesFromAssignment(name string, before []cst.Stmt) ([]cst.Expr, error) {
	var found []cst.Expr
	assignments := 0
	for _, s := range before {
		if a, ok := s.(*cst.Assign); ok && len(a.Targets) == 1 && cst.IsDotted(a.Targets[0], name) {
			assignments++
			switch v := cst.Unparen(a.Value).(type) {
			case *cst.List:
				found = v.Elements
			case *cst.Tuple:
				found = v.Elements
			default:
				return nil, fmt.Errorf("%s is not assigned a literal list or tuple", name)
			}
			if cst.Mentions(a.Value, name) {
				return nil, fmt.Errorf("%s refers to itself", name)
			}
			continue
		}
		if cst.Mentions(s, name) {
			return nil, fmt.Errorf("%s is used before the loop", name)
		}
	}
	if assignments != 1 {
		return nil, fmt.Errorf("%s has %d literal assignments before the loop", name, assignments)
	}
	return found, nil
}

// localNames collects the names bound inside fn: parameters and
// assignment targets.
func localNames(fn *cst.FunctionDef) map[string]bool {
	locals := map[string]bool{"self": true, "cls": true}
	for _, p := range fn.ParamNames() {
		locals[p] = true
	}
	cst.Inspect(fn.Body, func(n cst.Node) bool {
		switch s := n.(type) {
		case *cst.FunctionDef:
			locals[s.Name] = true
		case *cst.ClassDef:
			locals[s.Name] = true
		default:
			bindNames(n, locals)
		}
		return true
	})
	return locals
}

// classNames collects the names a class body binds in class scope.
// Method bodies are not entered.
func classNames(body []cst.Stmt) map[string]bool {
	names := map[string]bool{}
	for _, s := range body {
		cst.Inspect(s, func(n cst.Node) bool {
			switch v := n.(type) {
			case *cst.FunctionDef:
				names[v.Name] = true
				return false
			case *cst.ClassDef:
				names[v.Name] = true
				return false
			case *cst.RawStmt:
				// Annotated assignments stay raw.
				if f := identifiers(v.Code); len(f) > 0 {
					names[f[0]] = true
				}
			default:
				bindNames(n, names)
			}
			return true
		})
	}
	return names
}

// bindNames records the names statement n binds.
func bindNames(n cst.Node, names map[string]bool) {
	switch s := n.(type) {
	case *cst.Assign:
		for _, t := range s.Targets {
			markTargets(t, names)
		}
	case *cst.AugAssign:
		markTargets(s.Target, names)
	case *cst.For:
		markTargets(s.Target, names)
	case *cst.WithItem:
		if s.Alias != nil {
			markTargets(s.Alias, names)
		}
	case *cst.Import:
		for _, a := range s.Names {
			names[boundName(a)] = true
		}
	case *cst.ImportFrom:
		for _, a := range s.Names {
			names[boundName(a)] = true
		}
	}
}

func identifiers(code string) []string {
	return strings.FieldsFunc(code, func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
}

func markTargets(e cst.Expr, locals map[string]bool) {
	cst.Inspect(e, func(n cst.Node) bool {
		switch v := n.(type) {
		case *cst.Name:
			locals[v.Value] = true
		case *cst.Attribute, *cst.Subscript:
			return false
		case *cst.RawExpr:
			for _, f := range identifiers(v.Code) {
				locals[f] = true
			}
		}
		return true
	})
}

func boundName(a cst.ImportAlias) string {
	if a.AsName != "" {
		return a.AsName
	}
	return strings.SplitN(a.Name, ".", 2)[0]
}

// constant reports whether e can be evaluated where the decorator sits:
// literals and names that are not local to the function.
func constant(e cst.Expr, locals map[string]bool) bool {
	ok := true
	cst.Inspect(e, func(n cst.Node) bool {
		if !ok {
			return false
		}
		switch v := n.(type) {
		case *cst.Name:
			if locals[v.Value] {
				ok = false
			}
		case *cst.Attribute:
			return true
		case *cst.Call, *cst.RawExpr:
			ok = false
		}
		return ok
	})
	return ok
}
