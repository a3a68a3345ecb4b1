package transform

import (
	"github.com/QTest-hq/pytestify/pkg/cst"
)

// RewriteSkipDecorators maps unittest skip decorators to pytest markers.
// The argument lists of skip and skipIf are kept as written. When nothing
// matches, the input slice itself is returned.
func (r *Rewriter) RewriteSkipDecorators(decs []*cst.Decorator) Outcome[[]*cst.Decorator] {
	if len(decs) == 0 {
		return keep(decs)
	}
	var out []*cst.Decorator
	var imports ImportSet
	for i, d := range decs {
		var rewritten *cst.Decorator
		r.guard("decorator", func() {
			rewritten = rewriteSkip(d)
		})
		if rewritten == nil {
			if out != nil {
				out = append(out, d)
			}
			continue
		}
		if out == nil {
			out = make([]*cst.Decorator, i, len(decs))
			copy(out, decs[:i])
		}
		out = append(out, rewritten)
		imports = imports.With(ImportPytest)
	}
	if out == nil {
		return keep(decs)
	}
	return Outcome[[]*cst.Decorator]{Node: out, Imports: imports}
}

func mark(name string) cst.Expr {
	return cst.NewDotted("pytest", "mark", name)
}

// rewriteSkip returns the pytest form of d, or nil when d is not a
// unittest skip decorator.
func rewriteSkip(d *cst.Decorator) *cst.Decorator {
	if cst.IsDotted(d.Value, "unittest.expectedFailure") {
		return &cst.Decorator{Leading: d.Leading, Value: mark("xfail")}
	}

	call, ok := d.Value.(*cst.Call)
	if !ok {
		return nil
	}
	name, ok := cst.DottedName(call.Func)
	if !ok {
		return nil
	}

	var value cst.Expr
	switch name {
	case "unittest.skip":
		value = call.WithFunc(mark("skip"))
	case "unittest.skipIf":
		// Arguments stay positional. pytest reads a positional reason as a
		// second condition and evals it when it is a string, so such marks
		// only behave when the first condition is true.
		value = call.WithFunc(mark("skipif"))
	case "unittest.skipUnless":
		value = skipUnless(call)
	}
	if value == nil {
		return nil
	}
	return &cst.Decorator{Leading: d.Leading, Value: value}
}

// skipUnless turns skipUnless(c, r) into skipif(not c, reason=r).
func skipUnless(call *cst.Call) cst.Expr {
	var cond, reason cst.Expr
	for i, a := range call.Args {
		switch {
		case a.Star != "":
			return nil
		case a.Keyword == "condition" || (a.Keyword == "" && i == 0):
			cond = a.Value
		case a.Keyword == "reason" || (a.Keyword == "" && i == 1):
			reason = a.Value
		default:
			return nil
		}
	}
	if cond == nil || reason == nil {
		return nil
	}
	return cst.NewCall(mark("skipif"), cst.PosArg(cst.Not(cond)), cst.KwArg("reason", reason))
}
