package transform

import (
	"regexp"
	"strings"

	"github.com/QTest-hq/pytestify/internal/shape"
	"github.com/QTest-hq/pytestify/pkg/cst"
)

// testCaseAPI lists self attributes that only exist on unittest.TestCase,
// besides the assert*/fail* families.
var testCaseAPI = map[string]bool{
	"addCleanup":          true,
	"doCleanups":          true,
	"addClassCleanup":     true,
	"doClassCleanups":     true,
	"enterContext":        true,
	"enterClassContext":   true,
	"subTest":             true,
	"skipTest":            true,
	"id":                  true,
	"shortDescription":    true,
	"maxDiff":             true,
	"longMessage":         true,
	"failureException":    true,
	"addTypeEqualityFunc": true,
	"run":                 true,
	"debug":               true,
	"countTestCases":      true,
	"defaultTestResult":   true,
	"setUp":               true,
	"tearDown":            true,
	"setUpClass":          true,
	"tearDownClass":       true,
	"_testMethodName":     true,
	"_testMethodDoc":      true,
	"_outcome":            true,
}

var opaqueAPI = regexp.MustCompile(`\b(?:self|cls)\s*\.\s*(?:assert\w*|fail\w*|addCleanup|doCleanups|subTest|skipTest|id|maxDiff|longMessage|enterContext|setUp|tearDown|_testMethodName)\b|\bsuper\s*\(`)

func isTestCaseAPI(attr string) bool {
	return testCaseAPI[attr] || strings.HasPrefix(attr, "assert") || strings.HasPrefix(attr, "fail")
}

// usesTestCaseAPI reports whether n still depends on being a TestCase:
// TestCase-only attributes on self/cls, or any super() call.
func usesTestCaseAPI(n cst.Node) bool {
	found := false
	cst.Inspect(n, func(c cst.Node) bool {
		if found {
			return false
		}
		switch v := c.(type) {
		case *cst.Attribute:
			if (cst.IsDotted(v.Value, "self") || cst.IsDotted(v.Value, "cls")) && isTestCaseAPI(v.Attr) {
				found = true
			}
		case *cst.Call:
			if cst.IsDotted(v.Func, "super") {
				found = true
			}
		}
		return !found
	})
	return found || cst.MatchesOpaque(n, opaqueAPI)
}

// IsTestCaseClass reports whether cls derives directly and only from
// unittest.TestCase.
func IsTestCaseClass(cls *cst.ClassDef) bool {
	if len(cls.Bases) != 1 {
		return false
	}
	base := cls.Bases[0]
	if base.Keyword != "" || base.Star != "" {
		return false
	}
	return cst.IsDotted(base.Value, "unittest.TestCase") || cst.IsDotted(base.Value, "TestCase")
}

// ConvertClass converts a test class. A direct unittest.TestCase subclass
// loses its base when every TestCase-only use can be rewritten away; in
// that case its hooks become fixtures and sub-tests are parametrized.
// Any other class, or one that must keep its base, only gets assertion
// and decorator rewrites. subclassed marks classes other classes in the
// module derive from.
func (r *Rewriter) ConvertClass(cls *cst.ClassDef, subclassed bool) Outcome[*cst.ClassDef] {
	light := r.lightConvert(cls)
	if !IsTestCaseClass(cls) || subclassed || !strings.HasPrefix(cls.Name, "Test") {
		return light
	}

	var full Outcome[*cst.ClassDef]
	ok := r.guard("testcase", func() {
		full = r.fullConvert(light)
	})
	if !ok || full.Node == nil {
		return light
	}
	if usesTestCaseAPI(full.Node.Body) || definesHook(full.Node) {
		decline("testcase", cls.Name+" still depends on unittest.TestCase")
		return light
	}
	return full
}

// definesHook reports whether cls still defines a method that only a
// TestCase runner would call, or an __init__ that stops pytest from
// collecting it.
func definesHook(cls *cst.ClassDef) bool {
	for _, name := range []string{"__init__", "setUp", "tearDown", "setUpClass", "tearDownClass", "run", "runTest"} {
		if hasDefinition(cls.Body.Stmts, name) {
			return true
		}
	}
	return false
}

// lightConvert applies the assertion and decorator rewrites.
func (r *Rewriter) lightConvert(cls *cst.ClassDef) Outcome[*cst.ClassDef] {
	var imports ImportSet
	out := cls

	if r.opts.Decorators {
		if res := r.RewriteSkipDecorators(cls.Decorators); !sameDecorators(res.Node, cls.Decorators) {
			out = out.WithDecorators(res.Node)
			imports = imports.Merge(res.Imports)
		}
	}

	stmts := cls.Body.Stmts
	if r.opts.Assertions {
		res := r.RewriteAssertions(stmts)
		stmts = res.Node
		imports = imports.Merge(res.Imports)
	}
	if r.opts.Decorators {
		res := r.rewriteMethodDecorators(stmts)
		stmts = res.Node
		imports = imports.Merge(res.Imports)
	}
	if !sameStmts(stmts, cls.Body.Stmts) {
		out = out.WithBody(cls.Body.WithStmts(stmts))
	}
	return Outcome[*cst.ClassDef]{Node: out, Imports: imports}
}

func (r *Rewriter) rewriteMethodDecorators(stmts []cst.Stmt) Outcome[[]cst.Stmt] {
	var imports ImportSet
	out := stmts
	for i, s := range stmts {
		fn, ok := s.(*cst.FunctionDef)
		if !ok {
			continue
		}
		res := r.RewriteSkipDecorators(fn.Decorators)
		if sameDecorators(res.Node, fn.Decorators) {
			continue
		}
		if sameStmts(out, stmts) {
			out = append([]cst.Stmt(nil), stmts...)
		}
		out[i] = fn.WithDecorators(res.Node)
		imports = imports.Merge(res.Imports)
	}
	return Outcome[[]cst.Stmt]{Node: out, Imports: imports}
}

func sameDecorators(a, b []*cst.Decorator) bool {
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

// fullConvert turns hooks into fixtures, rewrites sub-tests and drops
// the TestCase base of an already lightly converted class.
func (r *Rewriter) fullConvert(light Outcome[*cst.ClassDef]) Outcome[*cst.ClassDef] {
	cls := light.Node
	imports := light.Imports
	stmts := cls.Body.Stmts

	if r.opts.Fixtures {
		res := r.convertInstanceHooks(stmts)
		stmts = res.Node
		imports = imports.Merge(res.Imports)
		stmts = convertClassHooks(stmts)
	}

	if r.opts.Parametrize || r.opts.Subtests {
		res := r.convertSubtests(stmts)
		stmts = res.Node
		imports = imports.Merge(res.Imports)
	}

	out := cls.WithBases(nil)
	if !sameStmts(stmts, cls.Body.Stmts) {
		out = out.WithBody(cls.Body.WithStmts(stmts))
	}
	return Outcome[*cst.ClassDef]{Node: out, Imports: imports}
}

// findMethod returns the index of a plain method with the given name and
// parameter names, or -1.
func findMethod(stmts []cst.Stmt, name string, params ...string) (int, *cst.FunctionDef) {
	for i, s := range stmts {
		fn, ok := s.(*cst.FunctionDef)
		if !ok || fn.Name != name {
			continue
		}
		if fn.Async || strings.Join(fn.ParamNames(), ",") != strings.Join(params, ",") {
			return -1, nil
		}
		return i, fn
	}
	return -1, nil
}

func hasDefinition(stmts []cst.Stmt, name string) bool {
	for _, s := range stmts {
		switch n := s.(type) {
		case *cst.FunctionDef:
			if n.Name == name {
				return true
			}
		case *cst.Assign:
			for _, t := range n.Targets {
				if cst.IsDotted(t, name) {
					return true
				}
			}
		}
	}
	return false
}

// isSuperHook reports whether s is a call of the inherited hook, such as
// super().setUp() or unittest.TestCase.setUp(self).
func isSuperHook(s cst.Stmt, hook string) bool {
	if name, ok := shape.ProbeString(s, "value.func.attr"); !ok || name != hook {
		return false
	}
	owner, _ := shape.Probe(s, "value.func.value")
	switch o := owner.(type) {
	case *cst.Call:
		if !cst.IsDotted(o.Func, "super") {
			return false
		}
		_, hasArgs := shape.Probe(s, "value.args.0")
		return !hasArgs
	case cst.Expr:
		return cst.IsDotted(o, "unittest.TestCase") || cst.IsDotted(o, "TestCase")
	}
	return false
}

func stripSuperHook(stmts []cst.Stmt, hook string) []cst.Stmt {
	out := make([]cst.Stmt, 0, len(stmts))
	var carry []cst.Line
	for _, s := range stmts {
		if isSuperHook(s, hook) {
			carry = append(carry, comments(s)...)
			continue
		}
		if len(carry) > 0 {
			s = carryComments(s, carry)
			carry = nil
		}
		out = append(out, s)
	}
	return out
}

var yieldExpr = regexp.MustCompile(`^\s*(?:\w+\s*=\s*)?yield\b`)

// earlyExit reports whether stmts contain return or yield outside nested
// definitions. Either would break the setup/yield/teardown sequence.
func earlyExit(stmts []cst.Stmt) bool {
	found := false
	for _, s := range stmts {
		cst.Inspect(s, func(n cst.Node) bool {
			if found {
				return false
			}
			switch v := n.(type) {
			case *cst.FunctionDef, *cst.ClassDef:
				return false
			case *cst.Return:
				found = true
			case *cst.RawExpr:
				if yieldExpr.MatchString(v.Code) {
					found = true
				}
			case *cst.RawStmt:
				if yieldExpr.MatchString(v.Code) {
					found = true
				}
			}
			return !found
		})
	}
	return found
}

// splitDecls separates global and nonlocal declarations from the other
// statements.
func splitDecls(stmts []cst.Stmt) (decls, rest []cst.Stmt) {
	for _, s := range stmts {
		if raw, ok := s.(*cst.RawStmt); ok && (strings.HasPrefix(raw.Code, "global ") || strings.HasPrefix(raw.Code, "nonlocal ")) {
			decls = append(decls, s)
			continue
		}
		rest = append(rest, s)
	}
	return decls, rest
}

// declaredNames returns the names a function body declares global or
// nonlocal.
func declaredNames(stmts []cst.Stmt) map[string]bool {
	names := map[string]bool{}
	decls, _ := splitDecls(stmts)
	for _, d := range decls {
		code := d.(*cst.RawStmt).Code
		_, list, _ := strings.Cut(code, " ")
		for _, n := range strings.Split(list, ",") {
			names[strings.TrimSpace(n)] = true
		}
	}
	return names
}

// fixtureFromHooks merges a setup and a teardown hook into one fixture.
// It reports false when the hooks cannot share one function body.
func fixtureFromHooks(scope Scope, setUp, tearDown *cst.FunctionDef, setupName, teardownName string) (Outcome[*cst.FunctionDef], bool) {
	var setup, teardown []cst.Stmt
	if setUp != nil {
		if len(setUp.Decorators) > 0 {
			return Outcome[*cst.FunctionDef]{}, false
		}
		setup = stripSuperHook(setUp.Body.Stmts, setupName)
	}
	if tearDown != nil {
		if len(tearDown.Decorators) > 0 {
			return Outcome[*cst.FunctionDef]{}, false
		}
		teardown = stripSuperHook(tearDown.Body.Stmts, teardownName)
	}
	if earlyExit(setup) || earlyExit(teardown) {
		return Outcome[*cst.FunctionDef]{}, false
	}
	if setUp != nil && tearDown != nil {
		declared := declaredNames(setUp.Body.Stmts)
		for name := range localNames(setUp) {
			if name == "self" || name == "cls" || declared[name] {
				continue
			}
			if cst.Mentions(tearDown.Body, name) {
				return Outcome[*cst.FunctionDef]{}, false
			}
		}
	}

	// Python requires declarations before any use of the name, and the
	// teardown half now shares a body with setup.
	setDecls, setRest := splitDecls(setup)
	downDecls, downRest := splitDecls(teardown)
	if len(downDecls) > 0 {
		seen := map[string]bool{}
		var decls []cst.Stmt
		for _, d := range append(setDecls, downDecls...) {
			code := d.(*cst.RawStmt).Code
			if !seen[code] {
				seen[code] = true
				decls = append(decls, d)
			}
		}
		setup, teardown = append(decls, setRest...), downRest
	}

	res := BuildFixture(scope, setup, teardown)
	fn := res.Node
	switch {
	case setUp != nil:
		fn = cst.Adopt(fn, setUp)
	case tearDown != nil:
		fn = cst.Adopt(fn, tearDown)
	}
	return Outcome[*cst.FunctionDef]{Node: fn, Imports: res.Imports}, true
}

// convertInstanceHooks replaces setUp/tearDown with one autouse fixture.
func (r *Rewriter) convertInstanceHooks(stmts []cst.Stmt) Outcome[[]cst.Stmt] {
	setAt, setUp := findMethod(stmts, "setUp", "self")
	downAt, tearDown := findMethod(stmts, "tearDown", "self")
	if setUp == nil && tearDown == nil {
		return keep(stmts)
	}
	if hasDefinition(stmts, "setup_method") || hasDefinition(stmts, "teardown_method") {
		return keep(stmts)
	}

	res, ok := fixtureFromHooks(ScopeInstance, setUp, tearDown, "setUp", "tearDown")
	if !ok {
		decline("fixtures", "setUp/tearDown cannot be merged")
		return keep(stmts)
	}
	at := setAt
	if setUp == nil {
		at = downAt
	}
	return Outcome[[]cst.Stmt]{Node: replaceAndDrop(stmts, at, res.Node, downAt), Imports: res.Imports}
}

// replaceAndDrop puts repl at index at and removes index drop (if it is a
// different index). Comments of the dropped statement move to its
// successor.
func replaceAndDrop(stmts []cst.Stmt, at int, repl cst.Stmt, drop int) []cst.Stmt {
	out := make([]cst.Stmt, 0, len(stmts))
	var carry []cst.Line
	for i, s := range stmts {
		switch {
		case i == at:
			s = repl
		case i == drop:
			carry = append(carry, comments(s)...)
			continue
		}
		if len(carry) > 0 {
			s = carryComments(s, carry)
			carry = nil
		}
		out = append(out, s)
	}
	return out
}

// comments returns the comment lines above s.
func comments(s cst.Stmt) []cst.Line {
	var out []cst.Line
	for _, l := range cst.TriviaOf(s).Leading {
		if l.Comment != "" {
			out = append(out, l)
		}
	}
	return out
}

// carryComments puts comment lines of a removed statement above s, after
// the blank lines that separate s from what precedes it.
func carryComments(s cst.Stmt, lines []cst.Line) cst.Stmt {
	leading := cst.TriviaOf(s).Leading
	blank := 0
	for blank < len(leading) && leading[blank].Comment == "" {
		blank++
	}
	merged := make([]cst.Line, 0, len(leading)+len(lines))
	merged = append(merged, leading[:blank]...)
	merged = append(merged, lines...)
	merged = append(merged, leading[blank:]...)
	return cst.WithLeading(s, merged)
}

// convertClassHooks renames setUpClass/tearDownClass classmethods to
// the pytest xunit names, dropping calls of the inherited hooks.
func convertClassHooks(stmts []cst.Stmt) []cst.Stmt {
	renames := map[string]string{"setUpClass": "setup_class", "tearDownClass": "teardown_class"}
	out := stmts
	for i, s := range stmts {
		fn, ok := s.(*cst.FunctionDef)
		if !ok {
			continue
		}
		target, ok := renames[fn.Name]
		if !ok || hasDefinition(stmts, target) {
			continue
		}
		if len(fn.Decorators) != 1 || !cst.IsDotted(fn.Decorators[0].Value, "classmethod") {
			continue
		}
		body := stripSuperHook(fn.Body.Stmts, fn.Name)
		renamed := fn.WithName(target)
		if len(body) != len(fn.Body.Stmts) {
			renamed = renamed.WithBody(fn.Body.WithStmts(body))
		}
		if sameStmts(out, stmts) {
			out = append([]cst.Stmt(nil), stmts...)
		}
		out[i] = renamed
	}
	return out
}

// convertSubtests parametrizes sub-test loops in test methods, or routes
// them through the subtests fixture when parametrization declines.
func (r *Rewriter) convertSubtests(stmts []cst.Stmt) Outcome[[]cst.Stmt] {
	var imports ImportSet
	out := stmts
	for i, s := range stmts {
		fn, ok := s.(*cst.FunctionDef)
		if !ok || !strings.HasPrefix(fn.Name, "test") || !hasSubTest(fn.Body.Stmts) {
			continue
		}
		var next *cst.FunctionDef
		if r.opts.Parametrize {
			if res, ok := r.ParametrizeMethod(fn, stmts); ok {
				next = res.Node
				imports = imports.Merge(res.Imports)
			}
		}
		if next == nil && r.opts.Subtests {
			if body, ok := r.RewriteSubtestBlock(fn.Body.Stmts); ok {
				next = EnsureSubtestsParam(fn.WithBody(fn.Body.WithStmts(body)))
			}
		}
		if next == nil {
			continue
		}
		if sameStmts(out, stmts) {
			out = append([]cst.Stmt(nil), stmts...)
		}
		out[i] = next
	}
	return Outcome[[]cst.Stmt]{Node: out, Imports: imports}
}
