package transform

import (
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/pytestify/pkg/cst"
)

// Transformer runs every enabled pass over a module.
type Transformer struct {
	opts Options
}

func NewTransformer(opts Options) *Transformer {
	return &Transformer{opts: opts}
}

// Transform rewrites m. The returned module is m itself when nothing
// changed. Failures inside individual rewrites are absorbed and leave the
// affected node untouched; in strict mode they are also returned as an
// error wrapping ErrInternal.
func (t *Transformer) Transform(m *cst.Module) (Outcome[*cst.Module], error) {
	r := NewRewriter(t.opts)
	res := t.transform(r, m)
	if err := r.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (t *Transformer) transform(r *Rewriter, m *cst.Module) Outcome[*cst.Module] {
	var imports ImportSet
	subclassed := subclassedNames(m.Body)

	body := m.Body
	replace := func(i int, s cst.Stmt) {
		if sameStmts(body, m.Body) {
			body = append([]cst.Stmt(nil), m.Body...)
		}
		body[i] = s
	}

	for i, s := range m.Body {
		switch n := s.(type) {
		case *cst.ClassDef:
			res := r.ConvertClass(n, subclassed[n.Name])
			if res.Node != n {
				replace(i, res.Node)
				imports = imports.Merge(res.Imports)
			}
		case *cst.FunctionDef:
			if !t.opts.Decorators {
				continue
			}
			res := r.RewriteSkipDecorators(n.Decorators)
			if !sameDecorators(res.Node, n.Decorators) {
				replace(i, n.WithDecorators(res.Node))
				imports = imports.Merge(res.Imports)
			}
		}
	}

	if t.opts.Fixtures {
		var res Outcome[[]cst.Stmt]
		if r.guard("module-fixture", func() { res = convertModuleHooks(body) }) {
			body = res.Node
			imports = imports.Merge(res.Imports)
		}
	}
	if sameStmts(body, m.Body) {
		log.Debug().Msg("module unchanged")
		return keep(m)
	}

	out := m.WithBody(body)
	if t.opts.RemoveMainBlock && !keepsTestCase(out.Body) {
		out = RemoveMainBlock(out)
	}
	next := out.Body
	if t.opts.RemoveUnittestImport {
		next = RemoveUnittestImports(next)
	}
	next = EnsureImports(next, imports)
	if !sameStmts(next, out.Body) {
		out = out.WithBody(next)
	}
	return Outcome[*cst.Module]{Node: out, Imports: imports}
}

// keepsTestCase reports whether a unittest.TestCase class survived, in
// which case unittest.main() still has something to run.
func keepsTestCase(body []cst.Stmt) bool {
	for _, s := range body {
		if cls, ok := s.(*cst.ClassDef); ok && IsTestCaseClass(cls) {
			return true
		}
	}
	return false
}

// subclassedNames returns the classes that another class in body derives
// from by plain name.
func subclassedNames(body []cst.Stmt) map[string]bool {
	names := map[string]bool{}
	for _, s := range body {
		cls, ok := s.(*cst.ClassDef)
		if !ok {
			continue
		}
		for _, b := range cls.Bases {
			if b.Keyword != "" || b.Star != "" {
				continue
			}
			if n, ok := b.Value.(*cst.Name); ok {
				names[n.Value] = true
			}
		}
	}
	return names
}

// convertModuleHooks replaces setUpModule/tearDownModule with a module
// scoped autouse fixture.
func convertModuleHooks(body []cst.Stmt) Outcome[[]cst.Stmt] {
	setAt, setUp := findMethod(body, "setUpModule")
	downAt, tearDown := findMethod(body, "tearDownModule")
	if setUp == nil && tearDown == nil {
		return keep(body)
	}
	if hasDefinition(body, "setup_module") || hasDefinition(body, "teardown_module") {
		return keep(body)
	}
	for i, s := range body {
		if i == setAt || i == downAt {
			continue
		}
		if cst.Mentions(s, "setUpModule") || cst.Mentions(s, "tearDownModule") {
			decline("module-fixture", "module hooks are referenced")
			return keep(body)
		}
	}

	res, ok := fixtureFromHooks(ScopeModule, setUp, tearDown, "setUpModule", "tearDownModule")
	if !ok {
		decline("module-fixture", "setUpModule/tearDownModule cannot be merged")
		return keep(body)
	}
	at := setAt
	if setUp == nil {
		at = downAt
	}
	return Outcome[[]cst.Stmt]{Node: replaceAndDrop(body, at, res.Node, downAt), Imports: res.Imports}
}
