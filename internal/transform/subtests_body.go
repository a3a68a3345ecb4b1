package transform

import (
	"strings"

	"github.com/QTest-hq/pytestify/pkg/cst"
)

const subtestsFixture = "subtests"

// RewriteSubtestBlock replaces every "with self.subTest(...)" item in
// stmts, at any depth, with "with subtests.test(...)". Arguments are kept.
func (r *Rewriter) RewriteSubtestBlock(stmts []cst.Stmt) ([]cst.Stmt, bool) {
	out := stmts
	changed := false
	r.guard("subtests", func() {
		out, changed = rewriteSubtests(stmts)
	})
	if !changed {
		return stmts, false
	}
	return out, true
}

func rewriteSubtests(stmts []cst.Stmt) ([]cst.Stmt, bool) {
	out := make([]cst.Stmt, len(stmts))
	changed := false
	for i, s := range stmts {
		if _, isClass := s.(*cst.ClassDef); isClass {
			out[i] = s
			continue
		}
		cur := cst.MapBlocks(s, func(b *cst.Block) *cst.Block {
			if next, ok := rewriteSubtests(b.Stmts); ok {
				return b.WithStmts(next)
			}
			return b
		})
		if w, ok := cur.(*cst.With); ok {
			cur = rewriteSubtestItems(w)
		}
		out[i] = cur
		if cur != s {
			changed = true
		}
	}
	return out, changed
}

func rewriteSubtestItems(w *cst.With) *cst.With {
	items := make([]*cst.WithItem, len(w.Items))
	changed := false
	for i, it := range w.Items {
		items[i] = it
		name, call := selfMethod(it.Value)
		if call == nil || name != "subTest" {
			continue
		}
		items[i] = &cst.WithItem{
			Value: call.WithFunc(cst.NewDotted(subtestsFixture, "test")),
			Alias: it.Alias,
		}
		changed = true
	}
	if !changed {
		return w
	}
	return w.WithItems(items)
}

// HasSubtestsCall reports whether stmts already contain a
// "with subtests.test(...)" item at any depth.
func HasSubtestsCall(stmts []cst.Stmt) bool {
	found := false
	for _, s := range stmts {
		cst.Inspect(s, func(n cst.Node) bool {
			if found {
				return false
			}
			if it, ok := n.(*cst.WithItem); ok {
				if call, ok := it.Value.(*cst.Call); ok && cst.IsDotted(call.Func, subtestsFixture+".test") {
					found = true
				}
			}
			return !found
		})
		if found {
			return true
		}
	}
	return false
}

// hasSubTest reports whether stmts use self.subTest as a context manager.
func hasSubTest(stmts []cst.Stmt) bool {
	found := false
	for _, s := range stmts {
		cst.Inspect(s, func(n cst.Node) bool {
			if _, isClass := n.(*cst.ClassDef); isClass || found {
				return false
			}
			if it, ok := n.(*cst.WithItem); ok {
				if name, call := selfMethod(it.Value); call != nil && name == "subTest" {
					found = true
				}
			}
			return !found
		})
	}
	return found
}

// EnsureSubtestsParam adds the subtests fixture parameter to fn unless it
// is already present. It goes before the first parameter with a default
// or a star, so the list stays valid.
func EnsureSubtestsParam(fn *cst.FunctionDef) *cst.FunctionDef {
	for _, p := range fn.Params {
		if p.Name == subtestsFixture {
			return fn
		}
	}
	params := make([]*cst.Param, 0, len(fn.Params)+1)
	inserted := false
	for _, p := range fn.Params {
		if !inserted && (strings.HasPrefix(p.Code, "*") || strings.Contains(p.Code, "=")) {
			params = append(params, cst.NewParam(subtestsFixture))
			inserted = true
		}
		params = append(params, p)
	}
	if !inserted {
		params = append(params, cst.NewParam(subtestsFixture))
	}
	return fn.WithParams(params)
}
